// Package fruyaml reads and writes a YAML rendering of a FRU document. The
// layout mirrors the TOML text form: one mapping per information area, the
// same field keys, and local tags (!hex, !bcd, !packed, !latin1, !u16) in
// place of the typed string prefixes. Plain scalars take the encoding the
// area language implies.
package fruyaml

import (
	"encoding/hex"
	"fmt"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"example.com/frugate/internal/fru"
)

// ParseError reports a structural or type problem in the YAML form.
type ParseError struct {
	Line int
	Msg  string
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("fru yaml: line %d: %s", e.Line, e.Msg)
}

func parseErrorf(n *yaml.Node, format string, args ...interface{}) error {
	line := 0
	if n != nil {
		line = n.Line
	}
	return &ParseError{Line: line, Msg: fmt.Sprintf(format, args...)}
}

// IsParseError reports whether err is a ParseError.
func IsParseError(err error) bool {
	_, ok := err.(*ParseError)
	return ok
}

const (
	tagHex    = "!hex"
	tagBCD    = "!bcd"
	tagPacked = "!packed"
	tagLatin1 = "!latin1"
	tagU16    = "!u16"
)

// Unmarshal parses the YAML form into a Document.
func Unmarshal(data []byte) (*fru.Document, error) {
	var root yaml.Node
	if err := yaml.Unmarshal(data, &root); err != nil {
		return nil, &ParseError{Msg: err.Error()}
	}
	if root.Kind == 0 || len(root.Content) == 0 {
		return &fru.Document{}, nil
	}
	top := root.Content[0]
	if top.Kind != yaml.MappingNode {
		return nil, parseErrorf(top, "expected a mapping of areas")
	}
	doc := &fru.Document{}
	for i := 0; i+1 < len(top.Content); i += 2 {
		key, val := top.Content[i], top.Content[i+1]
		if val.Kind != yaml.MappingNode {
			return nil, parseErrorf(val, "area %q must be a mapping", key.Value)
		}
		switch key.Value {
		case "chassis":
			if doc.Chassis != nil {
				return nil, parseErrorf(key, "duplicate area chassis")
			}
			a := &fru.ChassisArea{Type: fru.ChassisTypeDefault}
			if err := bindChassis(a, val); err != nil {
				return nil, err
			}
			doc.Chassis = a
		case "board":
			if doc.Board != nil {
				return nil, parseErrorf(key, "duplicate area board")
			}
			a := &fru.BoardArea{}
			if err := bindBoard(a, val); err != nil {
				return nil, err
			}
			doc.Board = a
		case "product":
			if doc.Product != nil {
				return nil, parseErrorf(key, "duplicate area product")
			}
			a := &fru.ProductArea{}
			if err := bindProduct(a, val); err != nil {
				return nil, err
			}
			doc.Product = a
		case "multirecord":
			return nil, &fru.EncodeError{Msg: "the multirecord area is not supported"}
		default:
			return nil, parseErrorf(key, "unknown area %q", key.Value)
		}
	}
	return doc, nil
}

func bindChassis(a *fru.ChassisArea, m *yaml.Node) error {
	for i := 0; i+1 < len(m.Content); i += 2 {
		if m.Content[i].Value != "type" {
			continue
		}
		n, err := intScalar(m.Content[i+1], 0, 255)
		if err != nil {
			return err
		}
		a.Type = byte(n)
	}
	return bindFields(a.FieldRefs(), &a.OEM, m, 0, "chassis", "type")
}

func bindBoard(a *fru.BoardArea, m *yaml.Node) error {
	for i := 0; i+1 < len(m.Content); i += 2 {
		val := m.Content[i+1]
		switch m.Content[i].Value {
		case "lang":
			n, err := intScalar(val, 0, 255)
			if err != nil {
				return err
			}
			a.Language = byte(n)
		case "date":
			t, err := dateScalar(val)
			if err != nil {
				return err
			}
			a.MfgDate = t
		}
	}
	return bindFields(a.FieldRefs(), &a.OEM, m, a.Language, "board", "lang", "date")
}

func bindProduct(a *fru.ProductArea, m *yaml.Node) error {
	for i := 0; i+1 < len(m.Content); i += 2 {
		if m.Content[i].Value != "lang" {
			continue
		}
		n, err := intScalar(m.Content[i+1], 0, 255)
		if err != nil {
			return err
		}
		a.Language = byte(n)
	}
	return bindFields(a.FieldRefs(), &a.OEM, m, a.Language, "product", "lang")
}

func bindFields(refs []fru.FieldRef, oem *[]fru.Value, m *yaml.Node, lang byte, area string, handled ...string) error {
	seen := map[string]bool{}
pairs:
	for i := 0; i+1 < len(m.Content); i += 2 {
		key, val := m.Content[i], m.Content[i+1]
		if seen[key.Value] {
			return parseErrorf(key, "duplicate key %q", key.Value)
		}
		seen[key.Value] = true
		for _, k := range handled {
			if key.Value == k {
				continue pairs
			}
		}
		if key.Value == "oem" {
			if val.Kind != yaml.SequenceNode {
				return parseErrorf(val, "oem must be a sequence")
			}
			for _, item := range val.Content {
				v, err := fieldValue(item, true, lang)
				if err != nil {
					return err
				}
				*oem = append(*oem, v)
			}
			continue
		}
		ref := findRef(refs, key.Value)
		if ref == nil {
			return parseErrorf(key, "unknown key %q in area %s", key.Value, area)
		}
		v, err := fieldValue(val, ref.UseLang, lang)
		if err != nil {
			return err
		}
		*ref.Value = v
	}
	return nil
}

func findRef(refs []fru.FieldRef, key string) *fru.FieldRef {
	for i := range refs {
		if refs[i].Key == key {
			return &refs[i]
		}
	}
	return nil
}

func fieldValue(n *yaml.Node, useLang bool, lang byte) (fru.Value, error) {
	if n.Kind != yaml.ScalarNode {
		return nil, parseErrorf(n, "expected a scalar value")
	}
	var v fru.Value
	switch n.Tag {
	case tagHex:
		b, err := hex.DecodeString(strings.ReplaceAll(n.Value, " ", ""))
		if err != nil {
			return nil, parseErrorf(n, "!hex value is not hex: %v", err)
		}
		v = fru.HexBytes(b)
	case tagBCD:
		v = fru.BcdText(n.Value)
	case tagPacked:
		v = fru.PackedAscii(strings.ToUpper(n.Value))
	case tagLatin1:
		v = fru.Latin1Text(n.Value)
	case tagU16:
		s, err := unescapeU16(n)
		if err != nil {
			return nil, err
		}
		v = fru.Unicode16Text(s)
	case "!!str", "!!int", "!!float", "!!timestamp":
		v = fru.DefaultVariant(n.Value, useLang, lang)
	default:
		return nil, parseErrorf(n, "unsupported value tag %s", n.Tag)
	}
	if err := v.Validate(); err != nil {
		return nil, parseErrorf(n, "%v", err)
	}
	return v, nil
}

func intScalar(n *yaml.Node, min, max int64) (int64, error) {
	if n.Kind != yaml.ScalarNode || n.Tag != "!!int" {
		return 0, parseErrorf(n, "expected an integer")
	}
	v, err := strconv.ParseInt(n.Value, 10, 64)
	if err != nil || v < min || v > max {
		return 0, parseErrorf(n, "integer out of range %d..%d", min, max)
	}
	return v, nil
}

func dateScalar(n *yaml.Node) (time.Time, error) {
	if n.Kind != yaml.ScalarNode {
		return time.Time{}, parseErrorf(n, "expected a datetime")
	}
	if n.Tag == "!!int" {
		min, err := strconv.ParseInt(n.Value, 10, 64)
		if err != nil {
			return time.Time{}, parseErrorf(n, "bad integer date")
		}
		return fru.FruEpoch.Add(time.Duration(min) * time.Minute), nil
	}
	t, err := time.Parse(time.RFC3339, n.Value)
	if err != nil {
		return time.Time{}, parseErrorf(n, "date must be RFC 3339 or minutes since the FRU epoch")
	}
	return t.UTC(), nil
}

// Marshal renders doc as YAML. Expected-variant values emit as plain
// quoted scalars, everything else carries its local tag.
func Marshal(doc *fru.Document) ([]byte, error) {
	root := &yaml.Node{Kind: yaml.MappingNode}
	if doc.Chassis != nil {
		m := &yaml.Node{Kind: yaml.MappingNode}
		appendPair(m, "type", intNode(int64(doc.Chassis.Type)))
		if err := appendFields(m, doc.Chassis.FieldRefs(), doc.Chassis.OEM, 0); err != nil {
			return nil, err
		}
		appendPair(root, "chassis", m)
	}
	if doc.Board != nil {
		m := &yaml.Node{Kind: yaml.MappingNode}
		appendPair(m, "lang", intNode(int64(doc.Board.Language)))
		if !doc.Board.MfgDate.IsZero() {
			appendPair(m, "date", &yaml.Node{
				Kind:  yaml.ScalarNode,
				Value: doc.Board.MfgDate.UTC().Format(time.RFC3339),
			})
		}
		if err := appendFields(m, doc.Board.FieldRefs(), doc.Board.OEM, doc.Board.Language); err != nil {
			return nil, err
		}
		appendPair(root, "board", m)
	}
	if doc.Product != nil {
		m := &yaml.Node{Kind: yaml.MappingNode}
		appendPair(m, "lang", intNode(int64(doc.Product.Language)))
		if err := appendFields(m, doc.Product.FieldRefs(), doc.Product.OEM, doc.Product.Language); err != nil {
			return nil, err
		}
		appendPair(root, "product", m)
	}
	return yaml.Marshal(root)
}

func appendPair(m *yaml.Node, key string, val *yaml.Node) {
	m.Content = append(m.Content, &yaml.Node{Kind: yaml.ScalarNode, Value: key}, val)
}

func intNode(v int64) *yaml.Node {
	return &yaml.Node{Kind: yaml.ScalarNode, Value: strconv.FormatInt(v, 10)}
}

func appendFields(m *yaml.Node, refs []fru.FieldRef, oem []fru.Value, lang byte) error {
	for _, ref := range refs {
		v := *ref.Value
		if v == nil {
			continue
		}
		n, err := valueNode(v, ref.UseLang, lang)
		if err != nil {
			return err
		}
		appendPair(m, ref.Key, n)
	}
	if len(oem) > 0 {
		seq := &yaml.Node{Kind: yaml.SequenceNode}
		for _, v := range oem {
			n, err := valueNode(v, true, lang)
			if err != nil {
				return err
			}
			seq.Content = append(seq.Content, n)
		}
		appendPair(m, "oem", seq)
	}
	return nil
}

func valueNode(v fru.Value, useLang bool, lang byte) (*yaml.Node, error) {
	if err := v.Validate(); err != nil {
		return nil, err
	}
	var tag, text string
	switch v := v.(type) {
	case fru.HexBytes:
		tag, text = tagHex, fmt.Sprintf("%X", []byte(v))
	case fru.BcdText:
		tag, text = tagBCD, string(v)
	case fru.PackedAscii:
		tag, text = tagPacked, string(v)
	case fru.Latin1Text:
		tag, text = tagLatin1, string(v)
	case fru.Unicode16Text:
		tag = tagU16
		var err error
		text, err = escapeU16(string(v))
		if err != nil {
			return nil, err
		}
	default:
		return nil, &fru.EncodeError{Msg: fmt.Sprintf("unsupported value type %T", v)}
	}
	n := &yaml.Node{Kind: yaml.ScalarNode, Style: yaml.DoubleQuotedStyle, Tag: tag, Value: text}
	switch fru.DefaultVariant("", useLang, lang).(type) {
	case fru.Latin1Text:
		if tag == tagLatin1 {
			n.Tag = ""
		}
	case fru.Unicode16Text:
		// Escaped text is not the literal value, so it keeps its tag.
		if tag == tagU16 && text == string(v.(fru.Unicode16Text)) {
			n.Tag = ""
		}
	}
	return n, nil
}

// escapeU16 rewrites surrogate code points (which are not valid UTF-8 and
// cannot pass through the YAML emitter) as \uXXXX sequences, escaping the
// backslash itself to keep the form reversible.
func escapeU16(s string) (string, error) {
	runes, err := fru.Runes16(s)
	if err != nil {
		return "", err
	}
	if !strings.ContainsRune(s, '\\') {
		clean := true
		for _, r := range runes {
			if r >= 0xD800 && r <= 0xDFFF {
				clean = false
				break
			}
		}
		if clean {
			return s, nil
		}
	}
	var b strings.Builder
	for _, r := range runes {
		switch {
		case r == '\\':
			b.WriteString(`\\`)
		case r >= 0xD800 && r <= 0xDFFF:
			fmt.Fprintf(&b, `\u%04X`, r)
		default:
			b.WriteRune(r)
		}
	}
	return b.String(), nil
}

func unescapeU16(n *yaml.Node) (string, error) {
	s := n.Value
	if !strings.ContainsRune(s, '\\') {
		return s, nil
	}
	var out []byte
	for i := 0; i < len(s); {
		if s[i] != '\\' {
			out = append(out, s[i])
			i++
			continue
		}
		if i+1 >= len(s) {
			return "", parseErrorf(n, "unterminated escape in !u16 value")
		}
		switch s[i+1] {
		case '\\':
			out = append(out, '\\')
			i += 2
		case 'u':
			if i+6 > len(s) {
				return "", parseErrorf(n, "truncated \\u escape in !u16 value")
			}
			v, err := strconv.ParseUint(s[i+2:i+6], 16, 32)
			if err != nil {
				return "", parseErrorf(n, "bad \\u escape in !u16 value")
			}
			out = fru.AppendRune16(out, rune(v))
			i += 6
		default:
			return "", parseErrorf(n, "unknown escape in !u16 value")
		}
	}
	return string(out), nil
}
