// Package frutoml reads and writes the text form of a FRU document: a
// TOML-like file with one table per information area and typed string
// literals (h"", b"", p"", a"", u"") that pin a field to a specific binary
// sub-encoding. Plain strings take the encoding the area language implies,
// so a document written by Marshal parses back to the same Document.
package frutoml

import (
	"encoding/hex"
	"fmt"
	"strconv"
	"strings"
	"time"

	"example.com/frugate/internal/fru"
)

// ParseError reports a syntax or type problem in the text form, with the
// one-based line it was found on.
type ParseError struct {
	Line int
	Msg  string
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("fru text: line %d: %s", e.Line, e.Msg)
}

func parseErrorf(line int, format string, args ...interface{}) error {
	return &ParseError{Line: line, Msg: fmt.Sprintf(format, args...)}
}

// IsParseError reports whether err is a ParseError.
func IsParseError(err error) bool {
	_, ok := err.(*ParseError)
	return ok
}

const (
	rawString = iota
	rawTyped
	rawInt
	rawDate
	rawArray
)

// rawValue is one parsed right-hand side before any area context (the
// language code in particular) is known.
type rawValue struct {
	kind  int
	str   string
	typed fru.Value
	num   int64
	date  time.Time
	arr   []rawValue
}

type rawEntry struct {
	key  string
	val  rawValue
	line int
}

type rawTable struct {
	name    string
	line    int
	entries []rawEntry
}

// Unmarshal parses the text form into a Document. Values are checked
// against their variant's character class here, so a Document returned by
// Unmarshal encodes without class errors.
func Unmarshal(data []byte) (*fru.Document, error) {
	tables, err := scan(data)
	if err != nil {
		return nil, err
	}
	doc := &fru.Document{}
	for _, t := range tables {
		switch t.name {
		case "chassis":
			if doc.Chassis != nil {
				return nil, parseErrorf(t.line, "duplicate table [chassis]")
			}
			a := &fru.ChassisArea{Type: fru.ChassisTypeDefault}
			if err := bindChassis(a, t); err != nil {
				return nil, err
			}
			doc.Chassis = a
		case "board":
			if doc.Board != nil {
				return nil, parseErrorf(t.line, "duplicate table [board]")
			}
			a := &fru.BoardArea{}
			if err := bindBoard(a, t); err != nil {
				return nil, err
			}
			doc.Board = a
		case "product":
			if doc.Product != nil {
				return nil, parseErrorf(t.line, "duplicate table [product]")
			}
			a := &fru.ProductArea{}
			if err := bindProduct(a, t); err != nil {
				return nil, err
			}
			doc.Product = a
		case "multirecord":
			return nil, &fru.EncodeError{Msg: "the multirecord area is not supported"}
		default:
			return nil, parseErrorf(t.line, "unknown table [%s]", t.name)
		}
	}
	return doc, nil
}

func scan(data []byte) ([]rawTable, error) {
	var tables []rawTable
	for i, raw := range strings.Split(string(data), "\n") {
		lineNo := i + 1
		line := strings.TrimSpace(strings.TrimSuffix(raw, "\r"))
		if line == "" || line[0] == '#' {
			continue
		}
		if line[0] == '[' {
			end := strings.IndexByte(line, ']')
			if end < 0 {
				return nil, parseErrorf(lineNo, "unterminated table header")
			}
			name := strings.TrimSpace(line[1:end])
			if name == "" {
				return nil, parseErrorf(lineNo, "empty table name")
			}
			if rest := strings.TrimSpace(line[end+1:]); rest != "" && rest[0] != '#' {
				return nil, parseErrorf(lineNo, "trailing characters after table header")
			}
			tables = append(tables, rawTable{name: name, line: lineNo})
			continue
		}
		eq := strings.IndexByte(line, '=')
		if eq < 0 {
			return nil, parseErrorf(lineNo, "expected key = value")
		}
		key := strings.TrimSpace(line[:eq])
		if !validKey(key) {
			return nil, parseErrorf(lineNo, "invalid key %q", key)
		}
		if len(tables) == 0 {
			return nil, parseErrorf(lineNo, "key %q outside any table", key)
		}
		p := &lineParser{s: line[eq+1:], line: lineNo}
		v, err := p.value()
		if err != nil {
			return nil, err
		}
		if err := p.end(); err != nil {
			return nil, err
		}
		t := &tables[len(tables)-1]
		for _, e := range t.entries {
			if e.key == key {
				return nil, parseErrorf(lineNo, "duplicate key %q", key)
			}
		}
		t.entries = append(t.entries, rawEntry{key: key, val: v, line: lineNo})
	}
	return tables, nil
}

func validKey(key string) bool {
	if key == "" {
		return false
	}
	for _, r := range key {
		switch {
		case r >= 'a' && r <= 'z':
		case r >= 'A' && r <= 'Z':
		case r >= '0' && r <= '9':
		case r == '-' || r == '_':
		default:
			return false
		}
	}
	return true
}

// lineParser walks the value part of one key = value line.
type lineParser struct {
	s    string
	pos  int
	line int
}

func (p *lineParser) skipSpace() {
	for p.pos < len(p.s) && (p.s[p.pos] == ' ' || p.s[p.pos] == '\t') {
		p.pos++
	}
}

func (p *lineParser) end() error {
	p.skipSpace()
	if p.pos < len(p.s) && p.s[p.pos] != '#' {
		return parseErrorf(p.line, "trailing characters after value")
	}
	return nil
}

func (p *lineParser) value() (rawValue, error) {
	p.skipSpace()
	if p.pos >= len(p.s) {
		return rawValue{}, parseErrorf(p.line, "missing value")
	}
	c := p.s[p.pos]
	switch {
	case c == '"':
		s, err := p.basicString()
		if err != nil {
			return rawValue{}, err
		}
		return rawValue{kind: rawString, str: s}, nil
	case c == '[':
		return p.array()
	case strings.IndexByte("hbpau", c) >= 0 && p.pos+1 < len(p.s) && p.s[p.pos+1] == '"':
		return p.typedString(c)
	case c == '-' || c == '+' || (c >= '0' && c <= '9'):
		return p.numberOrDate()
	}
	return rawValue{}, parseErrorf(p.line, "unsupported value syntax")
}

// basicString consumes a double-quoted string, opening quote included.
// Escaped surrogate code points are kept in the raw three-byte form
// Unicode16Text uses, so u"\uD800" survives a round trip.
func (p *lineParser) basicString() (string, error) {
	p.pos++
	var out []byte
	for p.pos < len(p.s) {
		c := p.s[p.pos]
		switch c {
		case '"':
			p.pos++
			return string(out), nil
		case '\\':
			r, err := p.escape()
			if err != nil {
				return "", err
			}
			out = fru.AppendRune16(out, r)
		default:
			out = append(out, c)
			p.pos++
		}
	}
	return "", parseErrorf(p.line, "unterminated string")
}

func (p *lineParser) escape() (rune, error) {
	p.pos++
	if p.pos >= len(p.s) {
		return 0, parseErrorf(p.line, "unterminated escape")
	}
	c := p.s[p.pos]
	p.pos++
	switch c {
	case '"':
		return '"', nil
	case '\\':
		return '\\', nil
	case 'b':
		return '\b', nil
	case 't':
		return '\t', nil
	case 'n':
		return '\n', nil
	case 'f':
		return '\f', nil
	case 'r':
		return '\r', nil
	case 'u':
		return p.hexRune(4)
	case 'U':
		return p.hexRune(8)
	}
	return 0, parseErrorf(p.line, "unknown escape \\%c", c)
}

func (p *lineParser) hexRune(n int) (rune, error) {
	if p.pos+n > len(p.s) {
		return 0, parseErrorf(p.line, "truncated \\u escape")
	}
	v, err := strconv.ParseUint(p.s[p.pos:p.pos+n], 16, 32)
	if err != nil {
		return 0, parseErrorf(p.line, "bad \\u escape")
	}
	p.pos += n
	if v > 0x10FFFF {
		return 0, parseErrorf(p.line, "escape beyond U+10FFFF")
	}
	return rune(v), nil
}

func (p *lineParser) typedString(tag byte) (rawValue, error) {
	p.pos++
	s, err := p.basicString()
	if err != nil {
		return rawValue{}, err
	}
	var v fru.Value
	switch tag {
	case 'h':
		b, err := hex.DecodeString(strings.ReplaceAll(s, " ", ""))
		if err != nil {
			return rawValue{}, parseErrorf(p.line, "h literal is not hex: %v", err)
		}
		v = fru.HexBytes(b)
	case 'b':
		v = fru.BcdText(s)
	case 'p':
		v = fru.PackedAscii(strings.ToUpper(s))
	case 'a':
		v = fru.Latin1Text(s)
	case 'u':
		v = fru.Unicode16Text(s)
	}
	if err := v.Validate(); err != nil {
		return rawValue{}, parseErrorf(p.line, "%v", err)
	}
	return rawValue{kind: rawTyped, typed: v}, nil
}

func (p *lineParser) numberOrDate() (rawValue, error) {
	start := p.pos
	for p.pos < len(p.s) && strings.IndexByte(" \t#,]", p.s[p.pos]) < 0 {
		p.pos++
	}
	tok := p.s[start:p.pos]
	if t, err := time.Parse(time.RFC3339, tok); err == nil {
		return rawValue{kind: rawDate, date: t.UTC()}, nil
	}
	n, err := strconv.ParseInt(tok, 10, 64)
	if err != nil {
		return rawValue{}, parseErrorf(p.line, "bad value %q", tok)
	}
	return rawValue{kind: rawInt, num: n}, nil
}

func (p *lineParser) array() (rawValue, error) {
	p.pos++
	var items []rawValue
	for {
		p.skipSpace()
		if p.pos >= len(p.s) {
			return rawValue{}, parseErrorf(p.line, "unterminated array")
		}
		if p.s[p.pos] == ']' {
			p.pos++
			return rawValue{kind: rawArray, arr: items}, nil
		}
		if len(items) > 0 {
			if p.s[p.pos] != ',' {
				return rawValue{}, parseErrorf(p.line, "expected ',' or ']' in array")
			}
			p.pos++
			p.skipSpace()
			if p.pos < len(p.s) && p.s[p.pos] == ']' {
				p.pos++
				return rawValue{kind: rawArray, arr: items}, nil
			}
		}
		v, err := p.value()
		if err != nil {
			return rawValue{}, err
		}
		if v.kind == rawArray {
			return rawValue{}, parseErrorf(p.line, "nested arrays are not supported")
		}
		items = append(items, v)
	}
}

func bindChassis(a *fru.ChassisArea, t rawTable) error {
	for _, e := range t.entries {
		if e.key != "type" {
			continue
		}
		if e.val.kind != rawInt || e.val.num < 0 || e.val.num > 255 {
			return parseErrorf(e.line, "chassis type must be an integer in 0..255")
		}
		a.Type = byte(e.val.num)
	}
	return bindFields(a.FieldRefs(), &a.OEM, t, 0, "type")
}

func bindBoard(a *fru.BoardArea, t rawTable) error {
	for _, e := range t.entries {
		switch e.key {
		case "lang":
			if e.val.kind != rawInt || e.val.num < 0 || e.val.num > 255 {
				return parseErrorf(e.line, "lang must be an integer in 0..255")
			}
			a.Language = byte(e.val.num)
		case "date":
			switch e.val.kind {
			case rawDate:
				a.MfgDate = e.val.date
			case rawInt:
				a.MfgDate = fru.FruEpoch.Add(time.Duration(e.val.num) * time.Minute)
			default:
				return parseErrorf(e.line, "date must be an RFC 3339 datetime or minutes since the FRU epoch")
			}
		}
	}
	return bindFields(a.FieldRefs(), &a.OEM, t, a.Language, "lang", "date")
}

func bindProduct(a *fru.ProductArea, t rawTable) error {
	for _, e := range t.entries {
		if e.key != "lang" {
			continue
		}
		if e.val.kind != rawInt || e.val.num < 0 || e.val.num > 255 {
			return parseErrorf(e.line, "lang must be an integer in 0..255")
		}
		a.Language = byte(e.val.num)
	}
	return bindFields(a.FieldRefs(), &a.OEM, t, a.Language, "lang")
}

// bindFields assigns each table entry to the named fixed field, or appends
// to the OEM list for the "oem" array. handled keys were consumed by the
// area-specific binder.
func bindFields(refs []fru.FieldRef, oem *[]fru.Value, t rawTable, lang byte, handled ...string) error {
entries:
	for _, e := range t.entries {
		for _, k := range handled {
			if e.key == k {
				continue entries
			}
		}
		if e.key == "oem" {
			if e.val.kind != rawArray {
				return parseErrorf(e.line, "oem must be an array")
			}
			for _, item := range e.val.arr {
				v, err := fieldValue(item, true, lang, e.line)
				if err != nil {
					return err
				}
				*oem = append(*oem, v)
			}
			continue
		}
		ref := findRef(refs, e.key)
		if ref == nil {
			return parseErrorf(e.line, "unknown key %q in [%s]", e.key, t.name)
		}
		v, err := fieldValue(e.val, ref.UseLang, lang, e.line)
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

func fieldValue(rv rawValue, useLang bool, lang byte, line int) (fru.Value, error) {
	switch rv.kind {
	case rawTyped:
		return rv.typed, nil
	case rawString:
		v := fru.DefaultVariant(rv.str, useLang, lang)
		if err := v.Validate(); err != nil {
			return nil, parseErrorf(line, "%v", err)
		}
		return v, nil
	case rawInt:
		return fru.DefaultVariant(strconv.FormatInt(rv.num, 10), useLang, lang), nil
	case rawDate:
		return nil, parseErrorf(line, "datetime is not valid here")
	}
	return nil, parseErrorf(line, "array is not valid here")
}
