package frutoml

import (
	"fmt"
	"strings"
	"time"

	"example.com/frugate/internal/fru"
)

// Marshal renders doc in the text form. A field holding its area's expected
// variant prints as a plain string; any other variant prints with its type
// prefix so the binary sub-encoding survives a text round trip. Values are
// validated, so an EncodeError surfaces here rather than at encode time.
func Marshal(doc *fru.Document) ([]byte, error) {
	var b strings.Builder
	if doc.Chassis != nil {
		if err := writeChassis(&b, doc.Chassis); err != nil {
			return nil, err
		}
	}
	if doc.Board != nil {
		if err := writeBoard(&b, doc.Board); err != nil {
			return nil, err
		}
	}
	if doc.Product != nil {
		if err := writeProduct(&b, doc.Product); err != nil {
			return nil, err
		}
	}
	return []byte(b.String()), nil
}

func openTable(b *strings.Builder, name string) {
	if b.Len() > 0 {
		b.WriteByte('\n')
	}
	fmt.Fprintf(b, "[%s]\n", name)
}

func writeChassis(b *strings.Builder, a *fru.ChassisArea) error {
	openTable(b, "chassis")
	fmt.Fprintf(b, "type = %d\n", a.Type)
	return writeFields(b, a.FieldRefs(), a.OEM, 0)
}

func writeBoard(b *strings.Builder, a *fru.BoardArea) error {
	openTable(b, "board")
	fmt.Fprintf(b, "lang = %d\n", a.Language)
	if !a.MfgDate.IsZero() {
		fmt.Fprintf(b, "date = %s\n", a.MfgDate.UTC().Format(time.RFC3339))
	}
	return writeFields(b, a.FieldRefs(), a.OEM, a.Language)
}

func writeProduct(b *strings.Builder, a *fru.ProductArea) error {
	openTable(b, "product")
	fmt.Fprintf(b, "lang = %d\n", a.Language)
	return writeFields(b, a.FieldRefs(), a.OEM, a.Language)
}

func writeFields(b *strings.Builder, refs []fru.FieldRef, oem []fru.Value, lang byte) error {
	for _, ref := range refs {
		v := *ref.Value
		if v == nil {
			continue
		}
		lit, err := literal(v, ref.UseLang, lang)
		if err != nil {
			return err
		}
		fmt.Fprintf(b, "%s = %s\n", ref.Key, lit)
	}
	if len(oem) > 0 {
		items := make([]string, len(oem))
		for i, v := range oem {
			lit, err := literal(v, true, lang)
			if err != nil {
				return err
			}
			items[i] = lit
		}
		fmt.Fprintf(b, "oem = [%s]\n", strings.Join(items, ", "))
	}
	return nil
}

func literal(v fru.Value, useLang bool, lang byte) (string, error) {
	if err := v.Validate(); err != nil {
		return "", err
	}
	var prefix, text string
	switch v := v.(type) {
	case fru.HexBytes:
		prefix, text = "h", fmt.Sprintf("%X", []byte(v))
	case fru.BcdText:
		prefix, text = "b", string(v)
	case fru.PackedAscii:
		prefix, text = "p", string(v)
	case fru.Latin1Text:
		prefix, text = "a", string(v)
	case fru.Unicode16Text:
		prefix, text = "u", string(v)
	default:
		return "", &fru.EncodeError{Msg: fmt.Sprintf("unsupported value type %T", v)}
	}
	q, err := quote(text)
	if err != nil {
		return "", err
	}
	switch fru.DefaultVariant("", useLang, lang).(type) {
	case fru.Latin1Text:
		if prefix == "a" {
			return q, nil
		}
	case fru.Unicode16Text:
		if prefix == "u" {
			return q, nil
		}
	}
	return prefix + q, nil
}

func quote(s string) (string, error) {
	runes, err := fru.Runes16(s)
	if err != nil {
		return "", err
	}
	var b strings.Builder
	b.WriteByte('"')
	for _, r := range runes {
		switch r {
		case '"':
			b.WriteString(`\"`)
		case '\\':
			b.WriteString(`\\`)
		case '\b':
			b.WriteString(`\b`)
		case '\t':
			b.WriteString(`\t`)
		case '\n':
			b.WriteString(`\n`)
		case '\f':
			b.WriteString(`\f`)
		case '\r':
			b.WriteString(`\r`)
		default:
			if r < 0x20 || r == 0x7F || (r >= 0xD800 && r <= 0xDFFF) {
				fmt.Fprintf(&b, `\u%04X`, r)
			} else {
				b.WriteRune(r)
			}
		}
	}
	b.WriteByte('"')
	return b.String(), nil
}
