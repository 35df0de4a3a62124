// Package fru implements a bidirectional codec between the IPMI FRU binary
// inventory format and a typed document model. Decode parses the common
// header and the Chassis/Board/Product information areas into a Document;
// Encode reproduces the exact binary layout, checksums included.
package fru

import (
	"encoding/hex"
	"strings"
	"unicode/utf8"
)

// Field type codes stored in bits 6-7 of a type/length byte.
const (
	typeBinary      = 0
	typeBCD         = 1
	typePackedASCII = 2
	typeText        = 3
)

// Value is one field's content together with its binary sub-encoding. The
// concrete type alone determines the type/length encoding on the wire; an
// absent field is a nil Value.
type Value interface {
	// Validate checks the content against the variant's character class.
	// It returns an EncodeError describing the first violation.
	Validate() error
	// Text returns the value as it appears in textual renderings.
	Text() string

	isValue()
}

// HexBytes is arbitrary binary content, wire type 0.
type HexBytes []byte

// BcdText is a digit string packed two nibbles per byte, wire type 1.
// Besides digits it admits space, '-', '.' and circled D/E/F (U+24B9..BB),
// which carry the 0xA..0xF nibbles so malformed BCD payloads round-trip.
type BcdText string

// PackedAscii is text in the 0x20..0x5F range packed four characters into
// three bytes, wire type 2. Lowercase folds to uppercase on encode.
type PackedAscii string

// Latin1Text is 8-bit text (code points up to 0xFF), wire type 3 under an
// English language code.
type Latin1Text string

// Unicode16Text is BMP text stored as 16-bit little-endian code units, wire
// type 3 under a non-English language code. Surrogate-range code points are
// carried verbatim as plain code units.
type Unicode16Text string

func (HexBytes) isValue()      {}
func (BcdText) isValue()       {}
func (PackedAscii) isValue()   {}
func (Latin1Text) isValue()    {}
func (Unicode16Text) isValue() {}

func (v HexBytes) Text() string      { return hex.EncodeToString(v) }
func (v BcdText) Text() string       { return string(v) }
func (v PackedAscii) Text() string   { return string(v) }
func (v Latin1Text) Text() string    { return string(v) }
func (v Unicode16Text) Text() string { return string(v) }

func (v HexBytes) Validate() error { return nil }

func (v BcdText) Validate() error {
	for _, r := range string(v) {
		if _, ok := bcdNibble(r); !ok {
			return encodeErrorf("invalid BCD character %q (digits, space, '-', '.' allowed)", r)
		}
	}
	return nil
}

func (v PackedAscii) Validate() error {
	for _, r := range strings.ToUpper(string(v)) {
		if r < 0x20 || r >= 0x60 {
			return encodeErrorf("invalid packed-ASCII character %q (range 0x20..0x5F allowed)", r)
		}
	}
	return nil
}

func (v Latin1Text) Validate() error {
	for _, r := range string(v) {
		if r > 0xFF {
			return encodeErrorf("invalid Latin-1 character %q (code point above 0xFF)", r)
		}
	}
	return nil
}

func (v Unicode16Text) Validate() error {
	_, err := Runes16(string(v))
	return err
}

// EnglishLang reports whether a FRU language code selects 8-bit Latin-1
// interpretation of type-3 fields. Codes 0 and 25 both mean English.
func EnglishLang(lang byte) bool {
	return lang == 0 || lang == 25
}

// DefaultVariant wraps plain text in the variant a reader of the binary
// image would reconstruct for the given field flavor and language. Text
// front ends use it for strings that carry no explicit type prefix.
func DefaultVariant(s string, useLang bool, lang byte) Value {
	if useLang && !EnglishLang(lang) {
		return Unicode16Text(s)
	}
	return Latin1Text(s)
}

// Runes16 returns the code points of a Unicode16Text. Surrogate-range code
// points are stored inside the Go string as raw three-byte sequences (the
// shape UTF-8 would use if surrogates were encodable), so plain
// utf8.DecodeRuneInString needs a fallback path here.
func Runes16(s string) ([]rune, error) {
	out := make([]rune, 0, len(s))
	for i := 0; i < len(s); {
		r, size := utf8.DecodeRuneInString(s[i:])
		if r == utf8.RuneError && size == 1 {
			c, ok := decodeSurrogateByteSeq(s[i:])
			if !ok {
				return nil, encodeErrorf("invalid 16-bit text content at byte %d", i)
			}
			out = append(out, c)
			i += 3
			continue
		}
		if r >= 0x10000 {
			return nil, encodeErrorf("invalid 16-bit text character %q (code point above 0xFFFF)", r)
		}
		out = append(out, r)
		i += size
	}
	return out, nil
}

func decodeSurrogateByteSeq(s string) (rune, bool) {
	if len(s) < 3 || s[0] != 0xED || s[1]&0xC0 != 0x80 || s[2]&0xC0 != 0x80 {
		return 0, false
	}
	c := rune(s[0]&0x0F)<<12 | rune(s[1]&0x3F)<<6 | rune(s[2]&0x3F)
	if c < 0xD800 || c > 0xDFFF {
		return 0, false
	}
	return c, true
}

// AppendRune16 appends one code point in the string representation Runes16
// reads back, including the raw three-byte form for surrogates.
func AppendRune16(dst []byte, c rune) []byte {
	if c >= 0xD800 && c <= 0xDFFF {
		return append(dst, byte(0xE0|c>>12), byte(0x80|c>>6&0x3F), byte(0x80|c&0x3F))
	}
	return utf8.AppendRune(dst, c)
}

// bcdNibble maps one BCD character to its nibble.
func bcdNibble(r rune) (byte, bool) {
	switch {
	case r >= '0' && r <= '9':
		return byte(r - '0'), true
	case r == ' ':
		return 0xA, true
	case r == '-':
		return 0xB, true
	case r == '.':
		return 0xC, true
	case r >= 0x24B9 && r <= 0x24BB: // circled D, E, F
		return byte(0xD + r - 0x24B9), true
	}
	return 0, false
}

// bcdChar is the inverse of bcdNibble.
func bcdChar(n byte) rune {
	switch {
	case n <= 9:
		return rune('0' + n)
	case n == 0xA:
		return ' '
	case n == 0xB:
		return '-'
	case n == 0xC:
		return '.'
	}
	return 0x24B9 + rune(n) - 0xD
}
