package fru

import (
	"strings"
	"unicode/utf8"
)

const (
	// endMarker terminates an area's field stream.
	endMarker = 0xC1
	// maxPayloadLen is the largest payload representable in the 6-bit
	// length of a type/length byte.
	maxPayloadLen = 63
)

// encodeField appends the type/length byte and payload for v to dst.
func encodeField(dst []byte, v Value) ([]byte, error) {
	payload, code, err := fieldPayload(v)
	if err != nil {
		return dst, err
	}
	if len(payload) > maxPayloadLen {
		return dst, encodeErrorf("payload too long (%d bytes, at most %d allowed)", len(payload), maxPayloadLen)
	}
	dst = append(dst, code<<6|byte(len(payload)))
	return append(dst, payload...), nil
}

// fieldPayload serializes a value's content and returns its wire type code.
func fieldPayload(v Value) ([]byte, byte, error) {
	if err := v.Validate(); err != nil {
		return nil, 0, err
	}
	switch v := v.(type) {
	case HexBytes:
		return append([]byte(nil), v...), typeBinary, nil
	case BcdText:
		b, err := packBCD(string(v))
		return b, typeBCD, err
	case PackedAscii:
		return packAscii(strings.ToUpper(string(v))), typePackedASCII, nil
	case Latin1Text:
		b := make([]byte, 0, len(v))
		for _, r := range string(v) {
			b = append(b, byte(r))
		}
		return b, typeText, nil
	case Unicode16Text:
		runes, err := Runes16(string(v))
		if err != nil {
			return nil, 0, err
		}
		b := make([]byte, 0, 2*len(runes))
		for _, r := range runes {
			b = append(b, byte(r), byte(r>>8))
		}
		return b, typeText, nil
	}
	return nil, 0, encodeErrorf("unsupported value type %T", v)
}

// decodeField decodes one type/length field from the front of data. useLang
// marks fields whose type-3 payload follows the area language; english is
// the effective language interpretation. The returned count includes the
// type/length byte.
func decodeField(data []byte, useLang, english bool) (Value, int, error) {
	if len(data) == 0 {
		return nil, 0, decodeErrorf("missing type/length byte")
	}
	tl := data[0]
	code := tl >> 6
	n := int(tl & 0x3F)
	if 1+n > len(data) {
		return nil, 0, decodeErrorf("field payload of %d bytes overruns the area", n)
	}
	payload := data[1 : 1+n]
	var v Value
	switch code {
	case typeBinary:
		v = HexBytes(append([]byte(nil), payload...))
	case typeBCD:
		v = BcdText(unpackBCD(payload))
	case typePackedASCII:
		v = PackedAscii(unpackAscii(payload))
	case typeText:
		if useLang && !english && n%2 == 0 {
			v = Unicode16Text(unpackU16(payload))
		} else {
			// An odd-length payload under a 16-bit language is
			// tolerated as raw Latin-1 rather than rejected.
			v = Latin1Text(unpackLatin1(payload))
		}
	}
	return v, 1 + n, nil
}

// packBCD packs two characters per byte, first character in the high nibble.
func packBCD(s string) ([]byte, error) {
	runes := []rune(s)
	if len(runes)%2 != 0 {
		return nil, encodeErrorf("BCD content needs an even number of digits, got %d", len(runes))
	}
	out := make([]byte, 0, len(runes)/2)
	for i := 0; i < len(runes); i += 2 {
		hi, _ := bcdNibble(runes[i])
		lo, _ := bcdNibble(runes[i+1])
		out = append(out, hi<<4|lo)
	}
	return out, nil
}

func unpackBCD(data []byte) string {
	var b strings.Builder
	for _, v := range data {
		b.WriteRune(bcdChar(v >> 4))
		b.WriteRune(bcdChar(v & 0xF))
	}
	return b.String()
}

// packAscii packs 6-bit character codes little-endian, four characters into
// three bytes. A string one character short of a multiple of four gains an
// implicit trailing space on decode; the packing cannot express its length.
func packAscii(s string) []byte {
	out := make([]byte, 0, (len(s)*6+7)/8)
	bits := uint(0)
	for i := 0; i < len(s); i++ {
		c := s[i] - 0x20
		if bits > 0 {
			out[len(out)-1] |= c << bits
			c >>= 8 - bits
		}
		if bits != 2 {
			out = append(out, c)
		}
		bits = (bits + 6) % 8
	}
	return out
}

func unpackAscii(data []byte) string {
	out := make([]byte, 0, len(data)*8/6)
	bitval := 0
	bits := 0
	for _, b := range data {
		bitval |= int(b) << bits
		bits += 8
		for bits >= 6 {
			out = append(out, byte(bitval&0x3F)+0x20)
			bitval >>= 6
			bits -= 6
		}
	}
	return string(out)
}

func unpackLatin1(data []byte) string {
	out := make([]byte, 0, len(data))
	for _, b := range data {
		out = utf8.AppendRune(out, rune(b))
	}
	return string(out)
}

func unpackU16(data []byte) string {
	out := make([]byte, 0, len(data))
	for i := 0; i+1 < len(data); i += 2 {
		out = AppendRune16(out, rune(data[i])|rune(data[i+1])<<8)
	}
	return string(out)
}
