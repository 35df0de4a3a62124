package fru

import (
	"bytes"
	"fmt"
	"reflect"
	"strings"
	"testing"
	"time"
)

type recordingLogger struct {
	infos []string
	warns []string
}

func (l *recordingLogger) Infof(format string, args ...interface{}) {
	l.infos = append(l.infos, fmt.Sprintf(format, args...))
}

func (l *recordingLogger) Warnf(format string, args ...interface{}) {
	l.warns = append(l.warns, fmt.Sprintf(format, args...))
}

func (l *recordingLogger) hasWarn(substr string) bool {
	for _, w := range l.warns {
		if strings.Contains(w, substr) {
			return true
		}
	}
	return false
}

// minimalImage is the board-only image from the format walkthrough: one
// packed-ASCII manufacturer field, end marker, zero padding.
func minimalImage() []byte {
	return []byte{
		// common header: board area at 8-byte unit 1
		0x01, 0x00, 0x01, 0x00, 0x00, 0x00, 0x00, 0xFE,
		// board area, 2 units: version, length, lang 0, mfg date 0
		0x01, 0x02, 0x00, 0x00, 0x00, 0x00,
		// manufacturer "TEST" (packed ASCII), end marker, padding, checksum
		0x83, 0x74, 0x39, 0xD3, 0xC1, 0x00, 0x00, 0x00, 0x00, 0x39,
	}
}

func TestDecodeMinimalImage(t *testing.T) {
	doc, err := (&Decoder{Log: NopLogger()}).Decode(minimalImage())
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if doc.Chassis != nil || doc.Product != nil {
		t.Fatalf("unexpected areas: chassis=%v product=%v", doc.Chassis, doc.Product)
	}
	b := doc.Board
	if b == nil {
		t.Fatalf("board area missing")
	}
	if b.Language != 0 {
		t.Fatalf("Language = %d, want 0", b.Language)
	}
	if !b.MfgDate.Equal(FruEpoch) {
		t.Fatalf("MfgDate = %v, want epoch", b.MfgDate)
	}
	if !reflect.DeepEqual(b.Manufacturer, PackedAscii("TEST")) {
		t.Fatalf("Manufacturer = %#v, want PackedAscii(TEST)", b.Manufacturer)
	}
	for _, f := range []struct {
		name string
		v    Value
	}{
		{"product", b.Product}, {"serial", b.SerialNumber}, {"partno", b.PartNumber}, {"fru", b.FruFileID},
	} {
		if f.v != nil {
			t.Fatalf("%s = %#v, want absent", f.name, f.v)
		}
	}
	if len(b.OEM) != 0 {
		t.Fatalf("OEM = %#v, want empty", b.OEM)
	}
}

func TestMinimalImageRoundTrip(t *testing.T) {
	img := minimalImage()
	doc, err := (&Decoder{Log: NopLogger()}).Decode(img)
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	out, err := (&Encoder{Log: NopLogger()}).Encode(doc)
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}
	if !bytes.Equal(out, img) {
		t.Fatalf("re-encoded image differs:\n got % X\nwant % X", out, img)
	}
}

func fullDocument() *Document {
	return &Document{
		Chassis: &ChassisArea{
			Type:         17,
			PartNumber:   BcdText("19-004"),
			SerialNumber: PackedAscii("SN42"),
			OEM:          []Value{HexBytes{0x01, 0x02, 0x03}},
		},
		Board: &BoardArea{
			Language:     0,
			MfgDate:      FruEpoch.Add(12_345_678 * time.Minute),
			Manufacturer: Latin1Text("ACME Corp"),
			Product:      PackedAscii("WDGT"),
			SerialNumber: Latin1Text("BRD-001"),
			PartNumber:   Latin1Text("P/N 7"),
			FruFileID:    Latin1Text(""),
		},
		Product: &ProductArea{
			Language:     8,
			Manufacturer: Unicode16Text("Česká síť"),
			Name:         Unicode16Text("Gadget"),
			Model:        Unicode16Text("GX-1"),
			Version:      Unicode16Text("v2"),
			SerialNumber: Latin1Text("PRD-9"),
			AssetTag:     Unicode16Text(""),
			FruFileID:    Unicode16Text("F0"),
			OEM:          []Value{Unicode16Text("náhrada"), PackedAscii("RAW1")},
		},
	}
}

func TestEncodeDecodeRoundTrip(t *testing.T) {
	doc := fullDocument()
	img, err := (&Encoder{Log: NopLogger()}).Encode(doc)
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}
	back, err := (&Decoder{Log: NopLogger()}).Decode(img)
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if !reflect.DeepEqual(back, doc) {
		t.Fatalf("round trip mismatch:\n got %#v\nwant %#v", back, doc)
	}
	// Binary round trip on top: the canonical image re-encodes to itself.
	img2, err := (&Encoder{Log: NopLogger()}).Encode(back)
	if err != nil {
		t.Fatalf("re-Encode: %v", err)
	}
	if !bytes.Equal(img2, img) {
		t.Fatalf("second encoding differs from first")
	}
}

func TestEncodedChecksumsVerify(t *testing.T) {
	img, err := (&Encoder{Log: NopLogger()}).Encode(fullDocument())
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}
	if !VerifyChecksum(img[:headerSize]) {
		t.Fatalf("header checksum does not verify")
	}
	for _, off := range []int{int(img[hdrOffChassis]) * 8, int(img[hdrOffBoard]) * 8, int(img[hdrOffProduct]) * 8} {
		if off == 0 {
			t.Fatalf("expected all three areas present")
		}
		n := int(img[off+1]) * 8
		if !VerifyChecksum(img[off : off+n]) {
			t.Fatalf("area at %d: checksum does not verify", off)
		}
	}
}

func TestDecodeErrors(t *testing.T) {
	good := minimalImage()
	tests := []struct {
		name    string
		mutate  func([]byte) []byte
		wantMsg string
	}{
		{
			name:    "short image",
			mutate:  func(b []byte) []byte { return b[:4] },
			wantMsg: "too short",
		},
		{
			name:    "bad header version",
			mutate:  func(b []byte) []byte { b[0] = 2; b[7] = Checksum(b[:7]); return b },
			wantMsg: "format version",
		},
		{
			name:    "bad header checksum",
			mutate:  func(b []byte) []byte { b[7] ^= 0xFF; return b },
			wantMsg: "header checksum",
		},
		{
			name:    "multirecord present",
			mutate:  func(b []byte) []byte { b[4] = 3; b[7] = Checksum(b[:7]); return b },
			wantMsg: "multirecord",
		},
		{
			name:    "bad area version",
			mutate:  func(b []byte) []byte { b[8] = 0; b[23] = Checksum(b[8:23]); return b },
			wantMsg: "area format version",
		},
		{
			name:    "bad area checksum",
			mutate:  func(b []byte) []byte { b[23] ^= 0x55; return b },
			wantMsg: "checksum mismatch",
		},
		{
			name: "area declares more than remains",
			mutate: func(b []byte) []byte {
				b[9] = 4
				return b
			},
			wantMsg: "remain",
		},
		{
			name: "unterminated field stream",
			mutate: func(b []byte) []byte {
				// The whole field region becomes empty hex fields
				// with no end marker anywhere.
				for i := 14; i < 23; i++ {
					b[i] = 0
				}
				b[23] = Checksum(b[8:23])
				return b
			},
			wantMsg: "unterminated",
		},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			img := tc.mutate(append([]byte(nil), good...))
			_, err := (&Decoder{Log: NopLogger()}).Decode(img)
			if !IsDecodeError(err) {
				t.Fatalf("expected DecodeError, got %v", err)
			}
			if !strings.Contains(err.Error(), tc.wantMsg) {
				t.Fatalf("error %q does not mention %q", err, tc.wantMsg)
			}
		})
	}
}

func TestDecodeGapAndTrailingBytes(t *testing.T) {
	base := minimalImage()
	img := make([]byte, 0, len(base)+16)
	img = append(img, base[:8]...)
	img[2] = 2 // board area pushed one unit out
	img[7] = Checksum(img[:7])
	img = append(img, make([]byte, 8)...) // gap
	img = append(img, base[8:]...)
	img = append(img, 0, 0, 0) // trailing zeros

	log := &recordingLogger{}
	doc, err := (&Decoder{Log: log}).Decode(img)
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if !reflect.DeepEqual(doc.Board.Manufacturer, PackedAscii("TEST")) {
		t.Fatalf("Manufacturer = %#v", doc.Board.Manufacturer)
	}
	if !log.hasWarn("gap") {
		t.Fatalf("expected a gap warning, got %q", log.warns)
	}
	if len(log.infos) == 0 {
		t.Fatalf("expected an info about trailing zero bytes")
	}
}

func TestDecodeNonzeroPaddingTolerated(t *testing.T) {
	img := minimalImage()
	img[20] = 0xAA // inside the padding run
	img[23] = Checksum(img[8:23])
	log := &recordingLogger{}
	doc, err := (&Decoder{Log: log}).Decode(img)
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if doc.Board == nil {
		t.Fatalf("board area missing")
	}
	if !log.hasWarn("padding") {
		t.Fatalf("expected a padding warning, got %q", log.warns)
	}
}

func TestDecodeNonCanonicalOrder(t *testing.T) {
	prod, err := encodeProduct(&ProductArea{Manufacturer: Latin1Text("M")}, NopLogger())
	if err != nil {
		t.Fatalf("encodeProduct: %v", err)
	}
	board, err := encodeBoard(&BoardArea{Manufacturer: Latin1Text("B")}, NopLogger())
	if err != nil {
		t.Fatalf("encodeBoard: %v", err)
	}
	img := make([]byte, headerSize)
	img[0] = formatVersion
	img[hdrOffProduct] = byte(len(img) / 8)
	img = append(img, prod...)
	img[hdrOffBoard] = byte(len(img) / 8)
	img = append(img, board...)
	img[hdrOffChecksum] = Checksum(img[:hdrOffChecksum])

	log := &recordingLogger{}
	doc, err := (&Decoder{Log: log}).Decode(img)
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if doc.Board == nil || doc.Product == nil {
		t.Fatalf("missing areas: %#v", doc)
	}
	if !log.hasWarn("canonical") {
		t.Fatalf("expected an area-order warning, got %q", log.warns)
	}
}

func TestEncodeErrors(t *testing.T) {
	tests := []struct {
		name    string
		doc     *Document
		wantMsg string
	}{
		{
			name: "interior absent field",
			doc: &Document{Board: &BoardArea{
				Product: Latin1Text("set"),
			}},
			wantMsg: "absent",
		},
		{
			name: "absent fixed field before extras",
			doc: &Document{Chassis: &ChassisArea{
				Type:       2,
				PartNumber: Latin1Text("p"),
				OEM:        []Value{Latin1Text("x")},
			}},
			wantMsg: "absent",
		},
		{
			name: "payload too long",
			doc: &Document{Board: &BoardArea{
				Manufacturer: Latin1Text(strings.Repeat("x", 64)),
			}},
			wantMsg: "too long",
		},
		{
			name: "invalid character class",
			doc: &Document{Chassis: &ChassisArea{
				Type:       2,
				PartNumber: BcdText("x1"),
			}},
			wantMsg: "BCD",
		},
		{
			name: "date before epoch",
			doc: &Document{Board: &BoardArea{
				MfgDate: time.Date(1995, 1, 1, 0, 0, 0, 0, time.UTC),
			}},
			wantMsg: "epoch",
		},
		{
			name:    "area over capacity",
			doc:     &Document{Product: oversizedProduct()},
			wantMsg: "capacity",
		},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			_, err := (&Encoder{Log: NopLogger()}).Encode(tc.doc)
			if !IsEncodeError(err) {
				t.Fatalf("expected EncodeError, got %v", err)
			}
			if !strings.Contains(err.Error(), tc.wantMsg) {
				t.Fatalf("error %q does not mention %q", err, tc.wantMsg)
			}
		})
	}
}

func oversizedProduct() *ProductArea {
	a := &ProductArea{
		Manufacturer: Latin1Text("m"),
		Name:         Latin1Text("n"),
		Model:        Latin1Text("m"),
		Version:      Latin1Text("v"),
		SerialNumber: Latin1Text("s"),
		AssetTag:     Latin1Text("a"),
		FruFileID:    Latin1Text("f"),
	}
	for i := 0; i < 40; i++ {
		a.OEM = append(a.OEM, Latin1Text(strings.Repeat("o", 50)))
	}
	return a
}

// wideChassis builds a chassis area padded out with OEM fields so that its
// encoded size lands on an exact boundary. 39 fifty-character values plus a
// final one of lastLen characters, then the usual rounding in close().
func wideChassis(lastLen int) *ChassisArea {
	a := &ChassisArea{
		Type:         ChassisTypeDefault,
		PartNumber:   Latin1Text(""),
		SerialNumber: Latin1Text(""),
	}
	for i := 0; i < 39; i++ {
		a.OEM = append(a.OEM, Latin1Text(strings.Repeat("o", 50)))
	}
	a.OEM = append(a.OEM, Latin1Text(strings.Repeat("o", lastLen)))
	return a
}

func TestEncodeLargeImageBoundary(t *testing.T) {
	// A 2032-byte chassis area puts the board at byte 2040, offset unit 255,
	// the last value the one-byte header slot can carry.
	doc := &Document{
		Chassis: wideChassis(32),
		Board: &BoardArea{
			MfgDate:      FruEpoch,
			Manufacturer: Latin1Text("ACME"),
		},
	}
	img, err := (&Encoder{Log: NopLogger()}).Encode(doc)
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}
	if img[hdrOffBoard] != 255 {
		t.Fatalf("board offset unit = %d, want 255", img[hdrOffBoard])
	}
	back, err := (&Decoder{Log: NopLogger()}).Decode(img)
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if !reflect.DeepEqual(back, doc) {
		t.Fatalf("round trip mismatch:\n got %#v\nwant %#v", back, doc)
	}
}

func TestEncodeAreaOffsetOverflow(t *testing.T) {
	// A chassis area at the full 2040-byte capacity is fine on its own...
	doc := &Document{Chassis: wideChassis(40)}
	img, err := (&Encoder{Log: NopLogger()}).Encode(doc)
	if err != nil {
		t.Fatalf("Encode chassis-only: %v", err)
	}
	if len(img) != headerSize+2040 {
		t.Fatalf("image length = %d, want %d", len(img), headerSize+2040)
	}
	// ...but a successor area would start at byte 2048, past what the
	// one-byte offset slot can represent. That must fail loudly rather
	// than store a truncated offset and drop the area on decode.
	doc.Board = &BoardArea{
		MfgDate:      FruEpoch,
		Manufacturer: Latin1Text("ACME"),
	}
	_, err = (&Encoder{Log: NopLogger()}).Encode(doc)
	if !IsEncodeError(err) {
		t.Fatalf("expected EncodeError, got %v", err)
	}
	if !strings.Contains(err.Error(), "unit range") {
		t.Fatalf("error %q does not mention the offset unit range", err)
	}
}

func TestPackedAsciiNormalization(t *testing.T) {
	doc := &Document{Board: &BoardArea{Manufacturer: PackedAscii("abc" + "d")}}
	img, err := (&Encoder{Log: NopLogger()}).Encode(doc)
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}
	back, err := (&Decoder{Log: NopLogger()}).Decode(img)
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if !reflect.DeepEqual(back.Board.Manufacturer, PackedAscii("ABCD")) {
		t.Fatalf("Manufacturer = %#v, want PackedAscii(ABCD)", back.Board.Manufacturer)
	}
}
