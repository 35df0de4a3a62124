package fru

import (
	"math"
	"time"
)

const areaFormatVersion = 1

// maxAreaLen is the largest area the one-byte length field can declare.
const maxAreaLen = 255 * 8

func prefixDecodeErr(err error, name string) error {
	if de, ok := err.(*DecodeError); ok {
		return &DecodeError{Msg: name + ": " + de.Msg}
	}
	return err
}

func prefixEncodeErr(err error, name string) error {
	if ee, ok := err.(*EncodeError); ok {
		return &EncodeError{Msg: name + ": " + ee.Msg}
	}
	return err
}

// openArea validates the version byte, declared length and checksum of the
// area at the front of data and returns the area's bytes.
func openArea(name string, data []byte, log Logger) ([]byte, error) {
	if len(data) < 2 {
		return nil, decodeErrorf("%s: premature end of data in area header", name)
	}
	if data[0] != areaFormatVersion {
		return nil, decodeErrorf("%s: unsupported area format version %d (expected %d)", name, data[0], areaFormatVersion)
	}
	n := int(data[1]) * 8
	if n == 0 {
		return nil, decodeErrorf("%s: area declares zero length", name)
	}
	if n > len(data) {
		return nil, decodeErrorf("%s: area declares %d bytes but only %d remain", name, n, len(data))
	}
	body := data[:n]
	if !VerifyChecksum(body) {
		return nil, decodeErrorf("%s: area checksum mismatch (expected 0x%02X, got 0x%02X)",
			name, Checksum(body[:n-1]), body[n-1])
	}
	return body, nil
}

// fieldReader walks the field stream of one validated area. The final byte
// of data is the checksum and is never consumed as field content.
type fieldReader struct {
	name    string
	data    []byte
	pos     int
	english bool
	done    bool
	log     Logger
}

// limit is the first index a field may not touch (the checksum byte).
func (r *fieldReader) limit() int {
	return len(r.data) - 1
}

func (r *fieldReader) readByte(key string) (byte, error) {
	if r.pos >= r.limit() {
		return 0, decodeErrorf("%s.%s: runs past the end of the area", r.name, key)
	}
	b := r.data[r.pos]
	r.pos++
	return b, nil
}

func (r *fieldReader) readDate() (time.Time, error) {
	if r.pos+3 > r.limit() {
		return time.Time{}, decodeErrorf("%s.date: runs past the end of the area", r.name)
	}
	mins := int64(r.data[r.pos]) | int64(r.data[r.pos+1])<<8 | int64(r.data[r.pos+2])<<16
	r.pos += 3
	return FruEpoch.Add(time.Duration(mins) * time.Minute), nil
}

// next decodes the next fixed field. Once the end marker has been seen all
// remaining fixed fields read as absent.
func (r *fieldReader) next(key string, useLang bool) (Value, error) {
	if r.done {
		return nil, nil
	}
	if r.pos >= r.limit() {
		return nil, decodeErrorf("%s: unterminated field stream (no end marker before declared length)", r.name)
	}
	if r.data[r.pos] == endMarker {
		r.done = true
		r.pos++
		return nil, nil
	}
	v, n, err := decodeField(r.data[r.pos:r.limit()], useLang, r.english)
	if err != nil {
		return nil, prefixDecodeErr(err, r.name+"."+key)
	}
	r.pos += n
	return v, nil
}

// extras consumes the remaining fields up to the end marker. Extra fields
// follow the area language the same way manufacturer-style fields do.
func (r *fieldReader) extras() ([]Value, error) {
	var out []Value
	for !r.done {
		if r.pos >= r.limit() {
			return nil, decodeErrorf("%s: unterminated field stream (no end marker before declared length)", r.name)
		}
		if r.data[r.pos] == endMarker {
			r.done = true
			r.pos++
			break
		}
		v, n, err := decodeField(r.data[r.pos:r.limit()], true, r.english)
		if err != nil {
			return nil, prefixDecodeErr(err, r.name+".oem")
		}
		r.pos += n
		out = append(out, v)
	}
	return out, nil
}

// finish checks the bytes between the end marker and the checksum. Nonzero
// padding is tolerated with a warning to accommodate lenient producers.
func (r *fieldReader) finish() {
	pad := r.limit() - r.pos
	for i := r.pos; i < r.limit(); i++ {
		if r.data[i] != 0 {
			r.log.Warnf("%s: padding byte at offset %d is nonzero (0x%02X), ignored", r.name, i, r.data[i])
		}
	}
	if pad > 7 {
		r.log.Warnf("%s: area has %d padding bytes, expected no more than 7", r.name, pad)
	}
}

func decodeFixed(r *fieldReader, refs []FieldRef) error {
	for _, ref := range refs {
		v, err := r.next(ref.Key, ref.UseLang)
		if err != nil {
			return err
		}
		*ref.Value = v
	}
	return nil
}

func decodeChassis(data []byte, log Logger) (*ChassisArea, int, error) {
	body, err := openArea("chassis", data, log)
	if err != nil {
		return nil, 0, err
	}
	a := &ChassisArea{}
	r := &fieldReader{name: "chassis", data: body, pos: 2, english: true, log: log}
	if a.Type, err = r.readByte("type"); err != nil {
		return nil, 0, err
	}
	if a.Type < ChassisTypeMin || a.Type > ChassisTypeMax {
		log.Warnf("chassis.type: value %d out of bounds (%d..%d)", a.Type, ChassisTypeMin, ChassisTypeMax)
	}
	if err := decodeFixed(r, a.FieldRefs()); err != nil {
		return nil, 0, err
	}
	if a.OEM, err = r.extras(); err != nil {
		return nil, 0, err
	}
	r.finish()
	return a, len(body), nil
}

func decodeBoard(data []byte, log Logger) (*BoardArea, int, error) {
	body, err := openArea("board", data, log)
	if err != nil {
		return nil, 0, err
	}
	a := &BoardArea{}
	r := &fieldReader{name: "board", data: body, pos: 2, log: log}
	if a.Language, err = r.readByte("lang"); err != nil {
		return nil, 0, err
	}
	if a.Language > LangMax {
		log.Warnf("board.lang: value %d out of bounds (0..%d)", a.Language, LangMax)
	}
	r.english = EnglishLang(a.Language)
	if a.MfgDate, err = r.readDate(); err != nil {
		return nil, 0, err
	}
	if err := decodeFixed(r, a.FieldRefs()); err != nil {
		return nil, 0, err
	}
	if a.OEM, err = r.extras(); err != nil {
		return nil, 0, err
	}
	r.finish()
	return a, len(body), nil
}

func decodeProduct(data []byte, log Logger) (*ProductArea, int, error) {
	body, err := openArea("product", data, log)
	if err != nil {
		return nil, 0, err
	}
	a := &ProductArea{}
	r := &fieldReader{name: "product", data: body, pos: 2, log: log}
	if a.Language, err = r.readByte("lang"); err != nil {
		return nil, 0, err
	}
	if a.Language > LangMax {
		log.Warnf("product.lang: value %d out of bounds (0..%d)", a.Language, LangMax)
	}
	r.english = EnglishLang(a.Language)
	if err := decodeFixed(r, a.FieldRefs()); err != nil {
		return nil, 0, err
	}
	if a.OEM, err = r.extras(); err != nil {
		return nil, 0, err
	}
	r.finish()
	return a, len(body), nil
}

// areaWriter assembles one area: version and length placeholder, fixed
// fields, extras, end marker, zero padding and checksum.
type areaWriter struct {
	name    string
	buf     []byte
	english bool
	log     Logger
}

func newAreaWriter(name string, english bool, log Logger) *areaWriter {
	return &areaWriter{name: name, buf: []byte{areaFormatVersion, 0}, english: english, log: log}
}

func (w *areaWriter) writeValue(key string, v Value, useLang bool) error {
	switch v.(type) {
	case Latin1Text:
		if useLang && !w.english {
			w.log.Warnf("%s.%s: encoded as Latin-1 but readers will interpret it as 16-bit text", w.name, key)
		}
	case Unicode16Text:
		if !useLang || w.english {
			w.log.Warnf("%s.%s: encoded as 16-bit text but readers will interpret it as Latin-1", w.name, key)
		}
	}
	start := len(w.buf)
	buf, err := encodeField(w.buf, v)
	if err != nil {
		return prefixEncodeErr(err, w.name+"."+key)
	}
	w.buf = buf
	if w.buf[start] == endMarker {
		w.log.Warnf("%s.%s: single-byte text field may be mis-interpreted as the end of the area", w.name, key)
	}
	return nil
}

// writeFixed emits fixed fields up to the last present one. A hole in the
// middle has no binary representation, so it fails rather than inventing
// empty content.
func (w *areaWriter) writeFixed(refs []FieldRef, haveExtras bool) error {
	last := -1
	for i, ref := range refs {
		if *ref.Value != nil {
			last = i
		}
	}
	if haveExtras {
		last = len(refs) - 1
	}
	for i := 0; i <= last; i++ {
		v := *refs[i].Value
		if v == nil {
			return encodeErrorf("%s.%s: field is absent but a later field is present", w.name, refs[i].Key)
		}
		if err := w.writeValue(refs[i].Key, v, refs[i].UseLang); err != nil {
			return err
		}
	}
	return nil
}

func (w *areaWriter) writeExtras(vals []Value) error {
	for i, v := range vals {
		if v == nil {
			return encodeErrorf("%s.oem: item %d is absent", w.name, i+1)
		}
		if err := w.writeValue("oem", v, true); err != nil {
			return err
		}
	}
	return nil
}

func (w *areaWriter) close() ([]byte, error) {
	w.buf = append(w.buf, endMarker)
	for len(w.buf)%8 != 7 {
		w.buf = append(w.buf, 0)
	}
	if len(w.buf)+1 > maxAreaLen {
		return nil, encodeErrorf("%s: area content of %d bytes exceeds the %d-byte capacity", w.name, len(w.buf)+1, maxAreaLen)
	}
	w.buf[1] = byte((len(w.buf) + 1) / 8)
	w.buf = append(w.buf, Checksum(w.buf))
	return w.buf, nil
}

func encodeChassis(a *ChassisArea, log Logger) ([]byte, error) {
	w := newAreaWriter("chassis", true, log)
	if a.Type < ChassisTypeMin || a.Type > ChassisTypeMax {
		log.Warnf("chassis.type: value %d out of bounds (%d..%d)", a.Type, ChassisTypeMin, ChassisTypeMax)
	}
	w.buf = append(w.buf, a.Type)
	if err := w.writeFixed(a.FieldRefs(), len(a.OEM) > 0); err != nil {
		return nil, err
	}
	if err := w.writeExtras(a.OEM); err != nil {
		return nil, err
	}
	return w.close()
}

func encodeBoard(a *BoardArea, log Logger) ([]byte, error) {
	w := newAreaWriter("board", EnglishLang(a.Language), log)
	if a.Language > LangMax {
		log.Warnf("board.lang: value %d out of bounds (0..%d)", a.Language, LangMax)
	}
	w.buf = append(w.buf, a.Language)
	date, err := encodeMfgDate(a.MfgDate)
	if err != nil {
		return nil, err
	}
	w.buf = append(w.buf, date[:]...)
	if err := w.writeFixed(a.FieldRefs(), len(a.OEM) > 0); err != nil {
		return nil, err
	}
	if err := w.writeExtras(a.OEM); err != nil {
		return nil, err
	}
	return w.close()
}

func encodeProduct(a *ProductArea, log Logger) ([]byte, error) {
	w := newAreaWriter("product", EnglishLang(a.Language), log)
	if a.Language > LangMax {
		log.Warnf("product.lang: value %d out of bounds (0..%d)", a.Language, LangMax)
	}
	w.buf = append(w.buf, a.Language)
	if err := w.writeFixed(a.FieldRefs(), len(a.OEM) > 0); err != nil {
		return nil, err
	}
	if err := w.writeExtras(a.OEM); err != nil {
		return nil, err
	}
	return w.close()
}

// encodeMfgDate converts a timestamp to minutes since the FRU epoch,
// rounded to the nearest minute. The zero time encodes as zero minutes.
func encodeMfgDate(t time.Time) ([3]byte, error) {
	var out [3]byte
	var mins int64
	if !t.IsZero() {
		mins = int64(math.Round(t.Sub(FruEpoch).Minutes()))
	}
	if mins < 0 {
		return out, encodeErrorf("board.date: %s is before the FRU epoch %s", t.Format(time.RFC3339), FruEpoch.Format(time.RFC3339))
	}
	if mins >= 1<<24 {
		return out, encodeErrorf("board.date: %s is beyond the 3-byte minute range", t.Format(time.RFC3339))
	}
	out[0] = byte(mins)
	out[1] = byte(mins >> 8)
	out[2] = byte(mins >> 16)
	return out, nil
}
