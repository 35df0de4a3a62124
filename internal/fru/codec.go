package fru

import "sort"

// Decoder parses FRU images. The zero value logs diagnostics to stderr.
type Decoder struct {
	Log Logger
}

// Encoder serializes documents. The zero value logs diagnostics to stderr.
type Encoder struct {
	Log Logger
}

// Decode parses a complete FRU image with diagnostics on stderr.
func Decode(data []byte) (*Document, error) {
	return (&Decoder{}).Decode(data)
}

// Encode serializes a document with diagnostics on stderr.
func Encode(doc *Document) ([]byte, error) {
	return (&Encoder{}).Encode(doc)
}

func (d *Decoder) logger() Logger {
	if d.Log != nil {
		return d.Log
	}
	return StderrLogger()
}

// Decode parses a complete FRU image into a Document. Any failure leaves no
// partial result.
func (d *Decoder) Decode(data []byte) (*Document, error) {
	log := d.logger()
	h, err := decodeHeader(data, log)
	if err != nil {
		return nil, err
	}
	if h.multiRecord != 0 {
		return nil, decodeErrorf("multirecord area present at offset %d, decoding is not supported", h.multiRecord)
	}

	type pending struct {
		name   string
		offset int
	}
	var areas []pending
	for _, p := range []pending{
		{name: "chassis", offset: h.chassis},
		{name: "board", offset: h.board},
		{name: "product", offset: h.product},
	} {
		if p.offset != 0 {
			areas = append(areas, p)
		}
	}
	if !sort.SliceIsSorted(areas, func(i, j int) bool { return areas[i].offset < areas[j].offset }) {
		log.Warnf("areas are not in the canonical chassis/board/product order")
		sort.SliceStable(areas, func(i, j int) bool { return areas[i].offset < areas[j].offset })
	}

	doc := &Document{}
	pos := headerSize
	prev := "header"
	for _, p := range areas {
		if p.offset < pos {
			return nil, decodeErrorf("%s area at offset %d overlaps %s", p.name, p.offset, prev)
		}
		if p.offset > pos {
			log.Warnf("ignoring gap of %d bytes between %s and %s area", p.offset-pos, prev, p.name)
		}
		var n int
		var err error
		switch p.name {
		case "chassis":
			doc.Chassis, n, err = decodeChassis(data[p.offset:], log)
		case "board":
			doc.Board, n, err = decodeBoard(data[p.offset:], log)
		case "product":
			doc.Product, n, err = decodeProduct(data[p.offset:], log)
		}
		if err != nil {
			return nil, err
		}
		pos = p.offset + n
		prev = p.name + " area"
	}

	if pos < len(data) {
		nonzero := 0
		for _, b := range data[pos:] {
			if b != 0 {
				nonzero++
			}
		}
		if nonzero > 0 {
			log.Warnf("ignoring %d bytes after the last area (%d nonzero)", len(data)-pos, nonzero)
		} else {
			log.Infof("ignoring %d zero bytes after the last area", len(data)-pos)
		}
	}
	return doc, nil
}

func (e *Encoder) logger() Logger {
	if e.Log != nil {
		return e.Log
	}
	return StderrLogger()
}

// Encode serializes a document into a canonical FRU image: areas laid out
// contiguously after the header in chassis/board/product order. Any failure
// leaves no partial result.
func (e *Encoder) Encode(doc *Document) ([]byte, error) {
	log := e.logger()
	out := make([]byte, headerSize)
	out[0] = formatVersion

	appendArea := func(name string, hdrPos int, body []byte) error {
		unit := len(out) / 8
		if unit > 0xFF {
			return encodeErrorf("%s: area offset %d exceeds the one-byte unit range of the header", name, len(out))
		}
		out[hdrPos] = byte(unit)
		out = append(out, body...)
		return nil
	}
	if doc.Chassis != nil {
		body, err := encodeChassis(doc.Chassis, log)
		if err != nil {
			return nil, err
		}
		if err := appendArea("chassis", hdrOffChassis, body); err != nil {
			return nil, err
		}
	}
	if doc.Board != nil {
		body, err := encodeBoard(doc.Board, log)
		if err != nil {
			return nil, err
		}
		if err := appendArea("board", hdrOffBoard, body); err != nil {
			return nil, err
		}
	}
	if doc.Product != nil {
		body, err := encodeProduct(doc.Product, log)
		if err != nil {
			return nil, err
		}
		if err := appendArea("product", hdrOffProduct, body); err != nil {
			return nil, err
		}
	}
	out[hdrOffChecksum] = Checksum(out[:hdrOffChecksum])
	return out, nil
}
