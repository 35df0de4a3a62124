package fru

// Common header layout: format version, four area offsets in 8-byte units
// (zero meaning absent), a reserved byte, a pad byte and the checksum.
const (
	headerSize    = 8
	formatVersion = 1

	hdrOffChassis     = 1
	hdrOffBoard       = 2
	hdrOffProduct     = 3
	hdrOffMultiRecord = 4
	hdrOffReserved    = 5
	hdrOffPad         = 6
	hdrOffChecksum    = 7
)

// header holds decoded byte offsets into the image, zero meaning absent.
type header struct {
	chassis     int
	board       int
	product     int
	multiRecord int
}

func decodeHeader(data []byte, log Logger) (header, error) {
	var h header
	if len(data) < headerSize {
		return h, decodeErrorf("image too short for common header (%d bytes, need %d)", len(data), headerSize)
	}
	if data[0] != formatVersion {
		return h, decodeErrorf("unsupported header format version %d (expected %d)", data[0], formatVersion)
	}
	if !VerifyChecksum(data[:headerSize]) {
		return h, decodeErrorf("header checksum mismatch (expected 0x%02X, got 0x%02X)",
			Checksum(data[:hdrOffChecksum]), data[hdrOffChecksum])
	}
	if data[hdrOffReserved] != 0 {
		log.Warnf("header: reserved byte has unsupported value %d", data[hdrOffReserved])
	}
	if data[hdrOffPad] != 0 {
		log.Warnf("header: pad byte has unsupported value %d", data[hdrOffPad])
	}
	h.chassis = int(data[hdrOffChassis]) * 8
	h.board = int(data[hdrOffBoard]) * 8
	h.product = int(data[hdrOffProduct]) * 8
	h.multiRecord = int(data[hdrOffMultiRecord]) * 8
	return h, nil
}
