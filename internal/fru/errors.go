package fru

import "fmt"

// DecodeError reports malformed binary input: a bad format version, a
// checksum mismatch, an unterminated field stream or an unsupported area.
type DecodeError struct {
	Msg string
}

func (e *DecodeError) Error() string {
	return "fru decode: " + e.Msg
}

// EncodeError reports a document value that cannot be represented in the
// binary format: a character outside a variant's class, a payload over 63
// bytes, an area over its 2040-byte capacity, or a MultiRecord request.
type EncodeError struct {
	Msg string
}

func (e *EncodeError) Error() string {
	return "fru encode: " + e.Msg
}

func decodeErrorf(format string, args ...interface{}) error {
	return &DecodeError{Msg: fmt.Sprintf(format, args...)}
}

func encodeErrorf(format string, args ...interface{}) error {
	return &EncodeError{Msg: fmt.Sprintf(format, args...)}
}

// IsDecodeError reports whether err is a DecodeError.
func IsDecodeError(err error) bool {
	_, ok := err.(*DecodeError)
	return ok
}

// IsEncodeError reports whether err is an EncodeError.
func IsEncodeError(err error) bool {
	_, ok := err.(*EncodeError)
	return ok
}
