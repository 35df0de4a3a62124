package report

import (
	"fmt"
	"strings"

	qrcode "github.com/skip2/go-qrcode"
)

// SerialQR creates a QR code PNG encoding the given serial number.
func SerialQR(serial string, size int) ([]byte, error) {
	trimmed := strings.TrimSpace(serial)
	if trimmed == "" {
		return nil, fmt.Errorf("serial number is empty")
	}
	if size <= 0 {
		size = 128
	}
	return qrcode.Encode(trimmed, qrcode.Medium, size)
}
