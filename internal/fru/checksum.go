package fru

// Checksum returns the byte that makes sum(b) plus the result zero modulo
// 256, i.e. the two's complement of the truncated byte sum.
func Checksum(b []byte) byte {
	var sum byte
	for _, v := range b {
		sum += v
	}
	return -sum
}

// VerifyChecksum reports whether b, including its trailing checksum byte,
// sums to zero modulo 256.
func VerifyChecksum(b []byte) bool {
	var sum byte
	for _, v := range b {
		sum += v
	}
	return sum == 0
}
