// Package bits holds the small bit-twiddling helpers used to decode SD card
// status bytes and data tokens. Bit positions are 1-indexed, as in the SD
// Physical Layer tables (bit 1 is the least significant bit).
package bits

// Bit returns a byte with only the n-th bit set (1 to 8).
func Bit(n uint) byte {
	if n < 1 || n > 8 {
		return 0
	}
	return 1 << (n - 1)
}

// IsSet checks if the n-th bit is set (1 to 8).
func IsSet(b byte, n uint) bool {
	return b&Bit(n) != 0
}

// AnySet reports whether b shares at least one set bit with mask.
func AnySet(b, mask byte) bool {
	return b&mask != 0
}

// GetRange extracts the value from a range of bits (e.g., bits 4 to 1).
// Example: GetRange(0xE5, 4, 1) returns 5, the data response code of a write token.
func GetRange(b byte, high, low uint) byte {
	if high < low || high > 8 || low < 1 {
		return 0
	}

	width := high - low + 1
	mask := byte((1 << width) - 1)

	return (b >> (low - 1)) & mask
}

// LowNibble returns bits 4 to 1.
func LowNibble(b byte) byte {
	return GetRange(b, 4, 1)
}

// Uint32 assembles four bytes, most significant first.
func Uint32(b3, b2, b1, b0 byte) uint32 {
	return uint32(b3)<<24 | uint32(b2)<<16 | uint32(b1)<<8 | uint32(b0)
}

// Bytes32 splits v into four bytes, most significant first.
func Bytes32(v uint32) [4]byte {
	return [4]byte{byte(v >> 24), byte(v >> 16), byte(v >> 8), byte(v)}
}
