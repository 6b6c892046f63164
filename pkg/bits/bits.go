// Package bits holds the small bit and nibble helpers shared by the CLA, status word,
// Compact-TLV and historical-byte decoders. Bits are numbered 1 (LSB) to 8 (MSB), as in ISO 7816.
package bits

// Bit returns a byte with only the n-th bit set (1 to 8).
func Bit(n uint) byte {
	if n < 1 || n > 8 {
		return 0
	}
	return 1 << (n - 1)
}

// IsSet reports whether the n-th bit of b is set.
func IsSet(b byte, n uint) bool {
	return b&Bit(n) != 0
}

// GetRange extracts bits high..low of b, shifted down to bit 1.
// GetRange(0b00001100, 4, 3) == 0b11.
func GetRange(b byte, high, low uint) byte {
	if high < low || high > 8 || low < 1 {
		return 0
	}

	width := high - low + 1
	mask := byte((1 << width) - 1)

	return (b >> (low - 1)) & mask
}

// Set returns b with the n-th bit set.
func Set(b byte, n uint) byte {
	return b | Bit(n)
}

// Clear returns b with the n-th bit cleared.
func Clear(b byte, n uint) byte {
	return b &^ Bit(n)
}

// HighNibble returns bits 8-5 of b.
func HighNibble(b byte) byte {
	return GetRange(b, 8, 5)
}

// LowNibble returns bits 4-1 of b.
func LowNibble(b byte) byte {
	return GetRange(b, 4, 1)
}

// Nibbles packs two 4-bit values into one byte. Values wider than 4 bits are truncated.
func Nibbles(high, low byte) byte {
	return (high&0x0F)<<4 | low&0x0F
}
