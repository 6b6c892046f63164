package tlv

import (
	"encoding/hex"
	"fmt"
	"strings"
)

// Hex builds a byte slice from hex fragments such as "00 CB 3F FF" or "5FC102".
// Whitespace inside fragments is ignored. It panics on invalid input and is meant for
// tests and constant tables.
func Hex(parts ...string) []byte {
	clean := strings.Join(strings.Fields(strings.Join(parts, " ")), "")

	data, err := hex.DecodeString(clean)
	if err != nil {
		panic(fmt.Sprintf("invalid input '%s': %v", clean, err))
	}
	return data
}

// HexString renders data as upper-case hex without separators, the format used by the trace log.
func HexString(data []byte) string {
	return strings.ToUpper(hex.EncodeToString(data))
}
