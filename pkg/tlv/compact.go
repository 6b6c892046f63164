package tlv

import (
	"fmt"

	"github.com/gregLibert/piv-reader/pkg/bits"
)

// COMPACT-TLV (ISO/IEC 7816-4, historical bytes):
// Each record starts with one header byte 'TL': the high nibble is the tag,
// the low nibble the value length (0-15). The value bytes follow directly.

// DecodeCompact walks data as a sequence of Compact-TLV records.
//
// A record whose declared length overruns the buffer ends the walk: in Lenient mode the
// remaining bytes are dropped and the records decoded so far are returned, in Strict mode
// the same records are returned together with an ErrMalformed error.
func DecodeCompact(data []byte, mode Mode) ([]Record, error) {
	var records []Record

	for off := 0; off < len(data); {
		header := data[off]
		length := int(bits.LowNibble(header))
		available := len(data) - off - 1

		if length > available {
			if mode == Strict {
				return records, fmt.Errorf("%w: compact record %02X at offset %d declares %d bytes, %d available",
					ErrMalformed, header, off, length, available)
			}
			break
		}

		end := off + 1 + length
		records = append(records, Record{
			Tag:    []byte{bits.HighNibble(header)},
			Length: length,
			Value:  clone(data[off+1 : end]),
			Raw:    clone(data[off:end]),
		})
		off = end
	}

	return records, nil
}

// EncodeCompact builds a Compact-TLV record. tag must fit in a nibble and value in 15 bytes.
func EncodeCompact(tag byte, value []byte) (Record, error) {
	if tag > 0x0F {
		return Record{}, fmt.Errorf("compact tag 0x%X does not fit in a nibble", tag)
	}
	if len(value) > 0x0F {
		return Record{}, fmt.Errorf("compact value of %d bytes exceeds 15", len(value))
	}

	raw := append([]byte{bits.Nibbles(tag, byte(len(value)))}, value...)
	return Record{
		Tag:    []byte{tag},
		Length: len(value),
		Value:  clone(value),
		Raw:    raw,
	}, nil
}
