package tlv

import (
	"fmt"
)

// BER-TLV ENCODING (ISO/IEC 8825-1 subset used by ISO 7816-4):
//
// Tag: one byte, or several when bits 5-1 of the first byte are all set (0x1F).
// Subsequent tag bytes carry bit 8 while more tag bytes follow.
//
// Length:
//   - Short form: one byte 0x00-0x7F.
//   - Long form:  0x81-0x84 followed by 1 to 4 big-endian length bytes.
//   - 0x80 (indefinite) is not allowed in card data.

const maxTagBytes = 4

// DecodeBER decodes a complete sequence of BER-TLV records.
// Any trailing garbage or overrun is reported as ErrMalformed.
func DecodeBER(data []byte) ([]Record, error) {
	var records []Record
	rest := data
	for len(rest) > 0 {
		rec, next, err := DecodeOneBER(rest)
		if err != nil {
			return records, fmt.Errorf("record at offset %d: %w", len(data)-len(rest), err)
		}
		records = append(records, rec)
		rest = next
	}
	return records, nil
}

// DecodeOneBER decodes the first record of data and returns the remaining bytes.
func DecodeOneBER(data []byte) (Record, []byte, error) {
	tagLen, err := berTagLength(data)
	if err != nil {
		return Record{}, nil, err
	}

	length, lenLen, err := berLength(data[tagLen:])
	if err != nil {
		return Record{}, nil, err
	}

	start := tagLen + lenLen
	end := start + length

	rec := Record{
		Tag:    clone(data[:tagLen]),
		Length: length,
		Value:  clone(data[start:end]),
		Raw:    clone(data[:end]),
	}
	return rec, data[end:], nil
}

// EncodeBER builds a record for tag and value using the minimal length form.
func EncodeBER(tag []byte, value []byte) Record {
	raw := make([]byte, 0, len(tag)+5+len(value))
	raw = append(raw, tag...)
	raw = append(raw, EncodeLength(len(value))...)
	raw = append(raw, value...)

	return Record{
		Tag:    clone(tag),
		Length: len(value),
		Value:  clone(value),
		Raw:    raw,
	}
}

// EncodeBERTag is EncodeBER for a numeric tag.
func EncodeBERTag(tag uint, value []byte) Record {
	return EncodeBER(TagBytes(tag), value)
}

// EncodeLength returns the minimal BER length encoding of n.
func EncodeLength(n int) []byte {
	switch {
	case n < 0x80:
		return []byte{byte(n)}
	case n <= 0xFF:
		return []byte{0x81, byte(n)}
	case n <= 0xFFFF:
		return []byte{0x82, byte(n >> 8), byte(n)}
	case n <= 0xFFFFFF:
		return []byte{0x83, byte(n >> 16), byte(n >> 8), byte(n)}
	default:
		return []byte{0x84, byte(n >> 24), byte(n >> 16), byte(n >> 8), byte(n)}
	}
}

func berTagLength(data []byte) (int, error) {
	if len(data) == 0 {
		return 0, fmt.Errorf("%w: missing tag", ErrMalformed)
	}
	if data[0]&0x1F != 0x1F {
		return 1, nil
	}
	for i := 1; i < len(data); i++ {
		if i >= maxTagBytes {
			return 0, fmt.Errorf("%w: tag longer than %d bytes", ErrMalformed, maxTagBytes)
		}
		if data[i]&0x80 == 0 {
			return i + 1, nil
		}
	}
	return 0, fmt.Errorf("%w: truncated multi-byte tag %X", ErrMalformed, data)
}

// berLength returns the decoded length and the size of its encoding. The length
// is checked against the bytes that follow the length field.
func berLength(data []byte) (int, int, error) {
	if len(data) == 0 {
		return 0, 0, fmt.Errorf("%w: missing length", ErrMalformed)
	}

	first := data[0]
	if first < 0x80 {
		if int(first) > len(data)-1 {
			return 0, 0, fmt.Errorf("%w: length %d overruns %d available bytes", ErrMalformed, first, len(data)-1)
		}
		return int(first), 1, nil
	}

	n := int(first & 0x7F)
	if n == 0 {
		return 0, 0, fmt.Errorf("%w: indefinite length", ErrMalformed)
	}
	if n > 4 {
		return 0, 0, fmt.Errorf("%w: length field of %d bytes", ErrMalformed, n)
	}
	if len(data) < 1+n {
		return 0, 0, fmt.Errorf("%w: truncated length field", ErrMalformed)
	}

	var length uint64
	for _, b := range data[1 : 1+n] {
		length = length<<8 | uint64(b)
	}

	available := uint64(len(data) - 1 - n)
	if length > available {
		return 0, 0, fmt.Errorf("%w: length %d overruns %d available bytes", ErrMalformed, length, available)
	}
	return int(length), 1 + n, nil
}

func clone(b []byte) []byte {
	if b == nil {
		return nil
	}
	out := make([]byte, len(b))
	copy(out, b)
	return out
}
