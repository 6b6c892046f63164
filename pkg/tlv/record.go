package tlv

import (
	"bytes"
	"errors"
	"fmt"
)

// ErrMalformed is returned when a TLV stream cannot be decoded: truncated tag,
// unsupported length form, or a declared length that overruns the buffer.
var ErrMalformed = errors.New("tlv: malformed data")

// Mode selects how Compact-TLV decoding reacts to a record whose declared length
// overruns the buffer.
type Mode int

const (
	// Lenient stops decoding and silently drops the remaining bytes.
	Lenient Mode = iota
	// Strict reports the overrun as ErrMalformed.
	Strict
)

func (m Mode) String() string {
	if m == Strict {
		return "strict"
	}
	return "lenient"
}

// Record is one decoded tag/length/value unit.
//
// Raw always equals Tag ++ length encoding ++ Value, and len(Value) == Length.
// For Compact-TLV records Tag holds the single tag nibble and Raw is header byte ++ Value.
type Record struct {
	Tag    []byte
	Length int
	Value  []byte
	Raw    []byte
}

// TagNumber returns the tag as a big-endian integer (5F C1 02 -> 0x5FC102).
func (r Record) TagNumber() uint {
	var n uint
	for _, b := range r.Tag {
		n = n<<8 | uint(b)
	}
	return n
}

// HasTag reports whether the record carries the given tag number.
func (r Record) HasTag(tag uint) bool {
	return r.TagNumber() == tag && len(r.Tag) == len(TagBytes(tag))
}

// IsConstructed reports whether the BER tag announces nested TLV content (bit 6 of the first byte).
func (r Record) IsConstructed() bool {
	return len(r.Tag) > 0 && r.Tag[0]&0x20 != 0
}

// Children decodes the value field as a BER-TLV sequence.
func (r Record) Children() ([]Record, error) {
	return DecodeBER(r.Value)
}

func (r Record) String() string {
	return fmt.Sprintf("%X [%d] %X", r.Tag, r.Length, r.Value)
}

// TagBytes converts a tag number into its minimal big-endian byte form.
// TagBytes(0x5FC102) returns 5F C1 02; TagBytes(0) returns a single 00 byte.
func TagBytes(tag uint) []byte {
	if tag == 0 {
		return []byte{0x00}
	}
	var out []byte
	for tag > 0 {
		out = append([]byte{byte(tag)}, out...)
		tag >>= 8
	}
	return out
}

// Find returns the first record carrying tag.
func Find(records []Record, tag uint) (Record, bool) {
	want := TagBytes(tag)
	for _, r := range records {
		if bytes.Equal(r.Tag, want) {
			return r, true
		}
	}
	return Record{}, false
}

// Join concatenates the raw encodings of the records.
func Join(records ...Record) []byte {
	var buf bytes.Buffer
	for _, r := range records {
		buf.Write(r.Raw)
	}
	return buf.Bytes()
}
