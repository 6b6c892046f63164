package tlv

import (
	"bytes"
	"errors"
	"testing"
)

func TestDecodeCompact_RawConcatenation(t *testing.T) {
	tests := []struct {
		name    string
		records [][2]interface{}
	}{
		{
			name: "Status indicator and AID",
			records: [][2]interface{}{
				{byte(0x3), Hex("80")},
				{byte(0xF), Hex("A0 00 00 03 08 00 00 10 00 01 00")},
			},
		},
		{
			name: "Zero length records",
			records: [][2]interface{}{
				{byte(0x4), []byte{}},
				{byte(0x7), Hex("C0")},
				{byte(0x8), []byte{}},
			},
		},
		{
			name: "Maximum length value",
			records: [][2]interface{}{
				{byte(0x5), bytes.Repeat([]byte{0x11}, 15)},
			},
		},
		{
			name:    "Empty buffer",
			records: nil,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var buf []byte
			for _, r := range tt.records {
				rec, err := EncodeCompact(r[0].(byte), r[1].([]byte))
				if err != nil {
					t.Fatalf("EncodeCompact() error: %v", err)
				}
				buf = append(buf, rec.Raw...)
			}

			for _, mode := range []Mode{Lenient, Strict} {
				got, err := DecodeCompact(buf, mode)
				if err != nil {
					t.Fatalf("DecodeCompact(%s) error: %v", mode, err)
				}
				if len(got) != len(tt.records) {
					t.Fatalf("DecodeCompact(%s) returned %d records, want %d", mode, len(got), len(tt.records))
				}
				if joined := Join(got...); !bytes.Equal(joined, buf) {
					t.Errorf("raw concatenation = %X, want %X", joined, buf)
				}
				for i, r := range got {
					if r.Tag[0] != tt.records[i][0].(byte) {
						t.Errorf("record %d tag = %X, want %X", i, r.Tag[0], tt.records[i][0])
					}
					if !bytes.Equal(r.Value, tt.records[i][1].([]byte)) || r.Length != len(r.Value) {
						t.Errorf("record %d value = %X (len %d)", i, r.Value, r.Length)
					}
				}
			}
		})
	}
}

func TestDecodeCompact_Overrun(t *testing.T) {
	// 31 80 is a full record, F5 announces 5 bytes but only 2 follow.
	input := Hex("31 80 F5 A000")

	t.Run("Lenient drops the remainder", func(t *testing.T) {
		got, err := DecodeCompact(input, Lenient)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if len(got) != 1 || got[0].Tag[0] != 0x3 {
			t.Errorf("got %v, want the status indicator record only", got)
		}
	})

	t.Run("Strict reports malformed data", func(t *testing.T) {
		got, err := DecodeCompact(input, Strict)
		if !errors.Is(err, ErrMalformed) {
			t.Fatalf("error = %v, want ErrMalformed", err)
		}
		if len(got) != 1 {
			t.Errorf("records decoded before the overrun = %d, want 1", len(got))
		}
	})
}

func TestEncodeCompact_Limits(t *testing.T) {
	if _, err := EncodeCompact(0x10, nil); err == nil {
		t.Error("expected error for tag wider than a nibble")
	}
	if _, err := EncodeCompact(0x1, make([]byte, 16)); err == nil {
		t.Error("expected error for value longer than 15 bytes")
	}
}
