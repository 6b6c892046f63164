package piv_test

import (
	"errors"
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/gregLibert/piv-reader/pkg/piv"
	"github.com/gregLibert/piv-reader/pkg/piv/pivtest"
)

func TestFASCN_RoundTrip(t *testing.T) {
	raw, err := pivtest.SampleFASCN.Bytes()
	if err != nil {
		t.Fatalf("Bytes() error: %v", err)
	}
	if len(raw) != 25 {
		t.Fatalf("encoded length = %d, want 25", len(raw))
	}
	// SS then '9' '9': 11010 10011 10011 ...
	if raw[0] != 0xD4 || raw[1] != 0xE7 {
		t.Errorf("leading bytes = %X %X, want D4 E7", raw[0], raw[1])
	}

	got, err := piv.ParseFASCN(raw)
	if err != nil {
		t.Fatalf("ParseFASCN() error: %v", err)
	}
	if diff := cmp.Diff(pivtest.SampleFASCN, *got); diff != "" {
		t.Errorf("round trip mismatch (-want +got):\n%s", diff)
	}
	if got.String() != "9999-9999-999999-1-1-1234567890-1-1223-2" {
		t.Errorf("String() = %s", got)
	}
}

func TestParseFASCN_Errors(t *testing.T) {
	raw, _ := pivtest.SampleFASCN.Bytes()

	flipped := append([]byte(nil), raw...)
	flipped[3] ^= 0x01

	tests := []struct {
		name  string
		input []byte
	}{
		{"Short", raw[:24]},
		{"Parity", flipped},
		{"Zeros", make([]byte, 25)},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := piv.ParseFASCN(tt.input); !errors.Is(err, piv.ErrFASCN) {
				t.Errorf("error = %v, want ErrFASCN", err)
			}
		})
	}
}

func TestFASCN_BytesValidation(t *testing.T) {
	f := pivtest.SampleFASCN
	f.AgencyCode = "99"
	if _, err := f.Bytes(); !errors.Is(err, piv.ErrFASCN) {
		t.Errorf("short field error = %v", err)
	}

	f = pivtest.SampleFASCN
	f.SystemCode = "99A9"
	if _, err := f.Bytes(); !errors.Is(err, piv.ErrFASCN) {
		t.Errorf("non-digit error = %v", err)
	}
}
