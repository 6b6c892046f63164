package iso7816

import (
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/gregLibert/piv-reader/pkg/tlv"
)

func TestSelectByAID(t *testing.T) {
	cls, _ := NewClass(0x00)
	chained, _ := NewClass(0x10)

	tests := []struct {
		name     string
		cla      Class
		aid      []byte
		expected []byte
	}{
		{
			name: "PIV application",
			cla:  cls,
			aid:  tlv.Hex("A0 00 00 03 08 00 00 10 00 01 00"),
			expected: tlv.Hex(
				"00 A4 04 00", // P1=04 (DF name), P2=00 (FCI, first)
				"0B",
				"A0 00 00 03 08 00 00 10 00 01 00",
				"00", // Le=256
			),
		},
		{
			name:     "Right-truncated PIV AID",
			cla:      cls,
			aid:      tlv.Hex("A0 00 00 03 08"),
			expected: tlv.Hex("00 A4 04 00 05", "A0 00 00 03 08", "00"),
		},
		{
			name:     "Class bits are kept",
			cla:      chained,
			aid:      tlv.Hex("A0 00 00 03 08"),
			expected: tlv.Hex("10 A4 04 00 05", "A0 00 00 03 08", "00"),
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := SelectByAID(tt.cla, tt.aid).Bytes()
			if err != nil {
				t.Fatalf("Bytes() error: %v", err)
			}
			if diff := cmp.Diff(tlv.HexString(tt.expected), tlv.HexString(got)); diff != "" {
				t.Errorf("mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestSelectP2(t *testing.T) {
	tests := []struct {
		p2       byte
		wantCtrl string
		wantOcc  string
	}{
		{0x00, "Return FCI", "First/Only"},
		{0x06, "Return FCP", "Next"},
		{0x0C, "No Response Data", "First/Only"},
		{0x0B, "Return FMD", "Previous"},
	}

	for _, tt := range tests {
		ctrl, occ := SelectP2(tt.p2)
		if ctrl.String() != tt.wantCtrl || occ.String() != tt.wantOcc {
			t.Errorf("SelectP2(%02X) = %s | %s, want %s | %s", tt.p2, ctrl, occ, tt.wantCtrl, tt.wantOcc)
		}
	}

	if got := SelectionMethod(0x7F).String(); got != "Unknown Method (0x7F)" {
		t.Errorf("unknown method = %q", got)
	}
}
