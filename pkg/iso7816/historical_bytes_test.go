package iso7816

import (
	"bytes"
	"errors"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/gregLibert/piv-reader/pkg/tlv"
)

func TestAnalyzeHistoricalBytes(t *testing.T) {
	pivAID := tlv.Hex("A0 00 00 03 08 00 00 10 00 01 00")

	tests := []struct {
		name         string
		input        []byte
		wantAID      []byte
		wantImplicit bool
		wantFull     bool
		wantPartial  bool
		wantRecords  int
	}{
		{
			name:  "Empty",
			input: nil,
		},
		{
			name:  "Status information category",
			input: tlv.Hex("00 31 C0 73"),
		},
		{
			name:  "DIR data reference category",
			input: tlv.Hex("10 0F"),
		},
		{
			name:  "Reserved category",
			input: tlv.Hex("8A 31 C0"),
		},
		{
			name:  "Proprietary category",
			input: tlv.Hex("4A 43 4F 50"),
		},
		{
			name:        "Full and partial selection supported",
			input:       tlv.Hex("80 31 C0"),
			wantFull:    true,
			wantPartial: true,
			wantRecords: 1,
		},
		{
			name:        "Full selection only",
			input:       tlv.Hex("80 31 80 73 C0 21 C0"),
			wantFull:    true,
			wantRecords: 2,
		},
		{
			name:         "No selection method means implicit",
			input:        tlv.Hex("80 31 00"),
			wantImplicit: true,
			wantRecords:  1,
		},
		{
			name:         "AID alone",
			input:        append(tlv.Hex("80 FB"), pivAID...),
			wantAID:      pivAID,
			wantImplicit: true,
			wantRecords:  1,
		},
		{
			name:         "AID wins over card service data",
			input:        append(tlv.Hex("80 31 C0 FB"), pivAID...),
			wantAID:      pivAID,
			wantImplicit: true,
			wantFull:     true,
			wantPartial:  true,
			wantRecords:  2,
		},
		{
			name:         "AID before card service data",
			input:        append(append(tlv.Hex("80 FB"), pivAID...), tlv.Hex("31 80")...),
			wantAID:      pivAID,
			wantImplicit: true,
			wantFull:     true,
			wantRecords:  2,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := AnalyzeHistoricalBytes(tt.input, tlv.Strict)
			if err != nil {
				t.Fatalf("AnalyzeHistoricalBytes() error: %v", err)
			}
			if !bytes.Equal(got.SelectedAID, tt.wantAID) {
				t.Errorf("SelectedAID = %X, want %X", got.SelectedAID, tt.wantAID)
			}
			if got.ImplicitlySelected != tt.wantImplicit {
				t.Errorf("ImplicitlySelected = %v, want %v", got.ImplicitlySelected, tt.wantImplicit)
			}
			if got.NeedsSelect() == tt.wantImplicit {
				t.Errorf("NeedsSelect() = %v with implicit %v", got.NeedsSelect(), tt.wantImplicit)
			}
			if got.AllowsFullSelect != tt.wantFull || got.AllowsPartialSelect != tt.wantPartial {
				t.Errorf("full/partial = %v/%v, want %v/%v",
					got.AllowsFullSelect, got.AllowsPartialSelect, tt.wantFull, tt.wantPartial)
			}
			if len(got.Records) != tt.wantRecords {
				t.Errorf("records = %d, want %d", len(got.Records), tt.wantRecords)
			}
		})
	}
}

func TestAnalyzeHistoricalBytes_Overrun(t *testing.T) {
	// The AID record announces 11 bytes but only 3 follow.
	input := tlv.Hex("80 31 C0 FB A00000")

	lenient, err := AnalyzeHistoricalBytes(input, tlv.Lenient)
	if err != nil {
		t.Fatalf("lenient analysis failed: %v", err)
	}
	if lenient.ImplicitlySelected || !lenient.AllowsFullSelect {
		t.Errorf("lenient result = %+v", lenient)
	}

	strict, err := AnalyzeHistoricalBytes(input, tlv.Strict)
	if !errors.Is(err, tlv.ErrMalformed) {
		t.Fatalf("strict error = %v, want ErrMalformed", err)
	}
	if strict == nil || len(strict.Records) != 1 {
		t.Errorf("strict result should keep the decoded records: %+v", strict)
	}
}

func TestHistoricalBytes_Describe(t *testing.T) {
	hb, _ := AnalyzeHistoricalBytes(tlv.Hex("80 31 00 F5 A000000308"), tlv.Lenient)

	want := []string{
		"Historical Bytes: 803100F5A000000308",
		"    - Category: 80 (Compact-TLV)",
		"    - Compact-TLV 3: 00",
		"    - Compact-TLV F: A000000308",
		"    - Selected AID: A000000308",
		"    - Selection: implicit=true full=false partial=false",
	}
	if diff := cmp.Diff(want, strings.Split(hb.Describe(), "\n")); diff != "" {
		t.Errorf("Describe() mismatch (-want +got):\n%s", diff)
	}
}
