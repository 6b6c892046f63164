package iso7816

import (
	"fmt"
	"strings"

	"github.com/gregLibert/piv-reader/pkg/bits"
	"github.com/gregLibert/piv-reader/pkg/tlv"
)

// HISTORICAL BYTES (ISO/IEC 7816-4 section 12.1):
// The tail of the ATR (contact) or ATS (contactless) describing the card. The first byte is
// the category indicator:
//   - '00': status information in the last bytes, no TLV structure.
//   - '10': the next byte is a DIR data reference.
//   - '80': the remaining bytes are Compact-TLV data objects.
//   - '81'-'8F': reserved for future use.
//   - anything else: proprietary.
//
// Two Compact-TLV objects drive application selection:
//   - Card service data (tag '3'): b8 set means selection by full DF name is supported,
//     b7 set means selection by partial DF name is supported. When neither is set the
//     card relies on implicit selection.
//   - Application identifier (tag 'F'): the AID of the implicitly selected application.
//     Its presence always means implicit selection.

// Category indicators.
const (
	CategoryStatusInfo byte = 0x00
	CategoryDIRRef     byte = 0x10
	CategoryCompactTLV byte = 0x80
)

// Compact-TLV tags of the historical bytes that take part in selection.
const (
	HBTagCardServiceData byte = 0x3
	HBTagAID             byte = 0xF
)

// HistoricalBytes is the analyzed form of the card historical bytes.
type HistoricalBytes struct {
	Raw      []byte
	Category byte
	Records  []tlv.Record

	SelectedAID         []byte
	ImplicitlySelected  bool
	AllowsPartialSelect bool
	AllowsFullSelect    bool
}

// AnalyzeHistoricalBytes decodes hb. Empty input yields an empty result.
// mode only matters for category '80': in Strict mode an overrunning Compact-TLV record
// is an error, in Lenient mode the records decoded before it are kept.
func AnalyzeHistoricalBytes(hb []byte, mode tlv.Mode) (*HistoricalBytes, error) {
	res := &HistoricalBytes{Raw: append([]byte(nil), hb...)}
	if len(hb) == 0 {
		return res, nil
	}

	res.Category = hb[0]
	if res.Category != CategoryCompactTLV {
		return res, nil
	}

	records, err := tlv.DecodeCompact(hb[1:], mode)
	res.Records = records
	if err != nil {
		return res, fmt.Errorf("historical bytes: %w", err)
	}

	for _, r := range records {
		switch r.Tag[0] {
		case HBTagCardServiceData:
			if len(r.Value) == 0 {
				continue
			}
			res.AllowsFullSelect = bits.IsSet(r.Value[0], 8)
			res.AllowsPartialSelect = bits.IsSet(r.Value[0], 7)
			if !res.AllowsFullSelect && !res.AllowsPartialSelect {
				res.ImplicitlySelected = true
			}
		case HBTagAID:
			res.SelectedAID = r.Value
		}
	}

	// An announced AID wins over whatever the card service data said.
	if res.SelectedAID != nil {
		res.ImplicitlySelected = true
	}

	return res, nil
}

// NeedsSelect reports whether the application must be selected explicitly.
func (h *HistoricalBytes) NeedsSelect() bool {
	return !h.ImplicitlySelected
}

// Describe renders a short report of the analysis.
func (h *HistoricalBytes) Describe() string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "Historical Bytes: %s", tlv.HexString(h.Raw))
	if len(h.Raw) == 0 {
		return sb.String()
	}

	fmt.Fprintf(&sb, "\n    - Category: %02X (%s)", h.Category, categoryName(h.Category))
	for _, r := range h.Records {
		fmt.Fprintf(&sb, "\n    - Compact-TLV %X: %s", r.Tag[0], tlv.HexString(r.Value))
	}
	if h.SelectedAID != nil {
		fmt.Fprintf(&sb, "\n    - Selected AID: %s", tlv.HexString(h.SelectedAID))
	}
	fmt.Fprintf(&sb, "\n    - Selection: implicit=%t full=%t partial=%t",
		h.ImplicitlySelected, h.AllowsFullSelect, h.AllowsPartialSelect)

	return sb.String()
}

func categoryName(c byte) string {
	switch {
	case c == CategoryStatusInfo:
		return "status information"
	case c == CategoryDIRRef:
		return "DIR data reference"
	case c == CategoryCompactTLV:
		return "Compact-TLV"
	case c > CategoryCompactTLV && c <= 0x8F:
		return "reserved"
	default:
		return "proprietary"
	}
}
