package iso7816

import (
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/gregLibert/piv-reader/pkg/tlv"
)

func TestSelectResult_Describe(t *testing.T) {
	cls, _ := NewClass(0x00)
	pivAID := tlv.Hex("A0 00 00 03 08 00 00 10 00 01 00")
	cmdSelect := SelectByAID(cls, pivAID)

	t.Run("Answer through GET RESPONSE", func(t *testing.T) {
		trace := Trace{
			{
				Command:  cmdSelect,
				Response: &ResponseAPDU{Status: NewStatusWord(0x61, 0x0F)},
			},
			{
				Command: NewCommandAPDU(cls, MustInstruction(INS_GET_RESPONSE), 0, 0, nil, 0x0F),
				Response: &ResponseAPDU{
					Data:   tlv.Hex("61 0D", "4F 06 000010000100", "79 03 4F0100"),
					Status: SW_NO_ERROR,
				},
			},
		}

		res, err := NewSelectResult(trace)
		if err != nil {
			t.Fatalf("NewSelectResult() error: %v", err)
		}

		want := []string{
			"=== SELECT COMMAND REPORT ===",
			"[1] Command: SELECT (Initial Request)",
			"    + Method:  04 -> Select by DF Name (AID)",
			"    + Control: 00 -> First/Only | Return FCI",
			"    + Data:    A000000308000010000100",
			"    + Result:  [61 0F] [OK] 0F (15) bytes still available",
			"",
			"[2] Protocol: Auto-handling (Sequence of 2 steps)",
			"    + Action:  Sending GET RESPONSE",
			"    + Result:  [9000] Final Status",
			"    + Payload: 15 bytes received",
			"",
			"[=] FINAL OUTCOME:",
			"    61 (13)",
			"      4F (6): 000010000100",
			"      79 (3)",
			"        4F (1): 00",
		}
		if diff := cmp.Diff(want, strings.Split(res.Describe(), "\n")); diff != "" {
			t.Errorf("Describe() mismatch (-want +got):\n%s", diff)
		}
	})

	t.Run("Failed selection", func(t *testing.T) {
		trace := Trace{{
			Command:  cmdSelect,
			Response: &ResponseAPDU{Status: SW_ERR_FILE_NOT_FOUND},
		}}
		res, _ := NewSelectResult(trace)

		report := res.Describe()
		if !strings.Contains(report, "[6A 82] [!!] [6A82] SW_ERR_FILE_NOT_FOUND") {
			t.Errorf("report does not flag the failure:\n%s", report)
		}
		if !strings.Contains(report, "selection failed") {
			t.Errorf("report does not explain the missing answer:\n%s", report)
		}
	})
}

func TestNewSelectResult_Validation(t *testing.T) {
	if _, err := NewSelectResult(nil); err == nil {
		t.Error("expected error for empty trace")
	}

	cls, _ := NewClass(0x00)
	trace := Trace{{Command: GetData(cls, tlv.Hex("7E")), Response: &ResponseAPDU{Status: SW_NO_ERROR}}}
	if _, err := NewSelectResult(trace); err == nil {
		t.Error("expected error for a trace that does not start with SELECT")
	}
}
