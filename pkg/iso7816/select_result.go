package iso7816

import (
	"fmt"
	"strings"

	"github.com/gregLibert/piv-reader/pkg/tlv"
)

// SELECT RESULT ANALYSIS:
// A wrapper over the trace of a SELECT command giving the final answer (the PIV
// application property template, tag '61') and a human-readable report of the exchange.

// SelectResult represents the outcome of a SELECT command execution.
type SelectResult struct {
	Trace
}

// NewSelectResult creates a SelectResult from a transaction trace. The trace must start
// with a SELECT command.
func NewSelectResult(t Trace) (*SelectResult, error) {
	if len(t) == 0 {
		return nil, fmt.Errorf("cannot create result from empty trace")
	}

	if t[0].Command.Instruction.Raw != INS_SELECT {
		return nil, fmt.Errorf("trace must start with SELECT command (got %02X)", byte(t[0].Command.Instruction.Raw))
	}

	return &SelectResult{Trace: t}, nil
}

// Records decodes the answer of a successful selection as BER-TLV.
func (r *SelectResult) Records() ([]tlv.Record, error) {
	if !r.IsSuccess() {
		return nil, fmt.Errorf("selection failed: %s", r.Status().Verbose())
	}

	data := r.Data()
	if len(data) == 0 {
		return nil, fmt.Errorf("no response data found")
	}
	return tlv.DecodeBER(data)
}

// Describe generates an ASCII report of the selection: the initial request, the
// protocol steps handled by the client and the decoded answer.
func (r *SelectResult) Describe() string {
	var sb strings.Builder

	sb.WriteString("=== SELECT COMMAND REPORT ===\n")

	tx0 := r.Trace[0]
	cmd := tx0.Command

	method := SelectionMethod(cmd.P1)
	ctrl, occ := SelectP2(cmd.P2)

	sb.WriteString("[1] Command: SELECT (Initial Request)\n")
	fmt.Fprintf(&sb, "    + Method:  %02X -> %s\n", cmd.P1, method)
	fmt.Fprintf(&sb, "    + Control: %02X -> %s | %s\n", cmd.P2, occ, ctrl)

	if len(cmd.Data) > 0 {
		fmt.Fprintf(&sb, "    + Data:    %X\n", cmd.Data)
	}

	status := tx0.Response.Status
	resultMsg, resultDesc := "[OK]", "SW_NO_ERROR"
	switch {
	case status.IsMoreData():
		resultDesc = fmt.Sprintf("%02X (%d) bytes still available", status.SW2(), status.SW2())
	case status.SW1() == 0x6C:
		resultMsg = "[!!]"
		resultDesc = fmt.Sprintf("Wrong length, correct is %02X (%d)", status.SW2(), status.SW2())
	case status != SW_NO_ERROR:
		resultMsg = "[!!]"
		resultDesc = status.Verbose()
	}

	fmt.Fprintf(&sb, "    + Result:  [%02X %02X] %s %s\n", status.SW1(), status.SW2(), resultMsg, resultDesc)

	if len(tx0.Response.Data) > 0 {
		fmt.Fprintf(&sb, "    + Payload: %d bytes received directly\n", len(tx0.Response.Data))
	}
	sb.WriteString("\n")

	if len(r.Trace) > 1 {
		fmt.Fprintf(&sb, "[2] Protocol: Auto-handling (Sequence of %d steps)\n", len(r.Trace))
		last := r.Last()

		fmt.Fprintf(&sb, "    + Action:  Sending %s\n", last.Command.Instruction.Raw)
		fmt.Fprintf(&sb, "    + Result:  [%04X] Final Status\n", uint16(last.Response.Status))
		if data := r.Data(); len(data) > 0 {
			fmt.Fprintf(&sb, "    + Payload: %d bytes received\n", len(data))
		}
		sb.WriteString("\n")
	}

	sb.WriteString("[=] FINAL OUTCOME:\n")

	records, err := r.Records()
	if err != nil {
		fmt.Fprintf(&sb, "    - %v", err)
		return sb.String()
	}

	for _, line := range strings.Split(tlv.DescribeRecords(records), "\n") {
		fmt.Fprintf(&sb, "    %s\n", line)
	}
	return strings.TrimRight(sb.String(), "\n")
}
