package iso7816

import (
	"testing"
)

func getDataTx(sw StatusWord, data ...byte) Transaction {
	cls, _ := NewClass(0x00)
	return Transaction{
		Command:  GetData(cls, []byte{0x5F, 0xC1, 0x02}),
		Response: &ResponseAPDU{Data: data, Status: sw},
	}
}

func TestTrace_Outcome(t *testing.T) {
	tests := []struct {
		name        string
		trace       Trace
		wantSuccess bool
		wantStatus  StatusWord
	}{
		{
			name:  "Empty",
			trace: nil,
		},
		{
			name:        "Object returned at once",
			trace:       Trace{getDataTx(SW_NO_ERROR, 0x53, 0x00)},
			wantSuccess: true,
			wantStatus:  SW_NO_ERROR,
		},
		{
			// 61XX counts as success on its own: the card holds the answer.
			name:        "Answer pending",
			trace:       Trace{getDataTx(NewStatusWord(0x61, 0x10))},
			wantSuccess: true,
			wantStatus:  NewStatusWord(0x61, 0x10),
		},
		{
			name:        "Continuation completed",
			trace:       Trace{getDataTx(NewStatusWord(0x61, 0x10)), getDataTx(SW_NO_ERROR)},
			wantSuccess: true,
			wantStatus:  SW_NO_ERROR,
		},
		{
			name:       "Object absent",
			trace:      Trace{getDataTx(SW_ERR_FILE_NOT_FOUND)},
			wantStatus: SW_ERR_FILE_NOT_FOUND,
		},
		{
			name:       "Fails on the last step",
			trace:      Trace{getDataTx(SW_NO_ERROR), getDataTx(SW_ERR_SECURITY_STATUS_NOT_SAT)},
			wantStatus: SW_ERR_SECURITY_STATUS_NOT_SAT,
		},
		{
			name:  "Response missing",
			trace: Trace{{Command: &CommandAPDU{}}},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.trace.IsSuccess(); got != tt.wantSuccess {
				t.Errorf("IsSuccess() = %v, want %v", got, tt.wantSuccess)
			}
			if got := tt.trace.Status(); got != tt.wantStatus {
				t.Errorf("Status() = %04X, want %04X", uint16(got), uint16(tt.wantStatus))
			}
			if (tt.trace.Last() == nil) != (len(tt.trace) == 0) {
				t.Errorf("Last() = %v for %d transactions", tt.trace.Last(), len(tt.trace))
			}
		})
	}
}

func TestTrace_DataAndStatus(t *testing.T) {
	cls, _ := NewClass(0x00)
	chained := NewCommandAPDU(cls.WithChaining(true), MustInstruction(INS_GENERAL_AUTHENTICATE_BER), 0x07, 0x9E, []byte{0x01}, 0)
	last := NewCommandAPDU(cls, MustInstruction(INS_GENERAL_AUTHENTICATE_BER), 0x07, 0x9E, []byte{0x02}, MaxShortLe)
	getResp := NewCommandAPDU(cls, MustInstruction(INS_GET_RESPONSE), 0, 0, nil, 2)

	tr := Trace{
		{Command: chained, Response: &ResponseAPDU{Data: []byte{0xEE}, Status: SW_NO_ERROR}},
		{Command: last, Response: &ResponseAPDU{Data: []byte{0x7C, 0x02}, Status: NewStatusWord(0x61, 0x02)}},
		{Command: getResp, Response: &ResponseAPDU{Data: []byte{0x82, 0x00}, Status: SW_NO_ERROR}},
	}

	if got := tr.Data(); string(got) != string([]byte{0x7C, 0x02, 0x82, 0x00}) {
		t.Errorf("Data() = %X, want 7C028200", got)
	}
	if tr.Status() != SW_NO_ERROR {
		t.Errorf("Status() = %04X", uint16(tr.Status()))
	}

	var empty Trace
	if empty.Status() != 0 || empty.Data() != nil {
		t.Error("empty trace should have no status and no data")
	}
}
