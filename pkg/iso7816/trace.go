package iso7816

import "bytes"

// TRANSACTION:
// One Command APDU sent by the terminal and the Response APDU the card returned.
//
// TRACE:
// The chronological list of transactions needed to fulfil one logical command:
// a chained command contributes one transaction per chunk, and each '61XX' answer adds a
// GET RESPONSE. IsSuccess() and Status() look at the final transaction, Data() rebuilds
// the full response payload.

// Transaction represents a completed Command-Response pair.
type Transaction struct {
	Command  *CommandAPDU
	Response *ResponseAPDU
}

// IsSuccess checks if the transaction ended with a successful status.
// It returns false if the response is missing.
func (t *Transaction) IsSuccess() bool {
	if t.Response == nil {
		return false
	}
	return t.Response.Status.IsSuccess()
}

// Trace is a sequence of transactions (Command-Response pairs).
type Trace []Transaction

// Last returns the final transaction of the trace, or nil when the trace is empty.
func (t Trace) Last() *Transaction {
	if len(t) == 0 {
		return nil
	}
	return &t[len(t)-1]
}

// IsSuccess checks if the final transaction in the trace was successful.
func (t Trace) IsSuccess() bool {
	last := t.Last()
	if last == nil {
		return false
	}
	return last.IsSuccess()
}

// Status returns the status word of the final transaction, or 0 when there is none.
func (t Trace) Status() StatusWord {
	last := t.Last()
	if last == nil || last.Response == nil {
		return 0
	}
	return last.Response.Status
}

// Data concatenates, in order, the response data of the transactions that belong to the
// answer: the transaction that first returned '61XX' or a final status, and every GET
// RESPONSE after it. Intermediate acknowledgements of a command chain carry no answer data
// and are skipped.
func (t Trace) Data() []byte {
	var buf bytes.Buffer
	for i, tx := range t {
		if tx.Response == nil {
			continue
		}
		isGetResponse := tx.Command != nil && tx.Command.Instruction.Raw == INS_GET_RESPONSE
		isChainPart := tx.Command != nil && tx.Command.Class.IsChained
		if isChainPart && !isGetResponse && i < len(t)-1 {
			continue
		}
		buf.Write(tx.Response.Data)
	}
	return buf.Bytes()
}
