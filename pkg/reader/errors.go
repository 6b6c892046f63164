package reader

import (
	"errors"
	"fmt"

	"github.com/gregLibert/piv-reader/pkg/iso7816"
)

var (
	// ErrSelectionFailed is returned when SELECT of the PIV application is refused on a card
	// that does not select it implicitly.
	ErrSelectionFailed = errors.New("PIV application selection failed")
	// ErrCanceled is returned when a read is stopped before it completed.
	ErrCanceled = errors.New("read canceled")
	// ErrProtocol is the class of ProtocolError.
	ErrProtocol = errors.New("protocol error")
)

// ProtocolError reports an answer the card edge does not allow: an unexpected status word
// or a response that cannot be decoded.
type ProtocolError struct {
	// Op is the command, e.g. "GET DATA 5FC102".
	Op     string
	Status iso7816.StatusWord
	Err    error
}

func (e *ProtocolError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Op, e.Err)
	}
	return fmt.Sprintf("%s: unexpected status %04X (%s)", e.Op, uint16(e.Status), e.Status.Verbose())
}

// Unwrap exposes ErrProtocol and the underlying decoding error.
func (e *ProtocolError) Unwrap() []error {
	if e.Err != nil {
		return []error{ErrProtocol, e.Err}
	}
	return []error{ErrProtocol}
}

// StepError is the error of a read, tagged with the step it aborted.
type StepError struct {
	State State
	Err   error
}

func (e *StepError) Error() string {
	return fmt.Sprintf("%s: %v", e.State, e.Err)
}

func (e *StepError) Unwrap() error {
	return e.Err
}
