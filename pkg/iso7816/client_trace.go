package iso7816

import "context"

// ClientTrace is a set of hooks run around every APDU the Client exchanges with the card,
// including the GET RESPONSE and chaining commands it issues on its own.
// Any hook may be nil.
type ClientTrace struct {
	// Transmit is called with the encoded C-APDU before it is sent.
	Transmit func(req []byte)

	// TransmitResult is called with the encoded C-APDU and the raw R-APDU (data and
	// status word) once the exchange returned, or with the transport error.
	TransmitResult func(req, resp []byte, err error)
}

type clientTraceKey struct{}

// WithClientTrace returns a context carrying trace. Hooks already present in ctx are
// still called, before the new ones.
func WithClientTrace(ctx context.Context, trace *ClientTrace) context.Context {
	if old := ContextClientTrace(ctx); old != nil {
		trace = trace.compose(old)
	}
	return context.WithValue(ctx, clientTraceKey{}, trace)
}

// ContextClientTrace returns the ClientTrace carried by ctx, or nil.
func ContextClientTrace(ctx context.Context) *ClientTrace {
	trace, _ := ctx.Value(clientTraceKey{}).(*ClientTrace)
	return trace
}

func (t *ClientTrace) compose(old *ClientTrace) *ClientTrace {
	merged := &ClientTrace{
		Transmit:       t.Transmit,
		TransmitResult: t.TransmitResult,
	}

	if old.Transmit != nil {
		next := t.Transmit
		merged.Transmit = func(req []byte) {
			old.Transmit(req)
			if next != nil {
				next(req)
			}
		}
	}

	if old.TransmitResult != nil {
		next := t.TransmitResult
		merged.TransmitResult = func(req, resp []byte, err error) {
			old.TransmitResult(req, resp, err)
			if next != nil {
				next(req, resp, err)
			}
		}
	}

	return merged
}

func (t *ClientTrace) transmit(req []byte) {
	if t != nil && t.Transmit != nil {
		t.Transmit(req)
	}
}

func (t *ClientTrace) transmitResult(req, resp []byte, err error) {
	if t != nil && t.TransmitResult != nil {
		t.TransmitResult(req, resp, err)
	}
}
