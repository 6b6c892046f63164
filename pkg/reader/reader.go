// Package reader drives a PIV card edge over a contactless link and assembles the card data
// profile: historical bytes analysis, application selection, CHUID and card authentication
// certificate retrieval and, when enabled, the card authentication key proof of possession.
//
// A Reader runs at most one read at a time on its own goroutine. Start hands back a channel
// that receives exactly one Result; starting another read, or calling Stop, cancels the read
// in flight and closes its transport so that a blocked exchange returns.
package reader

import (
	"context"
	"sync"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/gregLibert/piv-reader/pkg/cak"
	"github.com/gregLibert/piv-reader/pkg/carddata"
)

// Transport is the card connection a read runs over.
type Transport interface {
	Connect() error
	IsConnected() bool
	Transmit(cmd []byte) ([]byte, error)
	Close() error
	// HistoricalBytes returns the historical bytes of the ATS (or ATR), possibly empty.
	HistoricalBytes() []byte
	// MaxTransmitSize is the largest APDU the link carries, 0 when unknown.
	MaxTransmitSize() int
	// Timeout is the exchange timeout enforced by the link, 0 when none.
	Timeout() time.Duration
}

// UIDReader is implemented by transports that know the contactless UID of the card.
type UIDReader interface {
	UID() ([]byte, error)
}

// Config holds the settings of a Reader.
type Config struct {
	// PoP runs the card authentication key proof of possession after the reads.
	PoP bool
	// Debug adds the decoded objects and the local PoP verification to the trace log.
	Debug bool
	// StrictHistoricalBytes fails the read on an overrunning Compact-TLV record in the
	// historical bytes instead of ignoring the rest of them.
	StrictHistoricalBytes bool

	Logger log.FieldLogger
	Crypto cak.Options
	// Now is the clock of the trace log and of validity checks. Defaults to time.Now.
	Now func() time.Time
	// OnLog, when set, receives every trace log line as it is written.
	OnLog func(line string)
}

// DefaultConfig returns the settings of the reader application: PoP on, debug off.
func DefaultConfig() Config {
	return Config{PoP: true}
}

// Result is the outcome of one read.
type Result struct {
	// CardData holds what was read, also when Err is set.
	CardData *carddata.CardData
	// Log is the trace log text.
	Log string
	// State is the last state reached: StateComplete or StateError.
	State State
	Err   error
}

// Reader reads PIV cards.
type Reader struct {
	cfg Config

	mu        sync.Mutex
	cancel    context.CancelFunc
	done      chan struct{}
	transport Transport
}

// New returns a Reader using cfg.
func New(cfg Config) *Reader {
	if cfg.Logger == nil {
		cfg.Logger = log.StandardLogger()
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	return &Reader{cfg: cfg}
}

// Start begins a read of the card behind t and returns the channel its Result is delivered
// on. A read already in flight is canceled first, and Start waits for it to finish.
func (r *Reader) Start(ctx context.Context, t Transport) <-chan Result {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.stopLocked()

	ctx, cancel := context.WithCancel(ctx)
	done := make(chan struct{})
	out := make(chan Result, 1)

	r.cancel, r.done, r.transport = cancel, done, t

	go func() {
		defer close(done)
		defer cancel()
		out <- r.run(ctx, t)
		close(out)
	}()

	return out
}

// Stop cancels the read in flight, if any, and waits for it to finish.
func (r *Reader) Stop() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.stopLocked()
}

func (r *Reader) stopLocked() {
	if r.cancel == nil {
		return
	}

	select {
	case <-r.done:
	default:
		r.cfg.Logger.Debug("canceling read in flight")
		r.cancel()
		if err := r.transport.Close(); err != nil {
			r.cfg.Logger.WithError(err).Debug("closing transport of canceled read")
		}
		<-r.done
	}

	r.cancel, r.done, r.transport = nil, nil, nil
}

// Read runs a read synchronously. It does not interact with Start and Stop.
func (r *Reader) Read(ctx context.Context, t Transport) Result {
	return r.run(ctx, t)
}

func (r *Reader) run(ctx context.Context, t Transport) Result {
	s := newSession(r.cfg, t)
	s.run(ctx)
	return Result{
		CardData: s.data,
		Log:      s.trace.String(),
		State:    s.state,
		Err:      s.err,
	}
}
