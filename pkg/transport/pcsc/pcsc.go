// Package pcsc connects the reader to a card through a PC/SC reader.
package pcsc

import (
	"sync"
	"time"

	"github.com/ebfe/scard"
	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"

	"github.com/gregLibert/piv-reader/pkg/iso7816"
)

// MaxShortAPDU is the size of the largest short command APDU: header, Lc, 255 data bytes, Le.
const MaxShortAPDU = 261

// ErrTimeout is returned by Transmit when the card does not answer in time.
var ErrTimeout = errors.New("pcsc: transmit timeout")

// getUID is the PC/SC pseudo-APDU returning the contactless UID of the card.
var getUID = []byte{0xFF, 0xCA, 0x00, 0x00, 0x00}

// Card is a PC/SC card connection.
type Card struct {
	// ReaderName selects the reader. When empty, the first reader holding a card is used.
	ReaderName string
	// WaitTimeout bounds how long Connect waits for a card, 0 waits forever.
	WaitTimeout time.Duration
	// TransmitTimeout bounds a single exchange, 0 disables the bound.
	TransmitTimeout time.Duration
	Logger          log.FieldLogger

	mu     sync.Mutex
	ctx    *scard.Context
	card   *scard.Card
	reader string
	atr    []byte
	// transmit replaces card.Transmit when set.
	transmit func(cmd []byte) ([]byte, error)
}

// ListReaders returns the names of the PC/SC readers of the system.
func ListReaders() ([]string, error) {
	ctx, err := scard.EstablishContext()
	if err != nil {
		return nil, errors.Wrap(err, "unable to establish context")
	}
	defer func() { _ = ctx.Release() }()

	readers, err := ctx.ListReaders()
	if err != nil {
		return nil, errors.Wrap(err, "unable to list readers")
	}
	return readers, nil
}

func (c *Card) logger() log.FieldLogger {
	if c.Logger == nil {
		return log.StandardLogger()
	}
	return c.Logger
}

// Connect waits for a card and connects to it.
func (c *Card) Connect() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.card != nil {
		return nil
	}

	ctx, err := scard.EstablishContext()
	if err != nil {
		return errors.Wrap(err, "unable to establish context")
	}

	readers := []string{c.ReaderName}
	if c.ReaderName == "" {
		readers, err = ctx.ListReaders()
		if err != nil {
			_ = ctx.Release()
			return errors.Wrap(err, "unable to list readers")
		}
		if len(readers) == 0 {
			_ = ctx.Release()
			return errors.New("no smart card reader found")
		}
	}

	reader, err := waitUntilCardPresent(ctx, readers, c.WaitTimeout)
	if err != nil {
		_ = ctx.Release()
		return errors.Wrap(err, "waiting for a card")
	}

	card, err := ctx.Connect(reader, scard.ShareShared, scard.ProtocolAny)
	if err != nil {
		_ = ctx.Release()
		return errors.Wrapf(err, "unable to connect to the card in %s", reader)
	}

	status, err := card.Status()
	if err != nil {
		_ = card.Disconnect(scard.LeaveCard)
		_ = ctx.Release()
		return errors.Wrap(err, "unable to read card status")
	}

	c.ctx, c.card, c.reader, c.atr = ctx, card, reader, status.Atr
	c.logger().WithFields(log.Fields{"reader": reader, "atr": status.Atr}).Debug("card connected")
	return nil
}

func waitUntilCardPresent(ctx *scard.Context, readers []string, timeout time.Duration) (string, error) {
	rs := make([]scard.ReaderState, len(readers))
	for i := range rs {
		rs[i].Reader = readers[i]
		rs[i].CurrentState = scard.StateUnaware
	}

	wait := time.Duration(-1)
	if timeout > 0 {
		wait = timeout
	}

	for {
		if err := ctx.GetStatusChange(rs, wait); err != nil {
			return "", err
		}
		for i := range rs {
			if rs[i].EventState&scard.StatePresent != 0 {
				return rs[i].Reader, nil
			}
			rs[i].CurrentState = rs[i].EventState
		}
	}
}

// IsConnected reports whether a card is connected.
func (c *Card) IsConnected() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.card != nil
}

// Reader returns the name of the reader the card sits in.
func (c *Card) Reader() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.reader
}

// Transmit sends a command APDU and returns the response APDU.
//
// An exchange that outlives TransmitTimeout is abandoned and the connection closed, which
// unblocks it. Later exchanges fail until the next Connect.
func (c *Card) Transmit(cmd []byte) ([]byte, error) {
	c.mu.Lock()
	send := c.transmit
	if send == nil && c.card != nil {
		send = c.card.Transmit
	}
	c.mu.Unlock()

	if send == nil {
		return nil, errors.New("pcsc: card not connected")
	}
	if c.TransmitTimeout <= 0 {
		rsp, err := send(cmd)
		return rsp, errors.Wrap(err, "transmit")
	}

	type answer struct {
		rsp []byte
		err error
	}
	ch := make(chan answer, 1)
	go func() {
		rsp, err := send(cmd)
		ch <- answer{rsp, err}
	}()

	select {
	case a := <-ch:
		return a.rsp, errors.Wrap(a.err, "transmit")
	case <-time.After(c.TransmitTimeout):
		c.logger().WithField("timeout", c.TransmitTimeout).Warn("card did not answer, closing the connection")
		if err := c.Close(); err != nil {
			c.logger().WithError(err).Debug("closing after timeout")
		}
		return nil, ErrTimeout
	}
}

// Close disconnects the card and releases the PC/SC context. Closing twice is harmless.
func (c *Card) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	var err error
	if c.card != nil {
		if dErr := c.card.Disconnect(scard.LeaveCard); dErr != nil {
			err = errors.Wrap(dErr, "unable to disconnect the card")
		}
		c.card = nil
	}
	if c.ctx != nil {
		if rErr := c.ctx.Release(); rErr != nil && err == nil {
			err = errors.Wrap(rErr, "unable to release context")
		}
		c.ctx = nil
	}
	c.transmit = nil
	return err
}

// HistoricalBytes returns the historical bytes of the ATR the reader reported. Contactless
// cards are reported with a pseudo ATR carrying the historical bytes of their ATS.
func (c *Card) HistoricalBytes() []byte {
	c.mu.Lock()
	atr := c.atr
	c.mu.Unlock()

	hb, err := iso7816.ATRHistoricalBytes(atr)
	if err != nil {
		c.logger().WithError(err).WithField("atr", atr).Warn("ATR without usable historical bytes")
		return nil
	}
	return hb
}

// ATR returns the ATR of the connected card.
func (c *Card) ATR() []byte {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]byte(nil), c.atr...)
}

// MaxTransmitSize returns the short APDU limit.
func (c *Card) MaxTransmitSize() int { return MaxShortAPDU }

// Timeout returns the exchange timeout.
func (c *Card) Timeout() time.Duration { return c.TransmitTimeout }

// UID returns the contactless UID of the card, read with the PC/SC GET DATA pseudo-APDU.
func (c *Card) UID() ([]byte, error) {
	rsp, err := c.Transmit(getUID)
	if err != nil {
		return nil, err
	}

	resp, err := iso7816.ParseResponseAPDU(rsp)
	if err != nil {
		return nil, errors.Wrap(err, "GET UID")
	}
	if !resp.Status.IsSuccess() || len(resp.Data) == 0 {
		return nil, errors.Errorf("UID not available: %s", resp.Status.Verbose())
	}
	return resp.Data, nil
}
