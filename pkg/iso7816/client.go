package iso7816

import (
	"context"
	"errors"
	"fmt"

	log "github.com/sirupsen/logrus"
)

// CLIENT & PROTOCOL LOGIC:
// The Client drives the card over a raw Transmitter and hides the transport procedures
// that split one logical exchange over several APDUs:
//
// 1. "61 XX" (Response Available):
//    XX more bytes wait on the card. The client sends GET RESPONSE with Le = XX
//    (Le = 256 when XX is 00) until a status other than 61XX comes back.
//
// 2. "6C XX" (Wrong Length):
//    The client re-sends the original command once with Le = XX.
//
// 3. Command chaining:
//    A payload above 255 bytes is split by Chain; SendChain sends every part and
//    requires 9000 on each intermediate part.
//
// Every call returns the Trace of the APDUs actually exchanged. The context is checked
// before each exchange, so cancellation takes effect between two APDUs.

// maxResponseParts bounds the GET RESPONSE loop against a card that never stops answering 61XX.
const maxResponseParts = 256

// ErrChaining is returned when an intermediate part of a command chain is refused.
var ErrChaining = errors.New("command chaining rejected")

// Transmitter abstracts the physical card connection.
type Transmitter interface {
	Transmit(cmd []byte) ([]byte, error)
}

// Client manages the high-level communication with the card.
type Client struct {
	Card   Transmitter
	Logger log.FieldLogger
}

// NewClient creates a new Client instance logging through the standard logrus logger.
func NewClient(card Transmitter) *Client {
	return &Client{Card: card, Logger: log.StandardLogger()}
}

// Send transmits a command and follows the 61XX and 6CXX procedures.
func (c *Client) Send(ctx context.Context, cmd *CommandAPDU) (Trace, error) {
	resp, err := c.exchange(ctx, cmd)
	if err != nil {
		return nil, err
	}
	trace := Trace{{Command: cmd, Response: resp}}

	if resp.Status.SW1() == 0x6C {
		retry := *cmd
		retry.Ne = int(resp.Status.SW2())
		if retry.Ne == 0 {
			retry.Ne = MaxShortLe
		}

		resp, err = c.exchange(ctx, &retry)
		if err != nil {
			return trace, err
		}
		trace = append(trace, Transaction{Command: &retry, Response: resp})
	}

	return c.collect(ctx, cmd, trace)
}

// SendChain transmits the parts of a chained command in order. Intermediate parts must
// be acknowledged with 9000; the last part is sent through Send.
func (c *Client) SendChain(ctx context.Context, cmds []*CommandAPDU) (Trace, error) {
	if len(cmds) == 0 {
		return nil, fmt.Errorf("empty command chain")
	}

	var trace Trace
	for i, cmd := range cmds[:len(cmds)-1] {
		resp, err := c.exchange(ctx, cmd)
		if err != nil {
			return trace, err
		}
		trace = append(trace, Transaction{Command: cmd, Response: resp})

		if resp.Status != SW_NO_ERROR {
			return trace, fmt.Errorf("%w: part %d/%d: %w", ErrChaining, i+1, len(cmds),
				&StatusError{Command: cmd.Instruction.Raw.String(), Status: resp.Status})
		}
	}

	tail, err := c.Send(ctx, cmds[len(cmds)-1])
	trace = append(trace, tail...)
	return trace, err
}

// collect issues GET RESPONSE while the last status of trace is 61XX.
func (c *Client) collect(ctx context.Context, origin *CommandAPDU, trace Trace) (Trace, error) {
	// GET RESPONSE stays on the logical channel of the original command.
	cls := origin.Class.WithChaining(false)
	ins := MustInstruction(INS_GET_RESPONSE)

	for parts := 0; trace.Status().IsMoreData(); parts++ {
		if parts >= maxResponseParts {
			return trace, fmt.Errorf("card announced more data after %d GET RESPONSE", parts)
		}

		ne := int(trace.Status().SW2())
		if ne == 0 {
			ne = MaxShortLe
		}
		getResp := NewCommandAPDU(cls, ins, 0x00, 0x00, nil, ne)

		resp, err := c.exchange(ctx, getResp)
		if err != nil {
			return trace, err
		}
		trace = append(trace, Transaction{Command: getResp, Response: resp})
	}

	return trace, nil
}

// exchange performs one APDU round trip.
func (c *Client) exchange(ctx context.Context, cmd *CommandAPDU) (*ResponseAPDU, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	rawCmd, err := cmd.Bytes()
	if err != nil {
		return nil, fmt.Errorf("encoding error: %w", err)
	}

	hooks := ContextClientTrace(ctx)
	hooks.transmit(rawCmd)
	c.logger().Debugf("--> % X", rawCmd)

	rawResp, err := c.Card.Transmit(rawCmd)
	hooks.transmitResult(rawCmd, rawResp, err)
	if err != nil {
		return nil, fmt.Errorf("transmission error: %w", err)
	}
	c.logger().Debugf("<-- % X", rawResp)

	return ParseResponseAPDU(rawResp)
}

func (c *Client) logger() log.FieldLogger {
	if c.Logger == nil {
		return log.StandardLogger()
	}
	return c.Logger
}

// Chain splits cmd into short APDUs of at most MaxShortLc data bytes. Every part but the
// last carries the chaining bit and no Le; the last part carries the original class and an
// explicit Le (256 when cmd.Ne is 0). A command that already fits is returned unchanged.
func Chain(cmd *CommandAPDU) []*CommandAPDU {
	if len(cmd.Data) <= MaxShortLc {
		return []*CommandAPDU{cmd}
	}

	var parts []*CommandAPDU
	data := cmd.Data
	for len(data) > MaxShortLc {
		parts = append(parts, NewCommandAPDU(cmd.Class.WithChaining(true), cmd.Instruction,
			cmd.P1, cmd.P2, data[:MaxShortLc], 0))
		data = data[MaxShortLc:]
	}

	ne := cmd.Ne
	if ne == 0 {
		ne = MaxShortLe
	}
	parts = append(parts, NewCommandAPDU(cmd.Class.WithChaining(false), cmd.Instruction,
		cmd.P1, cmd.P2, data, ne))

	return parts
}
