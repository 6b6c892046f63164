package pivtest

import (
	"bytes"
	"crypto"
	"crypto/ecdsa"
	"crypto/rand"
	"crypto/rsa"
	"errors"
	"fmt"
	"math/big"
	"sync"
	"time"

	"github.com/gregLibert/piv-reader/pkg/iso7816"
	"github.com/gregLibert/piv-reader/pkg/piv"
	"github.com/gregLibert/piv-reader/pkg/tlv"
)

// ErrNotConnected is returned by Transmit before Connect or after Close.
var ErrNotConnected = errors.New("pivtest: card not connected")

// Card is a software PIV card. It answers SELECT, GET DATA, GET RESPONSE and
// GENERAL AUTHENTICATE with the card authentication key, following the 61XX and
// command chaining procedures.
type Card struct {
	// Historical holds the historical bytes reported by the card.
	Historical []byte
	// Objects maps the hex form of a data object tag to its GET DATA answer.
	Objects map[string][]byte
	// Key is the card authentication private key.
	Key crypto.Signer
	// ImplicitSelect makes the PIV application selected from the start.
	ImplicitSelect bool
	// ChunkSize splits answers into chunks fetched with GET RESPONSE. 0 disables it.
	ChunkSize int
	// Status forces the status word answered for an instruction.
	Status map[byte]iso7816.StatusWord
	// OnTransmit runs before every exchange with the raw command.
	OnTransmit func(cmd []byte)
	// MaxTransmit and TransmitTimeout are reported as the transport limits.
	MaxTransmit     int
	TransmitTimeout time.Duration

	mu        sync.Mutex
	connected bool
	selected  bool
	chained   []byte
	pending   []byte
	commands  [][]byte
}

// NewCard returns a card holding a CHUID and a card authentication certificate for key.
func NewCard(chuid, certObject []byte, key crypto.Signer) *Card {
	return &Card{
		Historical: HistoricalBytes(0xC0, nil),
		Objects: map[string][]byte{
			piv.ObjectCHUID.String():        chuid,
			piv.ObjectCertCardAuth.String(): certObject,
		},
		Key:         key,
		MaxTransmit: 261,
	}
}

// HistoricalBytes builds category 80 historical bytes: a status indicator record whose
// first byte is selection, then the implicitly selected AID when aid is not nil.
func HistoricalBytes(selection byte, aid []byte) []byte {
	records := []tlv.Record{mustCompact(0x3, []byte{selection})}
	if aid != nil {
		records = append(records, mustCompact(0xF, aid))
	}
	return append([]byte{0x80}, tlv.Join(records...)...)
}

func mustCompact(tag byte, value []byte) tlv.Record {
	r, err := tlv.EncodeCompact(tag, value)
	if err != nil {
		panic(err)
	}
	return r
}

// Connect powers the card.
func (c *Card) Connect() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.connected = true
	c.selected = c.ImplicitSelect
	return nil
}

// IsConnected reports whether Connect was called without a later Close.
func (c *Card) IsConnected() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.connected
}

// Close powers the card down.
func (c *Card) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.connected = false
	return nil
}

// HistoricalBytes returns the historical bytes of the card.
func (c *Card) HistoricalBytes() []byte { return c.Historical }

// MaxTransmitSize returns the largest APDU accepted.
func (c *Card) MaxTransmitSize() int { return c.MaxTransmit }

// Timeout returns the transmit timeout.
func (c *Card) Timeout() time.Duration { return c.TransmitTimeout }

// Commands returns the raw commands received so far.
func (c *Card) Commands() [][]byte {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([][]byte, len(c.commands))
	copy(out, c.commands)
	return out
}

// Transmit processes one command APDU.
func (c *Card) Transmit(cmd []byte) ([]byte, error) {
	if c.OnTransmit != nil {
		c.OnTransmit(cmd)
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.connected {
		return nil, ErrNotConnected
	}
	c.commands = append(c.commands, append([]byte(nil), cmd...))

	apdu, err := parseCommand(cmd)
	if err != nil {
		return sw(iso7816.SW_ERR_WRONG_LENGTH), nil
	}
	if forced, ok := c.Status[apdu.ins]; ok {
		return sw(forced), nil
	}

	if apdu.cla&0x10 != 0 {
		c.chained = append(c.chained, apdu.data...)
		return sw(iso7816.SW_NO_ERROR), nil
	}
	if c.chained != nil {
		apdu.data = append(c.chained, apdu.data...)
		c.chained = nil
	}

	switch apdu.ins {
	case byte(iso7816.INS_SELECT):
		return c.selectApp(apdu), nil
	case byte(iso7816.INS_GET_DATA_BER):
		return c.getData(apdu), nil
	case byte(iso7816.INS_GET_RESPONSE):
		return c.getResponse(), nil
	case byte(iso7816.INS_GENERAL_AUTHENTICATE_BER):
		return c.authenticate(apdu), nil
	}
	return sw(iso7816.SW_ERR_INS_INVALID), nil
}

func (c *Card) selectApp(apdu *command) []byte {
	if !bytes.Equal(apdu.data, piv.AID) {
		return sw(iso7816.SW_ERR_FILE_NOT_FOUND)
	}
	c.selected = true
	prop := tlv.EncodeBERTag(piv.TagApplicationProperty, tlv.Join(
		tlv.EncodeBERTag(piv.TagApplicationAID, piv.AID[5:]),
		tlv.EncodeBERTag(piv.TagAllocationAuthority, tlv.EncodeBERTag(piv.TagApplicationAID, piv.AID[:5]).Raw),
	))
	return c.respond(prop.Raw)
}

func (c *Card) getData(apdu *command) []byte {
	if !c.selected {
		return sw(iso7816.SW_ERR_FILE_NOT_FOUND)
	}
	rec, _, err := tlv.DecodeOneBER(apdu.data)
	if err != nil || !rec.HasTag(0x5C) {
		return sw(iso7816.SW_ERR_INCORRECT_PARAMS_DATA)
	}
	obj, ok := c.Objects[tlv.HexString(rec.Value)]
	if !ok {
		return sw(iso7816.SW_ERR_FILE_NOT_FOUND)
	}
	return c.respond(obj)
}

func (c *Card) getResponse() []byte {
	if len(c.pending) == 0 {
		return sw(iso7816.SW_ERR_COND_OF_USE_NOT_SAT)
	}
	data := c.pending
	c.pending = nil
	return c.respond(data)
}

func (c *Card) authenticate(apdu *command) []byte {
	if !c.selected || c.Key == nil || apdu.p2 != piv.KeyCardAuthentication {
		return sw(iso7816.SW_ERR_FILE_NOT_FOUND)
	}
	tmpl, err := piv.ParseDynamicAuthTemplate(apdu.data)
	if err != nil || len(tmpl.Challenge) == 0 {
		return sw(iso7816.SW_ERR_INCORRECT_PARAMS_DATA)
	}

	sig, err := c.sign(tmpl.Challenge)
	if err != nil {
		return sw(iso7816.SW_ERR_INCORRECT_PARAMS_DATA)
	}
	resp := tlv.EncodeBERTag(piv.TagDynamicAuthTemplate, tlv.EncodeBERTag(piv.TagResponse, sig).Raw)
	return c.respond(resp.Raw)
}

// sign applies the raw private key operation used by GENERAL AUTHENTICATE: RSA decryption
// of the padded block, or ECDSA over the supplied hash.
func (c *Card) sign(challenge []byte) ([]byte, error) {
	switch key := c.Key.(type) {
	case *rsa.PrivateKey:
		k := key.Size()
		if len(challenge) != k {
			return nil, fmt.Errorf("challenge is %d bytes, key is %d", len(challenge), k)
		}
		m := new(big.Int).SetBytes(challenge)
		s := new(big.Int).Exp(m, key.D, key.N)
		return s.FillBytes(make([]byte, k)), nil
	case *ecdsa.PrivateKey:
		return ecdsa.SignASN1(rand.Reader, key, challenge)
	}
	return nil, fmt.Errorf("unsupported key %T", c.Key)
}

// respond returns data, split into a first chunk and a 61XX trailer when ChunkSize is set.
func (c *Card) respond(data []byte) []byte {
	if c.ChunkSize <= 0 || len(data) <= c.ChunkSize {
		return append(append([]byte(nil), data...), 0x90, 0x00)
	}
	c.pending = append([]byte(nil), data[c.ChunkSize:]...)
	remaining := len(c.pending)
	if remaining > 0xFF {
		remaining = 0
	}
	out := append([]byte(nil), data[:c.ChunkSize]...)
	return append(out, 0x61, byte(remaining))
}

func sw(s iso7816.StatusWord) []byte {
	return []byte{s.SW1(), s.SW2()}
}

type command struct {
	cla, ins, p1, p2 byte
	data             []byte
}

// parseCommand decodes a short APDU header and body.
func parseCommand(raw []byte) (*command, error) {
	if len(raw) < 4 {
		return nil, fmt.Errorf("apdu too short")
	}
	c := &command{cla: raw[0], ins: raw[1], p1: raw[2], p2: raw[3]}
	body := raw[4:]
	switch {
	case len(body) <= 1:
		// case 1 or case 2
	case int(body[0])+1 == len(body) || int(body[0])+2 == len(body):
		c.data = body[1 : 1+int(body[0])]
	default:
		return nil, fmt.Errorf("inconsistent Lc")
	}
	return c, nil
}
