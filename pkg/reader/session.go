package reader

import (
	"context"
	"crypto/x509"
	"errors"
	"fmt"

	log "github.com/sirupsen/logrus"

	"github.com/gregLibert/piv-reader/pkg/cak"
	"github.com/gregLibert/piv-reader/pkg/carddata"
	"github.com/gregLibert/piv-reader/pkg/iso7816"
	"github.com/gregLibert/piv-reader/pkg/piv"
	"github.com/gregLibert/piv-reader/pkg/tlv"
)

const banner = "############################################"

// session is the state of one read. Only the goroutine running it touches it.
type session struct {
	cfg    Config
	t      Transport
	client *iso7816.Client
	cla    iso7816.Class
	trace  *TraceLog
	logger log.FieldLogger

	data  *carddata.CardData
	state State
	err   error

	hb   *iso7816.HistoricalBytes
	cert *x509.Certificate
}

func newSession(cfg Config, t Transport) *session {
	cla, _ := iso7816.NewClass(0x00)
	return &session{
		cfg:    cfg,
		t:      t,
		client: &iso7816.Client{Card: t, Logger: cfg.Logger},
		cla:    cla,
		trace:  newTraceLog(cfg.Now, cfg.OnLog),
		logger: cfg.Logger,
		data:   carddata.New(),
		state:  StateIdle,
	}
}

type step struct {
	state State
	run   func(ctx context.Context) error
}

func (s *session) run(ctx context.Context) {
	ctx = iso7816.WithClientTrace(ctx, s.trace.clientTrace())

	steps := []step{
		{StateIdle, s.connect},
		{StateSelecting, s.selectApplication},
		{StateReadCHUID, s.readCHUID},
		{StateReadCardAuthCert, s.readCardAuthCert},
	}
	if s.cfg.PoP {
		steps = append(steps, step{StatePoPChallenge, s.proveCardAuthKey})
	}

	for _, st := range steps {
		s.enter(st.state)
		if err := ctx.Err(); err != nil {
			s.fail(ctx, err)
			return
		}
		if err := st.run(ctx); err != nil {
			s.fail(ctx, err)
			return
		}
	}

	if s.cfg.Debug {
		s.report()
	}
	s.enter(StateComplete)
}

func (s *session) enter(state State) {
	s.state = state
	s.logger.WithField("state", state).Debug("reader state")
}

// fail aborts the read: the error is tagged with the current step and the transport closed.
func (s *session) fail(ctx context.Context, err error) {
	if ctx.Err() != nil && !errors.Is(err, ErrCanceled) {
		err = fmt.Errorf("%w: %w", ErrCanceled, err)
	}
	s.err = &StepError{State: s.state, Err: err}
	s.trace.Printf("Error: %v", s.err)
	s.logger.WithField("state", s.state).WithError(err).Warn("read aborted")

	s.state = StateError
	if cerr := s.t.Close(); cerr != nil {
		s.logger.WithError(cerr).Debug("closing transport")
	}
}

func (s *session) connect(context.Context) error {
	s.trace.Printf("800-73 Reader Initialized")
	if !s.t.IsConnected() {
		if err := s.t.Connect(); err != nil {
			return fmt.Errorf("connect: %w", err)
		}
	}
	if s.cfg.Debug {
		s.trace.Printf("Transport: max transmit %d bytes, timeout %s", s.t.MaxTransmitSize(), s.t.Timeout())
	}

	if u, ok := s.t.(UIDReader); ok {
		s.trace.Printf("[Reader] --> GET UID")
		uid, err := u.UID()
		if err != nil {
			s.trace.Printf("[Reader] <-- %v", err)
			s.logger.WithError(err).Debug("card UID unavailable")
		} else if len(uid) > 0 {
			s.trace.Printf("[Reader] <-- %s", tlv.HexString(uid))
			s.data.SetCSN(uid)
		}
	}
	return nil
}

func (s *session) selectApplication(ctx context.Context) error {
	hbRaw := s.t.HistoricalBytes()
	s.trace.Printf("############   Card Information  ###########")
	s.trace.Printf("Historical Bytes: %s", tlv.HexString(hbRaw))
	if len(hbRaw) > 0 {
		s.data.SetHistoricalBytes(hbRaw)
	}

	mode := tlv.Lenient
	if s.cfg.StrictHistoricalBytes {
		mode = tlv.Strict
	}
	hb, err := iso7816.AnalyzeHistoricalBytes(hbRaw, mode)
	if err != nil {
		return err
	}
	s.hb = hb

	if s.cfg.Debug {
		s.trace.Printf("Application Implicitly Selected: %s", yesNo(hb.ImplicitlySelected))
		if hb.ImplicitlySelected {
			aid := "Not provided"
			if hb.SelectedAID != nil {
				aid = tlv.HexString(hb.SelectedAID)
			}
			s.trace.Printf("Application Identifier: %s", aid)
		}
		s.trace.Printf("Selection by full select: %s", yesNo(hb.AllowsFullSelect))
		s.trace.Printf("Selection by partial select: %s", yesNo(hb.AllowsPartialSelect))
	}

	if hb.NeedsSelect() {
		if s.cfg.Debug {
			s.trace.Printf("Selecting PIV Card Application")
		}
		trace, err := s.client.Send(ctx, iso7816.SelectByAID(s.cla, piv.AID))
		if err != nil {
			return err
		}
		sw := trace.Status()
		s.trace.Printf("Response from select: %s%04X", tlv.HexString(trace.Data()), uint16(sw))
		if s.cfg.Debug {
			if res, err := iso7816.NewSelectResult(trace); err == nil {
				s.trace.Block(res.Describe())
			}
		}
		if sw != iso7816.SW_NO_ERROR {
			return fmt.Errorf("%w: %04X (%s)", ErrSelectionFailed, uint16(sw), sw.Verbose())
		}
		if data := trace.Data(); len(data) > 0 {
			s.data.SetApplicationProperty(data)
		}
	}
	s.trace.Printf(banner)
	return nil
}

func (s *session) readCHUID(ctx context.Context) error {
	if s.cfg.Debug {
		s.trace.Printf("Getting the CHUID")
	}
	data, err := s.getObject(ctx, piv.ObjectCHUID)
	if err != nil || data == nil {
		return err
	}
	s.data.SetCHUID(data)
	return nil
}

// readCardAuthCert stores the certificate object and keeps the parsed certificate for the
// proof of possession. An object that does not hold a certificate aborts the read.
func (s *session) readCardAuthCert(ctx context.Context) error {
	if s.cfg.Debug {
		s.trace.Printf("Checking for a Card Auth Certificate")
	}
	data, err := s.getObject(ctx, piv.ObjectCertCardAuth)
	if err != nil || data == nil {
		return err
	}
	s.data.SetCardAuthCertificate(data)

	container, err := piv.ParseCertificateContainer(data)
	if err != nil {
		return fmt.Errorf("card authentication certificate: %w", err)
	}
	cert, err := container.X509()
	if err != nil {
		return fmt.Errorf("card authentication certificate: %w", err)
	}
	s.cert = cert
	return nil
}

// proveCardAuthKey has the card sign a fresh challenge with its card authentication key.
// A crypto provider failure ends this step only; the rest of the read is kept.
func (s *session) proveCardAuthKey(ctx context.Context) error {
	if s.cert == nil {
		s.trace.Printf("No Card Authentication Certificate: proof of possession skipped")
		return nil
	}

	ch, err := cak.Generate(s.cert, s.cfg.Crypto)
	if errors.Is(err, cak.ErrCryptoUnavailable) {
		s.trace.Printf("Problem with CAK PoP Test: %v", err)
		s.logger.WithError(err).Warn("proof of possession skipped")
		return nil
	}
	if err != nil {
		return err
	}
	if s.cfg.Debug {
		s.trace.Printf("Performing CAK Proof of Possession Test (%s)", ch.Class)
	}

	op := fmt.Sprintf("GENERAL AUTHENTICATE %02X %02X", ch.Class.Algorithm(), piv.KeyCardAuthentication)
	trace, err := s.client.SendChain(ctx, ch.Commands(s.cla))
	if err != nil {
		return err
	}
	data, err := s.answer(op, trace)
	if err != nil || data == nil {
		return err
	}

	sig, err := cak.SignatureFromResponse(data)
	if err != nil {
		return &ProtocolError{Op: op, Status: trace.Status(), Err: err}
	}
	s.data.SetPoP(ch.Nonce, sig)
	s.logger.WithField("class", ch.Class).Debugf("card signature: % X", sig)
	return nil
}

// getObject reads a data object. It returns nil data for an object the card does not
// expose.
func (s *session) getObject(ctx context.Context, obj piv.Object) ([]byte, error) {
	trace, err := s.client.Send(ctx, iso7816.GetData(s.cla, obj))
	if err != nil {
		return nil, err
	}
	return s.answer("GET DATA "+obj.String(), trace)
}

// answer applies the card edge status rules to the final status of an exchange:
//   - 9000 with more than 2 data bytes: the object;
//   - 9000 with 2 bytes or less, 6A82, 6982: absent;
//   - anything else: protocol error.
//
// The 61XX continuation is already resolved by the client.
func (s *session) answer(op string, trace iso7816.Trace) ([]byte, error) {
	switch sw := trace.Status(); sw {
	case iso7816.SW_NO_ERROR:
		data := trace.Data()
		if len(data) <= 2 {
			s.trace.Printf("Response APDU is empty.")
			return nil, nil
		}
		return data, nil
	case iso7816.SW_ERR_FILE_NOT_FOUND:
		s.trace.Printf("Tag Not Found.")
		return nil, nil
	case iso7816.SW_ERR_SECURITY_STATUS_NOT_SAT:
		s.trace.Printf("Security Condition Not Satisfied")
		return nil, nil
	default:
		return nil, &ProtocolError{Op: op, Status: sw}
	}
}

func yesNo(b bool) string {
	if b {
		return "Yes"
	}
	return "No"
}
