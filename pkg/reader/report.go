package reader

import (
	"time"

	"github.com/gregLibert/piv-reader/pkg/cak"
	"github.com/gregLibert/piv-reader/pkg/piv"
)

// report appends the decoded objects of the read to the trace log.
func (s *session) report() {
	now := s.cfg.Now()

	if hb := s.hb; hb != nil && len(hb.Raw) > 0 {
		s.trace.Block(hb.Describe())
	}

	if tmpl := s.data.ApplicationProperty(); tmpl != nil {
		if p, err := piv.ParseApplicationProperty(tmpl.Bytes()); err == nil {
			s.trace.Block(p.Describe())
		} else {
			s.trace.Printf("Problem with Application Property: %v", err)
		}
	}

	if tmpl := s.data.CHUID(); tmpl != nil {
		s.trace.Printf("############# BEGIN CHUID #############")
		chuid, err := tmpl.CHUID()
		if err != nil {
			s.trace.Printf("Problem with CHUID: %v", err)
		} else {
			s.trace.Block(chuid.Describe())
			if chuid.Expired(now) {
				s.trace.Printf("CHUID is expired")
			}
			s.reportCHUIDSignature(chuid, now)
		}
		s.trace.Printf("############## END CHUID ##############")
	}

	s.reportOptionalObjects()

	if s.cert == nil {
		return
	}
	s.trace.Printf("############# BEGIN CARDAUTH #############")
	s.trace.Block(piv.DescribeCertificate(s.cert, now))
	s.trace.Printf("############## END CARDAUTH ##############")

	nonce, sig := s.data.PoPNonce(), s.data.PoPSignature()
	if nonce == nil || sig == nil {
		return
	}
	s.trace.Printf("####### BEGIN PROOF OF POSSESSION ########")
	ok, err := cak.Verify(s.cert, nonce, sig, s.cfg.Crypto)
	switch {
	case err != nil:
		s.trace.Printf("Problem with Proof of Possession: %v", err)
	case ok:
		s.trace.Printf("Proof of Possession Verified!")
	default:
		s.trace.Printf("Proof of Possession Failed!")
	}
	s.trace.Printf("######## END PROOF OF POSSESSION #########")
}

// reportCHUIDSignature checks the issuer signature of the CHUID and logs its signer.
func (s *session) reportCHUIDSignature(chuid *piv.CHUID, now time.Time) {
	s.trace.Printf("Verifying CHUID Signature:")
	signer, ok, err := chuid.VerifySignature()
	if signer != nil {
		s.trace.Printf("######### BEGIN CONTENT SIGNER ########")
		s.trace.Block(piv.DescribeCertificate(signer, now))
		s.trace.Printf("######### END CONTENT SIGNER ##########")
	}
	switch {
	case err != nil:
		s.trace.Printf("Problem with Signature: %v", err)
	case ok:
		s.trace.Printf("Signature Verified!")
	default:
		s.trace.Printf("Signature Verification Failed!")
	}
}

// reportOptionalObjects decodes the discovery, printed information and key history objects
// held by the card data.
func (s *session) reportOptionalObjects() {
	if tmpl := s.data.Discovery(); tmpl != nil {
		if d, err := tmpl.Discovery(); err == nil {
			s.trace.Block(d.Describe())
		} else {
			s.trace.Printf("Problem with Discovery Object: %v", err)
		}
	}
	if tmpl := s.data.PrintedInformation(); tmpl != nil {
		if p, err := tmpl.PrintedInformation(); err == nil {
			s.trace.Block(p.Describe())
		} else {
			s.trace.Printf("Problem with Printed Information: %v", err)
		}
	}
	if tmpl := s.data.KeyHistory(); tmpl != nil {
		kh, err := tmpl.KeyHistory()
		if err != nil {
			s.trace.Printf("Problem with Key History: %v", err)
			return
		}
		s.trace.Block(kh.Describe())
		s.trace.Block(s.data.DescribeRetired(kh))
	}
}
