package piv

import (
	"crypto/x509"
	"errors"
	"fmt"

	"github.com/digitorus/pkcs7"

	"github.com/gregLibert/piv-reader/pkg/tlv"
)

var (
	// ErrNoSignature is returned when the CHUID carries no issuer signature.
	ErrNoSignature = errors.New("piv: CHUID has no issuer signature")
	// ErrMalformedSignature is returned when the issuer signature is not a CMS SignedData
	// with exactly one signer whose certificate is embedded.
	ErrMalformedSignature = errors.New("piv: malformed CHUID issuer signature")
)

// SignedContent returns the bytes the issuer signature covers: every record of the CHUID
// except the signature itself and the error detection code, in card order.
func (c *CHUID) SignedContent() []byte {
	var signed []tlv.Record
	for _, r := range c.Records {
		switch r.TagNumber() {
		case TagIssuerSignature, TagErrorDetectionCode:
			continue
		}
		signed = append(signed, r)
	}
	return tlv.Join(signed...)
}

// VerifySignature checks the issuer signature (tag '3E') over SignedContent.
//
// ok is false, with a nil error, when the signature does not match the content. An error
// is returned when the signature cannot be checked at all: absent, undecodable, or made
// with an algorithm the platform refuses. signer is the content signer certificate
// whenever the signature could be decoded.
func (c *CHUID) VerifySignature() (signer *x509.Certificate, ok bool, err error) {
	if len(c.IssuerSignature) == 0 {
		return nil, false, ErrNoSignature
	}

	p7, err := pkcs7.Parse(c.IssuerSignature)
	if err != nil {
		return nil, false, fmt.Errorf("%w: %w", ErrMalformedSignature, err)
	}
	signer = p7.GetOnlySigner()
	if signer == nil {
		return nil, false, fmt.Errorf("%w: %d signers, %d certificates",
			ErrMalformedSignature, len(p7.Signers), len(p7.Certificates))
	}

	p7.Content = c.SignedContent()
	if err := p7.Verify(); err != nil {
		var insecure x509.InsecureAlgorithmError
		if errors.Is(err, x509.ErrUnsupportedAlgorithm) || errors.As(err, &insecure) {
			return signer, false, fmt.Errorf("CHUID signature: %w", err)
		}
		return signer, false, nil
	}
	return signer, true, nil
}
