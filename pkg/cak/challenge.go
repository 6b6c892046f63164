package cak

import (
	"crypto"
	"crypto/rsa"
	"crypto/x509"
	"fmt"
	"io"

	"github.com/gregLibert/piv-reader/pkg/iso7816"
	"github.com/gregLibert/piv-reader/pkg/piv"
)

// digestInfoPrefixes are the DER DigestInfo headers preceding the digest in a
// PKCS#1 v1.5 signature block (RFC 8017, section 9.2).
var digestInfoPrefixes = map[crypto.Hash][]byte{
	crypto.SHA256: {0x30, 0x31, 0x30, 0x0d, 0x06, 0x09, 0x60, 0x86, 0x48, 0x01, 0x65, 0x03, 0x04, 0x02, 0x01, 0x05, 0x00, 0x04, 0x20},
	crypto.SHA384: {0x30, 0x41, 0x30, 0x0d, 0x06, 0x09, 0x60, 0x86, 0x48, 0x01, 0x65, 0x03, 0x04, 0x02, 0x02, 0x05, 0x00, 0x04, 0x30},
}

// Challenge is one proof of possession request.
type Challenge struct {
	Class KeyClass
	// Nonce is the random value whose digest the card signs.
	Nonce []byte
	// Message is what the card applies its private key to: the padded DigestInfo block
	// for RSA, the digest for EC.
	Message []byte
}

// Generate builds a challenge for the key of the card authentication certificate.
func Generate(cert *x509.Certificate, opts Options) (*Challenge, error) {
	class, err := ClassOfCertificate(cert)
	if err != nil {
		return nil, err
	}

	nonce := make([]byte, NonceSize)
	if _, err := io.ReadFull(opts.rand(), nonce); err != nil {
		return nil, fmt.Errorf("%w: random: %w", ErrCryptoUnavailable, err)
	}

	digest, err := opts.digester().Digest(class.Hash(), nonce)
	if err != nil {
		return nil, fmt.Errorf("%w: digest: %w", ErrCryptoUnavailable, err)
	}
	if len(digest) != class.Hash().Size() {
		return nil, fmt.Errorf("%w: %s digest is %d bytes", ErrCryptoUnavailable, class.Hash(), len(digest))
	}

	message := digest
	if class.RSA() {
		message, err = pkcs1v15(class.Hash(), digest, cert.PublicKey.(*rsa.PublicKey).Size())
		if err != nil {
			return nil, err
		}
	}

	return &Challenge{Class: class, Nonce: nonce, Message: message}, nil
}

// pkcs1v15 formats 00 01 FF..FF 00 DigestInfo to k bytes.
func pkcs1v15(h crypto.Hash, digest []byte, k int) ([]byte, error) {
	prefix, ok := digestInfoPrefixes[h]
	if !ok {
		return nil, fmt.Errorf("%w: no DigestInfo for %s", ErrCryptoUnavailable, h)
	}

	tLen := len(prefix) + len(digest)
	if k < tLen+11 {
		return nil, fmt.Errorf("%w: modulus of %d bytes too short for %s", ErrUnsupportedKey, k, h)
	}

	em := make([]byte, k)
	em[1] = 0x01
	for i := 2; i < k-tLen-1; i++ {
		em[i] = 0xFF
	}
	copy(em[k-tLen:], prefix)
	copy(em[k-len(digest):], digest)
	return em, nil
}

// Template returns the dynamic authentication template 7C { 82 00, 81 message }.
func (c *Challenge) Template() []byte {
	return piv.ChallengeTemplate(c.Message)
}

// Command returns the GENERAL AUTHENTICATE command for the card authentication key,
// before chaining.
func (c *Challenge) Command(cla iso7816.Class) *iso7816.CommandAPDU {
	return iso7816.GeneralAuthenticate(cla, c.Class.Algorithm(), piv.KeyCardAuthentication, c.Template())
}

// Commands returns the GENERAL AUTHENTICATE command split for command chaining.
// RSA-2048 and larger templates do not fit a single short APDU.
func (c *Challenge) Commands(cla iso7816.Class) []*iso7816.CommandAPDU {
	return iso7816.Chain(c.Command(cla))
}

// SignatureFromResponse extracts the '82' response of a GENERAL AUTHENTICATE answer.
func SignatureFromResponse(data []byte) ([]byte, error) {
	t, err := piv.ParseDynamicAuthTemplate(data)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrMalformedSignature, err)
	}
	if len(t.Response) == 0 {
		return nil, fmt.Errorf("%w: empty response", ErrMalformedSignature)
	}
	return t.Response, nil
}

// Verify checks signature over nonce with the certificate public key, using the digest
// Generate picks for that key. A signature that does not match returns false and no
// error; an error means the check could not run.
func Verify(cert *x509.Certificate, nonce, signature []byte, opts Options) (bool, error) {
	class, err := ClassOfCertificate(cert)
	if err != nil {
		return false, err
	}
	if len(signature) == 0 {
		return false, fmt.Errorf("%w: empty signature", ErrMalformedSignature)
	}

	digest, err := opts.digester().Digest(class.Hash(), nonce)
	if err != nil {
		return false, fmt.Errorf("%w: digest: %w", ErrCryptoUnavailable, err)
	}
	return opts.verifier().Verify(cert.PublicKey, class.Hash(), digest, signature)
}
