package cak

import (
	"crypto"
	"crypto/ecdsa"
	"crypto/rand"
	"crypto/rsa"
	_ "crypto/sha256"
	_ "crypto/sha512"
	"encoding/asn1"
	"errors"
	"fmt"
	"io"
	"math/big"
)

// Digester computes message digests.
type Digester interface {
	Digest(h crypto.Hash, data []byte) ([]byte, error)
}

// Verifier checks a signature over a digest. It returns false for a signature that does
// not match, and an error when the check itself cannot run.
type Verifier interface {
	Verify(pub crypto.PublicKey, h crypto.Hash, digest, signature []byte) (bool, error)
}

// Std is the provider backed by the Go crypto packages.
type Std struct{}

// Digest implements Digester.
func (Std) Digest(h crypto.Hash, data []byte) ([]byte, error) {
	if !h.Available() {
		return nil, fmt.Errorf("hash %s not linked", h)
	}
	w := h.New()
	w.Write(data)
	return w.Sum(nil), nil
}

// Verify implements Verifier. RSA signatures are PKCS#1 v1.5, EC signatures ASN.1 DER
// encoded (r, s) pairs.
func (Std) Verify(pub crypto.PublicKey, h crypto.Hash, digest, signature []byte) (bool, error) {
	switch k := pub.(type) {
	case *rsa.PublicKey:
		if len(signature) != k.Size() {
			return false, fmt.Errorf("%w: %d bytes for a %d byte modulus", ErrMalformedSignature, len(signature), k.Size())
		}
		err := rsa.VerifyPKCS1v15(k, h, digest, signature)
		if errors.Is(err, rsa.ErrVerification) {
			return false, nil
		}
		return err == nil, err
	case *ecdsa.PublicKey:
		var sig struct{ R, S *big.Int }
		rest, err := asn1.Unmarshal(signature, &sig)
		if err != nil {
			return false, fmt.Errorf("%w: %w", ErrMalformedSignature, err)
		}
		if len(rest) > 0 {
			return false, fmt.Errorf("%w: %d trailing bytes", ErrMalformedSignature, len(rest))
		}
		return ecdsa.Verify(k, digest, sig.R, sig.S), nil
	}
	return false, fmt.Errorf("%w: %T", ErrUnsupportedKey, pub)
}

// Options supplies the crypto capabilities. Nil fields fall back to crypto/rand and Std.
type Options struct {
	Rand     io.Reader
	Digester Digester
	Verifier Verifier
}

func (o Options) rand() io.Reader {
	if o.Rand == nil {
		return rand.Reader
	}
	return o.Rand
}

func (o Options) digester() Digester {
	if o.Digester == nil {
		return Std{}
	}
	return o.Digester
}

func (o Options) verifier() Verifier {
	if o.Verifier == nil {
		return Std{}
	}
	return o.Verifier
}
