// Package cak implements the Card Authentication Key proof of possession: a random nonce
// is digested, formatted for the card key and signed by the card through GENERAL
// AUTHENTICATE; the signature is then checked against the card authentication certificate.
//
// RSA keys sign a PKCS#1 v1.5 block built by the terminal (the card performs a raw private
// key operation), EC keys sign the digest itself.
//
//	Key class   Algorithm  Digest
//	RSA-1024    06         SHA-256
//	RSA-2048    07         SHA-256
//	RSA-3072    05         SHA-256
//	ECC P-256   11         SHA-256
//	ECC P-384   14         SHA-384
package cak

import (
	"crypto"
	"crypto/ecdsa"
	"crypto/rsa"
	"crypto/x509"
	"errors"
	"fmt"

	"github.com/gregLibert/piv-reader/pkg/piv"
)

// NonceSize is the length of the random challenge nonce (512 bits).
const NonceSize = 64

var (
	// ErrUnsupportedKey is returned when the certificate key is not one of the key classes.
	ErrUnsupportedKey = errors.New("cak: unsupported card authentication key")
	// ErrMalformedSignature is returned when a signature cannot be decoded for the key.
	ErrMalformedSignature = errors.New("cak: malformed signature")
	// ErrCryptoUnavailable wraps a failure of the random source or the digest capability.
	ErrCryptoUnavailable = errors.New("cak: crypto capability unavailable")
)

// KeyClass is the algorithm and size of a card authentication key.
type KeyClass int

const (
	RSA1024 KeyClass = iota + 1
	RSA2048
	RSA3072
	ECCP256
	ECCP384
)

func (k KeyClass) String() string {
	switch k {
	case RSA1024:
		return "RSA-1024"
	case RSA2048:
		return "RSA-2048"
	case RSA3072:
		return "RSA-3072"
	case ECCP256:
		return "ECC P-256"
	case ECCP384:
		return "ECC P-384"
	}
	return "unknown"
}

// Algorithm returns the PIV cryptographic mechanism identifier sent as P1.
func (k KeyClass) Algorithm() byte {
	switch k {
	case RSA1024:
		return piv.AlgRSA1024
	case RSA2048:
		return piv.AlgRSA2048
	case RSA3072:
		return piv.AlgRSA3072
	case ECCP256:
		return piv.AlgECCP256
	case ECCP384:
		return piv.AlgECCP384
	}
	return 0
}

// Hash returns the digest applied to the nonce.
func (k KeyClass) Hash() crypto.Hash {
	if k == ECCP384 {
		return crypto.SHA384
	}
	return crypto.SHA256
}

// RSA reports whether the class is an RSA key.
func (k KeyClass) RSA() bool {
	return k == RSA1024 || k == RSA2048 || k == RSA3072
}

// ClassOf returns the key class of a public key.
func ClassOf(pub crypto.PublicKey) (KeyClass, error) {
	switch k := pub.(type) {
	case *rsa.PublicKey:
		switch size := k.N.BitLen(); size {
		case 1024:
			return RSA1024, nil
		case 2048:
			return RSA2048, nil
		case 3072:
			return RSA3072, nil
		default:
			return 0, fmt.Errorf("%w: RSA-%d", ErrUnsupportedKey, size)
		}
	case *ecdsa.PublicKey:
		switch size := k.Curve.Params().BitSize; size {
		case 256:
			return ECCP256, nil
		case 384:
			return ECCP384, nil
		default:
			return 0, fmt.Errorf("%w: EC-%d", ErrUnsupportedKey, size)
		}
	}
	return 0, fmt.Errorf("%w: %T", ErrUnsupportedKey, pub)
}

// ClassOfCertificate returns the key class of the certificate public key.
func ClassOfCertificate(cert *x509.Certificate) (KeyClass, error) {
	if cert == nil {
		return 0, fmt.Errorf("%w: no certificate", ErrUnsupportedKey)
	}
	return ClassOf(cert.PublicKey)
}
