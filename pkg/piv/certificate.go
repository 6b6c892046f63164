package piv

import (
	"bytes"
	"compress/gzip"
	"crypto/ecdsa"
	"crypto/rsa"
	"crypto/x509"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/gregLibert/piv-reader/pkg/tlv"
)

// certInfoCompressed flags a gzip compressed certificate in the CertInfo byte.
const certInfoCompressed = 0x01

// maxCertificateSize bounds the inflated size of a compressed certificate.
const maxCertificateSize = 64 << 10

// CertificateContainer is the content of an X.509 certificate data object.
type CertificateContainer struct {
	Certificate []byte // DER, possibly gzip compressed
	CertInfo    byte
	MSCUID      []byte
	HasEDC      bool
}

// ParseCertificateContainer decodes a certificate data object as returned by GET DATA.
func ParseCertificateContainer(data []byte) (*CertificateContainer, error) {
	content, err := Unwrap(data)
	if err != nil {
		return nil, fmt.Errorf("certificate: %w", err)
	}
	records, err := tlv.DecodeBER(content)
	if err != nil {
		return nil, fmt.Errorf("certificate: %w", err)
	}

	c := &CertificateContainer{}
	found := false
	for _, r := range records {
		switch r.TagNumber() {
		case TagCertificate:
			c.Certificate = r.Value
			found = true
		case TagCertInfo:
			if r.Length > 0 {
				c.CertInfo = r.Value[0]
			}
		case TagMSCUID:
			c.MSCUID = r.Value
		case TagErrorDetectionCode:
			c.HasEDC = true
		}
	}
	if !found || len(c.Certificate) == 0 {
		return nil, fmt.Errorf("certificate: missing certificate (tag 70)")
	}
	return c, nil
}

// Compressed reports whether the certificate is gzip compressed.
func (c *CertificateContainer) Compressed() bool {
	return c.CertInfo&certInfoCompressed != 0
}

// DER returns the DER encoded certificate, inflating it when needed.
func (c *CertificateContainer) DER() ([]byte, error) {
	if !c.Compressed() {
		return c.Certificate, nil
	}
	zr, err := gzip.NewReader(bytes.NewReader(c.Certificate))
	if err != nil {
		return nil, fmt.Errorf("certificate: gzip: %w", err)
	}
	defer zr.Close()

	der, err := io.ReadAll(io.LimitReader(zr, maxCertificateSize+1))
	if err != nil {
		return nil, fmt.Errorf("certificate: gzip: %w", err)
	}
	if len(der) > maxCertificateSize {
		return nil, fmt.Errorf("certificate: inflated size exceeds %d bytes", maxCertificateSize)
	}
	return der, nil
}

// X509 parses the certificate.
func (c *CertificateContainer) X509() (*x509.Certificate, error) {
	der, err := c.DER()
	if err != nil {
		return nil, err
	}
	cert, err := x509.ParseCertificate(der)
	if err != nil {
		return nil, fmt.Errorf("certificate: %w", err)
	}
	return cert, nil
}

// Validity is the position of a point in time against a certificate validity period.
type Validity int

const (
	Valid Validity = iota
	NotYetValid
	Expired
)

func (v Validity) String() string {
	switch v {
	case NotYetValid:
		return "not yet valid"
	case Expired:
		return "expired"
	}
	return "valid"
}

// CheckValidity compares now with the certificate validity period.
func CheckValidity(cert *x509.Certificate, now time.Time) Validity {
	switch {
	case now.Before(cert.NotBefore):
		return NotYetValid
	case now.After(cert.NotAfter):
		return Expired
	}
	return Valid
}

// KeyDescription names the public key algorithm and size of a certificate.
func KeyDescription(cert *x509.Certificate) string {
	switch pub := cert.PublicKey.(type) {
	case *rsa.PublicKey:
		return fmt.Sprintf("RSA-%d", pub.N.BitLen())
	case *ecdsa.PublicKey:
		return fmt.Sprintf("ECDSA %s", pub.Curve.Params().Name)
	}
	return cert.PublicKeyAlgorithm.String()
}

// DescribeCertificate generates a short report of a certificate.
func DescribeCertificate(cert *x509.Certificate, now time.Time) string {
	var sb strings.Builder
	sb.WriteString("=== X.509 CERTIFICATE ===\n")
	fmt.Fprintf(&sb, "    - Subject: %s\n", cert.Subject)
	fmt.Fprintf(&sb, "    - Issuer: %s\n", cert.Issuer)
	fmt.Fprintf(&sb, "    - Serial: %X\n", cert.SerialNumber)
	fmt.Fprintf(&sb, "    - Key: %s\n", KeyDescription(cert))
	fmt.Fprintf(&sb, "    - Not Before: %s\n", cert.NotBefore.UTC().Format(time.RFC3339))
	fmt.Fprintf(&sb, "    - Not After: %s\n", cert.NotAfter.UTC().Format(time.RFC3339))
	fmt.Fprintf(&sb, "    - Status: %s", CheckValidity(cert, now))
	return sb.String()
}
