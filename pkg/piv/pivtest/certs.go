// Package pivtest provides test fixtures for PIV code: throw-away keys and certificates,
// data object builders and a software card answering the card edge commands.
package pivtest

import (
	"bytes"
	"compress/gzip"
	"crypto"
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/rsa"
	"crypto/x509"
	"crypto/x509/pkix"
	"math/big"
	"testing"
	"time"

	"github.com/digitorus/pkcs7"
	"github.com/google/uuid"

	"github.com/gregLibert/piv-reader/pkg/piv"
	"github.com/gregLibert/piv-reader/pkg/tlv"
)

// KeyKind selects the key generated by NewKey.
type KeyKind int

const (
	RSA2048 KeyKind = iota
	RSA1024
	P256
	P384
)

// NewKey generates a private key of the given kind.
func NewKey(t testing.TB, kind KeyKind) crypto.Signer {
	t.Helper()

	var (
		key crypto.Signer
		err error
	)
	switch kind {
	case RSA2048:
		key, err = rsa.GenerateKey(rand.Reader, 2048)
	case RSA1024:
		key, err = rsa.GenerateKey(rand.Reader, 1024)
	case P256:
		key, err = ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	case P384:
		key, err = ecdsa.GenerateKey(elliptic.P384(), rand.Reader)
	}
	if err != nil {
		t.Fatalf("generating key: %v", err)
	}
	return key
}

// NewCertificate issues a self-signed certificate for key, valid from notBefore for one year.
func NewCertificate(t testing.TB, key crypto.Signer, notBefore time.Time) *x509.Certificate {
	t.Helper()

	tmpl := &x509.Certificate{
		SerialNumber: big.NewInt(notBefore.Unix()),
		Subject:      pkix.Name{CommonName: "PIV Card Authentication", Organization: []string{"Test Agency"}},
		NotBefore:    notBefore,
		NotAfter:     notBefore.AddDate(1, 0, 0),
		KeyUsage:     x509.KeyUsageDigitalSignature,
	}
	der, err := x509.CreateCertificate(rand.Reader, tmpl, tmpl, key.Public(), key)
	if err != nil {
		t.Fatalf("creating certificate: %v", err)
	}
	cert, err := x509.ParseCertificate(der)
	if err != nil {
		t.Fatalf("parsing certificate: %v", err)
	}
	return cert
}

// CertificateObject wraps a DER certificate as the GET DATA answer for a certificate
// object: 53 { 70 cert, 71 info, FE }.
func CertificateObject(t testing.TB, der []byte, compress bool) []byte {
	t.Helper()

	info := byte(0x00)
	if compress {
		var buf bytes.Buffer
		zw := gzip.NewWriter(&buf)
		if _, err := zw.Write(der); err != nil {
			t.Fatalf("gzip: %v", err)
		}
		if err := zw.Close(); err != nil {
			t.Fatalf("gzip: %v", err)
		}
		der = buf.Bytes()
		info = 0x01
	}
	content := tlv.Join(
		tlv.EncodeBERTag(piv.TagCertificate, der),
		tlv.EncodeBERTag(piv.TagCertInfo, []byte{info}),
		tlv.EncodeBERTag(piv.TagErrorDetectionCode, nil),
	)
	return tlv.EncodeBERTag(piv.TagDataObject, content).Raw
}

// SampleFASCN is the FASC-N used by CHUIDObject.
var SampleFASCN = piv.FASCN{
	AgencyCode:                "9999",
	SystemCode:                "9999",
	CredentialNumber:          "999999",
	CredentialSeries:          "1",
	IndividualCredentialIssue: "1",
	PersonIdentifier:          "1234567890",
	OrganizationalCategory:    "1",
	OrganizationIdentifier:    "1223",
	PersonAssociation:         "2",
}

// SampleGUID is the GUID used by CHUIDObject.
var SampleGUID = uuid.MustParse("3fa85f64-5717-4562-b3fc-2c963f66afa6")

// CHUIDObject builds a CHUID GET DATA answer expiring on expiration. Its issuer signature
// is a placeholder that does not decode as CMS.
func CHUIDObject(t testing.TB, expiration time.Time) []byte {
	t.Helper()

	content := tlv.Join(append(chuidRecords(t, expiration),
		tlv.EncodeBERTag(piv.TagIssuerSignature, []byte{0x30, 0x03, 0x02, 0x01, 0x01}),
		tlv.EncodeBERTag(piv.TagErrorDetectionCode, nil),
	)...)
	return tlv.EncodeBERTag(piv.TagDataObject, content).Raw
}

// SignedCHUIDObject builds a CHUID GET DATA answer expiring on expiration, signed by key
// with a detached CMS SignedData that embeds cert.
func SignedCHUIDObject(t testing.TB, expiration time.Time, key crypto.Signer, cert *x509.Certificate) []byte {
	t.Helper()

	records := chuidRecords(t, expiration)
	sd, err := pkcs7.NewSignedData(tlv.Join(records...))
	if err != nil {
		t.Fatalf("CMS signed data: %v", err)
	}
	sd.SetDigestAlgorithm(pkcs7.OIDDigestAlgorithmSHA256)
	if err := sd.AddSigner(cert, key, pkcs7.SignerInfoConfig{}); err != nil {
		t.Fatalf("CMS signer: %v", err)
	}
	sd.Detach()
	sig, err := sd.Finish()
	if err != nil {
		t.Fatalf("CMS signature: %v", err)
	}

	content := tlv.Join(append(records,
		tlv.EncodeBERTag(piv.TagIssuerSignature, sig),
		tlv.EncodeBERTag(piv.TagErrorDetectionCode, nil),
	)...)
	return tlv.EncodeBERTag(piv.TagDataObject, content).Raw
}

// chuidRecords returns the signed part of a CHUID: FASC-N, GUID and expiration date.
func chuidRecords(t testing.TB, expiration time.Time) []tlv.Record {
	t.Helper()

	fascn, err := SampleFASCN.Bytes()
	if err != nil {
		t.Fatalf("encoding FASC-N: %v", err)
	}
	return []tlv.Record{
		tlv.EncodeBERTag(piv.TagFASCN, fascn),
		tlv.EncodeBERTag(piv.TagGUID, SampleGUID[:]),
		tlv.EncodeBERTag(piv.TagExpirationDate, []byte(expiration.Format("20060102"))),
	}
}
