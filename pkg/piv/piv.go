// Package piv holds the NIST SP 800-73-4 card edge vocabulary (application identifier,
// data object identifiers, key references, algorithm identifiers) and the typed views of
// the PIV data objects read over the contactless interface.
package piv

import (
	"fmt"

	"github.com/gregLibert/piv-reader/pkg/tlv"
)

// AID is the PIV card application identifier (NIST SP 800-73-4 part 1, 2.2).
var AID = []byte{0xA0, 0x00, 0x00, 0x03, 0x08, 0x00, 0x00, 0x10, 0x00, 0x01, 0x00}

// Object identifies a PIV data object in a GET DATA tag list.
type Object []byte

// PIV data objects (SP 800-73-4 part 1, table 3).
var (
	ObjectCardCapability     = Object{0x5F, 0xC1, 0x07} // Card Capability Container
	ObjectCHUID              = Object{0x5F, 0xC1, 0x02} // Card Holder Unique Identifier
	ObjectCertPIVAuth        = Object{0x5F, 0xC1, 0x05} // X.509 certificate for key 9A
	ObjectFingerprints       = Object{0x5F, 0xC1, 0x03}
	ObjectSecurity           = Object{0x5F, 0xC1, 0x06}
	ObjectFacialImage        = Object{0x5F, 0xC1, 0x08}
	ObjectPrinted            = Object{0x5F, 0xC1, 0x09}
	ObjectCertSignature      = Object{0x5F, 0xC1, 0x0A} // X.509 certificate for key 9C
	ObjectCertKeyManagement  = Object{0x5F, 0xC1, 0x0B} // X.509 certificate for key 9D
	ObjectCertCardAuth       = Object{0x5F, 0xC1, 0x01} // X.509 certificate for key 9E
	ObjectKeyHistory         = Object{0x5F, 0xC1, 0x0C}
	ObjectIris               = Object{0x5F, 0xC1, 0x21}
	ObjectBiometricGroup     = Object{0x7F, 0x61}
	ObjectSecureMessaging    = Object{0x5F, 0xC1, 0x22}
	ObjectPairingCodeRefData = Object{0x5F, 0xC1, 0x23}
	ObjectDiscovery          = Object{0x7E}
)

// RetiredKeyManagement returns the object holding retired key management certificate n (1-20).
func RetiredKeyManagement(n int) (Object, error) {
	if n < 1 || n > 20 {
		return nil, fmt.Errorf("retired key management certificate %d out of range 1-20", n)
	}
	return Object{0x5F, 0xC1, byte(0x0C + n)}, nil
}

// String returns the hex form of the identifier.
func (o Object) String() string {
	return tlv.HexString(o)
}

// Key references (SP 800-73-4 part 1, table 4b).
const (
	KeyPIVAuthentication  byte = 0x9A
	KeyCardManagement     byte = 0x9B
	KeyDigitalSignature   byte = 0x9C
	KeyManagement         byte = 0x9D
	KeyCardAuthentication byte = 0x9E
)

// Cryptographic mechanism identifiers (SP 800-78-4, table 6-2).
const (
	Alg3DES    byte = 0x03
	AlgRSA3072 byte = 0x05
	AlgRSA1024 byte = 0x06
	AlgRSA2048 byte = 0x07
	AlgAES128  byte = 0x08
	AlgAES192  byte = 0x0A
	AlgAES256  byte = 0x0C
	AlgECCP256 byte = 0x11
	AlgECCP384 byte = 0x14
)

// Templates wrapping PIV objects and authentication exchanges.
const (
	TagDataObject           = 0x53
	TagApplicationProperty  = 0x61
	TagDiscovery            = 0x7E
	TagDynamicAuthTemplate  = 0x7C
	TagWitness              = 0x80
	TagChallenge            = 0x81
	TagResponse             = 0x82
	TagErrorDetectionCode   = 0xFE
	TagCertificate          = 0x70
	TagCertInfo             = 0x71
	TagMSCUID               = 0x72
	TagIssuerSignature      = 0x3E
	TagBufferLength         = 0xEE
	TagFASCN                = 0x30
	TagOrganizationID       = 0x32
	TagDUNS                 = 0x33
	TagGUID                 = 0x34
	TagExpirationDate       = 0x35
	TagCardholderUUID       = 0x36
	TagPINUsagePolicy       = 0x5F2F
	TagApplicationAID       = 0x4F
	TagApplicationLabel     = 0x50
	TagAllocationAuthority  = 0x79
	TagApplicationURL       = 0x5F50
	TagCryptoAlgorithms     = 0xAC
	TagAlgorithmIdentifier  = 0x80
	TagAlgorithmObjectID    = 0x06
	TagKeysWithOnCardCerts  = 0xC1
	TagKeysWithOffCardCerts = 0xC2
	TagOffCardCertURL       = 0xF3
)

// Unwrap returns the content of the '53' data object template that GET DATA answers with.
func Unwrap(data []byte) ([]byte, error) {
	rec, _, err := tlv.DecodeOneBER(data)
	if err != nil {
		return nil, fmt.Errorf("data object: %w", err)
	}
	if !rec.HasTag(TagDataObject) {
		return nil, fmt.Errorf("data object: expected tag 53, got %X", rec.Tag)
	}
	return rec.Value, nil
}
