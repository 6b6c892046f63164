package carddata

import (
	"crypto"
	"crypto/dsa"
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rsa"
	"crypto/x509"
	"encoding/binary"
	"errors"
	"fmt"

	"github.com/gregLibert/piv-reader/pkg/piv"
)

// Element is the value of one slot.
type Element interface {
	// Bytes returns the value bytes written on the wire.
	Bytes() []byte
	kind() Kind
}

// Bytes is a raw byte element: identifiers, nonces, signatures.
type Bytes []byte

func (b Bytes) Bytes() []byte { return b }
func (Bytes) kind() Kind      { return KindBytes }

// DataTemplate is an opaque BER-TLV encoded PIV object as returned by GET DATA,
// usually a '53' template.
type DataTemplate struct {
	raw []byte
}

// NewDataTemplate wraps raw object bytes. The slice is copied.
func NewDataTemplate(raw []byte) *DataTemplate {
	return &DataTemplate{raw: append([]byte(nil), raw...)}
}

func (d *DataTemplate) Bytes() []byte { return d.raw }
func (*DataTemplate) kind() Kind      { return KindTemplate }

// Data returns the content of the '53' template.
func (d *DataTemplate) Data() ([]byte, error) {
	return piv.Unwrap(d.raw)
}

// Certificate parses the object as a certificate container.
func (d *DataTemplate) Certificate() (*x509.Certificate, error) {
	c, err := piv.ParseCertificateContainer(d.raw)
	if err != nil {
		return nil, err
	}
	return c.X509()
}

// CHUID parses the object as a Card Holder Unique Identifier.
func (d *DataTemplate) CHUID() (*piv.CHUID, error) {
	return piv.ParseCHUID(d.raw)
}

// Discovery parses the object as a Discovery Object.
func (d *DataTemplate) Discovery() (*piv.Discovery, error) {
	return piv.ParseDiscovery(d.raw)
}

// PrintedInformation parses the object as Printed Information.
func (d *DataTemplate) PrintedInformation() (*piv.PrintedInformation, error) {
	return piv.ParsePrintedInformation(d.raw)
}

// KeyHistory parses the object as a Key History object.
func (d *DataTemplate) KeyHistory() (*piv.KeyHistory, error) {
	return piv.ParseKeyHistory(d.raw)
}

// KeyType is the closed set of key algorithms a key slot may hold.
type KeyType int

const (
	KeyTypeUnknown KeyType = iota
	KeyType3DES
	KeyTypeAES
	KeyTypeRSA
	KeyTypeECCP256
	KeyTypeECCP384
	KeyTypeDSA
)

// Key type markers as stored in the companion key type slots.
const (
	marker3DES    uint32 = 0
	markerAES     uint32 = 1
	markerRSA     uint32 = 2
	markerECC     uint32 = 3
	markerDSA     uint32 = 4
	markerUnknown uint32 = 0xFFFFFFFF
)

func (k KeyType) String() string {
	switch k {
	case KeyType3DES:
		return "3DES"
	case KeyTypeAES:
		return "AES"
	case KeyTypeRSA:
		return "RSA"
	case KeyTypeECCP256:
		return "ECC P-256"
	case KeyTypeECCP384:
		return "ECC P-384"
	case KeyTypeDSA:
		return "DSA"
	}
	return "unknown"
}

// Symmetric reports whether the key type is a secret key.
func (k KeyType) Symmetric() bool {
	return k == KeyType3DES || k == KeyTypeAES
}

// Marker returns the 4 byte big-endian marker written in a key type slot.
func (k KeyType) Marker() []byte {
	m := markerUnknown
	switch k {
	case KeyType3DES:
		m = marker3DES
	case KeyTypeAES:
		m = markerAES
	case KeyTypeRSA:
		m = markerRSA
	case KeyTypeECCP256, KeyTypeECCP384:
		m = markerECC
	case KeyTypeDSA:
		m = markerDSA
	}
	return binary.BigEndian.AppendUint32(nil, m)
}

// keyTypeFromMarker decodes a key type marker. The curve of an ECC marker comes from the
// key content itself.
func keyTypeFromMarker(marker, raw []byte) KeyType {
	if len(marker) != 4 {
		return KeyTypeUnknown
	}
	switch binary.BigEndian.Uint32(marker) {
	case marker3DES:
		return KeyType3DES
	case markerAES:
		return KeyTypeAES
	case markerRSA:
		return KeyTypeRSA
	case markerECC:
		return keyTypeFromPKCS8(raw)
	case markerDSA:
		return KeyTypeDSA
	}
	return KeyTypeUnknown
}

// keyTypeFromPublic maps a certificate public key to its key type.
func keyTypeFromPublic(pub crypto.PublicKey) KeyType {
	switch k := pub.(type) {
	case *rsa.PublicKey:
		return KeyTypeRSA
	case *ecdsa.PublicKey:
		return keyTypeFromCurve(k.Curve)
	case *dsa.PublicKey:
		return KeyTypeDSA
	}
	return KeyTypeUnknown
}

func keyTypeFromCurve(c elliptic.Curve) KeyType {
	switch c {
	case elliptic.P256():
		return KeyTypeECCP256
	case elliptic.P384():
		return KeyTypeECCP384
	}
	return KeyTypeUnknown
}

func keyTypeFromPKCS8(raw []byte) KeyType {
	key, err := x509.ParsePKCS8PrivateKey(raw)
	if err != nil {
		return KeyTypeUnknown
	}
	if signer, ok := key.(crypto.Signer); ok {
		return keyTypeFromPublic(signer.Public())
	}
	return KeyTypeUnknown
}

// ErrSymmetricKey is returned when asking the private key of a symmetric key element.
var ErrSymmetricKey = errors.New("carddata: symmetric key has no private key form")

// Key is a key slot element: the raw key material (a secret key, or PKCS#8 for
// asymmetric keys) and its resolved type.
type Key struct {
	Type KeyType
	Raw  []byte
}

// NewKey returns a key element. The slice is copied.
func NewKey(t KeyType, raw []byte) *Key {
	return &Key{Type: t, Raw: append([]byte(nil), raw...)}
}

func (k *Key) Bytes() []byte { return k.Raw }
func (*Key) kind() Kind      { return KindKey }

// Unresolved reports whether the key type could not be determined.
func (k *Key) Unresolved() bool {
	return k.Type == KeyTypeUnknown
}

// PrivateKey parses the PKCS#8 content of an asymmetric key.
func (k *Key) PrivateKey() (crypto.PrivateKey, error) {
	if k.Type.Symmetric() {
		return nil, ErrSymmetricKey
	}
	key, err := x509.ParsePKCS8PrivateKey(k.Raw)
	if err != nil {
		return nil, fmt.Errorf("carddata: %s key: %w", k.Type, err)
	}
	return key, nil
}
