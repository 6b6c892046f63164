package carddata

import (
	"fmt"

	"github.com/gregLibert/piv-reader/pkg/piv"
)

// Tag is the private one-byte slot identifier. On the wire it is carried as the
// two-byte BER tag 9F<tag>.
type Tag byte

// wireTagClass is the first byte of every slot tag on the wire.
const wireTagClass = 0x9F

// Slot identifiers.
const (
	TagHistoricalBytes     Tag = 0x01
	TagCPLC                Tag = 0x02
	TagCSN                 Tag = 0x03
	TagApplicationProperty Tag = 0x04
	TagAdminKeyType        Tag = 0x05
	TagAdminKey            Tag = 0x06
	TagCCC                 Tag = 0x07
	TagCHUID               Tag = 0x08
	TagPIVAuthCert         Tag = 0x09
	TagPIVAuthKey          Tag = 0x0A
	TagFingerprints        Tag = 0x0B
	TagSecurityObject      Tag = 0x0C
	TagFacialImage         Tag = 0x0D
	TagCardAuthCert        Tag = 0x0E
	TagCardAuthKey         Tag = 0x0F
	TagCardAuthSymKeyType  Tag = 0x10
	TagCardAuthSymKey      Tag = 0x11
	TagDigSigCert          Tag = 0x12
	TagDigSigKey           Tag = 0x13
	TagKeyMgmtCert         Tag = 0x14
	TagKeyMgmtKey          Tag = 0x15
	TagPrintedInfo         Tag = 0x16
	TagDiscovery           Tag = 0x17
	TagKeyHistory          Tag = 0x18
	TagRFU                 Tag = 0x19
	TagRetiredFirst        Tag = 0x1A // certificate of retired key 1; pairs run to 0x41
	TagRetiredLast         Tag = 0x41 // private key of retired key 20
	TagIris                Tag = 0x42
	TagBITGT               Tag = 0x43
	TagSMSigner            Tag = 0x44
	TagSMKey               Tag = 0x45
	TagPairingCode         Tag = 0x46
	TagPoPNonce            Tag = 0x47
	TagPoPSignature        Tag = 0x48

	maxTag = TagPoPSignature
)

// RetiredCertTag returns the slot of retired key management certificate n (1-20).
func RetiredCertTag(n int) (Tag, error) {
	if n < 1 || n > 20 {
		return 0, fmt.Errorf("retired key management slot %d out of range 1-20", n)
	}
	return TagRetiredFirst + Tag(2*(n-1)), nil
}

// RetiredKeyTag returns the slot of retired key management private key n (1-20).
func RetiredKeyTag(n int) (Tag, error) {
	t, err := RetiredCertTag(n)
	return t + 1, err
}

// Kind is the element type a slot holds.
type Kind int

const (
	KindNone Kind = iota
	KindBytes
	KindTemplate
	KindKey
	KindKeyType
)

func (k Kind) String() string {
	switch k {
	case KindBytes:
		return "bytes"
	case KindTemplate:
		return "data template"
	case KindKey:
		return "key"
	case KindKeyType:
		return "key type"
	}
	return "none"
}

// slot describes one entry of the aggregate schema.
type slot struct {
	name string
	kind Kind
	// object is the card data object a template slot mirrors.
	object piv.Object
	// cert is the certificate slot a private key takes its type from.
	cert Tag
	// keyType is the companion slot carrying the key type marker of a symmetric key.
	keyType Tag
	// curveFromKey resolves the key type from the PKCS#8 content (secure messaging key).
	curveFromKey bool
}

var slots = buildSlots()

func buildSlots() [maxTag + 1]slot {
	var s [maxTag + 1]slot
	s[TagHistoricalBytes] = slot{name: "ATS Historical Bytes", kind: KindBytes}
	s[TagCPLC] = slot{name: "Card Production Lifecycle", kind: KindBytes}
	s[TagCSN] = slot{name: "Card Serial Number / UID", kind: KindBytes}
	s[TagApplicationProperty] = slot{name: "PIV Card Application Property", kind: KindTemplate}
	s[TagAdminKeyType] = slot{name: "PIV Admin Key Type", kind: KindKeyType}
	s[TagAdminKey] = slot{name: "PIV Admin Key", kind: KindKey, keyType: TagAdminKeyType}
	s[TagCCC] = slot{name: "Card Capability Container", kind: KindTemplate, object: piv.ObjectCardCapability}
	s[TagCHUID] = slot{name: "Card Holder Unique Identifier", kind: KindTemplate, object: piv.ObjectCHUID}
	s[TagPIVAuthCert] = slot{name: "PIV Authentication Certificate", kind: KindTemplate, object: piv.ObjectCertPIVAuth}
	s[TagPIVAuthKey] = slot{name: "PIV Authentication Key", kind: KindKey, cert: TagPIVAuthCert}
	s[TagFingerprints] = slot{name: "Cardholder Fingerprints", kind: KindTemplate, object: piv.ObjectFingerprints}
	s[TagSecurityObject] = slot{name: "Security Object", kind: KindTemplate, object: piv.ObjectSecurity}
	s[TagFacialImage] = slot{name: "Cardholder Facial Image", kind: KindTemplate, object: piv.ObjectFacialImage}
	s[TagCardAuthCert] = slot{name: "Card Authentication Certificate", kind: KindTemplate, object: piv.ObjectCertCardAuth}
	s[TagCardAuthKey] = slot{name: "Card Authentication Key", kind: KindKey, cert: TagCardAuthCert}
	s[TagCardAuthSymKeyType] = slot{name: "Card Authentication Symmetric Key Type", kind: KindKeyType}
	s[TagCardAuthSymKey] = slot{name: "Card Authentication Symmetric Key", kind: KindKey, keyType: TagCardAuthSymKeyType}
	s[TagDigSigCert] = slot{name: "Digital Signature Certificate", kind: KindTemplate, object: piv.ObjectCertSignature}
	s[TagDigSigKey] = slot{name: "Digital Signature Key", kind: KindKey, cert: TagDigSigCert}
	s[TagKeyMgmtCert] = slot{name: "Key Management Certificate", kind: KindTemplate, object: piv.ObjectCertKeyManagement}
	s[TagKeyMgmtKey] = slot{name: "Key Management Key", kind: KindKey, cert: TagKeyMgmtCert}
	s[TagPrintedInfo] = slot{name: "Printed Information", kind: KindTemplate, object: piv.ObjectPrinted}
	s[TagDiscovery] = slot{name: "Discovery Object", kind: KindTemplate, object: piv.ObjectDiscovery}
	s[TagKeyHistory] = slot{name: "Key History Object", kind: KindTemplate, object: piv.ObjectKeyHistory}
	s[TagRFU] = slot{name: "RFU", kind: KindBytes}
	for n := 1; n <= 20; n++ {
		cert := TagRetiredFirst + Tag(2*(n-1))
		obj, _ := piv.RetiredKeyManagement(n)
		s[cert] = slot{name: fmt.Sprintf("Retired KM Certificate %02d", n), kind: KindTemplate, object: obj}
		s[cert+1] = slot{name: fmt.Sprintf("Retired KM Key %02d", n), kind: KindKey, cert: cert}
	}
	s[TagIris] = slot{name: "Cardholder Iris Images", kind: KindTemplate, object: piv.ObjectIris}
	s[TagBITGT] = slot{name: "Biometric Information Templates Group Template", kind: KindTemplate, object: piv.ObjectBiometricGroup}
	s[TagSMSigner] = slot{name: "Secure Messaging Certificate Signer", kind: KindTemplate, object: piv.ObjectSecureMessaging}
	s[TagSMKey] = slot{name: "Secure Messaging Key", kind: KindKey, curveFromKey: true}
	s[TagPairingCode] = slot{name: "Pairing Code Reference Data", kind: KindTemplate, object: piv.ObjectPairingCodeRefData}
	s[TagPoPNonce] = slot{name: "CAK Proof of Possession Nonce", kind: KindBytes}
	s[TagPoPSignature] = slot{name: "CAK Proof of Possession Signature", kind: KindBytes}
	return s
}

func (t Tag) slot() slot {
	if t > maxTag {
		return slot{}
	}
	return slots[t]
}

// Defined reports whether the tag is part of the schema.
func (t Tag) Defined() bool {
	return t.slot().kind != KindNone
}

// Kind returns the element kind of the slot.
func (t Tag) Kind() Kind {
	return t.slot().kind
}

// Name returns the human readable slot name.
func (t Tag) Name() string {
	if s := t.slot(); s.kind != KindNone {
		return s.name
	}
	return fmt.Sprintf("Reserved %02X", byte(t))
}

// Object returns the card data object a template slot mirrors, or nil for slots that
// are not read from the card with GET DATA.
func (t Tag) Object() piv.Object {
	return t.slot().object
}

// WireTag returns the two byte BER tag of the slot.
func (t Tag) WireTag() []byte {
	return []byte{wireTagClass, byte(t)}
}

func (t Tag) String() string {
	return fmt.Sprintf("%02X%02X", wireTagClass, byte(t))
}
