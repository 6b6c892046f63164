package carddata

import (
	"fmt"
	"strings"

	"github.com/gregLibert/piv-reader/pkg/piv"
)

// Typed access to the slots the reader fills and the report code consumes.

// RawBytes returns the value of a bytes slot, or nil when the slot is empty.
func (c *CardData) RawBytes(tag Tag) []byte {
	if b, ok := c.elements[tag].(Bytes); ok {
		return b
	}
	return nil
}

// Template returns the data template held by a slot, or nil.
func (c *CardData) Template(tag Tag) *DataTemplate {
	if t, ok := c.elements[tag].(*DataTemplate); ok {
		return t
	}
	return nil
}

// KeyAt returns the key held by a slot, or nil.
func (c *CardData) KeyAt(tag Tag) *Key {
	if k, ok := c.elements[tag].(*Key); ok {
		return k
	}
	return nil
}

func (c *CardData) setBytes(tag Tag, b []byte) {
	if b == nil {
		delete(c.elements, tag)
		return
	}
	c.elements[tag] = Bytes(append([]byte(nil), b...))
}

func (c *CardData) setTemplate(tag Tag, raw []byte) {
	if raw == nil {
		delete(c.elements, tag)
		return
	}
	c.elements[tag] = NewDataTemplate(raw)
}

// HistoricalBytes returns the ATS historical bytes.
func (c *CardData) HistoricalBytes() []byte { return c.RawBytes(TagHistoricalBytes) }

// SetHistoricalBytes stores the ATS historical bytes.
func (c *CardData) SetHistoricalBytes(b []byte) { c.setBytes(TagHistoricalBytes, b) }

// CSN returns the card serial number or contactless UID.
func (c *CardData) CSN() []byte { return c.RawBytes(TagCSN) }

// SetCSN stores the card serial number or contactless UID.
func (c *CardData) SetCSN(b []byte) { c.setBytes(TagCSN, b) }

// CPLC returns the card production lifecycle data.
func (c *CardData) CPLC() []byte { return c.RawBytes(TagCPLC) }

// SetCPLC stores the card production lifecycle data.
func (c *CardData) SetCPLC(b []byte) { c.setBytes(TagCPLC, b) }

// ApplicationProperty returns the application property template returned by SELECT.
func (c *CardData) ApplicationProperty() *DataTemplate { return c.Template(TagApplicationProperty) }

// SetApplicationProperty stores the application property template.
func (c *CardData) SetApplicationProperty(raw []byte) { c.setTemplate(TagApplicationProperty, raw) }

// CHUID returns the Card Holder Unique Identifier object.
func (c *CardData) CHUID() *DataTemplate { return c.Template(TagCHUID) }

// SetCHUID stores the Card Holder Unique Identifier object.
func (c *CardData) SetCHUID(raw []byte) { c.setTemplate(TagCHUID, raw) }

// CardAuthCertificate returns the card authentication certificate object.
func (c *CardData) CardAuthCertificate() *DataTemplate { return c.Template(TagCardAuthCert) }

// SetCardAuthCertificate stores the card authentication certificate object.
func (c *CardData) SetCardAuthCertificate(raw []byte) { c.setTemplate(TagCardAuthCert, raw) }

// PIVAuthCertificate returns the PIV authentication certificate object.
func (c *CardData) PIVAuthCertificate() *DataTemplate { return c.Template(TagPIVAuthCert) }

// DigitalSignatureCertificate returns the digital signature certificate object.
func (c *CardData) DigitalSignatureCertificate() *DataTemplate { return c.Template(TagDigSigCert) }

// KeyManagementCertificate returns the key management certificate object.
func (c *CardData) KeyManagementCertificate() *DataTemplate { return c.Template(TagKeyMgmtCert) }

// Discovery returns the discovery object.
func (c *CardData) Discovery() *DataTemplate { return c.Template(TagDiscovery) }

// PrintedInformation returns the printed information object.
func (c *CardData) PrintedInformation() *DataTemplate { return c.Template(TagPrintedInfo) }

// KeyHistory returns the key history object.
func (c *CardData) KeyHistory() *DataTemplate { return c.Template(TagKeyHistory) }

// CardAuthKey returns the card authentication private key.
func (c *CardData) CardAuthKey() *Key { return c.KeyAt(TagCardAuthKey) }

// CardAuthSymmetricKey returns the card authentication symmetric key.
func (c *CardData) CardAuthSymmetricKey() *Key { return c.KeyAt(TagCardAuthSymKey) }

// AdminKey returns the PIV card application administration key.
func (c *CardData) AdminKey() *Key { return c.KeyAt(TagAdminKey) }

// RetiredCertificate returns retired key management certificate n (1-20).
func (c *CardData) RetiredCertificate(n int) *DataTemplate {
	tag, err := RetiredCertTag(n)
	if err != nil {
		return nil
	}
	return c.Template(tag)
}

// RetiredKey returns retired key management private key n (1-20).
func (c *CardData) RetiredKey(n int) *Key {
	tag, err := RetiredKeyTag(n)
	if err != nil {
		return nil
	}
	return c.KeyAt(tag)
}

// PoPNonce returns the nonce of the last CAK proof of possession.
func (c *CardData) PoPNonce() []byte { return c.RawBytes(TagPoPNonce) }

// PoPSignature returns the card signature of the last CAK proof of possession.
func (c *CardData) PoPSignature() []byte { return c.RawBytes(TagPoPSignature) }

// SetPoP stores the nonce and signature of a CAK proof of possession.
func (c *CardData) SetPoP(nonce, signature []byte) {
	c.setBytes(TagPoPNonce, nonce)
	c.setBytes(TagPoPSignature, signature)
}

// DescribeRetired lists the retired key management keys kh announces, with the slots of
// the aggregate that hold their certificate and private key.
func (c *CardData) DescribeRetired(kh *piv.KeyHistory) string {
	var sb strings.Builder
	sb.WriteString("=== RETIRED KEY MANAGEMENT ===")
	objs := kh.RetiredObjects()
	if len(objs) == 0 {
		sb.WriteString("\n    - None")
		return sb.String()
	}
	for i, obj := range objs {
		n := i + 1
		where := "off-card certificate"
		if kh.OnCard(n) {
			where = "on-card certificate"
		}
		fmt.Fprintf(&sb, "\n    - Retired %02d: %s, %s, certificate %s, key %s",
			n, obj, where, held(c.RetiredCertificate(n) != nil), held(c.RetiredKey(n) != nil))
	}
	return sb.String()
}

func held(ok bool) string {
	if ok {
		return "held"
	}
	return "absent"
}
