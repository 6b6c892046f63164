package piv

import (
	"fmt"
	"strings"

	"github.com/moov-io/bertlv"

	"github.com/gregLibert/piv-reader/pkg/tlv"
)

// ApplicationProperty is the answer to SELECT on the PIV application (tag '61').
type ApplicationProperty struct {
	AID        []byte               `tlv:"4F"`
	Label      []byte               `tlv:"50" fmt:"ascii"`
	URL        []byte               `tlv:"5F50" fmt:"ascii"`
	Authority  *AllocationAuthority `tlv:"79"`
	Algorithms AlgorithmList        `tlv:"AC"`

	Unknown []bertlv.TLV `tlv:",unknown"`
}

// AllocationAuthority carries the identifier of the authority that assigned the AID.
type AllocationAuthority struct {
	AID []byte `tlv:"4F"`
}

// AlgorithmList lists the algorithm identifiers of a cryptographic algorithms template ('AC').
type AlgorithmList []byte

// UnmarshalTLV collects every '80' entry of the template.
func (l *AlgorithmList) UnmarshalTLV(data []byte) error {
	records, err := tlv.DecodeBER(data)
	if err != nil {
		return err
	}
	out := AlgorithmList{}
	for _, r := range records {
		if r.HasTag(TagAlgorithmIdentifier) && r.Length == 1 {
			out = append(out, r.Value[0])
		}
	}
	*l = out
	return nil
}

// Names returns the readable form of each identifier.
func (l AlgorithmList) Names() []string {
	names := make([]string, 0, len(l))
	for _, id := range l {
		names = append(names, AlgorithmName(id))
	}
	return names
}

// AlgorithmName returns the name of a cryptographic mechanism identifier.
func AlgorithmName(id byte) string {
	switch id {
	case Alg3DES:
		return "3DES"
	case AlgRSA1024:
		return "RSA-1024"
	case AlgRSA2048:
		return "RSA-2048"
	case AlgRSA3072:
		return "RSA-3072"
	case AlgAES128:
		return "AES-128"
	case AlgAES192:
		return "AES-192"
	case AlgAES256:
		return "AES-256"
	case AlgECCP256:
		return "ECC P-256"
	case AlgECCP384:
		return "ECC P-384"
	}
	return fmt.Sprintf("ALG(0x%02X)", id)
}

// ParseApplicationProperty decodes the application property template returned by SELECT.
func ParseApplicationProperty(data []byte) (*ApplicationProperty, error) {
	if len(data) == 0 {
		return nil, fmt.Errorf("empty data cannot be parsed")
	}
	p := &ApplicationProperty{}
	if err := tlv.UnmarshalTemplate(data, TagApplicationProperty, p); err != nil {
		return nil, fmt.Errorf("application property: %w", err)
	}
	return p, nil
}

// Describe generates a report of the application property template.
func (p *ApplicationProperty) Describe() string {
	var sb strings.Builder
	sb.WriteString("=== PIV APPLICATION PROPERTY ===")

	tlv.WriteStructFields(&sb, "Application", p)
	if p.Authority != nil {
		tlv.WriteStructFields(&sb, "Authority", p.Authority)
	}
	if len(p.Algorithms) > 0 {
		fmt.Fprintf(&sb, "\n    - Algorithms: %s", strings.Join(p.Algorithms.Names(), ", "))
	}
	return sb.String()
}

// Discovery is the Discovery Object (tag '7E').
type Discovery struct {
	AID            []byte `tlv:"4F"`
	PINUsagePolicy []byte `tlv:"5F2F"`

	Unknown []bertlv.TLV `tlv:",unknown"`
}

// PINPolicy is the decoded PIN usage policy of the discovery object.
type PINPolicy struct {
	PIVPIN           bool // the PIV Card Application PIN satisfies access control rules
	GlobalPIN        bool
	OnCardComparison bool
	VirtualContact   bool
	GlobalPINPrimary bool
}

// ParseDiscovery decodes a Discovery Object.
func ParseDiscovery(data []byte) (*Discovery, error) {
	d := &Discovery{}
	if err := tlv.UnmarshalTemplate(data, TagDiscovery, d); err != nil {
		return nil, fmt.Errorf("discovery object: %w", err)
	}
	return d, nil
}

// Policy decodes the two bytes of the PIN usage policy.
func (d *Discovery) Policy() (PINPolicy, error) {
	if len(d.PINUsagePolicy) != 2 {
		return PINPolicy{}, fmt.Errorf("PIN usage policy: expected 2 bytes, got %d", len(d.PINUsagePolicy))
	}
	b1, b2 := d.PINUsagePolicy[0], d.PINUsagePolicy[1]
	return PINPolicy{
		PIVPIN:           b1&0x40 != 0,
		GlobalPIN:        b1&0x20 != 0,
		OnCardComparison: b1&0x10 != 0,
		VirtualContact:   b1&0x08 != 0,
		GlobalPINPrimary: b2 == 0x20,
	}, nil
}

// Describe generates a report of the discovery object.
func (d *Discovery) Describe() string {
	var sb strings.Builder
	sb.WriteString("=== PIV DISCOVERY OBJECT ===")
	tlv.WriteStructFields(&sb, "Discovery", d)
	if p, err := d.Policy(); err == nil {
		fmt.Fprintf(&sb, "\n    - Policy: PIV PIN=%t Global PIN=%t OCC=%t VCI=%t Global primary=%t",
			p.PIVPIN, p.GlobalPIN, p.OnCardComparison, p.VirtualContact, p.GlobalPINPrimary)
	}
	return sb.String()
}

// PrintedInformation is the Printed Information data object.
type PrintedInformation struct {
	Name                   string `tlv:"01"`
	EmployeeAffiliation    string `tlv:"02"`
	ExpirationDate         string `tlv:"04"`
	AgencyCardSerialNumber string `tlv:"05"`
	IssuerIdentification   string `tlv:"06"`
	OrganizationLine1      string `tlv:"07"`
	OrganizationLine2      string `tlv:"08"`

	Unknown []bertlv.TLV `tlv:",unknown"`
}

// ParsePrintedInformation decodes a Printed Information object as returned by GET DATA.
func ParsePrintedInformation(data []byte) (*PrintedInformation, error) {
	p := &PrintedInformation{}
	if err := tlv.UnmarshalTemplate(data, TagDataObject, p); err != nil {
		return nil, fmt.Errorf("printed information: %w", err)
	}
	return p, nil
}

// Describe generates a report of the printed information.
func (p *PrintedInformation) Describe() string {
	var sb strings.Builder
	sb.WriteString("=== PIV PRINTED INFORMATION ===")
	tlv.WriteStructFields(&sb, "Printed", p)
	return sb.String()
}

// KeyHistory is the Key History data object.
type KeyHistory struct {
	KeysWithOnCardCerts  uint8  `tlv:"C1"`
	KeysWithOffCardCerts uint8  `tlv:"C2"`
	OffCardCertURL       []byte `tlv:"F3" fmt:"ascii"`

	Unknown []bertlv.TLV `tlv:",unknown"`
}

// ParseKeyHistory decodes a Key History object as returned by GET DATA.
func ParseKeyHistory(data []byte) (*KeyHistory, error) {
	k := &KeyHistory{}
	if err := tlv.UnmarshalTemplate(data, TagDataObject, k); err != nil {
		return nil, fmt.Errorf("key history: %w", err)
	}
	return k, nil
}

// Retired returns the number of retired key management keys held by the card.
func (k *KeyHistory) Retired() int {
	return int(k.KeysWithOnCardCerts) + int(k.KeysWithOffCardCerts)
}

// OnCard reports whether the certificate of retired key n is stored on the card. The keys
// with on-card certificates are numbered first.
func (k *KeyHistory) OnCard(n int) bool {
	return n >= 1 && n <= int(k.KeysWithOnCardCerts)
}

// RetiredObjects returns the certificate objects of the retired keys the history announces.
func (k *KeyHistory) RetiredObjects() []Object {
	var objs []Object
	for n := 1; n <= k.Retired(); n++ {
		obj, err := RetiredKeyManagement(n)
		if err != nil {
			break
		}
		objs = append(objs, obj)
	}
	return objs
}

// Describe generates a report of the key history.
func (k *KeyHistory) Describe() string {
	var sb strings.Builder
	sb.WriteString("=== PIV KEY HISTORY ===")
	tlv.WriteStructFields(&sb, "KeyHistory", k)
	return sb.String()
}

// DynamicAuthTemplate is the dynamic authentication template ('7C') exchanged with
// GENERAL AUTHENTICATE.
type DynamicAuthTemplate struct {
	Witness   []byte `tlv:"80"`
	Challenge []byte `tlv:"81"`
	Response  []byte `tlv:"82"`
}

// ChallengeTemplate builds 7C { 82 00, 81 challenge }: an empty response placeholder
// followed by the challenge the card must sign.
func ChallengeTemplate(challenge []byte) []byte {
	inner := tlv.Join(
		tlv.EncodeBERTag(TagResponse, nil),
		tlv.EncodeBERTag(TagChallenge, challenge),
	)
	return tlv.EncodeBERTag(TagDynamicAuthTemplate, inner).Raw
}

// ParseDynamicAuthTemplate decodes the GENERAL AUTHENTICATE answer.
func ParseDynamicAuthTemplate(data []byte) (*DynamicAuthTemplate, error) {
	t := &DynamicAuthTemplate{}
	if err := tlv.UnmarshalTemplate(data, TagDynamicAuthTemplate, t); err != nil {
		return nil, fmt.Errorf("dynamic authentication template: %w", err)
	}
	return t, nil
}
