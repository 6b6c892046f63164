package piv

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/gregLibert/piv-reader/pkg/tlv"
)

// expirationLayout is the YYYYMMDD form of the CHUID expiration date.
const expirationLayout = "20060102"

// CHUID is the Card Holder Unique Identifier (SP 800-73-4 part 1, table 9).
//
// The issuer signature is a CMS SignedData blob, and may hold BER content that is not
// TLV-decodable as a tree, so the object is decoded one level deep only.
type CHUID struct {
	BufferLength    []byte
	FASCN           []byte
	OrganizationID  []byte
	DUNS            []byte
	GUID            []byte
	Expiration      []byte
	CardholderUUID  []byte
	IssuerSignature []byte
	HasEDC          bool

	Records []tlv.Record
}

// ParseCHUID decodes a CHUID as returned by GET DATA (wrapped in '53').
func ParseCHUID(data []byte) (*CHUID, error) {
	content, err := Unwrap(data)
	if err != nil {
		return nil, fmt.Errorf("CHUID: %w", err)
	}
	records, err := tlv.DecodeBER(content)
	if err != nil {
		return nil, fmt.Errorf("CHUID: %w", err)
	}

	c := &CHUID{Records: records}
	for _, r := range records {
		switch r.TagNumber() {
		case TagBufferLength:
			c.BufferLength = r.Value
		case TagFASCN:
			c.FASCN = r.Value
		case TagOrganizationID:
			c.OrganizationID = r.Value
		case TagDUNS:
			c.DUNS = r.Value
		case TagGUID:
			c.GUID = r.Value
		case TagExpirationDate:
			c.Expiration = r.Value
		case TagCardholderUUID:
			c.CardholderUUID = r.Value
		case TagIssuerSignature:
			c.IssuerSignature = r.Value
		case TagErrorDetectionCode:
			c.HasEDC = true
		}
	}

	if c.FASCN == nil {
		return nil, fmt.Errorf("CHUID: missing FASC-N (tag 30)")
	}
	return c, nil
}

// ParsedFASCN decodes the FASC-N field.
func (c *CHUID) ParsedFASCN() (*FASCN, error) {
	return ParseFASCN(c.FASCN)
}

// ParsedGUID decodes the GUID field. A GUID of all zeros means the card carries no GUID.
func (c *CHUID) ParsedGUID() (uuid.UUID, error) {
	return uuid.FromBytes(c.GUID)
}

// ParsedCardholderUUID decodes the optional cardholder UUID.
func (c *CHUID) ParsedCardholderUUID() (uuid.UUID, error) {
	if c.CardholderUUID == nil {
		return uuid.Nil, fmt.Errorf("CHUID: no cardholder UUID")
	}
	return uuid.FromBytes(c.CardholderUUID)
}

// ExpirationDate decodes the expiration date.
func (c *CHUID) ExpirationDate() (time.Time, error) {
	return time.Parse(expirationLayout, string(c.Expiration))
}

// Expired reports whether the CHUID expiration date is before now.
// An undecodable date counts as expired.
func (c *CHUID) Expired(now time.Time) bool {
	exp, err := c.ExpirationDate()
	if err != nil {
		return true
	}
	// The card stays valid through its expiration day.
	return now.After(exp.AddDate(0, 0, 1))
}

// Describe generates a report of the CHUID content.
func (c *CHUID) Describe() string {
	var sb strings.Builder
	sb.WriteString("=== PIV CHUID ===\n")

	if f, err := c.ParsedFASCN(); err == nil {
		fmt.Fprintf(&sb, "    - FASC-N: %s\n", f)
	} else {
		fmt.Fprintf(&sb, "    - FASC-N: %X (%v)\n", c.FASCN, err)
	}
	if c.OrganizationID != nil {
		fmt.Fprintf(&sb, "    - Organization ID: %q\n", tlv.MakeSafeASCII(c.OrganizationID))
	}
	if c.DUNS != nil {
		fmt.Fprintf(&sb, "    - DUNS: %q\n", tlv.MakeSafeASCII(c.DUNS))
	}
	if g, err := c.ParsedGUID(); err == nil {
		fmt.Fprintf(&sb, "    - GUID: %s\n", g)
	} else if c.GUID != nil {
		fmt.Fprintf(&sb, "    - GUID: %X\n", c.GUID)
	}
	if exp, err := c.ExpirationDate(); err == nil {
		fmt.Fprintf(&sb, "    - Expiration: %s\n", exp.Format("2006-01-02"))
	} else if c.Expiration != nil {
		fmt.Fprintf(&sb, "    - Expiration: %X (%v)\n", c.Expiration, err)
	}
	if u, err := c.ParsedCardholderUUID(); err == nil {
		fmt.Fprintf(&sb, "    - Cardholder UUID: %s\n", u)
	}
	fmt.Fprintf(&sb, "    - Issuer Signature: %d bytes", len(c.IssuerSignature))
	return sb.String()
}
