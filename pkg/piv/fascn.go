package piv

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
)

// ErrFASCN is returned when a FASC-N does not follow the TIG SCEPACS BCD layout.
var ErrFASCN = errors.New("piv: invalid FASC-N")

// FASC-N field separators, as 4-bit values.
const (
	fascnStart     = 0xB
	fascnSeparator = 0xD
	fascnEnd       = 0xF

	fascnLen   = 25
	fascnChars = 40
)

// FASCN is the Federal Agency Smart Credential Number of a CHUID.
type FASCN struct {
	AgencyCode                string
	SystemCode                string
	CredentialNumber          string
	CredentialSeries          string
	IndividualCredentialIssue string
	PersonIdentifier          string
	OrganizationalCategory    string
	OrganizationIdentifier    string
	PersonAssociation         string
}

// fascnLayout lists the digit runs between the start sentinel and the end sentinel.
// A separator precedes the runs flagged sep.
var fascnLayout = []struct {
	digits int
	sep    bool
}{
	{4, false}, // agency code, right after SS
	{4, true},  // system code
	{6, true},  // credential number
	{1, true},  // credential series
	{1, true},  // individual credential issue
	{10, true}, // person identifier
	{1, false}, // organizational category
	{4, false}, // organization identifier
	{1, false}, // person/organization association
}

func (f *FASCN) fields() []*string {
	return []*string{
		&f.AgencyCode, &f.SystemCode, &f.CredentialNumber, &f.CredentialSeries,
		&f.IndividualCredentialIssue, &f.PersonIdentifier, &f.OrganizationalCategory,
		&f.OrganizationIdentifier, &f.PersonAssociation,
	}
}

// ParseFASCN decodes the 25 byte, 5-bit BCD form (4 data bits LSB first, odd parity).
func ParseFASCN(raw []byte) (*FASCN, error) {
	if len(raw) != fascnLen {
		return nil, fmt.Errorf("%w: expected %d bytes, got %d", ErrFASCN, fascnLen, len(raw))
	}

	chars := make([]byte, fascnChars)
	var lrc byte
	for i := range chars {
		var v, ones byte
		for b := 0; b < 5; b++ {
			pos := i*5 + b
			bit := raw[pos/8] >> (7 - pos%8) & 1
			ones += bit
			if b < 4 {
				v |= bit << b
			}
		}
		if ones%2 == 0 {
			return nil, fmt.Errorf("%w: parity error at character %d", ErrFASCN, i)
		}
		chars[i] = v
		if i < fascnChars-1 {
			lrc ^= v
		}
	}
	if lrc != chars[fascnChars-1] {
		return nil, fmt.Errorf("%w: LRC mismatch", ErrFASCN)
	}

	if chars[0] != fascnStart {
		return nil, fmt.Errorf("%w: missing start sentinel", ErrFASCN)
	}

	f := &FASCN{}
	pos := 1
	for i, run := range fascnLayout {
		if run.sep {
			if chars[pos] != fascnSeparator {
				return nil, fmt.Errorf("%w: missing field separator at character %d", ErrFASCN, pos)
			}
			pos++
		}
		var sb strings.Builder
		for j := 0; j < run.digits; j++ {
			if chars[pos] > 9 {
				return nil, fmt.Errorf("%w: non-digit at character %d", ErrFASCN, pos)
			}
			sb.WriteString(strconv.Itoa(int(chars[pos])))
			pos++
		}
		*f.fields()[i] = sb.String()
	}

	if chars[pos] != fascnEnd {
		return nil, fmt.Errorf("%w: missing end sentinel", ErrFASCN)
	}
	return f, nil
}

// Bytes encodes the FASC-N back to its 25 byte form.
func (f *FASCN) Bytes() ([]byte, error) {
	chars := []byte{fascnStart}
	for i, run := range fascnLayout {
		if run.sep {
			chars = append(chars, fascnSeparator)
		}
		val := *f.fields()[i]
		if len(val) != run.digits {
			return nil, fmt.Errorf("%w: field %d must hold %d digits", ErrFASCN, i, run.digits)
		}
		for _, c := range val {
			if c < '0' || c > '9' {
				return nil, fmt.Errorf("%w: non-digit %q", ErrFASCN, c)
			}
			chars = append(chars, byte(c-'0'))
		}
	}
	chars = append(chars, fascnEnd)

	var lrc byte
	for _, c := range chars {
		lrc ^= c
	}
	chars = append(chars, lrc)

	out := make([]byte, fascnLen)
	for i, c := range chars {
		ones := 0
		for b := 0; b < 5; b++ {
			var bit byte
			if b < 4 {
				bit = c >> b & 1
			} else if ones%2 == 0 {
				bit = 1
			}
			if bit == 1 {
				ones++
				pos := i*5 + b
				out[pos/8] |= 1 << (7 - pos%8)
			}
		}
	}
	return out, nil
}

func (f *FASCN) String() string {
	return fmt.Sprintf("%s-%s-%s-%s-%s-%s-%s-%s-%s",
		f.AgencyCode, f.SystemCode, f.CredentialNumber, f.CredentialSeries,
		f.IndividualCredentialIssue, f.PersonIdentifier, f.OrganizationalCategory,
		f.OrganizationIdentifier, f.PersonAssociation)
}
