package iso7816

import (
	"fmt"

	"github.com/gregLibert/piv-reader/pkg/bits"
)

// Class byte (CLA), ISO/IEC 7816-4 section 5.4.1.
//
//	Bit 8: proprietary (1) or interindustry (0).
//	Bit 7: first (0) or further (1) interindustry encoding.
//	Bit 5: command chaining, set on every part of a chain but the last.
//
// First interindustry (00xx xxxx): SM on bits 4-3, logical channel 0-3 on bits 2-1.
// Further interindustry (01xx xxxx): SM on bit 6, logical channel 4-19 on bits 4-1.
//
// The PIV card edge uses CLA 00, and 10 for the non-final parts of a chained
// GENERAL AUTHENTICATE.

// SecureMessaging is the secure messaging indication of an interindustry class.
type SecureMessaging int

const (
	SMNone SecureMessaging = iota
	SMProprietary
	SMHeaderNoProc
	SMHeaderAuth
)

func (sm SecureMessaging) String() string {
	switch sm {
	case SMNone:
		return "None"
	case SMProprietary:
		return "Proprietary"
	case SMHeaderNoProc:
		return "ISO (Header not processed)"
	case SMHeaderAuth:
		return "ISO (Header authenticated)"
	}
	return "Unknown"
}

// Class is a decoded CLA byte.
type Class struct {
	Raw             byte
	IsProprietary   bool
	IsChained       bool
	SecureMessaging SecureMessaging
	Channel         uint8 // 0-19
}

// NewClass decodes a CLA byte. FF is reserved for PPS.
func NewClass(cla byte) (Class, error) {
	if cla == 0xFF {
		return Class{}, fmt.Errorf("invalid CLA value: 0xFF is reserved")
	}

	c := Class{Raw: cla}
	switch {
	case bits.IsSet(cla, 8):
		c.IsProprietary = true
	case bits.IsSet(cla, 7):
		c.IsChained = bits.IsSet(cla, 5)
		if bits.IsSet(cla, 6) {
			c.SecureMessaging = SMHeaderNoProc
		}
		c.Channel = bits.GetRange(cla, 4, 1) + 4
	default:
		c.IsChained = bits.IsSet(cla, 5)
		c.SecureMessaging = SecureMessaging(bits.GetRange(cla, 4, 3))
		c.Channel = bits.GetRange(cla, 2, 1)
	}
	return c, nil
}

// WithChaining returns a copy of c with the command chaining bit set or cleared.
// Proprietary classes are returned unchanged.
func (c Class) WithChaining(chained bool) Class {
	if c.IsProprietary {
		return c
	}
	c.IsChained = chained
	if chained {
		c.Raw = bits.Set(c.Raw, 5)
	} else {
		c.Raw = bits.Clear(c.Raw, 5)
	}
	return c
}

func (c Class) String() string {
	if c.IsProprietary {
		return fmt.Sprintf("CLA %02X (proprietary)", c.Raw)
	}
	s := fmt.Sprintf("CLA %02X (channel %d, SM %s", c.Raw, c.Channel, c.SecureMessaging)
	if c.IsChained {
		s += ", chained"
	}
	return s + ")"
}
