package iso7816

import (
	"fmt"

	"github.com/gregLibert/piv-reader/pkg/bits"
)

// Instruction Byte (INS) according to ISO/IEC 7816-4.
//
// Bit 1 of an interindustry INS selects the data field format: odd codes carry BER-TLV
// (GET DATA 'CB', GENERAL AUTHENTICATE '87'). Values 6X and 9X are reserved for status
// bytes and transport procedures and are rejected.

// InsCode is a typed representation of the instruction byte.
type InsCode byte

// Instruction codes used by the PIV card edge (NIST SP 800-73-4 part 2) and the
// transport procedures around it.
const (
	INS_VERIFY                       InsCode = 0x20
	INS_CHANGE_REFERENCE_DATA        InsCode = 0x24
	INS_RESET_RETRY_COUNTER          InsCode = 0x2C
	INS_GENERATE_ASYMMETRIC_KEY_PAIR InsCode = 0x47
	INS_GET_CHALLENGE                InsCode = 0x84
	INS_GENERAL_AUTHENTICATE         InsCode = 0x86
	INS_GENERAL_AUTHENTICATE_BER     InsCode = 0x87
	INS_SELECT                       InsCode = 0xA4
	INS_GET_RESPONSE                 InsCode = 0xC0
	INS_GET_DATA                     InsCode = 0xCA
	INS_GET_DATA_BER                 InsCode = 0xCB
	INS_PUT_DATA                     InsCode = 0xDA
	INS_PUT_DATA_BER                 InsCode = 0xDB
)

var insNames = map[InsCode]string{
	INS_VERIFY:                       "VERIFY",
	INS_CHANGE_REFERENCE_DATA:        "CHANGE REFERENCE DATA",
	INS_RESET_RETRY_COUNTER:          "RESET RETRY COUNTER",
	INS_GENERATE_ASYMMETRIC_KEY_PAIR: "GENERATE ASYMMETRIC KEY PAIR",
	INS_GET_CHALLENGE:                "GET CHALLENGE",
	INS_GENERAL_AUTHENTICATE:         "GENERAL AUTHENTICATE",
	INS_GENERAL_AUTHENTICATE_BER:     "GENERAL AUTHENTICATE",
	INS_SELECT:                       "SELECT",
	INS_GET_RESPONSE:                 "GET RESPONSE",
	INS_GET_DATA:                     "GET DATA",
	INS_GET_DATA_BER:                 "GET DATA",
	INS_PUT_DATA:                     "PUT DATA",
	INS_PUT_DATA_BER:                 "PUT DATA",
}

func (i InsCode) String() string {
	if name, ok := insNames[i]; ok {
		return name
	}
	return fmt.Sprintf("INS(0x%02X)", byte(i))
}

// Instruction represents the parsed INS byte.
type Instruction struct {
	Raw      InsCode
	IsBERTLV bool
}

// NewInstruction creates an Instruction, rejecting the reserved 6X and 9X values.
func NewInstruction(ins InsCode) (Instruction, error) {
	switch bits.HighNibble(byte(ins)) {
	case 0x6, 0x9:
		return Instruction{}, fmt.Errorf("invalid INS 0x%02X: 6X and 9X are reserved", byte(ins))
	}

	return Instruction{
		Raw:      ins,
		IsBERTLV: bits.IsSet(byte(ins), 1),
	}, nil
}

// MustInstruction is NewInstruction for the constant codes of this package. It panics on a
// reserved value.
func MustInstruction(ins InsCode) Instruction {
	i, err := NewInstruction(ins)
	if err != nil {
		panic(err)
	}
	return i
}

// Verbose returns a human-readable description of the instruction.
func (i Instruction) Verbose() string {
	format := "Standard"
	if i.IsBERTLV {
		format = "BER-TLV"
	}
	return fmt.Sprintf("INS: 0x%02X | Command: %s | Format: %s", byte(i.Raw), i.Raw, format)
}
