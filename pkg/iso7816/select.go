package iso7816

import (
	"fmt"

	"github.com/gregLibert/piv-reader/pkg/bits"
)

// SELECT (INS 'A4', ISO 7816-4 section 11.2.2):
//
//	P1: selection method. The PIV card edge only answers '04', selection by DF name (AID),
//	    with the full or a right-truncated PIV AID.
//	P2: bits 4-3 response content, bits 2-1 file occurrence.

// SelectionMethod is the P1 of a SELECT.
type SelectionMethod byte

const (
	SelectByFileID   SelectionMethod = 0x00
	SelectByDFName   SelectionMethod = 0x04
	SelectPathFromMF SelectionMethod = 0x08
)

var selectionMethodNames = map[SelectionMethod]string{
	SelectByFileID:   "Select by File ID",
	SelectByDFName:   "Select by DF Name (AID)",
	SelectPathFromMF: "Select Path from MF",
}

func (s SelectionMethod) String() string {
	if name, ok := selectionMethodNames[s]; ok {
		return name
	}
	return fmt.Sprintf("Unknown Method (0x%02X)", byte(s))
}

// FileOccurrence is bits 2-1 of the P2 of a SELECT.
type FileOccurrence byte

const (
	FirstOrOnlyOccurrence FileOccurrence = 0b00
	LastOccurrence        FileOccurrence = 0b01
	NextOccurrence        FileOccurrence = 0b10
	PreviousOccurrence    FileOccurrence = 0b11
)

func (f FileOccurrence) String() string {
	return [...]string{"First/Only", "Last", "Next", "Previous"}[f&0b11]
}

// SelectionControl is bits 4-3 of the P2 of a SELECT, shifted down.
type SelectionControl byte

const (
	ReturnFCI SelectionControl = iota
	ReturnFCP
	ReturnFMD
	ReturnNoData
)

func (s SelectionControl) String() string {
	return [...]string{"Return FCI", "Return FCP", "Return FMD", "No Response Data"}[s&0b11]
}

// SelectP2 splits the P2 of a SELECT.
func SelectP2(p2 byte) (SelectionControl, FileOccurrence) {
	return SelectionControl(bits.GetRange(p2, 4, 3)), FileOccurrence(bits.GetRange(p2, 2, 1))
}

// SelectByAID selects an application by its AID, full or right-truncated.
//
// The command is case 4 with Le = 256: contactless (T=CL) and T=1 links answer with the
// application property template directly, T=0 readers turn it into '61 XX'.
func SelectByAID(cla Class, aid []byte) *CommandAPDU {
	p2 := byte(ReturnFCI)<<2 | byte(FirstOrOnlyOccurrence)
	return NewCommandAPDU(cla, MustInstruction(INS_SELECT), byte(SelectByDFName), p2, aid, MaxShortLe)
}
