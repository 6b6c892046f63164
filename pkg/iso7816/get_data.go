package iso7816

import (
	"github.com/gregLibert/piv-reader/pkg/tlv"
)

// GET DATA (INS 'CB', ISO 7816-4 BER-TLV form):
// P1-P2 = 3F FF addresses the current application. The data field is a tag list
// '5C' L <tag> naming the data object to read, e.g. 5C 03 5F C1 02 for the PIV CHUID.
// The object comes back wrapped in its '53' template (or as a '7E' discovery object).

// GetData builds a GET DATA command for the data object identified by tag.
func GetData(cla Class, tag []byte) *CommandAPDU {
	tagList := tlv.EncodeBER([]byte{0x5C}, tag).Raw
	return NewCommandAPDU(cla, MustInstruction(INS_GET_DATA_BER), 0x3F, 0xFF, tagList, MaxShortLe)
}
