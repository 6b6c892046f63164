package iso7816

import (
	"fmt"

	"github.com/gregLibert/piv-reader/pkg/bits"
	"github.com/gregLibert/piv-reader/pkg/tlv"
)

// ANSWER TO RESET (ISO/IEC 7816-3 section 8.2):
// TS T0 [TAi TBi TCi TDi]... T1..TK [TCK]
//
// The high nibble of T0 (Y1) flags which of TA1..TD1 follow; each TDi in turn announces
// the next group in its own high nibble. The low nibble of T0 is K, the number of
// historical bytes. PC/SC readers present a contactless card as a pseudo ATR whose
// historical bytes are those of the ATS: 3B 8n 80 01 <historical bytes> TCK.

// ATRHistoricalBytes extracts the historical bytes of an ATR.
func ATRHistoricalBytes(atr []byte) ([]byte, error) {
	if len(atr) < 2 {
		return nil, fmt.Errorf("ATR of %d bytes: %w", len(atr), tlv.ErrMalformed)
	}

	k := int(bits.GetRange(atr[1], 4, 1))
	y := bits.GetRange(atr[1], 8, 5)
	i := 2
	for {
		for n := uint(1); n <= 3; n++ { // TA, TB, TC
			if bits.IsSet(y, n) {
				i++
			}
		}
		if !bits.IsSet(y, 4) { // no TD
			break
		}
		if i >= len(atr) {
			return nil, fmt.Errorf("ATR interface bytes truncated: %w", tlv.ErrMalformed)
		}
		y = bits.GetRange(atr[i], 8, 5)
		i++
	}

	if i+k > len(atr) {
		return nil, fmt.Errorf("ATR announces %d historical bytes, %d left: %w", k, len(atr)-i, tlv.ErrMalformed)
	}
	hb := make([]byte, k)
	copy(hb, atr[i:])
	return hb, nil
}
