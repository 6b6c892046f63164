/*
Package iso7816 implements the ISO/IEC 7816-4 layer of a PIV card reader: APDU encoding,
status word analysis, the transport procedures that split one logical exchange over
several APDUs, and the analysis of the historical bytes that decide whether the PIV
application needs an explicit SELECT.

# Fundamentals

The communication with a smart card is strictly synchronous:
 1. The Host sends a Command APDU (Header + Optional Body).
 2. The Card processes it and returns a Response APDU (Optional Body + Trailer SW1/SW2).

Only short APDUs are produced (Lc up to 255, Le up to 256). Larger command payloads are
split with command chaining.

# Status Words

  - 0x9000: Success (OK).
  - 0x61XX: Success, XX more bytes to fetch with GET RESPONSE (00 = 256 or more).
  - 0x6CXX: Wrong Le, XX is the correct length.
  - 0x6A82: Data object or application not found.
  - 0x6982: Security status not satisfied.

# Usage Example: reading a PIV data object

	client := iso7816.NewClient(card)
	cls, _ := iso7816.NewClass(0x00)

	trace, err := client.Send(ctx, iso7816.GetData(cls, []byte{0x5F, 0xC1, 0x02}))
	if err != nil {
	    log.Fatal(err)
	}

	// Data() holds the payload of every GET RESPONSE issued on '61XX'.
	if trace.Status() == iso7816.SW_NO_ERROR {
	    fmt.Printf("CHUID: %X\n", trace.Data())
	}

Chained commands go through Chain and SendChain:

	cmd := iso7816.GeneralAuthenticate(cls, 0x07, 0x9E, template)
	trace, err := client.SendChain(ctx, iso7816.Chain(cmd))

Hooks observing every raw APDU can be attached to the context with WithClientTrace.
*/
package iso7816
