package iso7816

// GENERAL AUTHENTICATE (INS '87'):
// P1 = algorithm reference, P2 = key reference. The data field is a dynamic
// authentication template ('7C'), for a card authentication key challenge
// 7C { 82 00, 81 <challenge> }. Templates above 255 bytes (RSA-2048 challenges) are
// sent with command chaining: use Chain on the returned command.

// GeneralAuthenticate builds the (unchained) GENERAL AUTHENTICATE command.
func GeneralAuthenticate(cla Class, algorithm, keyRef byte, template []byte) *CommandAPDU {
	return NewCommandAPDU(cla, MustInstruction(INS_GENERAL_AUTHENTICATE_BER), algorithm, keyRef, template, MaxShortLe)
}
