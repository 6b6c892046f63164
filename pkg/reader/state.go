package reader

// State is a step of one card read.
//
//	Idle -> Selecting -> ReadCHUID -> ReadCardAuthCert -> [PoPChallenge] -> Complete
//
// Any step may end in Error, which is terminal like Complete.
type State int

const (
	StateIdle State = iota
	StateSelecting
	StateReadCHUID
	StateReadCardAuthCert
	StatePoPChallenge
	StateComplete
	StateError
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "IDLE"
	case StateSelecting:
		return "SELECTING"
	case StateReadCHUID:
		return "READ_CHUID"
	case StateReadCardAuthCert:
		return "READ_CARD_AUTH_CERT"
	case StatePoPChallenge:
		return "POP_CHALLENGE"
	case StateComplete:
		return "COMPLETE"
	case StateError:
		return "ERROR"
	}
	return "UNKNOWN"
}

// Terminal reports whether no further step follows.
func (s State) Terminal() bool {
	return s == StateComplete || s == StateError
}
