package session

// State is the keying state of a PeerStream.
type State int

const (
	StateUnkeyed State = iota // no cipher yet, segments are not decrypted
	StateKeyed                // seeded by a session init
)

func (s State) String() string {
	switch s {
	case StateUnkeyed:
		return "UNKEYED"
	case StateKeyed:
		return "KEYED"
	default:
		return "UNKNOWN"
	}
}
