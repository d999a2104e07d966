package domain

// State is the coarse per-connection lifecycle state.
type State int

const (
	StateDisconnected State = iota
	StateConnected
	StateJoined
	StateInCall
)

func (s State) String() string {
	switch s {
	case StateConnected:
		return "connected"
	case StateJoined:
		return "joined"
	case StateInCall:
		return "in_call"
	default:
		return "disconnected"
	}
}

// StateSet is a bitmask of permitted states.
type StateSet uint8

func States(states ...State) StateSet {
	var s StateSet
	for _, st := range states {
		s |= 1 << st
	}
	return s
}

func (s StateSet) Has(st State) bool { return s&(1<<st) != 0 }
