package search

// State is the lifecycle position of one search request.
type State int

const (
	StateInit State = iota
	StateExpanding
	StateRetrieving
	StateFusing
	StateReranking
	StateDone
	StateFailed
)

var stateNames = [...]string{
	StateInit:       "INIT",
	StateExpanding:  "EXPANDING",
	StateRetrieving: "RETRIEVING",
	StateFusing:     "FUSING",
	StateReranking:  "RERANKING",
	StateDone:       "DONE",
	StateFailed:     "FAILED",
}

func (s State) String() string {
	if s < 0 || int(s) >= len(stateNames) {
		return "UNKNOWN"
	}
	return stateNames[s]
}

// MarshalText renders the state name.
func (s State) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// CanTransition reports whether to may follow s. Stages run strictly in
// order; the only failure edge leaves RETRIEVING.
func (s State) CanTransition(to State) bool {
	switch s {
	case StateInit:
		return to == StateExpanding
	case StateExpanding:
		return to == StateRetrieving
	case StateRetrieving:
		return to == StateFusing || to == StateFailed
	case StateFusing:
		return to == StateReranking
	case StateReranking:
		return to == StateDone
	default:
		return false
	}
}

// IsTerminal reports whether no further transition is possible.
func (s State) IsTerminal() bool {
	return s == StateDone || s == StateFailed
}
