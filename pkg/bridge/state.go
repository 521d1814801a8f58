package bridge

// State is the element lifecycle state, mirroring the pipeline's four-state
// lattice. Transitions only ever move one step at a time.
type State int

const (
	StateNull State = iota
	StateReady
	StatePaused
	StatePlaying
)

func (s State) String() string {
	switch s {
	case StateNull:
		return "NULL"
	case StateReady:
		return "READY"
	case StatePaused:
		return "PAUSED"
	case StatePlaying:
		return "PLAYING"
	}
	return "UNKNOWN"
}

// adjacent reports whether from→to is a single step on the lattice.
func adjacent(from, to State) bool {
	d := to - from
	return d == 1 || d == -1
}
