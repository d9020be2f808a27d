package pipeline

// State identifies a phase of a speech run.
type State int

const (
	// StateIdle means the run has not started.
	StateIdle State = iota
	// StateLoadingVoice means the voice is being resolved and the backend
	// handshake is in flight.
	StateLoadingVoice
	// StateStreaming means sentences are being synthesized and played.
	StateStreaming
	// StateDraining means the input ended and the remainder is spoken.
	StateDraining
	// StateDone means the run finished.
	StateDone
	// StateFailed means the run aborted.
	StateFailed
)

// String returns the string representation of the state.
func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateLoadingVoice:
		return "loading-voice"
	case StateStreaming:
		return "streaming"
	case StateDraining:
		return "draining"
	case StateDone:
		return "done"
	case StateFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// machine guards the legal phase order of one run. Done and Failed are
// terminal.
type machine struct {
	current     State
	transitions map[State][]State
}

func newMachine() *machine {
	return &machine{
		current: StateIdle,
		transitions: map[State][]State{
			StateIdle:         {StateLoadingVoice},
			StateLoadingVoice: {StateStreaming, StateFailed},
			StateStreaming:    {StateDraining, StateFailed},
			StateDraining:     {StateDone, StateFailed},
		},
	}
}

// to attempts the transition and reports whether it was legal.
func (m *machine) to(next State) bool {
	for _, allowed := range m.transitions[m.current] {
		if allowed == next {
			m.current = next
			return true
		}
	}
	return false
}
