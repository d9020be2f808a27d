package pipeline

import "testing"

func TestStateString(t *testing.T) {
	tests := []struct {
		state    State
		expected string
	}{
		{StateIdle, "idle"},
		{StateLoadingVoice, "loading-voice"},
		{StateStreaming, "streaming"},
		{StateDraining, "draining"},
		{StateDone, "done"},
		{StateFailed, "failed"},
		{State(999), "unknown"},
	}

	for _, tt := range tests {
		t.Run(tt.expected, func(t *testing.T) {
			if got := tt.state.String(); got != tt.expected {
				t.Errorf("State.String() = %v, want %v", got, tt.expected)
			}
		})
	}
}

func TestMachineTransitions(t *testing.T) {
	tests := []struct {
		name        string
		from        State
		to          State
		shouldAllow bool
	}{
		{"idle to loading", StateIdle, StateLoadingVoice, true},
		{"loading to streaming", StateLoadingVoice, StateStreaming, true},
		{"loading to failed", StateLoadingVoice, StateFailed, true},
		{"streaming to draining", StateStreaming, StateDraining, true},
		{"streaming to failed", StateStreaming, StateFailed, true},
		{"draining to done", StateDraining, StateDone, true},
		{"draining to failed", StateDraining, StateFailed, true},

		{"idle to streaming", StateIdle, StateStreaming, false},
		{"idle to failed", StateIdle, StateFailed, false},
		{"streaming to done", StateStreaming, StateDone, false},
		{"done is terminal", StateDone, StateLoadingVoice, false},
		{"failed is terminal", StateFailed, StateLoadingVoice, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m := newMachine()
			m.current = tt.from

			if got := m.to(tt.to); got != tt.shouldAllow {
				t.Errorf("to(%v) from %v = %v, want %v", tt.to, tt.from, got, tt.shouldAllow)
			}

			if tt.shouldAllow && m.current != tt.to {
				t.Errorf("State not changed: current = %v, want %v", m.current, tt.to)
			} else if !tt.shouldAllow && m.current != tt.from {
				t.Errorf("State changed on illegal transition: current = %v, want %v", m.current, tt.from)
			}
		})
	}
}

func TestMachineFullRun(t *testing.T) {
	m := newMachine()

	for _, next := range []State{StateLoadingVoice, StateStreaming, StateDraining, StateDone} {
		if !m.to(next) {
			t.Fatalf("Expected transition to %v from %v to be legal", next, m.current)
		}
	}

	if m.to(StateLoadingVoice) {
		t.Error("Expected done to be terminal")
	}
}
