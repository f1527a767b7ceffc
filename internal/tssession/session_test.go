package tssession

import "testing"

func TestStateString(t *testing.T) {
	cases := map[State]string{
		StateNone: "None",
		StateRunning: "Running",
		StateErrored: "Errored",
	}
	for state, want := range cases {
		if got := state.String(); got != want {
			t.Errorf("State(%d).String() = %q, want %q", state, got, want)
		}
	}
}
