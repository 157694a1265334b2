package binding

import "fmt"

// State is where a single binding is in its evaluation.
type State int

const (
	Unevaluated State = iota
	Evaluating
	Resolved
	Failed
)

var stateNames = [...]string{"unevaluated", "evaluating", "resolved", "failed"}

func (s State) String() string {
	if int(s) < len(stateNames) {
		return stateNames[s]
	}
	return fmt.Sprintf("State(%d)", int(s))
}

func (s State) MarshalText() ([]byte, error) { return []byte(s.String()), nil }

func (s *State) UnmarshalText(b []byte) error {
	for i, n := range stateNames {
		if n == string(b) {
			*s = State(i)
			return nil
		}
	}
	return fmt.Errorf("unknown binding state %q", b)
}
