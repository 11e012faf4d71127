package pipeline

import "fmt"

// State is the lifecycle position of a single run.
type State string

const (
	StatePending   State = "pending"
	StateFetching  State = "fetching"
	StateParsing   State = "parsing"
	StateFiltering State = "filtering"
	StateCompleted State = "completed"
	StateFailed    State = "failed"
)

var transitions = map[State][]State{
	StatePending:   {StateFetching},
	StateFetching:  {StateParsing, StateFailed},
	StateParsing:   {StateFiltering, StateFailed},
	StateFiltering: {StateCompleted},
}

// CanTransition reports whether a run may move from s to next.
func (s State) CanTransition(next State) bool {
	for _, allowed := range transitions[s] {
		if allowed == next {
			return true
		}
	}
	return false
}

type stateMachine struct {
	current State
	history []State
}

func newStateMachine() *stateMachine {
	return &stateMachine{current: StatePending, history: []State{StatePending}}
}

func (m *stateMachine) advance(next State) error {
	if !m.current.CanTransition(next) {
		return fmt.Errorf("invalid run transition %s -> %s", m.current, next)
	}
	m.current = next
	m.history = append(m.history, next)
	return nil
}
