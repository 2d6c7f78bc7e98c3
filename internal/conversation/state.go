package conversation

import (
	"fmt"
	"sync"
)

// State is a step of the turn pipeline.
type State int

const (
	// Idle is the resting state between turns.
	Idle State = iota
	// AwaitingModel is the state while the generation call is in flight.
	AwaitingModel
	// Extracting is the state while the response is parsed.
	Extracting
	// Persisting is the state while the artifact is written.
	Persisting
	// Validating is the state while the project is built.
	Validating
	// Summarizing is the state while the user-facing summary is produced.
	Summarizing
	// ErrorSurfaced is the state after a failed write or build.
	ErrorSurfaced
)

// String returns a string representation of the state.
func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case AwaitingModel:
		return "awaiting_model"
	case Extracting:
		return "extracting"
	case Persisting:
		return "persisting"
	case Validating:
		return "validating"
	case Summarizing:
		return "summarizing"
	case ErrorSurfaced:
		return "error_surfaced"
	default:
		return fmt.Sprintf("unknown(%d)", s)
	}
}

// validTransitions lists the states reachable from each state.
var validTransitions = map[State][]State{
	Idle:          {AwaitingModel},
	AwaitingModel: {Extracting, Idle},
	Extracting:    {Persisting, Summarizing},
	Persisting:    {Validating, ErrorSurfaced},
	Validating:    {Summarizing},
	Summarizing:   {Idle, ErrorSurfaced},
	ErrorSurfaced: {Idle},
}

// CanTransition reports whether from -> to is a legal step.
func CanTransition(from, to State) bool {
	for _, s := range validTransitions[from] {
		if s == to {
			return true
		}
	}
	return false
}

// stateMachine tracks the current pipeline state.
type stateMachine struct {
	mu       sync.RWMutex
	current  State
	observer func(from, to State)
}

func newStateMachine(observer func(from, to State)) *stateMachine {
	return &stateMachine{current: Idle, observer: observer}
}

// Current returns the current state.
func (s *stateMachine) Current() State {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.current
}

// TransitionTo moves to target, failing with ErrInvalidTransition when the
// step is not in the transition table.
func (s *stateMachine) TransitionTo(target State) error {
	s.mu.Lock()
	from := s.current
	if !CanTransition(from, target) {
		s.mu.Unlock()
		return fmt.Errorf("%w: cannot transition from %s to %s", ErrInvalidTransition, from, target)
	}
	s.current = target
	s.mu.Unlock()

	if s.observer != nil {
		s.observer(from, target)
	}
	return nil
}

// settle returns the machine to Idle at the end of a turn, whatever state
// the turn stopped in.
func (s *stateMachine) settle() {
	s.mu.Lock()
	from := s.current
	s.current = Idle
	s.mu.Unlock()

	if from != Idle && s.observer != nil {
		s.observer(from, Idle)
	}
}
