package domain

import "fmt"

// State is a step of the booking workflow.
type State string

const (
	StateBrowsing        State = "browsing"
	StateDraftSelected   State = "draft_selected"
	StateAwaitingPayment State = "awaiting_payment"
	StateConfirmed       State = "confirmed"
	StateAbandoned       State = "abandoned"
	StateFailed          State = "failed"
)

var transitions = map[State][]State{
	StateBrowsing:        {StateDraftSelected},
	StateDraftSelected:   {StateAwaitingPayment, StateFailed},
	StateFailed:          {StateAwaitingPayment, StateFailed},
	StateAwaitingPayment: {StateConfirmed, StateAbandoned, StateFailed},
	StateConfirmed:       {StateConfirmed},
}

// CanTransition reports whether the workflow may move from s to next.
func (s State) CanTransition(next State) bool {
	for _, allowed := range transitions[s] {
		if allowed == next {
			return true
		}
	}
	return false
}

// Terminal reports whether no further transition leaves s, aside from
// repeating a confirmation.
func (s State) Terminal() bool {
	switch s {
	case StateConfirmed, StateAbandoned:
		return true
	}
	return false
}

// Transition returns next if the move is allowed.
func (s State) Transition(next State) (State, error) {
	if !s.CanTransition(next) {
		return s, fmt.Errorf("invalid booking transition %s -> %s", s, next)
	}
	return next, nil
}
