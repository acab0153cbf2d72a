package chatbot

import (
	"fmt"
	"sync"
)

// State is the lifecycle position of one question/answer exchange.
type State int

const (
	StateIdle State = iota
	StateAwaitingSession
	StateAwaitingAnswer
	StateResolved
	StateFailed
	StateCanceled
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateAwaitingSession:
		return "awaiting-session"
	case StateAwaitingAnswer:
		return "awaiting-answer"
	case StateResolved:
		return "resolved"
	case StateFailed:
		return "failed"
	case StateCanceled:
		return "canceled"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// Terminal reports whether no further transition is possible.
func (s State) Terminal() bool {
	return s == StateResolved || s == StateFailed || s == StateCanceled
}

var transitions = map[State][]State{
	StateIdle:            {StateAwaitingSession, StateAwaitingAnswer, StateCanceled},
	StateAwaitingSession: {StateAwaitingAnswer, StateCanceled},
	StateAwaitingAnswer:  {StateResolved, StateFailed, StateCanceled},
}

// Outcome describes how an exchange ended.
type Outcome int

const (
	OutcomeNone Outcome = iota
	OutcomeAnswered
	OutcomeQuotaExceeded
	OutcomeUnavailable
	OutcomeCanceled
)

func (o Outcome) String() string {
	switch o {
	case OutcomeAnswered:
		return "answered"
	case OutcomeQuotaExceeded:
		return "quota-exceeded"
	case OutcomeUnavailable:
		return "unavailable"
	case OutcomeCanceled:
		return "canceled"
	default:
		return "none"
	}
}

// Exchange tracks a single submission from the moment the user message is
// appended until its placeholder is superseded.
type Exchange struct {
	ID            string
	Question      string
	UserMessageID string
	PlaceholderID string

	mu      sync.Mutex
	state   State
	outcome Outcome
	err     error
}

func newExchange(id, question, userID, placeholderID string) *Exchange {
	return &Exchange{
		ID:            id,
		Question:      question,
		UserMessageID: userID,
		PlaceholderID: placeholderID,
		state:         StateIdle,
	}
}

// State returns the current state.
func (e *Exchange) State() State {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.state
}

// Outcome returns how the exchange ended, OutcomeNone while it is running.
func (e *Exchange) Outcome() Outcome {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.outcome
}

// Err returns the error that failed the exchange, if any.
func (e *Exchange) Err() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.err
}

func (e *Exchange) transition(to State) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	for _, allowed := range transitions[e.state] {
		if allowed == to {
			e.state = to
			return nil
		}
	}
	return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, e.state, to)
}

func (e *Exchange) finish(to State, outcome Outcome, err error) error {
	if terr := e.transition(to); terr != nil {
		return terr
	}
	e.mu.Lock()
	e.outcome = outcome
	e.err = err
	e.mu.Unlock()
	return nil
}
