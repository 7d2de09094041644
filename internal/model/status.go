package model

import (
	"errors"
	"fmt"
)

// Status is the lifecycle state of a reservation.
type Status string

const (
	StatusValid     Status = "VALID"
	StatusCancelled Status = "CANCELLED"
	StatusExpired   Status = "EXPIRED"
)

// ErrIllegalTransition is returned when a status change is not in the
// transition table.
var ErrIllegalTransition = errors.New("illegal status transition")

// ParseStatus validates a stored or user-supplied status string.
func ParseStatus(s string) (Status, error) {
	switch Status(s) {
	case StatusValid, StatusCancelled, StatusExpired:
		return Status(s), nil
	default:
		return "", fmt.Errorf("unknown status: %s", s)
	}
}

// CANCELLED and EXPIRED are terminal. Reactivation of a cancelled row is a
// fresh booking and goes through Reactivate, not through this table.
var allowedTransitions = map[Status]map[Status]bool{
	StatusValid:     {StatusCancelled: true, StatusExpired: true},
	StatusCancelled: {},
	StatusExpired:   {},
}

// CanTransition reports whether from -> to is a legal edge.
func CanTransition(from, to Status) bool {
	m, ok := allowedTransitions[from]
	if !ok {
		return false
	}
	return m[to]
}

// Transition returns to when the edge is legal and ErrIllegalTransition
// otherwise.
func (s Status) Transition(to Status) (Status, error) {
	if !CanTransition(s, to) {
		return s, fmt.Errorf("%w: %s -> %s", ErrIllegalTransition, s, to)
	}
	return to, nil
}

// IsTerminal reports whether no transition leaves s.
func (s Status) IsTerminal() bool { return len(allowedTransitions[s]) == 0 }
