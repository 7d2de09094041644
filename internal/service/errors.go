package service

import (
	"errors"
	"fmt"
	"strings"

	"github.com/emigresto/meal-reservation/internal/repository"
)

// ErrValidation marks a request rejected before any state change.
var ErrValidation = errors.New("validation failed")

// Reason classifies a booking rejection.
type Reason string

const (
	ReasonDuplicateSlot     Reason = "DuplicateSlot"
	ReasonTodayWindowClosed Reason = "TodayWindowClosed"
	ReasonPastDate          Reason = "PastDate"
	ReasonBeyondHorizon     Reason = "BeyondHorizon"
	ReasonInvalid           Reason = "Invalid"
	ReasonRequired          Reason = "Required"
	ReasonNotFound          Reason = "NotFound"
)

// Rejection is a policy outcome. A DuplicateSlot rejection unwraps to
// repository.ErrConflict whether it came from the pre-check or from the
// unique index at commit; every other reason unwraps to ErrValidation.
type Rejection struct {
	Reason  Reason
	Message string
}

func (r *Rejection) Error() string { return fmt.Sprintf("%s: %s", r.Reason, r.Message) }

func (r *Rejection) Unwrap() error {
	if r.Reason == ReasonDuplicateSlot {
		return repository.ErrConflict
	}
	return ErrValidation
}

func duplicateSlot() *Rejection {
	return &Rejection{
		Reason:  ReasonDuplicateSlot,
		Message: "a valid reservation already exists for this beneficiary, day and period on this date",
	}
}

// FieldError describes one malformed request field.
type FieldError struct {
	Field   string
	Reason  Reason
	Message string
}

// ValidationErrors collects the field errors of one request.
type ValidationErrors []FieldError

func (v ValidationErrors) Error() string {
	parts := make([]string, 0, len(v))
	for _, f := range v {
		parts = append(parts, f.Field+": "+f.Message)
	}
	return "validation failed: " + strings.Join(parts, "; ")
}

func (v ValidationErrors) Unwrap() error { return ErrValidation }
