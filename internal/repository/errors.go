// Package repository defines error types that are reused across multiple
// repositories. These sentinel values allow higher layers such as
// handlers to distinguish between different failure scenarios.
package repository

import "errors"

// ErrNotFound is returned when a referenced reservation, period, weekday or
// beneficiary does not exist. Handlers translate it into a 404.
var ErrNotFound = errors.New("not found")

// ErrForbidden is returned when the caller attempts an operation on a
// reservation they neither initiated nor benefit from. Handlers should
// translate this into an HTTP 403 response.
var ErrForbidden = errors.New("forbidden")

// ErrConflict is returned when a write would break the one VALID
// reservation per slot rule, or when a status change is not allowed from
// the row's current status. Handlers should translate this into a 409.
var ErrConflict = errors.New("conflict")

// ErrQuotaExhausted is returned by a debit against a zero ticket counter.
var ErrQuotaExhausted = errors.New("quota exhausted")
