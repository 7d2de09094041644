// Package queue defines the reservation events exchanged over the message
// broker, the publisher used by the service layer and the audit consumer.
package queue

// Event types.
const (
	EventReservationCreated   = "reservation.created"
	EventReservationCancelled = "reservation.cancelled"
	EventReservationsExpired  = "reservations.expired"
)

// ReservationEvent is published after a reservation change has committed.
// It carries enough context for downstream consumers to log or notify
// without querying the primary database. Expiry sweeps publish a single
// event with Count set and no reservation fields.
type ReservationEvent struct {
	ID            string `json:"id"`
	Type          string `json:"type"`
	ReservationID uint64 `json:"reservation_id,omitempty"`
	InitiatorID   uint64 `json:"initiator_id,omitempty"`
	BeneficiaryID uint64 `json:"beneficiary_id,omitempty"`
	WeekdayID     uint64 `json:"weekday_id,omitempty"`
	PeriodID      uint64 `json:"period_id,omitempty"`
	Date          string `json:"date,omitempty"`
	Time          string `json:"time,omitempty"`
	Status        string `json:"status,omitempty"`
	Reactivated   bool   `json:"reactivated,omitempty"`
	Count         int    `json:"count,omitempty"`
	OccurredAt    string `json:"occurred_at"`
}
