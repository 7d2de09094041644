package model

import (
	"time"

	"github.com/emigresto/meal-reservation/internal/calendar"
)

// Reservation is one booked meal slot.
//
// Fields:
//
//	ID            – primary key identifier.
//	Date          – concrete day the meal is taken.
//	Time          – requested service time, HH:MM:SS.
//	Status        – VALID, CANCELLED or EXPIRED.
//	InitiatorID   – principal who placed the booking.
//	BeneficiaryID – student the meal is for.
//	WeekdayID     – recurring day label of the slot.
//	PeriodID      – meal-service window of the slot.
//	CreatedAt     – creation timestamp.
//	UpdatedAt     – refreshed by every mutation.
type Reservation struct {
	ID            uint64        // reservations.id
	Date          calendar.Date // reservations.date
	Time          string        // reservations.time
	Status        Status        // reservations.status
	InitiatorID   uint64        // reservations.initiator_id
	BeneficiaryID uint64        // reservations.beneficiary_id
	WeekdayID     uint64        // reservations.weekday_id
	PeriodID      uint64        // reservations.period_id
	CreatedAt     time.Time     // reservations.created_at
	UpdatedAt     time.Time     // reservations.updated_at
}

// Slot identifies the reservable unit a VALID reservation occupies.
type Slot struct {
	BeneficiaryID uint64
	WeekdayID     uint64
	PeriodID      uint64
	Date          calendar.Date
}

// Slot returns the uniqueness key of r.
func (r Reservation) Slot() Slot {
	return Slot{BeneficiaryID: r.BeneficiaryID, WeekdayID: r.WeekdayID, PeriodID: r.PeriodID, Date: r.Date}
}

// ReservationView is a reservation joined with its labels for display.
type ReservationView struct {
	Reservation
	WeekdayName     string
	PeriodName      string
	BeneficiaryName string
}
