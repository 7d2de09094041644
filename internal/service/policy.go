package service

import (
	"fmt"
	"time"

	"github.com/emigresto/meal-reservation/internal/calendar"
)

// Policy is the booking rule evaluator. It is stateless: every decision is a
// function of its inputs and the wall-clock instant passed in.
type Policy struct {
	// SameDayCutoff is the time of day before which a Monday booking for
	// Monday itself is still accepted.
	SameDayCutoff time.Duration
	// MaxAdvanceDays bounds how far ahead a date may be booked. Zero or
	// negative disables the bound.
	MaxAdvanceDays int
}

// DefaultPolicy closes same-day booking at 11:00 and accepts dates up to
// two weeks ahead.
func DefaultPolicy() Policy {
	return Policy{SameDayCutoff: 11 * time.Hour, MaxAdvanceDays: 14}
}

// Evaluate applies the rules in order: duplicate slot, same-day window,
// past date, horizon. It returns nil to allow the booking. now must be
// expressed in the service's location so that its civil date is "today".
func (p Policy) Evaluate(duplicate bool, date calendar.Date, now time.Time) *Rejection {
	if duplicate {
		return duplicateSlot()
	}
	today := calendar.DateOf(now)
	if date == today {
		if calendar.IsMonday(today) && now.Before(p.cutoff(now)) {
			return nil
		}
		return &Rejection{
			Reason: ReasonTodayWindowClosed,
			Message: fmt.Sprintf("same-day reservations are only accepted on Monday before %s",
				calendar.FormatClock(p.SameDayCutoff)[:5]),
		}
	}
	if date.Before(today) {
		return &Rejection{Reason: ReasonPastDate, Message: "cannot reserve a meal for a past date"}
	}
	if p.MaxAdvanceDays > 0 && today.DaysUntil(date) > p.MaxAdvanceDays {
		return &Rejection{
			Reason:  ReasonBeyondHorizon,
			Message: fmt.Sprintf("reservations open at most %d days ahead", p.MaxAdvanceDays),
		}
	}
	return nil
}

func (p Policy) cutoff(now time.Time) time.Time {
	y, m, d := now.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, now.Location()).Add(p.SameDayCutoff)
}
