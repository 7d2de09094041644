package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/sirupsen/logrus"

	"github.com/emigresto/meal-reservation/internal/calendar"
	"github.com/emigresto/meal-reservation/internal/model"
	"github.com/emigresto/meal-reservation/internal/queue"
	"github.com/emigresto/meal-reservation/internal/repository"
	"github.com/emigresto/meal-reservation/internal/textfold"
)

// Per-item failure messages of a batch cancellation.
const (
	FailPeriodNotFound  = "period not found"
	FailInvalidDay      = "invalid day abbreviation"
	FailDayNotFound     = "day not found"
	FailNotFoundOrGone  = "not found or already cancelled"
	batchSuccessMessage = "reservation cancelled"
)

// BatchItem asks to cancel the caller's reservations of one period on the
// listed days of the current week. Days are Lun..Dim.
type BatchItem struct {
	Period string
	Days   []string
}

// BatchSuccess reports one cancelled reservation.
type BatchSuccess struct {
	ReservationID uint64
	Period        string
	Day           string
	Date          calendar.Date
	Message       string
}

// BatchFailure reports one (period, day) pair that could not be cancelled.
type BatchFailure struct {
	Period string
	Day    string
	Error  string
}

// BatchResult lists outcomes in request order.
type BatchResult struct {
	Successes []BatchSuccess
	Failures  []BatchFailure
}

// OK reports whether the batch as a whole succeeded: at least one item was
// cancelled, regardless of how many others failed.
func (r BatchResult) OK() bool { return len(r.Successes) > 0 }

// BatchCancel cancels each (period, day) pair independently. Every pair runs
// in its own transaction, so a failure never undoes earlier successes.
func (s *Service) BatchCancel(ctx context.Context, p model.Principal, items []BatchItem) (BatchResult, error) {
	result := BatchResult{Successes: []BatchSuccess{}, Failures: []BatchFailure{}}

	periods, err := s.periods.List(ctx)
	if err != nil {
		return result, fmt.Errorf("load periods: %w", err)
	}
	weekdays, err := s.weekdays.List(ctx)
	if err != nil {
		return result, fmt.Errorf("load weekdays: %w", err)
	}
	owner, err := s.owner(ctx, p)
	if err != nil {
		return result, err
	}
	week := calendar.WeekOf(calendar.DateOf(s.clock()))

	for _, item := range items {
		period := matchPeriod(periods, item.Period)
		for _, day := range item.Days {
			if err := ctx.Err(); err != nil {
				return result, err
			}
			fail := func(msg string) {
				result.Failures = append(result.Failures, BatchFailure{Period: item.Period, Day: day, Error: msg})
			}
			if period == nil {
				fail(FailPeriodNotFound)
				continue
			}
			name, ok := calendar.NameOfAbbrev(day)
			if !ok {
				fail(FailInvalidDay)
				continue
			}
			weekday := matchWeekday(weekdays, name)
			if weekday == nil {
				fail(FailDayNotFound)
				continue
			}
			date := week.Day(weekday.Offset)

			res, err := s.cancelSlot(ctx, owner, weekday.ID, period.ID, date)
			switch {
			case errors.Is(err, repository.ErrNotFound):
				fail(FailNotFoundOrGone)
				continue
			case err != nil:
				s.log.WithError(err).WithFields(logrus.Fields{"period": item.Period, "day": day}).Error("batch cancel item failed")
				fail("internal error")
				continue
			}
			result.Successes = append(result.Successes, BatchSuccess{
				ReservationID: res.ID,
				Period:        period.Name,
				Day:           strings.TrimSpace(day),
				Date:          date,
				Message:       batchSuccessMessage,
			})
			s.publish(ctx, queue.ReservationEvent{
				Type:          queue.EventReservationCancelled,
				ReservationID: res.ID,
				InitiatorID:   res.InitiatorID,
				BeneficiaryID: res.BeneficiaryID,
				WeekdayID:     res.WeekdayID,
				PeriodID:      res.PeriodID,
				Date:          res.Date.String(),
				Status:        string(model.StatusCancelled),
			})
		}
	}
	s.log.WithFields(logrus.Fields{
		"user_id":   p.UserID,
		"successes": len(result.Successes),
		"failures":  len(result.Failures),
	}).Info("batch cancellation processed")
	return result, nil
}

// cancelSlot cancels the owner's VALID reservation for one slot in its own
// transaction. ErrNotFound means there was nothing left to cancel.
func (s *Service) cancelSlot(ctx context.Context, owner repository.Owner, weekdayID, periodID uint64, date calendar.Date) (*model.Reservation, error) {
	var res *model.Reservation
	err := s.withTx(ctx, nil, func(tx *sql.Tx) error {
		found, err := s.reservations.FindValidForOwnerTx(ctx, tx, owner, weekdayID, periodID, date)
		if err != nil {
			return err
		}
		ok, err := s.reservations.UpdateStatusTx(ctx, tx, found.ID, model.StatusValid, model.StatusCancelled, s.clock())
		if err != nil {
			return err
		}
		if !ok {
			return repository.ErrNotFound
		}
		found.Status = model.StatusCancelled
		res = found
		return nil
	})
	return res, err
}

// matchPeriod resolves a free-text period name, ignoring case and accents.
func matchPeriod(periods []model.Period, name string) *model.Period {
	for i := range periods {
		if textfold.Equal(periods[i].Name, name) {
			return &periods[i]
		}
	}
	return nil
}

func matchWeekday(weekdays []model.Weekday, name string) *model.Weekday {
	for i := range weekdays {
		if textfold.Equal(weekdays[i].Name, name) {
			return &weekdays[i]
		}
	}
	return nil
}
