package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/emigresto/meal-reservation/internal/calendar"
	"github.com/emigresto/meal-reservation/internal/model"
	"github.com/emigresto/meal-reservation/internal/queue"
	"github.com/emigresto/meal-reservation/internal/repository"
)

// createAttempts bounds how often a booking transaction aborted by lock
// contention is replayed.
const createAttempts = 3

// CreateRequest is a booking request. BeneficiaryID defaults to the
// caller's own beneficiary.
type CreateRequest struct {
	Date          calendar.Date
	WeekdayID     uint64
	PeriodID      uint64
	Time          string
	BeneficiaryID *uint64
}

// Create books a slot. The duplicate check, the insert or reactivation and
// the quota debit share one transaction; the unique index over VALID rows
// settles races the pre-check cannot see.
func (s *Service) Create(ctx context.Context, p model.Principal, req CreateRequest) (*model.Reservation, error) {
	period, beneficiaryID, mealTime, err := s.validateCreate(ctx, p, req)
	if err != nil {
		return nil, err
	}
	res := &model.Reservation{
		Date:          req.Date,
		Time:          mealTime,
		InitiatorID:   p.UserID,
		BeneficiaryID: beneficiaryID,
		WeekdayID:     req.WeekdayID,
		PeriodID:      req.PeriodID,
	}

	var reactivated bool
	err = s.retryContended(ctx, createAttempts, func() error {
		var err error
		reactivated, err = s.createOnce(ctx, p, period.ID, res)
		return err
	})
	if err != nil {
		return nil, err
	}

	s.log.WithFields(logrus.Fields{
		"reservation_id": res.ID,
		"beneficiary_id": res.BeneficiaryID,
		"period_id":      res.PeriodID,
		"date":           res.Date.String(),
		"reactivated":    reactivated,
	}).Info("reservation created")
	s.publish(ctx, queue.ReservationEvent{
		Type:          queue.EventReservationCreated,
		ReservationID: res.ID,
		InitiatorID:   res.InitiatorID,
		BeneficiaryID: res.BeneficiaryID,
		WeekdayID:     res.WeekdayID,
		PeriodID:      res.PeriodID,
		Date:          res.Date.String(),
		Time:          res.Time,
		Status:        string(res.Status),
		Reactivated:   reactivated,
	})
	return res, nil
}

// retryContended replays fn while it fails with a lock-contention abort.
// Once attempts run out the caller lost the race for the slot, which is
// reported as a duplicate.
func (s *Service) retryContended(ctx context.Context, attempts int, fn func() error) error {
	for attempt := 1; ; attempt++ {
		err := fn()
		if err == nil || !repository.IsRetryable(err) {
			return err
		}
		if attempt >= attempts {
			s.log.WithError(err).WithField("attempts", attempt).Warn("booking transaction kept aborting")
			return duplicateSlot()
		}
		s.log.WithError(err).WithField("attempt", attempt).Debug("booking transaction aborted, retrying")
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(time.Duration(attempt) * 20 * time.Millisecond):
		}
	}
}

func (s *Service) createOnce(ctx context.Context, p model.Principal, periodID uint64, res *model.Reservation) (bool, error) {
	reactivated := false
	err := s.withTx(ctx, s.txOpts, func(tx *sql.Tx) error {
		now := s.clock()
		// debit the tier as stored when the booking commits
		period, err := s.periods.GetByIDTx(ctx, tx, periodID)
		if err != nil {
			return fmt.Errorf("load period: %w", err)
		}
		dup, err := s.reservations.ExistsValidSlotTx(ctx, tx, res.Slot())
		if err != nil {
			return fmt.Errorf("check slot: %w", err)
		}
		if rej := s.policy.Evaluate(dup, res.Date, now); rej != nil {
			return rej
		}

		prev, err := s.reservations.FindCancelledForInitiatorTx(ctx, tx, res.InitiatorID, res.Date, res.PeriodID)
		switch {
		case err == nil:
			res.ID = prev.ID
			res.CreatedAt = prev.CreatedAt
			err = s.reservations.ReactivateTx(ctx, tx, res, now)
			reactivated = true
		case errors.Is(err, repository.ErrNotFound):
			err = s.reservations.CreateTx(ctx, tx, res, now)
		}
		if errors.Is(err, repository.ErrConflict) {
			return duplicateSlot()
		}
		if err != nil {
			return fmt.Errorf("store reservation: %w", err)
		}

		if p.Role == model.RoleStudent {
			if err := s.beneficiaries.DebitTx(ctx, tx, res.BeneficiaryID, period.Tier); err != nil {
				return fmt.Errorf("debit quota: %w", err)
			}
		}
		return nil
	})
	if err != nil {
		res.ID = 0
		return false, err
	}
	return reactivated, nil
}

func (s *Service) validateCreate(ctx context.Context, p model.Principal, req CreateRequest) (*model.Period, uint64, string, error) {
	var errs ValidationErrors
	if req.Date.IsZero() {
		errs = append(errs, FieldError{Field: "date", Reason: ReasonRequired, Message: "date is required"})
	}
	tod, err := calendar.ParseClock(req.Time)
	if err != nil {
		errs = append(errs, FieldError{Field: "time", Reason: ReasonInvalid, Message: "time must be HH:MM or HH:MM:SS"})
	}

	var period *model.Period
	if req.PeriodID == 0 {
		errs = append(errs, FieldError{Field: "period_id", Reason: ReasonRequired, Message: "period_id is required"})
	} else if period, err = s.periods.GetByID(ctx, req.PeriodID); errors.Is(err, repository.ErrNotFound) {
		errs = append(errs, FieldError{Field: "period_id", Reason: ReasonNotFound, Message: "period not found"})
	} else if err != nil {
		return nil, 0, "", err
	}

	if req.WeekdayID == 0 {
		errs = append(errs, FieldError{Field: "weekday_id", Reason: ReasonRequired, Message: "weekday_id is required"})
	} else if _, err := s.weekdays.GetByID(ctx, req.WeekdayID); errors.Is(err, repository.ErrNotFound) {
		errs = append(errs, FieldError{Field: "weekday_id", Reason: ReasonNotFound, Message: "weekday not found"})
	} else if err != nil {
		return nil, 0, "", err
	}

	var beneficiaryID uint64
	if req.BeneficiaryID != nil {
		beneficiaryID = *req.BeneficiaryID
		if _, err := s.beneficiaries.GetByID(ctx, beneficiaryID); errors.Is(err, repository.ErrNotFound) {
			errs = append(errs, FieldError{Field: "beneficiary_id", Reason: ReasonNotFound, Message: "beneficiary not found"})
		} else if err != nil {
			return nil, 0, "", err
		}
	} else {
		linked, err := s.linkedBeneficiary(ctx, p)
		if err != nil {
			return nil, 0, "", err
		}
		if linked == nil {
			errs = append(errs, FieldError{Field: "beneficiary_id", Reason: ReasonRequired, Message: "beneficiary_id is required for callers without a student record"})
		} else {
			beneficiaryID = *linked
		}
	}

	if len(errs) > 0 {
		return nil, 0, "", errs
	}
	return period, beneficiaryID, calendar.FormatClock(tod), nil
}

// linkedBeneficiary returns the beneficiary the principal acts as: the one
// named in its token, else the one whose user_id is the principal's id.
func (s *Service) linkedBeneficiary(ctx context.Context, p model.Principal) (*uint64, error) {
	if p.BeneficiaryID != nil {
		return p.BeneficiaryID, nil
	}
	b, err := s.beneficiaries.GetByUserID(ctx, p.UserID)
	if errors.Is(err, repository.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("lookup beneficiary: %w", err)
	}
	return &b.ID, nil
}

// owner returns the scope used to match a principal's reservations.
func (s *Service) owner(ctx context.Context, p model.Principal) (repository.Owner, error) {
	linked, err := s.linkedBeneficiary(ctx, p)
	if err != nil {
		return repository.Owner{}, err
	}
	return repository.Owner{UserID: p.UserID, BeneficiaryID: linked}, nil
}

func (s *Service) authorize(ctx context.Context, p model.Principal, res model.Reservation) error {
	if p.Privileged() || res.InitiatorID == p.UserID {
		return nil
	}
	linked, err := s.linkedBeneficiary(ctx, p)
	if err != nil {
		return err
	}
	if linked != nil && *linked == res.BeneficiaryID {
		return nil
	}
	return repository.ErrForbidden
}

// Get returns one reservation the principal may see.
func (s *Service) Get(ctx context.Context, p model.Principal, id uint64) (*model.ReservationView, error) {
	v, err := s.reservations.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := s.authorize(ctx, p, v.Reservation); err != nil {
		return nil, err
	}
	return v, nil
}

// Cancel moves a VALID reservation to CANCELLED. Cancelling an already
// cancelled reservation succeeds without effect. The debited ticket is not
// given back.
func (s *Service) Cancel(ctx context.Context, p model.Principal, id uint64) error {
	v, err := s.reservations.GetByID(ctx, id)
	if err != nil {
		return err
	}
	if err := s.authorize(ctx, p, v.Reservation); err != nil {
		return err
	}
	changed, err := s.transition(ctx, &v.Reservation, model.StatusCancelled)
	if err != nil {
		return err
	}
	if changed {
		s.log.WithFields(logrus.Fields{"reservation_id": id, "user_id": p.UserID}).Info("reservation cancelled")
		s.publish(ctx, queue.ReservationEvent{
			Type:          queue.EventReservationCancelled,
			ReservationID: v.ID,
			InitiatorID:   v.InitiatorID,
			BeneficiaryID: v.BeneficiaryID,
			WeekdayID:     v.WeekdayID,
			PeriodID:      v.PeriodID,
			Date:          v.Date.String(),
			Status:        string(model.StatusCancelled),
		})
	}
	return nil
}

// Expire moves a VALID reservation to EXPIRED. CANCELLED and EXPIRED rows
// are left alone. It reports whether the row changed.
func (s *Service) Expire(ctx context.Context, id uint64) (bool, error) {
	v, err := s.reservations.GetByID(ctx, id)
	if err != nil {
		return false, err
	}
	if v.Status != model.StatusValid {
		return false, nil
	}
	return s.transition(ctx, &v.Reservation, model.StatusExpired)
}

// transition applies res.Status -> to with the same-state no-op rule of
// cancel. A lost race against another writer is resolved by re-reading.
func (s *Service) transition(ctx context.Context, res *model.Reservation, to model.Status) (bool, error) {
	for i := 0; i < 2; i++ {
		if res.Status == to {
			return false, nil
		}
		if !model.CanTransition(res.Status, to) {
			return false, fmt.Errorf("reservation %d is %s: %w", res.ID, res.Status, repository.ErrConflict)
		}
		ok, err := s.reservations.UpdateStatus(ctx, res.ID, res.Status, to, s.clock())
		if err != nil {
			return false, err
		}
		if ok {
			res.Status = to
			return true, nil
		}
		cur, err := s.reservations.GetByID(ctx, res.ID)
		if err != nil {
			return false, err
		}
		*res = cur.Reservation
	}
	return false, fmt.Errorf("reservation %d changed concurrently: %w", res.ID, repository.ErrConflict)
}

// ListQuery filters List.
type ListQuery struct {
	Status   *model.Status
	Page     int
	PageSize int
}

// Paging bounds of List. MaxPage keeps the row offset well inside the
// range every driver accepts.
const (
	DefaultPageSize = 50
	MaxPageSize     = 100
	MaxPage         = 100000
)

// List returns reservations newest first. Privileged callers see every
// reservation; others see their own for the current week.
func (s *Service) List(ctx context.Context, p model.Principal, q ListQuery) ([]model.ReservationView, error) {
	size := q.PageSize
	if size <= 0 {
		size = DefaultPageSize
	}
	if size > MaxPageSize {
		size = MaxPageSize
	}
	page := q.Page
	if page < 1 {
		page = 1
	}
	if page > MaxPage {
		page = MaxPage
	}
	f := repository.ListFilter{Status: q.Status, Limit: size, Offset: (page - 1) * size}
	if !p.Privileged() {
		linked, err := s.linkedBeneficiary(ctx, p)
		if err != nil {
			return nil, err
		}
		week := calendar.WeekOf(calendar.DateOf(s.clock()))
		uid := p.UserID
		f.InitiatorID = &uid
		f.BeneficiaryID = linked
		f.From = &week.Start
		f.To = &week.End
	}
	return s.reservations.List(ctx, f)
}
