// Package service holds the reservation core: the booking policy, the
// reservation ledger coupled to the quota debit, the slot catalog, batch
// cancellation and the expiry sweep. Handlers and workers call into it;
// it never speaks HTTP.
package service

import (
	"context"
	"database/sql"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/emigresto/meal-reservation/internal/queue"
	"github.com/emigresto/meal-reservation/internal/repository"
)

// Clock returns the current instant in the service's location.
type Clock func() time.Time

// LocalClock returns a Clock reading the wall clock in loc.
func LocalClock(loc *time.Location) Clock {
	return func() time.Time { return time.Now().In(loc) }
}

// EventPublisher delivers committed reservation changes. Failures are
// logged by the caller and never undo the change.
type EventPublisher interface {
	Publish(ctx context.Context, ev queue.ReservationEvent) error
}

type noopPublisher struct{}

func (noopPublisher) Publish(context.Context, queue.ReservationEvent) error { return nil }

// Deps wires a Service. DB, the repositories and Clock are required.
type Deps struct {
	DB            *sql.DB
	TxOptions     *sql.TxOptions
	Reservations  *repository.ReservationRepo
	Periods       *repository.PeriodRepo
	Weekdays      *repository.WeekdayRepo
	Beneficiaries *repository.BeneficiaryRepo
	Occupancy     *repository.OccupancyRepo
	Policy        Policy
	Clock         Clock
	Events        EventPublisher
	Logger        logrus.FieldLogger
	// SweepBatchSize bounds the rows expired per sweep transaction.
	SweepBatchSize int
}

// Service implements the reservation operations.
type Service struct {
	db            *sql.DB
	txOpts        *sql.TxOptions
	reservations  *repository.ReservationRepo
	periods       *repository.PeriodRepo
	weekdays      *repository.WeekdayRepo
	beneficiaries *repository.BeneficiaryRepo
	occupancy     *repository.OccupancyRepo
	policy        Policy
	clock         Clock
	events        EventPublisher
	log           logrus.FieldLogger
	sweepBatch    int
}

// New builds a Service from d.
func New(d Deps) *Service {
	if d.DB == nil || d.Reservations == nil || d.Periods == nil || d.Weekdays == nil ||
		d.Beneficiaries == nil || d.Occupancy == nil {
		panic("nil dependency passed to service.New")
	}
	s := &Service{
		db:            d.DB,
		txOpts:        d.TxOptions,
		reservations:  d.Reservations,
		periods:       d.Periods,
		weekdays:      d.Weekdays,
		beneficiaries: d.Beneficiaries,
		occupancy:     d.Occupancy,
		policy:        d.Policy,
		clock:         d.Clock,
		events:        d.Events,
		log:           d.Logger,
		sweepBatch:    d.SweepBatchSize,
	}
	if s.clock == nil {
		s.clock = LocalClock(time.Local)
	}
	if s.events == nil {
		s.events = noopPublisher{}
	}
	if s.log == nil {
		s.log = logrus.StandardLogger()
	}
	if s.sweepBatch <= 0 {
		s.sweepBatch = 200
	}
	return s
}

// publish sends ev after commit. Delivery is best effort.
func (s *Service) publish(ctx context.Context, ev queue.ReservationEvent) {
	ev.ID = uuid.NewString()
	ev.OccurredAt = s.clock().UTC().Format(time.RFC3339)
	if err := s.events.Publish(ctx, ev); err != nil {
		s.log.WithError(err).WithField("event", ev.Type).Warn("publish reservation event failed")
	}
}

// withTx runs fn inside a transaction and commits when it returns nil.
func (s *Service) withTx(ctx context.Context, opts *sql.TxOptions, fn func(tx *sql.Tx) error) error {
	tx, err := s.db.BeginTx(ctx, opts)
	if err != nil {
		return err
	}
	committed := false
	defer func() {
		if !committed {
			_ = tx.Rollback()
		}
	}()
	if err := fn(tx); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return err
	}
	committed = true
	return nil
}
