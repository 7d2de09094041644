package service

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/sirupsen/logrus"

	"github.com/emigresto/meal-reservation/internal/calendar"
	"github.com/emigresto/meal-reservation/internal/queue"
)

// SweepExpired moves every VALID reservation dated before the current
// week's Monday to EXPIRED and returns how many rows changed. Rows are
// walked by id in chunks, each chunk in its own short transaction, so the
// sweep never holds locks across the whole scan. A chunk that fails is
// retried row by row; a row that fails is logged and skipped.
func (s *Service) SweepExpired(ctx context.Context) (int, error) {
	cutoff := calendar.WeekStart(calendar.DateOf(s.clock()))
	log := s.log.WithField("cutoff", cutoff.String())

	var (
		total  int
		lastID uint64
	)
	for {
		if err := ctx.Err(); err != nil {
			return total, err
		}
		ids, err := s.reservations.ListStaleValidIDs(ctx, cutoff, lastID, s.sweepBatch)
		if err != nil {
			return total, fmt.Errorf("list stale reservations: %w", err)
		}
		if len(ids) == 0 {
			break
		}
		lastID = ids[len(ids)-1]

		n, err := s.expireChunk(ctx, ids, cutoff)
		if err != nil {
			log.WithError(err).WithField("chunk", len(ids)).Warn("chunk expiry failed, falling back to single rows")
			n = s.expireRows(ctx, log, ids)
		}
		total += n
		if len(ids) < s.sweepBatch {
			break
		}
	}

	if total > 0 {
		log.WithField("count", total).Info("expired stale reservations")
		s.publish(ctx, queue.ReservationEvent{Type: queue.EventReservationsExpired, Count: total})
	}
	return total, nil
}

func (s *Service) expireChunk(ctx context.Context, ids []uint64, cutoff calendar.Date) (int, error) {
	var n int64
	err := s.withTx(ctx, nil, func(tx *sql.Tx) error {
		var err error
		n, err = s.reservations.ExpireBatchTx(ctx, tx, ids, cutoff, s.clock())
		return err
	})
	return int(n), err
}

func (s *Service) expireRows(ctx context.Context, log logrus.FieldLogger, ids []uint64) int {
	n := 0
	for _, id := range ids {
		changed, err := s.Expire(ctx, id)
		if err != nil {
			log.WithError(err).WithField("reservation_id", id).Warn("expire reservation failed")
			continue
		}
		if changed {
			n++
		}
	}
	return n
}
