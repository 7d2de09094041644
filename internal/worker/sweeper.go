// Package worker runs the background jobs of the reservation service.
package worker

import (
	"context"
	"time"

	"github.com/sirupsen/logrus"
)

// SweepLockKey is the Redis key that keeps concurrent instances from
// sweeping at the same time.
const SweepLockKey = "sweeper:lock"

// Sweeper expires stale reservations and reports how many changed.
type Sweeper interface {
	SweepExpired(ctx context.Context) (int, error)
}

// ExpirySweeper triggers a sweep once at start and then on every tick.
type ExpirySweeper struct {
	sweeper  Sweeper
	interval time.Duration
	locker   Locker
	lockTTL  time.Duration
	log      logrus.FieldLogger
}

// NewExpirySweeper builds the worker. locker may be nil, in which case
// every tick sweeps unguarded.
func NewExpirySweeper(sweeper Sweeper, interval time.Duration, locker Locker, lockTTL time.Duration, log logrus.FieldLogger) *ExpirySweeper {
	if interval <= 0 {
		interval = time.Hour
	}
	if lockTTL <= 0 {
		lockTTL = 5 * time.Minute
	}
	if log == nil {
		log = logrus.StandardLogger()
	}
	return &ExpirySweeper{
		sweeper:  sweeper,
		interval: interval,
		locker:   locker,
		lockTTL:  lockTTL,
		log:      log.WithField("worker", "expiry_sweeper"),
	}
}

// Start blocks until ctx is cancelled.
func (w *ExpirySweeper) Start(ctx context.Context) {
	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	w.log.WithField("interval", w.interval.String()).Info("expiry sweeper started")
	w.RunOnce(ctx)
	for {
		select {
		case <-ctx.Done():
			w.log.Info("expiry sweeper stopped")
			return
		case <-ticker.C:
			w.RunOnce(ctx)
		}
	}
}

// RunOnce performs a single guarded sweep for the ticker. It reports the
// number of reservations expired and whether the sweep ran at all.
func (w *ExpirySweeper) RunOnce(ctx context.Context) (int, bool) {
	n, ran, _ := w.Sweep(ctx)
	return n, ran
}

// Sweep runs one sweep under the shared lock. ran is false when another
// instance holds the lock; nothing is swept then.
func (w *ExpirySweeper) Sweep(ctx context.Context) (n int, ran bool, err error) {
	if w.locker != nil {
		release, ok, lockErr := w.locker.TryLock(ctx, SweepLockKey, w.lockTTL)
		if lockErr != nil {
			// sweeps are idempotent; run without the lease
			w.log.WithError(lockErr).Warn("sweep lock unavailable, sweeping unguarded")
		} else if !ok {
			w.log.Debug("another instance holds the sweep lock")
			return 0, false, nil
		} else {
			defer release()
		}
	}

	started := time.Now()
	n, err = w.sweeper.SweepExpired(ctx)
	fields := logrus.Fields{"count": n, "took": time.Since(started).String()}
	if err != nil {
		w.log.WithError(err).WithFields(fields).Error("expiry sweep failed")
		return n, true, err
	}
	w.log.WithFields(fields).Info("expiry sweep completed")
	return n, true, nil
}
