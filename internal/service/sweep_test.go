package service

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/emigresto/meal-reservation/internal/database/dbtest"
	"github.com/emigresto/meal-reservation/internal/queue"
)

func TestSweepExpiredIdempotent(t *testing.T) {
	f := newFixture(t, "2026-10-18 09:00")
	p, _ := f.student("S1", 100, 10, 10)
	stale := []uint64{
		f.mustBook(p, "2026-10-19", f.lunch).ID,
		f.mustBook(p, "2026-10-20", f.lunch).ID,
		f.mustBook(p, "2026-10-22", f.dinner).ID,
		f.mustBook(p, "2026-10-23", f.breakfast).ID,
	}
	cancelled := f.mustBook(p, "2026-10-21", f.lunch)
	require.NoError(t, f.svc.Cancel(f.ctx, p, cancelled.ID))

	f.setNow("2026-10-27 09:00")
	current := f.mustBook(p, "2026-10-28", f.lunch)

	n, err := f.svc.SweepExpired(f.ctx)
	require.NoError(t, err)
	assert.Equal(t, len(stale), n)

	n, err = f.svc.SweepExpired(f.ctx)
	require.NoError(t, err)
	assert.Zero(t, n)

	for _, id := range stale {
		assert.Equal(t, "EXPIRED", dbtest.Status(t, f.db, id))
	}
	assert.Equal(t, "CANCELLED", dbtest.Status(t, f.db, cancelled.ID))
	assert.Equal(t, "VALID", dbtest.Status(t, f.db, current.ID))

	var expired []queue.ReservationEvent
	for _, ev := range f.events.events {
		if ev.Type == queue.EventReservationsExpired {
			expired = append(expired, ev)
		}
	}
	require.Len(t, expired, 1)
	assert.Equal(t, len(stale), expired[0].Count)
}

func TestSweepExpiredKeepsCurrentWeek(t *testing.T) {
	f := newFixture(t, "2026-10-19 08:00")
	p, _ := f.student("S1", 100, 10, 10)
	res := f.mustBook(p, "2026-10-19", f.lunch)

	// later the same week the Monday booking is past but not stale
	f.setNow("2026-10-25 20:00")
	n, err := f.svc.SweepExpired(f.ctx)
	require.NoError(t, err)
	assert.Zero(t, n)
	assert.Equal(t, "VALID", dbtest.Status(t, f.db, res.ID))
}

func TestSweepExpiredSkipsFailingRow(t *testing.T) {
	f := newFixture(t, "2026-10-18 09:00")
	p, _ := f.student("S1", 100, 10, 10)
	a := f.mustBook(p, "2026-10-19", f.lunch).ID
	b := f.mustBook(p, "2026-10-20", f.lunch).ID
	c := f.mustBook(p, "2026-10-21", f.lunch).ID

	_, err := f.db.Exec(fmt.Sprintf(`CREATE TRIGGER block_expiry BEFORE UPDATE ON reservations
WHEN OLD.id = %d BEGIN SELECT RAISE(ABORT, 'row locked'); END`, b))
	require.NoError(t, err)

	f.setNow("2026-10-27 09:00")
	n, err := f.svc.SweepExpired(f.ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, n)
	assert.Equal(t, "EXPIRED", dbtest.Status(t, f.db, a))
	assert.Equal(t, "VALID", dbtest.Status(t, f.db, b))
	assert.Equal(t, "EXPIRED", dbtest.Status(t, f.db, c))
}
