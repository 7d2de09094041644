package service

import (
	"context"
	"database/sql"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/require"

	"github.com/emigresto/meal-reservation/internal/calendar"
	"github.com/emigresto/meal-reservation/internal/database/dbtest"
	"github.com/emigresto/meal-reservation/internal/model"
	"github.com/emigresto/meal-reservation/internal/queue"
	"github.com/emigresto/meal-reservation/internal/repository"
)

type recordingPublisher struct {
	mu     sync.Mutex
	events []queue.ReservationEvent
}

func (r *recordingPublisher) Publish(_ context.Context, ev queue.ReservationEvent) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, ev)
	return nil
}

func (r *recordingPublisher) types() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]string, 0, len(r.events))
	for _, ev := range r.events {
		out = append(out, ev.Type)
	}
	return out
}

type fixture struct {
	t         *testing.T
	ctx       context.Context
	db        *sql.DB
	svc       *Service
	events    *recordingPublisher
	mu        sync.Mutex
	now       time.Time
	breakfast uint64
	lunch     uint64
	dinner    uint64
}

func newFixture(t *testing.T, now string) *fixture {
	t.Helper()
	db := dbtest.Open(t)
	logger := logrus.New()
	logger.SetOutput(io.Discard)

	f := &fixture{t: t, ctx: context.Background(), db: db, now: at(now), events: &recordingPublisher{}}
	f.svc = New(Deps{
		DB:             db,
		Reservations:   repository.NewReservationRepo(db),
		Periods:        repository.NewPeriodRepo(db),
		Weekdays:       repository.NewWeekdayRepo(db),
		Beneficiaries:  repository.NewBeneficiaryRepo(db),
		Occupancy:      repository.NewOccupancyRepo(db),
		Policy:         DefaultPolicy(),
		Clock:          f.clock,
		Events:         f.events,
		Logger:         logger,
		SweepBatchSize: 2,
	})
	f.breakfast = dbtest.PeriodID(t, db, "Petit-déjeuner")
	f.lunch = dbtest.PeriodID(t, db, "Déjeuner")
	f.dinner = dbtest.PeriodID(t, db, "Dîner")
	return f
}

func (f *fixture) clock() time.Time {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.now
}

func (f *fixture) setNow(s string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.now = at(s)
}

// student inserts a beneficiary linked to userID and returns a principal
// that relies on the user_id fallback to find it.
func (f *fixture) student(matricule string, userID uint64, tierA, tierB uint32) (model.Principal, uint64) {
	f.t.Helper()
	uid := userID
	id := dbtest.InsertBeneficiary(f.t, f.db, matricule, &uid, tierA, tierB)
	return model.Principal{UserID: userID, Role: model.RoleStudent}, id
}

func (f *fixture) weekday(date string) uint64 {
	return dbtest.WeekdayID(f.t, f.db, calendar.Offset(calendar.MustParseDate(date)))
}

func (f *fixture) book(p model.Principal, date string, periodID uint64) (*model.Reservation, error) {
	return f.svc.Create(f.ctx, p, CreateRequest{
		Date:      calendar.MustParseDate(date),
		WeekdayID: f.weekday(date),
		PeriodID:  periodID,
		Time:      "12:30",
	})
}

func (f *fixture) mustBook(p model.Principal, date string, periodID uint64) *model.Reservation {
	f.t.Helper()
	res, err := f.book(p, date, periodID)
	require.NoError(f.t, err)
	return res
}

func (f *fixture) countValid() int {
	f.t.Helper()
	var n int
	require.NoError(f.t, f.db.QueryRow(`SELECT COUNT(*) FROM reservations WHERE status = 'VALID'`).Scan(&n))
	return n
}
