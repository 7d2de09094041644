package repository_test

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/go-sql-driver/mysql"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/emigresto/meal-reservation/internal/calendar"
	"github.com/emigresto/meal-reservation/internal/database/dbtest"
	"github.com/emigresto/meal-reservation/internal/model"
	"github.com/emigresto/meal-reservation/internal/repository"
)

var now = time.Date(2026, 10, 19, 8, 0, 0, 0, time.UTC)

func inTx(t *testing.T, db *sql.DB, fn func(tx *sql.Tx) error) error {
	t.Helper()
	tx, err := db.BeginTx(context.Background(), nil)
	require.NoError(t, err)
	if err := fn(tx); err != nil {
		_ = tx.Rollback()
		return err
	}
	return tx.Commit()
}

type store struct {
	db          *sql.DB
	res         *repository.ReservationRepo
	beneficiary uint64
	weekday     uint64
	period      uint64
}

func newStore(t *testing.T) *store {
	db := dbtest.Open(t)
	return &store{
		db:          db,
		res:         repository.NewReservationRepo(db),
		beneficiary: dbtest.InsertBeneficiary(t, db, "M1", nil, 1, 5),
		weekday:     dbtest.WeekdayID(t, db, 1),
		period:      dbtest.PeriodID(t, db, "Déjeuner"),
	}
}

func (s *store) reservation(date string) *model.Reservation {
	return &model.Reservation{
		Date:          calendar.MustParseDate(date),
		Time:          "12:30:00",
		InitiatorID:   7,
		BeneficiaryID: s.beneficiary,
		WeekdayID:     s.weekday,
		PeriodID:      s.period,
	}
}

func (s *store) create(t *testing.T, date string) *model.Reservation {
	t.Helper()
	res := s.reservation(date)
	require.NoError(t, inTx(t, s.db, func(tx *sql.Tx) error { return s.res.CreateTx(context.Background(), tx, res, now) }))
	return res
}

func TestDebitTx(t *testing.T) {
	s := newStore(t)
	repo := repository.NewBeneficiaryRepo(s.db)
	ctx := context.Background()

	require.NoError(t, inTx(t, s.db, func(tx *sql.Tx) error { return repo.DebitTx(ctx, tx, s.beneficiary, model.TierA) }))
	a, b := dbtest.Tickets(t, s.db, s.beneficiary)
	assert.Equal(t, uint32(0), a)
	assert.Equal(t, uint32(5), b)

	err := inTx(t, s.db, func(tx *sql.Tx) error { return repo.DebitTx(ctx, tx, s.beneficiary, model.TierA) })
	assert.ErrorIs(t, err, repository.ErrQuotaExhausted)
	a, _ = dbtest.Tickets(t, s.db, s.beneficiary)
	assert.Equal(t, uint32(0), a)

	err = inTx(t, s.db, func(tx *sql.Tx) error { return repo.DebitTx(ctx, tx, 9999, model.TierB) })
	assert.ErrorIs(t, err, repository.ErrNotFound)
}

func TestCreateTxRejectsSecondValidRow(t *testing.T) {
	s := newStore(t)
	first := s.create(t, "2026-10-20")
	assert.NotZero(t, first.ID)
	assert.Equal(t, model.StatusValid, first.Status)

	err := inTx(t, s.db, func(tx *sql.Tx) error {
		return s.res.CreateTx(context.Background(), tx, s.reservation("2026-10-20"), now)
	})
	assert.ErrorIs(t, err, repository.ErrConflict)

	ok, err := s.res.UpdateStatus(context.Background(), first.ID, model.StatusValid, model.StatusCancelled, now)
	require.NoError(t, err)
	require.True(t, ok)
	s.create(t, "2026-10-20")
}

func TestReactivateTxRequiresCancelledRow(t *testing.T) {
	s := newStore(t)
	ctx := context.Background()
	res := s.create(t, "2026-10-20")

	err := inTx(t, s.db, func(tx *sql.Tx) error { return s.res.ReactivateTx(ctx, tx, res, now) })
	assert.ErrorIs(t, err, repository.ErrConflict)

	ok, err := s.res.UpdateStatus(ctx, res.ID, model.StatusValid, model.StatusCancelled, now)
	require.NoError(t, err)
	require.True(t, ok)

	// another VALID booking now occupies the slot
	s.create(t, "2026-10-20")
	err = inTx(t, s.db, func(tx *sql.Tx) error { return s.res.ReactivateTx(ctx, tx, res, now) })
	assert.ErrorIs(t, err, repository.ErrConflict)
	assert.Equal(t, "CANCELLED", dbtest.Status(t, s.db, res.ID))
}

func TestUpdateStatusGuards(t *testing.T) {
	s := newStore(t)
	ctx := context.Background()
	res := s.create(t, "2026-10-20")

	_, err := s.res.UpdateStatus(ctx, res.ID, model.StatusExpired, model.StatusValid, now)
	assert.ErrorIs(t, err, model.ErrIllegalTransition)

	ok, err := s.res.UpdateStatus(ctx, res.ID, model.StatusValid, model.StatusExpired, now)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = s.res.UpdateStatus(ctx, res.ID, model.StatusValid, model.StatusCancelled, now)
	require.NoError(t, err)
	assert.False(t, ok)

	v, err := s.res.GetByID(ctx, res.ID)
	require.NoError(t, err)
	assert.Equal(t, model.StatusExpired, v.Status)
	assert.Equal(t, "Déjeuner", v.PeriodName)
	assert.Equal(t, "Mardi", v.WeekdayName)

	_, err = s.res.GetByID(ctx, 424242)
	assert.ErrorIs(t, err, repository.ErrNotFound)
}

func TestStaleKeysetAndExpireBatch(t *testing.T) {
	s := newStore(t)
	ctx := context.Background()
	old1 := s.create(t, "2026-10-06")
	old2 := s.create(t, "2026-10-13")
	current := s.create(t, "2026-10-20")
	cutoff := calendar.MustParseDate("2026-10-19")

	ids, err := s.res.ListStaleValidIDs(ctx, cutoff, 0, 1)
	require.NoError(t, err)
	assert.Equal(t, []uint64{old1.ID}, ids)
	ids, err = s.res.ListStaleValidIDs(ctx, cutoff, old1.ID, 10)
	require.NoError(t, err)
	assert.Equal(t, []uint64{old2.ID}, ids)

	var n int64
	require.NoError(t, inTx(t, s.db, func(tx *sql.Tx) error {
		var err error
		n, err = s.res.ExpireBatchTx(ctx, tx, []uint64{old1.ID, old2.ID, current.ID}, cutoff, now)
		return err
	}))
	assert.EqualValues(t, 2, n)
	assert.Equal(t, "EXPIRED", dbtest.Status(t, s.db, old1.ID))
	assert.Equal(t, "VALID", dbtest.Status(t, s.db, current.ID))
}

func TestOccupancyCounts(t *testing.T) {
	s := newStore(t)
	ctx := context.Background()
	occ := repository.NewOccupancyRepo(s.db)
	s.create(t, "2026-10-20")
	monday, sunday := calendar.MustParseDate("2026-10-19"), calendar.MustParseDate("2026-10-25")

	n, err := occ.CountSlot(ctx, s.weekday, s.period, calendar.MustParseDate("2026-10-20"))
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	n, err = occ.CountBetween(ctx, monday, sunday, []uint64{})
	require.NoError(t, err)
	assert.Zero(t, n)

	n, err = occ.CountBetween(ctx, monday, sunday, nil)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	byPeriod, err := occ.CountByPeriod(ctx, monday, sunday)
	require.NoError(t, err)
	assert.Equal(t, map[uint64]int{s.period: 1}, byPeriod)
}

func TestPeriodTiers(t *testing.T) {
	db := dbtest.Open(t)
	periods, err := repository.NewPeriodRepo(db).List(context.Background())
	require.NoError(t, err)
	tiers := map[string]model.Tier{}
	for _, p := range periods {
		tiers[p.Name] = p.Tier
	}
	assert.Equal(t, map[string]model.Tier{
		"Petit-déjeuner": model.TierA,
		"Déjeuner":       model.TierB,
		"Dîner":          model.TierB,
	}, tiers)
}

func TestPeriodGetByIDTxSeesUncommittedPrice(t *testing.T) {
	db := dbtest.Open(t)
	repo := repository.NewPeriodRepo(db)
	ctx := context.Background()
	lunch := dbtest.PeriodID(t, db, "Déjeuner")

	before, err := repo.GetByID(ctx, lunch)
	require.NoError(t, err)
	require.Equal(t, model.TierB, before.Tier)

	tx, err := db.BeginTx(ctx, nil)
	require.NoError(t, err)
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx, `UPDATE periods SET price = 1 WHERE id = ?`, lunch)
	require.NoError(t, err)
	p, err := repo.GetByIDTx(ctx, tx, lunch)
	require.NoError(t, err)
	assert.Equal(t, model.TierA, p.Tier)

	_, err = repo.GetByIDTx(ctx, tx, 999999)
	assert.ErrorIs(t, err, repository.ErrNotFound)
}

func TestErrorClassification(t *testing.T) {
	dup := &mysql.MySQLError{Number: 1062, Message: "Duplicate entry"}
	deadlock := &mysql.MySQLError{Number: 1213, Message: "Deadlock found"}

	assert.True(t, repository.IsDuplicateKey(fmt.Errorf("insert: %w", dup)))
	assert.False(t, repository.IsDuplicateKey(deadlock))
	assert.False(t, repository.IsDuplicateKey(nil))
	assert.True(t, repository.IsRetryable(deadlock))
	assert.True(t, repository.IsRetryable(&mysql.MySQLError{Number: 1205}))
	assert.False(t, repository.IsRetryable(dup))
	assert.False(t, repository.IsRetryable(errors.New("boom")))
}
