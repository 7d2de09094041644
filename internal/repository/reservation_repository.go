package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/emigresto/meal-reservation/internal/calendar"
	"github.com/emigresto/meal-reservation/internal/model"
)

// ReservationRepo provides persistence for reservations. Every status
// change is a conditional UPDATE guarded by the expected current status so
// concurrent writers cannot apply an edge the transition table forbids.
// Dates are stored as YYYY-MM-DD and timestamps as "2006-01-02 15:04:05"
// UTC.
type ReservationRepo struct {
	db *sql.DB
}

// NewReservationRepo returns a new ReservationRepo bound to the given database.
func NewReservationRepo(db *sql.DB) *ReservationRepo { return &ReservationRepo{db: db} }

const reservationColumns = `r.id, r.meal_date, r.meal_time, r.status, r.initiator_id, r.beneficiary_id,
       r.weekday_id, r.period_id, r.created_at, r.updated_at`

const reservationViewQuery = `SELECT ` + reservationColumns + `, w.name, p.name, b.full_name
FROM reservations r
JOIN weekdays w ON w.id = r.weekday_id
JOIN periods p ON p.id = r.period_id
JOIN beneficiaries b ON b.id = r.beneficiary_id`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanReservation(s rowScanner, extra ...any) (*model.Reservation, error) {
	var (
		res    model.Reservation
		status string
	)
	dest := []any{
		&res.ID, &res.Date, &res.Time, &status, &res.InitiatorID, &res.BeneficiaryID,
		&res.WeekdayID, &res.PeriodID, dbTime{&res.CreatedAt}, dbTime{&res.UpdatedAt},
	}
	if err := s.Scan(append(dest, extra...)...); err != nil {
		return nil, err
	}
	st, err := model.ParseStatus(status)
	if err != nil {
		return nil, err
	}
	res.Status = st
	return &res, nil
}

func scanReservationView(s rowScanner) (*model.ReservationView, error) {
	var v model.ReservationView
	res, err := scanReservation(s, &v.WeekdayName, &v.PeriodName, &v.BeneficiaryName)
	if err != nil {
		return nil, err
	}
	v.Reservation = *res
	return &v, nil
}

// GetByID returns a reservation with its labels, or ErrNotFound.
func (r *ReservationRepo) GetByID(ctx context.Context, id uint64) (*model.ReservationView, error) {
	v, err := scanReservationView(r.db.QueryRowContext(ctx, reservationViewQuery+` WHERE r.id = ?`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	return v, err
}

// ExistsValidSlotTx reports whether a VALID reservation already occupies slot.
func (r *ReservationRepo) ExistsValidSlotTx(ctx context.Context, tx *sql.Tx, slot model.Slot) (bool, error) {
	return existsValidSlot(ctx, tx, slot)
}

func existsValidSlot(ctx context.Context, q querier, slot model.Slot) (bool, error) {
	const query = `SELECT 1 FROM reservations
WHERE beneficiary_id = ? AND weekday_id = ? AND period_id = ? AND meal_date = ? AND status = 'VALID'
LIMIT 1`
	var one int
	err := q.QueryRowContext(ctx, query, slot.BeneficiaryID, slot.WeekdayID, slot.PeriodID, slot.Date).Scan(&one)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

// FindCancelledForInitiatorTx returns the most recently touched CANCELLED
// reservation placed by initiatorID for (date, period), or ErrNotFound.
func (r *ReservationRepo) FindCancelledForInitiatorTx(ctx context.Context, tx *sql.Tx, initiatorID uint64, date calendar.Date, periodID uint64) (*model.Reservation, error) {
	const q = `SELECT ` + reservationColumns + ` FROM reservations r
WHERE r.initiator_id = ? AND r.meal_date = ? AND r.period_id = ? AND r.status = 'CANCELLED'
ORDER BY r.updated_at DESC, r.id DESC
LIMIT 1`
	res, err := scanReservation(tx.QueryRowContext(ctx, q, initiatorID, date, periodID))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	return res, err
}

// CreateTx inserts res as a new VALID reservation and fills in its ID.
// A unique-index violation is reported as ErrConflict.
func (r *ReservationRepo) CreateTx(ctx context.Context, tx *sql.Tx, res *model.Reservation, now time.Time) error {
	const q = `INSERT INTO reservations
(meal_date, meal_time, status, initiator_id, beneficiary_id, weekday_id, period_id, created_at, updated_at)
VALUES (?, ?, 'VALID', ?, ?, ?, ?, ?, ?)`
	ts := formatDBTime(now)
	result, err := tx.ExecContext(ctx, q, res.Date, res.Time, res.InitiatorID, res.BeneficiaryID, res.WeekdayID, res.PeriodID, ts, ts)
	if err != nil {
		if IsDuplicateKey(err) {
			return fmt.Errorf("insert reservation: %w", ErrConflict)
		}
		return err
	}
	id, err := result.LastInsertId()
	if err != nil {
		return err
	}
	res.ID = uint64(id)
	res.Status = model.StatusValid
	res.CreatedAt = now.UTC().Truncate(time.Second)
	res.UpdatedAt = res.CreatedAt
	return nil
}

// ReactivateTx turns the CANCELLED row res.ID back into a VALID booking,
// overwriting weekday, time and beneficiary. It returns ErrConflict when
// the row is no longer CANCELLED or when the slot is already taken.
func (r *ReservationRepo) ReactivateTx(ctx context.Context, tx *sql.Tx, res *model.Reservation, now time.Time) error {
	const q = `UPDATE reservations
SET status = 'VALID', weekday_id = ?, meal_time = ?, beneficiary_id = ?, updated_at = ?
WHERE id = ? AND status = 'CANCELLED'`
	result, err := tx.ExecContext(ctx, q, res.WeekdayID, res.Time, res.BeneficiaryID, formatDBTime(now), res.ID)
	if err != nil {
		if IsDuplicateKey(err) {
			return fmt.Errorf("reactivate reservation %d: %w", res.ID, ErrConflict)
		}
		return err
	}
	n, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return fmt.Errorf("reactivate reservation %d: %w", res.ID, ErrConflict)
	}
	res.Status = model.StatusValid
	res.UpdatedAt = now.UTC().Truncate(time.Second)
	return nil
}

// UpdateStatusTx applies from -> to on a single row. It reports false when
// the row was not in status from (a concurrent writer got there first).
func (r *ReservationRepo) UpdateStatusTx(ctx context.Context, tx *sql.Tx, id uint64, from, to model.Status, now time.Time) (bool, error) {
	return updateStatus(ctx, tx, id, from, to, now)
}

// UpdateStatus is UpdateStatusTx in its own implicit transaction.
func (r *ReservationRepo) UpdateStatus(ctx context.Context, id uint64, from, to model.Status, now time.Time) (bool, error) {
	return updateStatus(ctx, r.db, id, from, to, now)
}

func updateStatus(ctx context.Context, q querier, id uint64, from, to model.Status, now time.Time) (bool, error) {
	if !model.CanTransition(from, to) {
		return false, fmt.Errorf("%w: %s -> %s", model.ErrIllegalTransition, from, to)
	}
	result, err := q.ExecContext(ctx,
		`UPDATE reservations SET status = ?, updated_at = ? WHERE id = ? AND status = ?`,
		string(to), formatDBTime(now), id, string(from),
	)
	if err != nil {
		return false, err
	}
	n, err := result.RowsAffected()
	if err != nil {
		return false, err
	}
	return n == 1, nil
}

// Owner scopes a lookup to the reservations a principal may act on: the
// ones held by its linked beneficiary, or, when unlinked, the ones it
// initiated.
type Owner struct {
	UserID        uint64
	BeneficiaryID *uint64
}

func (o Owner) clause() (string, any) {
	if o.BeneficiaryID != nil {
		return "r.beneficiary_id = ?", *o.BeneficiaryID
	}
	return "r.initiator_id = ?", o.UserID
}

// FindValidForOwnerTx returns the VALID reservation the owner holds for
// (weekday, period, date), or ErrNotFound.
func (r *ReservationRepo) FindValidForOwnerTx(ctx context.Context, tx *sql.Tx, owner Owner, weekdayID, periodID uint64, date calendar.Date) (*model.Reservation, error) {
	cond, arg := owner.clause()
	q := `SELECT ` + reservationColumns + ` FROM reservations r
WHERE ` + cond + ` AND r.weekday_id = ? AND r.period_id = ? AND r.meal_date = ? AND r.status = 'VALID'
ORDER BY r.id
LIMIT 1`
	res, err := scanReservation(tx.QueryRowContext(ctx, q, arg, weekdayID, periodID, date))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	return res, err
}

// ListFilter narrows List. Nil fields do not filter. When both owner
// fields are set a row matches if either does.
type ListFilter struct {
	InitiatorID   *uint64
	BeneficiaryID *uint64
	From          *calendar.Date
	To            *calendar.Date
	Status        *model.Status
	Limit         int
	Offset        int
}

// List returns reservations newest date/time first.
func (r *ReservationRepo) List(ctx context.Context, f ListFilter) ([]model.ReservationView, error) {
	var (
		where []string
		args  []any
	)
	switch {
	case f.InitiatorID != nil && f.BeneficiaryID != nil:
		where = append(where, "(r.initiator_id = ? OR r.beneficiary_id = ?)")
		args = append(args, *f.InitiatorID, *f.BeneficiaryID)
	case f.InitiatorID != nil:
		where = append(where, "r.initiator_id = ?")
		args = append(args, *f.InitiatorID)
	case f.BeneficiaryID != nil:
		where = append(where, "r.beneficiary_id = ?")
		args = append(args, *f.BeneficiaryID)
	}
	if f.From != nil {
		where = append(where, "r.meal_date >= ?")
		args = append(args, *f.From)
	}
	if f.To != nil {
		where = append(where, "r.meal_date <= ?")
		args = append(args, *f.To)
	}
	if f.Status != nil {
		where = append(where, "r.status = ?")
		args = append(args, string(*f.Status))
	}
	q := reservationViewQuery
	if len(where) > 0 {
		q += " WHERE " + strings.Join(where, " AND ")
	}
	q += " ORDER BY r.meal_date DESC, r.meal_time DESC, r.id DESC"
	if f.Limit > 0 {
		q += " LIMIT ? OFFSET ?"
		args = append(args, f.Limit, f.Offset)
	}

	rows, err := r.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := []model.ReservationView{}
	for rows.Next() {
		v, err := scanReservationView(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *v)
	}
	return out, rows.Err()
}

// ListStaleValidIDs returns up to limit ids of VALID reservations dated
// before cutoff with id > afterID, in id order. It is the keyset cursor of
// the expiry sweep.
func (r *ReservationRepo) ListStaleValidIDs(ctx context.Context, cutoff calendar.Date, afterID uint64, limit int) ([]uint64, error) {
	const q = `SELECT id FROM reservations
WHERE status = 'VALID' AND meal_date < ? AND id > ?
ORDER BY id
LIMIT ?`
	rows, err := r.db.QueryContext(ctx, q, cutoff, afterID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var ids []uint64
	for rows.Next() {
		var id uint64
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// ExpireBatchTx moves the given ids from VALID to EXPIRED, provided they
// are still VALID and dated before cutoff. It returns the number of rows
// changed.
func (r *ReservationRepo) ExpireBatchTx(ctx context.Context, tx *sql.Tx, ids []uint64, cutoff calendar.Date, now time.Time) (int64, error) {
	if len(ids) == 0 {
		return 0, nil
	}
	q := `UPDATE reservations SET status = 'EXPIRED', updated_at = ?
WHERE status = 'VALID' AND meal_date < ? AND id IN (` + inPlaceholders(len(ids)) + `)`
	args := make([]any, 0, len(ids)+2)
	args = append(args, formatDBTime(now), cutoff)
	for _, id := range ids {
		args = append(args, id)
	}
	result, err := tx.ExecContext(ctx, q, args...)
	if err != nil {
		return 0, err
	}
	return result.RowsAffected()
}
