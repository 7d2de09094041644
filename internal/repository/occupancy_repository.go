package repository

import (
	"context"
	"database/sql"

	"github.com/emigresto/meal-reservation/internal/calendar"
)

// OccupancyRepo answers read-only counting queries over VALID reservations.
type OccupancyRepo struct {
	db *sql.DB
}

// NewOccupancyRepo returns a new OccupancyRepo bound to the given database.
func NewOccupancyRepo(db *sql.DB) *OccupancyRepo { return &OccupancyRepo{db: db} }

// CountSlot counts VALID reservations for one weekday and period on date.
func (r *OccupancyRepo) CountSlot(ctx context.Context, weekdayID, periodID uint64, date calendar.Date) (int, error) {
	const q = `SELECT COUNT(*) FROM reservations
WHERE weekday_id = ? AND period_id = ? AND meal_date = ? AND status = 'VALID'`
	var n int
	err := r.db.QueryRowContext(ctx, q, weekdayID, periodID, date).Scan(&n)
	return n, err
}

// CountBetween counts VALID reservations dated within [from, to]. When
// periodIDs is non-nil only those periods are counted; an empty non-nil
// slice counts nothing.
func (r *OccupancyRepo) CountBetween(ctx context.Context, from, to calendar.Date, periodIDs []uint64) (int, error) {
	if periodIDs != nil && len(periodIDs) == 0 {
		return 0, nil
	}
	q := `SELECT COUNT(*) FROM reservations WHERE status = 'VALID' AND meal_date >= ? AND meal_date <= ?`
	args := []any{from, to}
	if periodIDs != nil {
		q += ` AND period_id IN (` + inPlaceholders(len(periodIDs)) + `)`
		for _, id := range periodIDs {
			args = append(args, id)
		}
	}
	var n int
	err := r.db.QueryRowContext(ctx, q, args...).Scan(&n)
	return n, err
}

// SlotCount is one (weekday, period) cell of a grouped count.
type SlotCount struct {
	WeekdayID uint64
	PeriodID  uint64
	Count     int
}

// CountByPeriod groups VALID reservations dated within [from, to] by
// period. Periods without reservations are absent from the result.
func (r *OccupancyRepo) CountByPeriod(ctx context.Context, from, to calendar.Date) (map[uint64]int, error) {
	const q = `SELECT period_id, COUNT(*) FROM reservations
WHERE status = 'VALID' AND meal_date >= ? AND meal_date <= ?
GROUP BY period_id`
	rows, err := r.db.QueryContext(ctx, q, from, to)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := map[uint64]int{}
	for rows.Next() {
		var id uint64
		var n int
		if err := rows.Scan(&id, &n); err != nil {
			return nil, err
		}
		out[id] = n
	}
	return out, rows.Err()
}

// CountOnDate groups the VALID reservations of a single date by weekday
// and period.
func (r *OccupancyRepo) CountOnDate(ctx context.Context, date calendar.Date) ([]SlotCount, error) {
	const q = `SELECT weekday_id, period_id, COUNT(*) FROM reservations
WHERE status = 'VALID' AND meal_date = ?
GROUP BY weekday_id, period_id`
	rows, err := r.db.QueryContext(ctx, q, date)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []SlotCount
	for rows.Next() {
		var c SlotCount
		if err := rows.Scan(&c.WeekdayID, &c.PeriodID, &c.Count); err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, rows.Err()
}
