package repository

import (
	"context"
	"database/sql"
	"errors"

	"github.com/emigresto/meal-reservation/internal/model"
)

// WeekdayRepo reads the seven recurring day labels.
type WeekdayRepo struct {
	db *sql.DB
}

// NewWeekdayRepo returns a new WeekdayRepo bound to the given database.
func NewWeekdayRepo(db *sql.DB) *WeekdayRepo { return &WeekdayRepo{db: db} }

const weekdayQuery = `SELECT id, name, day_offset FROM weekdays`

func scanWeekday(s rowScanner) (*model.Weekday, error) {
	var w model.Weekday
	if err := s.Scan(&w.ID, &w.Name, &w.Offset); err != nil {
		return nil, err
	}
	return &w, nil
}

// List returns the weekdays Monday first.
func (r *WeekdayRepo) List(ctx context.Context) ([]model.Weekday, error) {
	rows, err := r.db.QueryContext(ctx, weekdayQuery+` ORDER BY day_offset`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := []model.Weekday{}
	for rows.Next() {
		w, err := scanWeekday(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *w)
	}
	return out, rows.Err()
}

// GetByID returns one weekday or ErrNotFound.
func (r *WeekdayRepo) GetByID(ctx context.Context, id uint64) (*model.Weekday, error) {
	w, err := scanWeekday(r.db.QueryRowContext(ctx, weekdayQuery+` WHERE id = ?`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	return w, err
}
