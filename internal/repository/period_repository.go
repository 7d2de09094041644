package repository

import (
	"context"
	"database/sql"
	"errors"

	"github.com/emigresto/meal-reservation/internal/model"
)

// PeriodRepo reads the meal-service periods. The quota tier is derived in
// SQL: the cheapest period(s) draw from tier A, everything else from tier B.
type PeriodRepo struct {
	db *sql.DB
}

// NewPeriodRepo returns a new PeriodRepo bound to the given database.
func NewPeriodRepo(db *sql.DB) *PeriodRepo { return &PeriodRepo{db: db} }

const periodQuery = `SELECT p.id, p.name, p.price,
       CASE WHEN p.price = (SELECT MIN(price) FROM periods) THEN 'A' ELSE 'B' END
FROM periods p`

func scanPeriod(s rowScanner) (*model.Period, error) {
	var (
		p    model.Period
		tier string
	)
	if err := s.Scan(&p.ID, &p.Name, &p.Price, &tier); err != nil {
		return nil, err
	}
	p.Tier = model.Tier(tier)
	return &p, nil
}

// List returns every period ordered by id.
func (r *PeriodRepo) List(ctx context.Context) ([]model.Period, error) {
	rows, err := r.db.QueryContext(ctx, periodQuery+` ORDER BY p.id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := []model.Period{}
	for rows.Next() {
		p, err := scanPeriod(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *p)
	}
	return out, rows.Err()
}

// GetByID returns one period or ErrNotFound.
func (r *PeriodRepo) GetByID(ctx context.Context, id uint64) (*model.Period, error) {
	return getPeriod(ctx, r.db, id)
}

// GetByIDTx is GetByID inside tx.
func (r *PeriodRepo) GetByIDTx(ctx context.Context, tx *sql.Tx, id uint64) (*model.Period, error) {
	return getPeriod(ctx, tx, id)
}

func getPeriod(ctx context.Context, q querier, id uint64) (*model.Period, error) {
	p, err := scanPeriod(q.QueryRowContext(ctx, periodQuery+` WHERE p.id = ?`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	return p, err
}
