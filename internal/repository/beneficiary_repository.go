package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/emigresto/meal-reservation/internal/model"
)

// BeneficiaryRepo reads students and owns the quota ledger: the two ticket
// counters and their atomic debit.
type BeneficiaryRepo struct {
	db *sql.DB
}

// NewBeneficiaryRepo returns a new BeneficiaryRepo bound to the given database.
func NewBeneficiaryRepo(db *sql.DB) *BeneficiaryRepo { return &BeneficiaryRepo{db: db} }

const beneficiaryQuery = `SELECT id, user_id, matricule, full_name, tickets_tier_a, tickets_tier_b FROM beneficiaries`

func scanBeneficiary(s rowScanner) (*model.Beneficiary, error) {
	var (
		b      model.Beneficiary
		userID sql.NullInt64
	)
	if err := s.Scan(&b.ID, &userID, &b.Matricule, &b.FullName, &b.TicketsTierA, &b.TicketsTierB); err != nil {
		return nil, err
	}
	if userID.Valid {
		uid := uint64(userID.Int64)
		b.UserID = &uid
	}
	return &b, nil
}

// GetByID returns one beneficiary or ErrNotFound.
func (r *BeneficiaryRepo) GetByID(ctx context.Context, id uint64) (*model.Beneficiary, error) {
	b, err := scanBeneficiary(r.db.QueryRowContext(ctx, beneficiaryQuery+` WHERE id = ?`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	return b, err
}

// GetByUserID returns the beneficiary linked to an identity-layer user, or
// ErrNotFound when the user is not a student.
func (r *BeneficiaryRepo) GetByUserID(ctx context.Context, userID uint64) (*model.Beneficiary, error) {
	b, err := scanBeneficiary(r.db.QueryRowContext(ctx, beneficiaryQuery+` WHERE user_id = ?`, userID))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	return b, err
}

// DebitTx takes one ticket from the tier bucket of beneficiaryID. The
// decrement is a single guarded UPDATE, so concurrent debits never lose an
// update and the counter never goes negative. It returns ErrQuotaExhausted
// when the bucket is empty and ErrNotFound when the beneficiary is unknown.
func (r *BeneficiaryRepo) DebitTx(ctx context.Context, tx *sql.Tx, beneficiaryID uint64, tier model.Tier) error {
	col := "tickets_tier_b"
	if tier == model.TierA {
		col = "tickets_tier_a"
	}
	q := fmt.Sprintf(`UPDATE beneficiaries SET %[1]s = %[1]s - 1 WHERE id = ? AND %[1]s > 0`, col)
	result, err := tx.ExecContext(ctx, q, beneficiaryID)
	if err != nil {
		return err
	}
	n, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if n == 1 {
		return nil
	}
	var one int
	err = tx.QueryRowContext(ctx, `SELECT 1 FROM beneficiaries WHERE id = ?`, beneficiaryID).Scan(&one)
	if errors.Is(err, sql.ErrNoRows) {
		return ErrNotFound
	}
	if err != nil {
		return err
	}
	return fmt.Errorf("tier %s: %w", tier, ErrQuotaExhausted)
}
