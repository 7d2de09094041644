// Package dbtest opens migrated throwaway SQLite databases for tests.
package dbtest

import (
	"context"
	"database/sql"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/emigresto/meal-reservation/internal/database"
)

// Open returns a freshly migrated database living in t.TempDir.
func Open(t testing.TB) *sql.DB {
	t.Helper()
	ctx := context.Background()
	db, err := database.Open(ctx, database.Options{
		Driver:     database.DriverSQLite,
		SQLitePath: filepath.Join(t.TempDir(), "reservations.db"),
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	require.NoError(t, database.Migrate(ctx, db, database.DriverSQLite))
	return db
}

// InsertBeneficiary adds a student with the given ticket balances.
func InsertBeneficiary(t testing.TB, db *sql.DB, matricule string, userID *uint64, tierA, tierB uint32) uint64 {
	t.Helper()
	res, err := db.Exec(
		`INSERT INTO beneficiaries (user_id, matricule, full_name, tickets_tier_a, tickets_tier_b) VALUES (?, ?, ?, ?, ?)`,
		userID, matricule, "Student "+matricule, tierA, tierB,
	)
	require.NoError(t, err)
	id, err := res.LastInsertId()
	require.NoError(t, err)
	return uint64(id)
}

// PeriodID looks up a seeded period by exact name.
func PeriodID(t testing.TB, db *sql.DB, name string) uint64 {
	t.Helper()
	var id uint64
	require.NoError(t, db.QueryRow(`SELECT id FROM periods WHERE name = ?`, name).Scan(&id))
	return id
}

// WeekdayID looks up a seeded weekday by its Monday-based offset.
func WeekdayID(t testing.TB, db *sql.DB, offset int) uint64 {
	t.Helper()
	var id uint64
	require.NoError(t, db.QueryRow(`SELECT id FROM weekdays WHERE day_offset = ?`, offset).Scan(&id))
	return id
}

// Tickets returns the current tier-A and tier-B balances of a beneficiary.
func Tickets(t testing.TB, db *sql.DB, beneficiaryID uint64) (uint32, uint32) {
	t.Helper()
	var a, b uint32
	require.NoError(t, db.QueryRow(
		`SELECT tickets_tier_a, tickets_tier_b FROM beneficiaries WHERE id = ?`, beneficiaryID,
	).Scan(&a, &b))
	return a, b
}

// Status returns the stored status of a reservation.
func Status(t testing.TB, db *sql.DB, reservationID uint64) string {
	t.Helper()
	var s string
	require.NoError(t, db.QueryRow(`SELECT status FROM reservations WHERE id = ?`, reservationID).Scan(&s))
	return s
}
