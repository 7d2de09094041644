package database

import (
	"context"
	"path/filepath"
	"testing"
	"testing/fstest"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testOptions(t *testing.T) Options {
	t.Helper()
	return Options{Driver: DriverSQLite, SQLitePath: filepath.Join(t.TempDir(), "m.db")}
}

func TestMigrateSeedsCatalog(t *testing.T) {
	ctx := context.Background()
	db, err := Open(ctx, testOptions(t))
	require.NoError(t, err)
	defer db.Close()

	require.NoError(t, Migrate(ctx, db, DriverSQLite))
	// second run is a no-op
	require.NoError(t, Migrate(ctx, db, DriverSQLite))

	var weekdays, periods, applied int
	require.NoError(t, db.QueryRow(`SELECT COUNT(*) FROM weekdays`).Scan(&weekdays))
	require.NoError(t, db.QueryRow(`SELECT COUNT(*) FROM periods`).Scan(&periods))
	require.NoError(t, db.QueryRow(`SELECT COUNT(*) FROM schema_migrations`).Scan(&applied))
	assert.Equal(t, 7, weekdays)
	assert.Equal(t, 3, periods)
	assert.Equal(t, 2, applied)
}

func TestApplyMigrationsDoesNotRecordFailure(t *testing.T) {
	ctx := context.Background()
	db, err := Open(ctx, testOptions(t))
	require.NoError(t, err)
	defer db.Close()

	bad := fstest.MapFS{
		"001_bad.sql": &fstest.MapFile{Data: []byte("-- +migrate Up\nCREAT TABLE things(id INT);")},
	}
	require.Error(t, ApplyMigrations(ctx, db, DriverSQLite, bad, "."))

	var applied int
	require.NoError(t, db.QueryRow(`SELECT COUNT(*) FROM schema_migrations`).Scan(&applied))
	assert.Zero(t, applied)

	good := fstest.MapFS{
		"001_bad.sql": &fstest.MapFile{Data: []byte("-- +migrate Up\nCREATE TABLE things(id INT);\n-- +migrate Down\nDROP TABLE things;")},
	}
	require.NoError(t, ApplyMigrations(ctx, db, DriverSQLite, good, "."))
	require.NoError(t, db.QueryRow(`SELECT COUNT(*) FROM schema_migrations`).Scan(&applied))
	assert.Equal(t, 1, applied)
}

func TestExtractUpMigration(t *testing.T) {
	got := ExtractUpMigration("-- +migrate Up\nCREATE TABLE a(id INT);\n-- +migrate Down\nDROP TABLE a;")
	assert.Equal(t, "\nCREATE TABLE a(id INT);\n", got)
	assert.Equal(t, "SELECT 1", ExtractUpMigration("SELECT 1"))
}

func TestValidSlotIndexOnlyBindsValidRows(t *testing.T) {
	ctx := context.Background()
	db, err := Open(ctx, testOptions(t))
	require.NoError(t, err)
	defer db.Close()
	require.NoError(t, Migrate(ctx, db, DriverSQLite))

	_, err = db.Exec(`INSERT INTO beneficiaries (matricule, full_name) VALUES ('M1', 'A')`)
	require.NoError(t, err)

	insert := `INSERT INTO reservations (meal_date, meal_time, status, initiator_id, beneficiary_id, weekday_id, period_id, created_at, updated_at)
		VALUES ('2026-10-19', '12:00:00', ?, 1, 1, 1, 2, '2026-10-18 10:00:00', '2026-10-18 10:00:00')`
	_, err = db.Exec(insert, "CANCELLED")
	require.NoError(t, err)
	_, err = db.Exec(insert, "CANCELLED")
	require.NoError(t, err)
	_, err = db.Exec(insert, "VALID")
	require.NoError(t, err)
	_, err = db.Exec(insert, "VALID")
	assert.Error(t, err)
}
