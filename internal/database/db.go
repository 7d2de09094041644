package database

import (
	"context"
	"database/sql"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	_ "github.com/go-sql-driver/mysql"
	_ "modernc.org/sqlite"
)

// Driver names the storage backend.
type Driver string

const (
	DriverMySQL  Driver = "mysql"
	DriverSQLite Driver = "sqlite"
)

// Options carries the connection settings for either driver. SQLitePath is
// only read for DriverSQLite; the DB* fields only for DriverMySQL.
type Options struct {
	Driver     Driver
	User       string
	Pass       string
	Host       string
	Port       string
	Name       string
	SQLitePath string
}

// Open connects to the configured backend and verifies the connection.
func Open(ctx context.Context, opts Options) (*sql.DB, error) {
	switch opts.Driver {
	case DriverMySQL, "":
		return openMySQL(ctx, opts)
	case DriverSQLite:
		return openSQLite(ctx, opts.SQLitePath)
	}
	return nil, fmt.Errorf("unsupported db driver %q", opts.Driver)
}

func openMySQL(ctx context.Context, opts Options) (*sql.DB, error) {
	auth := opts.User
	if opts.Pass != "" {
		auth = fmt.Sprintf("%s:%s", opts.User, opts.Pass)
	}
	// parseTime=true -> DATE/DATETIME -> time.Time | loc=UTC keeps times consistent
	// multiStatements lets a migration file hold several statements
	dsn := fmt.Sprintf("%s@tcp(%s:%s)/%s?charset=utf8mb4&parseTime=true&loc=UTC&multiStatements=true",
		auth, opts.Host, opts.Port, opts.Name)

	db, err := sql.Open("mysql", dsn)
	if err != nil {
		return nil, fmt.Errorf("open mysql db: %w", err)
	}

	// Pool settings
	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(25)
	db.SetConnMaxLifetime(30 * time.Minute)

	if err := ping(ctx, db); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping mysql db: %w", err)
	}
	return db, nil
}

func openSQLite(ctx context.Context, path string) (*sql.DB, error) {
	if strings.TrimSpace(path) == "" {
		return nil, fmt.Errorf("sqlite path is required")
	}
	dsn := "file:" + filepath.Clean(path) + "?_pragma=busy_timeout(5000)&_pragma=foreign_keys(1)&_pragma=journal_mode(WAL)"
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite db: %w", err)
	}
	// One writer at a time; transactions are serialized on this connection.
	db.SetMaxOpenConns(1)

	if err := ping(ctx, db); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping sqlite db: %w", err)
	}
	return db, nil
}

func ping(ctx context.Context, db *sql.DB) error {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	return db.PingContext(ctx)
}

// TxOptions returns the isolation used for multi-statement booking
// transactions. SQLite transactions are already serializable.
func TxOptions(d Driver) *sql.TxOptions {
	if d == DriverSQLite {
		return nil
	}
	return &sql.TxOptions{Isolation: sql.LevelSerializable}
}
