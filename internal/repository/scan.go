package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"
)

// dbTimeLayout is the storage format of created_at/updated_at (UTC).
const dbTimeLayout = "2006-01-02 15:04:05"

// querier is satisfied by both *sql.DB and *sql.Tx.
type querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

func formatDBTime(t time.Time) string { return t.UTC().Format(dbTimeLayout) }

// dbTime scans DATETIME columns whether the driver hands back a time.Time
// (MySQL with parseTime) or the stored text (SQLite).
type dbTime struct{ t *time.Time }

func (d dbTime) Scan(src any) error {
	switch v := src.(type) {
	case time.Time:
		*d.t = v.UTC()
		return nil
	case string:
		return d.parse(v)
	case []byte:
		return d.parse(string(v))
	case nil:
		*d.t = time.Time{}
		return nil
	}
	return fmt.Errorf("cannot scan %T into time", src)
}

func (d dbTime) parse(s string) error {
	for _, layout := range []string{dbTimeLayout, time.RFC3339Nano, time.RFC3339} {
		if t, err := time.Parse(layout, s); err == nil {
			*d.t = t.UTC()
			return nil
		}
	}
	return fmt.Errorf("unparseable time %q", s)
}

// inPlaceholders returns "?, ?, ?" for n arguments.
func inPlaceholders(n int) string {
	if n <= 0 {
		return ""
	}
	b := make([]byte, 0, n*3)
	for i := 0; i < n; i++ {
		if i > 0 {
			b = append(b, ", "...)
		}
		b = append(b, '?')
	}
	return string(b)
}
