package database

import (
	"context"
	"database/sql"
	"fmt"
	"strconv"
	"strings"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib" // postgres driver registered as "pgx"
	_ "modernc.org/sqlite"             // sqlite driver (pure Go)
)

// Dialect captures the few SQL differences between the supported backends.
type Dialect string

const (
	SQLite   Dialect = "sqlite"
	Postgres Dialect = "postgres"
)

// DB pairs a connection pool with the dialect its queries must be written in.
type DB struct {
	*sql.DB
	Dialect Dialect
}

// Open connects to the configured backend. For SQLite the dsn is a file path and
// foreign keys plus a busy timeout are enabled to reduce contention errors.
func Open(ctx context.Context, dialect Dialect, dsn string) (*DB, error) {
	var (
		driver string
		source string
	)
	switch dialect {
	case SQLite:
		driver = "sqlite"
		source = fmt.Sprintf("file:%s?_pragma=foreign_keys(ON)&_pragma=busy_timeout(5000)", dsn)
	case Postgres:
		driver = "pgx"
		source = dsn
	default:
		return nil, fmt.Errorf("unsupported database dialect %q", dialect)
	}
	db, err := sql.Open(driver, source)
	if err != nil {
		return nil, fmt.Errorf("open %s db: %w", dialect, err)
	}
	pingCtx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping %s db: %w", dialect, err)
	}
	return &DB{DB: db, Dialect: dialect}, nil
}

// Rebind rewrites '?' placeholders into the dialect's form.
func (d Dialect) Rebind(query string) string {
	if d != Postgres {
		return query
	}
	var b strings.Builder
	b.Grow(len(query) + 8)
	n := 0
	for _, r := range query {
		if r == '?' {
			n++
			b.WriteByte('$')
			b.WriteString(strconv.Itoa(n))
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

// SerialPrimaryKey is the column definition for an auto-assigned int64 id.
func (d Dialect) SerialPrimaryKey() string {
	if d == Postgres {
		return "BIGSERIAL PRIMARY KEY"
	}
	return "INTEGER PRIMARY KEY AUTOINCREMENT"
}

func (db *DB) ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error) {
	return db.DB.ExecContext(ctx, db.Dialect.Rebind(query), args...)
}

func (db *DB) QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error) {
	return db.DB.QueryContext(ctx, db.Dialect.Rebind(query), args...)
}

func (db *DB) QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row {
	return db.DB.QueryRowContext(ctx, db.Dialect.Rebind(query), args...)
}
