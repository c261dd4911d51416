// Package sqldb implements the repository interfaces on top of database/sql.
//
// Two backends share one implementation:
//   - SQLite through modernc.org/sqlite (pure Go, no CGo). This is the default
//     and what the tests run against (":memory:").
//   - PostgreSQL through pgx's database/sql adapter (github.com/jackc/pgx/v5/stdlib).
//
// Queries are written once with "?" placeholders and rebound to "$1, $2, ..."
// for PostgreSQL. Schema changes live in migrations/<dialect>/ and are applied
// with goose, embedded into the binary so deployments never need the .sql files.
package sqldb

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	_ "github.com/jackc/pgx/v5/stdlib" // registers the "pgx" driver
	"github.com/pressly/goose/v3"
	"github.com/rs/xid"
	"modernc.org/sqlite"
	sqlite3 "modernc.org/sqlite/lib"
)

//go:embed migrations
var migrationsFS embed.FS

// Dialect identifies the SQL backend behind a DB.
type Dialect string

const (
	DialectSQLite   Dialect = "sqlite"
	DialectPostgres Dialect = "postgres"
)

// DB wraps a sql.DB connection pool and implements repository.UserRepository.
type DB struct {
	conn    *sql.DB
	dialect Dialect
	now     func() time.Time
}

// Option customises a DB at construction time.
type Option func(*DB)

// WithClock overrides the timestamp source. Tests use it to make
// created_at/updated_at deterministic.
func WithClock(now func() time.Time) Option {
	return func(db *DB) { db.now = now }
}

// New opens the database described by dsn and brings the schema up to date.
//
// dsn examples:
//   - "sqlite://data/sumday.db"          → SQLite file
//   - ":memory:"                         → private in-memory SQLite (tests)
//   - "postgres://user:pw@host/sumday"   → PostgreSQL
func New(ctx context.Context, dsn string, opts ...Option) (*DB, error) {
	db, err := Open(dsn, opts...)
	if err != nil {
		return nil, err
	}
	if _, err := db.MigrateUp(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("sqldb: running migrations: %w", err)
	}
	return db, nil
}

// Open connects without touching the schema. The migrate command uses this so
// it can report status or roll back.
func Open(dsn string, opts ...Option) (*DB, error) {
	dialect, driver, source := parseDSN(dsn)

	if dir := sqliteDir(dsn); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("sqldb: creating database directory: %w", err)
		}
	}

	conn, err := sql.Open(driver, source)
	if err != nil {
		return nil, fmt.Errorf("sqldb: opening %s database: %w", dialect, err)
	}

	// sql.Open only validates arguments; Ping forces a real connection so a
	// bad path or unreachable server fails here rather than on first query.
	if err := conn.Ping(); err != nil {
		conn.Close()
		return nil, fmt.Errorf("sqldb: pinging %s database: %w", dialect, err)
	}

	if dialect == DialectSQLite {
		// WAL lets readers proceed while a write is in progress. It is a
		// property of the database file, so setting it once is enough.
		if _, err := conn.Exec("PRAGMA journal_mode=WAL"); err != nil {
			conn.Close()
			return nil, fmt.Errorf("sqldb: setting WAL mode: %w", err)
		}
		// SQLite allows one writer at a time. A single pooled connection
		// turns concurrent writers into a queue instead of SQLITE_BUSY errors.
		conn.SetMaxOpenConns(1)
		conn.SetMaxIdleConns(1)
		conn.SetConnMaxLifetime(0)
	}

	db := &DB{conn: conn, dialect: dialect, now: time.Now}
	for _, opt := range opts {
		opt(db)
	}
	return db, nil
}

// parseDSN maps a connection string onto (dialect, database/sql driver, driver DSN).
func parseDSN(dsn string) (Dialect, string, string) {
	switch {
	case strings.HasPrefix(dsn, "postgres://"), strings.HasPrefix(dsn, "postgresql://"):
		return DialectPostgres, "pgx", dsn
	case dsn == ":memory:" || dsn == "sqlite://:memory:":
		// A named shared-cache memory database keeps the data visible to every
		// connection in the pool; the random name keeps each DB private.
		return DialectSQLite, "sqlite", "file:mem-" + xid.New().String() + "?mode=memory&cache=shared&_pragma=foreign_keys(1)"
	default:
		path := strings.TrimPrefix(dsn, "sqlite://")
		sep := "?"
		if strings.Contains(path, "?") {
			sep = "&"
		}
		return DialectSQLite, "sqlite", path + sep + "_pragma=foreign_keys(1)&_pragma=busy_timeout(5000)"
	}
}

// sqliteDir returns the directory holding a SQLite database file, or "" for
// PostgreSQL, in-memory databases and files in the working directory.
func sqliteDir(dsn string) string {
	dialect, _, _ := parseDSN(dsn)
	if dialect != DialectSQLite || strings.Contains(dsn, ":memory:") {
		return ""
	}
	path, _, _ := strings.Cut(strings.TrimPrefix(dsn, "sqlite://"), "?")
	path = strings.TrimPrefix(path, "file:")
	if dir := filepath.Dir(path); dir != "." {
		return dir
	}
	return ""
}

// Dialect reports which backend this DB talks to.
func (db *DB) Dialect() Dialect {
	return db.dialect
}

// Ping checks the database is reachable. Used by the health endpoint.
func (db *DB) Ping(ctx context.Context) error {
	return db.conn.PingContext(ctx)
}

// Close closes the connection pool.
func (db *DB) Close() error {
	return db.conn.Close()
}

// rebind rewrites "?" placeholders to "$n" for PostgreSQL. None of our
// queries contain a literal question mark, so a plain scan is enough.
func (db *DB) rebind(query string) string {
	if db.dialect != DialectPostgres {
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

// --- migrations ---

func (db *DB) migrationProvider() (*goose.Provider, error) {
	gooseDialect := goose.DialectSQLite3
	if db.dialect == DialectPostgres {
		gooseDialect = goose.DialectPostgres
	}

	fsys, err := fs.Sub(migrationsFS, "migrations/"+string(db.dialect))
	if err != nil {
		return nil, fmt.Errorf("sqldb: locating %s migrations: %w", db.dialect, err)
	}

	p, err := goose.NewProvider(gooseDialect, db.conn, fsys)
	if err != nil {
		return nil, fmt.Errorf("sqldb: creating migration provider: %w", err)
	}
	return p, nil
}

// MigrateUp applies every pending migration and returns how many ran.
func (db *DB) MigrateUp(ctx context.Context) (int, error) {
	p, err := db.migrationProvider()
	if err != nil {
		return 0, err
	}
	results, err := p.Up(ctx)
	if err != nil {
		return 0, fmt.Errorf("sqldb: migrating up: %w", err)
	}
	return len(results), nil
}

// MigrateDown rolls back the most recent migration.
func (db *DB) MigrateDown(ctx context.Context) error {
	p, err := db.migrationProvider()
	if err != nil {
		return err
	}
	if _, err := p.Down(ctx); err != nil {
		return fmt.Errorf("sqldb: migrating down: %w", err)
	}
	return nil
}

// MigrationState describes one migration file and whether it has been applied.
type MigrationState struct {
	Version   int64
	Path      string
	Applied   bool
	AppliedAt time.Time
}

// MigrationStatus lists every known migration in version order.
func (db *DB) MigrationStatus(ctx context.Context) ([]MigrationState, error) {
	p, err := db.migrationProvider()
	if err != nil {
		return nil, err
	}
	statuses, err := p.Status(ctx)
	if err != nil {
		return nil, fmt.Errorf("sqldb: reading migration status: %w", err)
	}

	out := make([]MigrationState, 0, len(statuses))
	for _, s := range statuses {
		out = append(out, MigrationState{
			Version:   s.Source.Version,
			Path:      s.Source.Path,
			Applied:   s.State == goose.StateApplied,
			AppliedAt: s.AppliedAt,
		})
	}
	return out, nil
}

// --- error mapping ---

// uniqueViolation reports whether err is a UNIQUE constraint failure and,
// if so, which users column caused it.
func uniqueViolation(err error) (column string, ok bool) {
	var detail string

	var sqliteErr *sqlite.Error
	var pgErr *pgconn.PgError
	switch {
	case errors.As(err, &sqliteErr) && sqliteErr.Code() == sqlite3.SQLITE_CONSTRAINT_UNIQUE:
		detail = sqliteErr.Error() // "UNIQUE constraint failed: users.email"
	case errors.As(err, &pgErr) && pgErr.Code == "23505":
		detail = pgErr.ConstraintName // "idx_users_email"
	default:
		return "", false
	}

	switch {
	case strings.Contains(detail, "email"):
		return "email", true
	case strings.Contains(detail, "auth0_id"):
		return "auth0_id", true
	default:
		return "", true
	}
}
