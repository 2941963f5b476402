package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"

	"github.com/felixgeelhaar/codedojo/internal/storage/migrations"
	_ "github.com/mattn/go-sqlite3"
)

// DB wraps a sql.DB connection to a SQLite database with migration support.
type DB struct {
	*sql.DB
}

// Open creates a new SQLite connection with WAL mode, foreign keys and
// immediate write transactions.
func Open(path string) (*DB, error) {
	dsn := fmt.Sprintf("file:%s?_journal_mode=WAL&_foreign_keys=ON&_busy_timeout=5000&_txlock=immediate", path)
	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}

	// Verify connectivity
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping sqlite: %w", err)
	}

	// Single writer: every transaction holds the only connection
	db.SetMaxOpenConns(1)

	return &DB{DB: db}, nil
}

// Wrap adapts an existing *sql.DB, e.g. a sqlmock connection in tests.
func Wrap(db *sql.DB) *DB {
	return &DB{DB: db}
}

// Migrate applies the embedded SQLite scripts newer than the schema version.
func (db *DB) Migrate() error {
	_, err := migrations.Apply(context.Background(), db.DB, migrations.SQLite, slog.Default())
	return err
}

// Version returns the current schema version.
func (db *DB) Version() (int, error) {
	return migrations.Version(context.Background(), db.DB)
}

// querier is satisfied by both *sql.DB and *sql.Tx.
type querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}
