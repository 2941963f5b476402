package migrations

import (
	"context"
	"database/sql"
	"fmt"
	"io/fs"
	"log/slog"
	"path"
	"sort"
	"strconv"
	"strings"
)

// Dialect is the driver-specific part of running migrations
type Dialect struct {
	Name   string
	Dir    string // script directory inside FS
	Create string // creates schema_migrations
	Record string // inserts one applied version
}

var (
	SQLite = Dialect{
		Name: "sqlite",
		Dir:  ".",
		Create: `CREATE TABLE IF NOT EXISTS schema_migrations (
			version    INTEGER PRIMARY KEY,
			applied_at DATETIME NOT NULL DEFAULT (datetime('now'))
		)`,
		Record: "INSERT OR REPLACE INTO schema_migrations (version) VALUES (?)",
	}
	Postgres = Dialect{
		Name: "postgres",
		Dir:  "postgres",
		Create: `CREATE TABLE IF NOT EXISTS schema_migrations (
			version    INTEGER PRIMARY KEY,
			applied_at TIMESTAMPTZ NOT NULL DEFAULT now()
		)`,
		Record: "INSERT INTO schema_migrations (version) VALUES ($1)",
	}
)

// Step is one versioned script
type Step struct {
	Version int
	Name    string
	SQL     string
}

// Steps reads the scripts in dir, ordered by version. Files without a
// numeric prefix are skipped.
func Steps(fsys fs.FS, dir string) ([]Step, error) {
	entries, err := fs.ReadDir(fsys, dir)
	if err != nil {
		return nil, fmt.Errorf("read migrations dir: %w", err)
	}

	var steps []Step
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), ".sql") {
			continue
		}
		version, err := ParseVersion(e.Name())
		if err != nil {
			slog.Warn("skipping non-migration file", "name", e.Name(), "error", err)
			continue
		}
		data, err := fs.ReadFile(fsys, path.Join(dir, e.Name()))
		if err != nil {
			return nil, fmt.Errorf("read migration %s: %w", e.Name(), err)
		}
		steps = append(steps, Step{Version: version, Name: e.Name(), SQL: string(data)})
	}

	sort.Slice(steps, func(i, j int) bool { return steps[i].Version < steps[j].Version })
	return steps, nil
}

// ParseVersion extracts the number from a name like "001_initial.sql"
func ParseVersion(name string) (int, error) {
	prefix, _, ok := strings.Cut(name, "_")
	if !ok {
		return 0, fmt.Errorf("invalid migration filename: %s", name)
	}
	v, err := strconv.Atoi(prefix)
	if err != nil || v <= 0 {
		return 0, fmt.Errorf("invalid migration version in %s", name)
	}
	return v, nil
}

// Version returns the highest applied version, 0 on a fresh database
func Version(ctx context.Context, db *sql.DB) (int, error) {
	var v int
	err := db.QueryRowContext(ctx, "SELECT COALESCE(MAX(version), 0) FROM schema_migrations").Scan(&v)
	return v, err
}

// Apply runs every script newer than the recorded version, each in its own
// transaction, and returns how many were applied.
func Apply(ctx context.Context, db *sql.DB, d Dialect, logger *slog.Logger) (int, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if _, err := db.ExecContext(ctx, d.Create); err != nil {
		return 0, fmt.Errorf("create schema_migrations: %w", err)
	}

	current, err := Version(ctx, db)
	if err != nil {
		return 0, fmt.Errorf("get current version: %w", err)
	}

	steps, err := Steps(FS, d.Dir)
	if err != nil {
		return 0, err
	}

	applied := 0
	for _, step := range steps {
		if step.Version <= current {
			continue
		}
		if err := applyStep(ctx, db, d, step); err != nil {
			return applied, err
		}
		applied++
		logger.Info("applied migration", "name", step.Name, "version", step.Version, "dialect", d.Name)
	}
	return applied, nil
}

func applyStep(ctx context.Context, db *sql.DB, d Dialect, step Step) error {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin migration %s: %w", step.Name, err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, step.SQL); err != nil {
		return fmt.Errorf("apply migration %s: %w", step.Name, err)
	}
	if _, err := tx.ExecContext(ctx, d.Record, step.Version); err != nil {
		return fmt.Errorf("record migration %s: %w", step.Name, err)
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit migration %s: %w", step.Name, err)
	}
	return nil
}
