package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/felixgeelhaar/codedojo/internal/domain"
)

// ProblemStore implements problem persistence backed by SQLite.
type ProblemStore struct {
	db *DB
}

// NewProblemStore creates a new SQLite-backed problem store.
func NewProblemStore(db *DB) *ProblemStore {
	return &ProblemStore{db: db}
}

const problemColumns = `id, name, problem_type, language, difficulty, description,
	test_cases, boilerplate_code, category, sort_order, created_at`

// Upsert inserts a problem or updates the existing one with the same name.
// The problem's ID is set from the stored row.
func (s *ProblemStore) Upsert(ctx context.Context, p *domain.Problem) error {
	cases, err := json.Marshal(p.TestCases)
	if err != nil {
		return fmt.Errorf("marshal test_cases: %w", err)
	}
	if p.CreatedAt.IsZero() {
		p.CreatedAt = time.Now()
	}

	row := s.db.QueryRowContext(ctx, `
		INSERT INTO problems (name, problem_type, language, difficulty, description,
			test_cases, boilerplate_code, category, sort_order, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(name) DO UPDATE SET
			problem_type=excluded.problem_type,
			language=excluded.language,
			difficulty=excluded.difficulty,
			description=excluded.description,
			test_cases=excluded.test_cases,
			boilerplate_code=excluded.boilerplate_code,
			category=excluded.category,
			sort_order=excluded.sort_order
		RETURNING id`,
		p.Name, string(p.Type), p.Language, string(p.Difficulty), p.Description,
		string(cases), p.Boilerplate, p.Category, p.Order, p.CreatedAt,
	)
	if err := row.Scan(&p.ID); err != nil {
		return fmt.Errorf("upsert problem: %w", err)
	}
	return nil
}

// Get retrieves a problem by ID.
func (s *ProblemStore) Get(ctx context.Context, id int64) (*domain.Problem, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+problemColumns+` FROM problems WHERE id = ?`, id)
	return scanProblem(row)
}

// List returns problems in lesson order, optionally filtered by type.
func (s *ProblemStore) List(ctx context.Context, problemType domain.ProblemType) ([]*domain.Problem, error) {
	query := `SELECT ` + problemColumns + ` FROM problems`
	var args []any
	if problemType != "" {
		query += ` WHERE problem_type = ?`
		args = append(args, string(problemType))
	}
	query += ` ORDER BY sort_order, created_at, id`

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list problems: %w", err)
	}
	defer rows.Close()

	var problems []*domain.Problem
	for rows.Next() {
		p, err := scanProblem(rows)
		if err != nil {
			return nil, err
		}
		problems = append(problems, p)
	}
	return problems, rows.Err()
}

// Count returns the number of stored problems.
func (s *ProblemStore) Count(ctx context.Context) (int, error) {
	var n int
	if err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM problems").Scan(&n); err != nil {
		return 0, fmt.Errorf("count problems: %w", err)
	}
	return n, nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanProblem(row scanner) (*domain.Problem, error) {
	var (
		p         domain.Problem
		typ, diff string
		casesJSON string
	)
	err := row.Scan(&p.ID, &p.Name, &typ, &p.Language, &diff, &p.Description,
		&casesJSON, &p.Boilerplate, &p.Category, &p.Order, &p.CreatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.ErrProblemNotFound
		}
		return nil, fmt.Errorf("scan problem: %w", err)
	}

	p.Type = domain.ProblemType(typ)
	p.Difficulty = domain.Difficulty(diff)
	if err := json.Unmarshal([]byte(casesJSON), &p.TestCases); err != nil {
		return nil, fmt.Errorf("unmarshal test_cases for problem %d: %w", p.ID, err)
	}
	return &p, nil
}
