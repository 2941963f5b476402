package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/felixgeelhaar/codedojo/internal/domain"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// ProblemStore implements problem persistence backed by PostgreSQL.
type ProblemStore struct {
	pool *pgxpool.Pool
}

// NewProblemStore creates a new PostgreSQL-backed problem store.
func NewProblemStore(pool *pgxpool.Pool) *ProblemStore {
	return &ProblemStore{pool: pool}
}

const problemColumns = `id, name, problem_type, language, difficulty, description,
	test_cases, boilerplate_code, category, sort_order, created_at`

// Upsert inserts a problem or updates the existing one with the same name.
func (s *ProblemStore) Upsert(ctx context.Context, p *domain.Problem) error {
	cases, err := json.Marshal(p.TestCases)
	if err != nil {
		return fmt.Errorf("marshal test_cases: %w", err)
	}
	if p.CreatedAt.IsZero() {
		p.CreatedAt = time.Now()
	}

	err = s.pool.QueryRow(ctx, `
		INSERT INTO problems (name, problem_type, language, difficulty, description,
			test_cases, boilerplate_code, category, sort_order, created_at)
		VALUES ($1, $2, $3, $4, $5, $6::jsonb, $7, $8, $9, $10)
		ON CONFLICT (name) DO UPDATE SET
			problem_type = EXCLUDED.problem_type,
			language = EXCLUDED.language,
			difficulty = EXCLUDED.difficulty,
			description = EXCLUDED.description,
			test_cases = EXCLUDED.test_cases,
			boilerplate_code = EXCLUDED.boilerplate_code,
			category = EXCLUDED.category,
			sort_order = EXCLUDED.sort_order
		RETURNING id`,
		p.Name, string(p.Type), p.Language, string(p.Difficulty), p.Description,
		string(cases), p.Boilerplate, p.Category, p.Order, p.CreatedAt,
	).Scan(&p.ID)
	if err != nil {
		return fmt.Errorf("upsert problem: %w", err)
	}
	return nil
}

// Get retrieves a problem by ID.
func (s *ProblemStore) Get(ctx context.Context, id int64) (*domain.Problem, error) {
	row := s.pool.QueryRow(ctx, `SELECT `+problemColumns+` FROM problems WHERE id = $1`, id)
	return scanProblem(row)
}

// List returns problems in lesson order, optionally filtered by type.
func (s *ProblemStore) List(ctx context.Context, problemType domain.ProblemType) ([]*domain.Problem, error) {
	query := `SELECT ` + problemColumns + ` FROM problems`
	var args []any
	if problemType != "" {
		query += ` WHERE problem_type = $1`
		args = append(args, string(problemType))
	}
	query += ` ORDER BY sort_order, created_at, id`

	rows, err := s.pool.Query(ctx, query, args...)
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
	if err := s.pool.QueryRow(ctx, "SELECT COUNT(*) FROM problems").Scan(&n); err != nil {
		return 0, fmt.Errorf("count problems: %w", err)
	}
	return n, nil
}

func scanProblem(row pgx.Row) (*domain.Problem, error) {
	var (
		p         domain.Problem
		typ, diff string
		casesJSON []byte
	)
	err := row.Scan(&p.ID, &p.Name, &typ, &p.Language, &diff, &p.Description,
		&casesJSON, &p.Boilerplate, &p.Category, &p.Order, &p.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrProblemNotFound
		}
		return nil, fmt.Errorf("scan problem: %w", err)
	}

	p.Type = domain.ProblemType(typ)
	p.Difficulty = domain.Difficulty(diff)
	if err := json.Unmarshal(casesJSON, &p.TestCases); err != nil {
		return nil, fmt.Errorf("unmarshal test_cases for problem %d: %w", p.ID, err)
	}
	return &p, nil
}
