package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/felixgeelhaar/codedojo/internal/domain"
	"github.com/lib/pq"
	"github.com/sqlc-dev/pqtype"
)

// SubmissionStore reads submission history through database/sql. Rows are
// written by ProgressStore inside the grading transaction.
type SubmissionStore struct {
	db *sql.DB
}

// NewSubmissionStore creates a new PostgreSQL-backed submission store.
func NewSubmissionStore(db *sql.DB) *SubmissionStore {
	return &SubmissionStore{db: db}
}

// List returns the user's submissions for a problem, newest first.
func (s *SubmissionStore) List(ctx context.Context, userID string, problemID int64, limit int) ([]*domain.Submission, error) {
	return s.query(ctx, `
		SELECT id, user_id, problem_id, code, status, language, results, created_at
		FROM submissions
		WHERE user_id = $1 AND problem_id = $2
		ORDER BY created_at DESC, id DESC
		LIMIT $3`, userID, problemID, limit)
}

// ListByStatus returns the user's submissions across all problems whose
// status is one of statuses, newest first.
func (s *SubmissionStore) ListByStatus(ctx context.Context, userID string, statuses []domain.SubmissionStatus, limit int) ([]*domain.Submission, error) {
	names := make([]string, len(statuses))
	for i, st := range statuses {
		names[i] = string(st)
	}
	return s.query(ctx, `
		SELECT id, user_id, problem_id, code, status, language, results, created_at
		FROM submissions
		WHERE user_id = $1 AND status = ANY($2)
		ORDER BY created_at DESC, id DESC
		LIMIT $3`, userID, pq.Array(names), limit)
}

func (s *SubmissionStore) query(ctx context.Context, query string, args ...any) ([]*domain.Submission, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list submissions: %w", err)
	}
	defer rows.Close()

	var subs []*domain.Submission
	for rows.Next() {
		var (
			sub     domain.Submission
			status  string
			results pqtype.NullRawMessage
		)
		if err := rows.Scan(&sub.ID, &sub.UserID, &sub.ProblemID, &sub.Code, &status,
			&sub.Language, &results, &sub.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan submission: %w", err)
		}
		sub.Status = domain.SubmissionStatus(status)
		sub.Results = rawMessageFromNullable(results)
		subs = append(subs, &sub)
	}
	return subs, rows.Err()
}

func rawMessageFromNullable(n pqtype.NullRawMessage) json.RawMessage {
	if !n.Valid {
		return nil
	}
	return n.RawMessage
}
