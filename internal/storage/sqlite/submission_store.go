package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"github.com/felixgeelhaar/codedojo/internal/domain"
)

// SubmissionStore reads submission history from SQLite. Submissions are
// written by ProgressStore inside the grading transaction.
type SubmissionStore struct {
	db *DB
}

// NewSubmissionStore creates a new SQLite-backed submission store.
func NewSubmissionStore(db *DB) *SubmissionStore {
	return &SubmissionStore{db: db}
}

// List returns the user's submissions for a problem, newest first.
func (s *SubmissionStore) List(ctx context.Context, userID string, problemID int64, limit int) ([]*domain.Submission, error) {
	return s.query(ctx, `
		SELECT id, user_id, problem_id, code, status, language, results, created_at
		FROM submissions
		WHERE user_id = ? AND problem_id = ?
		ORDER BY created_at DESC, id DESC
		LIMIT ?`, userID, problemID, limit)
}

// ListByStatus returns the user's submissions across all problems whose
// status is one of statuses, newest first.
func (s *SubmissionStore) ListByStatus(ctx context.Context, userID string, statuses []domain.SubmissionStatus, limit int) ([]*domain.Submission, error) {
	if len(statuses) == 0 {
		return nil, nil
	}
	args := make([]any, 0, len(statuses)+2)
	args = append(args, userID)
	for _, st := range statuses {
		args = append(args, string(st))
	}
	args = append(args, limit)

	placeholders := strings.TrimSuffix(strings.Repeat("?,", len(statuses)), ",")
	return s.query(ctx, `
		SELECT id, user_id, problem_id, code, status, language, results, created_at
		FROM submissions
		WHERE user_id = ? AND status IN (`+placeholders+`)
		ORDER BY created_at DESC, id DESC
		LIMIT ?`, args...)
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
			results sql.NullString
		)
		if err := rows.Scan(&sub.ID, &sub.UserID, &sub.ProblemID, &sub.Code, &status,
			&sub.Language, &results, &sub.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan submission: %w", err)
		}
		sub.Status = domain.SubmissionStatus(status)
		if results.Valid {
			sub.Results = []byte(results.String)
		}
		subs = append(subs, &sub)
	}
	return subs, rows.Err()
}
