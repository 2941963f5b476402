package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/felixgeelhaar/codedojo/internal/domain"
	"github.com/felixgeelhaar/codedojo/internal/progress"
)

// ProgressStore implements grading-state persistence backed by SQLite.
type ProgressStore struct {
	db *DB
}

// NewProgressStore creates a new SQLite-backed progress store.
func NewProgressStore(db *DB) *ProgressStore {
	return &ProgressStore{db: db}
}

// WithTx runs fn in one transaction. The DSN selects BEGIN IMMEDIATE, so
// the write lock is taken before the first read.
func (s *ProgressStore) WithTx(ctx context.Context, fn func(tx progress.Tx) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}

	if err := fn(&progressTx{q: tx}); err != nil {
		if rbErr := tx.Rollback(); rbErr != nil {
			return fmt.Errorf("%w (rollback: %v)", err, rbErr)
		}
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit tx: %w", err)
	}
	return nil
}

// GetProgress returns the caller's progress on a problem outside a transaction.
func (s *ProgressStore) GetProgress(ctx context.Context, userID string, problemID int64) (*domain.UserProgress, error) {
	return getProgress(ctx, s.db, userID, problemID)
}

// TopLeaderboard returns the highest totals first.
func (s *ProgressStore) TopLeaderboard(ctx context.Context, limit int) ([]domain.LeaderboardEntry, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT l.user_id, COALESCE(p.username, l.user_id), l.total_solved, l.last_updated
		FROM leaderboard_entries l
		LEFT JOIN profiles p ON p.user_id = l.user_id
		ORDER BY l.total_solved DESC, l.last_updated ASC
		LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("query leaderboard: %w", err)
	}
	defer rows.Close()

	var entries []domain.LeaderboardEntry
	for rows.Next() {
		var e domain.LeaderboardEntry
		if err := rows.Scan(&e.UserID, &e.Username, &e.TotalSolved, &e.LastUpdated); err != nil {
			return nil, fmt.Errorf("scan leaderboard entry: %w", err)
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

// LeaderboardEntry returns one user's entry.
func (s *ProgressStore) LeaderboardEntry(ctx context.Context, userID string) (*domain.LeaderboardEntry, error) {
	return getLeaderboardEntry(ctx, s.db, userID)
}

// Profile returns one user's profile.
func (s *ProgressStore) Profile(ctx context.Context, userID string) (*domain.Profile, error) {
	return getProfile(ctx, s.db, userID)
}

// progressTx implements progress.Tx over a sql transaction.
type progressTx struct {
	q querier
}

func (t *progressTx) GetProgress(ctx context.Context, userID string, problemID int64) (*domain.UserProgress, error) {
	return getProgress(ctx, t.q, userID, problemID)
}

func (t *progressTx) SaveProgress(ctx context.Context, p *domain.UserProgress) error {
	var lastSubmitted any
	if p.LastSubmitted != nil {
		lastSubmitted = *p.LastSubmitted
	}

	_, err := t.q.ExecContext(ctx, `
		INSERT INTO user_progress (user_id, problem_id, attempts, time_spent, is_completed, last_submitted)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(user_id, problem_id) DO UPDATE SET
			attempts=excluded.attempts,
			time_spent=excluded.time_spent,
			is_completed=excluded.is_completed,
			last_submitted=excluded.last_submitted`,
		p.UserID, p.ProblemID, p.Attempts, p.TimeSpent, p.IsCompleted, lastSubmitted,
	)
	if err != nil {
		return fmt.Errorf("upsert progress: %w", err)
	}
	return nil
}

func (t *progressTx) InsertSubmission(ctx context.Context, sub *domain.Submission) (int64, error) {
	var results any
	if len(sub.Results) > 0 {
		results = string(sub.Results)
	}

	res, err := t.q.ExecContext(ctx, `
		INSERT INTO submissions (user_id, problem_id, code, status, language, results, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		sub.UserID, sub.ProblemID, sub.Code, string(sub.Status), sub.Language, results, sub.CreatedAt,
	)
	if err != nil {
		return 0, fmt.Errorf("insert submission: %w", err)
	}

	id, err := res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("submission id: %w", err)
	}
	sub.ID = id
	return id, nil
}

func (t *progressTx) GetLeaderboardEntry(ctx context.Context, userID string) (*domain.LeaderboardEntry, error) {
	return getLeaderboardEntry(ctx, t.q, userID)
}

func (t *progressTx) SaveLeaderboardEntry(ctx context.Context, e *domain.LeaderboardEntry) error {
	_, err := t.q.ExecContext(ctx, `
		INSERT INTO leaderboard_entries (user_id, total_solved, last_updated)
		VALUES (?, ?, ?)
		ON CONFLICT(user_id) DO UPDATE SET
			total_solved=excluded.total_solved,
			last_updated=excluded.last_updated`,
		e.UserID, e.TotalSolved, e.LastUpdated,
	)
	if err != nil {
		return fmt.Errorf("upsert leaderboard entry: %w", err)
	}
	return nil
}

func (t *progressTx) GetProfile(ctx context.Context, userID string) (*domain.Profile, error) {
	return getProfile(ctx, t.q, userID)
}

func (t *progressTx) SaveProfile(ctx context.Context, p *domain.Profile) error {
	return saveProfile(ctx, t.q, p)
}

func getProgress(ctx context.Context, q querier, userID string, problemID int64) (*domain.UserProgress, error) {
	var (
		p             domain.UserProgress
		lastSubmitted sql.NullTime
	)
	err := q.QueryRowContext(ctx, `
		SELECT user_id, problem_id, attempts, time_spent, is_completed, last_submitted
		FROM user_progress WHERE user_id = ? AND problem_id = ?`, userID, problemID,
	).Scan(&p.UserID, &p.ProblemID, &p.Attempts, &p.TimeSpent, &p.IsCompleted, &lastSubmitted)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.ErrNotFound
		}
		return nil, fmt.Errorf("get progress: %w", err)
	}
	if lastSubmitted.Valid {
		t := lastSubmitted.Time
		p.LastSubmitted = &t
	}
	return &p, nil
}

func getLeaderboardEntry(ctx context.Context, q querier, userID string) (*domain.LeaderboardEntry, error) {
	var e domain.LeaderboardEntry
	err := q.QueryRowContext(ctx, `
		SELECT l.user_id, COALESCE(p.username, l.user_id), l.total_solved, l.last_updated
		FROM leaderboard_entries l
		LEFT JOIN profiles p ON p.user_id = l.user_id
		WHERE l.user_id = ?`, userID,
	).Scan(&e.UserID, &e.Username, &e.TotalSolved, &e.LastUpdated)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.ErrNotFound
		}
		return nil, fmt.Errorf("get leaderboard entry: %w", err)
	}
	return &e, nil
}

// Ensure ProgressStore implements the progress interfaces.
var (
	_ progress.Store  = (*ProgressStore)(nil)
	_ progress.Reader = (*ProgressStore)(nil)
	_ progress.Tx     = (*progressTx)(nil)
)
