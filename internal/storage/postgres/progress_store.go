package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/felixgeelhaar/codedojo/internal/domain"
	"github.com/felixgeelhaar/codedojo/internal/progress"
	"github.com/felixgeelhaar/fortify/retry"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

// SQLSTATE codes that mean the transaction may succeed if retried
const (
	codeSerializationFailure = "40001"
	codeDeadlockDetected     = "40P01"
)

// ProgressStore implements grading-state persistence on PostgreSQL. Each
// transaction runs SERIALIZABLE and is retried on serialization failure.
type ProgressStore struct {
	pool    *pgxpool.Pool
	retrier retry.Retry[struct{}]
}

// NewProgressStore creates a new PostgreSQL-backed progress store.
func NewProgressStore(pool *pgxpool.Pool) *ProgressStore {
	return &ProgressStore{
		pool: pool,
		retrier: retry.New[struct{}](retry.Config{
			MaxAttempts:   5,
			InitialDelay:  20 * time.Millisecond,
			MaxDelay:      500 * time.Millisecond,
			Multiplier:    2.0,
			BackoffPolicy: retry.BackoffExponential,
			Jitter:        true,
			IsRetryable:   isRetryable,
		}),
	}
}

// isRetryable reports whether err is a serialization or deadlock failure
func isRetryable(err error) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == codeSerializationFailure || pgErr.Code == codeDeadlockDetected
	}
	return false
}

// WithTx runs fn in a SERIALIZABLE transaction, retrying the whole
// function when the database reports a serialization conflict.
func (s *ProgressStore) WithTx(ctx context.Context, fn func(tx progress.Tx) error) error {
	_, err := s.retrier.Do(ctx, func(ctx context.Context) (struct{}, error) {
		return struct{}{}, s.runTx(ctx, fn)
	})
	return err
}

func (s *ProgressStore) runTx(ctx context.Context, fn func(tx progress.Tx) error) error {
	tx, err := s.pool.BeginTx(ctx, pgx.TxOptions{IsoLevel: pgx.Serializable})
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback(ctx) //nolint:errcheck // no-op after commit

	if err := fn(&progressTx{tx: tx}); err != nil {
		return err
	}
	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit tx: %w", err)
	}
	return nil
}

// GetProgress returns the caller's progress on a problem.
func (s *ProgressStore) GetProgress(ctx context.Context, userID string, problemID int64) (*domain.UserProgress, error) {
	return getProgress(ctx, s.pool, userID, problemID, false)
}

// TopLeaderboard returns the highest totals first.
func (s *ProgressStore) TopLeaderboard(ctx context.Context, limit int) ([]domain.LeaderboardEntry, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT l.user_id, COALESCE(p.username, l.user_id), l.total_solved, l.last_updated
		FROM leaderboard_entries l
		LEFT JOIN profiles p ON p.user_id = l.user_id
		ORDER BY l.total_solved DESC, l.last_updated ASC
		LIMIT $1`, limit)
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
	return getLeaderboardEntry(ctx, s.pool, userID, false)
}

// Profile returns one user's profile.
func (s *ProgressStore) Profile(ctx context.Context, userID string) (*domain.Profile, error) {
	return getProfile(ctx, s.pool, userID, false)
}

// querier is satisfied by *pgxpool.Pool and pgx.Tx
type querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// progressTx locks the rows it reads so that concurrent gradings of the
// same user serialize on them.
type progressTx struct {
	tx pgx.Tx
}

func (t *progressTx) GetProgress(ctx context.Context, userID string, problemID int64) (*domain.UserProgress, error) {
	return getProgress(ctx, t.tx, userID, problemID, true)
}

func (t *progressTx) SaveProgress(ctx context.Context, p *domain.UserProgress) error {
	_, err := t.tx.Exec(ctx, `
		INSERT INTO user_progress (user_id, problem_id, attempts, time_spent, is_completed, last_submitted)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (user_id, problem_id) DO UPDATE SET
			attempts = EXCLUDED.attempts,
			time_spent = EXCLUDED.time_spent,
			is_completed = EXCLUDED.is_completed,
			last_submitted = EXCLUDED.last_submitted`,
		p.UserID, p.ProblemID, p.Attempts, p.TimeSpent, p.IsCompleted, p.LastSubmitted,
	)
	if err != nil {
		return fmt.Errorf("upsert progress: %w", err)
	}
	return nil
}

func (t *progressTx) InsertSubmission(ctx context.Context, sub *domain.Submission) (int64, error) {
	var results []byte
	if len(sub.Results) > 0 {
		results = sub.Results
	}

	err := t.tx.QueryRow(ctx, `
		INSERT INTO submissions (user_id, problem_id, code, status, language, results, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING id`,
		sub.UserID, sub.ProblemID, sub.Code, string(sub.Status), sub.Language, results, sub.CreatedAt,
	).Scan(&sub.ID)
	if err != nil {
		return 0, fmt.Errorf("insert submission: %w", err)
	}
	return sub.ID, nil
}

func (t *progressTx) GetLeaderboardEntry(ctx context.Context, userID string) (*domain.LeaderboardEntry, error) {
	return getLeaderboardEntry(ctx, t.tx, userID, true)
}

func (t *progressTx) SaveLeaderboardEntry(ctx context.Context, e *domain.LeaderboardEntry) error {
	_, err := t.tx.Exec(ctx, `
		INSERT INTO leaderboard_entries (user_id, total_solved, last_updated)
		VALUES ($1, $2, $3)
		ON CONFLICT (user_id) DO UPDATE SET
			total_solved = EXCLUDED.total_solved,
			last_updated = EXCLUDED.last_updated`,
		e.UserID, e.TotalSolved, e.LastUpdated,
	)
	if err != nil {
		return fmt.Errorf("upsert leaderboard entry: %w", err)
	}
	return nil
}

func (t *progressTx) GetProfile(ctx context.Context, userID string) (*domain.Profile, error) {
	return getProfile(ctx, t.tx, userID, true)
}

func (t *progressTx) SaveProfile(ctx context.Context, p *domain.Profile) error {
	return saveProfile(ctx, t.tx, p)
}

func forUpdate(lock bool) string {
	if lock {
		return " FOR UPDATE"
	}
	return ""
}

func getProgress(ctx context.Context, q querier, userID string, problemID int64, lock bool) (*domain.UserProgress, error) {
	var p domain.UserProgress
	err := q.QueryRow(ctx, `
		SELECT user_id, problem_id, attempts, time_spent, is_completed, last_submitted
		FROM user_progress WHERE user_id = $1 AND problem_id = $2`+forUpdate(lock),
		userID, problemID,
	).Scan(&p.UserID, &p.ProblemID, &p.Attempts, &p.TimeSpent, &p.IsCompleted, &p.LastSubmitted)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrNotFound
		}
		return nil, fmt.Errorf("get progress: %w", err)
	}
	return &p, nil
}

func getLeaderboardEntry(ctx context.Context, q querier, userID string, lock bool) (*domain.LeaderboardEntry, error) {
	var e domain.LeaderboardEntry
	var err error
	if lock {
		err = q.QueryRow(ctx, `
			SELECT user_id, user_id, total_solved, last_updated
			FROM leaderboard_entries WHERE user_id = $1 FOR UPDATE`, userID,
		).Scan(&e.UserID, &e.Username, &e.TotalSolved, &e.LastUpdated)
	} else {
		err = q.QueryRow(ctx, `
			SELECT l.user_id, COALESCE(p.username, l.user_id), l.total_solved, l.last_updated
			FROM leaderboard_entries l
			LEFT JOIN profiles p ON p.user_id = l.user_id
			WHERE l.user_id = $1`, userID,
		).Scan(&e.UserID, &e.Username, &e.TotalSolved, &e.LastUpdated)
	}
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrNotFound
		}
		return nil, fmt.Errorf("get leaderboard entry: %w", err)
	}
	return &e, nil
}

func getProfile(ctx context.Context, q querier, userID string, lock bool) (*domain.Profile, error) {
	var (
		p     domain.Profile
		level string
	)
	err := q.QueryRow(ctx, `
		SELECT user_id, username, experience_level, description, streak,
			high_score_streak, last_solved_date, created_at, updated_at
		FROM profiles WHERE user_id = $1`+forUpdate(lock), userID,
	).Scan(&p.UserID, &p.Username, &level, &p.Description, &p.Streak,
		&p.HighScoreStreak, &p.LastSolvedDate, &p.CreatedAt, &p.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrProfileNotFound
		}
		return nil, fmt.Errorf("get profile: %w", err)
	}
	p.ExperienceLevel = domain.ExperienceLevel(level)
	return &p, nil
}

func saveProfile(ctx context.Context, q querier, p *domain.Profile) error {
	now := time.Now()
	if p.CreatedAt.IsZero() {
		p.CreatedAt = now
	}
	if p.Username == "" {
		p.Username = p.UserID
	}

	_, err := q.Exec(ctx, `
		INSERT INTO profiles (user_id, username, experience_level, description, streak,
			high_score_streak, last_solved_date, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		ON CONFLICT (user_id) DO UPDATE SET
			username = EXCLUDED.username,
			experience_level = EXCLUDED.experience_level,
			description = EXCLUDED.description,
			streak = EXCLUDED.streak,
			high_score_streak = EXCLUDED.high_score_streak,
			last_solved_date = EXCLUDED.last_solved_date,
			updated_at = EXCLUDED.updated_at`,
		p.UserID, p.Username, string(p.ExperienceLevel), p.Description, p.Streak,
		p.HighScoreStreak, p.LastSolvedDate, p.CreatedAt, now,
	)
	if err != nil {
		return fmt.Errorf("upsert profile: %w", err)
	}
	p.UpdatedAt = now
	return nil
}

// Ensure ProgressStore implements the progress interfaces.
var (
	_ progress.Store  = (*ProgressStore)(nil)
	_ progress.Reader = (*ProgressStore)(nil)
	_ progress.Tx     = (*progressTx)(nil)
)
