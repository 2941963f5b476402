package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/felixgeelhaar/codedojo/internal/domain"
)

// ProfileStore implements profile persistence backed by SQLite.
type ProfileStore struct {
	db *DB
}

// NewProfileStore creates a new SQLite-backed profile store.
func NewProfileStore(db *DB) *ProfileStore {
	return &ProfileStore{db: db}
}

// Get retrieves a profile by user ID.
func (s *ProfileStore) Get(ctx context.Context, userID string) (*domain.Profile, error) {
	return getProfile(ctx, s.db, userID)
}

// Save persists a profile (insert or update).
func (s *ProfileStore) Save(ctx context.Context, p *domain.Profile) error {
	return saveProfile(ctx, s.db, p)
}

func getProfile(ctx context.Context, q querier, userID string) (*domain.Profile, error) {
	var (
		p         domain.Profile
		level     string
		lastSolve sql.NullTime
	)
	err := q.QueryRowContext(ctx, `
		SELECT user_id, username, experience_level, description, streak,
			high_score_streak, last_solved_date, created_at, updated_at
		FROM profiles WHERE user_id = ?`, userID,
	).Scan(&p.UserID, &p.Username, &level, &p.Description, &p.Streak,
		&p.HighScoreStreak, &lastSolve, &p.CreatedAt, &p.UpdatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.ErrProfileNotFound
		}
		return nil, fmt.Errorf("get profile: %w", err)
	}

	p.ExperienceLevel = domain.ExperienceLevel(level)
	if lastSolve.Valid {
		d := lastSolve.Time
		p.LastSolvedDate = &d
	}
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

	var lastSolve any
	if p.LastSolvedDate != nil {
		lastSolve = *p.LastSolvedDate
	}

	_, err := q.ExecContext(ctx, `
		INSERT INTO profiles (user_id, username, experience_level, description, streak,
			high_score_streak, last_solved_date, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(user_id) DO UPDATE SET
			username=excluded.username,
			experience_level=excluded.experience_level,
			description=excluded.description,
			streak=excluded.streak,
			high_score_streak=excluded.high_score_streak,
			last_solved_date=excluded.last_solved_date,
			updated_at=excluded.updated_at`,
		p.UserID, p.Username, string(p.ExperienceLevel), p.Description, p.Streak,
		p.HighScoreStreak, lastSolve, p.CreatedAt, now,
	)
	if err != nil {
		return fmt.Errorf("upsert profile: %w", err)
	}
	p.UpdatedAt = now
	return nil
}

// UpdateDetails upserts the user-editable fields, leaving streak fields as
// stored.
func (s *ProfileStore) UpdateDetails(ctx context.Context, p *domain.Profile) error {
	now := time.Now()
	if p.CreatedAt.IsZero() {
		p.CreatedAt = now
	}
	if p.Username == "" {
		p.Username = p.UserID
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO profiles (user_id, username, experience_level, description, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(user_id) DO UPDATE SET
			username=excluded.username,
			experience_level=excluded.experience_level,
			description=excluded.description,
			updated_at=excluded.updated_at`,
		p.UserID, p.Username, string(p.ExperienceLevel), p.Description, p.CreatedAt, now,
	)
	if err != nil {
		return fmt.Errorf("update profile details: %w", err)
	}
	p.UpdatedAt = now
	return nil
}
