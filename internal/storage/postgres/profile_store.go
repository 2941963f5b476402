package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/felixgeelhaar/codedojo/internal/domain"
	"github.com/jackc/pgx/v5/pgxpool"
)

// ProfileStore implements profile persistence backed by PostgreSQL.
type ProfileStore struct {
	pool *pgxpool.Pool
}

// NewProfileStore creates a new PostgreSQL-backed profile store.
func NewProfileStore(pool *pgxpool.Pool) *ProfileStore {
	return &ProfileStore{pool: pool}
}

// Get retrieves a profile by user ID.
func (s *ProfileStore) Get(ctx context.Context, userID string) (*domain.Profile, error) {
	return getProfile(ctx, s.pool, userID, false)
}

// Save persists a profile (insert or update).
func (s *ProfileStore) Save(ctx context.Context, p *domain.Profile) error {
	return saveProfile(ctx, s.pool, p)
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

	_, err := s.pool.Exec(ctx, `
		INSERT INTO profiles (user_id, username, experience_level, description, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (user_id) DO UPDATE SET
			username = EXCLUDED.username,
			experience_level = EXCLUDED.experience_level,
			description = EXCLUDED.description,
			updated_at = EXCLUDED.updated_at`,
		p.UserID, p.Username, string(p.ExperienceLevel), p.Description, p.CreatedAt, now,
	)
	if err != nil {
		return fmt.Errorf("update profile details: %w", err)
	}
	p.UpdatedAt = now
	return nil
}
