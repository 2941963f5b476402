// Package profile reads and edits the user-editable part of a profile.
// Streak fields are owned by the grading updater and never written here.
package profile

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/felixgeelhaar/codedojo/internal/domain"
)

// MaxDescriptionLength bounds the free-text background
const MaxDescriptionLength = 2000

// Store persists profiles
type Store interface {
	Get(ctx context.Context, userID string) (*domain.Profile, error)
	// UpdateDetails upserts username, experience level and description
	// without touching streak fields.
	UpdateDetails(ctx context.Context, p *domain.Profile) error
}

// UpdateRequest carries the fields to change; nil fields are kept
type UpdateRequest struct {
	Username        *string                 `json:"username,omitempty"`
	ExperienceLevel *domain.ExperienceLevel `json:"experience_level,omitempty"`
	Description     *string                 `json:"description,omitempty"`
}

// Service handles profile business logic
type Service struct {
	store  Store
	logger *slog.Logger
}

// NewService creates a new profile service
func NewService(store Store, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{store: store, logger: logger}
}

// Get returns the user's profile or domain.ErrProfileNotFound
func (s *Service) Get(ctx context.Context, userID string) (*domain.Profile, error) {
	if userID == "" {
		return nil, domain.ErrUnauthorized
	}
	return s.store.Get(ctx, userID)
}

// Update applies req, creating the profile when it does not exist yet
func (s *Service) Update(ctx context.Context, userID string, req UpdateRequest) (*domain.Profile, error) {
	if userID == "" {
		return nil, domain.ErrUnauthorized
	}

	p, err := s.store.Get(ctx, userID)
	switch {
	case errors.Is(err, domain.ErrProfileNotFound):
		p = domain.NewProfile(userID)
	case err != nil:
		return nil, fmt.Errorf("get profile: %w", err)
	}

	if req.Username != nil {
		name := strings.TrimSpace(*req.Username)
		if name == "" {
			return nil, fmt.Errorf("%w: username cannot be blank", domain.ErrInvalidInput)
		}
		p.Username = name
	}
	if req.ExperienceLevel != nil {
		if !req.ExperienceLevel.IsValid() {
			return nil, fmt.Errorf("%w: %q", domain.ErrInvalidLevel, *req.ExperienceLevel)
		}
		p.ExperienceLevel = *req.ExperienceLevel
	}
	if req.Description != nil {
		desc := strings.TrimSpace(*req.Description)
		if len(desc) > MaxDescriptionLength {
			return nil, fmt.Errorf("%w: description longer than %d characters", domain.ErrInvalidInput, MaxDescriptionLength)
		}
		p.Description = desc
	}

	if err := s.store.UpdateDetails(ctx, p); err != nil {
		return nil, fmt.Errorf("save profile: %w", err)
	}
	s.logger.Debug("profile updated", "user_id", userID, "experience_level", p.ExperienceLevel)
	return p, nil
}
