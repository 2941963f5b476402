package progress

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/felixgeelhaar/codedojo/internal/domain"
)

// DefaultLeaderboardSize is the number of entries the leaderboard shows
const DefaultLeaderboardSize = 50

// Reader serves leaderboard and streak reads outside a grading transaction
type Reader interface {
	TopLeaderboard(ctx context.Context, limit int) ([]domain.LeaderboardEntry, error)
	LeaderboardEntry(ctx context.Context, userID string) (*domain.LeaderboardEntry, error)
	Profile(ctx context.Context, userID string) (*domain.Profile, error)
}

// UserStats summarises one user's standing
type UserStats struct {
	UserID          string     `json:"user_id"`
	TotalSolved     int        `json:"total_solved"`
	LastUpdated     *time.Time `json:"last_updated"`
	Streak          int        `json:"streak"`
	HighScoreStreak int        `json:"high_score_streak"`
	LastSolvedDate  *time.Time `json:"last_solved_date"`
}

// Board answers leaderboard queries
type Board struct {
	reader Reader
}

// NewBoard creates a new board
func NewBoard(r Reader) *Board {
	return &Board{reader: r}
}

// Top returns the highest totals first. A non-positive limit selects
// DefaultLeaderboardSize.
func (b *Board) Top(ctx context.Context, limit int) ([]domain.LeaderboardEntry, error) {
	if limit <= 0 || limit > DefaultLeaderboardSize {
		limit = DefaultLeaderboardSize
	}
	entries, err := b.reader.TopLeaderboard(ctx, limit)
	if err != nil {
		return nil, fmt.Errorf("top leaderboard: %w", err)
	}
	if entries == nil {
		entries = []domain.LeaderboardEntry{}
	}
	return entries, nil
}

// Stats returns the user's totals, zeroed when the user has no entry yet
func (b *Board) Stats(ctx context.Context, userID string) (*UserStats, error) {
	stats := &UserStats{UserID: userID}

	entry, err := b.reader.LeaderboardEntry(ctx, userID)
	switch {
	case err == nil:
		stats.TotalSolved = entry.TotalSolved
		updated := entry.LastUpdated
		stats.LastUpdated = &updated
	case !errors.Is(err, domain.ErrNotFound):
		return nil, fmt.Errorf("get leaderboard entry: %w", err)
	}

	profile, err := b.reader.Profile(ctx, userID)
	switch {
	case err == nil:
		stats.Streak = profile.Streak
		stats.HighScoreStreak = profile.HighScoreStreak
		stats.LastSolvedDate = profile.LastSolvedDate
	case !errors.Is(err, domain.ErrProfileNotFound):
		return nil, fmt.Errorf("get profile: %w", err)
	}

	return stats, nil
}
