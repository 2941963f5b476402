package progress

import (
	"time"

	"github.com/felixgeelhaar/codedojo/internal/domain"
)

// CompletionPolicy decides whether a failing submission may clear an
// earlier completion
type CompletionPolicy string

const (
	// PolicySticky keeps a problem completed once it has been solved
	PolicySticky CompletionPolicy = "sticky"
	// PolicyLatest mirrors the latest grading outcome
	PolicyLatest CompletionPolicy = "latest"
)

// IsValid checks if the policy is known
func (p CompletionPolicy) IsValid() bool {
	return p == PolicySticky || p == PolicyLatest
}

// ApplyAttempt records one grading request on p. Attempts always increase
// by one; time spent is only overwritten by a positive value.
func ApplyAttempt(p *domain.UserProgress, passed bool, timeSpent int, now time.Time, policy CompletionPolicy) {
	p.Attempts++
	if timeSpent > 0 {
		p.TimeSpent = timeSpent
	}

	switch policy {
	case PolicyLatest:
		p.IsCompleted = passed
	default:
		if passed {
			p.IsCompleted = true
		}
	}

	if passed {
		t := now
		p.LastSubmitted = &t
	}
}

// ApplySolve updates or creates the leaderboard entry for a full pass. A new
// entry starts at one; an existing entry only grows when the problem was
// not already completed.
func ApplySolve(entry *domain.LeaderboardEntry, userID string, wasCompletedBefore bool, now time.Time) (*domain.LeaderboardEntry, bool) {
	if entry == nil {
		return &domain.LeaderboardEntry{
			UserID:      userID,
			TotalSolved: 1,
			LastUpdated: now,
		}, true
	}

	if !wasCompletedBefore {
		entry.TotalSolved++
		entry.LastUpdated = now
	}
	return entry, false
}

// ApplyStreak advances the daily streak for a solve on today.
//
//	never solved or last solve older than yesterday: streak = 1
//	last solve yesterday:                            streak + 1
//	already solved today:                            unchanged
func ApplyStreak(p *domain.Profile, today time.Time) {
	switch {
	case p.LastSolvedDate == nil || DaysBetween(*p.LastSolvedDate, today) > 1:
		p.Streak = 1
	case DaysBetween(*p.LastSolvedDate, today) == 1:
		p.Streak++
	}

	if p.Streak > p.HighScoreStreak {
		p.HighScoreStreak = p.Streak
	}

	d := today
	p.LastSolvedDate = &d
}
