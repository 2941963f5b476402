package domain

import "time"

// UserProgress tracks one user's work on one problem
type UserProgress struct {
	UserID        string     `json:"user_id"`
	ProblemID     int64      `json:"problem_id"`
	Attempts      int        `json:"attempts"`
	TimeSpent     int        `json:"time_spent"`
	IsCompleted   bool       `json:"is_completed"`
	LastSubmitted *time.Time `json:"last_submitted,omitempty"`
}

// LeaderboardEntry counts the distinct problems a user has solved
type LeaderboardEntry struct {
	UserID      string    `json:"user_id"`
	Username    string    `json:"username"`
	TotalSolved int       `json:"total_solved"`
	LastUpdated time.Time `json:"last_updated"`
}
