package domain

import "time"

// ExperienceLevel drives how the tutor pitches its guidance
type ExperienceLevel string

const (
	LevelBeginner     ExperienceLevel = "beginner"
	LevelIntermediate ExperienceLevel = "intermediate"
	LevelAdvanced     ExperienceLevel = "advanced"
)

// IsValid checks if the level is known
func (l ExperienceLevel) IsValid() bool {
	switch l {
	case LevelBeginner, LevelIntermediate, LevelAdvanced:
		return true
	default:
		return false
	}
}

// Profile holds a learner's self description and streak counters.
// HighScoreStreak is never below Streak.
type Profile struct {
	UserID          string          `json:"user_id"`
	Username        string          `json:"username"`
	ExperienceLevel ExperienceLevel `json:"experience_level"`
	Description     string          `json:"description,omitempty"`
	Streak          int             `json:"streak"`
	HighScoreStreak int             `json:"high_score_streak"`
	LastSolvedDate  *time.Time      `json:"last_solved_date,omitempty"`
	CreatedAt       time.Time       `json:"created_at"`
	UpdatedAt       time.Time       `json:"updated_at"`
}

// NewProfile returns a beginner profile with zeroed streaks
func NewProfile(userID string) *Profile {
	now := time.Now()
	return &Profile{
		UserID:          userID,
		Username:        userID,
		ExperienceLevel: LevelBeginner,
		CreatedAt:       now,
		UpdatedAt:       now,
	}
}
