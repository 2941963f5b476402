// Package progress applies grading outcomes to per-user progress, the
// leaderboard and daily streaks.
package progress

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/felixgeelhaar/codedojo/internal/domain"
)

// Tx is the set of storage operations the updater performs atomically.
// Getters return domain.ErrNotFound (or domain.ErrProfileNotFound) when the
// row does not exist.
type Tx interface {
	GetProgress(ctx context.Context, userID string, problemID int64) (*domain.UserProgress, error)
	SaveProgress(ctx context.Context, p *domain.UserProgress) error
	InsertSubmission(ctx context.Context, s *domain.Submission) (int64, error)
	GetLeaderboardEntry(ctx context.Context, userID string) (*domain.LeaderboardEntry, error)
	SaveLeaderboardEntry(ctx context.Context, e *domain.LeaderboardEntry) error
	GetProfile(ctx context.Context, userID string) (*domain.Profile, error)
	SaveProfile(ctx context.Context, p *domain.Profile) error
}

// Store runs fn inside one transaction, committing when fn returns nil
type Store interface {
	WithTx(ctx context.Context, fn func(tx Tx) error) error
}

// Outcome is one graded submission
type Outcome struct {
	UserID    string
	ProblemID int64
	Code      string
	Language  string
	Passed    bool
	TimeSpent int
	Results   []byte
}

// Delta reports the state written for an outcome
type Delta struct {
	SubmissionID       int64
	WasCompletedBefore bool
	Progress           domain.UserProgress
	TotalSolved        int
	Streak             int
	HighScoreStreak    int
}

// Updater records grading outcomes
type Updater struct {
	store  Store
	clock  Clock
	policy CompletionPolicy
	loc    *time.Location
	logger *slog.Logger
}

// Option configures an Updater
type Option func(*Updater)

// WithClock sets the clock
func WithClock(c Clock) Option {
	return func(u *Updater) { u.clock = c }
}

// WithPolicy sets the completion policy
func WithPolicy(p CompletionPolicy) Option {
	return func(u *Updater) {
		if p.IsValid() {
			u.policy = p
		}
	}
}

// WithLocation sets the time zone that decides calendar days for streaks
func WithLocation(loc *time.Location) Option {
	return func(u *Updater) {
		if loc != nil {
			u.loc = loc
		}
	}
}

// WithLogger sets the logger
func WithLogger(l *slog.Logger) Option {
	return func(u *Updater) { u.logger = l }
}

// NewUpdater creates an updater over store
func NewUpdater(store Store, opts ...Option) *Updater {
	u := &Updater{
		store:  store,
		clock:  SystemClock,
		policy: PolicySticky,
		loc:    time.UTC,
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(u)
	}
	return u
}

// Policy returns the completion policy in effect
func (u *Updater) Policy() CompletionPolicy {
	return u.policy
}

// Record writes the submission, progress, leaderboard and streak updates for
// o in one transaction. Completion state is read before anything is written.
func (u *Updater) Record(ctx context.Context, o Outcome) (*Delta, error) {
	now := u.clock.Now()
	delta := &Delta{}

	err := u.store.WithTx(ctx, func(tx Tx) error {
		prog, err := tx.GetProgress(ctx, o.UserID, o.ProblemID)
		switch {
		case errors.Is(err, domain.ErrNotFound):
			prog = &domain.UserProgress{UserID: o.UserID, ProblemID: o.ProblemID}
		case err != nil:
			return fmt.Errorf("get progress: %w", err)
		}
		delta.WasCompletedBefore = prog.IsCompleted

		sub := &domain.Submission{
			UserID:    o.UserID,
			ProblemID: o.ProblemID,
			Code:      o.Code,
			Status:    domain.StatusFor(o.Passed),
			Language:  o.Language,
			Results:   o.Results,
			CreatedAt: now,
		}
		id, err := tx.InsertSubmission(ctx, sub)
		if err != nil {
			return fmt.Errorf("insert submission: %w", err)
		}
		delta.SubmissionID = id

		ApplyAttempt(prog, o.Passed, o.TimeSpent, now, u.policy)
		if err := tx.SaveProgress(ctx, prog); err != nil {
			return fmt.Errorf("save progress: %w", err)
		}
		delta.Progress = *prog

		if !o.Passed {
			return nil
		}

		entry, err := tx.GetLeaderboardEntry(ctx, o.UserID)
		if err != nil && !errors.Is(err, domain.ErrNotFound) {
			return fmt.Errorf("get leaderboard entry: %w", err)
		}
		entry, _ = ApplySolve(entry, o.UserID, delta.WasCompletedBefore, now)
		if err := tx.SaveLeaderboardEntry(ctx, entry); err != nil {
			return fmt.Errorf("save leaderboard entry: %w", err)
		}
		delta.TotalSolved = entry.TotalSolved

		profile, err := tx.GetProfile(ctx, o.UserID)
		switch {
		case errors.Is(err, domain.ErrProfileNotFound), errors.Is(err, domain.ErrNotFound):
			profile = domain.NewProfile(o.UserID)
		case err != nil:
			return fmt.Errorf("get profile: %w", err)
		}
		ApplyStreak(profile, DateOf(now, u.loc))
		profile.UpdatedAt = now
		if err := tx.SaveProfile(ctx, profile); err != nil {
			return fmt.Errorf("save profile: %w", err)
		}
		delta.Streak = profile.Streak
		delta.HighScoreStreak = profile.HighScoreStreak

		return nil
	})
	if err != nil {
		return nil, err
	}

	u.logger.Info("submission recorded",
		"user_id", o.UserID,
		"problem_id", o.ProblemID,
		"submission_id", delta.SubmissionID,
		"passed", o.Passed,
		"attempts", delta.Progress.Attempts)

	return delta, nil
}
