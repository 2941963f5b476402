// Package problem serves the problem bank: listings, details with the
// caller's progress, and submission history.
package problem

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/felixgeelhaar/codedojo/internal/domain"
	"github.com/felixgeelhaar/codedojo/internal/grading"
)

// DefaultHistoryLimit caps submission history responses
const DefaultHistoryLimit = 50

// Store is the persistence surface for problems
type Store interface {
	Upsert(ctx context.Context, p *domain.Problem) error
	Get(ctx context.Context, id int64) (*domain.Problem, error)
	List(ctx context.Context, problemType domain.ProblemType) ([]*domain.Problem, error)
	Count(ctx context.Context) (int, error)
}

// ProgressReader returns a user's progress on a problem, or
// domain.ErrNotFound when none exists.
type ProgressReader interface {
	GetProgress(ctx context.Context, userID string, problemID int64) (*domain.UserProgress, error)
}

// SubmissionLister reads a user's submission history, newest first
type SubmissionLister interface {
	List(ctx context.Context, userID string, problemID int64, limit int) ([]*domain.Submission, error)
	ListByStatus(ctx context.Context, userID string, statuses []domain.SubmissionStatus, limit int) ([]*domain.Submission, error)
}

// Details is a problem with the caller's progress attached
type Details struct {
	ID          int64              `json:"id"`
	Name        string             `json:"name"`
	Type        domain.ProblemType `json:"problem_type"`
	Language    string             `json:"language"`
	Difficulty  domain.Difficulty  `json:"difficulty"`
	Description string             `json:"description"`
	TestCases   domain.TestCases   `json:"test_cases"`
	Attempts    int                `json:"attempts"`
	TimeSpent   int                `json:"time_spent"`
	IsCompleted bool               `json:"is_completed"`
}

// SubmissionView is one entry of a user's history
type SubmissionView struct {
	ID          int64                   `json:"id"`
	ProblemID   int64                   `json:"problem_id"`
	Code        string                  `json:"code_submitted"`
	Status      domain.SubmissionStatus `json:"status"`
	CreatedAt   time.Time               `json:"created_at"`
	TestResults []grading.CaseResult    `json:"test_results,omitempty"`
}

// Service provides problem bank operations
type Service struct {
	store       Store
	progress    ProgressReader
	submissions SubmissionLister
	logger      *slog.Logger
}

// NewService creates a new problem service
func NewService(store Store, progress ProgressReader, submissions SubmissionLister, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		store:       store,
		progress:    progress,
		submissions: submissions,
		logger:      logger,
	}
}

// Get returns a problem by ID
func (s *Service) Get(ctx context.Context, id int64) (*domain.Problem, error) {
	return s.store.Get(ctx, id)
}

// List returns problem summaries in lesson order
func (s *Service) List(ctx context.Context, problemType domain.ProblemType) ([]domain.ProblemSummary, error) {
	problems, err := s.store.List(ctx, problemType)
	if err != nil {
		return nil, err
	}
	out := make([]domain.ProblemSummary, len(problems))
	for i, p := range problems {
		out[i] = p.Summary()
	}
	return out, nil
}

// Details returns the problem with the caller's progress. A user with no
// progress gets zero values.
func (s *Service) Details(ctx context.Context, userID string, id int64) (*Details, error) {
	p, err := s.store.Get(ctx, id)
	if err != nil {
		return nil, err
	}

	d := &Details{
		ID:          p.ID,
		Name:        p.Name,
		Type:        p.Type,
		Language:    p.Language,
		Difficulty:  p.Difficulty,
		Description: p.Description,
		TestCases:   p.TestCases,
	}
	if userID == "" || s.progress == nil {
		return d, nil
	}

	prog, err := s.progress.GetProgress(ctx, userID, id)
	switch {
	case errors.Is(err, domain.ErrNotFound):
	case err != nil:
		return nil, fmt.Errorf("get progress: %w", err)
	default:
		d.Attempts = prog.Attempts
		d.TimeSpent = prog.TimeSpent
		d.IsCompleted = prog.IsCompleted
	}
	return d, nil
}

// Description returns the problem's markdown description
func (s *Service) Description(ctx context.Context, id int64) (string, error) {
	p, err := s.store.Get(ctx, id)
	if err != nil {
		return "", err
	}
	return p.Description, nil
}

// Boilerplate returns the problem's starter code
func (s *Service) Boilerplate(ctx context.Context, id int64) (string, error) {
	p, err := s.store.Get(ctx, id)
	if err != nil {
		return "", err
	}
	return p.Boilerplate, nil
}

// Submissions returns the caller's history for a problem, newest first
func (s *Service) Submissions(ctx context.Context, userID string, id int64, limit int) ([]SubmissionView, error) {
	if _, err := s.store.Get(ctx, id); err != nil {
		return nil, err
	}
	if limit <= 0 || limit > DefaultHistoryLimit {
		limit = DefaultHistoryLimit
	}

	subs, err := s.submissions.List(ctx, userID, id, limit)
	if err != nil {
		return nil, fmt.Errorf("list submissions: %w", err)
	}
	return s.views(subs), nil
}

// Recent returns the caller's submissions across all problems, newest
// first. An empty status filter means every status.
func (s *Service) Recent(ctx context.Context, userID string, statuses []domain.SubmissionStatus, limit int) ([]SubmissionView, error) {
	if limit <= 0 || limit > DefaultHistoryLimit {
		limit = DefaultHistoryLimit
	}
	if len(statuses) == 0 {
		statuses = []domain.SubmissionStatus{domain.SubmissionAttempted, domain.SubmissionCompleted}
	}
	for _, st := range statuses {
		if st != domain.SubmissionAttempted && st != domain.SubmissionCompleted {
			return nil, fmt.Errorf("%w: unknown status %q", domain.ErrInvalidInput, st)
		}
	}

	subs, err := s.submissions.ListByStatus(ctx, userID, statuses, limit)
	if err != nil {
		return nil, fmt.Errorf("list submissions: %w", err)
	}
	return s.views(subs), nil
}

func (s *Service) views(subs []*domain.Submission) []SubmissionView {
	out := make([]SubmissionView, 0, len(subs))
	for _, sub := range subs {
		v := SubmissionView{
			ID:        sub.ID,
			ProblemID: sub.ProblemID,
			Code:      sub.Code,
			Status:    sub.Status,
			CreatedAt: sub.CreatedAt,
		}
		if len(sub.Results) > 0 {
			if err := json.Unmarshal(sub.Results, &v.TestResults); err != nil {
				s.logger.Warn("unreadable submission results", "submission_id", sub.ID, "error", err)
			}
		}
		out = append(out, v)
	}
	return out
}

// Seed upserts every problem the loader finds and returns how many were
// written.
func (s *Service) Seed(ctx context.Context, loader *Loader) (int, error) {
	problems, err := loader.LoadAll()
	if err != nil {
		return 0, err
	}
	for _, p := range problems {
		if p.Language == "" {
			p.Language = "python"
		}
		if p.Type == "" {
			p.Type = domain.ProblemTypeSet
		}
		if err := s.store.Upsert(ctx, p); err != nil {
			return 0, fmt.Errorf("seed %q: %w", p.Name, err)
		}
		s.logger.Debug("seeded problem", "id", p.ID, "name", p.Name)
	}
	s.logger.Info("problem bank seeded", "count", len(problems), "path", loader.BasePath())
	return len(problems), nil
}
