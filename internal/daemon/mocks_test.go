package daemon

import (
	"context"
	"io"
	"log/slog"
	"time"

	"github.com/felixgeelhaar/codedojo/internal/domain"
	"github.com/felixgeelhaar/codedojo/internal/execution"
	"github.com/felixgeelhaar/codedojo/internal/problem"
	"github.com/felixgeelhaar/codedojo/internal/profile"
	"github.com/felixgeelhaar/codedojo/internal/progress"
	"github.com/felixgeelhaar/codedojo/internal/queue"
	"github.com/felixgeelhaar/codedojo/internal/tutor"
)

type mockExecutor struct {
	ExecuteFunc func(ctx context.Context, userID string, req execution.Request) (*execution.Response, error)
	BudgetFunc  func(ctx context.Context, req execution.Request) time.Duration
}

func (m *mockExecutor) Execute(ctx context.Context, userID string, req execution.Request) (*execution.Response, error) {
	return m.ExecuteFunc(ctx, userID, req)
}

func (m *mockExecutor) Budget(ctx context.Context, req execution.Request) time.Duration {
	if m.BudgetFunc == nil {
		return 0
	}
	return m.BudgetFunc(ctx, req)
}

type mockCatalog struct {
	ListFunc        func(ctx context.Context, t domain.ProblemType) ([]domain.ProblemSummary, error)
	DetailsFunc     func(ctx context.Context, userID string, id int64) (*problem.Details, error)
	DescriptionFunc func(ctx context.Context, id int64) (string, error)
	BoilerplateFunc func(ctx context.Context, id int64) (string, error)
	SubmissionsFunc func(ctx context.Context, userID string, id int64, limit int) ([]problem.SubmissionView, error)
	RecentFunc      func(ctx context.Context, userID string, statuses []domain.SubmissionStatus, limit int) ([]problem.SubmissionView, error)
}

func (m *mockCatalog) List(ctx context.Context, t domain.ProblemType) ([]domain.ProblemSummary, error) {
	return m.ListFunc(ctx, t)
}

func (m *mockCatalog) Details(ctx context.Context, userID string, id int64) (*problem.Details, error) {
	return m.DetailsFunc(ctx, userID, id)
}

func (m *mockCatalog) Description(ctx context.Context, id int64) (string, error) {
	return m.DescriptionFunc(ctx, id)
}

func (m *mockCatalog) Boilerplate(ctx context.Context, id int64) (string, error) {
	return m.BoilerplateFunc(ctx, id)
}

func (m *mockCatalog) Submissions(ctx context.Context, userID string, id int64, limit int) ([]problem.SubmissionView, error) {
	return m.SubmissionsFunc(ctx, userID, id, limit)
}

func (m *mockCatalog) Recent(ctx context.Context, userID string, statuses []domain.SubmissionStatus, limit int) ([]problem.SubmissionView, error) {
	return m.RecentFunc(ctx, userID, statuses, limit)
}

type mockBoard struct {
	TopFunc   func(ctx context.Context, limit int) ([]domain.LeaderboardEntry, error)
	StatsFunc func(ctx context.Context, userID string) (*progress.UserStats, error)
}

func (m *mockBoard) Top(ctx context.Context, limit int) ([]domain.LeaderboardEntry, error) {
	return m.TopFunc(ctx, limit)
}

func (m *mockBoard) Stats(ctx context.Context, userID string) (*progress.UserStats, error) {
	return m.StatsFunc(ctx, userID)
}

type mockProfiles struct {
	GetFunc    func(ctx context.Context, userID string) (*domain.Profile, error)
	UpdateFunc func(ctx context.Context, userID string, req profile.UpdateRequest) (*domain.Profile, error)
}

func (m *mockProfiles) Get(ctx context.Context, userID string) (*domain.Profile, error) {
	return m.GetFunc(ctx, userID)
}

func (m *mockProfiles) Update(ctx context.Context, userID string, req profile.UpdateRequest) (*domain.Profile, error) {
	return m.UpdateFunc(ctx, userID, req)
}

type mockTutor struct {
	ChatFunc func(ctx context.Context, userID string, req tutor.ChatRequest) (*tutor.ChatResponse, error)
}

func (m *mockTutor) Chat(ctx context.Context, userID string, req tutor.ChatRequest) (*tutor.ChatResponse, error) {
	return m.ChatFunc(ctx, userID, req)
}

type mockAsync struct {
	SubmitFunc func(ctx context.Context, userID string, req execution.Request) (*queue.JobStatus, error)
	StatusFunc func(userID, jobID string) (*queue.JobStatus, error)
}

func (m *mockAsync) Submit(ctx context.Context, userID string, req execution.Request) (*queue.JobStatus, error) {
	return m.SubmitFunc(ctx, userID, req)
}

func (m *mockAsync) Status(userID, jobID string) (*queue.JobStatus, error) {
	return m.StatusFunc(userID, jobID)
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}
