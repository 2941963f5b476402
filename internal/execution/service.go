// Package execution is the entry point for running and grading
// submissions. It validates requests, runs or grades the code, and records
// graded outcomes.
package execution

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/felixgeelhaar/codedojo/internal/domain"
	"github.com/felixgeelhaar/codedojo/internal/grading"
	"github.com/felixgeelhaar/codedojo/internal/progress"
	"github.com/felixgeelhaar/codedojo/internal/risk"
	"github.com/felixgeelhaar/codedojo/internal/runner"
)

// ExecutionTestName labels the synthetic result of an ungraded run
const ExecutionTestName = "Code Execution"

// DefaultLanguage is recorded when a problem does not name its language
const DefaultLanguage = "python"

const (
	defaultCaseTimeout = 10 * time.Second
	// budgetSlack covers interpreter start-up and recording on top of the
	// per-case budgets.
	budgetSlack = 30 * time.Second
)

// Runner runs a program once
type Runner interface {
	Run(ctx context.Context, code, input string) (*runner.Result, error)
}

// Grader grades a program against test cases
type Grader interface {
	Grade(ctx context.Context, code string, cases domain.TestCases) (*grading.Report, error)
}

// ProblemGetter looks up problems
type ProblemGetter interface {
	Get(ctx context.Context, id int64) (*domain.Problem, error)
}

// Recorder persists graded outcomes
type Recorder interface {
	Record(ctx context.Context, o progress.Outcome) (*progress.Delta, error)
}

// Screener flags risky constructs in submitted code
type Screener interface {
	Analyze(code string) []risk.Notice
}

// Request is a run or grade request
type Request struct {
	Code      string `json:"code"`
	ProblemID int64  `json:"problem_id"`
	RunTests  bool   `json:"run_tests"`
	TimeSpent int    `json:"time_spent"`
}

// Response is the outcome of a request. Graded responses carry the test
// results and submission id; plain runs carry output or an error.
type Response struct {
	Graded         bool
	Output         string
	Error          string
	AllTestsPassed bool
	TestResults    []grading.CaseResult
	SubmissionID   int64
	Warnings       []risk.Notice
	Progress       *progress.Delta
}

// MarshalJSON writes the wire shape for the kind of response
func (r *Response) MarshalJSON() ([]byte, error) {
	switch {
	case r.Graded:
		results := r.TestResults
		if results == nil {
			results = []grading.CaseResult{}
		}
		out := struct {
			AllTestsPassed bool                 `json:"all_tests_passed"`
			TestResults    []grading.CaseResult `json:"test_results"`
			SubmissionID   int64                `json:"submission_id"`
			Streak         *int                 `json:"streak,omitempty"`
			TotalSolved    *int                 `json:"total_solved,omitempty"`
			Warnings       []risk.Notice        `json:"warnings,omitempty"`
		}{
			AllTestsPassed: r.AllTestsPassed,
			TestResults:    results,
			SubmissionID:   r.SubmissionID,
			Warnings:       r.Warnings,
		}
		if r.Progress != nil && r.AllTestsPassed {
			out.Streak = &r.Progress.Streak
			out.TotalSolved = &r.Progress.TotalSolved
		}
		return json.Marshal(out)
	case r.Error != "":
		return json.Marshal(struct {
			Error       string               `json:"error"`
			TestResults []grading.CaseResult `json:"test_results"`
			Warnings    []risk.Notice        `json:"warnings,omitempty"`
		}{r.Error, r.TestResults, r.Warnings})
	default:
		return json.Marshal(struct {
			Output   string        `json:"output"`
			Warnings []risk.Notice `json:"warnings,omitempty"`
		}{r.Output, r.Warnings})
	}
}

// Service handles execution requests
type Service struct {
	runner   Runner
	grader   Grader
	problems ProblemGetter
	recorder Recorder
	screener Screener
	logger   *slog.Logger

	caseTimeout time.Duration
}

// Option configures a Service
type Option func(*Service)

// WithScreener attaches advisory code screening
func WithScreener(s Screener) Option {
	return func(svc *Service) {
		svc.screener = s
	}
}

// WithCaseTimeout sets the per-execution budget Budget plans with
func WithCaseTimeout(d time.Duration) Option {
	return func(svc *Service) {
		if d > 0 {
			svc.caseTimeout = d
		}
	}
}

// WithLogger sets the logger
func WithLogger(l *slog.Logger) Option {
	return func(svc *Service) {
		svc.logger = l
	}
}

// NewService creates a new execution service
func NewService(r Runner, g Grader, problems ProblemGetter, recorder Recorder, opts ...Option) *Service {
	s := &Service{
		runner:   r,
		grader:   g,
		problems: problems,
		recorder: recorder,
		logger:   slog.Default(),

		caseTimeout: defaultCaseTimeout,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Budget is the longest Execute may take for req: one case budget per test
// case plus slack. A problem that cannot be loaded counts as one case;
// Execute reports the lookup error itself.
func (s *Service) Budget(ctx context.Context, req Request) time.Duration {
	cases := 1
	if req.RunTests {
		if p, err := s.problems.Get(ctx, req.ProblemID); err == nil && len(p.TestCases) > cases {
			cases = len(p.TestCases)
		}
	}
	return time.Duration(cases)*s.caseTimeout + budgetSlack
}

// Execute runs the code once, or grades it against the problem's test
// cases and records the outcome for userID.
func (s *Service) Execute(ctx context.Context, userID string, req Request) (*Response, error) {
	code := strings.TrimSpace(req.Code)
	if code == "" {
		return nil, fmt.Errorf("%w: no code provided", domain.ErrBadRequest)
	}

	var warnings []risk.Notice
	if s.screener != nil {
		warnings = s.screener.Analyze(code)
	}

	if !req.RunTests {
		resp, err := s.run(ctx, code)
		if err != nil {
			return nil, err
		}
		resp.Warnings = warnings
		return resp, nil
	}

	if userID == "" {
		return nil, fmt.Errorf("%w: grading requires a user", domain.ErrUnauthorized)
	}

	resp, err := s.grade(ctx, userID, code, req)
	if err != nil {
		return nil, err
	}
	resp.Warnings = warnings
	return resp, nil
}

func (s *Service) run(ctx context.Context, code string) (*Response, error) {
	result, err := s.runner.Run(ctx, code, "")
	if err != nil {
		return nil, fmt.Errorf("run code: %w", err)
	}
	if result.OK {
		return &Response{Output: result.Output}, nil
	}
	return &Response{
		Error: result.Error,
		TestResults: []grading.CaseResult{{
			TestName: ExecutionTestName,
			Passed:   false,
			Error:    result.Error,
			Category: result.Category,
		}},
	}, nil
}

func (s *Service) grade(ctx context.Context, userID, code string, req Request) (*Response, error) {
	problem, err := s.problems.Get(ctx, req.ProblemID)
	if err != nil {
		if errors.Is(err, domain.ErrProblemNotFound) {
			return nil, err
		}
		return nil, fmt.Errorf("get problem: %w", err)
	}

	report, err := s.grader.Grade(ctx, code, problem.TestCases)
	if err != nil {
		if errors.Is(err, domain.ErrNoTestCases) {
			return nil, fmt.Errorf("%w: %w", domain.ErrBadRequest, err)
		}
		return nil, fmt.Errorf("grade problem %d: %w", problem.ID, err)
	}

	results, err := json.Marshal(report.Results)
	if err != nil {
		return nil, fmt.Errorf("encode results: %w", err)
	}

	language := problem.Language
	if language == "" {
		language = DefaultLanguage
	}

	delta, err := s.recorder.Record(ctx, progress.Outcome{
		UserID:    userID,
		ProblemID: problem.ID,
		Code:      code,
		Language:  language,
		Passed:    report.AllPassed,
		TimeSpent: req.TimeSpent,
		Results:   results,
	})
	if err != nil {
		return nil, fmt.Errorf("record outcome: %w", err)
	}

	s.logger.Info("submission graded",
		"user_id", userID,
		"problem_id", problem.ID,
		"passed", report.PassedCount(),
		"total", len(report.Results),
		"all_passed", report.AllPassed,
		"submission_id", delta.SubmissionID)

	return &Response{
		Graded:         true,
		AllTestsPassed: report.AllPassed,
		TestResults:    report.Results,
		SubmissionID:   delta.SubmissionID,
		Progress:       delta,
	}, nil
}
