// Package mcp exposes practice tools over the Model Context Protocol so an
// editor agent can run, submit and look up problems for the local user.
package mcp

import (
	"context"
	"errors"
	"fmt"
	"strings"

	mcp "github.com/felixgeelhaar/mcp-go"
	"github.com/felixgeelhaar/mcp-go/server"
	"github.com/felixgeelhaar/codedojo/internal/domain"
	"github.com/felixgeelhaar/codedojo/internal/execution"
	"github.com/felixgeelhaar/codedojo/internal/grading"
	"github.com/felixgeelhaar/codedojo/internal/problem"
	"github.com/felixgeelhaar/codedojo/internal/progress"
	"github.com/felixgeelhaar/codedojo/internal/tutor"
)

// Executor runs and grades code
type Executor interface {
	Execute(ctx context.Context, userID string, req execution.Request) (*execution.Response, error)
}

// Catalog looks up problems
type Catalog interface {
	List(ctx context.Context, problemType domain.ProblemType) ([]domain.ProblemSummary, error)
	Details(ctx context.Context, userID string, id int64) (*problem.Details, error)
	Boilerplate(ctx context.Context, id int64) (string, error)
}

// Leaderboard answers ranking queries
type Leaderboard interface {
	Top(ctx context.Context, limit int) ([]domain.LeaderboardEntry, error)
	Stats(ctx context.Context, userID string) (*progress.UserStats, error)
}

// Tutor answers questions about code
type Tutor interface {
	Chat(ctx context.Context, userID string, req tutor.ChatRequest) (*tutor.ChatResponse, error)
}

// Server wraps the MCP server with codedojo tools
type Server struct {
	mcpServer *server.Server
	userID    string
	executor  Executor
	catalog   Catalog
	board     Leaderboard
	tutor     Tutor
}

// Config contains configuration for the MCP server. Tutor may be nil.
type Config struct {
	UserID   string
	Version  string
	Executor Executor
	Catalog  Catalog
	Board    Leaderboard
	Tutor    Tutor
}

// NewServer creates a new MCP server
func NewServer(cfg Config) *Server {
	s := &Server{
		userID:   cfg.UserID,
		executor: cfg.Executor,
		catalog:  cfg.Catalog,
		board:    cfg.Board,
		tutor:    cfg.Tutor,
	}

	version := cfg.Version
	if version == "" {
		version = "dev"
	}

	s.mcpServer = server.New(server.Info{
		Name:    "codedojo",
		Version: version,
	}, server.WithInstructions(`
codedojo is a Python practice platform. Problems are graded by running the
learner's program against hidden stdin/stdout test cases.

Available tools:
- dojo_problems: List problems, optionally by type (problem_set, python_basics)
- dojo_problem: Show a problem's description, boilerplate and the learner's progress
- dojo_run: Run code once and return its output
- dojo_submit: Grade code against a problem's test cases and record progress
- dojo_leaderboard: Show the top solvers and the learner's own standing
- dojo_ask: Ask the tutor a question about the code (guidance, not answers)
`))

	s.registerTools()
	return s
}

func (s *Server) registerTools() {
	s.mcpServer.Tool("dojo_problems").
		Description("List practice problems in lesson order.").
		Handler(s.handleProblems)

	s.mcpServer.Tool("dojo_problem").
		Description("Show a problem with its description, boilerplate and your progress.").
		Handler(s.handleProblem)

	s.mcpServer.Tool("dojo_run").
		Description("Run Python code once without grading.").
		Handler(s.handleRun)

	s.mcpServer.Tool("dojo_submit").
		Description("Grade Python code against a problem's test cases.").
		Handler(s.handleSubmit)

	s.mcpServer.Tool("dojo_leaderboard").
		Description("Show the leaderboard and your own totals.").
		Handler(s.handleLeaderboard)

	s.mcpServer.Tool("dojo_ask").
		Description("Ask the tutor about your code. The tutor guides with questions.").
		Handler(s.handleAsk)
}

// Input/Output types for tools

type ProblemsInput struct {
	Type string `json:"type,omitempty" jsonschema:"description=Problem type filter,enum=problem_set,enum=python_basics"`
}

type ProblemsOutput struct {
	Problems []domain.ProblemSummary `json:"problems"`
}

type ProblemInput struct {
	ProblemID int64 `json:"problem_id" jsonschema:"description=Problem ID from dojo_problems"`
}

type ProblemOutput struct {
	ID          int64  `json:"id"`
	Name        string `json:"name"`
	Difficulty  string `json:"difficulty"`
	Description string `json:"description"`
	Boilerplate string `json:"boilerplate_code"`
	TestCount   int    `json:"test_count"`
	Attempts    int    `json:"attempts"`
	IsCompleted bool   `json:"is_completed"`
}

type RunInput struct {
	Code string `json:"code" jsonschema:"description=Python source to run"`
}

type RunOutput struct {
	OK     bool   `json:"ok"`
	Output string `json:"output,omitempty"`
	Error  string `json:"error,omitempty"`
}

type SubmitInput struct {
	ProblemID int64  `json:"problem_id" jsonschema:"description=Problem ID from dojo_problems"`
	Code      string `json:"code" jsonschema:"description=Python source to grade"`
	TimeSpent int    `json:"time_spent,omitempty" jsonschema:"description=Seconds spent on this attempt"`
}

type SubmitOutput struct {
	AllTestsPassed bool                 `json:"all_tests_passed"`
	SubmissionID   int64                `json:"submission_id"`
	TestResults    []grading.CaseResult `json:"test_results"`
	Streak         int                  `json:"streak,omitempty"`
	TotalSolved    int                  `json:"total_solved,omitempty"`
	Warnings       []string             `json:"warnings,omitempty"`
	Summary        string               `json:"summary"`
}

type LeaderboardInput struct {
	Limit int `json:"limit,omitempty" jsonschema:"description=Number of entries (max 50)"`
}

type LeaderboardOutput struct {
	Entries []domain.LeaderboardEntry `json:"entries"`
	You     *progress.UserStats       `json:"you"`
}

type AskInput struct {
	Code      string `json:"code" jsonschema:"description=Current code"`
	Question  string `json:"question" jsonschema:"description=What you want to understand"`
	Terminal  string `json:"terminal,omitempty" jsonschema:"description=Recent program output or traceback"`
	ProblemID int64  `json:"problem_id,omitempty" jsonschema:"description=Problem being worked on"`
}

type AskOutput struct {
	Response string `json:"response"`
}

// Tool handlers

func (s *Server) handleProblems(ctx context.Context, input ProblemsInput) (ProblemsOutput, error) {
	problems, err := s.catalog.List(ctx, domain.ProblemType(input.Type))
	if err != nil {
		return ProblemsOutput{}, fmt.Errorf("list problems: %w", err)
	}
	return ProblemsOutput{Problems: problems}, nil
}

func (s *Server) handleProblem(ctx context.Context, input ProblemInput) (ProblemOutput, error) {
	d, err := s.catalog.Details(ctx, s.userID, input.ProblemID)
	if err != nil {
		return ProblemOutput{}, fmt.Errorf("problem %d: %w", input.ProblemID, err)
	}

	boilerplate, err := s.catalog.Boilerplate(ctx, input.ProblemID)
	if err != nil {
		return ProblemOutput{}, fmt.Errorf("boilerplate: %w", err)
	}

	return ProblemOutput{
		ID:          d.ID,
		Name:        d.Name,
		Difficulty:  string(d.Difficulty),
		Description: d.Description,
		Boilerplate: boilerplate,
		TestCount:   len(d.TestCases),
		Attempts:    d.Attempts,
		IsCompleted: d.IsCompleted,
	}, nil
}

func (s *Server) handleRun(ctx context.Context, input RunInput) (RunOutput, error) {
	resp, err := s.executor.Execute(ctx, s.userID, execution.Request{Code: input.Code})
	if err != nil {
		return RunOutput{}, err
	}
	if resp.Error != "" {
		return RunOutput{Error: resp.Error}, nil
	}
	return RunOutput{OK: true, Output: resp.Output}, nil
}

func (s *Server) handleSubmit(ctx context.Context, input SubmitInput) (SubmitOutput, error) {
	resp, err := s.executor.Execute(ctx, s.userID, execution.Request{
		Code:      input.Code,
		ProblemID: input.ProblemID,
		RunTests:  true,
		TimeSpent: input.TimeSpent,
	})
	if err != nil {
		return SubmitOutput{}, err
	}

	out := SubmitOutput{
		AllTestsPassed: resp.AllTestsPassed,
		SubmissionID:   resp.SubmissionID,
		TestResults:    resp.TestResults,
	}
	if out.TestResults == nil {
		out.TestResults = []grading.CaseResult{}
	}
	if resp.Progress != nil && resp.AllTestsPassed {
		out.Streak = resp.Progress.Streak
		out.TotalSolved = resp.Progress.TotalSolved
	}
	for _, w := range resp.Warnings {
		out.Warnings = append(out.Warnings, w.Title)
	}
	out.Summary = summarize(out.TestResults)
	return out, nil
}

// summarize renders one mark per case, e.g. "2/3 passed | test1: ✓ | test2: ✗"
func summarize(results []grading.CaseResult) string {
	passed := 0
	parts := make([]string, 0, len(results)+1)
	for _, r := range results {
		mark := "✗"
		if r.Passed {
			mark = "✓"
			passed++
		}
		parts = append(parts, fmt.Sprintf("%s: %s", r.TestName, mark))
	}
	head := fmt.Sprintf("%d/%d passed", passed, len(results))
	return strings.Join(append([]string{head}, parts...), " | ")
}

func (s *Server) handleLeaderboard(ctx context.Context, input LeaderboardInput) (LeaderboardOutput, error) {
	entries, err := s.board.Top(ctx, input.Limit)
	if err != nil {
		return LeaderboardOutput{}, err
	}

	stats, err := s.board.Stats(ctx, s.userID)
	if err != nil {
		return LeaderboardOutput{}, err
	}
	return LeaderboardOutput{Entries: entries, You: stats}, nil
}

func (s *Server) handleAsk(ctx context.Context, input AskInput) (AskOutput, error) {
	if s.tutor == nil {
		return AskOutput{}, errors.New("tutor is not configured: add an LLM provider key")
	}

	resp, err := s.tutor.Chat(ctx, s.userID, tutor.ChatRequest{
		Code:      input.Code,
		Terminal:  input.Terminal,
		Question:  input.Question,
		ProblemID: input.ProblemID,
	})
	if err != nil {
		return AskOutput{}, err
	}
	return AskOutput{Response: resp.Response}, nil
}

// ServeStdio starts the MCP server on stdio
func (s *Server) ServeStdio(ctx context.Context) error {
	return mcp.ServeStdio(ctx, s.mcpServer)
}

// ServeHTTP starts the MCP server on HTTP (alternative transport)
func (s *Server) ServeHTTP(ctx context.Context, addr string) error {
	return mcp.ServeHTTP(ctx, s.mcpServer, addr)
}

// GetMCPServer returns the underlying MCP server (for testing)
func (s *Server) GetMCPServer() *server.Server {
	return s.mcpServer
}
