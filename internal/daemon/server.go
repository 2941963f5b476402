// Package daemon serves the codedojo HTTP API.
package daemon

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/felixgeelhaar/codedojo/internal/domain"
	"github.com/felixgeelhaar/codedojo/internal/execution"
	"github.com/felixgeelhaar/codedojo/internal/problem"
	"github.com/felixgeelhaar/codedojo/internal/profile"
	"github.com/felixgeelhaar/codedojo/internal/progress"
	"github.com/felixgeelhaar/codedojo/internal/queue"
	"github.com/felixgeelhaar/codedojo/internal/runner"
	"github.com/felixgeelhaar/codedojo/internal/tutor"
)

// Version is reported by /v1/status
var Version = "dev"

// writeTimeout bounds writing a response once the handler has its result
const writeTimeout = 120 * time.Second

// Executor runs and grades submissions. Budget is the longest Execute may
// take for req.
type Executor interface {
	Execute(ctx context.Context, userID string, req execution.Request) (*execution.Response, error)
	Budget(ctx context.Context, req execution.Request) time.Duration
}

// ProblemCatalog serves the problem bank
type ProblemCatalog interface {
	List(ctx context.Context, problemType domain.ProblemType) ([]domain.ProblemSummary, error)
	Details(ctx context.Context, userID string, id int64) (*problem.Details, error)
	Description(ctx context.Context, id int64) (string, error)
	Boilerplate(ctx context.Context, id int64) (string, error)
	Submissions(ctx context.Context, userID string, id int64, limit int) ([]problem.SubmissionView, error)
	Recent(ctx context.Context, userID string, statuses []domain.SubmissionStatus, limit int) ([]problem.SubmissionView, error)
}

// Leaderboard answers ranking queries
type Leaderboard interface {
	Top(ctx context.Context, limit int) ([]domain.LeaderboardEntry, error)
	Stats(ctx context.Context, userID string) (*progress.UserStats, error)
}

// Profiles reads and edits profiles
type Profiles interface {
	Get(ctx context.Context, userID string) (*domain.Profile, error)
	Update(ctx context.Context, userID string, req profile.UpdateRequest) (*domain.Profile, error)
}

// Tutor answers questions about code
type Tutor interface {
	Chat(ctx context.Context, userID string, req tutor.ChatRequest) (*tutor.ChatResponse, error)
}

// AsyncGrader queues submissions for background grading
type AsyncGrader interface {
	Submit(ctx context.Context, userID string, req execution.Request) (*queue.JobStatus, error)
	Status(userID, jobID string) (*queue.JobStatus, error)
}

// StatusInfo describes the running daemon for /v1/status
type StatusInfo struct {
	RunnerBackend  string
	DatabaseDriver string
	Running        func() int
	Providers      func() []string
}

// ServerConfig holds the services a server routes to. Tutor and Async
// may be nil; their routes then answer 503.
type ServerConfig struct {
	Addr     string
	Executor Executor
	Problems ProblemCatalog
	Board    Leaderboard
	Profiles Profiles
	Tutor    Tutor
	Async    AsyncGrader
	Status   StatusInfo
	Logger   *slog.Logger
}

// Server represents the codedojo HTTP server
type Server struct {
	cfg     ServerConfig
	server  *http.Server
	router  *http.ServeMux
	handler http.Handler
	logger  *slog.Logger
	started time.Time
}

// NewServer creates a new server
func NewServer(cfg ServerConfig) *Server {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	s := &Server{
		cfg:     cfg,
		router:  http.NewServeMux(),
		logger:  logger,
		started: time.Now(),
	}
	s.setupRoutes()

	s.handler = correlationIDMiddleware(
		recoveryMiddleware(logger)(
			loggingMiddleware(logger)(
				identityMiddleware(s.router))))

	s.server = &http.Server{
		Addr:         cfg.Addr,
		Handler:      s.handler,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: writeTimeout,
		IdleTimeout:  120 * time.Second,
	}
	return s
}

// Handler returns the root handler with middleware applied
func (s *Server) Handler() http.Handler {
	return s.handler
}

func (s *Server) setupRoutes() {
	// Health & status
	s.router.HandleFunc("GET /v1/health", s.handleHealth)
	s.router.HandleFunc("GET /v1/status", s.handleStatus)

	// Execution
	s.router.HandleFunc("POST /v1/execute", s.handleExecute)
	s.router.HandleFunc("POST /v1/submissions/async", s.handleSubmitAsync)
	s.router.HandleFunc("GET /v1/submissions/async/{id}", s.handleAsyncStatus)
	s.router.HandleFunc("GET /v1/submissions", s.handleRecentSubmissions)

	// Problems
	s.router.HandleFunc("GET /v1/problems", s.handleListProblems)
	s.router.HandleFunc("GET /v1/problems/{id}", s.handleGetProblem)
	s.router.HandleFunc("GET /v1/problems/{id}/description", s.handleProblemDescription)
	s.router.HandleFunc("GET /v1/problems/{id}/boilerplate", s.handleProblemBoilerplate)
	s.router.HandleFunc("GET /v1/problems/{id}/submissions", s.handleProblemSubmissions)

	// Leaderboard
	s.router.HandleFunc("GET /v1/leaderboard", s.handleLeaderboard)
	s.router.HandleFunc("GET /v1/leaderboard/me", s.handleMyStats)

	// Profile
	s.router.HandleFunc("GET /v1/profile", s.handleGetProfile)
	s.router.HandleFunc("PUT /v1/profile", s.handleUpdateProfile)

	// Tutor
	s.router.HandleFunc("POST /v1/tutor/chat", s.handleTutorChat)
}

// Start starts the HTTP server
func (s *Server) Start() error {
	s.logger.Info("starting codedojo daemon",
		"addr", s.server.Addr,
		"runner", s.cfg.Status.RunnerBackend,
		"database", s.cfg.Status.DatabaseDriver,
	)
	return s.server.ListenAndServe()
}

// Shutdown gracefully shuts down the server
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("shutting down daemon...")
	return s.server.Shutdown(ctx)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	s.jsonResponse(w, http.StatusOK, map[string]any{
		"status":    "healthy",
		"timestamp": time.Now().UTC().Format(time.RFC3339),
	})
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	info := s.cfg.Status
	body := map[string]any{
		"status":         "running",
		"version":        Version,
		"uptime_seconds": int(time.Since(s.started).Seconds()),
		"runner":         info.RunnerBackend,
		"database":       info.DatabaseDriver,
		"async_enabled":  s.cfg.Async != nil,
		"tutor_enabled":  s.cfg.Tutor != nil,
	}
	if info.Running != nil {
		body["running_executions"] = info.Running()
	}
	if info.Providers != nil {
		body["llm_providers"] = info.Providers()
	}
	s.jsonResponse(w, http.StatusOK, body)
}

// Helper methods

type errorBody struct {
	Error   string `json:"error"`
	Status  int    `json:"status"`
	Details string `json:"details,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, data any, logger *slog.Logger) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		logger.Error("failed to encode response", "error", err)
	}
}

func (s *Server) jsonResponse(w http.ResponseWriter, status int, data any) {
	writeJSON(w, status, data, s.logger)
}

func (s *Server) jsonError(w http.ResponseWriter, status int, message string, err error) {
	body := errorBody{Error: message, Status: status}
	if err != nil {
		body.Details = err.Error()
	}
	s.jsonResponse(w, status, body)
}

// errorStatus maps a service error to an HTTP status and public message
func errorStatus(err error) (int, string) {
	switch {
	case errors.Is(err, domain.ErrUnauthorized):
		return http.StatusUnauthorized, "unauthorized"
	case errors.Is(err, domain.ErrBadRequest),
		errors.Is(err, domain.ErrNoTestCases),
		errors.Is(err, domain.ErrInvalidInput),
		errors.Is(err, domain.ErrInvalidLevel),
		errors.Is(err, domain.ErrEmptyCode):
		return http.StatusBadRequest, "bad request"
	case errors.Is(err, domain.ErrProblemNotFound):
		return http.StatusNotFound, "problem not found"
	case errors.Is(err, domain.ErrProfileNotFound):
		return http.StatusNotFound, "profile not found"
	case errors.Is(err, queue.ErrJobNotFound):
		return http.StatusNotFound, "submission not found"
	case errors.Is(err, domain.ErrNotFound):
		return http.StatusNotFound, "not found"
	case errors.Is(err, runner.ErrBusy):
		return http.StatusServiceUnavailable, "runner busy, try again"
	case errors.Is(err, tutor.ErrProviderFailed):
		return http.StatusBadGateway, "failed to fetch response from tutor provider"
	default:
		return http.StatusInternalServerError, "internal error"
	}
}

// writeError answers with the mapped status. Internal errors are logged and
// their details withheld from the client.
func (s *Server) writeError(w http.ResponseWriter, r *http.Request, err error) {
	status, message := errorStatus(err)
	if status >= 500 {
		s.logger.Error("request failed",
			"correlation_id", GetCorrelationID(r.Context()),
			"path", r.URL.Path,
			"error", err,
		)
		if status == http.StatusInternalServerError {
			s.jsonError(w, status, message, nil)
			return
		}
	}
	s.jsonError(w, status, message, err)
}

func (s *Server) decodeJSON(w http.ResponseWriter, r *http.Request, dst any) bool {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		s.jsonError(w, http.StatusBadRequest, "invalid request body", err)
		return false
	}
	return true
}

// maxBodyBytes bounds request bodies; submissions are source files
const maxBodyBytes = 1 << 20
