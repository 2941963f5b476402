package runner

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/felixgeelhaar/codedojo/internal/sandbox"
	"github.com/felixgeelhaar/fortify/bulkhead"
	"github.com/google/uuid"
)

var (
	// ErrBusy is returned when the execution queue is full
	ErrBusy = errors.New("runner busy")
	// ErrCancelled is returned when the caller's context ends first
	ErrCancelled = errors.New("execution cancelled")
)

// Config holds runner configuration
type Config struct {
	Timeout       time.Duration
	MaxConcurrent int
	MaxQueue      int
	QueueTimeout  time.Duration
	Allow         []string
}

// DefaultConfig returns default runner configuration
func DefaultConfig() Config {
	return Config{
		Timeout:       10 * time.Second,
		MaxConcurrent: 4,
		MaxQueue:      16,
		QueueTimeout:  30 * time.Second,
		Allow:         sandbox.SafeBuiltins,
	}
}

// Service applies the time budget and concurrency limits around an Executor
type Service struct {
	config   Config
	executor Executor
	bulkhead bulkhead.Bulkhead[*Result]
	logger   *slog.Logger

	inFlight atomic.Int64
}

// NewService creates a new runner service
func NewService(cfg Config, executor Executor, logger *slog.Logger) *Service {
	def := DefaultConfig()
	if cfg.Timeout <= 0 {
		cfg.Timeout = def.Timeout
	}
	if cfg.MaxConcurrent <= 0 {
		cfg.MaxConcurrent = def.MaxConcurrent
	}
	if cfg.MaxQueue < 0 {
		cfg.MaxQueue = def.MaxQueue
	}
	if cfg.QueueTimeout <= 0 {
		cfg.QueueTimeout = def.QueueTimeout
	}
	if logger == nil {
		logger = slog.Default()
	}

	return &Service{
		config:   cfg,
		executor: executor,
		bulkhead: bulkhead.New[*Result](bulkhead.Config{
			MaxConcurrent: cfg.MaxConcurrent,
			MaxQueue:      cfg.MaxQueue,
			QueueTimeout:  cfg.QueueTimeout,
		}),
		logger: logger,
	}
}

// Timeout returns the per-execution time budget
func (s *Service) Timeout() time.Duration {
	return s.config.Timeout
}

// ExecuteRequest contains data for executing code
type ExecuteRequest struct {
	RunID uuid.UUID
	Code  string
	Input string
}

// Run executes code once with the given raw input
func (s *Service) Run(ctx context.Context, code, input string) (*Result, error) {
	return s.Execute(ctx, ExecuteRequest{RunID: uuid.New(), Code: code, Input: input})
}

// Execute runs code in a fresh sandbox environment. The budget starts once a
// bulkhead slot is acquired.
func (s *Service) Execute(ctx context.Context, req ExecuteRequest) (*Result, error) {
	if req.RunID == uuid.Nil {
		req.RunID = uuid.New()
	}

	s.inFlight.Add(1)
	defer s.inFlight.Add(-1)

	env := sandbox.NewEnvironment(req.Input, s.config.Allow)

	var admitted atomic.Bool
	result, err := s.bulkhead.Execute(ctx, func(ctx context.Context) (*Result, error) {
		admitted.Store(true)
		execCtx, cancelExec := context.WithTimeout(ctx, s.config.Timeout)
		defer cancelExec()

		res, err := s.executor.Execute(execCtx, env, req.Code)
		if err != nil {
			return nil, err
		}
		if res.Category == CategoryTimeout {
			res.Error = TimeoutMessage(s.config.Timeout)
		}
		return res, nil
	})

	if ctx.Err() != nil {
		return nil, fmt.Errorf("%w: %s", ErrCancelled, req.RunID)
	}
	if err != nil {
		if !admitted.Load() {
			return nil, fmt.Errorf("%w: %v", ErrBusy, err)
		}
		return nil, fmt.Errorf("execute %s: %w", req.RunID, err)
	}

	s.logger.Debug("execution finished",
		"run_id", req.RunID,
		"ok", result.OK,
		"category", result.Category,
		"duration", result.Duration)

	return result, nil
}

// Running returns the number of executions in flight or queued
func (s *Service) Running() int {
	return int(s.inFlight.Load())
}
