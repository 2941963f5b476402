package daemon

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/felixgeelhaar/codedojo/internal/config"
	"github.com/felixgeelhaar/codedojo/internal/execution"
	"github.com/felixgeelhaar/codedojo/internal/grading"
	"github.com/felixgeelhaar/codedojo/internal/llm"
	"github.com/felixgeelhaar/codedojo/internal/problem"
	"github.com/felixgeelhaar/codedojo/internal/profile"
	"github.com/felixgeelhaar/codedojo/internal/progress"
	"github.com/felixgeelhaar/codedojo/internal/queue"
	"github.com/felixgeelhaar/codedojo/internal/risk"
	"github.com/felixgeelhaar/codedojo/internal/runner"
	"github.com/felixgeelhaar/codedojo/internal/sandbox"
	"github.com/felixgeelhaar/codedojo/internal/storage/local"
	"github.com/felixgeelhaar/codedojo/internal/storage/postgres"
	"github.com/felixgeelhaar/codedojo/internal/storage/sqlite"
	"github.com/felixgeelhaar/codedojo/internal/tutor"
)

// progressStore is implemented by both database drivers
type progressStore interface {
	progress.Store
	progress.Reader
	problem.ProgressReader
}

// stores groups the driver-specific stores behind service interfaces
type stores struct {
	problems    problem.Store
	progress    progressStore
	profiles    profile.Store
	submissions problem.SubmissionLister
}

// Services is the wired application without a transport
type Services struct {
	Problems  *problem.Service
	Execution *execution.Service
	Board     *progress.Board
	Profiles  *profile.Service
	Tutor     *tutor.Service
	Runner    *runner.Service
	Providers *llm.Registry

	problemStore problem.Store
	closers      []func() error
}

// BuildServices opens the configured store, runner and LLM providers and
// wires the services. Background work started here stops with ctx.
func BuildServices(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*Services, error) {
	if logger == nil {
		logger = slog.Default()
	}
	svc := &Services{}

	st, err := svc.openStores(ctx, cfg.Database)
	if err != nil {
		svc.Close()
		return nil, err
	}

	executor, err := svc.newExecutor(ctx, cfg, logger)
	if err != nil {
		svc.Close()
		return nil, err
	}
	svc.Runner = runner.NewService(runner.Config{
		Timeout:       cfg.RunnerTimeout(),
		MaxConcurrent: cfg.Runner.MaxConcurrent,
		MaxQueue:      cfg.Runner.MaxQueue,
	}, executor, logger)

	loc, err := cfg.StreakLocation()
	if err != nil {
		svc.Close()
		return nil, err
	}

	updater := progress.NewUpdater(st.progress,
		progress.WithPolicy(progress.CompletionPolicy(cfg.Grading.CompletionPolicy)),
		progress.WithLocation(loc),
		progress.WithLogger(logger),
	)
	grader := grading.NewGrader(svc.Runner,
		grading.WithEmptyPolicy(grading.EmptyPolicy(cfg.Grading.EmptyTestCases)),
		grading.WithLogger(logger),
	)

	svc.problemStore = st.problems
	svc.Execution = execution.NewService(svc.Runner, grader, st.problems, updater,
		execution.WithScreener(risk.NewDetector()),
		execution.WithCaseTimeout(svc.Runner.Timeout()),
		execution.WithLogger(logger),
	)
	svc.Problems = problem.NewService(st.problems, st.progress, st.submissions, logger)
	svc.Board = progress.NewBoard(st.progress)
	svc.Profiles = profile.NewService(st.profiles, logger)

	svc.Providers = svc.setupLLMProviders(cfg.LLM, logger)
	if len(svc.Providers.List()) > 0 {
		svc.Tutor = tutor.NewService(svc.Profiles, svc.Problems, svc.Providers, cfg.LLM.MaxTokens, logger)
	} else {
		logger.Warn("no LLM provider configured, tutor disabled")
	}

	return svc, nil
}

func (s *Services) openStores(ctx context.Context, cfg config.DatabaseConfig) (*stores, error) {
	switch cfg.Driver {
	case "postgres":
		sqlDB, err := postgres.OpenSQL(cfg.URL)
		if err != nil {
			return nil, err
		}
		s.closers = append(s.closers, sqlDB.Close)
		if err := postgres.Migrate(ctx, sqlDB); err != nil {
			return nil, err
		}

		pool, err := postgres.Connect(ctx, cfg.URL)
		if err != nil {
			return nil, err
		}
		s.closers = append(s.closers, func() error { pool.Close(); return nil })

		return &stores{
			problems:    postgres.NewProblemStore(pool),
			progress:    postgres.NewProgressStore(pool),
			profiles:    postgres.NewProfileStore(pool),
			submissions: postgres.NewSubmissionStore(sqlDB),
		}, nil

	default:
		db, err := sqlite.Open(cfg.Path)
		if err != nil {
			return nil, err
		}
		s.closers = append(s.closers, db.Close)
		if err := db.Migrate(); err != nil {
			return nil, fmt.Errorf("migrate sqlite: %w", err)
		}

		return &stores{
			problems:    sqlite.NewProblemStore(db),
			progress:    sqlite.NewProgressStore(db),
			profiles:    sqlite.NewProfileStore(db),
			submissions: sqlite.NewSubmissionStore(db),
		}, nil
	}
}

// newExecutor builds the configured backend. A docker backend that cannot
// be reached is an error; it never degrades to host processes.
func (s *Services) newExecutor(ctx context.Context, cfg *config.Config, logger *slog.Logger) (runner.Executor, error) {
	if cfg.Runner.Backend != "docker" {
		return runner.NewLocalExecutor(cfg.Runner.Interpreter), nil
	}

	d := cfg.Runner.Docker
	executor, err := runner.NewDockerExecutor(ctx, sandbox.Config{
		Image:       d.Image,
		Interpreter: cfg.Runner.Interpreter,
		MemoryMB:    d.MemoryMB,
		CPULimit:    d.CPULimit,
		PidsLimit:   d.PidsLimit,
		NetworkOff:  d.NetworkOff,
		User:        "nobody",
	})
	if err != nil {
		return nil, fmt.Errorf("docker runner backend: %w", err)
	}
	s.closers = append(s.closers, executor.Close)

	interval := time.Duration(d.ReaperIntervalSeconds) * time.Second
	if interval > 0 {
		executor.StartReaper(ctx, interval, 2*cfg.RunnerTimeout()+time.Minute, logger)
	}
	return executor, nil
}

// setupLLMProviders registers every enabled provider that has credentials
func (s *Services) setupLLMProviders(cfg config.LLMConfig, logger *slog.Logger) *llm.Registry {
	registry := llm.NewRegistry()
	guard := llm.DefaultGuardConfig()
	guard.Logger = logger

	for name, pc := range cfg.Providers {
		if pc == nil || !pc.Enabled {
			continue
		}

		var p llm.Provider
		switch name {
		case "openrouter", "openai":
			if pc.APIKey == "" {
				continue
			}
			p = llm.NewOpenAIProvider(llm.OpenAIConfig{
				Name:     name,
				APIKey:   pc.APIKey,
				BaseURL:  pc.URL,
				Model:    pc.Model,
				SiteName: "codedojo",
			})
		case "claude":
			if pc.APIKey == "" {
				continue
			}
			p = llm.NewClaudeProvider(llm.ClaudeConfig{APIKey: pc.APIKey, BaseURL: pc.URL, Model: pc.Model})
		case "ollama":
			p = llm.NewOllamaProvider(llm.OllamaConfig{BaseURL: pc.URL, Model: pc.Model})
		default:
			logger.Warn("unknown LLM provider in config", "provider", name)
			continue
		}

		guarded := llm.Guard(p, guard)
		s.closers = append(s.closers, guarded.Close)
		registry.Register(name, guarded)
	}

	if cfg.DefaultProvider != "" && cfg.DefaultProvider != "auto" {
		if err := registry.SetDefault(cfg.DefaultProvider); err != nil {
			logger.Warn("default LLM provider unavailable", "provider", cfg.DefaultProvider, "error", err)
		}
	}
	return registry
}

// Close releases stores, executors and providers in reverse order
func (s *Services) Close() error {
	var errs []error
	for i := len(s.closers) - 1; i >= 0; i-- {
		if err := s.closers[i](); err != nil {
			errs = append(errs, err)
		}
	}
	s.closers = nil
	return errors.Join(errs...)
}

// App is a running daemon: services, HTTP server and optional queue workers
type App struct {
	Server   *Server
	Services *Services

	conn     *queue.Connection
	consumer *queue.Consumer
	results  *queue.ResultConsumer
}

// NewApp wires the daemon. dir is the config directory, used for job
// status files when the queue is enabled.
func NewApp(ctx context.Context, cfg *config.Config, dir string, logger *slog.Logger) (*App, error) {
	if logger == nil {
		logger = slog.Default()
	}

	svc, err := BuildServices(ctx, cfg, logger)
	if err != nil {
		return nil, err
	}
	app := &App{Services: svc}

	serverCfg := ServerConfig{
		Addr:     cfg.Address(),
		Executor: svc.Execution,
		Problems: svc.Problems,
		Board:    svc.Board,
		Profiles: svc.Profiles,
		Status: StatusInfo{
			RunnerBackend:  cfg.Runner.Backend,
			DatabaseDriver: cfg.Database.Driver,
			Running:        svc.Runner.Running,
			Providers:      svc.Providers.List,
		},
		Logger: logger,
	}
	if svc.Tutor != nil {
		serverCfg.Tutor = svc.Tutor
	}

	if cfg.Queue.Enabled {
		dispatcher, err := app.startQueue(ctx, cfg, dir, logger)
		if err != nil {
			app.Close()
			return nil, err
		}
		serverCfg.Async = dispatcher
	}

	app.Server = NewServer(serverCfg)
	return app, nil
}

func (a *App) startQueue(ctx context.Context, cfg *config.Config, dir string, logger *slog.Logger) (*queue.Dispatcher, error) {
	jobs, err := local.NewStore(dir)
	if err != nil {
		return nil, fmt.Errorf("create job store: %w", err)
	}
	tracker := queue.NewTracker(jobs)

	a.conn, err = queue.NewConnection(cfg.Queue.URL, logger)
	if err != nil {
		return nil, err
	}

	a.consumer = queue.NewConsumer(a.conn, queue.ExecuteHandler(a.Services.Execution), queue.ConsumerConfig{
		Workers:  cfg.Queue.Workers,
		Prefetch: cfg.Queue.Prefetch,
	}, logger)
	if err := a.consumer.Start(ctx); err != nil {
		return nil, err
	}

	a.results = queue.NewResultConsumer(a.conn, func(r *queue.GradeResult) {
		if err := tracker.Complete(r); err != nil {
			logger.Error("failed to record job result", "job_id", r.JobID, "error", err)
		}
	}, logger)
	if err := a.results.Start(ctx); err != nil {
		return nil, err
	}

	retention := time.Duration(cfg.Queue.JobRetentionHours) * time.Hour
	if retention > 0 {
		go pruneJobs(ctx, tracker, retention, logger)
	}

	return queue.NewDispatcher(queue.NewProducer(a.conn, logger), tracker, a.Services.Execution), nil
}

func pruneJobs(ctx context.Context, tracker *queue.Tracker, retention time.Duration, logger *slog.Logger) {
	ticker := time.NewTicker(time.Hour)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if n, err := tracker.Prune(retention); err != nil {
				logger.Warn("job status pruning failed", "error", err)
			} else if n > 0 {
				logger.Debug("pruned job statuses", "removed", n)
			}
		}
	}
}

// Close stops queue workers and releases services
func (a *App) Close() error {
	if a.consumer != nil {
		a.consumer.Stop()
	}
	if a.results != nil {
		a.results.Stop()
	}
	if a.conn != nil {
		a.conn.Close()
	}
	return a.Services.Close()
}
