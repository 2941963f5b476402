package runner

import (
	"context"
	"log/slog"
	"time"

	"github.com/felixgeelhaar/codedojo/internal/sandbox"
	"github.com/google/uuid"
)

// DockerExecutor runs each execution in a throwaway container.
type DockerExecutor struct {
	backend *sandbox.DockerBackend
}

// NewDockerExecutor connects to Docker and makes sure the image is present.
func NewDockerExecutor(ctx context.Context, cfg sandbox.Config) (*DockerExecutor, error) {
	backend, err := sandbox.NewDockerBackend(cfg)
	if err != nil {
		return nil, err
	}

	if err := backend.Prepare(ctx); err != nil {
		backend.Close()
		return nil, err
	}

	return &DockerExecutor{backend: backend}, nil
}

// Execute runs code in a new container
func (e *DockerExecutor) Execute(ctx context.Context, env *sandbox.Environment, code string) (*Result, error) {
	request, err := env.Request(code)
	if err != nil {
		return nil, err
	}

	start := time.Now()
	raw, err := e.backend.Run(ctx, uuid.NewString(), request)
	if err != nil {
		return nil, err
	}
	return FromExec(raw, budgetOf(ctx, start)), nil
}

// StartReaper periodically removes containers older than maxAge that were
// orphaned by a crashed process. It stops when ctx is done.
func (e *DockerExecutor) StartReaper(ctx context.Context, interval, maxAge time.Duration, logger *slog.Logger) {
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				n, err := e.backend.RemoveStale(ctx, time.Now().Add(-maxAge))
				if err != nil {
					logger.Warn("sandbox reaper failed", "error", err)
					continue
				}
				if n > 0 {
					logger.Info("removed stale sandbox containers", "count", n)
				}
			}
		}
	}()
}

// Close releases the Docker client
func (e *DockerExecutor) Close() error {
	return e.backend.Close()
}

var _ Executor = (*DockerExecutor)(nil)
