package runner

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/felixgeelhaar/codedojo/internal/sandbox"
)

// mockExecutor is a test implementation of Executor
type mockExecutor struct {
	executeFn func(ctx context.Context, env *sandbox.Environment, code string) (*Result, error)
	calls     int
}

func (m *mockExecutor) Execute(ctx context.Context, env *sandbox.Environment, code string) (*Result, error) {
	m.calls++
	if m.executeFn != nil {
		return m.executeFn(ctx, env, code)
	}
	return Success("", time.Millisecond), nil
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	if cfg.Timeout != 10*time.Second {
		t.Errorf("Timeout = %v, want 10s", cfg.Timeout)
	}
	if cfg.MaxConcurrent != 4 {
		t.Errorf("MaxConcurrent = %d, want 4", cfg.MaxConcurrent)
	}
	if len(cfg.Allow) != len(sandbox.SafeBuiltins) {
		t.Errorf("len(Allow) = %d, want %d", len(cfg.Allow), len(sandbox.SafeBuiltins))
	}
}

func TestService_Execute_BuildsEnvironment(t *testing.T) {
	var gotInputs []string
	var gotHasInput bool
	var gotCode string

	exec := &mockExecutor{
		executeFn: func(ctx context.Context, env *sandbox.Environment, code string) (*Result, error) {
			gotInputs = env.Inputs()
			gotHasInput = env.HasInput()
			gotCode = code
			if _, ok := ctx.Deadline(); !ok {
				t.Error("executor context has no deadline")
			}
			return Success("3", time.Millisecond), nil
		},
	}
	svc := NewService(DefaultConfig(), exec, testLogger())

	res, err := svc.Run(context.Background(), "print(1+2)", "1, 2")
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if !res.OK || res.Output != "3" {
		t.Errorf("Run() = %+v; want OK output 3", res)
	}
	if gotCode != "print(1+2)" {
		t.Errorf("code = %q", gotCode)
	}
	if !gotHasInput || len(gotInputs) != 2 || gotInputs[1] != "2" {
		t.Errorf("inputs = %q (has=%v); want [1 2]", gotInputs, gotHasInput)
	}
}

func TestService_Execute_TimeoutMessage(t *testing.T) {
	exec := &mockExecutor{
		executeFn: func(ctx context.Context, env *sandbox.Environment, code string) (*Result, error) {
			<-ctx.Done()
			return &Result{Category: CategoryTimeout, Error: "placeholder"}, nil
		},
	}
	cfg := DefaultConfig()
	cfg.Timeout = 50 * time.Millisecond
	svc := NewService(cfg, exec, testLogger())

	start := time.Now()
	res, err := svc.Run(context.Background(), "while True: pass", "")
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if elapsed := time.Since(start); elapsed > 2*time.Second {
		t.Errorf("Run() took %v; want bounded by budget", elapsed)
	}
	if res.OK || res.Category != CategoryTimeout {
		t.Fatalf("Run() = %+v; want timeout", res)
	}
	if res.Error != "Code execution timed out after 0.05 seconds" {
		t.Errorf("Error = %q", res.Error)
	}
}

func TestService_Execute_InfrastructureError(t *testing.T) {
	boom := errors.New("docker unreachable")
	exec := &mockExecutor{
		executeFn: func(ctx context.Context, env *sandbox.Environment, code string) (*Result, error) {
			return nil, boom
		},
	}
	svc := NewService(DefaultConfig(), exec, testLogger())

	_, err := svc.Run(context.Background(), "print(1)", "")
	if !errors.Is(err, boom) {
		t.Errorf("Run() error = %v; want wrapped %v", err, boom)
	}
}

func TestService_CallerCancel(t *testing.T) {
	started := make(chan struct{})
	exec := &mockExecutor{
		executeFn: func(ctx context.Context, env *sandbox.Environment, code string) (*Result, error) {
			close(started)
			<-ctx.Done()
			return &Result{Category: CategoryTimeout}, nil
		},
	}
	svc := NewService(DefaultConfig(), exec, testLogger())

	ctx, cancel := context.WithCancel(context.Background())
	errCh := make(chan error, 1)
	go func() {
		_, err := svc.Run(ctx, "x", "")
		errCh <- err
	}()

	<-started
	if svc.Running() != 1 {
		t.Errorf("Running() = %d; want 1", svc.Running())
	}
	cancel()

	select {
	case err := <-errCh:
		if !errors.Is(err, ErrCancelled) {
			t.Errorf("Run() error = %v; want ErrCancelled", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Run() did not return after cancel")
	}

	if svc.Running() != 0 {
		t.Errorf("Running() = %d after completion; want 0", svc.Running())
	}
}

func TestService_FreshEnvironmentPerRun(t *testing.T) {
	var envs []*sandbox.Environment
	exec := &mockExecutor{
		executeFn: func(ctx context.Context, env *sandbox.Environment, code string) (*Result, error) {
			envs = append(envs, env)
			return Success("", 0), nil
		},
	}
	svc := NewService(DefaultConfig(), exec, testLogger())

	for i := 0; i < 2; i++ {
		if _, err := svc.Run(context.Background(), "print(input())", "a"); err != nil {
			t.Fatalf("Run() error = %v", err)
		}
	}
	if len(envs) != 2 || envs[0] == envs[1] {
		t.Error("expected a distinct environment per execution")
	}
}
