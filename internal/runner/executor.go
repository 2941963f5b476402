package runner

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"time"

	"github.com/felixgeelhaar/codedojo/internal/sandbox"
)

// DefaultMaxOutput caps captured stdout and stderr per execution
const DefaultMaxOutput = 1 << 20

// Executor runs one program inside a sandbox environment.
// Failures inside the program are reported through Result; the returned
// error is reserved for infrastructure faults.
type Executor interface {
	Execute(ctx context.Context, env *sandbox.Environment, code string) (*Result, error)
}

// ExecutorFunc adapts a function to the Executor interface
type ExecutorFunc func(ctx context.Context, env *sandbox.Environment, code string) (*Result, error)

func (f ExecutorFunc) Execute(ctx context.Context, env *sandbox.Environment, code string) (*Result, error) {
	return f(ctx, env, code)
}

// LocalExecutor spawns one interpreter process per execution on the host.
type LocalExecutor struct {
	interpreter string
	maxOutput   int
}

// NewLocalExecutor creates a new local executor
func NewLocalExecutor(interpreter string) *LocalExecutor {
	if interpreter == "" {
		interpreter = "python3"
	}
	return &LocalExecutor{
		interpreter: interpreter,
		maxOutput:   DefaultMaxOutput,
	}
}

// Execute runs code until it exits or ctx is done. On ctx expiry the whole
// process group is killed and a timeout result is returned.
func (e *LocalExecutor) Execute(ctx context.Context, env *sandbox.Environment, code string) (*Result, error) {
	request, err := env.Request(code)
	if err != nil {
		return nil, err
	}

	tmpDir, err := os.MkdirTemp("", "codedojo-run-*")
	if err != nil {
		return nil, fmt.Errorf("create work dir: %w", err)
	}
	defer os.RemoveAll(tmpDir)

	argv := sandbox.Command(e.interpreter, "")
	cmd := exec.Command(argv[0], argv[1:]...)
	cmd.Dir = tmpDir
	cmd.Env = []string{"LANG=C.UTF-8"}
	cmd.Stdin = bytes.NewReader(request)
	stdout := newCappedBuffer(e.maxOutput)
	stderr := newCappedBuffer(e.maxOutput)
	cmd.Stdout = stdout
	cmd.Stderr = stderr
	cmd.WaitDelay = time.Second
	configureProcessGroup(cmd)

	start := time.Now()
	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("start interpreter: %w", err)
	}

	done := make(chan error, 1)
	go func() {
		done <- cmd.Wait()
	}()

	raw := &sandbox.ExecResult{}
	select {
	case err = <-done:
	case <-ctx.Done():
		killProcessGroup(cmd)
		<-done
		raw.TimedOut = true
		err = nil
	}
	raw.Duration = time.Since(start)

	if err != nil {
		var exitErr *exec.ExitError
		if !errors.As(err, &exitErr) {
			return nil, fmt.Errorf("wait interpreter: %w", err)
		}
	}

	raw.ExitCode = cmd.ProcessState.ExitCode()
	raw.Stdout = stdout.String()
	raw.Stderr = stderr.String()
	raw.Truncated = stdout.Truncated() || stderr.Truncated()

	return FromExec(raw, budgetOf(ctx, start)), nil
}

// budgetOf recovers the time budget from the context deadline for messages.
func budgetOf(ctx context.Context, start time.Time) time.Duration {
	deadline, ok := ctx.Deadline()
	if !ok {
		return 0
	}
	return deadline.Sub(start).Round(time.Second)
}

// Ensure LocalExecutor implements Executor
var _ Executor = (*LocalExecutor)(nil)
