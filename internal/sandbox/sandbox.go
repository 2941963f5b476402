package sandbox

import (
	"errors"
	"time"
)

// Labels stamped on every execution container
const (
	LabelSandbox = "codedojo.sandbox"
	LabelExecID  = "codedojo.exec"
)

// ExecResult holds the raw output from one sandboxed execution.
// Truncated is set when output went past the capture limit.
type ExecResult struct {
	ExitCode  int           `json:"exit_code"`
	Stdout    string        `json:"stdout"`
	Stderr    string        `json:"stderr"`
	TimedOut  bool          `json:"timed_out"`
	Truncated bool          `json:"truncated"`
	Duration  time.Duration `json:"duration"`
}

// Config holds container creation parameters.
type Config struct {
	Image       string  `json:"image"`
	Interpreter string  `json:"interpreter"`
	MemoryMB    int     `json:"memory_mb"`
	CPULimit    float64 `json:"cpu_limit"`
	PidsLimit   int64   `json:"pids_limit"`
	NetworkOff  bool    `json:"network_off"`
	User        string  `json:"user"`
}

// DefaultConfig returns sensible defaults for a Python sandbox.
func DefaultConfig() Config {
	return Config{
		Image:       "python:3.12-alpine",
		Interpreter: "python3",
		MemoryMB:    128,
		CPULimit:    0.5,
		PidsLimit:   64,
		NetworkOff:  true,
		User:        "nobody",
	}
}

var (
	ErrDockerUnavailable = errors.New("docker not reachable")
	ErrImageUnavailable  = errors.New("sandbox image unavailable")
)
