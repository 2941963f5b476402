package runner

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/felixgeelhaar/codedojo/internal/sandbox"
)

// Category classifies a failed execution
type Category string

const (
	CategoryNone     Category = ""
	CategorySyntax   Category = "syntax"
	CategoryRuntime  Category = "runtime"
	CategoryTimeout  Category = "timeout"
	CategoryInternal Category = "internal"
)

// TruncatedMessage reports output cut at the capture limit
const TruncatedMessage = "Output exceeded the size limit and was truncated"

// Result is the outcome of running one program once. Exactly one of Output
// and Error is meaningful, selected by OK. Truncated marks Output or Error
// as cut short at the capture limit.
type Result struct {
	OK        bool          `json:"ok"`
	Output    string        `json:"output,omitempty"`
	Error     string        `json:"error,omitempty"`
	Category  Category      `json:"category,omitempty"`
	Exception string        `json:"exception,omitempty"`
	Truncated bool          `json:"truncated,omitempty"`
	Duration  time.Duration `json:"duration"`
}

// Success builds a successful result
func Success(output string, d time.Duration) *Result {
	return &Result{OK: true, Output: output, Duration: d}
}

// Failure builds a failed result, classifying the trace
func Failure(trace string, d time.Duration) *Result {
	category, exception := Classify(trace)
	return &Result{
		Error:     trace,
		Category:  category,
		Exception: exception,
		Duration:  d,
	}
}

// Timeout builds the failure reported when the budget expires
func Timeout(budget, d time.Duration) *Result {
	return &Result{
		Error:    TimeoutMessage(budget),
		Category: CategoryTimeout,
		Duration: d,
	}
}

// TimeoutMessage renders the user-facing timeout text
func TimeoutMessage(budget time.Duration) string {
	secs := strconv.FormatFloat(budget.Seconds(), 'f', -1, 64)
	return fmt.Sprintf("Code execution timed out after %s seconds", secs)
}

// FromExec converts raw sandbox output into a Result. Successful output is
// trimmed of surrounding whitespace.
func FromExec(r *sandbox.ExecResult, budget time.Duration) *Result {
	res := fromExec(r, budget)
	res.Truncated = r.Truncated
	return res
}

func fromExec(r *sandbox.ExecResult, budget time.Duration) *Result {
	if r.TimedOut {
		return Timeout(budget, r.Duration)
	}
	if r.ExitCode == 0 {
		return Success(strings.TrimSpace(r.Stdout), r.Duration)
	}

	trace := strings.TrimRight(r.Stderr, "\n")
	if trace == "" {
		return &Result{
			Error:    fmt.Sprintf("process exited with status %d", r.ExitCode),
			Category: CategoryRuntime,
			Duration: r.Duration,
		}
	}
	return Failure(trace, r.Duration)
}
