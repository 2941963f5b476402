// Package grading runs a submission against a problem's test cases and
// aggregates the verdict.
package grading

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/felixgeelhaar/codedojo/internal/domain"
	"github.com/felixgeelhaar/codedojo/internal/runner"
)

// Runner executes code once with a raw input string
type Runner interface {
	Run(ctx context.Context, code, input string) (*runner.Result, error)
}

// EmptyPolicy decides how a problem without test cases is graded
type EmptyPolicy string

const (
	// EmptyPass grades an empty case set as a vacuous pass
	EmptyPass EmptyPolicy = "pass"
	// EmptyReject refuses to grade an empty case set
	EmptyReject EmptyPolicy = "reject"
)

// IsValid checks if the policy is known
func (p EmptyPolicy) IsValid() bool {
	return p == EmptyPass || p == EmptyReject
}

// CaseResult is the verdict for one test case
type CaseResult struct {
	TestName string
	Passed   bool
	Expected string
	Actual   string
	Error    string
	Category runner.Category
}

// Failed reports whether the program failed before its output could be compared
func (c CaseResult) Failed() bool {
	return c.Error != ""
}

// MarshalJSON renders either the comparison shape or the error shape
func (c CaseResult) MarshalJSON() ([]byte, error) {
	if c.Failed() {
		return json.Marshal(struct {
			TestName string          `json:"test_name"`
			Passed   bool            `json:"passed"`
			Error    string          `json:"error"`
			Category runner.Category `json:"category,omitempty"`
		}{c.TestName, c.Passed, c.Error, c.Category})
	}
	return json.Marshal(struct {
		TestName string `json:"test_name"`
		Passed   bool   `json:"passed"`
		Expected string `json:"expected_output"`
		Actual   string `json:"actual_output"`
	}{c.TestName, c.Passed, c.Expected, c.Actual})
}

// UnmarshalJSON accepts either shape
func (c *CaseResult) UnmarshalJSON(data []byte) error {
	var raw struct {
		TestName string          `json:"test_name"`
		Passed   bool            `json:"passed"`
		Expected string          `json:"expected_output"`
		Actual   string          `json:"actual_output"`
		Error    string          `json:"error"`
		Category runner.Category `json:"category"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	*c = CaseResult{
		TestName: raw.TestName,
		Passed:   raw.Passed,
		Expected: raw.Expected,
		Actual:   raw.Actual,
		Error:    raw.Error,
		Category: raw.Category,
	}
	return nil
}

// Report aggregates the per-case verdicts
type Report struct {
	AllPassed bool         `json:"all_tests_passed"`
	Results   []CaseResult `json:"test_results"`
}

// PassedCount returns how many cases passed
func (r *Report) PassedCount() int {
	n := 0
	for _, c := range r.Results {
		if c.Passed {
			n++
		}
	}
	return n
}

// Grader runs submissions against test cases
type Grader struct {
	runner Runner
	empty  EmptyPolicy
	logger *slog.Logger
}

// Option configures a Grader
type Option func(*Grader)

// WithEmptyPolicy sets the empty test-case policy
func WithEmptyPolicy(p EmptyPolicy) Option {
	return func(g *Grader) {
		if p.IsValid() {
			g.empty = p
		}
	}
}

// WithLogger sets the logger
func WithLogger(l *slog.Logger) Option {
	return func(g *Grader) {
		g.logger = l
	}
}

// NewGrader creates a grader backed by r
func NewGrader(r Runner, opts ...Option) *Grader {
	g := &Grader{
		runner: r,
		empty:  EmptyPass,
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// Grade runs code once per case, in order. Every case runs even after a
// failure so the caller receives full diagnostics. Only infrastructure
// faults are returned as errors.
func (g *Grader) Grade(ctx context.Context, code string, cases domain.TestCases) (*Report, error) {
	if len(cases) == 0 {
		if g.empty == EmptyReject {
			return nil, domain.ErrNoTestCases
		}
		return &Report{AllPassed: true, Results: []CaseResult{}}, nil
	}

	report := &Report{
		AllPassed: true,
		Results:   make([]CaseResult, 0, len(cases)),
	}

	for _, tc := range cases {
		res, err := g.runner.Run(ctx, code, tc.Input)
		if err != nil {
			return nil, fmt.Errorf("run test %q: %w", tc.Name, err)
		}

		var cr CaseResult
		switch {
		case !res.OK:
			cr = CaseResult{
				TestName: tc.Name,
				Error:    res.Error,
				Category: res.Category,
			}
		case res.Truncated:
			cr = CaseResult{
				TestName: tc.Name,
				Error:    runner.TruncatedMessage,
				Category: runner.CategoryRuntime,
			}
		default:
			cr = CaseResult{
				TestName: tc.Name,
				Passed:   Equal(tc.Output, res.Output),
				Expected: tc.Output,
				Actual:   res.Output,
			}
		}

		if !cr.Passed {
			report.AllPassed = false
		}
		report.Results = append(report.Results, cr)
	}

	g.logger.Debug("graded submission",
		"cases", len(cases),
		"passed", report.PassedCount(),
		"all_passed", report.AllPassed)

	return report, nil
}
