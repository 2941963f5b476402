package execution

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/felixgeelhaar/codedojo/internal/domain"
	"github.com/felixgeelhaar/codedojo/internal/grading"
	"github.com/felixgeelhaar/codedojo/internal/progress"
	"github.com/felixgeelhaar/codedojo/internal/risk"
	"github.com/felixgeelhaar/codedojo/internal/runner"
)

type mockRunner struct {
	runFn func(ctx context.Context, code, input string) (*runner.Result, error)
}

func (m *mockRunner) Run(ctx context.Context, code, input string) (*runner.Result, error) {
	return m.runFn(ctx, code, input)
}

type mockProblems struct {
	problems map[int64]*domain.Problem
}

func (m *mockProblems) Get(_ context.Context, id int64) (*domain.Problem, error) {
	p, ok := m.problems[id]
	if !ok {
		return nil, domain.ErrProblemNotFound
	}
	return p, nil
}

type mockRecorder struct {
	outcomes []progress.Outcome
	recordFn func(o progress.Outcome) (*progress.Delta, error)
}

func (m *mockRecorder) Record(_ context.Context, o progress.Outcome) (*progress.Delta, error) {
	m.outcomes = append(m.outcomes, o)
	if m.recordFn != nil {
		return m.recordFn(o)
	}
	return &progress.Delta{SubmissionID: int64(len(m.outcomes)), TotalSolved: 1, Streak: 1, HighScoreStreak: 1}, nil
}

// echoRunner prints its input joined by spaces
func echoRunner() *mockRunner {
	return &mockRunner{runFn: func(_ context.Context, code, input string) (*runner.Result, error) {
		if strings.Contains(code, "boom") {
			return runner.Failure("Traceback (most recent call last):\nZeroDivisionError: division by zero", 0), nil
		}
		return runner.Success(strings.ReplaceAll(input, ",", " "), 0), nil
	}}
}

func newTestService(r Runner, rec Recorder, opts ...Option) *Service {
	problems := &mockProblems{problems: map[int64]*domain.Problem{
		1: {ID: 1, Name: "Echo", TestCases: domain.TestCases{
			{Name: "first", Input: "a,b", Output: "a b"},
			{Name: "second", Input: "c", Output: "c"},
		}},
		2: {ID: 2, Name: "Empty"},
		3: {ID: 3, Name: "Echo 3", Language: "python3", TestCases: domain.TestCases{
			{Name: "only", Input: "z", Output: "z"},
		}},
	}}
	return NewService(r, grading.NewGrader(r), problems, rec, opts...)
}

func marshal(t *testing.T, resp *Response) map[string]any {
	t.Helper()
	data, err := json.Marshal(resp)
	if err != nil {
		t.Fatalf("json.Marshal() error = %v", err)
	}
	var out map[string]any
	if err := json.Unmarshal(data, &out); err != nil {
		t.Fatalf("json.Unmarshal() error = %v", err)
	}
	return out
}

func TestService_Execute_BlankCode(t *testing.T) {
	svc := newTestService(echoRunner(), &mockRecorder{})
	for _, code := range []string{"", "   \n\t"} {
		_, err := svc.Execute(context.Background(), "u1", Request{Code: code})
		if !errors.Is(err, domain.ErrBadRequest) {
			t.Errorf("Execute(%q) error = %v; want ErrBadRequest", code, err)
		}
	}
}

func TestService_Execute_Run(t *testing.T) {
	svc := newTestService(echoRunner(), &mockRecorder{})

	resp, err := svc.Execute(context.Background(), "", Request{Code: "print('hi')"})
	if err != nil {
		t.Fatalf("Execute() error = %v", err)
	}
	out := marshal(t, resp)
	if _, ok := out["output"]; !ok {
		t.Errorf("response = %v; want output key", out)
	}
	if _, ok := out["test_results"]; ok {
		t.Errorf("response = %v; want no test_results on success", out)
	}
}

func TestService_Execute_RunFailure(t *testing.T) {
	svc := newTestService(echoRunner(), &mockRecorder{})

	resp, err := svc.Execute(context.Background(), "", Request{Code: "boom"})
	if err != nil {
		t.Fatalf("Execute() error = %v", err)
	}
	if !strings.Contains(resp.Error, "ZeroDivisionError") {
		t.Errorf("Error = %q; want ZeroDivisionError trace", resp.Error)
	}
	if len(resp.TestResults) != 1 {
		t.Fatalf("len(TestResults) = %d; want 1", len(resp.TestResults))
	}
	tr := resp.TestResults[0]
	if tr.TestName != ExecutionTestName || tr.Passed || tr.Error != resp.Error {
		t.Errorf("TestResults[0] = %+v", tr)
	}

	out := marshal(t, resp)
	if out["error"] != resp.Error {
		t.Errorf("json error = %v; want %q", out["error"], resp.Error)
	}
}

func TestService_Execute_RunInfraError(t *testing.T) {
	r := &mockRunner{runFn: func(context.Context, string, string) (*runner.Result, error) {
		return nil, errors.New("python3 not found")
	}}
	svc := newTestService(r, &mockRecorder{})

	_, err := svc.Execute(context.Background(), "", Request{Code: "print(1)"})
	if err == nil || !strings.Contains(err.Error(), "python3 not found") {
		t.Errorf("Execute() error = %v; want wrapped infra error", err)
	}
}

func TestService_Execute_Grade(t *testing.T) {
	rec := &mockRecorder{}
	svc := newTestService(echoRunner(), rec)

	resp, err := svc.Execute(context.Background(), "u1", Request{Code: "print(x)", ProblemID: 1, RunTests: true, TimeSpent: 42})
	if err != nil {
		t.Fatalf("Execute() error = %v", err)
	}
	if !resp.AllTestsPassed {
		t.Errorf("AllTestsPassed = false; want true (results %+v)", resp.TestResults)
	}
	if resp.SubmissionID != 1 {
		t.Errorf("SubmissionID = %d; want 1", resp.SubmissionID)
	}

	if len(rec.outcomes) != 1 {
		t.Fatalf("recorded %d outcomes; want 1", len(rec.outcomes))
	}
	o := rec.outcomes[0]
	if o.UserID != "u1" || o.ProblemID != 1 || !o.Passed || o.TimeSpent != 42 || o.Language != DefaultLanguage {
		t.Errorf("outcome = %+v", o)
	}
	var stored []grading.CaseResult
	if err := json.Unmarshal(o.Results, &stored); err != nil {
		t.Fatalf("stored results not JSON: %v", err)
	}
	if len(stored) != 2 || stored[0].TestName != "first" {
		t.Errorf("stored results = %+v", stored)
	}

	out := marshal(t, resp)
	if out["all_tests_passed"] != true {
		t.Errorf("json all_tests_passed = %v", out["all_tests_passed"])
	}
	if out["submission_id"] != float64(1) {
		t.Errorf("json submission_id = %v", out["submission_id"])
	}
}

func TestService_Execute_GradeFailureStillRecorded(t *testing.T) {
	rec := &mockRecorder{}
	svc := newTestService(echoRunner(), rec)

	resp, err := svc.Execute(context.Background(), "u1", Request{Code: "boom", ProblemID: 1, RunTests: true})
	if err != nil {
		t.Fatalf("Execute() error = %v", err)
	}
	if resp.AllTestsPassed {
		t.Error("AllTestsPassed = true; want false")
	}
	if len(resp.TestResults) != 2 {
		t.Errorf("len(TestResults) = %d; want 2 (no short-circuit)", len(resp.TestResults))
	}
	if len(rec.outcomes) != 1 || rec.outcomes[0].Passed {
		t.Errorf("outcomes = %+v; want one failed outcome", rec.outcomes)
	}

	out := marshal(t, resp)
	if _, ok := out["total_solved"]; ok {
		t.Errorf("failed response carries total_solved: %v", out)
	}
}

func TestService_Execute_GradeErrors(t *testing.T) {
	tests := []struct {
		name    string
		userID  string
		req     Request
		opts    []grading.Option
		wantErr error
	}{
		{"unknown problem", "u1", Request{Code: "x", ProblemID: 99, RunTests: true}, nil, domain.ErrProblemNotFound},
		{"no user", "", Request{Code: "x", ProblemID: 1, RunTests: true}, nil, domain.ErrUnauthorized},
		{"empty cases rejected", "u1", Request{Code: "x", ProblemID: 2, RunTests: true},
			[]grading.Option{grading.WithEmptyPolicy(grading.EmptyReject)}, domain.ErrNoTestCases},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := echoRunner()
			rec := &mockRecorder{}
			svc := newTestService(r, rec)
			svc.grader = grading.NewGrader(r, tt.opts...)

			_, err := svc.Execute(context.Background(), tt.userID, tt.req)
			if !errors.Is(err, tt.wantErr) {
				t.Errorf("Execute() error = %v; want %v", err, tt.wantErr)
			}
			if len(rec.outcomes) != 0 {
				t.Errorf("recorded %d outcomes; want 0", len(rec.outcomes))
			}
		})
	}
}

func TestService_Execute_EmptyCasesPass(t *testing.T) {
	svc := newTestService(echoRunner(), &mockRecorder{})

	resp, err := svc.Execute(context.Background(), "u1", Request{Code: "x", ProblemID: 2, RunTests: true})
	if err != nil {
		t.Fatalf("Execute() error = %v", err)
	}
	if !resp.AllTestsPassed {
		t.Error("AllTestsPassed = false; want vacuous pass")
	}
	out := marshal(t, resp)
	results, ok := out["test_results"].([]any)
	if !ok || len(results) != 0 {
		t.Errorf("json test_results = %v; want []", out["test_results"])
	}
}

func TestService_Execute_RecordError(t *testing.T) {
	rec := &mockRecorder{recordFn: func(progress.Outcome) (*progress.Delta, error) {
		return nil, errors.New("database is locked")
	}}
	svc := newTestService(echoRunner(), rec)

	_, err := svc.Execute(context.Background(), "u1", Request{Code: "x", ProblemID: 1, RunTests: true})
	if err == nil || !strings.Contains(err.Error(), "record outcome") {
		t.Errorf("Execute() error = %v; want record outcome failure", err)
	}
}

func TestService_Execute_Warnings(t *testing.T) {
	svc := newTestService(echoRunner(), &mockRecorder{}, WithScreener(risk.NewDetector()))

	resp, err := svc.Execute(context.Background(), "", Request{Code: "import os\nprint(1)"})
	if err != nil {
		t.Fatalf("Execute() error = %v", err)
	}
	if len(resp.Warnings) == 0 || resp.Warnings[0].ID != "PY001" {
		t.Errorf("Warnings = %+v; want PY001", resp.Warnings)
	}
	out := marshal(t, resp)
	if _, ok := out["warnings"]; !ok {
		t.Errorf("json = %v; want warnings", out)
	}
}

func TestService_Execute_RecordsProblemLanguage(t *testing.T) {
	rec := &mockRecorder{}
	svc := newTestService(echoRunner(), rec)

	for _, id := range []int64{1, 3} {
		if _, err := svc.Execute(context.Background(), "u1", Request{Code: "print(x)", ProblemID: id, RunTests: true}); err != nil {
			t.Fatalf("Execute(problem %d) error = %v", id, err)
		}
	}

	if got := rec.outcomes[0].Language; got != DefaultLanguage {
		t.Errorf("Language without problem language = %q; want %q", got, DefaultLanguage)
	}
	if got := rec.outcomes[1].Language; got != "python3" {
		t.Errorf("Language = %q; want %q", got, "python3")
	}
}

func TestService_Budget(t *testing.T) {
	svc := newTestService(echoRunner(), &mockRecorder{}, WithCaseTimeout(5*time.Second))

	tests := []struct {
		name string
		req  Request
		want time.Duration
	}{
		{"run only", Request{Code: "x", ProblemID: 1}, 5*time.Second + budgetSlack},
		{"graded per case", Request{Code: "x", ProblemID: 1, RunTests: true}, 10*time.Second + budgetSlack},
		{"no cases counts one", Request{Code: "x", ProblemID: 2, RunTests: true}, 5*time.Second + budgetSlack},
		{"unknown problem counts one", Request{Code: "x", ProblemID: 99, RunTests: true}, 5*time.Second + budgetSlack},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := svc.Budget(context.Background(), tt.req); got != tt.want {
				t.Errorf("Budget() = %v; want %v", got, tt.want)
			}
		})
	}
}
