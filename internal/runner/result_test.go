package runner

import (
	"strings"
	"testing"
	"time"

	"github.com/felixgeelhaar/codedojo/internal/sandbox"
)

func TestClassify(t *testing.T) {
	tests := []struct {
		name          string
		trace         string
		wantCategory  Category
		wantException string
	}{
		{
			name:          "zero division",
			trace:         "Traceback (most recent call last):\n  File \"<submission>\", line 1, in <module>\nZeroDivisionError: division by zero",
			wantCategory:  CategoryRuntime,
			wantException: "ZeroDivisionError",
		},
		{
			name:          "syntax error",
			trace:         "  File \"<submission>\", line 1\n    print(\n         ^\nSyntaxError: '(' was never closed\n",
			wantCategory:  CategorySyntax,
			wantException: "SyntaxError",
		},
		{
			name:          "indentation error",
			trace:         "  File \"<submission>\", line 2\n    x = 1\nIndentationError: unexpected indent",
			wantCategory:  CategorySyntax,
			wantException: "IndentationError",
		},
		{
			name:          "qualified exception",
			trace:         "Traceback (most recent call last):\njson.decoder.JSONDecodeError: Expecting value",
			wantCategory:  CategoryRuntime,
			wantException: "JSONDecodeError",
		},
		{
			name:          "bare exception name",
			trace:         "Traceback (most recent call last):\nKeyboardInterrupt",
			wantCategory:  CategoryRuntime,
			wantException: "KeyboardInterrupt",
		},
		{
			name:          "timeout",
			trace:         "Code execution timed out after 10 seconds",
			wantCategory:  CategoryTimeout,
			wantException: "",
		},
		{
			name:          "unrecognised",
			trace:         "something odd happened here",
			wantCategory:  CategoryRuntime,
			wantException: "",
		},
		{
			name:          "empty",
			trace:         "",
			wantCategory:  CategoryRuntime,
			wantException: "",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			category, exception := Classify(tt.trace)
			if category != tt.wantCategory {
				t.Errorf("Classify() category = %q; want %q", category, tt.wantCategory)
			}
			if exception != tt.wantException {
				t.Errorf("Classify() exception = %q; want %q", exception, tt.wantException)
			}
		})
	}
}

func TestTimeoutMessage(t *testing.T) {
	tests := []struct {
		budget time.Duration
		want   string
	}{
		{10 * time.Second, "Code execution timed out after 10 seconds"},
		{1500 * time.Millisecond, "Code execution timed out after 1.5 seconds"},
		{2 * time.Second, "Code execution timed out after 2 seconds"},
	}

	for _, tt := range tests {
		if got := TimeoutMessage(tt.budget); got != tt.want {
			t.Errorf("TimeoutMessage(%v) = %q; want %q", tt.budget, got, tt.want)
		}
	}
}

func TestFromExec(t *testing.T) {
	t.Run("success trims output", func(t *testing.T) {
		res := FromExec(&sandbox.ExecResult{Stdout: "\n  Hello, World!\n\n"}, 10*time.Second)
		if !res.OK {
			t.Fatalf("OK = false; want true")
		}
		if res.Output != "Hello, World!" {
			t.Errorf("Output = %q; want %q", res.Output, "Hello, World!")
		}
	})

	t.Run("truncation carried", func(t *testing.T) {
		res := FromExec(&sandbox.ExecResult{Stdout: "aaaa", Truncated: true}, 10*time.Second)
		if !res.OK || !res.Truncated {
			t.Errorf("OK = %v, Truncated = %v; want both true", res.OK, res.Truncated)
		}
		if res := FromExec(&sandbox.ExecResult{Stdout: "a"}, 10*time.Second); res.Truncated {
			t.Error("Truncated = true for complete output")
		}
	})

	t.Run("failure keeps trace", func(t *testing.T) {
		res := FromExec(&sandbox.ExecResult{
			ExitCode: 1,
			Stdout:   "partial",
			Stderr:   "Traceback (most recent call last):\nValueError: bad\n",
		}, 10*time.Second)
		if res.OK {
			t.Fatal("OK = true; want false")
		}
		if res.Error != "Traceback (most recent call last):\nValueError: bad" {
			t.Errorf("Error = %q", res.Error)
		}
		if res.Exception != "ValueError" || res.Category != CategoryRuntime {
			t.Errorf("classified as %q/%q; want runtime/ValueError", res.Category, res.Exception)
		}
		if res.Output != "" {
			t.Errorf("Output = %q; want empty on failure", res.Output)
		}
	})

	t.Run("killed without trace", func(t *testing.T) {
		res := FromExec(&sandbox.ExecResult{ExitCode: 137}, 10*time.Second)
		if res.OK || !strings.Contains(res.Error, "137") {
			t.Errorf("FromExec() = %+v; want failure mentioning status", res)
		}
	})

	t.Run("timeout", func(t *testing.T) {
		res := FromExec(&sandbox.ExecResult{TimedOut: true, ExitCode: -1}, 3*time.Second)
		if res.OK || res.Category != CategoryTimeout {
			t.Fatalf("FromExec() = %+v; want timeout failure", res)
		}
		if res.Error != "Code execution timed out after 3 seconds" {
			t.Errorf("Error = %q", res.Error)
		}
	})
}

func TestCappedBuffer(t *testing.T) {
	b := newCappedBuffer(5)

	n, err := b.Write([]byte("abc"))
	if err != nil || n != 3 {
		t.Fatalf("Write() = %d, %v", n, err)
	}
	n, _ = b.Write([]byte("defgh"))
	if n != 5 {
		t.Errorf("Write() n = %d; want 5", n)
	}
	b.Write([]byte("ijk"))

	if got := b.String(); got != "abcde" {
		t.Errorf("String() = %q; want %q", got, "abcde")
	}
	if !b.Truncated() {
		t.Error("Truncated() = false; want true")
	}
}
