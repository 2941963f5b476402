package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"os/user"
	"strconv"
	"strings"
	"syscall"

	"github.com/felixgeelhaar/codedojo/internal/config"
	"github.com/felixgeelhaar/codedojo/internal/daemon"
	"github.com/felixgeelhaar/codedojo/internal/execution"
	"github.com/felixgeelhaar/codedojo/internal/grading"
	"github.com/felixgeelhaar/codedojo/internal/problem"
)

// localUser names the learner for commands that bypass the daemon
func localUser() string {
	if id := strings.TrimSpace(os.Getenv("DOJO_USER")); id != "" {
		return id
	}
	if u, err := user.Current(); err == nil && u.Username != "" {
		return u.Username
	}
	return "local"
}

// withServices builds the services in-process and runs fn with a context
// cancelled on SIGINT/SIGTERM
func withServices(fn func(ctx context.Context, svc *daemon.Services) error) error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelWarn}))
	svc, err := daemon.BuildServices(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer svc.Close()

	return fn(ctx, svc)
}

// cmdRun runs a file once and prints its output
func cmdRun(args []string) error {
	if len(args) < 1 {
		return fmt.Errorf("file required (e.g., dojo run hello.py)")
	}
	code, err := os.ReadFile(args[0])
	if err != nil {
		return fmt.Errorf("read %s: %w", args[0], err)
	}

	return withServices(func(ctx context.Context, svc *daemon.Services) error {
		resp, err := svc.Execution.Execute(ctx, localUser(), execution.Request{Code: string(code)})
		if err != nil {
			return err
		}
		printWarnings(resp)
		if resp.Error != "" {
			fmt.Fprint(os.Stderr, resp.Error)
			return fmt.Errorf("program failed")
		}
		fmt.Print(resp.Output)
		return nil
	})
}

// cmdSubmit grades a file against a problem
func cmdSubmit(args []string) error {
	if len(args) < 2 {
		return fmt.Errorf("problem id and file required (e.g., dojo submit 1 solution.py)")
	}
	id, err := strconv.ParseInt(args[0], 10, 64)
	if err != nil || id <= 0 {
		return fmt.Errorf("invalid problem id: %s", args[0])
	}
	code, err := os.ReadFile(args[1])
	if err != nil {
		return fmt.Errorf("read %s: %w", args[1], err)
	}

	return withServices(func(ctx context.Context, svc *daemon.Services) error {
		resp, err := svc.Execution.Execute(ctx, localUser(), execution.Request{
			Code:      string(code),
			ProblemID: id,
			RunTests:  true,
		})
		if err != nil {
			return err
		}
		printWarnings(resp)
		printResults(resp.TestResults)

		if !resp.AllTestsPassed {
			return fmt.Errorf("not all tests passed")
		}
		fmt.Println("\n✓ All tests passed")
		if resp.Progress != nil {
			fmt.Printf("Solved: %d | Streak: %d (best %d)\n",
				resp.Progress.TotalSolved, resp.Progress.Streak, resp.Progress.HighScoreStreak)
		}
		return nil
	})
}

// cmdSeed loads problem banks from a directory
func cmdSeed(args []string) error {
	if len(args) < 1 {
		return fmt.Errorf("problems directory required (e.g., dojo seed ./problems)")
	}

	return withServices(func(ctx context.Context, svc *daemon.Services) error {
		n, err := svc.Problems.Seed(ctx, problem.NewLoader(args[0]))
		if err != nil {
			return err
		}
		fmt.Printf("✓ Seeded %d problems from %s\n", n, args[0])
		return nil
	})
}

func printResults(results []grading.CaseResult) {
	for _, r := range results {
		if r.Passed {
			fmt.Printf("  ✓ %s\n", r.TestName)
			continue
		}
		fmt.Printf("  ✗ %s\n", r.TestName)
		if r.Error != "" {
			fmt.Printf("      error:    %s\n", lastLine(r.Error))
			continue
		}
		fmt.Printf("      expected: %q\n", r.Expected)
		fmt.Printf("      actual:   %q\n", r.Actual)
	}
}

func printWarnings(resp *execution.Response) {
	for _, w := range resp.Warnings {
		fmt.Fprintf(os.Stderr, "warning: line %d: %s\n", w.Line, w.Title)
	}
}

func lastLine(s string) string {
	s = strings.TrimSpace(s)
	if i := strings.LastIndexByte(s, '\n'); i >= 0 {
		return s[i+1:]
	}
	return s
}
