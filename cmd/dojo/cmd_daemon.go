package main

import (
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/felixgeelhaar/codedojo/internal/config"
)

// daemonURL is the base URL of the configured daemon
func daemonURL() (string, error) {
	cfg, err := config.Load()
	if err != nil {
		return "", fmt.Errorf("load config: %w", err)
	}
	return "http://" + cfg.Address(), nil
}

// cmdStart starts the daemon in the background
func cmdStart() error {
	base, err := daemonURL()
	if err != nil {
		return err
	}
	if isRunning(base) {
		fmt.Println("✓ Daemon is already running")
		return nil
	}

	dir, err := config.EnsureDir()
	if err != nil {
		return fmt.Errorf("setup config directory: %w", err)
	}

	dojodPath, err := findDaemonBinary()
	if err != nil {
		return fmt.Errorf("find daemon binary: %w", err)
	}

	cmd := exec.Command(dojodPath)
	cmd.Dir = dir
	cmd.Stdout = nil
	cmd.Stderr = nil
	configureDaemonProcess(cmd)

	if err := cmd.Start(); err != nil {
		return fmt.Errorf("start daemon: %w", err)
	}

	fmt.Print("Starting daemon...")
	for i := 0; i < 30; i++ {
		time.Sleep(100 * time.Millisecond)
		if isRunning(base) {
			fmt.Println(" ✓")
			fmt.Printf("Daemon running at %s\n", base)
			return nil
		}
		fmt.Print(".")
	}

	fmt.Println(" ✗")
	return fmt.Errorf("daemon failed to start (see %s)", filepath.Join(dir, "logs", "dojod.log"))
}

// cmdStop stops the daemon
func cmdStop() error {
	base, err := daemonURL()
	if err != nil {
		return err
	}
	if !isRunning(base) {
		fmt.Println("Daemon is not running")
		return nil
	}

	dir, err := config.Dir()
	if err != nil {
		return err
	}

	pid, err := readPID(filepath.Join(dir, pidFile))
	if err != nil {
		return err
	}

	process, err := os.FindProcess(pid)
	if err != nil {
		return fmt.Errorf("find process: %w", err)
	}

	fmt.Print("Stopping daemon...")
	if err := process.Signal(syscall.SIGTERM); err != nil {
		return fmt.Errorf("send signal: %w", err)
	}

	for i := 0; i < 50; i++ {
		time.Sleep(100 * time.Millisecond)
		if !isRunning(base) {
			fmt.Println(" ✓")
			return nil
		}
		fmt.Print(".")
	}

	fmt.Println(" ✗")
	return fmt.Errorf("daemon did not stop gracefully")
}

// cmdStatus shows daemon status
func cmdStatus() error {
	base, err := daemonURL()
	if err != nil {
		return err
	}
	if !isRunning(base) {
		fmt.Println("Status: stopped")
		return nil
	}

	resp, err := http.Get(base + "/v1/status")
	if err != nil {
		return fmt.Errorf("get status: %w", err)
	}
	defer resp.Body.Close()

	var status struct {
		Status       string   `json:"status"`
		Version      string   `json:"version"`
		Uptime       int      `json:"uptime_seconds"`
		Runner       string   `json:"runner"`
		Database     string   `json:"database"`
		Running      int      `json:"running_executions"`
		AsyncEnabled bool     `json:"async_enabled"`
		TutorEnabled bool     `json:"tutor_enabled"`
		LLMProviders []string `json:"llm_providers"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&status); err != nil {
		return fmt.Errorf("parse status: %w", err)
	}

	fmt.Printf("Status:    %s\n", status.Status)
	fmt.Printf("Version:   %s\n", status.Version)
	fmt.Printf("Uptime:    %s\n", time.Duration(status.Uptime)*time.Second)
	fmt.Printf("Runner:    %s (%d running)\n", status.Runner, status.Running)
	fmt.Printf("Database:  %s\n", status.Database)
	fmt.Printf("Async:     %s\n", onOff(status.AsyncEnabled))
	fmt.Printf("Tutor:     %s\n", onOff(status.TutorEnabled))
	fmt.Printf("Providers: %s\n", strings.Join(status.LLMProviders, ", "))
	fmt.Printf("Address:   %s\n", base)
	return nil
}

func onOff(b bool) string {
	if b {
		return "enabled"
	}
	return "disabled"
}

func readPID(path string) (int, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return 0, fmt.Errorf("read PID file: %w", err)
	}
	pid, err := strconv.Atoi(strings.TrimSpace(string(data)))
	if err != nil {
		return 0, fmt.Errorf("parse PID: %w", err)
	}
	return pid, nil
}

func isRunning(base string) bool {
	client := &http.Client{Timeout: 2 * time.Second}
	resp, err := client.Get(base + "/v1/health")
	if err != nil {
		return false
	}
	defer resp.Body.Close()
	return resp.StatusCode == http.StatusOK
}

// findDaemonBinary locates the dojod binary
func findDaemonBinary() (string, error) {
	if path, err := exec.LookPath("dojod"); err == nil {
		return path, nil
	}

	if self, err := os.Executable(); err == nil {
		path := filepath.Join(filepath.Dir(self), "dojod")
		if _, err := os.Stat(path); err == nil {
			return path, nil
		}
	}

	for _, path := range []string{"/usr/local/bin/dojod", "./dojod", "./cmd/dojod/dojod"} {
		if _, err := os.Stat(path); err == nil {
			return path, nil
		}
	}

	return "", fmt.Errorf("dojod binary not found (build with 'go build ./cmd/dojod')")
}
