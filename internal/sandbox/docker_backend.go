package sandbox

import (
	"archive/tar"
	"bytes"
	"context"
	"fmt"
	"io"
	"time"

	"github.com/docker/docker/api/types/container"
	"github.com/docker/docker/api/types/filters"
	"github.com/docker/docker/api/types/image"
	"github.com/docker/docker/client"
	"github.com/docker/docker/pkg/stdcopy"
)

const (
	workDir     = "/sandbox"
	requestFile = "request.json"
)

// DockerBackend runs each execution in its own throwaway container.
type DockerBackend struct {
	client *client.Client
	cfg    Config
}

// NewDockerBackend creates a new Docker backend.
func NewDockerBackend(cfg Config) (*DockerBackend, error) {
	cli, err := client.NewClientWithOpts(client.FromEnv, client.WithAPIVersionNegotiation())
	if err != nil {
		return nil, fmt.Errorf("create docker client: %w", err)
	}

	// Verify Docker is reachable
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if _, err := cli.Ping(ctx); err != nil {
		cli.Close()
		return nil, fmt.Errorf("%w: %v", ErrDockerUnavailable, err)
	}

	def := DefaultConfig()
	if cfg.Image == "" {
		cfg.Image = def.Image
	}
	if cfg.Interpreter == "" {
		cfg.Interpreter = def.Interpreter
	}
	if cfg.MemoryMB == 0 {
		cfg.MemoryMB = def.MemoryMB
	}
	if cfg.CPULimit == 0 {
		cfg.CPULimit = def.CPULimit
	}
	if cfg.PidsLimit == 0 {
		cfg.PidsLimit = def.PidsLimit
	}

	return &DockerBackend{client: cli, cfg: cfg}, nil
}

// Prepare pulls the sandbox image if it is not present yet.
func (b *DockerBackend) Prepare(ctx context.Context) error {
	if err := b.ensureImage(ctx, b.cfg.Image); err != nil {
		return fmt.Errorf("%w: %v", ErrImageUnavailable, err)
	}
	return nil
}

// Run executes the harness against request in a fresh container. When ctx
// expires the container is killed and the result is marked TimedOut. The
// container is always removed.
func (b *DockerBackend) Run(ctx context.Context, execID string, request []byte) (*ExecResult, error) {
	containerCfg := &container.Config{
		Image:           b.cfg.Image,
		Cmd:             Command(b.cfg.Interpreter, workDir+"/"+requestFile),
		WorkingDir:      workDir,
		User:            b.cfg.User,
		NetworkDisabled: b.cfg.NetworkOff,
		Tty:             false,
		Labels: map[string]string{
			LabelSandbox: "true",
			LabelExecID:  execID,
		},
	}

	pids := b.cfg.PidsLimit
	hostCfg := &container.HostConfig{
		Resources: container.Resources{
			Memory:    int64(b.cfg.MemoryMB) * 1024 * 1024,
			NanoCPUs:  int64(b.cfg.CPULimit * 1e9),
			PidsLimit: &pids,
		},
		CapDrop:     []string{"ALL"},
		SecurityOpt: []string{"no-new-privileges"},
	}

	resp, err := b.client.ContainerCreate(ctx, containerCfg, hostCfg, nil, nil, "")
	if err != nil {
		if ctx.Err() != nil {
			return &ExecResult{TimedOut: true}, nil
		}
		return nil, fmt.Errorf("create container: %w", err)
	}
	defer b.remove(resp.ID)

	if err := b.copyRequest(ctx, resp.ID, request); err != nil {
		if ctx.Err() != nil {
			return &ExecResult{TimedOut: true}, nil
		}
		return nil, err
	}

	waitCh, errCh := b.client.ContainerWait(ctx, resp.ID, container.WaitConditionNextExit)

	start := time.Now()
	if err := b.client.ContainerStart(ctx, resp.ID, container.StartOptions{}); err != nil {
		if ctx.Err() != nil {
			return &ExecResult{TimedOut: true}, nil
		}
		return nil, fmt.Errorf("start container: %w", err)
	}

	result := &ExecResult{}
	select {
	case status := <-waitCh:
		result.ExitCode = int(status.StatusCode)
		if status.Error != nil && status.Error.Message != "" {
			return nil, fmt.Errorf("wait container: %s", status.Error.Message)
		}
	case err := <-errCh:
		if ctx.Err() == nil {
			return nil, fmt.Errorf("wait container: %w", err)
		}
		b.kill(resp.ID)
		result.TimedOut = true
	case <-ctx.Done():
		b.kill(resp.ID)
		result.TimedOut = true
	}
	result.Duration = time.Since(start)

	if result.TimedOut {
		return result, nil
	}

	stdout, stderr, err := b.logs(ctx, resp.ID)
	if err != nil {
		return nil, err
	}
	result.Stdout = stdout
	result.Stderr = stderr
	return result, nil
}

// copyRequest writes the harness request into the created container.
func (b *DockerBackend) copyRequest(ctx context.Context, containerID string, request []byte) error {
	var buf bytes.Buffer
	tw := tar.NewWriter(&buf)

	header := &tar.Header{
		Name: requestFile,
		Mode: 0644,
		Size: int64(len(request)),
	}
	if err := tw.WriteHeader(header); err != nil {
		return fmt.Errorf("write tar header: %w", err)
	}
	if _, err := tw.Write(request); err != nil {
		return fmt.Errorf("write tar content: %w", err)
	}
	if err := tw.Close(); err != nil {
		return fmt.Errorf("close tar: %w", err)
	}

	if err := b.client.CopyToContainer(ctx, containerID, workDir, &buf, container.CopyToContainerOptions{}); err != nil {
		return fmt.Errorf("copy request: %w", err)
	}
	return nil
}

func (b *DockerBackend) logs(ctx context.Context, containerID string) (string, string, error) {
	reader, err := b.client.ContainerLogs(ctx, containerID, container.LogsOptions{
		ShowStdout: true,
		ShowStderr: true,
	})
	if err != nil {
		return "", "", fmt.Errorf("read container logs: %w", err)
	}
	defer reader.Close()

	var stdout, stderr bytes.Buffer
	if _, err := stdcopy.StdCopy(&stdout, &stderr, reader); err != nil {
		return "", "", fmt.Errorf("demux container logs: %w", err)
	}
	return stdout.String(), stderr.String(), nil
}

// kill uses a fresh context because the execution context has already expired.
func (b *DockerBackend) kill(containerID string) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	_ = b.client.ContainerKill(ctx, containerID, "SIGKILL")
}

func (b *DockerBackend) remove(containerID string) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	_ = b.client.ContainerRemove(ctx, containerID, container.RemoveOptions{Force: true})
}

// RemoveStale force-removes sandbox containers created before cutoff. These
// are left behind only when the process died mid-execution.
func (b *DockerBackend) RemoveStale(ctx context.Context, cutoff time.Time) (int, error) {
	list, err := b.client.ContainerList(ctx, container.ListOptions{
		All:     true,
		Filters: filters.NewArgs(filters.Arg("label", LabelSandbox+"=true")),
	})
	if err != nil {
		return 0, fmt.Errorf("list containers: %w", err)
	}

	removed := 0
	for _, c := range list {
		if time.Unix(c.Created, 0).After(cutoff) {
			continue
		}
		if err := b.client.ContainerRemove(ctx, c.ID, container.RemoveOptions{Force: true}); err != nil {
			continue
		}
		removed++
	}
	return removed, nil
}

// Close closes the Docker client.
func (b *DockerBackend) Close() error {
	return b.client.Close()
}

func (b *DockerBackend) ensureImage(ctx context.Context, img string) error {
	_, err := b.client.ImageInspect(ctx, img)
	if err == nil {
		return nil // Already present
	}

	reader, err := b.client.ImagePull(ctx, img, image.PullOptions{})
	if err != nil {
		return fmt.Errorf("pull image %s: %w", img, err)
	}
	defer reader.Close()
	// Drain the reader to complete the pull
	_, _ = io.Copy(io.Discard, reader)
	return nil
}
