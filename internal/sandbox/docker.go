package sandbox

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"code-playground/pkg/seccomp"
)

// containerWorkDir is where the execution directory is mounted in a container.
const containerWorkDir = "/workspace"

// DockerBackend runs each worker in a throwaway container via the docker CLI
// (macOS, or Linux without containerd).
type DockerBackend struct {
	dockerHost    string // resolved DOCKER_HOST (e.g. from Docker context)
	grace         time.Duration
	wg            sync.WaitGroup
	running       sync.Map // container name -> struct{}
	cancelCleanup context.CancelFunc
}

func NewDockerBackend(grace time.Duration) *DockerBackend {
	if grace <= 0 {
		grace = DefaultKillGrace
	}
	d := &DockerBackend{
		dockerHost: resolveDockerHost(),
		grace:      grace,
	}

	ctx, cancel := context.WithCancel(context.Background())
	d.cancelCleanup = cancel
	go d.orphanCleanupLoop(ctx)

	return d
}

func (d *DockerBackend) Name() string { return "docker" }

// orphanCleanupLoop periodically removes sandbox containers that survived a server crash.
func (d *DockerBackend) orphanCleanupLoop(ctx context.Context) {
	d.cleanupOrphans()

	ticker := time.NewTicker(5 * time.Minute)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			d.cleanupOrphans()
		case <-ctx.Done():
			return
		}
	}
}

func (d *DockerBackend) cleanupOrphans() {
	out, err := d.docker(context.Background(), "ps", "-a", "--filter", "name=sandbox-", "--format", "{{.Names}}").Output()
	if err != nil {
		return
	}
	for _, name := range strings.Fields(string(out)) {
		if _, live := d.running.Load(name); live {
			continue
		}
		log.Warn().Str("container", name).Msg("removing orphaned sandbox container")
		_ = d.docker(context.Background(), "rm", "-f", name).Run()
	}
}

// resolveDockerHost figures out the Docker socket. On macOS, Docker Desktop uses
// a context-specific socket that child processes don't inherit.
func resolveDockerHost() string {
	if h := os.Getenv("DOCKER_HOST"); h != "" {
		return h
	}

	out, err := exec.Command("docker", "context", "inspect", "--format", "{{.Endpoints.docker.Host}}").Output()
	if err == nil {
		host := strings.TrimSpace(string(out))
		if host != "" {
			log.Debug().Str("docker_host", host).Msg("resolved Docker host from context")
			return host
		}
	}

	return ""
}

func (d *DockerBackend) docker(ctx context.Context, args ...string) *exec.Cmd {
	cmd := exec.CommandContext(ctx, "docker", args...) // #nosec G204 -- args built internally
	if d.dockerHost != "" {
		cmd.Env = append(os.Environ(), "DOCKER_HOST="+d.dockerHost)
	}
	return cmd
}

func (d *DockerBackend) Run(ctx context.Context, job Job) (*RunResult, error) {
	d.wg.Add(1)
	defer d.wg.Done()

	logger := log.With().Str("exec_id", job.ExecID).Str("backend", "docker").Logger()

	profile, err := seccomp.DockerProfileJSON()
	if err != nil {
		return nil, err
	}
	seccompPath := filepath.Join(job.Dir, "seccomp.json")
	if err := os.WriteFile(seccompPath, profile, 0o644); err != nil { // #nosec G306 -- read by the docker daemon
		return nil, fmt.Errorf("writing seccomp profile: %w", err)
	}

	name := containerName(job.ExecID)
	args := d.buildDockerArgs(name, seccompPath, job)
	d.running.Store(name, struct{}{})
	defer d.running.Delete(name)

	execCtx, cancel := context.WithTimeout(ctx, job.Timeout)
	defer cancel()

	cmd := d.docker(execCtx, args...)
	// Killing the docker client alone leaves the container running, so the
	// container is force-removed first.
	cmd.Cancel = func() error {
		rmCtx, rmCancel := context.WithTimeout(context.Background(), d.grace+5*time.Second)
		defer rmCancel()
		if err := d.docker(rmCtx, "rm", "-f", name).Run(); err != nil {
			logger.Error().Err(err).Msg("failed to remove timed out container")
		}
		return cmd.Process.Kill()
	}
	cmd.WaitDelay = d.grace

	stdout := newCappedBuffer(MaxStdoutBytes)
	stderr := newCappedBuffer(MaxStderrBytes)
	cmd.Stdout = newTee(stdout, job.Stdout)
	cmd.Stderr = stderr

	logger.Info().Str("container", name).Msg("starting docker container")

	start := time.Now()
	err = cmd.Run()
	res := &RunResult{
		Stdout:    stdout.String(),
		Stderr:    stderr.String(),
		Duration:  time.Since(start),
		Truncated: stdout.truncated || stderr.truncated,
	}

	if errors.Is(execCtx.Err(), context.DeadlineExceeded) && ctx.Err() == nil {
		logger.Warn().Dur("timeout", job.Timeout).Msg("container exceeded deadline, removed")
		res.TimedOut = true
		res.ExitCode = -1
		return res, nil
	}

	if err != nil {
		var exitErr *exec.ExitError
		if !errors.As(err, &exitErr) {
			return nil, fmt.Errorf("docker run: %w", err)
		}
		res.ExitCode = exitErr.ExitCode()
		// 125-127 are docker's own failures (daemon, image, entrypoint).
		if res.ExitCode >= 125 && res.ExitCode <= 127 {
			return nil, fmt.Errorf("%w: docker run exited %d: %s", ErrBackendUnavailable, res.ExitCode, strings.TrimSpace(res.Stderr))
		}
	}
	return res, nil
}

func containerName(execID string) string {
	return "playground-worker-" + execID
}

func (d *DockerBackend) buildDockerArgs(name, seccompPath string, job Job) []string {
	limits := job.Limits
	if limits.IsZero() {
		limits = DefaultLimits()
	}

	args := []string{
		"run", "--rm",
		"--name", name,
		"--network", "none",
		"--cap-drop", "ALL",
		"--security-opt", "no-new-privileges",
		"--security-opt", "seccomp=" + seccompPath,
		"--memory", fmt.Sprintf("%dm", limits.MemoryMB),
		"--memory-swap", fmt.Sprintf("%dm", limits.MemoryMB),
		"--pids-limit", fmt.Sprintf("%d", limits.PidsLimit),
		"--cpus", fmt.Sprintf("%.1f", float64(limits.CPUShares)/1024.0),
		"--tmpfs", fmt.Sprintf("/tmp:rw,nosuid,nodev,size=%dm", limits.DiskMB),
		"--read-only",
		"-v", fmt.Sprintf("%s:%s:ro", job.Dir, containerWorkDir),
		"-w", containerWorkDir,
		"--user", "65534:65534",
		"-e", "HOME=/tmp",
		"-e", "LANG=C.UTF-8",
		"-e", "PYTHONIOENCODING=utf-8",
		"-e", "SANDBOX=true",
	}
	for _, env := range job.Env {
		args = append(args, "-e", env)
	}

	args = append(args, job.Runtime.Image())
	args = append(args, job.Runtime.Command(containerWorkDir)...)
	return args
}

// Close stops the orphan sweeper and waits up to 30s for running containers.
func (d *DockerBackend) Close() error {
	if d.cancelCleanup != nil {
		d.cancelCleanup()
	}

	done := make(chan struct{})
	go func() {
		d.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		log.Info().Msg("all docker executions drained")
	case <-time.After(30 * time.Second):
		log.Warn().Msg("timed out waiting for docker executions to drain")
	}
	return nil
}
