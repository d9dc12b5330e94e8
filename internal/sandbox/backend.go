package sandbox

import (
	"context"
	"fmt"
	"io"
	"os/exec"
	goruntime "runtime"
	"time"

	"github.com/rs/zerolog/log"

	"code-playground/internal/config"
	"code-playground/internal/runtime"
)

// Output caps applied to every worker.
const (
	MaxStdoutBytes = 1 << 20
	MaxStderrBytes = 256 << 10
)

// Job is one worker launch prepared by the Supervisor.
type Job struct {
	ExecID  string
	Dir     string // host directory holding the harness, prelude and snippet
	Runtime runtime.Runtime
	Timeout time.Duration
	Limits  ResourceLimits
	Env     []string  // harness settings, KEY=VALUE
	Stdout  io.Writer // optional live copy of stdout
}

// RunResult is what a Backend observed. TimedOut is only set once the worker
// has been killed and reaped.
type RunResult struct {
	Stdout    string
	Stderr    string
	ExitCode  int
	TimedOut  bool
	Truncated bool
	Duration  time.Duration
}

// Backend starts workers in one kind of isolation unit.
type Backend interface {
	Name() string
	// Run blocks until the worker exits or job.Timeout elapses. On deadline the
	// isolation unit is killed before Run returns.
	Run(ctx context.Context, job Job) (*RunResult, error)
	Close() error
}

// NewBackend picks the configured backend. "auto" tries containerd on Linux,
// then Docker, then a local process.
func NewBackend(ctx context.Context, cfg *config.Config) (Backend, error) {
	preference := cfg.Sandbox.Backend
	if preference == "" {
		preference = "auto"
	}

	switch preference {
	case "process":
		return newProcessBackend(cfg)
	case "containerd":
		return newContainerdBackend(ctx, cfg)
	case "docker":
		return newDockerBackend(cfg)
	case "auto":
		if goruntime.GOOS == "linux" {
			backend, err := newContainerdBackend(ctx, cfg)
			if err == nil {
				log.Info().Msg("using containerd backend")
				return backend, nil
			}
			log.Warn().Err(err).Msg("containerd unavailable, trying Docker")
		}

		backend, err := newDockerBackend(cfg)
		if err == nil {
			log.Info().Msg("using Docker backend")
			return backend, nil
		}
		log.Warn().Err(err).Msg("docker unavailable, falling back to local process backend")

		backend, err = newProcessBackend(cfg)
		if err == nil {
			log.Info().Msg("using process backend")
			return backend, nil
		}

		return nil, fmt.Errorf("%w: install containerd, Docker or %s", ErrBackendUnavailable, cfg.Sandbox.Interpreter)
	default:
		return nil, fmt.Errorf("unknown backend %q: must be auto, process, containerd, or docker", preference)
	}
}

func newProcessBackend(cfg *config.Config) (Backend, error) {
	interp := cfg.Sandbox.Interpreter
	if interp == "" {
		interp = runtime.DefaultInterpreter
	}
	if _, err := exec.LookPath(interp); err != nil {
		return nil, fmt.Errorf("%w: %s not found in PATH: %v", ErrBackendUnavailable, interp, err)
	}
	return NewProcessBackend(cfg.Sandbox.KillGrace), nil
}

func newContainerdBackend(ctx context.Context, cfg *config.Config) (Backend, error) {
	client, err := NewClient(ctx, cfg.Sandbox.ContainerdSocket, cfg.Sandbox.Namespace)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrBackendUnavailable, err)
	}

	backend := NewContainerdBackend(client, cfg.Sandbox.KillGrace)

	cleaned, err := backend.CleanupOrphaned(ctx)
	if err != nil {
		log.Warn().Err(err).Msg("failed to cleanup orphaned containers")
	} else if cleaned > 0 {
		log.Info().Int("count", cleaned).Msg("cleaned orphaned containers on startup")
	}

	return backend, nil
}

func newDockerBackend(cfg *config.Config) (Backend, error) {
	if _, err := exec.LookPath("docker"); err != nil {
		return nil, fmt.Errorf("%w: docker not found in PATH: %v", ErrBackendUnavailable, err)
	}

	if err := exec.Command("docker", "info").Run(); err != nil {
		return nil, fmt.Errorf("%w: docker daemon not reachable: %v", ErrBackendUnavailable, err)
	}

	return NewDockerBackend(cfg.Sandbox.KillGrace), nil
}

// cappedBuffer keeps the first max bytes written and silently drops the rest,
// so a chatty worker never blocks on a full pipe.
type cappedBuffer struct {
	buf       []byte
	max       int
	truncated bool
}

func newCappedBuffer(max int) *cappedBuffer {
	return &cappedBuffer{max: max}
}

func (c *cappedBuffer) Write(p []byte) (int, error) {
	room := c.max - len(c.buf)
	if room <= 0 {
		if len(p) > 0 {
			c.truncated = true
		}
		return len(p), nil
	}
	if len(p) > room {
		c.buf = append(c.buf, p[:room]...)
		c.truncated = true
		return len(p), nil
	}
	c.buf = append(c.buf, p...)
	return len(p), nil
}

func (c *cappedBuffer) String() string {
	if c.truncated {
		return string(c.buf) + "\n... [output truncated]"
	}
	return string(c.buf)
}

// teeWriter copies to w as long as w keeps accepting writes; a failing live
// consumer must not stop the worker's output from being captured.
type teeWriter struct {
	primary io.Writer
	live    io.Writer
}

func newTee(primary, live io.Writer) io.Writer {
	if live == nil {
		return primary
	}
	return &teeWriter{primary: primary, live: live}
}

func (t *teeWriter) Write(p []byte) (int, error) {
	if t.live != nil {
		if _, err := t.live.Write(p); err != nil {
			t.live = nil
		}
	}
	return t.primary.Write(p)
}

// unavailableBackend fails every run. It lets the service start, and answer
// health checks, on a host with no isolation backend.
type unavailableBackend struct{ cause error }

// Unavailable returns a Backend whose runs fail with ErrBackendUnavailable.
func Unavailable(cause error) Backend {
	return unavailableBackend{cause: cause}
}

func (u unavailableBackend) Name() string { return "unavailable" }

func (u unavailableBackend) Run(context.Context, Job) (*RunResult, error) {
	return nil, fmt.Errorf("%w: %v", ErrBackendUnavailable, u.cause)
}

func (u unavailableBackend) Close() error { return nil }
