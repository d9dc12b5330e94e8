package sandbox

import (
	"context"
	"errors"
	"os"
	"os/exec"
	"time"

	"github.com/rs/zerolog/log"
)

// DefaultKillGrace bounds how long a killed worker may take to be reaped.
const DefaultKillGrace = 2 * time.Second

// ProcessBackend runs the harness as a local child process in its own process
// group. It relies on the harness rlimits and the capability table only, so it
// is meant for development and single-user installs.
type ProcessBackend struct {
	grace time.Duration
}

func NewProcessBackend(grace time.Duration) *ProcessBackend {
	if grace <= 0 {
		grace = DefaultKillGrace
	}
	return &ProcessBackend{grace: grace}
}

func (p *ProcessBackend) Name() string { return "process" }

func (p *ProcessBackend) Run(ctx context.Context, job Job) (*RunResult, error) {
	logger := log.With().Str("exec_id", job.ExecID).Str("backend", "process").Logger()

	execCtx, cancel := context.WithTimeout(ctx, job.Timeout)
	defer cancel()

	argv := job.Runtime.Command(job.Dir)
	cmd := exec.CommandContext(execCtx, argv[0], argv[1:]...) // #nosec G204 -- argv comes from the runtime, not the request
	cmd.Dir = job.Dir
	cmd.Env = append(workerEnv(job.Dir), job.Env...)
	setProcessGroup(cmd)
	cmd.Cancel = func() error { return killProcessGroup(cmd) }
	cmd.WaitDelay = p.grace

	stdout := newCappedBuffer(MaxStdoutBytes)
	stderr := newCappedBuffer(MaxStderrBytes)
	cmd.Stdout = newTee(stdout, job.Stdout)
	cmd.Stderr = stderr

	start := time.Now()
	err := cmd.Run()
	res := &RunResult{
		Stdout:    stdout.String(),
		Stderr:    stderr.String(),
		Duration:  time.Since(start),
		Truncated: stdout.truncated || stderr.truncated,
	}

	if errors.Is(execCtx.Err(), context.DeadlineExceeded) && ctx.Err() == nil {
		logger.Warn().Dur("timeout", job.Timeout).Msg("worker exceeded deadline, process group killed")
		res.TimedOut = true
		res.ExitCode = -1
		return res, nil
	}

	if err != nil {
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			res.ExitCode = exitErr.ExitCode()
			return res, nil
		}
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, err
	}
	return res, nil
}

func (p *ProcessBackend) Close() error { return nil }

// workerEnv is the whole environment a local worker sees; nothing from the
// server's own environment leaks in except PATH.
func workerEnv(dir string) []string {
	path := os.Getenv("PATH")
	if path == "" {
		path = "/usr/local/bin:/usr/bin:/bin"
	}
	return []string{
		"PATH=" + path,
		"HOME=" + dir,
		"LANG=C.UTF-8",
		"PYTHONIOENCODING=utf-8",
		"SANDBOX=true",
	}
}
