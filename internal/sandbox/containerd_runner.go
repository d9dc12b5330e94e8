package sandbox

import (
	"context"
	"fmt"
	"syscall"
	"time"

	"github.com/containerd/containerd"
	"github.com/containerd/containerd/cio"
	"github.com/containerd/containerd/oci"
	"github.com/rs/zerolog/log"
)

// ContainerdBackend runs each worker as a containerd task confined by
// withWorker and cgroup limits.
type ContainerdBackend struct {
	client *Client
	grace  time.Duration
}

func NewContainerdBackend(client *Client, grace time.Duration) *ContainerdBackend {
	if grace <= 0 {
		grace = DefaultKillGrace
	}
	return &ContainerdBackend{client: client, grace: grace}
}

func (r *ContainerdBackend) Name() string { return "containerd" }

func (r *ContainerdBackend) Run(ctx context.Context, job Job) (*RunResult, error) {
	logger := log.With().Str("exec_id", job.ExecID).Str("backend", "containerd").Logger()

	image, err := r.client.image(ctx, job.Runtime.Image())
	if err != nil {
		return nil, err
	}

	limits := job.Limits
	if limits.IsZero() {
		limits = DefaultLimits()
	}

	inner, err := r.client.conn(ctx)
	if err != nil {
		return nil, err
	}
	nsCtx := r.client.withNamespace(ctx)
	id := containerName(job.ExecID)
	container, err := inner.NewContainer(nsCtx, id,
		containerd.WithImage(image),
		containerd.WithNewSnapshot(id+"-snapshot", image),
		containerd.WithContainerLabels(map[string]string{workerLabel: job.ExecID}),
		containerd.WithNewSpec(oci.WithImageConfig(image), withWorker(job, limits)),
	)
	if err != nil {
		return nil, fmt.Errorf("creating worker container: %w", err)
	}
	defer func() {
		if err := r.removeWorker(context.Background(), container); err != nil {
			logger.Error().Err(err).Msg("worker cleanup failed")
		}
	}()

	stdout := newCappedBuffer(MaxStdoutBytes)
	stderr := newCappedBuffer(MaxStderrBytes)
	task, err := container.NewTask(nsCtx,
		cio.NewCreator(cio.WithStreams(nil, newTee(stdout, job.Stdout), stderr)),
	)
	if err != nil {
		return nil, fmt.Errorf("creating worker task: %w", err)
	}

	// Wait on a context that outlives the deadline so the exit status of a
	// killed task is still delivered.
	bg := r.client.withNamespace(context.Background())
	exitCh, err := task.Wait(bg)
	if err != nil {
		return nil, fmt.Errorf("waiting on worker task: %w", err)
	}

	start := time.Now()
	if err := task.Start(nsCtx); err != nil {
		return nil, fmt.Errorf("starting worker task: %w", err)
	}

	code, timedOut, err := awaitExit(ctx, job.Timeout, r.grace, exitCh, func() {
		if err := task.Kill(bg, syscall.SIGKILL, containerd.WithKillAll); err != nil {
			logger.Error().Err(err).Msg("failed to kill worker task")
		}
	})
	if err != nil {
		return nil, err
	}
	if timedOut {
		logger.Warn().Dur("timeout", job.Timeout).Msg("worker exceeded deadline, killed")
	}

	// Let the io copiers drain before reading the buffers.
	if tio := task.IO(); tio != nil {
		tio.Wait()
	}

	return &RunResult{
		Stdout:    stdout.String(),
		Stderr:    stderr.String(),
		ExitCode:  code,
		TimedOut:  timedOut,
		Truncated: stdout.truncated || stderr.truncated,
		Duration:  time.Since(start),
	}, nil
}

// awaitExit starts the snippet's clock and waits for the worker to exit. When
// timeout elapses first, kill is called and the killed worker is given grace
// to report its exit. Image pulls and container setup happen before the call
// and are never charged to the snippet.
func awaitExit(ctx context.Context, timeout, grace time.Duration, exitCh <-chan containerd.ExitStatus, kill func()) (code int, timedOut bool, err error) {
	execCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	select {
	case status := <-exitCh:
		return int(status.ExitCode()), false, nil
	case <-execCtx.Done():
	}

	kill()
	select {
	case <-exitCh:
	case <-time.After(grace):
		log.Error().Msg("killed worker did not exit within grace period")
	}
	if err := ctx.Err(); err != nil {
		return 0, false, err
	}
	return -1, true, nil
}

func (r *ContainerdBackend) Close() error {
	return r.client.Close()
}

// Prepare pulls images so the first execution does not wait for the pull.
func (r *ContainerdBackend) Prepare(ctx context.Context, images []string) error {
	for _, ref := range images {
		if _, err := r.client.image(ctx, ref); err != nil {
			return err
		}
	}
	return nil
}
