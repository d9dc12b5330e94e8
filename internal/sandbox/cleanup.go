package sandbox

import (
	"context"
	"fmt"
	"syscall"
	"time"

	"github.com/containerd/containerd"
	"github.com/containerd/containerd/errdefs"
	"github.com/rs/zerolog/log"
)

// workerLabel marks containers created for a worker; its value is the exec id.
const workerLabel = "playground.worker"

const reapTimeout = 30 * time.Second

// workerFilter selects every container carrying workerLabel.
var workerFilter = fmt.Sprintf("labels.%q", workerLabel)

// removeWorker kills a still-running task, then deletes the task, the
// container and its snapshot. Missing pieces are not errors.
func (r *ContainerdBackend) removeWorker(ctx context.Context, container containerd.Container) error {
	if container == nil {
		return nil
	}
	id := container.ID()
	logger := log.With().Str("container_id", id).Logger()

	ctx, cancel := context.WithTimeout(r.client.withNamespace(ctx), reapTimeout)
	defer cancel()

	if task, err := container.Task(ctx, nil); err == nil {
		r.stopTask(ctx, task)
		if _, err := task.Delete(ctx, containerd.WithProcessKill); err != nil && !errdefs.IsNotFound(err) {
			logger.Warn().Err(err).Msg("failed to delete worker task")
		}
	}

	if err := container.Delete(ctx, containerd.WithSnapshotCleanup); err != nil && !errdefs.IsNotFound(err) {
		return fmt.Errorf("deleting worker container %s: %w", id, err)
	}
	logger.Debug().Msg("worker container removed")
	return nil
}

// stopTask SIGKILLs every process of a running task and waits up to the kill
// grace for it to exit.
func (r *ContainerdBackend) stopTask(ctx context.Context, task containerd.Task) {
	status, err := task.Status(ctx)
	if err != nil || status.Status == containerd.Stopped {
		return
	}
	exitCh, err := task.Wait(ctx)
	if err != nil {
		return
	}
	if err := task.Kill(ctx, syscall.SIGKILL, containerd.WithKillAll); err != nil {
		return
	}
	select {
	case <-exitCh:
	case <-time.After(r.grace):
		log.Warn().Str("container_id", task.ID()).Msg("worker task did not stop within grace period")
	}
}

// CleanupOrphaned removes worker containers left behind by a previous process.
func (r *ContainerdBackend) CleanupOrphaned(ctx context.Context) (int, error) {
	inner, err := r.client.conn(ctx)
	if err != nil {
		return 0, err
	}
	orphans, err := inner.Containers(r.client.withNamespace(ctx), workerFilter)
	if err != nil {
		return 0, fmt.Errorf("listing worker containers: %w", err)
	}

	var cleaned int
	for _, c := range orphans {
		if err := r.removeWorker(ctx, c); err != nil {
			log.Error().Err(err).Str("container_id", c.ID()).Msg("failed to remove orphaned worker")
			continue
		}
		cleaned++
	}
	return cleaned, nil
}
