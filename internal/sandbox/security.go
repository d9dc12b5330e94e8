package sandbox

import (
	"context"
	"fmt"

	"github.com/containerd/containerd/containers"
	"github.com/containerd/containerd/oci"
	specs "github.com/opencontainers/runtime-spec/specs-go"

	"code-playground/pkg/seccomp"
)

// nobody owns every worker process; the staged files are world-readable.
const workerUID = 65534

// containerWorkerEnv is the fixed environment of a containerized worker. Harness
// settings from the Job are appended.
var containerWorkerEnv = []string{
	"PATH=/usr/local/bin:/usr/bin:/bin",
	"HOME=/tmp",
	"LANG=C.UTF-8",
	"PYTHONIOENCODING=utf-8",
	"PYTHONDONTWRITEBYTECODE=1",
}

// maskedPaths hide host details the interpreter never needs.
var maskedPaths = []string{
	"/proc/acpi", "/proc/kcore", "/proc/keys", "/proc/latency_stats",
	"/proc/timer_list", "/proc/sched_debug", "/proc/scsi",
	"/sys/firmware", "/sys/devices/virtual/powercap",
}

var readonlyPaths = []string{
	"/proc/bus", "/proc/fs", "/proc/irq", "/proc/sys", "/proc/sysrq-trigger",
}

// withWorker confines a container to running the harness over the staged
// directory: read-only root and /workspace, a small /tmp, no capabilities,
// fresh namespaces with no network, and the seccomp profile.
func withWorker(job Job, limits ResourceLimits) oci.SpecOpts {
	return func(_ context.Context, _ oci.Client, _ *containers.Container, s *specs.Spec) error {
		if s.Process == nil {
			s.Process = &specs.Process{}
		}
		if s.Linux == nil {
			s.Linux = &specs.Linux{}
		}

		s.Hostname = "playground"
		if s.Root != nil {
			s.Root.Readonly = true
		}
		s.Mounts = append(s.Mounts,
			specs.Mount{
				Destination: containerWorkDir,
				Type:        "bind",
				Source:      job.Dir,
				Options:     []string{"rbind", "ro", "nosuid", "nodev", "noexec"},
			},
			specs.Mount{
				Destination: "/tmp",
				Type:        "tmpfs",
				Source:      "tmpfs",
				Options:     []string{"nosuid", "nodev", "noexec", fmt.Sprintf("size=%dm", limits.DiskMB)},
			},
		)

		s.Process.Args = job.Runtime.Command(containerWorkDir)
		s.Process.Cwd = containerWorkDir
		s.Process.Env = append(append([]string{}, containerWorkerEnv...), job.Env...)
		s.Process.User = specs.User{UID: workerUID, GID: workerUID}
		s.Process.NoNewPrivileges = true
		s.Process.Capabilities = &specs.LinuxCapabilities{
			Bounding:    []string{},
			Effective:   []string{},
			Inheritable: []string{},
			Permitted:   []string{},
			Ambient:     []string{},
		}

		s.Linux.Seccomp = seccomp.DefaultProfile()
		s.Linux.Namespaces = []specs.LinuxNamespace{
			{Type: specs.PIDNamespace},
			{Type: specs.NetworkNamespace},
			{Type: specs.MountNamespace},
			{Type: specs.UTSNamespace},
			{Type: specs.IPCNamespace},
		}
		s.Linux.MaskedPaths = maskedPaths
		s.Linux.ReadonlyPaths = readonlyPaths

		ApplyResourceLimits(s, limits)
		return nil
	}
}
