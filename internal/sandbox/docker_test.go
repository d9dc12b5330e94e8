package sandbox

import (
	"strings"
	"testing"
	"time"

	"code-playground/internal/runtime"
)

// argsContain returns true if the args slice contains needle.
func argsContain(args []string, needle string) bool {
	for _, a := range args {
		if a == needle {
			return true
		}
	}
	return false
}

// flagValue returns the argument following flag.
func flagValue(args []string, flag string) string {
	for i, a := range args {
		if a == flag && i+1 < len(args) {
			return args[i+1]
		}
	}
	return ""
}

func TestBuildDockerArgs(t *testing.T) {
	d := &DockerBackend{}
	job := Job{
		ExecID:  "exec-1",
		Dir:     "/tmp/playground-exec-1",
		Runtime: runtime.NewPythonRuntime("", ""),
		Timeout: 5 * time.Second,
		Env:     DefaultLimits().HarnessEnv(5 * time.Second),
	}

	args := d.buildDockerArgs(containerName(job.ExecID), "/tmp/playground-exec-1/seccomp.json", job)

	if flagValue(args, "--name") != "playground-worker-exec-1" {
		t.Errorf("--name = %q", flagValue(args, "--name"))
	}
	if flagValue(args, "--network") != "none" {
		t.Error("expected --network none")
	}
	if !argsContain(args, "--read-only") {
		t.Error("expected --read-only rootfs")
	}
	if flagValue(args, "--cap-drop") != "ALL" {
		t.Error("expected --cap-drop ALL")
	}
	if flagValue(args, "--user") != "65534:65534" {
		t.Error("expected --user 65534:65534")
	}
	if !argsContain(args, "seccomp=/tmp/playground-exec-1/seccomp.json") {
		t.Error("expected seccomp profile option")
	}
	if flagValue(args, "-v") != "/tmp/playground-exec-1:/workspace:ro" {
		t.Errorf("-v = %q", flagValue(args, "-v"))
	}
	if flagValue(args, "--memory") != "256m" || flagValue(args, "--pids-limit") != "16" {
		t.Errorf("limits not applied: %v", args)
	}
	if !argsContain(args, "PLAYGROUND_CPU_SECONDS=6") {
		t.Error("harness env not forwarded")
	}

	tail := strings.Join(args[len(args)-8:], " ")
	want := runtime.DefaultImage + " python3 -I -B -u /workspace/harness.py /workspace/prelude.py /workspace/snippet.py"
	if tail != want {
		t.Errorf("image and command = %q, want %q", tail, want)
	}
}

func TestBuildDockerArgs_CustomLimits(t *testing.T) {
	d := &DockerBackend{}
	job := Job{
		ExecID:  "exec-2",
		Dir:     "/tmp/x",
		Runtime: runtime.NewPythonRuntime("", ""),
		Limits:  ResourceLimits{CPUShares: 1024, MemoryMB: 128, PidsLimit: 8, DiskMB: 4},
	}
	args := d.buildDockerArgs("playground-worker-exec-2", "/tmp/x/seccomp.json", job)
	if flagValue(args, "--memory") != "128m" || flagValue(args, "--memory-swap") != "128m" {
		t.Errorf("memory flags = %v", args)
	}
	if flagValue(args, "--cpus") != "1.0" {
		t.Errorf("--cpus = %q", flagValue(args, "--cpus"))
	}
	if flagValue(args, "--tmpfs") != "/tmp:rw,nosuid,nodev,size=4m" {
		t.Errorf("--tmpfs = %q", flagValue(args, "--tmpfs"))
	}
}
