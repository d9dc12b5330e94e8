package sandbox

import (
	"context"
	"strings"
	"testing"

	specs "github.com/opencontainers/runtime-spec/specs-go"

	"code-playground/internal/runtime"
	"code-playground/pkg/seccomp"
)

func workerSpec(t *testing.T) *specs.Spec {
	t.Helper()
	job := Job{
		ExecID:  "exec-1",
		Dir:     "/var/lib/playground/exec-1",
		Runtime: runtime.NewPythonRuntime("", ""),
		Env:     []string{"PLAYGROUND_MEMORY_MB=256"},
	}
	s := &specs.Spec{Root: &specs.Root{Path: "rootfs"}}
	if err := withWorker(job, DefaultLimits())(context.Background(), nil, nil, s); err != nil {
		t.Fatalf("withWorker: %v", err)
	}
	return s
}

func findMount(s *specs.Spec, dest string) *specs.Mount {
	for i := range s.Mounts {
		if s.Mounts[i].Destination == dest {
			return &s.Mounts[i]
		}
	}
	return nil
}

func TestWithWorker_Mounts(t *testing.T) {
	s := workerSpec(t)

	if !s.Root.Readonly {
		t.Error("root filesystem should be read-only")
	}

	ws := findMount(s, containerWorkDir)
	if ws == nil {
		t.Fatal("missing /workspace mount")
	}
	if ws.Source != "/var/lib/playground/exec-1" {
		t.Errorf("workspace source = %q", ws.Source)
	}
	for _, opt := range []string{"ro", "noexec", "nosuid"} {
		if !argsContain(ws.Options, opt) {
			t.Errorf("workspace options %v missing %q", ws.Options, opt)
		}
	}

	tmp := findMount(s, "/tmp")
	if tmp == nil || tmp.Type != "tmpfs" {
		t.Fatalf("/tmp mount = %+v, want tmpfs", tmp)
	}
	if !argsContain(tmp.Options, "size=16m") {
		t.Errorf("/tmp options %v missing size=16m", tmp.Options)
	}
}

func TestWithWorker_Process(t *testing.T) {
	s := workerSpec(t)
	p := s.Process

	want := runtime.NewPythonRuntime("", "").Command(containerWorkDir)
	if strings.Join(p.Args, " ") != strings.Join(want, " ") {
		t.Errorf("Args = %v, want %v", p.Args, want)
	}
	if p.Cwd != containerWorkDir {
		t.Errorf("Cwd = %q", p.Cwd)
	}
	if p.User.UID != workerUID || p.User.GID != workerUID {
		t.Errorf("User = %+v, want nobody", p.User)
	}
	if !p.NoNewPrivileges {
		t.Error("NoNewPrivileges should be set")
	}
	if p.Capabilities == nil || len(p.Capabilities.Bounding) != 0 || len(p.Capabilities.Effective) != 0 {
		t.Errorf("Capabilities = %+v, want none", p.Capabilities)
	}
	if !argsContain(p.Env, "PLAYGROUND_MEMORY_MB=256") || !argsContain(p.Env, "HOME=/tmp") {
		t.Errorf("Env = %v, want worker defaults plus job settings", p.Env)
	}
}

func TestWithWorker_Isolation(t *testing.T) {
	s := workerSpec(t)

	if s.Linux.Seccomp == nil || s.Linux.Seccomp.DefaultAction != seccomp.DefaultProfile().DefaultAction {
		t.Errorf("Seccomp = %+v, want the default profile", s.Linux.Seccomp)
	}

	have := map[specs.LinuxNamespaceType]bool{}
	for _, ns := range s.Linux.Namespaces {
		if ns.Path != "" {
			t.Errorf("namespace %s joins %s, want a fresh one", ns.Type, ns.Path)
		}
		have[ns.Type] = true
	}
	for _, ns := range []specs.LinuxNamespaceType{specs.PIDNamespace, specs.NetworkNamespace, specs.MountNamespace} {
		if !have[ns] {
			t.Errorf("missing %s namespace", ns)
		}
	}

	if s.Linux.Resources == nil || s.Linux.Resources.Pids == nil || s.Linux.Resources.Pids.Limit != DefaultLimits().PidsLimit {
		t.Errorf("Resources = %+v, want pids limit applied", s.Linux.Resources)
	}
}
