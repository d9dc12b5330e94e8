package seccomp

import (
	"encoding/json"
	"testing"

	specs "github.com/opencontainers/runtime-spec/specs-go"
)

func TestDefaultProfile_DenyByDefault(t *testing.T) {
	p := DefaultProfile()
	if p.DefaultAction != specs.ActErrno {
		t.Errorf("DefaultAction = %v, want ActErrno", p.DefaultAction)
	}
}

func TestDefaultProfile_InterpreterSyscallsAllowed(t *testing.T) {
	p := DefaultProfile()
	for _, name := range []string{"read", "write", "openat", "mmap", "execve", "exit_group", "prlimit64", "getrandom"} {
		if action := ActionFor(p, name); action != specs.ActAllow {
			t.Errorf("%s: action = %q, want allow", name, action)
		}
	}
}

func TestDefaultProfile_NoNetworkOrFork(t *testing.T) {
	p := DefaultProfile()
	for _, name := range []string{"socket", "connect", "fork", "vfork", "clone", "clone3"} {
		if ActionFor(p, name) == specs.ActAllow {
			t.Errorf("%s should not be allowed", name)
		}
	}
}

func TestDefaultProfile_TrapsDangerous(t *testing.T) {
	p := DefaultProfile()
	for _, name := range []string{"ptrace", "bpf", "init_module"} {
		if action := ActionFor(p, name); action != specs.ActTrap {
			t.Errorf("%s: action = %q, want trap", name, action)
		}
	}
}

func TestDefaultProfile_PersonalityQueryOnly(t *testing.T) {
	p := DefaultProfile()
	for _, rule := range p.Syscalls {
		if len(rule.Names) != 1 || rule.Names[0] != "personality" {
			continue
		}
		if len(rule.Args) != 1 || rule.Args[0].Value != personalityQuery || rule.Args[0].Op != specs.OpEqualTo {
			t.Errorf("personality args = %+v", rule.Args)
		}
		return
	}
	t.Error("personality rule not found")
}

func TestDockerProfileJSON_ValidJSON(t *testing.T) {
	data, err := DockerProfileJSON()
	if err != nil {
		t.Fatalf("DockerProfileJSON: %v", err)
	}

	var dp struct {
		DefaultAction string   `json:"defaultAction"`
		Architectures []string `json:"architectures"`
		Syscalls      []struct {
			Names  []string `json:"names"`
			Action string   `json:"action"`
		} `json:"syscalls"`
	}
	if err := json.Unmarshal(data, &dp); err != nil {
		t.Fatalf("invalid JSON: %v", err)
	}
	if dp.DefaultAction != "SCMP_ACT_ERRNO" {
		t.Errorf("defaultAction = %q, want SCMP_ACT_ERRNO", dp.DefaultAction)
	}
	if len(dp.Architectures) == 0 || dp.Architectures[0] != "SCMP_ARCH_X86_64" {
		t.Errorf("architectures = %v", dp.Architectures)
	}
	if len(dp.Syscalls) == 0 {
		t.Error("expected syscall rules, got none")
	}
}

func TestCompile(t *testing.T) {
	p := Compile([]Rule{allow("read", "write")}, []Rule{deny("socket")})

	if p.DefaultAction != specs.ActErrno {
		t.Errorf("DefaultAction = %v, want ActErrno", p.DefaultAction)
	}
	if len(p.Syscalls) != 2 {
		t.Fatalf("got %d rules, want 2", len(p.Syscalls))
	}
	if got := p.Syscalls[0].Names; len(got) != 2 || got[0] != "read" || got[1] != "write" {
		t.Errorf("names = %v, want [read write]", got)
	}
	tests := map[string]specs.LinuxSeccompAction{
		"read":   specs.ActAllow,
		"socket": specs.ActErrno,
		"mount":  specs.ActErrno, // default
	}
	for name, want := range tests {
		if got := ActionFor(p, name); got != want {
			t.Errorf("ActionFor(%s) = %q, want %q", name, got, want)
		}
	}
}
