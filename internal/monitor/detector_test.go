package monitor

import (
	"testing"
)

func TestAnalyzeCode(t *testing.T) {
	d := NewEscapeDetector()

	tests := []struct {
		name         string
		code         string
		wantMinCount int // minimum number of detections
		wantPattern  string
	}{
		{"subclasses walk", `().__class__.__bases__[0].__subclasses__()`, 2, "object_graph_walk"},
		{"class traversal", `x = (1).__class__`, 1, "dunder_traversal"},
		{"frame globals", `g = (x for x in []).gi_frame.f_globals`, 1, "object_graph_walk"},
		{"dynamic import", `m = __import__("os")`, 1, "dynamic_code"},
		{"bound builtin module", `b = print.__self__`, 1, "object_graph_walk"},
		{"module import attribute", `m = b.__import__("os")`, 1, "object_graph_walk"},
		{"eval", `eval("1+1")`, 1, "dynamic_code"},
		{"subprocess", `subprocess.run(["ls"])`, 1, "process_spawn"},
		{"proc_self_root", `f = open("/proc/self/root/etc/passwd")`, 1, "proc_self_access"},
		{"cgroup breakout", `open("/sys/fs/cgroup/notify_on_release")`, 1, "container_breakout"},
		{"docker socket", `open("/var/run/docker.sock")`, 1, "host_mount_access"},
		{"dirty_cow", `exploit = dirty_cow_payload()`, 1, "kernel_exploit"},
		{"metadata service", `url = "169.254.169.254/latest/meta-data/"`, 1, "metadata_service"},
		{"huge list", `x = [0] * 10**9`, 1, "resource_exhaustion"},
		{"clean code", `print("hello world")`, 0, ""},
		{"fibonacci", "def fib(n):\n    return n if n < 2 else fib(n-1) + fib(n-2)\nprint(fib(10))", 0, ""},
		{"class init", "class A:\n    def __init__(self):\n        self.x = 2 ** 10", 0, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			dets := d.AnalyzeCode(tt.code)
			if len(dets) < tt.wantMinCount {
				t.Errorf("got %d detections, want >= %d", len(dets), tt.wantMinCount)
				return
			}
			if tt.wantMinCount == 0 && len(dets) != 0 {
				t.Errorf("clean code flagged: %v", dets)
			}
			if tt.wantPattern != "" {
				found := false
				for _, det := range dets {
					if det.Pattern == tt.wantPattern {
						found = true
						break
					}
				}
				if !found {
					t.Errorf("pattern %q not found in detections: %v", tt.wantPattern, dets)
				}
			}
		})
	}
}

func TestAnalyzeCode_BuiltinsModuleIsCritical(t *testing.T) {
	code := "b = print.__self__\nprint(b.open('/etc/hostname').read())\nprint(b.__import__('os').getcwd())"
	dets := NewEscapeDetector().AnalyzeCode(code)
	if !HasCritical(dets) {
		t.Fatalf("no critical detection in %v", dets)
	}
	lines := map[int]bool{}
	for _, d := range dets {
		if d.Pattern == "object_graph_walk" {
			lines[d.Line] = true
		}
	}
	if !lines[1] || !lines[3] {
		t.Errorf("object_graph_walk lines = %v, want 1 and 3", lines)
	}
}

func TestAnalyzeCode_DirectImportNotCritical(t *testing.T) {
	if dets := NewEscapeDetector().AnalyzeCode(`import os`); HasCritical(dets) {
		t.Errorf("plain import flagged critical: %v", dets)
	}
	if dets := NewEscapeDetector().AnalyzeCode(`m = __import__("os")`); HasCritical(dets) {
		t.Errorf("guarded __import__ call flagged critical: %v", dets)
	}
}

func TestAnalyzeCode_LineNumbers(t *testing.T) {
	dets := NewEscapeDetector().AnalyzeCode("x = 1\ny = x.__globals__")
	if len(dets) != 1 || dets[0].Line != 2 {
		t.Errorf("detections = %+v, want one on line 2", dets)
	}
}

func TestHasCritical(t *testing.T) {
	d := NewEscapeDetector()
	if !HasCritical(d.AnalyzeCode(`print.__self__.__dict__; f.__globals__`)) {
		t.Error("object graph walk should be critical")
	}
	if HasCritical(d.AnalyzeCode(`eval("1")`)) {
		t.Error("eval should not be critical")
	}
	if HasCritical(nil) {
		t.Error("HasCritical(nil) = true")
	}
}

func TestAnalyzeOutput(t *testing.T) {
	d := NewEscapeDetector()

	tests := []struct {
		name         string
		output       string
		wantMinCount int
		wantSeverity string
	}{
		{"root access", "root:x:0:0:root:/root:/bin/bash", 1, "critical"},
		{"docker socket", "found: /var/run/docker.sock", 1, "critical"},
		{"containerd socket", "socket: containerd.sock listening", 1, "critical"},
		{"kernel version", "Linux version 6.1.0", 1, "high"},
		{"clean output", "hello world\n42\n", 0, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			dets := d.AnalyzeOutput(tt.output)
			if len(dets) < tt.wantMinCount {
				t.Errorf("got %d detections, want >= %d", len(dets), tt.wantMinCount)
				return
			}
			if tt.wantSeverity != "" && len(dets) > 0 {
				if dets[0].Severity != tt.wantSeverity {
					t.Errorf("severity = %q, want %q", dets[0].Severity, tt.wantSeverity)
				}
			}
		})
	}
}

func TestSeverityString(t *testing.T) {
	tests := []struct {
		sev  Severity
		want string
	}{
		{SeverityLow, "low"},
		{SeverityMedium, "medium"},
		{SeverityHigh, "high"},
		{SeverityCritical, "critical"},
		{Severity(99), "unknown"},
	}

	for _, tt := range tests {
		t.Run(tt.want, func(t *testing.T) {
			if got := tt.sev.String(); got != tt.want {
				t.Errorf("Severity(%d).String() = %q, want %q", tt.sev, got, tt.want)
			}
		})
	}
}
