package sandbox

import (
	"context"
	"strings"
	"testing"
	"time"

	"code-playground/internal/diagnose"
)

// Snippets reaching for anything outside the capability table must fail
// with a fault instead of touching the host.
func TestProcess_EscapeAttempts(t *testing.T) {
	s := newProcessSupervisor(t)

	tests := []struct {
		name string
		code string
		kind diagnose.Kind
	}{
		{"import os", "import os\nos.system('id')", diagnose.KindName},
		{"from import", "from subprocess import run", diagnose.KindName},
		{"dunder import", "__import__('os').system('id')", diagnose.KindName},
		{"read shadow", "print(open('/etc/shadow').read())", diagnose.KindName},
		{"eval", "eval('1 + 1')", diagnose.KindName},
		{"exec", "exec('x = 1')", diagnose.KindName},
		{"compile", "compile('1', 'f', 'eval')", diagnose.KindName},
		{"globals", "globals()['__builtins__']", diagnose.KindName},
		{"getattr", "getattr(print, '__self__')", diagnose.KindName},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			out, err := s.Execute(context.Background(), ExecutionRequest{Code: tt.code})
			if err != nil {
				t.Fatalf("Execute: %v", err)
			}
			if out.Status != StatusFailure || out.Fault == nil {
				t.Fatalf("escape attempt did not fail: %+v", out)
			}
			if out.Fault.Kind != tt.kind {
				t.Errorf("Kind = %q, want %q (%s)", out.Fault.Kind, tt.kind, out.RawSignal())
			}
		})
	}
}

func TestProcess_OutputFloodIsCapped(t *testing.T) {
	s := newProcessSupervisor(t)
	out, err := s.Execute(context.Background(), ExecutionRequest{
		Code:    "for i in range(400000):\n    print('x' * 10)",
		Timeout: 10 * time.Second,
	})
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if !out.Truncated {
		t.Errorf("Truncated = false for %d bytes of output", len(out.Stdout))
	}
	if len(out.Stdout) > MaxStdoutBytes+64 {
		t.Errorf("Stdout = %d bytes, cap is %d", len(out.Stdout), MaxStdoutBytes)
	}
	if !strings.HasSuffix(out.Stdout, "[output truncated]") {
		t.Errorf("Stdout tail = %q", out.Stdout[len(out.Stdout)-40:])
	}
}
