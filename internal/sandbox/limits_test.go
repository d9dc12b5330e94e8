package sandbox

import (
	"testing"
	"time"

	specs "github.com/opencontainers/runtime-spec/specs-go"
)

func TestDefaultLimits(t *testing.T) {
	l := DefaultLimits()
	if l.CPUShares != 512 {
		t.Errorf("CPUShares = %d, want 512", l.CPUShares)
	}
	if l.MemoryMB != 256 {
		t.Errorf("MemoryMB = %d, want 256", l.MemoryMB)
	}
	if l.PidsLimit != 16 {
		t.Errorf("PidsLimit = %d, want 16", l.PidsLimit)
	}
	if l.DiskMB != 16 {
		t.Errorf("DiskMB = %d, want 16", l.DiskMB)
	}
	if err := l.Validate(); err != nil {
		t.Errorf("DefaultLimits().Validate() = %v", err)
	}
}

func TestValidateLimits(t *testing.T) {
	tests := []struct {
		name   string
		limits ResourceLimits
	}{
		{"cpu under", ResourceLimits{CPUShares: 1, MemoryMB: 256, PidsLimit: 16, DiskMB: 16}},
		{"cpu over", ResourceLimits{CPUShares: 4097, MemoryMB: 256, PidsLimit: 16, DiskMB: 16}},
		{"memory under", ResourceLimits{CPUShares: 512, MemoryMB: 8, PidsLimit: 16, DiskMB: 16}},
		{"memory over", ResourceLimits{CPUShares: 512, MemoryMB: 4096, PidsLimit: 16, DiskMB: 16}},
		{"pids over", ResourceLimits{CPUShares: 512, MemoryMB: 256, PidsLimit: 501, DiskMB: 16}},
		{"disk over", ResourceLimits{CPUShares: 512, MemoryMB: 256, PidsLimit: 16, DiskMB: 2048}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.limits.Validate()
			if err == nil {
				t.Fatal("expected validation error")
			}
			if !IsInvalidRequest(err) {
				t.Errorf("error %v should wrap ErrInvalidRequest", err)
			}
		})
	}
}

func TestHarnessEnv(t *testing.T) {
	env := DefaultLimits().HarnessEnv(2500 * time.Millisecond)
	want := map[string]bool{
		"PLAYGROUND_CPU_SECONDS=4": true,
		"PLAYGROUND_MEMORY_MB=256": true,
		"PLAYGROUND_FSIZE_MB=16":   true,
		"PLAYGROUND_NPROC=0":       true,
	}
	if len(env) != len(want) {
		t.Fatalf("HarnessEnv() = %v", env)
	}
	for _, e := range env {
		if !want[e] {
			t.Errorf("unexpected entry %q", e)
		}
	}
}

func TestApplyResourceLimits(t *testing.T) {
	s := &specs.Spec{Process: &specs.Process{}}
	ApplyResourceLimits(s, ResourceLimits{CPUShares: 512, MemoryMB: 128, PidsLimit: 32, DiskMB: 16})

	res := s.Linux.Resources
	if res.Pids == nil || res.Pids.Limit != 32 {
		t.Errorf("Pids = %+v, want limit 32", res.Pids)
	}
	if res.Memory == nil || *res.Memory.Limit != 128*1024*1024 {
		t.Errorf("Memory = %+v, want 128MiB", res.Memory)
	}
	if *res.Memory.Swap != *res.Memory.Limit {
		t.Errorf("Swap = %d, want equal to memory limit", *res.Memory.Swap)
	}
	if res.CPU == nil || *res.CPU.Period != 100000 || *res.CPU.Quota != 50000 {
		t.Errorf("CPU = %+v, want 50ms quota per 100ms", res.CPU)
	}
}
