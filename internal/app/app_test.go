package app

import (
	"context"
	"os/exec"
	"path/filepath"
	"testing"

	"code-playground/internal/config"
	"code-playground/internal/playground"
	"code-playground/internal/sandbox"
	"code-playground/internal/session"
)

func TestNew_ProcessBackend(t *testing.T) {
	cfg := config.DefaultConfig()
	cfg.Sandbox.Backend = "process"
	cfg.Sessions.Driver = "sqlite"
	cfg.Sessions.Path = filepath.Join(t.TempDir(), "sessions.db")

	a, err := New(context.Background(), cfg, Options{Sessions: true})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	defer a.Close()

	if _, ok := a.Sessions.(*session.SQLiteStore); !ok {
		t.Errorf("Sessions = %T, want *session.SQLiteStore", a.Sessions)
	}
	if a.DB != nil || a.Audit != nil {
		t.Error("database wired without a DSN")
	}

	_, lookErr := exec.LookPath(cfg.Sandbox.Interpreter)
	if lookErr != nil {
		if got := a.Service.BackendName(); got != "unavailable" {
			t.Errorf("BackendName = %q without python3, want unavailable", got)
		}
		_, err := a.Service.Run(context.Background(), playground.Request{Code: "print(1)"})
		if !sandbox.IsUnavailable(err) {
			t.Errorf("Run err = %v, want backend unavailable", err)
		}
		return
	}

	rep, err := a.Service.Run(context.Background(), playground.Request{Code: "print(1)\nprint(undefined_thing)"})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if rep.Status != sandbox.StatusFailure || rep.Output == nil || *rep.Output != "1\n" {
		t.Errorf("report = %+v", rep)
	}
	if rep.ErrorContext == nil || rep.ErrorContext.Context != "1: print(1)\n2: print(undefined_thing)" {
		t.Errorf("error_context = %+v", rep.ErrorContext)
	}
}

func TestNew_MemorySessionsByDefault(t *testing.T) {
	cfg := config.DefaultConfig()
	cfg.Sandbox.Backend = "process"
	a, err := New(context.Background(), cfg, Options{Sessions: true})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	defer a.Close()
	if _, ok := a.Sessions.(*session.MemoryStore); !ok {
		t.Errorf("Sessions = %T, want *session.MemoryStore", a.Sessions)
	}
}
