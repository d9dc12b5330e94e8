package main

import (
	"bytes"
	"errors"
	"strings"
	"testing"

	"code-playground/internal/diagnose"
	"code-playground/internal/library"
	"code-playground/internal/playground"
	"code-playground/internal/sandbox"
	"code-playground/internal/storage"
)

func strPtr(s string) *string { return &s }

func TestRenderReport_Success(t *testing.T) {
	var buf bytes.Buffer
	renderReport(&buf, &playground.Report{
		Status:   sandbox.StatusSuccess,
		Output:   strPtr("Hello, World!"),
		Duration: "12ms",
		Backend:  "process",
	})
	out := buf.String()

	if !strings.HasPrefix(out, "Hello, World!\n") {
		t.Errorf("output not printed first: %q", out)
	}
	for _, want := range []string{"Success", "12ms", "process"} {
		if !strings.Contains(out, want) {
			t.Errorf("missing %q in %q", want, out)
		}
	}
}

func TestRenderReport_Failure(t *testing.T) {
	var buf bytes.Buffer
	renderReport(&buf, &playground.Report{
		Status:        sandbox.StatusFailure,
		Output:        strPtr(""),
		Error:         strPtr("ZeroDivisionError: division by zero"),
		ErrorAnalysis: strPtr("You tried to divide by zero."),
		ErrorContext:  &playground.ErrorContext{LineNumber: 2, Context: "1: x = 1\n2: y = x / 0"},
		Category:      diagnose.KindZeroDivision,
		Explanation:   "This code performs mathematical operations.",
		Truncated:     true,
	})
	out := buf.String()

	for _, want := range []string{
		"Zero Division error",
		"ZeroDivisionError: division by zero",
		"You tried to divide by zero.",
		"around line 2:",
		"2: y = x / 0",
		"What this code does",
		"Failure",
		"output truncated",
	} {
		if !strings.Contains(out, want) {
			t.Errorf("missing %q in:\n%s", want, out)
		}
	}
}

func TestRenderExamples(t *testing.T) {
	var buf bytes.Buffer
	renderExamples(&buf, library.All())
	out := buf.String()
	if got := strings.Count(out, "\n"); got != len(library.All()) {
		t.Errorf("rendered %d lines, want %d", got, len(library.All()))
	}
	if !strings.Contains(out, "Level01: Hello World") || !strings.Contains(out, "hello-world") {
		t.Errorf("first example missing: %q", out)
	}
}

func TestRenderExecutions(t *testing.T) {
	var buf bytes.Buffer
	renderExecutions(&buf, nil)
	if !strings.Contains(buf.String(), "no executions recorded") {
		t.Errorf("empty list = %q", buf.String())
	}

	buf.Reset()
	renderExecutions(&buf, []storage.Execution{
		{ID: "abc", Status: "failure", Category: "name", DurationMS: 42},
	})
	for _, want := range []string{"abc", "failure", "42ms", "name"} {
		if !strings.Contains(buf.String(), want) {
			t.Errorf("missing %q in %q", want, buf.String())
		}
	}
}

func TestStatusExit(t *testing.T) {
	tests := []struct {
		status sandbox.Status
		want   int
	}{
		{sandbox.StatusSuccess, 0},
		{sandbox.StatusFailure, 1},
		{sandbox.StatusTimeout, 124},
	}
	for _, tt := range tests {
		err := statusExit(tt.status)
		var exit exitError
		switch {
		case tt.want == 0 && err != nil:
			t.Errorf("statusExit(%s) = %v, want nil", tt.status, err)
		case tt.want != 0 && (!errors.As(err, &exit) || exit.code != tt.want):
			t.Errorf("statusExit(%s) = %v, want exit %d", tt.status, err, tt.want)
		}
	}
}

func TestReadCode(t *testing.T) {
	stdin := strings.NewReader("print('stdin')")

	code, err := readCode(stdin, nil, "fibonacci", true)
	if err != nil {
		t.Fatal(err)
	}
	if ex, _ := library.Get("fibonacci"); code != ex.Code {
		t.Errorf("example code = %q", code)
	}

	if _, err := readCode(stdin, nil, "no-such-example", true); err == nil {
		t.Error("expected error for unknown example")
	}

	code, err = readCode(stdin, []string{"print(1)"}, "", false)
	if err != nil || code != "print(1)" {
		t.Errorf("arg code = %q, %v", code, err)
	}

	code, err = readCode(stdin, nil, "", false)
	if err != nil || code != "print('stdin')" {
		t.Errorf("stdin code = %q, %v", code, err)
	}
}
