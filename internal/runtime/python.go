package runtime

import (
	_ "embed"
	"fmt"
	"path"
	"unicode/utf8"
)

//go:embed harness.py
var pythonHarness []byte

// MaxCodeBytes is the largest snippet accepted by Validate.
const MaxCodeBytes = 1 << 20

// FaultMarker prefixes the JSON fault record the harness writes to stderr.
const FaultMarker = "__PLAYGROUND_FAULT__"

// Harness exit codes.
const (
	ExitOK    = 0
	ExitFault = 1 // the snippet failed; a fault record was written
	ExitUsage = 2
	ExitSetup = 3 // the prelude could not be loaded
)

const (
	DefaultInterpreter = "python3"
	DefaultImage       = "docker.io/library/python:3.12-slim"
)

// PythonRuntime configures execution of Python snippets through the harness.
type PythonRuntime struct {
	interpreter string
	image       string
}

// NewPythonRuntime returns a runtime; empty arguments select the defaults.
func NewPythonRuntime(interpreter, image string) *PythonRuntime {
	if interpreter == "" {
		interpreter = DefaultInterpreter
	}
	if image == "" {
		image = DefaultImage
	}
	return &PythonRuntime{interpreter: interpreter, image: image}
}

func (p *PythonRuntime) Name() string { return "python" }

func (p *PythonRuntime) Image() string { return p.image }

// Interpreter is the executable used by local workers.
func (p *PythonRuntime) Interpreter() string { return p.interpreter }

func (p *PythonRuntime) Command(workDir string) []string {
	return []string{
		p.interpreter,
		"-I", // Isolated: ignore PYTHON* env and user site-packages
		"-B", // Don't write .pyc files
		"-u", // Unbuffered output
		path.Join(workDir, HarnessFile),
		path.Join(workDir, PreludeFile),
		path.Join(workDir, SnippetFile),
	}
}

func (p *PythonRuntime) Harness() []byte { return pythonHarness }

func (p *PythonRuntime) Validate(code string) error {
	if len(code) > MaxCodeBytes {
		return fmt.Errorf("code too large: %d bytes (max 1MB)", len(code))
	}
	if !utf8.ValidString(code) {
		return fmt.Errorf("code is not valid UTF-8")
	}
	return nil
}
