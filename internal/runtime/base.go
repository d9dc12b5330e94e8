package runtime

import (
	"fmt"
	"sort"
)

// Worker file names inside an execution directory.
const (
	HarnessFile = "harness.py"
	PreludeFile = "prelude.py"
	SnippetFile = "snippet.py"
)

// Runtime defines how to launch the worker for a specific language.
type Runtime interface {
	// Name returns the runtime identifier (e.g., "python").
	Name() string

	// Image returns the container image reference for this runtime.
	Image() string

	// Command returns the argv that starts the worker. workDir is where the
	// harness, prelude and snippet files live as seen by the worker.
	Command(workDir string) []string

	// Harness returns the trusted entry point written next to the snippet.
	Harness() []byte

	// Validate checks the snippet is acceptable before a worker is started.
	// This is a size/encoding check, not a parser.
	Validate(code string) error
}

// Registry maps language names to their Runtime implementations.
type Registry struct {
	runtimes map[string]Runtime
}

// NewRegistry creates a registry with the Python runtime using interpreter
// for local workers and image for container workers.
func NewRegistry(interpreter, image string) *Registry {
	r := &Registry{
		runtimes: make(map[string]Runtime),
	}
	r.Register(NewPythonRuntime(interpreter, image))
	return r
}

// Register adds a runtime to the registry.
func (r *Registry) Register(rt Runtime) {
	r.runtimes[rt.Name()] = rt
}

// Get returns the runtime for the given language.
func (r *Registry) Get(language string) (Runtime, error) {
	rt, ok := r.runtimes[language]
	if !ok {
		return nil, fmt.Errorf("unsupported language: %q (supported: %v)", language, r.Languages())
	}
	return rt, nil
}

// Languages returns all registered language names, sorted.
func (r *Registry) Languages() []string {
	langs := make([]string, 0, len(r.runtimes))
	for name := range r.runtimes {
		langs = append(langs, name)
	}
	sort.Strings(langs)
	return langs
}

// Images returns all container images needed by registered runtimes.
func (r *Registry) Images() []string {
	images := make([]string, 0, len(r.runtimes))
	for _, rt := range r.runtimes {
		images = append(images, rt.Image())
	}
	return images
}
