// Package capability defines the allowlist of names a snippet can resolve at
// global scope. Anything absent from the Table is unreachable by name lookup.
//
// The table restricts name resolution only. A value handed to the snippet can
// still expose further objects through attribute traversal, so containment is
// left to the process or container boundary the sandbox runs the worker in.
package capability

import (
	"fmt"
	"sort"
	"strings"
)

// Kind describes what a capability binds.
type Kind string

const (
	KindFunction Kind = "function"
	KindType     Kind = "type"
	// KindHook marks language machinery the interpreter looks up on its own
	// (class bodies, import statements). Hooks are never listed to callers.
	KindHook Kind = "hook"
)

// Capability is a single allowlisted symbol.
type Capability struct {
	Name    string `json:"name"`
	Kind    Kind   `json:"kind"`
	Summary string `json:"summary"`

	// expr is the Python expression, evaluated by the trusted harness, that
	// produces the bound value.
	expr string
}

// Table is an immutable name → capability mapping.
type Table struct {
	byName   map[string]Capability
	order    []string
	reserved map[string]struct{}
}

// MockInput is what input() returns inside a snippet. Requests carry no stdin.
const MockInput = "Test User"

var defaults = []Capability{
	{Name: "print", Kind: KindFunction, Summary: "write values to the output", expr: "builtins.print"},
	{Name: "len", Kind: KindFunction, Summary: "number of items in a container", expr: "builtins.len"},
	{Name: "range", Kind: KindType, Summary: "arithmetic sequence of integers", expr: "builtins.range"},
	{Name: "str", Kind: KindType, Summary: "text conversion and formatting", expr: "builtins.str"},
	{Name: "int", Kind: KindType, Summary: "integer conversion", expr: "builtins.int"},
	{Name: "float", Kind: KindType, Summary: "floating point conversion", expr: "builtins.float"},
	{Name: "list", Kind: KindType, Summary: "mutable sequence", expr: "builtins.list"},
	{Name: "dict", Kind: KindType, Summary: "key/value mapping", expr: "builtins.dict"},
	{Name: "set", Kind: KindType, Summary: "unordered unique collection", expr: "builtins.set"},
	{Name: "tuple", Kind: KindType, Summary: "immutable sequence", expr: "builtins.tuple"},
	{Name: "sum", Kind: KindFunction, Summary: "add up an iterable", expr: "builtins.sum"},
	{Name: "min", Kind: KindFunction, Summary: "smallest item", expr: "builtins.min"},
	{Name: "max", Kind: KindFunction, Summary: "largest item", expr: "builtins.max"},
	{Name: "enumerate", Kind: KindType, Summary: "pair items with their index", expr: "builtins.enumerate"},
	{Name: "zip", Kind: KindType, Summary: "pair items from several iterables", expr: "builtins.zip"},
	{Name: "type", Kind: KindType, Summary: "type of a value", expr: "builtins.type"},
	{Name: "chr", Kind: KindFunction, Summary: "character for a code point", expr: "builtins.chr"},
	{Name: "ord", Kind: KindFunction, Summary: "code point for a character", expr: "builtins.ord"},
	{Name: "input", Kind: KindFunction, Summary: fmt.Sprintf("returns %q; requests have no stdin", MockInput), expr: "_mock_input"},
	{Name: "__build_class__", Kind: KindHook, Summary: "class statement support", expr: "builtins.__build_class__"},
	{Name: "__import__", Kind: KindHook, Summary: "import guard; every module is undefined", expr: "_guarded_import"},
}

// reservedNames are built-ins a caller expects to exist; a NameError on one
// of them is reported as a missing definition rather than a typo.
var reservedNames = []string{"print", "input", "len", "range"}

// Build returns a fresh table holding the fixed allowlist.
func Build() *Table {
	t := &Table{
		byName:   make(map[string]Capability, len(defaults)),
		order:    make([]string, 0, len(defaults)),
		reserved: make(map[string]struct{}, len(reservedNames)),
	}
	for _, c := range defaults {
		t.byName[c.Name] = c
		t.order = append(t.order, c.Name)
	}
	for _, n := range reservedNames {
		t.reserved[n] = struct{}{}
	}
	return t
}

// Lookup returns the capability bound to name.
func (t *Table) Lookup(name string) (Capability, bool) {
	c, ok := t.byName[name]
	return c, ok
}

// Has reports whether name resolves inside a snippet.
func (t *Table) Has(name string) bool {
	_, ok := t.byName[name]
	return ok
}

// Names returns the user-visible names in declaration order. Hooks are omitted.
func (t *Table) Names() []string {
	names := make([]string, 0, len(t.order))
	for _, n := range t.order {
		if t.byName[n].Kind == KindHook {
			continue
		}
		names = append(names, n)
	}
	return names
}

// Capabilities returns the user-visible capabilities in declaration order.
func (t *Table) Capabilities() []Capability {
	out := make([]Capability, 0, len(t.order))
	for _, n := range t.Names() {
		out = append(out, t.byName[n])
	}
	return out
}

// IsReserved reports whether name is one of the reserved built-ins.
func (t *Table) IsReserved(name string) bool {
	_, ok := t.reserved[name]
	return ok
}

// Reserved returns the reserved built-in names, sorted.
func (t *Table) Reserved() []string {
	out := make([]string, 0, len(t.reserved))
	for n := range t.reserved {
		out = append(out, n)
	}
	sort.Strings(out)
	return out
}

// Len is the total number of bound names, hooks included.
func (t *Table) Len() int {
	return len(t.order)
}

// Prelude renders the Python fragment the harness evaluates to build the
// snippet's __builtins__. It assigns a single dict named CAPABILITIES and
// references only builtins, _mock_input and _guarded_import, which the
// harness provides.
func (t *Table) Prelude() string {
	var b strings.Builder
	b.WriteString("CAPABILITIES = {\n")
	for _, n := range t.order {
		fmt.Fprintf(&b, "    %q: %s,\n", n, t.byName[n].expr)
	}
	b.WriteString("}\n")
	return b.String()
}
