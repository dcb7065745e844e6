package runtime

import (
	"sync"

	"github.com/halvard/stencil/ast"
	"github.com/halvard/stencil/value"
)

// BlockEntry is one override of a named block somewhere in an inheritance
// chain, recorded with the template that owns it so macro/import
// resolution inside the block body can use that owner's own namespaces.
type BlockEntry struct {
	Owner   string
	Body    []ast.Stmt
	Imports map[string]string // namespace -> template name, owner-local
}

// CompiledTemplate is what a Resolver hands back for a named template: its
// own AST plus the inheritance chain and the per-block resolution map
// precomputed across that chain.
type CompiledTemplate struct {
	Name     string
	AST      *ast.Template
	RootName string   // the inheritance root to actually walk when rendering
	Chain    []string // child-most first: [Name, ..., RootName]
	Blocks   map[string][]BlockEntry
}

// Resolver looks up a compiled template by name. registry.Registry
// implements this; runtime never imports registry, avoiding a cycle.
type Resolver interface {
	Resolve(name string) (*CompiledTemplate, bool)
}

// FilterFunc implements one built-in or user-registered filter.
type FilterFunc func(target value.Value, args []value.Value, kwargs map[string]value.Value) (value.Value, error)

// TestFunc implements one `is` test.
type TestFunc func(target value.Value, args []value.Value) (bool, error)

// FunctionFunc implements one global function or macro-like callable.
type FunctionFunc func(kwargs map[string]value.Value) (value.Value, error)

// FilterEntry pairs a filter with the safe-flag used to decide
// whether its output needs autoescaping.
type FilterEntry struct {
	Fn   FilterFunc
	Safe bool
}

// FunctionEntry mirrors FilterEntry for global functions.
type FunctionEntry struct {
	Fn   FunctionFunc
	Safe bool
}

// Extensions is the mutable filter/test/function registry a Renderer reads
// from during evaluation. Safe for concurrent registration and render.
type Extensions struct {
	mu        sync.RWMutex
	filters   map[string]FilterEntry
	tests     map[string]TestFunc
	functions map[string]FunctionEntry
}

// NewExtensions returns an empty registry ready for AddFilter/AddTest/AddFunction.
func NewExtensions() *Extensions {
	return &Extensions{
		filters:   map[string]FilterEntry{},
		tests:     map[string]TestFunc{},
		functions: map[string]FunctionEntry{},
	}
}

func (e *Extensions) AddFilter(name string, fn FilterFunc, safe bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.filters[name] = FilterEntry{Fn: fn, Safe: safe}
}

func (e *Extensions) AddTest(name string, fn TestFunc) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.tests[name] = fn
}

func (e *Extensions) AddFunction(name string, fn FunctionFunc, safe bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.functions[name] = FunctionEntry{Fn: fn, Safe: safe}
}

func (e *Extensions) GetFilter(name string) (FilterEntry, bool) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	f, ok := e.filters[name]
	return f, ok
}

func (e *Extensions) GetTest(name string) (TestFunc, bool) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	t, ok := e.tests[name]
	return t, ok
}

func (e *Extensions) GetFunction(name string) (FunctionEntry, bool) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	f, ok := e.functions[name]
	return f, ok
}

// ExtendFrom merges entries from other that are not already registered in
// e. On name collision e's own entry wins, matching registry.Extend's
// self-wins policy so the same rule applies whether the collision is
// between two templates' extension sets or one registry extending
// another.
func (e *Extensions) ExtendFrom(other *Extensions) {
	other.mu.RLock()
	defer other.mu.RUnlock()
	e.mu.Lock()
	defer e.mu.Unlock()
	for k, v := range other.filters {
		if _, exists := e.filters[k]; !exists {
			e.filters[k] = v
		}
	}
	for k, v := range other.tests {
		if _, exists := e.tests[k]; !exists {
			e.tests[k] = v
		}
	}
	for k, v := range other.functions {
		if _, exists := e.functions[k]; !exists {
			e.functions[k] = v
		}
	}
}

// Renderer evaluates and renders a resolved template tree.
type Renderer struct {
	Ext           *Extensions
	MaxMacroDepth int // 0 = unbounded
}

// NewRenderer builds a Renderer against a shared Extensions registry.
func NewRenderer(ext *Extensions, maxMacroDepth int) *Renderer {
	return &Renderer{Ext: ext, MaxMacroDepth: maxMacroDepth}
}
