package runtime

import "github.com/halvard/stencil/value"

// ScopeKind tags a Scope frame with its lookup/write semantics.
type ScopeKind int

const (
	// GlobalScope wraps the render Context; set_global always targets it.
	GlobalScope ScopeKind = iota
	// ForScope holds one for-loop iteration's bindings (value/key/loop) and
	// chains to its enclosing scope, so nested for-loops see outer locals.
	ForScope
	// MacroScope is opaque: only its own parameters/locals are visible, not
	// any enclosing scope (not even Global).
	MacroScope
	// LocalScope isolates writes made during an include so `set` inside an
	// included template does not leak back into the includer.
	LocalScope
)

// Scope is one entry of the render-time scope stack.
type Scope struct {
	kind   ScopeKind
	vars   map[string]value.Value
	parent *Scope
	ctx    *value.Context // only set on the root Global frame
}

func newGlobalFrame(ctx *value.Context) *Scope {
	return &Scope{kind: GlobalScope, vars: map[string]value.Value{}, ctx: ctx}
}

func pushForFrame(parent *Scope) *Scope {
	return &Scope{kind: ForScope, vars: map[string]value.Value{}, parent: parent}
}

func pushMacroFrame() *Scope {
	return &Scope{kind: MacroScope, vars: map[string]value.Value{}}
}

func pushLocalFrame(parent *Scope) *Scope {
	return &Scope{kind: LocalScope, vars: map[string]value.Value{}, parent: parent}
}

// Lookup walks the frame chain innermost to outermost. A MacroScope frame
// has no parent pointer, so the walk naturally stops there — the scope is
// opaque by construction, not by an explicit break check.
func (f *Scope) Lookup(name string) (value.Value, bool) {
	for fr := f; fr != nil; fr = fr.parent {
		if v, ok := fr.vars[name]; ok {
			return v, true
		}
		if fr.ctx != nil {
			if v, ok := fr.ctx.Get(name); ok {
				return v, true
			}
		}
	}
	return value.Null, false
}

// Set writes into the current frame: a ForScope or MacroScope frame resets
// per iteration/call, a LocalScope frame isolates an include's writes, and
// the Global frame overlay is visible to every descendant via Lookup.
func (f *Scope) Set(name string, v value.Value) {
	f.vars[name] = v
}

// debugDump builds the value the magical __tera_context identifier
// resolves to: every name visible from this frame, outermost first so
// inner scopes shadow outer ones, rendered with Value.DebugPretty.
func (f *Scope) debugDump() string {
	var chain []*Scope
	for fr := f; fr != nil; fr = fr.parent {
		chain = append(chain, fr)
	}
	merged := value.NewObject()
	if root := chain[len(chain)-1]; root.ctx != nil {
		if obj, ok := root.ctx.Root().AsObject(); ok {
			for pair := obj.Oldest(); pair != nil; pair = pair.Next() {
				merged.Set(pair.Key, pair.Value)
			}
		}
	}
	for i := len(chain) - 1; i >= 0; i-- {
		for name, v := range chain[i].vars {
			merged.Set(name, v)
		}
	}
	return value.FromObject(merged).DebugPretty()
}
