package registry

import (
	"fmt"

	"github.com/halvard/stencil/ast"
	"github.com/halvard/stencil/runtime"
)

// compileAll validates the full staged template set as one unit — extends
// chains resolve, have no cycle and stay within maxChain, every import
// target exists — and returns every template's compiled form, including
// its chain-resolved block map. A single invalid template fails the whole
// batch; nothing here mutates the caller's state.
func compileAll(staged map[string]*ast.Template, maxChain int) (map[string]*runtime.CompiledTemplate, error) {
	chains := make(map[string][]string, len(staged))
	for name := range staged {
		chain, err := resolveChain(name, staged, maxChain)
		if err != nil {
			return nil, err
		}
		chains[name] = chain
	}

	for name, tmpl := range staged {
		for ns, target := range tmpl.Imports {
			if _, ok := staged[target]; !ok {
				return nil, newRegistryError("template %q imports namespace %q from unregistered template %q", name, ns, target)
			}
		}
	}

	out := make(map[string]*runtime.CompiledTemplate, len(staged))
	for name, tmpl := range staged {
		chain := chains[name]
		out[name] = &runtime.CompiledTemplate{
			Name:     name,
			AST:      tmpl,
			RootName: chain[len(chain)-1],
			Chain:    chain,
			Blocks:   resolveBlocks(chain, staged),
		}
	}
	return out, nil
}

// resolveChain walks ParentName pointers from name up to the inheritance
// root, child-most first, failing on a missing parent, a cycle, or a chain
// longer than maxChain.
func resolveChain(name string, staged map[string]*ast.Template, maxChain int) ([]string, error) {
	chain := []string{name}
	seen := map[string]bool{name: true}
	cur := staged[name]
	for cur.HasParent {
		parent := cur.ParentName
		if seen[parent] {
			return nil, newRegistryError("circular extends chain involving %q", parent)
		}
		parentTmpl, ok := staged[parent]
		if !ok {
			return nil, newRegistryError("template %q extends unregistered template %q", chain[len(chain)-1], parent)
		}
		chain = append(chain, parent)
		seen[parent] = true
		if len(chain) > maxChain {
			return nil, newRegistryError("extends chain starting at %q exceeds maximum depth %d", name, maxChain)
		}
		cur = parentTmpl
	}
	return chain, nil
}

// resolveBlocks computes, for one template's chain, the override list for
// every block name defined anywhere in that chain — child-most entry
// first, so the renderer's default (entries[0]) is whichever template in
// the chain overrides it closest to the leaf. A block occurring more than
// once within a single template keeps only its first occurrence, since a
// repeated name inside one template is not a chain override.
func resolveBlocks(chain []string, staged map[string]*ast.Template) map[string][]runtime.BlockEntry {
	names := map[string]bool{}
	for _, tname := range chain {
		for n := range staged[tname].Blocks {
			names[n] = true
		}
	}
	out := make(map[string][]runtime.BlockEntry, len(names))
	for n := range names {
		var entries []runtime.BlockEntry
		for _, tname := range chain {
			tmpl := staged[tname]
			stmts, ok := tmpl.Blocks[n]
			if !ok || len(stmts) == 0 {
				continue
			}
			body := bodyOf(stmts[0])
			entries = append(entries, runtime.BlockEntry{
				Owner:   tname,
				Body:    body,
				Imports: tmpl.Imports,
			})
		}
		out[n] = entries
	}
	return out
}

// bodyOf returns a Block statement's own body; any other node shape here
// would mean finishTemplate's block harvest changed without this updating.
func bodyOf(s ast.Stmt) []ast.Stmt {
	if b, ok := s.(*ast.Block); ok {
		return b.Body
	}
	return nil
}

func newRegistryError(format string, args ...any) error {
	return &registryError{msg: fmt.Sprintf(format, args...)}
}

type registryError struct{ msg string }

func (e *registryError) Error() string { return "registry: " + e.msg }
