// Package registry holds a set of parsed templates, validates their
// inheritance/import graph as one atomic unit, and renders them through the
// runtime package. It implements runtime.Resolver so the runtime package
// never needs to import this one.
package registry

import (
	"fmt"
	"io"
	"strings"
	"sync"

	"github.com/pkg/errors"
	"golang.org/x/sync/errgroup"

	"github.com/halvard/stencil/ast"
	"github.com/halvard/stencil/parser"
	"github.com/halvard/stencil/runtime"
	"github.com/halvard/stencil/value"
)

// defaultMaxChainDepth bounds `extends` chain length against an
// accidental or malicious cycle, as a plain structural limit rather than
// a sandbox policy.
const defaultMaxChainDepth = 64

// Loader is an external source of template text, used by Reload.
type Loader interface {
	Load(name string) (string, error)
	Names() ([]string, error)
}

// MapLoader serves template sources straight out of an in-memory map —
// convenient for tests and for embedding hosts that already hold templates
// in memory.
type MapLoader map[string]string

func (m MapLoader) Load(name string) (string, error) {
	src, ok := m[name]
	if !ok {
		return "", fmt.Errorf("template %q not found in MapLoader", name)
	}
	return src, nil
}

func (m MapLoader) Names() ([]string, error) {
	names := make([]string, 0, len(m))
	for n := range m {
		names = append(names, n)
	}
	return names, nil
}

// Options configures a Registry's validation limits, autoescape rules and
// macro recursion guard.
type Options struct {
	// AutoescapeSuffixes is the initial autoescape suffix list; a name
	// ending in one of these (case-sensitive) is HTML-escaped on render.
	// Defaults to .html/.htm/.xml when left nil.
	AutoescapeSuffixes []string
	// MaxChainDepth bounds `extends` chain length. 0 selects the default.
	MaxChainDepth int
	// MaxMacroDepth bounds macro call recursion. 0 means unbounded.
	MaxMacroDepth int
}

func (o Options) chainDepth() int {
	if o.MaxChainDepth > 0 {
		return o.MaxChainDepth
	}
	return defaultMaxChainDepth
}

func (o Options) autoescapeSuffixes() []string {
	if o.AutoescapeSuffixes != nil {
		return o.AutoescapeSuffixes
	}
	return []string{".html", ".htm", ".xml"}
}

// Registry is the template set a host adds to, extends, reloads and
// renders from. Add/AddBatch validate and commit the whole set atomically:
// a failing template never partially corrupts the live set.
type Registry struct {
	mu sync.RWMutex

	asts      map[string]*ast.Template
	compiled  map[string]*runtime.CompiledTemplate
	sources   map[string]string
	autoescape []string
	options   Options
	loader    Loader

	ext      *runtime.Extensions
	renderer *runtime.Renderer
}

// New builds an empty Registry with its own extension registry, ready for
// builtins to be installed via Extensions().
func New(opts Options) *Registry {
	ext := runtime.NewExtensions()
	return &Registry{
		asts:       map[string]*ast.Template{},
		compiled:   map[string]*runtime.CompiledTemplate{},
		sources:    map[string]string{},
		autoescape: opts.autoescapeSuffixes(),
		options:    opts,
		ext:        ext,
		renderer:   runtime.NewRenderer(ext, opts.MaxMacroDepth),
	}
}

// Extensions exposes the filter/test/function registry so a host (or the
// builtins package) can install callables before any template renders.
func (r *Registry) Extensions() *runtime.Extensions { return r.ext }

// SetLoader attaches an external source for Reload.
func (r *Registry) SetLoader(l Loader) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.loader = l
}

// Add parses and validates source as name, committing it into the set only
// if the resulting whole-set graph (inheritance, imports, block
// resolution) is still valid.
func (r *Registry) Add(name, source string) error {
	return r.AddBatch(map[string]string{name: source})
}

// AddBatch parses every entry concurrently, then validates and commits the
// full resulting template set as one atomic step: either all of entries
// join the registry or none do.
func (r *Registry) AddBatch(entries map[string]string) error {
	type parsed struct {
		name string
		tmpl *ast.Template
		err  error
	}
	results := make([]parsed, len(entries))
	names := make([]string, 0, len(entries))
	for name := range entries {
		names = append(names, name)
	}

	var g errgroup.Group
	for i, name := range names {
		i, name := i, name
		g.Go(func() error {
			tmpl, err := parser.Parse(name, entries[name])
			results[i] = parsed{name: name, tmpl: tmpl, err: err}
			if err != nil {
				return newParseFailure(name, err)
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	staged := make(map[string]*ast.Template, len(r.asts)+len(results))
	for k, v := range r.asts {
		staged[k] = v
	}
	for _, p := range results {
		staged[p.name] = p.tmpl
	}

	compiled, err := compileAll(staged, r.options.chainDepth())
	if err != nil {
		return err
	}

	for _, p := range results {
		r.asts[p.name] = p.tmpl
		r.sources[p.name] = entries[p.name]
	}
	r.compiled = compiled
	return nil
}

// Extend merges other's templates and extension callables into r. On a
// name collision r's own entry is kept (self wins).
func (r *Registry) Extend(other *Registry) error {
	other.mu.RLock()
	srcCopy := make(map[string]string, len(other.sources))
	for k, v := range other.sources {
		srcCopy[k] = v
	}
	other.mu.RUnlock()

	r.mu.Lock()
	merged := make(map[string]string, len(srcCopy))
	for k, v := range srcCopy {
		if _, exists := r.asts[k]; !exists {
			merged[k] = v
		}
	}
	r.mu.Unlock()

	if len(merged) > 0 {
		if err := r.AddBatch(merged); err != nil {
			return err
		}
	}
	r.ext.ExtendFrom(other.ext)
	return nil
}

// Reload re-fetches every known template name from the attached Loader and
// re-adds it, validating the whole set atomically exactly as Add does.
func (r *Registry) Reload() error {
	r.mu.RLock()
	loader := r.loader
	names := make([]string, 0, len(r.asts))
	for n := range r.asts {
		names = append(names, n)
	}
	r.mu.RUnlock()

	if loader == nil {
		return errors.New("registry: Reload called with no Loader attached")
	}
	entries := make(map[string]string, len(names))
	for _, n := range names {
		src, err := loader.Load(n)
		if err != nil {
			return errors.Wrapf(err, "registry: reload %q", n)
		}
		entries[n] = src
	}
	return r.AddBatch(entries)
}

// AutoescapeRules returns the current autoescape suffix list.
func (r *Registry) AutoescapeRules() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]string, len(r.autoescape))
	copy(out, r.autoescape)
	return out
}

// SetAutoescapeRules replaces the active autoescape suffix list. Render
// decisions always test against the rules live at render time, not the
// rules in effect when a template was added.
func (r *Registry) SetAutoescapeRules(suffixes []string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.autoescape = append([]string(nil), suffixes...)
}

// Resolve implements runtime.Resolver.
func (r *Registry) Resolve(name string) (*runtime.CompiledTemplate, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	ct, ok := r.compiled[name]
	return ct, ok
}

func (r *Registry) shouldEscape(name string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, suffix := range r.autoescape {
		if strings.HasSuffix(name, suffix) {
			return true
		}
	}
	return false
}

// Render renders the named template into w.
func (r *Registry) Render(name string, ctx *value.Context, w io.Writer) error {
	return r.renderer.Render(r, name, ctx, r.shouldEscape(name), w)
}

// OneOff parses source standalone and renders it without adding it to the
// registry. Includes/imports inside source still resolve against the
// registry's already-committed templates.
func (r *Registry) OneOff(source string, ctx *value.Context, autoescape bool) (string, error) {
	const oneOffName = "<one-off>"
	tmpl, err := parser.Parse(oneOffName, source)
	if err != nil {
		return "", newParseFailure(oneOffName, err)
	}
	if tmpl.HasParent {
		return "", errors.New("registry: one-off templates cannot use extends")
	}

	r.mu.RLock()
	staged := make(map[string]*ast.Template, len(r.asts)+1)
	for k, v := range r.asts {
		staged[k] = v
	}
	r.mu.RUnlock()
	staged[oneOffName] = tmpl

	compiled, err := compileAll(staged, r.options.chainDepth())
	if err != nil {
		return "", err
	}

	res := &overlayResolver{base: r, extra: compiled}
	var buf strings.Builder
	if err := r.renderer.Render(res, oneOffName, ctx, autoescape, &buf); err != nil {
		return "", err
	}
	return buf.String(), nil
}

// overlayResolver lets OneOff's throwaway template resolve against both its
// own freshly compiled set and the registry's committed templates, without
// mutating the registry itself.
type overlayResolver struct {
	base  *Registry
	extra map[string]*runtime.CompiledTemplate
}

func (o *overlayResolver) Resolve(name string) (*runtime.CompiledTemplate, bool) {
	if ct, ok := o.extra[name]; ok {
		return ct, true
	}
	return o.base.Resolve(name)
}

func newParseFailure(name string, cause error) error {
	return errors.Wrapf(cause, "registry: parsing %q failed", name)
}
