package runtime

import (
	"errors"
	"io"
	"strings"

	"github.com/google/uuid"

	"github.com/halvard/stencil/ast"
	"github.com/halvard/stencil/value"
)

// errBreak and errContinue are sentinel control-flow signals: they unwind
// renderStmts up to the nearest enclosing For, which is the only place
// they are caught. The parser already rejects break/continue outside a
// for body, so a live one always has an enclosing catch.
var (
	errBreak    = errors.New("break")
	errContinue = errors.New("continue")
)

// nsCtx carries the namespace-resolution context a block of statements
// renders under: its own macro definitions (for `self::`) and its own
// `{% import %}` map (namespace -> template name). It changes whenever
// rendering crosses into a block override owned by a different template
// than the one currently executing.
type nsCtx struct {
	owner      string
	imports    map[string]string
	selfMacros map[string]*ast.MacroDef
}

// blockCtx tracks one active `{% block %}` tag's override chain and the
// super-depth counter that super() advances as a block chain is walked.
type blockCtx struct {
	name    string
	entries []BlockEntry
	index   int
}

// state is the live render of a single top-level Render/OneOff call: the
// writer, the global frame, the block-resolution map for the originally
// requested template, and the active block stack for super().
type state struct {
	resolver   Resolver
	renderer   *Renderer
	w          io.Writer
	global     *Scope
	blocks     map[string][]BlockEntry
	autoescape bool
	blockStack []*blockCtx
	macroDepth int
}

// Render resolves name via resolver, selects the inheritance root to walk,
// and writes the rendered output to w. autoescape is decided by the caller
// (the registry, against its live autoescape suffix rules) since the rule
// set can change after a template is added.
func (r *Renderer) Render(resolver Resolver, name string, ctx *value.Context, autoescape bool, w io.Writer) error {
	leaf, ok := resolver.Resolve(name)
	if !ok {
		return newError(KindRegistryError, nil, "template %q is not registered", name)
	}
	root := leaf
	if leaf.RootName != leaf.Name {
		root, ok = resolver.Resolve(leaf.RootName)
		if !ok {
			return newError(KindRegistryError, nil, "inheritance root %q of %q is not registered", leaf.RootName, name)
		}
	}
	st := &state{
		resolver:   resolver,
		renderer:   r,
		w:          w,
		global:     newGlobalFrame(ctx),
		blocks:     leaf.Blocks,
		autoescape: autoescape,
	}
	ns := &nsCtx{owner: root.Name, imports: root.AST.Imports, selfMacros: root.AST.Macros}
	err := st.renderStmts(root.AST.Body, st.global, ns)
	if re, ok := err.(*Error); ok && re.RenderID == "" {
		re.RenderID = uuid.NewString()
	}
	return err
}

func (st *state) renderStmts(stmts []ast.Stmt, frame *Scope, ns *nsCtx) error {
	for _, s := range stmts {
		if err := st.renderStmt(s, frame, ns); err != nil {
			return err
		}
	}
	return nil
}

func (st *state) renderStmt(s ast.Stmt, frame *Scope, ns *nsCtx) error {
	switch n := s.(type) {
	case *ast.Text:
		_, err := st.w.Write(n.Bytes)
		return err
	case *ast.Raw:
		_, err := st.w.Write(n.Bytes)
		return err
	case *ast.VariableBlock:
		return st.renderVariableBlock(n, frame, ns)
	case *ast.If:
		return st.renderIf(n, frame, ns)
	case *ast.For:
		return st.renderFor(n, frame, ns)
	case *ast.Set:
		val, err := st.evalExpr(n.Value, frame, ns)
		if err != nil {
			return pushFrame(err, ns.owner, n.Pos().Line, n.Pos().Column)
		}
		if n.Global {
			st.global.Set(n.Name, val)
		} else {
			frame.Set(n.Name, val)
		}
		return nil
	case *ast.Block:
		return st.renderBlock(n, frame, ns)
	case *ast.Extends:
		return nil // consumed by the registry at validation time
	case *ast.Import:
		return nil // namespaces are precomputed into CompiledTemplate
	case *ast.MacroDef:
		return nil // harvested into ast.Template.Macros at parse time
	case *ast.Include:
		return st.renderInclude(n, frame, ns)
	case *ast.FilterSection:
		return st.renderFilterSection(n, frame, ns)
	case *ast.Break:
		return errBreak
	case *ast.Continue:
		return errContinue
	default:
		return newError(KindRenderError, nil, "unhandled statement node %T", s)
	}
}

func (st *state) renderVariableBlock(n *ast.VariableBlock, frame *Scope, ns *nsCtx) error {
	val, safe, err := st.evalTop(n.Expr, frame, ns)
	if err != nil {
		return pushFrame(err, ns.owner, n.Pos().Line, n.Pos().Column)
	}
	return st.emit(val, safe)
}

func (st *state) emit(val value.Value, safe bool) error {
	out := val.Stringify()
	if st.autoescape && !safe {
		out = EscapeHTML(out)
	}
	_, err := io.WriteString(st.w, out)
	return err
}

func (st *state) renderIf(n *ast.If, frame *Scope, ns *nsCtx) error {
	for _, b := range n.Branches {
		ok, err := st.evalTruthy(b.Cond, frame, ns)
		if err != nil {
			return pushFrame(err, ns.owner, n.Pos().Line, n.Pos().Column)
		}
		if ok {
			return st.renderStmts(b.Body, frame, ns)
		}
	}
	return st.renderStmts(n.Else, frame, ns)
}

func (st *state) renderFor(n *ast.For, frame *Scope, ns *nsCtx) error {
	container, err := st.evalExpr(n.Container, frame, ns)
	if err != nil {
		return pushFrame(err, ns.owner, n.Pos().Line, n.Pos().Column)
	}

	type item struct {
		key value.Value
		val value.Value
	}
	var items []item

	switch container.Kind() {
	case value.KindArray:
		arr, _ := container.AsArray()
		items = make([]item, len(arr))
		for i, v := range arr {
			items[i] = item{key: value.Int(int64(i)), val: v}
		}
	case value.KindObject:
		obj, _ := container.AsObject()
		for pair := obj.Oldest(); pair != nil; pair = pair.Next() {
			items = append(items, item{key: value.String(pair.Key), val: pair.Value})
		}
	case value.KindString:
		s, _ := container.AsString()
		runes := []rune(s)
		items = make([]item, len(runes))
		for i, r := range runes {
			items[i] = item{key: value.Int(int64(i)), val: value.String(string(r))}
		}
	default:
		return pushFrame(newError(KindTypeError, nil, "cannot iterate over %s", container.Kind()), ns.owner, n.Pos().Line, n.Pos().Column)
	}

	if len(items) == 0 {
		return st.renderStmts(n.Else, frame, ns)
	}

	total := len(items)
	for i, it := range items {
		iterFrame := pushForFrame(frame)
		iterFrame.Set(n.ValueVar, it.val)
		if n.KeyVar != "" {
			iterFrame.Set(n.KeyVar, it.key)
		}
		loopObj := value.NewObject()
		loopObj.Set("index", value.Int(int64(i+1)))
		loopObj.Set("index0", value.Int(int64(i)))
		loopObj.Set("first", value.Bool(i == 0))
		loopObj.Set("last", value.Bool(i == total-1))
		loopObj.Set("length", value.Int(int64(total)))
		iterFrame.Set("loop", value.FromObject(loopObj))

		err := st.renderStmts(n.Body, iterFrame, ns)
		if err == errContinue {
			continue
		}
		if err == errBreak {
			break
		}
		if err != nil {
			return err
		}
	}
	return nil
}

func (st *state) renderBlock(n *ast.Block, frame *Scope, ns *nsCtx) error {
	entries := st.blocks[n.Name]
	if len(entries) == 0 {
		entries = []BlockEntry{{Owner: ns.owner, Body: n.Body, Imports: ns.imports}}
	}
	bc := &blockCtx{name: n.Name, entries: entries, index: 0}
	st.blockStack = append(st.blockStack, bc)
	defer func() { st.blockStack = st.blockStack[:len(st.blockStack)-1] }()

	entry := entries[0]
	childNS := &nsCtx{owner: entry.Owner, imports: entry.Imports, selfMacros: st.macrosOf(entry.Owner)}
	return st.renderStmts(entry.Body, frame, childNS)
}

func (st *state) macrosOf(templateName string) map[string]*ast.MacroDef {
	ct, ok := st.resolver.Resolve(templateName)
	if !ok {
		return nil
	}
	return ct.AST.Macros
}

// renderSuper renders the next override up the current block's chain, for
// the `super()` function call encountered while evaluating that block's
// own body. Advancing bc.index before recursing lets a nested super() call
// inside the parent body continue stepping further up the chain.
func (st *state) renderSuper(frame *Scope) (value.Value, error) {
	if len(st.blockStack) == 0 {
		return value.Null, newError(KindRenderError, nil, "super() called outside a block")
	}
	bc := st.blockStack[len(st.blockStack)-1]
	next := bc.index + 1
	if next >= len(bc.entries) {
		return value.Null, newError(KindRenderError, nil, "super() called with no parent block %q", bc.name)
	}
	bc.index = next
	entry := bc.entries[next]
	ns := &nsCtx{owner: entry.Owner, imports: entry.Imports, selfMacros: st.macrosOf(entry.Owner)}
	out, err := st.renderToString(entry.Body, frame, ns)
	return value.String(out), err
}

func (st *state) renderToString(stmts []ast.Stmt, frame *Scope, ns *nsCtx) (string, error) {
	var buf strings.Builder
	prevW := st.w
	st.w = &buf
	err := st.renderStmts(stmts, frame, ns)
	st.w = prevW
	return buf.String(), err
}

func (st *state) renderInclude(n *ast.Include, frame *Scope, ns *nsCtx) error {
	for _, name := range n.Names {
		ct, ok := st.resolver.Resolve(name)
		if !ok {
			continue
		}
		if ct.AST.HasParent {
			return pushFrame(newError(KindRenderError, nil, "include target %q uses extends", name), ns.owner, n.Pos().Line, n.Pos().Column)
		}
		local := pushLocalFrame(frame)
		childNS := &nsCtx{owner: ct.Name, imports: ct.AST.Imports, selfMacros: ct.AST.Macros}
		return st.renderStmts(ct.AST.Body, local, childNS)
	}
	if n.IgnoreMissing {
		return nil
	}
	return pushFrame(newError(KindRegistryError, nil, "no includable template found among %v", n.Names), ns.owner, n.Pos().Line, n.Pos().Column)
}

func (st *state) renderFilterSection(n *ast.FilterSection, frame *Scope, ns *nsCtx) error {
	body, err := st.renderToString(n.Body, frame, ns)
	if err != nil {
		return err
	}
	kwargs, err := st.evalKwargs(n.Kwargs, frame, ns)
	if err != nil {
		return pushFrame(err, ns.owner, n.Pos().Line, n.Pos().Column)
	}
	entry, ok := st.renderer.Ext.GetFilter(n.Name)
	if !ok {
		return pushFrame(newError(KindRenderError, nil, "unknown filter %q", n.Name), ns.owner, n.Pos().Line, n.Pos().Column)
	}
	result, err := entry.Fn(value.String(body), nil, kwargs)
	if err != nil {
		if re, ok := err.(*Error); ok {
			return pushFrame(re, ns.owner, n.Pos().Line, n.Pos().Column)
		}
		return pushFrame(newError(KindUserError, err, "filter %q failed", n.Name), ns.owner, n.Pos().Line, n.Pos().Column)
	}
	return st.emit(result, entry.Safe)
}

func (st *state) evalKwargs(kwargs []ast.KwArg, frame *Scope, ns *nsCtx) (map[string]value.Value, error) {
	out := make(map[string]value.Value, len(kwargs))
	for _, kw := range kwargs {
		v, err := st.evalExpr(kw.Value, frame, ns)
		if err != nil {
			return nil, err
		}
		out[kw.Name] = v
	}
	return out, nil
}
