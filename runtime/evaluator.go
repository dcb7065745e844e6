package runtime

import (
	"github.com/halvard/stencil/ast"
	"github.com/halvard/stencil/value"
)

// evalTop evaluates e and additionally reports whether its result should
// bypass autoescaping: true only when e is, at its own top level, an
// explicit `| safe` filter or a filter/function registered as safe.
// Safety does not propagate through a later non-safe filter in the same
// chain, since FilterApply nests left-to-right and only the outermost
// node is inspected here.
func (st *state) evalTop(e ast.Expr, frame *Scope, ns *nsCtx) (value.Value, bool, error) {
	val, err := st.evalExpr(e, frame, ns)
	if err != nil {
		return value.Null, false, err
	}
	switch n := e.(type) {
	case *ast.FilterApply:
		if n.Name == "safe" {
			return val, true, nil
		}
		if entry, ok := st.renderer.Ext.GetFilter(n.Name); ok {
			return val, entry.Safe, nil
		}
	case *ast.FunctionCall:
		if entry, ok := st.renderer.Ext.GetFunction(n.Name); ok {
			return val, entry.Safe, nil
		}
	}
	return val, false, nil
}

// evalTruthy evaluates e for use as a condition: an UndefinedVariable
// failure is treated as falsy rather than propagated, since a condition
// site is expected to tolerate a missing variable where a plain
// expression site is not.
func (st *state) evalTruthy(e ast.Expr, frame *Scope, ns *nsCtx) (bool, error) {
	val, err := st.evalExpr(e, frame, ns)
	if err != nil {
		if isUndefinedErr(err) {
			return false, nil
		}
		return false, err
	}
	return val.Truthy(), nil
}

func (st *state) evalExpr(e ast.Expr, frame *Scope, ns *nsCtx) (value.Value, error) {
	switch n := e.(type) {
	case *ast.Literal:
		return literalValue(n.Value), nil
	case *ast.Identifier:
		return st.evalIdentifier(n, frame, ns)
	case *ast.ArrayLit:
		items := make([]value.Value, len(n.Items))
		for i, it := range n.Items {
			v, err := st.evalExpr(it, frame, ns)
			if err != nil {
				return value.Null, err
			}
			items[i] = v
		}
		return value.Array(items), nil
	case *ast.MathOp:
		return st.evalMathOp(n, frame, ns)
	case *ast.LogicOp:
		return st.evalLogicOp(n, frame, ns)
	case *ast.CompareOp:
		return st.evalCompareOp(n, frame, ns)
	case *ast.In:
		return st.evalIn(n, frame, ns)
	case *ast.Not:
		ok, err := st.evalTruthy(n.Operand, frame, ns)
		if err != nil {
			return value.Null, err
		}
		return value.Bool(!ok), nil
	case *ast.Concat:
		parts := make([]value.Value, len(n.Parts))
		for i, p := range n.Parts {
			v, err := st.evalExpr(p, frame, ns)
			if err != nil {
				return value.Null, err
			}
			parts[i] = v
		}
		out, err := value.Concat(parts)
		if err != nil {
			return value.Null, newError(KindTypeError, err, "%s", err.Error())
		}
		return out, nil
	case *ast.FilterApply:
		return st.evalFilterApply(n, frame, ns)
	case *ast.TestApply:
		return st.evalTestApply(n, frame, ns)
	case *ast.FunctionCall:
		return st.evalFunctionCall(n, frame, ns)
	case *ast.MacroCall:
		return st.evalMacroCall(n, frame, ns)
	default:
		return value.Null, newError(KindRenderError, nil, "unhandled expression node %T", e)
	}
}

func literalValue(v any) value.Value {
	switch t := v.(type) {
	case string:
		return value.String(t)
	case int64:
		return value.Int(t)
	case float64:
		return value.Float(t)
	case bool:
		return value.Bool(t)
	default:
		return value.Null
	}
}

func (st *state) evalIdentifier(n *ast.Identifier, frame *Scope, ns *nsCtx) (value.Value, error) {
	if n.Name == "__tera_context" && len(n.Steps) == 0 {
		return value.String(frame.debugDump()), nil
	}
	root, ok := frame.Lookup(n.Name)
	if !ok {
		return value.Null, newError(KindUndefinedVariable, nil, "%s is undefined", n.Name)
	}
	cur := root
	for _, step := range n.Steps {
		var vstep value.Step
		switch step.Kind {
		case ast.StepNamed:
			vstep = value.NamedField(step.Name)
		case ast.StepIndex:
			idx, err := st.evalExpr(step.Index, frame, ns)
			if err != nil {
				return value.Null, err
			}
			vstep = value.IndexField(idx)
		}
		next, err := value.Lookup(cur, value.Path{vstep})
		if err != nil {
			return value.Null, newError(KindUndefinedVariable, err, "%s", err.Error())
		}
		cur = next
	}
	return cur, nil
}

func (st *state) evalMathOp(n *ast.MathOp, frame *Scope, ns *nsCtx) (value.Value, error) {
	l, err := st.evalExpr(n.Left, frame, ns)
	if err != nil {
		return value.Null, err
	}
	r, err := st.evalExpr(n.Right, frame, ns)
	if err != nil {
		return value.Null, err
	}
	var out value.Value
	switch n.Op {
	case "+":
		out, err = value.Add(l, r)
	case "-":
		out, err = value.Sub(l, r)
	case "*":
		out, err = value.Mul(l, r)
	case "/":
		out, err = value.Div(l, r)
	case "%":
		out, err = value.Mod(l, r)
	default:
		return value.Null, newError(KindTypeError, nil, "unknown operator %q", n.Op)
	}
	if err != nil {
		return value.Null, newError(KindArithmeticError, err, "%s", err.Error())
	}
	return out, nil
}

func (st *state) evalLogicOp(n *ast.LogicOp, frame *Scope, ns *nsCtx) (value.Value, error) {
	l, err := st.evalTruthy(n.Left, frame, ns)
	if err != nil {
		return value.Null, err
	}
	if n.Op == "and" && !l {
		return value.Bool(false), nil
	}
	if n.Op == "or" && l {
		return value.Bool(true), nil
	}
	r, err := st.evalTruthy(n.Right, frame, ns)
	if err != nil {
		return value.Null, err
	}
	return value.Bool(r), nil
}

func (st *state) evalCompareOp(n *ast.CompareOp, frame *Scope, ns *nsCtx) (value.Value, error) {
	l, err := st.evalExpr(n.Left, frame, ns)
	if err != nil {
		return value.Null, err
	}
	r, err := st.evalExpr(n.Right, frame, ns)
	if err != nil {
		return value.Null, err
	}
	if n.Op == "==" {
		return value.Bool(value.Equal(l, r)), nil
	}
	if n.Op == "!=" {
		return value.Bool(!value.Equal(l, r)), nil
	}
	cmp, ok := value.Compare(l, r)
	if !ok {
		return value.Null, newError(KindTypeError, nil, "cannot compare %s and %s", l.Kind(), r.Kind())
	}
	switch n.Op {
	case ">":
		return value.Bool(cmp > 0), nil
	case "<":
		return value.Bool(cmp < 0), nil
	case ">=":
		return value.Bool(cmp >= 0), nil
	case "<=":
		return value.Bool(cmp <= 0), nil
	default:
		return value.Null, newError(KindTypeError, nil, "unknown comparison operator %q", n.Op)
	}
}

func (st *state) evalIn(n *ast.In, frame *Scope, ns *nsCtx) (value.Value, error) {
	l, err := st.evalExpr(n.Left, frame, ns)
	if err != nil {
		return value.Null, err
	}
	r, err := st.evalExpr(n.Right, frame, ns)
	if err != nil {
		return value.Null, err
	}
	has, err := value.Contains(r, l)
	if err != nil {
		return value.Null, newError(KindTypeError, err, "%s", err.Error())
	}
	if n.Negated {
		has = !has
	}
	return value.Bool(has), nil
}

// evalFilterApply special-cases `safe` (identity passthrough) and `default`
// (recovers from an undefined/null target) before falling back to a
// registered filter lookup.
func (st *state) evalFilterApply(n *ast.FilterApply, frame *Scope, ns *nsCtx) (value.Value, error) {
	if n.Name == "safe" {
		return st.evalExpr(n.Target, frame, ns)
	}
	if n.Name == "default" {
		target, err := st.evalExpr(n.Target, frame, ns)
		if err != nil {
			if !isUndefinedErr(err) {
				return value.Null, err
			}
			target = value.Null
		}
		if !target.IsNull() {
			return target, nil
		}
		if len(n.Args) > 0 {
			return st.evalExpr(n.Args[0], frame, ns)
		}
		for _, kw := range n.Kwargs {
			if kw.Name == "value" {
				return st.evalExpr(kw.Value, frame, ns)
			}
		}
		return value.Null, nil
	}

	target, err := st.evalExpr(n.Target, frame, ns)
	if err != nil {
		return value.Null, err
	}
	entry, ok := st.renderer.Ext.GetFilter(n.Name)
	if !ok {
		return value.Null, newError(KindRenderError, nil, "unknown filter %q", n.Name)
	}
	args := make([]value.Value, len(n.Args))
	for i, a := range n.Args {
		v, err := st.evalExpr(a, frame, ns)
		if err != nil {
			return value.Null, err
		}
		args[i] = v
	}
	kwargs, err := st.evalKwargs(n.Kwargs, frame, ns)
	if err != nil {
		return value.Null, err
	}
	out, err := entry.Fn(target, args, kwargs)
	if err != nil {
		if re, ok := err.(*Error); ok {
			return value.Null, re
		}
		return value.Null, newError(KindUserError, err, "filter %q failed", n.Name)
	}
	return out, nil
}

// evalTestApply evaluates Target leniently so `is defined`/`is undefined`
// can observe an undefined variable without the evaluation itself failing;
// every other test requires a defined target and errors otherwise.
func (st *state) evalTestApply(n *ast.TestApply, frame *Scope, ns *nsCtx) (value.Value, error) {
	target, err := st.evalExpr(n.Target, frame, ns)
	undefined := false
	if err != nil {
		if !isUndefinedErr(err) {
			return value.Null, err
		}
		undefined = true
		target = value.Null
	}

	var result bool
	switch n.Name {
	case "defined":
		result = !undefined
	case "undefined":
		result = undefined
	default:
		if undefined {
			return value.Null, newError(KindUndefinedVariable, nil, "cannot test undefined value with %q", n.Name)
		}
		fn, ok := st.renderer.Ext.GetTest(n.Name)
		if !ok {
			return value.Null, newError(KindRenderError, nil, "unknown test %q", n.Name)
		}
		args := make([]value.Value, len(n.Args))
		for i, a := range n.Args {
			v, err := st.evalExpr(a, frame, ns)
			if err != nil {
				return value.Null, err
			}
			args[i] = v
		}
		result, err = fn(target, args)
		if err != nil {
			if re, ok := err.(*Error); ok {
				return value.Null, re
			}
			return value.Null, newError(KindUserError, err, "test %q failed", n.Name)
		}
	}
	if n.Negated {
		result = !result
	}
	return value.Bool(result), nil
}

func (st *state) evalFunctionCall(n *ast.FunctionCall, frame *Scope, ns *nsCtx) (value.Value, error) {
	if n.Name == "super" {
		return st.renderSuper(frame)
	}
	kwargs, err := st.evalKwargs(n.Kwargs, frame, ns)
	if err != nil {
		return value.Null, err
	}
	entry, ok := st.renderer.Ext.GetFunction(n.Name)
	if !ok {
		return value.Null, newError(KindRenderError, nil, "unknown function %q", n.Name)
	}
	out, err := entry.Fn(kwargs)
	if err != nil {
		if re, ok := err.(*Error); ok {
			return value.Null, re
		}
		return value.Null, newError(KindUserError, err, "function %q failed", n.Name)
	}
	return out, nil
}

func (st *state) evalMacroCall(n *ast.MacroCall, frame *Scope, ns *nsCtx) (value.Value, error) {
	var macro *ast.MacroDef
	var owner string
	if n.Namespace == "self" {
		macro = ns.selfMacros[n.Name]
		owner = ns.owner
	} else {
		target, ok := ns.imports[n.Namespace]
		if !ok {
			return value.Null, newError(KindRenderError, nil, "unknown macro namespace %q", n.Namespace)
		}
		ct, ok := st.resolver.Resolve(target)
		if !ok {
			return value.Null, newError(KindRegistryError, nil, "imported template %q is not registered", target)
		}
		macro = ct.AST.Macros[n.Name]
		owner = target
	}
	if macro == nil {
		return value.Null, newError(KindRenderError, nil, "unknown macro %q::%q", n.Namespace, n.Name)
	}

	if st.renderer.MaxMacroDepth > 0 && st.macroDepth >= st.renderer.MaxMacroDepth {
		return value.Null, newError(KindRenderError, nil, "macro recursion depth exceeded calling %q::%q", n.Namespace, n.Name)
	}

	kwargs, err := st.evalKwargs(n.Kwargs, frame, ns)
	if err != nil {
		return value.Null, err
	}
	known := make(map[string]bool, len(macro.Params))
	for _, p := range macro.Params {
		known[p.Name] = true
	}
	for name := range kwargs {
		if !known[name] {
			return value.Null, newError(KindUnknownArgument, nil, "unknown argument %q for macro %q", name, n.Name)
		}
	}

	macroFrame := pushMacroFrame()
	for _, p := range macro.Params {
		if v, ok := kwargs[p.Name]; ok {
			macroFrame.Set(p.Name, v)
			continue
		}
		if p.Default != nil {
			v, err := st.evalExpr(p.Default, macroFrame, ns)
			if err != nil {
				return value.Null, err
			}
			macroFrame.Set(p.Name, v)
			continue
		}
		macroFrame.Set(p.Name, value.Null)
	}

	ct, ok := st.resolver.Resolve(owner)
	if !ok {
		return value.Null, newError(KindRegistryError, nil, "macro owner %q is not registered", owner)
	}
	macroNS := &nsCtx{owner: owner, imports: ct.AST.Imports, selfMacros: ct.AST.Macros}

	st.macroDepth++
	out, err := st.renderToString(macro.Body, macroFrame, macroNS)
	st.macroDepth--
	if err != nil {
		return value.Null, err
	}
	return value.String(out), nil
}
