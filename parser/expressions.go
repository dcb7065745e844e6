package parser

import (
	"strconv"

	"github.com/halvard/stencil/ast"
	"github.com/halvard/stencil/lexer"
)

// parseExprTokens parses a full expression out of an isolated token slice
// (the body of a `{{ }}` tag, a `set` right-hand side, a filter argument,
// …), failing if tokens remain after the expression.
func (p *Parser) parseExprTokens(toks []lexer.Token, pos lexer.Position) (ast.Expr, error) {
	s := lexer.NewStream(toks)
	expr, err := p.parseExpr(s)
	if err != nil {
		return nil, err
	}
	if !s.Eof() {
		t := s.Peek()
		return nil, p.errf(ast.Position{Line: t.Line, Column: t.Column}, "unexpected token %q", t.Value)
	}
	return expr, nil
}

func (p *Parser) parseExpr(s *lexer.Stream) (ast.Expr, error) { return p.parseOr(s) }

func (p *Parser) parseOr(s *lexer.Stream) (ast.Expr, error) {
	left, err := p.parseAnd(s)
	if err != nil {
		return nil, err
	}
	for s.IsKeyword("or") {
		s.Next()
		right, err := p.parseAnd(s)
		if err != nil {
			return nil, err
		}
		n := &ast.LogicOp{Op: "or", Left: left, Right: right}
		left = n
	}
	return left, nil
}

func (p *Parser) parseAnd(s *lexer.Stream) (ast.Expr, error) {
	left, err := p.parseNot(s)
	if err != nil {
		return nil, err
	}
	for s.IsKeyword("and") {
		s.Next()
		right, err := p.parseNot(s)
		if err != nil {
			return nil, err
		}
		left = &ast.LogicOp{Op: "and", Left: left, Right: right}
	}
	return left, nil
}

func (p *Parser) parseNot(s *lexer.Stream) (ast.Expr, error) {
	if s.IsKeyword("not") {
		t := s.Next()
		operand, err := p.parseNot(s)
		if err != nil {
			return nil, err
		}
		n := &ast.Not{Operand: operand}
		n.Position = ast.Position{Line: t.Line, Column: t.Column}
		return n, nil
	}
	return p.parseComparison(s)
}

func (p *Parser) parseComparison(s *lexer.Stream) (ast.Expr, error) {
	left, err := p.parseConcat(s)
	if err != nil {
		return nil, err
	}
	t := s.Peek()
	switch {
	case t.Type == lexer.TokenComparison:
		s.Next()
		right, err := p.parseConcat(s)
		if err != nil {
			return nil, err
		}
		return &ast.CompareOp{Op: t.Value, Left: left, Right: right}, nil
	case t.Type == lexer.TokenName && t.Value == "is":
		s.Next()
		negated := false
		if s.IsKeyword("not") {
			s.Next()
			negated = true
		}
		nameTok, err := s.Expect(lexer.TokenName)
		if err != nil {
			return nil, err
		}
		args, err := p.parseOptionalPositionalArgs(s)
		if err != nil {
			return nil, err
		}
		return &ast.TestApply{Target: left, Name: nameTok.Value, Args: args, Negated: negated}, nil
	case t.Type == lexer.TokenName && t.Value == "in":
		s.Next()
		right, err := p.parseConcat(s)
		if err != nil {
			return nil, err
		}
		return &ast.In{Left: left, Right: right}, nil
	case t.Type == lexer.TokenName && t.Value == "not" && s.PeekN(1).Type == lexer.TokenName && s.PeekN(1).Value == "in":
		s.Next()
		s.Next()
		right, err := p.parseConcat(s)
		if err != nil {
			return nil, err
		}
		return &ast.In{Left: left, Right: right, Negated: true}, nil
	}
	return left, nil
}

func (p *Parser) parseConcat(s *lexer.Stream) (ast.Expr, error) {
	left, err := p.parseAdditiveFilter(s)
	if err != nil {
		return nil, err
	}
	if s.Peek().Type != lexer.TokenTilde {
		return left, nil
	}
	parts := []ast.Expr{left}
	for s.Peek().Type == lexer.TokenTilde {
		s.Next()
		part, err := p.parseAdditiveFilter(s)
		if err != nil {
			return nil, err
		}
		parts = append(parts, part)
	}
	return &ast.Concat{Parts: parts}, nil
}

// parseAdditiveFilter implements the single left-associative loop over `+`,
// `-` and filter-pipe `|` together: a filter application binds to whatever
// has been accumulated so far at the moment `|` is reached, so
// `1 + a | length` reads as `(1 + a) | length` while `a | length + 1` reads
// as `(a | length) + 1`.
func (p *Parser) parseAdditiveFilter(s *lexer.Stream) (ast.Expr, error) {
	left, err := p.parseMultiplicative(s)
	if err != nil {
		return nil, err
	}
	for {
		t := s.Peek()
		switch t.Type {
		case lexer.TokenPlus, lexer.TokenMinus:
			s.Next()
			right, err := p.parseMultiplicative(s)
			if err != nil {
				return nil, err
			}
			left = &ast.MathOp{Op: t.Value, Left: left, Right: right}
		case lexer.TokenPipe:
			s.Next()
			nameTok, err := s.Expect(lexer.TokenName)
			if err != nil {
				return nil, err
			}
			args, kwargs, err := p.parseOptionalCallArgs(s)
			if err != nil {
				return nil, err
			}
			left = &ast.FilterApply{Target: left, Name: nameTok.Value, Args: args, Kwargs: kwargs}
		default:
			return left, nil
		}
	}
}

func (p *Parser) parseMultiplicative(s *lexer.Stream) (ast.Expr, error) {
	left, err := p.parseUnary(s)
	if err != nil {
		return nil, err
	}
	for {
		t := s.Peek()
		if t.Type != lexer.TokenStar && t.Type != lexer.TokenSlash && t.Type != lexer.TokenPercent {
			return left, nil
		}
		s.Next()
		right, err := p.parseUnary(s)
		if err != nil {
			return nil, err
		}
		left = &ast.MathOp{Op: t.Value, Left: left, Right: right}
	}
}

func (p *Parser) parseUnary(s *lexer.Stream) (ast.Expr, error) {
	if s.Peek().Type == lexer.TokenMinus {
		t := s.Next()
		operand, err := p.parseUnary(s)
		if err != nil {
			return nil, err
		}
		if lit, ok := operand.(*ast.Literal); ok {
			switch v := lit.Value.(type) {
			case int64:
				lit.Value = -v
				return lit, nil
			case float64:
				lit.Value = -v
				return lit, nil
			}
		}
		zero := &ast.Literal{Value: int64(0)}
		zero.Position = ast.Position{Line: t.Line, Column: t.Column}
		return &ast.MathOp{Op: "-", Left: zero, Right: operand}, nil
	}
	return p.parsePostfix(s)
}

// parsePostfix parses a primary expression followed by any chain of
// `.name`, `.integer` or `[expr]` continuations. Such continuations are
// only legal on a bare identifier root.
func (p *Parser) parsePostfix(s *lexer.Stream) (ast.Expr, error) {
	primary, err := p.parsePrimary(s)
	if err != nil {
		return nil, err
	}
	for {
		t := s.Peek()
		var step ast.PathStep
		switch t.Type {
		case lexer.TokenDot:
			s.Next()
			nt := s.Next()
			switch nt.Type {
			case lexer.TokenName:
				step = ast.NamedField(nt.Value)
			case lexer.TokenInt:
				n, err := strconv.ParseInt(nt.Value, 10, 64)
				if err != nil {
					return nil, p.errf(ast.Position{Line: nt.Line, Column: nt.Column}, "invalid index %q", nt.Value)
				}
				step = ast.IndexField(&ast.Literal{Value: n})
			default:
				return nil, p.errf(ast.Position{Line: nt.Line, Column: nt.Column}, "expected field name or index after '.'")
			}
		case lexer.TokenLBracket:
			s.Next()
			idxExpr, err := p.parseExpr(s)
			if err != nil {
				return nil, err
			}
			if _, err := s.Expect(lexer.TokenRBracket); err != nil {
				return nil, err
			}
			step = ast.IndexField(idxExpr)
		default:
			return primary, nil
		}
		ident, ok := primary.(*ast.Identifier)
		if !ok {
			return nil, p.errf(ast.Position{Line: t.Line, Column: t.Column}, "field/index access is only valid on a variable")
		}
		ident.Steps = append(ident.Steps, step)
	}
}

func (p *Parser) parsePrimary(s *lexer.Stream) (ast.Expr, error) {
	t := s.Next()
	switch t.Type {
	case lexer.TokenString:
		lit := &ast.Literal{Value: t.Value}
		lit.Position = ast.Position{Line: t.Line, Column: t.Column}
		return lit, nil
	case lexer.TokenInt:
		n, err := strconv.ParseInt(t.Value, 10, 64)
		if err != nil {
			return nil, p.errf(ast.Position{Line: t.Line, Column: t.Column}, "integer literal %q out of range", t.Value)
		}
		lit := &ast.Literal{Value: n}
		lit.Position = ast.Position{Line: t.Line, Column: t.Column}
		return lit, nil
	case lexer.TokenFloat:
		f, err := strconv.ParseFloat(t.Value, 64)
		if err != nil {
			return nil, p.errf(ast.Position{Line: t.Line, Column: t.Column}, "float literal %q out of range", t.Value)
		}
		lit := &ast.Literal{Value: f}
		lit.Position = ast.Position{Line: t.Line, Column: t.Column}
		return lit, nil
	case lexer.TokenLParen:
		inner, err := p.parseExpr(s)
		if err != nil {
			return nil, err
		}
		if _, err := s.Expect(lexer.TokenRParen); err != nil {
			return nil, err
		}
		return inner, nil
	case lexer.TokenLBracket:
		return p.parseArrayLit(s, t)
	case lexer.TokenName:
		return p.parseNamePrimary(s, t)
	}
	return nil, p.errf(ast.Position{Line: t.Line, Column: t.Column}, "unexpected token %q in expression", t.Value)
}

func (p *Parser) parseArrayLit(s *lexer.Stream, open lexer.Token) (ast.Expr, error) {
	arr := &ast.ArrayLit{}
	arr.Position = ast.Position{Line: open.Line, Column: open.Column}
	if s.Peek().Type == lexer.TokenRBracket {
		s.Next()
		return arr, nil
	}
	for {
		item, err := p.parseExpr(s)
		if err != nil {
			return nil, err
		}
		arr.Items = append(arr.Items, item)
		if s.Peek().Type == lexer.TokenComma {
			s.Next()
			if s.Peek().Type == lexer.TokenRBracket {
				break
			}
			continue
		}
		break
	}
	if _, err := s.Expect(lexer.TokenRBracket); err != nil {
		return nil, err
	}
	return arr, nil
}

func (p *Parser) parseNamePrimary(s *lexer.Stream, t lexer.Token) (ast.Expr, error) {
	pos := ast.Position{Line: t.Line, Column: t.Column}
	switch t.Value {
	case "true":
		lit := &ast.Literal{Value: true}
		lit.Position = pos
		return lit, nil
	case "false":
		lit := &ast.Literal{Value: false}
		lit.Position = pos
		return lit, nil
	case "null", "none":
		lit := &ast.Literal{Value: nil}
		lit.Position = pos
		return lit, nil
	}
	if s.Peek().Type == lexer.TokenColonColon {
		s.Next()
		nameTok, err := s.Expect(lexer.TokenName)
		if err != nil {
			return nil, err
		}
		if _, err := s.Expect(lexer.TokenLParen); err != nil {
			return nil, err
		}
		kwargs, err := p.parseKwargs(s)
		if err != nil {
			return nil, err
		}
		mc := &ast.MacroCall{Namespace: t.Value, Name: nameTok.Value, Kwargs: kwargs}
		mc.Position = pos
		return mc, nil
	}
	if s.Peek().Type == lexer.TokenLParen {
		s.Next()
		kwargs, err := p.parseKwargs(s)
		if err != nil {
			return nil, err
		}
		fc := &ast.FunctionCall{Name: t.Value, Kwargs: kwargs}
		fc.Position = pos
		return fc, nil
	}
	ident := &ast.Identifier{Name: t.Value}
	ident.Position = pos
	return ident, nil
}

// parseKwargs parses a `name=expr (, name=expr)* ,?` list up to and
// including the closing `)`. The opening `(` must already be consumed.
func (p *Parser) parseKwargs(s *lexer.Stream) ([]ast.KwArg, error) {
	var out []ast.KwArg
	if s.Peek().Type == lexer.TokenRParen {
		s.Next()
		return out, nil
	}
	for {
		nameTok, err := s.Expect(lexer.TokenName)
		if err != nil {
			return nil, err
		}
		if _, err := s.Expect(lexer.TokenAssign); err != nil {
			return nil, err
		}
		val, err := p.parseExpr(s)
		if err != nil {
			return nil, err
		}
		out = append(out, ast.KwArg{Name: nameTok.Value, Value: val})
		if s.Peek().Type == lexer.TokenComma {
			s.Next()
			if s.Peek().Type == lexer.TokenRParen {
				break
			}
			continue
		}
		break
	}
	if _, err := s.Expect(lexer.TokenRParen); err != nil {
		return nil, err
	}
	return out, nil
}

// parseOptionalPositionalArgs parses an optional `(expr, expr, …)` argument
// list used by tests: `is divisibleby(2)`. Absence of parens means no args.
func (p *Parser) parseOptionalPositionalArgs(s *lexer.Stream) ([]ast.Expr, error) {
	if s.Peek().Type != lexer.TokenLParen {
		return nil, nil
	}
	s.Next()
	var out []ast.Expr
	if s.Peek().Type == lexer.TokenRParen {
		s.Next()
		return out, nil
	}
	for {
		arg, err := p.parseExpr(s)
		if err != nil {
			return nil, err
		}
		out = append(out, arg)
		if s.Peek().Type == lexer.TokenComma {
			s.Next()
			if s.Peek().Type == lexer.TokenRParen {
				break
			}
			continue
		}
		break
	}
	if _, err := s.Expect(lexer.TokenRParen); err != nil {
		return nil, err
	}
	return out, nil
}

// parseOptionalCallArgs parses an optional `(arg, arg, name=expr, …)` list
// used by filters, which accept both positional and keyword arguments.
// Absence of parens means no args.
func (p *Parser) parseOptionalCallArgs(s *lexer.Stream) ([]ast.Expr, []ast.KwArg, error) {
	if s.Peek().Type != lexer.TokenLParen {
		return nil, nil, nil
	}
	s.Next()
	var args []ast.Expr
	var kwargs []ast.KwArg
	if s.Peek().Type == lexer.TokenRParen {
		s.Next()
		return args, kwargs, nil
	}
	for {
		if s.Peek().Type == lexer.TokenName && s.PeekN(1).Type == lexer.TokenAssign {
			nameTok := s.Next()
			s.Next()
			val, err := p.parseExpr(s)
			if err != nil {
				return nil, nil, err
			}
			kwargs = append(kwargs, ast.KwArg{Name: nameTok.Value, Value: val})
		} else {
			val, err := p.parseExpr(s)
			if err != nil {
				return nil, nil, err
			}
			args = append(args, val)
		}
		if s.Peek().Type == lexer.TokenComma {
			s.Next()
			if s.Peek().Type == lexer.TokenRParen {
				break
			}
			continue
		}
		break
	}
	if _, err := s.Expect(lexer.TokenRParen); err != nil {
		return nil, nil, err
	}
	return args, kwargs, nil
}
