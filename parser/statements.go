package parser

import (
	"github.com/halvard/stencil/ast"
	"github.com/halvard/stencil/lexer"
)

// parseBlockTag consumes the current `{% … %}` segment (already known not
// to be a terminator the caller is waiting for) and produces its Stmt,
// recursively consuming any nested body and its own terminating tag.
func (p *Parser) parseBlockTag(c *segCursor) (ast.Stmt, error) {
	seg := c.next()
	kw := blockKeyword(seg)
	pos := toPos(seg.Pos)
	switch kw {
	case "if":
		return p.parseIf(c, seg, pos)
	case "for":
		return p.parseFor(c, seg, pos)
	case "set", "set_global":
		return p.parseSet(seg, pos, kw == "set_global")
	case "block":
		return p.parseBlock(c, seg, pos)
	case "extends":
		if p.nestedDepth > 0 {
			return nil, p.errf(pos, "'extends' is not allowed inside a block, macro, for or if body")
		}
		return p.parseExtends(seg, pos)
	case "include":
		return p.parseInclude(seg, pos)
	case "import":
		return p.parseImport(seg, pos)
	case "macro":
		return p.parseMacro(c, seg, pos)
	case "filter":
		return p.parseFilterSection(c, seg, pos)
	case "raw":
		return p.parseRaw(c, seg, pos)
	case "break":
		if p.inFor == 0 {
			return nil, p.errf(pos, "'break' is only legal inside a for loop")
		}
		st := &ast.Break{}
		st.Position = pos
		return st, nil
	case "continue":
		if p.inFor == 0 {
			return nil, p.errf(pos, "'continue' is only legal inside a for loop")
		}
		st := &ast.Continue{}
		st.Position = pos
		return st, nil
	default:
		return nil, p.errf(pos, "unknown tag %q", kw)
	}
}

func (p *Parser) parseTagExpr(seg lexer.Segment, skip int) (ast.Expr, error) {
	toks := seg.Tokens[skip:]
	return p.parseExprTokens(toks, seg.Pos)
}

func (p *Parser) parseIf(c *segCursor, seg lexer.Segment, pos ast.Position) (ast.Stmt, error) {
	cond, err := p.parseTagExpr(seg, 1)
	if err != nil {
		return nil, err
	}
	node := &ast.If{}
	node.Position = pos
	p.nestedDepth++
	body, err := p.parseBody(c, "elif", "else", "endif")
	p.nestedDepth--
	if err != nil {
		return nil, err
	}
	node.Branches = append(node.Branches, ast.IfBranch{Cond: cond, Body: body})
	for {
		if c.eof() {
			return nil, p.errf(pos, "unterminated 'if': expected 'endif'")
		}
		tagSeg := c.next()
		switch blockKeyword(tagSeg) {
		case "elif":
			elifCond, err := p.parseTagExpr(tagSeg, 1)
			if err != nil {
				return nil, err
			}
			p.nestedDepth++
			elifBody, err := p.parseBody(c, "elif", "else", "endif")
			p.nestedDepth--
			if err != nil {
				return nil, err
			}
			node.Branches = append(node.Branches, ast.IfBranch{Cond: elifCond, Body: elifBody})
		case "else":
			p.nestedDepth++
			elseBody, err := p.parseBody(c, "endif")
			p.nestedDepth--
			if err != nil {
				return nil, err
			}
			node.Else = elseBody
			if c.eof() {
				return nil, p.errf(pos, "unterminated 'if': expected 'endif'")
			}
			c.next() // consume endif
			return node, nil
		case "endif":
			return node, nil
		}
	}
}

func (p *Parser) parseFor(c *segCursor, seg lexer.Segment, pos ast.Position) (ast.Stmt, error) {
	toks := seg.Tokens[1:]
	if len(toks) == 0 || toks[0].Type != lexer.TokenName {
		return nil, p.errf(pos, "expected loop variable after 'for'")
	}
	name1 := toks[0].Value
	rest := toks[1:]
	var keyVar, valueVar string
	if len(rest) > 0 && rest[0].Type == lexer.TokenComma {
		if len(rest) < 2 || rest[1].Type != lexer.TokenName {
			return nil, p.errf(pos, "expected second loop variable after ','")
		}
		keyVar = name1
		valueVar = rest[1].Value
		rest = rest[2:]
	} else {
		valueVar = name1
	}
	if len(rest) == 0 || rest[0].Type != lexer.TokenName || rest[0].Value != "in" {
		return nil, p.errf(pos, "expected 'in' in 'for' statement")
	}
	rest = rest[1:]
	container, err := p.parseExprTokens(rest, seg.Pos)
	if err != nil {
		return nil, err
	}
	node := &ast.For{KeyVar: keyVar, ValueVar: valueVar, Container: container}
	node.Position = pos
	p.inFor++
	p.nestedDepth++
	body, err := p.parseBody(c, "else", "endfor")
	p.nestedDepth--
	p.inFor--
	if err != nil {
		return nil, err
	}
	node.Body = body
	if c.eof() {
		return nil, p.errf(pos, "unterminated 'for': expected 'endfor'")
	}
	tagSeg := c.next()
	if blockKeyword(tagSeg) == "else" {
		p.nestedDepth++
		elseBody, err := p.parseBody(c, "endfor")
		p.nestedDepth--
		if err != nil {
			return nil, err
		}
		node.Else = elseBody
		if c.eof() {
			return nil, p.errf(pos, "unterminated 'for': expected 'endfor'")
		}
		c.next() // consume endfor
	}
	return node, nil
}

func (p *Parser) parseSet(seg lexer.Segment, pos ast.Position, global bool) (ast.Stmt, error) {
	toks := seg.Tokens[1:]
	if len(toks) == 0 || toks[0].Type != lexer.TokenName {
		return nil, p.errf(pos, "expected variable name after 'set'")
	}
	name := toks[0].Value
	rest := toks[1:]
	if len(rest) == 0 || rest[0].Type != lexer.TokenAssign {
		return nil, p.errf(pos, "expected '=' in 'set' statement")
	}
	value, err := p.parseExprTokens(rest[1:], seg.Pos)
	if err != nil {
		return nil, err
	}
	node := &ast.Set{Name: name, Value: value, Global: global}
	node.Position = pos
	return node, nil
}

func (p *Parser) parseBlock(c *segCursor, seg lexer.Segment, pos ast.Position) (ast.Stmt, error) {
	toks := seg.Tokens[1:]
	if len(toks) == 0 || toks[0].Type != lexer.TokenName {
		return nil, p.errf(pos, "expected block name after 'block'")
	}
	name := toks[0].Value
	p.nestedDepth++
	body, err := p.parseBody(c, "endblock")
	p.nestedDepth--
	if err != nil {
		return nil, err
	}
	if c.eof() {
		return nil, p.errf(pos, "unterminated 'block': expected 'endblock'")
	}
	c.next() // consume endblock
	node := &ast.Block{Name: name, Body: body}
	node.Position = pos
	return node, nil
}

func (p *Parser) parseExtends(seg lexer.Segment, pos ast.Position) (ast.Stmt, error) {
	toks := seg.Tokens[1:]
	if len(toks) != 1 || toks[0].Type != lexer.TokenString {
		return nil, p.errf(pos, "'extends' requires a single string literal")
	}
	node := &ast.Extends{Name: toks[0].Value}
	node.Position = pos
	return node, nil
}

func (p *Parser) parseInclude(seg lexer.Segment, pos ast.Position) (ast.Stmt, error) {
	toks := seg.Tokens[1:]
	var names []string
	if len(toks) == 0 {
		return nil, p.errf(pos, "'include' requires a template name or array of names")
	}
	i := 0
	if toks[0].Type == lexer.TokenString {
		names = append(names, toks[0].Value)
		i = 1
	} else if toks[0].Type == lexer.TokenLBracket {
		i = 1
		for i < len(toks) && toks[i].Type != lexer.TokenRBracket {
			if toks[i].Type == lexer.TokenString {
				names = append(names, toks[i].Value)
				i++
			}
			if i < len(toks) && toks[i].Type == lexer.TokenComma {
				i++
			}
		}
		if i >= len(toks) || toks[i].Type != lexer.TokenRBracket {
			return nil, p.errf(pos, "unterminated array literal in 'include'")
		}
		i++
	} else {
		return nil, p.errf(pos, "'include' requires a template name or array of names")
	}
	ignoreMissing := false
	if i+1 < len(toks) && toks[i].Type == lexer.TokenName && toks[i].Value == "ignore" &&
		toks[i+1].Type == lexer.TokenName && toks[i+1].Value == "missing" {
		ignoreMissing = true
	}
	node := &ast.Include{Names: names, IgnoreMissing: ignoreMissing}
	node.Position = pos
	return node, nil
}

func (p *Parser) parseImport(seg lexer.Segment, pos ast.Position) (ast.Stmt, error) {
	toks := seg.Tokens[1:]
	if len(toks) < 3 || toks[0].Type != lexer.TokenString || toks[1].Type != lexer.TokenName ||
		toks[1].Value != "as" || toks[2].Type != lexer.TokenName {
		return nil, p.errf(pos, "expected `import \"path\" as name`")
	}
	node := &ast.Import{Path: toks[0].Value, Namespace: toks[2].Value}
	node.Position = pos
	return node, nil
}

func (p *Parser) parseMacro(c *segCursor, seg lexer.Segment, pos ast.Position) (ast.Stmt, error) {
	if p.nestedDepth > 0 {
		return nil, p.errf(pos, "macro definitions are only legal at template top level")
	}
	toks := seg.Tokens[1:]
	if len(toks) == 0 || toks[0].Type != lexer.TokenName {
		return nil, p.errf(pos, "expected macro name after 'macro'")
	}
	name := toks[0].Value
	rest := toks[1:]
	if len(rest) == 0 || rest[0].Type != lexer.TokenLParen {
		return nil, p.errf(pos, "expected '(' after macro name")
	}
	rest = rest[1:]
	var params []ast.MacroParam
	for len(rest) > 0 && rest[0].Type != lexer.TokenRParen {
		if rest[0].Type != lexer.TokenName {
			return nil, p.errf(pos, "expected parameter name")
		}
		param := ast.MacroParam{Name: rest[0].Value}
		rest = rest[1:]
		if len(rest) > 0 && rest[0].Type == lexer.TokenAssign {
			rest = rest[1:]
			end := findTokenBoundary(rest)
			defExpr, err := p.parseExprTokens(rest[:end], seg.Pos)
			if err != nil {
				return nil, err
			}
			param.Default = defExpr
			rest = rest[end:]
		}
		params = append(params, param)
		if len(rest) > 0 && rest[0].Type == lexer.TokenComma {
			rest = rest[1:]
		}
	}
	p.inMacro = true
	p.nestedDepth++
	body, err := p.parseBody(c, "endmacro")
	p.nestedDepth--
	p.inMacro = false
	if err != nil {
		return nil, err
	}
	if c.eof() {
		return nil, p.errf(pos, "unterminated 'macro': expected 'endmacro'")
	}
	c.next() // consume endmacro
	node := &ast.MacroDef{Name: name, Params: params, Body: body}
	node.Position = pos
	return node, nil
}

// findTokenBoundary returns the index of the next top-level ',' or the
// closing ')' (not nested inside parens/brackets) in toks, used to isolate
// a single default-value expression inside a macro parameter list.
func findTokenBoundary(toks []lexer.Token) int {
	depth := 0
	for i, t := range toks {
		switch t.Type {
		case lexer.TokenLParen, lexer.TokenLBracket:
			depth++
		case lexer.TokenRParen, lexer.TokenRBracket:
			if depth == 0 {
				return i
			}
			depth--
		case lexer.TokenComma:
			if depth == 0 {
				return i
			}
		}
	}
	return len(toks)
}

func (p *Parser) parseFilterSection(c *segCursor, seg lexer.Segment, pos ast.Position) (ast.Stmt, error) {
	toks := seg.Tokens[1:]
	if len(toks) == 0 || toks[0].Type != lexer.TokenName {
		return nil, p.errf(pos, "expected filter name after 'filter'")
	}
	name := toks[0].Value
	rest := toks[1:]
	var kwargs []ast.KwArg
	if len(rest) > 0 && rest[0].Type == lexer.TokenLParen {
		s := lexer.NewStream(rest[1:])
		var err error
		kwargs, err = p.parseKwargs(s)
		if err != nil {
			return nil, err
		}
	}
	body, err := p.parseBody(c, "endfilter")
	if err != nil {
		return nil, err
	}
	if c.eof() {
		return nil, p.errf(pos, "unterminated 'filter': expected 'endfilter'")
	}
	c.next() // consume endfilter
	node := &ast.FilterSection{Name: name, Kwargs: kwargs, Body: body}
	node.Position = pos
	return node, nil
}

func (p *Parser) parseRaw(c *segCursor, seg lexer.Segment, pos ast.Position) (ast.Stmt, error) {
	if c.eof() || c.peek().Kind != lexer.SegRaw {
		node := &ast.Raw{}
		node.Position = pos
		return node, nil
	}
	body := c.next()
	if !c.eof() && c.peek().Kind == lexer.SegBlock && blockKeyword(c.peek()) == "endraw" {
		c.next()
	}
	node := &ast.Raw{Bytes: body.Bytes}
	node.Position = pos
	return node, nil
}

// finishTemplate builds the Template wrapper from a parsed top-level body,
// collecting macros, imports and blocks from anywhere in the tree and
// validating the 'extends' placement rule.
func (p *Parser) finishTemplate(body []ast.Stmt) (*ast.Template, error) {
	tmpl := &ast.Template{
		Name:    p.name,
		Body:    body,
		Imports: map[string]string{},
		Macros:  map[string]*ast.MacroDef{},
		Blocks:  map[string][]ast.Stmt{},
	}
	sawNonWhitespace := false
	for _, stmt := range body {
		if ext, ok := stmt.(*ast.Extends); ok {
			if sawNonWhitespace {
				return nil, p.errf(ext.Pos(), "'extends' must be the first statement in the template")
			}
			if tmpl.HasParent {
				return nil, p.errf(ext.Pos(), "a template may have at most one 'extends'")
			}
			tmpl.HasParent = true
			tmpl.ParentName = ext.Name
			continue
		}
		if text, ok := stmt.(*ast.Text); ok && isBlankBytes(text.Bytes) {
			continue
		}
		sawNonWhitespace = true
	}
	for _, stmt := range body {
		ast.Walk(stmt, func(n ast.Node) bool {
			switch v := n.(type) {
			case *ast.Import:
				tmpl.Imports[v.Namespace] = v.Path
			case *ast.MacroDef:
				tmpl.Macros[v.Name] = v
			case *ast.Block:
				tmpl.Blocks[v.Name] = append(tmpl.Blocks[v.Name], v)
			}
			return true
		})
	}
	return tmpl, nil
}

func isBlankBytes(b []byte) bool {
	for _, c := range b {
		if c != ' ' && c != '\t' && c != '\r' && c != '\n' {
			return false
		}
	}
	return true
}
