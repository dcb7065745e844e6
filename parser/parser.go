// Package parser builds an *ast.Template from a token stream produced by
// the lexer: a hand-written recursive-descent / precedence-climbing parser
// organized as a Parser struct plus methods, rather than a grammar table.
package parser

import (
	"fmt"

	"github.com/halvard/stencil/ast"
	"github.com/halvard/stencil/lexer"
)

// SyntaxError is a parse failure with source position and template name.
type SyntaxError struct {
	Message  string
	Line     int
	Column   int
	Name     string
}

func (e *SyntaxError) Error() string {
	if e.Name != "" {
		return fmt.Sprintf("%s at %d:%d in %q", e.Message, e.Line, e.Column, e.Name)
	}
	return fmt.Sprintf("%s at %d:%d", e.Message, e.Line, e.Column)
}

// Parser holds the state for one template parse.
type Parser struct {
	name        string
	stream      *lexer.Stream
	tagStack    []string
	inMacro     bool
	inFor       int
	nestedDepth int // >0 while parsing a block/macro/for/if body; 'extends' is rejected there
}

// Parse scans and parses src into a Template named name.
func Parse(name, src string) (*ast.Template, error) {
	segments, err := lexer.Scan(src)
	if err != nil {
		if le, ok := err.(*lexer.Error); ok {
			return nil, &SyntaxError{Message: le.Message, Line: le.Line, Column: le.Column, Name: name}
		}
		return nil, err
	}
	p := &Parser{name: name}
	body, err := p.parseSegments(segments)
	if err != nil {
		return nil, err
	}
	return p.finishTemplate(body)
}

func (p *Parser) errf(pos ast.Position, format string, args ...any) error {
	return &SyntaxError{Message: fmt.Sprintf(format, args...), Line: pos.Line, Column: pos.Column, Name: p.name}
}

func toPos(lp lexer.Position) ast.Position { return ast.Position{Line: lp.Line, Column: lp.Column} }

// parseSegments walks the flat Segment list, recursively descending into
// block bodies by consuming segments from a shared cursor.
func (p *Parser) parseSegments(segments []lexer.Segment) ([]ast.Stmt, error) {
	c := &segCursor{segs: segments}
	stmts, err := p.parseBody(c, "")
	if err != nil {
		return nil, err
	}
	if !c.eof() {
		seg := c.peek()
		return nil, p.errf(toPos(seg.Pos), "unexpected %s", segmentKindName(seg))
	}
	return stmts, nil
}

type segCursor struct {
	segs []lexer.Segment
	pos  int
}

func (c *segCursor) eof() bool        { return c.pos >= len(c.segs) }
func (c *segCursor) peek() lexer.Segment {
	if c.eof() {
		return lexer.Segment{Kind: -1}
	}
	return c.segs[c.pos]
}
func (c *segCursor) next() lexer.Segment {
	s := c.peek()
	if !c.eof() {
		c.pos++
	}
	return s
}

func segmentKindName(s lexer.Segment) string {
	switch s.Kind {
	case lexer.SegText:
		return "text"
	case lexer.SegRaw:
		return "raw block"
	case lexer.SegVariable:
		return "variable block"
	case lexer.SegBlock:
		return "block tag"
	default:
		return "end of template"
	}
}

// parseBody consumes statements until EOF or a block tag whose keyword is
// one of until (e.g. "endif", "elif", "else", "endfor"). The terminating
// tag itself is left unconsumed so the caller can inspect it.
func (p *Parser) parseBody(c *segCursor, until ...string) ([]ast.Stmt, error) {
	var out []ast.Stmt
	for !c.eof() {
		seg := c.peek()
		switch seg.Kind {
		case lexer.SegText:
			c.next()
			out = append(out, &ast.Text{Bytes: seg.Bytes})
		case lexer.SegRaw:
			c.next()
			out = append(out, &ast.Raw{Bytes: seg.Bytes})
		case lexer.SegVariable:
			c.next()
			expr, err := p.parseExprTokens(seg.Tokens, seg.Pos)
			if err != nil {
				return nil, err
			}
			vb := &ast.VariableBlock{Expr: expr}
			vb.Position = toPos(seg.Pos)
			out = append(out, vb)
		case lexer.SegBlock:
			kw := blockKeyword(seg)
			if containsString(until, kw) {
				return out, nil
			}
			stmt, err := p.parseBlockTag(c)
			if err != nil {
				return nil, err
			}
			if stmt != nil {
				out = append(out, stmt)
			}
		}
	}
	return out, nil
}

func containsString(list []string, s string) bool {
	for _, x := range list {
		if x == s {
			return true
		}
	}
	return false
}

func blockKeyword(seg lexer.Segment) string {
	if len(seg.Tokens) == 0 {
		return ""
	}
	return seg.Tokens[0].Value
}

// newStream wraps a block/variable segment's inner tokens, skipping the
// leading keyword token when skip is true.
func newStream(toks []lexer.Token, skip bool) *lexer.Stream {
	if skip && len(toks) > 0 {
		toks = toks[1:]
	}
	return lexer.NewStream(toks)
}
