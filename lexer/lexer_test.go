package lexer

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestScanBasics(t *testing.T) {
	tests := []struct {
		name     string
		template string
		wantErr  bool
	}{
		{name: "plain text", template: "Hello, World!"},
		{name: "variable", template: "Hello, {{ name }}!"},
		{name: "block", template: "{% if condition %}content{% endif %}"},
		{name: "comment", template: "Hello{# a comment #} World!"},
		{name: "mixed", template: "Hello {{ name }}! {% if condition %}Yes{% else %}No{% endif %}"},
		{name: "raw block", template: "{% raw %}{{ not a variable }}{% endraw %}"},
		{name: "unterminated tag", template: "{{ name", wantErr: true},
		{name: "unterminated comment", template: "{# oops", wantErr: true},
		{name: "unterminated raw", template: "{% raw %}forever", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Scan(tt.template)
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestScanSegmentKinds(t *testing.T) {
	segs, err := Scan("A{{ x }}B{% if y %}C{% endif %}D")
	require.NoError(t, err)

	var kinds []SegmentKind
	for _, s := range segs {
		kinds = append(kinds, s.Kind)
	}
	assert.Equal(t, []SegmentKind{
		SegText, SegVariable, SegText, SegBlock, SegText, SegBlock, SegText,
	}, kinds)
}

func TestScanWhitespaceControl(t *testing.T) {
	segs, err := Scan("  {%- if x -%}  \n  inner  {% endif %}")
	require.NoError(t, err)

	var texts []string
	for _, s := range segs {
		if s.Kind == SegText {
			texts = append(texts, string(s.Bytes))
		}
	}
	require.Len(t, texts, 1, "the leading text is trimmed to nothing by {%- and so emits no segment")
	assert.Equal(t, "inner  ", texts[0], "-%} trims the leading whitespace of the following text only")
}

func TestScanRawBlockIsLiteral(t *testing.T) {
	segs, err := Scan("{% raw %}{{ not_evaluated }}{% endraw %}")
	require.NoError(t, err)

	var raw []string
	for _, s := range segs {
		if s.Kind == SegRaw {
			raw = append(raw, string(s.Bytes))
		}
	}
	require.Len(t, raw, 1)
	assert.Equal(t, "{{ not_evaluated }}", raw[0])
}

func TestScanStringEscapes(t *testing.T) {
	segs, err := Scan(`{{ "a\nb\t\"c\"" }}`)
	require.NoError(t, err)
	require.Len(t, segs, 1)
	require.Len(t, segs[0].Tokens, 1)
	assert.Equal(t, "a\nb\t\"c\"", segs[0].Tokens[0].Value)
}

func TestScanNumbers(t *testing.T) {
	segs, err := Scan("{{ 42 }}{{ 3.14 }}{{ 1e3 }}{{ 2.5e-2 }}")
	require.NoError(t, err)

	var toks []Token
	for _, s := range segs {
		toks = append(toks, s.Tokens...)
	}
	require.Len(t, toks, 4)
	assert.Equal(t, TokenInt, toks[0].Type)
	assert.Equal(t, TokenFloat, toks[1].Type)
	assert.Equal(t, TokenFloat, toks[2].Type)
	assert.Equal(t, TokenFloat, toks[3].Type)
}

func TestScanOperators(t *testing.T) {
	segs, err := Scan("{{ a == b and a != c or a >= 1 and a <= 2 }}")
	require.NoError(t, err)
	require.Len(t, segs, 1)

	var comparisons []string
	for _, tok := range segs[0].Tokens {
		if tok.Type == TokenComparison {
			comparisons = append(comparisons, tok.Value)
		}
	}
	assert.Equal(t, []string{"==", "!=", ">=", "<="}, comparisons)
}

func TestStreamExpectAndPeek(t *testing.T) {
	toks := []Token{
		{Type: TokenName, Value: "foo"},
		{Type: TokenAssign, Value: "="},
		{Type: TokenInt, Value: "1"},
	}
	s := NewStream(toks)

	assert.Equal(t, "foo", s.Peek().Value)
	assert.True(t, s.IsKeyword("foo"))
	assert.Equal(t, "=", s.PeekN(1).Value)

	_, err := s.Expect(TokenName)
	require.NoError(t, err)
	require.False(t, s.Eof())

	_, err = s.Expect(TokenInt)
	assert.Error(t, err, "next token is = (TokenAssign), not INT")

	assert.Equal(t, TokenInt, s.Peek().Type, "Expect consumes the mismatched token even on failure")
	s.Next()
	assert.True(t, s.Eof())
	assert.Equal(t, TokenEOF, s.Peek().Type)
}
