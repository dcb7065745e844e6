package parser

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/halvard/stencil/ast"
)

func TestParseBasics(t *testing.T) {
	tests := []struct {
		name     string
		template string
		wantErr  bool
	}{
		{name: "plain text", template: "hello"},
		{name: "variable", template: "{{ a.b[0] }}"},
		{name: "if/elif/else", template: "{% if a %}x{% elif b %}y{% else %}z{% endif %}"},
		{name: "for with key", template: "{% for k, v in items %}{{ k }}{{ v }}{% endfor %}"},
		{name: "for/else", template: "{% for v in items %}{{ v }}{% else %}empty{% endfor %}"},
		{name: "set", template: "{% set x = 1 + 2 %}"},
		{name: "set_global", template: "{% set_global x = 1 %}"},
		{name: "block", template: "{% block body %}hi{% endblock %}"},
		{name: "extends", template: `{% extends "base.txt" %}`},
		{name: "include single", template: `{% include "partial.txt" %}`},
		{name: "include list", template: `{% include ["a.txt", "b.txt"] ignore missing %}`},
		{name: "import", template: `{% import "macros.txt" as m %}`},
		{name: "macro with default", template: "{% macro greet(name, greeting=\"hi\") %}{{ greeting }} {{ name }}{% endmacro %}"},
		{name: "filter section", template: "{% filter upper %}hi{% endfilter %}"},
		{name: "raw block", template: "{% raw %}{{ untouched }}{% endraw %}"},
		{name: "break outside for", template: "{% break %}", wantErr: true},
		{name: "continue outside for", template: "{% continue %}", wantErr: true},
		{name: "break inside for", template: "{% for v in items %}{% break %}{% endfor %}"},
		{name: "unknown tag", template: "{% bogus %}", wantErr: true},
		{name: "unterminated if", template: "{% if a %}x", wantErr: true},
		{name: "extends not first", template: "x{% extends \"a.txt\" %}", wantErr: true},
		{name: "double extends", template: `{% extends "a.txt" %}{% extends "b.txt" %}`, wantErr: true},
		{name: "extends nested in block", template: `{% block body %}{% extends "a.txt" %}{% endblock %}`, wantErr: true},
		{name: "extends nested in macro", template: `{% macro f() %}{% extends "a.txt" %}{% endmacro %}`, wantErr: true},
		{name: "extends nested in for", template: `{% for v in items %}{% extends "a.txt" %}{% endfor %}`, wantErr: true},
		{name: "extends nested in if", template: `{% if x %}{% extends "a.txt" %}{% endif %}`, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Parse(tt.name, tt.template)
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestParseExpressionPrecedence(t *testing.T) {
	tmpl, err := Parse("t", "{{ 1 + 2 * 3 }}")
	require.NoError(t, err)
	vb := tmpl.Body[0].(*ast.VariableBlock)
	op := vb.Expr.(*ast.MathOp)
	assert.Equal(t, "+", op.Op)
	assert.Equal(t, int64(1), op.Left.(*ast.Literal).Value)
	mul := op.Right.(*ast.MathOp)
	assert.Equal(t, "*", mul.Op)
}

func TestParseFilterBindsTighterThanAdditionOnRight(t *testing.T) {
	tmpl, err := Parse("t", "{{ a | length + 1 }}")
	require.NoError(t, err)
	vb := tmpl.Body[0].(*ast.VariableBlock)
	op := vb.Expr.(*ast.MathOp)
	assert.Equal(t, "+", op.Op)
	_, ok := op.Left.(*ast.FilterApply)
	assert.True(t, ok, "`a | length` must bind before `+ 1` is applied")
}

func TestParseFilterAppliesToWholeAdditiveExpr(t *testing.T) {
	tmpl, err := Parse("t", "{{ 1 + a | length }}")
	require.NoError(t, err)
	vb := tmpl.Body[0].(*ast.VariableBlock)
	fa := vb.Expr.(*ast.FilterApply)
	assert.Equal(t, "length", fa.Name)
	_, ok := fa.Target.(*ast.MathOp)
	assert.True(t, ok, "`1 + a` must be fully formed before `| length` applies")
}

func TestParseFilterArgsAndKwargs(t *testing.T) {
	tmpl, err := Parse("t", `{{ value | truncate(10, end="...") }}`)
	require.NoError(t, err)
	vb := tmpl.Body[0].(*ast.VariableBlock)
	fa := vb.Expr.(*ast.FilterApply)
	assert.Equal(t, "truncate", fa.Name)
	require.Len(t, fa.Args, 1)
	assert.Equal(t, int64(10), fa.Args[0].(*ast.Literal).Value)
	require.Len(t, fa.Kwargs, 1)
	assert.Equal(t, "end", fa.Kwargs[0].Name)
}

func TestParseTestIsNot(t *testing.T) {
	tmpl, err := Parse("t", "{{ x is not defined }}")
	require.NoError(t, err)
	vb := tmpl.Body[0].(*ast.VariableBlock)
	ta := vb.Expr.(*ast.TestApply)
	assert.Equal(t, "defined", ta.Name)
	assert.True(t, ta.Negated)
}

func TestParseInAndNotIn(t *testing.T) {
	tmpl, err := Parse("t", "{{ 1 in items }}")
	require.NoError(t, err)
	in := tmpl.Body[0].(*ast.VariableBlock).Expr.(*ast.In)
	assert.False(t, in.Negated)

	tmpl, err = Parse("t", "{{ 1 not in items }}")
	require.NoError(t, err)
	in = tmpl.Body[0].(*ast.VariableBlock).Expr.(*ast.In)
	assert.True(t, in.Negated)
}

func TestParseMacroCall(t *testing.T) {
	tmpl, err := Parse("t", `{{ forms::input(name="email") }}`)
	require.NoError(t, err)
	mc := tmpl.Body[0].(*ast.VariableBlock).Expr.(*ast.MacroCall)
	assert.Equal(t, "forms", mc.Namespace)
	assert.Equal(t, "input", mc.Name)
	require.Len(t, mc.Kwargs, 1)
	assert.Equal(t, "email", mc.Kwargs[0].Value.(*ast.Literal).Value)
}

func TestParseUnaryMinusFoldsIntoLiteral(t *testing.T) {
	tmpl, err := Parse("t", "{{ -5 }}")
	require.NoError(t, err)
	lit := tmpl.Body[0].(*ast.VariableBlock).Expr.(*ast.Literal)
	assert.Equal(t, int64(-5), lit.Value)
}

func TestParseConcat(t *testing.T) {
	tmpl, err := Parse("t", `{{ "a" ~ b ~ "c" }}`)
	require.NoError(t, err)
	cc := tmpl.Body[0].(*ast.VariableBlock).Expr.(*ast.Concat)
	assert.Len(t, cc.Parts, 3)
}

func TestFinishTemplateCollectsMacrosImportsBlocks(t *testing.T) {
	tmpl, err := Parse("t", `{% import "macros.txt" as m %}{% macro f() %}x{% endmacro %}{% block body %}y{% endblock %}`)
	require.NoError(t, err)
	assert.Equal(t, "macros.txt", tmpl.Imports["m"])
	assert.Contains(t, tmpl.Macros, "f")
	assert.Contains(t, tmpl.Blocks, "body")
}

func TestExtendsSetsParent(t *testing.T) {
	tmpl, err := Parse("t", `{% extends "base.txt" %}{% block body %}child{% endblock %}`)
	require.NoError(t, err)
	assert.True(t, tmpl.HasParent)
	assert.Equal(t, "base.txt", tmpl.ParentName)
}
