package registry

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/halvard/stencil/builtins"
	"github.com/halvard/stencil/value"
)

func newTestRegistry(t *testing.T) *Registry {
	t.Helper()
	r := New(Options{})
	builtins.Install(r.Extensions())
	return r
}

func render(t *testing.T, r *Registry, name string, vars map[string]any) string {
	t.Helper()
	ctx, err := value.FromMap(vars)
	require.NoError(t, err)
	var buf strings.Builder
	require.NoError(t, r.Render(name, ctx, &buf))
	return buf.String()
}

func TestAddAndRenderSimple(t *testing.T) {
	r := newTestRegistry(t)
	require.NoError(t, r.Add("hello.txt", "Hello, {{ name }}!"))
	out := render(t, r, "hello.txt", map[string]any{"name": "world"})
	assert.Equal(t, "Hello, world!", out)
}

func TestInheritanceBlockOverride(t *testing.T) {
	r := newTestRegistry(t)
	err := r.AddBatch(map[string]string{
		"base.txt":  "[{% block body %}base{% endblock %}]",
		"child.txt": "{% extends \"base.txt\" %}{% block body %}child {{ super() }}{% endblock %}",
	})
	require.NoError(t, err)
	out := render(t, r, "child.txt", nil)
	assert.Equal(t, "[child base]", out)
}

func TestAddBatchIsAtomic(t *testing.T) {
	r := newTestRegistry(t)
	require.NoError(t, r.Add("ok.txt", "fine"))

	err := r.AddBatch(map[string]string{
		"broken.txt": "{% extends \"missing.txt\" %}",
		"extra.txt":  "won't be committed either",
	})
	require.Error(t, err)

	_, ok := r.Resolve("extra.txt")
	assert.False(t, ok)
	_, ok = r.Resolve("ok.txt")
	assert.True(t, ok, "prior valid template must survive a failed batch")
}

func TestExtendSelfWins(t *testing.T) {
	a := newTestRegistry(t)
	require.NoError(t, a.Add("shared.txt", "from a"))

	b := New(Options{})
	require.NoError(t, b.Add("shared.txt", "from b"))
	require.NoError(t, b.Add("only-in-b.txt", "b only"))

	require.NoError(t, a.Extend(b))
	assert.Equal(t, "from a", render(t, a, "shared.txt", nil))
	assert.Equal(t, "b only", render(t, a, "only-in-b.txt", nil))
}

func TestReload(t *testing.T) {
	r := newTestRegistry(t)
	loader := MapLoader{"greeting.txt": "v1"}
	r.SetLoader(loader)
	require.NoError(t, r.Add("greeting.txt", "v1"))
	assert.Equal(t, "v1", render(t, r, "greeting.txt", nil))

	loader["greeting.txt"] = "v2"
	require.NoError(t, r.Reload())
	assert.Equal(t, "v2", render(t, r, "greeting.txt", nil))
}

func TestOneOff(t *testing.T) {
	r := newTestRegistry(t)
	ctx, err := value.FromMap(map[string]any{"name": "one-off"})
	require.NoError(t, err)
	out, err := r.OneOff("Hi {{ name | upper }}", ctx, false)
	require.NoError(t, err)
	assert.Equal(t, "Hi ONE-OFF", out)

	_, err = r.OneOff(`{% extends "x.txt" %}`, ctx, false)
	assert.Error(t, err, "one-off templates cannot use extends")
}

func TestAutoescape(t *testing.T) {
	r := newTestRegistry(t)
	require.NoError(t, r.Add("page.html", "{{ value }}"))
	out := render(t, r, "page.html", map[string]any{"value": "<b>"})
	assert.Equal(t, "&lt;b&gt;", out)

	r.SetAutoescapeRules(nil)
	out = render(t, r, "page.html", map[string]any{"value": "<b>"})
	assert.Equal(t, "<b>", out)
}
