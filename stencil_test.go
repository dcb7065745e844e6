package stencil

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRenderStringWithBuiltins(t *testing.T) {
	out, err := RenderString(
		`{{ name | upper }} has {{ items | length }} items: {{ items | join(", ") }}`,
		map[string]any{"name": "cart", "items": []any{"a", "b", "c"}},
		false,
	)
	require.NoError(t, err)
	assert.Equal(t, "CART has 3 items: a, b, c", out)
}

func TestEngineAddAndRender(t *testing.T) {
	e := New(Options{})
	require.NoError(t, e.Add("greeting.txt", "Hello, {{ name | default(value=\"world\") }}!"))

	ctx, err := ContextFromMap(map[string]any{})
	require.NoError(t, err)

	var buf assertWriter
	require.NoError(t, e.Render("greeting.txt", ctx, &buf))
	assert.Equal(t, "Hello, world!", buf.String())
}

type assertWriter struct {
	data []byte
}

func (w *assertWriter) Write(p []byte) (int, error) {
	w.data = append(w.data, p...)
	return len(p), nil
}

func (w *assertWriter) String() string { return string(w.data) }
