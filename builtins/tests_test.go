package builtins

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/halvard/stencil/runtime"
	"github.com/halvard/stencil/value"
)

func runTest(t *testing.T, ext *runtime.Extensions, name string, target value.Value, args []value.Value) bool {
	t.Helper()
	fn, ok := ext.GetTest(name)
	require.True(t, ok, "test %q not registered", name)
	got, err := fn(target, args)
	require.NoError(t, err)
	return got
}

func TestBuiltinTests(t *testing.T) {
	ext := newExt(t)

	assert.True(t, runTest(t, ext, "odd", value.Int(3), nil))
	assert.False(t, runTest(t, ext, "odd", value.Int(4), nil))
	assert.True(t, runTest(t, ext, "even", value.Int(4), nil))
	assert.True(t, runTest(t, ext, "string", value.String("x"), nil))
	assert.True(t, runTest(t, ext, "number", value.Float(1.5), nil))
	assert.True(t, runTest(t, ext, "divisibleby", value.Int(9), []value.Value{value.Int(3)}))
	assert.False(t, runTest(t, ext, "divisibleby", value.Int(10), []value.Value{value.Int(3)}))
	assert.True(t, runTest(t, ext, "iterable", value.Array(nil), nil))
	assert.True(t, runTest(t, ext, "object", value.FromObject(value.NewObject()), nil))
	assert.True(t, runTest(t, ext, "starting_with", value.String("hello"), []value.Value{value.String("he")}))
	assert.True(t, runTest(t, ext, "ending_with", value.String("hello"), []value.Value{value.String("lo")}))
	assert.True(t, runTest(t, ext, "containing", value.Array([]value.Value{value.Int(1), value.Int(2)}), []value.Value{value.Int(2)}))
	assert.True(t, runTest(t, ext, "matching", value.String("abc123"), []value.Value{value.String(`^[a-z]+\d+$`)}))
}
