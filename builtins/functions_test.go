package builtins

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/halvard/stencil/runtime"
	"github.com/halvard/stencil/value"
)

func callFn(t *testing.T, ext *runtime.Extensions, name string, kwargs map[string]value.Value) value.Value {
	t.Helper()
	entry, ok := ext.GetFunction(name)
	require.True(t, ok, "function %q not registered", name)
	out, err := entry.Fn(kwargs)
	require.NoError(t, err)
	return out
}

func TestRangeFunction(t *testing.T) {
	ext := newExt(t)

	out := callFn(t, ext, "range", map[string]value.Value{"end": value.Int(5)})
	arr, _ := out.AsArray()
	require.Len(t, arr, 5)
	i, _ := arr[0].AsInt()
	assert.EqualValues(t, 0, i)
	i, _ = arr[4].AsInt()
	assert.EqualValues(t, 4, i)

	out = callFn(t, ext, "range", map[string]value.Value{"start": value.Int(2), "end": value.Int(10), "step_by": value.Int(3)})
	arr, _ = out.AsArray()
	var got []int64
	for _, v := range arr {
		i, _ := v.AsInt()
		got = append(got, i)
	}
	assert.Equal(t, []int64{2, 5, 8}, got)
}

func TestThrowFunction(t *testing.T) {
	ext := newExt(t)
	entry, ok := ext.GetFunction("throw")
	require.True(t, ok)
	_, err := entry.Fn(map[string]value.Value{"message": value.String("boom")})
	require.Error(t, err)
	assert.Equal(t, "boom", err.Error())
}

func TestGetEnvFunction(t *testing.T) {
	ext := newExt(t)
	t.Setenv("STENCIL_TEST_VAR", "hello")

	out := callFn(t, ext, "get_env", map[string]value.Value{"name": value.String("STENCIL_TEST_VAR")})
	s, _ := out.AsString()
	assert.Equal(t, "hello", s)

	out = callFn(t, ext, "get_env", map[string]value.Value{"name": value.String("STENCIL_NOT_SET"), "default": value.String("fallback")})
	s, _ = out.AsString()
	assert.Equal(t, "fallback", s)

	entry, _ := ext.GetFunction("get_env")
	_, err := entry.Fn(map[string]value.Value{"name": value.String("STENCIL_NOT_SET")})
	assert.Error(t, err)
}

func TestGetRandomFunction(t *testing.T) {
	ext := newExt(t)
	out := callFn(t, ext, "get_random", map[string]value.Value{"start": value.Int(5), "end": value.Int(6)})
	i, _ := out.AsInt()
	assert.EqualValues(t, 5, i)
}
