package builtins

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/halvard/stencil/runtime"
	"github.com/halvard/stencil/value"
)

func newExt(t *testing.T) *runtime.Extensions {
	t.Helper()
	ext := runtime.NewExtensions()
	Install(ext)
	return ext
}

func call(t *testing.T, ext *runtime.Extensions, name string, target value.Value, args []value.Value, kwargs map[string]value.Value) value.Value {
	t.Helper()
	entry, ok := ext.GetFilter(name)
	require.True(t, ok, "filter %q not registered", name)
	out, err := entry.Fn(target, args, kwargs)
	require.NoError(t, err)
	return out
}

func TestStringFilters(t *testing.T) {
	ext := newExt(t)

	s, _ := call(t, ext, "lower", value.String("Hello WORLD"), nil, nil).AsString()
	assert.Equal(t, "hello world", s)

	s, _ = call(t, ext, "upper", value.String("Hello"), nil, nil).AsString()
	assert.Equal(t, "HELLO", s)

	s, _ = call(t, ext, "capitalize", value.String("hELLO world"), nil, nil).AsString()
	assert.Equal(t, "Hello world", s)

	s, _ = call(t, ext, "title", value.String("the quick fox"), nil, nil).AsString()
	assert.Equal(t, "The Quick Fox", s)

	n, _ := call(t, ext, "wordcount", value.String("a b  c"), nil, nil).AsInt()
	assert.EqualValues(t, 3, n)

	s, _ = call(t, ext, "trim", value.String("  hi  "), nil, nil).AsString()
	assert.Equal(t, "hi", s)

	s, _ = call(t, ext, "replace", value.String("foo bar foo"), []value.Value{value.String("foo"), value.String("baz")}, nil).AsString()
	assert.Equal(t, "baz bar baz", s)

	s, _ = call(t, ext, "truncate", value.String("hello world"), []value.Value{value.Int(5)}, nil).AsString()
	assert.Equal(t, "hello…", s)

	s, _ = call(t, ext, "striptags", value.String("<b>hi</b> there"), nil, nil).AsString()
	assert.Equal(t, "hi there", s)
}

func TestRequiredArgumentFiltersRejectMissingArgs(t *testing.T) {
	ext := newExt(t)

	tests := []struct {
		filter string
		args   []value.Value
	}{
		{"replace", nil},
		{"replace", []value.Value{value.String("x")}},
		{"split", nil},
		{"trim_start_matches", nil},
		{"trim_end_matches", nil},
	}

	for _, tt := range tests {
		t.Run(tt.filter, func(t *testing.T) {
			entry, ok := ext.GetFilter(tt.filter)
			require.True(t, ok)
			_, err := entry.Fn(value.String("foo"), tt.args, nil)
			require.Error(t, err)
			re, ok := err.(*runtime.Error)
			require.True(t, ok, "expected a *runtime.Error, got %T", err)
			assert.Equal(t, runtime.KindMissingArgument, re.Kind)
		})
	}
}

func TestNumberFilters(t *testing.T) {
	ext := newExt(t)

	i, _ := call(t, ext, "abs", value.Int(-5), nil, nil).AsInt()
	assert.EqualValues(t, 5, i)

	f, _ := call(t, ext, "round", value.Float(2.5), []value.Value{value.String("common"), value.Int(0)}, nil).AsFloat()
	assert.InDelta(t, 3.0, f, 1e-9)

	s, _ := call(t, ext, "pluralize", value.Int(1), []value.Value{value.String(""), value.String("s")}, nil).AsString()
	assert.Equal(t, "", s)
	s, _ = call(t, ext, "pluralize", value.Int(2), []value.Value{value.String(""), value.String("s")}, nil).AsString()
	assert.Equal(t, "s", s)

	s, _ = call(t, ext, "filesizeformat", value.Int(2000), nil, nil).AsString()
	assert.Equal(t, "2.0 kB", s)
}

func TestArrayFilters(t *testing.T) {
	ext := newExt(t)
	arr := value.Array([]value.Value{value.Int(3), value.Int(1), value.Int(2)})

	first := call(t, ext, "first", arr, nil, nil)
	i, _ := first.AsInt()
	assert.EqualValues(t, 3, i)

	last := call(t, ext, "last", arr, nil, nil)
	i, _ = last.AsInt()
	assert.EqualValues(t, 2, i)

	sorted := call(t, ext, "sort", arr, nil, nil)
	sortedArr, _ := sorted.AsArray()
	require.Len(t, sortedArr, 3)
	i, _ = sortedArr[0].AsInt()
	assert.EqualValues(t, 1, i)

	joined := call(t, ext, "join", arr, []value.Value{value.String(",")}, nil)
	s, _ := joined.AsString()
	assert.Equal(t, "3,1,2", s)

	sliced := call(t, ext, "slice", arr, []value.Value{value.Int(-2)}, nil)
	slicedArr, _ := sliced.AsArray()
	require.Len(t, slicedArr, 2)
}

func TestSortByAttribute(t *testing.T) {
	ext := newExt(t)
	mk := func(age int64) value.Value {
		o := value.NewObject()
		o.Set("age", value.Int(age))
		return value.FromObject(o)
	}
	arr := value.Array([]value.Value{mk(30), mk(10), mk(20)})
	sorted := call(t, ext, "sort", arr, []value.Value{value.String("age")}, nil)
	sortedArr, _ := sorted.AsArray()
	var ages []int64
	for _, v := range sortedArr {
		a, _ := getAttr(v, "age")
		i, _ := a.AsInt()
		ages = append(ages, i)
	}
	assert.Equal(t, []int64{10, 20, 30}, ages)
}

func TestGroupBy(t *testing.T) {
	ext := newExt(t)
	mk := func(team string) value.Value {
		o := value.NewObject()
		o.Set("team", value.String(team))
		return value.FromObject(o)
	}
	arr := value.Array([]value.Value{mk("a"), mk("b"), mk("a")})
	grouped := call(t, ext, "group_by", arr, []value.Value{value.String("team")}, nil)
	obj, ok := grouped.AsObject()
	require.True(t, ok)
	a, ok := obj.Get("a")
	require.True(t, ok)
	aArr, _ := a.AsArray()
	assert.Len(t, aArr, 2)
}

func TestEncodingFilters(t *testing.T) {
	ext := newExt(t)

	entry, ok := ext.GetFilter("escape")
	require.True(t, ok)
	assert.True(t, entry.Safe)
	out, err := entry.Fn(value.String("<a>&"), nil, nil)
	require.NoError(t, err)
	s, _ := out.AsString()
	assert.Equal(t, "&lt;a&gt;&amp;", s)

	s, _ = call(t, ext, "urlencode", value.String("a b/c"), nil, nil).AsString()
	assert.Equal(t, "a+b/c", s)

	s, _ = call(t, ext, "urlencode_strict", value.String("a b/c"), nil, nil).AsString()
	assert.Equal(t, "a+b%2Fc", s)
}

func TestDateFilter(t *testing.T) {
	ext := newExt(t)
	s, _ := call(t, ext, "date", value.Int(0), []value.Value{value.String("%Y-%m-%d")}, nil).AsString()
	assert.Equal(t, "1970-01-01", s)
}
