package value

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTruthy(t *testing.T) {
	cases := []struct {
		name string
		v    Value
		want bool
	}{
		{"null", Null, false},
		{"false", Bool(false), false},
		{"true", Bool(true), true},
		{"zero int", Int(0), false},
		{"nonzero int", Int(1), true},
		{"zero float", Float(0), false},
		{"nan float", Float(nan()), false},
		{"empty string", String(""), false},
		{"nonempty string", String("x"), true},
		{"empty array", Array(nil), false},
		{"empty object", FromObject(NewObject()), false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, tc.v.Truthy())
		})
	}
}

func nan() float64 {
	var f float64
	return f / f
}

func TestArithPromotion(t *testing.T) {
	sum, err := Add(Int(2), Int(3))
	require.NoError(t, err)
	assert.Equal(t, Int(5), sum)

	promoted, err := Add(Int(2), Float(3.5))
	require.NoError(t, err)
	f, _ := promoted.AsFloat()
	assert.InDelta(t, 5.5, f, 1e-9)

	div, err := Div(Int(10), Int(4))
	require.NoError(t, err)
	f, _ = div.AsFloat()
	assert.InDelta(t, 2.5, f, 1e-9)

	_, err = Div(Int(1), Int(0))
	assert.Error(t, err)
}

func TestArithOverflow(t *testing.T) {
	_, err := Add(Int(9223372036854775807), Int(1))
	assert.Error(t, err)
}

func TestMod(t *testing.T) {
	m, err := Mod(Int(7), Int(3))
	require.NoError(t, err)
	assert.Equal(t, Int(1), m)

	_, err = Mod(Float(1), Int(2))
	assert.Error(t, err)
}

func TestPathLookup(t *testing.T) {
	obj := NewObject()
	obj.Set("name", String("world"))
	arr := Array([]Value{Int(1), Int(2), Int(3)})
	obj.Set("items", arr)
	root := FromObject(obj)

	v, err := Lookup(root, Path{NamedField("name")})
	require.NoError(t, err)
	s, _ := v.AsString()
	assert.Equal(t, "world", s)

	v, err = Lookup(root, Path{NamedField("items"), IndexField(Int(-1))})
	require.NoError(t, err)
	i, _ := v.AsInt()
	assert.Equal(t, int64(3), i)

	_, err = Lookup(root, Path{NamedField("missing")})
	assert.Error(t, err)
}

func TestContains(t *testing.T) {
	arr := Array([]Value{String("a"), String("b")})
	ok, err := Contains(arr, String("b"))
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = Contains(String("hello"), String("ell"))
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestStringifyFloat(t *testing.T) {
	assert.Equal(t, "2.5", Float(2.5).Stringify())
	assert.Equal(t, "3.0", Float(3).Stringify())
}

func TestJSONEncodeOrderPreserved(t *testing.T) {
	obj := NewObject()
	obj.Set("b", Int(2))
	obj.Set("a", Int(1))
	got := FromObject(obj).JSONEncode(false)
	assert.Equal(t, `{"b":2,"a":1}`, got)
}

func TestFromAnyStruct(t *testing.T) {
	type Inner struct {
		Name string `json:"name"`
	}
	v, err := FromAny(Inner{Name: "x"})
	require.NoError(t, err)
	obj, ok := v.AsObject()
	require.True(t, ok)
	got, ok := obj.Get("name")
	require.True(t, ok)
	s, _ := got.AsString()
	assert.Equal(t, "x", s)
}

func TestStableSortMixedTypeFails(t *testing.T) {
	items := []Value{Int(1), String("a")}
	ok := StableSort(items)
	assert.False(t, ok)
}
