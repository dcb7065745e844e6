// Package value implements the dynamic, tagged value type that flows through
// every other stencil package: the lexer/parser never see it, but the
// evaluator, renderer and built-in library exchange nothing else.
//
// The design mirrors the ValueKind-tagged handle exposed by bindings such as
// minijinja's Go wrapper rather than a bare Go interface{}: callers never get
// to smuggle an arbitrary host type through the engine, they get a Value.
package value

import (
	"fmt"
	"math"
	"sort"
	"strconv"
	"strings"

	orderedmap "github.com/wk8/go-ordered-map/v2"
)

// Kind tags the variant held by a Value.
type Kind int

const (
	KindNull Kind = iota
	KindBool
	KindInteger
	KindFloat
	KindString
	KindArray
	KindObject
)

func (k Kind) String() string {
	switch k {
	case KindNull:
		return "null"
	case KindBool:
		return "bool"
	case KindInteger:
		return "integer"
	case KindFloat:
		return "float"
	case KindString:
		return "string"
	case KindArray:
		return "array"
	case KindObject:
		return "object"
	default:
		return "unknown"
	}
}

// Object is the insertion-ordered String -> Value mapping backing
// KindObject. Insertion order is part of the contract: iteration,
// json_encode, and __tera_context all observe it.
type Object = orderedmap.OrderedMap[string, Value]

// NewObject returns an empty, insertion-ordered Object.
func NewObject() *Object {
	return orderedmap.New[string, Value]()
}

// Value is a tagged sum over Null, Bool, Integer, Float, String, Array and
// Object. Zero value is Null.
type Value struct {
	kind Kind
	b    bool
	i    int64
	f    float64
	s    string
	arr  []Value
	obj  *Object
}

// Null is the singleton Null value.
var Null = Value{kind: KindNull}

func Bool(b bool) Value { return Value{kind: KindBool, b: b} }

func Int(i int64) Value { return Value{kind: KindInteger, i: i} }

func Float(f float64) Value { return Value{kind: KindFloat, f: f} }

func String(s string) Value { return Value{kind: KindString, s: s} }

func Array(items []Value) Value {
	if items == nil {
		items = []Value{}
	}
	return Value{kind: KindArray, arr: items}
}

func FromObject(o *Object) Value {
	if o == nil {
		o = NewObject()
	}
	return Value{kind: KindObject, obj: o}
}

func (v Value) Kind() Kind { return v.kind }

func (v Value) IsNull() bool { return v.kind == KindNull }

func (v Value) AsBool() (bool, bool) {
	if v.kind != KindBool {
		return false, false
	}
	return v.b, true
}

func (v Value) AsInt() (int64, bool) {
	if v.kind != KindInteger {
		return 0, false
	}
	return v.i, true
}

func (v Value) AsFloat() (float64, bool) {
	switch v.kind {
	case KindFloat:
		return v.f, true
	case KindInteger:
		return float64(v.i), true
	default:
		return 0, false
	}
}

func (v Value) AsString() (string, bool) {
	if v.kind != KindString {
		return "", false
	}
	return v.s, true
}

func (v Value) AsArray() ([]Value, bool) {
	if v.kind != KindArray {
		return nil, false
	}
	return v.arr, true
}

func (v Value) AsObject() (*Object, bool) {
	if v.kind != KindObject {
		return nil, false
	}
	return v.obj, true
}

// IsNumeric reports whether v is Integer or Float.
func (v Value) IsNumeric() bool {
	return v.kind == KindInteger || v.kind == KindFloat
}

// Truthy reports whether v should be treated as true in a boolean context:
// false iff Null, Bool(false), a zero or NaN numeric, an empty String,
// Array or Object.
func (v Value) Truthy() bool {
	switch v.kind {
	case KindNull:
		return false
	case KindBool:
		return v.b
	case KindInteger:
		return v.i != 0
	case KindFloat:
		return v.f != 0 && !math.IsNaN(v.f)
	case KindString:
		return v.s != ""
	case KindArray:
		return len(v.arr) > 0
	case KindObject:
		return v.obj.Len() > 0
	default:
		return false
	}
}

// Equal implements structural equality. Integer/Float compare by numeric
// value; mixed kinds other than Integer/Float are never equal.
func Equal(a, b Value) bool {
	if a.kind == KindInteger || a.kind == KindFloat {
		if b.kind != KindInteger && b.kind != KindFloat {
			return false
		}
		af, _ := a.AsFloat()
		bf, _ := b.AsFloat()
		if math.IsNaN(af) || math.IsNaN(bf) {
			return false
		}
		return af == bf
	}
	if a.kind != b.kind {
		return false
	}
	switch a.kind {
	case KindNull:
		return true
	case KindBool:
		return a.b == b.b
	case KindString:
		return a.s == b.s
	case KindArray:
		if len(a.arr) != len(b.arr) {
			return false
		}
		for i := range a.arr {
			if !Equal(a.arr[i], b.arr[i]) {
				return false
			}
		}
		return true
	case KindObject:
		if a.obj.Len() != b.obj.Len() {
			return false
		}
		for pair := a.obj.Oldest(); pair != nil; pair = pair.Next() {
			bv, ok := b.obj.Get(pair.Key)
			if !ok || !Equal(pair.Value, bv) {
				return false
			}
		}
		return true
	default:
		return false
	}
}

// Compare orders two homogeneous numeric values or two strings; ok is false
// for any other pairing — ordering is undefined outside those cases.
func Compare(a, b Value) (int, bool) {
	if a.IsNumeric() && b.IsNumeric() {
		af, _ := a.AsFloat()
		bf, _ := b.AsFloat()
		if math.IsNaN(af) || math.IsNaN(bf) {
			return 0, false
		}
		switch {
		case af < bf:
			return -1, true
		case af > bf:
			return 1, true
		default:
			return 0, true
		}
	}
	if a.kind == KindString && b.kind == KindString {
		return strings.Compare(a.s, b.s), true
	}
	return 0, false
}

// Stringify renders v to its canonical text form for use inside variable
// blocks and the `~` concatenation operator.
func (v Value) Stringify() string {
	switch v.kind {
	case KindNull:
		return ""
	case KindBool:
		if v.b {
			return "true"
		}
		return "false"
	case KindInteger:
		return strconv.FormatInt(v.i, 10)
	case KindFloat:
		return formatFloat(v.f)
	case KindString:
		return v.s
	case KindArray, KindObject:
		return v.jsonString(false)
	default:
		return ""
	}
}

// formatFloat produces the minimal round-trip decimal form with an explicit
// trailing ".0" for whole numbers, so output never looks accidentally
// integral.
func formatFloat(f float64) string {
	if math.IsNaN(f) {
		return "NaN"
	}
	if math.IsInf(f, 1) {
		return "inf"
	}
	if math.IsInf(f, -1) {
		return "-inf"
	}
	s := strconv.FormatFloat(f, 'f', -1, 64)
	if !strings.Contains(s, ".") {
		s += ".0"
	}
	return s
}

// JSONEncode renders v using JSON-compatible syntax, optionally pretty
// printed, preserving Object insertion order.
func (v Value) JSONEncode(pretty bool) string {
	return v.jsonString(pretty)
}

func (v Value) jsonString(pretty bool) string {
	var sb strings.Builder
	v.writeJSON(&sb, pretty, 0)
	return sb.String()
}

func (v Value) writeJSON(sb *strings.Builder, pretty bool, depth int) {
	indent := func(n int) {
		if pretty {
			sb.WriteByte('\n')
			sb.WriteString(strings.Repeat("  ", n))
		}
	}
	switch v.kind {
	case KindNull:
		sb.WriteString("null")
	case KindBool:
		sb.WriteString(v.Stringify())
	case KindInteger:
		sb.WriteString(v.Stringify())
	case KindFloat:
		sb.WriteString(strconv.FormatFloat(v.f, 'g', -1, 64))
	case KindString:
		sb.WriteString(strconv.Quote(v.s))
	case KindArray:
		sb.WriteByte('[')
		for i, item := range v.arr {
			if i > 0 {
				sb.WriteByte(',')
			}
			indent(depth + 1)
			item.writeJSON(sb, pretty, depth+1)
		}
		if len(v.arr) > 0 {
			indent(depth)
		}
		sb.WriteByte(']')
	case KindObject:
		sb.WriteByte('{')
		i := 0
		for pair := v.obj.Oldest(); pair != nil; pair = pair.Next() {
			if i > 0 {
				sb.WriteByte(',')
			}
			indent(depth + 1)
			sb.WriteString(strconv.Quote(pair.Key))
			sb.WriteByte(':')
			if pretty {
				sb.WriteByte(' ')
			}
			pair.Value.writeJSON(sb, pretty, depth+1)
			i++
		}
		if v.obj.Len() > 0 {
			indent(depth)
		}
		sb.WriteByte('}')
	}
}

// DebugPretty renders a human-readable dump of v, used by the magical
// `__tera_context` identifier.
func (v Value) DebugPretty() string {
	var sb strings.Builder
	v.writeDebug(&sb, 0)
	return sb.String()
}

func (v Value) writeDebug(sb *strings.Builder, depth int) {
	pad := strings.Repeat("  ", depth)
	switch v.kind {
	case KindObject:
		keys := make([]string, 0, v.obj.Len())
		for pair := v.obj.Oldest(); pair != nil; pair = pair.Next() {
			keys = append(keys, pair.Key)
		}
		sb.WriteString("{\n")
		for _, k := range keys {
			val, _ := v.obj.Get(k)
			sb.WriteString(pad + "  " + k + ": ")
			val.writeDebug(sb, depth+1)
			sb.WriteString(",\n")
		}
		sb.WriteString(pad + "}")
	case KindArray:
		sb.WriteString("[\n")
		for _, item := range v.arr {
			sb.WriteString(pad + "  ")
			item.writeDebug(sb, depth+1)
			sb.WriteString(",\n")
		}
		sb.WriteString(pad + "]")
	case KindString:
		sb.WriteString(fmt.Sprintf("%q", v.s))
	default:
		sb.WriteString(v.Stringify())
	}
}

// Len returns the length of a String (Unicode scalar count), Array or
// Object, matching the `length` filter's semantics.
func (v Value) Len() (int, bool) {
	switch v.kind {
	case KindString:
		return len([]rune(v.s)), true
	case KindArray:
		return len(v.arr), true
	case KindObject:
		return v.obj.Len(), true
	default:
		return 0, false
	}
}

// SortKind classifies values for the `sort` filter's mixed-type error and
// stable ordering rules.
func SortKind(v Value) (int, bool) {
	switch v.kind {
	case KindBool:
		return 0, true
	case KindInteger, KindFloat:
		return 1, true
	case KindString:
		return 2, true
	case KindArray:
		return 3, true
	default:
		return 0, false
	}
}

// SortLess implements the comparator used by the `sort` filter: numerics by
// value, strings lexicographically, arrays by length, bools false<true.
// Mixed, non-comparable kinds return ok=false.
func SortLess(a, b Value) (less bool, ok bool) {
	ak, aok := SortKind(a)
	bk, bok := SortKind(b)
	if !aok || !bok || ak != bk {
		return false, false
	}
	switch ak {
	case 0:
		ab, _ := a.AsBool()
		bb, _ := b.AsBool()
		return !ab && bb, true
	case 1:
		c, ok := Compare(a, b)
		return c < 0, ok
	case 2:
		as, _ := a.AsString()
		bs, _ := b.AsString()
		return as < bs, true
	case 3:
		al, _ := a.Len()
		bl, _ := b.Len()
		return al < bl, true
	default:
		return false, false
	}
}

// StableSort sorts items in place using SortLess, returning false if any
// pair of items is not comparable.
func StableSort(items []Value) bool {
	ok := true
	sort.SliceStable(items, func(i, j int) bool {
		less, pairOK := SortLess(items[i], items[j])
		if !pairOK {
			ok = false
		}
		return less
	})
	return ok
}
