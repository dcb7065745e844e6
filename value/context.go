package value

import (
	"fmt"
	"reflect"
	"sort"

	"github.com/pkg/errors"
	"github.com/spf13/cast"
)

// Context is an Object-valued root that the renderer reads variables from,
// plus the ability to serialize arbitrary host data into that Object
// before rendering.
type Context struct {
	root *Object
}

// NewContext returns an empty Context.
func NewContext() *Context {
	return &Context{root: NewObject()}
}

// NewContextFromObject wraps an existing Object as a Context root.
func NewContextFromObject(o *Object) *Context {
	if o == nil {
		o = NewObject()
	}
	return &Context{root: o}
}

// FromMap builds a Context from a plain map, serializing each value with
// FromAny.
func FromMap(m map[string]any) (*Context, error) {
	ctx := NewContext()
	for k, v := range m {
		val, err := FromAny(v)
		if err != nil {
			return nil, errors.Wrapf(err, "context key %q", k)
		}
		ctx.root.Set(k, val)
	}
	return ctx, nil
}

// Root returns the Context's backing Object as a Value.
func (c *Context) Root() Value { return FromObject(c.root) }

// Insert sets a key, overwriting any existing entry.
func (c *Context) Insert(key string, v Value) { c.root.Set(key, v) }

// TryInsert sets a key, failing if it is already present.
func (c *Context) TryInsert(key string, v Value) error {
	if _, ok := c.root.Get(key); ok {
		return fmt.Errorf("context key %q already exists", key)
	}
	c.root.Set(key, v)
	return nil
}

// Remove deletes a key, returning whether it was present.
func (c *Context) Remove(key string) bool {
	_, ok := c.root.Delete(key)
	return ok
}

// Get returns a key's Value and whether it was present.
func (c *Context) Get(key string) (Value, bool) { return c.root.Get(key) }

// ContainsKey reports whether key is present.
func (c *Context) ContainsKey(key string) bool {
	_, ok := c.root.Get(key)
	return ok
}

// Extend merges other's entries into c, other's entries winning on
// collision.
func (c *Context) Extend(other *Context) {
	if other == nil {
		return
	}
	for pair := other.root.Oldest(); pair != nil; pair = pair.Next() {
		c.root.Set(pair.Key, pair.Value)
	}
}

// Extend deep-merges src into dst: Object keys are merged recursively,
// src winning on leaf collisions; other kinds simply replace.
func Extend(dst, src Value) Value {
	if dst.Kind() != KindObject || src.Kind() != KindObject {
		return src
	}
	dstObj, _ := dst.AsObject()
	srcObj, _ := src.AsObject()
	out := NewObject()
	for pair := dstObj.Oldest(); pair != nil; pair = pair.Next() {
		out.Set(pair.Key, pair.Value)
	}
	for pair := srcObj.Oldest(); pair != nil; pair = pair.Next() {
		if existing, ok := out.Get(pair.Key); ok {
			out.Set(pair.Key, Extend(existing, pair.Value))
		} else {
			out.Set(pair.Key, pair.Value)
		}
	}
	return FromObject(out)
}

// FromAny serializes an arbitrary host value (map, slice, struct, scalar)
// into a Value via reflection, honoring a `stencil` struct tag and falling
// back to `json` tags for field naming.
func FromAny(v any) (Value, error) {
	if v == nil {
		return Null, nil
	}
	if val, ok := v.(Value); ok {
		return val, nil
	}
	rv := reflect.ValueOf(v)
	return fromReflect(rv)
}

func fromReflect(rv reflect.Value) (Value, error) {
	for rv.Kind() == reflect.Ptr || rv.Kind() == reflect.Interface {
		if rv.IsNil() {
			return Null, nil
		}
		rv = rv.Elem()
	}
	switch rv.Kind() {
	case reflect.Bool:
		return Bool(rv.Bool()), nil
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return Int(rv.Int()), nil
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64, reflect.Uintptr:
		u := rv.Uint()
		return Int(cast.ToInt64(u)), nil
	case reflect.Float32, reflect.Float64:
		return Float(rv.Float()), nil
	case reflect.String:
		return String(rv.String()), nil
	case reflect.Slice, reflect.Array:
		if rv.Kind() == reflect.Slice && rv.IsNil() {
			return Array(nil), nil
		}
		items := make([]Value, 0, rv.Len())
		for i := 0; i < rv.Len(); i++ {
			item, err := fromReflect(rv.Index(i))
			if err != nil {
				return Null, errors.Wrapf(err, "index %d", i)
			}
			items = append(items, item)
		}
		return Array(items), nil
	case reflect.Map:
		keys := rv.MapKeys()
		strKeys := make([]string, len(keys))
		for i, k := range keys {
			strKeys[i] = cast.ToString(k.Interface())
		}
		sort.Strings(strKeys)
		byKey := make(map[string]reflect.Value, len(keys))
		for _, k := range keys {
			byKey[cast.ToString(k.Interface())] = k
		}
		obj := NewObject()
		for _, sk := range strKeys {
			item, err := fromReflect(rv.MapIndex(byKey[sk]))
			if err != nil {
				return Null, errors.Wrapf(err, "key %q", sk)
			}
			obj.Set(sk, item)
		}
		return FromObject(obj), nil
	case reflect.Struct:
		obj := NewObject()
		t := rv.Type()
		for i := 0; i < t.NumField(); i++ {
			field := t.Field(i)
			if field.PkgPath != "" {
				continue // unexported
			}
			name := field.Name
			if tag, ok := field.Tag.Lookup("stencil"); ok {
				if tag == "-" {
					continue
				}
				name = tag
			} else if tag, ok := field.Tag.Lookup("json"); ok {
				if comma := indexByte(tag, ','); comma >= 0 {
					tag = tag[:comma]
				}
				if tag == "-" {
					continue
				}
				if tag != "" {
					name = tag
				}
			}
			item, err := fromReflect(rv.Field(i))
			if err != nil {
				return Null, errors.Wrapf(err, "field %q", name)
			}
			obj.Set(name, item)
		}
		return FromObject(obj), nil
	default:
		return Null, fmt.Errorf("cannot convert %s into a template value", rv.Kind())
	}
}

func indexByte(s string, b byte) int {
	for i := 0; i < len(s); i++ {
		if s[i] == b {
			return i
		}
	}
	return -1
}
