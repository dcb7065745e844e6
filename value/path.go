package value

import "fmt"

// StepKind tags a Path step.
type StepKind int

const (
	StepNamed StepKind = iota
	StepIndex
)

// Step is one element of a Path: either a named field access (`.name`) or
// an index access (`[expr]` or the numeric-literal `.0` shortcut).
type Step struct {
	Kind  StepKind
	Name  string
	Index Value
}

func NamedField(name string) Step { return Step{Kind: StepNamed, Name: name} }

func IndexField(idx Value) Step { return Step{Kind: StepIndex, Index: idx} }

// Path is an ordered sequence of steps rooted at some Value.
type Path []Step

// LookupError reports why a path traversal failed.
type LookupError struct {
	Step    int
	Message string
}

func (e *LookupError) Error() string { return e.Message }

// Lookup walks path against root, returning the resolved Value or a
// LookupError describing the first failing step.
func Lookup(root Value, path Path) (Value, error) {
	cur := root
	for i, step := range path {
		next, err := lookupStep(cur, step)
		if err != nil {
			return Null, &LookupError{Step: i, Message: err.Error()}
		}
		cur = next
	}
	return cur, nil
}

func lookupStep(cur Value, step Step) (Value, error) {
	switch step.Kind {
	case StepNamed:
		obj, ok := cur.AsObject()
		if !ok {
			return Null, fmt.Errorf("cannot access field %q on a %s", step.Name, cur.Kind())
		}
		v, ok := obj.Get(step.Name)
		if !ok {
			return Null, fmt.Errorf("field %q is undefined", step.Name)
		}
		return v, nil
	case StepIndex:
		return lookupIndex(cur, step.Index)
	default:
		return Null, fmt.Errorf("invalid path step")
	}
}

func lookupIndex(cur Value, idx Value) (Value, error) {
	switch cur.Kind() {
	case KindArray:
		items, _ := cur.AsArray()
		i, ok := idx.AsInt()
		if !ok {
			return Null, fmt.Errorf("array index must be an integer")
		}
		n := int64(len(items))
		if i < 0 {
			i += n
		}
		if i < 0 || i >= n {
			return Null, fmt.Errorf("index %d out of range for array of length %d", i, n)
		}
		return items[i], nil
	case KindObject:
		key, ok := idx.AsString()
		if !ok {
			return Null, fmt.Errorf("object index must be a string")
		}
		obj, _ := cur.AsObject()
		v, ok := obj.Get(key)
		if !ok {
			return Null, fmt.Errorf("key %q is undefined", key)
		}
		return v, nil
	case KindString:
		s, _ := cur.AsString()
		runes := []rune(s)
		i, ok := idx.AsInt()
		if !ok {
			return Null, fmt.Errorf("string index must be an integer")
		}
		n := int64(len(runes))
		if i < 0 {
			i += n
		}
		if i < 0 || i >= n {
			return Null, fmt.Errorf("index %d out of range for string of length %d", i, n)
		}
		return String(string(runes[i])), nil
	default:
		return Null, fmt.Errorf("cannot index into a %s", cur.Kind())
	}
}

// Contains implements the `in` operator's membership test.
func Contains(container, needle Value) (bool, error) {
	switch container.Kind() {
	case KindArray:
		items, _ := container.AsArray()
		for _, item := range items {
			if Equal(item, needle) {
				return true, nil
			}
		}
		return false, nil
	case KindObject:
		key, ok := needle.AsString()
		if !ok {
			return false, fmt.Errorf("'in' on an object requires a string key")
		}
		obj, _ := container.AsObject()
		_, ok = obj.Get(key)
		return ok, nil
	case KindString:
		switch needle.Kind() {
		case KindString, KindInteger, KindFloat, KindBool:
			hay, _ := container.AsString()
			needleStr := needle.Stringify()
			return containsSubstring(hay, needleStr), nil
		default:
			return false, fmt.Errorf("'in' on a string requires a string, number or bool")
		}
	default:
		return false, fmt.Errorf("'in' requires an array, object or string, got %s", container.Kind())
	}
}

func containsSubstring(hay, needle string) bool {
	if needle == "" {
		return true
	}
	return indexOf(hay, needle) >= 0
}

func indexOf(hay, needle string) int {
	n, m := len(hay), len(needle)
	if m > n {
		return -1
	}
	for i := 0; i+m <= n; i++ {
		if hay[i:i+m] == needle {
			return i
		}
	}
	return -1
}
