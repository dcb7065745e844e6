package builtins

import (
	"fmt"
	"strings"

	"github.com/halvard/stencil/runtime"
	"github.com/halvard/stencil/value"
)

// installTests registers every built-in test except `defined` and
// `undefined`, which the evaluator special-cases so they can observe an
// undefined target without erroring first.
func installTests(ext *runtime.Extensions) {
	ext.AddTest("odd", func(target value.Value, _ []value.Value) (bool, error) {
		i, ok := target.AsInt()
		if !ok {
			return false, fmt.Errorf("odd requires an integer, got %s", target.Kind())
		}
		return i%2 != 0, nil
	})
	ext.AddTest("even", func(target value.Value, _ []value.Value) (bool, error) {
		i, ok := target.AsInt()
		if !ok {
			return false, fmt.Errorf("even requires an integer, got %s", target.Kind())
		}
		return i%2 == 0, nil
	})
	ext.AddTest("string", func(target value.Value, _ []value.Value) (bool, error) {
		return target.Kind() == value.KindString, nil
	})
	ext.AddTest("number", func(target value.Value, _ []value.Value) (bool, error) {
		return target.IsNumeric(), nil
	})
	ext.AddTest("divisibleby", func(target value.Value, args []value.Value) (bool, error) {
		if len(args) < 1 {
			return false, fmt.Errorf("divisibleby requires 1 argument")
		}
		n, ok := target.AsFloat()
		d, okd := args[0].AsFloat()
		if !ok || !okd {
			return false, fmt.Errorf("divisibleby requires numeric target and argument")
		}
		if d == 0 {
			return false, fmt.Errorf("divisibleby: division by zero")
		}
		return int64(n)%int64(d) == 0, nil
	})
	ext.AddTest("iterable", func(target value.Value, _ []value.Value) (bool, error) {
		switch target.Kind() {
		case value.KindArray, value.KindObject, value.KindString:
			return true, nil
		default:
			return false, nil
		}
	})
	ext.AddTest("object", func(target value.Value, _ []value.Value) (bool, error) {
		return target.Kind() == value.KindObject, nil
	})
	ext.AddTest("starting_with", func(target value.Value, args []value.Value) (bool, error) {
		s, ok := target.AsString()
		if !ok || len(args) < 1 {
			return false, fmt.Errorf("starting_with requires a string target and a string argument")
		}
		prefix, _ := args[0].AsString()
		return strings.HasPrefix(s, prefix), nil
	})
	ext.AddTest("ending_with", func(target value.Value, args []value.Value) (bool, error) {
		s, ok := target.AsString()
		if !ok || len(args) < 1 {
			return false, fmt.Errorf("ending_with requires a string target and a string argument")
		}
		suffix, _ := args[0].AsString()
		return strings.HasSuffix(s, suffix), nil
	})
	ext.AddTest("containing", func(target value.Value, args []value.Value) (bool, error) {
		if len(args) < 1 {
			return false, fmt.Errorf("containing requires 1 argument")
		}
		has, err := value.Contains(target, args[0])
		if err != nil {
			return false, err
		}
		return has, nil
	})
	ext.AddTest("matching", func(target value.Value, args []value.Value) (bool, error) {
		s, ok := target.AsString()
		if !ok || len(args) < 1 {
			return false, fmt.Errorf("matching requires a string target and a regex argument")
		}
		pattern, _ := args[0].AsString()
		re, err := compileRegex(pattern)
		if err != nil {
			return false, fmt.Errorf("matching: invalid regex %q: %w", pattern, err)
		}
		return re.MatchString(s), nil
	})
}
