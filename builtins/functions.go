package builtins

import (
	"fmt"
	"math/rand"
	"os"
	"time"

	"github.com/halvard/stencil/runtime"
	"github.com/halvard/stencil/value"
)

func installFunctions(ext *runtime.Extensions) {
	ext.AddFunction("range", func(kwargs map[string]value.Value) (value.Value, error) {
		end, ok := kwargs["end"]
		if !ok {
			return value.Null, fmt.Errorf("range requires an `end` argument")
		}
		endN, ok := end.AsInt()
		if !ok {
			return value.Null, fmt.Errorf("range: `end` must be an integer")
		}
		start := int64(0)
		if v, ok := kwargs["start"]; ok {
			start, ok = v.AsInt()
			if !ok {
				return value.Null, fmt.Errorf("range: `start` must be an integer")
			}
		}
		step := int64(1)
		if v, ok := kwargs["step_by"]; ok {
			step, ok = v.AsInt()
			if !ok {
				return value.Null, fmt.Errorf("range: `step_by` must be an integer")
			}
		}
		if step == 0 {
			return value.Null, fmt.Errorf("range: `step_by` must not be zero")
		}
		var out []value.Value
		if step > 0 {
			for i := start; i < endN; i += step {
				out = append(out, value.Int(i))
			}
		} else {
			for i := start; i > endN; i += step {
				out = append(out, value.Int(i))
			}
		}
		return value.Array(out), nil
	}, false)

	ext.AddFunction("now", func(kwargs map[string]value.Value) (value.Value, error) {
		now := time.Now()
		if v, ok := kwargs["utc"]; ok && v.Truthy() {
			now = now.UTC()
		}
		if v, ok := kwargs["timestamp"]; ok && v.Truthy() {
			return value.Int(now.Unix()), nil
		}
		return value.String(now.Format(time.RFC3339)), nil
	}, false)

	ext.AddFunction("throw", func(kwargs map[string]value.Value) (value.Value, error) {
		msg, ok := kwargs["message"]
		if !ok {
			return value.Null, fmt.Errorf("throw requires a `message` argument")
		}
		s, _ := msg.AsString()
		return value.Null, fmt.Errorf("%s", s)
	}, false)

	ext.AddFunction("get_random", func(kwargs map[string]value.Value) (value.Value, error) {
		start := int64(0)
		if v, ok := kwargs["start"]; ok {
			s, ok := v.AsInt()
			if !ok {
				return value.Null, fmt.Errorf("get_random: `start` must be an integer")
			}
			start = s
		}
		end, ok := kwargs["end"]
		if !ok {
			return value.Null, fmt.Errorf("get_random requires an `end` argument")
		}
		endN, ok := end.AsInt()
		if !ok {
			return value.Null, fmt.Errorf("get_random: `end` must be an integer")
		}
		if endN <= start {
			return value.Null, fmt.Errorf("get_random: `end` must be greater than `start`")
		}
		n := start + rand.Int63n(endN-start)
		return value.Int(n), nil
	}, false)

	ext.AddFunction("get_env", func(kwargs map[string]value.Value) (value.Value, error) {
		name, ok := kwargs["name"]
		if !ok {
			return value.Null, fmt.Errorf("get_env requires a `name` argument")
		}
		n, _ := name.AsString()
		if v, found := os.LookupEnv(n); found {
			return value.String(v), nil
		}
		if def, ok := kwargs["default"]; ok {
			return def, nil
		}
		return value.Null, fmt.Errorf("get_env: environment variable %q is not set", n)
	}, false)
}
