package builtins

import (
	"regexp"
	"sync"

	"github.com/spf13/cast"

	"github.com/halvard/stencil/value"
)

// argAt returns the idx'th positional argument, falling back to a kwarg of
// the same name. Most filters here accept either calling convention since
// the parser feeds both into FilterFunc.
func argAt(args []value.Value, kwargs map[string]value.Value, idx int, name string) (value.Value, bool) {
	if idx < len(args) {
		return args[idx], true
	}
	if v, ok := kwargs[name]; ok {
		return v, true
	}
	return value.Null, false
}

func stringArg(args []value.Value, kwargs map[string]value.Value, idx int, name, def string) string {
	v, ok := argAt(args, kwargs, idx, name)
	if !ok {
		return def
	}
	return cast.ToString(toAny(v))
}

func intArg(args []value.Value, kwargs map[string]value.Value, idx int, name string, def int64) int64 {
	v, ok := argAt(args, kwargs, idx, name)
	if !ok {
		return def
	}
	return cast.ToInt64(toAny(v))
}

func boolArg(args []value.Value, kwargs map[string]value.Value, idx int, name string, def bool) bool {
	v, ok := argAt(args, kwargs, idx, name)
	if !ok {
		return def
	}
	return cast.ToBool(toAny(v))
}

// toAny unwraps a Value into the nearest Go primitive so spf13/cast can
// coerce between string/int/float/bool the way the rest of the ecosystem
// already expects numeric-ish template arguments to behave.
func toAny(v value.Value) any {
	switch v.Kind() {
	case value.KindString:
		s, _ := v.AsString()
		return s
	case value.KindInteger:
		i, _ := v.AsInt()
		return i
	case value.KindFloat:
		f, _ := v.AsFloat()
		return f
	case value.KindBool:
		b, _ := v.AsBool()
		return b
	case value.KindNull:
		return nil
	default:
		return v.Stringify()
	}
}

// regexCache avoids recompiling `matching` patterns on every call
// against the same template.
var (
	regexCacheMu sync.Mutex
	regexCache   = map[string]*regexp.Regexp{}
)

func compileRegex(pattern string) (*regexp.Regexp, error) {
	regexCacheMu.Lock()
	defer regexCacheMu.Unlock()
	if re, ok := regexCache[pattern]; ok {
		return re, nil
	}
	re, err := regexp.Compile(pattern)
	if err != nil {
		return nil, err
	}
	regexCache[pattern] = re
	return re, nil
}
