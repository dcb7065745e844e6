package builtins

import (
	"fmt"
	"math"
	"net/url"
	"regexp"
	"sort"
	"strconv"
	"strings"

	"github.com/samber/lo"
	"github.com/spf13/cast"

	"github.com/halvard/stencil/runtime"
	"github.com/halvard/stencil/value"
)

// stringFilter adapts a (string, args, kwargs) filter body to FilterFunc,
// rejecting a non-string target up front so every string filter below
// doesn't repeat the same type assertion.
func stringFilter(fn func(string, []value.Value, map[string]value.Value) (value.Value, error)) runtime.FilterFunc {
	return func(target value.Value, args []value.Value, kwargs map[string]value.Value) (value.Value, error) {
		s, ok := target.AsString()
		if !ok {
			return value.Null, fmt.Errorf("expected a string, got %s", target.Kind())
		}
		return fn(s, args, kwargs)
	}
}

func installFilters(ext *runtime.Extensions) {
	ext.AddFilter("lower", stringFilter(func(s string, _ []value.Value, _ map[string]value.Value) (value.Value, error) {
		return value.String(strings.ToLower(s)), nil
	}), false)
	ext.AddFilter("upper", stringFilter(func(s string, _ []value.Value, _ map[string]value.Value) (value.Value, error) {
		return value.String(strings.ToUpper(s)), nil
	}), false)
	ext.AddFilter("capitalize", stringFilter(func(s string, _ []value.Value, _ map[string]value.Value) (value.Value, error) {
		if s == "" {
			return value.String(s), nil
		}
		r := []rune(strings.ToLower(s))
		r[0] = []rune(strings.ToUpper(string(r[0])))[0]
		return value.String(string(r)), nil
	}), false)
	ext.AddFilter("title", stringFilter(func(s string, _ []value.Value, _ map[string]value.Value) (value.Value, error) {
		words := strings.Fields(s)
		for i, w := range words {
			r := []rune(w)
			r[0] = []rune(strings.ToUpper(string(r[0])))[0]
			words[i] = string(r)
		}
		return value.String(strings.Join(words, " ")), nil
	}), false)
	ext.AddFilter("wordcount", stringFilter(func(s string, _ []value.Value, _ map[string]value.Value) (value.Value, error) {
		return value.Int(int64(len(strings.Fields(s)))), nil
	}), false)
	ext.AddFilter("length", func(target value.Value, _ []value.Value, _ map[string]value.Value) (value.Value, error) {
		n, ok := target.Len()
		if !ok {
			return value.Null, fmt.Errorf("%s has no length", target.Kind())
		}
		return value.Int(int64(n)), nil
	}, false)
	ext.AddFilter("reverse", func(target value.Value, _ []value.Value, _ map[string]value.Value) (value.Value, error) {
		switch target.Kind() {
		case value.KindString:
			s, _ := target.AsString()
			r := []rune(s)
			for i, j := 0, len(r)-1; i < j; i, j = i+1, j-1 {
				r[i], r[j] = r[j], r[i]
			}
			return value.String(string(r)), nil
		case value.KindArray:
			arr, _ := target.AsArray()
			out := make([]value.Value, len(arr))
			for i, v := range arr {
				out[len(arr)-1-i] = v
			}
			return value.Array(out), nil
		default:
			return value.Null, fmt.Errorf("reverse requires a string or array, got %s", target.Kind())
		}
	}, false)
	ext.AddFilter("trim", stringFilter(func(s string, _ []value.Value, _ map[string]value.Value) (value.Value, error) {
		return value.String(strings.TrimSpace(s)), nil
	}), false)
	ext.AddFilter("trim_start", stringFilter(func(s string, _ []value.Value, _ map[string]value.Value) (value.Value, error) {
		return value.String(strings.TrimLeft(s, " \t\n\r")), nil
	}), false)
	ext.AddFilter("trim_end", stringFilter(func(s string, _ []value.Value, _ map[string]value.Value) (value.Value, error) {
		return value.String(strings.TrimRight(s, " \t\n\r")), nil
	}), false)
	ext.AddFilter("trim_start_matches", stringFilter(func(s string, args []value.Value, kwargs map[string]value.Value) (value.Value, error) {
		patV, ok := argAt(args, kwargs, 0, "pat")
		if !ok {
			return value.Null, runtime.NewError(runtime.KindMissingArgument, "trim_start_matches requires a `pat` argument")
		}
		pat := cast.ToString(toAny(patV))
		return value.String(strings.TrimPrefix(s, pat)), nil
	}), false)
	ext.AddFilter("trim_end_matches", stringFilter(func(s string, args []value.Value, kwargs map[string]value.Value) (value.Value, error) {
		patV, ok := argAt(args, kwargs, 0, "pat")
		if !ok {
			return value.Null, runtime.NewError(runtime.KindMissingArgument, "trim_end_matches requires a `pat` argument")
		}
		pat := cast.ToString(toAny(patV))
		return value.String(strings.TrimSuffix(s, pat)), nil
	}), false)
	ext.AddFilter("addslashes", stringFilter(func(s string, _ []value.Value, _ map[string]value.Value) (value.Value, error) {
		r := strings.NewReplacer(`\`, `\\`, `'`, `\'`, `"`, `\"`)
		return value.String(r.Replace(s)), nil
	}), false)
	ext.AddFilter("replace", stringFilter(func(s string, args []value.Value, kwargs map[string]value.Value) (value.Value, error) {
		fromV, ok := argAt(args, kwargs, 0, "from")
		if !ok {
			return value.Null, runtime.NewError(runtime.KindMissingArgument, "replace requires a `from` argument")
		}
		toV, ok := argAt(args, kwargs, 1, "to")
		if !ok {
			return value.Null, runtime.NewError(runtime.KindMissingArgument, "replace requires a `to` argument")
		}
		from := cast.ToString(toAny(fromV))
		to := cast.ToString(toAny(toV))
		return value.String(strings.ReplaceAll(s, from, to)), nil
	}), false)
	ext.AddFilter("split", stringFilter(func(s string, args []value.Value, kwargs map[string]value.Value) (value.Value, error) {
		patV, ok := argAt(args, kwargs, 0, "pat")
		if !ok {
			return value.Null, runtime.NewError(runtime.KindMissingArgument, "split requires a `pat` argument")
		}
		pat := cast.ToString(toAny(patV))
		parts := strings.Split(s, pat)
		out := make([]value.Value, len(parts))
		for i, p := range parts {
			out[i] = value.String(p)
		}
		return value.Array(out), nil
	}), false)
	ext.AddFilter("striptags", stringFilter(func(s string, _ []value.Value, _ map[string]value.Value) (value.Value, error) {
		var sb strings.Builder
		inTag := false
		for _, r := range s {
			switch {
			case r == '<':
				inTag = true
			case r == '>':
				inTag = false
			case !inTag:
				sb.WriteRune(r)
			}
		}
		return value.String(sb.String()), nil
	}), false)
	ext.AddFilter("linebreaksbr", stringFilter(func(s string, _ []value.Value, _ map[string]value.Value) (value.Value, error) {
		return value.String(strings.ReplaceAll(s, "\n", "<br>\n")), nil
	}), false)
	ext.AddFilter("spaceless", stringFilter(func(s string, _ []value.Value, _ map[string]value.Value) (value.Value, error) {
		return value.String(spacelessPattern.ReplaceAllString(s, "><")), nil
	}), false)
	ext.AddFilter("indent", stringFilter(func(s string, args []value.Value, kwargs map[string]value.Value) (value.Value, error) {
		prefix := stringArg(args, kwargs, 0, "prefix", "    ")
		first := boolArg(args, kwargs, 1, "first", false)
		blank := boolArg(args, kwargs, 2, "blank", false)
		lines := strings.Split(s, "\n")
		for i, line := range lines {
			if i == 0 && !first {
				continue
			}
			if line == "" && !blank {
				continue
			}
			lines[i] = prefix + line
		}
		return value.String(strings.Join(lines, "\n")), nil
	}), false)
	ext.AddFilter("truncate", stringFilter(func(s string, args []value.Value, kwargs map[string]value.Value) (value.Value, error) {
		length := int(intArg(args, kwargs, 0, "length", 255))
		end := stringArg(args, kwargs, 1, "end", "…")
		r := []rune(s)
		if len(r) <= length {
			return value.String(s), nil
		}
		return value.String(string(r[:length]) + end), nil
	}), false)
	ext.AddFilter("as_str", func(target value.Value, _ []value.Value, _ map[string]value.Value) (value.Value, error) {
		return value.String(target.Stringify()), nil
	}, false)

	// Number filters.
	ext.AddFilter("abs", func(target value.Value, _ []value.Value, _ map[string]value.Value) (value.Value, error) {
		switch target.Kind() {
		case value.KindInteger:
			i, _ := target.AsInt()
			if i < 0 {
				i = -i
			}
			return value.Int(i), nil
		case value.KindFloat:
			f, _ := target.AsFloat()
			return value.Float(math.Abs(f)), nil
		default:
			return value.Null, fmt.Errorf("abs requires a number, got %s", target.Kind())
		}
	}, false)
	ext.AddFilter("round", func(target value.Value, args []value.Value, kwargs map[string]value.Value) (value.Value, error) {
		f, ok := target.AsFloat()
		if !ok {
			return value.Null, fmt.Errorf("round requires a number, got %s", target.Kind())
		}
		method := stringArg(args, kwargs, 0, "method", "common")
		precision := int(intArg(args, kwargs, 1, "precision", 0))
		mult := math.Pow10(precision)
		scaled := f * mult
		switch method {
		case "common":
			scaled = math.Floor(scaled + 0.5)
		case "ceil":
			scaled = math.Ceil(scaled)
		case "floor":
			scaled = math.Floor(scaled)
		default:
			return value.Null, fmt.Errorf("unknown round method %q", method)
		}
		return value.Float(scaled / mult), nil
	}, false)
	ext.AddFilter("pluralize", func(target value.Value, args []value.Value, kwargs map[string]value.Value) (value.Value, error) {
		n, ok := target.AsFloat()
		if !ok {
			return value.Null, fmt.Errorf("pluralize requires a number, got %s", target.Kind())
		}
		singular := stringArg(args, kwargs, 0, "singular", "")
		plural := stringArg(args, kwargs, 1, "plural", "s")
		if n == 1 {
			return value.String(singular), nil
		}
		return value.String(plural), nil
	}, false)
	ext.AddFilter("filesizeformat", func(target value.Value, _ []value.Value, _ map[string]value.Value) (value.Value, error) {
		size, ok := target.AsFloat()
		if !ok {
			return value.Null, fmt.Errorf("filesizeformat requires a number, got %s", target.Kind())
		}
		return value.String(formatFileSize(size)), nil
	}, false)
	ext.AddFilter("int", func(target value.Value, args []value.Value, kwargs map[string]value.Value) (value.Value, error) {
		base := int(intArg(args, kwargs, 1, "base", 10))
		if s, ok := target.AsString(); ok {
			if i, err := strconv.ParseInt(strings.TrimSpace(s), base, 64); err == nil {
				return value.Int(i), nil
			}
			if def, ok := argAt(args, kwargs, 0, "default"); ok {
				return def, nil
			}
			return value.Null, fmt.Errorf("cannot parse %q as an integer", s)
		}
		if f, ok := target.AsFloat(); ok {
			return value.Int(int64(f)), nil
		}
		if def, ok := argAt(args, kwargs, 0, "default"); ok {
			return def, nil
		}
		return value.Null, fmt.Errorf("int requires a number or string, got %s", target.Kind())
	}, false)
	ext.AddFilter("float", func(target value.Value, args []value.Value, kwargs map[string]value.Value) (value.Value, error) {
		if f, ok := target.AsFloat(); ok {
			return value.Float(f), nil
		}
		if s, ok := target.AsString(); ok {
			if f, err := strconv.ParseFloat(strings.TrimSpace(s), 64); err == nil {
				return value.Float(f), nil
			}
		}
		if def, ok := argAt(args, kwargs, 0, "default"); ok {
			return def, nil
		}
		return value.Null, fmt.Errorf("cannot convert %s to a float", target.Kind())
	}, false)

	// Array/object filters.
	ext.AddFilter("first", func(target value.Value, _ []value.Value, _ map[string]value.Value) (value.Value, error) {
		items, ok := sequenceOf(target)
		if !ok {
			return value.Null, fmt.Errorf("first requires a sequence, got %s", target.Kind())
		}
		if len(items) == 0 {
			return value.Null, fmt.Errorf("first called on an empty sequence")
		}
		return items[0], nil
	}, false)
	ext.AddFilter("last", func(target value.Value, _ []value.Value, _ map[string]value.Value) (value.Value, error) {
		items, ok := sequenceOf(target)
		if !ok {
			return value.Null, fmt.Errorf("last requires a sequence, got %s", target.Kind())
		}
		if len(items) == 0 {
			return value.Null, fmt.Errorf("last called on an empty sequence")
		}
		return items[len(items)-1], nil
	}, false)
	ext.AddFilter("nth", func(target value.Value, args []value.Value, kwargs map[string]value.Value) (value.Value, error) {
		items, ok := sequenceOf(target)
		if !ok {
			return value.Null, fmt.Errorf("nth requires a sequence, got %s", target.Kind())
		}
		n := int(intArg(args, kwargs, 0, "n", 0))
		if n < 0 || n >= len(items) {
			return value.Null, fmt.Errorf("index %d out of range for sequence of length %d", n, len(items))
		}
		return items[n], nil
	}, false)
	ext.AddFilter("join", func(target value.Value, args []value.Value, kwargs map[string]value.Value) (value.Value, error) {
		arr, ok := target.AsArray()
		if !ok {
			return value.Null, fmt.Errorf("join requires an array, got %s", target.Kind())
		}
		sep := stringArg(args, kwargs, 0, "sep", "")
		parts := lo.Map(arr, func(v value.Value, _ int) string { return v.Stringify() })
		return value.String(strings.Join(parts, sep)), nil
	}, false)
	ext.AddFilter("sort", func(target value.Value, args []value.Value, kwargs map[string]value.Value) (value.Value, error) {
		arr, ok := target.AsArray()
		if !ok {
			return value.Null, fmt.Errorf("sort requires an array, got %s", target.Kind())
		}
		out := append([]value.Value(nil), arr...)
		attr := stringArg(args, kwargs, 0, "attribute", "")
		if attr == "" {
			if !value.StableSort(out) {
				return value.Null, fmt.Errorf("sort: mixed, non-comparable element types")
			}
			return value.Array(out), nil
		}
		keys := make([]value.Value, len(out))
		for i, v := range out {
			keys[i], _ = getAttr(v, attr)
		}
		if err := stableSortByKeys(out, keys); err != nil {
			return value.Null, err
		}
		return value.Array(out), nil
	}, false)
	ext.AddFilter("unique", func(target value.Value, args []value.Value, kwargs map[string]value.Value) (value.Value, error) {
		arr, ok := target.AsArray()
		if !ok {
			return value.Null, fmt.Errorf("unique requires an array, got %s", target.Kind())
		}
		attr := stringArg(args, kwargs, 0, "attribute", "")
		caseSensitive := boolArg(args, kwargs, 1, "case_sensitive", false)
		seen := map[string]bool{}
		var out []value.Value
		for _, v := range arr {
			k := v
			if attr != "" {
				k, _ = getAttr(v, attr)
			}
			s := k.Stringify()
			if !caseSensitive {
				s = strings.ToLower(s)
			}
			if seen[s] {
				continue
			}
			seen[s] = true
			out = append(out, v)
		}
		return value.Array(out), nil
	}, false)
	ext.AddFilter("slice", func(target value.Value, args []value.Value, kwargs map[string]value.Value) (value.Value, error) {
		items, ok := sequenceOf(target)
		if !ok {
			return value.Null, fmt.Errorf("slice requires a sequence, got %s", target.Kind())
		}
		n := len(items)
		start := int(intArg(args, kwargs, 0, "start", 0))
		end := int(intArg(args, kwargs, 1, "end", int64(n)))
		start = clampIndex(start, n)
		end = clampIndex(end, n)
		if start > end {
			start = end
		}
		sliced := items[start:end]
		if target.Kind() == value.KindString {
			var sb strings.Builder
			for _, v := range sliced {
				sb.WriteString(v.Stringify())
			}
			return value.String(sb.String()), nil
		}
		return value.Array(append([]value.Value(nil), sliced...)), nil
	}, false)
	ext.AddFilter("group_by", func(target value.Value, args []value.Value, kwargs map[string]value.Value) (value.Value, error) {
		arr, ok := target.AsArray()
		if !ok {
			return value.Null, fmt.Errorf("group_by requires an array, got %s", target.Kind())
		}
		attr := stringArg(args, kwargs, 0, "attribute", "")
		out := value.NewObject()
		for _, v := range arr {
			key, found := getAttr(v, attr)
			if !found || key.IsNull() {
				continue
			}
			ks := key.Stringify()
			bucket, ok := out.Get(ks)
			if !ok {
				bucket = value.Array(nil)
			}
			items, _ := bucket.AsArray()
			out.Set(ks, value.Array(append(items, v)))
		}
		return value.FromObject(out), nil
	}, false)
	ext.AddFilter("filter", func(target value.Value, args []value.Value, kwargs map[string]value.Value) (value.Value, error) {
		arr, ok := target.AsArray()
		if !ok {
			return value.Null, fmt.Errorf("filter requires an array, got %s", target.Kind())
		}
		attr := stringArg(args, kwargs, 0, "attribute", "")
		want, hasWant := argAt(args, kwargs, 1, "value")
		out := lo.Filter(arr, func(v value.Value, _ int) bool {
			got, found := getAttr(v, attr)
			if !found {
				return false
			}
			if hasWant {
				return value.Equal(got, want)
			}
			return got.Truthy()
		})
		return value.Array(out), nil
	}, false)
	ext.AddFilter("map", func(target value.Value, args []value.Value, kwargs map[string]value.Value) (value.Value, error) {
		arr, ok := target.AsArray()
		if !ok {
			return value.Null, fmt.Errorf("map requires an array, got %s", target.Kind())
		}
		attr := stringArg(args, kwargs, 0, "attribute", "")
		out := lo.Map(arr, func(v value.Value, _ int) value.Value {
			got, _ := getAttr(v, attr)
			return got
		})
		return value.Array(out), nil
	}, false)
	ext.AddFilter("concat", func(target value.Value, args []value.Value, kwargs map[string]value.Value) (value.Value, error) {
		arr, ok := target.AsArray()
		if !ok {
			return value.Null, fmt.Errorf("concat requires an array, got %s", target.Kind())
		}
		with, ok := argAt(args, kwargs, 0, "with")
		if !ok {
			return value.Null, fmt.Errorf("concat requires a `with` array argument")
		}
		withArr, ok := with.AsArray()
		if !ok {
			return value.Null, fmt.Errorf("concat's `with` argument must be an array, got %s", with.Kind())
		}
		return value.Array(append(append([]value.Value(nil), arr...), withArr...)), nil
	}, false)
	ext.AddFilter("get", func(target value.Value, args []value.Value, kwargs map[string]value.Value) (value.Value, error) {
		obj, ok := target.AsObject()
		if !ok {
			return value.Null, fmt.Errorf("get requires an object, got %s", target.Kind())
		}
		key := stringArg(args, kwargs, 0, "key", "")
		if v, ok := obj.Get(key); ok {
			return v, nil
		}
		if def, ok := argAt(args, kwargs, 1, "default"); ok {
			return def, nil
		}
		return value.Null, nil
	}, false)

	// Encoding filters.
	ext.AddFilter("json_encode", func(target value.Value, args []value.Value, kwargs map[string]value.Value) (value.Value, error) {
		pretty := boolArg(args, kwargs, 0, "pretty", false)
		return value.String(target.JSONEncode(pretty)), nil
	}, false)
	ext.AddFilter("escape", stringFilter(func(s string, _ []value.Value, _ map[string]value.Value) (value.Value, error) {
		return value.String(runtime.EscapeHTML(s)), nil
	}), true)
	ext.AddFilter("escape_xml", stringFilter(func(s string, _ []value.Value, _ map[string]value.Value) (value.Value, error) {
		return value.String(escapeXMLReplacer.Replace(s)), nil
	}), true)
	ext.AddFilter("urlencode", stringFilter(func(s string, _ []value.Value, _ map[string]value.Value) (value.Value, error) {
		return value.String(urlencodeLoose(s)), nil
	}), false)
	ext.AddFilter("urlencode_strict", stringFilter(func(s string, _ []value.Value, _ map[string]value.Value) (value.Value, error) {
		return value.String(url.QueryEscape(s)), nil
	}), false)
	ext.AddFilter("safe", func(target value.Value, _ []value.Value, _ map[string]value.Value) (value.Value, error) {
		return target, nil
	}, true)

	// Time filters.
	ext.AddFilter("date", func(target value.Value, args []value.Value, kwargs map[string]value.Value) (value.Value, error) {
		t, err := parseTimeValue(target)
		if err != nil {
			return value.Null, err
		}
		format := stringArg(args, kwargs, 0, "format", "%Y-%m-%d")
		if tz := stringArg(args, kwargs, 1, "timezone", ""); tz != "" {
			loc, err := loadLocation(tz)
			if err != nil {
				return value.Null, err
			}
			t = t.In(loc)
		}
		return value.String(strftime(t, format)), nil
	}, false)
}

var spacelessPattern = regexp.MustCompile(`>\s+<`)

var escapeXMLReplacer = strings.NewReplacer(
	"&", "&amp;",
	"<", "&lt;",
	">", "&gt;",
	`"`, "&quot;",
	"'", "&apos;",
)

func urlencodeLoose(s string) string {
	var sb strings.Builder
	for _, r := range s {
		switch {
		case r == '/':
			sb.WriteRune(r)
		case (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z') || (r >= '0' && r <= '9') || r == '-' || r == '_' || r == '.' || r == '~':
			sb.WriteRune(r)
		default:
			sb.WriteString(url.QueryEscape(string(r)))
		}
	}
	return sb.String()
}

func formatFileSize(size float64) string {
	negative := size < 0
	if negative {
		size = -size
	}
	const unit = 1000.0
	units := []string{"B", "kB", "MB", "GB", "TB", "PB"}
	if size < unit {
		out := fmt.Sprintf("%d %s", int64(size), units[0])
		if negative {
			out = "-" + out
		}
		return out
	}
	idx := 0
	for size >= unit && idx < len(units)-1 {
		size /= unit
		idx++
	}
	out := fmt.Sprintf("%.1f %s", size, units[idx])
	if negative {
		out = "-" + out
	}
	return out
}

// sequenceOf unwraps an Array or String into an ordered slice of Values,
// letting first/last/nth/slice operate uniformly over either.
func sequenceOf(v value.Value) ([]value.Value, bool) {
	switch v.Kind() {
	case value.KindArray:
		arr, _ := v.AsArray()
		return arr, true
	case value.KindString:
		s, _ := v.AsString()
		runes := []rune(s)
		out := make([]value.Value, len(runes))
		for i, r := range runes {
			out[i] = value.String(string(r))
		}
		return out, true
	default:
		return nil, false
	}
}

func clampIndex(i, n int) int {
	if i < 0 {
		i += n
	}
	if i < 0 {
		return 0
	}
	if i > n {
		return n
	}
	return i
}

// getAttr resolves a dotted attribute path against an Object-shaped item.
// An empty name returns the item itself, letting sort/unique/filter/map be
// called with no attribute (plain-value comparison).
func getAttr(v value.Value, name string) (value.Value, bool) {
	if name == "" {
		return v, true
	}
	obj, ok := v.AsObject()
	if !ok {
		return value.Null, false
	}
	cur := value.FromObject(obj)
	for _, part := range strings.Split(name, ".") {
		o, ok := cur.AsObject()
		if !ok {
			return value.Null, false
		}
		next, ok := o.Get(part)
		if !ok {
			return value.Null, false
		}
		cur = next
	}
	return cur, true
}

func stableSortByKeys(items, keys []value.Value) error {
	idx := make([]int, len(items))
	for i := range idx {
		idx[i] = i
	}
	var sortErr error
	sort.SliceStable(idx, func(a, b int) bool {
		less, ok := value.SortLess(keys[idx[a]], keys[idx[b]])
		if !ok {
			sortErr = fmt.Errorf("sort: mixed, non-comparable attribute values")
		}
		return less
	})
	out := make([]value.Value, len(items))
	for i, j := range idx {
		out[i] = items[j]
	}
	copy(items, out)
	return sortErr
}
