package builtins

import (
	"fmt"
	"strings"
	"time"

	"github.com/halvard/stencil/value"
)

// naiveLayouts are tried in order against a date/time string that carries
// no explicit offset.
var naiveLayouts = []string{
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
	"2006-01-02",
}

// parseTimeValue accepts a Unix timestamp (Integer), an RFC 3339 string, or
// a naive date/time string, per the `date` filter's documented inputs.
func parseTimeValue(v value.Value) (time.Time, error) {
	switch v.Kind() {
	case value.KindInteger:
		i, _ := v.AsInt()
		return time.Unix(i, 0).UTC(), nil
	case value.KindString:
		s, _ := v.AsString()
		if t, err := time.Parse(time.RFC3339, s); err == nil {
			return t, nil
		}
		for _, layout := range naiveLayouts {
			if t, err := time.Parse(layout, s); err == nil {
				return t, nil
			}
		}
		return time.Time{}, fmt.Errorf("date: cannot parse %q as a timestamp", s)
	default:
		return time.Time{}, fmt.Errorf("date requires an integer timestamp or string, got %s", v.Kind())
	}
}

func loadLocation(name string) (*time.Location, error) {
	if strings.EqualFold(name, "utc") {
		return time.UTC, nil
	}
	loc, err := time.LoadLocation(name)
	if err != nil {
		return nil, fmt.Errorf("date: unknown timezone %q", name)
	}
	return loc, nil
}

// strftime implements the handful of strftime directives the `date` filter
// actually exercises; anything else passes through unchanged.
func strftime(t time.Time, format string) string {
	var sb strings.Builder
	runes := []rune(format)
	for i := 0; i < len(runes); i++ {
		if runes[i] != '%' || i == len(runes)-1 {
			sb.WriteRune(runes[i])
			continue
		}
		i++
		switch runes[i] {
		case 'Y':
			sb.WriteString(fmt.Sprintf("%04d", t.Year()))
		case 'y':
			sb.WriteString(fmt.Sprintf("%02d", t.Year()%100))
		case 'm':
			sb.WriteString(fmt.Sprintf("%02d", int(t.Month())))
		case 'd':
			sb.WriteString(fmt.Sprintf("%02d", t.Day()))
		case 'H':
			sb.WriteString(fmt.Sprintf("%02d", t.Hour()))
		case 'M':
			sb.WriteString(fmt.Sprintf("%02d", t.Minute()))
		case 'S':
			sb.WriteString(fmt.Sprintf("%02d", t.Second()))
		case 'Z':
			sb.WriteString(t.Format("MST"))
		case 'z':
			sb.WriteString(t.Format("-0700"))
		case 'b', 'B':
			sb.WriteString(t.Month().String())
		case 'a', 'A':
			sb.WriteString(t.Weekday().String())
		case 'j':
			sb.WriteString(fmt.Sprintf("%03d", t.YearDay()))
		case '%':
			sb.WriteByte('%')
		default:
			sb.WriteByte('%')
			sb.WriteRune(runes[i])
		}
	}
	return sb.String()
}
