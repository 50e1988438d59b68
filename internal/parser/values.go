package parser

import (
	"encoding/json"
	"math"
	"strconv"
	"strings"
)

// The decoded state is a loose JSON tree. These helpers navigate it without
// failing on shape mismatches: a missing or mistyped node reads as absent.

func asObject(v any) map[string]any {
	m, _ := v.(map[string]any)
	return m
}

func objectAt(m map[string]any, keys ...string) map[string]any {
	for _, key := range keys {
		m = asObject(m[key])
		if m == nil {
			return nil
		}
	}
	return m
}

// text renders a scalar as a string. Zero numbers and blank strings count as
// absent so that fallbacks kick in the same way for both encodings.
func text(v any) string {
	switch t := v.(type) {
	case string:
		if strings.TrimSpace(t) == "" {
			return ""
		}
		return t
	case json.Number:
		if f, err := t.Float64(); err == nil && f == 0 {
			return ""
		}
		return t.String()
	case float64:
		if t == 0 {
			return ""
		}
		return strconv.FormatFloat(t, 'f', -1, 64)
	default:
		return ""
	}
}

func firstText(values ...any) string {
	for _, v := range values {
		if s := text(v); s != "" {
			return s
		}
	}
	return ""
}

// positiveInt reads a count-like value. Fractions are truncated.
func positiveInt(v any) (int, bool) {
	var f float64
	switch t := v.(type) {
	case json.Number:
		parsed, err := t.Float64()
		if err != nil {
			return 0, false
		}
		f = parsed
	case float64:
		f = t
	case string:
		parsed, err := strconv.ParseFloat(strings.TrimSpace(t), 64)
		if err != nil {
			return 0, false
		}
		f = parsed
	default:
		return 0, false
	}

	if f <= 0 || math.IsNaN(f) || math.IsInf(f, 0) {
		return 0, false
	}
	return int(f), true
}
