// Package normalize coerces loosely typed extracted values into canonical
// types. Nothing here returns an error or panics: unparseable input becomes
// "unknown" and is logged at warn level.
package normalize

import (
	"encoding/json"
	"math"
	"reflect"
	"strconv"
	"strings"
)

// numeric reports v as a float64 when it is already a number.
func numeric(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int8:
		return float64(n), true
	case int16:
		return float64(n), true
	case int32:
		return float64(n), true
	case int64:
		return float64(n), true
	case uint:
		return float64(n), true
	case uint8:
		return float64(n), true
	case uint16:
		return float64(n), true
	case uint32:
		return float64(n), true
	case uint64:
		return float64(n), true
	case json.Number:
		f, err := n.Float64()
		if err != nil {
			return 0, false
		}
		return f, true
	}
	return 0, false
}

// Present reports whether v counts as a supplied value: nil, empty strings,
// numeric zero and false are all absent.
func Present(v any) bool {
	switch t := v.(type) {
	case nil:
		return false
	case string:
		return t != ""
	case bool:
		return t
	case json.Number:
		f, err := t.Float64()
		return err != nil || f != 0
	}
	if f, ok := numeric(v); ok {
		return f != 0
	}
	if rv := reflect.ValueOf(v); rv.Kind() == reflect.String {
		return rv.Len() > 0
	}
	return true
}

// Stringify renders any scalar the way a person would type it. Integral
// floats print without a fractional part so 2.0 and 2 both render "2".
func Stringify(v any) string {
	switch t := v.(type) {
	case nil:
		return ""
	case string:
		return t
	case json.Number:
		return t.String()
	case float64:
		return formatFloat(t)
	case float32:
		return formatFloat(float64(t))
	case bool:
		if t {
			return "True"
		}
		return "False"
	case []any:
		parts := make([]string, 0, len(t))
		for _, p := range t {
			parts = append(parts, Stringify(p))
		}
		return strings.Join(parts, ", ")
	case []string:
		return strings.Join(t, ", ")
	}
	// Named string types such as model.Status.
	if rv := reflect.ValueOf(v); rv.Kind() == reflect.String {
		return rv.String()
	}
	if f, ok := numeric(v); ok {
		return formatFloat(f)
	}
	b, err := json.Marshal(v)
	if err != nil {
		return ""
	}
	return string(b)
}

func formatFloat(f float64) string {
	if math.IsInf(f, 0) || math.IsNaN(f) {
		return strconv.FormatFloat(f, 'g', -1, 64)
	}
	return strconv.FormatFloat(f, 'f', -1, 64)
}

// ToLowerSafe converts any value to a trimmed, lower-cased string. Absent
// values yield "". Every categorical field must pass through here before a
// string operation is applied to it.
func ToLowerSafe(v any) string {
	return strings.ToLower(ToTrimmedSafe(v))
}

// ToTrimmedSafe is ToLowerSafe without the case folding.
func ToTrimmedSafe(v any) string {
	if !Present(v) {
		return ""
	}
	return strings.TrimSpace(Stringify(v))
}
