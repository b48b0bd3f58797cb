package model

import (
	"fmt"
	"reflect"
	"strconv"
	"strings"
)

// DefaultValue returns the type-appropriate untouched value of a field
func DefaultValue(f Field) any {
	switch f.Type {
	case FieldMultiSelect, FieldCheckbox, FieldTags:
		return []any{}
	case FieldRating, FieldFile:
		return nil
	case FieldSlider:
		if f.Settings.DefaultValue != nil {
			return *f.Settings.DefaultValue
		}
		if f.Settings.Min != nil {
			return *f.Settings.Min
		}
		return float64(0)
	default:
		return ""
	}
}

// Defaults builds the initial form data for a list of fields
func Defaults(fields []Field) map[string]any {
	out := make(map[string]any, len(fields))
	for _, f := range fields {
		out[f.ID] = DefaultValue(f)
	}
	return out
}

// IsEmpty reports whether v holds no answer: nil, blank string or empty slice
func IsEmpty(v any) bool {
	switch t := v.(type) {
	case nil:
		return true
	case string:
		return strings.TrimSpace(t) == ""
	case []any:
		return len(t) == 0
	case []string:
		return len(t) == 0
	case map[string]any:
		return len(t) == 0
	}
	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Slice, reflect.Array, reflect.Map:
		return rv.Len() == 0
	case reflect.Pointer:
		return rv.IsNil()
	}
	return false
}

// IsDefault reports whether v is still the untouched default of f
func IsDefault(f Field, v any) bool {
	def := DefaultValue(f)
	if f.Type == FieldSlider {
		return Equal(def, v)
	}
	if IsEmpty(def) {
		return IsEmpty(v)
	}
	return Equal(def, v)
}

// AnyNonDefault reports whether some field in data differs from its default
func AnyNonDefault(fields []Field, data map[string]any) bool {
	for _, f := range fields {
		if v, ok := data[f.ID]; ok && !IsDefault(f, v) {
			return true
		}
	}
	return false
}

// Equal compares two form values loosely: numbers by value, slices element-wise
func Equal(a, b any) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	if af, ok := ToFloat(a); ok {
		if bf, ok := ToFloat(b); ok {
			return af == bf
		}
	}
	as, aok := ToSlice(a)
	bs, bok := ToSlice(b)
	if aok && bok {
		if len(as) != len(bs) {
			return false
		}
		for i := range as {
			if !Equal(as[i], bs[i]) {
				return false
			}
		}
		return true
	}
	return reflect.DeepEqual(a, b)
}

// ToFloat converts numeric values (and nothing else) to float64
func ToFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int32:
		return float64(n), true
	case int64:
		return float64(n), true
	case uint:
		return float64(n), true
	case uint64:
		return float64(n), true
	}
	return 0, false
}

// ToSlice converts slice values to []any
func ToSlice(v any) ([]any, bool) {
	switch s := v.(type) {
	case []any:
		return s, true
	case []string:
		out := make([]any, len(s))
		for i := range s {
			out[i] = s[i]
		}
		return out, true
	}
	rv := reflect.ValueOf(v)
	if rv.Kind() != reflect.Slice && rv.Kind() != reflect.Array {
		return nil, false
	}
	out := make([]any, rv.Len())
	for i := range out {
		out[i] = rv.Index(i).Interface()
	}
	return out, true
}

// Stringify renders a scalar value the way it would be typed into a text input
func Stringify(v any) string {
	switch t := v.(type) {
	case nil:
		return ""
	case string:
		return t
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64)
	}
	return fmt.Sprint(v)
}

// Clone makes a shallow copy of form data, copying slices so callers cannot alias them
func Clone(data map[string]any) map[string]any {
	out := make(map[string]any, len(data))
	for k, v := range data {
		if s, ok := v.([]any); ok {
			cp := make([]any, len(s))
			copy(cp, s)
			v = cp
		}
		out[k] = v
	}
	return out
}
