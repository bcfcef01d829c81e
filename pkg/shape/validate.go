package shape

import (
	"encoding/json"
	"fmt"
	"math"
	"reflect"
	"strconv"
	"strings"
)

// Issue is one validation failure at a path such as "items[2].name".
type Issue struct {
	Path    string `json:"path"`
	Message string `json:"message"`
}

// ValidationError lists every issue found in a value.
type ValidationError struct {
	Issues []Issue
}

func (e *ValidationError) Error() string {
	parts := make([]string, 0, len(e.Issues))
	for _, is := range e.Issues {
		if is.Path == "" {
			parts = append(parts, is.Message)
			continue
		}
		parts = append(parts, is.Path+": "+is.Message)
	}
	return strings.Join(parts, "; ")
}

// absent marks a value that is missing rather than null.
type absentValue struct{}

var absent = absentValue{}

type validator struct {
	issues []Issue
}

func (v *validator) fail(path, format string, args ...any) {
	v.issues = append(v.issues, Issue{Path: path, Message: fmt.Sprintf(format, args...)})
}

// Validate checks value against s and returns the parsed result: numbers
// become float64, defaults are filled in, undeclared object keys are
// dropped, and enum values take their declared spelling.
func Validate(s Shape, value any) (any, error) {
	if s == nil {
		return nil, &ValidationError{Issues: []Issue{{Message: "no shape to validate against"}}}
	}
	v := &validator{}
	out := v.check(s, value, "")
	if len(v.issues) > 0 {
		return nil, &ValidationError{Issues: v.issues}
	}
	if out == absent {
		return nil, nil
	}
	return out, nil
}

func (v *validator) check(s Shape, value any, path string) any {
	switch t := s.(type) {
	case Optional:
		if value == absent {
			return absent
		}
		return v.check(t.Inner, value, path)
	case Nullable:
		if value == nil {
			return nil
		}
		return v.check(t.Inner, value, path)
	case Default:
		if value == absent {
			return t.Value
		}
		return v.check(t.Inner, value, path)
	}

	if value == absent {
		v.fail(path, "required")
		return absent
	}

	switch t := s.(type) {
	case String:
		str, ok := value.(string)
		if !ok {
			v.fail(path, "expected string, received %s", describeValue(value))
			return nil
		}
		if t.MinLength > 0 && len([]rune(str)) < t.MinLength {
			v.fail(path, "string must contain at least %d character(s)", t.MinLength)
		}
		if t.MaxLength > 0 && len([]rune(str)) > t.MaxLength {
			v.fail(path, "string must contain at most %d character(s)", t.MaxLength)
		}
		return str
	case Number:
		return v.number(t, value, path)
	case Boolean:
		b, ok := value.(bool)
		if !ok {
			v.fail(path, "expected boolean, received %s", describeValue(value))
			return nil
		}
		return b
	case Literal:
		if !literalEqual(t.Value, value) {
			v.fail(path, "invalid literal value, expected %s", formatValue(t.Value))
			return nil
		}
		return normalizeValue(t.Value)
	case Enum:
		str, ok := value.(string)
		if !ok {
			v.fail(path, "expected one of %s, received %s", quoteAll(t.Values), describeValue(value))
			return nil
		}
		for _, allowed := range t.Values {
			if strings.EqualFold(strings.TrimSpace(str), allowed) {
				return allowed
			}
		}
		v.fail(path, "invalid enum value %q, expected one of %s", str, quoteAll(t.Values))
		return nil
	case Array:
		return v.array(t, value, path)
	case Object:
		return v.object(t, value, path)
	case Union:
		return v.union(t, value, path)
	case Any, Opaque:
		return normalizeValue(value)
	default:
		v.fail(path, "unsupported shape %s", typeName(s))
		return nil
	}
}

func (v *validator) number(t Number, value any, path string) any {
	f, ok := toFloat(value)
	if !ok || math.IsNaN(f) {
		v.fail(path, "expected number, received %s", describeValue(value))
		return nil
	}
	if t.Integer && f != math.Trunc(f) {
		v.fail(path, "expected integer, received float")
	}
	if t.Min != nil {
		if t.ExclusiveMin && f <= *t.Min {
			v.fail(path, "number must be greater than %s", formatFloat(*t.Min))
		} else if !t.ExclusiveMin && f < *t.Min {
			v.fail(path, "number must be greater than or equal to %s", formatFloat(*t.Min))
		}
	}
	if t.Max != nil {
		if t.ExclusiveMax && f >= *t.Max {
			v.fail(path, "number must be less than %s", formatFloat(*t.Max))
		} else if !t.ExclusiveMax && f > *t.Max {
			v.fail(path, "number must be less than or equal to %s", formatFloat(*t.Max))
		}
	}
	return f
}

func (v *validator) array(t Array, value any, path string) any {
	items, ok := asSlice(value)
	if !ok {
		v.fail(path, "expected array, received %s", describeValue(value))
		return nil
	}
	if t.MinItems > 0 && len(items) < t.MinItems {
		v.fail(path, "array must contain at least %d element(s)", t.MinItems)
	}
	if t.MaxItems > 0 && len(items) > t.MaxItems {
		v.fail(path, "array must contain at most %d element(s)", t.MaxItems)
	}
	out := make([]any, 0, len(items))
	for i, item := range items {
		elem := v.check(t.Element, item, path+"["+strconv.Itoa(i)+"]")
		if elem == absent {
			elem = nil
		}
		out = append(out, elem)
	}
	return out
}

func (v *validator) object(t Object, value any, path string) any {
	fields, ok := asMap(value)
	if !ok {
		v.fail(path, "expected object, received %s", describeValue(value))
		return nil
	}
	out := make(map[string]any, len(t.Fields))
	for _, f := range t.Fields {
		raw, present := fields[f.Name]
		if !present {
			raw = absent
		}
		fieldPath := f.Name
		if path != "" {
			fieldPath = path + "." + f.Name
		}
		parsed := v.check(f.Shape, raw, fieldPath)
		if parsed != absent {
			out[f.Name] = parsed
		}
	}
	return out
}

func (v *validator) union(t Union, value any, path string) any {
	var tried []string
	for _, alt := range t.Alternatives {
		sub := &validator{}
		out := sub.check(alt, value, path)
		if len(sub.issues) == 0 {
			return out
		}
		tried = append(tried, typeName(unwrap(alt)))
	}
	v.fail(path, "value matched none of the union alternatives (%s)", strings.Join(tried, ", "))
	return nil
}

func toFloat(v any) (float64, bool) {
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
		return f, err == nil
	default:
		return 0, false
	}
}

func asSlice(v any) ([]any, bool) {
	if items, ok := v.([]any); ok {
		return items, true
	}
	rv := reflect.ValueOf(v)
	if !rv.IsValid() || (rv.Kind() != reflect.Slice && rv.Kind() != reflect.Array) {
		return nil, false
	}
	if rv.Kind() == reflect.Slice && rv.Type().Elem().Kind() == reflect.Uint8 {
		return nil, false
	}
	out := make([]any, rv.Len())
	for i := range out {
		out[i] = rv.Index(i).Interface()
	}
	return out, true
}

func asMap(v any) (map[string]any, bool) {
	if m, ok := v.(map[string]any); ok {
		return m, true
	}
	rv := reflect.ValueOf(v)
	if !rv.IsValid() || rv.Kind() != reflect.Map || rv.Type().Key().Kind() != reflect.String {
		return nil, false
	}
	out := make(map[string]any, rv.Len())
	iter := rv.MapRange()
	for iter.Next() {
		out[iter.Key().String()] = iter.Value().Interface()
	}
	return out, true
}

// normalizeValue converts numbers to float64 so results compare and marshal
// the same way regardless of where they came from.
func normalizeValue(v any) any {
	if f, ok := toFloat(v); ok {
		return f
	}
	switch t := v.(type) {
	case map[string]any:
		out := make(map[string]any, len(t))
		for k, e := range t {
			out[k] = normalizeValue(e)
		}
		return out
	case []any:
		out := make([]any, len(t))
		for i, e := range t {
			out[i] = normalizeValue(e)
		}
		return out
	}
	return v
}

func literalEqual(want, got any) bool {
	wf, wok := toFloat(want)
	gf, gok := toFloat(got)
	if wok || gok {
		return wok && gok && wf == gf
	}
	return reflect.DeepEqual(want, got)
}

func describeValue(v any) string {
	switch v.(type) {
	case nil:
		return "null"
	case string:
		return "string"
	case bool:
		return "boolean"
	}
	if _, ok := toFloat(v); ok {
		return "number"
	}
	if _, ok := asMap(v); ok {
		return "object"
	}
	if _, ok := asSlice(v); ok {
		return "array"
	}
	return fmt.Sprintf("%T", v)
}

func formatValue(v any) string {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Sprintf("%v", v)
	}
	return string(data)
}

func formatFloat(f float64) string {
	return strconv.FormatFloat(f, 'f', -1, 64)
}

func quoteAll(values []string) string {
	quoted := make([]string, len(values))
	for i, v := range values {
		quoted[i] = strconv.Quote(v)
	}
	return strings.Join(quoted, " | ")
}
