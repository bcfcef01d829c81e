// Package normalize turns raw model output into a value that satisfies a
// shape, tolerating the usual ways models stray from the requested format:
// markdown fences, trailing prose, and envelope objects around the answer.
package normalize

import (
	"encoding/json"
	"fmt"
	"reflect"
	"regexp"
	"strings"

	"github.com/pario-ai/formwork/pkg/models"
	"github.com/pario-ai/formwork/pkg/shape"
)

// PrimitiveKeys are the envelope keys checked, in order, when a primitive
// answer arrives wrapped in an object.
var PrimitiveKeys = []string{"data", "result", "response", "output", "answer", "error", "message", "text", "value"}

var (
	codeFence   = regexp.MustCompile("(?s)^```(?:[a-zA-Z0-9_-]+)?\\s*\n?(.*?)\\s*```$")
	leadingJSON = regexp.MustCompile(`^\s*[\{\[]`)
)

// undefined marks output that produced no candidate value at all.
type undefinedValue struct{}

var undefined = undefinedValue{}

// ParseAndValidate extracts a value matching s from raw, which may be the
// model's text or an already decoded value. source names the producer in
// error messages. Failures are *models.Error of kind validation_error or
// provider_error.
func ParseAndValidate(raw any, s shape.Shape, isPrimitive bool, source string) (any, error) {
	if source == "" {
		source = "provider"
	}

	text, isText := asText(raw)
	trimmed := strings.TrimSpace(text)

	if isPrimitive && isText && !looksStructured(trimmed) {
		if v, err := shape.Validate(s, trimmed); err == nil {
			return v, nil
		}
	}

	candidate := decode(raw, text, isText)
	if candidate != undefined {
		candidate = unwrapEnvelope(candidate, s, isPrimitive)
	}

	if candidate == undefined {
		if isPrimitive && isText && trimmed != "" {
			if v, err := shape.Validate(s, StripCodeFence(trimmed)); err == nil {
				return v, nil
			}
		}
		return nil, models.NewError(models.KindProvider, source+" returned no data", nil)
	}

	v, err := shape.Validate(s, candidate)
	if err != nil {
		return nil, models.NewError(models.KindValidation,
			fmt.Sprintf("%s output did not match the expected shape", source), err)
	}
	return v, nil
}

// StripCodeFence removes a markdown code fence wrapped around s.
func StripCodeFence(s string) string {
	s = strings.TrimSpace(s)
	if m := codeFence.FindStringSubmatch(s); len(m) == 2 {
		return strings.TrimSpace(m[1])
	}
	return s
}

func asText(raw any) (string, bool) {
	switch t := raw.(type) {
	case string:
		return t, true
	case []byte:
		return string(t), true
	case json.RawMessage:
		return string(t), true
	}
	return "", false
}

func looksStructured(s string) bool {
	if s == "" {
		return false
	}
	switch s[0] {
	case '{', '[':
		return true
	case '`':
		return strings.HasPrefix(s, "```")
	case '"':
		return len(s) > 1 && s[len(s)-1] == '"'
	}
	return false
}

func decode(raw any, text string, isText bool) any {
	if !isText {
		return plain(raw)
	}

	body := StripCodeFence(text)
	if body == "" {
		return undefined
	}

	var v any
	if err := json.Unmarshal([]byte(body), &v); err == nil {
		return v
	}

	// Recover the first JSON value when prose trails it.
	if leadingJSON.MatchString(body) {
		dec := json.NewDecoder(strings.NewReader(body))
		if err := dec.Decode(&v); err == nil {
			return v
		}
	}
	return undefined
}

// plain converts decoded provider data into the generic JSON form that
// shape.Validate understands.
func plain(raw any) any {
	if raw == nil {
		return undefined
	}
	switch raw.(type) {
	case map[string]any, []any, string, bool, float64:
		return raw
	}
	switch reflect.ValueOf(raw).Kind() {
	case reflect.Struct, reflect.Pointer:
		data, err := json.Marshal(raw)
		if err != nil {
			return undefined
		}
		var v any
		if err := json.Unmarshal(data, &v); err != nil {
			return undefined
		}
		return v
	}
	return raw
}

func unwrapEnvelope(v any, s shape.Shape, isPrimitive bool) any {
	m, ok := v.(map[string]any)
	if !ok {
		return v
	}
	if isPrimitive {
		for _, key := range PrimitiveKeys {
			if inner, ok := m[key]; ok {
				return inner
			}
		}
		if len(m) == 1 {
			for _, inner := range m {
				return inner
			}
		}
		return m
	}
	if inner, ok := m["data"]; ok && !declaresField(s, "data") {
		return inner
	}
	return m
}

// declaresField reports whether s is an object that itself has a field
// called name, in which case that key is content rather than an envelope.
func declaresField(s shape.Shape, name string) bool {
	for {
		switch t := s.(type) {
		case shape.Optional:
			s = t.Inner
		case shape.Nullable:
			s = t.Inner
		case shape.Default:
			s = t.Inner
		case shape.Object:
			for _, f := range t.Fields {
				if f.Name == name {
					return true
				}
			}
			return false
		default:
			return false
		}
	}
}
