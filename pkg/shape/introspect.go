package shape

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"sort"
	"strconv"
	"strings"
)

// Kind names the primitive a shape resolves to.
type Kind string

const (
	KindString  Kind = "string"
	KindNumber  Kind = "number"
	KindBoolean Kind = "boolean"
)

// Classification says whether a shape expects a bare primitive.
type Classification struct {
	IsPrimitive bool
	Kind        Kind
	Choices     []string // allowed values for enum and string literal shapes
}

// Classify reports whether s resolves to a bare string, number or boolean.
// Optional, Nullable and Default wrappers are looked through.
func Classify(s Shape) Classification {
	switch t := unwrap(s).(type) {
	case String:
		return Classification{IsPrimitive: true, Kind: KindString}
	case Number:
		return Classification{IsPrimitive: true, Kind: KindNumber}
	case Boolean:
		return Classification{IsPrimitive: true, Kind: KindBoolean}
	case Enum:
		return Classification{IsPrimitive: true, Kind: KindString, Choices: append([]string(nil), t.Values...)}
	case Literal:
		switch v := t.Value.(type) {
		case string:
			return Classification{IsPrimitive: true, Kind: KindString, Choices: []string{v}}
		case bool:
			return Classification{IsPrimitive: true, Kind: KindBoolean}
		default:
			if _, ok := toFloat(v); ok {
				return Classification{IsPrimitive: true, Kind: KindNumber}
			}
		}
	}
	return Classification{}
}

// ExampleObject is an object example that marshals its members in
// declaration order.
type ExampleObject []ExampleField

// ExampleField is one member of an ExampleObject.
type ExampleField struct {
	Name  string
	Value any
}

// MarshalJSON writes the fields in order.
func (o ExampleObject) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, f := range o {
		if i > 0 {
			buf.WriteByte(',')
		}
		key, err := json.Marshal(f.Name)
		if err != nil {
			return nil, err
		}
		val, err := json.Marshal(f.Value)
		if err != nil {
			return nil, fmt.Errorf("marshal field %s: %w", f.Name, err)
		}
		buf.Write(key)
		buf.WriteByte(':')
		buf.Write(val)
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

// Example builds a representative value for s, used to show a model the
// expected format. It never panics: unknown or nil shapes become a
// "<type>" placeholder.
func Example(s Shape) any {
	switch t := s.(type) {
	case String:
		return "string"
	case Number:
		return 0
	case Boolean:
		return true
	case Literal:
		return t.Value
	case Enum:
		return strings.Join(t.Values, " | ")
	case Array:
		return []any{Example(t.Element)}
	case Object:
		obj := make(ExampleObject, 0, len(t.Fields))
		for _, f := range t.Fields {
			obj = append(obj, ExampleField{Name: f.Name, Value: Example(f.Shape)})
		}
		return obj
	case Optional:
		return Example(t.Inner)
	case Nullable:
		return Example(t.Inner)
	case Default:
		return t.Value
	case Union:
		if len(t.Alternatives) == 0 {
			return "<union>"
		}
		return Example(t.Alternatives[0])
	case Any:
		return "any"
	case nil:
		return "<unknown>"
	default:
		return "<" + typeName(s) + ">"
	}
}

// Identity returns a short stable token for s. Structurally equal shapes
// always share an identity.
func Identity(s Shape) string {
	var b strings.Builder
	describe(&b, s)
	sum := sha256.Sum256([]byte(b.String()))
	return hex.EncodeToString(sum[:8])
}

// Describe renders the canonical descriptor Identity hashes.
func Describe(s Shape) string {
	var b strings.Builder
	describe(&b, s)
	return b.String()
}

func describe(b *strings.Builder, s Shape) {
	switch t := s.(type) {
	case String:
		b.WriteString("string")
		if t.MinLength > 0 || t.MaxLength > 0 {
			fmt.Fprintf(b, "(%d..%d)", t.MinLength, t.MaxLength)
		}
	case Number:
		b.WriteString(typeName(t))
		if t.Min != nil || t.Max != nil {
			b.WriteByte('(')
			if t.Min != nil {
				if t.ExclusiveMin {
					b.WriteByte('>')
				} else {
					b.WriteString(">=")
				}
				b.WriteString(strconv.FormatFloat(*t.Min, 'g', -1, 64))
			}
			b.WriteByte(',')
			if t.Max != nil {
				if t.ExclusiveMax {
					b.WriteByte('<')
				} else {
					b.WriteString("<=")
				}
				b.WriteString(strconv.FormatFloat(*t.Max, 'g', -1, 64))
			}
			b.WriteByte(')')
		}
	case Boolean:
		b.WriteString("boolean")
	case Literal:
		b.WriteString("literal(")
		writeValue(b, t.Value)
		b.WriteByte(')')
	case Enum:
		b.WriteString("enum(")
		for i, v := range t.Values {
			if i > 0 {
				b.WriteByte('|')
			}
			b.WriteString(strconv.Quote(v))
		}
		b.WriteByte(')')
	case Array:
		b.WriteString("array<")
		describe(b, t.Element)
		b.WriteByte('>')
		if t.MinItems > 0 || t.MaxItems > 0 {
			fmt.Fprintf(b, "(%d..%d)", t.MinItems, t.MaxItems)
		}
	case Object:
		b.WriteString("object{")
		for i, f := range t.Fields {
			if i > 0 {
				b.WriteByte(',')
			}
			b.WriteString(strconv.Quote(f.Name))
			b.WriteByte(':')
			describe(b, f.Shape)
		}
		b.WriteByte('}')
	case Optional:
		b.WriteString("optional<")
		describe(b, t.Inner)
		b.WriteByte('>')
	case Nullable:
		b.WriteString("nullable<")
		describe(b, t.Inner)
		b.WriteByte('>')
	case Default:
		b.WriteString("default<")
		describe(b, t.Inner)
		b.WriteByte(',')
		writeValue(b, t.Value)
		b.WriteByte('>')
	case Union:
		b.WriteString("union<")
		for i, alt := range t.Alternatives {
			if i > 0 {
				b.WriteByte('|')
			}
			describe(b, alt)
		}
		b.WriteByte('>')
	case Any:
		b.WriteString("any")
	default:
		b.WriteString("opaque(" + strconv.Quote(typeName(s)) + ")")
	}
}

// writeValue renders literal and default values with sorted map keys.
func writeValue(b *strings.Builder, v any) {
	switch t := v.(type) {
	case map[string]any:
		keys := make([]string, 0, len(t))
		for k := range t {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		b.WriteByte('{')
		for i, k := range keys {
			if i > 0 {
				b.WriteByte(',')
			}
			b.WriteString(strconv.Quote(k))
			b.WriteByte(':')
			writeValue(b, t[k])
		}
		b.WriteByte('}')
	case []any:
		b.WriteByte('[')
		for i, e := range t {
			if i > 0 {
				b.WriteByte(',')
			}
			writeValue(b, e)
		}
		b.WriteByte(']')
	default:
		if f, ok := toFloat(v); ok {
			b.WriteString(strconv.FormatFloat(f, 'g', -1, 64))
			return
		}
		data, err := json.Marshal(v)
		if err != nil {
			fmt.Fprintf(b, "%v", v)
			return
		}
		b.Write(data)
	}
}
