// Package shape describes the expected result of a structured-output request.
//
// A Shape is one of a closed set of variants (String, Number, Boolean, Literal,
// Enum, Array, Object, Optional, Nullable, Default, Union, Any, Opaque). The
// same description drives prompt examples, cache identity and validation.
package shape

// Shape is implemented only by the variants declared in this package.
type Shape interface {
	isShape()
}

// String accepts a JSON string.
type String struct {
	MinLength int // 0 means unbounded
	MaxLength int // 0 means unbounded
}

// Number accepts a JSON number, optionally bounded.
type Number struct {
	Min          *float64
	Max          *float64
	ExclusiveMin bool
	ExclusiveMax bool
	Integer      bool
}

// Boolean accepts true or false.
type Boolean struct{}

// Literal accepts exactly one value.
type Literal struct {
	Value any
}

// Enum accepts one of a fixed set of strings.
type Enum struct {
	Values []string
}

// Array accepts a list whose elements match Element.
type Array struct {
	Element  Shape
	MinItems int
	MaxItems int // 0 means unbounded
}

// Field is a named member of an Object.
type Field struct {
	Name  string
	Shape Shape
}

// Object accepts a JSON object with the declared fields, in declaration order.
// Undeclared keys are dropped during validation.
type Object struct {
	Fields []Field
}

// Optional lets a value be absent.
type Optional struct {
	Inner Shape
}

// Nullable lets a value be null.
type Nullable struct {
	Inner Shape
}

// Default substitutes Value when the value is absent.
type Default struct {
	Inner Shape
	Value any
}

// Union accepts the first alternative that validates.
type Union struct {
	Alternatives []Shape
}

// Any accepts every present value.
type Any struct{}

// Opaque stands in for a type tag this package does not understand.
// It validates like Any.
type Opaque struct {
	TypeName string
}

func (String) isShape()   {}
func (Number) isShape()   {}
func (Boolean) isShape()  {}
func (Literal) isShape()  {}
func (Enum) isShape()     {}
func (Array) isShape()    {}
func (Object) isShape()   {}
func (Optional) isShape() {}
func (Nullable) isShape() {}
func (Default) isShape()  {}
func (Union) isShape()    {}
func (Any) isShape()      {}
func (Opaque) isShape()   {}

// Str returns a String shape.
func Str() String { return String{} }

// Num returns an unbounded Number shape.
func Num() Number { return Number{} }

// Int returns a Number shape restricted to whole numbers.
func Int() Number { return Number{Integer: true} }

// Bool returns a Boolean shape.
func Bool() Boolean { return Boolean{} }

// OneOf returns an Enum over values.
func OneOf(values ...string) Enum { return Enum{Values: values} }

// ArrayOf returns an Array of element.
func ArrayOf(element Shape) Array { return Array{Element: element} }

// F declares an object field.
func F(name string, s Shape) Field { return Field{Name: name, Shape: s} }

// Obj returns an Object with the given fields.
func Obj(fields ...Field) Object { return Object{Fields: fields} }

// Opt wraps s as Optional.
func Opt(s Shape) Optional { return Optional{Inner: s} }

// Null wraps s as Nullable.
func Null(s Shape) Nullable { return Nullable{Inner: s} }

// WithDefault wraps s with a default value.
func WithDefault(s Shape, v any) Default { return Default{Inner: s, Value: v} }

// AnyOf returns a Union of alternatives.
func AnyOf(alternatives ...Shape) Union { return Union{Alternatives: alternatives} }

// Gt returns a copy of n with an exclusive lower bound.
func (n Number) Gt(v float64) Number {
	n.Min, n.ExclusiveMin = &v, true
	return n
}

// Gte returns a copy of n with an inclusive lower bound.
func (n Number) Gte(v float64) Number {
	n.Min, n.ExclusiveMin = &v, false
	return n
}

// Lt returns a copy of n with an exclusive upper bound.
func (n Number) Lt(v float64) Number {
	n.Max, n.ExclusiveMax = &v, true
	return n
}

// Lte returns a copy of n with an inclusive upper bound.
func (n Number) Lte(v float64) Number {
	n.Max, n.ExclusiveMax = &v, false
	return n
}

// unwrap strips Optional, Nullable and Default wrappers.
func unwrap(s Shape) Shape {
	for {
		switch t := s.(type) {
		case Optional:
			s = t.Inner
		case Nullable:
			s = t.Inner
		case Default:
			s = t.Inner
		default:
			return s
		}
	}
}

// typeName names a shape variant for diagnostics and placeholders.
func typeName(s Shape) string {
	switch t := s.(type) {
	case String:
		return "string"
	case Number:
		if t.Integer {
			return "integer"
		}
		return "number"
	case Boolean:
		return "boolean"
	case Literal:
		return "literal"
	case Enum:
		return "enum"
	case Array:
		return "array"
	case Object:
		return "object"
	case Optional:
		return "optional"
	case Nullable:
		return "nullable"
	case Default:
		return "default"
	case Union:
		return "union"
	case Any:
		return "any"
	case Opaque:
		if t.TypeName != "" {
			return t.TypeName
		}
		return "unknown"
	default:
		return "unknown"
	}
}
