package shape

import (
	"fmt"

	"gopkg.in/yaml.v3"
)

// Parse reads a JSON Schema document, written as JSON or YAML, into a Shape.
// Object properties keep the order they appear in the document.
func Parse(data []byte) (Shape, error) {
	var doc yaml.Node
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("parse shape document: %w", err)
	}
	if doc.Kind == 0 {
		return nil, fmt.Errorf("parse shape document: empty document")
	}
	root := &doc
	if root.Kind == yaml.DocumentNode && len(root.Content) > 0 {
		root = root.Content[0]
	}
	if root.Kind != yaml.MappingNode {
		return nil, fmt.Errorf("parse shape document: top level must be a mapping")
	}
	return fromNode(root)
}

// FromJSONSchema converts an already-decoded JSON Schema document. Go maps
// carry no key order, so object properties come out sorted by name.
func FromJSONSchema(doc map[string]any) (Shape, error) {
	data, err := yaml.Marshal(doc)
	if err != nil {
		return nil, fmt.Errorf("encode shape document: %w", err)
	}
	return Parse(data)
}

func fromNode(n *yaml.Node) (Shape, error) {
	if n.Kind == yaml.AliasNode {
		n = n.Alias
	}
	if n.Kind == yaml.ScalarNode {
		// "true" in place of a schema accepts anything.
		return Any{}, nil
	}
	if n.Kind != yaml.MappingNode {
		return nil, fmt.Errorf("line %d: schema must be a mapping", n.Line)
	}

	s, err := baseShape(n)
	if err != nil {
		return nil, err
	}
	if b := lookup(n, "nullable"); b != nil && b.Value == "true" {
		s = Nullable{Inner: s}
	}
	return s, nil
}

func baseShape(n *yaml.Node) (Shape, error) {
	if c := lookup(n, "const"); c != nil {
		v, err := decodeValue(c)
		if err != nil {
			return nil, err
		}
		return Literal{Value: v}, nil
	}
	if e := lookup(n, "enum"); e != nil {
		return enumShape(e)
	}
	for _, key := range []string{"anyOf", "oneOf"} {
		if alts := lookup(n, key); alts != nil {
			return unionShape(alts)
		}
	}

	t := lookup(n, "type")
	if t == nil {
		if lookup(n, "properties") != nil {
			return objectShape(n)
		}
		return Any{}, nil
	}
	if t.Kind == yaml.SequenceNode {
		var types []string
		if err := t.Decode(&types); err != nil {
			return nil, fmt.Errorf("line %d: decode type list: %w", t.Line, err)
		}
		return typeListShape(n, types)
	}
	return typedShape(n, t.Value)
}

func typeListShape(n *yaml.Node, types []string) (Shape, error) {
	var alts []Shape
	nullable := false
	for _, name := range types {
		if name == "null" {
			nullable = true
			continue
		}
		s, err := typedShape(n, name)
		if err != nil {
			return nil, err
		}
		alts = append(alts, s)
	}
	var s Shape
	switch len(alts) {
	case 0:
		return Literal{Value: nil}, nil
	case 1:
		s = alts[0]
	default:
		s = Union{Alternatives: alts}
	}
	if nullable {
		s = Nullable{Inner: s}
	}
	return s, nil
}

func typedShape(n *yaml.Node, name string) (Shape, error) {
	switch name {
	case "string":
		s := String{}
		if err := decodeInt(n, "minLength", &s.MinLength); err != nil {
			return nil, err
		}
		if err := decodeInt(n, "maxLength", &s.MaxLength); err != nil {
			return nil, err
		}
		return s, nil
	case "number", "integer":
		return numberShape(n, name == "integer")
	case "boolean":
		return Boolean{}, nil
	case "array":
		a := Array{Element: Any{}}
		if items := lookup(n, "items"); items != nil {
			elem, err := fromNode(items)
			if err != nil {
				return nil, fmt.Errorf("items: %w", err)
			}
			a.Element = elem
		}
		if err := decodeInt(n, "minItems", &a.MinItems); err != nil {
			return nil, err
		}
		if err := decodeInt(n, "maxItems", &a.MaxItems); err != nil {
			return nil, err
		}
		return a, nil
	case "object":
		return objectShape(n)
	case "null":
		return Literal{Value: nil}, nil
	default:
		return Opaque{TypeName: name}, nil
	}
}

func numberShape(n *yaml.Node, integer bool) (Shape, error) {
	num := Number{Integer: integer}
	for _, b := range []struct {
		key       string
		target    **float64
		exclusive *bool
		flag      bool
	}{
		{"minimum", &num.Min, &num.ExclusiveMin, false},
		{"maximum", &num.Max, &num.ExclusiveMax, false},
		{"exclusiveMinimum", &num.Min, &num.ExclusiveMin, true},
		{"exclusiveMaximum", &num.Max, &num.ExclusiveMax, true},
	} {
		node := lookup(n, b.key)
		if node == nil {
			continue
		}
		// Draft 4 spells exclusive bounds as booleans next to minimum/maximum.
		if node.Tag == "!!bool" {
			if node.Value == "true" {
				*b.exclusive = true
			}
			continue
		}
		var f float64
		if err := node.Decode(&f); err != nil {
			return nil, fmt.Errorf("line %d: decode %s: %w", node.Line, b.key, err)
		}
		*b.target = &f
		if b.flag {
			*b.exclusive = true
		}
	}
	return num, nil
}

func objectShape(n *yaml.Node) (Shape, error) {
	required := map[string]bool{}
	if r := lookup(n, "required"); r != nil {
		var names []string
		if err := r.Decode(&names); err != nil {
			return nil, fmt.Errorf("line %d: decode required: %w", r.Line, err)
		}
		for _, name := range names {
			required[name] = true
		}
	}

	obj := Object{}
	props := lookup(n, "properties")
	if props == nil {
		return obj, nil
	}
	if props.Kind != yaml.MappingNode {
		return nil, fmt.Errorf("line %d: properties must be a mapping", props.Line)
	}
	for i := 0; i+1 < len(props.Content); i += 2 {
		name := props.Content[i].Value
		field, err := fromNode(props.Content[i+1])
		if err != nil {
			return nil, fmt.Errorf("property %s: %w", name, err)
		}
		if d := lookup(props.Content[i+1], "default"); d != nil {
			v, err := decodeValue(d)
			if err != nil {
				return nil, fmt.Errorf("property %s: %w", name, err)
			}
			field = Default{Inner: field, Value: v}
		} else if !required[name] {
			field = Optional{Inner: field}
		}
		obj.Fields = append(obj.Fields, Field{Name: name, Shape: field})
	}
	return obj, nil
}

func enumShape(n *yaml.Node) (Shape, error) {
	var values []any
	if err := n.Decode(&values); err != nil {
		return nil, fmt.Errorf("line %d: decode enum: %w", n.Line, err)
	}
	if len(values) == 1 {
		return Literal{Value: normalizeValue(values[0])}, nil
	}
	strs := make([]string, 0, len(values))
	for _, v := range values {
		s, ok := v.(string)
		if !ok {
			return literalUnion(values), nil
		}
		strs = append(strs, s)
	}
	return Enum{Values: strs}, nil
}

func literalUnion(values []any) Shape {
	alts := make([]Shape, len(values))
	for i, v := range values {
		alts[i] = Literal{Value: normalizeValue(v)}
	}
	return Union{Alternatives: alts}
}

func unionShape(n *yaml.Node) (Shape, error) {
	if n.Kind != yaml.SequenceNode {
		return nil, fmt.Errorf("line %d: union must be a list", n.Line)
	}
	var alts []Shape
	nullable := false
	for _, item := range n.Content {
		if t := lookup(item, "type"); t != nil && t.Value == "null" && len(item.Content) == 2 {
			nullable = true
			continue
		}
		s, err := fromNode(item)
		if err != nil {
			return nil, err
		}
		alts = append(alts, s)
	}
	var s Shape = Union{Alternatives: alts}
	if len(alts) == 1 {
		s = alts[0]
	}
	if nullable {
		s = Nullable{Inner: s}
	}
	return s, nil
}

func lookup(n *yaml.Node, key string) *yaml.Node {
	if n == nil || n.Kind != yaml.MappingNode {
		return nil
	}
	for i := 0; i+1 < len(n.Content); i += 2 {
		if n.Content[i].Value == key {
			return n.Content[i+1]
		}
	}
	return nil
}

func decodeInt(n *yaml.Node, key string, dst *int) error {
	node := lookup(n, key)
	if node == nil {
		return nil
	}
	if err := node.Decode(dst); err != nil {
		return fmt.Errorf("line %d: decode %s: %w", node.Line, key, err)
	}
	return nil
}

func decodeValue(n *yaml.Node) (any, error) {
	var v any
	if err := n.Decode(&v); err != nil {
		return nil, fmt.Errorf("line %d: decode value: %w", n.Line, err)
	}
	return normalizeValue(v), nil
}
