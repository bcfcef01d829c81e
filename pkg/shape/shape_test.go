package shape

import (
	"encoding/json"
	"errors"
	"reflect"
	"testing"
)

func TestClassify(t *testing.T) {
	tests := []struct {
		name      string
		shape     Shape
		primitive bool
		kind      Kind
		choices   []string
	}{
		{"string", Str(), true, KindString, nil},
		{"number", Num().Gt(1), true, KindNumber, nil},
		{"boolean", Bool(), true, KindBoolean, nil},
		{"enum", OneOf("low", "high"), true, KindString, []string{"low", "high"}},
		{"string literal", Literal{Value: "yes"}, true, KindString, []string{"yes"}},
		{"number literal", Literal{Value: 3}, true, KindNumber, nil},
		{"optional string", Opt(Str()), true, KindString, nil},
		{"default number", WithDefault(Num(), 5.0), true, KindNumber, nil},
		{"object", Obj(F("a", Str())), false, "", nil},
		{"array", ArrayOf(Str()), false, "", nil},
		{"union", AnyOf(Str(), Num()), false, "", nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := Classify(tt.shape)
			if c.IsPrimitive != tt.primitive {
				t.Errorf("IsPrimitive = %v, want %v", c.IsPrimitive, tt.primitive)
			}
			if c.Kind != tt.kind {
				t.Errorf("Kind = %q, want %q", c.Kind, tt.kind)
			}
			if !reflect.DeepEqual(c.Choices, tt.choices) {
				t.Errorf("Choices = %v, want %v", c.Choices, tt.choices)
			}
		})
	}
}

func TestExampleObjectKeepsFieldOrder(t *testing.T) {
	s := Obj(
		F("title", Str()),
		F("priority", OneOf("low", "medium", "high")),
		F("score", Opt(Num())),
		F("done", Bool()),
		F("tags", ArrayOf(Str())),
		F("retries", WithDefault(Int(), 3)),
		F("when", Opaque{TypeName: "date"}),
		F("either", AnyOf(Num(), Str())),
	)

	data, err := json.Marshal(Example(s))
	if err != nil {
		t.Fatal(err)
	}
	want := `{"title":"string","priority":"low | medium | high","score":0,"done":true,"tags":["string"],"retries":3,"when":"<date>","either":0}`
	if string(data) != want {
		t.Errorf("example = %s\nwant      %s", data, want)
	}
}

func TestExampleIsTotal(t *testing.T) {
	for _, s := range []Shape{nil, Union{}, Opaque{}, Obj(F("x", nil)), ArrayOf(nil)} {
		if _, err := json.Marshal(Example(s)); err != nil {
			t.Errorf("Example(%#v) not marshalable: %v", s, err)
		}
	}
}

func TestIdentity(t *testing.T) {
	a := Obj(F("name", Str()), F("age", Num().Gte(0)))
	b := Obj(F("name", Str()), F("age", Num().Gte(0)))
	if Identity(a) != Identity(b) {
		t.Error("equal shapes should share an identity")
	}

	different := []Shape{
		Obj(F("name", Str()), F("age", Num().Gt(0))),
		Obj(F("age", Num().Gte(0)), F("name", Str())),
		Obj(F("name", Str()), F("age", Opt(Num().Gte(0)))),
		Obj(F("name", Str())),
	}
	for i, s := range different {
		if Identity(s) == Identity(a) {
			t.Errorf("shape %d (%s) collides with %s", i, Describe(s), Describe(a))
		}
	}
	if len(Identity(a)) != 16 {
		t.Errorf("identity length = %d, want 16", len(Identity(a)))
	}
}

func TestValidatePrimitives(t *testing.T) {
	tests := []struct {
		name    string
		shape   Shape
		value   any
		want    any
		wantErr bool
	}{
		{"string", Str(), "hi", "hi", false},
		{"string rejects number", Str(), 4.0, nil, true},
		{"number from int", Num(), 4, 4.0, false},
		{"number from json.Number", Num(), json.Number("2.5"), 2.5, false},
		{"number rejects string", Num(), "4", nil, true},
		{"exclusive min", Num().Gt(1_000_000), 42.0, nil, true},
		{"inclusive min", Num().Gte(10), 10.0, 10.0, false},
		{"max", Num().Lt(10), 10.0, nil, true},
		{"integer", Int(), 1.5, nil, true},
		{"boolean", Bool(), true, true, false},
		{"enum case-insensitive", OneOf("Low", "High"), "high", "High", false},
		{"enum miss", OneOf("low", "high"), "medium", nil, true},
		{"literal", Literal{Value: 7}, 7.0, 7.0, false},
		{"literal miss", Literal{Value: "a"}, "b", nil, true},
		{"nullable", Null(Str()), nil, nil, false},
		{"null rejected", Str(), nil, nil, true},
		{"union second alternative", AnyOf(Num(), Str()), "x", "x", false},
		{"union miss", AnyOf(Num(), Bool()), "x", nil, true},
		{"any", Any{}, "whatever", "whatever", false},
		{"string length", String{MaxLength: 3}, "abcd", nil, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Validate(tt.shape, tt.value)
			if tt.wantErr {
				var ve *ValidationError
				if !errors.As(err, &ve) {
					t.Fatalf("err = %v, want *ValidationError", err)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if !reflect.DeepEqual(got, tt.want) {
				t.Errorf("got %#v, want %#v", got, tt.want)
			}
		})
	}
}

func TestValidateObject(t *testing.T) {
	s := Obj(
		F("name", Str()),
		F("nickname", Opt(Str())),
		F("level", WithDefault(Num(), 1.0)),
		F("tags", ArrayOf(OneOf("a", "b"))),
	)

	got, err := Validate(s, map[string]any{
		"name":  "Ada",
		"tags":  []any{"A", "b"},
		"extra": "dropped",
	})
	if err != nil {
		t.Fatal(err)
	}
	want := map[string]any{"name": "Ada", "level": 1.0, "tags": []any{"a", "b"}}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("got %#v, want %#v", got, want)
	}
}

func TestValidateReportsPaths(t *testing.T) {
	s := Obj(F("items", ArrayOf(Obj(F("qty", Num())))), F("name", Str()))
	_, err := Validate(s, map[string]any{"items": []any{map[string]any{"qty": "x"}}})

	var ve *ValidationError
	if !errors.As(err, &ve) {
		t.Fatalf("err = %v, want *ValidationError", err)
	}
	paths := map[string]bool{}
	for _, is := range ve.Issues {
		paths[is.Path] = true
	}
	if !paths["items[0].qty"] || !paths["name"] {
		t.Errorf("issues = %+v, want items[0].qty and name", ve.Issues)
	}
}

func TestValidateTypedGoValues(t *testing.T) {
	s := Obj(F("ids", ArrayOf(Int())))
	got, err := Validate(s, map[string][]int{"ids": {1, 2}})
	if err != nil {
		t.Fatal(err)
	}
	want := map[string]any{"ids": []any{1.0, 2.0}}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("got %#v, want %#v", got, want)
	}
}
