package normalize

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pario-ai/formwork/pkg/models"
	"github.com/pario-ai/formwork/pkg/shape"
)

func TestParseAndValidatePrimitive(t *testing.T) {
	tests := []struct {
		name  string
		raw   any
		shape shape.Shape
		want  any
	}{
		{"bare string is trimmed", "  hello  ", shape.Str(), "hello"},
		{"data envelope with trailing prose", "{\"data\":\"42\"}\nNote: approximate", shape.Str(), "42"},
		{"quoted string", `"quoted"`, shape.Str(), "quoted"},
		{"bare number", "42", shape.Num(), 42.0},
		{"bare boolean", " true ", shape.Bool(), true},
		{"result envelope", `{"result": 7}`, shape.Num(), 7.0},
		{"envelope priority", `{"value": 1, "answer": 2}`, shape.Num(), 2.0},
		{"single-key object", `{"temperature": 21.5}`, shape.Num(), 21.5},
		{"fenced json", "```json\n{\"answer\": false}\n```", shape.Bool(), false},
		{"enum case", "HIGH", shape.OneOf("low", "high"), "high"},
		{"decoded value", 3, shape.Num(), 3.0},
		{"decoded envelope", map[string]any{"output": "x"}, shape.Str(), "x"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseAndValidate(tt.raw, tt.shape, true, "mock")
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestParseAndValidateStructured(t *testing.T) {
	s := shape.Obj(shape.F("name", shape.Str()), shape.F("age", shape.Num()))

	tests := []struct {
		name string
		raw  any
	}{
		{"plain json", `{"name":"Ada","age":36}`},
		{"data envelope", `{"data":{"name":"Ada","age":36}}`},
		{"code fence", "```json\n{\"name\":\"Ada\",\"age\":36}\n```"},
		{"trailing prose", "{\"name\":\"Ada\",\"age\":36}\n\nLet me know if you need anything else."},
		{"extra keys", `{"name":"Ada","age":36,"comment":"ignored"}`},
		{"decoded map", map[string]any{"name": "Ada", "age": 36}},
		{"struct", struct {
			Name string `json:"name"`
			Age  int    `json:"age"`
		}{"Ada", 36}},
	}
	want := map[string]any{"name": "Ada", "age": 36.0}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseAndValidate(tt.raw, s, false, "mock")
			require.NoError(t, err)
			assert.Equal(t, want, got)
		})
	}
}

func TestStructuredDoesNotUnwrapOtherKeys(t *testing.T) {
	s := shape.Obj(shape.F("name", shape.Str()))
	_, err := ParseAndValidate(`{"result":{"name":"Ada"}}`, s, false, "mock")
	require.Error(t, err)
	assert.True(t, models.IsKind(err, models.KindValidation))
}

func TestStructuredKeepsDeclaredDataField(t *testing.T) {
	s := shape.Obj(shape.F("data", shape.ArrayOf(shape.Num())), shape.F("unit", shape.Str()))
	got, err := ParseAndValidate(`{"data":[1,2],"unit":"kg"}`, s, false, "mock")
	require.NoError(t, err)
	assert.Equal(t, map[string]any{"data": []any{1.0, 2.0}, "unit": "kg"}, got)
}

func TestNoDataIsProviderError(t *testing.T) {
	s := shape.Obj(shape.F("name", shape.Str()))
	for _, raw := range []any{"", "   ", "I could not find an answer.", nil} {
		_, err := ParseAndValidate(raw, s, false, "openai")
		require.Error(t, err)

		e, ok := models.AsError(err)
		require.True(t, ok)
		assert.Equal(t, models.KindProvider, e.Kind)
		assert.Equal(t, "openai returned no data", e.Message)
	}
}

func TestPrimitiveUnparseableTextIsProviderError(t *testing.T) {
	_, err := ParseAndValidate("roughly forty", shape.Num(), true, "")
	require.Error(t, err)
	e, ok := models.AsError(err)
	require.True(t, ok)
	assert.Equal(t, models.KindProvider, e.Kind)
	assert.Equal(t, "provider returned no data", e.Message)
}

func TestValidationErrorCarriesDiagnostics(t *testing.T) {
	_, err := ParseAndValidate("12", shape.Num().Gt(1_000_000), true, "mock")
	require.Error(t, err)

	e, ok := models.AsError(err)
	require.True(t, ok)
	assert.Equal(t, models.KindValidation, e.Kind)

	var ve *shape.ValidationError
	require.ErrorAs(t, err, &ve)
	assert.Contains(t, ve.Error(), "greater than 1000000")
}

func TestStripCodeFence(t *testing.T) {
	assert.Equal(t, `{"a":1}`, StripCodeFence("```json\n{\"a\":1}\n```"))
	assert.Equal(t, `{"a":1}`, StripCodeFence("```\n{\"a\":1}\n```"))
	assert.Equal(t, "plain", StripCodeFence("  plain "))
}
