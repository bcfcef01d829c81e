// Package prompt turns a task, its context and an example of the expected
// result into the system and user messages sent to a model.
package prompt

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/pario-ai/formwork/pkg/fingerprint"
	"github.com/pario-ai/formwork/pkg/shape"
)

// Input is everything Build needs. Example is the value produced by
// shape.Example and Class the result of shape.Classify.
type Input struct {
	Task    string
	Context any
	Example any
	Class   shape.Classification
}

// Instructions is a compiled system/user message pair.
type Instructions struct {
	System string `json:"system"`
	User   string `json:"user"`
}

const structuredSystem = "You are a precise data generator. Respond with a single JSON object and nothing else. " +
	"Do not wrap the JSON in markdown code fences and do not write any text before or after it. " +
	"Use lower-case strings for enumeration values."

// Build compiles the instructions for one request. Identical inputs always
// produce identical output.
func Build(in Input) Instructions {
	var user strings.Builder
	user.WriteString(strings.TrimSpace(in.Task))

	if in.Context != nil {
		user.WriteString("\n\nContext:\n")
		user.WriteString(renderContext(in.Context))
	}

	if !in.Class.IsPrimitive {
		user.WriteString("\n\nRespond with JSON in exactly this format:\n")
		user.WriteString(renderExample(in.Example))
		return Instructions{System: structuredSystem, User: user.String()}
	}
	return Instructions{System: primitiveSystem(in.Class), User: user.String()}
}

func primitiveSystem(c shape.Classification) string {
	const lead = "You are a precise assistant. "
	const bare = " Do not wrap it in quotes, JSON or markdown, and do not add any explanation."
	switch c.Kind {
	case shape.KindNumber:
		return lead + "Reply with a single number written in plain digits, with no units or words." + bare
	case shape.KindBoolean:
		return lead + "Reply with exactly true or false." + bare
	default:
		if len(c.Choices) > 0 {
			return lead + fmt.Sprintf("Reply with exactly one of the following values: %s.", strings.Join(c.Choices, ", ")) + bare
		}
		return lead + "Reply with only the requested text." + bare
	}
}

// renderContext writes the context as indented JSON with sorted keys, so
// reordering a map never changes the prompt.
func renderContext(v any) string {
	if s, ok := v.(string); ok {
		return strings.TrimSpace(s)
	}
	var buf bytes.Buffer
	if err := json.Indent(&buf, []byte(fingerprint.Canonical(v)), "", "  "); err != nil {
		return fmt.Sprint(v)
	}
	return buf.String()
}

func renderExample(v any) string {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Sprint(v)
	}
	return string(data)
}
