package mcp

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/pario-ai/formwork/pkg/engine"
	"github.com/pario-ai/formwork/pkg/shape"
)

// Tool argument structs.

type generateArgs struct {
	Task    string `json:"task"`
	Context any    `json:"context"`
	// Schema is a JSON Schema object, or a string holding JSON or YAML.
	Schema      json.RawMessage `json:"schema"`
	Fallback    json.RawMessage `json:"fallback"`
	Retry       *int            `json:"retry"`
	Timeout     string          `json:"timeout"`
	Cache       string          `json:"cache"`
	Temperature *float64        `json:"temperature"`
	MaxTokens   *int            `json:"max_tokens"`
}

type usageArgs struct {
	Provider string `json:"provider"`
}

// toolHandler is a function that handles a tool call.
type toolHandler func(ctx context.Context, s *Server, args json.RawMessage) ToolCallResult

// toolHandlers maps tool names to their handlers.
var toolHandlers = map[string]toolHandler{
	"formwork_generate":      handleGenerate,
	"formwork_cache_stats":   handleCacheStats,
	"formwork_cache_clear":   handleCacheClear,
	"formwork_usage_summary": handleUsageSummary,
}

// allTools is the list of tool definitions exposed via tools/list.
var allTools = []ToolDefinition{
	{
		Name:        "formwork_generate",
		Description: "Ask the configured model for a value matching a JSON Schema. Returns the validated value, or the fallback when every attempt fails.",
		InputSchema: map[string]any{
			"type":     "object",
			"required": []string{"task", "schema"},
			"properties": map[string]any{
				"task": map[string]any{
					"type":        "string",
					"description": "What the model should produce",
				},
				"context": map[string]any{
					"description": "Input data the task refers to (optional)",
				},
				"schema": map[string]any{
					"description": "JSON Schema of the expected value, as an object or a JSON/YAML string",
				},
				"fallback": map[string]any{
					"description": "Value to return when every attempt fails (optional)",
				},
				"retry": map[string]any{
					"type":        "integer",
					"description": "Extra attempts after the first (optional)",
				},
				"timeout": map[string]any{
					"type":        "string",
					"description": "Per-attempt timeout such as 10s (optional)",
				},
				"cache": map[string]any{
					"type":        "string",
					"enum":        []string{"session", "none"},
					"description": "Cache policy (optional, defaults to session)",
				},
				"temperature": map[string]any{
					"type":        "number",
					"description": "Sampling temperature (optional)",
				},
				"max_tokens": map[string]any{
					"type":        "integer",
					"description": "Output token cap (optional)",
				},
			},
		},
	},
	{
		Name:        "formwork_cache_stats",
		Description: "Show session cache statistics (entries, hits, misses, hit rate).",
		InputSchema: map[string]any{
			"type":       "object",
			"properties": map[string]any{},
		},
	},
	{
		Name:        "formwork_cache_clear",
		Description: "Remove every entry from the session cache.",
		InputSchema: map[string]any{
			"type":       "object",
			"properties": map[string]any{},
		},
	},
	{
		Name:        "formwork_usage_summary",
		Description: "Show token usage from the ledger grouped by provider and operation.",
		InputSchema: map[string]any{
			"type": "object",
			"properties": map[string]any{
				"provider": map[string]any{
					"type":        "string",
					"description": "Filter by provider name (optional, omit for all)",
				},
			},
		},
	},
}

func textResult(text string) ToolCallResult {
	return ToolCallResult{
		Content: []ContentBlock{{Type: "text", Text: text}},
	}
}

func errorResult(text string) ToolCallResult {
	return ToolCallResult{
		Content: []ContentBlock{{Type: "text", Text: text}},
		IsError: true,
	}
}

func handleGenerate(ctx context.Context, s *Server, rawArgs json.RawMessage) ToolCallResult {
	var args generateArgs
	if len(rawArgs) > 0 {
		if err := json.Unmarshal(rawArgs, &args); err != nil {
			return errorResult("Invalid arguments: " + err.Error())
		}
	}
	req, err := s.buildRequest(args)
	if err != nil {
		return errorResult(err.Error())
	}

	result, err := s.engine.Execute(ctx, req)
	if err != nil {
		return errorResult("Generation failed: " + err.Error())
	}

	text, err := json.MarshalIndent(result, "", "  ")
	if err != nil {
		return errorResult("Error encoding result: " + err.Error())
	}
	out := textResult(string(text))
	out.StructuredContent = result
	return out
}

func (s *Server) buildRequest(args generateArgs) (engine.Request, error) {
	req := s.defaults.Request()
	req.Task = args.Task
	req.Context = args.Context

	if len(args.Schema) == 0 {
		return req, fmt.Errorf("schema is required")
	}
	doc := []byte(args.Schema)
	if bytes.HasPrefix(bytes.TrimSpace(doc), []byte(`"`)) {
		var text string
		if err := json.Unmarshal(doc, &text); err != nil {
			return req, fmt.Errorf("invalid schema: %w", err)
		}
		doc = []byte(text)
	}
	sh, err := shape.Parse(doc)
	if err != nil {
		return req, fmt.Errorf("invalid schema: %w", err)
	}
	req.Shape = sh

	if len(args.Fallback) > 0 && !bytes.Equal(bytes.TrimSpace(args.Fallback), []byte("null")) {
		var v any
		if err := json.Unmarshal(args.Fallback, &v); err != nil {
			return req, fmt.Errorf("invalid fallback: %w", err)
		}
		req.Fallback = engine.FallbackValue(v)
	}
	if args.Retry != nil {
		req.Retry = *args.Retry
	}
	if args.Timeout != "" {
		d, err := time.ParseDuration(args.Timeout)
		if err != nil {
			return req, fmt.Errorf("invalid timeout (use e.g. 10s): %w", err)
		}
		req.Timeout = d
	}
	if args.Cache != "" {
		req.Cache = engine.CachePolicy(args.Cache)
	}
	if args.Temperature != nil {
		req.Temperature = *args.Temperature
	}
	if args.MaxTokens != nil {
		req.MaxTokens = *args.MaxTokens
	}
	return req, nil
}

func handleCacheStats(_ context.Context, s *Server, _ json.RawMessage) ToolCallResult {
	stats := s.engine.Cache().Stats()
	out := textResult(formatCacheStats(stats))
	out.StructuredContent = stats
	return out
}

func handleCacheClear(_ context.Context, s *Server, _ json.RawMessage) ToolCallResult {
	before := s.engine.Cache().Stats().Entries
	s.engine.Cache().Clear()
	return textResult(fmt.Sprintf("Cleared %d cache entries.", before))
}

func handleUsageSummary(ctx context.Context, s *Server, rawArgs json.RawMessage) ToolCallResult {
	if s.tracker == nil {
		return textResult("Usage ledger is not configured.")
	}
	var args usageArgs
	if len(rawArgs) > 0 {
		_ = json.Unmarshal(rawArgs, &args)
	}
	rows, err := s.tracker.Summary(ctx, args.Provider)
	if err != nil {
		return errorResult("Error fetching usage: " + err.Error())
	}
	return textResult(formatSummary(rows))
}
