package mcp

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/pario-ai/formwork/pkg/cache"
	"github.com/pario-ai/formwork/pkg/config"
	"github.com/pario-ai/formwork/pkg/engine"
	"github.com/pario-ai/formwork/pkg/models"
	"github.com/pario-ai/formwork/pkg/provider"
)

// fakeTracker implements tracker.Tracker for testing.
type fakeTracker struct {
	summaries []models.UsageSummary
	provider  string
}

func (f *fakeTracker) Record(_ context.Context, _ models.UsageRecord) error { return nil }
func (f *fakeTracker) Recent(_ context.Context, _ int) ([]models.UsageRecord, error) {
	return nil, nil
}
func (f *fakeTracker) TotalSince(_ context.Context, _ string, _ time.Time) (int64, error) {
	return 0, nil
}
func (f *fakeTracker) Summary(_ context.Context, provider string) ([]models.UsageSummary, error) {
	f.provider = provider
	return f.summaries, nil
}
func (f *fakeTracker) Close() error { return nil }

// fakeAdapter returns reply for every call and counts calls.
type fakeAdapter struct {
	mu    sync.Mutex
	reply any
	calls int
}

func (f *fakeAdapter) Execute(_ context.Context, _ provider.Call) (*provider.Response, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	return &provider.Response{Data: f.reply, Tokens: provider.Tokens(10)}, nil
}

func newTestServer(t *testing.T, reply any, tr *fakeTracker) (*Server, *fakeAdapter) {
	t.Helper()
	a := &fakeAdapter{reply: reply}
	e := engine.New(provider.Basic("fake", a), engine.Options{
		Cache:      cache.NewSession(),
		Logger:     log.New(io.Discard, "", 0),
		RetryDelay: -1,
	})
	var srv *Server
	if tr == nil {
		srv = New(e, nil, config.Default().Defaults, "test")
	} else {
		srv = New(e, tr, config.Default().Defaults, "test")
	}
	return srv, a
}

func sendAndReceive(t *testing.T, srv *Server, req Request) Response {
	t.Helper()
	line, err := json.Marshal(req)
	if err != nil {
		t.Fatal(err)
	}
	line = append(line, '\n')

	var out bytes.Buffer
	if err := srv.Run(context.Background(), bytes.NewReader(line), &out); err != nil {
		t.Fatal(err)
	}

	var resp Response
	if err := json.Unmarshal(out.Bytes(), &resp); err != nil {
		t.Fatalf("unmarshal response: %v\nraw: %s", err, out.String())
	}
	return resp
}

func callTool(t *testing.T, srv *Server, name, args string) ToolCallResult {
	t.Helper()
	params, _ := json.Marshal(ToolCallParams{Name: name, Arguments: json.RawMessage(args)})
	resp := sendAndReceive(t, srv, Request{
		JSONRPC: "2.0",
		ID:      json.RawMessage(`3`),
		Method:  "tools/call",
		Params:  params,
	})
	if resp.Error != nil {
		t.Fatalf("unexpected error: %v", resp.Error)
	}

	data, _ := json.Marshal(resp.Result)
	var result ToolCallResult
	if err := json.Unmarshal(data, &result); err != nil {
		t.Fatal(err)
	}
	if len(result.Content) == 0 {
		t.Fatal("expected content")
	}
	return result
}

func TestInitialize(t *testing.T) {
	srv, _ := newTestServer(t, "x", nil)
	resp := sendAndReceive(t, srv, Request{
		JSONRPC: "2.0",
		ID:      json.RawMessage(`1`),
		Method:  "initialize",
	})

	if resp.Error != nil {
		t.Fatalf("unexpected error: %v", resp.Error)
	}

	data, _ := json.Marshal(resp.Result)
	var result InitializeResult
	json.Unmarshal(data, &result)

	if result.ProtocolVersion != ProtocolVersion {
		t.Errorf("protocol version = %s, want %s", result.ProtocolVersion, ProtocolVersion)
	}
	if result.ServerInfo.Name != "formwork" {
		t.Errorf("server name = %s, want formwork", result.ServerInfo.Name)
	}
}

func TestToolsList(t *testing.T) {
	srv, _ := newTestServer(t, "x", nil)
	resp := sendAndReceive(t, srv, Request{
		JSONRPC: "2.0",
		ID:      json.RawMessage(`2`),
		Method:  "tools/list",
	})

	if resp.Error != nil {
		t.Fatalf("unexpected error: %v", resp.Error)
	}

	data, _ := json.Marshal(resp.Result)
	var result ToolsListResult
	json.Unmarshal(data, &result)

	if len(result.Tools) != len(toolHandlers) {
		t.Errorf("got %d tools, want %d", len(result.Tools), len(toolHandlers))
	}
	for _, tool := range result.Tools {
		if _, ok := toolHandlers[tool.Name]; !ok {
			t.Errorf("tool %s has no handler", tool.Name)
		}
	}
}

func TestGenerate(t *testing.T) {
	srv, a := newTestServer(t, `{"city": "Paris", "population": 2100000}`, nil)

	args := `{
		"task": "Describe the capital of France",
		"schema": {"type": "object", "properties": {"city": {"type": "string"}, "population": {"type": "integer"}}, "required": ["city", "population"]}
	}`
	result := callTool(t, srv, "formwork_generate", args)
	if result.IsError {
		t.Fatalf("unexpected tool error: %s", result.Content[0].Text)
	}

	var got models.Result
	if err := json.Unmarshal([]byte(result.Content[0].Text), &got); err != nil {
		t.Fatalf("result is not JSON: %v\n%s", err, result.Content[0].Text)
	}
	data, ok := got.Data.(map[string]any)
	if !ok || data["city"] != "Paris" || data["population"] != 2100000.0 {
		t.Errorf("unexpected data: %#v", got.Data)
	}
	if got.FromCache {
		t.Error("first call should not be cached")
	}

	// Same call again is served by the shared session cache.
	result = callTool(t, srv, "formwork_generate", args)
	if !strings.Contains(result.Content[0].Text, `"from_cache": true`) {
		t.Errorf("expected cached result, got: %s", result.Content[0].Text)
	}
	if a.calls != 1 {
		t.Errorf("expected 1 provider call, got %d", a.calls)
	}
}

func TestGenerateYAMLSchemaAndFallback(t *testing.T) {
	srv, _ := newTestServer(t, "not a number", nil)

	args := `{
		"task": "Pick a number",
		"schema": "type: number\nminimum: 1\n",
		"fallback": 5,
		"retry": 1
	}`
	result := callTool(t, srv, "formwork_generate", args)
	if result.IsError {
		t.Fatalf("unexpected tool error: %s", result.Content[0].Text)
	}
	if !strings.Contains(result.Content[0].Text, `"used_fallback": true`) {
		t.Errorf("expected fallback result, got: %s", result.Content[0].Text)
	}
}

func TestGenerateInvalidArguments(t *testing.T) {
	srv, a := newTestServer(t, "x", nil)

	tests := []struct {
		name string
		args string
	}{
		{"missing schema", `{"task": "t"}`},
		{"bad timeout", `{"task": "t", "schema": {"type": "string"}, "timeout": "soon"}`},
		{"missing task", `{"schema": {"type": "string"}}`},
		{"bad cache policy", `{"task": "t", "schema": {"type": "string"}, "cache": "disk"}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := callTool(t, srv, "formwork_generate", tt.args)
			if !result.IsError {
				t.Errorf("expected isError=true, got: %s", result.Content[0].Text)
			}
		})
	}
	if a.calls != 0 {
		t.Errorf("expected no provider calls, got %d", a.calls)
	}
}

func TestCacheStatsAndClear(t *testing.T) {
	srv, _ := newTestServer(t, "hello", nil)
	callTool(t, srv, "formwork_generate", `{"task": "greet", "schema": {"type": "string"}}`)
	callTool(t, srv, "formwork_generate", `{"task": "greet", "schema": {"type": "string"}}`)

	result := callTool(t, srv, "formwork_cache_stats", `{}`)
	text := result.Content[0].Text
	if !strings.Contains(text, "Entries:  1") || !strings.Contains(text, "50.0%") {
		t.Errorf("unexpected cache stats output: %s", text)
	}

	result = callTool(t, srv, "formwork_cache_clear", `{}`)
	if !strings.Contains(result.Content[0].Text, "Cleared 1") {
		t.Errorf("unexpected clear output: %s", result.Content[0].Text)
	}
	if n := srv.engine.Cache().Stats().Entries; n != 0 {
		t.Errorf("expected empty cache, got %d entries", n)
	}
}

func TestUsageSummary(t *testing.T) {
	tr := &fakeTracker{
		summaries: []models.UsageSummary{
			{Provider: "openai", Operation: "execute", RequestCount: 10, CacheHits: 4, TotalTokens: 700},
		},
	}
	srv, _ := newTestServer(t, "x", tr)

	result := callTool(t, srv, "formwork_usage_summary", `{"provider": "openai"}`)
	if !strings.Contains(result.Content[0].Text, "700") {
		t.Errorf("expected 700 in output, got: %s", result.Content[0].Text)
	}
	if tr.provider != "openai" {
		t.Errorf("expected provider filter openai, got %q", tr.provider)
	}
}

func TestUsageSummaryNotConfigured(t *testing.T) {
	srv, _ := newTestServer(t, "x", nil)

	result := callTool(t, srv, "formwork_usage_summary", `{}`)
	if !strings.Contains(result.Content[0].Text, "not configured") {
		t.Errorf("expected 'not configured', got: %s", result.Content[0].Text)
	}
}

func TestUnknownTool(t *testing.T) {
	srv, _ := newTestServer(t, "x", nil)

	result := callTool(t, srv, "formwork_nope", `{}`)
	if !result.IsError {
		t.Error("expected isError=true for unknown tool")
	}
}

func TestNotificationNoResponse(t *testing.T) {
	srv, _ := newTestServer(t, "x", nil)

	line, _ := json.Marshal(Request{
		JSONRPC: "2.0",
		Method:  "notifications/initialized",
	})
	line = append(line, '\n')

	var out bytes.Buffer
	_ = srv.Run(context.Background(), bytes.NewReader(line), &out)

	if out.Len() != 0 {
		t.Errorf("expected no output for notification, got: %s", out.String())
	}
}

func TestUnknownMethod(t *testing.T) {
	srv, _ := newTestServer(t, "x", nil)
	resp := sendAndReceive(t, srv, Request{
		JSONRPC: "2.0",
		ID:      json.RawMessage(`9`),
		Method:  "unknown/method",
	})

	if resp.Error == nil {
		t.Fatal("expected error for unknown method")
	}
	if resp.Error.Code != CodeMethodNotFound {
		t.Errorf("error code = %d, want %d", resp.Error.Code, CodeMethodNotFound)
	}
}
