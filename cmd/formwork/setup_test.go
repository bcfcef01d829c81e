package main

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/pario-ai/formwork/pkg/config"
	"github.com/pario-ai/formwork/pkg/models"
)

func writeFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestBuildProvider(t *testing.T) {
	tests := []struct {
		pc     config.ProviderConfig
		stream bool
	}{
		{config.ProviderConfig{Name: "a", Type: "openai"}, false},
		{config.ProviderConfig{Name: "b", Type: "anthropic", Stream: true}, true},
		{config.ProviderConfig{Name: "c", Stream: true}, true},
	}
	for _, tt := range tests {
		p := buildProvider(tt.pc)
		if p.Name() != tt.pc.Name {
			t.Errorf("name = %s, want %s", p.Name(), tt.pc.Name)
		}
		if p.CanStream() != tt.stream {
			t.Errorf("%s: CanStream = %v, want %v", tt.pc.Name, p.CanStream(), tt.stream)
		}
	}
}

func TestLoadContext(t *testing.T) {
	dir := t.TempDir()

	v, err := loadContext(writeFile(t, dir, "ctx.json", `{"city": "Paris"}`))
	if err != nil {
		t.Fatal(err)
	}
	if m, ok := v.(map[string]any); !ok || m["city"] != "Paris" {
		t.Errorf("expected decoded map, got %#v", v)
	}

	v, err = loadContext(writeFile(t, dir, "ctx.txt", "just some notes"))
	if err != nil {
		t.Fatal(err)
	}
	if v != "just some notes" {
		t.Errorf("expected text, got %#v", v)
	}
}

func TestRunCommand(t *testing.T) {
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"choices":[{"index":0,"message":{"role":"assistant","content":"{\"n\": 3}"}}],"usage":{"prompt_tokens":5,"completion_tokens":4,"total_tokens":9}}`))
	}))
	defer upstream.Close()

	dir := t.TempDir()
	cfgPath := writeFile(t, dir, "formwork.yaml", `
db_path: `+filepath.Join(dir, "usage.db")+`
providers:
  - name: local
    url: `+upstream.URL+`
    model: test-model
`)
	schemaPath := writeFile(t, dir, "schema.yaml", "type: object\nproperties:\n  n:\n    type: integer\nrequired: [n]\n")

	cmd := newRunCmd()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetArgs([]string{"-c", cfgPath, "-t", "count the apples", "-s", schemaPath, "--no-cache"})
	if err := cmd.Execute(); err != nil {
		t.Fatal(err)
	}

	var result models.Result
	if err := json.Unmarshal(out.Bytes(), &result); err != nil {
		t.Fatalf("output is not a result: %v\n%s", err, out.String())
	}
	if m, ok := result.Data.(map[string]any); !ok || m["n"] != 3.0 {
		t.Errorf("unexpected data: %#v", result.Data)
	}
	if result.Tokens != 9 {
		t.Errorf("expected 9 tokens, got %d", result.Tokens)
	}
}
