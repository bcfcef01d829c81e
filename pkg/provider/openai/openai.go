// Package openai adapts OpenAI-compatible /v1/chat/completions endpoints.
package openai

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"

	"github.com/pario-ai/formwork/pkg/models"
	"github.com/pario-ai/formwork/pkg/provider"
	"github.com/pario-ai/formwork/pkg/shape"
)

const (
	chatPath = "/v1/chat/completions"
	// DefaultURL is used when Config.URL is empty.
	DefaultURL = "https://api.openai.com"
)

// Config points the adapter at a server.
type Config struct {
	Name   string // label used in errors; defaults to "openai"
	URL    string
	APIKey string
	Model  string
	Client *http.Client
}

// Adapter implements provider.StreamExecutor.
type Adapter struct {
	cfg Config
}

// New creates an Adapter.
func New(cfg Config) *Adapter {
	if cfg.Name == "" {
		cfg.Name = "openai"
	}
	if cfg.URL == "" {
		cfg.URL = DefaultURL
	}
	return &Adapter{cfg: cfg}
}

// Provider wraps the adapter as a streaming provider.
func (a *Adapter) Provider() provider.Provider {
	return provider.Streaming(a.cfg.Name, a)
}

func (a *Adapter) request(call provider.Call, stream bool) (*models.ChatCompletionRequest, error) {
	model := provider.OptionString(call.ProviderOptions, "model")
	if model == "" {
		model = a.cfg.Model
	}
	if model == "" {
		return nil, models.NewError(models.KindConfiguration, a.cfg.Name+" has no model configured", nil)
	}

	temp := call.Temperature
	req := &models.ChatCompletionRequest{
		Model:       model,
		Temperature: &temp,
		Stream:      stream,
	}
	if call.Instructions.System != "" {
		req.Messages = append(req.Messages, models.ChatMessage{Role: "system", Content: call.Instructions.System})
	}
	user := call.Instructions.User
	if user == "" {
		user = call.Task
	}
	req.Messages = append(req.Messages, models.ChatMessage{Role: "user", Content: user})

	if call.MaxTokens > 0 {
		n := call.MaxTokens
		req.MaxTokens = &n
	}
	if call.Shape != nil && !shape.Classify(call.Shape).IsPrimitive {
		req.ResponseFormat = &models.ResponseFormat{Type: "json_object"}
	}
	if stream {
		req.StreamOptions = &models.StreamOptions{IncludeUsage: true}
	}
	return req, nil
}

func (a *Adapter) headers() map[string]string {
	h := map[string]string{}
	if a.cfg.APIKey != "" {
		h["Authorization"] = "Bearer " + a.cfg.APIKey
	}
	return h
}

// Execute sends one non-streaming completion request.
func (a *Adapter) Execute(ctx context.Context, call provider.Call) (*provider.Response, error) {
	req, err := a.request(call, false)
	if err != nil {
		return nil, err
	}

	resp, err := provider.PostJSON(ctx, a.cfg.Client, a.cfg.Name, a.cfg.URL, chatPath, a.headers(), req)
	if err != nil {
		return nil, err
	}

	var out models.ChatCompletionResponse
	if err := provider.DecodeJSON(resp, &out); err != nil {
		return nil, err
	}
	if len(out.Choices) == 0 {
		return nil, fmt.Errorf("%s response has no choices", a.cfg.Name)
	}

	result := &provider.Response{Data: out.Choices[0].Message.Content}
	if out.Usage != nil && out.Usage.TotalTokens > 0 {
		result.Tokens = provider.Tokens(out.Usage.TotalTokens)
	}
	return result, nil
}

// ExecuteStream sends a streaming request and reports each content delta.
func (a *Adapter) ExecuteStream(ctx context.Context, call provider.Call, onDelta func(string)) (*provider.Response, error) {
	req, err := a.request(call, true)
	if err != nil {
		return nil, err
	}

	resp, err := provider.PostJSON(ctx, a.cfg.Client, a.cfg.Name, a.cfg.URL, chatPath, a.headers(), req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	var text strings.Builder
	var usage *models.Usage
	err = provider.ScanSSE(resp.Body, func(data string) (bool, error) {
		var chunk models.ChatCompletionChunk
		if err := json.Unmarshal([]byte(data), &chunk); err != nil {
			return false, fmt.Errorf("decode %s chunk: %w", a.cfg.Name, err)
		}
		if chunk.Usage != nil {
			usage = chunk.Usage
		}
		for _, c := range chunk.Choices {
			if c.Delta.Content == "" {
				continue
			}
			text.WriteString(c.Delta.Content)
			onDelta(c.Delta.Content)
		}
		return true, nil
	})
	if err != nil {
		return nil, err
	}
	if ctx.Err() != nil {
		return nil, ctx.Err()
	}

	result := &provider.Response{Data: text.String()}
	if usage != nil && usage.TotalTokens > 0 {
		result.Tokens = provider.Tokens(usage.TotalTokens)
	}
	return result, nil
}
