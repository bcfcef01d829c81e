// Package anthropic adapts the Anthropic /v1/messages API.
package anthropic

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"

	"github.com/pario-ai/formwork/pkg/models"
	"github.com/pario-ai/formwork/pkg/provider"
)

const (
	messagesPath = "/v1/messages"

	// DefaultVersion is sent as the anthropic-version header.
	DefaultVersion = "2023-06-01"
	// DefaultURL is used when Config.URL is empty.
	DefaultURL = "https://api.anthropic.com"
	// DefaultMaxTokens is used when a call sets no limit; the API requires one.
	DefaultMaxTokens = 1024
)

// Config points the adapter at the API.
type Config struct {
	Name    string // defaults to "anthropic"
	URL     string
	APIKey  string
	Model   string
	Version string
	Client  *http.Client
}

// Adapter implements provider.StreamExecutor.
type Adapter struct {
	cfg Config
}

// New creates an Adapter.
func New(cfg Config) *Adapter {
	if cfg.Name == "" {
		cfg.Name = "anthropic"
	}
	if cfg.URL == "" {
		cfg.URL = DefaultURL
	}
	if cfg.Version == "" {
		cfg.Version = DefaultVersion
	}
	return &Adapter{cfg: cfg}
}

// Provider wraps the adapter as a streaming provider.
func (a *Adapter) Provider() provider.Provider {
	return provider.Streaming(a.cfg.Name, a)
}

func (a *Adapter) request(call provider.Call, stream bool) (*models.AnthropicRequest, error) {
	if a.cfg.APIKey == "" {
		return nil, models.NewError(models.KindConfiguration, a.cfg.Name+" has no api key configured", nil)
	}
	model := provider.OptionString(call.ProviderOptions, "model")
	if model == "" {
		model = a.cfg.Model
	}
	if model == "" {
		return nil, models.NewError(models.KindConfiguration, a.cfg.Name+" has no model configured", nil)
	}

	user := call.Instructions.User
	if user == "" {
		user = call.Task
	}
	maxTokens := call.MaxTokens
	if maxTokens <= 0 {
		maxTokens = DefaultMaxTokens
	}
	temp := call.Temperature
	return &models.AnthropicRequest{
		Model:       model,
		System:      call.Instructions.System,
		Messages:    []models.ChatMessage{{Role: "user", Content: user}},
		MaxTokens:   maxTokens,
		Temperature: &temp,
		Stream:      stream,
	}, nil
}

func (a *Adapter) headers() map[string]string {
	return map[string]string{
		"x-api-key":         a.cfg.APIKey,
		"anthropic-version": a.cfg.Version,
	}
}

// Execute sends one non-streaming message request.
func (a *Adapter) Execute(ctx context.Context, call provider.Call) (*provider.Response, error) {
	req, err := a.request(call, false)
	if err != nil {
		return nil, err
	}

	resp, err := provider.PostJSON(ctx, a.cfg.Client, a.cfg.Name, a.cfg.URL, messagesPath, a.headers(), req)
	if err != nil {
		return nil, err
	}

	var out models.AnthropicResponse
	if err := provider.DecodeJSON(resp, &out); err != nil {
		return nil, err
	}

	var text strings.Builder
	for _, block := range out.Content {
		if block.Type == "text" {
			text.WriteString(block.Text)
		}
	}

	result := &provider.Response{Data: text.String()}
	if out.Usage != nil {
		if u := out.Usage.ToUsage(); u.TotalTokens > 0 {
			result.Tokens = provider.Tokens(u.TotalTokens)
		}
	}
	return result, nil
}

// ExecuteStream sends a streaming request and reports each text delta.
func (a *Adapter) ExecuteStream(ctx context.Context, call provider.Call, onDelta func(string)) (*provider.Response, error) {
	req, err := a.request(call, true)
	if err != nil {
		return nil, err
	}

	resp, err := provider.PostJSON(ctx, a.cfg.Client, a.cfg.Name, a.cfg.URL, messagesPath, a.headers(), req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	var text strings.Builder
	var usage *models.Usage
	err = provider.ScanSSE(resp.Body, func(data string) (bool, error) {
		var evt models.AnthropicStreamEvent
		if err := json.Unmarshal([]byte(data), &evt); err != nil {
			return false, fmt.Errorf("decode %s event: %w", a.cfg.Name, err)
		}
		switch evt.Type {
		case "message_start":
			var msg struct {
				Usage *models.AnthropicUsage `json:"usage,omitempty"`
			}
			if err := json.Unmarshal(evt.Message, &msg); err == nil && msg.Usage != nil {
				usage = msg.Usage.ToUsage()
			}
		case "content_block_delta":
			var delta models.AnthropicTextDelta
			if err := json.Unmarshal(evt.Delta, &delta); err == nil && delta.Text != "" {
				text.WriteString(delta.Text)
				onDelta(delta.Text)
			}
		case "message_delta":
			if evt.Usage != nil {
				if usage == nil {
					usage = &models.Usage{}
				}
				usage.CompletionTokens = evt.Usage.OutputTokens
				usage.TotalTokens = usage.PromptTokens + evt.Usage.OutputTokens
			}
		case "message_stop":
			return false, nil
		case "error":
			var body models.APIErrorBody
			_ = json.Unmarshal([]byte(data), &body)
			msg := "stream error"
			if body.Error != nil {
				msg = body.Error.Message
			}
			return false, fmt.Errorf("%s: %s", a.cfg.Name, msg)
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
