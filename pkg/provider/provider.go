// Package provider defines the boundary between the engine and the code that
// actually talks to a model backend.
package provider

import (
	"context"
	"errors"

	"github.com/pario-ai/formwork/pkg/prompt"
	"github.com/pario-ai/formwork/pkg/shape"
)

// ErrNotStreaming is returned when a streaming call targets a provider that
// cannot stream.
var ErrNotStreaming = errors.New("provider does not support streaming")

// Call is what an adapter receives for one attempt. Instructions holds the
// compiled prompt; adapters that build their own prompt may ignore it.
type Call struct {
	Task            string
	Context         any
	Shape           shape.Shape
	Instructions    prompt.Instructions
	Temperature     float64
	MaxTokens       int
	ProviderOptions map[string]any
}

// Response is an adapter's answer. Data is either the model's raw text or an
// already decoded value. Tokens is nil when the backend reported no usage.
type Response struct {
	Data   any
	Tokens *int
}

// Executor runs a call to completion. Implementations must return promptly
// once ctx is done.
type Executor interface {
	Execute(ctx context.Context, call Call) (*Response, error)
}

// StreamExecutor can also deliver output incrementally. onDelta is called
// with each new piece of text, in order; the returned Response's Data is
// ignored in favor of the accumulated text.
type StreamExecutor interface {
	Executor
	ExecuteStream(ctx context.Context, call Call, onDelta func(delta string)) (*Response, error)
}

// ExecutorFunc adapts a function to Executor.
type ExecutorFunc func(ctx context.Context, call Call) (*Response, error)

func (f ExecutorFunc) Execute(ctx context.Context, call Call) (*Response, error) {
	return f(ctx, call)
}

// Provider is either Basic or Streaming; the variant is fixed when the
// provider is constructed.
type Provider struct {
	name   string
	exec   Executor
	stream StreamExecutor
}

// Basic wraps an adapter that only supports whole responses.
func Basic(name string, e Executor) Provider {
	return Provider{name: name, exec: e}
}

// Streaming wraps an adapter that supports both whole and streamed responses.
func Streaming(name string, s StreamExecutor) Provider {
	return Provider{name: name, exec: s, stream: s}
}

// New picks the variant from what e implements. Use it when wiring adapters
// from configuration; code that knows its adapter should call Basic or
// Streaming directly.
func New(name string, e Executor) Provider {
	if s, ok := e.(StreamExecutor); ok {
		return Streaming(name, s)
	}
	return Basic(name, e)
}

// Name identifies the provider in logs, errors and usage records.
func (p Provider) Name() string { return p.name }

// Configured reports whether p wraps an adapter.
func (p Provider) Configured() bool { return p.exec != nil }

// CanStream reports whether p is the Streaming variant.
func (p Provider) CanStream() bool { return p.stream != nil }

// Executor returns the whole-response adapter.
func (p Provider) Executor() Executor { return p.exec }

// StreamExecutor returns the streaming adapter or ErrNotStreaming.
func (p Provider) StreamExecutor() (StreamExecutor, error) {
	if p.stream == nil {
		return nil, ErrNotStreaming
	}
	return p.stream, nil
}

// Tokens is a convenience for adapters building a Response.
func Tokens(n int) *int { return &n }
