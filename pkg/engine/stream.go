package engine

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/pario-ai/formwork/pkg/models"
	"github.com/pario-ai/formwork/pkg/normalize"
	"github.com/pario-ai/formwork/pkg/provider"
)

// Chunk is one progress notification from ExecuteStream. Text is everything
// received so far in the current attempt and never shrinks within it.
type Chunk struct {
	Text    string `json:"text"`
	Delta   string `json:"delta"`
	Done    bool   `json:"done"`
	Attempt int    `json:"attempt"`
}

// StreamState is the lifecycle of one streamed attempt.
type StreamState int

const (
	StateIdle StreamState = iota
	StateStreaming
	StateDone
	StateErrored
	StateAborted
)

func (s StreamState) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateStreaming:
		return "streaming"
	case StateDone:
		return "done"
	case StateErrored:
		return "errored"
	case StateAborted:
		return "aborted"
	default:
		return fmt.Sprintf("StreamState(%d)", int(s))
	}
}

// stream accumulates one attempt's deltas. onChunk is always called with mu
// held, so chunks are delivered in order and none follow the final one.
type stream struct {
	mu      sync.Mutex
	state   StreamState
	text    strings.Builder
	delta   string
	attempt int
	onChunk func(Chunk)
}

func (s *stream) push(delta string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state != StateStreaming || delta == "" {
		return
	}
	s.text.WriteString(delta)
	s.delta = delta
	s.onChunk(Chunk{Text: s.text.String(), Delta: delta, Attempt: s.attempt})
}

// settle stops accepting deltas. Anything the adapter sends afterwards is
// dropped.
func (s *stream) settle() {
	s.mu.Lock()
	if s.state == StateStreaming {
		s.state = StateIdle
	}
	s.mu.Unlock()
}

// complete emits the terminal chunk and returns the accumulated text.
func (s *stream) complete() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.state = StateDone
	text := s.text.String()
	s.onChunk(Chunk{Text: text, Delta: "", Done: true, Attempt: s.attempt})
	return text
}

func (s *stream) fail(aborted bool) {
	s.mu.Lock()
	if aborted {
		s.state = StateAborted
	} else {
		s.state = StateErrored
	}
	s.mu.Unlock()
}

// ExecuteStream runs req against a streaming provider, reporting progress
// through onChunk. Each attempt starts from empty text; within an attempt
// Text only grows, and a completed attempt ends with exactly one chunk whose
// Done is true. The accumulated text is then validated like Execute's
// output. A cache hit is reported as a single Done chunk.
func (e *Engine) ExecuteStream(ctx context.Context, req Request, onChunk func(Chunk)) (*models.Result, error) {
	start := time.Now()
	if onChunk == nil {
		onChunk = func(Chunk) {}
	}

	p, perr := e.prepare(req, "stream")
	exec, serr := e.provider.StreamExecutor()
	if perr == nil && serr != nil {
		perr = models.NewError(models.KindConfiguration,
			fmt.Sprintf("provider %s does not support streaming", e.provider.Name()), serr)
	}
	if perr != nil {
		e.metrics.RecordError(ctx, p.operation, string(perr.Kind))
		e.metrics.RecordRequest(ctx, p.operation, "error", time.Since(start))
		return nil, perr
	}

	if result, ok := e.cached(ctx, p); ok {
		text := renderText(result.Data)
		onChunk(Chunk{Text: text, Delta: "", Done: true, Attempt: 0})
		e.finish(ctx, p, start, result, nil, false)
		return result, nil
	}

	var lastErr *models.Error
	spent, spentEstimated := 0, false
	for attempt := 1; attempt <= p.attempts; attempt++ {
		if attempt > 1 && !e.pause(ctx) {
			lastErr = canceledError(ctx)
			break
		}

		st := &stream{state: StateStreaming, attempt: attempt, onChunk: onChunk}
		e.metrics.RecordAttempt(ctx, p.operation, e.provider.Name())
		out := e.invoke(ctx, p, func(actx context.Context) (*provider.Response, error) {
			return exec.ExecuteStream(actx, p.call, st.push)
		}, st.settle)

		if out.err == nil {
			text := st.complete()
			tokens, estimated := p.tokens(out.resp)
			data, err := normalize.ParseAndValidate(text, p.req.Shape, p.class.IsPrimitive, e.provider.Name())
			if err == nil {
				result := &models.Result{Data: data, Tokens: tokens, RequestID: p.id}
				e.store(p, result)
				e.finish(ctx, p, start, result, nil, estimated)
				return result, nil
			}
			spent += tokens
			spentEstimated = spentEstimated || estimated
			out.err = models.Normalize(err)
		} else {
			st.fail(out.callerCanceled)
		}

		lastErr = out.err
		e.metrics.RecordError(ctx, p.operation, string(lastErr.Kind))
		e.logAttempt(p, attempt, lastErr)
		if lastErr.Kind == models.KindConfiguration || out.callerCanceled {
			break
		}
	}

	result, ferr := e.exhausted(p, lastErr, spent)
	if ferr != nil {
		e.finish(ctx, p, start, nil, ferr, false)
		return nil, ferr
	}
	e.finish(ctx, p, start, result, nil, spentEstimated)
	return result, nil
}

// pause waits the inter-attempt delay. It reports false if ctx ended first.
func (e *Engine) pause(ctx context.Context) bool {
	t := time.NewTimer(e.retryDelay)
	defer t.Stop()
	select {
	case <-t.C:
		return true
	case <-ctx.Done():
		return false
	}
}

// renderText turns a cached value back into the text a stream would carry.
func renderText(v any) string {
	if s, ok := v.(string); ok {
		return s
	}
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Sprint(v)
	}
	return string(data)
}
