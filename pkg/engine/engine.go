// Package engine orchestrates structured-output requests: cache lookup,
// provider invocation under a deadline, retries, validation, fallback and
// cache write. Execute handles whole responses and ExecuteStream handles
// incremental ones with the same contract.
package engine

import (
	"context"
	"fmt"
	"log"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"

	"github.com/pario-ai/formwork/pkg/cache"
	"github.com/pario-ai/formwork/pkg/fingerprint"
	"github.com/pario-ai/formwork/pkg/metrics"
	"github.com/pario-ai/formwork/pkg/models"
	"github.com/pario-ai/formwork/pkg/prompt"
	"github.com/pario-ai/formwork/pkg/provider"
	"github.com/pario-ai/formwork/pkg/shape"
	"github.com/pario-ai/formwork/pkg/tracker"
)

const (
	// DefaultTimeout bounds each attempt when neither the request nor the
	// engine options set one.
	DefaultTimeout = 30 * time.Second
	// DefaultRetryDelay separates streaming attempts.
	DefaultRetryDelay = 250 * time.Millisecond
)

// CachePolicy selects whether a request may be served from, and stored in,
// the session cache.
type CachePolicy string

const (
	CacheSession CachePolicy = "session"
	CacheNone    CachePolicy = "none"
)

// Fallback is substituted when every attempt fails. Func, when set, is
// called instead of using Value.
type Fallback struct {
	Value any
	Func  func() any
}

// FallbackValue returns a Fallback that yields v.
func FallbackValue(v any) *Fallback { return &Fallback{Value: v} }

// FallbackFunc returns a Fallback that calls f.
func FallbackFunc(f func() any) *Fallback { return &Fallback{Func: f} }

func (f *Fallback) resolve() any {
	if f.Func != nil {
		return f.Func()
	}
	return f.Value
}

// Request describes one logical call. The engine never modifies it.
type Request struct {
	Task    string
	Context any
	Shape   shape.Shape
	// Temperature defaults to 0 for deterministic sampling.
	Temperature float64
	// MaxTokens caps the output length; 0 leaves it to the provider.
	MaxTokens int
	// Cache is CacheSession when empty.
	Cache CachePolicy
	// Timeout bounds each attempt; 0 uses the engine default.
	Timeout time.Duration
	// Retry is the number of extra attempts after the first.
	Retry           int
	Fallback        *Fallback
	ProviderOptions map[string]any
}

// Options configures an Engine. Zero values select defaults.
type Options struct {
	Cache          cache.Cache
	Metrics        metrics.Collector
	Recorder       tracker.Tracker
	Logger         *log.Logger
	DefaultTimeout time.Duration
	RetryDelay     time.Duration
}

// Engine runs requests against one provider. It is safe for concurrent use.
type Engine struct {
	provider   provider.Provider
	cache      cache.Cache
	metrics    metrics.Collector
	recorder   tracker.Tracker
	logger     *log.Logger
	timeout    time.Duration
	retryDelay time.Duration
}

// New creates an Engine. A nil Options.Cache selects the process-wide
// session cache.
func New(p provider.Provider, opts Options) *Engine {
	e := &Engine{
		provider:   p,
		cache:      opts.Cache,
		metrics:    opts.Metrics,
		recorder:   opts.Recorder,
		logger:     opts.Logger,
		timeout:    opts.DefaultTimeout,
		retryDelay: opts.RetryDelay,
	}
	if e.cache == nil {
		e.cache = cache.Default()
	}
	if e.metrics == nil {
		e.metrics = metrics.NewNoopCollector()
	}
	if e.logger == nil {
		e.logger = log.Default()
	}
	if e.timeout <= 0 {
		e.timeout = DefaultTimeout
	}
	if e.retryDelay < 0 {
		e.retryDelay = 0
	} else if e.retryDelay == 0 {
		e.retryDelay = DefaultRetryDelay
	}
	return e
}

// Provider returns the provider the engine calls.
func (e *Engine) Provider() provider.Provider { return e.provider }

// Cache returns the cache the engine consults.
func (e *Engine) Cache() cache.Cache { return e.cache }

// prepared is a sanitized request ready to run.
type prepared struct {
	id          string
	operation   string
	req         Request
	task        string
	contextText string
	class       shape.Classification
	call        provider.Call
	key         string // empty when caching is disabled
	timeout     time.Duration
	attempts    int
}

func (e *Engine) prepare(req Request, operation string) (*prepared, *models.Error) {
	p := &prepared{id: uuid.NewString(), operation: operation, req: req}

	if !e.provider.Configured() {
		return p, models.NewError(models.KindConfiguration, "no provider configured", nil)
	}
	if req.Shape == nil {
		return p, models.NewError(models.KindConfiguration, "request has no result shape", nil)
	}
	p.task = sanitizeTask(req.Task)
	if p.task == "" {
		return p, models.NewError(models.KindConfiguration, "request has no task", nil)
	}

	switch req.Cache {
	case "", CacheSession:
	case CacheNone:
	default:
		return p, models.NewError(models.KindConfiguration, fmt.Sprintf("unknown cache policy %q", req.Cache), nil)
	}

	p.contextText = contextText(req.Context)
	p.class = shape.Classify(req.Shape)
	p.timeout = req.Timeout
	if p.timeout <= 0 {
		p.timeout = e.timeout
	}
	p.attempts = req.Retry + 1
	if p.attempts < 1 {
		p.attempts = 1
	}

	instructions := prompt.Build(prompt.Input{
		Task:    p.task,
		Context: req.Context,
		Example: shape.Example(req.Shape),
		Class:   p.class,
	})
	p.call = provider.Call{
		Task:            p.task,
		Context:         req.Context,
		Shape:           req.Shape,
		Instructions:    instructions,
		Temperature:     req.Temperature,
		MaxTokens:       req.MaxTokens,
		ProviderOptions: req.ProviderOptions,
	}

	if req.Cache != CacheNone {
		p.key = fingerprint.Compute(fingerprint.Input{
			Task:            p.task,
			Context:         req.Context,
			ShapeID:         shape.Identity(req.Shape),
			Temperature:     req.Temperature,
			MaxTokens:       req.MaxTokens,
			ProviderOptions: req.ProviderOptions,
		})
	}
	return p, nil
}

func sanitizeTask(task string) string {
	task = strings.ReplaceAll(task, "\r\n", "\n")
	return strings.TrimSpace(task)
}

func contextText(v any) string {
	if v == nil {
		return ""
	}
	if s, ok := v.(string); ok {
		return strings.TrimSpace(s)
	}
	return fingerprint.Canonical(v)
}

// EstimateTokens is the usage charged when a provider reports none:
// a quarter token per character of task and context plus a fixed overhead.
func EstimateTokens(task, contextText string) int {
	return ceilDiv(utf8.RuneCountInString(task), 4) + ceilDiv(utf8.RuneCountInString(contextText), 4) + 8
}

func ceilDiv(n, d int) int {
	return (n + d - 1) / d
}

func (p *prepared) tokens(resp *provider.Response) (int, bool) {
	if resp != nil && resp.Tokens != nil && *resp.Tokens >= 0 {
		return *resp.Tokens, false
	}
	return EstimateTokens(p.task, p.contextText), true
}

// cached returns the stored result for p, if any.
func (e *Engine) cached(ctx context.Context, p *prepared) (*models.Result, bool) {
	if p.key == "" {
		return nil, false
	}
	entry, ok := e.cache.Get(p.key)
	e.metrics.RecordCacheLookup(ctx, ok)
	if !ok {
		return nil, false
	}
	result := entry.Result
	result.RequestID = p.id
	e.logger.Printf("formwork: request %s served from cache (stored %s)", p.id, entry.StoredAt.Format(time.RFC3339))
	return &result, true
}

// store writes a fresh, validated result into the cache.
func (e *Engine) store(p *prepared, result *models.Result) {
	if p.key == "" || result.UsedFallback {
		return
	}
	e.cache.Set(p.key, *result)
}

// exhausted resolves the fallback after the last attempt failed.
func (e *Engine) exhausted(p *prepared, lastErr *models.Error, tokens int) (*models.Result, *models.Error) {
	if p.req.Fallback == nil || lastErr.Kind == models.KindConfiguration {
		return nil, lastErr
	}
	e.logger.Printf("formwork: request %s using fallback after %d attempt(s): %v", p.id, p.attempts, lastErr)
	return &models.Result{
		Data:           p.req.Fallback.resolve(),
		Tokens:         tokens,
		UsedFallback:   true,
		FallbackReason: lastErr.Error(),
		RequestID:      p.id,
	}, nil
}

// finish records metrics and the ledger row for a completed request.
func (e *Engine) finish(ctx context.Context, p *prepared, start time.Time, result *models.Result, err *models.Error, estimated bool) {
	outcome := "success"
	switch {
	case err != nil:
		outcome = "error"
	case result.FromCache:
		outcome = "cache_hit"
	case result.UsedFallback:
		outcome = "fallback"
	}
	e.metrics.RecordRequest(ctx, p.operation, outcome, time.Since(start))
	if result != nil && !result.FromCache {
		e.metrics.AddTokens(ctx, e.provider.Name(), result.Tokens)
	}

	if e.recorder == nil {
		return
	}
	rec := models.UsageRecord{
		RequestID: p.id,
		Provider:  e.provider.Name(),
		Operation: p.operation,
		Status:    outcome,
		CreatedAt: time.Now().UTC(),
	}
	if result != nil {
		rec.Tokens = result.Tokens
		rec.Estimated = estimated
		rec.FromCache = result.FromCache
		rec.UsedFallback = result.UsedFallback
	}
	if rerr := e.recorder.Record(context.WithoutCancel(ctx), rec); rerr != nil {
		e.logger.Printf("formwork: request %s usage record failed: %v", p.id, rerr)
	}
}

func (e *Engine) logAttempt(p *prepared, attempt int, err *models.Error) {
	e.logger.Printf("formwork: request %s attempt %d/%d failed: %v", p.id, attempt, p.attempts, err)
}
