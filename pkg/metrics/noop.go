package metrics

import (
	"context"
	"time"
)

// NoopCollector discards everything. It is the engine's default.
type NoopCollector struct{}

// NewNoopCollector creates a no-op collector.
func NewNoopCollector() *NoopCollector {
	return &NoopCollector{}
}

func (n *NoopCollector) RecordRequest(ctx context.Context, operation, outcome string, d time.Duration) {
}

func (n *NoopCollector) RecordAttempt(ctx context.Context, operation, provider string) {}

func (n *NoopCollector) RecordError(ctx context.Context, operation, kind string) {}

func (n *NoopCollector) RecordCacheLookup(ctx context.Context, hit bool) {}

func (n *NoopCollector) AddTokens(ctx context.Context, provider string, tokens int) {}
