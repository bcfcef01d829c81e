package metrics

import (
	"context"
	"time"
)

// Collector receives engine events. Implementations must be safe for
// concurrent use.
type Collector interface {
	// RecordRequest counts a finished Execute or ExecuteStream call.
	// outcome is one of "success", "cache_hit", "fallback" or "error".
	RecordRequest(ctx context.Context, operation, outcome string, d time.Duration)
	RecordAttempt(ctx context.Context, operation, provider string)
	RecordError(ctx context.Context, operation, kind string)
	RecordCacheLookup(ctx context.Context, hit bool)
	AddTokens(ctx context.Context, provider string, tokens int)
}
