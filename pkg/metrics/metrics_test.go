package metrics

import (
	"context"
	"io"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestPrometheusCollector_RecordRequest(t *testing.T) {
	c := NewPrometheusCollector()
	ctx := context.Background()

	c.RecordRequest(ctx, "execute", "success", 20*time.Millisecond)
	c.RecordRequest(ctx, "execute", "success", 30*time.Millisecond)
	c.RecordRequest(ctx, "execute", "fallback", time.Second)
	c.RecordRequest(ctx, "stream", "cache_hit", time.Millisecond)

	if got := testutil.CollectAndCount(c.requestsTotal); got != 3 {
		t.Errorf("expected 3 request series, got %d", got)
	}
	if got := testutil.ToFloat64(c.requestsTotal.WithLabelValues("execute", "success")); got != 2 {
		t.Errorf("expected 2 execute/success requests, got %f", got)
	}
	if got := testutil.CollectAndCount(c.requestDuration); got != 2 {
		t.Errorf("expected 2 histogram series, got %d", got)
	}
}

func TestPrometheusCollector_AttemptsAndErrors(t *testing.T) {
	c := NewPrometheusCollector()
	ctx := context.Background()

	c.RecordAttempt(ctx, "execute", "openai")
	c.RecordAttempt(ctx, "execute", "openai")
	c.RecordError(ctx, "execute", "timeout")

	if got := testutil.ToFloat64(c.attemptsTotal.WithLabelValues("execute", "openai")); got != 2 {
		t.Errorf("expected 2 attempts, got %f", got)
	}
	if got := testutil.ToFloat64(c.errorsTotal.WithLabelValues("execute", "timeout")); got != 1 {
		t.Errorf("expected 1 timeout, got %f", got)
	}
}

func TestPrometheusCollector_CacheAndTokens(t *testing.T) {
	c := NewPrometheusCollector()
	ctx := context.Background()

	c.RecordCacheLookup(ctx, true)
	c.RecordCacheLookup(ctx, false)
	c.RecordCacheLookup(ctx, false)
	c.AddTokens(ctx, "anthropic", 120)
	c.AddTokens(ctx, "anthropic", 0)

	if got := testutil.ToFloat64(c.cacheLookups.WithLabelValues("miss")); got != 2 {
		t.Errorf("expected 2 misses, got %f", got)
	}
	if got := testutil.ToFloat64(c.tokensTotal.WithLabelValues("anthropic")); got != 120 {
		t.Errorf("expected 120 tokens, got %f", got)
	}
}

func TestPrometheusCollector_Handler(t *testing.T) {
	c := NewPrometheusCollector()
	c.RecordAttempt(context.Background(), "execute", "mock")

	srv := httptest.NewServer(c.Handler())
	defer srv.Close()

	resp, err := srv.Client().Get(srv.URL)
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	body, _ := io.ReadAll(resp.Body)
	if !strings.Contains(string(body), `formwork_provider_attempts_total{operation="execute",provider="mock"} 1`) {
		t.Errorf("metrics output missing attempts counter:\n%s", body)
	}
}

func TestNoopCollector(t *testing.T) {
	var c Collector = NewNoopCollector()
	ctx := context.Background()
	c.RecordRequest(ctx, "execute", "success", time.Second)
	c.RecordAttempt(ctx, "execute", "x")
	c.RecordError(ctx, "execute", "timeout")
	c.RecordCacheLookup(ctx, true)
	c.AddTokens(ctx, "x", 1)
}
