package tracker

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/pario-ai/formwork/pkg/models"
)

func newTestTracker(t *testing.T) *SQLiteTracker {
	t.Helper()
	dbPath := filepath.Join(t.TempDir(), "test.db")
	tr, err := New(dbPath)
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { _ = tr.Close() })
	return tr
}

func TestRecordAndRecent(t *testing.T) {
	tr := newTestTracker(t)
	ctx := context.Background()
	now := time.Now().UTC()

	rec := models.UsageRecord{
		RequestID: "req-1",
		Provider:  "openai",
		Operation: "execute",
		Tokens:    150,
		Estimated: true,
		Status:    "success",
		CreatedAt: now,
	}
	if err := tr.Record(ctx, rec); err != nil {
		t.Fatal(err)
	}

	records, err := tr.Recent(ctx, 10)
	if err != nil {
		t.Fatal(err)
	}
	if len(records) != 1 {
		t.Fatalf("expected 1 record, got %d", len(records))
	}
	got := records[0]
	if got.RequestID != "req-1" || got.Tokens != 150 || !got.Estimated || got.FromCache {
		t.Errorf("unexpected record: %+v", got)
	}
}

func TestRecordStampsCreatedAt(t *testing.T) {
	tr := newTestTracker(t)
	ctx := context.Background()

	if err := tr.Record(ctx, models.UsageRecord{RequestID: "r", Provider: "p", Operation: "execute", Status: "success"}); err != nil {
		t.Fatal(err)
	}
	records, err := tr.Recent(ctx, 0)
	if err != nil {
		t.Fatal(err)
	}
	if len(records) != 1 || records[0].CreatedAt.IsZero() {
		t.Errorf("expected stamped record, got %+v", records)
	}
}

func TestTotalSince(t *testing.T) {
	tr := newTestTracker(t)
	ctx := context.Background()
	now := time.Now().UTC()

	for i := range 3 {
		_ = tr.Record(ctx, models.UsageRecord{
			RequestID: "r", Provider: "openai", Operation: "execute",
			Tokens: 100, Status: "success",
			CreatedAt: now.Add(-time.Duration(i) * time.Minute),
		})
	}
	_ = tr.Record(ctx, models.UsageRecord{
		RequestID: "old", Provider: "openai", Operation: "execute",
		Tokens: 1000, Status: "success", CreatedAt: now.Add(-48 * time.Hour),
	})
	_ = tr.Record(ctx, models.UsageRecord{
		RequestID: "other", Provider: "anthropic", Operation: "stream",
		Tokens: 40, Status: "success", CreatedAt: now,
	})

	total, err := tr.TotalSince(ctx, "openai", now.Add(-time.Hour))
	if err != nil {
		t.Fatal(err)
	}
	if total != 300 {
		t.Errorf("expected 300 tokens, got %d", total)
	}

	all, err := tr.TotalSince(ctx, "", now.Add(-time.Hour))
	if err != nil {
		t.Fatal(err)
	}
	if all != 340 {
		t.Errorf("expected 340 tokens across providers, got %d", all)
	}
}

func TestSummary(t *testing.T) {
	tr := newTestTracker(t)
	ctx := context.Background()
	now := time.Now().UTC()

	records := []models.UsageRecord{
		{RequestID: "1", Provider: "openai", Operation: "execute", Tokens: 100, Status: "success"},
		{RequestID: "2", Provider: "openai", Operation: "execute", Tokens: 0, FromCache: true, Status: "success"},
		{RequestID: "3", Provider: "openai", Operation: "execute", Tokens: 20, UsedFallback: true, Status: "fallback"},
		{RequestID: "4", Provider: "anthropic", Operation: "stream", Tokens: 50, Status: "success"},
	}
	for _, r := range records {
		r.CreatedAt = now
		if err := tr.Record(ctx, r); err != nil {
			t.Fatal(err)
		}
	}

	summaries, err := tr.Summary(ctx, "")
	if err != nil {
		t.Fatal(err)
	}
	if len(summaries) != 2 {
		t.Fatalf("expected 2 summaries, got %d", len(summaries))
	}
	// Ordered by provider: anthropic first.
	if summaries[0].Provider != "anthropic" || summaries[0].TotalTokens != 50 {
		t.Errorf("unexpected first summary: %+v", summaries[0])
	}
	s := summaries[1]
	if s.RequestCount != 3 || s.CacheHits != 1 || s.Fallbacks != 1 || s.TotalTokens != 120 {
		t.Errorf("unexpected openai summary: %+v", s)
	}

	filtered, err := tr.Summary(ctx, "anthropic")
	if err != nil {
		t.Fatal(err)
	}
	if len(filtered) != 1 || filtered[0].Operation != "stream" {
		t.Errorf("unexpected filtered summary: %+v", filtered)
	}
}

func TestMigrationIdempotent(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "test.db")

	tr1, err := New(dbPath)
	if err != nil {
		t.Fatal(err)
	}
	_ = tr1.Record(context.Background(), models.UsageRecord{RequestID: "r", Provider: "p", Operation: "execute", Tokens: 1, Status: "success"})
	tr1.Close()

	tr2, err := New(dbPath)
	if err != nil {
		t.Fatalf("second New should succeed: %v", err)
	}
	defer tr2.Close()

	records, err := tr2.Recent(context.Background(), 5)
	if err != nil {
		t.Fatal(err)
	}
	if len(records) != 1 {
		t.Errorf("expected record to survive reopen, got %d", len(records))
	}
}
