package models

import "time"

// Usage represents token usage from an LLM response.
type Usage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
	TotalTokens      int `json:"total_tokens"`
}

// UsageRecord tracks per-request token usage in the ledger.
type UsageRecord struct {
	ID           int64     `json:"id"`
	RequestID    string    `json:"request_id"`
	Provider     string    `json:"provider"`
	Operation    string    `json:"operation"` // "execute" or "stream"
	Tokens       int       `json:"tokens"`
	Estimated    bool      `json:"estimated"`
	FromCache    bool      `json:"from_cache"`
	UsedFallback bool      `json:"used_fallback"`
	Status       string    `json:"status"`
	CreatedAt    time.Time `json:"created_at"`
}

// UsageSummary aggregates usage across requests.
type UsageSummary struct {
	Provider     string `json:"provider"`
	Operation    string `json:"operation"`
	RequestCount int    `json:"request_count"`
	CacheHits    int    `json:"cache_hits"`
	Fallbacks    int    `json:"fallbacks"`
	TotalTokens  int    `json:"total_tokens"`
}
