package models

// Result is the outcome of one structured-output request.
type Result struct {
	// Data is the validated value (string, float64, bool, []any, map[string]any or nil).
	Data any `json:"data"`
	// Tokens is the token count spent on the request; 0 on a cache hit.
	Tokens         int    `json:"tokens"`
	FromCache      bool   `json:"from_cache"`
	UsedFallback   bool   `json:"used_fallback,omitempty"`
	FallbackReason string `json:"fallback_reason,omitempty"`
	RequestID      string `json:"request_id,omitempty"`
}
