package mcp

import (
	"fmt"
	"strings"

	"github.com/pario-ai/formwork/pkg/models"
)

// formatSummary formats usage summaries as a text table.
func formatSummary(rows []models.UsageSummary) string {
	if len(rows) == 0 {
		return "No usage data found."
	}
	var b strings.Builder
	fmt.Fprintf(&b, "%-20s %-10s %8s %8s %9s %10s\n",
		"Provider", "Operation", "Requests", "Cached", "Fallbacks", "Tokens")
	b.WriteString(strings.Repeat("-", 70) + "\n")
	for _, r := range rows {
		name := r.Provider
		if len(name) > 20 {
			name = name[:17] + "..."
		}
		fmt.Fprintf(&b, "%-20s %-10s %8d %8d %9d %10d\n",
			name, r.Operation, r.RequestCount, r.CacheHits, r.Fallbacks, r.TotalTokens)
	}
	return b.String()
}

// formatCacheStats formats cache stats as text.
func formatCacheStats(stats models.CacheStats) string {
	total := stats.Hits + stats.Misses
	hitRate := float64(0)
	if total > 0 {
		hitRate = float64(stats.Hits) / float64(total) * 100
	}
	return fmt.Sprintf("Cache Statistics\n"+
		"  Entries:  %d\n"+
		"  Hits:     %d\n"+
		"  Misses:   %d\n"+
		"  Hit Rate: %.1f%%\n",
		stats.Entries, stats.Hits, stats.Misses, hitRate)
}
