package mcp

import (
	"fmt"
	"strings"

	"github.com/breakwater-ai/breakwater/pkg/models"
)

// formatSpend formats spend summaries as a text table.
func formatSpend(rows []models.SpendSummary) string {
	if len(rows) == 0 {
		return "No spend recorded."
	}
	var b strings.Builder
	fmt.Fprintf(&b, "%-20s %-25s %8s %10s %10s %12s\n",
		"Tool", "Model", "Requests", "Prompt", "Completion", "Cost USD")
	b.WriteString(strings.Repeat("-", 90) + "\n")
	var total float64
	for _, r := range rows {
		fmt.Fprintf(&b, "%-20s %-25s %8d %10d %10d %12.4f\n",
			r.Tool, r.Model, r.RequestCount, r.PromptTokens, r.CompletionTokens, r.CostUSD)
		total += r.CostUSD
	}
	b.WriteString(strings.Repeat("-", 90) + "\n")
	fmt.Fprintf(&b, "%-20s %-25s %8s %10s %10s %12.4f\n", "Total", "", "", "", "", total)
	return b.String()
}

// formatBudget formats the budget window as text.
func formatBudget(s models.BudgetStatus) string {
	if s.LimitUSD <= 0 {
		return "No budget ceiling is configured; all spend is admitted."
	}
	pct := s.SpentUSD / s.LimitUSD * 100
	return fmt.Sprintf("Budget (%s window since %s)\n"+
		"  Limit:     $%.4f\n"+
		"  Spent:     $%.4f (%.1f%%)\n"+
		"  Remaining: $%.4f\n",
		s.Window, s.WindowStart.Format("2006-01-02 15:04:05 MST"),
		s.LimitUSD, s.SpentUSD, pct, s.RemainingUSD)
}

// formatBreaker formats the breaker snapshot as text.
func formatBreaker(s models.BreakerStatus) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Circuit breaker: %s\n", s.State)
	fmt.Fprintf(&b, "  Consecutive failures: %d\n", s.ConsecutiveFailures)
	if s.State == models.BreakerOpen {
		fmt.Fprintf(&b, "  Opened at: %s\n", s.OpenedAt.Format("2006-01-02 15:04:05 MST"))
		fmt.Fprintf(&b, "  Next trial at: %s\n", s.RetryAt.Format("2006-01-02 15:04:05 MST"))
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
	return fmt.Sprintf("Cache statistics (%s)\n"+
		"  Entries:  %d\n"+
		"  Hits:     %d\n"+
		"  Misses:   %d\n"+
		"  Errors:   %d\n"+
		"  Hit rate: %.1f%%\n",
		stats.Backend, stats.Entries, stats.Hits, stats.Misses, stats.Errors, hitRate)
}

// formatAssignment formats one experiment assignment as text.
func formatAssignment(a models.Assignment) string {
	path := "rule-based fallback"
	if a.Upstream {
		path = "upstream AI"
	}
	return fmt.Sprintf("Experiment %q assigns subject %q to variant %q (%s path).\n",
		a.Experiment, a.Subject, a.Variant, path)
}

// formatAuditEntries formats audit rows as a text table.
func formatAuditEntries(entries []models.AuditEntry) string {
	if len(entries) == 0 {
		return "No audit entries found."
	}
	var b strings.Builder
	fmt.Fprintf(&b, "%-36s %-16s %-9s %-18s %10s %8s  %s\n",
		"Request ID", "Tool", "Source", "Reason", "Cost USD", "Latency", "Time")
	b.WriteString(strings.Repeat("-", 120) + "\n")
	for _, e := range entries {
		fmt.Fprintf(&b, "%-36s %-16s %-9s %-18s %10.4f %6dms  %s\n",
			e.RequestID, e.Tool, e.Source, e.Reason, e.CostUSD, e.LatencyMs,
			e.CreatedAt.Format("2006-01-02 15:04:05"))
	}
	return b.String()
}
