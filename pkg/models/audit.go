package models

import "time"

// AuditEntry represents a single audited gateway invocation.
type AuditEntry struct {
	RequestID string    `json:"request_id"`
	Tool      string    `json:"tool"`
	CacheKey  string    `json:"cache_key"`
	Source    Source    `json:"source"`
	Variant   string    `json:"variant,omitempty"`
	Reason    Reason    `json:"reason,omitempty"`
	Prompt    string    `json:"prompt,omitempty"`
	Payload   string    `json:"payload,omitempty"`
	CostUSD   float64   `json:"cost_usd"`
	LatencyMs int64     `json:"latency_ms"`
	CreatedAt time.Time `json:"created_at"`
}

// AuditQueryOpts specifies filters for querying audit entries.
type AuditQueryOpts struct {
	Tool      string
	Source    string
	Reason    string
	RequestID string
	Since     time.Time
	Limit     int
}

// AuditStat holds aggregate counts for a tool/source/day combination.
type AuditStat struct {
	Tool   string
	Source string
	Day    string
	Count  int
}
