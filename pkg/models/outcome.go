package models

import (
	"encoding/json"
	"time"
)

// Source identifies which path produced an outcome.
type Source string

const (
	SourceCache    Source = "cache"
	SourceUpstream Source = "upstream"
	SourceFallback Source = "fallback"
)

// Reason explains why an invocation was served by the fallback path.
type Reason string

const (
	ReasonBreakerOpen    Reason = "breaker_open"
	ReasonBudgetExceeded Reason = "budget_exceeded"
	ReasonUpstreamError  Reason = "upstream_error"
	ReasonMalformed      Reason = "malformed_response"
	ReasonControlGroup   Reason = "experiment_control"
	ReasonBadArguments   Reason = "invalid_arguments"
)

// Outcome is the terminal result of a gateway invocation. Every invocation
// produces exactly one, whether the answer came from the cache, the upstream
// model, or the deterministic fallback.
type Outcome struct {
	RequestID string          `json:"request_id"`
	Tool      string          `json:"tool"`
	Source    Source          `json:"source"`
	Variant   string          `json:"variant,omitempty"`
	Reason    Reason          `json:"reason,omitempty"`
	Payload   json.RawMessage `json:"payload"`
	CostUSD   float64         `json:"cost_usd"`
	Latency   time.Duration   `json:"latency"`
}
