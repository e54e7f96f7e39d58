package mcp

import (
	"context"
	"encoding/json"
	"time"

	"github.com/breakwater-ai/breakwater/pkg/models"
)

// toolHandler handles one tools/call invocation.
type toolHandler func(ctx context.Context, s *Server, args json.RawMessage) ToolCallResult

var toolHandlers = map[string]toolHandler{
	"breakwater_spend":        handleSpend,
	"breakwater_budget":       handleBudget,
	"breakwater_breaker":      handleBreaker,
	"breakwater_cache":        handleCache,
	"breakwater_assign":       handleAssign,
	"breakwater_audit_search": handleAuditSearch,
}

// allTools is the list of tool definitions exposed via tools/list.
var allTools = []ToolDefinition{
	{
		Name:        "breakwater_spend",
		Description: "Show upstream spend grouped by tool and model: request counts, token totals, and cost in USD.",
		InputSchema: map[string]any{
			"type": "object",
			"properties": map[string]any{
				"tool": map[string]any{
					"type":        "string",
					"description": "Filter by tool name (optional, omit for all tools)",
				},
			},
		},
	},
	{
		Name:        "breakwater_budget",
		Description: "Show the current budget window: limit, spend so far, and remaining headroom.",
		InputSchema: map[string]any{
			"type":       "object",
			"properties": map[string]any{},
		},
	},
	{
		Name:        "breakwater_breaker",
		Description: "Show the circuit breaker state guarding the upstream provider.",
		InputSchema: map[string]any{
			"type":       "object",
			"properties": map[string]any{},
		},
	},
	{
		Name:        "breakwater_cache",
		Description: "Show response cache statistics (entries, hits, misses, hit rate).",
		InputSchema: map[string]any{
			"type":       "object",
			"properties": map[string]any{},
		},
	},
	{
		Name:        "breakwater_assign",
		Description: "Show which experiment variant a subject is assigned to. Deterministic: the same subject always maps to the same variant.",
		InputSchema: map[string]any{
			"type":     "object",
			"required": []string{"experiment", "subject"},
			"properties": map[string]any{
				"experiment": map[string]any{
					"type":        "string",
					"description": "The experiment name",
				},
				"subject": map[string]any{
					"type":        "string",
					"description": "The subject identity to bucket",
				},
			},
		},
	},
	{
		Name:        "breakwater_audit_search",
		Description: "Search the invocation audit log with optional filters.",
		InputSchema: map[string]any{
			"type": "object",
			"properties": map[string]any{
				"tool": map[string]any{
					"type":        "string",
					"description": "Filter by tool name (optional)",
				},
				"source": map[string]any{
					"type":        "string",
					"description": "Filter by source: cache, upstream, or fallback (optional)",
				},
				"reason": map[string]any{
					"type":        "string",
					"description": "Filter by fallback reason (optional)",
				},
				"since": map[string]any{
					"type":        "string",
					"description": "Start date in YYYY-MM-DD format (optional)",
				},
				"request_id": map[string]any{
					"type":        "string",
					"description": "Look up a single request by id (optional)",
				},
			},
		},
	},
}

func textResult(text string) ToolCallResult {
	return ToolCallResult{
		Content: []ContentBlock{{Type: "text", Text: text}},
	}
}

func errorResult(text string) ToolCallResult {
	return ToolCallResult{
		Content: []ContentBlock{{Type: "text", Text: text}},
		IsError: true,
	}
}

type spendArgs struct {
	Tool string `json:"tool"`
}

func handleSpend(ctx context.Context, s *Server, rawArgs json.RawMessage) ToolCallResult {
	if s.ledger == nil {
		return textResult("Spend ledger is not configured.")
	}
	var args spendArgs
	if len(rawArgs) > 0 {
		_ = json.Unmarshal(rawArgs, &args)
	}
	rows, err := s.ledger.Summary(ctx, args.Tool)
	if err != nil {
		return errorResult("Error fetching spend summary: " + err.Error())
	}
	return textResult(formatSpend(rows))
}

func handleBudget(_ context.Context, s *Server, _ json.RawMessage) ToolCallResult {
	return textResult(formatBudget(s.gw.BudgetStatus()))
}

func handleBreaker(_ context.Context, s *Server, _ json.RawMessage) ToolCallResult {
	return textResult(formatBreaker(s.gw.BreakerStatus()))
}

func handleCache(ctx context.Context, s *Server, _ json.RawMessage) ToolCallResult {
	stats, err := s.gw.CacheStats(ctx)
	if err != nil {
		return errorResult("Error fetching cache stats: " + err.Error())
	}
	return textResult(formatCacheStats(stats))
}

type assignArgs struct {
	Experiment string `json:"experiment"`
	Subject    string `json:"subject"`
}

func handleAssign(_ context.Context, s *Server, rawArgs json.RawMessage) ToolCallResult {
	var args assignArgs
	if len(rawArgs) > 0 {
		_ = json.Unmarshal(rawArgs, &args)
	}
	if args.Experiment == "" || args.Subject == "" {
		return errorResult("experiment and subject are required")
	}
	a, err := s.gw.Assign(args.Experiment, args.Subject)
	if err != nil {
		return errorResult("Error assigning subject: " + err.Error())
	}
	return textResult(formatAssignment(a))
}

type auditSearchArgs struct {
	Tool      string `json:"tool"`
	Source    string `json:"source"`
	Reason    string `json:"reason"`
	Since     string `json:"since"`
	RequestID string `json:"request_id"`
}

func handleAuditSearch(ctx context.Context, s *Server, rawArgs json.RawMessage) ToolCallResult {
	if s.auditor == nil {
		return textResult("Audit logging is not configured.")
	}
	var args auditSearchArgs
	if len(rawArgs) > 0 {
		_ = json.Unmarshal(rawArgs, &args)
	}

	opts := models.AuditQueryOpts{
		Tool:      args.Tool,
		Source:    args.Source,
		Reason:    args.Reason,
		RequestID: args.RequestID,
		Limit:     50,
	}
	if args.Since != "" {
		t, err := time.Parse("2006-01-02", args.Since)
		if err != nil {
			return errorResult("Invalid since date (use YYYY-MM-DD): " + err.Error())
		}
		opts.Since = t
	}

	entries, err := s.auditor.Query(ctx, opts)
	if err != nil {
		return errorResult("Error searching audit log: " + err.Error())
	}
	return textResult(formatAuditEntries(entries))
}
