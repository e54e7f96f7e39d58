// Package gateway is the single entry point combining cache, budget,
// breaker, upstream call, and fallback into one request lifecycle. Once a
// tool is resolved, Invoke always produces an Outcome: failures above the
// fallback line are absorbed, recorded, and reflected only in the outcome's
// Source and Reason.
package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	zlog "github.com/rs/zerolog/log"
	"golang.org/x/sync/singleflight"

	"github.com/breakwater-ai/breakwater/pkg/audit"
	"github.com/breakwater-ai/breakwater/pkg/breaker"
	"github.com/breakwater-ai/breakwater/pkg/cache"
	"github.com/breakwater-ai/breakwater/pkg/config"
	"github.com/breakwater-ai/breakwater/pkg/experiment"
	"github.com/breakwater-ai/breakwater/pkg/keys"
	"github.com/breakwater-ai/breakwater/pkg/ledger"
	"github.com/breakwater-ai/breakwater/pkg/meter"
	"github.com/breakwater-ai/breakwater/pkg/metrics"
	"github.com/breakwater-ai/breakwater/pkg/models"
	"github.com/breakwater-ai/breakwater/pkg/upstream"
)

// ErrUnknownTool is returned by Lookup for tools that were never registered.
var ErrUnknownTool = errors.New("unknown tool")

var errMalformed = errors.New("malformed upstream response")

// Deps holds the gateway's collaborators. Cache, Experiments, Ledger, Audit,
// and Metrics may be nil; the corresponding step is skipped. Meter and
// Breaker may be nil too, which disables that admission check.
type Deps struct {
	Cache       cache.Store
	Meter       *meter.Meter
	Breaker     *breaker.Breaker
	Upstream    upstream.Client
	Experiments *experiment.Router
	Ledger      ledger.Ledger
	Audit       *audit.Logger
	Metrics     *metrics.Collector
}

// Gateway owns the registered tools and drives the invoke pipeline.
type Gateway struct {
	deps   Deps
	tools  map[string]*Tool
	order  []string
	flight *singleflight.Group
	log    zerolog.Logger
}

// New registers every configured tool and validates it: names were checked
// by config validation, templates are parsed here. A broken tool definition
// fails construction, not the first request.
func New(cfg *config.Config, deps Deps) (*Gateway, error) {
	g := &Gateway{
		deps:  deps,
		tools: make(map[string]*Tool, len(cfg.Tools)),
		log:   zlog.With().Str("component", "gateway").Logger(),
	}
	if cfg.Cache.SingleFlight {
		g.flight = new(singleflight.Group)
	}

	for _, tc := range cfg.Tools {
		t, err := newTool(tc)
		if err != nil {
			return nil, fmt.Errorf("register tool: %w", err)
		}
		if _, dup := g.tools[t.name]; dup {
			return nil, fmt.Errorf("register tool: %q defined twice", t.name)
		}
		g.tools[t.name] = t
		g.order = append(g.order, t.name)
	}
	return g, nil
}

// Lookup resolves a tool by name. Unknown tools fail here, before the
// invoke pipeline.
func (g *Gateway) Lookup(name string) (*Tool, error) {
	t, ok := g.tools[name]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownTool, name)
	}
	return t, nil
}

// Tools returns the registered tools in registration order.
func (g *Gateway) Tools() []*Tool {
	out := make([]*Tool, 0, len(g.order))
	for _, name := range g.order {
		out = append(out, g.tools[name])
	}
	return out
}

// BudgetStatus reports the meter's current window.
func (g *Gateway) BudgetStatus() models.BudgetStatus {
	if g.deps.Meter == nil {
		return models.BudgetStatus{}
	}
	return g.deps.Meter.Status()
}

// BreakerStatus reports the breaker's current state.
func (g *Gateway) BreakerStatus() models.BreakerStatus {
	if g.deps.Breaker == nil {
		return models.BreakerStatus{State: models.BreakerClosed}
	}
	return g.deps.Breaker.Status()
}

// CacheStats reports cache statistics, or a disabled marker without a store.
func (g *Gateway) CacheStats(ctx context.Context) (models.CacheStats, error) {
	if g.deps.Cache == nil {
		return models.CacheStats{Backend: "disabled"}, nil
	}
	return g.deps.Cache.Stats(ctx)
}

// CachePing reports cache reachability. A gateway without a cache is healthy.
func (g *Gateway) CachePing(ctx context.Context) error {
	if g.deps.Cache == nil {
		return nil
	}
	return g.deps.Cache.Ping(ctx)
}

// CacheClear drops cache entries, or only expired ones.
func (g *Gateway) CacheClear(ctx context.Context, expiredOnly bool) (int64, error) {
	if g.deps.Cache == nil {
		return 0, nil
	}
	return g.deps.Cache.Clear(ctx, expiredOnly)
}

// Experiments returns the configured experiment definitions.
func (g *Gateway) Experiments() []experiment.Experiment {
	if g.deps.Experiments == nil {
		return nil
	}
	return g.deps.Experiments.List()
}

// Assign buckets a subject without running an invocation.
func (g *Gateway) Assign(experimentName, subject string) (models.Assignment, error) {
	if g.deps.Experiments == nil {
		return models.Assignment{}, experiment.ErrUnknownExperiment
	}
	return g.deps.Experiments.Assign(experimentName, subject)
}

// invocation carries one request through the pipeline.
type invocation struct {
	tool    *Tool
	args    map[string]any
	out     models.Outcome
	key     string
	prompt  string
	started time.Time
}

// Invoke runs the pipeline for a resolved tool. It never returns an error:
// every path terminates in a cache, upstream, or fallback outcome. subject
// identifies the caller for experiment bucketing and may be empty.
func (g *Gateway) Invoke(ctx context.Context, t *Tool, args map[string]any, subject string) models.Outcome {
	inv := &invocation{
		tool:    t,
		args:    args,
		started: time.Now(),
		out: models.Outcome{
			RequestID: uuid.NewString(),
			Tool:      t.name,
		},
	}

	// Experiment control groups take the rule-based path unconditionally:
	// serving them cached AI output would contaminate the comparison.
	if t.experiment != "" && subject != "" && g.deps.Experiments != nil {
		if a, err := g.deps.Experiments.Assign(t.experiment, subject); err == nil {
			inv.out.Variant = a.Variant
			if !a.Upstream {
				return g.fallback(ctx, inv, models.ReasonControlGroup)
			}
		}
	}

	key, err := keys.ForTool(t.name, args)
	if err != nil {
		g.log.Warn().Err(err).Str("tool", t.name).Msg("uncacheable arguments")
		return g.fallback(ctx, inv, models.ReasonBadArguments)
	}
	inv.key = key

	// Cache hit short-circuits breaker and budget: cached answers are free
	// and always allowed. Store errors are a logged miss, never fatal.
	if g.deps.Cache != nil {
		val, found, err := g.deps.Cache.Get(ctx, key)
		switch {
		case err != nil:
			g.log.Warn().Err(err).Str("key", key).Msg("cache get failed, treating as miss")
			if g.deps.Metrics != nil {
				g.deps.Metrics.CacheErrors.Inc()
			}
		case found:
			if g.deps.Metrics != nil {
				g.deps.Metrics.CacheHits.Inc()
			}
			inv.out.Source = models.SourceCache
			inv.out.Payload = val
			return g.finish(ctx, inv)
		default:
			if g.deps.Metrics != nil {
				g.deps.Metrics.CacheMisses.Inc()
			}
		}
	}

	if g.deps.Breaker != nil && !g.deps.Breaker.Allow() {
		return g.fallback(ctx, inv, models.ReasonBreakerOpen)
	}

	if g.deps.Meter != nil && !g.deps.Meter.CanAdmit(t.estimatedCost) {
		// The breaker may have granted the half-open trial slot; hand it
		// back since no call will be attempted.
		if g.deps.Breaker != nil {
			g.deps.Breaker.Release()
		}
		return g.fallback(ctx, inv, models.ReasonBudgetExceeded)
	}

	prompt, err := t.renderPrompt(args)
	if err != nil {
		if g.deps.Breaker != nil {
			g.deps.Breaker.Release()
		}
		g.log.Warn().Err(err).Str("tool", t.name).Msg("prompt render failed")
		return g.fallback(ctx, inv, models.ReasonBadArguments)
	}
	inv.prompt = prompt

	payload, cost, err := g.callUpstream(ctx, inv)
	if err != nil {
		reason := models.ReasonUpstreamError
		if errors.Is(err, errMalformed) {
			reason = models.ReasonMalformed
		}
		g.log.Warn().Err(err).Str("tool", t.name).Str("request_id", inv.out.RequestID).Msg("upstream failed")
		return g.fallback(ctx, inv, reason)
	}

	inv.out.Source = models.SourceUpstream
	inv.out.Payload = payload
	inv.out.CostUSD = cost
	return g.finish(ctx, inv)
}

// flightResult is the shared product of one upstream call. The actual cost
// is claimed by exactly one of the callers sharing it.
type flightResult struct {
	payload json.RawMessage
	result  *upstream.Result
	claimed atomic.Bool
}

// callUpstream performs the guarded upstream call: generation, payload
// shaping, breaker and meter accounting, ledger append, and cache fill.
// With single-flight enabled, concurrent same-key misses share one call and
// only one outcome carries its cost.
func (g *Gateway) callUpstream(ctx context.Context, inv *invocation) (json.RawMessage, float64, error) {
	do := func(callCtx context.Context) (*flightResult, error) {
		if g.deps.Upstream == nil {
			return nil, errors.New("no upstream configured")
		}

		callStart := time.Now()
		res, err := g.deps.Upstream.Generate(callCtx, upstream.Request{
			Prompt:    inv.prompt,
			MaxTokens: inv.tool.maxTokens,
		})
		if g.deps.Metrics != nil {
			g.deps.Metrics.UpstreamLatency.
				WithLabelValues(g.deps.Upstream.Provider(), g.deps.Upstream.Model()).
				Observe(time.Since(callStart).Seconds())
		}
		if err != nil {
			if g.deps.Breaker != nil {
				g.deps.Breaker.RecordFailure()
			}
			return nil, err
		}

		payload, err := shapePayload(inv.tool.response, res.Text)
		if err != nil {
			if g.deps.Breaker != nil {
				g.deps.Breaker.RecordFailure()
			}
			return nil, fmt.Errorf("%w: %v", errMalformed, err)
		}

		if g.deps.Breaker != nil {
			g.deps.Breaker.RecordSuccess()
		}
		if g.deps.Meter != nil {
			g.deps.Meter.Record(res.CostUSD)
		}
		if g.deps.Metrics != nil {
			g.deps.Metrics.SpendUSD.Add(res.CostUSD)
			if g.deps.Meter != nil {
				g.deps.Metrics.BudgetRemaining.Set(g.deps.Meter.Status().RemainingUSD)
			}
		}
		if g.deps.Ledger != nil {
			rec := models.SpendRecord{
				Tool:             inv.tool.name,
				Provider:         g.deps.Upstream.Provider(),
				Model:            res.Model,
				PromptTokens:     res.Usage.PromptTokens,
				CompletionTokens: res.Usage.CompletionTokens,
				CostUSD:          res.CostUSD,
			}
			if err := g.deps.Ledger.Record(callCtx, rec); err != nil {
				g.log.Warn().Err(err).Msg("ledger append failed")
			}
		}
		if g.deps.Cache != nil {
			if err := g.deps.Cache.Put(callCtx, inv.key, payload, inv.tool.ttl); err != nil {
				g.log.Warn().Err(err).Str("key", inv.key).Msg("cache put failed")
				if g.deps.Metrics != nil {
					g.deps.Metrics.CacheErrors.Inc()
				}
			}
		}

		return &flightResult{payload: payload, result: res}, nil
	}

	if g.flight == nil {
		fr, err := do(ctx)
		if err != nil {
			return nil, 0, err
		}
		return fr.payload, fr.result.CostUSD, nil
	}

	// One caller's cancellation must not poison the shared call, and the
	// upstream client bounds the call with its own timeout.
	v, err, _ := g.flight.Do(inv.key, func() (any, error) {
		return do(context.WithoutCancel(ctx))
	})
	if err != nil {
		return nil, 0, err
	}
	fr := v.(*flightResult)
	cost := 0.0
	if fr.claimed.CompareAndSwap(false, true) {
		cost = fr.result.CostUSD
	}
	return fr.payload, cost, nil
}

// fallback terminates the invocation on the guaranteed-success path.
func (g *Gateway) fallback(ctx context.Context, inv *invocation, reason models.Reason) models.Outcome {
	inv.out.Source = models.SourceFallback
	inv.out.Reason = reason
	inv.out.Payload = inv.tool.renderFallback(inv.args)
	inv.out.CostUSD = 0
	if g.deps.Metrics != nil {
		g.deps.Metrics.FallbacksTotal.WithLabelValues(inv.tool.name, string(reason)).Inc()
	}
	return g.finish(ctx, inv)
}

func (g *Gateway) finish(ctx context.Context, inv *invocation) models.Outcome {
	inv.out.Latency = time.Since(inv.started)
	if g.deps.Metrics != nil {
		g.deps.Metrics.RequestsTotal.WithLabelValues(inv.tool.name, string(inv.out.Source)).Inc()
	}
	if err := g.deps.Audit.Log(ctx, models.AuditEntry{
		RequestID: inv.out.RequestID,
		Tool:      inv.out.Tool,
		CacheKey:  inv.key,
		Source:    inv.out.Source,
		Variant:   inv.out.Variant,
		Reason:    inv.out.Reason,
		Prompt:    inv.prompt,
		Payload:   string(inv.out.Payload),
		CostUSD:   inv.out.CostUSD,
		LatencyMs: inv.out.Latency.Milliseconds(),
	}); err != nil {
		g.log.Warn().Err(err).Msg("audit write failed")
	}
	g.log.Debug().
		Str("request_id", inv.out.RequestID).
		Str("tool", inv.out.Tool).
		Str("source", string(inv.out.Source)).
		Str("reason", string(inv.out.Reason)).
		Float64("cost_usd", inv.out.CostUSD).
		Dur("latency", inv.out.Latency).
		Msg("invocation complete")
	return inv.out
}
