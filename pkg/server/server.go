// Package server exposes the gateway over HTTP. Every registered tool is
// reachable at POST /api/{tool}; the invoke contract is fail-soft, so the
// endpoint answers 200 with a fallback payload even when the upstream is
// down, the budget is spent, or the circuit is open.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/rs/zerolog"
	zlog "github.com/rs/zerolog/log"

	"github.com/breakwater-ai/breakwater/pkg/config"
	"github.com/breakwater-ai/breakwater/pkg/gateway"
	"github.com/breakwater-ai/breakwater/pkg/metrics"
	"github.com/breakwater-ai/breakwater/pkg/models"
)

// Server is the breakwater HTTP front end.
type Server struct {
	cfg     *config.Config
	gw      *gateway.Gateway
	router  chi.Router
	log     zerolog.Logger
}

// New creates a Server wired with all routes and middleware. collector may
// be nil, which drops the /metrics endpoint.
func New(cfg *config.Config, gw *gateway.Gateway, collector *metrics.Collector) *Server {
	s := &Server{
		cfg: cfg,
		gw:  gw,
		log: zlog.With().Str("component", "server").Logger(),
	}

	origins := cfg.Server.AllowedOrigins
	if len(origins) == 0 {
		origins = []string{"*"}
	}

	r := chi.NewRouter()
	r.Use(chimw.RequestID)
	r.Use(chimw.RealIP)
	r.Use(chimw.Recoverer)
	r.Use(requestLogger)
	r.Use(traceRequests)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: origins,
		AllowedMethods: []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders: []string{"Accept", "Content-Type", cfg.Server.SubjectHeader},
		ExposedHeaders: []string{"X-Breakwater-Source"},
		MaxAge:         300,
	}))

	r.Post("/api/{tool}", s.handleInvoke)
	r.Get("/api/tools", s.handleTools)
	r.Get("/healthz", s.handleHealthz)
	r.Get("/status", s.handleStatus)
	if collector != nil {
		r.Method(http.MethodGet, "/metrics", collector.Handler())
	}

	s.router = r
	return s
}

// ServeHTTP implements http.Handler.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

// ListenAndServe starts the server and blocks until ctx is cancelled or the
// listener fails. Cancellation drains in-flight requests before returning.
func (s *Server) ListenAndServe(ctx context.Context) error {
	srv := &http.Server{
		Addr:    s.cfg.Listen,
		Handler: s,
	}

	errCh := make(chan error, 1)
	go func() {
		s.log.Info().Str("addr", s.cfg.Listen).Msg("listening")
		errCh <- srv.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		shutCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(shutCtx)
	case err := <-errCh:
		return err
	}
}

// invokeResponse is the wire shape of a completed invocation. Source uses
// the public vocabulary: upstream outcomes are reported as "ai".
type invokeResponse struct {
	RequestID string          `json:"request_id"`
	Source    string          `json:"source"`
	Variant   string          `json:"variant,omitempty"`
	Data      json.RawMessage `json:"data"`
	CostUSD   float64         `json:"cost_usd"`
	LatencyMs int64           `json:"latency_ms"`
}

func wireSource(s models.Source) string {
	if s == models.SourceUpstream {
		return "ai"
	}
	return string(s)
}

func (s *Server) handleInvoke(w http.ResponseWriter, r *http.Request) {
	t, err := s.gw.Lookup(chi.URLParam(r, "tool"))
	if err != nil {
		writeError(w, http.StatusNotFound, err.Error())
		return
	}

	body, err := io.ReadAll(r.Body)
	if err != nil {
		writeError(w, http.StatusBadRequest, "failed to read request body")
		return
	}
	args := map[string]any{}
	if len(body) > 0 {
		if err := json.Unmarshal(body, &args); err != nil {
			writeError(w, http.StatusBadRequest, "request body must be a JSON object")
			return
		}
	}

	subject := r.Header.Get(s.cfg.Server.SubjectHeader)
	out := s.gw.Invoke(r.Context(), t, args, subject)

	resp := invokeResponse{
		RequestID: out.RequestID,
		Source:    wireSource(out.Source),
		Variant:   out.Variant,
		Data:      out.Payload,
		CostUSD:   out.CostUSD,
		LatencyMs: out.Latency.Milliseconds(),
	}
	w.Header().Set("X-Breakwater-Source", resp.Source)
	writeJSON(w, http.StatusOK, resp)
}

type toolInfo struct {
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
	Experiment  string `json:"experiment,omitempty"`
}

func (s *Server) handleTools(w http.ResponseWriter, r *http.Request) {
	tools := s.gw.Tools()
	out := make([]toolInfo, 0, len(tools))
	for _, t := range tools {
		out = append(out, toolInfo{
			Name:        t.Name(),
			Description: t.Description(),
			Experiment:  t.Experiment(),
		})
	}
	writeJSON(w, http.StatusOK, map[string]any{"tools": out})
}

func (s *Server) handleHealthz(w http.ResponseWriter, r *http.Request) {
	cacheState := "ok"
	if err := s.gw.CachePing(r.Context()); err != nil {
		cacheState = "unreachable"
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"status":  "ok",
		"cache":   cacheState,
		"breaker": s.gw.BreakerStatus().State,
	})
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	stats, err := s.gw.CacheStats(r.Context())
	if err != nil {
		s.log.Warn().Err(err).Msg("cache stats unavailable")
	}
	type experimentInfo struct {
		Name     string           `json:"name"`
		Variants []models.Variant `json:"variants"`
	}
	exps := make([]experimentInfo, 0)
	for _, e := range s.gw.Experiments() {
		exps = append(exps, experimentInfo{Name: e.Name, Variants: e.Variants})
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"budget":      s.gw.BudgetStatus(),
		"breaker":     s.gw.BreakerStatus(),
		"cache":       stats,
		"experiments": exps,
	})
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if err := json.NewEncoder(w).Encode(v); err != nil && !errors.Is(err, http.ErrHandlerTimeout) {
		zlog.Debug().Err(err).Msg("response write failed")
	}
}

func writeError(w http.ResponseWriter, code int, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	fmt.Fprintf(w, `{"error":{"message":%q,"type":"breakwater_error","code":%d}}`, message, code)
}
