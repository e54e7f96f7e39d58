package audit

import (
	"context"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/breakwater-ai/breakwater/pkg/config"
	"github.com/breakwater-ai/breakwater/pkg/models"
)

func tempCfg(t *testing.T) config.AuditConfig {
	t.Helper()
	return config.AuditConfig{
		Enabled:       true,
		DBPath:        filepath.Join(t.TempDir(), "audit_test.db"),
		RetentionDays: 30,
		MaxBodySize:   1024,
		Include:       []string{"prompts", "payloads"},
	}
}

func mustNew(t *testing.T, cfg config.AuditConfig) *Logger {
	t.Helper()
	l, err := New(cfg)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	t.Cleanup(func() { _ = l.Close() })
	return l
}

func sampleEntry() models.AuditEntry {
	return models.AuditEntry{
		RequestID: "req-001",
		Tool:      "topics",
		CacheKey:  "bw:v1:topics:0011223344556677",
		Source:    models.SourceUpstream,
		Variant:   "ai",
		Prompt:    "Suggest 5 topics about Go",
		Payload:   `{"topics":["generics","channels"]}`,
		CostUSD:   0.0021,
		LatencyMs: 412,
		CreatedAt: time.Now().UTC(),
	}
}

func TestLogAndQuery(t *testing.T) {
	l := mustNew(t, tempCfg(t))
	ctx := context.Background()

	if err := l.Log(ctx, sampleEntry()); err != nil {
		t.Fatalf("Log: %v", err)
	}

	entries, err := l.Query(ctx, models.AuditQueryOpts{Tool: "topics"})
	if err != nil {
		t.Fatalf("Query: %v", err)
	}
	if len(entries) != 1 {
		t.Fatalf("expected 1 entry, got %d", len(entries))
	}
	if entries[0].RequestID != "req-001" {
		t.Errorf("expected req-001, got %s", entries[0].RequestID)
	}
	if entries[0].Source != models.SourceUpstream {
		t.Errorf("expected upstream source, got %s", entries[0].Source)
	}
}

func TestQueryByRequestID(t *testing.T) {
	l := mustNew(t, tempCfg(t))
	ctx := context.Background()

	_ = l.Log(ctx, sampleEntry())

	entries, err := l.Query(ctx, models.AuditQueryOpts{RequestID: "req-001"})
	if err != nil {
		t.Fatalf("Query: %v", err)
	}
	if len(entries) != 1 {
		t.Fatalf("expected 1, got %d", len(entries))
	}
}

func TestQueryBySourceAndReason(t *testing.T) {
	l := mustNew(t, tempCfg(t))
	ctx := context.Background()

	_ = l.Log(ctx, sampleEntry())

	fb := sampleEntry()
	fb.RequestID = "req-002"
	fb.Source = models.SourceFallback
	fb.Reason = models.ReasonBreakerOpen
	_ = l.Log(ctx, fb)

	entries, err := l.Query(ctx, models.AuditQueryOpts{Source: string(models.SourceFallback)})
	if err != nil {
		t.Fatalf("Query: %v", err)
	}
	if len(entries) != 1 {
		t.Fatalf("expected 1 fallback entry, got %d", len(entries))
	}
	if entries[0].Reason != models.ReasonBreakerOpen {
		t.Errorf("expected breaker_open reason, got %s", entries[0].Reason)
	}

	entries, err = l.Query(ctx, models.AuditQueryOpts{Reason: string(models.ReasonBreakerOpen)})
	if err != nil {
		t.Fatalf("Query: %v", err)
	}
	if len(entries) != 1 || entries[0].RequestID != "req-002" {
		t.Errorf("unexpected reason query result: %+v", entries)
	}
}

func TestExcludeTools(t *testing.T) {
	cfg := tempCfg(t)
	cfg.ExcludeTools = []string{"topics"}
	l := mustNew(t, cfg)
	ctx := context.Background()

	if err := l.Log(ctx, sampleEntry()); err != nil {
		t.Fatalf("Log: %v", err)
	}

	entries, err := l.Query(ctx, models.AuditQueryOpts{})
	if err != nil {
		t.Fatalf("Query: %v", err)
	}
	if len(entries) != 0 {
		t.Fatalf("expected 0 entries for excluded tool, got %d", len(entries))
	}
}

func TestBodyTruncation(t *testing.T) {
	cfg := tempCfg(t)
	cfg.MaxBodySize = 16
	l := mustNew(t, cfg)
	ctx := context.Background()

	entry := sampleEntry()
	entry.Prompt = strings.Repeat("x", 100)
	if err := l.Log(ctx, entry); err != nil {
		t.Fatalf("Log: %v", err)
	}

	entries, err := l.Query(ctx, models.AuditQueryOpts{RequestID: "req-001"})
	if err != nil {
		t.Fatalf("Query: %v", err)
	}
	if len(entries[0].Prompt) != 16 {
		t.Errorf("expected truncated prompt len 16, got %d", len(entries[0].Prompt))
	}
}

func TestIncludeFiltering(t *testing.T) {
	cfg := tempCfg(t)
	cfg.Include = nil // neither prompts nor payloads
	l := mustNew(t, cfg)
	ctx := context.Background()

	if err := l.Log(ctx, sampleEntry()); err != nil {
		t.Fatalf("Log: %v", err)
	}

	entries, err := l.Query(ctx, models.AuditQueryOpts{RequestID: "req-001"})
	if err != nil {
		t.Fatalf("Query: %v", err)
	}
	if entries[0].Prompt != "" {
		t.Errorf("expected empty prompt, got %q", entries[0].Prompt)
	}
	if entries[0].Payload != "" {
		t.Errorf("expected empty payload, got %q", entries[0].Payload)
	}
	if entries[0].CostUSD == 0 {
		t.Error("expected cost preserved with bodies stripped")
	}
}

func TestNilLoggerDiscards(t *testing.T) {
	var l *Logger
	if err := l.Log(context.Background(), sampleEntry()); err != nil {
		t.Errorf("expected nil logger to discard, got %v", err)
	}
	if err := l.Close(); err != nil {
		t.Errorf("expected nil logger Close to be a no-op, got %v", err)
	}
}

func TestCleanup(t *testing.T) {
	cfg := tempCfg(t)
	cfg.RetentionDays = 0 // everything is old
	l := mustNew(t, cfg)
	ctx := context.Background()

	entry := sampleEntry()
	entry.CreatedAt = time.Now().AddDate(0, 0, -1)
	_ = l.Log(ctx, entry)

	deleted, err := l.Cleanup(ctx)
	if err != nil {
		t.Fatalf("Cleanup: %v", err)
	}
	if deleted != 1 {
		t.Errorf("expected 1 deleted, got %d", deleted)
	}
}

func TestStats(t *testing.T) {
	l := mustNew(t, tempCfg(t))
	ctx := context.Background()

	_ = l.Log(ctx, sampleEntry())
	e2 := sampleEntry()
	e2.RequestID = "req-002"
	_ = l.Log(ctx, e2)

	stats, err := l.Stats(ctx)
	if err != nil {
		t.Fatalf("Stats: %v", err)
	}
	if len(stats) == 0 {
		t.Fatal("expected stats")
	}
	if stats[0].Count != 2 {
		t.Errorf("expected count 2, got %d", stats[0].Count)
	}
	if stats[0].Tool != "topics" {
		t.Errorf("expected topics, got %s", stats[0].Tool)
	}
}
