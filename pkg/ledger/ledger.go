// Package ledger persists one row per billed upstream call. The meter seeds
// its window from here at startup, and the stats surfaces read from here.
package ledger

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "modernc.org/sqlite"

	"github.com/breakwater-ai/breakwater/pkg/models"
)

// Ledger records and queries upstream spend.
type Ledger interface {
	// Record appends one spend row.
	Record(ctx context.Context, rec models.SpendRecord) error
	// SpentSince returns the USD spent on upstream calls at or after since.
	SpentSince(ctx context.Context, since time.Time) (float64, error)
	// Summary aggregates spend per tool and model, optionally filtered by tool.
	Summary(ctx context.Context, tool string) ([]models.SpendSummary, error)
	// Recent returns the newest rows, most recent first.
	Recent(ctx context.Context, limit int) ([]models.SpendRecord, error)
	// Close releases resources.
	Close() error
}

// SQLite implements Ledger with a SQLite database.
type SQLite struct {
	db *sql.DB
}

const createTable = `
CREATE TABLE IF NOT EXISTS spend_records (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	tool TEXT NOT NULL,
	provider TEXT NOT NULL,
	model TEXT NOT NULL,
	prompt_tokens INTEGER NOT NULL,
	completion_tokens INTEGER NOT NULL,
	cost_usd REAL NOT NULL,
	created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
);
CREATE INDEX IF NOT EXISTS idx_spend_time ON spend_records(created_at);
CREATE INDEX IF NOT EXISTS idx_spend_tool_time ON spend_records(tool, created_at);
`

// New creates a SQLite ledger and runs auto-migration.
func New(dbPath string) (*SQLite, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open ledger db: %w", err)
	}

	if _, err := db.Exec(createTable); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate ledger db: %w", err)
	}

	return &SQLite{db: db}, nil
}

func (l *SQLite) Record(ctx context.Context, rec models.SpendRecord) error {
	created := rec.CreatedAt
	if created.IsZero() {
		created = time.Now().UTC()
	}
	_, err := l.db.ExecContext(ctx,
		`INSERT INTO spend_records (tool, provider, model, prompt_tokens, completion_tokens, cost_usd, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		rec.Tool, rec.Provider, rec.Model, rec.PromptTokens, rec.CompletionTokens, rec.CostUSD, created,
	)
	if err != nil {
		return fmt.Errorf("record spend: %w", err)
	}
	return nil
}

func (l *SQLite) SpentSince(ctx context.Context, since time.Time) (float64, error) {
	var spent float64
	err := l.db.QueryRowContext(ctx,
		`SELECT COALESCE(SUM(cost_usd), 0) FROM spend_records WHERE created_at >= ?`,
		since.UTC(),
	).Scan(&spent)
	if err != nil {
		return 0, fmt.Errorf("sum spend: %w", err)
	}
	return spent, nil
}

func (l *SQLite) Summary(ctx context.Context, tool string) ([]models.SpendSummary, error) {
	query := `SELECT tool, model, COUNT(*), SUM(prompt_tokens), SUM(completion_tokens), SUM(cost_usd)
		 FROM spend_records`
	var args []any
	if tool != "" {
		query += ` WHERE tool = ?`
		args = append(args, tool)
	}
	query += ` GROUP BY tool, model ORDER BY SUM(cost_usd) DESC`

	rows, err := l.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query summary: %w", err)
	}
	defer rows.Close()

	var out []models.SpendSummary
	for rows.Next() {
		var s models.SpendSummary
		if err := rows.Scan(&s.Tool, &s.Model, &s.RequestCount, &s.PromptTokens, &s.CompletionTokens, &s.CostUSD); err != nil {
			return nil, fmt.Errorf("scan summary: %w", err)
		}
		out = append(out, s)
	}
	return out, rows.Err()
}

func (l *SQLite) Recent(ctx context.Context, limit int) ([]models.SpendRecord, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := l.db.QueryContext(ctx,
		`SELECT id, tool, provider, model, prompt_tokens, completion_tokens, cost_usd, created_at
		 FROM spend_records ORDER BY created_at DESC, id DESC LIMIT ?`,
		limit,
	)
	if err != nil {
		return nil, fmt.Errorf("query recent: %w", err)
	}
	defer rows.Close()

	var out []models.SpendRecord
	for rows.Next() {
		var r models.SpendRecord
		if err := rows.Scan(&r.ID, &r.Tool, &r.Provider, &r.Model, &r.PromptTokens, &r.CompletionTokens, &r.CostUSD, &r.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan recent: %w", err)
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

func (l *SQLite) Close() error {
	return l.db.Close()
}
