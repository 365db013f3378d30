package db

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"

	"earshot/answer"
	"earshot/llm"
)

// Ledger persists one row per completed model call.
type Ledger struct {
	conn *pgx.Conn
}

func NewLedger(conn *pgx.Conn) *Ledger {
	return &Ledger{conn: conn}
}

func (l *Ledger) InsertCost(ctx context.Context, rec answer.CostRecord) error {
	_, err := l.conn.Exec(ctx, `
		INSERT INTO cost_records (
			id, created_at, session_id, provider, model_id, model_slot,
			prompt_tokens, completion_tokens, reasoning_tokens,
			total_tokens, cost_usd
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
		ON CONFLICT (id) DO NOTHING`,
		rec.ID,
		rec.Timestamp,
		rec.SessionID,
		string(rec.Provider),
		rec.ModelID,
		string(rec.ModelSlot),
		rec.PromptTokens,
		rec.CompletionTokens,
		rec.ReasoningTokens,
		rec.TotalTokens,
		rec.CostUSD,
	)
	if err != nil {
		return fmt.Errorf("failed to insert cost record: %w", err)
	}
	return nil
}

// ListCosts returns records for one session, or all sessions when
// sessionID is empty, newest first.
func (l *Ledger) ListCosts(ctx context.Context, sessionID string, limit int) ([]answer.CostRecord, error) {
	if limit <= 0 {
		limit = 100
	}

	var rows pgx.Rows
	var err error
	if sessionID == "" {
		rows, err = l.conn.Query(ctx, `
			SELECT id, created_at, session_id, provider, model_id, model_slot,
			       prompt_tokens, completion_tokens, reasoning_tokens,
			       total_tokens, cost_usd
			FROM cost_records
			ORDER BY created_at DESC
			LIMIT $1`, limit)
	} else {
		rows, err = l.conn.Query(ctx, `
			SELECT id, created_at, session_id, provider, model_id, model_slot,
			       prompt_tokens, completion_tokens, reasoning_tokens,
			       total_tokens, cost_usd
			FROM cost_records
			WHERE session_id = $1
			ORDER BY created_at DESC
			LIMIT $2`, sessionID, limit)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query cost records: %w", err)
	}
	defer rows.Close()

	var records []answer.CostRecord
	for rows.Next() {
		var rec answer.CostRecord
		var provider, slot string
		err := rows.Scan(
			&rec.ID,
			&rec.Timestamp,
			&rec.SessionID,
			&provider,
			&rec.ModelID,
			&slot,
			&rec.PromptTokens,
			&rec.CompletionTokens,
			&rec.ReasoningTokens,
			&rec.TotalTokens,
			&rec.CostUSD,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan cost record: %w", err)
		}
		rec.Provider = llm.ProviderID(provider)
		rec.ModelSlot = answer.Slot(slot)
		records = append(records, rec)
	}
	return records, rows.Err()
}

// SessionTotal sums the spend for one session.
func (l *Ledger) SessionTotal(ctx context.Context, sessionID string) (float64, error) {
	var total float64
	err := l.conn.QueryRow(ctx, `
		SELECT COALESCE(SUM(cost_usd), 0)
		FROM cost_records
		WHERE session_id = $1`, sessionID).Scan(&total)
	if err != nil {
		return 0, fmt.Errorf("failed to sum session costs: %w", err)
	}
	return total, nil
}
