package store

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/lyzr/flowengine/internal/model"
)

// PgLedgerStore is a Postgres-backed LedgerStore. The ledger is
// append-only per §5: Append inserts a row with output left null,
// Finish is the only subsequent UPDATE that row ever receives.
type PgLedgerStore struct {
	db *DB
}

// NewPgLedgerStore wraps db as a LedgerStore.
func NewPgLedgerStore(db *DB) *PgLedgerStore { return &PgLedgerStore{db: db} }

// NextSequence allocates the next per-run sequence number atomically.
func (l *PgLedgerStore) NextSequence(ctx context.Context, runID uuid.UUID) (int64, error) {
	const query = `
		INSERT INTO run_sequences (run_id, value) VALUES ($1, 1)
		ON CONFLICT (run_id) DO UPDATE SET value = run_sequences.value + 1
		RETURNING value
	`
	var seq int64
	if err := l.db.QueryRow(ctx, query, runID).Scan(&seq); err != nil {
		return 0, fmt.Errorf("allocate sequence: %w", err)
	}
	return seq, nil
}

// Append inserts a new ledger row.
func (l *PgLedgerStore) Append(ctx context.Context, entry *model.LedgerEntry) error {
	input, err := json.Marshal(entry.Input)
	if err != nil {
		return fmt.Errorf("marshal input: %w", err)
	}

	const query = `
		INSERT INTO ledger_entries (id, run_id, node_id, node_type, sequence, input, started_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`
	_, err = l.db.Exec(ctx, query, entry.ID, entry.RunID, entry.NodeID, entry.NodeType, entry.Sequence, input, entry.StartedAt)
	if err != nil {
		return fmt.Errorf("append ledger entry: %w", err)
	}
	return nil
}

// Finish records output/tool_calls/error and computes duration_ms
// against the row's started_at.
func (l *PgLedgerStore) Finish(ctx context.Context, entryID uuid.UUID, output map[string]interface{}, toolCalls []model.ToolCall, errMsg string) error {
	outputJSON, err := json.Marshal(output)
	if err != nil {
		return fmt.Errorf("marshal output: %w", err)
	}
	toolCallsJSON, err := json.Marshal(toolCalls)
	if err != nil {
		return fmt.Errorf("marshal tool_calls: %w", err)
	}

	const query = `
		UPDATE ledger_entries
		SET output = $2,
		    tool_calls = $3,
		    error = $4,
		    finished_at = now(),
		    duration_ms = EXTRACT(MILLISECONDS FROM (now() - started_at))::bigint
		WHERE id = $1
	`
	tag, err := l.db.Exec(ctx, query, entryID, outputJSON, toolCallsJSON, errMsg)
	if err != nil {
		return fmt.Errorf("finish ledger entry: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// ListByRun returns runID's ledger entries in sequence order.
func (l *PgLedgerStore) ListByRun(ctx context.Context, runID uuid.UUID) ([]*model.LedgerEntry, error) {
	const query = `
		SELECT id, run_id, node_id, node_type, sequence, input, output, tool_calls,
		       started_at, finished_at, duration_ms, error
		FROM ledger_entries
		WHERE run_id = $1
		ORDER BY sequence ASC
	`
	rows, err := l.db.Query(ctx, query, runID)
	if err != nil {
		return nil, fmt.Errorf("list ledger entries: %w", err)
	}
	defer rows.Close()

	entries, err := scanLedgerRows(rows)
	if err != nil {
		return nil, err
	}
	return entries, nil
}

// Orphans returns ledger rows with no finished_at whose parent run
// has already left the running/awaiting_approval state (SPEC_FULL
// §12's crash-recovery detection query).
func (l *PgLedgerStore) Orphans(ctx context.Context) ([]*model.LedgerEntry, error) {
	const query = `
		SELECT e.id, e.run_id, e.node_id, e.node_type, e.sequence, e.input, e.output, e.tool_calls,
		       e.started_at, e.finished_at, e.duration_ms, e.error
		FROM ledger_entries e
		JOIN runs r ON r.id = e.run_id
		WHERE e.finished_at IS NULL
		  AND r.status NOT IN ('running', 'awaiting_approval')
	`
	rows, err := l.db.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("list orphan ledger entries: %w", err)
	}
	defer rows.Close()
	return scanLedgerRows(rows)
}

func scanLedgerRows(rows pgx.Rows) ([]*model.LedgerEntry, error) {
	var entries []*model.LedgerEntry
	for rows.Next() {
		e := &model.LedgerEntry{}
		var input, output, toolCalls []byte
		if err := rows.Scan(
			&e.ID, &e.RunID, &e.NodeID, &e.NodeType, &e.Sequence, &input, &output, &toolCalls,
			&e.StartedAt, &e.FinishedAt, &e.DurationMS, &e.Error,
		); err != nil {
			return nil, fmt.Errorf("scan ledger entry: %w", err)
		}
		if err := json.Unmarshal(input, &e.Input); err != nil {
			return nil, fmt.Errorf("unmarshal input: %w", err)
		}
		if len(output) > 0 {
			if err := json.Unmarshal(output, &e.Output); err != nil {
				return nil, fmt.Errorf("unmarshal output: %w", err)
			}
		}
		if len(toolCalls) > 0 {
			if err := json.Unmarshal(toolCalls, &e.ToolCalls); err != nil {
				return nil, fmt.Errorf("unmarshal tool_calls: %w", err)
			}
		}
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate ledger entries: %w", err)
	}
	return entries, nil
}
