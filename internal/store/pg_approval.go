package store

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/lyzr/flowengine/internal/model"
)

// PgApprovalStore is a Postgres-backed ApprovalStore. At most one row
// exists per run_id at a time (§4.8); Create upserts to enforce that.
type PgApprovalStore struct {
	db *DB
}

// NewPgApprovalStore wraps db as an ApprovalStore.
func NewPgApprovalStore(db *DB) *PgApprovalStore { return &PgApprovalStore{db: db} }

// Create upserts the pending approval for req.RunID.
func (a *PgApprovalStore) Create(ctx context.Context, req *model.ApprovalRequest) error {
	pendingInput, err := json.Marshal(req.PendingInput)
	if err != nil {
		return fmt.Errorf("marshal pending_input: %w", err)
	}

	const query = `
		INSERT INTO approval_requests (run_id, node_id, message, pending_input, created_at)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (run_id) DO UPDATE SET
			node_id = EXCLUDED.node_id,
			message = EXCLUDED.message,
			pending_input = EXCLUDED.pending_input,
			created_at = EXCLUDED.created_at
	`
	_, err = a.db.Exec(ctx, query, req.RunID, req.NodeID, req.Message, pendingInput, req.CreatedAt)
	if err != nil {
		return fmt.Errorf("create approval request: %w", err)
	}
	return nil
}

// Get retrieves the pending approval for runID.
func (a *PgApprovalStore) Get(ctx context.Context, runID uuid.UUID) (*model.ApprovalRequest, error) {
	const query = `
		SELECT run_id, node_id, message, pending_input, created_at
		FROM approval_requests
		WHERE run_id = $1
	`
	req := &model.ApprovalRequest{}
	var pendingInput []byte
	err := a.db.QueryRow(ctx, query, runID).Scan(&req.RunID, &req.NodeID, &req.Message, &pendingInput, &req.CreatedAt)
	if err == pgx.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get approval request: %w", err)
	}
	if err := json.Unmarshal(pendingInput, &req.PendingInput); err != nil {
		return nil, fmt.Errorf("unmarshal pending_input: %w", err)
	}
	return req, nil
}

// Delete clears the pending approval for runID (called on resume).
func (a *PgApprovalStore) Delete(ctx context.Context, runID uuid.UUID) error {
	const query = `DELETE FROM approval_requests WHERE run_id = $1`
	_, err := a.db.Exec(ctx, query, runID)
	if err != nil {
		return fmt.Errorf("delete approval request: %w", err)
	}
	return nil
}
