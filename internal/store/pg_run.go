package store

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/lyzr/flowengine/internal/model"
)

// PgRunStore is a Postgres-backed RunStore, grounded on the teacher's
// common/repository/run.go query shapes, adapted to this engine's Run
// schema (workflow_id, status, initial_input, finished_at).
type PgRunStore struct {
	db *DB
}

// NewPgRunStore wraps db as a RunStore.
func NewPgRunStore(db *DB) *PgRunStore { return &PgRunStore{db: db} }

// Create inserts a new run row.
func (r *PgRunStore) Create(ctx context.Context, run *model.Run) error {
	initialInput, err := json.Marshal(run.InitialInput)
	if err != nil {
		return fmt.Errorf("marshal initial_input: %w", err)
	}

	const query = `
		INSERT INTO runs (id, workflow_id, status, initial_input, created_at)
		VALUES ($1, $2, $3, $4, $5)
	`
	_, err = r.db.Exec(ctx, query, run.ID, run.WorkflowID, run.Status, initialInput, run.CreatedAt)
	if err != nil {
		return fmt.Errorf("create run: %w", err)
	}
	return nil
}

// Get retrieves a run by id.
func (r *PgRunStore) Get(ctx context.Context, runID uuid.UUID) (*model.Run, error) {
	const query = `
		SELECT id, workflow_id, status, initial_input, created_at, finished_at
		FROM runs
		WHERE id = $1
	`
	run := &model.Run{}
	var initialInput []byte
	err := r.db.QueryRow(ctx, query, runID).Scan(
		&run.ID, &run.WorkflowID, &run.Status, &initialInput, &run.CreatedAt, &run.FinishedAt,
	)
	if err == pgx.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get run: %w", err)
	}
	if err := json.Unmarshal(initialInput, &run.InitialInput); err != nil {
		return nil, fmt.Errorf("unmarshal initial_input: %w", err)
	}
	return run, nil
}

// UpdateStatus sets status without touching finished_at.
func (r *PgRunStore) UpdateStatus(ctx context.Context, runID uuid.UUID, status model.RunStatus) error {
	const query = `UPDATE runs SET status = $2 WHERE id = $1`
	tag, err := r.db.Exec(ctx, query, runID, status)
	if err != nil {
		return fmt.Errorf("update run status: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// Finish sets the terminal status and finished_at timestamp.
func (r *PgRunStore) Finish(ctx context.Context, runID uuid.UUID, status model.RunStatus) error {
	const query = `UPDATE runs SET status = $2, finished_at = $3 WHERE id = $1`
	tag, err := r.db.Exec(ctx, query, runID, status, time.Now())
	if err != nil {
		return fmt.Errorf("finish run: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// ListByWorkflow returns runs for workflowID newest-first, paginated.
func (r *PgRunStore) ListByWorkflow(ctx context.Context, workflowID uuid.UUID, limit, offset int) ([]*model.Run, error) {
	const query = `
		SELECT id, workflow_id, status, initial_input, created_at, finished_at
		FROM runs
		WHERE workflow_id = $1
		ORDER BY created_at DESC
		LIMIT $2 OFFSET $3
	`
	rows, err := r.db.Query(ctx, query, workflowID, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("list runs: %w", err)
	}
	defer rows.Close()

	var runs []*model.Run
	for rows.Next() {
		run := &model.Run{}
		var initialInput []byte
		if err := rows.Scan(&run.ID, &run.WorkflowID, &run.Status, &initialInput, &run.CreatedAt, &run.FinishedAt); err != nil {
			return nil, fmt.Errorf("scan run: %w", err)
		}
		if err := json.Unmarshal(initialInput, &run.InitialInput); err != nil {
			return nil, fmt.Errorf("unmarshal initial_input: %w", err)
		}
		runs = append(runs, run)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate runs: %w", err)
	}
	return runs, nil
}
