package store

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/lyzr/flowengine/internal/model"
)

// PgWorkflowStore reads workflow graph definitions. Authoring
// (create/update) is out of the engine's scope; this is read-only.
type PgWorkflowStore struct {
	db *DB
}

// NewPgWorkflowStore wraps db as a WorkflowStore.
func NewPgWorkflowStore(db *DB) *PgWorkflowStore { return &PgWorkflowStore{db: db} }

// Get loads a workflow's full graph by id.
func (w *PgWorkflowStore) Get(ctx context.Context, workflowID uuid.UUID) (*model.Workflow, error) {
	const query = `
		SELECT id, owner, name, description, nodes, edges
		FROM workflows
		WHERE id = $1
	`
	wf := &model.Workflow{}
	var nodes, edges []byte
	err := w.db.QueryRow(ctx, query, workflowID).Scan(&wf.ID, &wf.Owner, &wf.Name, &wf.Description, &nodes, &edges)
	if err == pgx.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get workflow: %w", err)
	}
	if err := json.Unmarshal(nodes, &wf.Nodes); err != nil {
		return nil, fmt.Errorf("unmarshal nodes: %w", err)
	}
	if err := json.Unmarshal(edges, &wf.Edges); err != nil {
		return nil, fmt.Errorf("unmarshal edges: %w", err)
	}
	return wf, nil
}
