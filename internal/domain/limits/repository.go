package limits

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
)

const queryTimeout = 3 * time.Second

// Repository persists spending limits. Workspace limits have a NULL agent_id;
// agent limits carry both ids.
type Repository struct {
	db *sqlx.DB
}

func NewRepository(db *sqlx.DB) *Repository {
	return &Repository{db: db}
}

func (r *Repository) Create(ctx context.Context, workspaceID uuid.UUID, agentID *uuid.UUID, frame TimeFrame, amountUSD float64) (*Limit, error) {
	ctx2, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()

	limit := Limit{
		ID:          uuid.New(),
		WorkspaceID: workspaceID,
		AgentID:     agentID,
		TimeFrame:   frame,
		AmountUSD:   amountUSD,
		CreatedAt:   time.Now().UTC(),
	}

	_, err := r.db.ExecContext(ctx2, `
		INSERT INTO spending_limits (id, workspace_id, agent_id, time_frame, amount_usd, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)
	`, limit.ID, limit.WorkspaceID, limit.AgentID, string(limit.TimeFrame), limit.AmountUSD, limit.CreatedAt)
	if err != nil {
		return nil, fmt.Errorf("%w: insert limit", ErrInternal)
	}

	return &limit, nil
}

// ListWorkspaceLimits returns the workspace-level limits (agent_id IS NULL).
func (r *Repository) ListWorkspaceLimits(ctx context.Context, workspaceID uuid.UUID) ([]Limit, error) {
	ctx2, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()

	result := make([]Limit, 0)
	err := r.db.SelectContext(ctx2, &result, `
		SELECT id, workspace_id, agent_id, time_frame, amount_usd, created_at
		FROM spending_limits
		WHERE workspace_id = $1 AND agent_id IS NULL
		ORDER BY created_at ASC
	`, workspaceID)
	if err != nil {
		return nil, fmt.Errorf("%w: list workspace limits", ErrInternal)
	}

	return result, nil
}

// ListAgentLimits returns the limits configured for one agent.
func (r *Repository) ListAgentLimits(ctx context.Context, workspaceID, agentID uuid.UUID) ([]Limit, error) {
	ctx2, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()

	result := make([]Limit, 0)
	err := r.db.SelectContext(ctx2, &result, `
		SELECT id, workspace_id, agent_id, time_frame, amount_usd, created_at
		FROM spending_limits
		WHERE workspace_id = $1 AND agent_id = $2
		ORDER BY created_at ASC
	`, workspaceID, agentID)
	if err != nil {
		return nil, fmt.Errorf("%w: list agent limits", ErrInternal)
	}

	return result, nil
}

// ListAll returns every limit of a workspace, workspace-level and per-agent.
func (r *Repository) ListAll(ctx context.Context, workspaceID uuid.UUID) ([]Limit, error) {
	ctx2, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()

	result := make([]Limit, 0)
	err := r.db.SelectContext(ctx2, &result, `
		SELECT id, workspace_id, agent_id, time_frame, amount_usd, created_at
		FROM spending_limits
		WHERE workspace_id = $1
		ORDER BY created_at ASC
	`, workspaceID)
	if err != nil {
		return nil, fmt.Errorf("%w: list limits", ErrInternal)
	}

	return result, nil
}

func (r *Repository) Delete(ctx context.Context, workspaceID, limitID uuid.UUID) error {
	ctx2, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()

	result, err := r.db.ExecContext(ctx2, `
		DELETE FROM spending_limits WHERE id = $1 AND workspace_id = $2
	`, limitID, workspaceID)
	if err != nil {
		return fmt.Errorf("%w: delete limit", ErrInternal)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("%w: rows affected", ErrInternal)
	}
	if rows == 0 {
		return ErrNotFound
	}

	return nil
}
