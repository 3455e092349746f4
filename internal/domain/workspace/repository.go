package workspace

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
)

const queryTimeout = 3 * time.Second

// Repository provides workspace and agent persistence.
//
// The credit balance column is read here but never written: every mutation of
// workspaces.credit_balance_nano_usd goes through the ledger writer.
type Repository struct {
	db *sqlx.DB
}

func NewRepository(db *sqlx.DB) *Repository {
	return &Repository{db: db}
}

func (r *Repository) Create(ctx context.Context, name, timezone string, usesByok bool) (*Workspace, error) {
	ctx2, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()

	ws := Workspace{
		ID:        uuid.New(),
		Name:      name,
		Timezone:  timezone,
		UsesByok:  usesByok,
		CreatedAt: time.Now().UTC(),
		UpdatedAt: time.Now().UTC(),
	}

	_, err := r.db.ExecContext(ctx2, `
		INSERT INTO workspaces (id, name, timezone, credit_balance_nano_usd, uses_byok, created_at, updated_at)
		VALUES ($1, $2, $3, 0, $4, $5, $6)
	`, ws.ID, ws.Name, ws.Timezone, ws.UsesByok, ws.CreatedAt, ws.UpdatedAt)
	if err != nil {
		return nil, fmt.Errorf("%w: insert workspace", ErrInternal)
	}

	return &ws, nil
}

func (r *Repository) GetByID(ctx context.Context, id uuid.UUID) (*Workspace, error) {
	ctx2, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()

	var ws Workspace
	err := r.db.GetContext(ctx2, &ws, `
		SELECT id, name, timezone, credit_balance_nano_usd, uses_byok, created_at, updated_at
		FROM workspaces
		WHERE id = $1
	`, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("%w: get workspace", ErrInternal)
	}

	return &ws, nil
}

// GetBalance returns the current credit balance in nano-USD.
func (r *Repository) GetBalance(ctx context.Context, id uuid.UUID) (int64, error) {
	ctx2, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()

	var balance int64
	err := r.db.GetContext(ctx2, &balance, `SELECT credit_balance_nano_usd FROM workspaces WHERE id = $1`, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return 0, ErrNotFound
		}
		return 0, fmt.Errorf("%w: get balance", ErrInternal)
	}

	return balance, nil
}

func (r *Repository) CreateAgent(ctx context.Context, workspaceID uuid.UUID, name string) (*Agent, error) {
	ctx2, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()

	agent := Agent{
		ID:          uuid.New(),
		WorkspaceID: workspaceID,
		Name:        name,
		CreatedAt:   time.Now().UTC(),
	}

	_, err := r.db.ExecContext(ctx2, `
		INSERT INTO agents (id, workspace_id, name, created_at)
		VALUES ($1, $2, $3, $4)
	`, agent.ID, agent.WorkspaceID, agent.Name, agent.CreatedAt)
	if err != nil {
		return nil, fmt.Errorf("%w: insert agent", ErrInternal)
	}

	return &agent, nil
}

func (r *Repository) GetAgent(ctx context.Context, workspaceID, agentID uuid.UUID) (*Agent, error) {
	ctx2, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()

	var agent Agent
	err := r.db.GetContext(ctx2, &agent, `
		SELECT id, workspace_id, name, created_at
		FROM agents
		WHERE id = $1 AND workspace_id = $2
	`, agentID, workspaceID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrAgentNotFound
		}
		return nil, fmt.Errorf("%w: get agent", ErrInternal)
	}

	return &agent, nil
}

func (r *Repository) ListAgents(ctx context.Context, workspaceID uuid.UUID) ([]Agent, error) {
	ctx2, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()

	agents := make([]Agent, 0)
	err := r.db.SelectContext(ctx2, &agents, `
		SELECT id, workspace_id, name, created_at
		FROM agents
		WHERE workspace_id = $1
		ORDER BY created_at ASC
	`, workspaceID)
	if err != nil {
		return nil, fmt.Errorf("%w: list agents", ErrInternal)
	}

	return agents, nil
}

// SetByokKeyCiphertext stores an encrypted BYOK provider credential.
func (r *Repository) SetByokKeyCiphertext(ctx context.Context, workspaceID uuid.UUID, ciphertext []byte) error {
	ctx2, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()

	result, err := r.db.ExecContext(ctx2, `
		UPDATE workspaces
		SET byok_key_ciphertext = $2, uses_byok = TRUE, updated_at = now()
		WHERE id = $1
	`, workspaceID, ciphertext)
	if err != nil {
		return fmt.Errorf("%w: set byok key", ErrInternal)
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

// GetByokKeyCiphertext loads the encrypted BYOK provider credential.
func (r *Repository) GetByokKeyCiphertext(ctx context.Context, workspaceID uuid.UUID) ([]byte, error) {
	ctx2, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()

	var ciphertext []byte
	err := r.db.GetContext(ctx2, &ciphertext, `SELECT byok_key_ciphertext FROM workspaces WHERE id = $1`, workspaceID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("%w: get byok key", ErrInternal)
	}
	if len(ciphertext) == 0 {
		return nil, ErrByokNotConfigured
	}

	return ciphertext, nil
}
