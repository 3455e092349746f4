package ledger

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
)

const queryTimeout = 3 * time.Second

// Repository persists ledger transactions and owns the only write path to
// workspaces.credit_balance_nano_usd.
type Repository struct {
	db        *sqlx.DB
	retention time.Duration
}

func NewRepository(db *sqlx.DB, retention time.Duration) *Repository {
	return &Repository{db: db, retention: retention}
}

// AppendTx applies entry inside the caller's transaction: locks the workspace
// balance row, computes before/after, updates the balance and inserts the
// transaction row. The caller commits or rolls back.
func (r *Repository) AppendTx(ctx context.Context, tx *sqlx.Tx, entry Entry) (*Transaction, error) {
	if !entry.Source.Valid() {
		return nil, ErrInvalidSource
	}

	var before int64
	err := tx.QueryRowContext(ctx, `
		SELECT credit_balance_nano_usd FROM workspaces WHERE id = $1 FOR UPDATE
	`, entry.WorkspaceID).Scan(&before)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrWorkspaceNotFound
		}
		return nil, fmt.Errorf("lock workspace balance: %w", err)
	}

	now := time.Now().UTC()
	txn := Transaction{
		WorkspaceID:          entry.WorkspaceID,
		SK:                   NewSortKey(now),
		RequestID:            entry.RequestID,
		AgentID:              entry.AgentID,
		ConversationID:       entry.ConversationID,
		Source:               entry.Source,
		Supplier:             entry.Supplier,
		Model:                entry.Model,
		ToolCall:             entry.ToolCall,
		Description:          entry.Description,
		AmountNanoUSD:        entry.AmountNanoUSD,
		CreditsBeforeNanoUSD: before,
		CreditsAfterNanoUSD:  before + entry.AmountNanoUSD,
		CreatedAt:            now,
		ExpiresAt:            now.Add(r.retention),
	}

	_, err = tx.ExecContext(ctx, `
		UPDATE workspaces
		SET credit_balance_nano_usd = $2, updated_at = now()
		WHERE id = $1
	`, txn.WorkspaceID, txn.CreditsAfterNanoUSD)
	if err != nil {
		return nil, fmt.Errorf("update workspace balance: %w", err)
	}

	_, err = tx.ExecContext(ctx, `
		INSERT INTO workspace_credit_transactions (
			workspace_id, sk, request_id, agent_id, conversation_id,
			source, supplier, model, tool_call, description,
			amount_nano_usd, credits_before_nano_usd, credits_after_nano_usd,
			created_at, expires_at
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15)
	`, txn.WorkspaceID, txn.SK, txn.RequestID, txn.AgentID, txn.ConversationID,
		string(txn.Source), txn.Supplier, txn.Model, txn.ToolCall, txn.Description,
		txn.AmountNanoUSD, txn.CreditsBeforeNanoUSD, txn.CreditsAfterNanoUSD,
		txn.CreatedAt, txn.ExpiresAt)
	if err != nil {
		return nil, fmt.Errorf("insert transaction: %w", err)
	}

	return &txn, nil
}

// Append applies entry in its own transaction, retrying on lock contention up
// to maxRetries additional attempts. Exhaustion leaves the balance unchanged.
func (r *Repository) Append(ctx context.Context, entry Entry, maxRetries int) (*Transaction, error) {
	if maxRetries < 0 {
		maxRetries = 0
	}

	var lastErr error
	for attempt := 0; attempt <= maxRetries; attempt++ {
		txn, err := r.appendOnce(ctx, entry)
		if err == nil {
			return txn, nil
		}
		if !IsRetryable(err) {
			return nil, err
		}
		lastErr = err
	}

	return nil, fmt.Errorf("%w: %v", ErrRetriesExhausted, lastErr)
}

func (r *Repository) appendOnce(ctx context.Context, entry Entry) (*Transaction, error) {
	ctx2, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()

	tx, err := r.db.BeginTxx(ctx2, &sql.TxOptions{})
	if err != nil {
		return nil, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	txn, err := r.AppendTx(ctx2, tx, entry)
	if err != nil {
		return nil, err
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit tx: %w", err)
	}

	return txn, nil
}

// IsRetryable reports whether err is a transient conflict worth retrying
// (Postgres serialization failure or deadlock).
func IsRetryable(err error) bool {
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		return pqErr.Code == "40001" || pqErr.Code == "40P01"
	}
	return false
}

// SumDebitsNanoUSD returns the total debited (as a positive number) for a
// workspace within [from, to). When agentID is non-nil only that agent's
// debits count. Credits (refunds, settlement corrections, top-ups) are
// excluded: spending limits measure actual spend.
func (r *Repository) SumDebitsNanoUSD(ctx context.Context, workspaceID uuid.UUID, agentID *uuid.UUID, from, to time.Time) (int64, error) {
	ctx2, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()

	query := `
		SELECT COALESCE(SUM(-amount_nano_usd), 0)
		FROM workspace_credit_transactions
		WHERE workspace_id = $1
		  AND amount_nano_usd < 0
		  AND created_at >= $2 AND created_at < $3`
	args := []interface{}{workspaceID, from, to}

	if agentID != nil {
		query += ` AND agent_id = $4`
		args = append(args, *agentID)
	}

	var total int64
	if err := r.db.GetContext(ctx2, &total, query, args...); err != nil {
		return 0, fmt.Errorf("%w: sum debits", ErrInternal)
	}

	return total, nil
}

// List returns a page of a workspace's transactions, newest first.
func (r *Repository) List(ctx context.Context, workspaceID uuid.UUID, limit, offset int) ([]Transaction, error) {
	ctx2, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()

	if limit <= 0 {
		limit = 20
	}

	transactions := make([]Transaction, 0)
	err := r.db.SelectContext(ctx2, &transactions, `
		SELECT workspace_id, sk, request_id, agent_id, conversation_id,
		       source, supplier, model, tool_call, description,
		       amount_nano_usd, credits_before_nano_usd, credits_after_nano_usd,
		       created_at, expires_at
		FROM workspace_credit_transactions
		WHERE workspace_id = $1
		ORDER BY sk DESC
		LIMIT $2 OFFSET $3
	`, workspaceID, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("%w: list transactions", ErrInternal)
	}

	return transactions, nil
}

// Count returns the number of ledger rows for a workspace.
func (r *Repository) Count(ctx context.Context, workspaceID uuid.UUID) (int, error) {
	ctx2, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()

	var count int
	err := r.db.GetContext(ctx2, &count, `
		SELECT COUNT(*) FROM workspace_credit_transactions WHERE workspace_id = $1
	`, workspaceID)
	if err != nil {
		return 0, fmt.Errorf("%w: count transactions", ErrInternal)
	}

	return count, nil
}

// ListExpired returns up to limit transactions past their retention TTL,
// oldest first. Used by the retention worker to archive and purge.
func (r *Repository) ListExpired(ctx context.Context, asOf time.Time, limit int) ([]Transaction, error) {
	ctx2, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()

	transactions := make([]Transaction, 0)
	err := r.db.SelectContext(ctx2, &transactions, `
		SELECT workspace_id, sk, request_id, agent_id, conversation_id,
		       source, supplier, model, tool_call, description,
		       amount_nano_usd, credits_before_nano_usd, credits_after_nano_usd,
		       created_at, expires_at
		FROM workspace_credit_transactions
		WHERE expires_at < $1
		ORDER BY expires_at ASC
		LIMIT $2
	`, asOf, limit)
	if err != nil {
		return nil, fmt.Errorf("%w: list expired transactions", ErrInternal)
	}

	return transactions, nil
}

// Delete removes a single archived transaction. Only the retention worker
// calls this, after the row has been written to the archive bucket.
func (r *Repository) Delete(ctx context.Context, workspaceID uuid.UUID, sk string) error {
	ctx2, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()

	_, err := r.db.ExecContext(ctx2, `
		DELETE FROM workspace_credit_transactions WHERE workspace_id = $1 AND sk = $2
	`, workspaceID, sk)
	if err != nil {
		return fmt.Errorf("%w: delete transaction", ErrInternal)
	}

	return nil
}
