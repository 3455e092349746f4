package metering

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

const reservationColumns = `
	id, workspace_id, agent_id, conversation_id, reserved_amount_nano_usd,
	uses_byok, source, supplier, model, provider_generation_id,
	verify_attempts, created_at, expires_at`

// Repository persists credit reservations. Expired rows behave as absent
// everywhere except the purge path: a reservation past its TTL can no longer
// be settled or refunded.
type Repository struct {
	db *sqlx.DB
}

func NewRepository(db *sqlx.DB) *Repository {
	return &Repository{db: db}
}

// Insert stores a reservation outside any caller transaction (BYOK holds,
// which never touch the balance).
func (r *Repository) Insert(ctx context.Context, res *Reservation) error {
	ctx2, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()

	return r.insert(ctx2, r.db, res)
}

// InsertTx stores a reservation inside the caller's transaction, alongside
// the ledger debit that backs it.
func (r *Repository) InsertTx(ctx context.Context, tx *sqlx.Tx, res *Reservation) error {
	return r.insert(ctx, tx, res)
}

func (r *Repository) insert(ctx context.Context, execer sqlx.ExtContext, res *Reservation) error {
	_, err := execer.ExecContext(ctx, `
		INSERT INTO credit_reservations (
			id, workspace_id, agent_id, conversation_id, reserved_amount_nano_usd,
			uses_byok, source, supplier, model, provider_generation_id,
			verify_attempts, created_at, expires_at
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
	`, res.ID, res.WorkspaceID, res.AgentID, res.ConversationID, res.ReservedAmountNanoUSD,
		res.UsesByok, res.Source, res.Supplier, res.Model, res.ProviderGenerationID,
		res.VerifyAttempts, res.CreatedAt, res.ExpiresAt)
	if err != nil {
		return fmt.Errorf("insert reservation: %w", err)
	}
	return nil
}

// GetForUpdateTx lock-loads a live reservation. Missing or expired rows
// return ErrReservationNotFound, which makes settlement and refund
// idempotent: whichever caller locks the row first closes it.
func (r *Repository) GetForUpdateTx(ctx context.Context, tx *sqlx.Tx, id, workspaceID uuid.UUID) (*Reservation, error) {
	var res Reservation
	err := tx.GetContext(ctx, &res, `
		SELECT`+reservationColumns+`
		FROM credit_reservations
		WHERE id = $1 AND workspace_id = $2 AND expires_at > now()
		FOR UPDATE
	`, id, workspaceID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrReservationNotFound
		}
		return nil, fmt.Errorf("lock reservation: %w", err)
	}

	return &res, nil
}

// Get loads a live reservation without locking.
func (r *Repository) Get(ctx context.Context, id, workspaceID uuid.UUID) (*Reservation, error) {
	ctx2, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()

	var res Reservation
	err := r.db.GetContext(ctx2, &res, `
		SELECT`+reservationColumns+`
		FROM credit_reservations
		WHERE id = $1 AND workspace_id = $2 AND expires_at > now()
	`, id, workspaceID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrReservationNotFound
		}
		return nil, fmt.Errorf("%w: get reservation", ErrInternal)
	}

	return &res, nil
}

// DeleteTx removes a closed reservation inside the caller's transaction.
func (r *Repository) DeleteTx(ctx context.Context, tx *sqlx.Tx, id uuid.UUID) error {
	_, err := tx.ExecContext(ctx, `DELETE FROM credit_reservations WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete reservation: %w", err)
	}
	return nil
}

// AttachGenerationID stores the provider's generation id on an open
// reservation without touching the held amount.
func (r *Repository) AttachGenerationID(ctx context.Context, id, workspaceID uuid.UUID, generationID string) error {
	ctx2, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()

	result, err := r.db.ExecContext(ctx2, `
		UPDATE credit_reservations
		SET provider_generation_id = $3
		WHERE id = $1 AND workspace_id = $2 AND expires_at > now()
	`, id, workspaceID, generationID)
	if err != nil {
		return fmt.Errorf("%w: attach generation id", ErrInternal)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("%w: rows affected", ErrInternal)
	}
	if rows == 0 {
		return ErrReservationNotFound
	}

	return nil
}

// IncrementVerifyAttempts bumps the verification attempt counter.
func (r *Repository) IncrementVerifyAttempts(ctx context.Context, id uuid.UUID) error {
	ctx2, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()

	_, err := r.db.ExecContext(ctx2, `
		UPDATE credit_reservations SET verify_attempts = verify_attempts + 1 WHERE id = $1
	`, id)
	if err != nil {
		return fmt.Errorf("%w: increment verify attempts", ErrInternal)
	}
	return nil
}

// ListPendingVerification returns open reservations that carry a generation
// id and still have verification attempts left. The verify worker sweeps
// these periodically in case a queued task was lost; re-processing is safe
// because settlement is idempotent.
func (r *Repository) ListPendingVerification(ctx context.Context, maxAttempts, limit int) ([]Reservation, error) {
	ctx2, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()

	reservations := make([]Reservation, 0)
	err := r.db.SelectContext(ctx2, &reservations, `
		SELECT`+reservationColumns+`
		FROM credit_reservations
		WHERE provider_generation_id IS NOT NULL
		  AND verify_attempts < $1
		  AND expires_at > now()
		ORDER BY created_at ASC
		LIMIT $2
	`, maxAttempts, limit)
	if err != nil {
		return nil, fmt.Errorf("%w: list pending verification", ErrInternal)
	}

	return reservations, nil
}

// PurgeExpired deletes reservations past their TTL and reports how many were
// abandoned and the total still-held amount. The held balance is NOT
// credited back.
func (r *Repository) PurgeExpired(ctx context.Context, asOf time.Time) (int, int64, error) {
	ctx2, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()

	rows, err := r.db.QueryContext(ctx2, `
		DELETE FROM credit_reservations
		WHERE expires_at <= $1
		RETURNING reserved_amount_nano_usd
	`, asOf)
	if err != nil {
		return 0, 0, fmt.Errorf("%w: purge expired reservations", ErrInternal)
	}
	defer rows.Close()

	count := 0
	var total int64
	for rows.Next() {
		var amount int64
		if err := rows.Scan(&amount); err != nil {
			return 0, 0, fmt.Errorf("%w: scan purged reservation", ErrInternal)
		}
		count++
		total += amount
	}
	if err := rows.Err(); err != nil {
		return 0, 0, fmt.Errorf("%w: iterate purged reservations", ErrInternal)
	}

	return count, total, nil
}

// SumOpenHolds returns the total amount currently held by live reservations,
// for the reconciliation sweep.
func (r *Repository) SumOpenHolds(ctx context.Context) (int64, error) {
	ctx2, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()

	var total int64
	err := r.db.GetContext(ctx2, &total, `
		SELECT COALESCE(SUM(reserved_amount_nano_usd), 0)
		FROM credit_reservations
		WHERE expires_at > now()
	`)
	if err != nil {
		return 0, fmt.Errorf("%w: sum open holds", ErrInternal)
	}

	return total, nil
}
