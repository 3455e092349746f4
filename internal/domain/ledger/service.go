package ledger

import (
	"context"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/rs/zerolog/log"
)

// Writer is the single entry point for balance-affecting events. Every other
// component appends through it; nothing else mutates a workspace balance.
type Writer struct {
	repo   *Repository
	events *Publisher
}

func NewWriter(repo *Repository, events *Publisher) *Writer {
	return &Writer{repo: repo, events: events}
}

// AddWorkspaceCreditTransaction atomically reads the balance, writes the new
// balance and appends the immutable transaction record.
func (w *Writer) AddWorkspaceCreditTransaction(ctx context.Context, entry Entry, maxRetries int) (*Transaction, error) {
	txn, err := w.repo.Append(ctx, entry, maxRetries)
	if err != nil {
		return nil, err
	}

	log.Info().
		Str("workspace_id", txn.WorkspaceID.String()).
		Str("sk", txn.SK).
		Str("source", string(txn.Source)).
		Int64("amount_nano_usd", txn.AmountNanoUSD).
		Int64("credits_after_nano_usd", txn.CreditsAfterNanoUSD).
		Msg("ledger transaction appended")

	w.events.Publish(ctx, txn)
	return txn, nil
}

// ListTransactions returns a page of a workspace's ledger, newest first,
// with the total row count for pagination.
func (w *Writer) ListTransactions(ctx context.Context, workspaceID uuid.UUID, limit, offset int) ([]Transaction, int, error) {
	transactions, err := w.repo.List(ctx, workspaceID, limit, offset)
	if err != nil {
		return nil, 0, err
	}

	total, err := w.repo.Count(ctx, workspaceID)
	if err != nil {
		return nil, 0, err
	}

	return transactions, total, nil
}

// AppendTx is the in-transaction variant: the caller owns the transaction
// and publishes with Publish after its commit.
func (w *Writer) AppendTx(ctx context.Context, tx *sqlx.Tx, entry Entry) (*Transaction, error) {
	return w.repo.AppendTx(ctx, tx, entry)
}

// Publish re-exposes event publication for components that append through
// AppendTx inside their own transaction and publish after commit.
func (w *Writer) Publish(ctx context.Context, txn *Transaction) {
	w.events.Publish(ctx, txn)
}
