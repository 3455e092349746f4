package metering

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/rs/zerolog/log"

	"github.com/helpmaton/billing-api/internal/domain/ledger"
	"github.com/helpmaton/billing-api/internal/domain/limits"
	"github.com/helpmaton/billing-api/internal/domain/pricing"
	"github.com/helpmaton/billing-api/internal/domain/workspace"
)

// Options tunes the reservation lifecycle.
type Options struct {
	LimitsEnabled     bool
	ReservationTTL    time.Duration
	DefaultMaxRetries int
}

// Service drives the reserve / settle / refund lifecycle. Every balance
// change goes through the ledger writer inside a single transaction with
// the reservation row change, so a crash between the two is impossible.
type Service struct {
	db           *sqlx.DB
	reservations *Repository
	writer       *ledger.Writer
	evaluator    *limits.Evaluator
	workspaces   *workspace.Repository
	oracle       pricing.Oracle
	queue        VerificationQueue
	opts         Options
}

func NewService(
	db *sqlx.DB,
	reservations *Repository,
	writer *ledger.Writer,
	evaluator *limits.Evaluator,
	workspaces *workspace.Repository,
	oracle pricing.Oracle,
	queue VerificationQueue,
	opts Options,
) *Service {
	if opts.ReservationTTL <= 0 {
		opts.ReservationTTL = time.Hour
	}
	if opts.DefaultMaxRetries <= 0 {
		opts.DefaultMaxRetries = 3
	}
	return &Service{
		db:           db,
		reservations: reservations,
		writer:       writer,
		evaluator:    evaluator,
		workspaces:   workspaces,
		oracle:       oracle,
		queue:        queue,
		opts:         opts,
	}
}

// Reserve places a hold for the estimated cost: checks spending limits,
// debits the estimate from the balance and creates the reservation row, both
// in one transaction. BYOK workspaces get a zero-amount hold and no debit.
func (s *Service) Reserve(ctx context.Context, p ReserveParams) (*ReserveResult, error) {
	if !p.Source.Valid() {
		return nil, ledger.ErrInvalidSource
	}

	ws, err := s.workspaces.GetByID(ctx, p.WorkspaceID)
	if err != nil {
		return nil, err
	}

	usesByok := p.UsesByok || ws.UsesByok

	now := time.Now().UTC()
	res := &Reservation{
		ID:             uuid.New(),
		WorkspaceID:    p.WorkspaceID,
		AgentID:        p.AgentID,
		ConversationID: p.ConversationID,
		UsesByok:       usesByok,
		Source:         p.Source,
		Supplier:       p.Supplier,
		Model:          p.Model,
		CreatedAt:      now,
		ExpiresAt:      now.Add(s.opts.ReservationTTL),
	}

	if usesByok {
		// The workspace pays its supplier directly; the hold exists only so
		// settlement can still record usage. The balance is never touched.
		if err := s.reservations.Insert(ctx, res); err != nil {
			return nil, err
		}

		log.Info().
			Str("workspace_id", p.WorkspaceID.String()).
			Str("reservation_id", res.ID.String()).
			Msg("byok reservation placed")

		return &ReserveResult{
			ReservationID:  res.ID,
			BalanceNanoUSD: ws.CreditBalanceNanoUSD,
		}, nil
	}

	if s.opts.LimitsEnabled {
		var agent *workspace.Agent
		if p.AgentID != nil {
			agent, err = s.workspaces.GetAgent(ctx, p.WorkspaceID, *p.AgentID)
			if err != nil {
				return nil, err
			}
		}

		result, err := s.evaluator.Evaluate(ctx, ws, agent, ledger.NanoToUSD(p.EstimatedCostNanoUSD))
		if err != nil {
			return nil, err
		}
		if !result.Passed {
			return nil, &LimitExceededError{FailedLimits: result.FailedLimits}
		}
	}

	res.ReservedAmountNanoUSD = p.EstimatedCostNanoUSD

	maxRetries := p.MaxRetries
	if maxRetries <= 0 {
		maxRetries = s.opts.DefaultMaxRetries
	}

	var txn *ledger.Transaction
	err = s.withRetries(ctx, maxRetries, func(tx *sqlx.Tx) error {
		var err error
		txn, err = s.writer.AppendTx(ctx, tx, ledger.Entry{
			WorkspaceID:    p.WorkspaceID,
			RequestID:      p.RequestID,
			AgentID:        p.AgentID,
			ConversationID: p.ConversationID,
			Source:         p.Source,
			Supplier:       p.Supplier,
			Model:          p.Model,
			ToolCall:       p.ToolCall,
			Description:    describeReserve(p.Description),
			AmountNanoUSD:  -p.EstimatedCostNanoUSD,
		})
		if err != nil {
			return err
		}
		return s.reservations.InsertTx(ctx, tx, res)
	})
	if err != nil {
		return nil, err
	}

	s.writer.Publish(ctx, txn)

	log.Info().
		Str("workspace_id", p.WorkspaceID.String()).
		Str("reservation_id", res.ID.String()).
		Int64("reserved_nano_usd", res.ReservedAmountNanoUSD).
		Int64("balance_nano_usd", txn.CreditsAfterNanoUSD).
		Msg("reservation placed")

	return &ReserveResult{
		ReservationID:         res.ID,
		ReservedAmountNanoUSD: res.ReservedAmountNanoUSD,
		BalanceNanoUSD:        txn.CreditsAfterNanoUSD,
	}, nil
}

// Settle closes a reservation against actual usage. The ledger amount is
// reserved minus actual: a credit when the estimate was high, a further debit
// when it was low. When no usable cost data came back but the supplier gave a
// generation id, settlement is deferred to the verification worker and the
// reservation stays open.
func (s *Service) Settle(ctx context.Context, p SettleParams) (*SettleResult, error) {
	if !p.Usage.HasCost() && !p.Usage.HasTokens() {
		if p.GenerationID != "" {
			return s.deferSettlement(ctx, p)
		}
		return nil, ErrPricingUnavailable
	}

	actual, err := s.actualCost(ctx, p.Usage)
	if err != nil {
		return nil, err
	}

	var (
		txn    *ledger.Transaction
		result SettleResult
	)
	err = s.withRetries(ctx, s.opts.DefaultMaxRetries, func(tx *sqlx.Tx) error {
		res, err := s.reservations.GetForUpdateTx(ctx, tx, p.ReservationID, p.WorkspaceID)
		if err != nil {
			return err
		}

		amount := res.ReservedAmountNanoUSD - actual
		if res.UsesByok {
			// Metered but not billed: the row records usage, the balance
			// stays where it was.
			amount = 0
		}

		txn, err = s.writer.AppendTx(ctx, tx, ledger.Entry{
			WorkspaceID:    p.WorkspaceID,
			RequestID:      p.RequestID,
			AgentID:        coalesceID(p.AgentID, res.AgentID),
			ConversationID: coalesceID(p.ConversationID, res.ConversationID),
			Source:         sourceFor(p.Source, res),
			Supplier:       supplierFor(p.Supplier, res),
			Model:          modelFor(p.Model, p.Usage, res),
			ToolCall:       p.ToolCall,
			Description:    describeSettle(p.Description),
			AmountNanoUSD:  amount,
		})
		if err != nil {
			return err
		}

		result = SettleResult{
			ActualCostNanoUSD: actual,
			AmountNanoUSD:     amount,
			BalanceNanoUSD:    txn.CreditsAfterNanoUSD,
		}
		return s.reservations.DeleteTx(ctx, tx, res.ID)
	})
	if err != nil {
		return nil, err
	}

	s.writer.Publish(ctx, txn)

	log.Info().
		Str("workspace_id", p.WorkspaceID.String()).
		Str("reservation_id", p.ReservationID.String()).
		Int64("actual_cost_nano_usd", result.ActualCostNanoUSD).
		Int64("amount_nano_usd", result.AmountNanoUSD).
		Msg("reservation settled")

	return &result, nil
}

// Refund releases a hold in full after the metered operation failed. BYOK
// holds release as zero, keeping one code path for both kinds.
func (s *Service) Refund(ctx context.Context, p RefundParams) (*RefundResult, error) {
	var (
		txn    *ledger.Transaction
		result RefundResult
	)
	err := s.withRetries(ctx, s.opts.DefaultMaxRetries, func(tx *sqlx.Tx) error {
		res, err := s.reservations.GetForUpdateTx(ctx, tx, p.ReservationID, p.WorkspaceID)
		if err != nil {
			return err
		}

		txn, err = s.writer.AppendTx(ctx, tx, ledger.Entry{
			WorkspaceID:    p.WorkspaceID,
			RequestID:      p.RequestID,
			AgentID:        coalesceID(p.AgentID, res.AgentID),
			ConversationID: coalesceID(p.ConversationID, res.ConversationID),
			Source:         sourceFor(p.Source, res),
			Supplier:       supplierFor(p.Supplier, res),
			Model:          res.Model,
			Description:    describeRefund(p.Description),
			AmountNanoUSD:  res.ReservedAmountNanoUSD,
		})
		if err != nil {
			return err
		}

		result = RefundResult{
			RefundedAmountNanoUSD: res.ReservedAmountNanoUSD,
			BalanceNanoUSD:        txn.CreditsAfterNanoUSD,
		}
		return s.reservations.DeleteTx(ctx, tx, res.ID)
	})
	if err != nil {
		return nil, err
	}

	s.writer.Publish(ctx, txn)

	log.Info().
		Str("workspace_id", p.WorkspaceID.String()).
		Str("reservation_id", p.ReservationID.String()).
		Int64("refunded_nano_usd", result.RefundedAmountNanoUSD).
		Msg("reservation refunded")

	return &result, nil
}

// deferSettlement records the generation id on the open reservation and
// enqueues exactly one verification task for it.
func (s *Service) deferSettlement(ctx context.Context, p SettleParams) (*SettleResult, error) {
	err := s.reservations.AttachGenerationID(ctx, p.ReservationID, p.WorkspaceID, p.GenerationID)
	if err != nil {
		return nil, err
	}

	task := VerificationTask{
		GenerationID:   p.GenerationID,
		WorkspaceID:    p.WorkspaceID,
		ReservationID:  p.ReservationID,
		ConversationID: p.ConversationID,
		AgentID:        p.AgentID,
	}
	if err := s.queue.Enqueue(ctx, task); err != nil {
		return nil, err
	}

	log.Info().
		Str("workspace_id", p.WorkspaceID.String()).
		Str("reservation_id", p.ReservationID.String()).
		Str("generation_id", p.GenerationID).
		Msg("settlement deferred to cost verification")

	return &SettleResult{Deferred: true}, nil
}

func (s *Service) actualCost(ctx context.Context, u Usage) (int64, error) {
	if u.HasCost() {
		return *u.CostNanoUSD, nil
	}

	cost, err := s.oracle.PriceUsage(ctx, pricing.Usage{
		Model:            u.Model,
		PromptTokens:     u.PromptTokens,
		CompletionTokens: u.CompletionTokens,
	})
	if err != nil {
		return 0, fmt.Errorf("%w: %v", ErrPricingUnavailable, err)
	}
	return cost, nil
}

// withRetries runs fn in a fresh transaction, retrying on serialization
// failures and deadlocks. Each attempt either commits fully or leaves no
// trace; exhaustion surfaces ErrInsufficientRetries.
func (s *Service) withRetries(ctx context.Context, maxRetries int, fn func(tx *sqlx.Tx) error) error {
	if maxRetries < 0 {
		maxRetries = 0
	}

	var lastErr error
	for attempt := 0; attempt <= maxRetries; attempt++ {
		err := s.runTx(ctx, fn)
		if err == nil {
			return nil
		}
		if !ledger.IsRetryable(err) {
			return err
		}
		lastErr = err
	}

	return fmt.Errorf("%w: %v", ErrInsufficientRetries, lastErr)
}

func (s *Service) runTx(ctx context.Context, fn func(tx *sqlx.Tx) error) error {
	tx, err := s.db.BeginTxx(ctx, &sql.TxOptions{})
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	if err := fn(tx); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit tx: %w", err)
	}
	return nil
}

func describeReserve(d string) string {
	if d != "" {
		return d
	}
	return "credit reservation"
}

func describeSettle(d string) string {
	if d != "" {
		return d
	}
	return "settlement adjustment"
}

func describeRefund(d string) string {
	if d != "" {
		return d
	}
	return "reservation refund"
}

func coalesceID(a, b *uuid.UUID) *uuid.UUID {
	if a != nil {
		return a
	}
	return b
}

func sourceFor(s ledger.Source, res *Reservation) ledger.Source {
	if s.Valid() {
		return s
	}
	return res.Source
}

func supplierFor(s string, res *Reservation) string {
	if s != "" {
		return s
	}
	return res.Supplier
}

func modelFor(m *string, u Usage, res *Reservation) *string {
	if m != nil {
		return m
	}
	if u.Model != "" {
		model := u.Model
		return &model
	}
	return res.Model
}
