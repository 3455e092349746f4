package main

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"

	"github.com/helpmaton/billing-api/internal/config"
	"github.com/helpmaton/billing-api/internal/domain/ledger"
	"github.com/helpmaton/billing-api/internal/domain/limits"
	"github.com/helpmaton/billing-api/internal/domain/metering"
	"github.com/helpmaton/billing-api/internal/domain/pricing"
	"github.com/helpmaton/billing-api/internal/domain/workspace"
	"github.com/helpmaton/billing-api/internal/pkg/database"
	"github.com/helpmaton/billing-api/internal/pkg/logger"
	"github.com/helpmaton/billing-api/internal/pkg/openrouter"
)

const (
	pollInterval = 5 * time.Second
	sweepLimit   = 50
)

// verify-worker settles reservations whose cost was only retrievable
// asynchronously: it polls the supplier's generation endpoint for the final
// cost and closes the reservation through the normal settlement path.
// Tasks arrive over the Redis queue; a periodic DB sweep catches any that
// were lost. Both paths are safe to repeat because settlement is idempotent.
func main() {
	cfg := config.Load()
	setupLogger(cfg)

	log.Info().Msg("Starting verify-worker")

	db, err := database.NewPostgres(cfg.DatabaseURL)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to connect to PostgreSQL")
	}
	defer database.ClosePostgres(db)

	rdb, err := database.NewRedis(cfg.RedisURL)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to connect to Redis")
	}
	defer database.CloseRedis(rdb)

	workspaceRepo := workspace.NewRepository(db)
	ledgerRepo := ledger.NewRepository(db, cfg.LedgerRetention)
	limitsRepo := limits.NewRepository(db)
	reservationRepo := metering.NewRepository(db)

	events := ledger.NewPublisher(rdb)
	writer := ledger.NewWriter(ledgerRepo, events)
	evaluator := limits.NewEvaluator(limitsRepo, ledgerRepo, limits.WindowPolicy(cfg.LimitWindowPolicy))
	oracle := pricing.NewTableOracle(pricing.DefaultRates(), pricing.DefaultFallbackRate())
	queue := metering.NewRedisQueue(rdb)

	meteringService := metering.NewService(
		db, reservationRepo, writer, evaluator, workspaceRepo,
		oracle, queue,
		metering.Options{
			LimitsEnabled:     false,
			ReservationTTL:    cfg.ReservationTTL,
			DefaultMaxRetries: cfg.ReserveMaxRetry,
		},
	)

	provider := openrouter.NewClient(cfg.OpenRouterBaseURL, cfg.OpenRouterAPIKey, cfg.OpenRouterTimeout)

	w := &worker{
		reservations: reservationRepo,
		metering:     meteringService,
		provider:     provider,
		queue:        queue,
		maxAttempts:  cfg.VerifyMaxAttempt,
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	wake := make(chan struct{}, 1)
	go subscribeWakeups(ctx, rdb, wake)

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGTERM, syscall.SIGINT)
	go func() {
		<-sigChan
		log.Info().Msg("Shutdown signal received")
		cancel()
	}()

	ticker := time.NewTicker(pollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			log.Info().Msg("verify-worker stopped")
			return
		case <-wake:
			// immediate drain
		case <-ticker.C:
		}

		w.drainQueue(ctx)
		w.sweepPending(ctx)
	}
}

type worker struct {
	reservations *metering.Repository
	metering     *metering.Service
	provider     *openrouter.Client
	queue        *metering.RedisQueue
	maxAttempts  int
}

// drainQueue processes queued tasks until the queue is empty.
func (w *worker) drainQueue(ctx context.Context) {
	for {
		task, ok, err := w.queue.Dequeue(ctx)
		if err != nil {
			log.Error().Err(err).Msg("Dequeue failed")
			return
		}
		if !ok {
			return
		}

		w.verify(ctx, task)

		select {
		case <-ctx.Done():
			return
		default:
		}
	}
}

// sweepPending re-checks open reservations with a generation id, in case
// their queued task was lost.
func (w *worker) sweepPending(ctx context.Context) {
	pending, err := w.reservations.ListPendingVerification(ctx, w.maxAttempts, sweepLimit)
	if err != nil {
		log.Error().Err(err).Msg("DB error while listing pending verifications")
		return
	}

	for i := range pending {
		res := &pending[i]
		w.verify(ctx, &metering.VerificationTask{
			GenerationID:   *res.ProviderGenerationID,
			WorkspaceID:    res.WorkspaceID,
			ReservationID:  res.ID,
			ConversationID: res.ConversationID,
			AgentID:        res.AgentID,
		})
	}
}

func (w *worker) verify(ctx context.Context, task *metering.VerificationTask) {
	start := time.Now()

	if err := w.reservations.IncrementVerifyAttempts(ctx, task.ReservationID); err != nil {
		log.Error().Err(err).Str("reservation_id", task.ReservationID.String()).Msg("Failed to bump verify attempts")
	}

	cost, err := w.provider.GenerationCostNanoUSD(ctx, task.GenerationID)
	if err != nil {
		switch {
		case errors.Is(err, openrouter.ErrGenerationNotReady):
			// Cost not final yet; the sweep will retry until attempts run out.
			log.Debug().
				Str("generation_id", task.GenerationID).
				Str("reservation_id", task.ReservationID.String()).
				Msg("Generation cost not ready")
		case errors.Is(err, openrouter.ErrGenerationNotFound):
			log.Warn().
				Str("generation_id", task.GenerationID).
				Str("reservation_id", task.ReservationID.String()).
				Msg("Generation unknown to provider; reservation left for TTL purge")
		default:
			log.Error().Err(err).
				Str("generation_id", task.GenerationID).
				Msg("Cost lookup failed")
		}
		return
	}

	result, err := w.metering.Settle(ctx, metering.SettleParams{
		ReservationID:  task.ReservationID,
		WorkspaceID:    task.WorkspaceID,
		Usage:          metering.Usage{CostNanoUSD: &cost},
		AgentID:        task.AgentID,
		ConversationID: task.ConversationID,
		Description:    "verified supplier cost",
	})
	if err != nil {
		if errors.Is(err, metering.ErrReservationNotFound) {
			// Already settled or refunded; nothing to do.
			log.Debug().Str("reservation_id", task.ReservationID.String()).Msg("Reservation already closed")
			return
		}
		log.Error().Err(err).
			Str("reservation_id", task.ReservationID.String()).
			Msg("Deferred settlement failed")
		return
	}

	log.Info().
		Str("reservation_id", task.ReservationID.String()).
		Str("generation_id", task.GenerationID).
		Int64("actual_cost_nano_usd", result.ActualCostNanoUSD).
		Int64("amount_nano_usd", result.AmountNanoUSD).
		Dur("took", time.Since(start)).
		Msg("Deferred settlement done")
}

func subscribeWakeups(ctx context.Context, rdb *redis.Client, wake chan<- struct{}) {
	sub := rdb.Subscribe(ctx, metering.WakeChannel)
	defer func() { _ = sub.Close() }()

	for {
		select {
		case <-ctx.Done():
			return
		case <-sub.Channel():
			select {
			case wake <- struct{}{}:
			default:
			}
		}
	}
}

func setupLogger(cfg *config.Config) {
	if err := logger.Init(logger.Config{Level: cfg.LogLevel, Environment: cfg.Env}); err != nil {
		log.Fatal().Err(err).Msg("Failed to init logger")
	}
}
