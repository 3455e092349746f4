package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/helpmaton/billing-api/internal/config"
	"github.com/helpmaton/billing-api/internal/domain/ledger"
	"github.com/helpmaton/billing-api/internal/domain/metering"
	"github.com/helpmaton/billing-api/internal/pkg/database"
	"github.com/helpmaton/billing-api/internal/pkg/logger"
	"github.com/helpmaton/billing-api/internal/pkg/storage"
)

const (
	sweepInterval = 10 * time.Minute
	archiveBatch  = 500
)

// retention-worker enforces the data lifecycle: it purges expired
// reservations (abandoned holds stay debited), archives ledger rows past
// their retention TTL to the object store before deleting them, and logs a
// reconciliation figure of balance held by open reservations.
func main() {
	cfg := config.Load()
	setupLogger(cfg)

	log.Info().Msg("Starting retention-worker")

	db, err := database.NewPostgres(cfg.DatabaseURL)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to connect to PostgreSQL")
	}
	defer database.ClosePostgres(db)

	var archive storage.Storage
	if cfg.S3AccessKey != "" {
		archive, err = storage.NewS3Storage(storage.Config{
			S3Endpoint:  cfg.S3Endpoint,
			S3Region:    cfg.S3Region,
			S3AccessKey: cfg.S3AccessKey,
			S3SecretKey: cfg.S3SecretKey,
			S3Bucket:    cfg.S3Bucket,
		})
		if err != nil {
			log.Fatal().Err(err).Msg("Failed to create archive storage client")
		}
	} else {
		log.Warn().Msg("No archive credentials configured; expired ledger rows will be kept")
	}

	ledgerRepo := ledger.NewRepository(db, cfg.LedgerRetention)
	reservationRepo := metering.NewRepository(db)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGTERM, syscall.SIGINT)
	go func() {
		<-sigChan
		log.Info().Msg("Shutdown signal received")
		cancel()
	}()

	ticker := time.NewTicker(sweepInterval)
	defer ticker.Stop()

	// First sweep right away, then on the ticker.
	for {
		sweep(ctx, ledgerRepo, reservationRepo, archive)

		select {
		case <-ctx.Done():
			log.Info().Msg("retention-worker stopped")
			return
		case <-ticker.C:
		}
	}
}

func sweep(ctx context.Context, ledgerRepo *ledger.Repository, reservations *metering.Repository, archive storage.Storage) {
	purgeReservations(ctx, reservations)
	archiveLedger(ctx, ledgerRepo, archive)
	reconcile(ctx, reservations)
}

// purgeReservations drops reservations past their TTL. The held amount is
// NOT credited back: an abandoned hold stays debited, and the caller that
// never settled it eats the estimate.
func purgeReservations(ctx context.Context, reservations *metering.Repository) {
	count, totalNanoUSD, err := reservations.PurgeExpired(ctx, time.Now().UTC())
	if err != nil {
		log.Error().Err(err).Msg("Failed to purge expired reservations")
		return
	}
	if count == 0 {
		return
	}

	log.Warn().
		Int("count", count).
		Int64("abandoned_nano_usd", totalNanoUSD).
		Msg("Purged expired reservations; held amounts stay debited")
}

// archiveLedger moves ledger rows past their retention TTL to the object
// store as JSON lines, one batch per object, then deletes them.
func archiveLedger(ctx context.Context, ledgerRepo *ledger.Repository, archive storage.Storage) {
	if archive == nil {
		return
	}

	now := time.Now().UTC()
	expired, err := ledgerRepo.ListExpired(ctx, now, archiveBatch)
	if err != nil {
		log.Error().Err(err).Msg("Failed to list expired ledger rows")
		return
	}
	if len(expired) == 0 {
		return
	}

	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	for i := range expired {
		if err := enc.Encode(&expired[i]); err != nil {
			log.Error().Err(err).Msg("Failed to encode ledger row for archive")
			return
		}
	}

	key := fmt.Sprintf("ledger/%s/%d.jsonl", now.Format("2006/01/02"), now.UnixNano())
	if err := archive.Put(ctx, key, bytes.NewReader(buf.Bytes()), "application/x-ndjson"); err != nil {
		log.Error().Err(err).Str("key", key).Msg("Failed to write ledger archive")
		return
	}

	deleted := 0
	for i := range expired {
		if err := ledgerRepo.Delete(ctx, expired[i].WorkspaceID, expired[i].SK); err != nil {
			log.Error().Err(err).
				Str("workspace_id", expired[i].WorkspaceID.String()).
				Str("sk", expired[i].SK).
				Msg("Failed to delete archived ledger row")
			continue
		}
		deleted++
	}

	log.Info().
		Str("key", key).
		Int("archived", len(expired)).
		Int("deleted", deleted).
		Msg("Ledger rows archived")
}

// reconcile logs the total amount currently held by open reservations, for
// comparison against balances in monitoring.
func reconcile(ctx context.Context, reservations *metering.Repository) {
	heldNanoUSD, err := reservations.SumOpenHolds(ctx)
	if err != nil {
		log.Error().Err(err).Msg("Failed to sum open holds")
		return
	}

	log.Info().
		Int64("open_holds_nano_usd", heldNanoUSD).
		Float64("open_holds_usd", ledger.NanoToUSD(heldNanoUSD)).
		Msg("Reconciliation sweep")
}

func setupLogger(cfg *config.Config) {
	if err := logger.Init(logger.Config{Level: cfg.LogLevel, Environment: cfg.Env}); err != nil {
		log.Fatal().Err(err).Msg("Failed to init logger")
	}
}
