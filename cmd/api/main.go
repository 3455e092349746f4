package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog/log"

	"github.com/helpmaton/billing-api/internal/config"
	"github.com/helpmaton/billing-api/internal/domain/ledger"
	"github.com/helpmaton/billing-api/internal/domain/limits"
	"github.com/helpmaton/billing-api/internal/domain/metering"
	"github.com/helpmaton/billing-api/internal/domain/pricing"
	"github.com/helpmaton/billing-api/internal/domain/usagefeed"
	"github.com/helpmaton/billing-api/internal/domain/workspace"
	"github.com/helpmaton/billing-api/internal/middleware"
	"github.com/helpmaton/billing-api/internal/pkg/database"
	"github.com/helpmaton/billing-api/internal/pkg/jwt"
	"github.com/helpmaton/billing-api/internal/pkg/logger"
	pkgresponse "github.com/helpmaton/billing-api/internal/pkg/response"
	"github.com/helpmaton/billing-api/internal/pkg/secrets"
)

func main() {
	cfg := config.Load()
	setupLogger(cfg)

	log.Info().
		Str("env", cfg.Env).
		Str("port", cfg.Port).
		Msg("Starting billing API")

	db, err := database.NewPostgres(cfg.DatabaseURL)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to connect to PostgreSQL")
	}
	defer database.ClosePostgres(db)

	redis, err := database.NewRedis(cfg.RedisURL)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to connect to Redis")
	}
	defer database.CloseRedis(redis)

	jwtService := jwt.NewService(cfg.JWTSecret, cfg.JWTTTL)

	var byokBox *secrets.Box
	if cfg.ByokEncryptionKey != "" {
		byokBox, err = secrets.NewBox(cfg.ByokEncryptionKey)
		if err != nil {
			log.Fatal().Err(err).Msg("Invalid BYOK encryption key")
		}
	}

	// ---------- Repositories ----------
	workspaceRepo := workspace.NewRepository(db)
	ledgerRepo := ledger.NewRepository(db, cfg.LedgerRetention)
	limitsRepo := limits.NewRepository(db)
	reservationRepo := metering.NewRepository(db)

	// ---------- Services ----------
	events := ledger.NewPublisher(redis)
	writer := ledger.NewWriter(ledgerRepo, events)
	evaluator := limits.NewEvaluator(limitsRepo, ledgerRepo, limits.WindowPolicy(cfg.LimitWindowPolicy))
	oracle := pricing.NewTableOracle(pricing.DefaultRates(), pricing.DefaultFallbackRate())
	verifyQueue := metering.NewRedisQueue(redis)
	workspaceService := workspace.NewService(workspaceRepo, byokBox)

	meteringService := metering.NewService(
		db, reservationRepo, writer, evaluator, workspaceRepo,
		oracle, verifyQueue,
		metering.Options{
			LimitsEnabled:     cfg.SpendingLimitsEnabled,
			ReservationTTL:    cfg.ReservationTTL,
			DefaultMaxRetries: cfg.ReserveMaxRetry,
		},
	)

	// ---------- Usage feed hub ----------
	feedHub := usagefeed.NewHub(redis)
	go feedHub.Run()
	defer feedHub.Shutdown()

	// ---------- Handlers ----------
	workspaceHandler := workspace.NewHandler(workspaceService)
	ledgerHandler := ledger.NewHandler(writer)
	limitsHandler := limits.NewHandler(limitsRepo)
	meteringHandler := metering.NewHandler(meteringService)
	feedHandler := usagefeed.NewHandler(feedHub, cfg.AllowedOrigins)

	authMiddleware := middleware.Auth(jwtService)

	// ---------- Router ----------
	r := chi.NewRouter()

	r.Use(chimw.RealIP)
	r.Use(middleware.RequestID)
	r.Use(middleware.Logger)
	r.Use(middleware.Recover)
	r.Use(middleware.CORSHandler(cfg.AllowedOrigins))

	// WebSocket usage feed (token via query param, before Compress)
	r.Get("/ws/usage/{workspaceID}/feed", func(w http.ResponseWriter, r *http.Request) {
		token := r.URL.Query().Get("token")
		if token != "" {
			r.Header.Set("Authorization", "Bearer "+token)
		}
		authMiddleware(http.HandlerFunc(feedHandler.Feed)).ServeHTTP(w, r)
	})

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		pkgresponse.OK(w, map[string]string{
			"status":  "ok",
			"version": "1.0.0",
		})
	})

	r.Route("/api/v1", func(r chi.Router) {
		r.Use(chimw.Compress(5))

		r.Get("/ping", func(w http.ResponseWriter, r *http.Request) {
			pkgresponse.OK(w, map[string]string{"message": "pong"})
		})

		r.Mount("/workspaces", workspaceHandler.Routes(authMiddleware))
		r.Mount("/billing", meteringHandler.Routes(authMiddleware))
		r.Mount("/ledger", ledgerHandler.Routes(authMiddleware))
		r.Mount("/spending", limitsHandler.Routes(authMiddleware))
		r.Mount("/usage", feedHandler.Routes(authMiddleware))
	})

	server := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      r,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		log.Info().Str("addr", server.Addr).Msg("HTTP server listening")
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("HTTP server error")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info().Msg("Shutting down server...")

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		log.Fatal().Err(err).Msg("Server forced to shutdown")
	}

	log.Info().Msg("Server exited properly")
}

func setupLogger(cfg *config.Config) {
	if err := logger.Init(logger.Config{Level: cfg.LogLevel, Environment: cfg.Env}); err != nil {
		log.Fatal().Err(err).Msg("Failed to init logger")
	}
}
