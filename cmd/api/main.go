// Command api runs the card catalog and deck building service.
package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"cardvault-backend/internal/cache"
	"cardvault-backend/internal/config"
	"cardvault-backend/internal/coordination"
	"cardvault-backend/internal/dispatcher"
	"cardvault-backend/internal/handlers"
	"cardvault-backend/internal/lock"
	"cardvault-backend/internal/observability"
	"cardvault-backend/internal/queue"
	"cardvault-backend/internal/ratelimit"
	"cardvault-backend/internal/repository/postgres"
	"cardvault-backend/internal/service/card"
	"cardvault-backend/internal/service/deck"
	"cardvault-backend/internal/service/seed"
	"cardvault-backend/internal/service/token"
	"cardvault-backend/pkg/auth"

	"go.uber.org/zap"
)

const refreshCleanupInterval = time.Hour

func main() {
	logger, err := zap.NewProduction()
	if err != nil {
		panic(err)
	}
	defer logger.Sync()

	if err := run(logger); err != nil {
		logger.Fatal("service exited", zap.Error(err))
	}
}

func run(logger *zap.Logger) error {
	cfg := config.LoadConfig()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	db, err := postgres.Open(cfg.DatabaseURL)
	if err != nil {
		return err
	}
	defer db.Close()

	redisClient := coordination.NewRedisClient(cfg.Redis.Addr(), cfg.Redis.Password)
	defer redisClient.Close()
	store := coordination.NewRedisStore(redisClient)

	privatePEM, err := os.ReadFile(cfg.JWT.PrivateKeyPath)
	if err != nil {
		return err
	}
	publicPEM, err := os.ReadFile(cfg.JWT.PublicKeyPath)
	if err != nil {
		return err
	}
	tokens, err := auth.NewTokenServiceFromPEM(privatePEM, publicPEM, cfg.JWT.AccessTTL)
	if err != nil {
		return err
	}

	cardRepo := postgres.NewCardRepository(db)
	archetypeRepo := postgres.NewArchetypeRepository(db)
	deckRepo := postgres.NewDeckRepository(db)
	userRepo := postgres.NewUserRepository(db)
	refreshRepo := postgres.NewRefreshTokenRepository(db)

	cardCache := cache.NewNamespace(store, "cards", cfg.CacheTTL, logger)
	locks := lock.New(store, logger)
	limiter := ratelimit.New(store, logger)
	workQueue := queue.New(store, logger)

	catalogService := card.NewService(cardRepo, archetypeRepo, deckRepo, cardCache, workQueue, logger)
	deckService := deck.NewService(deckRepo, cardRepo, locks, logger)
	tokenService := token.NewService(userRepo, refreshRepo, tokens, cfg.JWT.RefreshTTL, logger)
	importer := seed.NewCardImporter(cfg.UpstreamCatalogURL, cardRepo, catalogService, logger)
	batchRunner := card.NewBatchRunner(catalogService, logger)
	eventDispatcher := dispatcher.New(workQueue, catalogService, nil, logger)

	if err := seed.SeedUsers(ctx, userRepo, logger); err != nil {
		return err
	}
	if cfg.SeedOnStartup {
		importer.RunInitialImport(ctx)
	}

	go eventDispatcher.Start(ctx)
	go batchRunner.Start(ctx)
	go tokenService.StartCleanupLoop(ctx, refreshCleanupInterval)

	metrics := observability.NewMetrics()
	router := handlers.NewRouter(handlers.RouterDeps{
		Auth:       handlers.NewAuthHandler(tokenService, logger),
		Cards:      handlers.NewCardHandler(catalogService, logger),
		Ops:        handlers.NewOpsHandler(catalogService, batchRunner, workQueue, importer, logger),
		Decks:      handlers.NewDeckHandler(deckService, logger),
		Archetypes: handlers.NewArchetypeHandler(archetypeRepo, logger),
		Users:      handlers.NewUserHandler(userRepo, logger),
		Tokens:     tokens,
		Limiter:    limiter,
		Metrics:    metrics,
		Health:     observability.NewHealthHandler(catalogService, cfg.MinHealthyCards, logger),
		Logger:     logger,
	})

	server := &http.Server{
		Addr:              cfg.ListenAddr,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("listening", zap.String("addr", cfg.ListenAddr))
		errCh <- server.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	logger.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}
