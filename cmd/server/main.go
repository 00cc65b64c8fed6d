package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/sirupsen/logrus"

	"github.com/emiac1617/payment-reconciliation/internal/cache"
	"github.com/emiac1617/payment-reconciliation/internal/config"
	"github.com/emiac1617/payment-reconciliation/internal/httpapi"
	"github.com/emiac1617/payment-reconciliation/internal/logging"
	"github.com/emiac1617/payment-reconciliation/internal/provider"
	"github.com/emiac1617/payment-reconciliation/internal/reconcile"
	"github.com/emiac1617/payment-reconciliation/internal/service"
	"github.com/emiac1617/payment-reconciliation/internal/store"
	"github.com/emiac1617/payment-reconciliation/internal/store/memory"
	pgstore "github.com/emiac1617/payment-reconciliation/internal/store/postgres"
	"github.com/emiac1617/payment-reconciliation/internal/store/remote"
)

func main() {
	// A missing .env is fine; the environment may already be populated.
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		logrus.Fatalf("load config: %v", err)
	}
	logger := logging.New(cfg.LogLevel, cfg.LogFormat)
	if err := validateSecurityConfig(cfg); err != nil {
		logger.Fatalf("invalid security configuration: %v", err)
	}
	loc, err := cfg.Location()
	if err != nil {
		logger.Fatalf("invalid timezone: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	registry := provider.Default()
	var repo store.Repository
	closers := make([]func() error, 0, 2)

	if cfg.DatabaseURL != "" {
		pg, err := pgstore.New(ctx, cfg.DatabaseURL, registry.Names())
		if err != nil {
			logger.Fatalf("postgres unavailable (%v) and DATABASE_URL is set; refusing to start with in-memory fallback", err)
		}
		repo = pg
		closers = append(closers, pg.Close)
		logger.Info("repository: postgres")
	} else {
		repo = memory.NewSeeded()
		logger.Info("repository: in-memory seed")
	}

	sourceCache := cache.SourceCache(cache.NoopSourceCache{})
	if cfg.RedisAddr != "" {
		redisCache := cache.NewRedisSourceCache(cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB)
		if err := redisCache.Ping(ctx); err != nil {
			logger.WithError(err).Warn("redis unavailable, using noop cache")
		} else {
			sourceCache = redisCache
			closers = append(closers, redisCache.Close)
			logger.Info("cache: redis")
		}
	} else {
		logger.Info("cache: noop")
	}

	creditNotes := store.FallbackCreditNotes{
		Secondary: repo,
		Log:       logger.WithField("component", "store.remote"),
	}
	if cfg.CreditNotesURL != "" {
		client, err := remote.NewCreditNoteClient(cfg.CreditNotesURL, cfg.CreditNotesToken, cfg.CreditNotesTimeout)
		if err != nil {
			logger.Fatalf("credit notes client: %v", err)
		}
		creditNotes.Primary = client
	}

	var placeholders reconcile.PlaceholderPolicy = reconcile.DefaultPlaceholders{}
	if cfg.PlaceholderTransactionTypes {
		placeholders = reconcile.VocabularyPlaceholders{}
	}

	svc := service.New(repo, repo, creditNotes, sourceCache, registry, service.Options{
		CacheTTL:     cfg.SourceCacheTTL,
		Location:     loc,
		Placeholders: placeholders,
		Logger:       logrus.NewEntry(logger),
	})
	auth := httpapi.NewAuthManager(repo, httpapi.AuthOptions{
		Secret:       cfg.AuthSecret,
		TokenTTL:     cfg.AccessTokenTTL,
		ServiceToken: cfg.ServiceToken,
	})
	api := httpapi.New(svc, auth, httpapi.Options{
		AllowedOrigin:  cfg.AllowedOrigin,
		LoginRateLimit: cfg.LoginRateLimit,
		Production:     cfg.IsProduction(),
		Logger:         logrus.NewEntry(logger),
	})

	if _, err := svc.Load(ctx); err != nil {
		logging.LogError(logger, "service", "Load", nil, err)
	}

	server := &http.Server{
		Addr:              cfg.Address(),
		Handler:           api.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       10 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	go func() {
		logger.Infof("payment reconciliation listening on %s", cfg.Address())
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatalf("server error: %v", err)
		}
	}()

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	<-sig

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 8*time.Second)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logging.LogError(logger, "server", "Shutdown", nil, err)
	}

	for _, closeFn := range closers {
		if err := closeFn(); err != nil {
			logging.LogError(logger, "server", "Close", nil, err)
		}
	}

	logger.Info("server stopped")
}

func validateSecurityConfig(cfg config.Config) error {
	if len(cfg.AuthSecret) < 32 {
		return fmt.Errorf("AUTH_SECRET must be set and at least 32 characters")
	}
	if cfg.ServiceToken != "" && len(cfg.ServiceToken) < 32 {
		return fmt.Errorf("SERVICE_TOKEN must be at least 32 characters when set")
	}
	if cfg.AllowedOrigin == "*" && cfg.IsProduction() {
		return fmt.Errorf("ALLOWED_ORIGIN must name an origin in production")
	}
	return nil
}
