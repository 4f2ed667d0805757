package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/vipul43/mailpilot/internal/api"
	"github.com/vipul43/mailpilot/internal/auth"
	"github.com/vipul43/mailpilot/internal/config"
	"github.com/vipul43/mailpilot/internal/database"
	"github.com/vipul43/mailpilot/internal/gmail"
	"github.com/vipul43/mailpilot/internal/logger"
	"github.com/vipul43/mailpilot/internal/recaptcha"
	"github.com/vipul43/mailpilot/internal/repository"
	"github.com/vipul43/mailpilot/internal/service"
	"github.com/vipul43/mailpilot/internal/summarizer"
	"github.com/vipul43/mailpilot/internal/throttle"
	"github.com/vipul43/mailpilot/internal/watcher"
)

func main() {
	if err := run(); err != nil {
		log.Fatalf("Application error: %v", err)
	}
}

func run() error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}

	logg, err := logger.New(cfg.LogLevel)
	if err != nil {
		return err
	}
	defer logg.Sync()

	db, err := database.Connect(cfg.DatabaseURL)
	if err != nil {
		return err
	}
	defer database.Close(db)
	logg.Info("database connected")

	if err := database.RunMigrations(db); err != nil {
		return err
	}
	logg.Info("migrations completed")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	emailRepo := repository.NewEmailRepository(db)
	keywordRepo := repository.NewKeywordRepository(db)

	summaries, err := summarizer.New(summarizer.Config{
		Provider:            summarizer.ProviderType(cfg.SummarizerProvider),
		HuggingFaceModelURL: cfg.HuggingFaceModelURL,
		HuggingFaceAPIToken: cfg.HuggingFaceAPIToken,
		OpenRouterAPIKey:    cfg.OpenRouterAPIKey,
		OpenRouterModel:     cfg.OpenRouterModel,
	}, logg)
	if err != nil {
		return err
	}
	logg.Info("summarizer configured", zap.Strings("providers", summaries.Providers()))

	callTimeout := cfg.Sync.CallTimeoutDuration()

	enricher := service.NewEnricher(emailRepo, summaries, cfg.Sync.EnrichmentWorkers, cfg.Sync.EnrichmentQueueSize, callTimeout, logg)
	enricher.Start()
	defer enricher.Stop()

	mailClient := gmail.NewClient(logg)
	syncer := service.NewEmailSyncer(mailClient, emailRepo, enricher, service.SyncOptions{
		MaxEmailsPerUser: cfg.Sync.MaxEmailsPerUser,
		TargetFetch:      cfg.Sync.TargetFetch,
		BatchSize:        cfg.Sync.BatchSize,
		CallTimeout:      callTimeout,
	}, logg)

	provider := auth.NewProvider(auth.Config{
		ClientID:     cfg.GoogleClientID,
		ClientSecret: cfg.GoogleClientSecret,
		RedirectURI:  cfg.GoogleRedirectURI,
		StateSecret:  cfg.StateSecret,
	}, auth.NewTokenStore(), logg)

	query := service.NewEmailQuery(emailRepo, keywordRepo, logg)
	dashboard := service.NewDashboard(provider, mailClient, syncer, query, service.NewDigestComposer(time.Now), callTimeout, logg)

	limiter, err := newLimiter(ctx, cfg, logg)
	if err != nil {
		return err
	}

	handler := api.NewHandler(api.Deps{
		UserID:      cfg.DemoUserID,
		FrontendURL: cfg.FrontendURL,
		Auth:        provider,
		Syncer:      syncer,
		Dashboard:   dashboard,
		Keywords:    query,
		Captcha:     recaptcha.NewClient(cfg.RecaptchaSecretKey, cfg.RecaptchaSiteKey),
		Limiter:     limiter,
		Log:         logg,
	})

	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           api.NewRouter(handler, cfg.AllowedOrigins),
		ReadHeaderTimeout: 10 * time.Second,
	}

	w := watcher.New(time.Duration(cfg.SyncInterval)*time.Second, cfg.DemoUserID, provider, syncer, enricher, logg)

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	errChan := make(chan error, 2)
	go func() {
		logg.Info("http server listening", zap.String("addr", srv.Addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errChan <- fmt.Errorf("http server: %w", err)
		}
	}()
	go func() {
		if err := w.Start(ctx); err != nil && !errors.Is(err, context.Canceled) {
			errChan <- fmt.Errorf("watcher: %w", err)
		}
	}()

	select {
	case <-sigChan:
		logg.Info("shutdown signal received")
	case err := <-errChan:
		return err
	}

	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), time.Duration(cfg.ShutdownTimeout)*time.Second)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logg.Warn("http server shutdown incomplete", zap.Error(err))
	}

	logg.Info("application stopped")
	return nil
}

// newLimiter shares the sync throttle through Redis when configured
func newLimiter(ctx context.Context, cfg *config.Config, logg *zap.Logger) (throttle.Limiter, error) {
	if cfg.RedisAddr == "" {
		return throttle.NewMemoryLimiter(cfg.Sync.LimitPerHour, time.Hour), nil
	}

	client, err := throttle.NewRedisClient(ctx, cfg.RedisAddr, cfg.RedisPassword)
	if err != nil {
		return nil, err
	}
	logg.Info("sync throttle backed by redis", zap.String("addr", cfg.RedisAddr))
	return throttle.NewRedisLimiter(client, cfg.Sync.LimitPerHour, time.Hour), nil
}
