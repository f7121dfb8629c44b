package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/iudanet/playerid/internal/config"
	"github.com/iudanet/playerid/internal/logging"
	"github.com/iudanet/playerid/internal/models"
	"github.com/iudanet/playerid/internal/server/auth"
	"github.com/iudanet/playerid/internal/server/events"
	"github.com/iudanet/playerid/internal/server/handlers"
	"github.com/iudanet/playerid/internal/server/middleware"
	"github.com/iudanet/playerid/internal/server/provider"
	"github.com/iudanet/playerid/internal/server/storage/sqlite"
)

var (
	// Version information set via ldflags during build
	Version   = "dev"
	BuildDate = "unknown"
	GitCommit = "unknown"
)

const tokenCleanupInterval = time.Hour

func main() {
	os.Exit(run())
}

func run() int {
	cfg, err := config.LoadServer(os.Args[1:])
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return 2
	}

	// Show version and exit if requested
	if cfg.ShowVersion {
		printVersion()
		return 0
	}

	if err := cfg.Validate(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return 2
	}

	logger, logCloser, err := logging.New(cfg.Log)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return 2
	}
	defer logCloser.Close() //nolint:errcheck

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := serve(ctx, cfg, logger); err != nil {
		logger.Error("server stopped with error", slog.Any("error", err))
		return 1
	}
	return 0
}

func serve(ctx context.Context, cfg *config.ServerConfig, logger *slog.Logger) error {
	// 1. Хранилище
	store, err := sqlite.New(ctx, cfg.DBPath)
	if err != nil {
		return fmt.Errorf("failed to open database: %w", err)
	}
	defer func() {
		if err := store.Close(); err != nil {
			logger.Error("failed to close database", slog.Any("error", err))
		}
	}()

	// 2. Приложения и выпуск токенов
	apps := make([]auth.App, 0, len(cfg.Apps))
	for id, app := range cfg.Apps {
		apps = append(apps, auth.App{ID: id, Environment: app.Environment, Secret: []byte(app.Secret)})
	}
	issuer := auth.NewIssuer(apps, cfg.AccessTokenTTL, cfg.RefreshTokenTTL)

	// 3. Провайдеры
	registry, err := buildProviders(ctx, cfg, logger)
	if err != nil {
		return err
	}

	hub := events.NewHub(logger)
	defer hub.CloseAll()

	limiter := middleware.NewRateLimiter(cfg.RateLimit, cfg.RateBurst, 10*time.Minute, logger)
	defer limiter.Stop()

	router := &handlers.Router{
		Logger:        logger,
		Auth:          handlers.NewAuthHandler(logger, store, store, issuer),
		Player:        handlers.NewPlayerHandler(logger, store),
		Links:         handlers.NewLinksHandler(logger, store, registry, hub, cfg.RevocationKey),
		Friends:       handlers.NewFriendsHandler(logger, store),
		Events:        handlers.NewEventsHandler(hub),
		Health:        handlers.NewHealthHandler(logger, store, Version),
		Metrics:       middleware.NewMetrics("playerid"),
		RateLimiter:   limiter,
		Authenticator: issuer,
	}

	srv := &http.Server{
		Addr:              cfg.Addr,
		Handler:           router.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	go cleanupTokens(ctx, store, logger)

	errCh := make(chan error, 1)
	go func() {
		logger.Info("server listening",
			slog.String("addr", cfg.Addr),
			slog.String("version", Version),
			slog.Int("apps", len(apps)))
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("listen: %w", err)
	case <-ctx.Done():
	}

	logger.Info("shutting down server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()

	// websocket соединения hijacked, Shutdown их не закрывает
	hub.CloseAll()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	return nil
}

// buildProviders настраивает OIDC exchangers из конфигурации.
// С dev_providers провайдеры без настроек принимают любой артефакт.
func buildProviders(ctx context.Context, cfg *config.ServerConfig, logger *slog.Logger) (*provider.Registry, error) {
	var fallback provider.Exchanger
	if cfg.DevProviders {
		logger.Warn("dev providers enabled: provider artifacts are not verified")
		fallback = provider.Dev{}
	}
	registry := provider.NewRegistry(fallback)

	for name, creds := range cfg.Providers {
		p, err := models.ParseProvider(name)
		if err != nil {
			return nil, err
		}

		discoverCtx, cancel := context.WithTimeout(ctx, 15*time.Second)
		exchanger, err := provider.Discover(discoverCtx, provider.Credentials{
			ClientID:     creds.ClientID,
			ClientSecret: creds.ClientSecret,
			Issuer:       creds.Issuer,
			Scopes:       creds.Scopes,
		})
		cancel()
		if err != nil {
			return nil, fmt.Errorf("provider %s: %w", p, err)
		}

		registry.Register(p, exchanger)
		logger.Info("provider configured", slog.String("provider", p.String()), slog.String("issuer", creds.Issuer))
	}

	return registry, nil
}

func cleanupTokens(ctx context.Context, store *sqlite.Storage, logger *slog.Logger) {
	ticker := time.NewTicker(tokenCleanupInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			n, err := store.DeleteExpiredTokens(ctx, now)
			if err != nil {
				logger.Error("failed to delete expired tokens", slog.Any("error", err))
				continue
			}
			if n > 0 {
				logger.Info("expired refresh tokens deleted", slog.Int("count", n))
			}
		}
	}
}

func printVersion() {
	fmt.Printf("PlayerID Server\n")
	fmt.Printf("Version:    %s\n", Version)
	fmt.Printf("Build Date: %s\n", BuildDate)
	fmt.Printf("Git Commit: %s\n", GitCommit)
}
