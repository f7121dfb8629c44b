package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/iudanet/playerid/internal/client/api"
	"github.com/iudanet/playerid/internal/client/auth"
	"github.com/iudanet/playerid/internal/client/cli"
	"github.com/iudanet/playerid/internal/client/iocli"
	"github.com/iudanet/playerid/internal/client/linking"
	"github.com/iudanet/playerid/internal/client/notify"
	"github.com/iudanet/playerid/internal/client/oauth"
	"github.com/iudanet/playerid/internal/client/session"
	"github.com/iudanet/playerid/internal/client/storage/boltdb"
	"github.com/iudanet/playerid/internal/config"
	"github.com/iudanet/playerid/internal/logging"
	"github.com/iudanet/playerid/internal/models"
)

var (
	// Version information set via ldflags during build
	Version   = "dev"
	BuildDate = "unknown"
	GitCommit = "unknown"
)

func main() {
	os.Exit(run())
}

func run() int {
	cfg, args, err := config.LoadClient(os.Args[1:])
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return 2
	}

	// Show version and exit if requested
	if cfg.ShowVersion {
		printVersion()
		return 0
	}

	if len(args) == 0 {
		cli.PrintUsage(os.Stdout)
		return 1
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

	// Открываем BoltDB storage
	store, err := boltdb.New(ctx, cfg.DBPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to open database: %v\n", err)
		return 1
	}
	defer func() {
		if err := store.Close(); err != nil {
			logger.Error("failed to close database", slog.Any("error", err))
		}
	}()

	// Создаем API клиент
	apiClient := api.NewClient(cfg.ServerURL,
		api.WithTimeout(cfg.HTTPTimeout),
		api.WithLogger(logger),
		api.WithUserAgent("playerid-cli/"+Version),
	)

	tokens := auth.NewManager(apiClient, auth.Config{
		AppID:        cfg.AppID,
		Environment:  cfg.Environment,
		AppSecret:    []byte(cfg.AppSecret),
		Platform:     cfg.Platform,
		Version:      cfg.Version,
		Build:        cfg.Build,
		SafetyMargin: cfg.SafetyMargin,
	},
		auth.WithTokenStore(auth.NewTokenStore(store)),
		auth.WithLogger(logger),
	)

	authorizer := oauth.NewAuthorizer(providerConfigs(cfg), oauth.BrowserOpener(os.Stdout), oauth.WithLogger(logger))
	links := linking.NewManager(apiClient, tokens, authorizer, store, logger)
	defer links.Wait()

	sess := session.New(tokens, apiClient,
		session.WithMetadataStorage(store),
		session.WithLinkStorage(store),
		session.WithLogger(logger),
	)
	defer sess.Close()

	listener, err := notify.NewListener(cfg.ServerURL, tokens, links, notify.WithLogger(logger))
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return 2
	}

	c := cli.New(cfg, cli.Deps{
		IO:       iocli.NewStdio(),
		Session:  sess,
		Links:    links,
		Friends:  apiClient,
		Tokens:   tokens,
		Listener: listener,
		Devices:  store,
	})

	if err := c.Run(ctx, args[0], args[1:]); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return 1
	}
	return 0
}

// providerConfigs дополняет настройки провайдеров известными endpoint
func providerConfigs(cfg *config.ClientConfig) map[models.Provider]oauth.ProviderConfig {
	out := make(map[models.Provider]oauth.ProviderConfig, len(cfg.Providers))
	for name, client := range cfg.Providers {
		provider, err := models.ParseProvider(name)
		if err != nil {
			continue
		}
		endpoint, ok := oauth.DefaultEndpoint(provider)
		if !ok {
			continue
		}
		scopes := client.Scopes
		if len(scopes) == 0 {
			scopes = oauth.DefaultScopes(provider)
		}
		out[provider] = oauth.ProviderConfig{
			Endpoint: endpoint,
			ClientID: client.ClientID,
			Scopes:   scopes,
		}
	}
	return out
}

func printVersion() {
	fmt.Printf("playerid client\n")
	fmt.Printf("Version:    %s\n", Version)
	fmt.Printf("Build Date: %s\n", BuildDate)
	fmt.Printf("Git Commit: %s\n", GitCommit)
}
