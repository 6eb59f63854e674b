package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"example.com/mindfeed/cmd/server"
	"example.com/mindfeed/cmd/web"
	"example.com/mindfeed/cmd/worker"
	appkafka "example.com/mindfeed/internal/broker"
	"example.com/mindfeed/internal/content"
	"example.com/mindfeed/internal/gateway"
	config "example.com/mindfeed/internal/init"
	"example.com/mindfeed/internal/logger"
	"example.com/mindfeed/internal/session"
	"example.com/mindfeed/internal/store"
	"example.com/mindfeed/internal/tokens"
	"github.com/spf13/cobra"
)

var logg = logger.New()

func main() {
	root := &cobra.Command{
		Use:           "mindfeed [server|worker|web]",
		Short:         "Social feed backend, fan-out worker and web tier",
		SilenceUsage:  true,
		SilenceErrors: true,
		Args:          cobra.NoArgs,
		// Without a subcommand the configured MODE decides
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(cmd.Context(), config.Init().Mode)
		},
	}
	for _, mode := range []string{"server", "worker", "web"} {
		root.AddCommand(&cobra.Command{
			Use:   mode,
			Short: "Run in " + mode + " mode",
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, args []string) error {
				config.Init()
				return run(cmd.Context(), mode)
			},
		})
	}

	// Setup OS signal handling for graceful shutdown (SIGINT, SIGTERM)
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := root.ExecuteContext(ctx); err != nil {
		logg.Error("main", "Exited with error", err)
		_ = logg.Sync()
		stop()
		os.Exit(1)
	}
	logg.Info("main", "Shutdown completed")
	// stdout may reject fsync when it is a terminal
	_ = logg.Sync()
}

// run starts the component selected by mode and blocks until ctx is done.
func run(ctx context.Context, mode string) error {
	cfg := config.Get()

	switch mode {
	case "server":
		return runServer(ctx, cfg)
	case "worker":
		return runWorker(ctx, cfg)
	case "web":
		return runWeb(ctx, cfg)
	default:
		return fmt.Errorf("unknown mode: %s", mode)
	}
}

func runServer(ctx context.Context, cfg *config.Config) error {
	if cfg.JWTSecret == "" {
		return errors.New("JWT_SECRET must be set in server mode")
	}

	// Initialize Cassandra store connection
	st, err := store.New()
	if err != nil {
		return fmt.Errorf("cassandra connection failed: %w", err)
	}
	defer st.Close()

	// Initialize Kafka writer for publishing posts
	kafkaWriter, err := appkafka.NewKafkaWriter(appkafka.ConfigFrom(cfg))
	if err != nil {
		return fmt.Errorf("kafka writer init failed: %w", err)
	}
	defer kafkaWriter.Close()

	iss := tokens.NewIssuer(cfg.JWTSecret, cfg.AccessTokenTTL, cfg.RefreshTokenTTL)
	server.Run(ctx, st, kafkaWriter, iss, server.Options{
		Addr:          cfg.ServerAddr,
		TLSCert:       cfg.TLSCert,
		TLSKey:        cfg.TLSKey,
		RotateRefresh: cfg.RotateRefresh,
	})
	return nil
}

func runWorker(ctx context.Context, cfg *config.Config) error {
	st, err := store.New()
	if err != nil {
		return fmt.Errorf("cassandra connection failed: %w", err)
	}
	defer st.Close()

	// Start the worker that reads posts from Kafka and fans them out
	kafkaReader := appkafka.NewKafkaReader(appkafka.ConfigFrom(cfg))
	defer kafkaReader.Close()

	worker.New(st, kafkaReader, 0, 0).Run(ctx)
	return nil
}

// runWeb needs neither Cassandra nor Kafka; everything goes through the backend API.
func runWeb(ctx context.Context, cfg *config.Config) error {
	factory := gateway.NewFactory(cfg.BackendURL, &http.Client{}, gateway.Options{
		Timeout:          cfg.GatewayTimeout,
		SingleUseRefresh: cfg.SingleUseRefresh,
	})

	cookies := session.DefaultCookieOptions()
	cookies.Secure = cfg.CookieSecure
	cookies.SameSite = cfg.CookieSameSite
	cookies.AccessTTL = cfg.AccessTokenTTL
	cookies.RefreshTTL = cfg.RefreshTokenTTL

	var repo *content.Repository
	if cfg.CMSProjectID != "" {
		var cache *content.Cache
		if cfg.CMSCachePath != "" {
			c, err := content.OpenCache(cfg.CMSCachePath)
			if err != nil {
				return fmt.Errorf("content cache init failed: %w", err)
			}
			defer c.Close()
			cache = c
		}
		repo = content.New(content.Config{
			ProjectID:  cfg.CMSProjectID,
			Dataset:    cfg.CMSDataset,
			APIVersion: cfg.CMSAPIVersion,
			Token:      cfg.CMSToken,
			CacheTTL:   cfg.CMSCacheTTL,
		}, cache)
	} else {
		logg.Info("main", "CMS_PROJECT_ID not set, content routes disabled")
	}

	web.Run(ctx, web.New(factory, cookies, cfg.LoginPath, repo), web.Options{
		Addr:    cfg.WebAddr,
		TLSCert: cfg.TLSCert,
		TLSKey:  cfg.TLSKey,
	})
	return nil
}
