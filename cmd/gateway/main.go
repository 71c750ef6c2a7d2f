package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/bibekaryal86/gateway-service/internal/auth"
	"github.com/bibekaryal86/gateway-service/internal/config"
	"github.com/bibekaryal86/gateway-service/internal/gateway"
	"github.com/bibekaryal86/gateway-service/internal/logging"
	"github.com/bibekaryal86/gateway-service/internal/proxy"
	"github.com/bibekaryal86/gateway-service/internal/routes"
)

var (
	version   = "dev"
	buildTime = "unknown"
)

func main() {
	configPath := flag.String("config", "configs/gateway.yaml", "Path to configuration file")
	showVersion := flag.Bool("version", false, "Show version information")
	validateOnly := flag.Bool("validate", false, "Validate configuration and exit")
	flag.Parse()

	if *showVersion {
		fmt.Printf("Gateway Service %s (built %s)\n", version, buildTime)
		os.Exit(0)
	}

	loader := config.NewLoader()
	cfg, err := loader.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	if *validateOnly {
		fmt.Println("Configuration is valid")
		os.Exit(0)
	}

	logger := logging.Init(cfg.Logging)
	defer logger.Sync()

	logging.Info("Starting Gateway Service",
		zap.String("version", version),
		zap.String("config", *configPath),
		zap.String("profile", cfg.EnvService.Profile),
		zap.Int("port", cfg.Server.Port),
	)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	store := routes.NewStore()
	fetcher := routes.NewFetcher(cfg.EnvService, cfg.Auth.SecretKey)
	refresher := routes.NewRefresher(fetcher, store, cfg.EnvService.RefreshInterval)

	// The gateway cannot route anything without its first snapshot.
	if err := refresher.RefreshNow(ctx); err != nil {
		logging.Error("Initial route fetch failed", zap.Error(err))
		os.Exit(1)
	}
	go refresher.Run(ctx)

	validator := auth.NewHTTPValidator(cfg.Auth.ValidateTokenURL, cfg.Proxy.ResponseTimeout)
	pipeline := gateway.New(cfg, gateway.Deps{
		Store:     store,
		AuthStage: auth.NewStage(cfg.Auth, cfg.Gateway.AuthServiceName, validator),
		Forwarder: proxy.NewForwarder(cfg.Proxy),
		Refresh:   refresher.RefreshNow,
	})

	watcher, err := config.NewWatcher(*configPath)
	if err != nil {
		logging.Warn("Config watcher unavailable", zap.Error(err))
	} else {
		watcher.OnChange(func(updated *config.Config) {
			logging.SetLevel(updated.Logging.Level)
			logging.Info("Configuration reloaded", zap.String("logLevel", updated.Logging.Level))
		})
		if err := watcher.Start(); err != nil {
			logging.Warn("Config watcher failed to start", zap.Error(err))
		} else {
			defer watcher.Stop()
		}
	}

	server := gateway.NewServer(cfg.Server, pipeline)
	errCh := make(chan error, 1)
	go func() { errCh <- server.Start() }()

	select {
	case err := <-errCh:
		if err != nil {
			logging.Error("Server error", zap.Error(err))
			os.Exit(1)
		}
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			logging.Error("Shutdown error", zap.Error(err))
			os.Exit(1)
		}
	}

	logging.Info("Gateway Service stopped")
}
