package app

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

	"github.com/go-chi/chi/v5/middleware"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/gray247/gitbridge/internal/api"
	"github.com/gray247/gitbridge/internal/bridge"
	"github.com/gray247/gitbridge/internal/config"
	"github.com/gray247/gitbridge/internal/status"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the GitBridge server",
	Long: `Start the GitBridge server to expose the configured repository over REST.

The server requires a configuration file (--config) that specifies one or
more profiles: target repository, branch, credential source, local clone
path and safe mode. The default profile is cloned and activated at startup.

See examples/ directory for sample configurations.`,
	RunE: runServe,
}

const (
	defaultGracefulTimeout = 30 * time.Second

	// serverWriteTimeout must exceed serverRequestTimeout so the timeout
	// middleware can still write its response. Mutating requests block for
	// the full commit-and-push sequence, so these are generous.
	serverRequestTimeout = 60 * time.Second
	serverReadTimeout    = 10 * time.Second
	serverWriteTimeout   = 75 * time.Second
	serverIdleTimeout    = 60 * time.Second

	// dataDir holds per-profile state that survives restarts
	dataDir = "./data"
)

func init() {
	serveCmd.Flags().String("address", ":8080", "Address to listen on")
	serveCmd.Flags().String("config", "", "Path to configuration file (YAML format, required)")

	err := viper.BindPFlag("address", serveCmd.Flags().Lookup("address"))
	if err != nil {
		slog.Error("Failed to bind address flag", "error", err)
		os.Exit(1)
	}
	err = viper.BindPFlag("config", serveCmd.Flags().Lookup("config"))
	if err != nil {
		slog.Error("Failed to bind config flag", "error", err)
		os.Exit(1)
	}

	if err := serveCmd.MarkFlagRequired("config"); err != nil {
		slog.Error("Failed to mark config flag as required", "error", err)
		os.Exit(1)
	}
}

func runServe(cmd *cobra.Command, _ []string) error {
	ctx := cmd.Context()
	address := viper.GetString("address")

	configPath := viper.GetString("config")
	cfg, err := config.LoadConfig(config.WithConfigPath(configPath))
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}
	slog.Info("Loaded configuration",
		"path", configPath,
		"profiles", len(cfg.Profiles),
		"default_profile", cfg.GetDefaultProfile())

	if err := os.MkdirAll(dataDir, 0750); err != nil {
		return fmt.Errorf("failed to create data directory: %w", err)
	}

	coordinator := bridge.New(cfg,
		bridge.WithStatusPersistence(status.NewFilePersistence(dataDir)),
	)

	// Activating the default profile clones the repository when the local
	// path holds none, so a misconfigured profile fails the start, not the
	// first request.
	if err := coordinator.Activate(ctx, cfg.GetDefaultProfile()); err != nil {
		return fmt.Errorf("failed to activate default profile: %w", err)
	}

	router := api.NewServer(coordinator,
		api.WithMiddlewares(
			middleware.RequestID,
			middleware.RealIP,
			middleware.Recoverer,
			middleware.Timeout(serverRequestTimeout),
			api.LoggingMiddleware,
		),
	)

	server := &http.Server{
		Addr:         address,
		Handler:      router,
		ReadTimeout:  serverReadTimeout,
		WriteTimeout: serverWriteTimeout,
		IdleTimeout:  serverIdleTimeout,
	}

	serveErr := make(chan error, 1)
	go func() {
		slog.Info("Server listening", "address", address)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-serveErr:
		return fmt.Errorf("server failed: %w", err)
	case sig := <-quit:
		slog.Info("Shutting down server", "signal", sig.String())
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), defaultGracefulTimeout)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		slog.Error("Server forced to shutdown", "error", err)
		return err
	}

	slog.Info("Server shutdown complete")
	return nil
}
