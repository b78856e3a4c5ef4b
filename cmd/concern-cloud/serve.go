package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/xaenox/concern-cloud/internal/api"
	"github.com/xaenox/concern-cloud/internal/logging"
	"github.com/xaenox/concern-cloud/internal/metrics"
	"github.com/xaenox/concern-cloud/internal/storage"
	"github.com/xaenox/concern-cloud/internal/theming"
	"github.com/xaenox/concern-cloud/pkg/config"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the HTTP API",
	Long: `Starts the API server backed by the configured store (memory, sqlite or
postgres) and theming provider (openai or keyword). Log level changes in the
config file are applied without a restart.`,
	Args: cobra.NoArgs,
	RunE: runServe,
}

func newThemer(c *config.Config) theming.Themer {
	if c.Theming.Provider == config.ProviderKeyword {
		logger.Info("Using keyword theming")
		return theming.NewKeywordThemer()
	}
	logger.Info("Using OpenAI theming", zap.String("model", c.OpenAI.Model))
	return theming.NewOpenAIThemer(theming.OpenAIOptions{
		APIKey:          c.OpenAI.APIKey,
		BaseURL:         c.OpenAI.BaseURL,
		Model:           c.OpenAI.Model,
		MaxTokens:       c.OpenAI.MaxTokens,
		Temperature:     c.OpenAI.Temperature,
		Timeout:         c.OpenAI.Timeout,
		BreakerFailures: c.Theming.BreakerFailures,
		BreakerTimeout:  c.Theming.BreakerTimeout,
	}, logger)
}

func runServe(cmd *cobra.Command, args []string) error {
	if err := cfg.Validate(); err != nil {
		return err
	}

	store, err := storage.Open(cfg.Database, logger)
	if err != nil {
		logger.Error("Failed to initialize storage", zap.Error(err))
		return err
	}
	defer store.Close()

	collector := metrics.NewCollector("concern_cloud")
	service := theming.NewService(newThemer(cfg), collector, logger)
	srv := api.New(api.Options{
		Store:            store,
		Theming:          service,
		Metrics:          collector,
		Logger:           logger,
		CORSOrigins:      cfg.Server.CORSOrigins,
		RequestTimeout:   cfg.Server.RequestTimeout,
		ThemingPerMinute: cfg.Theming.RatePerMinute,
		ThemingBurst:     cfg.Theming.Burst,
	})

	config.WatchConfig(cfg, logger, func(next *config.Config) {
		if err := logging.SetLevel(logLevelAtom, next.Log.Level); err != nil {
			logger.Warn("Ignoring log level change", zap.Error(err))
		}
	})

	httpServer := &http.Server{
		Addr:              cfg.Server.Addr,
		Handler:           srv.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	errCh := make(chan error, 1)
	go func() {
		logger.Info("Server listening", zap.String("addr", cfg.Server.Addr), zap.String("driver", cfg.Database.Driver))
		errCh <- httpServer.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	case <-ctx.Done():
	}

	logger.Info("Shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		logger.Error("Graceful shutdown failed", zap.Error(err))
		return err
	}
	return nil
}
