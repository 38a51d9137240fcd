// Surveyor API — HTTP API статуса restore и скачиваний (только чтение).
//
// Использование:
//
//	surveyor-api [--config surveyor.yaml]
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

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"

	"github.com/shaiso/Surveyor/internal/api"
	"github.com/shaiso/Surveyor/internal/config"
	"github.com/shaiso/Surveyor/internal/repo"
	"github.com/shaiso/Surveyor/internal/telemetry"
)

const service = "surveyor-api"

var (
	version   = "dev"
	startTime = time.Now()
	reqTotal  = promauto.NewCounter(prometheus.CounterOpts{
		Name: "surveyor_api_healthz_requests_total",
		Help: "Total /healthz requests handled by surveyor-api",
	})
)

func main() {
	var configPath string

	rootCmd := &cobra.Command{
		Use:           service,
		Short:         "Serve read-only status of restores and downloads",
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(configPath)
		},
	}
	rootCmd.Flags().StringVar(&configPath, "config", "", "Path to YAML config file")

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}

func run(configPath string) error {
	// Инициализируем structured logging
	logger := telemetry.SetupLogger(service)
	logger.Info("starting " + service)

	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	store, err := repo.Open(ctx, repo.Config{
		DSN:     cfg.Tracker.DSN,
		OnRetry: telemetry.StoreRetries.Inc,
		Logger:  logger,
	})
	if err != nil {
		return fmt.Errorf("open tracker store: %w", err)
	}
	defer store.Close()
	logger.Info("tracker store opened", "dialect", store.Dialect())

	handler := api.NewHandler(api.Config{
		RequestRepo:  repo.NewRequestRepo(store),
		DownloadRepo: repo.NewDownloadRepo(store),
		Logger:       logger,
	})

	mux := http.NewServeMux()

	// Health и metrics
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		reqTotal.Inc()
		w.WriteHeader(http.StatusOK)
		fmt.Fprintf(w, "ok %s", time.Since(startTime))
	})
	mux.Handle("/metrics", promhttp.Handler())

	// Регистрируем API маршруты
	handler.RegisterRoutes(mux)

	server := &http.Server{
		Addr:    cfg.HTTP.Addr,
		Handler: mux,
	}

	go func() {
		logger.Info("listening", "addr", cfg.HTTP.Addr)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("server error", "error", err)
			cancel()
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down")

	// Graceful shutdown с таймаутом 10 секунд
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("shutdown error", "error", err)
	}

	logger.Info("stopped")
	return nil
}
