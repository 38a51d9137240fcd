// Surveyor Downloader — получает данные наблюдений с удалённого архива.
//
// Downloader:
//   - Запрашивает restore у удалённого сервиса, пока есть место и слоты
//   - Ждёт готовности restore и скачивает файлы по FTP (TLS)
//   - Повторяет упавшие файлы до max_retries и финализирует restore
//   - Публикует restore.finished для surveyor-jobpool
//
// Использование:
//
//	surveyor-downloader [--config surveyor.yaml]
package main

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"regexp"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"

	"github.com/shaiso/Surveyor/internal/api"
	"github.com/shaiso/Surveyor/internal/config"
	"github.com/shaiso/Surveyor/internal/ftpclient"
	"github.com/shaiso/Surveyor/internal/mq"
	"github.com/shaiso/Surveyor/internal/notify"
	"github.com/shaiso/Surveyor/internal/orchestrator"
	"github.com/shaiso/Surveyor/internal/repo"
	"github.com/shaiso/Surveyor/internal/restore"
	"github.com/shaiso/Surveyor/internal/telemetry"
)

const service = "surveyor-downloader"

// version задаётся через ldflags при сборке.
var version = "dev"

func main() {
	var configPath string

	rootCmd := &cobra.Command{
		Use:           service,
		Short:         "Request restores and download their files",
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
	logger.Info("starting "+service, "version", version)

	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}

	// graceful shutdown
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	// Tracker store
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

	requestRepo := repo.NewRequestRepo(store)
	downloadRepo := repo.NewDownloadRepo(store)

	// RabbitMQ (опционально)
	var publisher *mq.Publisher
	if cfg.RabbitMQ.URL != "" {
		mqConn, err := mq.NewConnection(cfg.RabbitMQ.URL, logger)
		if err != nil {
			logger.Warn("RabbitMQ not available, running without events", "error", err)
		} else {
			defer mqConn.Close()
			logger.Info("RabbitMQ connected")

			if err := mq.SetupTopology(ctx, mqConn); err != nil {
				logger.Warn("failed to setup topology", "error", err)
			}
			publisher = mq.NewPublisher(mqConn, logger)
		}
	}

	var events orchestrator.EventPublisher
	if publisher != nil {
		events = publisher
	}

	// Внешние сервисы
	restoreClient := restore.New(restore.Config{
		URL:      cfg.Restore.URL,
		User:     cfg.Restore.User,
		Password: cfg.Restore.Password,
		Beams:    cfg.Restore.Beams,
		Bits:     cfg.Restore.Bits,
		FileType: cfg.Restore.FileType,
		Timeout:  cfg.Restore.Timeout,
		Logger:   logger,
	})

	ftpClient := ftpclient.New(ftpclient.Config{
		Addr:        cfg.FTP.Addr(),
		User:        cfg.FTP.User,
		Password:    cfg.FTP.Password,
		TLSConfig:   ftpTLSConfig(cfg.FTP),
		DialTimeout: cfg.FTP.DialTimeout,
		Logger:      logger.With("component", "ftp"),
	})

	// Создаём orchestrator
	orch := orchestrator.New(orchestrator.Config{
		Requests:      requestRepo,
		Downloads:     downloadRepo,
		Restore:       restoreClient,
		Dialer:        ftpClient,
		Events:        events,
		Alerts:        notify.New(publisher, service, logger),
		StagingDir:    cfg.Download.StagingDir,
		QuotaBytes:    cfg.Download.QuotaBytes,
		MaxRestores:   cfg.Download.MaxRestores,
		MaxRetries:    cfg.Download.MaxRetries,
		IgnorePattern: regexp.MustCompile(cfg.Download.IgnorePattern),
		PollInterval:  cfg.Download.PollInterval,
		Logger:        logger,
	})

	if err := orch.Start(ctx); err != nil {
		return fmt.Errorf("start orchestrator: %w", err)
	}

	// HTTP mux: /healthz + /metrics + status API
	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("ok"))
	})
	mux.Handle("/metrics", promhttp.Handler())
	api.NewHandler(api.Config{
		RequestRepo:  requestRepo,
		DownloadRepo: downloadRepo,
		Active:       orch,
		Logger:       logger,
	}).RegisterRoutes(mux)

	server := &http.Server{Addr: cfg.HTTP.Addr, Handler: mux}
	go func() {
		logger.Info("listening", "addr", cfg.HTTP.Addr)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("http server error", "error", err)
			cancel()
		}
	}()

	// Ожидаем сигнал завершения
	<-ctx.Done()

	orch.Stop()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("shutdown error", "error", err)
	}

	logger.Info(service + " stopped")
	return nil
}

func ftpTLSConfig(cfg config.FTPConfig) *tls.Config {
	return &tls.Config{
		ServerName:         cfg.Host,
		MinVersion:         tls.VersionTLS12,
		InsecureSkipVerify: cfg.InsecureSkipVerify, //nolint:gosec // self-signed archive certificates
	}
}
