// Surveyor Job Pool — ведёт вычислительные задачи над скачанными данными.
//
// Job pool:
//   - Находит новые файлы в staging и заводит по задаче на файл
//   - Ставит задачи в очередь PBS (не больше одной за проход)
//   - Повторяет упавшие задачи, выгружает результаты успешных
//   - Удаляет входные файлы, которые больше не нужны ни одной задаче
//
// Проходы идут по расписанию pool.schedule и сразу по событию restore.finished.
// Испорченный журнал задачи останавливает процесс с кодом 1 после оповещения.
//
// Использование:
//
//	surveyor-jobpool [--config surveyor.yaml]
package main

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"

	"github.com/shaiso/Surveyor/internal/batch"
	"github.com/shaiso/Surveyor/internal/config"
	"github.com/shaiso/Surveyor/internal/ftpclient"
	"github.com/shaiso/Surveyor/internal/jobs"
	"github.com/shaiso/Surveyor/internal/mq"
	"github.com/shaiso/Surveyor/internal/notify"
	"github.com/shaiso/Surveyor/internal/scheduler"
	"github.com/shaiso/Surveyor/internal/telemetry"
)

const service = "surveyor-jobpool"

// version задаётся через ldflags при сборке.
var version = "dev"

func main() {
	var configPath string

	rootCmd := &cobra.Command{
		Use:           service,
		Short:         "Run compute jobs over downloaded data",
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

	// RabbitMQ (опционально)
	var (
		publisher *mq.Publisher
		mqConn    *mq.Connection
	)
	if cfg.RabbitMQ.URL != "" {
		mqConn, err = mq.NewConnection(cfg.RabbitMQ.URL, logger)
		if err != nil {
			logger.Warn("RabbitMQ not available, running in polling-only mode", "error", err)
			mqConn = nil
		} else {
			defer mqConn.Close()
			logger.Info("RabbitMQ connected")

			if err := mq.SetupTopology(ctx, mqConn); err != nil {
				logger.Warn("failed to setup topology", "error", err)
			}
			publisher = mq.NewPublisher(mqConn, logger)
		}
	}

	// Batch queue
	queue, err := batch.New(batch.Config{
		JobPrefix: cfg.Queue.JobPrefix,
		Resources: cfg.Queue.Resources,
		Script:    cfg.Queue.Script,
		LogDir:    cfg.Queue.LogDir,
		ExtraArgs: cfg.Queue.ExtraArgs,
		Logger:    logger,
	})
	if err != nil {
		return fmt.Errorf("batch queue: %w", err)
	}

	alerts := notify.New(publisher, service, logger)

	pool, err := jobs.New(jobs.Config{
		Queue:         queue,
		Uploader:      newUploader(cfg, logger),
		Alerts:        alerts,
		RawdataDir:    cfg.Pool.RawdataDir,
		RawdataGlob:   cfg.Pool.RawdataGlob,
		LogDir:        cfg.Pool.LogDir,
		ArchiveDir:    cfg.Pool.ArchiveDir,
		OutputDir:     cfg.Queue.OutputDir,
		MaxAttempts:   cfg.Pool.MaxAttempts,
		DeleteRawdata: cfg.Pool.DeleteRawdata,
		Logger:        logger,
	})
	if err != nil {
		return err
	}

	sched, err := scheduler.New(scheduler.Config{
		Pool:     pool,
		Schedule: cfg.Pool.Schedule,
		Notifier: alerts,
		Logger:   logger,
	})
	if err != nil {
		return err
	}

	// restore.finished запускает проход сразу, не дожидаясь расписания
	if mqConn != nil {
		consumer := mq.NewConsumer(mqConn, logger, mq.ConsumerConfig{
			Queue: mq.QueueRestoresFinished,
			Handler: func(ctx context.Context, msg *mq.Message) error {
				ev, err := mq.DecodePayload[mq.RestoreEvent](msg)
				if err != nil {
					return fmt.Errorf("%w: %v", mq.ErrReject, err)
				}
				logger.Info("restore finished, running job pool pass", "request_guid", ev.GUID, "status", ev.Status)
				sched.TriggerNow(ctx)
				return nil
			},
		})
		go func() {
			if err := consumer.Start(ctx); err != nil && !errors.Is(err, context.Canceled) {
				logger.Error("consumer stopped", "error", err)
			}
		}()
		defer consumer.Stop()
	}

	// HTTP mux: /healthz + /metrics
	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("ok"))
	})
	mux.Handle("/metrics", promhttp.Handler())

	server := &http.Server{Addr: cfg.HTTP.Addr, Handler: mux}
	go func() {
		logger.Info("listening", "addr", cfg.HTTP.Addr)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("http server error", "error", err)
			cancel()
		}
	}()
	defer func() {
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer shutdownCancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			logger.Error("shutdown error", "error", err)
		}
	}()

	// Блокируется до сигнала или фатальной ошибки прохода
	if err := sched.Run(ctx); err != nil {
		return err
	}

	logger.Info(service + " stopped")
	return nil
}

func newUploader(cfg config.Config, logger *slog.Logger) jobs.Uploader {
	if cfg.Pool.Uploader == "ftp" {
		return jobs.FTPUploader{
			Dialer: ftpclient.New(ftpclient.Config{
				Addr:     cfg.FTP.Addr(),
				User:     cfg.FTP.User,
				Password: cfg.FTP.Password,
				TLSConfig: &tls.Config{
					ServerName:         cfg.FTP.Host,
					MinVersion:         tls.VersionTLS12,
					InsecureSkipVerify: cfg.FTP.InsecureSkipVerify, //nolint:gosec // self-signed archive certificates
				},
				DialTimeout: cfg.FTP.DialTimeout,
				Logger:      logger.With("component", "ftp"),
			}),
			RemoteDir: cfg.FTP.UploadDir,
			Logger:    logger,
		}
	}
	return jobs.DirUploader{ResultsDir: cfg.Pool.ResultsDir}
}
