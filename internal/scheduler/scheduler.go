package scheduler

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/robfig/cron/v3"
	"golang.org/x/sync/singleflight"

	"github.com/shaiso/Surveyor/internal/jobs"
	"github.com/shaiso/Surveyor/internal/notify"
)

const passKey = "rotate"

// Rotator — job pool. Реализуется *jobs.Pool.
type Rotator interface {
	Discover(ctx context.Context) (int, error)
	Rotate(ctx context.Context) error
	Len() int
}

// Scheduler — драйвер проходов job pool.
type Scheduler struct {
	pool     Rotator
	schedule cron.Schedule
	notifier notify.Notifier
	logger   *slog.Logger

	group singleflight.Group
	fatal chan error
}

// Config — конфигурация Scheduler.
type Config struct {
	Pool     Rotator
	Schedule string // cron-выражение или дескриптор (default: @every 30s)
	Notifier notify.Notifier
	Logger   *slog.Logger
}

// New создаёт новый Scheduler.
func New(cfg Config) (*Scheduler, error) {
	expr := cfg.Schedule
	if expr == "" {
		expr = "@every 30s"
	}
	if err := ValidateSchedule(expr); err != nil {
		return nil, err
	}
	schedule, err := ParseSchedule(expr)
	if err != nil {
		return nil, err
	}

	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	notifier := cfg.Notifier
	if notifier == nil {
		notifier = notify.NewLogNotifier(logger)
	}

	return &Scheduler{
		pool:     cfg.Pool,
		schedule: schedule,
		notifier: notifier,
		logger:   logger,
		fatal:    make(chan error, 1),
	}, nil
}

// Run выполняет первый проход сразу, затем по расписанию.
// Возвращает nil при отмене ctx и ошибку после фатального прохода.
func (s *Scheduler) Run(ctx context.Context) error {
	c := cron.New(
		cron.WithParser(cronParser),
		cron.WithLogger(cronLogger{logger: s.logger}),
	)
	c.Schedule(s.schedule, cron.FuncJob(func() { s.TriggerNow(ctx) }))

	s.logger.Info("job pool scheduler started", "next", s.schedule.Next(time.Now()))

	s.TriggerNow(ctx)
	c.Start()
	defer func() {
		<-c.Stop().Done()
	}()

	select {
	case <-ctx.Done():
		s.logger.Info("job pool scheduler stopped")
		return nil
	case err := <-s.fatal:
		return err
	}
}

// TriggerNow выполняет проход и обрабатывает его ошибку.
// Нефатальные ошибки логируются; фатальная передаётся в Run.
func (s *Scheduler) TriggerNow(ctx context.Context) {
	err := s.Pass(ctx)
	switch {
	case err == nil:
	case errors.Is(err, context.Canceled):
	case jobs.IsFatal(err):
		s.reportFatal(ctx, err)
	default:
		s.logger.Error("job pool pass failed", "error", err)
	}
}

// Pass выполняет Discover + Rotate. Одновременные вызовы ждут текущий проход
// и получают его результат.
func (s *Scheduler) Pass(ctx context.Context) error {
	_, err, shared := s.group.Do(passKey, func() (any, error) {
		return nil, s.pass(ctx)
	})
	if shared {
		s.logger.Debug("joined running pass")
	}
	return err
}

func (s *Scheduler) pass(ctx context.Context) error {
	start := time.Now()

	added, err := s.pool.Discover(ctx)
	if err != nil {
		return fmt.Errorf("discover: %w", err)
	}
	if err := s.pool.Rotate(ctx); err != nil {
		return fmt.Errorf("rotate: %w", err)
	}

	s.logger.Debug("job pool pass completed",
		"added", added,
		"jobs", s.pool.Len(),
		"duration", time.Since(start),
	)
	return nil
}

func (s *Scheduler) reportFatal(ctx context.Context, err error) {
	s.logger.Error("fatal job pool error", "error", err)

	// ctx может быть уже отменён, оповещение всё равно отправляем.
	nctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 10*time.Second)
	defer cancel()
	if nerr := s.notifier.Notify(nctx, "Job pool stopped", err.Error()); nerr != nil {
		s.logger.Error("failed to notify operator", "error", nerr)
	}

	select {
	case s.fatal <- err:
	default:
	}
}
