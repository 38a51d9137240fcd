package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"regexp"
	"sort"
	"sync"
	"time"

	"github.com/dustin/go-humanize"

	"github.com/shaiso/Surveyor/internal/ftpclient"
	"github.com/shaiso/Surveyor/internal/mq"
	"github.com/shaiso/Surveyor/internal/notify"
	"github.com/shaiso/Surveyor/internal/repo"
	"github.com/shaiso/Surveyor/internal/telemetry"
	"github.com/shaiso/Surveyor/internal/worker"
)

// Default configuration values.
const (
	defaultPollInterval = 37 * time.Second
	defaultMaxRestores  = 2
	defaultMaxRetries   = 3
)

// RestoreService — удалённый сервис restore.
type RestoreService interface {
	RequestRestore(ctx context.Context) (string, error)
	QueryLocation(ctx context.Context, guid string) (string, error)
}

// EventPublisher публикует события restore.
type EventPublisher interface {
	PublishRestoreReady(ctx context.Context, ev mq.RestoreEvent) error
	PublishRestoreFinished(ctx context.Context, ev mq.RestoreEvent) error
}

// Orchestrator управляет скачиванием restores.
//
// Orchestrator:
//   - Допускает новый restore, если позволяют лимит числа и квота диска
//   - Продвигает каждый restore рабочего набора на один шаг за Tick
//   - Запускает воркер на каждый недокачанный файл, пока не исчерпаны попытки
//   - Сверяет результаты воркеров с хранилищем
//   - Восстанавливает рабочий набор после рестарта
type Orchestrator struct {
	// Repositories
	requests  *repo.RequestRepo
	downloads *repo.DownloadRepo

	// External services
	restore RestoreService
	dialer  ftpclient.Dialer
	workers *worker.Pool
	events  EventPublisher
	alerts  notify.Notifier

	// Active restores — рабочий набор (guid → state)
	active map[string]*RestoreState
	mu     sync.RWMutex

	// Configuration
	stagingDir    string
	quotaBytes    int64
	maxRestores   int
	maxRetries    int
	ignorePattern *regexp.Regexp
	pollInterval  time.Duration

	// Lifecycle
	logger     *slog.Logger
	cancelFunc context.CancelFunc
	wg         sync.WaitGroup
}

// Config — конфигурация Orchestrator.
type Config struct {
	// Repositories
	Requests  *repo.RequestRepo
	Downloads *repo.DownloadRepo

	// External services
	Restore RestoreService
	Dialer  ftpclient.Dialer

	// Workers (опционально; если nil — создаётся worker.New с Dialer)
	Workers *worker.Pool

	// Events (опционально; nil — события не публикуются)
	Events EventPublisher

	// Alerts (опционально; nil — оповещения только в лог)
	Alerts notify.Notifier

	// Download settings
	StagingDir    string
	QuotaBytes    int64
	MaxRestores   int            // default: 2
	MaxRetries    int            // попыток на файл (default: 3)
	IgnorePattern *regexp.Regexp // файлы restore, которые не скачиваются

	PollInterval time.Duration // default: 37s

	Logger *slog.Logger
}

// New создаёт новый Orchestrator.
func New(cfg Config) *Orchestrator {
	pollInterval := cfg.PollInterval
	if pollInterval <= 0 {
		pollInterval = defaultPollInterval
	}

	maxRestores := cfg.MaxRestores
	if maxRestores <= 0 {
		maxRestores = defaultMaxRestores
	}

	maxRetries := cfg.MaxRetries
	if maxRetries <= 0 {
		maxRetries = defaultMaxRetries
	}

	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	workers := cfg.Workers
	if workers == nil {
		workers = worker.New(worker.Config{Dialer: cfg.Dialer, Logger: logger})
	}

	alerts := cfg.Alerts
	if alerts == nil {
		alerts = notify.NewLogNotifier(logger)
	}

	return &Orchestrator{
		requests:      cfg.Requests,
		downloads:     cfg.Downloads,
		restore:       cfg.Restore,
		dialer:        cfg.Dialer,
		workers:       workers,
		events:        cfg.Events,
		alerts:        alerts,
		active:        make(map[string]*RestoreState),
		stagingDir:    cfg.StagingDir,
		quotaBytes:    cfg.QuotaBytes,
		maxRestores:   maxRestores,
		maxRetries:    maxRetries,
		ignorePattern: cfg.IgnorePattern,
		pollInterval:  pollInterval,
		logger:        logger,
	}
}

// Start восстанавливает рабочий набор и запускает управляющий цикл.
func (o *Orchestrator) Start(ctx context.Context) error {
	if err := o.Recover(ctx); err != nil {
		return fmt.Errorf("recover restores: %w", err)
	}

	ctx, cancel := context.WithCancel(ctx)
	o.cancelFunc = cancel

	o.logger.Info("starting orchestrator",
		"poll_interval", o.pollInterval,
		"max_restores", o.maxRestores,
		"max_retries", o.maxRetries,
		"quota", humanize.IBytes(uint64(o.quotaBytes)),
		"staging_dir", o.stagingDir,
	)

	o.wg.Add(1)
	go func() {
		defer o.wg.Done()
		o.pollLoop(ctx)
	}()

	return nil
}

// Stop останавливает управляющий цикл.
// Воркеры не прерываются: незавершённые скачивания будут помечены failed
// при следующем запуске.
func (o *Orchestrator) Stop() {
	o.logger.Info("stopping orchestrator...")

	if o.cancelFunc != nil {
		o.cancelFunc()
	}
	o.wg.Wait()

	o.logger.Info("orchestrator stopped",
		"active_restores", o.ActiveCount(),
		"live_workers", o.workers.Live(),
	)
}

// pollLoop — управляющий цикл.
func (o *Orchestrator) pollLoop(ctx context.Context) {
	ticker := time.NewTicker(o.pollInterval)
	defer ticker.Stop()

	// Первый tick сразу при старте
	o.Tick(ctx)

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			o.Tick(ctx)
		}
	}
}

// Tick выполняет один проход: допуск не более одного нового restore,
// затем один шаг каждого restore рабочего набора.
func (o *Orchestrator) Tick(ctx context.Context) {
	adm, err := o.Admit(ctx)
	switch {
	case err != nil:
		o.logger.Error("admission check failed", "error", err)
	case adm.Allowed:
		o.requestRestore(ctx)
	default:
		o.logger.Debug("restore not admitted", "reason", adm.Reason, "active", adm.Active)
	}

	for _, st := range o.snapshot() {
		if ctx.Err() != nil {
			return
		}
		if done := o.step(ctx, st); done {
			o.removeActive(st.GUID())
		}
	}

	telemetry.ActiveRestores.Set(float64(o.ActiveCount()))
	for _, s := range o.Status() {
		o.logger.Info("restore status",
			"guid", s.GUID,
			"status", s.Status,
			"size", humanize.IBytes(uint64(s.Size)),
			"live_workers", s.LiveWorkers,
			"in_flight", humanize.IBytes(uint64(s.InFlightBytes)),
		)
	}
}

// Recover загружает в рабочий набор все незавершённые restores.
// Скачивания, оставшиеся в downloading после аварийного завершения,
// помечаются failed: воркеров для них больше нет.
func (o *Orchestrator) Recover(ctx context.Context) error {
	reqs, err := o.requests.ListUnfinished(ctx)
	if err != nil {
		return err
	}

	recovered := 0
	for _, req := range reqs {
		if req.Status.IsTerminal() {
			continue
		}

		n, err := o.downloads.FailInterrupted(ctx, req.ID, "interrupted by restart")
		if err != nil {
			return err
		}
		if n > 0 {
			o.logger.Warn("failed interrupted downloads", "guid", req.GUID, "count", n)
		}

		if err := o.addActive(NewRestoreState(req)); err != nil {
			continue
		}
		recovered++
	}

	o.logger.Info("recovered restores", "count", recovered)
	telemetry.ActiveRestores.Set(float64(o.ActiveCount()))
	return nil
}

// snapshot возвращает рабочий набор в порядке guid.
func (o *Orchestrator) snapshot() []*RestoreState {
	o.mu.RLock()
	defer o.mu.RUnlock()

	out := make([]*RestoreState, 0, len(o.active))
	for _, st := range o.active {
		out = append(out, st)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].GUID() < out[j].GUID() })
	return out
}

// isActive проверяет, находится ли restore в рабочем наборе.
func (o *Orchestrator) isActive(guid string) bool {
	o.mu.RLock()
	defer o.mu.RUnlock()
	_, ok := o.active[guid]
	return ok
}

// addActive добавляет restore в рабочий набор.
func (o *Orchestrator) addActive(st *RestoreState) error {
	o.mu.Lock()
	defer o.mu.Unlock()

	if _, ok := o.active[st.GUID()]; ok {
		return ErrRestoreAlreadyActive
	}
	o.active[st.GUID()] = st
	return nil
}

// removeActive удаляет restore из рабочего набора.
func (o *Orchestrator) removeActive(guid string) {
	o.mu.Lock()
	defer o.mu.Unlock()
	delete(o.active, guid)
}

// ActiveCount возвращает размер рабочего набора.
func (o *Orchestrator) ActiveCount() int {
	o.mu.RLock()
	defer o.mu.RUnlock()
	return len(o.active)
}

// Status возвращает сводку по restores рабочего набора.
func (o *Orchestrator) Status() []RestoreStats {
	states := o.snapshot()
	out := make([]RestoreStats, 0, len(states))
	for _, st := range states {
		out = append(out, st.Stats())
	}
	return out
}

// Admission — решение о допуске нового restore.
type Admission struct {
	Allowed       bool
	Active        int
	StagingBytes  int64 // занято в staging
	ReservedBytes int64 // известные размеры активных restores
	FreeBytes     int64 // quota − staging − reserved
	Reason        string
}

// Admit решает, можно ли запросить новый restore.
//
// Решение зависит только от хранилища и диска: повторный вызов без
// изменений между ними даёт тот же результат.
func (o *Orchestrator) Admit(ctx context.Context) (Admission, error) {
	states := o.snapshot()
	adm := Admission{Active: len(states)}

	if adm.Active >= o.maxRestores {
		adm.Reason = fmt.Sprintf("%d of %d restores active", adm.Active, o.maxRestores)
		return adm, nil
	}

	for _, st := range states {
		req, err := o.requests.GetByGUID(ctx, st.GUID())
		if err != nil {
			return adm, fmt.Errorf("reload restore %s: %w", st.GUID(), err)
		}
		adm.ReservedBytes += req.KnownSize()
	}

	adm.StagingBytes = diskUsage(o.stagingDir, o.logger)
	telemetry.StagingBytes.Set(float64(adm.StagingBytes))

	adm.FreeBytes = o.quotaBytes - adm.StagingBytes - adm.ReservedBytes
	if adm.FreeBytes <= 0 {
		adm.Reason = fmt.Sprintf("quota exhausted: %s on disk, %s reserved of %s",
			humanize.IBytes(uint64(adm.StagingBytes)),
			humanize.IBytes(uint64(adm.ReservedBytes)),
			humanize.IBytes(uint64(o.quotaBytes)),
		)
		return adm, nil
	}

	adm.Allowed = true
	return adm, nil
}

// requestRestore запрашивает новый restore и добавляет его в рабочий набор.
// Отказ сервиса не меняет состояния.
func (o *Orchestrator) requestRestore(ctx context.Context) {
	guid, err := o.restore.RequestRestore(ctx)
	if err != nil {
		telemetry.RestoresRequested.WithLabelValues("failed").Inc()
		o.logger.Warn("restore request failed", "error", err)
		return
	}
	telemetry.RestoresRequested.WithLabelValues("accepted").Inc()

	logger := telemetry.WithRequest(o.logger, guid)

	req, err := o.requests.Create(ctx, guid, "Newly created restore request")
	if errors.Is(err, repo.ErrAlreadyExists) {
		logger.Warn("restore already recorded")
		if o.isActive(guid) {
			return
		}
		req, err = o.requests.GetByGUID(ctx, guid)
	}
	if err != nil {
		logger.Error("failed to record restore", "error", err)
		return
	}
	if req.Status.IsTerminal() {
		return
	}

	if err := o.addActive(NewRestoreState(*req)); err != nil {
		return
	}
	logger.Info("restore requested")
}
