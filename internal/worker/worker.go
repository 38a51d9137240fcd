package worker

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/google/uuid"

	"github.com/shaiso/Surveyor/internal/domain"
	"github.com/shaiso/Surveyor/internal/ftpclient"
	"github.com/shaiso/Surveyor/internal/telemetry"
)

// Job — задание на скачивание одного файла restore.
type Job struct {
	DownloadID   int64
	AttemptID    int64
	Dir          string // каталог restore на сервере (guid)
	RemoteName   string
	LocalPath    string
	ExpectedSize int64
}

// Result — итог одной попытки скачивания.
type Result struct {
	Job     Job
	Status  domain.DownloadStatus // downloaded или failed
	Details string
	Bytes   int64
	Elapsed time.Duration
	Err     error
}

// Snapshot — прогресс живого воркера.
type Snapshot struct {
	Bytes       int64
	BytesPerSec float64
}

// Handle — ручка запущенного воркера.
// Прогресс читается без блокировок, результат приходит ровно один раз в Done().
type Handle struct {
	job     Job
	token   string
	started time.Time

	bytes atomic.Int64
	rate  atomic.Uint64 // math.Float64bits

	done chan Result
}

// Job возвращает задание воркера.
func (h *Handle) Job() Job { return h.job }

// Token — идентификатор попытки для корреляции логов.
func (h *Handle) Token() string { return h.token }

// Done возвращает канал с результатом. Канал буферизован на один элемент.
func (h *Handle) Done() <-chan Result { return h.done }

// Progress возвращает последний снимок прогресса.
func (h *Handle) Progress() Snapshot {
	return Snapshot{
		Bytes:       h.bytes.Load(),
		BytesPerSec: math.Float64frombits(h.rate.Load()),
	}
}

// Details описывает прогресс для поля details.
func (h *Handle) Details() string {
	p := h.Progress()
	return fmt.Sprintf("%s of %s (%s/s)",
		humanize.IBytes(uint64(p.Bytes)),
		humanize.IBytes(uint64(h.job.ExpectedSize)),
		humanize.IBytes(uint64(p.BytesPerSec)),
	)
}

func (h *Handle) update(p ftpclient.Progress) {
	h.bytes.Store(p.Bytes)
	h.rate.Store(math.Float64bits(p.BytesPerSec))
}

// Pool запускает воркеры и следит за их числом.
type Pool struct {
	dialer ftpclient.Dialer
	logger *slog.Logger

	wg   sync.WaitGroup
	live atomic.Int64
}

// Config — конфигурация Pool.
type Config struct {
	Dialer ftpclient.Dialer
	Logger *slog.Logger
}

// New создаёт новый Pool.
func New(cfg Config) *Pool {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Pool{dialer: cfg.Dialer, logger: logger}
}

// Start запускает воркер для job на фоновом контексте.
func (p *Pool) Start(job Job) *Handle {
	h := &Handle{
		job:     job,
		token:   uuid.NewString(),
		started: time.Now(),
		done:    make(chan Result, 1),
	}

	p.wg.Add(1)
	p.live.Add(1)
	telemetry.LiveDownloadWorkers.Inc()

	go func() {
		defer p.wg.Done()
		res := p.run(context.Background(), h)
		p.live.Add(-1)
		telemetry.LiveDownloadWorkers.Dec()
		h.done <- res
	}()

	return h
}

// Live возвращает число работающих воркеров.
func (p *Pool) Live() int {
	return int(p.live.Load())
}

// Wait ждёт завершения всех запущенных воркеров.
func (p *Pool) Wait() {
	p.wg.Wait()
}

func (p *Pool) run(ctx context.Context, h *Handle) Result {
	job := h.job
	logger := telemetry.WithDownload(p.logger, job.DownloadID, job.RemoteName).With(
		"attempt_id", job.AttemptID,
		"token", h.token,
	)

	res := Result{Job: job}
	fail := func(err error) Result {
		res.Status = domain.DownloadStatusFailed
		res.Err = err
		res.Details = err.Error()
		res.Elapsed = time.Since(h.started)
		logger.Warn("download failed", "error", err, "bytes", res.Bytes)
		return res
	}

	logger.Info("download started",
		"dir", job.Dir,
		"expected", humanize.IBytes(uint64(job.ExpectedSize)),
	)

	s, err := p.dialer.Open(ctx, job.Dir)
	if err != nil {
		return fail(err)
	}
	defer func() {
		if err := s.Close(); err != nil {
			logger.Debug("ftp session close failed", "error", err)
		}
	}()

	if err := os.MkdirAll(filepath.Dir(job.LocalPath), 0o755); err != nil {
		return fail(fmt.Errorf("%w: %v", ErrLocalFile, err))
	}
	f, err := os.Create(PartPath(job.LocalPath))
	if err != nil {
		return fail(fmt.Errorf("%w: %v", ErrLocalFile, err))
	}

	n, err := s.Retrieve(job.RemoteName, f, h.update)
	closeErr := f.Close()
	res.Bytes = n
	if err == nil && closeErr != nil {
		err = fmt.Errorf("%w: %v", ErrLocalFile, closeErr)
	}
	if err != nil {
		_ = os.Remove(PartPath(job.LocalPath))
		return fail(err)
	}

	res.Status = domain.DownloadStatusDownloaded
	res.Elapsed = time.Since(h.started)
	res.Details = fmt.Sprintf("downloaded %s in %s (%s/s)",
		humanize.IBytes(uint64(n)),
		res.Elapsed.Round(time.Second),
		humanize.IBytes(uint64(averageRate(n, res.Elapsed))),
	)

	logger.Info("download finished", "bytes", n, "elapsed", res.Elapsed)
	return res
}

func averageRate(n int64, elapsed time.Duration) float64 {
	if elapsed <= 0 {
		return 0
	}
	return float64(n) / elapsed.Seconds()
}

// PartPath — путь, в который воркер пишет файл до проверки размера.
// Под финальным именем файл появляется только после Verify.
func PartPath(localPath string) string {
	return localPath + partSuffix
}

const partSuffix = ".part"

// Verify сверяет размер скачанного файла с ожидаемым и переносит его
// из PartPath в LocalPath. Результат downloaded с несовпадающим размером
// становится failed, а недокачанный файл удаляется.
// Остальные результаты возвращаются без изменений.
func Verify(res Result) Result {
	if res.Status != domain.DownloadStatusDownloaded {
		return res
	}

	part := PartPath(res.Job.LocalPath)
	fail := func(err error) Result {
		res.Status = domain.DownloadStatusFailed
		res.Err = err
		res.Details = err.Error()
		return res
	}

	info, err := os.Stat(part)
	if err != nil {
		return fail(fmt.Errorf("%w: %v", ErrLocalFile, err))
	}
	if info.Size() != res.Job.ExpectedSize {
		_ = os.Remove(part)
		return fail(fmt.Errorf("%w: local %d != expected %d", ErrSizeMismatch, info.Size(), res.Job.ExpectedSize))
	}
	if err := os.Rename(part, res.Job.LocalPath); err != nil {
		return fail(fmt.Errorf("%w: %v", ErrLocalFile, err))
	}
	return res
}
