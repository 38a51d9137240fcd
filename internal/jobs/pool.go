package jobs

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/bmatcuk/doublestar/v4"

	"github.com/shaiso/Surveyor/internal/batch"
	"github.com/shaiso/Surveyor/internal/notify"
	"github.com/shaiso/Surveyor/internal/telemetry"
)

const logTailLines = 5

// Queue — операции batch-очереди, нужные пулу. Реализуется *batch.Client.
type Queue interface {
	Submit(ctx context.Context, datafiles []string, outDir string) (string, error)
	Jobs(ctx context.Context) ([]batch.QueueJob, error)
	Delete(ctx context.Context, id string) error
	HadErrors(id string) (bool, error)
	ReadStderr(id string) (string, error)
	ReadStdout(id string) (string, error)
}

// Uploader забирает результаты успешной задачи из outDir.
type Uploader interface {
	Upload(ctx context.Context, jobName, outDir string) error
}

// Pool — набор задач и их ротация.
type Pool struct {
	queue    Queue
	uploader Uploader
	alerts   notify.Notifier
	logger   *slog.Logger
	host     string
	now      func() time.Time

	rawdataDir    string
	rawdataGlob   string
	logDir        string
	archiveDir    string
	outputDir     string
	maxAttempts   int
	deleteRawdata bool

	jobs map[string]*Job
}

// Config — конфигурация Pool.
type Config struct {
	Queue    Queue
	Uploader Uploader

	// Alerts получает сбои выгрузки результатов (default: только лог).
	Alerts notify.Notifier

	RawdataDir    string
	RawdataGlob   string // doublestar-шаблон относительно RawdataDir (default: **/*.fits)
	LogDir        string // пусто — журнал рядом с первым файлом
	ArchiveDir    string
	OutputDir     string // результаты задачи: OutputDir/<name>
	MaxAttempts   int    // default: 2
	DeleteRawdata bool

	// Host — имя хоста в записях журнала (default: os.Hostname).
	Host string

	Logger *slog.Logger
}

// New создаёт пустой Pool. Задачи добавляются через Discover и Add.
func New(cfg Config) (*Pool, error) {
	if cfg.Queue == nil {
		return nil, errors.New("jobs: queue is required")
	}
	if cfg.ArchiveDir == "" {
		return nil, errors.New("jobs: archive dir is required")
	}

	glob := cfg.RawdataGlob
	if glob == "" {
		glob = "**/*.fits"
	}
	if !doublestar.ValidatePattern(glob) {
		return nil, fmt.Errorf("jobs: invalid rawdata glob %q", glob)
	}

	maxAttempts := cfg.MaxAttempts
	if maxAttempts <= 0 {
		maxAttempts = 2
	}

	host := cfg.Host
	if host == "" {
		host, _ = os.Hostname()
	}

	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	alerts := cfg.Alerts
	if alerts == nil {
		alerts = notify.NewLogNotifier(logger)
	}

	return &Pool{
		queue:         cfg.Queue,
		uploader:      cfg.Uploader,
		alerts:        alerts,
		logger:        logger,
		host:          host,
		now:           time.Now,
		rawdataDir:    cfg.RawdataDir,
		rawdataGlob:   glob,
		logDir:        cfg.LogDir,
		archiveDir:    cfg.ArchiveDir,
		outputDir:     cfg.OutputDir,
		maxAttempts:   maxAttempts,
		deleteRawdata: cfg.DeleteRawdata,
		jobs:          make(map[string]*Job),
	}, nil
}

// Len возвращает число задач в пуле.
func (p *Pool) Len() int { return len(p.jobs) }

// Job возвращает задачу по имени.
func (p *Pool) Job(name string) (*Job, bool) {
	j, ok := p.jobs[name]
	return j, ok
}

// Jobs возвращает задачи, отсортированные по имени.
func (p *Pool) Jobs() []*Job {
	out := make([]*Job, 0, len(p.jobs))
	for _, j := range p.jobs {
		out = append(out, j)
	}
	sort.Slice(out, func(i, k int) bool { return out[i].Name < out[k].Name })
	return out
}

func (p *Pool) logPath(name string, datafiles []string) string {
	if p.logDir == "" {
		return filepath.Join(filepath.Dir(datafiles[0]), name+".log")
	}
	return filepath.Join(p.logDir, name+".log")
}

func (p *Pool) archivePath(name string) string {
	return filepath.Join(p.archiveDir, name+".log")
}

func (p *Pool) entry(status, info string) LogEntry {
	return NewEntry(p.now(), status, p.host, info)
}

// Add добавляет задачу над datafiles. Существующий журнал загружается,
// иначе создаётся с записью "New job". Уже известная задача возвращается как есть.
func (p *Pool) Add(datafiles []string) (*Job, error) {
	name, err := JobName(datafiles)
	if err != nil {
		return nil, err
	}
	if j, ok := p.jobs[name]; ok {
		return j, nil
	}

	log, err := OpenLog(p.logPath(name, datafiles), p.entry(StatusNew, datafilesInfo(datafiles)))
	if err != nil {
		return nil, fmt.Errorf("job %s: %w", name, err)
	}

	j := &Job{Name: name, Datafiles: datafiles, log: log}
	p.jobs[name] = j
	return j, nil
}

// Discover ищет входные файлы в RawdataDir и создаёт по задаче на файл.
// Файлы, журнал которых уже в архиве, пропускаются. Возвращает число новых задач.
func (p *Pool) Discover(ctx context.Context) (int, error) {
	matches, err := doublestar.Glob(os.DirFS(p.rawdataDir), p.rawdataGlob, doublestar.WithFilesOnly())
	if err != nil {
		return 0, fmt.Errorf("glob %s: %w", p.rawdataGlob, err)
	}
	sort.Strings(matches)

	added := 0
	for _, m := range matches {
		if err := ctx.Err(); err != nil {
			return added, err
		}

		datafile := filepath.Join(p.rawdataDir, filepath.FromSlash(m))
		name, err := JobName([]string{datafile})
		if err != nil {
			p.logger.Warn("skipping datafile", "path", datafile, "error", err)
			continue
		}
		if _, ok := p.jobs[name]; ok {
			continue
		}
		if _, err := os.Stat(p.archivePath(name)); err == nil {
			p.logger.Debug("job already archived", "job", name)
			continue
		}

		j, err := p.Add([]string{datafile})
		if err != nil {
			// Испорченный журнал нельзя пропустить молча.
			if IsFatal(err) {
				return added, err
			}
			p.logger.Error("failed to add job", "path", datafile, "error", err)
			continue
		}

		added++
		telemetry.WithJob(p.logger, j.Name).Info("job added", "status", j.Status())
	}

	if added > 0 {
		p.logger.Info("discovery completed", "added", added, "tracked", len(p.jobs))
	}
	return added, nil
}

// Rotate выполняет один проход по всем задачам.
//
// 1. Снимок очереди: число наших задач в Q и множество их id
// 2. Для каждой задачи: перечитать журнал, сверить с очередью, выполнить действие
// 3. Не больше одного submit за проход, и только если в очереди нет Q
//
// ErrMalformedLog и ErrUnrecognizedStatus прерывают проход.
func (p *Pool) Rotate(ctx context.Context) error {
	// 1. Снимок очереди
	queued, inQueue, err := p.queueSnapshot(ctx)
	if err != nil {
		return err
	}
	cansubmit := queued == 0

	// 2. Обходим задачи
	var submitted, deleted int
	for _, j := range p.Jobs() {
		if err := ctx.Err(); err != nil {
			return err
		}

		logger := telemetry.WithJob(p.logger, j.Name)

		if err := j.log.Refresh(); err != nil {
			return fmt.Errorf("job %s: %w", j.Name, err)
		}
		if err := p.reconcile(j, inQueue, logger); err != nil {
			return err
		}

		switch status := j.Status(); status {
		case StatusSubmitted, StatusProcessing:
			// Задача в очереди, ждём.

		case StatusFailed:
			p.dequeue(ctx, j, inQueue, logger)
			if j.CountStatus(StatusFailed) < p.maxAttempts {
				if cansubmit {
					if p.submit(ctx, j, logger) {
						submitted++
					}
					cansubmit = false
				}
			} else {
				if err := p.delete(j, logger); err != nil {
					return err
				}
				deleted++
			}

		case StatusSuccessful:
			p.upload(ctx, j, logger)

		case StatusNew:
			if cansubmit {
				if p.submit(ctx, j, logger) {
					submitted++
				}
				cansubmit = false
			}

		case StatusUploaded:
			if err := p.delete(j, logger); err != nil {
				return err
			}
			deleted++

		case StatusDeleted:
			// Предыдущий запуск не успел убрать журнал в архив.
			if err := p.archive(j); err != nil {
				return err
			}
			logger.Info("archived previously deleted job")

		default:
			return fmt.Errorf("%w: %q (job %s)", ErrUnrecognizedStatus, status, j.Name)
		}
	}

	p.reportStatus()

	p.logger.Debug("rotation completed",
		"jobs", len(p.jobs),
		"queued", queued,
		"submitted", submitted,
		"deleted", deleted,
	)
	return nil
}

func (p *Pool) queueSnapshot(ctx context.Context) (int, map[string]bool, error) {
	qjobs, err := p.queue.Jobs(ctx)
	if err != nil {
		return 0, nil, fmt.Errorf("queue status: %w", err)
	}
	queued := 0
	ids := make(map[string]bool, len(qjobs))
	for _, qj := range qjobs {
		ids[qj.ID] = true
		if qj.State == batch.StateQueued {
			queued++
		}
	}
	return queued, ids, nil
}

// reconcile помечает как упавшую задачу, которая числится в очереди по журналу,
// но пропала из очереди без записи о результате.
func (p *Pool) reconcile(j *Job, inQueue map[string]bool, logger *slog.Logger) error {
	status := j.Status()
	if status != StatusSubmitted && status != StatusProcessing {
		return nil
	}
	id := j.QueueID()
	if id == "" || inQueue[id] {
		return nil
	}

	info := fmt.Sprintf("job %s left the queue without a result", id)
	if tail := p.outputTail(id); tail != "" {
		info += ": " + tail
	}

	logger.Warn("job vanished from queue", "queue_id", id, "status", status)
	return j.log.Append(p.entry(StatusFailed, info))
}

// outputTail возвращает хвост stderr, если задача писала в него, иначе хвост stdout.
func (p *Pool) outputTail(id string) string {
	if had, err := p.queue.HadErrors(id); err == nil && had {
		return "stderr: " + p.logTail(p.queue.ReadStderr, id)
	}
	if tail := p.logTail(p.queue.ReadStdout, id); tail != "" {
		return "stdout: " + tail
	}
	return ""
}

func (p *Pool) logTail(read func(id string) (string, error), id string) string {
	text, err := read(id)
	if err != nil {
		return ""
	}
	text = strings.TrimSpace(text)
	if text == "" {
		return ""
	}
	lines := strings.Split(text, "\n")
	if len(lines) > logTailLines {
		lines = lines[len(lines)-logTailLines:]
	}
	return strings.Join(lines, " | ")
}

// dequeue снимает с очереди упавшую задачу, которая всё ещё в ней числится,
// чтобы она не занимала слот перед повтором или удалением.
func (p *Pool) dequeue(ctx context.Context, j *Job, inQueue map[string]bool, logger *slog.Logger) {
	id := j.QueueID()
	if id == "" || !inQueue[id] {
		return
	}
	if err := p.queue.Delete(ctx, id); err != nil {
		logger.Warn("failed to remove failed job from queue", "queue_id", id, "error", err)
		return
	}
	delete(inQueue, id)
	logger.Info("failed job removed from queue", "queue_id", id)
}

// submit ставит задачу в очередь. Ошибка qsub логируется, задача остаётся
// в прежнем статусе до следующего прохода.
func (p *Pool) submit(ctx context.Context, j *Job, logger *slog.Logger) bool {
	outDir := filepath.Join(p.outputDir, j.Name)
	id, err := p.queue.Submit(ctx, j.Datafiles, outDir)
	if err != nil {
		logger.Error("failed to submit job", "error", err)
		return false
	}

	if err := j.log.Append(p.entry(StatusSubmitted, jobIDPrefix+id)); err != nil {
		// Задача уже в очереди; без записи следующий проход отправит её снова.
		logger.Error("failed to record submission", "queue_id", id, "error", err)
		return false
	}

	telemetry.JobSubmissions.Inc()
	logger.Info("job submitted", "queue_id", id, "attempt", j.CountStatus(StatusSubmitted))
	return true
}

func (p *Pool) upload(ctx context.Context, j *Job, logger *slog.Logger) {
	if p.uploader == nil {
		logger.Debug("no uploader configured, waiting for external upload")
		return
	}

	outDir := filepath.Join(p.outputDir, j.Name)
	if err := p.uploader.Upload(ctx, j.Name, outDir); err != nil {
		logger.Error("failed to upload results", "error", err)
		body := fmt.Sprintf("Results of job %s in %s could not be uploaded: %v", j.Name, outDir, err)
		if err := p.alerts.Notify(ctx, "Result upload failed: "+j.Name, body); err != nil {
			logger.Warn("failed to send alert", "error", err)
		}
		return
	}
	if err := j.log.Append(p.entry(StatusUploaded, "Results from "+outDir)); err != nil {
		logger.Error("failed to record upload", "error", err)
		return
	}
	logger.Info("results uploaded")
}

// Demand возвращает, сколько живых задач ссылается на каждый входной файл.
// Живые: new, submitted, in progress, successful и failed с неудачами < MaxAttempts.
func (p *Pool) Demand() map[string]int {
	demand := make(map[string]int)
	for _, j := range p.jobs {
		if !p.inDemand(j) {
			continue
		}
		for _, d := range j.Datafiles {
			demand[d]++
		}
	}
	return demand
}

func (p *Pool) inDemand(j *Job) bool {
	switch j.Status() {
	case StatusSubmitted, StatusProcessing, StatusSuccessful, StatusNew:
		return true
	case StatusFailed:
		return j.CountStatus(StatusFailed) < p.maxAttempts
	default:
		return false
	}
}

// delete завершает задачу: запись "Deleted", удаление невостребованных
// входных файлов, архивирование журнала.
func (p *Pool) delete(j *Job, logger *slog.Logger) error {
	if err := j.log.Append(p.entry(StatusDeleted, "")); err != nil {
		return fmt.Errorf("job %s: %w", j.Name, err)
	}

	if p.deleteRawdata {
		demand := p.Demand()
		for _, d := range j.Datafiles {
			if demand[d] > 0 {
				logger.Info("datafile still in demand, keeping", "path", d, "demand", demand[d])
				continue
			}
			if err := os.Remove(d); err != nil && !errors.Is(err, fs.ErrNotExist) {
				logger.Error("failed to remove datafile", "path", d, "error", err)
				continue
			}
			logger.Info("datafile removed", "path", d)
		}
	}

	if err := p.archive(j); err != nil {
		return err
	}

	telemetry.JobDeletions.Inc()
	logger.Info("job deleted", "failures", j.CountStatus(StatusFailed))
	return nil
}

func (p *Pool) archive(j *Job) error {
	if err := os.MkdirAll(p.archiveDir, 0o755); err != nil {
		return err
	}
	if err := os.Rename(j.log.Path(), p.archivePath(j.Name)); err != nil {
		return fmt.Errorf("archive log of %s: %w", j.Name, err)
	}
	delete(p.jobs, j.Name)
	return nil
}

func (p *Pool) reportStatus() {
	counts := make(map[string]int)
	for _, j := range p.jobs {
		counts[j.Status()]++
	}
	for _, s := range []string{StatusNew, StatusSubmitted, StatusProcessing, StatusSuccessful, StatusFailed, StatusUploaded} {
		telemetry.TrackedJobs.WithLabelValues(s).Set(float64(counts[s]))
	}
}
