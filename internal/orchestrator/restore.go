package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/dustin/go-humanize"

	"github.com/shaiso/Surveyor/internal/domain"
	"github.com/shaiso/Surveyor/internal/ftpclient"
	"github.com/shaiso/Surveyor/internal/mq"
	"github.com/shaiso/Surveyor/internal/repo"
	"github.com/shaiso/Surveyor/internal/restore"
	"github.com/shaiso/Surveyor/internal/telemetry"
	"github.com/shaiso/Surveyor/internal/worker"
)

// step продвигает restore на один шаг. Возвращает true, если restore
// нужно убрать из рабочего набора.
func (o *Orchestrator) step(ctx context.Context, st *RestoreState) bool {
	logger := telemetry.WithRequest(o.logger, st.GUID())

	req, err := o.requests.GetByGUID(ctx, st.GUID())
	if err != nil {
		logger.Error("failed to reload restore", "error", err)
		return false
	}
	st.setRequest(*req)

	switch req.Status {
	case domain.RequestStatusWaiting:
		o.checkLocation(ctx, st, logger)
		return false
	case domain.RequestStatusReady:
		return o.advanceReady(ctx, st, logger)
	default:
		logger.Info("restore is terminal", "status", req.Status)
		return true
	}
}

// checkLocation переводит restore в ready, когда сервис сообщает о готовности.
func (o *Orchestrator) checkLocation(ctx context.Context, st *RestoreState, logger *slog.Logger) {
	location, err := o.restore.QueryLocation(ctx, st.GUID())
	if err != nil {
		logger.Warn("location query failed", "error", err)
		return
	}
	if location != restore.LocationDone {
		logger.Debug("restore not ready yet", "location", location)
		return
	}

	if err := o.requests.Transition(ctx, st.GUID(), domain.RequestStatusReady, "Restore ready on FTP"); err != nil {
		logger.Error("failed to mark restore ready", "error", err)
		return
	}
	logger.Info("restore ready")

	o.publishReady(ctx, st.GUID(), logger)
}

// advanceReady сверяет воркеры, оценивает завершение и запускает недостающие
// воркеры. Возвращает true, когда restore стал терминальным.
func (o *Orchestrator) advanceReady(ctx context.Context, st *RestoreState, logger *slog.Logger) bool {
	o.reconcile(ctx, st, logger)

	downloads, err := o.downloads.ListByRequest(ctx, st.Request().ID)
	if err != nil {
		logger.Error("failed to list downloads", "error", err)
		return false
	}

	if c := evaluate(downloads, o.maxRetries); c.done {
		return o.finish(ctx, st, c, logger)
	}

	if len(downloads) == 0 {
		err := o.listRemote(ctx, st, logger)
		switch {
		case errors.Is(err, ftpclient.ErrDirNotFound):
			o.failMissingDir(ctx, st, err, logger)
			return true
		case errors.Is(err, ErrEmptyRestoreDir):
			logger.Warn("restore directory is empty, will list again")
			return false
		case err != nil:
			logger.Error("failed to list restore directory", "error", err)
			return false
		}

		downloads, err = o.downloads.ListByRequest(ctx, st.Request().ID)
		if err != nil {
			logger.Error("failed to list downloads", "error", err)
			return false
		}
	}

	o.spawn(ctx, st, downloads, logger)
	return false
}

// reconcile записывает результаты завершившихся воркеров и прогресс живых.
// downloaded принимается только при совпадении размера локального файла.
func (o *Orchestrator) reconcile(ctx context.Context, st *RestoreState, logger *slog.Logger) {
	for name, h := range st.liveHandles() {
		job := h.Job()

		select {
		case res := <-h.Done():
			res = worker.Verify(res)
			if err := o.downloads.Reconcile(ctx, job.DownloadID, job.AttemptID, res.Status, res.Details); err != nil {
				logger.Error("failed to record download result", "file", name, "error", err)
			}
			st.removeHandle(name)

			telemetry.DownloadAttempts.WithLabelValues(string(res.Status)).Inc()
			if res.Status == domain.DownloadStatusDownloaded {
				telemetry.DownloadedBytes.Add(float64(res.Bytes))
			}
			logger.Info("download attempt finished",
				"file", name,
				"attempt_id", job.AttemptID,
				"status", res.Status,
				"details", res.Details,
			)

		default:
			if err := o.downloads.Reconcile(ctx, job.DownloadID, job.AttemptID, domain.DownloadStatusDownloading, h.Details()); err != nil {
				logger.Error("failed to record download progress", "file", name, "error", err)
			}
		}
	}
}

// completion — итог оценки скачиваний restore.
type completion struct {
	done      bool
	total     int
	exhausted int // failed с исчерпанными попытками
}

// evaluate применяет правило завершения restore.
//
// Restore завершён, когда все скачивания downloaded, или когда не осталось
// downloading и new, а каждое failed исчерпало попытки. Пока хоть одно
// скачивание downloading, restore не завершён. Restore без скачиваний
// не завершён.
func evaluate(downloads []repo.DownloadSummary, maxRetries int) completion {
	c := completion{total: len(downloads)}
	if c.total == 0 {
		return c
	}

	for _, d := range downloads {
		switch d.Status {
		case domain.DownloadStatusDownloaded:
		case domain.DownloadStatusFailed:
			policy := domain.RetryPolicy{AttemptsUsed: d.Attempts, MaxAttempts: maxRetries}
			if !policy.Exhausted() {
				return completion{total: c.total}
			}
			c.exhausted++
		default:
			return completion{total: c.total}
		}
	}

	c.done = true
	return c
}

// finish переводит restore в finished.
// Restore с исчерпанными попытками тоже становится finished; оператор получает оповещение.
func (o *Orchestrator) finish(ctx context.Context, st *RestoreState, c completion, logger *slog.Logger) bool {
	details := fmt.Sprintf("all %d files downloaded", c.total)
	if c.exhausted > 0 {
		details = fmt.Sprintf("%d of %d files failed after %d attempts", c.exhausted, c.total, o.maxRetries)
	}

	if err := o.requests.Transition(ctx, st.GUID(), domain.RequestStatusFinished, details); err != nil {
		logger.Error("failed to finish restore", "error", err)
		return errors.Is(err, repo.ErrInvalidState)
	}
	logger.Info("restore finished", "details", details)

	if c.exhausted > 0 {
		o.alert(ctx, "restore finished with failed downloads",
			fmt.Sprintf("Restore %s finished, but %s.", st.GUID(), details), logger)
	}

	o.publishFinished(ctx, st.GUID(), domain.RequestStatusFinished, details, logger)
	return true
}

// failMissingDir переводит restore в failed: сервис сообщил о готовности,
// а каталога restore на FTP нет.
func (o *Orchestrator) failMissingDir(ctx context.Context, st *RestoreState, cause error, logger *slog.Logger) {
	const details = "request directory not found"

	if err := o.requests.Transition(ctx, st.GUID(), domain.RequestStatusFailed, details); err != nil {
		logger.Error("failed to mark restore failed", "error", err)
	}
	logger.Error("restore directory missing on FTP", "error", cause)

	o.alert(ctx, "restore directory not found",
		fmt.Sprintf("The restore service reported restore %s as ready, but its directory does not exist on the FTP server.", st.GUID()),
		logger)

	o.publishFinished(ctx, st.GUID(), domain.RequestStatusFailed, details, logger)
}

// listRemote читает каталог restore и создаёт недостающие записи downloads.
func (o *Orchestrator) listRemote(ctx context.Context, st *RestoreState, logger *slog.Logger) error {
	s, err := o.dialer.Open(ctx, st.GUID())
	if err != nil {
		return err
	}
	defer s.Close()

	names, err := s.List()
	if err != nil {
		return err
	}

	var (
		files []domain.RemoteFile
		total int64
	)
	for _, name := range names {
		if o.ignorePattern != nil && o.ignorePattern.MatchString(name) {
			logger.Debug("ignoring remote file", "file", name)
			continue
		}
		size, err := s.Size(name)
		if err != nil {
			return err
		}
		files = append(files, domain.RemoteFile{Name: name, Size: size})
		total += size
	}
	if len(files) == 0 {
		return ErrEmptyRestoreDir
	}

	if err := o.downloads.CreateMissing(ctx, st.Request().ID, o.stagingDir, files); err != nil {
		return err
	}
	if err := o.requests.SetSize(ctx, st.GUID(), total); err != nil {
		return err
	}

	logger.Info("restore listed", "files", len(files), "size", humanize.IBytes(uint64(total)))
	return nil
}

// spawn запускает воркеры для недокачанных файлов без живого воркера,
// пока RetryPolicy разрешает попытку.
func (o *Orchestrator) spawn(ctx context.Context, st *RestoreState, downloads []repo.DownloadSummary, logger *slog.Logger) {
	for _, d := range downloads {
		if d.Status == domain.DownloadStatusDownloaded {
			continue
		}
		if _, live := st.handle(d.RemoteFilename); live {
			continue
		}

		policy := domain.RetryPolicy{AttemptsUsed: d.Attempts, MaxAttempts: o.maxRetries}
		if policy.Next() == domain.RetryExhausted {
			continue
		}

		details := fmt.Sprintf("attempt %d of %d", d.Attempts+1, o.maxRetries)
		attemptID, err := o.downloads.StartAttempt(ctx, d.ID, details)
		if err != nil {
			logger.Error("failed to start download attempt", "file", d.RemoteFilename, "error", err)
			continue
		}

		h := o.workers.Start(worker.Job{
			DownloadID:   d.ID,
			AttemptID:    attemptID,
			Dir:          st.GUID(),
			RemoteName:   d.RemoteFilename,
			LocalPath:    d.LocalPath,
			ExpectedSize: d.Size,
		})
		st.addHandle(d.RemoteFilename, h)

		logger.Info("download attempt started", "file", d.RemoteFilename, "attempt", details, "token", h.Token())
	}
}

func (o *Orchestrator) alert(ctx context.Context, subject, body string, logger *slog.Logger) {
	if err := o.alerts.Notify(ctx, subject, body); err != nil {
		logger.Warn("failed to send operator alert", "subject", subject, "error", err)
	}
}

func (o *Orchestrator) publishReady(ctx context.Context, guid string, logger *slog.Logger) {
	if o.events == nil {
		return
	}
	ev := mq.RestoreEvent{GUID: guid, Status: string(domain.RequestStatusReady)}
	if err := o.events.PublishRestoreReady(ctx, ev); err != nil {
		logger.Warn("failed to publish restore.ready", "error", err)
	}
}

func (o *Orchestrator) publishFinished(ctx context.Context, guid string, status domain.RequestStatus, details string, logger *slog.Logger) {
	if o.events == nil {
		return
	}
	ev := mq.RestoreEvent{GUID: guid, Status: string(status), Details: details}
	if req, err := o.requests.GetByGUID(ctx, guid); err == nil {
		ev.Size = req.KnownSize()
	}
	if err := o.events.PublishRestoreFinished(ctx, ev); err != nil {
		logger.Warn("failed to publish restore.finished", "error", err)
	}
}
