package repo

import (
	"context"
	"fmt"
	"path/filepath"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/shaiso/Surveyor/internal/domain"
)

const downloadColumns = `d.id, d.request_id, d.remote_filename, d.local_path, d.status, d.size, d.details, d.created_at, d.updated_at`

// DownloadSummary — Download вместе с числом попыток.
type DownloadSummary struct {
	domain.Download
	Attempts int `db:"attempts" json:"attempts"`
}

// DownloadRepo — репозиторий скачиваний и попыток.
type DownloadRepo struct {
	store *Store
}

// NewDownloadRepo создаёт новый DownloadRepo.
func NewDownloadRepo(store *Store) *DownloadRepo {
	return &DownloadRepo{store: store}
}

// CreateMissing создаёт записи для файлов, которых ещё нет у restore.
// Уже существующие пары (request_id, remote_filename) не трогаются.
func (r *DownloadRepo) CreateMissing(ctx context.Context, requestID int64, stagingDir string, files []domain.RemoteFile) error {
	if len(files) == 0 {
		return nil
	}

	now := time.Now().UTC()
	stmts := make([]Stmt, 0, len(files))
	for _, f := range files {
		stmts = append(stmts, Q(`
			INSERT INTO downloads (request_id, remote_filename, local_path, status, size, details, created_at, updated_at)
			VALUES (?, ?, ?, ?, ?, '', ?, ?)
			ON CONFLICT (request_id, remote_filename) DO NOTHING`,
			requestID, f.Name, filepath.Join(stagingDir, f.Name), domain.DownloadStatusNew, f.Size, now, now,
		))
	}

	if _, err := r.store.Execute(ctx, stmts...); err != nil {
		return fmt.Errorf("create downloads: %w", err)
	}
	return nil
}

// ListByRequest возвращает скачивания restore с числом попыток.
func (r *DownloadRepo) ListByRequest(ctx context.Context, requestID int64) ([]DownloadSummary, error) {
	var out []DownloadSummary
	err := r.store.Transact(ctx, func(tx *sqlx.Tx) error {
		out = nil
		return tx.SelectContext(ctx, &out, tx.Rebind(`
			SELECT `+downloadColumns+`,
			       (SELECT COUNT(*) FROM download_attempts a WHERE a.download_id = d.id) AS attempts
			FROM downloads d
			WHERE d.request_id = ?
			ORDER BY d.id`), requestID)
	})
	if err != nil {
		return nil, fmt.Errorf("list downloads: %w", err)
	}
	return out, nil
}

// ListAttempts возвращает попытки скачивания, старые первыми.
func (r *DownloadRepo) ListAttempts(ctx context.Context, downloadID int64) ([]domain.DownloadAttempt, error) {
	var out []domain.DownloadAttempt
	err := r.store.Transact(ctx, func(tx *sqlx.Tx) error {
		out = nil
		return tx.SelectContext(ctx, &out, tx.Rebind(`
			SELECT id, download_id, status, details, created_at, updated_at
			FROM download_attempts
			WHERE download_id = ?
			ORDER BY id`), downloadID)
	})
	if err != nil {
		return nil, fmt.Errorf("list attempts: %w", err)
	}
	return out, nil
}

// StartAttempt создаёт попытку и переводит скачивание в downloading.
// Обе записи фиксируются одной транзакцией.
func (r *DownloadRepo) StartAttempt(ctx context.Context, downloadID int64, details string) (int64, error) {
	now := time.Now().UTC()
	res, err := r.store.Execute(ctx,
		Q(`INSERT INTO download_attempts (download_id, status, details, created_at, updated_at)
		   VALUES (?, ?, ?, ?, ?) RETURNING id`,
			downloadID, domain.DownloadStatusDownloading, details, now, now),
		Q(`UPDATE downloads SET status = ?, details = ?, updated_at = ? WHERE id = ?`,
			domain.DownloadStatusDownloading, details, now, downloadID),
	)
	if err != nil {
		return 0, fmt.Errorf("start attempt: %w", err)
	}
	return res.LastInsertID, nil
}

// Reconcile записывает статус скачивания и его попытки одной транзакцией.
func (r *DownloadRepo) Reconcile(ctx context.Context, downloadID, attemptID int64, status domain.DownloadStatus, details string) error {
	now := time.Now().UTC()
	_, err := r.store.Execute(ctx,
		Q(`UPDATE download_attempts SET status = ?, details = ?, updated_at = ? WHERE id = ?`,
			status, details, now, attemptID),
		Q(`UPDATE downloads SET status = ?, details = ?, updated_at = ? WHERE id = ?`,
			status, details, now, downloadID),
	)
	if err != nil {
		return fmt.Errorf("reconcile download %d: %w", downloadID, err)
	}
	return nil
}

// FailInterrupted помечает failed скачивания restore, оставшиеся в downloading
// после аварийного завершения процесса, вместе с их открытыми попытками.
// Возвращает число затронутых скачиваний.
func (r *DownloadRepo) FailInterrupted(ctx context.Context, requestID int64, details string) (int64, error) {
	now := time.Now().UTC()
	res, err := r.store.Execute(ctx,
		Q(`UPDATE download_attempts SET status = ?, details = ?, updated_at = ?
		   WHERE status = ? AND download_id IN (SELECT id FROM downloads WHERE request_id = ?)`,
			domain.DownloadStatusFailed, details, now, domain.DownloadStatusDownloading, requestID),
		Q(`UPDATE downloads SET status = ?, details = ?, updated_at = ?
		   WHERE request_id = ? AND status = ? RETURNING id`,
			domain.DownloadStatusFailed, details, now, requestID, domain.DownloadStatusDownloading),
	)
	if err != nil {
		return 0, fmt.Errorf("fail interrupted downloads: %w", err)
	}
	return int64(len(res.Rows)), nil
}

// CountByStatus возвращает число скачиваний по статусам.
func (r *DownloadRepo) CountByStatus(ctx context.Context) (map[string]int64, error) {
	res, err := r.store.Execute(ctx, Q(`SELECT status, COUNT(*) AS n FROM downloads GROUP BY status`))
	if err != nil {
		return nil, fmt.Errorf("count downloads: %w", err)
	}
	counts := make(map[string]int64, len(res.Rows))
	for _, row := range res.Rows {
		counts[row.String("status")] = row.Int64("n")
	}
	return counts, nil
}
