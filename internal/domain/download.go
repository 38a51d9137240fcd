package domain

import "time"

// Download — один удалённый файл restore'а.
//
// Записи создаются лениво, когда Request впервые становится ready.
// Пара (RequestID, RemoteFilename) уникальна.
type Download struct {
	ID        int64 `db:"id" json:"id"`
	RequestID int64 `db:"request_id" json:"request_id"`

	// RemoteFilename — имя файла в каталоге restore на FTP.
	RemoteFilename string `db:"remote_filename" json:"remote_filename"`

	// LocalPath — путь назначения в staging-каталоге.
	LocalPath string `db:"local_path" json:"local_path"`

	Status DownloadStatus `db:"status" json:"status"`

	// Size — ожидаемый размер в байтах (по SIZE на FTP).
	Size int64 `db:"size" json:"size"`

	// Details — последний прогресс или причина ошибки.
	Details string `db:"details" json:"details"`

	CreatedAt time.Time `db:"created_at" json:"created_at"`
	UpdatedAt time.Time `db:"updated_at" json:"updated_at"`
}

// DownloadAttempt — одна попытка worker'а скачать Download.
type DownloadAttempt struct {
	ID         int64          `db:"id" json:"id"`
	DownloadID int64          `db:"download_id" json:"download_id"`
	Status     DownloadStatus `db:"status" json:"status"`
	Details    string         `db:"details" json:"details"`
	CreatedAt  time.Time      `db:"created_at" json:"created_at"`
	UpdatedAt  time.Time      `db:"updated_at" json:"updated_at"`
}

// RemoteFile — файл в каталоге restore на FTP.
type RemoteFile struct {
	Name string
	Size int64
}
