package worker

import "errors"

// Ошибки воркера.
var (
	// ErrSizeMismatch — размер скачанного файла не совпал с размером на сервере.
	ErrSizeMismatch = errors.New("downloaded size mismatch")

	// ErrLocalFile — не удалось создать или записать локальный файл.
	ErrLocalFile = errors.New("local file error")
)
