package orchestrator

import "errors"

// Ошибки оркестратора.
var (
	// ErrRestoreAlreadyActive — restore уже в рабочем наборе.
	ErrRestoreAlreadyActive = errors.New("restore already active")

	// ErrEmptyRestoreDir — в каталоге restore нет файлов для скачивания.
	ErrEmptyRestoreDir = errors.New("restore directory has no files")
)
