package batch

import "errors"

// Ошибки клиента очереди.
var (
	// ErrNoJobID — qsub завершился успешно, но не вернул идентификатор.
	ErrNoJobID = errors.New("no job identifier returned by qsub")

	// ErrNotDeleted — задача осталась в очереди после qdel.
	ErrNotDeleted = errors.New("job still queued after qdel")

	// ErrNoStderrLog — stderr-лог задачи не найден.
	ErrNoStderrLog = errors.New("stderr log not found")
)
