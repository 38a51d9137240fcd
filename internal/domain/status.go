package domain

// RequestStatus — статус restore-запроса.
//
// Жизненный цикл:
//
//	waiting → ready → finished
//	                ↘ failed
//	(или) waiting → failed (явное терминальное присваивание)
type RequestStatus string

const (
	// RequestStatusWaiting — restore запрошен, удалённый сервис ещё готовит файлы.
	RequestStatusWaiting RequestStatus = "waiting"

	// RequestStatusReady — файлы доступны на FTP, идёт скачивание.
	RequestStatusReady RequestStatus = "ready"

	// RequestStatusFinished — все файлы скачаны (или попытки исчерпаны).
	RequestStatusFinished RequestStatus = "finished"

	// RequestStatusFailed — restore не может быть завершён.
	RequestStatusFailed RequestStatus = "failed"
)

// IsTerminal возвращает true, если статус финальный.
func (s RequestStatus) IsTerminal() bool {
	switch s {
	case RequestStatusFinished, RequestStatusFailed:
		return true
	default:
		return false
	}
}

// IsValid проверяет, что статус известен.
func (s RequestStatus) IsValid() bool {
	switch s {
	case RequestStatusWaiting, RequestStatusReady, RequestStatusFinished, RequestStatusFailed:
		return true
	default:
		return false
	}
}

// CanTransitionTo проверяет, допустим ли переход из s в next.
//
// Переходы только вперёд и без пропусков. Исключение — failed:
// его можно присвоить из любого нетерминального статуса.
func (s RequestStatus) CanTransitionTo(next RequestStatus) bool {
	if s.IsTerminal() || !next.IsValid() {
		return false
	}
	switch next {
	case RequestStatusFailed:
		return true
	case RequestStatusReady:
		return s == RequestStatusWaiting
	case RequestStatusFinished:
		return s == RequestStatusReady
	default:
		return false
	}
}

// DownloadStatus — статус скачивания одного файла.
// Тот же набор значений используется для DownloadAttempt.
//
// Жизненный цикл:
//
//	new → downloading → downloaded
//	                  ↘ failed (→ downloading при новой попытке)
type DownloadStatus string

const (
	// DownloadStatusNew — запись создана, попыток ещё не было.
	DownloadStatusNew DownloadStatus = "new"

	// DownloadStatusDownloading — работает worker.
	DownloadStatusDownloading DownloadStatus = "downloading"

	// DownloadStatusDownloaded — файл скачан, размер совпал.
	DownloadStatusDownloaded DownloadStatus = "downloaded"

	// DownloadStatusFailed — последняя попытка не удалась.
	DownloadStatusFailed DownloadStatus = "failed"
)

// IsTerminal возвращает true для downloaded.
// failed не терминален: решение о новой попытке принимает RetryPolicy.
func (s DownloadStatus) IsTerminal() bool {
	return s == DownloadStatusDownloaded
}
