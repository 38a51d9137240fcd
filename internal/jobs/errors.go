package jobs

import "errors"

var (
	// ErrMalformedLog — строка журнала не соответствует грамматике.
	// Журнал целиком считается испорченным.
	ErrMalformedLog = errors.New("malformed job log")

	// ErrUnrecognizedStatus — последний статус журнала неизвестен.
	ErrUnrecognizedStatus = errors.New("unrecognized job status")

	// ErrNotFITS — первый файл задачи не FITS.
	ErrNotFITS = errors.New("first datafile is not a FITS file")

	// ErrNoOutput — у задачи нет каталога с результатами.
	ErrNoOutput = errors.New("job output not found")
)

// IsFatal сообщает, что ошибка означает порчу журналов и проход нельзя продолжать.
func IsFatal(err error) bool {
	return errors.Is(err, ErrMalformedLog) || errors.Is(err, ErrUnrecognizedStatus)
}
