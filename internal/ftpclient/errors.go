package ftpclient

import "errors"

// Ошибки FTP-клиента.
var (
	// ErrLoginRejected — сервер отверг учётные данные. Не повторяется.
	ErrLoginRejected = errors.New("ftp login rejected")

	// ErrDirNotFound — сервер отверг переход в каталог restore. Не повторяется.
	ErrDirNotFound = errors.New("ftp directory not found")

	// ErrSizeMismatch — размер загруженного файла на сервере не совпал с локальным.
	ErrSizeMismatch = errors.New("ftp upload size mismatch")
)
