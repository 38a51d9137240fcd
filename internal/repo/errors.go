package repo

import "errors"

// Ошибки tracker store.
var (
	// ErrNotFound — запись не найдена.
	ErrNotFound = errors.New("not found")

	// ErrAlreadyExists — restore с таким guid уже записан.
	ErrAlreadyExists = errors.New("already exists")

	// ErrInvalidState — переход статуса запрещён (назад или из терминального).
	ErrInvalidState = errors.New("invalid state")
)
