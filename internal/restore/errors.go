package restore

import "errors"

// Ошибки клиента restore-сервиса.
var (
	// ErrRefused — сервис ответил "fail" вместо guid.
	ErrRefused = errors.New("restore refused by remote service")

	// ErrFault — сервис вернул SOAP Fault.
	ErrFault = errors.New("soap fault")

	// ErrMalformedResponse — в ответе нет ожидаемого элемента *Result.
	ErrMalformedResponse = errors.New("malformed soap response")
)
