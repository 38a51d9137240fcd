// Package restore — клиент удалённого сервиса restore (SOAP 1.1 поверх HTTP).
//
// Используются две операции:
//   - Restore  — запросить подготовку файлов, ответ guid или "fail"
//   - Location — узнать состояние restore по guid, ответ "done" когда файлы на FTP
//
// HTTP-повторы на 5xx и сетевых ошибках делает go-retryablehttp.
package restore
