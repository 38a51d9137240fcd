// Package telemetry — логи и метрики демонов Surveyor.
//
// logging.go настраивает slog по LOG_FORMAT и LOG_LEVEL и добавляет
// атрибуты request_guid, download_id, job. metrics.go регистрирует
// метрики surveyor_* в default registry, их отдаёт /metrics каждого демона.
package telemetry
