// Package api содержит HTTP API статуса Surveyor (только чтение).
//
// Структура:
//   - handler.go         — Handler с DI (репозитории, orchestrator, logger)
//   - routes.go          — регистрация маршрутов
//   - middleware.go      — instrument: recover, debug-лог, гистограмма задержек
//   - response.go        — унифицированные JSON-ответы и обработка ошибок
//   - dto.go             — ответы API
//   - request_handler.go — обработчики для /requests
//   - stats_handler.go   — обработчики для /stats и /active
//
// Изменять состояние через API нельзя: restore создаёт только orchestrator.
package api
