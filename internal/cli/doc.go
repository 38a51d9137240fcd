// Package cli реализует инструмент командной строки Surveyor.
//
// CLI работает через HTTP status API и не импортирует внутренние пакеты.
// Изменять состояние через CLI нельзя, только смотреть.
//
// Client — HTTP-клиент API. Ответы приходят в конверте {"data", "total"} или {"error"}.
//
//	client := cli.NewClient("http://localhost:8090")
//	reqs, err := client.ListRequests(cli.ListRequestsOpts{Status: "ready"})
//
// Output печатает таблицу (text/tabwriter) или JSON (--json).
// Данные идут в stdout, сообщения в stderr:
//
//	surveyor requests list --json | jq .
//
// Команды: requests (list, show), downloads, stats, active. Каждая создаётся
// фабрикой, принимающей clientFn и outputFn, чтобы Client и Output строились
// после разбора PersistentFlags.
package cli
