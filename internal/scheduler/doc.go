// Package scheduler запускает проходы job pool по расписанию.
//
// Scheduler выполняет Discover + Rotate по cron-расписанию (по умолчанию
// "@every 30s") и по внешнему сигналу TriggerNow (событие restore.finished).
// Проходы никогда не пересекаются: все вызовы идут через singleflight.
//
// Структура:
//   - scheduler.go — Scheduler (Run, Pass, TriggerNow)
//   - cron.go      — разбор и проверка расписания, адаптер логгера cron
//
// Использование:
//
//	sched, err := scheduler.New(scheduler.Config{
//	    Pool:     pool,
//	    Schedule: cfg.Pool.Schedule,
//	    Notifier: notifier,
//	    Logger:   logger,
//	})
//
//	// Блокируется до отмены ctx или фатальной ошибки прохода
//	if err := sched.Run(ctx); err != nil {
//	    os.Exit(1)
//	}
//
// Фатальные ошибки (испорченный журнал, неизвестный статус) отправляются
// оператору через Notifier, после чего Run возвращает ошибку.
package scheduler
