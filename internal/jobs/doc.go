// Package jobs ведёт вычислительные задачи над скачанными данными.
//
// Состояние задачи хранится только в её журнале: append-only файле
// со строками вида
//
//	2020-01-01 00:00:00 -- New job -- hostA -- Datafiles: [a.fits]
//
// Текст после "#" — комментарий. Текущий статус задачи — статус последней
// записи. Журнал читается строго: одна неверная строка делает недействительным
// весь журнал (ErrMalformedLog).
//
// Pool.Rotate выполняет один проход по всем задачам:
//
//	new job                -> submit (если свободен слот)
//	processing failed      -> resubmit, пока число неудач < MaxAttempts, иначе delete
//	processing successful  -> upload
//	upload successful      -> delete
//
// За проход в очередь отправляется не больше одной задачи, и только если в
// очереди нет наших задач в состоянии Q. Входные файлы удаляются, только
// если ни одна живая задача на них не ссылается.
package jobs
