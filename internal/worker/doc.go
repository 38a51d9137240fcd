// Package worker скачивает отдельные файлы restore.
//
// # Обзор
//
// Каждый файл скачивается своей горутиной. Pool.Start запускает воркер
// и возвращает Handle, которым владеет состояние restore в оркестраторе:
//
//	h := pool.Start(worker.Job{
//	    DownloadID:   d.ID,
//	    AttemptID:    attemptID,
//	    Dir:          req.GUID,
//	    RemoteName:   d.RemoteFilename,
//	    LocalPath:    d.LocalPath,
//	    ExpectedSize: d.Size,
//	})
//
//	select {
//	case res := <-h.Done():
//	    res = worker.Verify(res)
//	    // записать res.Status и res.Details
//	default:
//	    // ещё идёт: h.Details() описывает прогресс
//	}
//
// # Жизненный цикл
//
//  1. Open в каталоге restore: сетевые ошибки повторяются бесконечно,
//     отказ login или cwd завершает попытку статусом failed.
//  2. Создание локального файла (каталог создаётся при необходимости).
//  3. Retrieve с обновлением прогресса после каждого блока.
//  4. Результат downloaded или failed с описанием отправляется в Done().
//
// Воркеры не отменяются оркестратором: они работают на фоновом контексте
// до завершения передачи или процесса.
//
// # Проверка
//
// Verify принимает downloaded, только если размер локального файла равен
// ожидаемому; иначе результат переклассифицируется в failed.
package worker
