// Package orchestrator управляет скачиванием restores.
//
// Orchestrator отвечает за:
//   - Допуск новых restores (лимит числа и квота диска)
//   - Продвижение каждого restore по статусам waiting → ready → finished|failed
//   - Создание записей downloads по листингу каталога restore на FTP
//   - Запуск воркера на каждый файл в пределах лимита попыток
//   - Сверку результатов воркеров с хранилищем
//   - Восстановление рабочего набора после рестарта
//
// Один управляющий цикл (pollLoop) выполняет Tick с фиксированным интервалом.
// Хранилище — единственный источник истины: перед каждым решением состояние
// restore перечитывается.
package orchestrator
