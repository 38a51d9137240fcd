// Package mq — события и оповещения Surveyor через RabbitMQ.
//
// Структура:
//   - connection.go — соединение с автоматическим переподключением
//   - topology.go   — exchanges, queues, bindings
//   - publisher.go  — конверт Message и публикация событий
//   - consumer.go   — потребление с ack/nack
//
// Типы сообщений:
//   - restore.ready    — файлы restore доступны на FTP
//   - restore.finished — restore финализирован; surveyor-jobpool ищет новые datafiles
//   - alert            — сообщение оператору
//
// RabbitMQ необязателен: без него демоны работают только по расписанию.
package mq
