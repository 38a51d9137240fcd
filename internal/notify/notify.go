// Package notify доставляет оповещения оператору.
//
// Оповещения отправляются при отсутствии каталога restore, при финализации
// restore с исчерпанными попытками, при ошибке загрузки результатов и перед
// аварийным завершением surveyor-jobpool.
package notify

import (
	"context"
	"log/slog"
	"os"

	"github.com/shaiso/Surveyor/internal/mq"
)

// Notifier отправляет оповещение оператору.
type Notifier interface {
	Notify(ctx context.Context, subject, body string) error
}

// AlertPublisher — часть mq.Publisher, нужная оповещениям.
type AlertPublisher interface {
	PublishAlert(ctx context.Context, alert mq.Alert) error
}

// LogNotifier пишет оповещения в лог.
type LogNotifier struct {
	logger *slog.Logger
}

// NewLogNotifier создаёт LogNotifier.
func NewLogNotifier(logger *slog.Logger) *LogNotifier {
	if logger == nil {
		logger = slog.Default()
	}
	return &LogNotifier{logger: logger}
}

// Notify всегда успешен.
func (n *LogNotifier) Notify(ctx context.Context, subject, body string) error {
	n.logger.Error("operator alert", "subject", subject, "body", body)
	return nil
}

// MQNotifier публикует оповещения в RabbitMQ и дублирует их в лог.
type MQNotifier struct {
	publisher AlertPublisher
	service   string
	host      string
	log       *LogNotifier
}

// NewMQNotifier создаёт MQNotifier.
func NewMQNotifier(publisher AlertPublisher, service string, logger *slog.Logger) *MQNotifier {
	host, _ := os.Hostname()
	return &MQNotifier{
		publisher: publisher,
		service:   service,
		host:      host,
		log:       NewLogNotifier(logger),
	}
}

// Notify пишет оповещение в лог и публикует его.
// Ошибка публикации возвращается, запись в лог остаётся.
func (n *MQNotifier) Notify(ctx context.Context, subject, body string) error {
	_ = n.log.Notify(ctx, subject, body)
	return n.publisher.PublishAlert(ctx, mq.Alert{
		Service: n.service,
		Host:    n.host,
		Subject: subject,
		Body:    body,
	})
}

// New возвращает MQNotifier при наличии publisher, иначе LogNotifier.
func New(publisher *mq.Publisher, service string, logger *slog.Logger) Notifier {
	if publisher == nil {
		return NewLogNotifier(logger)
	}
	return NewMQNotifier(publisher, service, logger)
}
