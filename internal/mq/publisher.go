package mq

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	amqp "github.com/rabbitmq/amqp091-go"
)

// MessageType — тип сообщения.
type MessageType string

// Типы сообщений.
const (
	MessageTypeRestoreReady    MessageType = "restore.ready"
	MessageTypeRestoreFinished MessageType = "restore.finished"
	MessageTypeAlert           MessageType = "alert"
)

// Message — конверт сообщения.
type Message struct {
	ID        string          `json:"id"`
	Type      MessageType     `json:"type"`
	Payload   json.RawMessage `json:"payload"`
	Timestamp time.Time       `json:"timestamp"`
}

// NewMessage собирает конверт с новым ID.
func NewMessage(msgType MessageType, payload any) (*Message, error) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("marshal payload: %w", err)
	}
	return &Message{
		ID:        uuid.NewString(),
		Type:      msgType,
		Payload:   raw,
		Timestamp: time.Now().UTC(),
	}, nil
}

// DecodePayload разбирает payload сообщения в T.
func DecodePayload[T any](msg *Message) (T, error) {
	var out T
	if err := json.Unmarshal(msg.Payload, &out); err != nil {
		return out, fmt.Errorf("decode %s payload: %w", msg.Type, err)
	}
	return out, nil
}

// RestoreEvent — payload событий restore.
type RestoreEvent struct {
	GUID    string `json:"guid"`
	Status  string `json:"status"`
	Size    int64  `json:"size,omitempty"`
	Details string `json:"details,omitempty"`
}

// Alert — сообщение оператору.
type Alert struct {
	Service string `json:"service"`
	Host    string `json:"host,omitempty"`
	Subject string `json:"subject"`
	Body    string `json:"body"`
}

// Publisher публикует сообщения в RabbitMQ.
type Publisher struct {
	conn   *Connection
	logger *slog.Logger
}

// NewPublisher создаёт новый Publisher.
func NewPublisher(conn *Connection, logger *slog.Logger) *Publisher {
	if logger == nil {
		logger = slog.Default()
	}
	return &Publisher{conn: conn, logger: logger}
}

// Publish публикует сообщение в exchange с routing key.
func (p *Publisher) Publish(ctx context.Context, exchange Exchange, routingKey RoutingKey, msg *Message) error {
	body, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("marshal message: %w", err)
	}

	return p.conn.WithChannel(ctx, func(ch *amqp.Channel) error {
		err := ch.PublishWithContext(ctx, string(exchange), string(routingKey), false, false,
			amqp.Publishing{
				ContentType:  "application/json",
				DeliveryMode: amqp.Persistent,
				MessageId:    msg.ID,
				Timestamp:    msg.Timestamp,
				Type:         string(msg.Type),
				Body:         body,
			},
		)
		if err != nil {
			return fmt.Errorf("publish to %s/%s: %w", exchange, routingKey, err)
		}

		p.logger.Debug("published message",
			"exchange", exchange,
			"routing_key", routingKey,
			"message_id", msg.ID,
			"type", msg.Type,
		)
		return nil
	})
}

func (p *Publisher) publish(ctx context.Context, key RoutingKey, msgType MessageType, payload any) error {
	msg, err := NewMessage(msgType, payload)
	if err != nil {
		return err
	}
	return p.Publish(ctx, ExchangeEvents, key, msg)
}

// PublishRestoreReady сообщает, что файлы restore доступны на FTP.
func (p *Publisher) PublishRestoreReady(ctx context.Context, ev RestoreEvent) error {
	return p.publish(ctx, RoutingKeyRestoreReady, MessageTypeRestoreReady, ev)
}

// PublishRestoreFinished сообщает о финализации restore.
// Потребитель: surveyor-jobpool (запускает поиск новых datafiles).
func (p *Publisher) PublishRestoreFinished(ctx context.Context, ev RestoreEvent) error {
	return p.publish(ctx, RoutingKeyRestoreFinished, MessageTypeRestoreFinished, ev)
}

// PublishAlert отправляет сообщение оператору.
func (p *Publisher) PublishAlert(ctx context.Context, alert Alert) error {
	return p.publish(ctx, RoutingKeyAlert, MessageTypeAlert, alert)
}
