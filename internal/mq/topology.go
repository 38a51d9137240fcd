package mq

import (
	"context"
	"fmt"

	amqp "github.com/rabbitmq/amqp091-go"
)

// Exchange — тип для имени обменника.
type Exchange string

// Queue — тип для имени очереди.
type Queue string

// RoutingKey — тип для ключа маршрутизации.
type RoutingKey string

// Exchanges.
const (
	ExchangeEvents Exchange = "surveyor.events"
	ExchangeDLQ    Exchange = "surveyor.dlq"
)

// Queues.
const (
	QueueRestoresFinished Queue = "jobpool.restores"
	QueueAlerts           Queue = "operator.alerts"
	QueueDLQ              Queue = "dlq.events"
)

// Routing keys.
const (
	RoutingKeyRestoreReady    RoutingKey = "restore.ready"
	RoutingKeyRestoreFinished RoutingKey = "restore.finished"
	RoutingKeyAlert           RoutingKey = "alert.operator"
	RoutingKeyDLQ             RoutingKey = "events"
)

type exchangeDecl struct {
	name Exchange
	kind string
}

type queueDecl struct {
	name Queue
	dlq  bool
}

type bindingDecl struct {
	queue    Queue
	pattern  string
	exchange Exchange
}

var (
	exchanges = []exchangeDecl{
		{ExchangeEvents, amqp.ExchangeTopic},
		{ExchangeDLQ, amqp.ExchangeDirect},
	}

	queues = []queueDecl{
		{QueueRestoresFinished, true},
		{QueueAlerts, false},
		{QueueDLQ, false},
	}

	// restore.ready публикуется без постоянной очереди: его читают только
	// временные подписчики (например, оператор через rabbitmqadmin).
	bindings = []bindingDecl{
		{QueueRestoresFinished, string(RoutingKeyRestoreFinished), ExchangeEvents},
		{QueueAlerts, "alert.#", ExchangeEvents},
		{QueueDLQ, string(RoutingKeyDLQ), ExchangeDLQ},
	}
)

// SetupTopology объявляет exchanges, queues и bindings. Операция идемпотентна.
func SetupTopology(ctx context.Context, conn *Connection) error {
	return conn.WithChannel(ctx, func(ch *amqp.Channel) error {
		for _, ex := range exchanges {
			if err := ch.ExchangeDeclare(string(ex.name), ex.kind, true, false, false, false, nil); err != nil {
				return fmt.Errorf("declare exchange %s: %w", ex.name, err)
			}
		}

		for _, q := range queues {
			var args amqp.Table
			if q.dlq {
				args = amqp.Table{
					"x-dead-letter-exchange":    string(ExchangeDLQ),
					"x-dead-letter-routing-key": string(RoutingKeyDLQ),
				}
			}
			if _, err := ch.QueueDeclare(string(q.name), true, false, false, false, args); err != nil {
				return fmt.Errorf("declare queue %s: %w", q.name, err)
			}
		}

		for _, b := range bindings {
			if err := ch.QueueBind(string(b.queue), b.pattern, string(b.exchange), false, nil); err != nil {
				return fmt.Errorf("bind queue %s to %s: %w", b.queue, b.exchange, err)
			}
		}
		return nil
	})
}

// TopologyInfo возвращает описание топологии для логирования.
func TopologyInfo() string {
	return `
  Surveyor RabbitMQ Topology:

    surveyor.events (topic)
    ├── jobpool.restores [routing: restore.finished]
    │       Consumer: surveyor-jobpool
    │       DLQ: dlq.events
    └── operator.alerts [routing: alert.#]
            Consumer: operator tooling

    surveyor.dlq (direct)
    └── dlq.events [routing: events]
            Manual processing
  `
}
