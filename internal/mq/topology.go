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

// Exchanges — имена обменников.
const (
	ExchangeWorkers Exchange = "foreman.workers"
	ExchangeEvents  Exchange = "foreman.events"
	ExchangeDLQ     Exchange = "foreman.dlq"
)

// Queues — имена очередей.
const (
	QueueWorkerKeepAlive Queue = "workers.keepalive"
	QueueActionUpdates   Queue = "workers.updates"
	QueueSchedulerEvents Queue = "events.scheduler"
	QueueDLQWorkers      Queue = "dlq.workers"
)

// Routing keys.
const (
	RoutingKeyKeepAlive RoutingKey = "keepalive"
	RoutingKeyUpdate    RoutingKey = "update"
	RoutingKeyAllEvents RoutingKey = "#"
	RoutingKeyDLQ       RoutingKey = "workers"
)

// ExchangeDecl — объявление exchange.
type ExchangeDecl struct {
	Name Exchange
	Kind string
}

// QueueDecl — объявление очереди.
type QueueDecl struct {
	Name Queue
	Args amqp.Table
}

// BindingDecl — привязка очереди к exchange.
type BindingDecl struct {
	Queue      Queue
	RoutingKey RoutingKey
	Exchange   Exchange
}

// Topology — полный набор объявлений.
type Topology struct {
	Exchanges []ExchangeDecl
	Queues    []QueueDecl
	Bindings  []BindingDecl
}

// DefaultTopology возвращает топологию планировщика.
func DefaultTopology() Topology {
	dlqArgs := amqp.Table{
		"x-dead-letter-exchange":    string(ExchangeDLQ),
		"x-dead-letter-routing-key": string(RoutingKeyDLQ),
	}

	return Topology{
		Exchanges: []ExchangeDecl{
			{ExchangeWorkers, amqp.ExchangeDirect},
			{ExchangeEvents, amqp.ExchangeTopic},
			{ExchangeDLQ, amqp.ExchangeDirect},
		},
		Queues: []QueueDecl{
			// сообщения от worker'ов: отклонённые уходят в DLQ
			{QueueWorkerKeepAlive, dlqArgs},
			{QueueActionUpdates, dlqArgs},

			// журнал событий для внешних потребителей
			{QueueSchedulerEvents, nil},

			{QueueDLQWorkers, nil},
		},
		Bindings: []BindingDecl{
			{QueueWorkerKeepAlive, RoutingKeyKeepAlive, ExchangeWorkers},
			{QueueActionUpdates, RoutingKeyUpdate, ExchangeWorkers},
			{QueueSchedulerEvents, RoutingKeyAllEvents, ExchangeEvents},
			{QueueDLQWorkers, RoutingKeyDLQ, ExchangeDLQ},
		},
	}
}

// SetupTopology объявляет exchanges, queues и bindings.
func SetupTopology(ctx context.Context, conn *Connection) error {
	t := DefaultTopology()

	return conn.WithChannel(ctx, func(ch *amqp.Channel) error {
		for _, ex := range t.Exchanges {
			err := ch.ExchangeDeclare(
				string(ex.Name), // name
				ex.Kind,         // type
				true,            // durable
				false,           // auto-deleted
				false,           // internal
				false,           // no-wait
				nil,             // arguments
			)
			if err != nil {
				return fmt.Errorf("declare exchange %s: %w", ex.Name, err)
			}
		}

		for _, q := range t.Queues {
			_, err := ch.QueueDeclare(
				string(q.Name), // name
				true,           // durable
				false,          // delete when unused
				false,          // exclusive
				false,          // no-wait
				q.Args,         // arguments
			)
			if err != nil {
				return fmt.Errorf("declare queue %s: %w", q.Name, err)
			}
		}

		for _, b := range t.Bindings {
			err := ch.QueueBind(
				string(b.Queue),      // queue name
				string(b.RoutingKey), // routing key
				string(b.Exchange),   // exchange
				false,                // no-wait
				nil,                  // arguments
			)
			if err != nil {
				return fmt.Errorf("bind queue %s to %s: %w", b.Queue, b.Exchange, err)
			}
		}

		return nil
	})
}
