package mq

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	amqp "github.com/rabbitmq/amqp091-go"

	"github.com/shaiso/Foreman/internal/domain"
)

// MessageType — тип сообщения в очереди.
type MessageType string

// Типы сообщений от worker'ов.
const (
	MessageTypeKeepAlive    MessageType = "worker.keepalive"
	MessageTypeActionUpdate MessageType = "action.update"
)

// Message — конверт любого сообщения.
type Message struct {
	// ID — уникальный идентификатор сообщения.
	ID string `json:"id"`

	// Type — тип сообщения.
	Type MessageType `json:"type"`

	// Payload — полезная нагрузка.
	Payload any `json:"payload"`

	// Timestamp — время создания.
	Timestamp time.Time `json:"timestamp"`
}

// NewMessage создаёт конверт с новым ID.
func NewMessage(msgType MessageType, payload any, now time.Time) *Message {
	return &Message{
		ID:        uuid.New().String(),
		Type:      msgType,
		Payload:   payload,
		Timestamp: now,
	}
}

// KeepAlivePayload — keep-alive от worker'а.
type KeepAlivePayload struct {
	WorkerID  domain.WorkerID        `json:"worker_id"`
	Timestamp domain.WorkerTimestamp `json:"timestamp"`
}

// ActionUpdatePayload — обновление operation от worker'а.
type ActionUpdatePayload struct {
	WorkerID    domain.WorkerID    `json:"worker_id"`
	OperationID domain.OperationID `json:"operation_id"`
	Kind        domain.UpdateKind  `json:"kind"`
	ExitCode    int                `json:"exit_code,omitempty"`
	Error       string             `json:"error,omitempty"`
}

// Update возвращает доменное обновление.
func (p ActionUpdatePayload) Update() domain.OperationUpdate {
	return domain.OperationUpdate{Kind: p.Kind, ExitCode: p.ExitCode, Error: p.Error}
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
	return &Publisher{
		conn:   conn,
		logger: logger,
	}
}

// Publish публикует сообщение в exchange с routing key.
func (p *Publisher) Publish(ctx context.Context, exchange Exchange, routingKey RoutingKey, msg *Message) error {
	body, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("marshal message: %w", err)
	}

	return p.conn.WithChannel(ctx, func(ch *amqp.Channel) error {
		err := ch.PublishWithContext(
			ctx,
			string(exchange),   // exchange
			string(routingKey), // routing key
			false,              // mandatory
			false,              // immediate
			amqp.Publishing{
				ContentType:  "application/json",
				DeliveryMode: amqp.Persistent,
				MessageId:    msg.ID,
				Type:         string(msg.Type),
				Timestamp:    msg.Timestamp,
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

// PublishJSON публикует произвольный payload в новом конверте.
func (p *Publisher) PublishJSON(ctx context.Context, exchange Exchange, routingKey RoutingKey, msgType MessageType, payload any) error {
	return p.Publish(ctx, exchange, routingKey, NewMessage(msgType, payload, time.Now()))
}
