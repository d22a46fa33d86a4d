package mq

import (
	"context"

	"github.com/shaiso/Foreman/internal/scheduler"
)

// EventSink публикует события планировщика в foreman.events.
// Routing key совпадает с типом события (например, "operation.requeued").
type EventSink struct {
	publisher *Publisher
}

// NewEventSink создаёт EventSink.
func NewEventSink(publisher *Publisher) *EventSink {
	return &EventSink{publisher: publisher}
}

// Publish реализует scheduler.EventSink.
func (s *EventSink) Publish(ctx context.Context, ev scheduler.Event) error {
	msg := NewMessage(MessageType(ev.Kind), ev, ev.Time)
	return s.publisher.Publish(ctx, ExchangeEvents, RoutingKey(ev.Kind), msg)
}

var _ scheduler.EventSink = (*EventSink)(nil)
