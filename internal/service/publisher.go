// Package service holds the event subscribers that carry ledger changes out
// of the process: the RabbitMQ publisher and the MySQL projector.  Errors
// are logged and returned so callers can ignore failures without
// interrupting the ledger.
package service

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"

	"github.com/iliyamo/ticket-ledger/internal/model"
	"github.com/iliyamo/ticket-ledger/internal/queue"
)

// EventPublisher sends ledger events to the ticket.events queue.
type EventPublisher struct {
	URL     string
	Timeout time.Duration
	Logger  *slog.Logger
}

func NewEventPublisher(url string, logger *slog.Logger) *EventPublisher {
	return &EventPublisher{URL: url, Timeout: 5 * time.Second, Logger: logger}
}

// Publish sends one event as a persistent JSON message.  It opens a
// connection per call; ledger event rates are low enough for that.
func (p *EventPublisher) Publish(ctx context.Context, ev model.Event) error {
	msg := queue.NewTicketEventMessage(ev)
	body, err := json.Marshal(msg)
	if err != nil {
		return err
	}

	conn, err := amqp.Dial(p.URL)
	if err != nil {
		p.Logger.Warn("rabbitmq: dial failed", "err", err)
		return err
	}
	defer func() { _ = conn.Close() }()

	ch, err := conn.Channel()
	if err != nil {
		p.Logger.Warn("rabbitmq: channel open failed", "err", err)
		return err
	}
	defer func() { _ = ch.Close() }()

	// Durable so messages survive broker restarts.
	if _, err := ch.QueueDeclare(queue.TicketEventsQueue, true, false, false, false, nil); err != nil {
		p.Logger.Warn("rabbitmq: queue declare failed", "err", err)
		return err
	}

	pub := amqp.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp.Persistent,
		MessageId:    msg.MessageID,
		Type:         msg.Kind,
		Timestamp:    ev.At.UTC(),
		Body:         body,
	}
	if err := ch.PublishWithContext(ctx, "", queue.TicketEventsQueue, false, false, pub); err != nil {
		p.Logger.Warn("rabbitmq: publish failed", "seq", ev.Seq, "err", err)
		return err
	}
	return nil
}

// Handle adapts Publish to an event bus subscriber.
func (p *EventPublisher) Handle(ev model.Event) {
	ctx, cancel := context.WithTimeout(context.Background(), p.Timeout)
	defer cancel()
	_ = p.Publish(ctx, ev)
}
