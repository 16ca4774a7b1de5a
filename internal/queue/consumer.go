package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/shopspring/decimal"

	"github.com/iliyamo/ticket-ledger/internal/model"
)

// EventLogFile is the file the consumer appends to inside its directory.
const EventLogFile = "ticket-events.log"

// StartTicketEventConsumer connects to RabbitMQ, declares the ticket.events
// queue (durable) and appends one line per message to dir/ticket-events.log.
// It reconnects with exponential backoff until ctx is cancelled, then
// returns ctx.Err().  A message that cannot be handled is rejected without
// requeue so it cannot stall the queue.
func StartTicketEventConsumer(ctx context.Context, url, dir string, logger *slog.Logger) error {
	backoff := time.Second
	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		conn, err := amqp.Dial(url)
		if err != nil {
			logger.Warn("event consumer: dial failed", "err", err, "retry_in", backoff)
			if !sleep(ctx, backoff) {
				return ctx.Err()
			}
			if backoff < 30*time.Second {
				backoff *= 2
			}
			continue
		}
		backoff = time.Second

		err = consumeLoop(ctx, conn, dir, logger)
		_ = conn.Close()
		if ctx.Err() != nil {
			return ctx.Err()
		}
		logger.Warn("event consumer: consume loop ended, reconnecting", "err", err)
		if !sleep(ctx, 2*time.Second) {
			return ctx.Err()
		}
	}
}

func sleep(ctx context.Context, d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}

func consumeLoop(ctx context.Context, conn *amqp.Connection, dir string, logger *slog.Logger) error {
	ch, err := conn.Channel()
	if err != nil {
		return fmt.Errorf("channel open: %w", err)
	}
	defer func() { _ = ch.Close() }()

	if err := ch.Qos(50, 0, false); err != nil {
		logger.Warn("event consumer: set QoS failed", "err", err)
	}
	if _, err := ch.QueueDeclare(TicketEventsQueue, true, false, false, false, nil); err != nil {
		return fmt.Errorf("queue declare: %w", err)
	}
	msgs, err := ch.ConsumeWithContext(ctx, TicketEventsQueue, "", false, false, false, false, nil)
	if err != nil {
		return fmt.Errorf("queue consume: %w", err)
	}

	for d := range msgs {
		if err := handleMessage(dir, d.Body); err != nil {
			logger.Error("event consumer: handle message failed", "err", err)
			_ = d.Nack(false, false)
			continue
		}
		_ = d.Ack(false)
	}
	return errors.New("deliveries channel closed")
}

func handleMessage(dir string, body []byte) error {
	var msg TicketEventMessage
	if err := json.Unmarshal(body, &msg); err != nil {
		return fmt.Errorf("unmarshal: %w", err)
	}
	if msg.Kind == "" || msg.Seq == 0 {
		return fmt.Errorf("message %q: missing kind or seq", msg.MessageID)
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("mkdir %s: %w", dir, err)
	}
	f, err := os.OpenFile(filepath.Join(dir, EventLogFile), os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("open log file: %w", err)
	}
	defer f.Close()

	if _, err := f.WriteString(formatLine(msg)); err != nil {
		return fmt.Errorf("write log: %w", err)
	}
	return nil
}

// formatLine renders one message as a single human-readable log line.
func formatLine(m TicketEventMessage) string {
	var b strings.Builder
	fmt.Fprintf(&b, "[%s] %s | seq=%d | ticket_id=%d", m.OccurredAt, m.Kind, m.Seq, m.TicketID)
	switch model.EventKind(m.Kind) {
	case model.EventTicketCreated:
		fmt.Fprintf(&b, " | event=%q | event_date=%d | owner=%s", m.EventName, m.EventDate, m.Owner)
	case model.EventTicketSold:
		fmt.Fprintf(&b, " | buyer=%s | seller=%s", m.Buyer, m.Seller)
	case model.EventTicketTransferred:
		fmt.Fprintf(&b, " | from=%s | to=%s", m.From, m.To)
	}
	if m.Price != "" {
		if wei, err := decimal.NewFromString(m.Price); err == nil {
			fmt.Fprintf(&b, " | price=%s wei (%s ETH)", m.Price, model.Ether(wei))
		}
	}
	fmt.Fprintf(&b, " | message_id=%s\n", m.MessageID)
	return b.String()
}
