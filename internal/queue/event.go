// Package queue defines message payloads exchanged over the message broker.
package queue

import (
	"strconv"
	"time"

	"github.com/google/uuid"

	"github.com/iliyamo/ticket-ledger/internal/model"
)

// TicketEventsQueue is the durable queue ledger events are published to.
const TicketEventsQueue = "ticket.events"

// messageNamespace scopes message ids derived from commit sequences.
var messageNamespace = uuid.MustParse("5c1f7a2e-9b3d-4f0a-8e61-2d4c7b9a0f13")

// TicketEventMessage is the broker form of a ledger event.  MessageID is
// derived from Seq and Kind, so a redelivered or republished event keeps
// its id and consumers can drop duplicates.  Amounts are decimal strings
// in wei.
type TicketEventMessage struct {
	MessageID  string `json:"message_id"`
	Kind       string `json:"kind"`
	Seq        uint64 `json:"seq"`
	TicketID   uint64 `json:"ticket_id"`
	EventName  string `json:"event_name,omitempty"`
	Price      string `json:"price"`
	EventDate  int64  `json:"event_date,omitempty"`
	Owner      string `json:"owner,omitempty"`
	Buyer      string `json:"buyer,omitempty"`
	Seller     string `json:"seller,omitempty"`
	From       string `json:"from,omitempty"`
	To         string `json:"to,omitempty"`
	OccurredAt string `json:"occurred_at"`
}

// NewTicketEventMessage wraps ev for publishing.
func NewTicketEventMessage(ev model.Event) TicketEventMessage {
	return TicketEventMessage{
		MessageID:  uuid.NewSHA1(messageNamespace, []byte(strconv.FormatUint(ev.Seq, 10)+"/"+string(ev.Kind))).String(),
		Kind:       string(ev.Kind),
		Seq:        ev.Seq,
		TicketID:   ev.TicketID,
		EventName:  ev.EventName,
		Price:      ev.Price.String(),
		EventDate:  ev.EventDate,
		Owner:      ev.Owner,
		Buyer:      ev.Buyer,
		Seller:     ev.Seller,
		From:       ev.From,
		To:         ev.To,
		OccurredAt: ev.At.UTC().Format(time.RFC3339),
	}
}
