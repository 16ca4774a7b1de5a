package model

import (
	"time"

	"github.com/shopspring/decimal"
)

// EventKind names a ledger change notification.
type EventKind string

const (
	EventTicketCreated     EventKind = "TicketCreated"
	EventTicketSold        EventKind = "TicketSold"
	EventTicketRelisted    EventKind = "TicketRelisted"
	EventTicketTransferred EventKind = "TicketTransferred"
)

// Event is emitted by the ledger after a transaction commits.  Seq is the
// commit sequence of the producing transaction, so observers can order
// events and discard duplicates.  Fields not relevant to Kind are zero.
//
//	TicketCreated     – EventName, Price, EventDate, Owner (mint target)
//	TicketSold        – Buyer, Seller, Price
//	TicketRelisted    – Price
//	TicketTransferred – From, To
type Event struct {
	Kind      EventKind       `json:"kind"`
	Seq       uint64          `json:"seq"`
	TicketID  uint64          `json:"ticket_id"`
	EventName string          `json:"event_name,omitempty"`
	Price     decimal.Decimal `json:"price"`
	EventDate int64           `json:"event_date,omitempty"`
	Owner     string          `json:"owner,omitempty"`
	Buyer     string          `json:"buyer,omitempty"`
	Seller    string          `json:"seller,omitempty"`
	From      string          `json:"from,omitempty"`
	To        string          `json:"to,omitempty"`
	At        time.Time       `json:"at"`
}
