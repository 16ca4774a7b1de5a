package model

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
)

// Status is the lifecycle state of a ticket.  The integer values are part
// of the public contract (0/1/2) and must not be reordered.
type Status uint8

const (
	StatusAvailable Status = iota // minted, never sold
	StatusSold                    // held by a buyer, not on sale
	StatusResale                  // listed for resale by its holder
)

func (s Status) String() string {
	switch s {
	case StatusAvailable:
		return "AVAILABLE"
	case StatusSold:
		return "SOLD"
	case StatusResale:
		return "RESALE"
	default:
		return fmt.Sprintf("STATUS(%d)", uint8(s))
	}
}

// ForSale reports whether a ticket in this state can be purchased.
func (s Status) ForSale() bool {
	return s == StatusAvailable || s == StatusResale
}

// ParseStatus accepts either the symbolic name (case-insensitive) or the
// integer code.
func ParseStatus(v string) (Status, error) {
	switch strings.ToUpper(strings.TrimSpace(v)) {
	case "AVAILABLE", "0":
		return StatusAvailable, nil
	case "SOLD", "1":
		return StatusSold, nil
	case "RESALE", "2":
		return StatusResale, nil
	}
	return 0, fmt.Errorf("unknown ticket status %q", v)
}

func (s Status) MarshalJSON() ([]byte, error) {
	return json.Marshal(s.String())
}

func (s *Status) UnmarshalJSON(b []byte) error {
	var raw string
	if err := json.Unmarshal(b, &raw); err != nil {
		var code uint8
		if err2 := json.Unmarshal(b, &code); err2 != nil {
			return err
		}
		raw = fmt.Sprint(code)
	}
	parsed, err := ParseStatus(raw)
	if err != nil {
		return err
	}
	*s = parsed
	return nil
}

// Ticket is a single non-fungible ticket as recorded by the ledger.  The
// owner is not part of the record; the ledger tracks ownership separately
// and read APIs return it alongside.
//
// Fields:
//
//	ID        – token identifier, sequential from 1, never reused.
//	EventName – non-empty label of the event.
//	Price     – purchase price (or current resale price) in wei.
//	EventDate – Unix seconds; in the future at mint time.
//	Status    – AVAILABLE, SOLD or RESALE.
type Ticket struct {
	ID        uint64          `json:"id"`
	EventName string          `json:"event_name"`
	Price     decimal.Decimal `json:"price"`
	EventDate int64           `json:"event_date"`
	Status    Status          `json:"status"`
}

// OwnedTicket pairs a ticket record with its current holder.
type OwnedTicket struct {
	Ticket
	Owner string `json:"owner"`
}
