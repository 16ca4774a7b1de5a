package model

// TxKind identifies the ledger operation a Transaction records.
type TxKind string

const (
	TxMint     TxKind = "mint"
	TxPurchase TxKind = "purchase"
	TxRelist   TxKind = "relist"
	TxTransfer TxKind = "transfer"
	TxWithdraw TxKind = "withdraw"
)

// Transaction is the journaled form of a committed mutating call.  Replaying
// the journal in Seq order against an empty ledger reproduces its state.
// Amounts are stored as decimal strings so the encoding does not depend on
// the in-memory number type.
//
// Fields:
//
//	Seq       – commit sequence, 1-based and gapless.
//	Kind      – operation.
//	Caller    – principal that signed the call.
//	At        – chain time (Unix seconds) the call was validated against.
//	TicketID  – target ticket (purchase, relist, transfer).
//	EventName – mint only.
//	Price     – mint price or new resale price.
//	EventDate – mint only.
//	Payment   – purchase only.
//	To        – transfer recipient.
type Transaction struct {
	Seq       uint64 `json:"seq" cbor:"1,keyasint"`
	Kind      TxKind `json:"kind" cbor:"2,keyasint"`
	Caller    string `json:"caller" cbor:"3,keyasint"`
	At        int64  `json:"at" cbor:"4,keyasint"`
	TicketID  uint64 `json:"ticket_id,omitempty" cbor:"5,keyasint,omitempty"`
	EventName string `json:"event_name,omitempty" cbor:"6,keyasint,omitempty"`
	Price     string `json:"price,omitempty" cbor:"7,keyasint,omitempty"`
	EventDate int64  `json:"event_date,omitempty" cbor:"8,keyasint,omitempty"`
	Payment   string `json:"payment,omitempty" cbor:"9,keyasint,omitempty"`
	To        string `json:"to,omitempty" cbor:"10,keyasint,omitempty"`
}
