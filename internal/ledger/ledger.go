// Package ledger implements the ticket registry: minting, purchase, resale
// listing and transfer of non-fungible tickets, with ownership tracked in a
// single map and every mutation serialized through one writer lock.
//
// A mutating call is validated against the current state, appended to the
// journal and only then applied and announced to the publisher.  If any step
// before the apply fails the call is rejected and the ledger is unchanged.
package ledger

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"github.com/iliyamo/ticket-ledger/internal/metrics"
	"github.com/iliyamo/ticket-ledger/internal/model"
)

// Receipt describes a successful purchase.  Price went to the seller's
// balance, Refund (payment minus price) to the buyer's balance.
type Receipt struct {
	TicketID uint64          `json:"ticket_id"`
	Buyer    string          `json:"buyer"`
	Seller   string          `json:"seller"`
	Price    decimal.Decimal `json:"price"`
	Refund   decimal.Decimal `json:"refund"`
	Seq      uint64          `json:"seq"`
}

// Ledger is the authoritative set of tickets.  It is safe for concurrent
// use; writers are linearized, readers see only committed state.
type Ledger struct {
	mu      sync.RWMutex
	admin   string
	clock   Clock
	journal Journal
	pub     Publisher
	logger  *slog.Logger

	tickets  map[uint64]*model.Ticket
	order    []uint64            // mint order
	owners   map[uint64]string   // ticket id -> holder
	holdings map[string][]uint64 // holder -> ids in acquisition order
	balances map[string]decimal.Decimal
	seq      uint64 // last committed transaction
}

// Option configures a Ledger.
type Option func(*Ledger)

// WithClock sets the chain clock.  Defaults to SystemClock.
func WithClock(c Clock) Option { return func(l *Ledger) { l.clock = c } }

// WithJournal sets the durable log.  Without one the ledger is memory only.
func WithJournal(j Journal) Option { return func(l *Ledger) { l.journal = j } }

// WithPublisher sets the event sink.
func WithPublisher(p Publisher) Option { return func(l *Ledger) { l.pub = p } }

// WithLogger sets the logger.
func WithLogger(lg *slog.Logger) Option { return func(l *Ledger) { l.logger = lg } }

// New creates an empty ledger administered by admin.  The administrator
// cannot be changed afterwards.
func New(admin string, opts ...Option) (*Ledger, error) {
	admin = strings.TrimSpace(admin)
	if admin == "" {
		return nil, fmt.Errorf("%w: administrator", ErrInvalidPrincipal)
	}
	l := &Ledger{
		admin:    admin,
		clock:    SystemClock(),
		pub:      nopPublisher{},
		logger:   slog.Default(),
		tickets:  make(map[uint64]*model.Ticket),
		owners:   make(map[uint64]string),
		holdings: make(map[string][]uint64),
		balances: make(map[string]decimal.Decimal),
	}
	for _, opt := range opts {
		opt(l)
	}
	if l.pub == nil {
		l.pub = nopPublisher{}
	}
	return l, nil
}

// Admin returns the administrator principal.
func (l *Ledger) Admin() string { return l.admin }

// Mint creates a ticket owned by the administrator and returns its id.
func (l *Ledger) Mint(ctx context.Context, caller, eventName string, price decimal.Decimal, eventDate time.Time) (id uint64, err error) {
	defer track("mint", &err)
	if err := checkAmount(price); err != nil {
		return 0, err
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	out, err := l.commit(ctx, model.Transaction{
		Kind:      model.TxMint,
		Caller:    caller,
		EventName: eventName,
		Price:     price.String(),
		EventDate: eventDate.Unix(),
	})
	if err != nil {
		return 0, err
	}
	return out.ticketID, nil
}

// Purchase sells a ticket that is AVAILABLE or RESALE to caller.  Any
// payment above the price is credited back to the caller's balance.
func (l *Ledger) Purchase(ctx context.Context, caller string, id uint64, payment decimal.Decimal) (r Receipt, err error) {
	defer track("purchase", &err)
	if err := checkAmount(payment); err != nil {
		return Receipt{}, err
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	out, err := l.commit(ctx, model.Transaction{
		Kind:     model.TxPurchase,
		Caller:   caller,
		TicketID: id,
		Payment:  payment.String(),
	})
	if err != nil {
		return Receipt{}, err
	}
	return out.receipt, nil
}

// Relist puts the caller's ticket up for resale at price.  Relisting a
// ticket that is already on resale only updates the price.
func (l *Ledger) Relist(ctx context.Context, caller string, id uint64, price decimal.Decimal) (err error) {
	defer track("relist", &err)
	if err := checkAmount(price); err != nil {
		return err
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	_, err = l.commit(ctx, model.Transaction{
		Kind:     model.TxRelist,
		Caller:   caller,
		TicketID: id,
		Price:    price.String(),
	})
	return err
}

// Transfer hands the caller's ticket to another principal without payment.
// Status and price are unchanged.  A ticket listed for resale cannot be
// transferred; the listing belongs to the holder who set its price.
func (l *Ledger) Transfer(ctx context.Context, caller string, id uint64, to string) (err error) {
	defer track("transfer", &err)
	l.mu.Lock()
	defer l.mu.Unlock()
	_, err = l.commit(ctx, model.Transaction{
		Kind:     model.TxTransfer,
		Caller:   caller,
		TicketID: id,
		To:       strings.TrimSpace(to),
	})
	return err
}

// Withdraw empties the caller's balance and returns the amount released.
// A zero balance is not journaled.
func (l *Ledger) Withdraw(ctx context.Context, caller string) (amount decimal.Decimal, err error) {
	defer track("withdraw", &err)
	l.mu.Lock()
	defer l.mu.Unlock()
	if caller == "" {
		return decimal.Zero, fmt.Errorf("%w: caller", ErrInvalidPrincipal)
	}
	if !l.balances[caller].IsPositive() {
		return decimal.Zero, nil
	}
	out, err := l.commit(ctx, model.Transaction{Kind: model.TxWithdraw, Caller: caller})
	if err != nil {
		return decimal.Zero, err
	}
	return out.amount, nil
}

// Restore replays the journal into an empty ledger.  Each transaction is
// re-validated against the chain time it recorded; no events are emitted.
func (l *Ledger) Restore(ctx context.Context) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.journal == nil {
		return nil
	}
	if l.seq != 0 {
		return fmt.Errorf("ledger: restore into a ledger at seq %d", l.seq)
	}
	err := l.journal.Replay(ctx, func(tx model.Transaction) error {
		if tx.Seq != l.seq+1 {
			return fmt.Errorf("ledger: journal gap, got seq %d after %d", tx.Seq, l.seq)
		}
		eff, err := l.plan(tx, time.Unix(tx.At, 0).UTC())
		if err != nil {
			return fmt.Errorf("ledger: replay seq %d: %w", tx.Seq, err)
		}
		eff.apply()
		l.seq = tx.Seq
		return nil
	})
	if err != nil {
		return err
	}
	metrics.SetTicketCount(len(l.order))
	metrics.SetJournalHeight(l.seq)
	l.logger.Info("ledger restored", "seq", l.seq, "tickets", len(l.order))
	return nil
}

// Ticket returns a ticket and its current holder.
func (l *Ledger) Ticket(id uint64) (model.OwnedTicket, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	t, ok := l.tickets[id]
	if !ok {
		return model.OwnedTicket{}, fmt.Errorf("%w: id %d", ErrNotFound, id)
	}
	return model.OwnedTicket{Ticket: *t, Owner: l.owners[id]}, nil
}

// Exists reports whether id has been minted.
func (l *Ledger) Exists(id uint64) bool {
	l.mu.RLock()
	defer l.mu.RUnlock()
	_, ok := l.tickets[id]
	return ok
}

// TicketsOf lists the ids held by owner in the order they were acquired.
func (l *Ledger) TicketsOf(owner string) []uint64 {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return append([]uint64{}, l.holdings[owner]...)
}

// AllTickets lists every id in mint order.
func (l *Ledger) AllTickets() []uint64 {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return append([]uint64{}, l.order...)
}

// Page returns up to limit tickets in mint order, skipping the first start.
func (l *Ledger) Page(start, limit int) []model.OwnedTicket {
	l.mu.RLock()
	defer l.mu.RUnlock()
	if start < 0 {
		start = 0
	}
	if start >= len(l.order) || limit <= 0 {
		return []model.OwnedTicket{}
	}
	end := start + limit
	if end > len(l.order) {
		end = len(l.order)
	}
	out := make([]model.OwnedTicket, 0, end-start)
	for _, id := range l.order[start:end] {
		out = append(out, model.OwnedTicket{Ticket: *l.tickets[id], Owner: l.owners[id]})
	}
	return out
}

// TotalSupply is the number of tickets minted.
func (l *Ledger) TotalSupply() int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return len(l.order)
}

// Balance is the amount principal can withdraw.
func (l *Ledger) Balance(principal string) decimal.Decimal {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.balances[principal]
}

// Seq is the sequence number of the last committed transaction.
func (l *Ledger) Seq() uint64 {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.seq
}

// outcome carries the results a committed transaction hands back to its
// caller.
type outcome struct {
	ticketID uint64
	receipt  Receipt
	amount   decimal.Decimal
}

// effect is a validated, not yet applied transaction.
type effect struct {
	apply  func()
	events []model.Event
	out    outcome
}

// commit stamps tx with the next sequence and the chain time, validates it,
// journals it and applies it.  l.mu must be held for writing.
func (l *Ledger) commit(ctx context.Context, tx model.Transaction) (outcome, error) {
	now := l.clock.Now().UTC()
	tx.Seq = l.seq + 1
	tx.At = now.Unix()

	eff, err := l.plan(tx, now)
	if err != nil {
		l.logger.Debug("ledger call rejected", "kind", tx.Kind, "caller", tx.Caller, "ticket_id", tx.TicketID, "err", err)
		return outcome{}, err
	}
	if l.journal != nil {
		if err := l.journal.Append(ctx, tx); err != nil {
			l.logger.Error("journal append failed", "seq", tx.Seq, "kind", tx.Kind, "err", err)
			return outcome{}, fmt.Errorf("ledger: journal append: %w", err)
		}
	}
	eff.apply()
	l.seq = tx.Seq

	for _, ev := range eff.events {
		ev.Seq = tx.Seq
		ev.At = time.Unix(tx.At, 0).UTC()
		l.pub.Publish(ev)
		metrics.TrackEvent(string(ev.Kind))
	}
	metrics.SetJournalHeight(l.seq)
	l.logger.Info("ledger transaction committed", "seq", tx.Seq, "kind", tx.Kind, "caller", tx.Caller, "ticket_id", eff.out.ticketID)
	return eff.out, nil
}

// plan validates tx against the current state as of now.  It has no side
// effects; the returned apply func performs the mutation.
func (l *Ledger) plan(tx model.Transaction, now time.Time) (effect, error) {
	switch tx.Kind {
	case model.TxMint:
		return l.planMint(tx, now)
	case model.TxPurchase:
		return l.planPurchase(tx)
	case model.TxRelist:
		return l.planRelist(tx)
	case model.TxTransfer:
		return l.planTransfer(tx)
	case model.TxWithdraw:
		return l.planWithdraw(tx)
	}
	return effect{}, fmt.Errorf("ledger: unknown transaction kind %q", tx.Kind)
}

func (l *Ledger) planMint(tx model.Transaction, now time.Time) (effect, error) {
	if tx.Caller != l.admin {
		return effect{}, fmt.Errorf("%w: %q", ErrUnauthorized, tx.Caller)
	}
	name := strings.TrimSpace(tx.EventName)
	if name == "" {
		return effect{}, ErrInvalidEventName
	}
	price, err := parseAmount(tx.Price)
	if err != nil {
		return effect{}, err
	}
	if tx.EventDate <= now.Unix() {
		return effect{}, fmt.Errorf("%w: %d is not after %d", ErrInvalidEventDate, tx.EventDate, now.Unix())
	}

	id := uint64(len(l.order)) + 1
	t := &model.Ticket{
		ID:        id,
		EventName: name,
		Price:     price,
		EventDate: tx.EventDate,
		Status:    model.StatusAvailable,
	}
	return effect{
		apply: func() {
			l.tickets[id] = t
			l.order = append(l.order, id)
			l.owners[id] = l.admin
			l.holdings[l.admin] = append(l.holdings[l.admin], id)
			metrics.SetTicketCount(len(l.order))
		},
		events: []model.Event{{
			Kind:      model.EventTicketCreated,
			TicketID:  id,
			EventName: name,
			Price:     price,
			EventDate: tx.EventDate,
			Owner:     l.admin,
		}},
		out: outcome{ticketID: id},
	}, nil
}

func (l *Ledger) planPurchase(tx model.Transaction) (effect, error) {
	if tx.Caller == "" {
		return effect{}, fmt.Errorf("%w: buyer", ErrInvalidPrincipal)
	}
	t, ok := l.tickets[tx.TicketID]
	if !ok {
		return effect{}, fmt.Errorf("%w: id %d", ErrNotFound, tx.TicketID)
	}
	if !t.Status.ForSale() {
		return effect{}, fmt.Errorf("%w: ticket %d is %s", ErrNotForSale, t.ID, t.Status)
	}
	payment, err := parseAmount(tx.Payment)
	if err != nil {
		return effect{}, err
	}
	if payment.LessThan(t.Price) {
		return effect{}, fmt.Errorf("%w: paid %s, price %s", ErrInsufficientPayment, payment, t.Price)
	}

	seller := l.owners[t.ID]
	buyer := tx.Caller
	price := t.Price
	refund := payment.Sub(price)
	return effect{
		apply: func() {
			l.moveOwnership(t.ID, seller, buyer)
			t.Status = model.StatusSold
			l.credit(seller, price)
			l.credit(buyer, refund)
		},
		events: []model.Event{{
			Kind:     model.EventTicketSold,
			TicketID: t.ID,
			Buyer:    buyer,
			Seller:   seller,
			Price:    price,
		}},
		out: outcome{
			ticketID: t.ID,
			receipt: Receipt{
				TicketID: t.ID,
				Buyer:    buyer,
				Seller:   seller,
				Price:    price,
				Refund:   refund,
				Seq:      tx.Seq,
			},
		},
	}, nil
}

func (l *Ledger) planRelist(tx model.Transaction) (effect, error) {
	t, ok := l.tickets[tx.TicketID]
	if !ok {
		return effect{}, fmt.Errorf("%w: id %d", ErrNotFound, tx.TicketID)
	}
	if l.owners[t.ID] != tx.Caller {
		return effect{}, fmt.Errorf("%w: ticket %d", ErrNotOwner, t.ID)
	}
	price, err := parseAmount(tx.Price)
	if err != nil {
		return effect{}, err
	}
	return effect{
		apply: func() {
			t.Price = price
			t.Status = model.StatusResale
		},
		events: []model.Event{{
			Kind:     model.EventTicketRelisted,
			TicketID: t.ID,
			Price:    price,
		}},
		out: outcome{ticketID: t.ID},
	}, nil
}

func (l *Ledger) planTransfer(tx model.Transaction) (effect, error) {
	t, ok := l.tickets[tx.TicketID]
	if !ok {
		return effect{}, fmt.Errorf("%w: id %d", ErrNotFound, tx.TicketID)
	}
	from := l.owners[t.ID]
	if from != tx.Caller {
		return effect{}, fmt.Errorf("%w: ticket %d", ErrNotOwner, t.ID)
	}
	if tx.To == "" {
		return effect{}, fmt.Errorf("%w: recipient", ErrInvalidPrincipal)
	}
	if t.Status == model.StatusResale {
		return effect{}, fmt.Errorf("%w: ticket %d at %s", ErrListed, t.ID, t.Price)
	}
	return effect{
		apply: func() { l.moveOwnership(t.ID, from, tx.To) },
		events: []model.Event{{
			Kind:     model.EventTicketTransferred,
			TicketID: t.ID,
			From:     from,
			To:       tx.To,
			Price:    t.Price,
		}},
		out: outcome{ticketID: t.ID},
	}, nil
}

func (l *Ledger) planWithdraw(tx model.Transaction) (effect, error) {
	if tx.Caller == "" {
		return effect{}, fmt.Errorf("%w: caller", ErrInvalidPrincipal)
	}
	amount := l.balances[tx.Caller]
	return effect{
		apply: func() { delete(l.balances, tx.Caller) },
		out:   outcome{amount: amount},
	}, nil
}

// moveOwnership reassigns id, keeping the remaining holdings of from in
// acquisition order.
func (l *Ledger) moveOwnership(id uint64, from, to string) {
	if from == to {
		return
	}
	held := l.holdings[from]
	kept := make([]uint64, 0, len(held))
	for _, h := range held {
		if h != id {
			kept = append(kept, h)
		}
	}
	if len(kept) == 0 {
		delete(l.holdings, from)
	} else {
		l.holdings[from] = kept
	}
	l.holdings[to] = append(l.holdings[to], id)
	l.owners[id] = to
}

func (l *Ledger) credit(principal string, amount decimal.Decimal) {
	if !amount.IsPositive() {
		return
	}
	l.balances[principal] = l.balances[principal].Add(amount)
}

// checkAmount runs before the writer lock is taken; rendering an
// unchecked decimal can be arbitrarily expensive.
func checkAmount(d decimal.Decimal) error {
	if err := model.CheckWei(d); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidAmount, err)
	}
	return nil
}

func parseAmount(s string) (decimal.Decimal, error) {
	d, err := model.ParseWei(s)
	if err != nil {
		return decimal.Zero, fmt.Errorf("%w: %v", ErrInvalidAmount, err)
	}
	return d, nil
}

func track(op string, err *error) {
	result := "ok"
	if *err != nil {
		result = Kind(*err)
	}
	metrics.TrackOperation(op, result)
}
