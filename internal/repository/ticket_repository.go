package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/iliyamo/ticket-ledger/internal/model"
)

// TicketRepo projects ledger events into the tickets table and serves
// searches over it.
type TicketRepo struct {
	db *sql.DB
}

// NewTicketRepo constructs a TicketRepo with the provided DB handle.
func NewTicketRepo(db *sql.DB) *TicketRepo {
	return &TicketRepo{db: db}
}

// TicketFilter narrows a search.  Zero values mean "any".
type TicketFilter struct {
	Status   *model.Status
	Owner    string
	Name     string // case-insensitive substring of event_name
	Page     int
	PageSize int
}

// Apply projects one event.  Every statement is guarded by last_seq, so
// replaying an event that was already applied is a no-op and an event
// never overwrites a newer one.
func (r *TicketRepo) Apply(ctx context.Context, ev model.Event) error {
	var (
		q    string
		args []any
	)
	switch ev.Kind {
	case model.EventTicketCreated:
		q = `INSERT IGNORE INTO tickets (id, event_name, price_wei, event_date, status, owner, last_seq)
			VALUES (?, ?, ?, ?, ?, ?, ?)`
		args = []any{ev.TicketID, ev.EventName, ev.Price.String(), ev.EventDate, uint8(model.StatusAvailable), ev.Owner, ev.Seq}
	case model.EventTicketSold:
		q = `UPDATE tickets SET owner = ?, status = ?, price_wei = ?, last_seq = ?
			WHERE id = ? AND last_seq < ?`
		args = []any{ev.Buyer, uint8(model.StatusSold), ev.Price.String(), ev.Seq, ev.TicketID, ev.Seq}
	case model.EventTicketRelisted:
		q = `UPDATE tickets SET status = ?, price_wei = ?, last_seq = ?
			WHERE id = ? AND last_seq < ?`
		args = []any{uint8(model.StatusResale), ev.Price.String(), ev.Seq, ev.TicketID, ev.Seq}
	case model.EventTicketTransferred:
		q = `UPDATE tickets SET owner = ?, last_seq = ?
			WHERE id = ? AND last_seq < ?`
		args = []any{ev.To, ev.Seq, ev.TicketID, ev.Seq}
	default:
		return fmt.Errorf("%w: %q", ErrUnknownEvent, ev.Kind)
	}
	_, err := r.db.ExecContext(ctx, q, args...)
	return err
}

const ticketColumns = "id, event_name, price_wei, event_date, status, owner"

type rowScanner interface {
	Scan(dest ...any) error
}

func scanTicket(s rowScanner) (model.OwnedTicket, error) {
	var (
		t      model.OwnedTicket
		price  string
		status uint8
	)
	if err := s.Scan(&t.ID, &t.EventName, &price, &t.EventDate, &status, &t.Owner); err != nil {
		return t, err
	}
	d, err := decimal.NewFromString(price)
	if err != nil {
		return t, fmt.Errorf("ticket %d: price %q: %w", t.ID, price, err)
	}
	t.Price = d
	t.Status = model.Status(status)
	return t, nil
}

// GetByID fetches one projected ticket.  It returns ErrTicketNotFound when
// the row does not exist.
func (r *TicketRepo) GetByID(ctx context.Context, id uint64) (model.OwnedTicket, error) {
	row := r.db.QueryRowContext(ctx, "SELECT "+ticketColumns+" FROM tickets WHERE id = ?", id)
	t, err := scanTicket(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return model.OwnedTicket{}, ErrTicketNotFound
		}
		return model.OwnedTicket{}, err
	}
	return t, nil
}

// Search returns one page of tickets matching f, ordered by id, together
// with the total number of matches.
func (r *TicketRepo) Search(ctx context.Context, f TicketFilter) ([]model.OwnedTicket, int64, error) {
	where := []string{}
	args := []any{}
	if f.Status != nil {
		where = append(where, "status = ?")
		args = append(args, uint8(*f.Status))
	}
	if f.Owner != "" {
		where = append(where, "owner = ?")
		args = append(args, f.Owner)
	}
	if f.Name != "" {
		where = append(where, "LOWER(event_name) LIKE ?")
		args = append(args, "%"+strings.ToLower(f.Name)+"%")
	}
	cond := "1=1"
	if len(where) > 0 {
		cond = strings.Join(where, " AND ")
	}

	var total int64
	if err := r.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM tickets WHERE "+cond, args...).Scan(&total); err != nil {
		return nil, 0, err
	}

	page, size := f.Page, f.PageSize
	if page < 1 {
		page = 1
	}
	if size < 1 {
		size = 20
	}
	dataSQL := "SELECT " + ticketColumns + " FROM tickets WHERE " + cond + " ORDER BY id ASC LIMIT ? OFFSET ?"
	rows, err := r.db.QueryContext(ctx, dataSQL, append(append([]any{}, args...), size, (page-1)*size)...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	out := make([]model.OwnedTicket, 0, size)
	for rows.Next() {
		t, err := scanTicket(rows)
		if err != nil {
			return nil, 0, err
		}
		out = append(out, t)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, err
	}
	return out, total, nil
}

// Rebuild replaces the whole projection with tickets as of ledger commit
// seq.  It runs in one transaction, so readers see either the old table or
// the new one.  The server calls it on startup, before subscribing the
// projector, because restoring the ledger emits no events.
func (r *TicketRepo) Rebuild(ctx context.Context, tickets []model.OwnedTicket, seq uint64) (err error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	if _, err = tx.ExecContext(ctx, "DELETE FROM tickets"); err != nil {
		return err
	}
	stmt, err := tx.PrepareContext(ctx, `INSERT INTO tickets (id, event_name, price_wei, event_date, status, owner, last_seq)
		VALUES (?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return err
	}
	defer stmt.Close()
	for _, t := range tickets {
		if _, err = stmt.ExecContext(ctx, t.ID, t.EventName, t.Price.String(), t.EventDate, uint8(t.Status), t.Owner, seq); err != nil {
			return fmt.Errorf("rebuild ticket %d: %w", t.ID, err)
		}
	}
	return tx.Commit()
}
