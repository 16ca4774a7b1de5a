package ledger

import (
	"context"
	"fmt"
	"sync"

	"github.com/iliyamo/ticket-ledger/internal/model"
)

// Journal is the durable, strictly ordered log of committed transactions.
// Append must be all-or-nothing: when it returns an error the transaction
// is treated as never committed.  Replay visits transactions in Seq order.
type Journal interface {
	Append(ctx context.Context, tx model.Transaction) error
	Replay(ctx context.Context, fn func(model.Transaction) error) error
}

// MemoryJournal keeps transactions in a slice.  Used for ephemeral ledgers
// and tests.
type MemoryJournal struct {
	mu  sync.Mutex
	txs []model.Transaction
}

// NewMemoryJournal returns an empty in-memory journal.
func NewMemoryJournal() *MemoryJournal { return &MemoryJournal{} }

func (j *MemoryJournal) Append(ctx context.Context, tx model.Transaction) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	j.mu.Lock()
	defer j.mu.Unlock()
	if want := uint64(len(j.txs)) + 1; tx.Seq != want {
		return fmt.Errorf("journal: out of order seq %d, want %d", tx.Seq, want)
	}
	j.txs = append(j.txs, tx)
	return nil
}

func (j *MemoryJournal) Replay(ctx context.Context, fn func(model.Transaction) error) error {
	j.mu.Lock()
	txs := make([]model.Transaction, len(j.txs))
	copy(txs, j.txs)
	j.mu.Unlock()
	for _, tx := range txs {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := fn(tx); err != nil {
			return err
		}
	}
	return nil
}

// Len reports the number of committed transactions.
func (j *MemoryJournal) Len() int {
	j.mu.Lock()
	defer j.mu.Unlock()
	return len(j.txs)
}

// Publisher receives committed events in commit order.  Implementations must
// not block for long; they are called with the ledger's writer lock held.
type Publisher interface {
	Publish(ev model.Event)
}

type nopPublisher struct{}

func (nopPublisher) Publish(model.Event) {}
