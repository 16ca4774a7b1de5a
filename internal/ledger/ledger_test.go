package ledger

import (
	"context"
	"errors"
	"math/rand"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/iliyamo/ticket-ledger/internal/model"
)

const (
	admin = "admin-address"
	buyer = "buyer-b"
	carol = "buyer-c"
)

var genesis = time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)

type recorder struct {
	mu     sync.Mutex
	events []model.Event
}

func (r *recorder) Publish(ev model.Event) {
	r.mu.Lock()
	r.events = append(r.events, ev)
	r.mu.Unlock()
}

func (r *recorder) kinds() []model.EventKind {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]model.EventKind, 0, len(r.events))
	for _, ev := range r.events {
		out = append(out, ev.Kind)
	}
	return out
}

type failingJournal struct{ err error }

func (f failingJournal) Append(context.Context, model.Transaction) error { return f.err }
func (f failingJournal) Replay(context.Context, func(model.Transaction) error) error {
	return nil
}

type fixture struct {
	l       *Ledger
	clock   *ManualClock
	journal *MemoryJournal
	events  *recorder
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	f := &fixture{
		clock:   NewManualClock(genesis),
		journal: NewMemoryJournal(),
		events:  &recorder{},
	}
	l, err := New(admin, WithClock(f.clock), WithJournal(f.journal), WithPublisher(f.events))
	require.NoError(t, err)
	f.l = l
	return f
}

func wei(n int64) decimal.Decimal { return decimal.NewFromInt(n) }

func future() time.Time { return genesis.Add(30 * 24 * time.Hour) }

func (f *fixture) mint(t *testing.T, name string, price int64) uint64 {
	t.Helper()
	id, err := f.l.Mint(context.Background(), admin, name, wei(price), future())
	require.NoError(t, err)
	return id
}

func TestNew_RequiresAdmin(t *testing.T) {
	_, err := New("  ")
	assert.ErrorIs(t, err, ErrInvalidPrincipal)
}

func TestConcertLifecycle(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	id := f.mint(t, "Concert", 500)
	assert.Equal(t, uint64(1), id)
	tk, err := f.l.Ticket(id)
	require.NoError(t, err)
	assert.Equal(t, model.StatusAvailable, tk.Status)
	assert.Equal(t, admin, tk.Owner)

	_, err = f.l.Purchase(ctx, buyer, id, wei(500))
	require.NoError(t, err)
	tk, _ = f.l.Ticket(id)
	assert.Equal(t, buyer, tk.Owner)
	assert.Equal(t, model.StatusSold, tk.Status)

	require.NoError(t, f.l.Relist(ctx, buyer, id, wei(600)))
	tk, _ = f.l.Ticket(id)
	assert.Equal(t, model.StatusResale, tk.Status)
	assert.True(t, tk.Price.Equal(wei(600)))

	r, err := f.l.Purchase(ctx, carol, id, wei(600))
	require.NoError(t, err)
	assert.Equal(t, buyer, r.Seller)
	tk, _ = f.l.Ticket(id)
	assert.Equal(t, carol, tk.Owner)
	assert.Equal(t, model.StatusSold, tk.Status)

	assert.True(t, f.l.Balance(admin).Equal(wei(500)))
	assert.True(t, f.l.Balance(buyer).Equal(wei(600)))
	assert.Equal(t, []model.EventKind{
		model.EventTicketCreated,
		model.EventTicketSold,
		model.EventTicketRelisted,
		model.EventTicketSold,
	}, f.events.kinds())
}

func TestMint_PastDateCreatesNothing(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.l.Mint(ctx, admin, "Concert", wei(500), genesis.Add(-time.Hour))
	assert.ErrorIs(t, err, ErrInvalidEventDate)
	_, err = f.l.Mint(ctx, admin, "Concert", wei(500), genesis)
	assert.ErrorIs(t, err, ErrInvalidEventDate, "event date equal to chain time is not in the future")

	assert.Equal(t, 0, f.l.TotalSupply())
	assert.Empty(t, f.events.kinds())
	assert.Equal(t, 0, f.journal.Len())
	assert.Equal(t, uint64(1), f.mint(t, "Concert", 500))
}

func TestMint_Rejections(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.l.Mint(ctx, buyer, "Concert", wei(1), future())
	assert.ErrorIs(t, err, ErrUnauthorized)
	assert.Equal(t, "Unauthorized", Kind(err))

	_, err = f.l.Mint(ctx, admin, "   ", wei(1), future())
	assert.ErrorIs(t, err, ErrInvalidEventName)

	_, err = f.l.Mint(ctx, admin, "Concert", wei(-1), future())
	assert.ErrorIs(t, err, ErrInvalidAmount)

	_, err = f.l.Mint(ctx, admin, "Concert", decimal.RequireFromString("1.5"), future())
	assert.ErrorIs(t, err, ErrInvalidAmount)

	assert.Equal(t, 0, f.l.TotalSupply())
}

func TestMint_SequentialIDsDespiteFailures(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	for n := uint64(1); n <= 5; n++ {
		_, _ = f.l.Mint(ctx, buyer, "nope", wei(1), future())
		_, _ = f.l.Mint(ctx, admin, "nope", wei(1), genesis.Add(-time.Second))
		id, err := f.l.Mint(ctx, admin, "Show", wei(1), future())
		require.NoError(t, err)
		assert.Equal(t, n, id)
	}
	assert.Equal(t, []uint64{1, 2, 3, 4, 5}, f.l.AllTickets())
}

func TestMint_ZeroPriceAllowed(t *testing.T) {
	f := newFixture(t)
	id := f.mint(t, "Free gig", 0)
	_, err := f.l.Purchase(context.Background(), buyer, id, decimal.Zero)
	assert.NoError(t, err)
}

func TestPurchase_NotFound(t *testing.T) {
	f := newFixture(t)
	_, err := f.l.Purchase(context.Background(), buyer, 999, wei(1_000_000))
	assert.ErrorIs(t, err, ErrNotFound)
	assert.Equal(t, "NotFound", Kind(err))
}

func TestPurchase_SecondBuyerRejected(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	id := f.mint(t, "Concert", 500)

	_, err := f.l.Purchase(ctx, buyer, id, wei(500))
	require.NoError(t, err)
	_, err = f.l.Purchase(ctx, carol, id, wei(500))
	assert.ErrorIs(t, err, ErrNotForSale)

	tk, _ := f.l.Ticket(id)
	assert.Equal(t, buyer, tk.Owner)
}

func TestPurchase_InsufficientPaymentLeavesStateUnchanged(t *testing.T) {
	f := newFixture(t)
	id := f.mint(t, "Concert", 500)
	before, _ := f.l.Ticket(id)
	seq := f.l.Seq()

	_, err := f.l.Purchase(context.Background(), buyer, id, wei(499))
	assert.ErrorIs(t, err, ErrInsufficientPayment)

	after, _ := f.l.Ticket(id)
	assert.Equal(t, before.Owner, after.Owner)
	assert.Equal(t, before.Status, after.Status)
	assert.Equal(t, seq, f.l.Seq())
	assert.True(t, f.l.Balance(admin).IsZero())
}

func TestPurchase_OverpaymentRefundedToBuyerBalance(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	id := f.mint(t, "Concert", 500)

	r, err := f.l.Purchase(ctx, buyer, id, wei(750))
	require.NoError(t, err)
	assert.True(t, r.Price.Equal(wei(500)))
	assert.True(t, r.Refund.Equal(wei(250)))
	assert.Equal(t, admin, r.Seller)
	assert.True(t, f.l.Balance(buyer).Equal(wei(250)))
	assert.True(t, f.l.Balance(admin).Equal(wei(500)))

	got, err := f.l.Withdraw(ctx, buyer)
	require.NoError(t, err)
	assert.True(t, got.Equal(wei(250)))
	assert.True(t, f.l.Balance(buyer).IsZero())

	got, err = f.l.Withdraw(ctx, buyer)
	require.NoError(t, err)
	assert.True(t, got.IsZero())
}

func TestRelist_NonOwnerRejected(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	id := f.mint(t, "Concert", 500)
	_, err := f.l.Purchase(ctx, buyer, id, wei(500))
	require.NoError(t, err)

	err = f.l.Relist(ctx, carol, id, wei(1))
	assert.ErrorIs(t, err, ErrNotOwner)
	err = f.l.Relist(ctx, admin, id, wei(1))
	assert.ErrorIs(t, err, ErrNotOwner, "the administrator has no say over sold tickets")

	tk, _ := f.l.Ticket(id)
	assert.Equal(t, model.StatusSold, tk.Status)
	assert.True(t, tk.Price.Equal(wei(500)))

	assert.ErrorIs(t, f.l.Relist(ctx, buyer, 42, wei(1)), ErrNotFound)
}

func TestRelist_IdempotentPriceUpdate(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	id := f.mint(t, "Concert", 500)
	_, err := f.l.Purchase(ctx, buyer, id, wei(500))
	require.NoError(t, err)

	require.NoError(t, f.l.Relist(ctx, buyer, id, wei(700)))
	require.NoError(t, f.l.Relist(ctx, buyer, id, wei(650)))
	tk, _ := f.l.Ticket(id)
	assert.Equal(t, model.StatusResale, tk.Status)
	assert.True(t, tk.Price.Equal(wei(650)))

	_, err = f.l.Purchase(ctx, carol, id, wei(649))
	assert.ErrorIs(t, err, ErrInsufficientPayment)
}

func TestRelist_AdminCanRelistAvailableTicket(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	id := f.mint(t, "Event 1", 1000)
	require.NoError(t, f.l.Relist(ctx, admin, id, wei(500)))

	_, err := f.l.Purchase(ctx, buyer, id, wei(500))
	require.NoError(t, err)
	assert.Equal(t, []uint64{id}, f.l.TicketsOf(buyer))
}

func TestTransfer(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	id := f.mint(t, "Concert", 500)

	assert.ErrorIs(t, f.l.Transfer(ctx, buyer, id, carol), ErrNotOwner)
	assert.ErrorIs(t, f.l.Transfer(ctx, admin, id, " "), ErrInvalidPrincipal)
	assert.ErrorIs(t, f.l.Transfer(ctx, admin, 7, carol), ErrNotFound)

	require.NoError(t, f.l.Transfer(ctx, admin, id, buyer))
	tk, _ := f.l.Ticket(id)
	assert.Equal(t, buyer, tk.Owner)
	assert.Equal(t, model.StatusAvailable, tk.Status, "transfer does not change status")

	require.NoError(t, f.l.Relist(ctx, buyer, id, wei(100)))
	_, err := f.l.Purchase(ctx, carol, id, wei(100))
	require.NoError(t, err)
	assert.True(t, f.l.Balance(buyer).Equal(wei(100)))
}

func TestTransfer_ListedTicketRejected(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	id := f.mint(t, "Concert", 500)
	_, err := f.l.Purchase(ctx, buyer, id, wei(500))
	require.NoError(t, err)
	require.NoError(t, f.l.Relist(ctx, buyer, id, wei(600)))
	height := f.journal.Len()

	err = f.l.Transfer(ctx, buyer, id, carol)
	assert.ErrorIs(t, err, ErrListed)
	assert.Equal(t, "Listed", Kind(err))
	assert.Equal(t, height, f.journal.Len())

	tk, _ := f.l.Ticket(id)
	assert.Equal(t, buyer, tk.Owner)
	assert.Equal(t, model.StatusResale, tk.Status)
	assert.True(t, tk.Price.Equal(wei(600)))
	assert.Empty(t, f.l.TicketsOf(carol))
}

func TestOversizedAmountsRejectedWithoutCommit(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	id := f.mint(t, "Concert", 500)
	huge := decimal.New(1, 300000000)

	_, err := f.l.Mint(ctx, admin, "Concert", huge, future())
	assert.ErrorIs(t, err, ErrInvalidAmount)
	_, err = f.l.Purchase(ctx, buyer, id, huge)
	assert.ErrorIs(t, err, ErrInvalidAmount)
	assert.ErrorIs(t, f.l.Relist(ctx, admin, id, huge), ErrInvalidAmount)
	assert.ErrorIs(t, f.l.Relist(ctx, admin, id, model.MaxWei.Add(wei(1))), ErrInvalidAmount)

	require.NoError(t, f.l.Relist(ctx, admin, id, model.MaxWei))
	assert.Equal(t, 2, f.journal.Len())
	assert.Equal(t, 1, f.l.TotalSupply())
}

func TestTicketsOf_AcquisitionOrder(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	a := f.mint(t, "A", 1)
	b := f.mint(t, "B", 1)
	c := f.mint(t, "C", 1)
	assert.Equal(t, []uint64{a, b, c}, f.l.TicketsOf(admin))

	for _, id := range []uint64{c, a} {
		_, err := f.l.Purchase(ctx, buyer, id, wei(1))
		require.NoError(t, err)
	}
	assert.Equal(t, []uint64{b}, f.l.TicketsOf(admin))
	assert.Equal(t, []uint64{c, a}, f.l.TicketsOf(buyer))
	assert.Empty(t, f.l.TicketsOf(carol))
}

func TestExistsAndPage(t *testing.T) {
	f := newFixture(t)
	for i := 0; i < 5; i++ {
		f.mint(t, "E", 10)
	}
	assert.True(t, f.l.Exists(5))
	assert.False(t, f.l.Exists(0))
	assert.False(t, f.l.Exists(6))

	page := f.l.Page(1, 2)
	require.Len(t, page, 2)
	assert.Equal(t, uint64(2), page[0].ID)
	assert.Equal(t, uint64(3), page[1].ID)
	assert.Len(t, f.l.Page(4, 100), 1)
	assert.Empty(t, f.l.Page(5, 10))
	assert.Empty(t, f.l.Page(0, 0))
}

func TestJournalFailureLeavesStateUnchanged(t *testing.T) {
	events := &recorder{}
	boom := errors.New("disk full")
	l, err := New(admin, WithClock(NewManualClock(genesis)), WithJournal(failingJournal{err: boom}), WithPublisher(events))
	require.NoError(t, err)

	_, err = l.Mint(context.Background(), admin, "Concert", wei(1), future())
	assert.ErrorIs(t, err, boom)
	assert.Equal(t, "Internal", Kind(err))
	assert.Equal(t, 0, l.TotalSupply())
	assert.Equal(t, uint64(0), l.Seq())
	assert.Empty(t, events.kinds())
}

func TestEventsCarryCommitSequence(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	id := f.mint(t, "Concert", 500)
	_, _ = f.l.Purchase(ctx, buyer, id, wei(1)) // rejected, consumes no sequence
	_, err := f.l.Purchase(ctx, buyer, id, wei(500))
	require.NoError(t, err)

	require.Len(t, f.events.events, 2)
	created, sold := f.events.events[0], f.events.events[1]
	assert.Equal(t, uint64(1), created.Seq)
	assert.Equal(t, "Concert", created.EventName)
	assert.Equal(t, future().Unix(), created.EventDate)
	assert.Equal(t, admin, created.Owner)
	assert.Equal(t, uint64(2), sold.Seq)
	assert.Equal(t, buyer, sold.Buyer)
	assert.True(t, sold.Price.Equal(wei(500)))
}

func TestRestoreReproducesState(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	a := f.mint(t, "A", 500)
	b := f.mint(t, "B", 300)
	_, err := f.l.Purchase(ctx, buyer, a, wei(800))
	require.NoError(t, err)
	require.NoError(t, f.l.Relist(ctx, buyer, a, wei(900)))
	require.NoError(t, f.l.Transfer(ctx, admin, b, carol))
	_, err = f.l.Withdraw(ctx, admin)
	require.NoError(t, err)

	// Chain time has moved past every event date; replay must still accept
	// the mints because they are checked against their recorded time.
	f.clock.Advance(365 * 24 * time.Hour)

	events := &recorder{}
	restored, err := New(admin, WithClock(f.clock), WithJournal(f.journal), WithPublisher(events))
	require.NoError(t, err)
	require.NoError(t, restored.Restore(ctx))

	assert.Equal(t, f.l.Seq(), restored.Seq())
	assert.Equal(t, f.l.AllTickets(), restored.AllTickets())
	for _, id := range f.l.AllTickets() {
		want, _ := f.l.Ticket(id)
		got, _ := restored.Ticket(id)
		assert.Equal(t, want.Owner, got.Owner)
		assert.Equal(t, want.Status, got.Status)
		assert.True(t, want.Price.Equal(got.Price))
	}
	for _, p := range []string{admin, buyer, carol} {
		assert.Equal(t, f.l.TicketsOf(p), restored.TicketsOf(p))
		assert.True(t, f.l.Balance(p).Equal(restored.Balance(p)), p)
	}
	assert.Empty(t, events.kinds(), "replay is silent")

	assert.Error(t, restored.Restore(ctx), "restore twice")
}

// TestRandomOperationsRespectStateMachine drives the ledger with random
// calls and checks every committed status change against the allowed edges.
func TestRandomOperationsRespectStateMachine(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	rng := rand.New(rand.NewSource(7))
	principals := []string{admin, buyer, carol, "dave"}

	allowed := map[[2]model.Status]bool{
		{model.StatusAvailable, model.StatusSold}:   true,
		{model.StatusSold, model.StatusResale}:      true,
		{model.StatusResale, model.StatusSold}:      true,
		{model.StatusResale, model.StatusResale}:    true,
		{model.StatusAvailable, model.StatusResale}: true,
	}

	for i := 0; i < 2000; i++ {
		caller := principals[rng.Intn(len(principals))]
		id := uint64(rng.Intn(6))
		before, beforeErr := f.l.Ticket(id)
		var err error
		op := rng.Intn(4)
		switch op {
		case 0:
			_, err = f.l.Mint(ctx, caller, "E", wei(int64(rng.Intn(100))), future())
		case 1:
			_, err = f.l.Purchase(ctx, caller, id, wei(int64(rng.Intn(120))))
		case 2:
			err = f.l.Relist(ctx, caller, id, wei(int64(rng.Intn(100))))
		case 3:
			err = f.l.Transfer(ctx, caller, id, principals[rng.Intn(len(principals))])
		}
		if beforeErr != nil || op == 0 {
			continue
		}
		after, _ := f.l.Ticket(id)
		if err != nil {
			assert.Equal(t, before.Owner, after.Owner)
			assert.Equal(t, before.Status, after.Status)
			assert.True(t, before.Price.Equal(after.Price))
			continue
		}
		switch op {
		case 1:
			assert.Equal(t, caller, after.Owner)
			assert.Equal(t, model.StatusSold, after.Status)
		case 2:
			assert.Equal(t, before.Owner, caller)
			assert.Equal(t, model.StatusResale, after.Status)
		case 3:
			assert.Equal(t, before.Status, after.Status)
			assert.NotEqual(t, model.StatusResale, after.Status, "a listed ticket changed hands by transfer")
		}
		if before.Status != after.Status || op == 2 {
			assert.True(t, allowed[[2]model.Status{before.Status, after.Status}],
				"illegal transition %s -> %s", before.Status, after.Status)
		}
	}
}

func TestConcurrentPurchasesSellOnce(t *testing.T) {
	f := newFixture(t)
	id := f.mint(t, "Concert", 500)

	var wg sync.WaitGroup
	var mu sync.Mutex
	winners := 0
	for i := 0; i < 32; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			_, err := f.l.Purchase(context.Background(), string(rune('a'+n)), id, wei(500))
			if err == nil {
				mu.Lock()
				winners++
				mu.Unlock()
				return
			}
			assert.ErrorIs(t, err, ErrNotForSale)
		}(i)
	}
	wg.Wait()
	assert.Equal(t, 1, winners)
	assert.True(t, f.l.Balance(admin).Equal(wei(500)))
}
