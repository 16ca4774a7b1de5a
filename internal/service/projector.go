package service

import (
	"context"
	"log/slog"
	"time"

	"github.com/iliyamo/ticket-ledger/internal/model"
)

// EventApplier is the write side of the read model.
type EventApplier interface {
	Apply(ctx context.Context, ev model.Event) error
}

// Projector keeps the read model in step with the ledger.  It retries a
// failed Apply a few times with backoff; an event that still fails is
// logged and skipped, leaving that row stale until a later event for the
// same ticket overwrites it.
type Projector struct {
	Repo     EventApplier
	Logger   *slog.Logger
	Attempts int
	Backoff  time.Duration
}

func NewProjector(repo EventApplier, logger *slog.Logger) *Projector {
	return &Projector{Repo: repo, Logger: logger, Attempts: 3, Backoff: 200 * time.Millisecond}
}

// Handle applies one event.  It is meant to run as an event bus
// subscriber, which delivers events in commit order.
func (p *Projector) Handle(ev model.Event) {
	wait := p.Backoff
	for attempt := 1; ; attempt++ {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		err := p.Repo.Apply(ctx, ev)
		cancel()
		if err == nil {
			return
		}
		if attempt >= p.Attempts {
			p.Logger.Error("projection failed", "seq", ev.Seq, "kind", ev.Kind, "ticket_id", ev.TicketID, "err", err)
			return
		}
		p.Logger.Warn("projection retry", "seq", ev.Seq, "attempt", attempt, "err", err)
		time.Sleep(wait)
		wait *= 2
	}
}
