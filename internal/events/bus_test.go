package events

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/iliyamo/ticket-ledger/internal/model"
)

func collect(b *Bus, name string) (*[]uint64, *sync.Mutex, func()) {
	var mu sync.Mutex
	seen := []uint64{}
	cancel := b.Subscribe(name, func(ev model.Event) {
		mu.Lock()
		seen = append(seen, ev.Seq)
		mu.Unlock()
	})
	return &seen, &mu, cancel
}

func TestBus_DeliversInPublishOrder(t *testing.T) {
	b := NewBus(nil, 0)
	a, amu, _ := collect(b, "a")
	c, cmu, _ := collect(b, "c")

	for i := uint64(1); i <= 200; i++ {
		b.Publish(model.Event{Kind: model.EventTicketSold, Seq: i})
	}
	b.Close()

	want := make([]uint64, 200)
	for i := range want {
		want[i] = uint64(i + 1)
	}
	amu.Lock()
	assert.Equal(t, want, *a)
	amu.Unlock()
	cmu.Lock()
	assert.Equal(t, want, *c)
	cmu.Unlock()
}

func TestBus_CancelStopsDelivery(t *testing.T) {
	b := NewBus(nil, 4)
	seen, mu, cancel := collect(b, "x")

	b.Publish(model.Event{Seq: 1})
	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(*seen) == 1
	}, time.Second, 5*time.Millisecond)

	cancel()
	cancel()
	b.Publish(model.Event{Seq: 2})
	b.Close()

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, []uint64{1}, *seen)
}

func TestBus_FullQueueDropsInsteadOfBlocking(t *testing.T) {
	b := NewBus(nil, 1)
	release := make(chan struct{})
	var mu sync.Mutex
	got := []uint64{}
	b.Subscribe("slow", func(ev model.Event) {
		<-release
		mu.Lock()
		got = append(got, ev.Seq)
		mu.Unlock()
	})

	done := make(chan struct{})
	go func() {
		for i := uint64(1); i <= 50; i++ {
			b.Publish(model.Event{Seq: i})
		}
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("publish blocked on a slow subscriber")
	}
	close(release)
	b.Close()

	mu.Lock()
	defer mu.Unlock()
	assert.NotEmpty(t, got)
	assert.Less(t, len(got), 50)
	assert.IsIncreasing(t, got)
}

func TestBus_PanickingHandlerKeepsRunning(t *testing.T) {
	b := NewBus(nil, 8)
	var mu sync.Mutex
	got := []uint64{}
	b.Subscribe("flaky", func(ev model.Event) {
		if ev.Seq == 1 {
			panic("boom")
		}
		mu.Lock()
		got = append(got, ev.Seq)
		mu.Unlock()
	})
	b.Publish(model.Event{Seq: 1})
	b.Publish(model.Event{Seq: 2})
	b.Close()

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, []uint64{2}, got)
}

func TestBus_SubscribeAfterClose(t *testing.T) {
	b := NewBus(nil, 1)
	b.Close()
	cancel := b.Subscribe("late", func(model.Event) { t.Fatal("must not be called") })
	b.Publish(model.Event{Seq: 1})
	cancel()
}

func TestBus_CancelDrainsQueuedEvents(t *testing.T) {
	b := NewBus(nil, 8)
	gate := make(chan struct{})
	var mu sync.Mutex
	seen := []uint64{}
	cancel := b.Subscribe("slow", func(ev model.Event) {
		<-gate
		mu.Lock()
		seen = append(seen, ev.Seq)
		mu.Unlock()
	})
	for i := uint64(1); i <= 3; i++ {
		b.Publish(model.Event{Seq: i})
	}

	cancelled := make(chan struct{})
	go func() {
		cancel()
		close(cancelled)
	}()
	close(gate)

	select {
	case <-cancelled:
	case <-time.After(time.Second):
		t.Fatal("cancel did not return")
	}
	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, []uint64{1, 2, 3}, seen)
}
