// Package metrics holds the prometheus collectors shared by the ledger,
// the event bus and the HTTP layer.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	ledgerOperations = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ledger_operations_total",
			Help: "Ledger calls by operation and outcome kind",
		},
		[]string{"operation", "result"},
	)

	ticketsMinted = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "ledger_tickets_total",
			Help: "Number of tickets minted so far",
		},
	)

	ticketEvents = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ledger_events_total",
			Help: "Ledger events emitted by kind",
		},
		[]string{"kind"},
	)

	eventsDropped = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "event_bus_dropped_total",
			Help: "Events dropped because a subscriber queue was full",
		},
		[]string{"subscriber"},
	)

	journalHeight = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "ledger_journal_height",
			Help: "Sequence number of the last committed transaction",
		},
	)
)

// TrackOperation counts one ledger call.  result is "ok" or an error kind.
func TrackOperation(operation, result string) {
	ledgerOperations.WithLabelValues(operation, result).Inc()
}

// SetTicketCount records the current total supply.
func SetTicketCount(n int) {
	ticketsMinted.Set(float64(n))
}

// TrackEvent counts an emitted ledger event.
func TrackEvent(kind string) {
	ticketEvents.WithLabelValues(kind).Inc()
}

// TrackDropped counts an event a subscriber never received.
func TrackDropped(subscriber string) {
	eventsDropped.WithLabelValues(subscriber).Inc()
}

// SetJournalHeight records the last committed sequence number.
func SetJournalHeight(seq uint64) {
	journalHeight.Set(float64(seq))
}
