// Package repository holds the MySQL read model of the ticket ledger.  The
// ledger itself stays authoritative; rows here are projections of its
// events and may lag behind it.
package repository

import "errors"

// ErrTicketNotFound is returned when the projection has no row for an id.
// Handlers translate it into an HTTP 404 response.
var ErrTicketNotFound = errors.New("ticket not found")

// ErrUnknownEvent is returned by Apply for an event kind it cannot project.
var ErrUnknownEvent = errors.New("unknown event kind")
