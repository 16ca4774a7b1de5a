package ledger

import "errors"

// Sentinel errors returned by ledger operations.  Every rejected call wraps
// exactly one of these, so callers classify with errors.Is or Kind.  A
// rejected call never changes ledger state.
var (
	// ErrUnauthorized: the caller is not allowed to perform a privileged
	// operation (mint by anyone but the administrator).
	ErrUnauthorized = errors.New("caller is not the ledger administrator")
	// ErrNotOwner: relist or transfer by someone other than the holder.
	ErrNotOwner = errors.New("caller does not own the ticket")
	// ErrNotFound: unknown ticket id.
	ErrNotFound = errors.New("ticket not found")
	// ErrNotForSale: purchase of a ticket whose status is SOLD.
	ErrNotForSale = errors.New("ticket is not for sale")
	// ErrInsufficientPayment: payment below the ticket's current price.
	ErrInsufficientPayment = errors.New("insufficient payment")
	// ErrInvalidEventDate: mint with an event date not after chain time.
	ErrInvalidEventDate = errors.New("event date must be in the future")
	// ErrListed: transfer of a ticket that is listed for resale.
	ErrListed = errors.New("ticket is listed for resale")

	ErrInvalidEventName = errors.New("event name must not be empty")
	ErrInvalidAmount    = errors.New("amount must be a non-negative integer")
	ErrInvalidPrincipal = errors.New("principal must not be empty")
)

var kinds = []struct {
	err  error
	name string
}{
	{ErrUnauthorized, "Unauthorized"},
	{ErrNotOwner, "NotOwner"},
	{ErrNotFound, "NotFound"},
	{ErrNotForSale, "NotForSale"},
	{ErrInsufficientPayment, "InsufficientPayment"},
	{ErrInvalidEventDate, "InvalidEventDate"},
	{ErrListed, "Listed"},
	{ErrInvalidEventName, "InvalidEventName"},
	{ErrInvalidAmount, "InvalidAmount"},
	{ErrInvalidPrincipal, "InvalidPrincipal"},
}

// Kind returns the symbolic name of a ledger rejection ("NotFound",
// "InsufficientPayment", ...), "Internal" for any other non-nil error and
// "" for nil.
func Kind(err error) string {
	if err == nil {
		return ""
	}
	for _, k := range kinds {
		if errors.Is(err, k.err) {
			return k.name
		}
	}
	return "Internal"
}
