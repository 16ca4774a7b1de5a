package handler

import (
	"log/slog"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/iliyamo/ticket-ledger/internal/ledger"
)

// statusFor maps a ledger rejection kind to an HTTP status.
func statusFor(kind string) int {
	switch kind {
	case "NotFound":
		return http.StatusNotFound
	case "Unauthorized", "NotOwner":
		return http.StatusForbidden
	case "NotForSale", "Listed":
		return http.StatusConflict
	case "InsufficientPayment":
		return http.StatusPaymentRequired
	case "InvalidEventDate", "InvalidEventName", "InvalidAmount", "InvalidPrincipal":
		return http.StatusUnprocessableEntity
	default:
		return http.StatusInternalServerError
	}
}

// ledgerError writes err as {"error", "kind"}.  Internal failures are
// logged and their message withheld.
func ledgerError(c echo.Context, logger *slog.Logger, err error) error {
	kind := ledger.Kind(err)
	status := statusFor(kind)
	if status == http.StatusInternalServerError {
		logger.Error("ledger call failed", "path", c.Path(), "err", err)
		return c.JSON(status, echo.Map{"error": "internal error", "kind": kind})
	}
	return c.JSON(status, echo.Map{"error": err.Error(), "kind": kind})
}

func badRequest(c echo.Context, msg string) error {
	return c.JSON(http.StatusBadRequest, echo.Map{"error": msg})
}
