package handler

import (
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/iliyamo/ticket-ledger/internal/ledger"
	"github.com/iliyamo/ticket-ledger/internal/middleware"
	"github.com/iliyamo/ticket-ledger/internal/model"
	"github.com/iliyamo/ticket-ledger/internal/wallet"
)

// TicketHandler exposes the ledger over HTTP.  It adds no rules of its
// own: the authenticated principal is passed through as the caller and
// every rejection comes from the ledger.
type TicketHandler struct {
	Ledger *ledger.Ledger
	Logger *slog.Logger
}

func NewTicketHandler(l *ledger.Ledger, logger *slog.Logger) *TicketHandler {
	return &TicketHandler{Ledger: l, Logger: logger}
}

// ----- DTOs -----

type mintReq struct {
	EventName string `json:"event_name"`
	Price     string `json:"price"`      // wei
	EventDate int64  `json:"event_date"` // Unix seconds
}

type purchaseReq struct {
	Payment string `json:"payment"` // wei
}

type relistReq struct {
	Price string `json:"price"` // wei
}

type transferReq struct {
	To string `json:"to"`
}

func parseID(c echo.Context) (uint64, bool) {
	id, err := strconv.ParseUint(c.Param("id"), 10, 64)
	return id, err == nil && id > 0
}

func (h *TicketHandler) invalidAmount(c echo.Context, raw string) error {
	return ledgerError(c, h.Logger, fmt.Errorf("%w: %.32q", ledger.ErrInvalidAmount, raw))
}

// Mint: POST /v1/tickets (admin only).
func (h *TicketHandler) Mint(c echo.Context) error {
	var req mintReq
	if err := c.Bind(&req); err != nil {
		return badRequest(c, "invalid body")
	}
	price, err := model.ParseWei(req.Price)
	if err != nil {
		return h.invalidAmount(c, req.Price)
	}
	id, err := h.Ledger.Mint(c.Request().Context(), middleware.Principal(c),
		strings.TrimSpace(req.EventName), price, time.Unix(req.EventDate, 0))
	if err != nil {
		return ledgerError(c, h.Logger, err)
	}
	t, err := h.Ledger.Ticket(id)
	if err != nil {
		return ledgerError(c, h.Logger, err)
	}
	return c.JSON(http.StatusCreated, t)
}

// List: GET /v1/tickets?start=&limit=
func (h *TicketHandler) List(c echo.Context) error {
	start, _ := strconv.Atoi(c.QueryParam("start"))
	if start < 0 {
		start = 0
	}
	limit, _ := strconv.Atoi(c.QueryParam("limit"))
	if limit < 1 {
		limit = 20
	}
	if limit > 100 {
		limit = 100
	}
	return c.JSON(http.StatusOK, echo.Map{
		"data":  h.Ledger.Page(start, limit),
		"total": h.Ledger.TotalSupply(),
		"start": start,
		"limit": limit,
	})
}

// Get: GET /v1/tickets/:id
func (h *TicketHandler) Get(c echo.Context) error {
	id, ok := parseID(c)
	if !ok {
		return badRequest(c, "invalid ticket id")
	}
	t, err := h.Ledger.Ticket(id)
	if err != nil {
		return ledgerError(c, h.Logger, err)
	}
	return c.JSON(http.StatusOK, t)
}

// Exists: GET /v1/tickets/:id/exists
func (h *TicketHandler) Exists(c echo.Context) error {
	id, ok := parseID(c)
	if !ok {
		return badRequest(c, "invalid ticket id")
	}
	return c.JSON(http.StatusOK, echo.Map{"id": id, "exists": h.Ledger.Exists(id)})
}

// Purchase: POST /v1/tickets/:id/purchase
func (h *TicketHandler) Purchase(c echo.Context) error {
	id, ok := parseID(c)
	if !ok {
		return badRequest(c, "invalid ticket id")
	}
	var req purchaseReq
	if err := c.Bind(&req); err != nil {
		return badRequest(c, "invalid body")
	}
	payment, err := model.ParseWei(req.Payment)
	if err != nil {
		return h.invalidAmount(c, req.Payment)
	}
	receipt, err := h.Ledger.Purchase(c.Request().Context(), middleware.Principal(c), id, payment)
	if err != nil {
		return ledgerError(c, h.Logger, err)
	}
	return c.JSON(http.StatusOK, receipt)
}

// Relist: POST /v1/tickets/:id/relist
func (h *TicketHandler) Relist(c echo.Context) error {
	id, ok := parseID(c)
	if !ok {
		return badRequest(c, "invalid ticket id")
	}
	var req relistReq
	if err := c.Bind(&req); err != nil {
		return badRequest(c, "invalid body")
	}
	price, err := model.ParseWei(req.Price)
	if err != nil {
		return h.invalidAmount(c, req.Price)
	}
	if err := h.Ledger.Relist(c.Request().Context(), middleware.Principal(c), id, price); err != nil {
		return ledgerError(c, h.Logger, err)
	}
	return h.Get(c)
}

// Transfer: POST /v1/tickets/:id/transfer
func (h *TicketHandler) Transfer(c echo.Context) error {
	id, ok := parseID(c)
	if !ok {
		return badRequest(c, "invalid ticket id")
	}
	var req transferReq
	if err := c.Bind(&req); err != nil {
		return badRequest(c, "invalid body")
	}
	to := strings.TrimSpace(req.To)
	if err := wallet.ValidateAddress(to); err != nil {
		return ledgerError(c, h.Logger, fmt.Errorf("%w: %v", ledger.ErrInvalidPrincipal, err))
	}
	if err := h.Ledger.Transfer(c.Request().Context(), middleware.Principal(c), id, to); err != nil {
		return ledgerError(c, h.Logger, err)
	}
	return h.Get(c)
}

// OwnerTickets: GET /v1/owners/:address/tickets
func (h *TicketHandler) OwnerTickets(c echo.Context) error {
	owner := c.Param("address")
	ids := h.Ledger.TicketsOf(owner)
	out := make([]model.OwnedTicket, 0, len(ids))
	for _, id := range ids {
		t, err := h.Ledger.Ticket(id)
		if err != nil {
			return ledgerError(c, h.Logger, err)
		}
		out = append(out, t)
	}
	return c.JSON(http.StatusOK, echo.Map{"owner": owner, "data": out})
}

// Info: GET /v1/ledger
func (h *TicketHandler) Info(c echo.Context) error {
	return c.JSON(http.StatusOK, echo.Map{
		"admin":        h.Ledger.Admin(),
		"total_supply": h.Ledger.TotalSupply(),
		"seq":          h.Ledger.Seq(),
	})
}

// Withdraw: POST /v1/balance/withdraw
func (h *TicketHandler) Withdraw(c echo.Context) error {
	amount, err := h.Ledger.Withdraw(c.Request().Context(), middleware.Principal(c))
	if err != nil {
		return ledgerError(c, h.Logger, err)
	}
	return c.JSON(http.StatusOK, echo.Map{"amount": amount})
}
