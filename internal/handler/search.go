package handler

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	"github.com/labstack/echo/v4"

	"github.com/iliyamo/ticket-ledger/internal/model"
	"github.com/iliyamo/ticket-ledger/internal/repository"
)

// TicketSearcher is the read model the search endpoints query.
type TicketSearcher interface {
	Search(ctx context.Context, f repository.TicketFilter) ([]model.OwnedTicket, int64, error)
	GetByID(ctx context.Context, id uint64) (model.OwnedTicket, error)
}

// SearchHandler serves queries against the MySQL projection.  Results may
// trail the ledger by the events still in flight.
type SearchHandler struct {
	Repo   TicketSearcher
	Logger *slog.Logger
}

func NewSearchHandler(repo TicketSearcher, logger *slog.Logger) *SearchHandler {
	return &SearchHandler{Repo: repo, Logger: logger}
}

// SearchTickets: GET /v1/search/tickets?status=&owner=&name=&page=&page_size=
func (h *SearchHandler) SearchTickets(c echo.Context) error {
	f := repository.TicketFilter{
		Owner: strings.TrimSpace(c.QueryParam("owner")),
		Name:  strings.TrimSpace(c.QueryParam("name")),
	}
	if s := c.QueryParam("status"); s != "" {
		st, err := model.ParseStatus(s)
		if err != nil {
			return badRequest(c, err.Error())
		}
		f.Status = &st
	}
	f.Page, _ = strconv.Atoi(c.QueryParam("page"))
	if f.Page < 1 {
		f.Page = 1
	}
	f.PageSize, _ = strconv.Atoi(c.QueryParam("page_size"))
	if f.PageSize < 1 {
		f.PageSize = 20
	}
	if f.PageSize > 100 {
		f.PageSize = 100
	}

	items, total, err := h.Repo.Search(c.Request().Context(), f)
	if err != nil {
		h.Logger.Error("ticket search failed", "err", err)
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "database error"})
	}
	return c.JSON(http.StatusOK, echo.Map{
		"data":      items,
		"total":     total,
		"page":      f.Page,
		"page_size": f.PageSize,
	})
}

// GetTicket: GET /v1/search/tickets/:id
func (h *SearchHandler) GetTicket(c echo.Context) error {
	id, ok := parseID(c)
	if !ok {
		return badRequest(c, "invalid ticket id")
	}
	t, err := h.Repo.GetByID(c.Request().Context(), id)
	if errors.Is(err, repository.ErrTicketNotFound) {
		return c.JSON(http.StatusNotFound, echo.Map{"error": err.Error(), "kind": "NotFound"})
	}
	if err != nil {
		h.Logger.Error("ticket lookup failed", "id", id, "err", err)
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "database error"})
	}
	return c.JSON(http.StatusOK, t)
}
