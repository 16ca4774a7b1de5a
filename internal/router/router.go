package router // package router defines how HTTP routes are registered for the API

import (
	"github.com/labstack/echo/v4"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/iliyamo/ticket-ledger/internal/handler"
	"github.com/iliyamo/ticket-ledger/internal/middleware"
	"github.com/iliyamo/ticket-ledger/internal/utils"
)

// RegisterRoutes registers routes that do not require authentication and
// do not touch the ledger: the health check and the Prometheus scrape
// endpoint.
func RegisterRoutes(e *echo.Echo) {
	e.GET("/healthz", handler.Health)
	e.GET("/metrics", echo.WrapHandler(promhttp.Handler()))
}

// RegisterAuth registers wallet login and the caller's own view.  Login
// is public; /v1/me requires a token of any role.
func RegisterAuth(e *echo.Echo, a *handler.AuthHandler, jwtSecret string) {
	e.POST("/v1/auth/login", a.Login)

	auth := e.Group("/v1")
	auth.Use(middleware.JWTAuth(jwtSecret))
	auth.Use(middleware.RequireRole(utils.RoleAdmin, utils.RoleHolder))
	auth.GET("/me", a.Me)
}

// RegisterTickets registers the ledger endpoints.  Reads are public and go
// through cache; writes require a token and pass through limiter, which
// runs after JWTAuth so it can key on the principal.
func RegisterTickets(e *echo.Echo, t *handler.TicketHandler, jwtSecret string, cache, limiter echo.MiddlewareFunc) {
	pub := e.Group("/v1", cache)
	pub.GET("/tickets", t.List)
	pub.GET("/tickets/:id", t.Get)
	pub.GET("/tickets/:id/exists", t.Exists)
	pub.GET("/owners/:address/tickets", t.OwnerTickets)
	pub.GET("/ledger", t.Info)

	jwt := middleware.JWTAuth(jwtSecret)
	anyRole := middleware.RequireRole(utils.RoleAdmin, utils.RoleHolder)
	w := e.Group("/v1")
	w.POST("/tickets", t.Mint, jwt, middleware.RequireRole(utils.RoleAdmin), limiter)
	w.POST("/tickets/:id/purchase", t.Purchase, jwt, anyRole, limiter)
	w.POST("/tickets/:id/relist", t.Relist, jwt, anyRole, limiter)
	w.POST("/tickets/:id/transfer", t.Transfer, jwt, anyRole, limiter)
	w.POST("/balance/withdraw", t.Withdraw, jwt, anyRole, limiter)
}

// RegisterSearch registers the read-model search endpoints.
func RegisterSearch(e *echo.Echo, s *handler.SearchHandler, cache echo.MiddlewareFunc) {
	g := e.Group("/v1/search", cache)
	g.GET("/tickets", s.SearchTickets)
	g.GET("/tickets/:id", s.GetTicket)
}
