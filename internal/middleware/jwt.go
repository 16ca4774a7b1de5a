package middleware // declare the middleware package; contains reusable HTTP middleware functions

import (
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"

	"github.com/iliyamo/ticket-ledger/internal/utils"
)

// Context keys set by JWTAuth.
const (
	ContextPrincipal = "principal"
	ContextRole      = "role"
)

// JWTAuth returns an Echo middleware that validates a Bearer access token
// and stores the wallet address and role in the request context.  The
// ledger has no sessions: whoever presents a valid token for an address
// acts as that principal.
func JWTAuth(secret string) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			auth := c.Request().Header.Get("Authorization")
			if !strings.HasPrefix(auth, "Bearer ") {
				return c.JSON(http.StatusUnauthorized, echo.Map{"error": "missing bearer token"})
			}
			claims, err := utils.ParseAccessToken(secret, strings.TrimPrefix(auth, "Bearer "))
			if err != nil {
				return c.JSON(http.StatusUnauthorized, echo.Map{"error": "invalid token"})
			}
			c.Set(ContextPrincipal, claims.Principal)
			c.Set(ContextRole, claims.Role)
			return next(c)
		}
	}
}
