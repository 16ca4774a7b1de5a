package middleware

import "github.com/labstack/echo/v4"

// Principal returns the authenticated wallet address, or "" when the
// request carried no valid token.
func Principal(c echo.Context) string {
	if v, ok := c.Get(ContextPrincipal).(string); ok {
		return v
	}
	return ""
}

// principalOrGuest is used for keying rate limits.
func principalOrGuest(c echo.Context) string {
	if p := Principal(c); p != "" {
		return p
	}
	return "guest"
}
