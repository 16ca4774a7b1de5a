package middleware

import (
	"math"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/redis/go-redis/v9"

	"github.com/iliyamo/ticket-ledger/internal/config"
)

// limiterScript is a cell-rate limiter over one key holding the theoretical
// arrival time in ms.  A call spending cost tokens pushes it forward by
// cost*interval and is refused while that lands more than burst*interval
// ahead of now.  Returns {allowed, remaining, retry_after_ms}.
var limiterScript = redis.NewScript(`
local key = KEYS[1]
local now = tonumber(ARGV[1])
local interval = tonumber(ARGV[2])
local burst = tonumber(ARGV[3])
local cost = tonumber(ARGV[4])

local tat = tonumber(redis.call('GET', key))
if tat == nil or tat < now then
  tat = now
end

local window = burst * interval
local next_tat = tat + cost * interval
local allow_at = next_tat - window
if allow_at > now then
  return { 0, math.floor((window - (tat - now)) / interval), allow_at - now }
end

redis.call('SET', key, next_tat, 'PX', next_tat - now)
return { 1, math.floor((window - (next_tat - now)) / interval), 0 }
`)

// NewTokenBucket limits mutating ledger calls per key.  Each call spends
// cfg.Cost(op) tokens, so purchases and transfers drain a key faster than
// relists.  Redis errors let the request through.
func NewTokenBucket(cfg config.RateLimitConfig, rdb *redis.Client) echo.MiddlewareFunc {
	return newTokenBucket(cfg, rdb, time.Now)
}

func newTokenBucket(cfg config.RateLimitConfig, rdb *redis.Client, now func() time.Time) echo.MiddlewareFunc {
	if !cfg.Enabled || rdb == nil {
		return func(next echo.HandlerFunc) echo.HandlerFunc { return next }
	}
	intervalMs := cfg.TokenInterval().Milliseconds()
	if intervalMs < 1 {
		intervalMs = 1
	}
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			key := buildRateKey(cfg, c)
			op := ledgerOp(c)
			args := []any{now().UnixMilli(), intervalMs, cfg.Capacity, cfg.Cost(op)}
			vals, err := limiterScript.Run(c.Request().Context(), rdb, []string{key}, args...).Result()
			if err != nil {
				if cfg.Debug {
					c.Logger().Warnf("[ratelimit] redis error for key=%s: %v", key, err)
				}
				return next(c)
			}
			arr, ok := vals.([]any)
			if !ok || len(arr) != 3 {
				return next(c)
			}
			allowed := asInt64(arr[0]) == 1
			remaining := asInt64(arr[1])
			retryMs := asInt64(arr[2])

			h := c.Response().Header()
			h.Set("X-RateLimit-Limit", strconv.Itoa(cfg.Capacity))
			h.Set("X-RateLimit-Remaining", strconv.FormatInt(remaining, 10))
			if !allowed {
				secs := int(math.Ceil(float64(retryMs) / 1000.0))
				h.Set("Retry-After", strconv.Itoa(secs))
				return c.JSON(http.StatusTooManyRequests, echo.Map{
					"error":       "rate limit exceeded",
					"kind":        "RateLimited",
					"operation":   op,
					"retry_after": secs,
				})
			}
			if cfg.Debug {
				h.Set("X-RateLimit-Key", key)
			}
			return next(c)
		}
	}
}

// ledgerOp names the ledger operation behind the matched route: the last
// path segment, or "mint" for POST /v1/tickets.
func ledgerOp(c echo.Context) string {
	path := c.Path()
	if c.Request().Method == http.MethodPost && strings.HasSuffix(path, "/tickets") {
		return "mint"
	}
	return path[strings.LastIndex(path, "/")+1:]
}

func asInt64(v any) int64 {
	switch t := v.(type) {
	case int64:
		return t
	case int:
		return int64(t)
	case float64:
		return int64(t)
	case string:
		if n, err := strconv.ParseInt(t, 10, 64); err == nil {
			return n
		}
	}
	return 0
}

func buildRateKey(cfg config.RateLimitConfig, c echo.Context) string {
	ip := c.RealIP()
	if ip == "" {
		ip = "unknown"
	}
	who := principalOrGuest(c)
	route := c.Request().Method + " " + c.Path()

	parts := []string{cfg.Prefix}
	switch strings.ToLower(cfg.KeyStrategy) {
	case "ip":
		parts = append(parts, "ip", ip)
	case "principal":
		parts = append(parts, "principal", who)
	case "route":
		parts = append(parts, "route", route)
	case "ip_principal":
		parts = append(parts, "ip", ip, "principal", who)
	case "ip_route":
		parts = append(parts, "ip", ip, "route", route)
	case "principal_route":
		parts = append(parts, "principal", who, "route", route)
	default: // "ip_principal_route"
		parts = append(parts, "ip", ip, "principal", who, "route", route)
	}
	return strings.Join(parts, ":")
}
