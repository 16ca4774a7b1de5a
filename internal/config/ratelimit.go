package config

import (
	"os"
	"strconv"
	"strings"
	"time"
)

// RateLimitConfig configures the Redis limiter in front of mutating ledger
// calls.  A key may spend Capacity tokens in a burst and earns RefillTokens
// back every RefillInterval.  Each operation spends Costs[op] tokens, 1 when
// the operation is not listed.
type RateLimitConfig struct {
	Enabled        bool
	Capacity       int
	RefillTokens   int
	RefillInterval time.Duration
	Costs          map[string]int
	KeyStrategy    string
	Prefix         string
	Debug          bool
}

func LoadRateLimitConfig() RateLimitConfig {
	def := RateLimitConfig{
		Enabled:        envBool("RATE_LIMIT_ENABLED", true),
		Capacity:       envInt("RATE_LIMIT_CAPACITY", 60),
		RefillTokens:   envInt("RATE_LIMIT_REFILL_TOKENS", 1),
		RefillInterval: envDur("RATE_LIMIT_REFILL_INTERVAL", time.Second),
		Costs:          parseCosts(envStr("RATE_LIMIT_COSTS", "mint=1,purchase=2,relist=1,transfer=2,withdraw=1")),
		KeyStrategy:    envStr("RATE_LIMIT_KEY_STRATEGY", "ip_principal_route"),
		Prefix:         envStr("RATE_LIMIT_PREFIX", "ledger:rl"),
		Debug:          envBool("RATE_LIMIT_DEBUG", false),
	}
	if b := envInt("RATE_LIMIT_BURST", -1); b > 0 {
		def.Capacity = b
	}
	if every := envDur("RATE_LIMIT_REFILL_EVERY", 0); every > 0 {
		def.RefillTokens = 1
		def.RefillInterval = every
	}
	if def.Capacity < 1 {
		def.Capacity = 1
	}
	if def.RefillTokens < 1 {
		def.RefillTokens = 1
	}
	if def.RefillInterval <= 0 {
		def.RefillInterval = time.Second
	}
	return def
}

// TokenInterval is the time it takes to earn back one token.
func (c RateLimitConfig) TokenInterval() time.Duration {
	if c.RefillTokens < 1 {
		return c.RefillInterval
	}
	return c.RefillInterval / time.Duration(c.RefillTokens)
}

// Cost is the number of tokens op spends, clamped to [1, Capacity].
func (c RateLimitConfig) Cost(op string) int {
	n, ok := c.Costs[op]
	if !ok || n < 1 {
		n = 1
	}
	if c.Capacity > 0 && n > c.Capacity {
		n = c.Capacity
	}
	return n
}

// parseCosts reads "op=n,op=n".  Malformed pairs are skipped.
func parseCosts(s string) map[string]int {
	m := map[string]int{}
	for _, pair := range strings.Split(s, ",") {
		op, n, ok := strings.Cut(strings.TrimSpace(pair), "=")
		if !ok {
			continue
		}
		v, err := strconv.Atoi(strings.TrimSpace(n))
		if err != nil || v < 1 {
			continue
		}
		m[strings.ToLower(strings.TrimSpace(op))] = v
	}
	return m
}

func envStr(k, d string) string {
	if v := os.Getenv(k); v != "" {
		return v
	}
	return d
}

func envBool(k string, d bool) bool {
	switch os.Getenv(k) {
	case "1", "true", "TRUE", "True", "yes", "YES", "on", "ON":
		return true
	case "0", "false", "FALSE", "False", "no", "NO", "off", "OFF":
		return false
	}
	return d
}

func envInt(k string, d int) int {
	v := os.Getenv(k)
	if v == "" {
		return d
	}
	if n, err := strconv.Atoi(v); err == nil {
		return n
	}
	return d
}

func envDur(k string, d time.Duration) time.Duration {
	v := os.Getenv(k)
	if v == "" {
		return d
	}
	if dur, err := time.ParseDuration(v); err == nil {
		return dur
	}
	return d
}
