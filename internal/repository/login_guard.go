package repository

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"
)

// LoginGuard remembers which signed logins were already exchanged for a
// token, so a captured login body cannot be replayed inside its skew
// window.  A login is identified by (address, timestamp).
type LoginGuard struct {
	rdb    *redis.Client
	prefix string
	ttl    time.Duration
}

// NewLoginGuard returns a guard whose entries outlive the login window.
// ttl should be at least twice the accepted clock skew.
func NewLoginGuard(rdb *redis.Client, prefix string, ttl time.Duration) *LoginGuard {
	return &LoginGuard{rdb: rdb, prefix: prefix, ttl: ttl}
}

// Claim records the login and reports whether it was the first use.
func (g *LoginGuard) Claim(ctx context.Context, address, timestamp string) (bool, error) {
	return g.rdb.SetNX(ctx, g.prefix+":"+address+":"+timestamp, 1, g.ttl).Result()
}
