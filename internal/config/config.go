package config // package config loads application configuration from environment variables

import (
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config holds all runtime configuration values.  Each field corresponds to
// an environment variable.  Optional integrations (MySQL projection,
// RabbitMQ) are switched off by leaving their address empty.
type Config struct {
	Env      string // application environment (e.g. "dev", "prod")
	Port     string // HTTP port to listen on
	LogLevel slog.Level

	LedgerAdmin string // wallet address allowed to mint
	DataDir     string // badger block store; empty keeps the ledger in memory
	EventBuffer int    // per-subscriber event queue length

	JWTSecret    string        // secret used to sign JWTs
	AccessTTLMin int           // access token time-to-live in minutes
	LoginSkew    time.Duration // accepted clock difference on signed logins

	DBUser string // projection database user
	DBPass string // projection database password (optional)
	DBHost string // projection database host; empty disables the projection
	DBPort string
	DBName string

	RabbitURL   string // broker URL; empty disables event publishing
	EventLogDir string // directory the broker consumer writes to
}

// Load reads configuration from the environment, after merging a .env file
// from the working directory when one exists.  Missing required variables
// are reported together in the returned error.
func Load() (Config, error) {
	_ = godotenv.Load()

	var missing []string
	must := func(key string) string {
		v, ok := os.LookupEnv(key)
		if !ok || strings.TrimSpace(v) == "" {
			missing = append(missing, key)
		}
		return strings.TrimSpace(v)
	}

	cfg := Config{
		Env:          envStr("APP_ENV", "dev"),
		Port:         envStr("APP_PORT", "8080"),
		LogLevel:     parseLevel(envStr("LOG_LEVEL", "info")),
		LedgerAdmin:  must("LEDGER_ADMIN"),
		DataDir:      os.Getenv("LEDGER_DATA_DIR"),
		EventBuffer:  envInt("EVENT_BUFFER", 1024),
		JWTSecret:    must("JWT_SECRET"),
		AccessTTLMin: envInt("ACCESS_TOKEN_TTL_MIN", 30),
		LoginSkew:    envDur("LOGIN_MAX_SKEW", 30*time.Second),
		DBUser:       envStr("DB_USER", "root"),
		DBPass:       os.Getenv("DB_PASS"),
		DBHost:       os.Getenv("DB_HOST"),
		DBPort:       envStr("DB_PORT", "3306"),
		DBName:       envStr("DB_NAME", "ticket_ledger"),
		RabbitURL:    firstNonEmpty(os.Getenv("RABBITMQ_URL"), os.Getenv("AMQP_URL")),
		EventLogDir:  envStr("EVENT_LOG_DIR", "logs"),
	}
	if len(missing) > 0 {
		return Config{}, fmt.Errorf("missing required env vars: %s", strings.Join(missing, ", "))
	}
	if cfg.AccessTTLMin < 1 {
		return Config{}, fmt.Errorf("invalid ACCESS_TOKEN_TTL_MIN: %d", cfg.AccessTTLMin)
	}
	return cfg, nil
}

// ProjectionEnabled reports whether the MySQL read model is configured.
func (c Config) ProjectionEnabled() bool { return c.DBHost != "" }

// BrokerEnabled reports whether ledger events go to RabbitMQ.
func (c Config) BrokerEnabled() bool { return c.RabbitURL != "" }

func parseLevel(s string) slog.Level {
	var lvl slog.Level
	if err := lvl.UnmarshalText([]byte(s)); err != nil {
		return slog.LevelInfo
	}
	return lvl
}

func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if v != "" {
			return v
		}
	}
	return ""
}
