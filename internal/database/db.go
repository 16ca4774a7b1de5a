package database

import (
	"context"
	"database/sql"
	"net"
	"time"

	"github.com/go-sql-driver/mysql"
)

// Open connects to MySQL and verifies the connection.
func Open(user, pass, host, port, name string) (*sql.DB, error) {
	cfg := mysql.NewConfig()
	cfg.User = user
	cfg.Passwd = pass
	cfg.Net = "tcp"
	cfg.Addr = net.JoinHostPort(host, port)
	cfg.DBName = name
	cfg.ParseTime = true // DATETIME -> time.Time
	cfg.Loc = time.UTC
	cfg.Params = map[string]string{"charset": "utf8mb4"}

	db, err := sql.Open("mysql", cfg.FormatDSN())
	if err != nil {
		return nil, err
	}

	// Pool settings
	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(25)
	db.SetConnMaxLifetime(30 * time.Minute)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}
	return db, nil
}

// ticketsDDL is the read-model table fed by the ledger's events.  last_seq
// is the commit sequence of the newest event applied to the row.
const ticketsDDL = `CREATE TABLE IF NOT EXISTS tickets (
	id          BIGINT UNSIGNED NOT NULL PRIMARY KEY,
	event_name  VARCHAR(255)    NOT NULL,
	price_wei   DECIMAL(65,0)   NOT NULL,
	event_date  BIGINT          NOT NULL,
	status      TINYINT UNSIGNED NOT NULL,
	owner       VARCHAR(64)     NOT NULL,
	last_seq    BIGINT UNSIGNED NOT NULL,
	updated_at  DATETIME        NOT NULL DEFAULT CURRENT_TIMESTAMP ON UPDATE CURRENT_TIMESTAMP,
	INDEX idx_tickets_owner (owner),
	INDEX idx_tickets_status (status)
) ENGINE=InnoDB DEFAULT CHARSET=utf8mb4`

// EnsureSchema creates the projection table when it does not exist.
func EnsureSchema(ctx context.Context, db *sql.DB) error {
	_, err := db.ExecContext(ctx, ticketsDDL)
	return err
}
