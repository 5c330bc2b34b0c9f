package database

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"fmt"
	"log/slog"

	"github.com/go-sql-driver/mysql"

	"github.com/malbeclabs/mysql-mcp/internal/metrics"
)

// Conn is a single-use database handle. Every data access function dials one,
// runs exactly one statement on it and closes it.
type Conn interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	PingContext(ctx context.Context) error
	Close() error
}

type Dialer interface {
	Dial(ctx context.Context) (Conn, error)
}

// MySQLDialer opens a dedicated, unpooled connection per Dial.
type MySQLDialer struct {
	log       *slog.Logger
	addr      string
	connector driver.Connector
}

func NewMySQLDialer(log *slog.Logger, cfg Config) (*MySQLDialer, error) {
	if log == nil {
		return nil, fmt.Errorf("logger is required")
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid database config: %w", err)
	}
	connector, err := mysql.NewConnector(cfg.MySQL())
	if err != nil {
		return nil, fmt.Errorf("failed to create mysql connector: %w", err)
	}
	return &MySQLDialer{
		log:       log,
		addr:      cfg.Addr(),
		connector: connector,
	}, nil
}

func (d *MySQLDialer) Dial(ctx context.Context) (Conn, error) {
	db := sql.OpenDB(d.connector)
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		metrics.DBConnectionsTotal.WithLabelValues("error").Inc()
		d.log.Error("database: failed to connect", "addr", d.addr, "error", err)
		return nil, &ConnectionError{Addr: d.addr, Err: err}
	}

	metrics.DBConnectionsTotal.WithLabelValues("success").Inc()
	d.log.Debug("database: connected", "addr", d.addr)
	return db, nil
}
