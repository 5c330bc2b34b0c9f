package databasetesting

import (
	"context"
	"database/sql"
	"errors"
	"sync/atomic"
	"testing"

	_ "github.com/duckdb/duckdb-go/v2"
	"github.com/stretchr/testify/require"

	"github.com/malbeclabs/mysql-mcp/internal/database"
)

// DuckDialer hands out handles on one shared in-memory DuckDB database.
// DuckDB accepts SHOW TABLES, DESCRIBE and ? placeholders, so the data access
// functions run against it unchanged. Closing a handle does not drop the data.
type DuckDialer struct {
	db     *sql.DB
	dialed atomic.Int64
	closed atomic.Int64
}

func NewDuckDialer(t testing.TB) *DuckDialer {
	db, err := sql.Open("duckdb", "")
	require.NoError(t, err)
	t.Cleanup(func() {
		db.Close()
	})
	return &DuckDialer{db: db}
}

func (d *DuckDialer) Dial(ctx context.Context) (database.Conn, error) {
	d.dialed.Add(1)
	return &duckConn{DB: d.db, closed: &d.closed}, nil
}

// Exec runs setup statements directly against the shared database.
func (d *DuckDialer) Exec(t testing.TB, statement string, args ...any) {
	_, err := d.db.ExecContext(t.Context(), statement, args...)
	require.NoError(t, err)
}

func (d *DuckDialer) Dialed() int64 { return d.dialed.Load() }

func (d *DuckDialer) Closed() int64 { return d.closed.Load() }

type duckConn struct {
	*sql.DB
	closed *atomic.Int64
}

func (c *duckConn) Close() error {
	c.closed.Add(1)
	return nil
}

// FailingDialer never connects.
type FailingDialer struct {
	Err error
}

func (f *FailingDialer) Dial(ctx context.Context) (database.Conn, error) {
	err := f.Err
	if err == nil {
		err = errors.New("dial tcp 127.0.0.1:1: connect: connection refused")
	}
	return nil, &database.ConnectionError{Addr: "127.0.0.1:1", Err: err}
}
