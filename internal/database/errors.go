package database

import (
	"errors"
	"fmt"
)

// ErrMissingData is returned by Insert and Update when no column values were
// supplied at all. An empty, non-nil map is passed through to the server.
var ErrMissingData = errors.New("data must be an object of column values")

// ConnectionError reports that a connection to the database could not be
// established.
type ConnectionError struct {
	Addr string
	Err  error
}

func (e *ConnectionError) Error() string {
	if e.Addr == "" {
		return fmt.Sprintf("failed to connect to database: %v", e.Err)
	}
	return fmt.Sprintf("failed to connect to database at %s: %v", e.Addr, e.Err)
}

func (e *ConnectionError) Unwrap() error { return e.Err }

// StatementError reports that the server rejected or failed the statement.
type StatementError struct {
	Err error
}

func (e *StatementError) Error() string {
	return fmt.Sprintf("failed to execute statement: %v", e.Err)
}

func (e *StatementError) Unwrap() error { return e.Err }
