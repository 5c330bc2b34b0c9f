package sqltools

import (
	"errors"
	"fmt"

	"github.com/malbeclabs/mysql-mcp/internal/database"
)

type UnknownToolError struct {
	Name string
}

func (e *UnknownToolError) Error() string {
	return fmt.Sprintf("Unknown tool: %s", e.Name)
}

// InputError reports arguments that could not be decoded into the tool's
// request type.
type InputError struct {
	Tool string
	Err  error
}

func (e *InputError) Error() string {
	return fmt.Sprintf("invalid arguments for %s: %v", e.Tool, e.Err)
}

func (e *InputError) Unwrap() error { return e.Err }

// errorKind classifies err for the tool call status metric.
func errorKind(err error) string {
	var (
		connErr    *database.ConnectionError
		stmtErr    *database.StatementError
		unknownErr *UnknownToolError
		inputErr   *InputError
	)
	switch {
	case errors.As(err, &connErr):
		return "connection_error"
	case errors.As(err, &stmtErr):
		return "statement_error"
	case errors.As(err, &unknownErr):
		return "unknown_tool"
	case errors.As(err, &inputErr), errors.Is(err, database.ErrMissingData):
		return "input_error"
	default:
		return "error"
	}
}
