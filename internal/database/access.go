package database

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"unicode"
)

// The table name, column names and WHERE condition passed to DescribeTable,
// Insert, Update and Delete are interpolated verbatim into the statement text.
// Only values are bound as parameters. Callers can therefore inject arbitrary
// SQL through those arguments; this is kept because clients rely on passing
// free-form conditions such as "id IN (1, 2) AND deleted_at IS NULL".

func withConn(ctx context.Context, d Dialer, fn func(Conn) error) error {
	conn, err := d.Dial(ctx)
	if err != nil {
		var connErr *ConnectionError
		if !errors.As(err, &connErr) {
			err = &ConnectionError{Err: err}
		}
		return err
	}
	defer conn.Close()
	return fn(conn)
}

func queryRows(ctx context.Context, conn Conn, statement string, args ...any) ([]Row, error) {
	rows, err := conn.QueryContext(ctx, statement, args...)
	if err != nil {
		return nil, &StatementError{Err: err}
	}
	defer rows.Close()

	result, err := scanRows(rows)
	if err != nil {
		return nil, &StatementError{Err: err}
	}
	return result, nil
}

func exec(ctx context.Context, conn Conn, statement string, args ...any) (ExecResult, error) {
	res, err := conn.ExecContext(ctx, statement, args...)
	if err != nil {
		return ExecResult{}, &StatementError{Err: err}
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return ExecResult{}, &StatementError{Err: fmt.Errorf("failed to get affected rows: %w", err)}
	}
	return ExecResult{AffectedRows: affected}, nil
}

// Query runs an arbitrary statement with bound params. Statements that
// produce a result set return rows; anything else returns the exec header.
func Query(ctx context.Context, d Dialer, statement string, params []any) (QueryResult, error) {
	var result QueryResult
	err := withConn(ctx, d, func(conn Conn) error {
		if returnsRows(statement) {
			rows, err := queryRows(ctx, conn, statement, params...)
			if err != nil {
				return err
			}
			result.Rows = rows
			return nil
		}

		res, err := conn.ExecContext(ctx, statement, params...)
		if err != nil {
			return &StatementError{Err: err}
		}
		header := ExecResult{}
		if n, err := res.RowsAffected(); err == nil {
			header.AffectedRows = n
		}
		if id, err := res.LastInsertId(); err == nil {
			header.InsertID = id
		}
		result.Exec = &header
		return nil
	})
	if err != nil {
		return QueryResult{}, err
	}
	return result, nil
}

func ListTables(ctx context.Context, d Dialer) ([]Row, error) {
	var rows []Row
	err := withConn(ctx, d, func(conn Conn) error {
		var err error
		rows, err = queryRows(ctx, conn, "SHOW TABLES")
		return err
	})
	return rows, err
}

func DescribeTable(ctx context.Context, d Dialer, table string) ([]Row, error) {
	var rows []Row
	err := withConn(ctx, d, func(conn Conn) error {
		var err error
		rows, err = queryRows(ctx, conn, "DESCRIBE "+table)
		return err
	})
	return rows, err
}

func Insert(ctx context.Context, d Dialer, table string, data map[string]any) (ExecResult, error) {
	if data == nil {
		return ExecResult{}, ErrMissingData
	}
	columns, values, err := bindColumns(data)
	if err != nil {
		return ExecResult{}, err
	}
	placeholders := make([]string, len(columns))
	for i := range placeholders {
		placeholders[i] = "?"
	}
	statement := fmt.Sprintf("INSERT INTO %s (%s) VALUES (%s)",
		table, strings.Join(columns, ", "), strings.Join(placeholders, ", "))

	var result ExecResult
	err = withConn(ctx, d, func(conn Conn) error {
		res, err := conn.ExecContext(ctx, statement, values...)
		if err != nil {
			return &StatementError{Err: err}
		}
		if result.AffectedRows, err = res.RowsAffected(); err != nil {
			return &StatementError{Err: fmt.Errorf("failed to get affected rows: %w", err)}
		}
		if result.InsertID, err = res.LastInsertId(); err != nil {
			return &StatementError{Err: fmt.Errorf("failed to get insert id: %w", err)}
		}
		return nil
	})
	if err != nil {
		return ExecResult{}, err
	}
	return result, nil
}

func Update(ctx context.Context, d Dialer, table string, data map[string]any, condition string) (ExecResult, error) {
	if data == nil {
		return ExecResult{}, ErrMissingData
	}
	columns, values, err := bindColumns(data)
	if err != nil {
		return ExecResult{}, err
	}
	assignments := make([]string, len(columns))
	for i, col := range columns {
		assignments[i] = col + " = ?"
	}
	statement := fmt.Sprintf("UPDATE %s SET %s WHERE %s", table, strings.Join(assignments, ", "), condition)

	var result ExecResult
	err = withConn(ctx, d, func(conn Conn) error {
		var err error
		result, err = exec(ctx, conn, statement, values...)
		return err
	})
	return result, err
}

func Delete(ctx context.Context, d Dialer, table string, condition string) (ExecResult, error) {
	statement := fmt.Sprintf("DELETE FROM %s WHERE %s", table, condition)

	var result ExecResult
	err := withConn(ctx, d, func(conn Conn) error {
		var err error
		result, err = exec(ctx, conn, statement)
		return err
	})
	return result, err
}

// Ping dials, pings and closes a connection.
func Ping(ctx context.Context, d Dialer) error {
	return withConn(ctx, d, func(conn Conn) error {
		if err := conn.PingContext(ctx); err != nil {
			return &ConnectionError{Err: err}
		}
		return nil
	})
}

var rowStatementKeywords = map[string]struct{}{
	"SELECT":   {},
	"SHOW":     {},
	"DESCRIBE": {},
	"DESC":     {},
	"EXPLAIN":  {},
	"VALUES":   {},
	"TABLE":    {},
	"CALL":     {},
	"ANALYZE":  {},
	"CHECK":    {},
	"CHECKSUM": {},
	"OPTIMIZE": {},
	"REPAIR":   {},
	"HELP":     {},
}

// cteBodyKeywords maps the statement verb that follows a WITH clause to
// whether it returns rows.
var cteBodyKeywords = map[string]bool{
	"SELECT":  true,
	"TABLE":   true,
	"VALUES":  true,
	"INSERT":  false,
	"REPLACE": false,
	"UPDATE":  false,
	"DELETE":  false,
}

// returnsRows reports whether statement produces a result set, judged by its
// first keyword after leading comments and parentheses. WITH is judged by the
// statement after the common table expressions, XA only for XA RECOVER.
func returnsRows(statement string) bool {
	word, rest := leadingWord(skipLeadingNoise(statement))
	switch word {
	case "WITH":
		return cteReturnsRows(rest)
	case "XA":
		next, _ := leadingWord(skipLeadingNoise(rest))
		return next == "RECOVER"
	}
	_, ok := rowStatementKeywords[word]
	return ok
}

// leadingWord returns the identifier at the start of s, upper-cased, and the
// remainder of s.
func leadingWord(s string) (string, string) {
	n := 0
	for n < len(s) && isIdentByte(s[n]) {
		n++
	}
	return strings.ToUpper(s[:n]), s[n:]
}

func isIdentByte(c byte) bool {
	return c == '_' || c == '$' || c >= 0x80 ||
		('a' <= c && c <= 'z') || ('A' <= c && c <= 'Z') || ('0' <= c && c <= '9')
}

// cteReturnsRows scans past the common table expressions of a WITH clause,
// skipping parenthesised bodies and quoted text, and classifies the first
// statement verb found at the top level.
func cteReturnsRows(s string) bool {
	depth := 0
	for i := 0; i < len(s); {
		c := s[i]
		switch {
		case c == '\'' || c == '"' || c == '`':
			end := strings.IndexByte(s[i+1:], c)
			if end < 0 {
				return true
			}
			i += end + 2
		case c == '(':
			depth++
			i++
		case c == ')':
			depth--
			i++
		case isIdentByte(c):
			word, rest := leadingWord(s[i:])
			if depth == 0 {
				if rows, ok := cteBodyKeywords[word]; ok {
					return rows
				}
			}
			i = len(s) - len(rest)
		default:
			i++
		}
	}
	return true
}

func skipLeadingNoise(s string) string {
	for {
		s = strings.TrimLeftFunc(s, unicode.IsSpace)
		switch {
		case strings.HasPrefix(s, "--"), strings.HasPrefix(s, "#"):
			idx := strings.IndexByte(s, '\n')
			if idx < 0 {
				return ""
			}
			s = s[idx+1:]
		case strings.HasPrefix(s, "/*"):
			idx := strings.Index(s, "*/")
			if idx < 0 {
				return ""
			}
			s = s[idx+2:]
		case strings.HasPrefix(s, "("):
			s = s[1:]
		default:
			return s
		}
	}
}
