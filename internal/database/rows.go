package database

import (
	"bytes"
	"database/sql"
	"encoding/json"
	"fmt"
	"math"
	"sort"
	"strconv"
	"strings"
)

type Row map[string]any

// ExecResult is the outcome of a statement that does not return rows.
type ExecResult struct {
	AffectedRows int64 `json:"affectedRows"`
	InsertID     int64 `json:"insertId"`
}

// QueryResult holds either a row set or, for statements without a result
// set, the exec header.
type QueryResult struct {
	Rows []Row
	Exec *ExecResult
}

func (r QueryResult) MarshalJSON() ([]byte, error) {
	if r.Exec != nil {
		return json.Marshal(r.Exec)
	}
	rows := r.Rows
	if rows == nil {
		rows = []Row{}
	}
	return json.Marshal(rows)
}

func scanRows(rows *sql.Rows) ([]Row, error) {
	columns, err := rows.Columns()
	if err != nil {
		return nil, fmt.Errorf("failed to get columns: %w", err)
	}
	columnTypes, err := rows.ColumnTypes()
	if err != nil {
		return nil, fmt.Errorf("failed to get column types: %w", err)
	}

	result := make([]Row, 0)
	for rows.Next() {
		values := make([]any, len(columns))
		valuePtrs := make([]any, len(columns))
		for i := range values {
			valuePtrs[i] = &values[i]
		}

		if err := rows.Scan(valuePtrs...); err != nil {
			return nil, fmt.Errorf("failed to scan row: %w", err)
		}

		row := make(Row, len(columns))
		for i, col := range columns {
			row[col] = normalizeValue(columnTypes[i].DatabaseTypeName(), values[i])
		}
		result = append(result, row)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating rows: %w", err)
	}
	return result, nil
}

// Buffer holds the value of a binary column. It renders as
// {"type":"Buffer","data":[...]} so arbitrary bytes survive JSON encoding.
type Buffer []byte

func (b Buffer) MarshalJSON() ([]byte, error) {
	data := make([]int, len(b))
	for i, c := range b {
		data[i] = int(c)
	}
	return json.Marshal(struct {
		Type string `json:"type"`
		Data []int  `json:"data"`
	}{Type: "Buffer", Data: data})
}

// normalizeValue turns raw driver bytes into the value a JSON client expects.
// The MySQL text protocol returns every column as []byte; numeric columns are
// parsed back into numbers, JSON columns are embedded as-is, binary columns
// become a Buffer and everything else (DECIMAL included, to keep precision)
// becomes a string.
func normalizeValue(typeName string, v any) any {
	b, ok := v.([]byte)
	if !ok {
		return v
	}
	s := string(b)
	switch strings.TrimPrefix(strings.ToUpper(typeName), "UNSIGNED ") {
	case "TINYINT", "SMALLINT", "MEDIUMINT", "INT", "INTEGER", "BIGINT", "YEAR":
		if n, err := strconv.ParseInt(s, 10, 64); err == nil {
			return n
		}
		if n, err := strconv.ParseUint(s, 10, 64); err == nil {
			return n
		}
	case "FLOAT", "DOUBLE":
		if f, err := strconv.ParseFloat(s, 64); err == nil {
			return f
		}
	case "JSON":
		if json.Valid(b) {
			return json.RawMessage(s)
		}
	case "BLOB", "TINYBLOB", "MEDIUMBLOB", "LONGBLOB", "BINARY", "VARBINARY", "BIT", "GEOMETRY":
		return Buffer(bytes.Clone(b))
	}
	return s
}

// bindColumns returns the column names of data in sorted order together with
// the matching bind values.
func bindColumns(data map[string]any) ([]string, []any, error) {
	columns := make([]string, 0, len(data))
	for col := range data {
		columns = append(columns, col)
	}
	sort.Strings(columns)

	values := make([]any, 0, len(columns))
	for _, col := range columns {
		v, err := BindValue(data[col])
		if err != nil {
			return nil, nil, fmt.Errorf("invalid value for column %q: %w", col, err)
		}
		values = append(values, v)
	}
	return columns, values, nil
}

// BindValue converts a decoded JSON value into something the driver can bind.
// Integral numbers become int64, other numbers float64, and nested objects or
// arrays are bound as their JSON text.
func BindValue(v any) (any, error) {
	switch x := v.(type) {
	case json.Number:
		if n, err := x.Int64(); err == nil {
			return n, nil
		}
		f, err := x.Float64()
		if err != nil {
			return nil, fmt.Errorf("invalid number %q: %w", x.String(), err)
		}
		return f, nil
	case float64:
		if x == math.Trunc(x) && math.Abs(x) <= 1<<53 {
			return int64(x), nil
		}
		return x, nil
	case map[string]any, []any:
		b, err := json.Marshal(x)
		if err != nil {
			return nil, err
		}
		return string(b), nil
	default:
		return v, nil
	}
}
