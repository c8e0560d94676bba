package store

import (
	"database/sql"
	"fmt"
)

// Result holds a query's rows decoded once at the engine boundary.
// Column order matches the statement's select list; each row holds one
// value per column. Results are shared between cache readers and must be
// treated as immutable.
type Result struct {
	Columns []string
	Rows    [][]any
}

// Len returns the number of rows.
func (r *Result) Len() int {
	return len(r.Rows)
}

// Empty reports whether the result has no rows.
func (r *Result) Empty() bool {
	return len(r.Rows) == 0
}

// ExecResult describes the effect of a write statement.
type ExecResult struct {
	RowsAffected int64
	LastInsertID int64
}

// scanRows drains rows into a Result. Byte slices are copied into strings
// so cached results do not alias driver-owned buffers.
func scanRows(rows *sql.Rows) (*Result, error) {
	columns, err := rows.Columns()
	if err != nil {
		return nil, fmt.Errorf("reading result columns: %w", err)
	}

	result := &Result{Columns: columns}

	for rows.Next() {
		values := make([]any, len(columns))
		pointers := make([]any, len(columns))
		for i := range values {
			pointers[i] = &values[i]
		}
		if err := rows.Scan(pointers...); err != nil {
			return nil, fmt.Errorf("scanning result row: %w", err)
		}
		for i, v := range values {
			if b, ok := v.([]byte); ok {
				values[i] = string(b)
			}
		}
		result.Rows = append(result.Rows, values)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating result rows: %w", err)
	}

	return result, nil
}
