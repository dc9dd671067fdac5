package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	// Pure-Go SQLite driver, registered as "sqlite".
	_ "github.com/glebarez/go-sqlite"
)

// ErrUnavailable indicates the read-only handle could not be opened.
var ErrUnavailable = errors.New("store unavailable")

// Row is a single result row as a column name to value mapping.
type Row map[string]any

// Store is a read-only handle to the SQLite database. Writes and DDL fail
// at both the connection level (mode=ro) and the session level (query_only).
type Store struct {
	db *sql.DB
}

// OpenReadOnly opens the database at path for reading only. The file must
// already exist; a missing or unreadable file is reported as ErrUnavailable.
func OpenReadOnly(path string) (*Store, error) {
	dsn := fmt.Sprintf("file:%s?mode=ro&_pragma=query_only(1)", path)
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}

	// sql.Open is lazy, force the first connection so a bad path fails here
	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("%w: %s: %v", ErrUnavailable, path, err)
	}

	return &Store{db: db}, nil
}

// Query executes a parameterized read statement and returns all rows as
// column-to-value mappings, in the statement's own order. No ordering is
// added beyond what the statement declares.
func (s *Store) Query(ctx context.Context, stmt string, params ...any) ([]Row, error) {
	rows, _, err := s.queryRows(ctx, stmt, params)
	return rows, err
}

// Scalar executes a parameterized read statement and consults only the
// first row: nil for an empty result, the bare value when a single column
// is projected, the full row mapping otherwise. Extra rows are ignored,
// not an error.
func (s *Store) Scalar(ctx context.Context, stmt string, params ...any) (any, error) {
	rows, cols, err := s.queryRows(ctx, stmt, params)
	if err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return nil, nil
	}
	if len(cols) == 1 {
		return rows[0][cols[0]], nil
	}
	return rows[0], nil
}

// Close releases the underlying handle.
func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) queryRows(ctx context.Context, stmt string, params []any) ([]Row, []string, error) {
	rs, err := s.db.QueryContext(ctx, stmt, params...)
	if err != nil {
		return nil, nil, err
	}
	defer rs.Close()

	cols, err := rs.Columns()
	if err != nil {
		return nil, nil, err
	}

	var out []Row
	for rs.Next() {
		values := make([]any, len(cols))
		scan := make([]any, len(cols))
		for i := range values {
			scan[i] = &values[i]
		}
		if err := rs.Scan(scan...); err != nil {
			return nil, nil, err
		}

		row := make(Row, len(cols))
		for i, col := range cols {
			row[col] = normalize(values[i])
		}
		out = append(out, row)
	}
	if err := rs.Err(); err != nil {
		return nil, nil, err
	}

	return out, cols, nil
}

// normalize maps driver-level values onto JSON-friendly ones. SQLite TEXT
// may surface as []byte depending on the column's declared type.
func normalize(v any) any {
	if b, ok := v.([]byte); ok {
		return string(b)
	}
	return v
}
