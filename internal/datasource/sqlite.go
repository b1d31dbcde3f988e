package datasource

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"sort"

	_ "github.com/mattn/go-sqlite3"

	"github.com/roach88/deduce/internal/ir"
)

// SQLSource serves predicates from SQLite tables.
//
// CRITICAL: All selections are parameterized, never interpolated.
// CRITICAL: Every SELECT orders by all mapped columns, so the tuples of one
// Get arrive in a stable order.
//
// SQLSource never writes. It satisfies kb.DataSource.
type SQLSource struct {
	db     *sql.DB
	owned  bool
	tables map[ir.Predicate]Table
}

// Open opens the SQLite database at path (":memory:" for an in-memory
// database) and serves the given tables from it.
func Open(path string, tables ...Table) (*SQLSource, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	// One connection: an in-memory database exists per connection, and a
	// file database gains nothing from more for a read-only source.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	if _, err := db.Exec("PRAGMA busy_timeout = 5000"); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to apply pragmas: %w", err)
	}

	s, err := NewSQLSource(db, tables...)
	if err != nil {
		db.Close()
		return nil, err
	}
	s.owned = true
	return s, nil
}

// NewSQLSource serves tables from an already open database. The caller
// keeps ownership of db.
func NewSQLSource(db *sql.DB, tables ...Table) (*SQLSource, error) {
	s := &SQLSource{db: db, tables: make(map[ir.Predicate]Table, len(tables))}
	for _, t := range tables {
		if err := t.Validate(); err != nil {
			return nil, err
		}
		if _, dup := s.tables[t.Predicate]; dup {
			return nil, fmt.Errorf("predicate %s mapped twice", t.Predicate)
		}
		s.tables[t.Predicate] = t
	}
	return s, nil
}

// Close closes the database if Open created it.
func (s *SQLSource) Close() error {
	if !s.owned || s.db == nil {
		return nil
	}
	return s.db.Close()
}

// DB returns the underlying sql.DB.
func (s *SQLSource) DB() *sql.DB {
	return s.db
}

// Predicates returns the served predicates in symbol order.
func (s *SQLSource) Predicates() []ir.Predicate {
	out := make([]ir.Predicate, 0, len(s.tables))
	for p := range s.tables {
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].String() < out[j].String() })
	return out
}

// Get returns the rows of pred's table selected by pattern. Rows holding
// NULL or a column type with no term equivalent are skipped.
func (s *SQLSource) Get(ctx context.Context, pred ir.Predicate, pattern ir.Tuple) ([]ir.Tuple, error) {
	t, ok := s.tables[pred]
	if !ok {
		return nil, fmt.Errorf("predicate %s is not served by this source", pred)
	}
	query, params, err := CompileSelect(t, pattern)
	if err != nil {
		return nil, err
	}

	rows, err := s.db.QueryContext(ctx, query, params...)
	if err != nil {
		return nil, fmt.Errorf("query %s: %w", t.Name, err)
	}
	defer rows.Close()

	var (
		out     []ir.Tuple
		skipped int
	)
	values := make([]any, len(t.Columns))
	ptrs := make([]any, len(t.Columns))
	for i := range values {
		ptrs[i] = &values[i]
	}
	for rows.Next() {
		if err := rows.Scan(ptrs...); err != nil {
			return nil, fmt.Errorf("scan %s: %w", t.Name, err)
		}
		tuple, ok := rowTuple(values)
		if !ok {
			skipped++
			continue
		}
		out = append(out, tuple)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate %s: %w", t.Name, err)
	}

	slog.Debug("sqlite rows loaded",
		"predicate", pred.String(),
		"table", t.Name,
		"rows", len(out),
		"skipped", skipped)
	return out, nil
}

func rowTuple(values []any) (ir.Tuple, bool) {
	t := make(ir.Tuple, len(values))
	for i, v := range values {
		switch x := v.(type) {
		case int64:
			t[i] = ir.I(x)
		case float64:
			t[i] = ir.F(x)
		case string:
			t[i] = ir.S(x)
		case []byte:
			t[i] = ir.S(string(x))
		case bool:
			t[i] = ir.B(x)
		default:
			return nil, false
		}
	}
	return t, true
}
