package datasource

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/roach88/deduce/internal/ir"
)

var identifier = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)

// Table maps a predicate onto a SQLite table: position i of the predicate
// is column Columns[i].
type Table struct {
	Predicate ir.Predicate `yaml:"predicate" json:"predicate"`
	Name      string       `yaml:"table" json:"table"`
	Columns   []string     `yaml:"columns" json:"columns"`
}

// Validate checks the mapping. Table and column names must be plain SQL
// identifiers since they cannot be passed as parameters.
func (t Table) Validate() error {
	if t.Predicate.Symbol == "" {
		return fmt.Errorf("table %q: predicate symbol is empty", t.Name)
	}
	if !identifier.MatchString(t.Name) {
		return fmt.Errorf("table %q: not a valid identifier", t.Name)
	}
	if len(t.Columns) != t.Predicate.Arity {
		return fmt.Errorf("table %q: %d columns for predicate %s", t.Name, len(t.Columns), t.Predicate)
	}
	for _, c := range t.Columns {
		if !identifier.MatchString(c) {
			return fmt.Errorf("table %q: column %q is not a valid identifier", t.Name, c)
		}
	}
	return nil
}

// ParseTable parses a mapping written as pred=table(col1,col2,...). The
// predicate's arity is the number of columns.
func ParseTable(s string) (Table, error) {
	pred, rest, ok := strings.Cut(s, "=")
	if !ok {
		return Table{}, fmt.Errorf("table mapping %q: want pred=table(col,...)", s)
	}
	name, cols, ok := strings.Cut(rest, "(")
	if !ok || !strings.HasSuffix(cols, ")") {
		return Table{}, fmt.Errorf("table mapping %q: want pred=table(col,...)", s)
	}
	cols = strings.TrimSuffix(cols, ")")

	var columns []string
	if strings.TrimSpace(cols) != "" {
		for _, c := range strings.Split(cols, ",") {
			columns = append(columns, strings.TrimSpace(c))
		}
	}
	t := Table{
		Predicate: ir.Pred(strings.TrimSpace(pred), len(columns)),
		Name:      strings.TrimSpace(name),
		Columns:   columns,
	}
	return t, t.Validate()
}

// CompileSelect builds the parameterized SELECT for t under pattern. Each
// position of pattern holding a constant the database can compare becomes
// an equality on its column; repeated variables become column equalities.
// Other positions are left for the caller to filter.
//
// MANDATORY: the statement always ends with ORDER BY over every column.
func CompileSelect(t Table, pattern ir.Tuple) (string, []any, error) {
	if len(pattern) != len(t.Columns) {
		return "", nil, fmt.Errorf("pattern %s has %d terms, table %q has %d columns", pattern, len(pattern), t.Name, len(t.Columns))
	}

	quoted := make([]string, len(t.Columns))
	for i, c := range t.Columns {
		quoted[i] = quote(c)
	}

	var (
		where  []string
		params []any
		first  = make(map[ir.Variable]int)
	)
	for i, term := range pattern {
		switch x := term.(type) {
		case ir.Constant:
			if v, ok := sqlValue(x.Value); ok {
				where = append(where, quoted[i]+" = ?")
				params = append(params, v)
			}
		case ir.Variable:
			if j, seen := first[x]; seen {
				where = append(where, quoted[i]+" = "+quoted[j])
			} else {
				first[x] = i
			}
		}
	}

	var b strings.Builder
	fmt.Fprintf(&b, "SELECT %s FROM %s", strings.Join(quoted, ", "), quote(t.Name))
	if len(where) > 0 {
		b.WriteString(" WHERE ")
		b.WriteString(strings.Join(where, " AND "))
	}
	if len(quoted) > 0 {
		order := make([]string, len(quoted))
		for i, q := range quoted {
			order[i] = q + " COLLATE BINARY"
		}
		b.WriteString(" ORDER BY ")
		b.WriteString(strings.Join(order, ", "))
	}
	return b.String(), params, nil
}

func quote(id string) string {
	return `"` + id + `"`
}

// sqlValue converts a constant for use as a query parameter. Values that
// SQLite would compare differently from the engine are not pushed down.
func sqlValue(v ir.Value) (any, bool) {
	switch x := v.(type) {
	case ir.Int:
		return int64(x), true
	case ir.String:
		return string(x), true
	default:
		return nil, false
	}
}
