// Package table holds the fully materialized in-memory table exchanged between
// the plan evaluator and the pipeline, and the resolver that combines several
// loaded tables into one.
package table

import (
	"fmt"
	"strconv"
	"time"
)

// Type is the logical type of a column. Cell values are stored as the
// matching Go type; nil marks a missing value in any column.
type Type int

const (
	String    Type = iota // string
	Int                   // int64
	Float                 // float64
	Bool                  // bool
	Timestamp             // time.Time
)

var typeNames = []string{"string", "int", "float", "bool", "timestamp"}

func (t Type) String() string {
	if int(t) >= 0 && int(t) < len(typeNames) {
		return typeNames[t]
	}
	return fmt.Sprintf("Type(%d)", int(t))
}

// ParseType is the inverse of Type.String.
func ParseType(s string) (Type, error) {
	for i, name := range typeNames {
		if name == s {
			return Type(i), nil
		}
	}
	return String, fmt.Errorf("unknown column type %q", s)
}

// Column is a named, typed vector of values.
type Column struct {
	Name   string
	Type   Type
	Values []any
}

// Len returns the number of values in the column.
func (c Column) Len() int { return len(c.Values) }

// AllMissing reports whether every value in the column is nil.
func (c Column) AllMissing() bool {
	for _, v := range c.Values {
		if v != nil {
			return false
		}
	}
	return true
}

// Table is an ordered set of equally long columns.
type Table struct {
	Columns []Column
}

// New builds a table and checks that all columns have the same length.
func New(cols ...Column) (*Table, error) {
	for i := 1; i < len(cols); i++ {
		if cols[i].Len() != cols[0].Len() {
			return nil, fmt.Errorf("column %q has %d values, column %q has %d",
				cols[i].Name, cols[i].Len(), cols[0].Name, cols[0].Len())
		}
	}
	return &Table{Columns: cols}, nil
}

// MustNew is New for literals in tests and examples.
func MustNew(cols ...Column) *Table {
	t, err := New(cols...)
	if err != nil {
		panic(err)
	}
	return t
}

// NumRows returns the row count. A table without columns has no rows.
func (t *Table) NumRows() int {
	if t == nil || len(t.Columns) == 0 {
		return 0
	}
	return t.Columns[0].Len()
}

// NumCols returns the column count.
func (t *Table) NumCols() int {
	if t == nil {
		return 0
	}
	return len(t.Columns)
}

// ColumnNames returns the column names in order.
func (t *Table) ColumnNames() []string {
	names := make([]string, t.NumCols())
	for i, c := range t.Columns {
		names[i] = c.Name
	}
	return names
}

// Column returns the first column with the given name.
func (t *Table) Column(name string) (*Column, bool) {
	for i := range t.Columns {
		if t.Columns[i].Name == name {
			return &t.Columns[i], true
		}
	}
	return nil, false
}

// Row returns the values of row i across all columns.
func (t *Table) Row(i int) []any {
	row := make([]any, len(t.Columns))
	for j, c := range t.Columns {
		row[j] = c.Values[i]
	}
	return row
}

// Head returns a table holding at most n leading rows. Values are shared.
func (t *Table) Head(n int) *Table {
	if n < 0 || n >= t.NumRows() {
		return t
	}
	cols := make([]Column, len(t.Columns))
	for i, c := range t.Columns {
		cols[i] = Column{Name: c.Name, Type: c.Type, Values: c.Values[:n]}
	}
	return &Table{Columns: cols}
}

// FormatValue renders a cell value as text. Missing values render as na.
func FormatValue(v any, na string) string {
	switch x := v.(type) {
	case nil:
		return na
	case string:
		return x
	case int64:
		return strconv.FormatInt(x, 10)
	case float64:
		return strconv.FormatFloat(x, 'g', -1, 64)
	case bool:
		return strconv.FormatBool(x)
	case time.Time:
		return x.Format(time.RFC3339Nano)
	default:
		return fmt.Sprint(x)
	}
}
