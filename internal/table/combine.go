package table

// combine.go resolves several loaded tables into one.
//
// Strategies:
//   - first: tables[0], the rest are never inspected
//   - rbind: row-wise union, column sets must match (order-independent)
//   - cbind: column-wise concatenation, row counts must match
//   - auto:  rbind, falling back to tables[0] when rbind fails
//
// The auto fallback is reported through Combined.Outcome rather than as an
// error so the caller decides whether to warn.

import (
	"fmt"
	"strings"
)

// Strategy is the policy for merging multiple loaded tables.
type Strategy string

const (
	StrategyAuto  Strategy = "auto"
	StrategyRbind Strategy = "rbind"
	StrategyCbind Strategy = "cbind"
	StrategyFirst Strategy = "first"
)

// ParseStrategy parses a strategy name. The empty string means auto.
func ParseStrategy(s string) (Strategy, error) {
	switch st := Strategy(strings.ToLower(strings.TrimSpace(s))); st {
	case "":
		return StrategyAuto, nil
	case StrategyAuto, StrategyRbind, StrategyCbind, StrategyFirst:
		return st, nil
	default:
		return "", fmt.Errorf("unknown combine strategy %q", s)
	}
}

// Reasons carried by CombineError.
const (
	ReasonIncompatibleColumns = "incompatible columns"
	ReasonRowCountMismatch    = "row count mismatch"
	ReasonNoTables            = "no tables to combine"
)

// CombineError reports why tables could not be combined.
type CombineError struct {
	Reason string
	Detail string
}

func (e *CombineError) Error() string {
	if e.Detail == "" {
		return "combine: " + e.Reason
	}
	return "combine: " + e.Reason + ": " + e.Detail
}

// Outcome tells the caller how a combination was resolved.
type Outcome string

const (
	OutcomeCombined Outcome = "combined"
	// OutcomeFellBack means auto could not rbind and returned the first table.
	OutcomeFellBack Outcome = "fell_back"
)

// Combined is the result of Combine.
type Combined struct {
	Table   *Table
	Outcome Outcome
	// Cause is the swallowed rbind error when Outcome is OutcomeFellBack.
	Cause error
}

// Combine merges tables according to strategy. A single table is returned
// unchanged whatever the strategy.
func Combine(tables []*Table, strategy Strategy) (Combined, error) {
	if len(tables) == 0 {
		return Combined{}, &CombineError{Reason: ReasonNoTables}
	}
	if len(tables) == 1 {
		return Combined{Table: tables[0], Outcome: OutcomeCombined}, nil
	}

	switch strategy {
	case StrategyFirst:
		return Combined{Table: tables[0], Outcome: OutcomeCombined}, nil
	case StrategyRbind:
		t, err := Rbind(tables)
		if err != nil {
			return Combined{}, err
		}
		return Combined{Table: t, Outcome: OutcomeCombined}, nil
	case StrategyCbind:
		t, err := Cbind(tables)
		if err != nil {
			return Combined{}, err
		}
		return Combined{Table: t, Outcome: OutcomeCombined}, nil
	case StrategyAuto, "":
		t, err := Rbind(tables)
		if err != nil {
			// TODO: offer a union-of-common-columns strategy instead of dropping every table but the first.
			return Combined{Table: tables[0], Outcome: OutcomeFellBack, Cause: err}, nil
		}
		return Combined{Table: t, Outcome: OutcomeCombined}, nil
	default:
		return Combined{}, fmt.Errorf("unknown combine strategy %q", strategy)
	}
}

// Rbind stacks tables row-wise. Every table must have the same set of column
// names; columns are aligned by name and the result keeps the first table's
// column order. Int and float columns widen to float, and an all-missing
// column adopts the other side's type. Any other type clash is an
// incompatible-columns error.
func Rbind(tables []*Table) (*Table, error) {
	if len(tables) == 0 {
		return nil, &CombineError{Reason: ReasonNoTables}
	}
	first := tables[0]
	if dup := duplicateName(first.ColumnNames()); dup != "" {
		return nil, &CombineError{Reason: ReasonIncompatibleColumns, Detail: fmt.Sprintf("duplicate column %q", dup)}
	}

	total := 0
	for i, t := range tables {
		if !sameColumnSet(first, t) {
			return nil, &CombineError{
				Reason: ReasonIncompatibleColumns,
				Detail: fmt.Sprintf("table %d has columns [%s], table 1 has [%s]",
					i+1, strings.Join(t.ColumnNames(), ", "), strings.Join(first.ColumnNames(), ", ")),
			}
		}
		total += t.NumRows()
	}

	cols := make([]Column, len(first.Columns))
	for j, fc := range first.Columns {
		typ := fc.Type
		typed := !fc.AllMissing()
		for _, t := range tables[1:] {
			c, _ := t.Column(fc.Name)
			if c.AllMissing() {
				continue
			}
			if !typed {
				typ, typed = c.Type, true
				continue
			}
			merged, ok := unify(typ, c.Type)
			if !ok {
				return nil, &CombineError{
					Reason: ReasonIncompatibleColumns,
					Detail: fmt.Sprintf("column %q is %s in one table and %s in another", fc.Name, typ, c.Type),
				}
			}
			typ = merged
		}

		values := make([]any, 0, total)
		for _, t := range tables {
			c, _ := t.Column(fc.Name)
			for _, v := range c.Values {
				values = append(values, convert(v, typ))
			}
		}
		cols[j] = Column{Name: fc.Name, Type: typ, Values: values}
	}
	return &Table{Columns: cols}, nil
}

// Cbind places tables side by side. All tables must have the same row count.
// Clashing column names are made unique by suffixing ".1", ".2", ... .
func Cbind(tables []*Table) (*Table, error) {
	if len(tables) == 0 {
		return nil, &CombineError{Reason: ReasonNoTables}
	}
	n := tables[0].NumRows()
	var cols []Column
	for i, t := range tables {
		if t.NumRows() != n {
			return nil, &CombineError{
				Reason: ReasonRowCountMismatch,
				Detail: fmt.Sprintf("table %d has %d rows, table 1 has %d", i+1, t.NumRows(), n),
			}
		}
		cols = append(cols, t.Columns...)
	}

	seen := make(map[string]int, len(cols))
	for _, c := range cols {
		seen[c.Name] = 0
	}
	taken := make(map[string]bool, len(cols))
	for i := range cols {
		name := cols[i].Name
		if taken[name] {
			for {
				seen[name]++
				candidate := fmt.Sprintf("%s.%d", name, seen[name])
				if _, clash := seen[candidate]; !clash && !taken[candidate] {
					cols[i].Name = candidate
					break
				}
			}
		}
		taken[cols[i].Name] = true
	}
	return &Table{Columns: cols}, nil
}

func sameColumnSet(a, b *Table) bool {
	if a.NumCols() != b.NumCols() {
		return false
	}
	names := make(map[string]bool, a.NumCols())
	for _, c := range a.Columns {
		names[c.Name] = true
	}
	for _, c := range b.Columns {
		if !names[c.Name] {
			return false
		}
		delete(names, c.Name)
	}
	return len(names) == 0
}

func duplicateName(names []string) string {
	seen := make(map[string]bool, len(names))
	for _, n := range names {
		if seen[n] {
			return n
		}
		seen[n] = true
	}
	return ""
}

func unify(a, b Type) (Type, bool) {
	if a == b {
		return a, true
	}
	if (a == Int && b == Float) || (a == Float && b == Int) {
		return Float, true
	}
	return a, false
}

func convert(v any, to Type) any {
	if i, ok := v.(int64); ok && to == Float {
		return float64(i)
	}
	return v
}
