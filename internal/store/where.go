package store

import (
	"fmt"
	"strings"
)

// whereBuilder assembles a parameterized WHERE clause. Empty values are
// skipped so optional filters need no branching at the call site.
type whereBuilder struct {
	conditions []string
	args       []any
	argIndex   int
}

func newWhereBuilder() *whereBuilder {
	return &whereBuilder{argIndex: 1}
}

// Add appends "column = $n" unless value is empty.
func (wb *whereBuilder) Add(column, value string) {
	if value == "" {
		return
	}
	wb.conditions = append(wb.conditions, fmt.Sprintf("%s = $%d", column, wb.argIndex))
	wb.args = append(wb.args, value)
	wb.argIndex++
}

// NextArgIndex returns the placeholder number of the next argument.
func (wb *whereBuilder) NextArgIndex() int { return wb.argIndex }

// Build returns the clause with a leading space, or "" with nil args.
func (wb *whereBuilder) Build() (string, []any) {
	if len(wb.conditions) == 0 {
		return "", nil
	}
	return " WHERE " + strings.Join(wb.conditions, " AND "), wb.args
}
