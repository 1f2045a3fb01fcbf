package table

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func xy(xs []int64, ys []string) *Table {
	xv := make([]any, len(xs))
	for i, x := range xs {
		xv[i] = x
	}
	yv := make([]any, len(ys))
	for i, y := range ys {
		yv[i] = y
	}
	return MustNew(
		Column{Name: "x", Type: Int, Values: xv},
		Column{Name: "y", Type: String, Values: yv},
	)
}

func TestCombine_SingleTableIdentity(t *testing.T) {
	tbl := xy([]int64{1, 2}, []string{"a", "b"})
	for _, s := range []Strategy{StrategyAuto, StrategyRbind, StrategyCbind, StrategyFirst} {
		t.Run(string(s), func(t *testing.T) {
			got, err := Combine([]*Table{tbl}, s)
			require.NoError(t, err)
			assert.Same(t, tbl, got.Table)
			assert.Equal(t, OutcomeCombined, got.Outcome)
		})
	}
}

func TestCombine_NoTables(t *testing.T) {
	_, err := Combine(nil, StrategyAuto)
	var ce *CombineError
	require.True(t, errors.As(err, &ce))
	assert.Equal(t, ReasonNoTables, ce.Reason)
}

func TestCombine_First(t *testing.T) {
	a := xy([]int64{1}, []string{"a"})
	b := MustNew(Column{Name: "other", Type: String, Values: []any{"z", "z"}})
	got, err := Combine([]*Table{a, b}, StrategyFirst)
	require.NoError(t, err)
	assert.Same(t, a, got.Table)
}

func TestCombine_RbindReordersColumns(t *testing.T) {
	a := xy([]int64{1, 2}, []string{"a", "b"})
	b := MustNew(
		Column{Name: "y", Type: String, Values: []any{"c", "d", "e"}},
		Column{Name: "x", Type: Int, Values: []any{int64(3), int64(4), int64(5)}},
	)
	got, err := Combine([]*Table{a, b}, StrategyRbind)
	require.NoError(t, err)
	assert.Equal(t, 5, got.Table.NumRows())
	assert.Equal(t, []string{"x", "y"}, got.Table.ColumnNames())

	x, _ := got.Table.Column("x")
	assert.Equal(t, []any{int64(1), int64(2), int64(3), int64(4), int64(5)}, x.Values)
	y, _ := got.Table.Column("y")
	assert.Equal(t, []any{"a", "b", "c", "d", "e"}, y.Values)
}

func TestCombine_RbindDifferentColumns(t *testing.T) {
	a := xy([]int64{1}, []string{"a"})
	b := MustNew(Column{Name: "z", Type: Int, Values: []any{int64(9)}}, Column{Name: "y", Type: String, Values: []any{"q"}})

	_, err := Combine([]*Table{a, b}, StrategyRbind)
	var ce *CombineError
	require.True(t, errors.As(err, &ce))
	assert.Equal(t, ReasonIncompatibleColumns, ce.Reason)

	got, err := Combine([]*Table{a, b}, StrategyAuto)
	require.NoError(t, err)
	assert.Same(t, a, got.Table)
	assert.Equal(t, OutcomeFellBack, got.Outcome)
	require.True(t, errors.As(got.Cause, &ce))
}

func TestCombine_RbindWidensIntToFloat(t *testing.T) {
	a := MustNew(Column{Name: "v", Type: Int, Values: []any{int64(1)}})
	b := MustNew(Column{Name: "v", Type: Float, Values: []any{2.5}})
	got, err := Combine([]*Table{a, b}, StrategyRbind)
	require.NoError(t, err)
	v, _ := got.Table.Column("v")
	assert.Equal(t, Float, v.Type)
	assert.Equal(t, []any{1.0, 2.5}, v.Values)
}

func TestCombine_RbindAllMissingAdoptsType(t *testing.T) {
	a := MustNew(Column{Name: "v", Type: String, Values: []any{nil, nil}})
	b := MustNew(Column{Name: "v", Type: Int, Values: []any{int64(7)}})
	got, err := Combine([]*Table{a, b}, StrategyRbind)
	require.NoError(t, err)
	v, _ := got.Table.Column("v")
	assert.Equal(t, Int, v.Type)
	assert.Equal(t, []any{nil, nil, int64(7)}, v.Values)
}

func TestCombine_RbindTypeClash(t *testing.T) {
	a := MustNew(Column{Name: "v", Type: Bool, Values: []any{true}})
	b := MustNew(Column{Name: "v", Type: String, Values: []any{"x"}})
	_, err := Combine([]*Table{a, b}, StrategyRbind)
	var ce *CombineError
	require.True(t, errors.As(err, &ce))
	assert.Equal(t, ReasonIncompatibleColumns, ce.Reason)
}

func TestCombine_Cbind(t *testing.T) {
	a := xy([]int64{1, 2}, []string{"a", "b"})
	b := MustNew(Column{Name: "z", Type: Float, Values: []any{0.5, 1.5}})
	got, err := Combine([]*Table{a, b}, StrategyCbind)
	require.NoError(t, err)
	assert.Equal(t, a.NumCols()+b.NumCols(), got.Table.NumCols())
	assert.Equal(t, 2, got.Table.NumRows())
}

func TestCombine_CbindRowMismatch(t *testing.T) {
	a := xy([]int64{1, 2}, []string{"a", "b"})
	b := xy([]int64{1}, []string{"a"})
	_, err := Combine([]*Table{a, b}, StrategyCbind)
	var ce *CombineError
	require.True(t, errors.As(err, &ce))
	assert.Equal(t, ReasonRowCountMismatch, ce.Reason)
}

func TestCbind_UniqueNames(t *testing.T) {
	a := xy([]int64{1}, []string{"a"})
	b := xy([]int64{2}, []string{"b"})
	got, err := Cbind([]*Table{a, b})
	require.NoError(t, err)
	assert.Equal(t, []string{"x", "y", "x.1", "y.1"}, got.ColumnNames())
}

func TestParseStrategy(t *testing.T) {
	s, err := ParseStrategy("")
	require.NoError(t, err)
	assert.Equal(t, StrategyAuto, s)

	s, err = ParseStrategy(" RBIND ")
	require.NoError(t, err)
	assert.Equal(t, StrategyRbind, s)

	_, err = ParseStrategy("merge")
	assert.Error(t, err)
}
