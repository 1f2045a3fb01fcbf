package eval

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/JonMunkholm/tableio/internal/format"
	"github.com/JonMunkholm/tableio/internal/plan"
	"github.com/JonMunkholm/tableio/internal/table"
)

func parse(t *testing.T, input string, opts plan.TextOptions) *table.Table {
	t.Helper()
	tbl, err := parseText(strings.NewReader(input), opts)
	require.NoError(t, err)
	return tbl
}

func TestParseText_Defaults(t *testing.T) {
	tbl := parse(t, "id,name,score\n1,ann,2.5\n2,\"bob, jr\",3\n", plan.DefaultTextOptions())
	assert.Equal(t, []string{"id", "name", "score"}, tbl.ColumnNames())
	assert.Equal(t, 2, tbl.NumRows())

	id, _ := tbl.Column("id")
	assert.Equal(t, table.Int, id.Type)
	name, _ := tbl.Column("name")
	assert.Equal(t, []any{"ann", "bob, jr"}, name.Values)
	score, _ := tbl.Column("score")
	assert.Equal(t, table.Float, score.Type)
	assert.Equal(t, []any{2.5, 3.0}, score.Values)
}

func TestParseText_Options(t *testing.T) {
	opts := plan.DefaultTextOptions()
	opts.Delimiter = ';'
	opts.QuoteChar = '\''
	opts.SkipRows = 1
	opts.MaxRows = 2

	input := "exported 2024-01-01\na;b\n'x;y';1\n'it''s';2\nz;3\n"
	tbl := parse(t, input, opts)
	assert.Equal(t, 2, tbl.NumRows())
	a, _ := tbl.Column("a")
	assert.Equal(t, []any{"x;y", "it's"}, a.Values)
}

func TestParseText_NoHeader(t *testing.T) {
	opts := plan.DefaultTextOptions()
	opts.NoHeader = true
	tbl := parse(t, "1,2\n3,4,5\n", opts)
	assert.Equal(t, []string{"X1", "X2", "X3"}, tbl.ColumnNames())
	x3, _ := tbl.Column("X3")
	assert.Equal(t, []any{nil, int64(5)}, x3.Values)
}

func TestParseText_EdgeCases(t *testing.T) {
	t.Run("crlf and blank lines", func(t *testing.T) {
		tbl := parse(t, "a,b\r\n\r\n1,2\r\n", plan.DefaultTextOptions())
		assert.Equal(t, 1, tbl.NumRows())
	})
	t.Run("multiline quoted field", func(t *testing.T) {
		tbl := parse(t, "a,b\n\"line1\nline2\",2\n", plan.DefaultTextOptions())
		a, _ := tbl.Column("a")
		assert.Equal(t, []any{"line1\nline2"}, a.Values)
	})
	t.Run("header only", func(t *testing.T) {
		tbl := parse(t, "a,b\n", plan.DefaultTextOptions())
		assert.Equal(t, []string{"a", "b"}, tbl.ColumnNames())
		assert.Equal(t, 0, tbl.NumRows())
	})
	t.Run("empty input", func(t *testing.T) {
		tbl := parse(t, "", plan.DefaultTextOptions())
		assert.Equal(t, 0, tbl.NumCols())
	})
	t.Run("duplicate and blank names", func(t *testing.T) {
		tbl := parse(t, "a,a,\n1,2,3\n", plan.DefaultTextOptions())
		assert.Equal(t, []string{"a", "a.1", "X3"}, tbl.ColumnNames())
	})
	t.Run("unterminated quote", func(t *testing.T) {
		_, err := parseText(strings.NewReader("a\n\"open\n"), plan.DefaultTextOptions())
		assert.ErrorIs(t, err, errUnterminatedQuote)
	})
}

func TestInferType(t *testing.T) {
	tests := []struct {
		name  string
		cells []string
		want  table.Type
	}{
		{"ints", []string{"1", "-2", ""}, table.Int},
		{"floats", []string{"1", "2.5", "1e3"}, table.Float},
		{"bools", []string{"true", "FALSE", "NA"}, table.Bool},
		{"zero one stays int", []string{"0", "1"}, table.Int},
		{"timestamps", []string{"2024-01-15", "2024-02-01T10:00:00Z"}, table.Timestamp},
		{"mixed", []string{"1", "x"}, table.String},
		{"all missing", []string{"", "NA"}, table.String},
		{"leading zero codes stay numeric", []string{"007"}, table.Int},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, inferType(tt.cells))
		})
	}
}

func TestConvertCells(t *testing.T) {
	got := convertCells([]string{"2024-01-15", ""}, table.Timestamp)
	require.Len(t, got, 2)
	assert.True(t, time.Date(2024, 1, 15, 0, 0, 0, 0, time.UTC).Equal(got[0].(time.Time)))
	assert.Nil(t, got[1])

	assert.Equal(t, []any{" padded ", nil}, convertCells([]string{" padded ", ""}, table.String))
}

func TestImport(t *testing.T) {
	dir := t.TempDir()

	arr := filepath.Join(dir, "rows.json")
	require.NoError(t, os.WriteFile(arr, []byte(`[{"b":1,"a":"x"},{"a":"y","c":true}]`), 0o644))
	tbl, err := importFile(arr)
	require.NoError(t, err)
	assert.Equal(t, []string{"b", "a", "c"}, tbl.ColumnNames())
	b, _ := tbl.Column("b")
	assert.Equal(t, []any{int64(1), nil}, b.Values)

	cols := filepath.Join(dir, "cols.json")
	require.NoError(t, os.WriteFile(cols, []byte(`{"x":[1,2,3],"y":["a","b",null]}`), 0o644))
	tbl, err = importFile(cols)
	require.NoError(t, err)
	assert.Equal(t, []string{"x", "y"}, tbl.ColumnNames())
	assert.Equal(t, 3, tbl.NumRows())

	lines := filepath.Join(dir, "events.jsonl")
	require.NoError(t, os.WriteFile(lines, []byte("{\"id\":1}\n\n{\"id\":2}\n"), 0o644))
	tbl, err = importFile(lines)
	require.NoError(t, err)
	assert.Equal(t, 2, tbl.NumRows())

	_, err = importFile(filepath.Join(dir, "survey.sav"))
	var ufe *format.UnsupportedFormatError
	require.True(t, errors.As(err, &ufe))
	assert.Equal(t, "sav", ufe.Extension)
}

func TestSliceRange(t *testing.T) {
	rows := [][]string{
		{"title"},
		{"", "a", "b", "c"},
		{"", "1", "2", "3"},
		{"", "4", "5", "6"},
	}
	got, err := sliceRange(rows, "B2:C3")
	require.NoError(t, err)
	assert.Equal(t, [][]string{{"a", "b"}, {"1", "2"}}, got)

	got, err = sliceRange(rows, "c3")
	require.NoError(t, err)
	assert.Equal(t, [][]string{{"2", "3"}, {"5", "6"}}, got)

	_, err = sliceRange(rows, "C3:B2")
	assert.Error(t, err)
	_, err = sliceRange(rows, "nope")
	assert.Error(t, err)
}

func TestResolveSheet(t *testing.T) {
	sheets := []string{"Summary", "Data"}
	tests := []struct {
		ref     plan.SheetRef
		want    string
		wantErr bool
	}{
		{plan.SheetRef{}, "Summary", false},
		{plan.SheetRef{Index: 2}, "Data", false},
		{plan.SheetRef{Name: "data"}, "Data", false},
		{plan.SheetRef{Index: 3}, "", true},
		{plan.SheetRef{Name: "Missing"}, "", true},
	}
	for _, tt := range tests {
		got, err := resolveSheet(sheets, tt.ref)
		if tt.wantErr {
			assert.Error(t, err)
			continue
		}
		require.NoError(t, err)
		assert.Equal(t, tt.want, got)
	}
}
