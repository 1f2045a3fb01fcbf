package plan

import (
	"errors"
	"strings"
	"testing"

	"github.com/goccy/go-json"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/JonMunkholm/tableio/internal/format"
	"github.com/JonMunkholm/tableio/internal/table"
)

func TestBuildReadPlan_Empty(t *testing.T) {
	p, err := BuildReadPlan(nil, DefaultReadOptions(), table.StrategyAuto)
	require.NoError(t, err)
	assert.Equal(t, EmptyPlan{}, p)
	assert.True(t, IsEmpty(p))
}

func TestBuildReadPlan_SingleSource(t *testing.T) {
	p, err := BuildReadPlan(LocalPaths("data/a.csv"), DefaultReadOptions(), table.StrategyAuto)
	require.NoError(t, err)
	load, ok := p.(SingleLoad)
	require.True(t, ok, "got %T", p)
	assert.Equal(t, "data/a.csv", load.Path)
	assert.Equal(t, format.CategoryTabularText, load.Category)
	assert.Equal(t, ReaderCSV, load.Reader)
	require.NotNil(t, load.Text)
	assert.Equal(t, DefaultTextOptions(), *load.Text)
	assert.Nil(t, load.Spreadsheet)
}

func TestBuildReadPlan_MultiSource(t *testing.T) {
	p, err := BuildReadPlan(LocalPaths("a.csv", "b.csv"), DefaultReadOptions(), table.StrategyRbind)
	require.NoError(t, err)
	multi, ok := p.(MultiLoad)
	require.True(t, ok, "got %T", p)
	assert.Equal(t, table.StrategyRbind, multi.Strategy)
	assert.Equal(t, []string{"a.csv", "b.csv"}, multi.Paths())
}

func TestBuildReadPlan_BlankStrategyIsAuto(t *testing.T) {
	p, err := BuildReadPlan(LocalPaths("a.csv", "b.csv"), DefaultReadOptions(), "")
	require.NoError(t, err)
	assert.Equal(t, table.StrategyAuto, p.(MultiLoad).Strategy)
}

func TestBuildReadPlan_Dispatch(t *testing.T) {
	tab := DefaultReadOptions()
	tab.Text.Delimiter = '\t'
	semi := DefaultReadOptions()
	semi.Text.Delimiter = ';'

	tests := []struct {
		name string
		path string
		opts ReadOptions
		want Reader
	}{
		{"comma", "a.csv", DefaultReadOptions(), ReaderCSV},
		{"tab", "a.tsv", tab, ReaderTSV},
		{"other delimiter", "a.txt", semi, ReaderDelim},
		{"tsv extension keeps comma default", "a.tsv", DefaultReadOptions(), ReaderCSV},
		{"spreadsheet", "book.XLSX", DefaultReadOptions(), ReaderExcel},
		{"parquet", "data.parquet", DefaultReadOptions(), ReaderParquet},
		{"feather", "data.feather", DefaultReadOptions(), ReaderFeather},
		{"arrow", "data.arrow", DefaultReadOptions(), ReaderIPC},
		{"ipc", "data.ipc", DefaultReadOptions(), ReaderIPC},
		{"unknown columnar falls back to parquet", "data.pq", DefaultReadOptions(), ReaderParquet},
		{"statistical", "survey.sav", DefaultReadOptions(), ReaderImport},
		{"other", "data.json", DefaultReadOptions(), ReaderImport},
		{"no extension", "README", DefaultReadOptions(), ReaderImport},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p, err := BuildReadPlan(LocalPaths(tt.path), tt.opts, table.StrategyAuto)
			require.NoError(t, err)
			assert.Equal(t, tt.want, p.(SingleLoad).Reader)
		})
	}
}

func TestBuildReadPlan_OptionsScopedToCategory(t *testing.T) {
	opts := DefaultReadOptions()
	opts.Spreadsheet.Sheet = SheetRef{Name: "Q1"}
	opts.Spreadsheet.Range = "A1:C10"

	p, err := BuildReadPlan(LocalPaths("book.xlsx", "data.parquet"), opts, table.StrategyFirst)
	require.NoError(t, err)
	loads := p.(MultiLoad).Loads

	require.NotNil(t, loads[0].Spreadsheet)
	assert.Equal(t, "Q1", loads[0].Spreadsheet.Sheet.Name)
	assert.Nil(t, loads[0].Text)

	assert.Nil(t, loads[1].Text)
	assert.Nil(t, loads[1].Spreadsheet)
}

func TestBuildReadPlan_HeterogeneousBatch(t *testing.T) {
	p, err := BuildReadPlan(LocalPaths("a.csv", "b.xlsx", "c.parquet"), DefaultReadOptions(), table.StrategyAuto)
	require.NoError(t, err)
	loads := p.(MultiLoad).Loads
	assert.Equal(t, format.CategoryTabularText, loads[0].Category)
	assert.Equal(t, format.CategorySpreadsheet, loads[1].Category)
	assert.Equal(t, format.CategoryColumnar, loads[2].Category)
}

func TestBuildReadPlan_InvalidSources(t *testing.T) {
	tests := []struct {
		name string
		src  Source
	}{
		{"empty", Source{}},
		{"blank path", LocalPath("  ")},
		{"unresolved url", RemoteURL("https://example.com/a.csv")},
		{"both set", Source{Path: "a.csv", URL: "https://example.com/a.csv"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := BuildReadPlan([]Source{tt.src}, DefaultReadOptions(), table.StrategyAuto)
			var ise *format.InvalidSourceError
			assert.True(t, errors.As(err, &ise), "got %v", err)
		})
	}
}

func TestBuildReadPlan_RejectsBadInputs(t *testing.T) {
	_, err := BuildReadPlan(LocalPaths("a.csv"), DefaultReadOptions(), "merge")
	assert.Error(t, err)

	opts := DefaultReadOptions()
	opts.Text.SkipRows = -1
	_, err = BuildReadPlan(LocalPaths("a.csv"), opts, table.StrategyAuto)
	assert.ErrorIs(t, err, ErrInvalidOption)
}

func TestBuildReadPlan_FillsZeroTextOptions(t *testing.T) {
	p, err := BuildReadPlan(LocalPaths("a.csv", "b.xlsx"), ReadOptions{}, table.StrategyAuto)
	require.NoError(t, err)
	loads := p.(MultiLoad).Loads
	require.Len(t, loads, 2)

	text := loads[0].Text
	assert.Equal(t, ',', text.Delimiter)
	assert.Equal(t, '"', text.QuoteChar)
	assert.Equal(t, "UTF-8", text.Encoding)
	assert.False(t, text.NoHeader)
	assert.Contains(t, loads[0].String(), "col_names = TRUE")

	sheet := loads[1].Spreadsheet
	assert.False(t, sheet.NoHeader)
	assert.True(t, sheet.Sheet.IsFirst())
	assert.Contains(t, loads[1].String(), "col_names = TRUE")
}

func TestBuildReadPlan_PartialTextOptionsKeepHeader(t *testing.T) {
	opts := ReadOptions{Text: TextOptions{Delimiter: ';'}}
	p, err := BuildReadPlan(LocalPaths("a.txt"), opts, table.StrategyAuto)
	require.NoError(t, err)
	load := p.(SingleLoad)
	assert.Equal(t, ';', load.Text.Delimiter)
	assert.False(t, load.Text.NoHeader)
}

func TestReadPlan_String(t *testing.T) {
	p, err := BuildReadPlan(LocalPaths("a.csv", "b.csv"), DefaultReadOptions(), table.StrategyRbind)
	require.NoError(t, err)
	s := p.String()
	assert.True(t, strings.HasPrefix(s, "combine(rbind, list(read_csv(\"a.csv\""), s)
	assert.Contains(t, s, "n_max = Inf")
	assert.Contains(t, s, `locale(encoding = "UTF-8")`)

	opts := DefaultReadOptions()
	opts.Text.Delimiter = '|'
	opts.Text.MaxRows = 10
	p, err = BuildReadPlan(LocalPaths("a.txt"), opts, table.StrategyAuto)
	require.NoError(t, err)
	assert.Contains(t, p.String(), `read_delim("a.txt", delim = "|"`)
	assert.Contains(t, p.String(), "n_max = 10")

	assert.Equal(t, "NULL", EmptyPlan{}.String())
}

func TestReadPlan_JSON(t *testing.T) {
	p, err := BuildReadPlan(LocalPaths("a.csv", "b.xlsx"), DefaultReadOptions(), table.StrategyAuto)
	require.NoError(t, err)
	data, err := json.Marshal(p)
	require.NoError(t, err)

	var got struct {
		Kind     string `json:"kind"`
		Strategy string `json:"strategy"`
		Loads    []struct {
			Kind     string         `json:"kind"`
			Category string         `json:"category"`
			Reader   string         `json:"reader"`
			Text     map[string]any `json:"text"`
		} `json:"loads"`
	}
	require.NoError(t, json.Unmarshal(data, &got))
	assert.Equal(t, "multi_load", got.Kind)
	assert.Equal(t, "auto", got.Strategy)
	require.Len(t, got.Loads, 2)
	assert.Equal(t, "tabular_text", got.Loads[0].Category)
	assert.Equal(t, ",", got.Loads[0].Text["delimiter"])
	assert.Equal(t, "excel", got.Loads[1].Reader)
	assert.Nil(t, got.Loads[1].Text)
}

func TestSource(t *testing.T) {
	assert.True(t, SourceFor("https://x/a.csv").IsRemote())
	assert.False(t, SourceFor("/tmp/a.csv").IsRemote())
	assert.Equal(t, "/tmp/a.csv", SourceFor("/tmp/a.csv").Location())
	assert.NoError(t, LocalPath("a.csv").Validate())
}
