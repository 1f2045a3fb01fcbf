package plan

import (
	"testing"

	"github.com/goccy/go-json"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/JonMunkholm/tableio/internal/format"
)

func TestDefaultReadOptions(t *testing.T) {
	o := DefaultReadOptions()
	assert.Equal(t, ',', o.Text.Delimiter)
	assert.Equal(t, '"', o.Text.QuoteChar)
	assert.Equal(t, "UTF-8", o.Text.Encoding)
	assert.Equal(t, 0, o.Text.SkipRows)
	assert.Equal(t, format.Unbounded, o.Text.MaxRows)
	assert.False(t, o.Text.NoHeader)

	assert.True(t, o.Spreadsheet.Sheet.IsFirst())
	assert.Empty(t, o.Spreadsheet.Range)
	assert.False(t, o.Spreadsheet.NoHeader)
}

func TestTextOptions_UnmarshalJSON(t *testing.T) {
	var o TextOptions
	require.NoError(t, json.Unmarshal([]byte(`{"delimiter":";","skip_rows":2,"max_rows":100}`), &o))
	assert.Equal(t, ';', o.Delimiter)
	assert.Equal(t, '"', o.QuoteChar)
	assert.Equal(t, 2, o.SkipRows)
	assert.Equal(t, 100, o.MaxRows)
	assert.False(t, o.NoHeader)

	require.NoError(t, json.Unmarshal([]byte(`{"delimiter":"\\t","max_rows":"unbounded","header_present":false}`), &o))
	assert.Equal(t, '\t', o.Delimiter)
	assert.Equal(t, format.Unbounded, o.MaxRows)
	assert.True(t, o.NoHeader)
}

func TestTextOptions_UnmarshalJSONErrors(t *testing.T) {
	tests := []struct {
		name    string
		in      string
		wantErr error
	}{
		{"unknown key", `{"delimter":";"}`, ErrUnknownOption},
		{"spreadsheet key on text", `{"sheet":"x"}`, ErrUnknownOption},
		{"multi-char delimiter", `{"delimiter":";;"}`, ErrInvalidOption},
		{"zero max rows", `{"max_rows":0}`, ErrInvalidOption},
		{"negative skip", `{"skip_rows":-1}`, ErrInvalidOption},
		{"quote equals delimiter", `{"delimiter":"'","quote_char":"'"}`, ErrInvalidOption},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var o TextOptions
			err := json.Unmarshal([]byte(tt.in), &o)
			assert.ErrorIs(t, err, tt.wantErr)
		})
	}
}

func TestSpreadsheetOptions_UnmarshalJSON(t *testing.T) {
	var o SpreadsheetOptions
	require.NoError(t, json.Unmarshal([]byte(`{"sheet":"Sales","cell_range":"B2:D9"}`), &o))
	assert.Equal(t, SheetRef{Name: "Sales"}, o.Sheet)
	assert.Equal(t, "B2:D9", o.Range)

	require.NoError(t, json.Unmarshal([]byte(`{"sheet":2,"cell_range":"all"}`), &o))
	assert.Equal(t, SheetRef{Index: 2}, o.Sheet)
	assert.Empty(t, o.Range)

	require.NoError(t, json.Unmarshal([]byte(`{"sheet":"first"}`), &o))
	assert.True(t, o.Sheet.IsFirst())

	assert.ErrorIs(t, json.Unmarshal([]byte(`{"sheet":0}`), &o), ErrInvalidOption)
	assert.ErrorIs(t, json.Unmarshal([]byte(`{"delimiter":","}`), &o), ErrUnknownOption)
}

func TestReadOptions_JSONRoundTrip(t *testing.T) {
	in := DefaultReadOptions()
	in.Text.Delimiter = '|'
	in.Text.MaxRows = 5
	in.Spreadsheet.Sheet = SheetRef{Index: 3}

	data, err := json.Marshal(in)
	require.NoError(t, err)

	var out ReadOptions
	require.NoError(t, json.Unmarshal(data, &out))
	assert.Equal(t, in, out)
}

func TestReadOptions_UnmarshalRejectsUnknownCategory(t *testing.T) {
	var o ReadOptions
	err := json.Unmarshal([]byte(`{"columnar":{"compression":"zstd"}}`), &o)
	assert.ErrorIs(t, err, ErrUnknownOption)
}

func TestReadOptions_UnmarshalMissingMembersKeepDefaults(t *testing.T) {
	var o ReadOptions
	require.NoError(t, json.Unmarshal([]byte(`{"text":{"encoding":"latin1"}}`), &o))
	assert.Equal(t, "latin1", o.Text.Encoding)
	assert.Equal(t, DefaultSpreadsheetOptions(), o.Spreadsheet)
}

func TestParseRune(t *testing.T) {
	tests := []struct {
		in      string
		want    rune
		wantErr bool
	}{
		{",", ',', false},
		{"tab", '\t', false},
		{`\t`, '\t', false},
		{"\t", '\t', false},
		{"é", 'é', false},
		{"", 0, true},
		{"ab", 0, true},
	}
	for _, tt := range tests {
		got, err := ParseRune(tt.in)
		if tt.wantErr {
			assert.Error(t, err, tt.in)
			continue
		}
		require.NoError(t, err, tt.in)
		assert.Equal(t, tt.want, got)
	}
}
