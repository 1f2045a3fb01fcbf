package format

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCategoryForExtension(t *testing.T) {
	tests := []struct {
		ext  string
		want Category
	}{
		{"csv", CategoryTabularText},
		{".tsv", CategoryTabularText},
		{"TXT", CategoryTabularText},
		{"xlsx", CategorySpreadsheet},
		{"xls", CategorySpreadsheet},
		{"parquet", CategoryColumnar},
		{"feather", CategoryColumnar},
		{"arrow", CategoryColumnar},
		{"sav", CategoryStatistical},
		{"dta", CategoryStatistical},
		{"json", CategoryOther},
		{"weird", CategoryOther},
		{"", CategoryOther},
	}
	for _, tt := range tests {
		t.Run(tt.ext, func(t *testing.T) {
			assert.Equal(t, tt.want, CategoryForExtension(tt.ext))
		})
	}
}

func TestExtension(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"data.csv", "csv"},
		{"/tmp/dir.v2/data.Parquet", "parquet"},
		{"http://x/f.csv?x=1", "csv"},
		{"https://host/path/file.xlsx#sheet", "xlsx"},
		{"https://host/download?file=a.csv", ""},
		{`C:\data\in.TSV`, "tsv"},
		{"noext", ""},
		{".hidden", ""},
		{"trailing.", ""},
		{"", ""},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			assert.Equal(t, tt.want, Extension(tt.in))
		})
	}
}

func TestDetect_CaseInsensitive(t *testing.T) {
	upper, err := Detect("A.CSV")
	require.NoError(t, err)
	lower, err := Detect("a.csv")
	require.NoError(t, err)
	assert.Equal(t, lower, upper)
	assert.Equal(t, CategoryTabularText, upper)
}

func TestDetect_IgnoresQueryString(t *testing.T) {
	withQuery, err := Detect("http://x/f.csv?x=1")
	require.NoError(t, err)
	without, err := Detect("http://x/f.csv")
	require.NoError(t, err)
	assert.Equal(t, without, withQuery)
}

func TestDetect_Idempotent(t *testing.T) {
	first, err := Detect("report.xlsx")
	require.NoError(t, err)
	second, err := Detect("report.xlsx")
	require.NoError(t, err)
	assert.Equal(t, first, second)
}

func TestDetect_Parquet(t *testing.T) {
	c, err := Detect("data.parquet")
	require.NoError(t, err)
	assert.Equal(t, CategoryColumnar, c)
	assert.Equal(t, VariantParquet, ColumnarVariantFor(Extension("data.parquet")))
}

func TestDetect_UnknownFallsThrough(t *testing.T) {
	c, err := Detect("archive.unknownext")
	require.NoError(t, err)
	assert.Equal(t, CategoryOther, c)
}

func TestDetect_EmptyInput(t *testing.T) {
	for _, in := range []string{"", "   "} {
		_, err := Detect(in)
		var invalid *InvalidSourceError
		require.True(t, errors.As(err, &invalid), "input %q", in)
	}
}

func TestColumnarVariantFor(t *testing.T) {
	assert.Equal(t, VariantParquet, ColumnarVariantFor("parquet"))
	assert.Equal(t, VariantFeather, ColumnarVariantFor("feather"))
	assert.Equal(t, VariantIPC, ColumnarVariantFor("arrow"))
	assert.Equal(t, VariantIPC, ColumnarVariantFor(".ipc"))
	assert.Equal(t, VariantParquet, ColumnarVariantFor("pq"))
}

func TestParseCategory(t *testing.T) {
	for _, c := range []Category{CategoryOther, CategoryTabularText, CategorySpreadsheet, CategoryColumnar, CategoryStatistical} {
		got, ok := ParseCategory(c.String())
		assert.True(t, ok)
		assert.Equal(t, c, got)
	}
	_, ok := ParseCategory("nope")
	assert.False(t, ok)
}

func TestIsRemote(t *testing.T) {
	assert.True(t, IsRemote("https://example.com/a.csv"))
	assert.True(t, IsRemote("S3://bucket/key.parquet"))
	assert.False(t, IsRemote("/tmp/a.csv"))
	assert.False(t, IsRemote("relative/http.csv"))
}

func TestExtensions(t *testing.T) {
	assert.Equal(t, []string{"csv", "tab", "tsv", "txt"}, Extensions(CategoryTabularText))
	assert.Empty(t, Extensions(CategoryOther))
}
