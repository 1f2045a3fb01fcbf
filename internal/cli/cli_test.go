package cli

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/goccy/go-json"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// run executes the root command with args and returns stdout and stderr.
func run(t *testing.T, args ...string) (string, string, error) {
	t.Helper()
	t.Setenv("STORAGE_DOWNLOAD_DIR", t.TempDir())
	t.Setenv("LOG_LEVEL", "error")

	cmd := NewRootCmd()
	var stdout, stderr bytes.Buffer
	cmd.SetOut(&stdout)
	cmd.SetErr(&stderr)
	cmd.SetArgs(args)
	err := cmd.Execute()
	return stdout.String(), stderr.String(), err
}

func writeFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	p := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(p, []byte(content), 0o644))
	return p
}

func TestVersionCommand(t *testing.T) {
	tests := []struct {
		name    string
		version string
		wantOut string
	}{
		{name: "default version", version: "0.1.0", wantOut: "tableio v0.1.0"},
		{name: "dev version", version: "dev", wantOut: "tableio vdev"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cmd := newVersionCommand(tt.version)
			buf := new(bytes.Buffer)
			cmd.SetOut(buf)
			require.NoError(t, cmd.Execute())
			assert.Contains(t, buf.String(), tt.wantOut)
		})
	}
}

func TestDetect_Text(t *testing.T) {
	out, _, err := run(t, "detect", "a.csv", "b.XLSX", "c.sav", "d.bin")
	require.NoError(t, err)

	lines := strings.Split(strings.TrimSpace(out), "\n")
	require.Len(t, lines, 5)
	assert.Contains(t, lines[0], "CATEGORY")
	assert.Contains(t, lines[1], "tabular_text")
	assert.Contains(t, lines[2], "spreadsheet")
	assert.Contains(t, lines[3], "statistical")
	assert.Contains(t, lines[4], "other")
}

func TestDetect_JSON(t *testing.T) {
	out, _, err := run(t, "detect", "-o", "json", "https://example.com/data.parquet?x=1")
	require.NoError(t, err)

	var got []struct {
		Source    string `json:"source"`
		Extension string `json:"extension"`
		Category  string `json:"category"`
		Supported bool   `json:"supported"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &got))
	require.Len(t, got, 1)
	assert.Equal(t, "parquet", got[0].Extension)
	assert.Equal(t, "columnar", got[0].Category)
	assert.True(t, got[0].Supported)
}

func TestDetect_BadOutput(t *testing.T) {
	_, _, err := run(t, "detect", "-o", "yaml", "a.csv")
	assert.Error(t, err)
}

func TestPlanRead(t *testing.T) {
	out, _, err := run(t, "plan", "read", "--delim", "tab", "--skip", "2", "data.txt")
	require.NoError(t, err)
	assert.Equal(t,
		`read_tsv("data.txt", quote = "\"", skip = 2, n_max = Inf, col_names = TRUE, locale = locale(encoding = "UTF-8"))`,
		strings.TrimSpace(out))
}

func TestPlanRead_Multi(t *testing.T) {
	out, _, err := run(t, "plan", "read", "--combine", "rbind", "--sheet", "Q1", "a.xlsx", "b.csv")
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(out, "combine(rbind, list(read_excel(\"a.xlsx\", sheet = \"Q1\""), out)
	assert.Contains(t, out, `read_csv("b.csv"`)
}

func TestPlanRead_Empty(t *testing.T) {
	out, _, err := run(t, "plan", "read")
	require.NoError(t, err)
	assert.Equal(t, "NULL", strings.TrimSpace(out))
}

func TestPlanRead_InvalidFlags(t *testing.T) {
	tests := []struct {
		name string
		args []string
	}{
		{name: "multi-character delimiter", args: []string{"--delim", ";;"}},
		{name: "negative skip", args: []string{"--skip", "-1"}},
		{name: "unknown strategy", args: []string{"--combine", "zip"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			args := append([]string{"plan", "read"}, tt.args...)
			_, _, err := run(t, append(args, "a.csv")...)
			assert.Error(t, err)
		})
	}
}

func TestPlanWrite(t *testing.T) {
	out, _, err := run(t, "plan", "write", "--to", "xlsx", "--out", "exports", "--name", "report",
		"--table", "sales", "--table", "returns")
	require.NoError(t, err)
	assert.Equal(t,
		"write_xlsx(list(\"sales\" = `sales`, \"returns\" = `returns`), \""+filepath.Join("exports", "report.xlsx")+"\")",
		strings.TrimSpace(out))
}

func TestPlanWrite_JSON(t *testing.T) {
	out, _, err := run(t, "plan", "write", "-o", "json", "--to", "csv", "--write-delim", "tab", "--name", "x", "--table", "t")
	require.NoError(t, err)

	var got struct {
		Plan map[string]any `json:"plan"`
		Call string         `json:"call"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &got))
	assert.Equal(t, filepath.Join(".", "x.tsv"), got.Plan["path"])
	assert.Contains(t, got.Call, "write_delim(`t`")
}

func TestPlanWrite_NoTables(t *testing.T) {
	out, _, err := run(t, "plan", "write")
	require.NoError(t, err)
	assert.Equal(t, "NULL", strings.TrimSpace(out))
}

func TestConvert_CSVToCSV(t *testing.T) {
	in := t.TempDir()
	src := writeFile(t, in, "people.csv", "name;age\nann;31\nbob;42\n")
	out := t.TempDir()

	stdout, _, err := run(t, "convert", "--delim", ";", "--out", out, "--name", "people", "--write-quote", "all", src)
	require.NoError(t, err)

	dst := filepath.Join(out, "people.csv")
	assert.Contains(t, stdout, "wrote "+dst)
	data, err := os.ReadFile(dst)
	require.NoError(t, err)
	assert.Equal(t, "\"name\",\"age\"\n\"ann\",\"31\"\n\"bob\",\"42\"\n", string(data))
}

func TestConvert_SeparateZip(t *testing.T) {
	in := t.TempDir()
	a := writeFile(t, in, "a.csv", "x\n1\n")
	b := writeFile(t, filepath.Join(t.TempDir()), "a.csv", "y\n2\n")
	out := t.TempDir()

	stdout, _, err := run(t, "convert", "-o", "json", "--separate", "--to", "parquet", "--out", out, "--name", "both", a, b)
	require.NoError(t, err)

	var got convertOutput
	require.NoError(t, json.Unmarshal([]byte(stdout), &got))
	assert.Equal(t, filepath.Join(out, "both.zip"), got.Path)
	assert.Equal(t, []string{"a.parquet", "a_2.parquet"}, got.Entries)
	assert.Len(t, got.Read, 2)
	assert.FileExists(t, got.Path)
}

func TestConvert_AutoFallback(t *testing.T) {
	in := t.TempDir()
	a := writeFile(t, in, "a.csv", "x\n1\n")
	b := writeFile(t, in, "b.csv", "y\n2\n")
	out := t.TempDir()

	stdout, stderr, err := run(t, "convert", "--out", out, "--name", "merged", a, b)
	require.NoError(t, err)
	assert.Contains(t, stderr, "using the first file only")
	assert.Contains(t, stdout, filepath.Join(out, "merged.csv"))

	data, err := os.ReadFile(filepath.Join(out, "merged.csv"))
	require.NoError(t, err)
	assert.Equal(t, "x\n1\n", string(data))
}

func TestConvert_MissingSource(t *testing.T) {
	_, _, err := run(t, "convert", "--out", t.TempDir(), filepath.Join(t.TempDir(), "nope.csv"))
	assert.Error(t, err)
}

func TestTableName(t *testing.T) {
	tests := []struct {
		in, want string
	}{
		{"data/sales.csv", "sales"},
		{`C:\files\q1.xlsx`, "q1"},
		{"https://example.com/x/report.parquet?sig=abc", "report"},
		{"https://example.com/", "table"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, tableName(tt.in), tt.in)
	}
}

func TestUniqueName(t *testing.T) {
	used := map[string]bool{}
	assert.Equal(t, "a", uniqueName("a", used))
	assert.Equal(t, "a_2", uniqueName("a", used))
	assert.Equal(t, "a_3", uniqueName("a", used))
	assert.Equal(t, "b", uniqueName("b", used))
}
