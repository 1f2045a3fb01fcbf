package plan

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestBaseFilename(t *testing.T) {
	ts := time.Date(2024, 1, 15, 10, 30, 45, 0, time.UTC)
	tests := []struct {
		name string
		in   string
		want string
	}{
		{"blank", "", "data_20240115_103045"},
		{"whitespace", "   ", "data_20240115_103045"},
		{"extension stripped", "report.csv", "report"},
		{"no extension", "report", "report"},
		{"trimmed", "  report.xlsx ", "report"},
		{"directory dropped", "../../etc/report.csv", "report"},
		{"windows separators", `C:\out\report.csv`, "report"},
		{"extension only", ".csv", "data_20240115_103045"},
		{"multiple dots", "q1.final.parquet", "q1.final"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, BaseFilename(tt.in, ts))
		})
	}
}

func TestBaseFilename_Timestamp(t *testing.T) {
	t1 := time.Date(2024, 1, 15, 10, 30, 45, 0, time.UTC)
	t2 := t1.Add(time.Second)

	assert.Equal(t, BaseFilename("", t1), BaseFilename("", t1))
	assert.NotEqual(t, BaseFilename("", t1), BaseFilename("", t2))
	assert.Equal(t, BaseFilename("", t1), BaseFilename("", t1.Add(500*time.Millisecond)))
	assert.Equal(t, "report", BaseFilename("report.csv", t2))
}
