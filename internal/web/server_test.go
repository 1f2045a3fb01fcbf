package web

import (
	"bytes"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/goccy/go-json"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/JonMunkholm/tableio/internal/acquire"
	"github.com/JonMunkholm/tableio/internal/config"
	"github.com/JonMunkholm/tableio/internal/core"
	"github.com/JonMunkholm/tableio/internal/store"
)

var fixedNow = time.Date(2024, 3, 15, 14, 30, 5, 0, time.UTC)

type testEnv struct {
	server   *Server
	dataDir  string
	writeDir string
}

func newTestEnv(t *testing.T, mutate ...func(*config.Config)) *testEnv {
	t.Helper()
	root := t.TempDir()
	env := &testEnv{
		dataDir:  filepath.Join(root, "data"),
		writeDir: filepath.Join(root, "out"),
	}
	require.NoError(t, os.MkdirAll(env.dataDir, 0o755))

	cfg := &config.Config{
		Storage:  config.StorageConfig{MaxUploadSize: 1 << 20},
		Security: config.SecurityConfig{EnableCSP: true},
	}
	for _, m := range mutate {
		m(cfg)
	}

	uploads, err := acquire.NewUploadStore(filepath.Join(root, "uploads"))
	require.NoError(t, err)
	mounts, err := acquire.NewMounts(map[string]string{"data": env.dataDir})
	require.NoError(t, err)

	svc, err := core.NewService(core.ServiceConfig{
		Store:     store.NewMemory(),
		Uploads:   uploads,
		Mounts:    mounts,
		WriteDir:  env.writeDir,
		ReadRoots: append([]string{uploads.Dir(), env.writeDir}, mounts.Roots()...),
		Now:       func() time.Time { return fixedNow },
	})
	require.NoError(t, err)

	env.server = NewServer(svc, cfg)
	t.Cleanup(func() { env.server.Shutdown(t.Context()) })
	return env
}

func (e *testEnv) file(t *testing.T, name, content string) string {
	t.Helper()
	p := filepath.Join(e.dataDir, name)
	require.NoError(t, os.WriteFile(p, []byte(content), 0o644))
	return p
}

func (e *testEnv) do(t *testing.T, method, path string, body any, headers ...string) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	switch b := body.(type) {
	case nil:
	case string:
		buf.WriteString(b)
	default:
		require.NoError(t, json.NewEncoder(&buf).Encode(b))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	for i := 0; i+1 < len(headers); i += 2 {
		req.Header.Set(headers[i], headers[i+1])
	}
	rec := httptest.NewRecorder()
	e.server.Router().ServeHTTP(rec, req)
	return rec
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &v), rec.Body.String())
	return v
}

func TestHealth(t *testing.T) {
	env := newTestEnv(t)
	rec := env.do(t, http.MethodGet, "/healthz", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	got := decode[healthResponse](t, rec)
	assert.Equal(t, "ok", got.Status)
	assert.Equal(t, core.DefaultMaxConcurrentEvaluations, got.Evaluations.MaxConcurrent)
	assert.Equal(t, "nosniff", rec.Header().Get("X-Content-Type-Options"))
	assert.NotEmpty(t, rec.Header().Get("Content-Security-Policy"))
}

func TestDetect(t *testing.T) {
	env := newTestEnv(t)
	rec := env.do(t, http.MethodPost, "/api/detect", map[string]any{
		"sources": []string{"a.csv", "b.XLSX", "https://example.com/c.parquet?x=1", "d.sav"},
	})
	require.Equal(t, http.StatusOK, rec.Code)

	got := decode[[]map[string]any](t, rec)
	require.Len(t, got, 4)
	assert.Equal(t, "tabular_text", got[0]["category"])
	assert.Equal(t, "spreadsheet", got[1]["category"])
	assert.Equal(t, "columnar", got[2]["category"])
	assert.Equal(t, true, got[2]["supported"])
	assert.Equal(t, false, got[3]["supported"])
}

func TestPlanRead(t *testing.T) {
	env := newTestEnv(t)
	a := env.file(t, "a.csv", "x,y\n1,2\n")
	b := env.file(t, "b.csv", "x,y\n3,4\n")

	rec := env.do(t, http.MethodPost, "/api/plan/read", map[string]any{
		"sources":  []map[string]string{{"path": a}, {"path": b}},
		"strategy": "rbind",
	})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	got := decode[map[string]any](t, rec)
	assert.Contains(t, got["call"], "rbind")
	assert.Contains(t, got["call"], "read_csv(")

	rec = env.do(t, http.MethodPost, "/api/plan/read", map[string]any{})
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "NULL", decode[map[string]any](t, rec)["call"])
}

func TestPlanRead_UnknownOption(t *testing.T) {
	env := newTestEnv(t)
	rec := env.do(t, http.MethodPost, "/api/plan/read",
		`{"sources":[{"path":"a.csv"}],"options":{"text":{"colour":"red"}}}`)
	require.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "OPT001", decode[ErrorResponse](t, rec).Code)
}

func TestRead(t *testing.T) {
	env := newTestEnv(t)
	a := env.file(t, "a.csv", "x,y\n1,2\n3,4\n5,6\n")
	b := env.file(t, "b.csv", "x,z\n7,8\n")

	rec := env.do(t, http.MethodPost, "/api/read?limit=2", map[string]any{
		"sources": []map[string]string{{"path": a}},
	})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	got := decode[map[string]any](t, rec)
	assert.EqualValues(t, 3, got["rows"])
	assert.EqualValues(t, 2, got["cols"])
	cols := got["table"].(map[string]any)["columns"].([]any)
	assert.Len(t, cols[0].(map[string]any)["values"], 2)

	rec = env.do(t, http.MethodPost, "/api/read", map[string]any{
		"sources": []map[string]string{{"path": a}, {"path": b}},
	})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	got = decode[map[string]any](t, rec)
	assert.Equal(t, "fell_back", got["outcome"])
	assert.Contains(t, got["warning"], "using the first file only")

	rec = env.do(t, http.MethodPost, "/api/read", map[string]any{
		"sources":  []map[string]string{{"path": a}, {"path": b}},
		"strategy": "rbind",
	})
	require.Equal(t, http.StatusUnprocessableEntity, rec.Code)
	assert.Equal(t, "CMB001", decode[ErrorResponse](t, rec).Code)
}

func TestRead_MissingFile(t *testing.T) {
	env := newTestEnv(t)
	rec := env.do(t, http.MethodPost, "/api/read", map[string]any{
		"sources": []map[string]string{{"path": filepath.Join(env.dataDir, "nope.csv")}},
	})
	require.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, "FILE004", decode[ErrorResponse](t, rec).Code)
}

func TestRead_OutsideAllowedDirectories(t *testing.T) {
	env := newTestEnv(t)
	outside := filepath.Join(t.TempDir(), "secret.csv")
	require.NoError(t, os.WriteFile(outside, []byte("k\nv\n"), 0o644))

	for _, path := range []string{"/api/read", "/api/plan/read"} {
		rec := env.do(t, http.MethodPost, path, map[string]any{
			"sources": []map[string]string{{"path": outside}},
		})
		require.Equal(t, http.StatusForbidden, rec.Code, path)
		assert.Equal(t, "FILE005", decode[ErrorResponse](t, rec).Code, path)
	}
}

func TestWrite_OutsideWriteDir(t *testing.T) {
	env := newTestEnv(t)
	for _, dir := range []string{"../escaped", filepath.Join(filepath.Dir(env.writeDir), "escaped")} {
		rec := env.do(t, http.MethodPost, "/api/write", map[string]any{
			"target": map[string]any{"directory": dir, "base_filename": "x", "format": "csv"},
			"tables": twoTables[:1],
		})
		require.Equal(t, http.StatusForbidden, rec.Code, dir)
		assert.Equal(t, "FILE005", decode[ErrorResponse](t, rec).Code, dir)
	}
	assert.NoDirExists(t, filepath.Join(filepath.Dir(env.writeDir), "escaped"))
}

func TestRead_MalformedBody(t *testing.T) {
	env := newTestEnv(t)
	rec := env.do(t, http.MethodPost, "/api/read", `{"sources": [`)
	require.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "REQ004", decode[ErrorResponse](t, rec).Code)
}

func TestRead_HTMXErrorFragment(t *testing.T) {
	env := newTestEnv(t)
	rec := env.do(t, http.MethodPost, "/api/read", `{"sources": [`, "HX-Request", "true")
	require.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, rec.Header().Get("Content-Type"), "text/html")
	assert.Contains(t, rec.Body.String(), `data-code="REQ004"`)
	assert.Equal(t, "#errors", rec.Header().Get("HX-Retarget"))
}

var twoTables = []map[string]any{
	{"name": "sales", "table": map[string]any{"columns": []map[string]any{
		{"name": "id", "type": "int", "values": []any{1, 2}},
	}}},
	{"name": "costs", "table": map[string]any{"columns": []map[string]any{
		{"name": "id", "type": "int", "values": []any{3}},
	}}},
}

func TestPlanWrite(t *testing.T) {
	env := newTestEnv(t)
	rec := env.do(t, http.MethodPost, "/api/plan/write", map[string]any{
		"target": map[string]any{"directory": "exports", "format": "xlsx"},
		"tables": twoTables,
	})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	got := decode[map[string]any](t, rec)
	assert.Contains(t, got["call"], "data_20240315_143005.xlsx")

	rec = env.do(t, http.MethodPost, "/api/plan/write", map[string]any{
		"target": map[string]any{"format": "json"},
		"tables": twoTables,
	})
	require.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "OPT004", decode[ErrorResponse](t, rec).Code)
}

func TestWrite_Filesystem(t *testing.T) {
	env := newTestEnv(t)
	rec := env.do(t, http.MethodPost, "/api/write", map[string]any{
		"target": map[string]any{"directory": "exports", "base_filename": "report", "format": "csv"},
		"tables": twoTables[:1],
	})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	got := decode[writeResponse](t, rec)
	assert.Equal(t, filepath.Join(env.writeDir, "exports", "report.csv"), got.Path)
	data, err := os.ReadFile(got.Path)
	require.NoError(t, err)
	assert.Equal(t, "id\n1\n2\n", strings.ReplaceAll(string(data), `"`, ""))
}

func TestWrite_Download(t *testing.T) {
	env := newTestEnv(t)
	rec := env.do(t, http.MethodPost, "/api/write", map[string]any{
		"target": map[string]any{"base_filename": "bundle", "format": "xlsx"},
		"tables": twoTables,
		"sink":   "download",
	})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, contentTypes[".xlsx"], rec.Header().Get("Content-Type"))
	assert.Contains(t, rec.Header().Get("Content-Disposition"), `filename=bundle.xlsx`)
	assert.True(t, bytes.HasPrefix(rec.Body.Bytes(), []byte("PK")), "xlsx is a zip container")

	_, err := os.Stat(filepath.Join(env.writeDir, "bundle.xlsx"))
	assert.True(t, os.IsNotExist(err), "download sink must not leave a file in the write dir")

	rec = env.do(t, http.MethodPost, "/api/write", map[string]any{
		"target": map[string]any{"format": "csv"},
		"sink":   "download",
	})
	assert.Equal(t, http.StatusNoContent, rec.Code)

	rec = env.do(t, http.MethodPost, "/api/write", map[string]any{
		"target": map[string]any{"format": "csv"},
		"sink":   "printer",
	})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestNodes(t *testing.T) {
	env := newTestEnv(t)
	a := env.file(t, "a.csv", "x\n1\n2\n")

	rec := env.do(t, http.MethodGet, "/api/nodes/reader-1/read", nil)
	require.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, "REQ001", decode[ErrorResponse](t, rec).Code)

	rec = env.do(t, http.MethodPut, "/api/nodes/reader-1/read", map[string]any{
		"sources": []map[string]string{{"path": a}},
	})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	rec = env.do(t, http.MethodGet, "/api/nodes/reader-1/read", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), a)

	rec = env.do(t, http.MethodPost, "/api/nodes/reader-1/read/run", nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.EqualValues(t, 2, decode[map[string]any](t, rec)["rows"])

	rec = env.do(t, http.MethodPut, "/api/nodes/writer-1/write", map[string]any{
		"directory": "nodes", "base_filename": "w", "format": "csv",
	})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	rec = env.do(t, http.MethodPost, "/api/nodes/writer-1/write/run", map[string]any{"tables": twoTables[:1]})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, filepath.Join(env.writeDir, "nodes", "w.csv"), decode[writeResponse](t, rec).Path)

	rec = env.do(t, http.MethodPost, "/api/nodes/writer-1/write/run", map[string]any{
		"tables": twoTables[:1], "sink": "download",
	})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Contains(t, rec.Header().Get("Content-Disposition"), "w.csv")

	rec = env.do(t, http.MethodGet, "/api/nodes", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Len(t, decode[[]core.NodeState](t, rec), 2)

	rec = env.do(t, http.MethodGet, "/api/runs?node=writer-1", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	runs := decode[[]core.RunRecord](t, rec)
	require.Len(t, runs, 2)
	assert.Equal(t, core.KindWrite, runs[0].Kind)

	rec = env.do(t, http.MethodGet, "/api/runs?kind=sideways", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = env.do(t, http.MethodDelete, "/api/nodes/reader-1/read", nil)
	assert.Equal(t, http.StatusNoContent, rec.Code)
	rec = env.do(t, http.MethodDelete, "/api/nodes/reader-1/read", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = env.do(t, http.MethodPut, "/api/nodes/bad%20id/read", map[string]any{})
	require.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "REQ006", decode[ErrorResponse](t, rec).Code)
}

func TestRuns_RecordClientIP(t *testing.T) {
	tests := []struct {
		name    string
		trusted []string
		want    string
	}{
		{"direct peer without port", nil, "192.0.2.1"},
		{"forwarded through trusted proxy", []string{"192.0.2.0/24"}, "198.51.100.7"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			env := newTestEnv(t, func(c *config.Config) { c.Security.TrustedProxies = tt.trusted })
			a := env.file(t, "a.csv", "x\n1\n")

			rec := env.do(t, http.MethodPost, "/api/read", map[string]any{
				"sources": []map[string]string{{"path": a}},
			}, "X-Forwarded-For", "198.51.100.7, 192.0.2.1")
			require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

			rec = env.do(t, http.MethodGet, "/api/runs", nil)
			require.Equal(t, http.StatusOK, rec.Code)
			runs := decode[[]core.RunRecord](t, rec)
			require.Len(t, runs, 1)
			assert.Equal(t, tt.want, runs[0].IPAddress)
		})
	}
}

func TestUploads(t *testing.T) {
	env := newTestEnv(t)

	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	fw, err := mw.CreateFormFile("file", "sales.csv")
	require.NoError(t, err)
	fw.Write([]byte("a,b\n1,2\n"))
	require.NoError(t, mw.Close())

	req := httptest.NewRequest(http.MethodPost, "/api/uploads", &body)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	rec := httptest.NewRecorder()
	env.server.Router().ServeHTTP(rec, req)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	saved := decode[[]acquire.Upload](t, rec)
	require.Len(t, saved, 1)
	assert.Equal(t, "sales.csv", saved[0].Name)

	rec = env.do(t, http.MethodPost, "/api/read", map[string]any{
		"sources": []map[string]string{{"path": saved[0].Path}},
	})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	rec = env.do(t, http.MethodGet, "/api/uploads", nil, "HX-Request", "true")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "sales.csv")

	rec = env.do(t, http.MethodDelete, "/api/uploads/"+saved[0].ID, nil)
	assert.Equal(t, http.StatusNoContent, rec.Code)
	rec = env.do(t, http.MethodDelete, "/api/uploads/"+saved[0].ID, nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = env.do(t, http.MethodGet, "/api/uploads", nil)
	assert.JSONEq(t, "[]", rec.Body.String())
}

func TestUploads_TooLarge(t *testing.T) {
	env := newTestEnv(t, func(c *config.Config) { c.Storage.MaxUploadSize = 64 })

	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	fw, err := mw.CreateFormFile("file", "big.csv")
	require.NoError(t, err)
	fw.Write(bytes.Repeat([]byte("x"), 1024))
	require.NoError(t, mw.Close())

	req := httptest.NewRequest(http.MethodPost, "/api/uploads", &body)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	rec := httptest.NewRecorder()
	env.server.Router().ServeHTTP(rec, req)
	require.Equal(t, http.StatusRequestEntityTooLarge, rec.Code, rec.Body.String())
	assert.Equal(t, "REQ005", decode[ErrorResponse](t, rec).Code)
}

func TestMounts(t *testing.T) {
	env := newTestEnv(t)
	env.file(t, "a.csv", "x\n1\n")

	rec := env.do(t, http.MethodGet, "/api/mounts", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"mounts":["data"]}`, rec.Body.String())

	rec = env.do(t, http.MethodGet, "/api/mounts/data", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	entries := decode[[]acquire.Entry](t, rec)
	require.Len(t, entries, 1)
	assert.Equal(t, "a.csv", entries[0].Name)

	rec = env.do(t, http.MethodGet, "/api/mounts/data?path=../..", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "FILE003", decode[ErrorResponse](t, rec).Code)

	rec = env.do(t, http.MethodGet, "/api/mounts/elsewhere", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestAPIKeyRequired(t *testing.T) {
	env := newTestEnv(t, func(c *config.Config) {
		c.Security.RequireAPIKey = true
		c.Security.APIKeys = []string{"secret"}
	})

	assert.Equal(t, http.StatusUnauthorized, env.do(t, http.MethodGet, "/api/nodes", nil).Code)
	assert.Equal(t, http.StatusOK, env.do(t, http.MethodGet, "/api/nodes", nil, "X-API-Key", "secret").Code)
	assert.Equal(t, http.StatusOK, env.do(t, http.MethodGet, "/healthz", nil).Code)
}

func TestRateLimit(t *testing.T) {
	env := newTestEnv(t, func(c *config.Config) {
		c.Rate = config.RateLimitConfig{Enabled: true, RequestsPerMinute: 2, UploadLimit: 1}
	})

	codes := []int{}
	for i := 0; i < 3; i++ {
		codes = append(codes, env.do(t, http.MethodGet, "/healthz", nil).Code)
	}
	assert.Equal(t, []int{200, 200, http.StatusTooManyRequests}, codes)
}

func TestStatusFor(t *testing.T) {
	tests := map[string]int{
		"REQ001":  http.StatusNotFound,
		"EVAL001": http.StatusServiceUnavailable,
		"FMT002":  http.StatusUnprocessableEntity,
		"CMB002":  http.StatusUnprocessableEntity,
		"OPT001":  http.StatusBadRequest,
		"SRC002":  http.StatusBadGateway,
		"FILE005": http.StatusForbidden,
		"ERR000":  http.StatusInternalServerError,
	}
	for code, want := range tests {
		assert.Equal(t, want, statusFor(code), code)
	}
}
