package web

import (
	"context"
	"mime"
	"net/http"
	"os"
	"path/filepath"
	"strings"

	"github.com/JonMunkholm/tableio/internal/core"
	"github.com/JonMunkholm/tableio/internal/logging"
	"github.com/JonMunkholm/tableio/internal/plan"
	"github.com/JonMunkholm/tableio/internal/table"
)

// Sink names where a write node delivers its output.
type Sink string

const (
	// SinkFilesystem writes under the target directory on the server.
	SinkFilesystem Sink = "filesystem"
	// SinkDownload streams the file to the client and keeps nothing.
	SinkDownload Sink = "download"
)

func parseSink(s string) (Sink, error) {
	switch Sink(strings.ToLower(strings.TrimSpace(s))) {
	case "", SinkFilesystem:
		return SinkFilesystem, nil
	case SinkDownload:
		return SinkDownload, nil
	}
	return "", errBadRequest("unknown sink %q", s)
}

type detectRequest struct {
	Sources []string `json:"sources"`
}

// handleDetect classifies paths and URLs by extension.
func (s *Server) handleDetect(w http.ResponseWriter, r *http.Request) {
	var req detectRequest
	if err := s.decodeJSON(w, r, &req); err != nil {
		s.respondError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, s.service.Detect(req.Sources...))
}

// handlePlanRead returns the read plan for a read node configuration
// without evaluating it. Remote sources are downloaded.
func (s *Server) handlePlanRead(w http.ResponseWriter, r *http.Request) {
	state := core.NewReadState()
	if err := s.decodeJSON(w, r, &state); err != nil {
		s.respondError(w, r, err)
		return
	}
	p, err := s.service.PlanRead(r.Context(), state)
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, newPlanResponse(p))
}

type writeRequest struct {
	Target core.WriteState `json:"target"`
	Tables []namedTable    `json:"tables"`
	Sink   string          `json:"sink,omitempty"`
}

func (s *Server) decodeWriteRequest(w http.ResponseWriter, r *http.Request) (writeRequest, error) {
	req := writeRequest{Target: core.NewWriteState()}
	err := s.decodeJSON(w, r, &req)
	return req, err
}

// handlePlanWrite returns the write plan for a target and input tables.
func (s *Server) handlePlanWrite(w http.ResponseWriter, r *http.Request) {
	req, err := s.decodeWriteRequest(w, r)
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	p, err := s.service.PlanWrite(req.Target, tableSet(req.Tables))
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, newPlanResponse(p))
}

type readResponse struct {
	planResponse
	Outcome table.Outcome `json:"outcome,omitempty"`
	Warning string        `json:"warning,omitempty"`
	Rows    int           `json:"rows"`
	Cols    int           `json:"cols"`
	// Table holds at most the requested number of leading rows.
	Table *table.Table `json:"table,omitempty"`
}

func newReadResponse(r *http.Request, res core.ReadResult) readResponse {
	out := readResponse{
		planResponse: newPlanResponse(res.Plan),
		Outcome:      res.Outcome,
		Warning:      res.Warning,
	}
	if res.Table != nil {
		out.Rows, out.Cols = res.Table.NumRows(), res.Table.NumCols()
		out.Table = res.Table.Head(parseIntParam(r, "limit", DefaultPreviewRows))
	}
	return out
}

// handleRead evaluates a read node configuration.
func (s *Server) handleRead(w http.ResponseWriter, r *http.Request) {
	state := core.NewReadState()
	if err := s.decodeJSON(w, r, &state); err != nil {
		s.respondError(w, r, err)
		return
	}
	res, err := s.service.ReadNode(r.Context(), state)
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, newReadResponse(r, res))
}

type writeResponse struct {
	planResponse
	Path    string   `json:"path,omitempty"`
	Bytes   int64    `json:"bytes"`
	Entries []string `json:"entries,omitempty"`
}

// handleWrite evaluates a write node configuration against the posted tables.
func (s *Server) handleWrite(w http.ResponseWriter, r *http.Request) {
	req, err := s.decodeWriteRequest(w, r)
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	sink, err := parseSink(req.Sink)
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	s.deliver(w, r, sink, req.Target, tableSet(req.Tables), s.service.WriteNode)
}

type writeFunc func(ctx context.Context, state core.WriteState, tables plan.TableSet) (core.WriteResult, error)

// deliver runs write and hands the result to the sink. The download sink
// writes into a private temporary directory that is removed once the file
// has been streamed.
func (s *Server) deliver(w http.ResponseWriter, r *http.Request, sink Sink, state core.WriteState, tables plan.TableSet, write writeFunc) {
	if sink == SinkFilesystem {
		res, err := write(r.Context(), state, tables)
		if err != nil {
			s.respondError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, writeResponse{
			planResponse: newPlanResponse(res.Plan),
			Path:         res.Path,
			Bytes:        res.Bytes,
			Entries:      res.Entries,
		})
		return
	}

	// Write targets must stay inside the write dir.
	base := s.service.WriteDir()
	if base != "" {
		if err := os.MkdirAll(base, 0o755); err != nil {
			s.respondError(w, r, err)
			return
		}
	}
	tmp, err := os.MkdirTemp(base, ".download-")
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	defer os.RemoveAll(tmp)

	state.Directory = tmp
	res, err := write(r.Context(), state, tables)
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	if res.Path == "" {
		w.WriteHeader(http.StatusNoContent)
		return
	}

	f, err := os.Open(res.Path)
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	defer f.Close()
	info, err := f.Stat()
	if err != nil {
		s.respondError(w, r, err)
		return
	}

	name := filepath.Base(res.Path)
	w.Header().Set("Content-Type", contentType(name))
	w.Header().Set("Content-Disposition", mime.FormatMediaType("attachment", map[string]string{"filename": name}))
	logging.FromContext(r.Context()).Info("download delivered", "file", name, "bytes", info.Size())
	http.ServeContent(w, r, name, info.ModTime(), f)
}

var contentTypes = map[string]string{
	".csv":     "text/csv; charset=utf-8",
	".tsv":     "text/tab-separated-values; charset=utf-8",
	".txt":     "text/plain; charset=utf-8",
	".xlsx":    "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet",
	".zip":     "application/zip",
	".parquet": "application/vnd.apache.parquet",
	".feather": "application/vnd.apache.arrow.file",
}

func contentType(name string) string {
	if ct, ok := contentTypes[strings.ToLower(filepath.Ext(name))]; ok {
		return ct
	}
	return "application/octet-stream"
}
