package web

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/JonMunkholm/tableio/internal/core"
)

// handleSaveReadNode stores the posted read node configuration.
func (s *Server) handleSaveReadNode(w http.ResponseWriter, r *http.Request) {
	state := core.NewReadState()
	if err := s.decodeJSON(w, r, &state); err != nil {
		s.respondError(w, r, err)
		return
	}
	if err := s.service.SaveReadState(r.Context(), chi.URLParam(r, "nodeID"), state); err != nil {
		s.respondError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, state)
}

// handleGetReadNode returns a stored read node configuration.
func (s *Server) handleGetReadNode(w http.ResponseWriter, r *http.Request) {
	state, err := s.service.LoadReadState(r.Context(), chi.URLParam(r, "nodeID"))
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, state)
}

// handleRunReadNode evaluates a stored read node.
func (s *Server) handleRunReadNode(w http.ResponseWriter, r *http.Request) {
	res, err := s.service.RunReadNode(r.Context(), chi.URLParam(r, "nodeID"))
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, newReadResponse(r, res))
}

// handleSaveWriteNode stores the posted write node configuration.
func (s *Server) handleSaveWriteNode(w http.ResponseWriter, r *http.Request) {
	state := core.NewWriteState()
	if err := s.decodeJSON(w, r, &state); err != nil {
		s.respondError(w, r, err)
		return
	}
	if err := s.service.SaveWriteState(r.Context(), chi.URLParam(r, "nodeID"), state); err != nil {
		s.respondError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, state)
}

// handleGetWriteNode returns a stored write node configuration.
func (s *Server) handleGetWriteNode(w http.ResponseWriter, r *http.Request) {
	state, err := s.service.LoadWriteState(r.Context(), chi.URLParam(r, "nodeID"))
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, state)
}

type runWriteRequest struct {
	Tables []namedTable `json:"tables"`
	Sink   string       `json:"sink,omitempty"`
}

// handleRunWriteNode writes the posted tables with a stored write node.
func (s *Server) handleRunWriteNode(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "nodeID")
	var req runWriteRequest
	if err := s.decodeJSON(w, r, &req); err != nil {
		s.respondError(w, r, err)
		return
	}
	sink, err := parseSink(req.Sink)
	if err != nil {
		s.respondError(w, r, err)
		return
	}

	tables := tableSet(req.Tables)
	if sink == SinkFilesystem {
		res, err := s.service.RunWriteNode(r.Context(), id, tables)
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

	state, err := s.service.LoadWriteState(r.Context(), id)
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	ctx := core.ContextWithNodeID(r.Context(), id)
	s.deliver(w, r.WithContext(ctx), sink, state, tables, s.service.WriteNode)
}

// handleDeleteNode removes a stored node configuration of kind.
func (s *Server) handleDeleteNode(kind core.NodeKind) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if err := s.service.DeleteState(r.Context(), kind, chi.URLParam(r, "nodeID")); err != nil {
			s.respondError(w, r, err)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}
}

// handleListNodes lists every stored node configuration.
func (s *Server) handleListNodes(w http.ResponseWriter, r *http.Request) {
	states, err := s.service.ListStates(r.Context())
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	if states == nil {
		states = []core.NodeState{}
	}
	writeJSON(w, http.StatusOK, states)
}

// handleListRuns returns the run history filtered by the node, kind and
// limit query parameters.
func (s *Server) handleListRuns(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	f := core.RunFilter{
		NodeID: q.Get("node"),
		Limit:  parseIntParam(r, "limit", core.DefaultRunLimit),
	}
	if k := q.Get("kind"); k != "" {
		kind, err := core.ParseNodeKind(k)
		if err != nil {
			s.respondError(w, r, errBadRequest("%v", err))
			return
		}
		f.Kind = kind
	}

	runs, err := s.service.Runs(r.Context(), f)
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	if runs == nil {
		runs = []core.RunRecord{}
	}
	writeJSON(w, http.StatusOK, runs)
}

type healthResponse struct {
	Status      string             `json:"status"`
	Evaluations core.LimiterStatus `json:"evaluations"`
}

// handleHealth reports liveness and evaluation slot usage.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, healthResponse{
		Status:      "ok",
		Evaluations: s.service.LimiterStatus(),
	})
}
