package web

import (
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"

	"github.com/goccy/go-json"

	"github.com/JonMunkholm/tableio/internal/plan"
	"github.com/JonMunkholm/tableio/internal/table"
)

// DefaultPreviewRows caps the rows a read response carries unless the
// request asks for another limit.
const DefaultPreviewRows = 100

// parseIntParam parses an integer query parameter with a default value.
func parseIntParam(r *http.Request, name string, defaultVal int) int {
	val := r.URL.Query().Get(name)
	if val == "" {
		return defaultVal
	}
	i, err := strconv.Atoi(val)
	if err != nil || i < 1 {
		return defaultVal
	}
	return i
}

// decodeJSON reads one JSON document from the request body into dst.
// Errors raised by option and state decoders keep their type.
func (s *Server) decodeJSON(w http.ResponseWriter, r *http.Request, dst any) error {
	r.Body = http.MaxBytesReader(w, r.Body, s.cfg.Storage.MaxUploadSize)
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		if errors.Is(err, io.EOF) {
			return errBadRequest("empty body")
		}
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			return err
		}
		return fmt.Errorf("invalid request body: %w", err)
	}
	return nil
}

// namedTable is the wire form of one write input.
type namedTable struct {
	Name  string       `json:"name"`
	Table *table.Table `json:"table"`
}

// tableSet converts wire tables. A blank name becomes the 1-based position.
func tableSet(in []namedTable) plan.TableSet {
	out := make(plan.TableSet, len(in))
	for i, nt := range in {
		name := nt.Name
		if name == "" {
			name = strconv.Itoa(i + 1)
		}
		out[i] = plan.NamedTable{Name: name, Table: nt.Table}
	}
	return out
}

// planResponse carries a plan in both its structured and rendered forms.
type planResponse struct {
	Plan any    `json:"plan"`
	Call string `json:"call"`
}

func newPlanResponse(p fmt.Stringer) planResponse {
	if p == nil {
		p = plan.EmptyPlan{}
	}
	return planResponse{Plan: p, Call: p.String()}
}
