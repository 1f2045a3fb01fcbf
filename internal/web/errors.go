package web

// errors.go provides unified error response handling for the web layer.
//
// It ensures all errors are:
//   - Logged with full technical details for debugging (server-side)
//   - Returned to clients as user-friendly messages with action suggestions
//   - Formatted as JSON, or as an HTML fragment for HTMX requests
//
// The error flow:
//  1. Handler encounters an error
//  2. Calls respondError(w, r, err)
//  3. Error is mapped via core.MapError to get user-friendly message
//  4. Status code is derived from the message code
//  5. Technical error + context is logged with request ID for correlation

import (
	"fmt"
	"net/http"
	"strings"

	"github.com/goccy/go-json"

	"github.com/JonMunkholm/tableio/internal/core"
	"github.com/JonMunkholm/tableio/internal/logging"
	"github.com/JonMunkholm/tableio/internal/web/templates"
)

// ErrorResponse represents the JSON structure for API error responses.
// Includes both machine-readable (Code) and human-readable (Message, Action) fields.
type ErrorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message"`
	Action  string `json:"action,omitempty"`
	Code    string `json:"code"`
}

// errBadRequest marks malformed input the handler rejects before calling the
// service. Its text matches the REQ004 pattern.
func errBadRequest(format string, args ...any) error {
	return fmt.Errorf("invalid request body: "+format, args...)
}

// statusFor derives the HTTP status from a user message code.
func statusFor(code string) int {
	switch code {
	case "REQ001", "FILE002", "FILE004":
		return http.StatusNotFound
	case "FILE005":
		return http.StatusForbidden
	case "REQ003":
		return http.StatusGatewayTimeout
	case "REQ005", "SRC003":
		return http.StatusRequestEntityTooLarge
	case "SRC002":
		return http.StatusBadGateway
	case "EVAL001":
		return http.StatusServiceUnavailable
	case "RATE001":
		return http.StatusTooManyRequests
	case "WRT001":
		return http.StatusInternalServerError
	case "ERR000":
		return http.StatusInternalServerError
	}
	if strings.HasPrefix(code, "FMT") || strings.HasPrefix(code, "CMB") {
		return http.StatusUnprocessableEntity
	}
	return http.StatusBadRequest
}

// respondError handles error responses with user-friendly messages.
// It logs the technical error server-side and returns JSON or, for HTMX
// requests, an HTML alert fragment.
func (s *Server) respondError(w http.ResponseWriter, r *http.Request, err error) {
	userMsg := core.MapError(err)
	statusCode := statusFor(userMsg.Code)

	logger := logging.FromContext(r.Context())
	args := []any{
		"path", r.URL.Path,
		"method", r.Method,
		"status", statusCode,
		"error", err.Error(),
		"code", userMsg.Code,
	}
	if statusCode >= 500 {
		logger.Error("request error", args...)
	} else {
		logger.Warn("request error", args...)
	}

	if isHTMX(r) {
		renderErrorPartial(w, r, userMsg, statusCode)
		return
	}
	respondErrorJSON(w, err, userMsg, statusCode)
}

// respondErrorJSON writes a JSON error response. The technical text is only
// exposed for user-facing codes; ERR000 keeps it server-side.
func respondErrorJSON(w http.ResponseWriter, err error, msg core.UserMessage, statusCode int) {
	detail := msg.Message
	if core.IsUserFacing(err) {
		detail = err.Error()
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	json.NewEncoder(w).Encode(ErrorResponse{
		Error:   detail,
		Message: msg.Message,
		Action:  msg.Action,
		Code:    msg.Code,
	})
}

// renderErrorPartial renders an HTMX-compatible error fragment.
func renderErrorPartial(w http.ResponseWriter, r *http.Request, msg core.UserMessage, statusCode int) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	// HTMX ignores non-2xx bodies unless told where to swap them
	w.Header().Set("HX-Retarget", "#errors")
	w.Header().Set("HX-Reswap", "innerHTML")
	w.WriteHeader(statusCode)

	if err := templates.ErrorAlert(msg.Message, msg.Action, msg.Code).Render(r.Context(), w); err != nil {
		logging.FromContext(r.Context()).Error("render error partial", "error", err)
	}
}

// isHTMX checks if the request is an HTMX request.
func isHTMX(r *http.Request) bool {
	return r.Header.Get("HX-Request") == "true"
}
