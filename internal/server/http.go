package server

import (
	"database/sql"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/alfredjeanlab/charters/internal/charter"
	"github.com/alfredjeanlab/charters/internal/model"
)

// NewHTTPHandler returns an http.Handler with all routes registered.
// When authToken is non-empty, requests (except GET /v1/health) must include
// a valid Authorization: Bearer <token> header.
func (s *CharterServer) NewHTTPHandler(authToken string) http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /v1/health", s.handleHealth)
	mux.HandleFunc("GET /v1/sections", s.handleListSectionNames)
	mux.HandleFunc("POST /v1/charters", s.handleCreateCharter)
	mux.HandleFunc("GET /v1/charters", s.handleListCharters)
	mux.HandleFunc("GET /v1/charters/{id}", s.handleGetCharter)
	mux.HandleFunc("PUT /v1/charters/{id}", s.handleUpdateCharter)
	mux.HandleFunc("GET /v1/charters/{id}/sections", s.handleListSections)
	mux.HandleFunc("GET /v1/charters/{id}/sections/{name}", s.handleGetSection)
	mux.HandleFunc("GET /v1/charters/{id}/versions", s.handleListVersions)
	mux.HandleFunc("GET /v1/charters/{id}/versions/{version}", s.handleGetVersion)
	mux.HandleFunc("GET /v1/charters/{id}/editors", s.handleListEditors)
	mux.HandleFunc("GET /v1/charters/{id}/events", s.handleGetEvents)
	mux.HandleFunc("GET /v1/events/stream", s.handleEventStream)
	if s.Metrics != nil {
		mux.Handle("GET /metrics", s.Metrics.Handler())
	}
	return AuthMiddleware(authToken, mux)
}

// handleHealth handles GET /v1/health.
func (s *CharterServer) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// writeJSON writes a JSON response with the given status code.
func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

// writeError writes a JSON error response.
func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}

// fieldError is the wire form of model.FieldError.
type fieldError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

// errorBody is the response for a failed charter write.
type errorBody struct {
	Error     string       `json:"error"`
	Message   string       `json:"message"`
	Retryable bool         `json:"retryable,omitempty"`
	Fields    []fieldError `json:"fields,omitempty"`
}

// writeCharterError maps a coordinator error onto an HTTP status.
func writeCharterError(w http.ResponseWriter, err error) {
	var ce *charter.Error
	if !errors.As(err, &ce) {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	status := http.StatusInternalServerError
	switch ce.Kind {
	case charter.KindValidation, charter.KindInvalidSection:
		status = http.StatusBadRequest
	case charter.KindNotFound:
		status = http.StatusNotFound
	case charter.KindConflict:
		status = http.StatusConflict
	case charter.KindPersistence:
		status = http.StatusServiceUnavailable
	}

	body := errorBody{
		Error:     string(ce.Kind),
		Message:   ce.Error(),
		Retryable: charter.IsRetryable(err),
	}
	var ve *model.ValidationError
	if errors.As(err, &ve) {
		for _, fe := range ve.Errors {
			body.Fields = append(body.Fields, fieldError{Field: fe.Field, Message: fe.Message})
		}
	}
	writeJSON(w, status, body)
}

// writeStoreError handles read-path errors: missing rows become 404.
func writeStoreError(w http.ResponseWriter, err error, what string) {
	if errors.Is(err, sql.ErrNoRows) {
		writeError(w, http.StatusNotFound, what+" not found")
		return
	}
	writeError(w, http.StatusInternalServerError, err.Error())
}
