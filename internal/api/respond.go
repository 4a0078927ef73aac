package api

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/apper-canvas/linguaflow-1080p-card/internal/catalog"
	"github.com/apper-canvas/linguaflow-1080p-card/internal/chat"
	"github.com/apper-canvas/linguaflow-1080p-card/internal/store"
)

// maxBodyBytes caps request bodies.
const maxBodyBytes = 64 << 10

// errorBody is the JSON shape of every error response. Text carries the
// learner input back after a failed send so the client can restore it.
type errorBody struct {
	Error string `json:"error"`
	Text  string `json:"text,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Warn("api: encode response", "err", err)
	}
}

func decodeJSON(r *http.Request, v any) error {
	dec := json.NewDecoder(http.MaxBytesReader(nil, r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	return dec.Decode(v)
}

// pathID parses the {id} URL parameter.
func pathID(r *http.Request) (int, bool) {
	id, err := strconv.Atoi(chi.URLParam(r, "id"))
	if err != nil || id <= 0 {
		return 0, false
	}
	return id, true
}

// respondError maps domain errors onto HTTP status codes.
func respondError(w http.ResponseWriter, r *http.Request, err error) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, chat.ErrNotFound):
		status = http.StatusNotFound
	case errors.Is(err, chat.ErrBusy), errors.Is(err, chat.ErrNotPending):
		status = http.StatusConflict
	case errors.Is(err, catalog.ErrInvalidSelection):
		status = http.StatusBadRequest
	case errors.Is(err, store.ErrTransient):
		status = http.StatusServiceUnavailable
	}

	body := errorBody{Error: err.Error()}
	var se *chat.SendError
	if errors.As(err, &se) {
		body.Text = se.Text
		if status == http.StatusInternalServerError {
			status = http.StatusBadGateway
		}
	}
	if status >= http.StatusInternalServerError {
		slog.WarnContext(r.Context(), "api: request failed",
			"method", r.Method,
			"path", r.URL.Path,
			"status", status,
			"err", err,
		)
	}
	writeJSON(w, status, body)
}

func badRequest(w http.ResponseWriter, msg string) {
	writeJSON(w, http.StatusBadRequest, errorBody{Error: msg})
}
