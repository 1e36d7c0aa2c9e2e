// Package control exposes a small local HTTP surface for watching and pausing
// an active run from another terminal.
package control

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"transcript-cleaner/internal/runstore"
)

// Target is the slice of the runner the server drives.
type Target interface {
	Pause() bool
	Processing() bool
	Session() string
}

type Server struct {
	Target Target
	Store  *runstore.Store
}

type jobResponse struct {
	Processing bool                   `json:"processing"`
	SessionID  string                 `json:"session_id,omitempty"`
	Job        *runstore.StateSummary `json:"job"`
}

func (s Server) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Use(middleware.RequestID)

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})

	r.Route("/v1", func(r chi.Router) {
		r.Get("/job", s.handleGetJob)
		r.Post("/job/pause", s.handlePause)
	})
	return r
}

func (s Server) handleGetJob(w http.ResponseWriter, r *http.Request) {
	sum, err := s.Store.Summary(r.Context())
	if err != nil {
		writeErr(w, http.StatusServiceUnavailable, err)
		return
	}
	if sum == nil {
		writeErr(w, http.StatusNotFound, errors.New("no job state"))
		return
	}
	writeJSON(w, http.StatusOK, jobResponse{
		Processing: s.Target.Processing(),
		SessionID:  s.Target.Session(),
		Job:        sum,
	})
}

func (s Server) handlePause(w http.ResponseWriter, _ *http.Request) {
	if !s.Target.Pause() {
		writeErr(w, http.StatusConflict, errors.New("no active run"))
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]any{
		"pause_requested": true,
		"session_id":      s.Target.Session(),
	})
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

func writeErr(w http.ResponseWriter, code int, err error) {
	writeJSON(w, code, map[string]any{"error": err.Error()})
}
