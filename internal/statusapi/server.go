// Package statusapi provides the read-only HTTP introspection surface
// for a running SWIM engine: liveness, current membership, transition
// history, and Prometheus metrics. It never accepts a write that could
// affect membership; join/leave happen only through the wire protocol.
package statusapi

import (
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/zbo14/floaty/internal/infra/journal"
	"github.com/zbo14/floaty/internal/swim"
)

// Server is the status HTTP API.
type Server struct {
	engine  *swim.Engine
	journal *journal.Journal // optional; History returns 404 if nil
}

// NewServer creates a status API bound to engine. journal may be nil,
// in which case /history/{id} reports not found rather than panicking.
func NewServer(engine *swim.Engine, j *journal.Journal) *Server {
	return &Server{engine: engine, journal: j}
}

// Handler returns the chi router with all routes mounted.
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(10 * time.Second))

	r.Get("/healthz", s.handleHealthz)
	r.Get("/members", s.handleMembers)
	r.Get("/history/{id}", s.handleHistory)
	r.Handle("/metrics", promhttp.Handler())

	return r
}

func (s *Server) handleHealthz(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// member mirrors swim.Update but with a JSON-friendly status string
// instead of relying on the wire-format status marshaling.
type member struct {
	ID       int    `json:"id"`
	Status   string `json:"status"`
	Sequence int    `json:"sequence"`
	Host     string `json:"host,omitempty"`
	Port     int    `json:"port,omitempty"`
}

func (s *Server) handleMembers(w http.ResponseWriter, r *http.Request) {
	updates := s.engine.Members()
	members := make([]member, len(updates))
	for i, u := range updates {
		members[i] = member{
			ID:       u.ID,
			Status:   u.Status.String(),
			Sequence: u.Sequence,
			Host:     u.Host,
			Port:     u.Port,
		}
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"members": members})
}

func (s *Server) handleHistory(w http.ResponseWriter, r *http.Request) {
	if s.journal == nil {
		writeError(w, http.StatusNotFound, "no journal configured")
		return
	}
	id, err := strconv.Atoi(chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid peer id")
		return
	}
	limit := 50
	if raw := r.URL.Query().Get("limit"); raw != "" {
		if n, err := strconv.Atoi(raw); err == nil && n > 0 {
			limit = n
		}
	}
	hist, err := s.journal.History(id, limit)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"transitions": hist})
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
