package web

import (
	"net/http"
	"time"

	"github.com/a-h/templ"

	"github.com/JonMunkholm/erpserver/internal/agent"
	"github.com/JonMunkholm/erpserver/internal/lifecycle"
)

// Status is a point-in-time view of the running server.
type Status struct {
	BootID           string                 `json:"boot_id"`
	Version          string                 `json:"version"`
	Started          time.Time              `json:"started"`
	ShutdownRequests int64                  `json:"shutdown_requests"`
	Running          bool                   `json:"running"`
	Databases        []string               `json:"databases"`
	Services         []string               `json:"services"`
	Workers          []lifecycle.WorkerInfo `json:"workers"`
	Jobs             []agent.JobInfo        `json:"jobs"`
}

// StatusSource reports the current status.
type StatusSource interface {
	Status() Status
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	if !s.status.Status().Running {
		w.WriteHeader(http.StatusServiceUnavailable)
		w.Write([]byte("shutting down\n"))
		return
	}
	w.Write([]byte("ok\n"))
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	st := s.status.Status()
	if st.Databases == nil {
		st.Databases = []string{}
	}
	if st.Workers == nil {
		st.Workers = []lifecycle.WorkerInfo{}
	}
	if st.Jobs == nil {
		st.Jobs = []agent.JobInfo{}
	}
	writeJSON(w, r, st)
}

func (s *Server) handleIndex(w http.ResponseWriter, r *http.Request) {
	templ.Handler(statusPage(s.status.Status(), time.Now())).ServeHTTP(w, r)
}
