// Package monitor exposes the pipeline's live state over HTTP for operator
// UIs and debugging.
package monitor

import (
	"encoding/json"
	"log"
	"net/http"
	"time"

	"github.com/gorilla/mux"

	"github.com/scanforge/captureguide/internal/fiducial"
	"github.com/scanforge/captureguide/internal/pipeline"
)

// Server serves pipeline snapshots and session controls. All reads come
// from published snapshots, so handlers never block the analysis worker.
type Server struct {
	p *pipeline.Pipeline
}

func NewServer(p *pipeline.Pipeline) *Server {
	return &Server{p: p}
}

// Router builds the HTTP routing table.
func (s *Server) Router() *mux.Router {
	r := mux.NewRouter()
	r.Use(loggingMiddleware)

	r.HandleFunc("/api/health", s.health).Methods("GET")
	r.HandleFunc("/api/quality", s.latestQuality).Methods("GET")
	r.HandleFunc("/api/markers", s.latestMarkers).Methods("GET")
	r.HandleFunc("/api/guidance", s.liveGuidance).Methods("GET")
	r.HandleFunc("/api/manifest", s.manifest).Methods("GET")
	r.HandleFunc("/api/stats", s.stats).Methods("GET")
	r.HandleFunc("/api/capture", s.commitCapture).Methods("POST")
	r.HandleFunc("/api/session/reset", s.resetSession).Methods("POST")
	r.HandleFunc("/api/markers/required", s.setRequired).Methods("POST")
	r.HandleFunc("/api/markers/mode", s.setMode).Methods("POST")
	return r
}

func loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		next.ServeHTTP(w, r)
		log.Printf("%s %s (%s)", r.Method, r.URL.Path, time.Since(start))
	})
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Printf("monitor: write response: %v", err)
	}
}

func (s *Server) writeJSONError(w http.ResponseWriter, status int, msg string) {
	s.writeJSON(w, status, map[string]string{"error": msg})
}

func (s *Server) health(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, map[string]string{
		"status":  "ok",
		"session": s.p.Tracker().SessionID(),
	})
}

func (s *Server) latestQuality(w http.ResponseWriter, r *http.Request) {
	res := s.p.Analyzer().Latest()
	if res == nil {
		s.writeJSONError(w, http.StatusNotFound, "no quality result yet")
		return
	}
	s.writeJSON(w, http.StatusOK, res)
}

func (s *Server) latestMarkers(w http.ResponseWriter, r *http.Request) {
	st := s.p.Adapter().Latest()
	if st == nil {
		s.writeJSONError(w, http.StatusNotFound, "no marker status yet")
		return
	}
	s.writeJSON(w, http.StatusOK, st)
}

func (s *Server) liveGuidance(w http.ResponseWriter, r *http.Request) {
	enough, reasons := s.p.Tracker().Enough()
	if reasons == nil {
		reasons = []string{}
	}
	s.writeJSON(w, http.StatusOK, map[string]any{
		"guidance": s.p.LiveGuidance(),
		"phase":    string(s.p.Tracker().CurrentPhase()),
		"enough":   enough,
		"reasons":  reasons,
	})
}

func (s *Server) manifest(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, s.p.Tracker().BuildManifestSummary())
}

func (s *Server) stats(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, s.p.Stats())
}

func (s *Server) commitCapture(w http.ResponseWriter, r *http.Request) {
	sidecar, good := s.p.CommitCapture()
	if sidecar == nil {
		s.writeJSONError(w, http.StatusConflict, "no analyzed frame to commit")
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]any{
		"good":    good,
		"sidecar": sidecar,
	})
}

func (s *Server) resetSession(w http.ResponseWriter, r *http.Request) {
	s.p.ResetSession()
	s.writeJSON(w, http.StatusOK, map[string]string{
		"session": s.p.Tracker().SessionID(),
	})
}

func (s *Server) setRequired(w http.ResponseWriter, r *http.Request) {
	var req struct {
		IDs []int64 `json:"ids"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeJSONError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	s.p.SetRequiredIdentities(req.IDs)
	s.writeJSON(w, http.StatusOK, map[string]any{"required": req.IDs})
}

func (s *Server) setMode(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Mode string `json:"mode"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeJSONError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	switch fiducial.Mode(req.Mode) {
	case fiducial.ModeOff, fiducial.ModeWarn, fiducial.ModeBlock:
		s.p.Adapter().SetMode(fiducial.Mode(req.Mode))
	default:
		s.writeJSONError(w, http.StatusBadRequest, "unknown mode: "+req.Mode)
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]string{"mode": req.Mode})
}
