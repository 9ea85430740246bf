// Package httpapi exposes the gateway over HTTP: a single-shot JSON query
// endpoint, a live protocol-event stream, session management and file upload.
package httpapi

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"time"

	"github.com/go-logr/logr"
	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	apperrors "github.com/agentgate-dev/agentgate/pkg/gateway/errors"
	"github.com/agentgate-dev/agentgate/pkg/gateway/query"
	"github.com/agentgate-dev/agentgate/pkg/gateway/transcript"
	"github.com/agentgate-dev/agentgate/pkg/gateway/workspace"
)

const maxUploadBytes = 64 << 20

// Server holds the gateway's HTTP surface.
type Server struct {
	orchestrator *query.Orchestrator
	workspaces   workspace.Manager
	store        *transcript.Store
	log          logr.Logger
	router       *mux.Router
}

// NewServer wires the handlers onto a router. store may be nil to disable the
// session endpoints.
func NewServer(
	orchestrator *query.Orchestrator,
	workspaces workspace.Manager,
	store *transcript.Store,
	log logr.Logger,
) *Server {
	s := &Server{
		orchestrator: orchestrator,
		workspaces:   workspaces,
		store:        store,
		log:          log.WithName("http"),
		router:       mux.NewRouter(),
	}
	s.setupRoutes()
	return s
}

// Handler returns the root handler.
func (s *Server) Handler() http.Handler {
	return s.router
}

func (s *Server) setupRoutes() {
	s.router.HandleFunc("/health", s.handleHealth).Methods("GET")
	s.router.Handle("/metrics", promhttp.Handler()).Methods("GET")

	s.router.HandleFunc("/api/query", s.handleQuery).Methods("POST")
	s.router.HandleFunc("/api/query/stream", s.handleQueryStream).Methods("POST")

	s.router.HandleFunc("/api/sessions", s.handleListSessions).Methods("GET")
	s.router.HandleFunc("/api/sessions/{id}/events", s.handleGetEvents).Methods("GET")
	s.router.HandleFunc("/api/sessions/{id}", s.handleDeleteSession).Methods("DELETE")
	s.router.HandleFunc("/api/sessions/{id}/files", s.handleUploadFiles).Methods("POST")
	s.router.HandleFunc("/api/sessions/{id}/execute", s.handleExecute).Methods("POST")
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "healthy"})
}

func (s *Server) handleQuery(w http.ResponseWriter, r *http.Request) {
	var req query.Request
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, apperrors.New(apperrors.ErrCodeInvalidRequest, "invalid request body", err))
		return
	}

	result, err := s.orchestrator.Run(r.Context(), req)
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

func (s *Server) handleListSessions(w http.ResponseWriter, r *http.Request) {
	if s.store == nil {
		s.writeError(w, apperrors.New(apperrors.ErrCodeUnsupported, "transcript store disabled", nil))
		return
	}
	sessions, err := s.store.ListSessions(r.Context())
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, sessions)
}

func (s *Server) handleGetEvents(w http.ResponseWriter, r *http.Request) {
	if s.store == nil {
		s.writeError(w, apperrors.New(apperrors.ErrCodeUnsupported, "transcript store disabled", nil))
		return
	}
	sessionID := mux.Vars(r)["id"]
	events, err := s.store.GetEvents(r.Context(), sessionID)
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, events)
}

// handleDeleteSession performs whole-session deletion: the workspace is
// destroyed and the transcript removed.
func (s *Server) handleDeleteSession(w http.ResponseWriter, r *http.Request) {
	sessionID := mux.Vars(r)["id"]

	if err := s.workspaces.Destroy(r.Context(), sessionID); err != nil {
		s.writeError(w, err)
		return
	}
	if s.store != nil {
		if err := s.store.DeleteSession(r.Context(), sessionID); err != nil {
			s.writeError(w, err)
			return
		}
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleUploadFiles(w http.ResponseWriter, r *http.Request) {
	sessionID := mux.Vars(r)["id"]

	if err := r.ParseMultipartForm(maxUploadBytes); err != nil {
		s.writeError(w, apperrors.New(apperrors.ErrCodeInvalidRequest, "invalid multipart body", err))
		return
	}

	workspaceID, ok := s.workspaces.Lookup(sessionID)
	if !ok {
		workspaceID = sessionID
	}

	var uploads []workspace.Upload
	for _, headers := range r.MultipartForm.File {
		for _, header := range headers {
			f, err := header.Open()
			if err != nil {
				s.writeError(w, apperrors.New(apperrors.ErrCodeFileOperation, "failed to open upload", err))
				return
			}
			data, err := io.ReadAll(f)
			f.Close()
			if err != nil {
				s.writeError(w, apperrors.New(apperrors.ErrCodeFileOperation, "failed to read upload", err))
				return
			}
			uploads = append(uploads, workspace.Upload{Name: header.Filename, Data: data})
		}
	}

	ingested, err := s.workspaces.IngestFiles(r.Context(), workspaceID, uploads)
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, ingested)
}

func (s *Server) handleExecute(w http.ResponseWriter, r *http.Request) {
	executor, ok := s.workspaces.(workspace.Executor)
	if !ok {
		s.writeError(w, apperrors.New(apperrors.ErrCodeUnsupported,
			"execution is only available with the remote strategy", nil))
		return
	}

	sessionID := mux.Vars(r)["id"]
	var req workspace.ExecRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, apperrors.New(apperrors.ErrCodeInvalidRequest, "invalid request body", err))
		return
	}

	result, err := executor.Execute(r.Context(), sessionID, req)
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

// NewHTTPServer wraps the handler into an http.Server with sane timeouts.
// The stream endpoint needs an unlimited write window, so WriteTimeout stays
// zero; reads are still bounded.
func NewHTTPServer(addr string, handler http.Handler) *http.Server {
	return &http.Server{
		Addr:              addr,
		Handler:           handler,
		ReadHeaderTimeout: 15 * time.Second,
		IdleTimeout:       60 * time.Second,
	}
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

type errorPayload struct {
	Error struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

func (s *Server) writeError(w http.ResponseWriter, err error) {
	var payload errorPayload
	status := http.StatusInternalServerError

	var appErr *apperrors.AppError
	if errors.As(err, &appErr) {
		payload.Error.Code = appErr.Code
		payload.Error.Message = appErr.Message
		switch appErr.Code {
		case apperrors.ErrCodeInvalidRequest:
			status = http.StatusBadRequest
		case apperrors.ErrCodeUnsupported:
			status = http.StatusNotImplemented
		}
	} else {
		payload.Error.Code = "INTERNAL"
		payload.Error.Message = err.Error()
	}

	s.log.Error(err, "request failed", "code", payload.Error.Code)
	writeJSON(w, status, payload)
}
