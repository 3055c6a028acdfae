package server

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/kebairia/invbackup/internal/backuplog"
	"github.com/kebairia/invbackup/internal/logger"
	"github.com/kebairia/invbackup/internal/operations"
)

// Engine is the part of operations.Engine the API uses.
type Engine interface {
	Run(ctx context.Context, kind backuplog.Kind, dbPath string) operations.Result
	Restore(ctx context.Context, artifactPath, dbPath string) operations.Result
	ReadLog() ([]backuplog.Event, error)
	Event(index int) (backuplog.Event, error)
	LastBackupTime() (time.Time, bool, error)
	LastFullBackupTime() (time.Time, bool, error)
}

// Server exposes the backup engine over HTTP.
type Server struct {
	engine         Engine
	dbPath         string
	log            logger.Logger
	onRestore      func(operations.Result)
	requestTimeout time.Duration
}

// DefaultRequestTimeout bounds a single API request.
const DefaultRequestTimeout = 5 * time.Minute

// Option configures a Server.
type Option func(*Server)

// WithLogger sets the server logger.
func WithLogger(log logger.Logger) Option {
	return func(s *Server) {
		if log != nil {
			s.log = log
		}
	}
}

// WithRequestTimeout bounds how long a request may run.
func WithRequestTimeout(d time.Duration) Option {
	return func(s *Server) {
		if d > 0 {
			s.requestTimeout = d
		}
	}
}

// OnRestore registers a callback run after a successful restore has been
// answered, so the host can tell the application to reopen the database.
func OnRestore(fn func(operations.Result)) Option {
	return func(s *Server) {
		s.onRestore = fn
	}
}

// New returns a Server operating on the database at dbPath.
func New(engine Engine, dbPath string, opts ...Option) *Server {
	s := &Server{
		engine:         engine,
		dbPath:         dbPath,
		log:            logger.Nop(),
		requestTimeout: DefaultRequestTimeout,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Handler returns the API router.
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(s.requestTimeout))

	r.Route("/api", func(r chi.Router) {
		r.Get("/health", s.handleHealth())
		r.Get("/backups", s.handleListBackups())
		r.Post("/backups/{kind}", s.handleBackup())
		r.Post("/restore/{index}", s.handleRestore())
	})
	return r
}

// listedEvent is a log entry with the index used to restore it.
type listedEvent struct {
	Index     int                 `json:"index"`
	Kind      backuplog.Kind      `json:"kind"`
	Timestamp backuplog.Timestamp `json:"timestamp"`
	Filename  string              `json:"filename"`
	Path      string              `json:"path"`
	Valid     bool                `json:"valid"`
}

// health reports liveness and the backup times used as change baselines.
type health struct {
	Status         string     `json:"status"`
	LastBackup     *time.Time `json:"lastBackup,omitempty"`
	LastFullBackup *time.Time `json:"lastFullBackup,omitempty"`
}

func (s *Server) handleHealth() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		out := health{Status: "ok"}
		if t, ok, err := s.engine.LastBackupTime(); err != nil {
			s.writeError(w, http.StatusInternalServerError, err.Error())
			return
		} else if ok {
			out.LastBackup = &t
		}
		if t, ok, err := s.engine.LastFullBackupTime(); err != nil {
			s.writeError(w, http.StatusInternalServerError, err.Error())
			return
		} else if ok {
			out.LastFullBackup = &t
		}
		s.writeJSON(w, http.StatusOK, out)
	}
}

func (s *Server) handleListBackups() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		events, err := s.engine.ReadLog()
		if err != nil {
			s.writeError(w, http.StatusInternalServerError, err.Error())
			return
		}
		out := make([]listedEvent, 0, len(events))
		for i, ev := range events {
			out = append(out, listedEvent{Index: i, Event: ev})
		}
		s.writeJSON(w, http.StatusOK, out)
	}
}

func (s *Server) handleBackup() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		kind, err := backuplog.ParseKind(chi.URLParam(r, "kind"))
		if err != nil {
			s.writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		res := s.engine.Run(r.Context(), kind, s.dbPath)
		s.log.Info("backup requested",
			"kind", kind,
			"status", res.Status,
			"request_id", middleware.GetReqID(r.Context()),
		)
		s.writeJSON(w, statusCode(res), res)
	}
}

func (s *Server) handleRestore() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		index, err := strconv.Atoi(chi.URLParam(r, "index"))
		if err != nil {
			s.writeError(w, http.StatusBadRequest, "invalid backup index")
			return
		}
		ev, err := s.engine.Event(index)
		if err != nil {
			code := http.StatusInternalServerError
			if errors.Is(err, operations.ErrEventNotFound) {
				code = http.StatusNotFound
			}
			s.writeError(w, code, err.Error())
			return
		}

		res := s.engine.Restore(r.Context(), ev.Path, s.dbPath)
		s.log.Info("restore requested",
			"index", index,
			"source", ev.Path,
			"status", res.Status,
			"request_id", middleware.GetReqID(r.Context()),
		)
		s.writeJSON(w, statusCode(res), res)

		if res.Success && s.onRestore != nil {
			if f, ok := w.(http.Flusher); ok {
				f.Flush()
			}
			s.onRestore(res)
		}
	}
}

func statusCode(res operations.Result) int {
	switch {
	case res.Success && res.Event != nil:
		return http.StatusCreated
	case res.Success, res.Declined():
		return http.StatusOK
	case errors.Is(res.Err, operations.ErrSourceMissing),
		errors.Is(res.Err, operations.ErrArtifactMissing):
		return http.StatusNotFound
	}
	return http.StatusInternalServerError
}

func (s *Server) writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.log.Warn("write response failed", "status", code, "error", err.Error())
	}
}

func (s *Server) writeError(w http.ResponseWriter, code int, msg string) {
	s.writeJSON(w, code, map[string]string{"error": msg})
}
