// Package status serves the operational HTTP surface: health, metrics, and
// per-session progress.
package status

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	"github.com/lbarthel/tubewatch/internal/logging"
	"github.com/lbarthel/tubewatch/internal/metrics"
)

// ProgressReader answers per-session progress queries.
type ProgressReader interface {
	SessionProgress(ctx context.Context, sessionID string) (map[string]int64, error)
}

// Server is the embedded status listener.
type Server struct {
	log  *zap.Logger
	http *http.Server
}

// New builds a Server on the given port.
func New(log *zap.Logger, port int, progress ProgressReader) *Server {
	log = logging.Named(log, "status")

	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Get("/healthz", handleHealth)
	r.Method(http.MethodGet, "/metrics", metrics.Handler())
	r.Get("/v1/sessions/{sessionID}/progress", handleProgress(log, progress))

	return &Server{
		log: log,
		http: &http.Server{
			Addr:              fmt.Sprintf(":%d", port),
			Handler:           r,
			ReadHeaderTimeout: 5 * time.Second,
		},
	}
}

// Handler exposes the router, used by tests.
func (s *Server) Handler() http.Handler { return s.http.Handler }

// Start serves until Shutdown or a listener error.
func (s *Server) Start() error {
	s.log.Info("status server listening", zap.String("addr", s.http.Addr))
	if err := s.http.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Shutdown drains the listener.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.http.Shutdown(ctx)
}

func handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func handleProgress(log *zap.Logger, progress ProgressReader) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		sessionID := chi.URLParam(r, "sessionID")
		if sessionID == "" {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": "missing session id"})
			return
		}

		counts, err := progress.SessionProgress(r.Context(), sessionID)
		if err != nil {
			log.Warn("progress lookup failed", zap.String("session_id", sessionID), zap.Error(err))
			writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "progress lookup failed"})
			return
		}

		var total int64
		for _, n := range counts {
			total += n
		}
		writeJSON(w, http.StatusOK, map[string]any{
			"session_id": sessionID,
			"keywords":   counts,
			"total":      total,
		})
	}
}

func writeJSON(w http.ResponseWriter, code int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(body)
}
