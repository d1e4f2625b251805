// Package server exposes the HTTP trigger surface: a readiness probe,
// an authenticated run trigger, and an authenticated health endpoint
// backed by the run log.
package server

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/httprate"
	"github.com/rs/zerolog"

	"billsync/internal/logger"
	"billsync/internal/runlog"
	"billsync/internal/runner"
)

// RunFunc executes one full synchronization run.
type RunFunc func(ctx context.Context) (runner.Summary, error)

// Options configures the server.
type Options struct {
	ListenAddr   string
	APISecret    string
	StatusWindow time.Duration

	// Ready reports whether the service has the material it needs to
	// run (credentials, certificates). Nil means always ready.
	Ready func() error
}

// Server is the HTTP trigger surface.
type Server struct {
	run  RunFunc
	rlog *runlog.Log
	opts Options
	log  zerolog.Logger

	// runMu serializes triggered runs; concurrent triggers wait.
	runMu sync.Mutex
}

// New builds a server around the run function and the run log.
func New(run RunFunc, rlog *runlog.Log, opts Options) *Server {
	return &Server{
		run:  run,
		rlog: rlog,
		opts: opts,
		log:  logger.WithComponent("server"),
	}
}

// Router assembles the route tree.
func (s *Server) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(httprate.LimitByIP(30, time.Minute))

	r.Get("/", s.handleReady)

	r.Group(func(r chi.Router) {
		r.Use(s.requireSecret)
		r.Post("/runs", s.handleTrigger)
		r.Get("/status/last-run", s.handleLastRun)
	})

	return r
}

// ListenAndServe blocks serving HTTP until the context is cancelled,
// then shuts down gracefully.
func (s *Server) ListenAndServe(ctx context.Context) error {
	srv := &http.Server{
		Addr:              s.opts.ListenAddr,
		Handler:           s.Router(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errc := make(chan error, 1)
	go func() {
		s.log.Info().Str("addr", s.opts.ListenAddr).Msg("HTTP server listening")
		errc <- srv.ListenAndServe()
	}()

	select {
	case err := <-errc:
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	}
}

// requireSecret accepts the shared secret from the X-API-Key header or
// the secret query parameter.
func (s *Server) requireSecret(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got := r.Header.Get("X-API-Key")
		if got == "" {
			got = r.URL.Query().Get("secret")
		}
		if s.opts.APISecret == "" || got != s.opts.APISecret {
			writeJSON(w, http.StatusUnauthorized, map[string]string{"error": "unauthorized"})
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (s *Server) handleReady(w http.ResponseWriter, r *http.Request) {
	if s.opts.Ready != nil {
		if err := s.opts.Ready(); err != nil {
			writeJSON(w, http.StatusServiceUnavailable, map[string]string{
				"status": "unavailable",
				"error":  err.Error(),
			})
			return
		}
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleTrigger(w http.ResponseWriter, r *http.Request) {
	s.runMu.Lock()
	defer s.runMu.Unlock()

	s.log.Info().Str("remote", r.RemoteAddr).Msg("Run triggered over HTTP")

	// The run is detached from the request context: a client
	// disconnect or proxy timeout must not abort it mid-flight.
	sum, err := s.run(context.WithoutCancel(r.Context()))
	if err != nil {
		s.log.Error().Err(err).Msg("Triggered run failed")
		writeJSON(w, http.StatusInternalServerError, map[string]any{
			"error":   err.Error(),
			"summary": sum,
		})
		return
	}

	if err := s.rlog.Append(time.Now()); err != nil {
		s.log.Warn().Err(err).Msg("Run log append failed")
	}
	writeJSON(w, http.StatusOK, map[string]any{"summary": sum})
}

func (s *Server) handleLastRun(w http.ResponseWriter, r *http.Request) {
	ok, last, err := s.rlog.CompletedWithin(s.opts.StatusWindow, time.Now())
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": err.Error()})
		return
	}

	body := map[string]any{
		"healthy":       ok,
		"window":        s.opts.StatusWindow.String(),
		"last_finished": nil,
	}
	if !last.IsZero() {
		body["last_finished"] = last.UTC().Format(time.RFC3339)
	}

	status := http.StatusOK
	if !ok {
		status = http.StatusServiceUnavailable
	}
	writeJSON(w, status, body)
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}
