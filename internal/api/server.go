// Package api exposes batches over HTTP: start a batch, poll its snapshot or
// follow it over a WebSocket.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"net"
	"net/http"
	"time"

	"github.com/rs/zerolog"

	"github.com/shii9/reconkit/internal/probe"
	"github.com/shii9/reconkit/internal/ratelimit"
	"github.com/shii9/reconkit/internal/recon"
	"github.com/shii9/reconkit/internal/target"
)

const (
	shutdownTimeout = 10 * time.Second
	pruneInterval   = time.Minute
	maxBodyBytes    = 4 << 20
)

type Server struct {
	runner  *recon.Runner
	limiter *ratelimit.Store
	logger  zerolog.Logger

	streamBuffer int
}

func New(runner *recon.Runner, limiter *ratelimit.Store, log zerolog.Logger) *Server {
	return &Server{
		runner:  runner,
		limiter: limiter,
		logger:  log.With().Str("component", "api").Logger(),

		streamBuffer: defaultStreamBuffer,
	}
}

// Routes registers all HTTP routes.
func (s *Server) Routes() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /api/batches", s.handleStart)
	mux.HandleFunc("GET /api/batches/current", s.handleCurrent)
	mux.HandleFunc("GET /api/batches/current/stream", s.handleStream)
	mux.HandleFunc("GET /api/probes", s.handleProbes)
	return s.logRequests(s.rateLimit(mux))
}

// ListenAndServe serves until ctx is canceled, then drains in-flight requests.
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.Routes(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	go s.pruneLimiter(ctx)

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info().Str("addr", addr).Msg("API listening")
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	s.runner.Cancel()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return err
	}
	return nil
}

func (s *Server) pruneLimiter(ctx context.Context) {
	ticker := time.NewTicker(pruneInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if n := s.limiter.Prune(5 * pruneInterval); n > 0 {
				s.logger.Debug().Int("pruned", n).Msg("Pruned idle rate limit buckets")
			}
		}
	}
}

// rateLimit rejects clients that exhausted their bucket with 429.
func (s *Server) rateLimit(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		key := clientKey(r)
		if !s.limiter.Allow(key) {
			s.logger.Warn().Str("client", key).Str("path", r.URL.Path).Msg("Rate limited")
			w.Header().Set("Retry-After", "1")
			writeError(w, ratelimit.ErrRateLimited.Error(), http.StatusTooManyRequests)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (s *Server) logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		next.ServeHTTP(w, r)
		s.logger.Info().
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Str("remote_addr", r.RemoteAddr).
			Dur("elapsed", time.Since(start)).
			Msg("Request")
	})
}

func clientKey(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

type startRequest struct {
	Kind        string  `json:"kind"`
	Input       string  `json:"input"`
	Concurrency int     `json:"concurrency"`
	TimeoutMs   int     `json:"timeout_ms"`
	Ports       string  `json:"ports"`
	Rate        float64 `json:"rate"`
	Exclusive   bool    `json:"exclusive"`
}

type startResponse struct {
	ID         string `json:"id"`
	Generation uint64 `json:"generation"`
	Total      int    `json:"total"`
}

func (s *Server) handleStart(w http.ResponseWriter, r *http.Request) {
	var req startRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes)).Decode(&req); err != nil {
		writeError(w, "bad request", http.StatusBadRequest)
		return
	}

	kind := probe.ParseKind(req.Kind)
	h, err := s.runner.Start(context.WithoutCancel(r.Context()), recon.Request{
		Kind:        kind,
		Input:       req.Input,
		Ports:       req.Ports,
		Concurrency: req.Concurrency,
		Timeout:     time.Duration(req.TimeoutMs) * time.Millisecond,
		RateLimit:   req.Rate,
		Exclusive:   req.Exclusive,
	})
	switch {
	case errors.Is(err, recon.ErrBatchRunning):
		writeError(w, err.Error(), http.StatusConflict)
		return
	case errors.Is(err, probe.ErrUnknownKind),
		errors.Is(err, recon.ErrInvalidInput),
		errors.Is(err, target.ErrInvalidPortRange):
		writeError(w, err.Error(), http.StatusBadRequest)
		return
	case err != nil:
		s.logger.Error().Err(err).Msg("Failed to start batch")
		writeError(w, "internal error", http.StatusInternalServerError)
		return
	}

	s.logger.Info().Str("batch", h.ID).Uint64("generation", h.Generation).
		Str("kind", string(kind)).Int("targets", h.Total).Msg("Batch accepted")
	writeJSON(w, http.StatusAccepted, startResponse{ID: h.ID, Generation: h.Generation, Total: h.Total})
}

func (s *Server) handleCurrent(w http.ResponseWriter, _ *http.Request) {
	state := s.runner.Tracker().Snapshot()
	if state.ID == "" {
		writeError(w, "no batch", http.StatusNotFound)
		return
	}
	writeJSON(w, http.StatusOK, state)
}

type probeInfo struct {
	Kind      probe.Kind `json:"kind"`
	Shape     string     `json:"shape"`
	Port      int        `json:"port,omitempty"`
	TimeoutMs int64      `json:"timeout_ms"`
}

func (s *Server) handleProbes(w http.ResponseWriter, _ *http.Request) {
	reg := s.runner.Registry()
	kinds := reg.Kinds()
	out := make([]probeInfo, 0, len(kinds))
	for _, k := range kinds {
		p, err := reg.Get(k)
		if err != nil {
			continue
		}
		d := p.Defaults()
		out = append(out, probeInfo{
			Kind:      k,
			Shape:     k.Shape().String(),
			Port:      d.Port,
			TimeoutMs: d.Timeout.Milliseconds(),
		})
	}
	writeJSON(w, http.StatusOK, out)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, msg string, status int) {
	writeJSON(w, status, map[string]string{"error": msg})
}
