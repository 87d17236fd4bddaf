// Package dashboard serves the clearance client's live status over HTTP.
//
// It exposes:
//   - GET /metrics             – Prometheus exposition of the challenge counters
//   - GET /api/metrics/stream  – SSE stream of counter snapshots
//   - GET /api/config          – effective configuration (JSON, proxy redacted)
//   - GET /healthz             – liveness probe
//
// CORS is open so a browser page on another port can use EventSource
// against the stream.
package dashboard

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"time"

	"github.com/firasghr/GoClearance/config"
	"github.com/firasghr/GoClearance/logger"
	"github.com/firasghr/GoClearance/metrics"
)

// DefaultTick is the interval between two SSE snapshots.
const DefaultTick = time.Second

// MetricsSnapshot is the JSON payload pushed to stream subscribers.
type MetricsSnapshot struct {
	Timestamp   int64   `json:"timestamp"`
	Total       uint64  `json:"total"`
	Passthrough uint64  `json:"passthrough"`
	Solved      uint64  `json:"solved"`
	Unsupported uint64  `json:"unsupported"`
	Failed      uint64  `json:"failed"`
	RPS         float64 `json:"rps"`
}

// Server provides the status endpoints.
type Server struct {
	metrics *metrics.Metrics
	cfg     config.Config
	log     *logger.Logger
	tick    time.Duration
	mux     *http.ServeMux
}

// New creates a Server for m, which must not be nil.  cfg is copied, so later changes to it are not
// reflected.  log may be nil.
func New(m *metrics.Metrics, cfg *config.Config, log *logger.Logger) *Server {
	s := &Server{
		metrics: m,
		log:     log,
		tick:    DefaultTick,
		mux:     http.NewServeMux(),
	}
	if cfg != nil {
		s.cfg = *cfg
	}
	s.registerRoutes()
	return s
}

// SetTick changes the SSE interval.  It must be called before serving.
func (s *Server) SetTick(d time.Duration) {
	if d > 0 {
		s.tick = d
	}
}

// Handler returns the routed handler, for embedding or tests.
func (s *Server) Handler() http.Handler { return s.mux }

// ListenAndServe serves on addr until ctx is done, then shuts down
// gracefully.
//
// WriteTimeout is disabled because the SSE stream is a long-lived
// connection.  Request contexts derive from ctx, so open streams end when
// ctx is done.
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.mux,
		ReadHeaderTimeout: 10 * time.Second,
		IdleTimeout:       120 * time.Second,
		BaseContext:       func(net.Listener) context.Context { return ctx },
	}
	errCh := make(chan error, 1)
	go func() {
		s.log.Infof("dashboard: listening on %s", addr)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("dashboard: shutdown: %w", err)
		}
		if err := <-errCh; !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	}
}

func (s *Server) registerRoutes() {
	s.mux.Handle("/metrics", s.metrics.Handler())
	s.mux.HandleFunc("/api/metrics/stream", s.withCORS(s.handleMetricsStream))
	s.mux.HandleFunc("/api/config", s.withCORS(s.handleConfig))
	s.mux.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		io.WriteString(w, "ok") //nolint:errcheck
	})
}

func (s *Server) withCORS(h http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type")
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		if r.Method != http.MethodGet {
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
			return
		}
		h(w, r)
	}
}

func (s *Server) snapshot() MetricsSnapshot {
	snap := s.metrics.Snapshot()
	return MetricsSnapshot{
		Timestamp:   time.Now().UnixMilli(),
		Total:       snap.Total,
		Passthrough: snap.Passthrough,
		Solved:      snap.Solved,
		Unsupported: snap.Unsupported,
		Failed:      snap.Failed,
		RPS:         s.metrics.RequestsPerSecond(),
	}
}

// handleMetricsStream writes one snapshot immediately and then one per
// tick until the client goes away.
func (s *Server) handleMetricsStream(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "streaming unsupported", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")

	ticker := time.NewTicker(s.tick)
	defer ticker.Stop()

	ctx := r.Context()
	for {
		if err := sseWrite(w, s.snapshot()); err != nil {
			return
		}
		flusher.Flush()
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

func sseWrite(w io.Writer, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}
	_, err = fmt.Fprintf(w, "data: %s\n\n", data)
	return err
}

func (s *Server) handleConfig(w http.ResponseWriter, _ *http.Request) {
	cfg := s.cfg
	cfg.Proxy = redactProxy(cfg.Proxy)
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(cfg); err != nil {
		s.log.Errorf("dashboard: encode config: %v", err)
	}
}

// redactProxy masks the proxy password.
func redactProxy(raw string) string {
	if raw == "" {
		return ""
	}
	u, err := url.Parse(raw)
	if err != nil {
		return "<invalid>"
	}
	return u.Redacted()
}
