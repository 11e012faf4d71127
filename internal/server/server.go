package server

import (
	"context"
	"encoding/csv"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/hlog"

	"reddot-watch/collector/internal/server/api"
	"reddot-watch/collector/internal/server/storage"
)

// apiKeyMiddleware checks for the X-API-Key header and validates it against the provided key.
// If key is empty, it allows all requests.
func apiKeyMiddleware(apiKey string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if apiKey == "" || r.URL.Path == "/health" {
				next.ServeHTTP(w, r)
				return
			}

			reqApiKey := r.Header.Get("X-API-Key")
			if reqApiKey == "" {
				http.Error(w, "API key required", http.StatusUnauthorized)
				return
			}

			if reqApiKey != apiKey {
				http.Error(w, "Invalid API key", http.StatusUnauthorized)
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

// Options configures a Server.
type Options struct {
	Addr        string
	APIKey      string
	ServiceName string
}

// Server is the HTTP surface of the collector. The host process owns its
// lifecycle through Start and Shutdown.
type Server struct {
	repo      storage.Repository
	opts      Options
	logger    zerolog.Logger
	startedAt time.Time
	handler   http.Handler

	mu       sync.Mutex
	http     *http.Server
	listener net.Listener
	done     chan error
}

// New builds a server and its routes without starting it.
func New(repo storage.Repository, opts Options, logger zerolog.Logger) *Server {
	if opts.ServiceName == "" {
		opts.ServiceName = "collector"
	}
	s := &Server{
		repo:      repo,
		opts:      opts,
		logger:    logger.With().Str("service", opts.ServiceName).Logger(),
		startedAt: time.Now(),
	}
	s.handler = s.routes()
	return s
}

func (s *Server) routes() http.Handler {
	handler := api.NewHandler(s.repo)

	mux := http.NewServeMux()
	mux.HandleFunc("GET /v1/items", handler.GetItems)
	mux.HandleFunc("GET /v1/runs", handler.GetRuns)
	mux.HandleFunc("GET /v1/stats", handler.GetStats)
	mux.HandleFunc("GET /v1/sources", s.exportSources)
	mux.HandleFunc("GET /health", s.health)

	// Set up middleware chain for logging and request tracking
	h := apiKeyMiddleware(s.opts.APIKey)(mux)
	h = hlog.AccessHandler(func(r *http.Request, status, size int, duration time.Duration) {
		idReq, _ := hlog.IDFromRequest(r)

		hlog.FromRequest(r).Info().
			Str("method", r.Method).
			Stringer("url", r.URL).
			Int("status", status).
			Int("size", size).
			Dur("duration", duration).
			Str("req_id", idReq.String()).
			Msg("HTTP Request")
	})(h)
	h = hlog.RequestIDHandler("req_id", "Request-Id")(h)
	h = hlog.UserAgentHandler("user_agent")(h)
	h = hlog.RemoteAddrHandler("remote_addr")(h)
	h = hlog.URLHandler("url")(h)
	h = hlog.MethodHandler("method")(h)
	h = hlog.NewHandler(s.logger)(h)

	if s.opts.APIKey != "" {
		s.logger.Info().Msg("API key authentication enabled")
	} else {
		s.logger.Info().Msg("API key authentication disabled")
	}
	return h
}

// Handler returns the root handler, for tests and embedding.
func (s *Server) Handler() http.Handler { return s.handler }

// Start binds the listen address and serves in the background. It returns
// once the socket is open so bind errors surface immediately.
func (s *Server) Start() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.http != nil {
		return errors.New("server already started")
	}

	ln, err := net.Listen("tcp", s.opts.Addr)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", s.opts.Addr, err)
	}

	s.listener = ln
	s.done = make(chan error, 1)
	s.http = &http.Server{
		Handler:           s.handler,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       10 * time.Second,
		WriteTimeout:      10 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	go func() {
		s.logger.Info().Str("address", ln.Addr().String()).Msg("API Server starting")
		err := s.http.Serve(ln)
		if errors.Is(err, http.ErrServerClosed) {
			err = nil
		}
		s.done <- err
		close(s.done)
	}()
	return nil
}

// Addr returns the bound address, or "" before Start.
func (s *Server) Addr() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.listener == nil {
		return ""
	}
	return s.listener.Addr().String()
}

// Done reports the serve error, if any, once the server stops.
func (s *Server) Done() <-chan error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.done
}

// Shutdown stops accepting connections and waits for in-flight requests,
// forcing the server closed if ctx expires first.
func (s *Server) Shutdown(ctx context.Context) error {
	s.mu.Lock()
	srv, done := s.http, s.done
	s.mu.Unlock()
	if srv == nil {
		return nil
	}

	if err := srv.Shutdown(ctx); err != nil {
		s.logger.Error().Err(err).Msg("HTTP server shutdown error")
		if err := srv.Close(); err != nil {
			s.logger.Error().Err(err).Msg("HTTP server force close error")
		}
		return err
	}
	if err := <-done; err != nil {
		s.logger.Error().Err(err).Msg("Serve error during shutdown")
		return err
	}
	s.logger.Info().Msg("HTTP server shutdown complete.")
	return nil
}

type healthResponse struct {
	Status    string    `json:"status"`
	Service   string    `json:"service"`
	Timestamp time.Time `json:"timestamp"`
	Uptime    string    `json:"uptime"`
	UptimeSec int64     `json:"uptime_seconds"`
	Error     string    `json:"error,omitempty"`
}

// health reports liveness and database reachability.
func (s *Server) health(w http.ResponseWriter, r *http.Request) {
	log := hlog.FromRequest(r)
	log.Debug().Msg("Health check request received")

	uptime := time.Since(s.startedAt)
	resp := healthResponse{
		Status:    "healthy",
		Service:   s.opts.ServiceName,
		Timestamp: time.Now().UTC(),
		Uptime:    uptime.Round(time.Second).String(),
		UptimeSec: int64(uptime.Seconds()),
	}
	status := http.StatusOK

	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()
	if err := s.repo.Ping(ctx); err != nil {
		log.Warn().Err(err).Msg("Health check database ping failed")
		resp.Status = "unhealthy"
		resp.Error = "database unavailable"
		status = http.StatusServiceUnavailable
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(resp); err != nil {
		log.Error().Err(err).Msg("Error writing health check response")
	}
}

// exportSources writes every source as CSV in the import format.
func (s *Server) exportSources(w http.ResponseWriter, r *http.Request) {
	log := hlog.FromRequest(r)
	log.Debug().Msg("Export sources request received")

	sources, err := s.repo.FetchSources(r.Context())
	if err != nil {
		log.Error().Err(err).Msg("Failed to query sources")
		http.Error(w, "Internal server error", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "text/csv")
	w.Header().Set("Content-Disposition", "attachment; filename=sources.csv")

	csvWriter := csv.NewWriter(w)
	if err := csvWriter.Write([]string{"name", "url", "kind", "language", "enabled", "tags"}); err != nil {
		log.Error().Err(err).Msg("Failed to write CSV header")
		return
	}

	for _, src := range sources {
		record := []string{
			src.Name,
			src.URL,
			string(src.Kind),
			src.Language,
			strconv.FormatBool(src.Enabled),
			strings.Join(src.Tags, "|"),
		}
		if err := csvWriter.Write(record); err != nil {
			log.Error().Err(err).Msg("Failed to write CSV record")
			return
		}
	}

	csvWriter.Flush()
	if err := csvWriter.Error(); err != nil {
		log.Error().Err(err).Msg("Error flushing CSV data")
		return
	}

	log.Info().Int("source_count", len(sources)).Msg("Exported sources as CSV")
}
