// Package api implements the folio HTTP API.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/folio-agent/folio/internal/agent"
	"github.com/folio-agent/folio/internal/buildinfo"
	"github.com/folio-agent/folio/internal/config"
	"github.com/folio-agent/folio/internal/connwatch"
	"github.com/folio-agent/folio/internal/guard"
	"github.com/folio-agent/folio/internal/usage"
)

// writeJSON encodes v as JSON to w with the given status, logging any
// encode error at debug level. Errors here typically mean the client
// disconnected mid-response.
func writeJSON(w http.ResponseWriter, status int, v any, logger *slog.Logger) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		logger.Debug("failed to write JSON response", "error", err)
	}
}

// Runner answers one chat request. *agent.Loop implements it.
type Runner interface {
	Run(ctx context.Context, req *agent.Request) (*agent.Response, error)
}

// Checker validates a request before it reaches the loop.
// *guard.Guard implements it.
type Checker interface {
	Check(ctx context.Context, message string, history []guard.Turn) error
}

// ToolLister reports the registered tool names.
type ToolLister interface {
	Names() []string
}

// UsageReporter summarizes recorded token usage. *usage.Store
// implements it.
type UsageReporter interface {
	Summary(ctx context.Context, start, end time.Time) (*usage.Summary, error)
	SummaryByModel(ctx context.Context, start, end time.Time) (map[string]*usage.Summary, error)
}

// ServiceReporter reports upstream reachability.
// *connwatch.Manager implements it.
type ServiceReporter interface {
	Status() map[string]connwatch.Status
}

// Deps are the collaborators the server routes requests to. Usage and
// Services may be nil.
type Deps struct {
	Agent    Runner
	Guard    Checker
	Tools    ToolLister
	Usage    UsageReporter
	Services ServiceReporter
	Demo     bool
	Logger   *slog.Logger
}

// Server is the HTTP API server.
type Server struct {
	listen  config.ListenConfig
	cfg     config.ServerConfig
	deps    Deps
	limiter *clientLimiter
	logger  *slog.Logger
	server  *http.Server
	now     func() time.Time
}

// NewServer creates a server. Nothing listens until Start.
func NewServer(listen config.ListenConfig, cfg config.ServerConfig, deps Deps) *Server {
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}
	s := &Server{
		listen: listen,
		cfg:    cfg,
		deps:   deps,
		logger: logger,
		now:    time.Now,
	}
	if cfg.PerClientRPM > 0 {
		s.limiter = newClientLimiter(cfg.PerClientRPM, cfg.PerClientBurst)
	}
	return s
}

// Handler returns the fully wrapped request handler.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()

	mux.Handle("POST /chat", s.protected(http.HandlerFunc(s.handleChat)))
	mux.Handle("GET /v1/usage", s.protected(http.HandlerFunc(s.handleUsage)))

	mux.HandleFunc("GET /health", s.handleHealth)
	mux.HandleFunc("GET /v1/version", s.handleVersion)
	mux.HandleFunc("GET /v1/tools", s.handleTools)
	mux.HandleFunc("GET /{$}", s.handleRoot)

	return s.withLogging(s.withCORS(mux))
}

// protected applies the API key check and the per-client limiter.
func (s *Server) protected(next http.Handler) http.Handler {
	return s.withAPIKey(s.withRateLimit(next))
}

// Start serves HTTP until Shutdown is called. It returns nil after a
// clean shutdown. Request contexts inherit ctx's values but not its
// cancellation, so in-flight requests can finish during Shutdown.
func (s *Server) Start(ctx context.Context) error {
	s.server = &http.Server{
		Addr:              fmt.Sprintf("%s:%d", s.listen.Address, s.listen.Port),
		Handler:           s.Handler(),
		ReadTimeout:       s.cfg.ReadTimeout,
		ReadHeaderTimeout: 10 * time.Second,
		WriteTimeout:      s.cfg.WriteTimeout,
		BaseContext:       func(_ net.Listener) context.Context { return context.WithoutCancel(ctx) },
	}

	addr := s.listen.Address
	if addr == "" {
		addr = "0.0.0.0"
	}
	s.logger.Info("starting API server", "address", addr, "port", s.listen.Port, "demo", s.deps.Demo)
	if err := s.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Shutdown gracefully stops the server.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.server != nil {
		return s.server.Shutdown(ctx)
	}
	return nil
}

// handleRoot reports identity and upstream health. A service that has
// been probed and is unreachable marks the status "degraded"; the
// process itself is still serving.
func (s *Server) handleRoot(w http.ResponseWriter, r *http.Request) {
	status := "ok"
	services := map[string]connwatch.Status{}
	if s.deps.Services != nil {
		services = s.deps.Services.Status()
		for _, st := range services {
			if !st.Ready && !st.LastCheck.IsZero() {
				status = "degraded"
			}
		}
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"name":     "folio",
		"version":  buildinfo.Version,
		"status":   status,
		"demo":     s.deps.Demo,
		"services": services,
	}, s.logger)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"}, s.logger)
}

func (s *Server) handleVersion(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, buildinfo.Info(), s.logger)
}

func (s *Server) handleTools(w http.ResponseWriter, r *http.Request) {
	names := []string{}
	if s.deps.Tools != nil {
		names = s.deps.Tools.Names()
	}
	writeJSON(w, http.StatusOK, map[string]any{"tools": names}, s.logger)
}

const (
	defaultUsageHours = 24
	maxUsageHours     = 24 * 30
)

// UsageResponse is the body of GET /v1/usage.
type UsageResponse struct {
	Hours   int                       `json:"hours"`
	Since   time.Time                 `json:"since"`
	Summary *usage.Summary            `json:"summary"`
	ByModel map[string]*usage.Summary `json:"by_model"`
}

func (s *Server) handleUsage(w http.ResponseWriter, r *http.Request) {
	if s.deps.Usage == nil {
		s.writeError(w, http.StatusNotFound, "usage_disabled", "usage tracking is not enabled")
		return
	}

	hours := defaultUsageHours
	if v := r.URL.Query().Get("hours"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 || n > maxUsageHours {
			s.writeError(w, http.StatusBadRequest, "invalid_request",
				fmt.Sprintf("hours must be an integer between 1 and %d", maxUsageHours))
			return
		}
		hours = n
	}

	end := s.now()
	start := end.Add(-time.Duration(hours) * time.Hour)

	sum, err := s.deps.Usage.Summary(r.Context(), start, end)
	if err != nil {
		s.logger.Error("usage summary failed", "error", err)
		s.writeError(w, http.StatusInternalServerError, "internal_error", "usage summary unavailable")
		return
	}
	byModel, err := s.deps.Usage.SummaryByModel(r.Context(), start, end)
	if err != nil {
		s.logger.Error("usage summary by model failed", "error", err)
		s.writeError(w, http.StatusInternalServerError, "internal_error", "usage summary unavailable")
		return
	}

	writeJSON(w, http.StatusOK, UsageResponse{
		Hours:   hours,
		Since:   start.UTC(),
		Summary: sum,
		ByModel: byModel,
	}, s.logger)
}
