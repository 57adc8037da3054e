// Package api declares HTTP contracts and route registration helpers.
package api

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"

	"github.com/rs/cors"

	"github.com/okian/sift/internal/domain/model"
	"github.com/okian/sift/pkg/logger"
)

// BlocklistReader lists blocked users.
type BlocklistReader interface {
	Blocklist(ctx context.Context) ([]string, error)
}

// Reporter records a report and returns the outcome plus a confirmation message.
type Reporter interface {
	Report(ctx context.Context, r model.Report) (model.ReportOutcome, string, error)
}

// Pinger checks datastore reachability.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Dependencies required by HTTP handlers. Using an interface bundle keeps
// the handler layer loosely coupled to implementations in other packages.
type Dependencies interface {
	BlocklistReader
	Reporter
	Pinger
	StatsProvider
}

// Server wires HTTP routes for the business API.
type Server struct {
	healthHandler    *HealthHandler
	statsHandler     *StatsHandler
	blocklistHandler *BlocklistHandler
	reportHandler    *ReportHandler

	apiSecret      string
	allowedOrigins []string
	metricsEnabled bool
	logger         logger.Logger
}

// Option configures a Server.
type Option func(*Server)

// WithAPISecret sets the shared secret POST /report must present in x-api-key.
// An empty secret rejects every report.
func WithAPISecret(secret string) Option {
	return func(s *Server) { s.apiSecret = secret }
}

// WithAllowedOrigins sets the CORS origin list; "*" allows any origin.
func WithAllowedOrigins(origins []string) Option {
	return func(s *Server) {
		if len(origins) > 0 {
			s.allowedOrigins = origins
		}
	}
}

// WithMetricsEndpoint toggles GET /metrics.
func WithMetricsEndpoint(enabled bool) Option {
	return func(s *Server) { s.metricsEnabled = enabled }
}

// WithLogger sets the request logger.
func WithLogger(l logger.Logger) Option {
	return func(s *Server) {
		if l != nil {
			s.logger = l
		}
	}
}

// NewServer creates a new API server with all handlers.
func NewServer(deps Dependencies, opts ...Option) *Server {
	s := &Server{
		healthHandler:    NewHealthHandler(deps),
		statsHandler:     NewStatsHandler(deps),
		blocklistHandler: NewBlocklistHandler(deps),
		reportHandler:    NewReportHandler(deps),
		allowedOrigins:   []string{"*"},
		metricsEnabled:   true,
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.logger == nil {
		s.logger = logger.Get().Named("http")
	}
	return s
}

// Register attaches all HTTP routes to mux.
func (s *Server) Register(ctx context.Context, mux *http.ServeMux) {
	mux.HandleFunc("/health", MetricsMiddleware(allow(s.healthHandler.HandleHealth, http.MethodGet), "health"))
	mux.HandleFunc("/readyz", MetricsMiddleware(allow(s.healthHandler.HandleReady, http.MethodGet), "readyz"))
	mux.HandleFunc("/stats", MetricsMiddleware(allow(s.statsHandler.HandleStats, http.MethodGet), "stats"))
	mux.HandleFunc("/blocklist", MetricsMiddleware(allow(s.blocklistHandler.HandleGetBlocklist, http.MethodGet), "blocklist"))
	mux.HandleFunc("/report", MetricsMiddleware(
		allow(RequireAPIKey(s.apiSecret, s.reportHandler.HandlePostReport), http.MethodPost),
		"report",
	))
	if s.metricsEnabled {
		mux.Handle("/metrics", s.healthHandler.MetricsHandler())
	}
	mux.HandleFunc("/", MetricsMiddleware(handleNotFound, "not_found"))

	if s.apiSecret == "" {
		s.logger.Warn(ctx, "api secret is empty; every report will be rejected")
	}
}

// Handler wraps mux with CORS, panic recovery and request logging.
func (s *Server) Handler(mux http.Handler) http.Handler {
	c := cors.New(cors.Options{
		AllowedOrigins: s.allowedOrigins,
		AllowedMethods: []string{
			http.MethodGet, http.MethodPost, http.MethodPut, http.MethodPatch,
			http.MethodDelete, http.MethodHead, http.MethodOptions,
		},
		AllowedHeaders:   []string{"*"},
		AllowCredentials: true,
	})
	return c.Handler(Recoverer(s.logger, RequestLogger(s.logger, mux)))
}

// allow answers 405 for any method outside methods.
func allow(next http.HandlerFunc, methods ...string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		for _, m := range methods {
			if r.Method == m {
				next(w, r)
				return
			}
		}
		logger.Get().Debug(r.Context(), "method rejected",
			logger.String("requestID", RequestID(r.Context())),
			logger.String("method", r.Method),
			logger.Error(NewKind(r.URL.Path, ErrMethod)),
		)
		w.Header().Set("Allow", strings.Join(methods, ", "))
		writeError(w, http.StatusMethodNotAllowed, "method_not_allowed", http.StatusText(http.StatusMethodNotAllowed))
	}
}

func handleNotFound(w http.ResponseWriter, r *http.Request) {
	logger.Get().Debug(r.Context(), "route not found",
		logger.String("requestID", RequestID(r.Context())),
		logger.Error(NewKind(r.URL.Path, ErrRouteNotFound)),
	)
	writeError(w, http.StatusNotFound, "not_found", http.StatusText(http.StatusNotFound))
}

type errorResponse struct {
	Code   string `json:"code"`
	Detail string `json:"detail"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, code, detail string) {
	if detail == "" {
		detail = http.StatusText(status)
	}
	writeJSON(w, status, errorResponse{Code: code, Detail: detail})
}

// writeDatastoreError reports a failed datastore call with its cause.
func writeDatastoreError(w http.ResponseWriter, err error) {
	writeError(w, http.StatusInternalServerError, "database_error", "Database error: "+err.Error())
}
