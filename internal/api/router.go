// Package api exposes the chat engine over HTTP and a WebSocket event
// stream.
//
// JSON endpoints live under /api; per-conversation events stream from
// /ws/conversations/{id}. Liveness, readiness and Prometheus metrics are
// served alongside.
package api

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	"github.com/apper-canvas/linguaflow-1080p-card/internal/chat"
	"github.com/apper-canvas/linguaflow-1080p-card/internal/health"
	"github.com/apper-canvas/linguaflow-1080p-card/internal/notify"
	"github.com/apper-canvas/linguaflow-1080p-card/internal/observe"
)

// Server holds the dependencies of the HTTP handlers.
type Server struct {
	ctl     *chat.Controller
	events  *notify.Hub
	health  *health.Handler
	metrics *observe.Metrics

	metricsPath    string
	metricsHandler http.Handler
	origins        []string
	writeTimeout   time.Duration
}

// Option configures a [Server].
type Option func(*Server)

// WithEvents enables the WebSocket event stream backed by h.
func WithEvents(h *notify.Hub) Option {
	return func(s *Server) { s.events = h }
}

// WithHealth mounts /healthz and /readyz.
func WithHealth(h *health.Handler) Option {
	return func(s *Server) { s.health = h }
}

// WithMetrics records request metrics to m instead of
// [observe.DefaultMetrics].
func WithMetrics(m *observe.Metrics) Option {
	return func(s *Server) { s.metrics = m }
}

// WithMetricsHandler serves h at path.
func WithMetricsHandler(path string, h http.Handler) Option {
	return func(s *Server) {
		s.metricsPath = path
		s.metricsHandler = h
	}
}

// WithAllowedOrigins sets the browser origins allowed by CORS and the
// WebSocket origin check. Default: any origin.
func WithAllowedOrigins(origins ...string) Option {
	return func(s *Server) {
		if len(origins) > 0 {
			s.origins = origins
		}
	}
}

// New returns a [Server] for ctl.
func New(ctl *chat.Controller, opts ...Option) *Server {
	s := &Server{
		ctl:          ctl,
		origins:      []string{"*"},
		writeTimeout: 5 * time.Second,
	}
	for _, o := range opts {
		o(s)
	}
	if s.metrics == nil {
		s.metrics = observe.DefaultMetrics()
	}
	return s
}

// Handler builds the router.
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()
	r.Use(chimiddleware.RealIP)
	r.Use(chimiddleware.Recoverer)
	r.Use(observe.Middleware(s.metrics))
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: s.origins,
		AllowedMethods: []string{"GET", "POST", "DELETE", "OPTIONS"},
		AllowedHeaders: []string{"Accept", "Content-Type", "traceparent"},
		ExposedHeaders: []string{"X-Correlation-ID"},
		MaxAge:         300,
	}))

	if s.health != nil {
		s.health.Register(r)
	}
	if s.metricsHandler != nil {
		r.Method(http.MethodGet, s.metricsPath, s.metricsHandler)
	}

	r.Route("/api", func(r chi.Router) {
		r.Get("/catalog", s.getCatalog)
		r.Get("/catalog/topics", s.getTopics)

		r.Get("/rules", s.listRules)
		r.Get("/rules/lookup", s.lookupRule)

		r.Route("/conversations", func(r chi.Router) {
			r.Get("/", s.listConversations)
			r.Post("/", s.startConversation)
			r.Route("/{id}", func(r chi.Router) {
				r.Get("/", s.getConversation)
				r.Delete("/session", s.endSession)
				r.Get("/state", s.getState)
				r.Get("/stats", s.getStats)
				r.Get("/audit", s.getAudit)
				r.Get("/transcript", s.getTranscript)
				r.Post("/messages", s.sendMessage)
				r.Get("/corrections/recent", s.recentCorrections)
			})
		})

		r.Route("/corrections/{id}", func(r chi.Router) {
			r.Post("/accept", s.acceptCorrection)
			r.Post("/reject", s.rejectCorrection)
			r.Delete("/", s.rejectCorrection)
		})
	})

	if s.events != nil {
		r.Get("/ws/conversations/{id}", s.streamEvents)
	}
	return r
}
