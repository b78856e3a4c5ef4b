// Package api is the HTTP surface: flows, concerns, theming and theme comments.
package api

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/xaenox/concern-cloud/internal/metrics"
	"github.com/xaenox/concern-cloud/internal/storage"
	"github.com/xaenox/concern-cloud/internal/theming"
)

type Options struct {
	Store          storage.Storage
	Theming        *theming.Service
	Metrics        *metrics.Collector
	Logger         *zap.Logger
	CORSOrigins    []string
	RequestTimeout time.Duration
	// Theming requests allowed per session per minute, and the burst on top.
	ThemingPerMinute int
	ThemingBurst     int
}

type Server struct {
	store          storage.Storage
	theming        *theming.Service
	metrics        *metrics.Collector
	logger         *zap.Logger
	validate       *validator.Validate
	limiter        *sessionLimiter
	corsOrigins    []string
	requestTimeout time.Duration
}

func New(opts Options) *Server {
	if opts.RequestTimeout <= 0 {
		opts.RequestTimeout = 30 * time.Second
	}
	if opts.ThemingPerMinute <= 0 {
		opts.ThemingPerMinute = 6
	}
	if opts.ThemingBurst <= 0 {
		opts.ThemingBurst = 2
	}
	if len(opts.CORSOrigins) == 0 {
		opts.CORSOrigins = []string{"*"}
	}
	if opts.Metrics == nil {
		opts.Metrics = metrics.NewCollector("concern_cloud")
	}
	return &Server{
		store:          opts.Store,
		theming:        opts.Theming,
		metrics:        opts.Metrics,
		logger:         opts.Logger,
		validate:       newValidator(),
		limiter:        newSessionLimiter(opts.ThemingPerMinute, opts.ThemingBurst),
		corsOrigins:    opts.CORSOrigins,
		requestTimeout: opts.RequestTimeout,
	}
}

// Handler builds the router.
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()

	r.Use(chimiddleware.RequestID)
	r.Use(chimiddleware.RealIP)
	r.Use(accessLog(s.logger))
	r.Use(observe(s.metrics))
	r.Use(s.recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: s.corsOrigins,
		AllowedMethods: []string{"GET", "POST", "PATCH", "DELETE", "OPTIONS"},
		AllowedHeaders: []string{"Accept", "Content-Type", "X-Request-ID"},
		ExposedHeaders: []string{"X-Request-ID"},
		MaxAge:         300,
	}))

	r.Get("/healthz", s.health)
	r.Method(http.MethodGet, "/metrics", s.metrics.Handler())

	r.Group(func(r chi.Router) {
		r.Use(chimiddleware.Timeout(s.requestTimeout))

		r.Route("/flows", func(r chi.Router) {
			r.Post("/", s.createFlow)
			r.Get("/", s.listFlows)
			r.Patch("/", s.updateFlowchart)
			r.Get("/{id}", s.getFlow)
		})

		r.Route("/concerns", func(r chi.Router) {
			r.Post("/", s.createConcern)
			r.Get("/", s.listConcerns)
			r.Delete("/", s.deleteConcern)
		})

		r.Route("/themeComments", func(r chi.Router) {
			r.Get("/", s.listThemeComments)
			r.Post("/", s.createThemeComment)
		})
	})

	// Theming is bounded by the provider timeout, not the request timeout.
	r.Post("/theming", s.processConcerns)

	return r
}

func (s *Server) health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}
