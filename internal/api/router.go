package api

import (
	"net/http"
	"time"

	"github.com/dvloznov/momo-tracker/internal/api/handlers"
	"github.com/dvloznov/momo-tracker/internal/api/middleware"
	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
)

// Handlers groups the endpoint handlers mounted by NewRouter.
type Handlers struct {
	Transactions *handlers.TransactionsHandler
	Upload       *handlers.UploadHandler
	Jobs         *handlers.JobsHandler
	DB           handlers.Pinger
	Metrics      prometheus.Gatherer // nil disables /metrics
}

// NewRouter creates the chi router with middleware and all routes.
func NewRouter(h Handlers, log zerolog.Logger) *chi.Mux {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(chimw.RealIP)
	r.Use(middleware.Logger(log))
	r.Use(middleware.Recovery(log))
	r.Use(chimw.Timeout(5 * time.Minute))
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders: []string{"Accept", "Content-Type", middleware.RequestIDHeader},
		ExposedHeaders: []string{middleware.RequestIDHeader},
		MaxAge:         3600,
	}))

	r.Get("/health", handlers.Health(h.DB))

	if h.Upload != nil {
		r.Post("/upload", h.Upload.Upload)
	}

	r.Route("/api", func(r chi.Router) {
		if h.Transactions != nil {
			r.Get("/transactions", h.Transactions.ListTransactions)
			r.Get("/transaction/{id}", h.Transactions.GetTransaction)
			r.Get("/summary", h.Transactions.Summary)
			r.Post("/truncate", h.Transactions.Truncate)
		}
		if h.Jobs != nil {
			r.Post("/imports", h.Jobs.EnqueueImport)
			r.Get("/jobs", h.Jobs.ListJobs)
			r.Get("/jobs/{id}", h.Jobs.GetJob)
		}
	})

	if h.Metrics != nil {
		r.Handle("/metrics", promhttp.HandlerFor(h.Metrics, promhttp.HandlerOpts{}))
	}

	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		middleware.WriteError(w, http.StatusNotFound, "Not found")
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, r *http.Request) {
		middleware.WriteError(w, http.StatusMethodNotAllowed, "Method not allowed")
	})

	return r
}
