package router

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/cors"

	"github.com/juggajay/siteproof-v2-sub005/internal/handler"
	"github.com/juggajay/siteproof-v2-sub005/internal/middleware"
	"github.com/juggajay/siteproof-v2-sub005/internal/model"
)

// Config holds the configuration for creating a router.
type Config struct {
	Handler        *handler.Handler
	SyncHandler    *handler.SyncHandler
	NCRHandler     *handler.NCRHandler
	AdminHandler   *handler.AdminHandler
	AuthMiddleware func(http.Handler) http.Handler
	MaxBodyBytes   int64
}

// New creates and configures the HTTP router.
func New(cfg Config) *chi.Mux {
	r := chi.NewRouter()

	// Global middleware stack (applies to ALL routes)
	r.Use(middleware.Recovery)
	r.Use(middleware.RequestID)
	r.Use(middleware.Logging)
	r.Use(middleware.BodyLimit(cfg.MaxBodyBytes))
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders: []string{
			"Accept", "Authorization", "Content-Type", "X-Request-ID",
			middleware.HeaderAPIKey, middleware.HeaderUserID, middleware.HeaderOrgRole,
		},
		ExposedHeaders: []string{"X-Request-ID", handler.HeaderIdempotentReplay},
		MaxAge:         300,
	}))

	// PUBLIC routes (no auth required)
	if cfg.Handler != nil {
		r.Get("/api/status", cfg.Handler.Status)
		r.Get("/api/v1/health", cfg.Handler.Health)
		r.Get("/api/v1/ready", cfg.Handler.Ready)
	}

	// AUTHENTICATED routes
	r.Group(func(r chi.Router) {
		if cfg.AuthMiddleware != nil {
			r.Use(cfg.AuthMiddleware)
		}

		r.Route("/api/v1", func(r chi.Router) {
			if cfg.SyncHandler != nil {
				r.Route("/sync", func(r chi.Router) {
					r.Post("/", cfg.SyncHandler.Sync)
					r.Post("/download", cfg.SyncHandler.BulkDownload)
					r.Post("/resolve", cfg.SyncHandler.Resolve)
				})
			}

			if cfg.NCRHandler != nil {
				r.Route("/ncrs", func(r chi.Router) {
					r.Post("/", cfg.NCRHandler.Create)
					r.Route("/{ncr_id}", func(r chi.Router) {
						r.Get("/", cfg.NCRHandler.Get)
						r.Get("/transitions", cfg.NCRHandler.Transitions)
						r.Post("/transition", cfg.NCRHandler.Transition)
						r.Get("/history", cfg.NCRHandler.History)
					})
				})
			}

			if cfg.AdminHandler != nil {
				r.Route("/admin", func(r chi.Router) {
					r.Use(middleware.RequireOrgRole(model.OrgAdmin, model.OrgOwner))
					r.Get("/stats", cfg.AdminHandler.GetStats)
				})
			}
		})
	})

	return r
}
