package api

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"docgate/internal/auth"
	"docgate/internal/config"
	"docgate/internal/connection"
	"docgate/internal/metrics"
	"docgate/internal/provision"
	"docgate/internal/proxy"
	"docgate/internal/quota"
	"docgate/internal/storage"
	"docgate/internal/validation"
)

// UsagePipeline starts usage-event consumption for a tenant.
type UsagePipeline interface {
	AddTenant(ctx context.Context, tenantID uuid.UUID) error
}

// Deps are the collaborators the handlers call into. UsagePipeline may be nil.
type Deps struct {
	Tenants       storage.TenantStore
	Events        storage.UsageEventStore
	Gate          *validation.Gate
	Conns         *connection.Manager
	Engine        *provision.Engine
	Proxy         *proxy.Proxy
	Quota         *quota.Tracker
	Authenticator *auth.Authenticator
	Issuer        *auth.TokenIssuer
	UsagePipeline UsagePipeline
}

type API struct {
	Deps
	Cfg     *config.Config
	logger  *zap.Logger
	limiter *TenantRateLimiter
}

func NewAPI(deps Deps, cfg *config.Config, logger *zap.Logger) *API {
	a := &API{Deps: deps, Cfg: cfg, logger: logger}
	a.limiter = NewTenantRateLimiter(cfg.RateLimit.RequestsPerSecond, cfg.RateLimit.Burst, a.writeError, logger)
	return a
}

func (a *API) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(Recovery(a.logger), RequestID, Logging(a.logger))
	r.NotFound(a.RouteNotFound)
	r.MethodNotAllowed(a.RouteNotFound)

	r.Get("/", a.Root)
	r.Handle("/metrics", metrics.Handler())

	r.Route("/api/v1", func(r chi.Router) {
		// Public
		r.Get("/healthcheck", a.HealthCheck)
		r.Get("/healtcheckup", a.HealthCheck)
		r.Get("/healthcheck/auth", a.AuthHealthCheck)
		r.Post("/auth", a.Signup)

		// API key. Auth lives in groups so unmatched paths still reach NotFound.
		apiKey := auth.APIKeyMiddleware(a.Authenticator, a.writeError)

		r.Route("/db", func(r chi.Router) {
			r.Group(func(r chi.Router) {
				r.Use(apiKey, a.limiter.Limit)

				r.Post("/create-database", a.CreateDatabase)
				r.Post("/create-collection", a.CreateCollection)
				r.Post("/drop-collection", a.DropCollection)
				r.Post("/drop-database", a.DropDatabase)
				r.Post("/insert-document", a.InsertDocument)
				r.Post("/fetch-documents", a.FetchDocuments)
				r.Post("/update-document", a.UpdateDocument)
				r.Post("/delete-document", a.DeleteDocument)
			})
		})

		r.Group(func(r chi.Router) {
			r.Use(apiKey)

			r.Get("/usage", a.Usage)
			r.Get("/usage/events", a.UsageEvents)
		})

		// Admin JWT
		r.Route("/admin", func(r chi.Router) {
			r.Group(func(r chi.Router) {
				r.Use(auth.AdminMiddleware(a.Issuer, a.writeError))

				r.Get("/tenants", a.ListTenants)
				r.Patch("/tenants/{id}", a.UpdateTenant)
			})
		})
	})

	return r
}
