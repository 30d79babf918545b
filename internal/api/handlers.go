package api

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"docgate/internal/apperr"
	"docgate/internal/auth"
	"docgate/internal/connection"
	"docgate/internal/model"
	"docgate/internal/provision"
	"docgate/internal/storage"
	"docgate/internal/validation"
)

const (
	defaultEventPage = 20
	maxEventPage     = 100
)

// validate decodes the body and checks it against schema. On failure the
// response is already written and ok is false.
func (a *API) validate(w http.ResponseWriter, r *http.Request, schema string) (validation.Result, bool) {
	payload, err := decodeBody(r)
	if err != nil {
		a.writeError(w, r, err)
		return validation.Result{}, false
	}
	res, err := a.Gate.Validate(schema, payload)
	if err != nil {
		a.writeError(w, r, apperr.Internal("Failed to validate the request.", err))
		return validation.Result{}, false
	}
	if !res.Valid {
		a.writeError(w, r, res.Err())
		return res, false
	}
	return res, true
}

func (a *API) tenant(w http.ResponseWriter, r *http.Request) (*model.Tenant, bool) {
	t, ok := auth.TenantFromContext(r.Context())
	if !ok {
		a.writeError(w, r, apperr.Internal("Internal server error", errNoTenant))
	}
	return t, ok
}

// withStore runs fn on a session scoped to this request.
func (a *API) withStore(r *http.Request, res validation.Result, fn func(ctx context.Context, h *connection.Handle) error) error {
	return a.Conns.With(r.Context(), res.String("mongodbURI"), fn)
}

// joinMessages reports a single result verbatim and a list as one sentence each.
func joinMessages(results []provision.Result) string {
	msgs := make([]string, 0, len(results))
	for _, r := range results {
		msgs = append(msgs, r.Message)
	}
	return strings.Join(msgs, " ")
}

// provisionResponse carries the per-collection results only for list requests.
func provisionResponse(names []string, results []provision.Result) any {
	if len(names) < 2 || len(results) == 0 {
		return nil
	}
	return results
}

// @Summary Liveness
// @Produce json
// @Success 200 {object} envelope
// @Router / [get]
func (a *API) Root(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, envelope{Success: true, Message: "Backend services are running fine"})
}

// @Summary API health
// @Tags Health
// @Produce json
// @Success 200 {object} envelope
// @Failure 503 {object} envelope
// @Router /api/v1/healthcheck [get]
func (a *API) HealthCheck(w http.ResponseWriter, r *http.Request) {
	if err := a.Tenants.Ping(r.Context()); err != nil {
		a.logger.Warn("registry ping failed", zap.Error(err))
		writeJSON(w, http.StatusServiceUnavailable, envelope{Message: "API services are degraded", Error: err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, envelope{Success: true, Message: "API services are running fine"})
}

// @Summary Auth health
// @Tags Health
// @Produce json
// @Success 200 {object} envelope
// @Router /api/v1/healthcheck/auth [get]
func (a *API) AuthHealthCheck(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, envelope{Success: true, Message: "Auth services are running fine"})
}

func (a *API) RouteNotFound(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusNotFound, envelope{Message: "Route not found"})
}

// @Summary Sign up a tenant
// @Tags Tenants
// @Accept json
// @Produce json
// @Param body body object true "{email}"
// @Success 200 {object} envelope
// @Failure 400 {object} envelope
// @Router /api/v1/auth [post]
func (a *API) Signup(w http.ResponseWriter, r *http.Request) {
	res, ok := a.validate(w, r, validation.SchemaSignup)
	if !ok {
		return
	}

	tenant := model.NewTenant(res.String("email"))
	if err := a.Tenants.CreateTenant(r.Context(), tenant); err != nil {
		if errors.Is(err, storage.ErrEmailTaken) {
			writeJSON(w, http.StatusBadRequest, envelope{Message: "User already exists with this email"})
			return
		}
		a.writeError(w, r, apperr.Internal("Failed to create user", err))
		return
	}

	if a.UsagePipeline != nil {
		if err := a.UsagePipeline.AddTenant(r.Context(), tenant.ID); err != nil {
			a.logger.Error("failed to start usage pipeline", zap.String("tenant", tenant.ID.String()), zap.Error(err))
		}
	}

	a.logger.Info("tenant created", zap.String("tenant", tenant.ID.String()))
	writeJSON(w, http.StatusOK, envelope{Success: true, Message: "User created successfully", Response: tenant})
}

// @Summary Ensure a database and collection exist and hold data
// @Tags Databases
// @Security ApiKeyAuth
// @Accept json
// @Produce json
// @Param body body object true "{databaseName, mongodbURI, collectionName}"
// @Success 200 {object} envelope
// @Failure 400 {object} envelope
// @Failure 403 {object} envelope
// @Failure 500 {object} envelope
// @Router /api/v1/db/create-database [post]
func (a *API) CreateDatabase(w http.ResponseWriter, r *http.Request) {
	tenant, ok := a.tenant(w, r)
	if !ok {
		return
	}
	res, ok := a.validate(w, r, validation.SchemaDatabase)
	if !ok {
		return
	}
	names := res.Names("collectionName")

	var results []provision.Result
	err := a.withStore(r, res, func(ctx context.Context, h *connection.Handle) error {
		var err error
		results, err = a.Engine.ProvisionAll(ctx, h.Session(), res.String("databaseName"), names, tenant)
		return err
	})
	if err != nil {
		a.writeErrorWith(w, r, err, provisionResponse(names, results))
		return
	}
	writeJSON(w, http.StatusOK, envelope{Success: true, Message: joinMessages(results), Response: provisionResponse(names, results)})
}

// @Summary Create empty collections
// @Tags Databases
// @Security ApiKeyAuth
// @Accept json
// @Produce json
// @Param body body object true "{databaseName, mongodbURI, collectionName}"
// @Success 201 {object} envelope
// @Failure 400 {object} envelope
// @Failure 403 {object} envelope
// @Router /api/v1/db/create-collection [post]
func (a *API) CreateCollection(w http.ResponseWriter, r *http.Request) {
	tenant, ok := a.tenant(w, r)
	if !ok {
		return
	}
	res, ok := a.validate(w, r, validation.SchemaCreateCollection)
	if !ok {
		return
	}
	names := res.Names("collectionName")

	var results []provision.Result
	err := a.withStore(r, res, func(ctx context.Context, h *connection.Handle) error {
		var err error
		results, err = a.Engine.CreateCollectionsOnly(ctx, h.Session(), res.String("databaseName"), names, tenant)
		return err
	})
	if err != nil {
		a.writeErrorWith(w, r, err, provisionResponse(names, results))
		return
	}
	writeJSON(w, http.StatusCreated, envelope{Success: true, Message: joinMessages(results), Response: provisionResponse(names, results)})
}

// @Summary Drop collections
// @Tags Databases
// @Security ApiKeyAuth
// @Accept json
// @Produce json
// @Param body body object true "{databaseName, mongodbURI, collectionName}"
// @Success 200 {object} envelope
// @Router /api/v1/db/drop-collection [post]
func (a *API) DropCollection(w http.ResponseWriter, r *http.Request) {
	tenant, ok := a.tenant(w, r)
	if !ok {
		return
	}
	res, ok := a.validate(w, r, validation.SchemaDropCollection)
	if !ok {
		return
	}
	names := res.Names("collectionName")

	var results []provision.Result
	err := a.withStore(r, res, func(ctx context.Context, h *connection.Handle) error {
		var err error
		results, err = a.Engine.DropCollections(ctx, h.Session(), res.String("databaseName"), names, tenant)
		return err
	})
	if err != nil {
		a.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, envelope{Success: true, Message: joinMessages(results), Response: provisionResponse(names, results)})
}

// @Summary Drop a database
// @Tags Databases
// @Security ApiKeyAuth
// @Accept json
// @Produce json
// @Param body body object true "{databaseName, mongodbURI}"
// @Success 200 {object} envelope
// @Router /api/v1/db/drop-database [post]
func (a *API) DropDatabase(w http.ResponseWriter, r *http.Request) {
	tenant, ok := a.tenant(w, r)
	if !ok {
		return
	}
	res, ok := a.validate(w, r, validation.SchemaDropDatabase)
	if !ok {
		return
	}

	var result provision.Result
	err := a.withStore(r, res, func(ctx context.Context, h *connection.Handle) error {
		var err error
		result, err = a.Engine.DropDatabase(ctx, h.Session(), res.String("databaseName"), tenant)
		return err
	})
	if err != nil {
		a.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, envelope{Success: true, Message: result.Message})
}

// @Summary Insert a document
// @Tags Documents
// @Security ApiKeyAuth
// @Accept json
// @Produce json
// @Param body body object true "{databaseName, mongodbURI, collectionName, document}"
// @Success 201 {object} envelope
// @Failure 404 {object} envelope
// @Router /api/v1/db/insert-document [post]
func (a *API) InsertDocument(w http.ResponseWriter, r *http.Request) {
	if _, ok := a.tenant(w, r); !ok {
		return
	}
	res, ok := a.validate(w, r, validation.SchemaInsertDocument)
	if !ok {
		return
	}

	err := a.withStore(r, res, func(ctx context.Context, h *connection.Handle) error {
		out, err := a.Proxy.Insert(ctx, h.Session(), res.String("databaseName"), res.String("collectionName"), model.Document(res.Object("document")))
		if err != nil {
			return err
		}
		writeJSON(w, http.StatusCreated, envelope{Success: true, Message: "Document inserted successfully", Response: out})
		return nil
	})
	if err != nil {
		a.writeError(w, r, err)
	}
}

// @Summary Fetch documents
// @Tags Documents
// @Security ApiKeyAuth
// @Accept json
// @Produce json
// @Param body body object true "{databaseName, mongodbURI, collectionName, query, limit, offset}"
// @Success 200 {object} envelope
// @Router /api/v1/db/fetch-documents [post]
func (a *API) FetchDocuments(w http.ResponseWriter, r *http.Request) {
	if _, ok := a.tenant(w, r); !ok {
		return
	}
	res, ok := a.validate(w, r, validation.SchemaFetchDocuments)
	if !ok {
		return
	}

	err := a.withStore(r, res, func(ctx context.Context, h *connection.Handle) error {
		docs, err := a.Proxy.Fetch(ctx, h.Session(), res.String("databaseName"), res.String("collectionName"),
			model.Document(res.Object("query")),
			res.Int("limit", validation.DefaultFetchLimit),
			res.Int("offset", validation.DefaultFetchOffset),
		)
		if err != nil {
			return err
		}
		writeJSON(w, http.StatusOK, envelope{Success: true, Documents: docs})
		return nil
	})
	if err != nil {
		a.writeError(w, r, err)
	}
}

// @Summary Update matching documents
// @Tags Documents
// @Security ApiKeyAuth
// @Accept json
// @Produce json
// @Param body body object true "{databaseName, mongodbURI, collectionName, filter, update}"
// @Success 200 {object} envelope
// @Router /api/v1/db/update-document [post]
func (a *API) UpdateDocument(w http.ResponseWriter, r *http.Request) {
	if _, ok := a.tenant(w, r); !ok {
		return
	}
	res, ok := a.validate(w, r, validation.SchemaUpdateDocument)
	if !ok {
		return
	}

	err := a.withStore(r, res, func(ctx context.Context, h *connection.Handle) error {
		out, err := a.Proxy.Update(ctx, h.Session(), res.String("databaseName"), res.String("collectionName"),
			model.Document(res.Object("filter")), model.Document(res.Object("update")))
		if err != nil {
			return err
		}
		writeJSON(w, http.StatusOK, envelope{
			Success:  true,
			Message:  fmt.Sprintf("%d document(s) matched, %d document(s) updated", out.MatchedCount, out.ModifiedCount),
			Response: out,
		})
		return nil
	})
	if err != nil {
		a.writeError(w, r, err)
	}
}

// @Summary Delete matching documents
// @Tags Documents
// @Security ApiKeyAuth
// @Accept json
// @Produce json
// @Param body body object true "{databaseName, mongodbURI, collectionName, filter}"
// @Success 200 {object} envelope
// @Router /api/v1/db/delete-document [post]
func (a *API) DeleteDocument(w http.ResponseWriter, r *http.Request) {
	if _, ok := a.tenant(w, r); !ok {
		return
	}
	res, ok := a.validate(w, r, validation.SchemaDeleteDocument)
	if !ok {
		return
	}

	err := a.withStore(r, res, func(ctx context.Context, h *connection.Handle) error {
		out, err := a.Proxy.Delete(ctx, h.Session(), res.String("databaseName"), res.String("collectionName"),
			model.Document(res.Object("filter")))
		if err != nil {
			return err
		}
		writeJSON(w, http.StatusOK, envelope{
			Success:  true,
			Message:  fmt.Sprintf("%d document(s) deleted", out.DeletedCount),
			Response: out,
		})
		return nil
	})
	if err != nil {
		a.writeError(w, r, err)
	}
}

type usageSummary struct {
	DBCount   int  `json:"dbCount"`
	Limit     int  `json:"limit,omitempty"`
	Remaining int  `json:"remaining,omitempty"`
	IsPaid    bool `json:"is_paid"`
}

// @Summary Quota usage of the caller
// @Tags Usage
// @Security ApiKeyAuth
// @Produce json
// @Success 200 {object} envelope
// @Router /api/v1/usage [get]
func (a *API) Usage(w http.ResponseWriter, r *http.Request) {
	tenant, ok := a.tenant(w, r)
	if !ok {
		return
	}
	summary := usageSummary{DBCount: tenant.DBCount, IsPaid: tenant.IsPaid}
	if tenant.FreeTier() {
		summary.Limit = a.Quota.Limit()
		summary.Remaining = max(summary.Limit-tenant.DBCount, 0)
	}
	writeJSON(w, http.StatusOK, envelope{Success: true, Response: summary})
}

// @Summary List usage events by tenant
// @Tags Usage
// @Security ApiKeyAuth
// @Produce json
// @Param cursor query string false "Pagination cursor"
// @Param limit query int false "Page size"
// @Success 200 {object} envelope
// @Router /api/v1/usage/events [get]
func (a *API) UsageEvents(w http.ResponseWriter, r *http.Request) {
	tenant, ok := a.tenant(w, r)
	if !ok {
		return
	}

	cursor := r.URL.Query().Get("cursor")
	if cursor != "" {
		if _, err := uuid.Parse(cursor); err != nil {
			a.writeError(w, r, apperr.Validation("Invalid payload", []apperr.FieldError{{Field: "cursor", Message: "cursor must be an event id"}}))
			return
		}
	}
	limit := defaultEventPage
	if s := r.URL.Query().Get("limit"); s != "" {
		n, err := strconv.Atoi(s)
		if err != nil || n < 1 || n > maxEventPage {
			a.writeError(w, r, apperr.Validation("Invalid payload", []apperr.FieldError{{Field: "limit", Message: fmt.Sprintf("limit must be between 1 and %d", maxEventPage)}}))
			return
		}
		limit = n
	}

	events, next, err := a.Events.ListUsageEventsPaginated(r.Context(), tenant.ID, cursor, limit)
	if err != nil {
		a.writeError(w, r, apperr.Internal("Failed to list usage events.", err))
		return
	}
	if events == nil {
		events = []model.UsageEvent{}
	}
	writeJSON(w, http.StatusOK, envelope{Success: true, Response: map[string]any{
		"data":        events,
		"next_cursor": next,
	}})
}

// @Summary List tenants
// @Tags Admin
// @Security BearerAuth
// @Produce json
// @Success 200 {object} envelope
// @Router /api/v1/admin/tenants [get]
func (a *API) ListTenants(w http.ResponseWriter, r *http.Request) {
	tenants, err := a.Tenants.ListTenants(r.Context())
	if err != nil {
		a.writeError(w, r, apperr.Internal("Failed to list tenants.", err))
		return
	}
	writeJSON(w, http.StatusOK, envelope{Success: true, Response: tenants})
}

// @Summary Update tenant flags
// @Tags Admin
// @Security BearerAuth
// @Accept json
// @Produce json
// @Param id path string true "Tenant UUID"
// @Param body body model.TenantFlags true "Flags"
// @Success 200 {object} envelope
// @Failure 404 {object} envelope
// @Router /api/v1/admin/tenants/{id} [patch]
func (a *API) UpdateTenant(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		a.writeError(w, r, apperr.Validation("Invalid payload", []apperr.FieldError{{Field: "id", Message: "invalid tenant id"}}))
		return
	}
	res, ok := a.validate(w, r, validation.SchemaTenantFlags)
	if !ok {
		return
	}

	flags := model.TenantFlags{IsActive: res.Bool("is_active"), IsPaid: res.Bool("is_paid")}
	tenant, err := a.Tenants.UpdateTenantFlags(r.Context(), id, flags)
	if errors.Is(err, storage.ErrTenantNotFound) {
		a.writeError(w, r, apperr.NotFound("Tenant not found"))
		return
	}
	if err != nil {
		a.writeError(w, r, apperr.Internal("Failed to update tenant.", err))
		return
	}

	claims, _ := auth.ClaimsFromContext(r.Context())
	subject := ""
	if claims != nil {
		subject = claims.Subject
	}
	a.logger.Info("tenant flags updated",
		zap.String("tenant", id.String()),
		zap.String("admin", subject),
		zap.Any("flags", flags),
	)
	writeJSON(w, http.StatusOK, envelope{Success: true, Message: "Tenant updated successfully", Response: tenant})
}
