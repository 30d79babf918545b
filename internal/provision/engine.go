// Package provision brings a database/collection pair to the "exists and
// seeded" state with the minimal store mutation, and owns the destructive
// collection and database drops.
package provision

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"docgate/internal/apperr"
	"docgate/internal/docstore"
	"docgate/internal/metrics"
	"docgate/internal/model"
	"docgate/internal/quota"
)

type Outcome string

const (
	OutcomeCreatedWithSeed Outcome = "created_with_seed"
	OutcomeSeeded          Outcome = "seeded"
	OutcomeAlreadyPresent  Outcome = "already_present"
	OutcomeCreated         Outcome = "created"
	OutcomeDropped         Outcome = "dropped"
)

const (
	opProvision        = "provision"
	opCreateCollection = "create_collection"
	opDropCollection   = "drop_collection"
	opDropDatabase     = "drop_database"
)

// Result describes what one operation did to one collection.
type Result struct {
	Database   string  `json:"database"`
	Collection string  `json:"collection,omitempty"`
	Outcome    Outcome `json:"outcome"`
	Message    string  `json:"message"`
}

// Mutated reports whether the operation created or seeded anything.
func (r Result) Mutated() bool {
	return r.Outcome == OutcomeCreatedWithSeed || r.Outcome == OutcomeSeeded || r.Outcome == OutcomeCreated
}

// EventPublisher receives one usage event per successful mutating operation.
type EventPublisher interface {
	PublishUsageEvent(ctx context.Context, ev model.UsageEvent) error
}

// NopPublisher discards events.
type NopPublisher struct{}

func (NopPublisher) PublishUsageEvent(context.Context, model.UsageEvent) error { return nil }

type Engine struct {
	quota  *quota.Tracker
	events EventPublisher
	logger *zap.Logger
	now    func() time.Time
}

func NewEngine(tracker *quota.Tracker, events EventPublisher, logger *zap.Logger) *Engine {
	if events == nil {
		events = NopPublisher{}
	}
	return &Engine{
		quota:  tracker,
		events: events,
		logger: logger,
		now:    func() time.Time { return time.Now().UTC() },
	}
}

func (e *Engine) quotaExceeded(operation string) error {
	metrics.QuotaRejections.Inc()
	metrics.ProvisionOutcomes.WithLabelValues(operation, "quota_exceeded").Inc()
	return apperr.QuotaExceeded(fmt.Sprintf("Free users can create up to %d databases only.", e.quota.Limit()))
}

func (e *Engine) fail(operation, message string, err error) error {
	metrics.ProvisionOutcomes.WithLabelValues(operation, "error").Inc()
	if _, ok := apperr.As(err); ok {
		return err
	}
	return apperr.Store(message, err)
}

func (e *Engine) done(ctx context.Context, operation string, tenant *model.Tenant, kind model.UsageEventKind, r Result) Result {
	metrics.ProvisionOutcomes.WithLabelValues(operation, string(r.Outcome)).Inc()
	e.logger.Info("provisioning operation completed",
		zap.String("operation", operation),
		zap.String("tenant", tenant.ID.String()),
		zap.String("database", r.Database),
		zap.String("collection", r.Collection),
		zap.String("outcome", string(r.Outcome)),
	)
	if kind != "" {
		ev := model.NewUsageEvent(tenant.ID, kind, r.Database, r.Collection)
		if err := e.events.PublishUsageEvent(ctx, ev); err != nil {
			e.logger.Warn("failed to publish usage event",
				zap.String("tenant", tenant.ID.String()),
				zap.String("kind", string(kind)),
				zap.Error(err),
			)
		}
	}
	return r
}

// seed inserts the bootstrap document. A duplicate key means a concurrent
// request seeded first, which is reported as inserted == false.
func (e *Engine) seed(ctx context.Context, s docstore.Session, database, collection string) (bool, error) {
	rec := model.NewSeedRecord(collection, e.now())
	if _, err := s.InsertOne(ctx, database, collection, rec.Document()); err != nil {
		if errors.Is(err, docstore.ErrDuplicateKey) {
			return false, nil
		}
		return false, err
	}
	return true, nil
}

// ensureCollection creates the collection, treating a concurrent creation as success.
func ensureCollection(ctx context.Context, s docstore.Session, database, collection string) error {
	err := s.CreateCollection(ctx, database, collection)
	if errors.Is(err, docstore.ErrCollectionExists) {
		return nil
	}
	return err
}

// Provision ensures database/collection exists and holds data, seeding it
// when it is new or empty. Only a creation or seed is charged to the quota.
func (e *Engine) Provision(ctx context.Context, s docstore.Session, database, collection string, tenant *model.Tenant) (Result, error) {
	const failMsg = "An error occurred while creating the database or collection."
	if e.quota.CheckLimit(tenant) {
		return Result{}, e.quotaExceeded(opProvision)
	}

	res := Result{Database: database, Collection: collection}
	alreadyPresent := func() Result {
		res.Outcome = OutcomeAlreadyPresent
		res.Message = fmt.Sprintf("Database '%s' and collection '%s' are already present with data.", database, collection)
		return e.done(ctx, opProvision, tenant, "", res)
	}

	dbExists, err := docstore.HasDatabase(ctx, s, database)
	if err != nil {
		return Result{}, e.fail(opProvision, failMsg, err)
	}

	collExists := false
	if dbExists {
		collExists, err = docstore.HasCollection(ctx, s, database, collection)
		if err != nil {
			return Result{}, e.fail(opProvision, failMsg, err)
		}
	}

	if collExists {
		n, err := s.CountDocuments(ctx, database, collection)
		if err != nil {
			return Result{}, e.fail(opProvision, failMsg, err)
		}
		if n > 0 {
			return alreadyPresent(), nil
		}
		inserted, err := e.seed(ctx, s, database, collection)
		if err != nil {
			return Result{}, e.fail(opProvision, failMsg, err)
		}
		if !inserted {
			return alreadyPresent(), nil
		}
		if err := e.quota.Charge(ctx, tenant); err != nil {
			return Result{}, e.fail(opProvision, failMsg, err)
		}
		res.Outcome = OutcomeSeeded
		res.Message = fmt.Sprintf("Collection '%s' in database '%s' was empty and now has initial data.", collection, database)
		return e.done(ctx, opProvision, tenant, model.UsageProvisioned, res), nil
	}

	if err := ensureCollection(ctx, s, database, collection); err != nil {
		return Result{}, e.fail(opProvision, failMsg, err)
	}
	inserted, err := e.seed(ctx, s, database, collection)
	if err != nil {
		return Result{}, e.fail(opProvision, failMsg, err)
	}
	if !inserted {
		return alreadyPresent(), nil
	}
	if err := e.quota.Charge(ctx, tenant); err != nil {
		return Result{}, e.fail(opProvision, failMsg, err)
	}
	res.Outcome = OutcomeCreatedWithSeed
	if dbExists {
		res.Message = fmt.Sprintf("Collection '%s' created in database '%s' with initial data.", collection, database)
	} else {
		res.Message = fmt.Sprintf("Database '%s' and collection '%s' created with initial data.", database, collection)
	}
	return e.done(ctx, opProvision, tenant, model.UsageProvisioned, res), nil
}

// ProvisionAll provisions each collection in order. The first failure stops
// the sequence; results gathered so far are returned with it.
func (e *Engine) ProvisionAll(ctx context.Context, s docstore.Session, database string, collections []string, tenant *model.Tenant) ([]Result, error) {
	results := make([]Result, 0, len(collections))
	for _, c := range collections {
		r, err := e.Provision(ctx, s, database, c, tenant)
		if err != nil {
			return results, err
		}
		results = append(results, r)
	}
	return results, nil
}

// CreateCollectionOnly creates a new, empty collection. It never seeds and
// fails with a conflict when the collection is already there.
func (e *Engine) CreateCollectionOnly(ctx context.Context, s docstore.Session, database, collection string, tenant *model.Tenant) (Result, error) {
	const failMsg = "An error occurred while creating the collection."
	if e.quota.CheckLimit(tenant) {
		return Result{}, e.quotaExceeded(opCreateCollection)
	}
	conflict := func() error {
		metrics.ProvisionOutcomes.WithLabelValues(opCreateCollection, "conflict").Inc()
		return apperr.Conflict("Collection '%s' already exists in database '%s'.", collection, database)
	}

	exists, err := docstore.HasCollection(ctx, s, database, collection)
	if err != nil {
		return Result{}, e.fail(opCreateCollection, failMsg, err)
	}
	if exists {
		return Result{}, conflict()
	}
	if err := s.CreateCollection(ctx, database, collection); err != nil {
		if errors.Is(err, docstore.ErrCollectionExists) {
			return Result{}, conflict()
		}
		return Result{}, e.fail(opCreateCollection, failMsg, err)
	}
	if err := e.quota.Charge(ctx, tenant); err != nil {
		return Result{}, e.fail(opCreateCollection, failMsg, err)
	}
	return e.done(ctx, opCreateCollection, tenant, model.UsageCreated, Result{
		Database:   database,
		Collection: collection,
		Outcome:    OutcomeCreated,
		Message:    fmt.Sprintf("Collection '%s' created in database '%s'.", collection, database),
	}), nil
}

// CreateCollectionsOnly applies CreateCollectionOnly to each name in order,
// stopping at the first failure.
func (e *Engine) CreateCollectionsOnly(ctx context.Context, s docstore.Session, database string, collections []string, tenant *model.Tenant) ([]Result, error) {
	results := make([]Result, 0, len(collections))
	for _, c := range collections {
		r, err := e.CreateCollectionOnly(ctx, s, database, c, tenant)
		if err != nil {
			return results, err
		}
		results = append(results, r)
	}
	return results, nil
}

// DropCollections drops every named collection concurrently on the same
// session. The usage counter is not decremented.
func (e *Engine) DropCollections(ctx context.Context, s docstore.Session, database string, collections []string, tenant *model.Tenant) ([]Result, error) {
	results := make([]Result, len(collections))
	g, gctx := errgroup.WithContext(ctx)
	for i, c := range collections {
		i, c := i, c
		g.Go(func() error {
			if err := s.DropCollection(gctx, database, c); err != nil {
				return e.fail(opDropCollection, "An error occurred while dropping the collection.", err)
			}
			results[i] = e.done(ctx, opDropCollection, tenant, model.UsageDroppedCollection, Result{
				Database:   database,
				Collection: c,
				Outcome:    OutcomeDropped,
				Message:    fmt.Sprintf("Collection '%s' dropped successfully.", c),
			})
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return results, nil
}

// DropDatabase drops database with all its collections. The usage counter is
// not decremented.
func (e *Engine) DropDatabase(ctx context.Context, s docstore.Session, database string, tenant *model.Tenant) (Result, error) {
	if err := s.DropDatabase(ctx, database); err != nil {
		return Result{}, e.fail(opDropDatabase, "An error occurred while dropping the database.", err)
	}
	return e.done(ctx, opDropDatabase, tenant, model.UsageDroppedDatabase, Result{
		Database: database,
		Outcome:  OutcomeDropped,
		Message:  fmt.Sprintf("Database '%s' dropped successfully.", database),
	}), nil
}
