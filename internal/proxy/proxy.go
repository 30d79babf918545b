// Package proxy passes document operations through to an existing collection.
// Query, filter and update contents are opaque and interpreted by the store.
package proxy

import (
	"context"

	"go.uber.org/zap"

	"docgate/internal/apperr"
	"docgate/internal/docstore"
	"docgate/internal/metrics"
	"docgate/internal/model"
)

type Proxy struct {
	logger *zap.Logger
}

func New(logger *zap.Logger) *Proxy {
	return &Proxy{logger: logger}
}

func (p *Proxy) observe(operation string, err error) {
	result := "ok"
	if err != nil {
		result = apperr.KindOf(err).String()
		p.logger.Warn("document operation failed", zap.String("operation", operation), zap.Error(err))
	}
	metrics.ProxyOperations.WithLabelValues(operation, result).Inc()
}

// Insert stores document in an existing collection. It never creates the
// collection: a missing one is reported as not found and nothing is written.
func (p *Proxy) Insert(ctx context.Context, s docstore.Session, database, collection string, document model.Document) (res docstore.InsertResult, err error) {
	defer func() { p.observe("insert", err) }()
	const failMsg = "An error occurred while inserting the document."

	exists, err := docstore.HasCollection(ctx, s, database, collection)
	if err != nil {
		return res, apperr.Store(failMsg, err)
	}
	if !exists {
		return res, apperr.NotFound("Collection '%s' does not exist in database '%s'.", collection, database)
	}
	res, err = s.InsertOne(ctx, database, collection, document)
	if err != nil {
		return res, apperr.Store(failMsg, err)
	}
	return res, nil
}

// Fetch returns at most limit documents matching query, skipping the first
// offset, in the order the store yields them.
func (p *Proxy) Fetch(ctx context.Context, s docstore.Session, database, collection string, query model.Document, limit, offset int64) (docs []model.Document, err error) {
	defer func() { p.observe("fetch", err) }()
	if query == nil {
		query = model.Document{}
	}
	docs, err = s.Find(ctx, database, collection, query, limit, offset)
	if err != nil {
		return nil, apperr.Store("An error occurred while fetching the documents.", err)
	}
	return docs, nil
}

// Update merges update into every document matching filter.
func (p *Proxy) Update(ctx context.Context, s docstore.Session, database, collection string, filter, update model.Document) (res docstore.UpdateResult, err error) {
	defer func() { p.observe("update", err) }()
	res, err = s.UpdateMany(ctx, database, collection, filter, update)
	if err != nil {
		return res, apperr.Store("An error occurred while updating the documents.", err)
	}
	return res, nil
}

// Delete removes every document matching filter.
func (p *Proxy) Delete(ctx context.Context, s docstore.Session, database, collection string, filter model.Document) (res docstore.DeleteResult, err error) {
	defer func() { p.observe("delete", err) }()
	res, err = s.DeleteMany(ctx, database, collection, filter)
	if err != nil {
		return res, apperr.Store("An error occurred while deleting the documents.", err)
	}
	return res, nil
}
