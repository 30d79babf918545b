// Package docstore is the boundary to the caller-addressed document stores.
// Query, filter and update semantics belong to the store; this package only
// moves opaque documents across.
package docstore

import (
	"context"
	"errors"
	"fmt"
	"time"

	"docgate/internal/model"
)

var (
	// ErrCollectionExists is returned by CreateCollection when the namespace is taken.
	ErrCollectionExists = errors.New("collection already exists")
	// ErrDuplicateKey is returned by InsertOne when the document _id is taken.
	ErrDuplicateKey = errors.New("duplicate key")
)

type InsertResult struct {
	Acknowledged bool `json:"acknowledged"`
	InsertedID   any  `json:"insertedId"`
}

type UpdateResult struct {
	MatchedCount  int64 `json:"matchedCount"`
	ModifiedCount int64 `json:"modifiedCount"`
}

type DeleteResult struct {
	DeletedCount int64 `json:"deletedCount"`
}

// Connector opens sessions against the store a URI describes.
type Connector interface {
	Connect(ctx context.Context, uri string) (Session, error)
}

// Session is one open connection. It is owned by a single request.
type Session interface {
	ListDatabaseNames(ctx context.Context) ([]string, error)
	ListCollectionNames(ctx context.Context, database string) ([]string, error)
	CreateCollection(ctx context.Context, database, collection string) error
	DropCollection(ctx context.Context, database, collection string) error
	DropDatabase(ctx context.Context, database string) error
	CountDocuments(ctx context.Context, database, collection string) (int64, error)
	InsertOne(ctx context.Context, database, collection string, doc model.Document) (InsertResult, error)
	Find(ctx context.Context, database, collection string, query model.Document, limit, offset int64) ([]model.Document, error)
	UpdateMany(ctx context.Context, database, collection string, filter, update model.Document) (UpdateResult, error)
	DeleteMany(ctx context.Context, database, collection string, filter model.Document) (DeleteResult, error)
	Disconnect(ctx context.Context) error
}

// NewConnector returns the connector for a configured driver name.
func NewConnector(driver string, connectTimeout time.Duration) (Connector, error) {
	switch driver {
	case "mongo":
		return NewMongoConnector(connectTimeout), nil
	case "memory":
		return NewMemoryServer(), nil
	default:
		return nil, fmt.Errorf("unknown store driver %q", driver)
	}
}

func contains(names []string, name string) bool {
	for _, n := range names {
		if n == name {
			return true
		}
	}
	return false
}

// HasDatabase reports whether database appears in the store's database list.
func HasDatabase(ctx context.Context, s Session, database string) (bool, error) {
	names, err := s.ListDatabaseNames(ctx)
	if err != nil {
		return false, err
	}
	return contains(names, database), nil
}

// HasCollection reports whether collection exists in database.
func HasCollection(ctx context.Context, s Session, database, collection string) (bool, error) {
	names, err := s.ListCollectionNames(ctx, database)
	if err != nil {
		return false, err
	}
	return contains(names, collection), nil
}
