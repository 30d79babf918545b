package docstore

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.mongodb.org/mongo-driver/mongo/readpref"

	"docgate/internal/model"
)

// codeNamespaceExists is the server error code for createCollection on an existing namespace.
const codeNamespaceExists = 48

type MongoConnector struct {
	connectTimeout time.Duration
}

func NewMongoConnector(connectTimeout time.Duration) *MongoConnector {
	return &MongoConnector{connectTimeout: connectTimeout}
}

// Connect dials the URI and pings the primary, so a returned session is known
// to be reachable.
func (c *MongoConnector) Connect(ctx context.Context, uri string) (Session, error) {
	opts := options.Client().
		ApplyURI(uri).
		SetConnectTimeout(c.connectTimeout).
		SetServerSelectionTimeout(c.connectTimeout)

	client, err := mongo.Connect(ctx, opts)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to mongodb: %w", err)
	}

	pingCtx, cancel := context.WithTimeout(ctx, c.connectTimeout)
	defer cancel()
	if err := client.Ping(pingCtx, readpref.Primary()); err != nil {
		_ = client.Disconnect(context.WithoutCancel(ctx))
		return nil, fmt.Errorf("failed to ping mongodb: %w", err)
	}
	return &mongoSession{client: client}, nil
}

type mongoSession struct {
	client *mongo.Client
}

func (s *mongoSession) coll(database, collection string) *mongo.Collection {
	return s.client.Database(database).Collection(collection)
}

func (s *mongoSession) ListDatabaseNames(ctx context.Context) ([]string, error) {
	return s.client.ListDatabaseNames(ctx, bson.D{})
}

func (s *mongoSession) ListCollectionNames(ctx context.Context, database string) ([]string, error) {
	return s.client.Database(database).ListCollectionNames(ctx, bson.D{})
}

func (s *mongoSession) CreateCollection(ctx context.Context, database, collection string) error {
	err := s.client.Database(database).CreateCollection(ctx, collection)
	var cmdErr mongo.CommandError
	if errors.As(err, &cmdErr) && cmdErr.Code == codeNamespaceExists {
		return ErrCollectionExists
	}
	return err
}

func (s *mongoSession) DropCollection(ctx context.Context, database, collection string) error {
	return s.coll(database, collection).Drop(ctx)
}

func (s *mongoSession) DropDatabase(ctx context.Context, database string) error {
	return s.client.Database(database).Drop(ctx)
}

func (s *mongoSession) CountDocuments(ctx context.Context, database, collection string) (int64, error) {
	return s.coll(database, collection).CountDocuments(ctx, bson.D{})
}

func (s *mongoSession) InsertOne(ctx context.Context, database, collection string, doc model.Document) (InsertResult, error) {
	res, err := s.coll(database, collection).InsertOne(ctx, toBSON(doc))
	if mongo.IsDuplicateKeyError(err) {
		return InsertResult{}, ErrDuplicateKey
	}
	if err != nil {
		return InsertResult{}, err
	}
	return InsertResult{Acknowledged: true, InsertedID: res.InsertedID}, nil
}

func (s *mongoSession) Find(ctx context.Context, database, collection string, query model.Document, limit, offset int64) ([]model.Document, error) {
	opts := options.Find().SetSkip(offset).SetLimit(limit)
	cur, err := s.coll(database, collection).Find(ctx, toBSON(query), opts)
	if err != nil {
		return nil, err
	}
	var rows []bson.M
	if err := cur.All(ctx, &rows); err != nil {
		return nil, err
	}
	docs := make([]model.Document, 0, len(rows))
	for _, r := range rows {
		docs = append(docs, model.Document(r))
	}
	return docs, nil
}

func (s *mongoSession) UpdateMany(ctx context.Context, database, collection string, filter, update model.Document) (UpdateResult, error) {
	res, err := s.coll(database, collection).UpdateMany(ctx, toBSON(filter), bson.M{"$set": toBSON(update)})
	if err != nil {
		return UpdateResult{}, err
	}
	return UpdateResult{MatchedCount: res.MatchedCount, ModifiedCount: res.ModifiedCount}, nil
}

func (s *mongoSession) DeleteMany(ctx context.Context, database, collection string, filter model.Document) (DeleteResult, error) {
	res, err := s.coll(database, collection).DeleteMany(ctx, toBSON(filter))
	if err != nil {
		return DeleteResult{}, err
	}
	return DeleteResult{DeletedCount: res.DeletedCount}, nil
}

func (s *mongoSession) Disconnect(ctx context.Context) error {
	return s.client.Disconnect(ctx)
}

// toBSON converts a document for the driver. A 24-hex string _id is turned
// into an ObjectID so callers can address documents by the id they were given.
func toBSON(doc model.Document) bson.M {
	out := bson.M{}
	for k, v := range doc {
		out[k] = v
	}
	if id, ok := out["_id"].(string); ok && primitive.IsValidObjectID(id) {
		oid, _ := primitive.ObjectIDFromHex(id)
		out["_id"] = oid
	}
	return out
}
