package docstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"reflect"
	"sort"
	"strings"
	"sync"

	"go.mongodb.org/mongo-driver/bson/primitive"

	"docgate/internal/model"
)

// Operation names accepted by MemoryServer.FailOn.
const (
	OpConnect          = "connect"
	OpListDatabases    = "listDatabases"
	OpListCollections  = "listCollections"
	OpCreateCollection = "createCollection"
	OpDropCollection   = "dropCollection"
	OpDropDatabase     = "dropDatabase"
	OpCount            = "count"
	OpInsert           = "insert"
	OpFind             = "find"
	OpUpdate           = "update"
	OpDelete           = "delete"
)

var errDisconnected = errors.New("client is disconnected")

// MemoryServer is an in-process store with MongoDB-like namespace rules: a
// database exists while it holds at least one collection, and inserting into a
// missing collection creates it. Filters match on top-level field equality.
// It serves the "memory" store driver and tests.
type MemoryServer struct {
	mu        sync.Mutex
	databases map[string]map[string]*memCollection
	failures  map[string]error
	mutations int
	open      int
}

type memCollection struct {
	docs []model.Document
}

func NewMemoryServer() *MemoryServer {
	return &MemoryServer{
		databases: make(map[string]map[string]*memCollection),
		failures:  make(map[string]error),
	}
}

// FailOn makes every later call of op return err. A nil err clears it.
func (s *MemoryServer) FailOn(op string, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err == nil {
		delete(s.failures, op)
		return
	}
	s.failures[op] = err
}

// Mutations counts successful calls that changed the store.
func (s *MemoryServer) Mutations() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.mutations
}

// OpenSessions counts sessions connected and not yet disconnected.
func (s *MemoryServer) OpenSessions() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.open
}

// Documents returns a copy of a collection's documents in insertion order.
func (s *MemoryServer) Documents(database, collection string) []model.Document {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.databases[database][collection]
	if !ok {
		return nil
	}
	out := make([]model.Document, 0, len(c.docs))
	for _, d := range c.docs {
		out = append(out, copyDoc(d))
	}
	return out
}

func (s *MemoryServer) Connect(ctx context.Context, uri string) (Session, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if !strings.Contains(uri, "://") {
		return nil, fmt.Errorf("invalid connection uri %q", uri)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.failures[OpConnect]; err != nil {
		return nil, err
	}
	s.open++
	return &memSession{server: s}, nil
}

type memSession struct {
	server *MemoryServer
	closed bool
}

// begin locks the server and checks the session, context and injected failures.
// The caller must unlock when it returns nil.
func (m *memSession) begin(ctx context.Context, op string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	m.server.mu.Lock()
	if m.closed {
		m.server.mu.Unlock()
		return errDisconnected
	}
	if err := m.server.failures[op]; err != nil {
		m.server.mu.Unlock()
		return err
	}
	return nil
}

func (m *memSession) end() {
	m.server.mu.Unlock()
}

func (m *memSession) collection(database, collection string, create bool) *memCollection {
	db, ok := m.server.databases[database]
	if !ok {
		if !create {
			return nil
		}
		db = make(map[string]*memCollection)
		m.server.databases[database] = db
	}
	c, ok := db[collection]
	if !ok && create {
		c = &memCollection{}
		db[collection] = c
	}
	return c
}

func (m *memSession) ListDatabaseNames(ctx context.Context) ([]string, error) {
	if err := m.begin(ctx, OpListDatabases); err != nil {
		return nil, err
	}
	defer m.end()
	names := make([]string, 0, len(m.server.databases))
	for name, colls := range m.server.databases {
		if len(colls) > 0 {
			names = append(names, name)
		}
	}
	sort.Strings(names)
	return names, nil
}

func (m *memSession) ListCollectionNames(ctx context.Context, database string) ([]string, error) {
	if err := m.begin(ctx, OpListCollections); err != nil {
		return nil, err
	}
	defer m.end()
	names := make([]string, 0)
	for name := range m.server.databases[database] {
		names = append(names, name)
	}
	sort.Strings(names)
	return names, nil
}

func (m *memSession) CreateCollection(ctx context.Context, database, collection string) error {
	if err := m.begin(ctx, OpCreateCollection); err != nil {
		return err
	}
	defer m.end()
	if m.collection(database, collection, false) != nil {
		return ErrCollectionExists
	}
	m.collection(database, collection, true)
	m.server.mutations++
	return nil
}

func (m *memSession) DropCollection(ctx context.Context, database, collection string) error {
	if err := m.begin(ctx, OpDropCollection); err != nil {
		return err
	}
	defer m.end()
	if db, ok := m.server.databases[database]; ok {
		delete(db, collection)
		if len(db) == 0 {
			delete(m.server.databases, database)
		}
	}
	m.server.mutations++
	return nil
}

func (m *memSession) DropDatabase(ctx context.Context, database string) error {
	if err := m.begin(ctx, OpDropDatabase); err != nil {
		return err
	}
	defer m.end()
	delete(m.server.databases, database)
	m.server.mutations++
	return nil
}

func (m *memSession) CountDocuments(ctx context.Context, database, collection string) (int64, error) {
	if err := m.begin(ctx, OpCount); err != nil {
		return 0, err
	}
	defer m.end()
	c := m.collection(database, collection, false)
	if c == nil {
		return 0, nil
	}
	return int64(len(c.docs)), nil
}

func (m *memSession) InsertOne(ctx context.Context, database, collection string, doc model.Document) (InsertResult, error) {
	if err := m.begin(ctx, OpInsert); err != nil {
		return InsertResult{}, err
	}
	defer m.end()
	stored := copyDoc(doc)
	if id, ok := stored["_id"].(string); ok && primitive.IsValidObjectID(id) {
		stored["_id"], _ = primitive.ObjectIDFromHex(id)
	}
	if _, ok := stored["_id"]; !ok {
		stored["_id"] = primitive.NewObjectID()
	}
	c := m.collection(database, collection, false)
	if c != nil {
		for _, d := range c.docs {
			if valuesEqual(d["_id"], stored["_id"]) {
				return InsertResult{}, ErrDuplicateKey
			}
		}
	} else {
		c = m.collection(database, collection, true)
	}
	c.docs = append(c.docs, stored)
	m.server.mutations++
	return InsertResult{Acknowledged: true, InsertedID: stored["_id"]}, nil
}

func (m *memSession) Find(ctx context.Context, database, collection string, query model.Document, limit, offset int64) ([]model.Document, error) {
	if err := m.begin(ctx, OpFind); err != nil {
		return nil, err
	}
	defer m.end()
	out := make([]model.Document, 0)
	c := m.collection(database, collection, false)
	if c == nil {
		return out, nil
	}
	var skipped int64
	for _, d := range c.docs {
		ok, err := matches(d, query)
		if err != nil {
			return nil, err
		}
		if !ok {
			continue
		}
		if skipped < offset {
			skipped++
			continue
		}
		if limit > 0 && int64(len(out)) >= limit {
			break
		}
		out = append(out, copyDoc(d))
	}
	return out, nil
}

func (m *memSession) UpdateMany(ctx context.Context, database, collection string, filter, update model.Document) (UpdateResult, error) {
	if err := m.begin(ctx, OpUpdate); err != nil {
		return UpdateResult{}, err
	}
	defer m.end()
	var res UpdateResult
	c := m.collection(database, collection, false)
	if c == nil {
		return res, nil
	}
	for _, d := range c.docs {
		ok, err := matches(d, filter)
		if err != nil {
			return UpdateResult{}, err
		}
		if !ok {
			continue
		}
		res.MatchedCount++
		changed := false
		for k, v := range update {
			if cur, ok := d[k]; !ok || !valuesEqual(cur, v) {
				d[k] = copyValue(v)
				changed = true
			}
		}
		if changed {
			res.ModifiedCount++
		}
	}
	if res.ModifiedCount > 0 {
		m.server.mutations++
	}
	return res, nil
}

func (m *memSession) DeleteMany(ctx context.Context, database, collection string, filter model.Document) (DeleteResult, error) {
	if err := m.begin(ctx, OpDelete); err != nil {
		return DeleteResult{}, err
	}
	defer m.end()
	var res DeleteResult
	c := m.collection(database, collection, false)
	if c == nil {
		return res, nil
	}
	kept := c.docs[:0]
	for _, d := range c.docs {
		ok, err := matches(d, filter)
		if err != nil {
			return DeleteResult{}, err
		}
		if ok {
			res.DeletedCount++
			continue
		}
		kept = append(kept, d)
	}
	c.docs = kept
	if res.DeletedCount > 0 {
		m.server.mutations++
	}
	return res, nil
}

func (m *memSession) Disconnect(ctx context.Context) error {
	m.server.mu.Lock()
	defer m.server.mu.Unlock()
	if m.closed {
		return errDisconnected
	}
	m.closed = true
	m.server.open--
	return nil
}

func matches(doc, filter model.Document) (bool, error) {
	for k, want := range filter {
		if strings.HasPrefix(k, "$") {
			return false, fmt.Errorf("memory store: operator %s not supported", k)
		}
		if id, ok := want.(string); ok && k == "_id" && primitive.IsValidObjectID(id) {
			want, _ = primitive.ObjectIDFromHex(id)
		}
		if !valuesEqual(doc[k], want) {
			return false, nil
		}
	}
	return true, nil
}

// valuesEqual compares numbers by value regardless of their Go type.
func valuesEqual(a, b any) bool {
	fa, aNum := toFloat(a)
	fb, bNum := toFloat(b)
	if aNum && bNum {
		return fa == fb
	}
	return reflect.DeepEqual(a, b)
}

func toFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case json.Number:
		f, err := n.Float64()
		return f, err == nil
	case int:
		return float64(n), true
	case int32:
		return float64(n), true
	case int64:
		return float64(n), true
	case float32:
		return float64(n), true
	case float64:
		return n, true
	}
	return 0, false
}

// copyDoc copies d with its nested maps and slices so stored documents never
// share memory with callers.
func copyDoc(d model.Document) model.Document {
	out := make(model.Document, len(d))
	for k, v := range d {
		out[k] = copyValue(v)
	}
	return out
}

func copyValue(v any) any {
	switch t := v.(type) {
	case model.Document:
		return copyDoc(t)
	case map[string]any:
		return map[string]any(copyDoc(t))
	case []any:
		out := make([]any, len(t))
		for i, item := range t {
			out[i] = copyValue(item)
		}
		return out
	}
	return v
}
