package validation

import (
	"encoding/json"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"docgate/internal/apperr"
)

func newGate(t *testing.T) *Gate {
	t.Helper()
	g, err := NewGate()
	require.NoError(t, err)
	return g
}

func decode(t *testing.T, body string) map[string]any {
	t.Helper()
	var m map[string]any
	require.NoError(t, json.Unmarshal([]byte(body), &m))
	return m
}

func hasField(errs []apperr.FieldError, field, message string) bool {
	for _, e := range errs {
		if e.Field == field && (message == "" || e.Message == message) {
			return true
		}
	}
	return false
}

func TestDatabaseSchemaValid(t *testing.T) {
	g := newGate(t)
	res, err := g.Validate(SchemaDatabase, decode(t, `{
		"databaseName": "shop",
		"mongodbURI": "mongodb://localhost:27017",
		"collectionName": "orders"
	}`))
	require.NoError(t, err)
	require.True(t, res.Valid, res.Errors)
	assert.NoError(t, res.Err())
	assert.Equal(t, "shop", res.String("databaseName"))
	assert.Equal(t, []string{"orders"}, res.Names("collectionName"))
}

func TestCollectionNameList(t *testing.T) {
	g := newGate(t)
	res, err := g.Validate(SchemaDropCollection, decode(t, `{
		"databaseName": "shop",
		"mongodbURI": "mongodb+srv://user:pw@cluster0.example.net/",
		"collectionName": ["orders", "carts"]
	}`))
	require.NoError(t, err)
	require.True(t, res.Valid, res.Errors)
	assert.Equal(t, []string{"orders", "carts"}, res.Names("collectionName"))
}

func TestLowercaseMessages(t *testing.T) {
	g := newGate(t)

	res, err := g.Validate(SchemaDatabase, decode(t, `{
		"databaseName": "Shop",
		"mongodbURI": "mongodb://localhost:27017",
		"collectionName": "Orders"
	}`))
	require.NoError(t, err)
	assert.False(t, res.Valid)
	assert.True(t, hasField(res.Errors, "databaseName", "Database name must be in lowercase"), res.Errors)
	assert.True(t, hasField(res.Errors, "collectionName", "Collection name must be in lowercase"), res.Errors)

	res, err = g.Validate(SchemaDatabase, decode(t, `{
		"databaseName": "shop",
		"mongodbURI": "mongodb://localhost:27017",
		"collectionName": ["orders", "Carts"]
	}`))
	require.NoError(t, err)
	assert.False(t, res.Valid)
	assert.True(t, hasField(res.Errors, "collectionName.1", "Collection names must be in lowercase"), res.Errors)

	verr, ok := apperr.As(res.Err())
	require.True(t, ok)
	assert.Equal(t, apperr.KindValidation, verr.Kind)
	assert.Equal(t, "Invalid payload", verr.Message)
	assert.Equal(t, res.Errors, verr.Details)
}

func TestNameLengthBounds(t *testing.T) {
	g := newGate(t)
	for _, name := range []string{"", strings.Repeat("a", 256)} {
		res, err := g.Validate(SchemaDropDatabase, map[string]any{
			"databaseName": name,
			"mongodbURI":   "mongodb://localhost:27017",
		})
		require.NoError(t, err)
		assert.False(t, res.Valid, "len %d", len(name))
		assert.True(t, hasField(res.Errors, "databaseName", ""))
	}

	res, err := g.Validate(SchemaDropDatabase, map[string]any{
		"databaseName": strings.Repeat("a", 255),
		"mongodbURI":   "mongodb://localhost:27017",
	})
	require.NoError(t, err)
	assert.True(t, res.Valid, res.Errors)
}

func TestMissingFieldsAndBadURI(t *testing.T) {
	g := newGate(t)
	res, err := g.Validate(SchemaDatabase, decode(t, `{"mongodbURI": "not a uri"}`))
	require.NoError(t, err)
	assert.False(t, res.Valid)
	assert.True(t, hasField(res.Errors, "databaseName", "databaseName is required"))
	assert.True(t, hasField(res.Errors, "collectionName", "collectionName is required"))
	assert.True(t, hasField(res.Errors, "mongodbURI", ""))
}

func TestEmptyCollectionList(t *testing.T) {
	g := newGate(t)
	res, err := g.Validate(SchemaDatabase, decode(t, `{
		"databaseName": "shop",
		"mongodbURI": "mongodb://localhost:27017",
		"collectionName": []
	}`))
	require.NoError(t, err)
	assert.False(t, res.Valid)
}

func TestCRUDSchemasLowercaseDatabase(t *testing.T) {
	g := newGate(t)
	res, err := g.Validate(SchemaInsertDocument, decode(t, `{
		"databaseName": "Shop",
		"mongodbURI": "mongodb://localhost:27017",
		"collectionName": "orders",
		"document": {"sku": "A-1", "qty": 2}
	}`))
	require.NoError(t, err)
	require.True(t, res.Valid, res.Errors)
	assert.Equal(t, "shop", res.String("databaseName"))
	assert.Equal(t, map[string]any{"sku": "A-1", "qty": float64(2)}, res.Object("document"))
}

func TestInsertRequiresObjectDocument(t *testing.T) {
	g := newGate(t)
	res, err := g.Validate(SchemaInsertDocument, decode(t, `{
		"databaseName": "shop",
		"mongodbURI": "mongodb://localhost:27017",
		"collectionName": "orders",
		"document": [1, 2]
	}`))
	require.NoError(t, err)
	assert.False(t, res.Valid)
	assert.True(t, hasField(res.Errors, "document", ""))
}

func TestFetchDefaults(t *testing.T) {
	g := newGate(t)
	res, err := g.Validate(SchemaFetchDocuments, decode(t, `{
		"databaseName": "shop",
		"mongodbURI": "mongodb://localhost:27017",
		"collectionName": "orders"
	}`))
	require.NoError(t, err)
	require.True(t, res.Valid, res.Errors)
	assert.Equal(t, int64(10), res.Int("limit", -1))
	assert.Equal(t, int64(0), res.Int("offset", -1))
	assert.Empty(t, res.Object("query"))
}

func TestFetchPaging(t *testing.T) {
	g := newGate(t)
	res, err := g.Validate(SchemaFetchDocuments, decode(t, `{
		"databaseName": "shop",
		"mongodbURI": "mongodb://localhost:27017",
		"collectionName": "orders",
		"query": {"status": "open"},
		"limit": 2,
		"offset": 1
	}`))
	require.NoError(t, err)
	require.True(t, res.Valid, res.Errors)
	assert.Equal(t, int64(2), res.Int("limit", 10))
	assert.Equal(t, int64(1), res.Int("offset", 0))
	assert.Equal(t, map[string]any{"status": "open"}, res.Object("query"))

	for _, body := range []string{
		`{"databaseName": "shop", "mongodbURI": "mongodb://h", "collectionName": "orders", "limit": 0}`,
		`{"databaseName": "shop", "mongodbURI": "mongodb://h", "collectionName": "orders", "offset": -1}`,
		`{"databaseName": "shop", "mongodbURI": "mongodb://h", "collectionName": "orders", "limit": 2.5}`,
	} {
		res, err := g.Validate(SchemaFetchDocuments, decode(t, body))
		require.NoError(t, err)
		assert.False(t, res.Valid, body)
	}
}

func TestUpdateAcceptsFilterOrQuery(t *testing.T) {
	g := newGate(t)

	res, err := g.Validate(SchemaUpdateDocument, decode(t, `{
		"databaseName": "shop",
		"mongodbURI": "mongodb://localhost:27017",
		"collectionName": "orders",
		"filter": {"sku": "A-1"},
		"update": {"qty": 3}
	}`))
	require.NoError(t, err)
	require.True(t, res.Valid, res.Errors)
	assert.Equal(t, map[string]any{"sku": "A-1"}, res.Object("filter"))

	res, err = g.Validate(SchemaUpdateDocument, decode(t, `{
		"databaseName": "shop",
		"mongodbURI": "mongodb://localhost:27017",
		"collectionName": "orders",
		"query": {"sku": "A-1"},
		"update": {"qty": 3}
	}`))
	require.NoError(t, err)
	require.True(t, res.Valid, res.Errors)
	assert.Equal(t, map[string]any{"sku": "A-1"}, res.Object("filter"))

	res, err = g.Validate(SchemaUpdateDocument, decode(t, `{
		"databaseName": "shop",
		"mongodbURI": "mongodb://localhost:27017",
		"collectionName": "orders",
		"update": {"qty": 3}
	}`))
	require.NoError(t, err)
	assert.False(t, res.Valid)
	assert.True(t, hasField(res.Errors, "filter", "filter is required"), res.Errors)
}

func TestDeleteRequiresFilter(t *testing.T) {
	g := newGate(t)
	res, err := g.Validate(SchemaDeleteDocument, decode(t, `{
		"databaseName": "shop",
		"mongodbURI": "mongodb://localhost:27017",
		"collectionName": "orders"
	}`))
	require.NoError(t, err)
	assert.False(t, res.Valid)
	assert.Len(t, res.Errors, 1)
}

func TestSignupNormalizesEmail(t *testing.T) {
	g := newGate(t)
	res, err := g.Validate(SchemaSignup, map[string]any{"email": "  Ada@Example.COM "})
	require.NoError(t, err)
	require.True(t, res.Valid, res.Errors)
	assert.Equal(t, "ada@example.com", res.String("email"))

	res, err = g.Validate(SchemaSignup, map[string]any{"email": "nope"})
	require.NoError(t, err)
	assert.False(t, res.Valid)
}

func TestTenantFlags(t *testing.T) {
	g := newGate(t)
	res, err := g.Validate(SchemaTenantFlags, decode(t, `{"is_paid": true}`))
	require.NoError(t, err)
	require.True(t, res.Valid, res.Errors)
	require.NotNil(t, res.Bool("is_paid"))
	assert.True(t, *res.Bool("is_paid"))
	assert.Nil(t, res.Bool("is_active"))

	for _, body := range []string{`{}`, `{"is_paid": "yes"}`, `{"db_count": 0}`} {
		res, err := g.Validate(SchemaTenantFlags, decode(t, body))
		require.NoError(t, err)
		assert.False(t, res.Valid, body)
	}
}

func TestNonObjectPayload(t *testing.T) {
	g := newGate(t)
	res, err := g.Validate(SchemaDatabase, []any{"shop"})
	require.NoError(t, err)
	assert.False(t, res.Valid)
}

func TestUnknownSchema(t *testing.T) {
	_, err := newGate(t).Validate("nope", map[string]any{})
	assert.Error(t, err)
}

func TestValidateDoesNotMutateInput(t *testing.T) {
	g := newGate(t)
	in := decode(t, `{
		"databaseName": "Shop",
		"mongodbURI": "mongodb://localhost:27017",
		"collectionName": "orders",
		"document": {}
	}`)
	_, err := g.Validate(SchemaInsertDocument, in)
	require.NoError(t, err)
	assert.Equal(t, "Shop", in["databaseName"])
}
