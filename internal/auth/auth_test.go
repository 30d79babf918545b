package auth

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"docgate/internal/apperr"
	"docgate/internal/model"
	"docgate/internal/storage"
)

type failingLookup struct{}

func (failingLookup) GetTenantByAPIKey(context.Context, string) (*model.Tenant, error) {
	return nil, errors.New("connection refused")
}

func seeded(t *testing.T) (*storage.MemoryStore, *model.Tenant, *model.Tenant) {
	t.Helper()
	ctx := context.Background()
	store := storage.NewMemoryStore()
	active := model.NewTenant("active@example.com")
	inactive := model.NewTenant("inactive@example.com")
	inactive.IsActive = false
	require.NoError(t, store.CreateTenant(ctx, active))
	require.NoError(t, store.CreateTenant(ctx, inactive))
	return store, active, inactive
}

func TestAuthenticate(t *testing.T) {
	ctx := context.Background()
	store, active, inactive := seeded(t)
	a := NewAuthenticator(store)

	got, err := a.Authenticate(ctx, active.APIKey)
	require.NoError(t, err)
	assert.Equal(t, active.ID, got.ID)

	got, err = a.Authenticate(ctx, "  "+active.APIKey+" ")
	require.NoError(t, err)
	assert.Equal(t, active.ID, got.ID)

	tests := []struct {
		name       string
		credential string
		kind       apperr.Kind
		message    string
	}{
		{"missing", "", apperr.KindUnauthenticated, "Please provide an API key"},
		{"unknown", "deadbeef", apperr.KindUnauthenticated, "Invalid API key"},
		{"deactivated", inactive.APIKey, apperr.KindForbidden, "Your API key is deactivated"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := a.Authenticate(ctx, tt.credential)
			e, ok := apperr.As(err)
			require.True(t, ok)
			assert.Equal(t, tt.kind, e.Kind)
			assert.Equal(t, tt.message, e.Message)
		})
	}
}

func TestAuthenticateLookupFailure(t *testing.T) {
	_, err := NewAuthenticator(failingLookup{}).Authenticate(context.Background(), "abc")
	assert.Equal(t, apperr.KindInternal, apperr.KindOf(err))
}

func recordError(w http.ResponseWriter, _ *http.Request, err error) {
	w.WriteHeader(apperr.HTTPStatus(apperr.KindOf(err)))
	_, _ = w.Write([]byte(err.Error()))
}

func TestAPIKeyMiddleware(t *testing.T) {
	store, active, inactive := seeded(t)
	var seen *model.Tenant
	h := APIKeyMiddleware(NewAuthenticator(store), recordError)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen, _ = TenantFromContext(r.Context())
		w.WriteHeader(http.StatusNoContent)
	}))

	do := func(header string) *httptest.ResponseRecorder {
		req := httptest.NewRequest(http.MethodPost, "/api/v1/db/create-database", nil)
		if header != "" {
			req.Header.Set("Authorization", header)
		}
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, req)
		return rec
	}

	rec := do("Bearer " + active.APIKey)
	assert.Equal(t, http.StatusNoContent, rec.Code)
	require.NotNil(t, seen)
	assert.Equal(t, active.ID, seen.ID)

	rec = do(active.APIKey)
	assert.Equal(t, http.StatusNoContent, rec.Code)

	rec = do("")
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Equal(t, "Please provide an API key", rec.Body.String())

	rec = do("Bearer nope")
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Equal(t, "Invalid API key", rec.Body.String())

	rec = do("Bearer " + inactive.APIKey)
	assert.Equal(t, http.StatusForbidden, rec.Code)
	assert.Equal(t, "Your API key is deactivated", rec.Body.String())
}

func TestTenantFromEmptyContext(t *testing.T) {
	_, ok := TenantFromContext(context.Background())
	assert.False(t, ok)
}

func TestTokenRoundTrip(t *testing.T) {
	issuer := NewTokenIssuer("s3cret", time.Hour)
	token, err := issuer.GenerateToken("ops@example.com")
	require.NoError(t, err)

	claims, err := issuer.ValidateToken(token)
	require.NoError(t, err)
	assert.Equal(t, RoleAdmin, claims.Role)
	assert.Equal(t, "ops@example.com", claims.Subject)

	_, err = NewTokenIssuer("other", time.Hour).ValidateToken(token)
	assert.Error(t, err)
}

func TestTokenRequiresSecret(t *testing.T) {
	_, err := NewTokenIssuer("", time.Hour).GenerateToken("x")
	assert.Error(t, err)
	_, err = NewTokenIssuer("", time.Hour).ValidateToken("x")
	assert.Error(t, err)
}

func TestExpiredToken(t *testing.T) {
	claims := Claims{
		Role: RoleAdmin,
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(-time.Minute)),
		},
	}
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte("s3cret"))
	require.NoError(t, err)

	_, err = NewTokenIssuer("s3cret", time.Hour).ValidateToken(token)
	assert.Error(t, err)
}

func TestAdminMiddleware(t *testing.T) {
	issuer := NewTokenIssuer("s3cret", time.Hour)
	h := AdminMiddleware(issuer, recordError)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		claims, ok := ClaimsFromContext(r.Context())
		require.True(t, ok)
		_, _ = w.Write([]byte(claims.Subject))
	}))

	do := func(header string) *httptest.ResponseRecorder {
		req := httptest.NewRequest(http.MethodGet, "/api/v1/admin/tenants", nil)
		if header != "" {
			req.Header.Set("Authorization", header)
		}
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, req)
		return rec
	}

	token, err := issuer.GenerateToken("ops")
	require.NoError(t, err)
	rec := do("Bearer " + token)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "ops", rec.Body.String())

	assert.Equal(t, http.StatusUnauthorized, do("").Code)
	assert.Equal(t, http.StatusUnauthorized, do("Bearer garbage").Code)

	userToken, err := jwt.NewWithClaims(jwt.SigningMethodHS256, Claims{
		Role: "user",
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
		},
	}).SignedString([]byte("s3cret"))
	require.NoError(t, err)
	assert.Equal(t, http.StatusForbidden, do("Bearer "+userToken).Code)
}
