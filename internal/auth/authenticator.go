package auth

import (
	"context"
	"errors"
	"strings"

	"docgate/internal/apperr"
	"docgate/internal/model"
	"docgate/internal/storage"
)

// TenantLookup resolves an API key to its tenant.
type TenantLookup interface {
	GetTenantByAPIKey(ctx context.Context, apiKey string) (*model.Tenant, error)
}

// Authenticator resolves the caller of a request from its API key.
type Authenticator struct {
	tenants TenantLookup
}

func NewAuthenticator(tenants TenantLookup) *Authenticator {
	return &Authenticator{tenants: tenants}
}

// Authenticate returns the active tenant owning credential. Keys are stored
// lowercase, so the credential is trimmed and lowercased first.
func (a *Authenticator) Authenticate(ctx context.Context, credential string) (*model.Tenant, error) {
	key := strings.ToLower(strings.TrimSpace(credential))
	if key == "" {
		return nil, apperr.Unauthenticated("Please provide an API key")
	}

	t, err := a.tenants.GetTenantByAPIKey(ctx, key)
	if errors.Is(err, storage.ErrTenantNotFound) {
		return nil, apperr.Unauthenticated("Invalid API key")
	}
	if err != nil {
		return nil, apperr.Internal("Failed to authenticate the request.", err)
	}
	if !t.IsActive {
		return nil, apperr.Forbidden("Your API key is deactivated")
	}
	return t, nil
}
