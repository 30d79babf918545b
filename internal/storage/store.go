package storage

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"docgate/internal/model"
)

var (
	ErrTenantNotFound = errors.New("tenant not found")
	ErrEmailTaken     = errors.New("tenant already exists with this email")
)

// TenantStore is the tenant registry.
type TenantStore interface {
	CreateTenant(ctx context.Context, t *model.Tenant) error
	GetTenant(ctx context.Context, id uuid.UUID) (*model.Tenant, error)
	GetTenantByAPIKey(ctx context.Context, apiKey string) (*model.Tenant, error)
	// IncrementDBCount adds one to a free-tier tenant's counter while it is
	// below limit, as a single atomic conditional update. It reports whether a
	// row was changed.
	IncrementDBCount(ctx context.Context, id uuid.UUID, limit int) (bool, error)
	UpdateTenantFlags(ctx context.Context, id uuid.UUID, flags model.TenantFlags) (*model.Tenant, error)
	ListTenants(ctx context.Context) ([]model.Tenant, error)
	Ping(ctx context.Context) error
}

// UsageEventStore keeps the per-tenant audit trail of provisioning events.
type UsageEventStore interface {
	EnsurePartition(ctx context.Context, tenantID uuid.UUID) error
	InsertUsageEvent(ctx context.Context, ev *model.UsageEvent) error
	ListUsageEventsPaginated(ctx context.Context, tenantID uuid.UUID, cursor string, limit int) ([]model.UsageEvent, string, error)
}

// Store is what a registry driver provides.
type Store interface {
	TenantStore
	UsageEventStore
	Close() error
}

// Open returns the registry for a configured driver. Postgres schemas are
// migrated before returning.
func Open(ctx context.Context, driver, dsn string) (Store, error) {
	switch driver {
	case "postgres":
		s, err := NewStorage(dsn)
		if err != nil {
			return nil, err
		}
		if err := s.Migrate(ctx); err != nil {
			s.Close()
			return nil, err
		}
		return s, nil
	case "memory":
		return NewMemoryStore(), nil
	default:
		return nil, fmt.Errorf("unknown database driver %q", driver)
	}
}
