// Package quota enforces the free-tier database ceiling.
package quota

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"docgate/internal/metrics"
	"docgate/internal/model"
)

// DefaultFreeTierLimit is the number of databases a free tenant may provision.
const DefaultFreeTierLimit = 5

// UsageStore performs the conditional increment on the tenant record.
type UsageStore interface {
	IncrementDBCount(ctx context.Context, id uuid.UUID, limit int) (bool, error)
}

type Tracker struct {
	store  UsageStore
	limit  int
	logger *zap.Logger
}

func NewTracker(store UsageStore, limit int, logger *zap.Logger) *Tracker {
	if limit <= 0 {
		limit = DefaultFreeTierLimit
	}
	return &Tracker{store: store, limit: limit, logger: logger}
}

func (t *Tracker) Limit() int {
	return t.limit
}

// CheckLimit reports whether a free-tier tenant has reached the ceiling.
// Paid tenants are never capped.
func (t *Tracker) CheckLimit(tenant *model.Tenant) bool {
	return tenant.FreeTier() && tenant.DBCount >= t.limit
}

// Charge records one provisioning event against a free-tier tenant. It is a
// no-op for paid tenants. When the ceiling was reached by a concurrent request
// the stored counter is left unchanged, the skip is logged and tenant is
// raised to the ceiling so later checks in the same request refuse.
func (t *Tracker) Charge(ctx context.Context, tenant *model.Tenant) error {
	if !tenant.FreeTier() {
		return nil
	}
	ok, err := t.store.IncrementDBCount(ctx, tenant.ID, t.limit)
	if err != nil {
		return fmt.Errorf("failed to charge quota: %w", err)
	}
	if !ok {
		metrics.QuotaChargeSkipped.Inc()
		t.logger.Warn("quota charge matched no row",
			zap.String("tenant", tenant.ID.String()),
			zap.Int("db_count", tenant.DBCount),
			zap.Int("limit", t.limit),
		)
		tenant.DBCount = max(tenant.DBCount, t.limit)
		return nil
	}
	tenant.DBCount++
	return nil
}
