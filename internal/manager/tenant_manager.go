// internal/manager/tenant_manager.go
package manager

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"sync"

	"github.com/google/uuid"
	"github.com/streadway/amqp"
	"go.uber.org/zap"

	"docgate/internal/consumer"
	"docgate/internal/messaging"
	"docgate/internal/metrics"
	"docgate/internal/model"
	"docgate/internal/storage"
	"docgate/internal/worker"
)

// TenantManager owns one usage-event consumer per tenant. Consumers share a
// single worker pool that writes events to the audit store.
type TenantManager struct {
	rabbit *messaging.RabbitClient
	events storage.UsageEventStore
	pool   *worker.WorkerPool
	logger *zap.Logger

	mu        sync.RWMutex
	consumers map[uuid.UUID]*consumer.Consumer
}

func NewTenantManager(
	rabbit *messaging.RabbitClient,
	events storage.UsageEventStore,
	pool *worker.WorkerPool,
	logger *zap.Logger,
) *TenantManager {
	return &TenantManager{
		rabbit:    rabbit,
		events:    events,
		pool:      pool,
		logger:    logger,
		consumers: make(map[uuid.UUID]*consumer.Consumer),
	}
}

// AddTenant creates the audit partition and the usage queue, then spawns the
// consumer. Calling it again for a running tenant is a no-op.
func (tm *TenantManager) AddTenant(ctx context.Context, tenantID uuid.UUID) error {
	tm.mu.Lock()
	defer tm.mu.Unlock()

	if _, exists := tm.consumers[tenantID]; exists {
		return nil
	}

	if err := tm.events.EnsurePartition(ctx, tenantID); err != nil {
		return err
	}

	if err := tm.rabbit.DeclareQueue(tenantID.String()); err != nil {
		return err
	}

	c, err := consumer.StartConsumer(tm.rabbit.GetConnection(), tenantID.String(), tm.pool, tm.handleMessage, tm.logger)
	if err != nil {
		return err
	}
	tm.consumers[tenantID] = c

	tm.logger.Info("tenant usage pipeline started", zap.String("tenant", tenantID.String()))
	return nil
}

// ShutdownAll stops every consumer, then the shared pool.
func (tm *TenantManager) ShutdownAll() {
	tm.mu.Lock()
	defer tm.mu.Unlock()

	for id, c := range tm.consumers {
		c.Stop()
		tm.logger.Info("stopped tenant", zap.String("tenant", id.String()))
	}
	tm.consumers = make(map[uuid.UUID]*consumer.Consumer)
	tm.pool.Stop()
}

// handleMessage stores one usage event. Undecodable or foreign events and
// failed inserts are rejected without requeue and land in the DLQ. A failure
// caused by shutdown cancelling ctx is requeued instead.
func (tm *TenantManager) handleMessage(ctx context.Context, tenantID string, msg amqp.Delivery) {
	if err := tm.storeEvent(ctx, tenantID, msg.Body); err != nil {
		if ctx.Err() != nil {
			tm.logger.Info("usage event requeued on shutdown", zap.String("tenant", tenantID), zap.Error(err))
			_ = msg.Nack(false, true)
			return
		}
		tm.logger.Warn("usage event rejected", zap.String("tenant", tenantID), zap.Error(err))
		_ = msg.Nack(false, false)
		return
	}

	_ = msg.Ack(false)
	metrics.WorkerProcessed.WithLabelValues(tenantID).Inc()
}

func (tm *TenantManager) storeEvent(ctx context.Context, tenantID string, body []byte) error {
	tenantUUID, err := uuid.Parse(tenantID)
	if err != nil {
		return fmt.Errorf("invalid tenant ID %s: %w", tenantID, err)
	}

	var ev model.UsageEvent
	if err := json.Unmarshal(body, &ev); err != nil {
		return fmt.Errorf("failed to decode usage event: %w", err)
	}
	if ev.TenantID != tenantUUID {
		return fmt.Errorf("event for tenant %s on queue of %s", ev.TenantID, tenantID)
	}
	if ev.ID == uuid.Nil {
		return fmt.Errorf("usage event without id")
	}

	if err := tm.events.InsertUsageEvent(ctx, &ev); err != nil {
		return fmt.Errorf("DB insert failed: %w", err)
	}
	return nil
}

// ListTenantIDs returns all tenants with a running consumer, sorted.
func (tm *TenantManager) ListTenantIDs() []string {
	tm.mu.RLock()
	defer tm.mu.RUnlock()

	ids := make([]string, 0, len(tm.consumers))
	for id := range tm.consumers {
		ids = append(ids, id.String())
	}
	sort.Strings(ids)
	return ids
}
