package manager

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/google/uuid"
	"github.com/streadway/amqp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"docgate/internal/model"
	"docgate/internal/storage"
)

type ackRecorder struct {
	acked    int
	nacked   int
	requeued bool
}

func (a *ackRecorder) Ack(uint64, bool) error { a.acked++; return nil }

func (a *ackRecorder) Nack(_ uint64, _ bool, requeue bool) error {
	a.nacked++
	a.requeued = requeue
	return nil
}

func (a *ackRecorder) Reject(_ uint64, requeue bool) error { return a.Nack(0, false, requeue) }

type failingEvents struct {
	storage.UsageEventStore
}

func (failingEvents) InsertUsageEvent(context.Context, *model.UsageEvent) error {
	return errors.New("partition missing")
}

func delivery(t *testing.T, v any) (amqp.Delivery, *ackRecorder) {
	t.Helper()
	body, ok := v.([]byte)
	if !ok {
		var err error
		body, err = json.Marshal(v)
		require.NoError(t, err)
	}
	rec := &ackRecorder{}
	return amqp.Delivery{Acknowledger: rec, Body: body}, rec
}

func TestHandleMessageStoresEvent(t *testing.T) {
	ctx := context.Background()
	store := storage.NewMemoryStore()
	tm := NewTenantManager(nil, store, nil, zap.NewNop())
	tenantID := uuid.New()
	ev := model.NewUsageEvent(tenantID, model.UsageProvisioned, "shop", "orders")

	d, rec := delivery(t, ev)
	tm.handleMessage(ctx, tenantID.String(), d)
	assert.Equal(t, 1, rec.acked)
	assert.Zero(t, rec.nacked)

	// Redelivery of the same event is stored once.
	d, rec = delivery(t, ev)
	tm.handleMessage(ctx, tenantID.String(), d)
	assert.Equal(t, 1, rec.acked)

	events, next, err := store.ListUsageEventsPaginated(ctx, tenantID, "", 10)
	require.NoError(t, err)
	assert.Empty(t, next)
	require.Len(t, events, 1)
	assert.Equal(t, ev.ID, events[0].ID)
	assert.Equal(t, model.UsageProvisioned, events[0].Kind)
	assert.Equal(t, "orders", events[0].Collection)
}

func TestHandleMessageRejectsToDLQ(t *testing.T) {
	ctx := context.Background()
	tenantID := uuid.New()
	other := model.NewUsageEvent(uuid.New(), model.UsageCreated, "shop", "orders")
	noID := model.NewUsageEvent(tenantID, model.UsageCreated, "shop", "orders")
	noID.ID = uuid.Nil

	tests := []struct {
		name     string
		tenantID string
		body     any
	}{
		{"bad tenant id", "not-a-uuid", model.NewUsageEvent(tenantID, model.UsageCreated, "shop", "")},
		{"bad json", tenantID.String(), []byte(`{"id":`)},
		{"foreign tenant", tenantID.String(), other},
		{"missing id", tenantID.String(), noID},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			store := storage.NewMemoryStore()
			tm := NewTenantManager(nil, store, nil, zap.NewNop())
			d, rec := delivery(t, tt.body)

			tm.handleMessage(ctx, tt.tenantID, d)
			assert.Zero(t, rec.acked)
			assert.Equal(t, 1, rec.nacked)
			assert.False(t, rec.requeued)

			events, _, err := store.ListUsageEventsPaginated(ctx, tenantID, "", 10)
			require.NoError(t, err)
			assert.Empty(t, events)
		})
	}
}

func TestHandleMessageInsertFailure(t *testing.T) {
	tm := NewTenantManager(nil, failingEvents{storage.NewMemoryStore()}, nil, zap.NewNop())
	tenantID := uuid.New()
	d, rec := delivery(t, model.NewUsageEvent(tenantID, model.UsageDroppedDatabase, "shop", ""))

	tm.handleMessage(context.Background(), tenantID.String(), d)
	assert.Equal(t, 1, rec.nacked)
	assert.False(t, rec.requeued)
}

type contextEvents struct {
	storage.UsageEventStore
}

func (contextEvents) InsertUsageEvent(ctx context.Context, _ *model.UsageEvent) error {
	return ctx.Err()
}

func TestHandleMessageRequeuesOnShutdown(t *testing.T) {
	tm := NewTenantManager(nil, contextEvents{storage.NewMemoryStore()}, nil, zap.NewNop())
	tenantID := uuid.New()
	d, rec := delivery(t, model.NewUsageEvent(tenantID, model.UsageProvisioned, "shop", "orders"))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	tm.handleMessage(ctx, tenantID.String(), d)
	assert.Zero(t, rec.acked)
	assert.Equal(t, 1, rec.nacked)
	assert.True(t, rec.requeued)
}

func TestListTenantIDsEmpty(t *testing.T) {
	tm := NewTenantManager(nil, storage.NewMemoryStore(), nil, zap.NewNop())
	assert.Empty(t, tm.ListTenantIDs())
}
