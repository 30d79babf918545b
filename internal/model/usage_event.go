// internal/model/usage_event.go
package model

import (
	"time"

	"github.com/google/uuid"
)

type UsageEventKind string

const (
	UsageProvisioned       UsageEventKind = "provisioned"
	UsageCreated           UsageEventKind = "created"
	UsageDroppedCollection UsageEventKind = "dropped_collection"
	UsageDroppedDatabase   UsageEventKind = "dropped_database"
)

// UsageEvent records one mutating provisioning operation of a tenant.
type UsageEvent struct {
	ID         uuid.UUID      `db:"id" json:"id"`
	TenantID   uuid.UUID      `db:"tenant_id" json:"tenant_id"`
	Kind       UsageEventKind `db:"kind" json:"kind"`
	Database   string         `db:"database_name" json:"database"`
	Collection string         `db:"collection_name" json:"collection,omitempty"`
	CreatedAt  time.Time      `db:"created_at" json:"created_at"`
}

// NewUsageEvent stamps the event with a time-ordered (v7) id so that id order
// is creation order.
func NewUsageEvent(tenantID uuid.UUID, kind UsageEventKind, database, collection string) UsageEvent {
	return UsageEvent{
		ID:         uuid.Must(uuid.NewV7()),
		TenantID:   tenantID,
		Kind:       kind,
		Database:   database,
		Collection: collection,
		CreatedAt:  time.Now().UTC(),
	}
}
