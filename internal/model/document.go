package model

import "time"

// Document is an opaque user payload: field name to value.
type Document map[string]any

// SeedDocumentID is the fixed identifier of the bootstrap document. A second
// seed attempt on the same collection fails with a duplicate key.
const SeedDocumentID = "_seed"

// SeedRecord marks a collection as provisioned by the gateway.
type SeedRecord struct {
	ID             string    `bson:"_id" json:"_id"`
	CreatedAt      time.Time `bson:"created_at" json:"created_at"`
	CollectionName string    `bson:"collection_name" json:"collection_name"`
}

func NewSeedRecord(collection string, now time.Time) SeedRecord {
	return SeedRecord{
		ID:             SeedDocumentID,
		CreatedAt:      now,
		CollectionName: collection,
	}
}

// Document returns the seed in the generic document form sent to the store.
func (s SeedRecord) Document() Document {
	return Document{
		"_id":             s.ID,
		"created_at":      s.CreatedAt,
		"collection_name": s.CollectionName,
	}
}
