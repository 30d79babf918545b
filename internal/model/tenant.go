// internal/model/tenant.go
package model

import (
	"strings"
	"time"

	"github.com/google/uuid"
)

// Tenant is the API-key-bearing caller that owns a quota and an entitlement tier.
type Tenant struct {
	ID        uuid.UUID `db:"id" json:"id"`
	Email     string    `db:"email" json:"email"`
	APIKey    string    `db:"api_key" json:"apiKey"`
	IsActive  bool      `db:"is_active" json:"is_active"`
	IsPaid    bool      `db:"is_paid" json:"is_paid"`
	DBCount   int       `db:"db_count" json:"dbCount"`
	CreatedAt time.Time `db:"created_at" json:"createdAt"`
	UpdatedAt time.Time `db:"updated_at" json:"updatedAt"`
}

// NewTenant returns an active free-tier tenant with a fresh lowercase API key.
func NewTenant(email string) *Tenant {
	now := time.Now().UTC()
	return &Tenant{
		ID:        uuid.New(),
		Email:     strings.ToLower(strings.TrimSpace(email)),
		APIKey:    strings.ReplaceAll(uuid.NewString(), "-", ""),
		IsActive:  true,
		CreatedAt: now,
		UpdatedAt: now,
	}
}

// FreeTier reports whether the tenant is subject to the database cap.
func (t *Tenant) FreeTier() bool {
	return !t.IsPaid
}

// TenantFlags is a partial update of the admin-controlled flags.
// Nil fields are left untouched.
type TenantFlags struct {
	IsActive *bool `json:"is_active,omitempty"`
	IsPaid   *bool `json:"is_paid,omitempty"`
}

// Empty reports whether the update changes nothing.
func (f TenantFlags) Empty() bool {
	return f.IsActive == nil && f.IsPaid == nil
}

// Apply copies the set flags onto t.
func (f TenantFlags) Apply(t *Tenant) {
	if f.IsActive != nil {
		t.IsActive = *f.IsActive
	}
	if f.IsPaid != nil {
		t.IsPaid = *f.IsPaid
	}
}
