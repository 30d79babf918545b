// internal/storage/postgres.go
package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/lib/pq"

	"docgate/internal/model"
)

const uniqueViolation = "23505"

const schema = `
CREATE TABLE IF NOT EXISTS tenants (
	id UUID PRIMARY KEY,
	email TEXT NOT NULL UNIQUE,
	api_key TEXT NOT NULL UNIQUE,
	is_active BOOLEAN NOT NULL DEFAULT TRUE,
	is_paid BOOLEAN NOT NULL DEFAULT FALSE,
	db_count INTEGER NOT NULL DEFAULT 0,
	created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
	updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
);
CREATE TABLE IF NOT EXISTS usage_events (
	id UUID NOT NULL,
	tenant_id UUID NOT NULL,
	kind TEXT NOT NULL,
	database_name TEXT NOT NULL,
	collection_name TEXT NOT NULL DEFAULT '',
	created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
	PRIMARY KEY (tenant_id, id)
) PARTITION BY LIST (tenant_id);`

const tenantColumns = `id, email, api_key, is_active, is_paid, db_count, created_at, updated_at`

type Storage struct {
	DB *sql.DB
}

func NewStorage(dsn string) (*Storage, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open db: %w", err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to connect to db: %w", err)
	}
	return &Storage{DB: db}, nil
}

// Migrate creates the registry tables if they do not exist.
func (s *Storage) Migrate(ctx context.Context) error {
	if _, err := s.DB.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("failed to migrate schema: %w", err)
	}
	return nil
}

func (s *Storage) Close() error {
	return s.DB.Close()
}

func (s *Storage) Ping(ctx context.Context) error {
	return s.DB.PingContext(ctx)
}

type scanner interface {
	Scan(dest ...any) error
}

func scanTenant(row scanner) (*model.Tenant, error) {
	var t model.Tenant
	err := row.Scan(&t.ID, &t.Email, &t.APIKey, &t.IsActive, &t.IsPaid, &t.DBCount, &t.CreatedAt, &t.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrTenantNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("scan failed: %w", err)
	}
	return &t, nil
}

func (s *Storage) CreateTenant(ctx context.Context, t *model.Tenant) error {
	_, err := s.DB.ExecContext(ctx, `
		INSERT INTO tenants (`+tenantColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`, t.ID, t.Email, t.APIKey, t.IsActive, t.IsPaid, t.DBCount, t.CreatedAt, t.UpdatedAt)
	var pqErr *pq.Error
	if errors.As(err, &pqErr) && pqErr.Code == uniqueViolation {
		return ErrEmailTaken
	}
	if err != nil {
		return fmt.Errorf("failed to save tenant: %w", err)
	}
	return nil
}

func (s *Storage) GetTenant(ctx context.Context, id uuid.UUID) (*model.Tenant, error) {
	row := s.DB.QueryRowContext(ctx, `SELECT `+tenantColumns+` FROM tenants WHERE id = $1`, id)
	return scanTenant(row)
}

func (s *Storage) GetTenantByAPIKey(ctx context.Context, apiKey string) (*model.Tenant, error) {
	row := s.DB.QueryRowContext(ctx, `SELECT `+tenantColumns+` FROM tenants WHERE api_key = $1`, apiKey)
	return scanTenant(row)
}

func (s *Storage) IncrementDBCount(ctx context.Context, id uuid.UUID, limit int) (bool, error) {
	res, err := s.DB.ExecContext(ctx, `
		UPDATE tenants
		SET db_count = db_count + 1, updated_at = NOW()
		WHERE id = $1 AND NOT is_paid AND db_count < $2
	`, id, limit)
	if err != nil {
		return false, fmt.Errorf("failed to increment db count: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n == 1, nil
}

func (s *Storage) UpdateTenantFlags(ctx context.Context, id uuid.UUID, flags model.TenantFlags) (*model.Tenant, error) {
	row := s.DB.QueryRowContext(ctx, `
		UPDATE tenants
		SET is_active = COALESCE($2, is_active),
		    is_paid = COALESCE($3, is_paid),
		    updated_at = NOW()
		WHERE id = $1
		RETURNING `+tenantColumns, id, flags.IsActive, flags.IsPaid)
	return scanTenant(row)
}

func (s *Storage) ListTenants(ctx context.Context) ([]model.Tenant, error) {
	rows, err := s.DB.QueryContext(ctx, `SELECT `+tenantColumns+` FROM tenants ORDER BY created_at`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var tenants []model.Tenant
	for rows.Next() {
		t, err := scanTenant(rows)
		if err != nil {
			return nil, err
		}
		tenants = append(tenants, *t)
	}
	return tenants, rows.Err()
}

// EnsurePartition creates a tenant partition if not exists
func (s *Storage) EnsurePartition(ctx context.Context, tenantID uuid.UUID) error {
	partitionName := pq.QuoteIdentifier("usage_events_" + strings.ReplaceAll(tenantID.String(), "-", ""))
	query := fmt.Sprintf(`
		CREATE TABLE IF NOT EXISTS %s PARTITION OF usage_events
		FOR VALUES IN (%s)`, partitionName, pq.QuoteLiteral(tenantID.String()))

	_, err := s.DB.ExecContext(ctx, query)
	if err != nil {
		return fmt.Errorf("failed to create partition: %w", err)
	}
	return nil
}

// InsertUsageEvent inserts an event into the tenant's partition. Replays of
// the same event id are ignored.
func (s *Storage) InsertUsageEvent(ctx context.Context, ev *model.UsageEvent) error {
	query := `
		INSERT INTO usage_events (id, tenant_id, kind, database_name, collection_name, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT DO NOTHING
	`
	_, err := s.DB.ExecContext(ctx, query, ev.ID, ev.TenantID, string(ev.Kind), ev.Database, ev.Collection, ev.CreatedAt)
	return err
}

// ListUsageEventsPaginated retrieves events using cursor-based pagination
func (s *Storage) ListUsageEventsPaginated(ctx context.Context, tenantID uuid.UUID, cursor string, limit int) ([]model.UsageEvent, string, error) {
	query := `
		SELECT id, tenant_id, kind, database_name, collection_name, created_at
		FROM usage_events
		WHERE tenant_id = $1
		  AND ($2::uuid IS NULL OR id > $2::uuid)
		ORDER BY id
		LIMIT $3
	`

	var rows *sql.Rows
	var err error
	if cursor == "" {
		rows, err = s.DB.QueryContext(ctx, query, tenantID, nil, limit)
	} else {
		rows, err = s.DB.QueryContext(ctx, query, tenantID, cursor, limit)
	}
	if err != nil {
		return nil, "", fmt.Errorf("query failed: %w", err)
	}
	defer rows.Close()

	var events []model.UsageEvent
	var lastID uuid.UUID
	for rows.Next() {
		var ev model.UsageEvent
		var kind string
		if err := rows.Scan(&ev.ID, &ev.TenantID, &kind, &ev.Database, &ev.Collection, &ev.CreatedAt); err != nil {
			return nil, "", fmt.Errorf("scan failed: %w", err)
		}
		ev.Kind = model.UsageEventKind(kind)
		lastID = ev.ID
		events = append(events, ev)
	}
	if err := rows.Err(); err != nil {
		return nil, "", err
	}

	nextCursor := ""
	if len(events) == limit {
		nextCursor = lastID.String()
	}

	return events, nextCursor, nil
}
