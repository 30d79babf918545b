// Package cache puts a Redis read-through cache in front of the tenant registry.
package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"docgate/internal/model"
	"docgate/internal/storage"
)

const (
	keyPrefix = "docgate:tenant:key:"
	idPrefix  = "docgate:tenant:id:"
	genPrefix = "docgate:tenant:gen:"
)

var errStaleRead = errors.New("tenant changed during read")

// TenantCache decorates a storage.TenantStore. Lookups by API key are cached;
// writes go to the store and then drop the cached entry. Every write also
// bumps a per-key generation; a read-through fill is discarded when the
// generation moved while the store was being read. Redis failures degrade to
// the store.
type TenantCache struct {
	storage.TenantStore
	client *redis.Client
	ttl    time.Duration
	logger *zap.Logger
}

// NewRedisClient connects and pings, as the store constructors do.
func NewRedisClient(ctx context.Context, addr, password string, db int) (*redis.Client, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}
	return client, nil
}

func NewTenantCache(store storage.TenantStore, client *redis.Client, ttl time.Duration, logger *zap.Logger) *TenantCache {
	return &TenantCache{
		TenantStore: store,
		client:      client,
		ttl:         ttl,
		logger:      logger,
	}
}

func (c *TenantCache) GetTenantByAPIKey(ctx context.Context, apiKey string) (*model.Tenant, error) {
	data, err := c.client.Get(ctx, keyPrefix+apiKey).Bytes()
	switch {
	case err == nil:
		var t model.Tenant
		if err := json.Unmarshal(data, &t); err == nil {
			return &t, nil
		}
		c.logger.Warn("dropping undecodable cached tenant")
	case errors.Is(err, redis.Nil):
	default:
		c.logger.Warn("tenant cache read failed", zap.Error(err))
	}

	gen, genErr := c.generation(ctx, apiKey)
	t, err := c.TenantStore.GetTenantByAPIKey(ctx, apiKey)
	if err != nil {
		return nil, err
	}
	if genErr == nil {
		c.set(ctx, t, gen)
	}
	return t, nil
}

func (c *TenantCache) IncrementDBCount(ctx context.Context, id uuid.UUID, limit int) (bool, error) {
	ok, err := c.TenantStore.IncrementDBCount(ctx, id, limit)
	c.invalidate(ctx, id)
	return ok, err
}

func (c *TenantCache) UpdateTenantFlags(ctx context.Context, id uuid.UUID, flags model.TenantFlags) (*model.Tenant, error) {
	t, err := c.TenantStore.UpdateTenantFlags(ctx, id, flags)
	c.invalidate(ctx, id)
	return t, err
}

func (c *TenantCache) Close() error {
	return c.client.Close()
}

func (c *TenantCache) generation(ctx context.Context, apiKey string) (string, error) {
	gen, err := c.client.Get(ctx, genPrefix+apiKey).Result()
	if errors.Is(err, redis.Nil) {
		return "", nil
	}
	return gen, err
}

// set caches t only if its generation still equals gen.
func (c *TenantCache) set(ctx context.Context, t *model.Tenant, gen string) {
	data, err := json.Marshal(t)
	if err != nil {
		return
	}
	genKey := genPrefix + t.APIKey
	err = c.client.Watch(ctx, func(tx *redis.Tx) error {
		cur, err := tx.Get(ctx, genKey).Result()
		if err != nil && !errors.Is(err, redis.Nil) {
			return err
		}
		if cur != gen {
			return errStaleRead
		}
		_, err = tx.TxPipelined(ctx, func(p redis.Pipeliner) error {
			p.Set(ctx, keyPrefix+t.APIKey, data, c.ttl)
			p.Set(ctx, idPrefix+t.ID.String(), t.APIKey, c.ttl)
			return nil
		})
		return err
	}, genKey)
	switch {
	case err == nil:
	case errors.Is(err, errStaleRead), errors.Is(err, redis.TxFailedErr):
		c.logger.Debug("skipped stale tenant cache fill", zap.String("tenant", t.ID.String()))
	default:
		c.logger.Warn("tenant cache write failed", zap.Error(err))
	}
}

// invalidate drops the cached entry and bumps the generation so fills that
// started before the write are discarded.
func (c *TenantCache) invalidate(ctx context.Context, id uuid.UUID) {
	apiKey, err := c.client.Get(ctx, idPrefix+id.String()).Result()
	switch {
	case errors.Is(err, redis.Nil):
		t, err := c.TenantStore.GetTenant(ctx, id)
		if err != nil {
			c.logger.Warn("tenant cache invalidation lookup failed", zap.Error(err))
			return
		}
		apiKey = t.APIKey
	case err != nil:
		c.logger.Warn("tenant cache index read failed", zap.Error(err))
		return
	}

	genKey := genPrefix + apiKey
	_, err = c.client.TxPipelined(ctx, func(p redis.Pipeliner) error {
		p.Incr(ctx, genKey)
		p.Expire(ctx, genKey, c.generationTTL())
		p.Del(ctx, keyPrefix+apiKey, idPrefix+id.String())
		return nil
	})
	if err != nil {
		c.logger.Warn("tenant cache invalidation failed", zap.Error(err))
	}
}

func (c *TenantCache) generationTTL() time.Duration {
	if ttl := 2 * c.ttl; ttl > time.Minute {
		return ttl
	}
	return time.Minute
}
