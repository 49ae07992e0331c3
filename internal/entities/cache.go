// Package entities caches resolved entities in the key-value plane, keyed by
// (scope, type, value). An UNKNOWN entity older than a short staleness window
// is treated as a miss so a later message gets a fresh resolution attempt
// instead of a cached dead end.
package entities

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/valetiq/valet/internal/kv"
	"github.com/valetiq/valet/pkg/schema"
)

const (
	// DefaultTTL bounds how long any cached entity is trusted.
	DefaultTTL = time.Hour

	// unknownStaleness bounds how long an UNKNOWN (failed) resolution is
	// trusted before forcing re-resolution.
	unknownStaleness = 2 * time.Minute
)

// Cache stores CachedEntity records in a kv.Store.
type Cache struct {
	kv  kv.Store
	ttl time.Duration
}

// NewCache creates a Cache with the default TTL.
func NewCache(store kv.Store) *Cache {
	return &Cache{kv: store, ttl: DefaultTTL}
}

// Key builds the entity cache key. The value is slugged so punctuation and
// case differences map to the same record.
func Key(scope string, typ schema.EntityType, value string) string {
	return fmt.Sprintf("entity:%s:%s:%s", scope, typ, schema.Slugify(value))
}

// Get returns the cached entity for (scope, typ, value), applying the
// UNKNOWN staleness rule.
func (c *Cache) Get(ctx context.Context, scope string, typ schema.EntityType, value string) (*schema.CachedEntity, bool, error) {
	raw, ok, err := c.kv.Get(ctx, Key(scope, typ, value))
	if err != nil || !ok {
		return nil, false, err
	}

	var e schema.CachedEntity
	if err := json.Unmarshal([]byte(raw), &e); err != nil {
		// A corrupt record is a miss; drop it so the next Put heals the key.
		_ = c.kv.Delete(ctx, Key(scope, typ, value))
		return nil, false, nil
	}

	if e.Type == schema.EntityUnknown && time.Since(e.ResolvedAt) > unknownStaleness {
		_ = c.kv.Delete(ctx, Key(scope, typ, value))
		return nil, false, nil
	}

	return &e, true, nil
}

// Put stores the entity under (scope, entity.Type, entity.Value).
func (c *Cache) Put(ctx context.Context, scope string, e schema.CachedEntity) error {
	if e.ResolvedAt.IsZero() {
		e.ResolvedAt = time.Now().UTC()
	}
	raw, err := json.Marshal(e)
	if err != nil {
		return schema.NewError(schema.ErrCodeStore, "marshal cached entity").WithCause(err)
	}
	return c.kv.Set(ctx, Key(scope, e.Type, e.Value), string(raw), c.ttl)
}

// Invalidate removes the cached entity for (scope, typ, value).
func (c *Cache) Invalidate(ctx context.Context, scope string, typ schema.EntityType, value string) error {
	return c.kv.Delete(ctx, Key(scope, typ, value))
}
