package workflow

import (
	"context"
	"errors"
	"time"

	goredis "github.com/redis/go-redis/v9"

	"catcher/internal/platform/redis"
)

const (
	referenceKeyPrefix = "payref:"
	referenceTTL       = 30 * 24 * time.Hour
)

// ReferenceCache correlates a committed payment reference with the serial
// number it materialized, so a repeated finalize can return the prior result
// without re-verifying. A nil cache degrades to the store-lookup fallback.
type ReferenceCache struct {
	client *redis.Client
}

// NewReferenceCache wraps the shared Redis client; client may be nil.
func NewReferenceCache(client *redis.Client) *ReferenceCache {
	if client == nil {
		return nil
	}
	return &ReferenceCache{client: client}
}

// Lookup returns the serial number committed under reference, if any.
func (c *ReferenceCache) Lookup(ctx context.Context, reference string) (string, bool, error) {
	if c == nil {
		return "", false, nil
	}
	serial, err := c.client.Get(ctx, referenceKeyPrefix+reference).Result()
	if errors.Is(err, goredis.Nil) {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}
	return serial, true, nil
}

// Store records the committed serial for a reference.
func (c *ReferenceCache) Store(ctx context.Context, reference, serial string) error {
	if c == nil {
		return nil
	}
	return c.client.Set(ctx, referenceKeyPrefix+reference, serial, referenceTTL).Err()
}
