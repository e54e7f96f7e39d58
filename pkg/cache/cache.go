// Package cache provides the response cache consulted before any upstream
// call. Keys come from pkg/keys; values are the serialized tool payloads.
//
// A Store that cannot be reached is a soft failure: callers treat lookup
// errors as misses and carry on, so a dead cache degrades performance and
// cost, never availability.
package cache

import (
	"context"
	"time"

	"github.com/breakwater-ai/breakwater/pkg/models"
)

// Store is the response cache. Implementations must never return expired
// entries; physical removal may be lazy.
type Store interface {
	// Get returns the cached value for key, or found=false when the key is
	// absent or expired. A non-nil error means the store itself was
	// unreachable, not that the key was missing.
	Get(ctx context.Context, key string) (value []byte, found bool, err error)

	// Put stores value under key with the given expiry. A ttl <= 0 stores
	// the entry without expiry.
	Put(ctx context.Context, key string, value []byte, ttl time.Duration) error

	// Clear removes entries, all of them or only expired ones, and reports
	// how many were removed.
	Clear(ctx context.Context, expiredOnly bool) (int64, error)

	// Stats reports effectiveness counters for this process.
	Stats(ctx context.Context) (models.CacheStats, error)

	// Ping verifies the store is reachable.
	Ping(ctx context.Context) error

	Close() error
}
