// Package provider defines the byte stores hybridcache layers on top of.
//
// Implementations MUST be byte-for-byte transparent: Get must return exactly the
// same []byte that was previously passed to Set for a key (no prepended/appended
// metadata, no re-encoding, no mutation). If a store performs internal transforms
// (e.g., compression), they MUST be fully reversed so that the bytes returned by
// Get are identical to the bytes provided to Set.
//
// The keyspace "hc:<ns>:" is owned by hybridcache. External code MUST NOT write
// values under this prefix. Foreign writes fail strict frame validation and are
// deleted as corrupt.
package provider

import (
	"context"
	"time"
)

// Provider is a minimal byte store with TTLs. It serves both as the local
// tier (in-process stores) and the distributed tier (networked stores).
// Must be safe for concurrent use.
type Provider interface {
	// Get returns (value, true, nil) on hit; (nil, false, nil) on miss.
	// If an IO/remote error happens, return (nil, false, err).
	Get(ctx context.Context, key string) ([]byte, bool, error)

	// Set stores value with the given TTL. May ignore cost if unsupported.
	// A non-positive ttl means no store-level expiry.
	// Returns ok=false when the store rejected the write under pressure.
	Set(ctx context.Context, key string, value []byte, cost int64, ttl time.Duration) (ok bool, err error)

	// Del removes a key. Removing an absent key is not an error.
	Del(ctx context.Context, key string) error

	// Close releases resources.
	Close(ctx context.Context) error
}

// BulkDeleter is implemented by stores that can remove many keys in one call
// (a pipeline round trip or a single pass over the shards). Each key's removal
// is atomic; the batch as a whole is not.
type BulkDeleter interface {
	DelMany(ctx context.Context, keys []string) error
}

// DelMany removes keys from p, using BulkDeleter when p implements it.
// Errors of the per-key fallback are joined.
func DelMany(ctx context.Context, p Provider, keys []string) error {
	if len(keys) == 0 {
		return nil
	}
	if bd, ok := p.(BulkDeleter); ok {
		return bd.DelMany(ctx, keys)
	}
	var errs []error
	for _, k := range keys {
		if err := p.Del(ctx, k); err != nil {
			errs = append(errs, err)
		}
	}
	return joinErrors(errs)
}
