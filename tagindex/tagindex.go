// Package tagindex maps tags to the storage keys populated under them.
//
// Use Local (default) when tags are only invalidated by the process that wrote
// them, or Redis when several processes share a distributed tier and any of
// them may call RemoveByTag.
//
// Index entries may outlive the cache entries they point to. Callers treat a
// stale key as a harmless delete of an absent entry.
package tagindex

import (
	"context"
	"time"
)

// Index abstracts where tag membership lives.
type Index interface {
	// Attach records key under every tag. Idempotent. ttl bounds how long the
	// membership needs to be remembered (the entry's longest tier lifetime);
	// ttl <= 0 means no expiry.
	Attach(ctx context.Context, tags []string, key string, ttl time.Duration) error
	// Keys returns the keys currently attached to tag. Missing tag => empty.
	Keys(ctx context.Context, tag string) ([]string, error)
	// Detach removes keys from tag. Keys attached after a Keys call and not
	// passed here stay attached.
	Detach(ctx context.Context, tag string, keys ...string) error
	// Close releases resources (no-op ok).
	Close(ctx context.Context) error
}
