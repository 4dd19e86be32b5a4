package hybridcache

import (
	"context"
	"time"

	"github.com/unkn0wn-root/hybridcache/clock"
	"github.com/unkn0wn-root/hybridcache/codec"
	pr "github.com/unkn0wn-root/hybridcache/provider"
	"github.com/unkn0wn-root/hybridcache/tagindex"
)

// Loader computes the value for a missing key. It runs at most once per miss
// across all concurrent callers of the same key and must not cache on its own.
type Loader[V any] func(ctx context.Context) (V, error)

// SetCostFunc returns the cost passed to the local tier for one write.
// frame is the stored entry (header + payload).
type SetCostFunc func(storageKey string, frame []byte) int64

// Cache is the two-tier read-through cache API.
// V is the caller's value type. Serialization is handled by a pluggable Codec[V].
type Cache[V any] interface {
	Enabled() bool
	Close(context.Context) error

	// GetOrCreate returns the cached value for key, or runs load once for all
	// concurrent callers and caches its result in both tiers. Only loader
	// errors and the caller's own deadline surface as errors.
	GetOrCreate(ctx context.Context, key string, load Loader[V], opts ...EntryOption) (V, error)
	// Set writes value into both tiers, replacing any cached entry.
	Set(ctx context.Context, key string, value V, opts ...EntryOption) error

	// Remove deletes key from both tiers. Removing an absent key is a no-op.
	Remove(ctx context.Context, key string) error
	// RemoveByTag deletes every entry populated under tag from both tiers.
	RemoveByTag(ctx context.Context, tag string) error
	RemoveByTags(ctx context.Context, tags ...string) error
}

// Options tune the behavior of the hybrid cache.
// Only Namespace and Codec are required; others have sensible defaults.
type Options[V any] struct {
	// Required
	Namespace string // logical namespace to avoid collisions. e.g. "products", "user"
	Codec     codec.Codec[V]

	Local       pr.Provider    // nil => memory provider
	Distributed pr.Provider    // nil => local-only
	TagIndex    tagindex.Index // nil => in-process index
	Logger      Logger         // if nil, NopLogger is used
	Hooks       Hooks          // if nil, NopHooks is used
	Clock       clock.Clock    // nil => wall clock

	DefaultExpiration      time.Duration // distributed TTL; 0 => 5m
	DefaultLocalExpiration time.Duration // 0 => 1m; clamped to the entry's expiration
	MaxPayloadBytes        int           // 0 => 1 MiB; < 0 disables the cap
	MaxKeyLength           int           // 0 => 1024
	HashLongKeys           bool          // hash keys over MaxKeyLength instead of bypassing the cache

	LoadTimeout           time.Duration // 0 => loader bounded only by its waiters
	DistributedTimeout    time.Duration // per distributed call; 0 => 5s
	InvalidateConcurrency int           // parallel distributed deletes in RemoveByTag; 0 => 8

	GenerationRetention time.Duration // how long removals are remembered; 0 => 24h
	CleanupInterval     time.Duration // janitors; 0 => 10m, < 0 disables

	ComputeSetCost SetCostFunc // default len(frame)
	Disabled       bool        // default false (enabled); disabled runs every loader directly
}

func New[V any](opts Options[V]) (Cache[V], error) {
	return newCache[V](opts)
}
