// Package hybridcache implements a two-tier read-through cache.
//
// A GetOrCreate call checks the in-process local tier, then the shared
// distributed tier, and only then runs the caller's loader. Concurrent misses
// for the same key inside one process collapse into a single loader execution.
// Entries can carry tags; RemoveByTag removes every entry populated under a tag
// from both tiers.
//
// Components:
//   - Provider: byte store with TTL. Local tier: memory (default), Ristretto,
//     BigCache. Distributed tier: Redis, or anything shaped like provider.Provider.
//   - Codec[V]: (de)serializes V <-> []byte, capped at MaxPayloadBytes.
//   - tagindex.Index: tag -> keys. Local (in-process) by default, Redis to share
//     invalidation across processes.
//
// Keys:
//
//	hc:<ns>:<key>       - entries in both tiers
//	hc:<ns>:#<xxhash>   - keys longer than MaxKeyLength with HashLongKeys set
//	tag:<ns>:<tag>      - Redis tag sets
//
// The distributed tier is an optimization: its failures are logged and
// reported through Hooks, and the cache keeps serving from the local tier and
// the loader.
//
// Typical use:
//
//	v, err := cache.GetOrCreate(ctx, keys.Encode("products", keys.P("page", 1)),
//		func(ctx context.Context) ([]Product, error) { return db.Products(ctx, 1) },
//		hybridcache.WithTags("products"),
//		hybridcache.WithExpiration(5*time.Minute),
//	)
package hybridcache
