package hybridcache

import "time"

// Tier identifies which cache tier an event concerns.
type Tier uint8

const (
	TierLocal Tier = iota + 1
	TierDistributed
)

func (t Tier) String() string {
	switch t {
	case TierLocal:
		return "local"
	case TierDistributed:
		return "distributed"
	default:
		return "unknown"
	}
}

// Hooks lightweight callbacks for high-signal events.
// Implementations MUST be cheap and non-blocking.
// The cache calls them on hot paths.
type Hooks interface {
	// A GetOrCreate was served from tier without running the loader.
	Hit(namespace string, tier Tier)
	// Both tiers missed; the caller went to the loader (own or shared).
	Miss(namespace string)
	// A loader finished. err is the loader's error, nil on success.
	Loaded(namespace string, took time.Duration, err error)
	// A caller joined a load already in flight for key.
	Collapsed(namespace, key string)

	// An entry was deleted by the cache on read.
	// reason ∈ {"corrupt", "value_decode"}
	SelfHeal(tier Tier, storageKey, reason string)
	// A loaded or Set value exceeded MaxPayloadBytes and was not cached.
	PayloadRejected(storageKey string, size, max int)
	// Provider returned ok=false on Set (backpressure/eviction).
	ProviderSetRejected(tier Tier, storageKey string)
	// The distributed tier failed. op ∈ {"get", "set", "del"}
	DistributedError(op, storageKey string, err error)
	// The tag index failed. op ∈ {"attach", "keys", "detach"}
	TagIndexError(op, tag string, err error)
	// A loaded value was not cached because the key or one of its tags was
	// removed while the loader ran.
	StaleWriteSkipped(storageKey string)
	// A key longer than MaxKeyLength bypassed the cache.
	KeyRejected(namespace string, length int)
}

// NopHooks is the default no-op
type NopHooks struct{}

func (NopHooks) Hit(string, Tier)                       {}
func (NopHooks) Miss(string)                            {}
func (NopHooks) Loaded(string, time.Duration, error)    {}
func (NopHooks) Collapsed(string, string)               {}
func (NopHooks) SelfHeal(Tier, string, string)          {}
func (NopHooks) PayloadRejected(string, int, int)       {}
func (NopHooks) ProviderSetRejected(Tier, string)       {}
func (NopHooks) DistributedError(string, string, error) {}
func (NopHooks) TagIndexError(string, string, error)    {}
func (NopHooks) StaleWriteSkipped(string)               {}
func (NopHooks) KeyRejected(string, int)                {}
