package hybridcache

import "time"

// Flags restrict which tiers a single call touches.
type Flags uint8

const (
	DisableLocalRead Flags = 1 << iota
	DisableLocalWrite
	DisableDistributedRead
	DisableDistributedWrite

	DisableLocal       = DisableLocalRead | DisableLocalWrite
	DisableDistributed = DisableDistributedRead | DisableDistributedWrite
)

func (f Flags) has(x Flags) bool { return f&x != 0 }

// EntryOption customizes one GetOrCreate or Set call. For GetOrCreate only the
// options of the caller that actually runs the loader shape the stored entry.
type EntryOption func(*entryOptions)

type entryOptions struct {
	tags            []string
	expiration      time.Duration
	localExpiration time.Duration
	flags           Flags
}

// WithTags attaches tags to the entry. Empty and repeated tags are ignored.
func WithTags(tags ...string) EntryOption {
	return func(o *entryOptions) { o.tags = append(o.tags, tags...) }
}

// WithExpiration sets the distributed tier TTL of the entry.
func WithExpiration(d time.Duration) EntryOption {
	return func(o *entryOptions) { o.expiration = d }
}

// WithLocalExpiration sets the local tier TTL, capped by the entry's expiration.
func WithLocalExpiration(d time.Duration) EntryOption {
	return func(o *entryOptions) { o.localExpiration = d }
}

func WithFlags(f Flags) EntryOption {
	return func(o *entryOptions) { o.flags |= f }
}

func (c *cache[V]) entryOptions(opts []EntryOption) entryOptions {
	var o entryOptions
	for _, opt := range opts {
		if opt != nil {
			opt(&o)
		}
	}
	if o.expiration <= 0 {
		o.expiration = c.expiration
	}
	if o.localExpiration <= 0 {
		o.localExpiration = c.localExpiration
	}
	o.localExpiration = min(o.localExpiration, o.expiration)
	o.tags = normalizeTags(o.tags)
	return o
}

func normalizeTags(tags []string) []string {
	if len(tags) == 0 {
		return nil
	}
	out := make([]string, 0, len(tags))
	seen := make(map[string]struct{}, len(tags))
	for _, t := range tags {
		if t == "" {
			continue
		}
		if _, dup := seen[t]; dup {
			continue
		}
		seen[t] = struct{}{}
		out = append(out, t)
	}
	return out
}
