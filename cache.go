package hybridcache

import (
	"context"
	"sync"
	"time"

	"github.com/cockroachdb/errors"
	"golang.org/x/sync/errgroup"

	"github.com/unkn0wn-root/hybridcache/clock"
	"github.com/unkn0wn-root/hybridcache/codec"
	"github.com/unkn0wn-root/hybridcache/internal/flight"
	"github.com/unkn0wn-root/hybridcache/internal/generation"
	"github.com/unkn0wn-root/hybridcache/internal/wire"
	"github.com/unkn0wn-root/hybridcache/keys"
	pr "github.com/unkn0wn-root/hybridcache/provider"
	"github.com/unkn0wn-root/hybridcache/provider/memory"
	"github.com/unkn0wn-root/hybridcache/tagindex"
)

type cache[V any] struct {
	ns     string
	prefix string // "hc:<ns>"
	local  pr.Provider
	dist   pr.Provider // nil => local-only
	tags   tagindex.Index
	codec  codec.Codec[V]
	log    Logger
	hooks  Hooks
	clock  clock.Clock

	enabled bool

	expiration            time.Duration
	localExpiration       time.Duration
	maxKeyLen             int
	hashLongKeys          bool
	loadTimeout           time.Duration
	distTimeout           time.Duration
	invalidateConcurrency int
	computeSetCost        SetCostFunc

	// removal generations ("k:<storageKey>", "t:<tag>") fencing writes of loads
	// that raced a Remove/RemoveByTag/Set
	gens   *generation.Store
	flight flight.Group[V]

	closeOnce sync.Once
	closeErr  error
}

func newCache[V any](opts Options[V]) (*cache[V], error) {
	if opts.Codec == nil {
		return nil, errors.New("hybridcache: codec is required")
	}
	if opts.Namespace == "" {
		return nil, errors.New("hybridcache: namespace is required")
	}
	if opts.DefaultExpiration < 0 || opts.DefaultLocalExpiration < 0 {
		return nil, errors.New("hybridcache: default expirations must not be negative")
	}

	cc := &cache[V]{
		ns:           opts.Namespace,
		prefix:       "hc:" + opts.Namespace,
		dist:         opts.Distributed,
		hashLongKeys: opts.HashLongKeys,
		loadTimeout:  opts.LoadTimeout,
		enabled:      !opts.Disabled,
	}

	// defaults
	cc.clock = coalesce[clock.Clock](opts.Clock, clock.Real{})
	cc.hooks = coalesce[Hooks](opts.Hooks, NopHooks{})
	cc.log = coalesce[Logger](opts.Logger, NopLogger{}).With(Fields{"namespace": opts.Namespace})
	cc.expiration = coalesce[time.Duration](opts.DefaultExpiration, DefaultExpiration)
	cc.localExpiration = min(coalesce[time.Duration](opts.DefaultLocalExpiration, DefaultLocalExpiration), cc.expiration)
	cc.maxKeyLen = coalesce[int](opts.MaxKeyLength, DefaultMaxKeyLength)
	cc.distTimeout = coalesce[time.Duration](opts.DistributedTimeout, DefaultDistributedTimeout)
	cc.invalidateConcurrency = coalesce[int](opts.InvalidateConcurrency, DefaultInvalidateConcurrency)

	maxPayload := coalesce[int](opts.MaxPayloadBytes, codec.DefaultMaxPayload)
	if maxPayload < 0 {
		maxPayload = 0
	}
	cc.codec = codec.NewLimit(opts.Codec, maxPayload)

	if opts.ComputeSetCost != nil {
		cc.computeSetCost = opts.ComputeSetCost
	} else {
		cc.computeSetCost = func(_ string, frame []byte) int64 { return int64(len(frame)) }
	}

	sweep := coalesce[time.Duration](opts.CleanupInterval, defaultSweep)
	if sweep < 0 {
		sweep = 0
	}
	retention := coalesce[time.Duration](opts.GenerationRetention, defaultGenRetention)

	if opts.Local != nil {
		cc.local = opts.Local
	} else {
		cc.local = memory.New(memory.Config{Clock: cc.clock, CleanupInterval: sweep})
	}
	if opts.TagIndex != nil {
		cc.tags = opts.TagIndex
	} else {
		cc.tags = tagindex.NewLocal(cc.clock, sweep)
	}
	cc.gens = generation.New(cc.clock, sweep, retention)

	if cc.loadTimeout > 0 && retention < cc.loadTimeout {
		cc.log.Warn("generation retention shorter than load timeout; slow loads may cache removed values",
			Fields{"retention": retention, "loadTimeout": cc.loadTimeout})
	}
	return cc, nil
}

func (c *cache[V]) Enabled() bool { return c.enabled }

// Close releases the tiers and the tag index. Safe to call multiple times.
func (c *cache[V]) Close(ctx context.Context) error {
	c.closeOnce.Do(func() {
		if n := c.flight.Len(); n > 0 {
			c.log.Debug("closing with loads in flight", Fields{"loads": n, "generations": c.gens.Len()})
		}
		c.gens.Close()
		var err error
		if e := c.tags.Close(ctx); e != nil {
			err = errors.CombineErrors(err, errors.Wrap(e, "close tag index"))
		}
		if e := c.local.Close(ctx); e != nil {
			err = errors.CombineErrors(err, errors.Wrap(e, "close local tier"))
		}
		if c.dist != nil {
			if e := c.dist.Close(ctx); e != nil {
				err = errors.CombineErrors(err, errors.Wrap(e, "close distributed tier"))
			}
		}
		c.closeErr = err
	})
	return c.closeErr
}

func (c *cache[V]) GetOrCreate(ctx context.Context, key string, load Loader[V], opts ...EntryOption) (V, error) {
	var zero V
	if key == "" {
		return zero, ErrKeyEmpty
	}
	if load == nil {
		return zero, ErrNilLoader
	}
	if !c.enabled {
		return c.invoke(ctx, load)
	}
	sk, ok := c.storageKey(key)
	if !ok {
		return c.invoke(ctx, load)
	}
	eo := c.entryOptions(opts)

	if v, ok := c.getLocal(ctx, sk, eo); ok {
		c.hooks.Hit(c.ns, TierLocal)
		return v, nil
	}
	if v, ok := c.getDistributed(ctx, sk, eo); ok {
		c.hooks.Hit(c.ns, TierDistributed)
		return v, nil
	}
	c.hooks.Miss(c.ns)

	v, err, shared := c.flight.Do(ctx, sk, func(lctx context.Context) (V, error) {
		return c.loadAndPopulate(lctx, sk, load, eo)
	})
	if shared {
		c.hooks.Collapsed(c.ns, key)
	}
	if err != nil {
		return zero, c.classify(err)
	}
	return v, nil
}

func (c *cache[V]) Set(ctx context.Context, key string, value V, opts ...EntryOption) error {
	if key == "" {
		return ErrKeyEmpty
	}
	if !c.enabled {
		return nil
	}
	sk, ok := c.storageKey(key)
	if !ok {
		return nil
	}
	eo := c.entryOptions(opts)

	payload, err := c.codec.Encode(value)
	if err != nil {
		c.rejectPayload(sk, err)
		return errors.Wrapf(err, "hybridcache: encode %q", key)
	}

	// supersede loads in flight; their results are older than value
	c.gens.Bump(c.keyGen(sk))
	c.flight.Forget(sk)

	fence := c.fenceKeys(sk, eo.tags)
	obs := c.gens.SnapshotMany(fence)
	if err := c.writeTiers(ctx, sk, payload, eo); err != nil {
		return errors.Wrapf(err, "hybridcache: set %q", key)
	}
	c.settle(ctx, sk, fence, obs, eo)
	return nil
}

func (c *cache[V]) Remove(ctx context.Context, key string) error {
	if key == "" {
		return ErrKeyEmpty
	}
	if !c.enabled {
		return nil
	}
	sk, ok := c.storageKey(key)
	if !ok {
		return nil // never cached
	}

	c.gens.Bump(c.keyGen(sk))
	waiters := c.flight.Waiters(sk)
	c.flight.Forget(sk)

	lerr := c.local.Del(ctx, sk)
	if lerr != nil {
		c.log.Warn("local delete failed", Fields{"key": sk, "err": lerr})
	}
	derr := c.delDistributed(ctx, []string{sk})
	if lerr != nil && (c.dist == nil || derr != nil) {
		return &RemoveError{Key: key, LocalErr: lerr, DistributedErr: derr}
	}
	c.log.Debug("removed key", Fields{"key": sk, "waiters": waiters})
	return nil
}

func (c *cache[V]) RemoveByTag(ctx context.Context, tag string) error {
	return c.RemoveByTags(ctx, tag)
}

// RemoveByTags invalidates tag by tag. Each tag's generation moves before its
// keys are read, so a load still running under the tag either sees the move
// and discards its write, or has attached its key in time to be found here.
// Only tag index failures and keys no tier could delete are returned.
func (c *cache[V]) RemoveByTags(ctx context.Context, tags ...string) error {
	if !c.enabled {
		return nil
	}
	var errs error
	for _, tag := range normalizeTags(tags) {
		if err := c.removeTag(ctx, tag); err != nil {
			errs = errors.CombineErrors(errs, err)
		}
	}
	return errs
}

func (c *cache[V]) removeTag(ctx context.Context, tag string) error {
	c.gens.Bump(c.tagGen(tag))

	ictx, cancel := c.distCtx(ctx)
	sks, err := c.tags.Keys(ictx, tag)
	cancel()
	if err != nil {
		c.hooks.TagIndexError("keys", tag, err)
		c.log.Error("tag index read failed", Fields{"tag": tag, "err": err})
		return errors.Wrapf(err, "hybridcache: read tag %q", tag)
	}
	if len(sks) == 0 {
		return nil
	}

	fence := make([]string, len(sks))
	for i, sk := range sks {
		fence[i] = c.keyGen(sk)
		c.flight.Forget(sk)
	}
	c.gens.BumpMany(fence)

	// Detach before deleting. A population attaching after the detach keeps
	// its membership; one landing before the deletes is removed by them.
	ictx, cancel = c.distCtx(ctx)
	err = c.tags.Detach(ictx, tag, sks...)
	cancel()
	if err != nil {
		// stale members are tolerated; the next RemoveByTag deletes absent keys
		c.hooks.TagIndexError("detach", tag, err)
		c.log.Warn("tag detach failed", Fields{"tag": tag, "err": err})
	}

	lerr := pr.DelMany(ctx, c.local, sks)
	if lerr != nil {
		c.log.Warn("local bulk delete failed", Fields{"tag": tag, "keys": len(sks), "err": lerr})
	}
	derr := c.delDistributed(ctx, sks)
	if lerr != nil && (c.dist == nil || derr != nil) {
		return errors.Wrapf(&RemoveError{Key: tag, LocalErr: lerr, DistributedErr: derr},
			"hybridcache: remove tag %q", tag)
	}
	c.log.Debug("removed tag", Fields{"tag": tag, "keys": len(sks)})
	return nil
}

// delDistributed removes sks from the distributed tier in one DelMany when the
// provider supports it, else with bounded parallel deletes. Keys stay marked
// delete-pending until their delete succeeds, so this process never serves a
// shared copy it failed to remove.
func (c *cache[V]) delDistributed(ctx context.Context, sks []string) error {
	if c.dist == nil || len(sks) == 0 {
		return nil
	}
	gks := make([]string, len(sks))
	for i, sk := range sks {
		gks[i] = c.keyGen(sk)
	}
	c.gens.MarkDeletePending(gks...)

	if bd, ok := c.dist.(pr.BulkDeleter); ok {
		dctx, cancel := c.distCtx(ctx)
		defer cancel()
		if err := bd.DelMany(dctx, sks); err != nil {
			return c.distError("del", sks[0], err)
		}
		c.gens.ClearDeletePending(gks...)
		return nil
	}

	var g errgroup.Group
	g.SetLimit(c.invalidateConcurrency)
	for _, sk := range sks {
		g.Go(func() error {
			dctx, cancel := c.distCtx(ctx)
			defer cancel()
			if err := c.dist.Del(dctx, sk); err != nil {
				return c.distError("del", sk, err)
			}
			c.gens.ClearDeletePending(c.keyGen(sk))
			return nil
		})
	}
	return g.Wait()
}

// invoke runs load without caching (disabled cache or oversized key).
func (c *cache[V]) invoke(ctx context.Context, load Loader[V]) (V, error) {
	if c.loadTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.loadTimeout)
		defer cancel()
	}
	v, err := load(ctx)
	if err != nil {
		var zero V
		return zero, c.classify(errors.Mark(err, ErrLoaderFailed))
	}
	return v, nil
}

// loadAndPopulate runs once per flight. Generations are snapshotted before the
// loader so removals during the load are detected.
func (c *cache[V]) loadAndPopulate(ctx context.Context, sk string, load Loader[V], eo entryOptions) (V, error) {
	var zero V
	fence := c.fenceKeys(sk, eo.tags)
	obs := c.gens.SnapshotMany(fence)

	lctx := ctx
	if c.loadTimeout > 0 {
		var cancel context.CancelFunc
		lctx, cancel = context.WithTimeout(ctx, c.loadTimeout)
		defer cancel()
	}

	start := time.Now()
	v, err := load(lctx)
	c.hooks.Loaded(c.ns, time.Since(start), err)
	if err != nil {
		c.log.Debug("loader failed", Fields{"key": sk, "err": err})
		return zero, errors.Mark(err, ErrLoaderFailed)
	}

	// populate even if every waiter left; the value is still fresh
	wctx := context.WithoutCancel(ctx)
	payload, err := c.codec.Encode(v)
	if err != nil {
		c.rejectPayload(sk, err)
		return v, nil
	}
	if !c.gens.Unchanged(fence, obs) {
		c.hooks.StaleWriteSkipped(sk)
		c.log.Debug("skipped stale write (removed during load)", Fields{"key": sk})
		return v, nil
	}
	if err := c.writeTiers(wctx, sk, payload, eo); err != nil {
		c.log.Warn("local write failed", Fields{"key": sk, "err": err})
	}
	c.settle(wctx, sk, fence, obs, eo)
	return v, nil
}

// writeTiers stores payload in both tiers (per flags) and attaches tags.
// Distributed failures are reported, not returned.
func (c *cache[V]) writeTiers(ctx context.Context, sk string, payload []byte, eo entryOptions) error {
	now := c.clock.Now()
	wrote := false

	if c.dist != nil && !eo.flags.has(DisableDistributedWrite) {
		frame, err := wire.Encode(wire.Entry{
			CreatedAt: now,
			ExpiresAt: now.Add(eo.expiration),
			Tags:      eo.tags,
			Payload:   payload,
		})
		if err != nil {
			return errors.Wrap(err, "frame")
		}
		dctx, cancel := c.distCtx(ctx)
		ok, err := c.dist.Set(dctx, sk, frame, c.computeSetCost(sk, frame), eo.expiration)
		cancel()
		switch {
		case err != nil:
			_ = c.distError("set", sk, err)
		case !ok:
			c.hooks.ProviderSetRejected(TierDistributed, sk)
			c.log.Debug("distributed set rejected", Fields{"key": sk})
		default:
			wrote = true
			c.gens.ClearDeletePending(c.keyGen(sk))
		}
	}

	var lerr error
	if !eo.flags.has(DisableLocalWrite) {
		frame, err := wire.Encode(wire.Entry{
			CreatedAt: now,
			ExpiresAt: now.Add(eo.localExpiration),
			Tags:      eo.tags,
			Payload:   payload,
		})
		if err != nil {
			return errors.Wrap(err, "frame")
		}
		ok, err := c.local.Set(ctx, sk, frame, c.computeSetCost(sk, frame), eo.localExpiration)
		switch {
		case err != nil:
			lerr = err
		case !ok:
			c.hooks.ProviderSetRejected(TierLocal, sk)
			c.log.Debug("local set rejected (pressure)", Fields{"key": sk})
		default:
			wrote = true
		}
	}

	if wrote && len(eo.tags) > 0 {
		ictx, cancel := c.distCtx(ctx)
		if err := c.tags.Attach(ictx, eo.tags, sk, eo.expiration); err != nil {
			for _, tag := range eo.tags {
				c.hooks.TagIndexError("attach", tag, err)
			}
			c.log.Warn("tag attach failed", Fields{"key": sk, "tags": eo.tags, "err": err})
		}
		cancel()
	}
	return lerr
}

// settle re-checks the fence after a write. A removal that moved it while the
// write was in progress may have missed the new entry, so the entry is dropped.
func (c *cache[V]) settle(ctx context.Context, sk string, fence []string, obs []uint64, eo entryOptions) {
	if c.gens.Unchanged(fence, obs) {
		return
	}
	c.hooks.StaleWriteSkipped(sk)
	c.log.Debug("dropped write raced by removal", Fields{"key": sk})
	c.dropWrite(ctx, sk, eo.flags)
}

func (c *cache[V]) dropWrite(ctx context.Context, sk string, flags Flags) {
	if !flags.has(DisableLocalWrite) {
		_ = c.local.Del(ctx, sk)
	}
	if !flags.has(DisableDistributedWrite) {
		_ = c.delDistributed(ctx, []string{sk})
	}
}

func (c *cache[V]) getLocal(ctx context.Context, sk string, eo entryOptions) (V, bool) {
	var zero V
	if eo.flags.has(DisableLocalRead) {
		return zero, false
	}
	raw, ok, err := c.local.Get(ctx, sk)
	if err != nil {
		c.log.Warn("local get failed", Fields{"key": sk, "err": err})
		return zero, false
	}
	if !ok {
		return zero, false
	}
	_, v, ok := c.decode(ctx, c.local, TierLocal, sk, raw)
	return v, ok
}

// getDistributed reads the shared tier and backfills the local tier for the
// smaller of the remaining distributed lifetime and the local TTL.
func (c *cache[V]) getDistributed(ctx context.Context, sk string, eo entryOptions) (V, bool) {
	var zero V
	if c.dist == nil || eo.flags.has(DisableDistributedRead) {
		return zero, false
	}
	kg := c.keyGen(sk)
	if c.gens.DeletePending(kg) {
		// the shared copy was removed here but its delete failed; retry, never serve it
		_ = c.delDistributed(ctx, []string{sk})
		return zero, false
	}
	obs := c.gens.Snapshot(kg)

	dctx, cancel := c.distCtx(ctx)
	raw, ok, err := c.dist.Get(dctx, sk)
	cancel()
	if err != nil {
		_ = c.distError("get", sk, err)
		return zero, false
	}
	if !ok {
		return zero, false
	}
	e, v, ok := c.decode(ctx, c.dist, TierDistributed, sk, raw)
	if !ok {
		return zero, false
	}
	if eo.flags.has(DisableLocalWrite) {
		return v, true
	}

	now := c.clock.Now()
	ttl := e.Remaining(now, eo.localExpiration)
	if ttl <= 0 {
		return v, true
	}
	frame, err := wire.Encode(wire.Entry{
		CreatedAt: e.CreatedAt,
		ExpiresAt: now.Add(ttl),
		Tags:      e.Tags,
		Payload:   e.Payload,
	})
	if err != nil {
		return v, true
	}
	if ok, err := c.local.Set(ctx, sk, frame, c.computeSetCost(sk, frame), ttl); err != nil || !ok {
		c.log.Debug("local backfill not stored", Fields{"key": sk, "ok": ok, "err": err})
		return v, true
	}
	if len(e.Tags) > 0 {
		ictx, cancel := c.distCtx(ctx)
		if err := c.tags.Attach(ictx, e.Tags, sk, e.Remaining(now, 0)); err != nil {
			for _, tag := range e.Tags {
				c.hooks.TagIndexError("attach", tag, err)
			}
			c.log.Warn("tag attach failed", Fields{"key": sk, "tags": e.Tags, "err": err})
		}
		cancel()
	}
	if c.gens.Snapshot(kg) != obs {
		_ = c.local.Del(ctx, sk)
	}
	return v, true
}

// decode validates a stored frame. Corrupt frames are deleted (self-heal),
// expired ones are deleted quietly.
func (c *cache[V]) decode(ctx context.Context, p pr.Provider, tier Tier, sk string, raw []byte) (wire.Entry, V, bool) {
	var zero V
	e, err := wire.Decode(raw)
	if err != nil {
		c.heal(ctx, p, tier, sk, "corrupt", err)
		return wire.Entry{}, zero, false
	}
	if e.Expired(c.clock.Now()) {
		_ = c.del(ctx, p, tier, sk)
		return wire.Entry{}, zero, false
	}
	v, err := c.codec.Decode(e.Payload)
	if err != nil {
		c.heal(ctx, p, tier, sk, "value_decode", err)
		return wire.Entry{}, zero, false
	}
	return e, v, true
}

func (c *cache[V]) heal(ctx context.Context, p pr.Provider, tier Tier, sk, reason string, cause error) {
	c.hooks.SelfHeal(tier, sk, reason)
	c.log.Warn("dropping unreadable entry", Fields{"key": sk, "tier": tier.String(), "reason": reason, "err": cause})
	_ = c.del(ctx, p, tier, sk)
}

func (c *cache[V]) del(ctx context.Context, p pr.Provider, tier Tier, sk string) error {
	if tier == TierDistributed {
		dctx, cancel := c.distCtx(ctx)
		defer cancel()
		if err := p.Del(dctx, sk); err != nil {
			return c.distError("del", sk, err)
		}
		return nil
	}
	return p.Del(ctx, sk)
}

func (c *cache[V]) rejectPayload(sk string, err error) {
	var se *codec.SizeError
	if errors.As(err, &se) {
		c.hooks.PayloadRejected(sk, se.Size, se.Max)
		c.log.Warn("value too large to cache", Fields{"key": sk, "size": se.Size, "max": se.Max})
		return
	}
	c.log.Warn("value encode failed; not cached", Fields{"key": sk, "err": err})
}

// distError marks err as a distributed tier failure and reports it.
func (c *cache[V]) distError(op, sk string, err error) error {
	err = errors.Mark(err, ErrDistributedUnavailable)
	c.hooks.DistributedError(op, sk, err)
	c.log.Warn("distributed tier "+op+" failed", Fields{"key": sk, "err": err})
	return err
}

// classify marks deadline and panic outcomes of a flight.
func (c *cache[V]) classify(err error) error {
	var pe *flight.PanicError
	if errors.As(err, &pe) {
		c.log.Error("loader panicked", Fields{"panic": pe.Value})
		return errors.Mark(err, ErrLoaderFailed)
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return errors.Mark(err, ErrTimeout)
	}
	return err
}

func (c *cache[V]) distCtx(ctx context.Context) (context.Context, context.CancelFunc) {
	if c.distTimeout > 0 {
		return context.WithTimeout(ctx, c.distTimeout)
	}
	return context.WithCancel(ctx)
}

// storageKey namespaces key. ok=false when the key is too long to cache.
func (c *cache[V]) storageKey(key string) (string, bool) {
	if c.maxKeyLen > 0 && len(key) > c.maxKeyLen {
		if !c.hashLongKeys {
			c.hooks.KeyRejected(c.ns, len(key))
			c.log.Warn("key too long; bypassing cache", Fields{"length": len(key), "max": c.maxKeyLen})
			return "", false
		}
		return keys.Hash(c.prefix, key), true
	}
	return c.prefix + ":" + key, true
}

func (c *cache[V]) keyGen(sk string) string  { return "k:" + sk }
func (c *cache[V]) tagGen(tag string) string { return "t:" + tag }

func (c *cache[V]) fenceKeys(sk string, tags []string) []string {
	out := make([]string, 0, 1+len(tags))
	out = append(out, c.keyGen(sk))
	for _, t := range tags {
		out = append(out, c.tagGen(t))
	}
	return out
}
