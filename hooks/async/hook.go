// usage:
//
// import (
//
//	"log/slog"
//
//	"github.com/unkn0wn-root/hybridcache"
//	"github.com/unkn0wn-root/hybridcache/codec"
//	"github.com/unkn0wn-root/hybridcache/hooks/async"
//	"github.com/unkn0wn-root/hybridcache/sloghooks"
//
// )
//
//	raw := sloghooks.New(slog.Default(), sloghooks.Options{
//	    HitEvery:      100, // sample logs: ~every 100th hit
//	    SelfHealEvery: 1,   // log every self-heal
//	})
//
// hooks := asynchook.New(raw, 1, 1000) // 1 worker; queue 1000 events
// defer hooks.Close()
//
//	cache, _ := hybridcache.New[Product](hybridcache.Options[Product]{
//	    Namespace: "app:prod:product",
//	    Codec:     codec.JSON[Product]{},
//	    Hooks:     hooks, // or `raw` if you don't want async
//	})
package asynchook

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/unkn0wn-root/hybridcache"
)

// Hooks forwards events to inner on worker goroutines. Events are dropped
// when the queue is full or after Close.
type Hooks struct {
	inner   hybridcache.Hooks
	q       chan func()
	wg      sync.WaitGroup
	once    sync.Once
	mu      sync.RWMutex
	closed  bool
	dropped atomic.Uint64
}

var _ hybridcache.Hooks = (*Hooks)(nil)

func New(inner hybridcache.Hooks, workers, qlen int) *Hooks {
	if workers <= 0 {
		workers = 1
	}
	if qlen <= 0 {
		qlen = 1024
	}

	h := &Hooks{inner: inner, q: make(chan func(), qlen)}
	h.wg.Add(workers)
	for i := 0; i < workers; i++ {
		go func() {
			defer h.wg.Done()
			for f := range h.q {
				f()
			}
		}()
	}
	return h
}

// Close drains queued events and stops the workers.
func (h *Hooks) Close() {
	h.once.Do(func() {
		h.mu.Lock()
		h.closed = true
		close(h.q)
		h.mu.Unlock()
		h.wg.Wait()
	})
}

// Dropped reports how many events were discarded.
func (h *Hooks) Dropped() uint64 { return h.dropped.Load() }

func (h *Hooks) try(f func()) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	if h.closed {
		h.dropped.Add(1)
		return
	}
	select {
	case h.q <- f:
	default: // drop
		h.dropped.Add(1)
	}
}

func (h *Hooks) Hit(ns string, t hybridcache.Tier) { h.try(func() { h.inner.Hit(ns, t) }) }
func (h *Hooks) Miss(ns string)                    { h.try(func() { h.inner.Miss(ns) }) }
func (h *Hooks) Collapsed(ns, k string)            { h.try(func() { h.inner.Collapsed(ns, k) }) }
func (h *Hooks) StaleWriteSkipped(k string)        { h.try(func() { h.inner.StaleWriteSkipped(k) }) }
func (h *Hooks) KeyRejected(ns string, n int)      { h.try(func() { h.inner.KeyRejected(ns, n) }) }
func (h *Hooks) Loaded(ns string, d time.Duration, err error) {
	h.try(func() { h.inner.Loaded(ns, d, err) })
}
func (h *Hooks) SelfHeal(t hybridcache.Tier, k, r string) {
	h.try(func() { h.inner.SelfHeal(t, k, r) })
}
func (h *Hooks) PayloadRejected(k string, size, max int) {
	h.try(func() { h.inner.PayloadRejected(k, size, max) })
}
func (h *Hooks) ProviderSetRejected(t hybridcache.Tier, k string) {
	h.try(func() { h.inner.ProviderSetRejected(t, k) })
}
func (h *Hooks) DistributedError(op, k string, err error) {
	h.try(func() { h.inner.DistributedError(op, k, err) })
}
func (h *Hooks) TagIndexError(op, tag string, err error) {
	h.try(func() { h.inner.TagIndexError(op, tag, err) })
}
