// Package memory is the default local tier: a sharded in-process byte store
// with per-entry expiration and optional per-shard LRU capacity.
package memory

import (
	"container/list"
	"context"
	"sync"
	"time"

	"github.com/cespare/xxhash/v2"

	"github.com/unkn0wn-root/hybridcache/clock"
	pr "github.com/unkn0wn-root/hybridcache/provider"
)

const defaultShards = 16

type Config struct {
	// Shards is the number of independently locked buckets. Rounded up to a power of two.
	Shards int
	// MaxEntries caps the total entry count (split evenly across shards).
	// 0 means unbounded; the TTL is then the only eviction.
	MaxEntries int
	// CleanupInterval runs a janitor that sweeps expired entries. 0 disables it;
	// expired entries are then evicted lazily on read.
	CleanupInterval time.Duration
	Clock           clock.Clock
}

type entry struct {
	key       string
	value     []byte
	expiresAt time.Time // zero: never
	elem      *list.Element
}

type shard struct {
	mu    sync.Mutex
	items map[string]*entry
	lru   *list.List // front: most recent; nil when unbounded
	cap   int
}

type Provider struct {
	shards []*shard
	mask   uint64
	clk    clock.Clock

	stop      chan struct{}
	done      chan struct{}
	closeOnce sync.Once
}

var (
	_ pr.Provider    = (*Provider)(nil)
	_ pr.BulkDeleter = (*Provider)(nil)
)

func New(cfg Config) *Provider {
	n := cfg.Shards
	if n <= 0 {
		n = defaultShards
	}
	size := 1
	for size < n {
		size <<= 1
	}
	clk := cfg.Clock
	if clk == nil {
		clk = clock.Real{}
	}

	per := 0
	if cfg.MaxEntries > 0 {
		per = (cfg.MaxEntries + size - 1) / size
	}
	p := &Provider{
		shards: make([]*shard, size),
		mask:   uint64(size - 1),
		clk:    clk,
	}
	for i := range p.shards {
		s := &shard{items: make(map[string]*entry), cap: per}
		if per > 0 {
			s.lru = list.New()
		}
		p.shards[i] = s
	}

	if cfg.CleanupInterval > 0 {
		p.stop = make(chan struct{})
		p.done = make(chan struct{})
		go p.janitor(cfg.CleanupInterval)
	}
	return p
}

func (p *Provider) shardFor(key string) *shard {
	return p.shards[xxhash.Sum64String(key)&p.mask]
}

func (p *Provider) Get(_ context.Context, key string) ([]byte, bool, error) {
	s := p.shardFor(key)
	now := p.clk.Now()

	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.items[key]
	if !ok {
		return nil, false, nil
	}
	if !e.expiresAt.IsZero() && !now.Before(e.expiresAt) {
		s.remove(e)
		return nil, false, nil
	}
	if s.lru != nil {
		s.lru.MoveToFront(e.elem)
	}
	return e.value, true, nil
}

func (p *Provider) Set(_ context.Context, key string, value []byte, _ int64, ttl time.Duration) (bool, error) {
	var exp time.Time
	if ttl > 0 {
		exp = p.clk.Now().Add(ttl)
	}
	s := p.shardFor(key)

	s.mu.Lock()
	defer s.mu.Unlock()
	if e, ok := s.items[key]; ok {
		e.value = value
		e.expiresAt = exp
		if s.lru != nil {
			s.lru.MoveToFront(e.elem)
		}
		return true, nil
	}

	e := &entry{key: key, value: value, expiresAt: exp}
	s.items[key] = e
	if s.lru != nil {
		e.elem = s.lru.PushFront(e)
		for s.lru.Len() > s.cap {
			s.remove(s.lru.Back().Value.(*entry))
		}
	}
	return true, nil
}

func (p *Provider) Del(_ context.Context, key string) error {
	s := p.shardFor(key)
	s.mu.Lock()
	if e, ok := s.items[key]; ok {
		s.remove(e)
	}
	s.mu.Unlock()
	return nil
}

// DelMany removes keys shard by shard, taking each shard lock once.
func (p *Provider) DelMany(_ context.Context, keys []string) error {
	byShard := make(map[*shard][]string, len(p.shards))
	for _, k := range keys {
		s := p.shardFor(k)
		byShard[s] = append(byShard[s], k)
	}
	for s, ks := range byShard {
		s.mu.Lock()
		for _, k := range ks {
			if e, ok := s.items[k]; ok {
				s.remove(e)
			}
		}
		s.mu.Unlock()
	}
	return nil
}

// Len reports the number of stored entries, expired ones not yet swept included.
func (p *Provider) Len() int {
	n := 0
	for _, s := range p.shards {
		s.mu.Lock()
		n += len(s.items)
		s.mu.Unlock()
	}
	return n
}

// Sweep drops every expired entry and returns how many were removed.
func (p *Provider) Sweep() int {
	now := p.clk.Now()
	removed := 0
	for _, s := range p.shards {
		s.mu.Lock()
		for _, e := range s.items {
			if !e.expiresAt.IsZero() && !now.Before(e.expiresAt) {
				s.remove(e)
				removed++
			}
		}
		s.mu.Unlock()
	}
	return removed
}

func (p *Provider) Close(_ context.Context) error {
	p.closeOnce.Do(func() {
		if p.stop != nil {
			close(p.stop)
			<-p.done
		}
		for _, s := range p.shards {
			s.mu.Lock()
			s.items = make(map[string]*entry)
			if s.lru != nil {
				s.lru.Init()
			}
			s.mu.Unlock()
		}
	})
	return nil
}

func (p *Provider) janitor(every time.Duration) {
	defer close(p.done)
	t := time.NewTicker(every)
	defer t.Stop()
	for {
		select {
		case <-p.stop:
			return
		case <-t.C:
			p.Sweep()
		}
	}
}

// must hold s.mu
func (s *shard) remove(e *entry) {
	delete(s.items, e.key)
	if s.lru != nil && e.elem != nil {
		s.lru.Remove(e.elem)
	}
}
