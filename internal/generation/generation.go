// Package generation keeps in-process removal generations.
//
// Every Remove/RemoveByTag/Set bumps the generation of the affected key or tag.
// A population snapshots the generations before running its loader and writes
// only if none moved, so a value loaded across an invalidation is never cached.
// Missing entries read as generation 0.
//
// A key can also carry a pending delete: a removal whose distributed delete
// did not go through. Readers treat the shared copy as gone until a delete
// or a fresh write succeeds.
package generation

import (
	"sync"
	"time"

	"github.com/unkn0wn-root/hybridcache/clock"
)

type entry struct {
	gen        uint64
	updatedAt  time.Time
	delPending bool
}

// Store is a concurrent generation map with optional background pruning.
type Store struct {
	mu    sync.RWMutex
	gens  map[string]entry
	clock clock.Clock

	retention time.Duration
	ticker    *time.Ticker
	stopCh    chan struct{}
	wg        sync.WaitGroup
	closeOnce sync.Once
}

// New returns a Store. With cleanupInterval > 0 and retention > 0 a goroutine
// prunes entries not bumped within retention.
func New(clk clock.Clock, cleanupInterval, retention time.Duration) *Store {
	if clk == nil {
		clk = clock.Real{}
	}
	s := &Store{
		gens:      make(map[string]entry),
		clock:     clk,
		retention: retention,
	}
	if cleanupInterval > 0 && retention > 0 {
		s.ticker = time.NewTicker(cleanupInterval)
		s.stopCh = make(chan struct{})
		s.wg.Add(1)
		go func() {
			defer s.wg.Done()
			for {
				select {
				case <-s.ticker.C:
					s.Cleanup(retention)
				case <-s.stopCh:
					return
				}
			}
		}()
	}
	return s
}

// Snapshot returns the current generation of k.
func (s *Store) Snapshot(k string) uint64 {
	s.mu.RLock()
	e := s.gens[k]
	s.mu.RUnlock()
	return e.gen
}

// SnapshotMany reads all ks under one lock. Result order matches ks.
func (s *Store) SnapshotMany(ks []string) []uint64 {
	out := make([]uint64, len(ks))
	s.mu.RLock()
	for i, k := range ks {
		out[i] = s.gens[k].gen
	}
	s.mu.RUnlock()
	return out
}

// Bump increments and returns the generation of k.
func (s *Store) Bump(k string) uint64 {
	now := s.clock.Now()
	s.mu.Lock()
	e := s.gens[k]
	e.gen++
	e.updatedAt = now
	s.gens[k] = e
	s.mu.Unlock()
	return e.gen
}

// BumpMany bumps every key in ks under one lock.
func (s *Store) BumpMany(ks []string) {
	if len(ks) == 0 {
		return
	}
	now := s.clock.Now()
	s.mu.Lock()
	for _, k := range ks {
		e := s.gens[k]
		e.gen++
		e.updatedAt = now
		s.gens[k] = e
	}
	s.mu.Unlock()
}

// Unchanged reports whether every key in ks still has the generation in obs.
func (s *Store) Unchanged(ks []string, obs []uint64) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for i, k := range ks {
		if s.gens[k].gen != obs[i] {
			return false
		}
	}
	return true
}

// MarkDeletePending flags k until ClearDeletePending. The mark expires with
// the entry after retention.
func (s *Store) MarkDeletePending(ks ...string) {
	now := s.clock.Now()
	s.mu.Lock()
	for _, k := range ks {
		e := s.gens[k]
		e.delPending = true
		e.updatedAt = now
		s.gens[k] = e
	}
	s.mu.Unlock()
}

func (s *Store) ClearDeletePending(ks ...string) {
	s.mu.Lock()
	for _, k := range ks {
		if e, ok := s.gens[k]; ok && e.delPending {
			e.delPending = false
			s.gens[k] = e
		}
	}
	s.mu.Unlock()
}

func (s *Store) DeletePending(k string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.gens[k].delPending
}

// Len is the number of tracked keys.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.gens)
}

// Cleanup drops entries not bumped within retention.
func (s *Store) Cleanup(retention time.Duration) int {
	if retention <= 0 {
		return 0
	}
	cutoff := s.clock.Now().Add(-retention)

	removed := 0
	s.mu.Lock()
	for k, e := range s.gens {
		if e.updatedAt.Before(cutoff) {
			delete(s.gens, k)
			removed++
		}
	}
	s.mu.Unlock()
	return removed
}

// Close stops the cleanup goroutine. Safe to call more than once.
func (s *Store) Close() {
	s.closeOnce.Do(func() {
		if s.stopCh != nil {
			s.ticker.Stop()
			close(s.stopCh)
			s.wg.Wait()
		}
	})
}
