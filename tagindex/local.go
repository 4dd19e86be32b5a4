package tagindex

import (
	"context"
	"sync"
	"time"

	"github.com/unkn0wn-root/hybridcache/clock"
)

// Local keeps tag membership in-process.
// Optional cleanup loop to prune expired memberships.
type Local struct {
	mu    sync.RWMutex
	tags  map[string]map[string]time.Time // tag -> key -> expiresAt (zero: never)
	clock clock.Clock

	ticker    *time.Ticker
	stopCh    chan struct{}
	wg        sync.WaitGroup
	closeOnce sync.Once
}

var _ Index = (*Local)(nil)

func NewLocal(clk clock.Clock, cleanupInterval time.Duration) *Local {
	if clk == nil {
		clk = clock.Real{}
	}
	s := &Local{
		tags:  make(map[string]map[string]time.Time),
		clock: clk,
	}
	if cleanupInterval > 0 {
		s.ticker = time.NewTicker(cleanupInterval)
		s.stopCh = make(chan struct{})
		s.wg.Add(1)
		go func() {
			defer s.wg.Done()
			for {
				select {
				case <-s.ticker.C:
					s.Cleanup()
				case <-s.stopCh:
					return
				}
			}
		}()
	}
	return s
}

// Attach extends an existing membership, never shortens it.
func (s *Local) Attach(_ context.Context, tags []string, key string, ttl time.Duration) error {
	if len(tags) == 0 {
		return nil
	}
	var exp time.Time
	if ttl > 0 {
		exp = s.clock.Now().Add(ttl)
	}

	s.mu.Lock()
	for _, tag := range tags {
		set := s.tags[tag]
		if set == nil {
			set = make(map[string]time.Time)
			s.tags[tag] = set
		}
		cur, ok := set[key]
		switch {
		case !ok:
			set[key] = exp
		case cur.IsZero():
		case exp.IsZero() || exp.After(cur):
			set[key] = exp
		}
	}
	s.mu.Unlock()
	return nil
}

func (s *Local) Keys(_ context.Context, tag string) ([]string, error) {
	now := s.clock.Now()
	s.mu.RLock()
	set := s.tags[tag]
	out := make([]string, 0, len(set))
	for k, exp := range set {
		if exp.IsZero() || now.Before(exp) {
			out = append(out, k)
		}
	}
	s.mu.RUnlock()
	return out, nil
}

func (s *Local) Detach(_ context.Context, tag string, keys ...string) error {
	s.mu.Lock()
	if set, ok := s.tags[tag]; ok {
		for _, k := range keys {
			delete(set, k)
		}
		if len(set) == 0 {
			delete(s.tags, tag)
		}
	}
	s.mu.Unlock()
	return nil
}

// Cleanup drops expired memberships and empty tags. Returns the number of
// memberships removed.
func (s *Local) Cleanup() int {
	now := s.clock.Now()
	removed := 0
	s.mu.Lock()
	for tag, set := range s.tags {
		for k, exp := range set {
			if !exp.IsZero() && !now.Before(exp) {
				delete(set, k)
				removed++
			}
		}
		if len(set) == 0 {
			delete(s.tags, tag)
		}
	}
	s.mu.Unlock()
	return removed
}

// Len reports the number of tags held.
func (s *Local) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.tags)
}

func (s *Local) Close(_ context.Context) error {
	s.closeOnce.Do(func() {
		if s.stopCh != nil {
			close(s.stopCh)
			s.ticker.Stop()
			s.wg.Wait()
		}
	})
	return nil
}
