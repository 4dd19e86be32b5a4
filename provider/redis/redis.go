// Package redis is the distributed tier backed by go-redis.
package redis

import (
	"context"
	"errors"
	"time"

	goredis "github.com/redis/go-redis/v9"

	pr "github.com/unkn0wn-root/hybridcache/provider"
)

var ErrNilClient = errors.New("redis provider: nil client")

// delBatch bounds the number of keys sent in one DEL.
const delBatch = 512

type Redis struct {
	rdb         goredis.UniversalClient
	closeClient bool
}

var (
	_ pr.Provider    = (*Redis)(nil)
	_ pr.BulkDeleter = (*Redis)(nil)
)

type Config struct {
	Client      goredis.UniversalClient
	CloseClient bool // set true only if this provider exclusively owns the client
}

func New(cfg Config) (*Redis, error) {
	if cfg.Client == nil {
		return nil, ErrNilClient
	}
	return &Redis{rdb: cfg.Client, closeClient: cfg.CloseClient}, nil
}

func (p *Redis) Get(ctx context.Context, key string) ([]byte, bool, error) {
	b, err := p.rdb.Get(ctx, key).Bytes()
	if err == goredis.Nil {
		return nil, false, nil // miss
	}
	if err != nil {
		return nil, false, err // transport/server error
	}
	return b, true, nil
}

func (p *Redis) Set(ctx context.Context, key string, value []byte, _ int64, ttl time.Duration) (bool, error) {
	if ttl <= 0 {
		ttl = 0 // treat non-positive TTLs as "no expiry" per provider contract
	}

	err := p.rdb.Set(ctx, key, value, ttl).Err()
	if err != nil {
		return false, err
	}
	return true, nil
}

func (p *Redis) Del(ctx context.Context, key string) error {
	return p.rdb.Del(ctx, key).Err()
}

// DelMany pipelines DEL commands of at most delBatch keys each. On a cluster
// client keys are sent one per DEL so each lands on its own slot.
func (p *Redis) DelMany(ctx context.Context, keys []string) error {
	if len(keys) == 0 {
		return nil
	}
	_, cluster := p.rdb.(*goredis.ClusterClient)
	cmds, err := p.rdb.Pipelined(ctx, func(pipe goredis.Pipeliner) error {
		if cluster {
			for _, k := range keys {
				pipe.Del(ctx, k)
			}
			return nil
		}
		for start := 0; start < len(keys); start += delBatch {
			end := min(start+delBatch, len(keys))
			pipe.Del(ctx, keys[start:end]...)
		}
		return nil
	})
	if err != nil {
		return err
	}
	for _, c := range cmds {
		if err := c.Err(); err != nil {
			return err
		}
	}
	return nil
}

// Close releases the underlying redis client only when this provider owns it.
// Safe to call multiple times; repeated calls become no-ops.
func (p *Redis) Close(context.Context) error {
	if p.closeClient {
		if err := p.rdb.Close(); err != nil && !errors.Is(err, goredis.ErrClosed) {
			return err
		}
	}
	return nil
}
