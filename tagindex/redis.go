package tagindex

import (
	"context"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"
)

var ErrNilClient = errors.New("tagindex: nil redis client")

// Redis shares tag membership across processes as one SET per tag.
// A set's TTL only ever grows to cover its longest-lived member; members of
// expired cache entries linger until the set expires or RemoveByTag detaches them.
type Redis struct {
	rdb         redis.UniversalClient
	ns          string // logical namespace; should match Options.Namespace
	closeClient bool
}

var _ Index = (*Redis)(nil)

type RedisConfig struct {
	Client      redis.UniversalClient
	Namespace   string
	CloseClient bool // set true only if the index exclusively owns the client
}

func NewRedis(cfg RedisConfig) (*Redis, error) {
	if cfg.Client == nil {
		return nil, ErrNilClient
	}
	return &Redis{rdb: cfg.Client, ns: cfg.Namespace, closeClient: cfg.CloseClient}, nil
}

func (s *Redis) key(tag string) string { return "tag:" + s.ns + ":" + tag }

// Attach pipelines SADD and the TTL update for every tag in one round-trip.
// EXPIRE NX sets a TTL on a fresh set; EXPIRE GT only extends an existing one.
func (s *Redis) Attach(ctx context.Context, tags []string, key string, ttl time.Duration) error {
	if len(tags) == 0 {
		return nil
	}
	cmds, err := s.rdb.Pipelined(ctx, func(p redis.Pipeliner) error {
		for _, tag := range tags {
			k := s.key(tag)
			p.SAdd(ctx, k, key)
			if ttl > 0 {
				p.ExpireNX(ctx, k, ttl)
				p.ExpireGT(ctx, k, ttl)
			} else {
				p.Persist(ctx, k)
			}
		}
		return nil
	})
	if err != nil {
		return err
	}
	for _, c := range cmds {
		if err := c.Err(); err != nil && err != redis.Nil {
			return err
		}
	}
	return nil
}

func (s *Redis) Keys(ctx context.Context, tag string) ([]string, error) {
	ks, err := s.rdb.SMembers(ctx, s.key(tag)).Result()
	if err == redis.Nil {
		return nil, nil
	}
	return ks, err
}

func (s *Redis) Detach(ctx context.Context, tag string, keys ...string) error {
	if len(keys) == 0 {
		return nil
	}
	members := make([]any, len(keys))
	for i, k := range keys {
		members[i] = k
	}
	return s.rdb.SRem(ctx, s.key(tag), members...).Err()
}

// Close closes the underlying client only when the index owns it.
func (s *Redis) Close(context.Context) error {
	if s.closeClient {
		if err := s.rdb.Close(); err != nil && !errors.Is(err, redis.ErrClosed) {
			return err
		}
	}
	return nil
}
