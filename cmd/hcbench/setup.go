package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	goredis "github.com/redis/go-redis/v9"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/unkn0wn-root/hybridcache"
	"github.com/unkn0wn-root/hybridcache/codec"
	"github.com/unkn0wn-root/hybridcache/internal/config"
	hclog "github.com/unkn0wn-root/hybridcache/log/zap"
	pr "github.com/unkn0wn-root/hybridcache/provider"
	"github.com/unkn0wn-root/hybridcache/provider/bigcache"
	"github.com/unkn0wn-root/hybridcache/provider/memory"
	"github.com/unkn0wn-root/hybridcache/provider/redis"
	"github.com/unkn0wn-root/hybridcache/provider/ristretto"
	"github.com/unkn0wn-root/hybridcache/sloghooks"
	"github.com/unkn0wn-root/hybridcache/tagindex"
)

// item is the value type cached by the benchmark.
type item struct {
	ID      int    `json:"id" msgpack:"id" cbor:"1,keyasint"`
	Name    string `json:"name" msgpack:"name" cbor:"2,keyasint"`
	Version int64  `json:"version" msgpack:"version" cbor:"3,keyasint"`
}

func newCodec(name string) (codec.Codec[item], error) {
	switch name {
	case "", "json":
		return codec.JSON[item]{}, nil
	case "msgpack":
		return codec.Msgpack[item]{}, nil
	case "cbor":
		return codec.NewCBOR[item](true)
	default:
		return nil, fmt.Errorf("unknown codec %q", name)
	}
}

func newLogger(cfg config.Log) (*zap.Logger, error) {
	lvl := zapcore.InfoLevel
	if cfg.Level != "" {
		var err error
		if lvl, err = zapcore.ParseLevel(cfg.Level); err != nil {
			return nil, err
		}
	}
	zc := zap.NewProductionConfig()
	if cfg.Format == "console" {
		zc = zap.NewDevelopmentConfig()
	}
	zc.Level = zap.NewAtomicLevelAt(lvl)
	return zc.Build()
}

func newLocal(ctx context.Context, cfg config.Config) (pr.Provider, error) {
	switch cfg.Local.Kind {
	case "ristretto":
		return ristretto.New(ristretto.Config{
			NumCounters: max(int64(cfg.Local.MaxEntries)*10, 1e5),
			MaxCost:     max(cfg.Local.MaxCostBytes, 1<<20),
			BufferItems: 64,
			Metrics:     true,
		})
	case "bigcache":
		// frames carry their own expiry; the life window only bounds memory
		return bigcache.New(ctx, bigcache.Config{
			LifeWindow:         cfg.LocalExpiration.D(),
			CleanWindow:        cfg.CleanupInterval.D(),
			Shards:             cfg.Local.Shards,
			HardMaxCacheSizeMB: int(cfg.Local.MaxCostBytes >> 20),
		})
	default:
		return memory.New(memory.Config{
			Shards:          cfg.Local.Shards,
			MaxEntries:      cfg.Local.MaxEntries,
			CleanupInterval: cfg.CleanupInterval.D(),
		}), nil
	}
}

type deps struct {
	local pr.Provider
	dist  pr.Provider
	index tagindex.Index
}

func newDeps(ctx context.Context, cfg config.Config) (deps, error) {
	var d deps
	var err error
	if d.local, err = newLocal(ctx, cfg); err != nil {
		return deps{}, fmt.Errorf("local tier: %w", err)
	}
	if !cfg.Redis.Enabled {
		return d, nil
	}
	rdb := goredis.NewClient(&goredis.Options{
		Addr:     cfg.Redis.Addr,
		DB:       cfg.Redis.DB,
		Password: cfg.Redis.Password,
	})
	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		_ = d.local.Close(ctx)
		return deps{}, fmt.Errorf("redis %s: %w", cfg.Redis.Addr, err)
	}
	// the provider owns the client; the index shares it
	dist, err := redis.New(redis.Config{Client: rdb, CloseClient: true})
	if err != nil {
		_ = rdb.Close()
		_ = d.local.Close(ctx)
		return deps{}, fmt.Errorf("distributed tier: %w", err)
	}
	d.dist = dist
	if cfg.Redis.TagIndex {
		idx, err := tagindex.NewRedis(tagindex.RedisConfig{Client: rdb, Namespace: cfg.Namespace})
		if err != nil {
			d.close(ctx)
			return deps{}, fmt.Errorf("tag index: %w", err)
		}
		d.index = idx
	}
	return d, nil
}

// close releases deps that never reached a cache; the cache closes them otherwise.
func (d deps) close(ctx context.Context) {
	if d.index != nil {
		_ = d.index.Close(ctx)
	}
	if d.dist != nil {
		_ = d.dist.Close(ctx)
	}
	if d.local != nil {
		_ = d.local.Close(ctx)
	}
}

type cacheOpts struct {
	codec     codec.Codec[item]
	logger    *zap.Logger
	hooks     hybridcache.Hooks
	traceHook bool
}

func newCache(cfg config.Config, d deps, o cacheOpts) (hybridcache.Cache[item], error) {
	hooks := o.hooks
	if hooks == nil && o.traceHook {
		hooks = sloghooks.New(slog.New(slog.NewJSONHandler(os.Stderr, nil)), sloghooks.Options{
			HitEvery:  1000,
			MissEvery: 100,
		})
	}
	var logger hybridcache.Logger
	if o.logger != nil {
		logger = hclog.ZapLogger{L: o.logger}
	}
	return hybridcache.New(hybridcache.Options[item]{
		Namespace:              cfg.Namespace,
		Codec:                  o.codec,
		Local:                  d.local,
		Distributed:            d.dist,
		TagIndex:               d.index,
		Logger:                 logger,
		Hooks:                  hooks,
		DefaultExpiration:      cfg.Expiration.D(),
		DefaultLocalExpiration: cfg.LocalExpiration.D(),
		MaxPayloadBytes:        cfg.MaxPayloadBytes,
		MaxKeyLength:           cfg.MaxKeyLength,
		HashLongKeys:           cfg.HashLongKeys,
		LoadTimeout:            cfg.LoadTimeout.D(),
		DistributedTimeout:     cfg.DistributedTimeout.D(),
		InvalidateConcurrency:  cfg.InvalidateConcurrency,
		GenerationRetention:    cfg.GenerationRetention.D(),
		CleanupInterval:        cfg.CleanupInterval.D(),
	})
}
