package main

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"

	otelhooks "github.com/unkn0wn-root/hybridcache/hooks/otel"
	"github.com/unkn0wn-root/hybridcache/internal/config"
)

func TestRunLoadCollapsesLoads(t *testing.T) {
	for _, kind := range []string{"memory", "bigcache"} {
		t.Run(kind, func(t *testing.T) {
			cfg := config.Default()
			cfg.Local.Kind = kind
			cfg.CleanupInterval = -1
			d, err := newDeps(context.Background(), cfg)
			require.NoError(t, err)
			cd, err := newCodec("cbor")
			require.NoError(t, err)
			c, err := newCache(cfg, d, cacheOpts{codec: cd})
			require.NoError(t, err)
			defer c.Close(context.Background())

			st, err := runLoad(context.Background(), c, runParams{
				callers:     16,
				keys:        8,
				requests:    400,
				loadLatency: time.Millisecond,
				groups:      2,
			})
			require.NoError(t, err)
			assert.Equal(t, int64(400), st.requests.Load())
			assert.Zero(t, st.errors.Load())
			// no invalidation and a 1m local TTL: each key loads once
			assert.LessOrEqual(t, st.loads.Load(), int64(8))
			assert.Positive(t, st.loads.Load())
		})
	}
}

func TestRunLoadWithInvalidationAndMetrics(t *testing.T) {
	reader := sdkmetric.NewManualReader()
	mp := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
	defer mp.Shutdown(context.Background())
	oh, err := otelhooks.New(mp.Meter("test"))
	require.NoError(t, err)

	cfg := config.Default()
	cfg.CleanupInterval = -1
	d, err := newDeps(context.Background(), cfg)
	require.NoError(t, err)
	cd, err := newCodec("json")
	require.NoError(t, err)
	c, err := newCache(cfg, d, cacheOpts{codec: cd, hooks: oh})
	require.NoError(t, err)
	defer c.Close(context.Background())

	st, err := runLoad(context.Background(), c, runParams{
		callers:         8,
		keys:            4,
		requests:        300,
		loadLatency:     2 * time.Millisecond,
		invalidateEvery: time.Millisecond,
		groups:          2,
	})
	require.NoError(t, err)
	assert.Equal(t, int64(300), st.requests.Load())
	assert.Positive(t, st.loads.Load())

	var out bytes.Buffer
	report(&out, runParams{callers: 8, keys: 4}, st)
	assert.Contains(t, out.String(), "requests:     300")

	out.Reset()
	require.NoError(t, reportMetrics(&out, reader))
	assert.Contains(t, out.String(), otelhooks.MetricLoads)
	assert.Contains(t, out.String(), otelhooks.MetricMisses)
}

func TestRunLoadRejectsBadParams(t *testing.T) {
	_, err := runLoad(context.Background(), nil, runParams{callers: 0, keys: 1})
	assert.Error(t, err)
}

func TestNewCodec(t *testing.T) {
	for _, name := range []string{"", "json", "msgpack", "cbor"} {
		cd, err := newCodec(name)
		require.NoError(t, err, name)
		b, err := cd.Encode(item{ID: 7, Name: "x", Version: 3})
		require.NoError(t, err, name)
		v, err := cd.Decode(b)
		require.NoError(t, err, name)
		assert.Equal(t, item{ID: 7, Name: "x", Version: 3}, v, name)
	}
	_, err := newCodec("gob")
	assert.Error(t, err)
}

func TestNewLoggerLevels(t *testing.T) {
	l, err := newLogger(config.Log{Level: "warn", Format: "json"})
	require.NoError(t, err)
	assert.False(t, l.Core().Enabled(-1))
	assert.True(t, l.Core().Enabled(1))

	_, err = newLogger(config.Log{Level: "loud"})
	assert.Error(t, err)
}

func TestConfigCommand(t *testing.T) {
	path := filepath.Join(t.TempDir(), "hc.yaml")
	require.NoError(t, os.WriteFile(path, []byte("namespace: catalog\nexpiration: 2d\n"), 0o600))

	root := newRootCmd()
	var out bytes.Buffer
	root.SetOut(&out)
	root.SetArgs([]string{"config", "--config", path, "--local", "ristretto", "--log-level", "debug"})
	require.NoError(t, root.Execute())

	s := out.String()
	assert.Contains(t, s, "namespace: catalog")
	assert.Contains(t, s, "expiration: 2d")
	assert.Contains(t, s, "kind: ristretto")
	assert.True(t, strings.Contains(s, "level: debug"))
}

func TestConfigCommandRejectsInvalid(t *testing.T) {
	root := newRootCmd()
	root.SetOut(&bytes.Buffer{})
	root.SetArgs([]string{"config", "--local", "memcached"})
	assert.Error(t, root.Execute())
}

func TestNewDepsUnreachableRedis(t *testing.T) {
	cfg := config.Default()
	cfg.CleanupInterval = -1
	cfg.Redis.Enabled = true
	cfg.Redis.Addr = "127.0.0.1:1"

	_, err := newDeps(context.Background(), cfg)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "127.0.0.1:1")
}

func TestDepsCloseReleasesLocalOnlyDeps(t *testing.T) {
	cfg := config.Default()
	cfg.CleanupInterval = -1
	d, err := newDeps(context.Background(), cfg)
	require.NoError(t, err)
	assert.Nil(t, d.dist)
	assert.Nil(t, d.index)
	d.close(context.Background())
	d.close(context.Background())
}
