package main

import (
	"context"
	"fmt"
	"io"
	"math/rand/v2"
	"os/signal"
	"sort"
	"strconv"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/unkn0wn-root/hybridcache"
	asynchook "github.com/unkn0wn-root/hybridcache/hooks/async"
	otelhooks "github.com/unkn0wn-root/hybridcache/hooks/otel"
)

type runParams struct {
	callers         int
	keys            int
	requests        int
	loadLatency     time.Duration
	invalidateEvery time.Duration
	groups          int
	codec           string
	metrics         bool
	trace           bool
}

type runStats struct {
	requests    atomic.Int64
	loads       atomic.Int64
	errors      atomic.Int64
	invalidated atomic.Int64
	elapsed     time.Duration
}

func newRunCmd() *cobra.Command {
	var p runParams
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Hammer the cache with concurrent GetOrCreate calls",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			zl, err := newLogger(cfg.Log)
			if err != nil {
				return err
			}
			defer func() { _ = zl.Sync() }()

			cd, err := newCodec(p.codec)
			if err != nil {
				return err
			}
			d, err := newDeps(ctx, cfg)
			if err != nil {
				return err
			}

			var (
				reader *sdkmetric.ManualReader
				hooks  hybridcache.Hooks
				async  *asynchook.Hooks
			)
			if p.metrics {
				reader = sdkmetric.NewManualReader()
				mp := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
				defer func() { _ = mp.Shutdown(context.Background()) }()
				oh, err := otelhooks.New(mp.Meter("hcbench"))
				if err != nil {
					return err
				}
				async = asynchook.New(oh, 2, 4096)
				hooks = async
			}

			c, err := newCache(cfg, d, cacheOpts{codec: cd, logger: zl, hooks: hooks, traceHook: p.trace})
			if err != nil {
				d.close(context.Background())
				if async != nil {
					async.Close()
				}
				return err
			}
			defer func() {
				if err := c.Close(context.Background()); err != nil {
					zl.Warn("close cache", zap.Error(err))
				}
			}()

			zl.Info("starting run",
				zap.String("namespace", cfg.Namespace),
				zap.String("local", cfg.Local.Kind),
				zap.Bool("redis", cfg.Redis.Enabled),
				zap.Int("callers", p.callers),
				zap.Int("keys", p.keys),
				zap.Int("requests", p.requests),
			)

			stats, err := runLoad(ctx, c, p)
			if async != nil {
				async.Close()
			}
			if err != nil {
				return err
			}
			report(cmd.OutOrStdout(), p, stats)
			if reader != nil {
				return reportMetrics(cmd.OutOrStdout(), reader)
			}
			return nil
		},
	}
	f := cmd.Flags()
	f.IntVar(&p.callers, "callers", 64, "concurrent callers")
	f.IntVar(&p.keys, "keys", 100, "distinct keys")
	f.IntVar(&p.requests, "requests", 10000, "total GetOrCreate calls")
	f.DurationVar(&p.loadLatency, "load-latency", 5*time.Millisecond, "synthetic loader latency")
	f.DurationVar(&p.invalidateEvery, "invalidate-every", 100*time.Millisecond, "RemoveByTag interval; 0 disables")
	f.IntVar(&p.groups, "groups", 4, "number of tag groups keys are spread over")
	f.StringVar(&p.codec, "codec", "json", "payload codec: json, msgpack or cbor")
	f.BoolVar(&p.metrics, "metrics", false, "collect OpenTelemetry metrics and print them after the run")
	f.BoolVar(&p.trace, "trace-hooks", false, "log sampled cache events as JSON to stderr")
	f.String("redis", "", "redis address; overrides redis.addr and enables the distributed tier")
	f.String("local", "", "local tier: memory, ristretto or bigcache")
	return cmd
}

func groupTag(n int) string { return "group:" + strconv.Itoa(n) }

func runLoad(ctx context.Context, c hybridcache.Cache[item], p runParams) (*runStats, error) {
	if p.callers <= 0 || p.keys <= 0 || p.requests < 0 {
		return nil, fmt.Errorf("callers and keys must be positive")
	}
	groups := max(p.groups, 1)
	st := &runStats{}
	var next atomic.Int64
	start := time.Now()

	invCtx, stopInv := context.WithCancel(ctx)
	invDone := make(chan struct{})
	go func() {
		defer close(invDone)
		if p.invalidateEvery <= 0 {
			return
		}
		t := time.NewTicker(p.invalidateEvery)
		defer t.Stop()
		for n := 0; ; n++ {
			select {
			case <-invCtx.Done():
				return
			case <-t.C:
				if err := c.RemoveByTag(invCtx, groupTag(n%groups)); err == nil {
					st.invalidated.Add(1)
				}
			}
		}
	}()

	g, gctx := errgroup.WithContext(ctx)
	for w := 0; w < p.callers; w++ {
		g.Go(func() error {
			for {
				i := next.Add(1)
				if i > int64(p.requests) || gctx.Err() != nil {
					return nil
				}
				k := rand.IntN(p.keys)
				key := "item:" + strconv.Itoa(k)
				_, err := c.GetOrCreate(gctx, key, func(ctx context.Context) (item, error) {
					st.loads.Add(1)
					select {
					case <-time.After(p.loadLatency):
					case <-ctx.Done():
						return item{}, ctx.Err()
					}
					return item{ID: k, Name: key, Version: time.Now().UnixNano()}, nil
				}, hybridcache.WithTags(groupTag(k%groups)))
				st.requests.Add(1)
				if err != nil {
					st.errors.Add(1)
				}
			}
		})
	}
	err := g.Wait()
	stopInv()
	<-invDone
	st.elapsed = time.Since(start)
	return st, err
}

func report(w io.Writer, p runParams, st *runStats) {
	req, loads := st.requests.Load(), st.loads.Load()
	ratio := 0.0
	if req > 0 {
		ratio = float64(loads) / float64(req)
	}
	fmt.Fprintf(w, "requests:     %d\n", req)
	fmt.Fprintf(w, "loader calls: %d (%.4f per request)\n", loads, ratio)
	fmt.Fprintf(w, "errors:       %d\n", st.errors.Load())
	fmt.Fprintf(w, "invalidated:  %d tag groups\n", st.invalidated.Load())
	fmt.Fprintf(w, "elapsed:      %s (%d callers, %d keys)\n", st.elapsed.Round(time.Millisecond), p.callers, p.keys)
	if secs := st.elapsed.Seconds(); secs > 0 {
		fmt.Fprintf(w, "throughput:   %.0f req/s\n", float64(req)/secs)
	}
}

func reportMetrics(w io.Writer, reader *sdkmetric.ManualReader) error {
	var rm metricdata.ResourceMetrics
	if err := reader.Collect(context.Background(), &rm); err != nil {
		return err
	}
	lines := map[string]string{}
	for _, sm := range rm.ScopeMetrics {
		for _, m := range sm.Metrics {
			switch data := m.Data.(type) {
			case metricdata.Sum[int64]:
				var total int64
				for _, dp := range data.DataPoints {
					total += dp.Value
				}
				lines[m.Name] = strconv.FormatInt(total, 10)
			case metricdata.Histogram[float64]:
				var count uint64
				var sum float64
				for _, dp := range data.DataPoints {
					count += dp.Count
					sum += dp.Sum
				}
				if count > 0 {
					lines[m.Name] = fmt.Sprintf("count=%d avg=%.2fms", count, sum/float64(count))
				}
			}
		}
	}
	names := make([]string, 0, len(lines))
	for n := range lines {
		names = append(names, n)
	}
	sort.Strings(names)
	fmt.Fprintln(w, "metrics:")
	for _, n := range names {
		fmt.Fprintf(w, "  %-34s %s\n", n, lines[n])
	}
	return nil
}
