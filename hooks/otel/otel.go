// Package otelhooks records hybridcache events as OpenTelemetry metrics.
//
//	mp := sdkmetric.NewMeterProvider(...)
//	h, err := otelhooks.New(mp.Meter("hybridcache"))
//	cache, _ := hybridcache.New[Product](hybridcache.Options[Product]{..., Hooks: h})
package otelhooks

import (
	"context"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"github.com/unkn0wn-root/hybridcache"
)

const (
	MetricHits         = "hybridcache.hits"
	MetricMisses       = "hybridcache.misses"
	MetricLoads        = "hybridcache.loads"
	MetricLoadErrors   = "hybridcache.load.errors"
	MetricLoadDuration = "hybridcache.load.duration_ms"
	MetricCollapsed    = "hybridcache.collapsed"
	MetricSelfHeals    = "hybridcache.self_heals"
	MetricRejected     = "hybridcache.rejected"
	MetricDistErrors   = "hybridcache.distributed.errors"
	MetricTagErrors    = "hybridcache.tagindex.errors"
	MetricStaleWrites  = "hybridcache.stale_writes"
)

// Hooks implements hybridcache.Hooks on top of a metric.Meter.
// Storage keys are never used as attributes.
type Hooks struct {
	hits, misses, loads, loadErrors, collapsed metric.Int64Counter
	selfHeals, rejected, distErrors, tagErrors metric.Int64Counter
	staleWrites                                metric.Int64Counter
	loadDuration                               metric.Float64Histogram
}

var _ hybridcache.Hooks = (*Hooks)(nil)

func New(meter metric.Meter) (*Hooks, error) {
	h := &Hooks{}
	counters := []struct {
		dst  *metric.Int64Counter
		name string
		desc string
	}{
		{&h.hits, MetricHits, "Lookups served from a cache tier"},
		{&h.misses, MetricMisses, "Lookups that missed both tiers"},
		{&h.loads, MetricLoads, "Loader executions"},
		{&h.loadErrors, MetricLoadErrors, "Loader executions that failed"},
		{&h.collapsed, MetricCollapsed, "Callers that joined an in-flight load"},
		{&h.selfHeals, MetricSelfHeals, "Unreadable entries deleted on read"},
		{&h.rejected, MetricRejected, "Values or keys the cache refused to store"},
		{&h.distErrors, MetricDistErrors, "Distributed tier failures"},
		{&h.tagErrors, MetricTagErrors, "Tag index failures"},
		{&h.staleWrites, MetricStaleWrites, "Loaded values discarded after a concurrent removal"},
	}
	for _, c := range counters {
		ctr, err := meter.Int64Counter(c.name, metric.WithDescription(c.desc), metric.WithUnit("{event}"))
		if err != nil {
			return nil, err
		}
		*c.dst = ctr
	}

	hist, err := meter.Float64Histogram(
		MetricLoadDuration,
		metric.WithDescription("Loader execution duration in milliseconds"),
		metric.WithUnit("ms"),
	)
	if err != nil {
		return nil, err
	}
	h.loadDuration = hist
	return h, nil
}

func ns(namespace string) attribute.KeyValue { return attribute.String("namespace", namespace) }

func (h *Hooks) Hit(namespace string, tier hybridcache.Tier) {
	h.hits.Add(context.Background(), 1, metric.WithAttributes(ns(namespace), attribute.String("tier", tier.String())))
}

func (h *Hooks) Miss(namespace string) {
	h.misses.Add(context.Background(), 1, metric.WithAttributes(ns(namespace)))
}

func (h *Hooks) Loaded(namespace string, took time.Duration, err error) {
	ctx := context.Background()
	opt := metric.WithAttributes(ns(namespace))
	h.loads.Add(ctx, 1, opt)
	if err != nil {
		h.loadErrors.Add(ctx, 1, opt)
	}
	h.loadDuration.Record(ctx, float64(took)/float64(time.Millisecond), opt)
}

func (h *Hooks) Collapsed(namespace, _ string) {
	h.collapsed.Add(context.Background(), 1, metric.WithAttributes(ns(namespace)))
}

func (h *Hooks) SelfHeal(tier hybridcache.Tier, _ string, reason string) {
	h.selfHeals.Add(context.Background(), 1, metric.WithAttributes(
		attribute.String("tier", tier.String()),
		attribute.String("reason", reason),
	))
}

func (h *Hooks) PayloadRejected(string, int, int) {
	h.rejected.Add(context.Background(), 1, metric.WithAttributes(attribute.String("reason", "payload_too_large")))
}

func (h *Hooks) ProviderSetRejected(tier hybridcache.Tier, _ string) {
	h.rejected.Add(context.Background(), 1, metric.WithAttributes(
		attribute.String("reason", "provider_pressure"),
		attribute.String("tier", tier.String()),
	))
}

func (h *Hooks) KeyRejected(namespace string, _ int) {
	h.rejected.Add(context.Background(), 1, metric.WithAttributes(
		attribute.String("reason", "key_too_long"),
		ns(namespace),
	))
}

func (h *Hooks) DistributedError(op, _ string, _ error) {
	h.distErrors.Add(context.Background(), 1, metric.WithAttributes(attribute.String("op", op)))
}

func (h *Hooks) TagIndexError(op, _ string, _ error) {
	h.tagErrors.Add(context.Background(), 1, metric.WithAttributes(attribute.String("op", op)))
}

func (h *Hooks) StaleWriteSkipped(string) {
	h.staleWrites.Add(context.Background(), 1)
}
