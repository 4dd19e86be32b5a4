package otelhooks

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/attribute"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"

	"github.com/unkn0wn-root/hybridcache"
)

func setup(t *testing.T) (*Hooks, *sdkmetric.ManualReader) {
	t.Helper()
	reader := sdkmetric.NewManualReader()
	mp := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
	t.Cleanup(func() { _ = mp.Shutdown(context.Background()) })
	h, err := New(mp.Meter("test"))
	require.NoError(t, err)
	return h, reader
}

func collect(t *testing.T, r *sdkmetric.ManualReader) metricdata.ResourceMetrics {
	t.Helper()
	var rm metricdata.ResourceMetrics
	require.NoError(t, r.Collect(context.Background(), &rm))
	return rm
}

func findMetric(rm metricdata.ResourceMetrics, name string) *metricdata.Metrics {
	for _, sm := range rm.ScopeMetrics {
		for i := range sm.Metrics {
			if sm.Metrics[i].Name == name {
				return &sm.Metrics[i]
			}
		}
	}
	return nil
}

// sumWhere adds the data points of a counter whose attributes contain kv.
func sumWhere(t *testing.T, rm metricdata.ResourceMetrics, name string, kv ...attribute.KeyValue) int64 {
	t.Helper()
	m := findMetric(rm, name)
	require.NotNil(t, m, "metric %s not recorded", name)
	sum, ok := m.Data.(metricdata.Sum[int64])
	require.True(t, ok, "expected Sum[int64], got %T", m.Data)

	var total int64
	for _, dp := range sum.DataPoints {
		match := true
		for _, want := range kv {
			got, ok := dp.Attributes.Value(want.Key)
			if !ok || got != want.Value {
				match = false
				break
			}
		}
		if match {
			total += dp.Value
		}
	}
	return total
}

func TestHitsByTier(t *testing.T) {
	h, r := setup(t)
	h.Hit("products", hybridcache.TierLocal)
	h.Hit("products", hybridcache.TierLocal)
	h.Hit("products", hybridcache.TierDistributed)
	h.Miss("products")

	rm := collect(t, r)
	assert.Equal(t, int64(2), sumWhere(t, rm, MetricHits, attribute.String("tier", "local")))
	assert.Equal(t, int64(1), sumWhere(t, rm, MetricHits, attribute.String("tier", "distributed")))
	assert.Equal(t, int64(1), sumWhere(t, rm, MetricMisses, attribute.String("namespace", "products")))
}

func TestLoadsAndDuration(t *testing.T) {
	h, r := setup(t)
	h.Loaded("products", 20*time.Millisecond, nil)
	h.Loaded("products", 40*time.Millisecond, errors.New("db down"))

	rm := collect(t, r)
	assert.Equal(t, int64(2), sumWhere(t, rm, MetricLoads))
	assert.Equal(t, int64(1), sumWhere(t, rm, MetricLoadErrors))

	m := findMetric(rm, MetricLoadDuration)
	require.NotNil(t, m)
	hist, ok := m.Data.(metricdata.Histogram[float64])
	require.True(t, ok)
	require.Len(t, hist.DataPoints, 1)
	assert.Equal(t, uint64(2), hist.DataPoints[0].Count)
	assert.InDelta(t, 60.0, hist.DataPoints[0].Sum, 0.001)
}

func TestFailureCounters(t *testing.T) {
	h, r := setup(t)
	h.SelfHeal(hybridcache.TierDistributed, "hc:p:1", "corrupt")
	h.PayloadRejected("hc:p:1", 2<<20, 1<<20)
	h.ProviderSetRejected(hybridcache.TierLocal, "hc:p:1")
	h.KeyRejected("products", 4096)
	h.DistributedError("get", "hc:p:1", errors.New("refused"))
	h.TagIndexError("keys", "products", errors.New("refused"))
	h.StaleWriteSkipped("hc:p:1")
	h.Collapsed("products", "p:1")

	rm := collect(t, r)
	assert.Equal(t, int64(1), sumWhere(t, rm, MetricSelfHeals, attribute.String("reason", "corrupt")))
	assert.Equal(t, int64(3), sumWhere(t, rm, MetricRejected))
	assert.Equal(t, int64(1), sumWhere(t, rm, MetricRejected, attribute.String("reason", "key_too_long")))
	assert.Equal(t, int64(1), sumWhere(t, rm, MetricDistErrors, attribute.String("op", "get")))
	assert.Equal(t, int64(1), sumWhere(t, rm, MetricTagErrors, attribute.String("op", "keys")))
	assert.Equal(t, int64(1), sumWhere(t, rm, MetricStaleWrites))
	assert.Equal(t, int64(1), sumWhere(t, rm, MetricCollapsed))
}
