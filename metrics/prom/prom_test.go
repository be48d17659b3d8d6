package prom

import (
	"context"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/IvanBrykalov/imgprefetch/engine"
)

func TestAdapter_Hooks(t *testing.T) {
	t.Parallel()

	reg := prometheus.NewRegistry()
	a := New(reg, "img", "test", prometheus.Labels{"app": "t"})

	a.FetchStarted()
	a.FetchStarted()
	a.FetchDone(engine.OutcomeLoaded, 20*time.Millisecond)
	a.FetchDone(engine.OutcomeRetry, time.Second)
	a.Evict(engine.EvictBudget)
	a.Evict(engine.EvictPurge)
	a.Evict(engine.EvictPurge)
	a.Size(3, 4096)
	a.Queue(5, 2, 4)

	assert.Equal(t, 2.0, testutil.ToFloat64(a.started))
	assert.Equal(t, 1.0, testutil.ToFloat64(a.outcomes.WithLabelValues("loaded")))
	assert.Equal(t, 1.0, testutil.ToFloat64(a.outcomes.WithLabelValues("retry")))
	assert.Equal(t, 1.0, testutil.ToFloat64(a.evicts.WithLabelValues("budget")))
	assert.Equal(t, 2.0, testutil.ToFloat64(a.evicts.WithLabelValues("purge")))
	assert.Equal(t, 3.0, testutil.ToFloat64(a.entries))
	assert.Equal(t, 4096.0, testutil.ToFloat64(a.bytes))
	assert.Equal(t, 5.0, testutil.ToFloat64(a.pending))
	assert.Equal(t, 2.0, testutil.ToFloat64(a.inflight))
	assert.Equal(t, 4.0, testutil.ToFloat64(a.limit))
	assert.Equal(t, 2, testutil.CollectAndCount(a.latency))
}

// The adapter wired into an engine sees every fetch.
func TestAdapter_WithEngine(t *testing.T) {
	t.Parallel()

	reg := prometheus.NewRegistry()
	a := New(reg, "img", "engine", nil)
	e := engine.New(engine.Options{
		Fetcher: engine.FetcherFunc(func(context.Context, string) error { return nil }),
		Metrics: a,
	})
	t.Cleanup(func() { _ = e.Close() })

	e.PreloadImage("a", engine.Prefetch)
	e.PreloadImage("b", engine.Prefetch)
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	require.NoError(t, e.Wait(ctx))
	require.True(t, e.PurgeFromCache("a"))

	assert.Equal(t, 2.0, testutil.ToFloat64(a.started))
	assert.Equal(t, 2.0, testutil.ToFloat64(a.outcomes.WithLabelValues("loaded")))
	assert.Equal(t, 1.0, testutil.ToFloat64(a.evicts.WithLabelValues("purge")))
	assert.Equal(t, 1.0, testutil.ToFloat64(a.entries))
	assert.Equal(t, 0.0, testutil.ToFloat64(a.inflight))
}
