package telemetry

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"
)

func TestInitWithoutEndpointIsNoop(t *testing.T) {
	shutdown, err := Init(context.Background(), "", "intelgate", "test", true)
	require.NoError(t, err)
	assert.NoError(t, shutdown(context.Background()))
}

func TestNilInstrumentsRecordNothing(t *testing.T) {
	var ins *Instruments
	assert.NotPanics(t, func() {
		ins.Request(context.Background(), "ok")
		ins.BackendCall(context.Background(), "claude", "ok", time.Second)
		ins.BreakerTransition("claude", "closed", "open")
		ins.Spend("claude", 1)
	})
}

func TestInstrumentsRecord(t *testing.T) {
	reader := sdkmetric.NewManualReader()
	mp := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
	t.Cleanup(func() { _ = mp.Shutdown(context.Background()) })

	ins, err := NewInstruments(mp.Meter(ScopeName))
	require.NoError(t, err)

	ctx := context.Background()
	ins.Request(ctx, "ok")
	ins.BackendCall(ctx, "claude", "ok", 2*time.Second)
	ins.BackendCall(ctx, "claude", "transient", 0)
	ins.BreakerTransition("claude", "closed", "open")
	ins.Spend("claude", 0.25)
	ins.Spend("claude", 0)

	var rm metricdata.ResourceMetrics
	require.NoError(t, reader.Collect(ctx, &rm))
	require.Len(t, rm.ScopeMetrics, 1)

	byName := make(map[string]metricdata.Metrics)
	for _, m := range rm.ScopeMetrics[0].Metrics {
		byName[m.Name] = m
	}

	calls, ok := byName["intelgate.backend.calls"].Data.(metricdata.Sum[int64])
	require.True(t, ok)
	var total int64
	for _, dp := range calls.DataPoints {
		total += dp.Value
	}
	assert.Equal(t, int64(2), total)

	latency, ok := byName["intelgate.backend.latency"].Data.(metricdata.Histogram[float64])
	require.True(t, ok)
	require.Len(t, latency.DataPoints, 1)
	assert.Equal(t, uint64(1), latency.DataPoints[0].Count)

	spend, ok := byName["intelgate.budget.spend"].Data.(metricdata.Sum[float64])
	require.True(t, ok)
	require.Len(t, spend.DataPoints, 1)
	assert.InDelta(t, 0.25, spend.DataPoints[0].Value, 1e-9)

	_, ok = byName["intelgate.breaker.transitions"]
	assert.True(t, ok)
}
