package monitor

import (
	"context"
	"testing"
	"time"

	"github.com/michaelpento.lv/cyclearb/utils/metrics"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestSystemMonitor(t *testing.T) {
	logger := zap.NewNop()
	sys := metrics.NewSystemMetrics(prometheus.NewRegistry(), "test")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	mon, err := NewSystemMonitor(ctx, logger, sys, 10*time.Millisecond)
	require.NoError(t, err)
	require.NotNil(t, mon)

	// first sample is taken synchronously
	assert.Greater(t, metrics.GaugeValue(sys.Goroutines), float64(0))
	assert.Greater(t, metrics.GaugeValue(sys.MemoryUsage), float64(0))

	time.Sleep(50 * time.Millisecond)

	stats := mon.GetMetrics()
	assert.Contains(t, stats, "mem_usage")
	assert.Contains(t, stats, "goroutines")
	assert.Contains(t, stats, "heap_objects")
	assert.Contains(t, stats, "heap_alloc")
	assert.Contains(t, stats, "gc_pause")

	goroutines, ok := stats["goroutines"].(int64)
	assert.True(t, ok)
	assert.Greater(t, goroutines, int64(0))

	assert.NoError(t, mon.Cleanup())
	assert.Greater(t, metrics.CounterValue(sys.Uptime), float64(0))
}

func TestSystemMonitorStopsWithContext(t *testing.T) {
	sys := metrics.NewSystemMetrics(prometheus.NewRegistry(), "test")
	ctx, cancel := context.WithCancel(context.Background())

	mon, err := NewSystemMonitor(ctx, zap.NewNop(), sys, time.Millisecond)
	require.NoError(t, err)

	cancel()
	done := make(chan struct{})
	go func() {
		_ = mon.Cleanup()
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("monitor did not stop after context cancellation")
	}
}
