package monitor

import (
	"context"
	"runtime"
	"sync"
	"time"

	"github.com/michaelpento.lv/cyclearb/utils/metrics"
	"go.uber.org/zap"
)

// SystemMonitor samples runtime statistics into the system metrics while the
// detection loop runs.
type SystemMonitor struct {
	ctx      context.Context
	cancel   context.CancelFunc
	logger   *zap.Logger
	metrics  *metrics.SystemMetrics
	interval time.Duration
	lastGC   uint32
	last     time.Time
	mu       sync.Mutex
	wg       sync.WaitGroup
}

// NewSystemMonitor starts sampling every interval until ctx is cancelled or
// Cleanup is called.
func NewSystemMonitor(ctx context.Context, logger *zap.Logger, m *metrics.SystemMetrics, interval time.Duration) (*SystemMonitor, error) {
	if interval <= 0 {
		interval = time.Second
	}
	ctx, cancel := context.WithCancel(ctx)
	mon := &SystemMonitor{
		ctx:      ctx,
		cancel:   cancel,
		logger:   logger,
		metrics:  m,
		interval: interval,
		last:     time.Now(),
	}

	mon.collectMetrics()

	mon.wg.Add(1)
	go func() {
		defer mon.wg.Done()
		mon.monitor()
	}()

	return mon, nil
}

func (m *SystemMonitor) monitor() {
	ticker := time.NewTicker(m.interval)
	defer ticker.Stop()

	for {
		select {
		case <-m.ctx.Done():
			return
		case <-ticker.C:
			m.collectMetrics()
		}
	}
}

func (m *SystemMonitor) collectMetrics() {
	m.mu.Lock()
	defer m.mu.Unlock()

	var memStats runtime.MemStats
	runtime.ReadMemStats(&memStats)

	m.metrics.MemoryUsage.Set(float64(memStats.Alloc))
	m.metrics.HeapObjects.Set(float64(memStats.HeapObjects))
	m.metrics.Goroutines.Set(float64(runtime.NumGoroutine()))

	// PauseNs is a ring buffer of the most recent 256 pauses.
	for n := m.lastGC; n < memStats.NumGC && memStats.NumGC-n <= 256; n++ {
		m.metrics.GCPause.Observe(float64(memStats.PauseNs[n%256]) / float64(time.Second))
	}
	m.lastGC = memStats.NumGC

	now := time.Now()
	m.metrics.Uptime.Add(now.Sub(m.last).Seconds())
	m.last = now
}

// GetMetrics returns current system statistics
func (m *SystemMonitor) GetMetrics() map[string]interface{} {
	var memStats runtime.MemStats
	runtime.ReadMemStats(&memStats)

	return map[string]interface{}{
		"mem_usage":    int64(memStats.Alloc),
		"goroutines":   int64(runtime.NumGoroutine()),
		"heap_objects": int64(memStats.HeapObjects),
		"heap_alloc":   int64(memStats.HeapAlloc),
		"gc_pause":     float64(memStats.PauseNs[(memStats.NumGC+255)%256]) / float64(time.Millisecond),
	}
}

// Cleanup stops sampling and waits for the sampler to exit.
func (m *SystemMonitor) Cleanup() error {
	m.cancel()
	m.wg.Wait()
	return nil
}
