package bot

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/michaelpento.lv/cyclearb/config"
	"github.com/michaelpento.lv/cyclearb/report/sqlite"
	"github.com/michaelpento.lv/cyclearb/types"
	"github.com/michaelpento.lv/cyclearb/utils/metrics"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
)

type fakeEngine struct {
	calls   atomic.Int32
	running atomic.Int32
	overlap atomic.Bool
	delay   time.Duration
	err     error
}

func (e *fakeEngine) RunPass(ctx context.Context) (types.PassResult, error) {
	if e.running.Add(1) > 1 {
		e.overlap.Store(true)
	}
	defer e.running.Add(-1)
	n := e.calls.Add(1)
	time.Sleep(e.delay)
	if e.err != nil {
		return types.PassResult{}, e.err
	}
	return types.PassResult{ID: string(rune('a' + n - 1)), Opportunities: []types.Opportunity{}}, nil
}

type collector struct {
	mu  sync.Mutex
	ids []string
}

func (c *collector) Name() string { return "collector" }

func (c *collector) Report(ctx context.Context, result types.PassResult) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.ids = append(c.ids, result.ID)
	return nil
}

func (c *collector) count() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.ids)
}

func TestBotRunsFirstPassImmediately(t *testing.T) {
	engine := &fakeEngine{}
	rep := &collector{}
	b := New(engine, rep, 0, zap.NewNop())

	require.NoError(t, b.Start(context.Background()))
	defer b.Stop()

	assert.Eventually(t, func() bool { return rep.count() == 1 }, time.Second, 5*time.Millisecond)
	passes, failures, last := b.Stats()
	assert.Equal(t, 1, passes)
	assert.Equal(t, 0, failures)
	assert.Equal(t, "a", last.ID)
}

func TestBotTriggerNeverOverlaps(t *testing.T) {
	engine := &fakeEngine{delay: 20 * time.Millisecond}
	rep := &collector{}
	b := New(engine, rep, 0, zap.NewNop())

	require.NoError(t, b.Start(context.Background()))
	require.Eventually(t, func() bool { return engine.calls.Load() == 1 }, time.Second, time.Millisecond)
	for i := 0; i < 10; i++ {
		b.Trigger()
	}
	assert.Eventually(t, func() bool { return rep.count() >= 2 }, time.Second, 5*time.Millisecond)
	b.Stop()

	assert.False(t, engine.overlap.Load())
	// pending requests coalesce into one
	assert.LessOrEqual(t, int(engine.calls.Load()), 3)
}

func TestBotCadence(t *testing.T) {
	engine := &fakeEngine{}
	rep := &collector{}
	b := New(engine, rep, 10*time.Millisecond, zap.NewNop())

	require.NoError(t, b.Start(context.Background()))
	assert.Eventually(t, func() bool { return rep.count() >= 3 }, time.Second, 5*time.Millisecond)
	b.Stop()
}

func TestBotCountsFailures(t *testing.T) {
	engine := &fakeEngine{err: errors.New("refresh failed")}
	rep := &collector{}
	b := New(engine, rep, 0, zap.NewNop())

	require.NoError(t, b.Start(context.Background()))
	assert.Eventually(t, func() bool {
		_, failures, _ := b.Stats()
		return failures == 1
	}, time.Second, 5*time.Millisecond)
	b.Stop()

	assert.Equal(t, 0, rep.count())
}

func TestBotLogsStatus(t *testing.T) {
	m := metrics.NewDetectionMetrics(prometheus.NewRegistry(), "test")
	m.Passes.Add(4)
	m.PassFailures.WithLabelValues("refresh").Inc()
	m.CyclesFound.Add(9)
	m.Opportunities.Set(2)
	m.BestProfitPct.Set(20)

	core, logs := observer.New(zap.InfoLevel)
	b := New(&fakeEngine{}, &collector{}, 0, zap.New(core))
	b.EnableStatusLog(m, 10*time.Millisecond)

	require.NoError(t, b.Start(context.Background()))
	require.Eventually(t, func() bool {
		return logs.FilterMessage("Detection status").Len() >= 1
	}, time.Second, 5*time.Millisecond)
	b.Stop()

	fields := logs.FilterMessage("Detection status").All()[0].ContextMap()
	assert.Equal(t, "bot", fields["component"])
	assert.Equal(t, float64(4), fields["passes"])
	assert.Equal(t, float64(1), fields["failures"])
	assert.Equal(t, float64(9), fields["cycles_found"])
	assert.Equal(t, float64(2), fields["opportunities"])
	assert.Equal(t, float64(20), fields["best_profit_pct"])
}

func TestBotStatusLogDisabled(t *testing.T) {
	core, logs := observer.New(zap.InfoLevel)
	b := New(&fakeEngine{}, &collector{}, 0, zap.New(core))
	b.EnableStatusLog(metrics.NewDetectionMetrics(prometheus.NewRegistry(), "test"), 0)

	require.NoError(t, b.Start(context.Background()))
	time.Sleep(30 * time.Millisecond)
	b.Stop()
	assert.Zero(t, logs.FilterMessage("Detection status").Len())
}

func TestBuildSourceRequiresASource(t *testing.T) {
	cfg := config.DefaultConfig()
	_, _, err := BuildSource(context.Background(), cfg, zap.NewNop(), nil)
	assert.ErrorIs(t, err, ErrNoSources)
}

func TestBuildSourceStaticFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "quotes.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
quotes:
  - from: A
    to: B
    rate: 2
  - from: B
    to: A
    rate: 0.4
`), 0o644))

	cfg := config.DefaultConfig()
	cfg.Sources.Static.Path = path
	m := metrics.NewSourceMetrics(prometheus.NewRegistry(), "test")

	src, cleanup, err := BuildSource(context.Background(), cfg, zap.NewNop(), m)
	require.NoError(t, err)
	defer cleanup.Run()

	quotes, err := src.FetchQuotes(context.Background())
	require.NoError(t, err)
	assert.Len(t, quotes, 2)
}

func TestBuildReporterWithArchive(t *testing.T) {
	path := filepath.Join(t.TempDir(), "passes.db")
	cfg := config.DefaultConfig()
	cfg.Reporting.Log = true
	cfg.Reporting.SQLite.Enabled = true
	cfg.Reporting.SQLite.Path = path
	m := metrics.NewReportMetrics(prometheus.NewRegistry(), "test")

	rep, cleanup, err := BuildReporter(context.Background(), cfg, zap.NewNop(), m)
	require.NoError(t, err)
	require.NoError(t, rep.Report(context.Background(), types.PassResult{
		ID:            "p1",
		StartedAt:     time.Now(),
		Opportunities: []types.Opportunity{},
	}))
	cleanup.Run()

	archive, err := sqlite.Open(path)
	require.NoError(t, err)
	defer archive.Close()
	records, err := archive.Recent(context.Background(), 5)
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, "p1", records[0].ID)
}
