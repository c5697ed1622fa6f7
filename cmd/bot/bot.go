package bot

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/michaelpento.lv/cyclearb/report"
	"github.com/michaelpento.lv/cyclearb/strategies/arbitrage"
	"github.com/michaelpento.lv/cyclearb/types"
	"github.com/michaelpento.lv/cyclearb/utils/metrics"
	"go.uber.org/zap"
)

// Passer runs one complete detection pass.
type Passer interface {
	RunPass(ctx context.Context) (types.PassResult, error)
}

// StatusSource reports the running detection counters.
type StatusSource interface {
	Status() metrics.DetectionStatus
}

// Bot runs detection passes on a fixed cadence and on demand, one at a time,
// and hands every completed pass to a reporter.
type Bot struct {
	engine   Passer
	reporter report.Reporter
	interval time.Duration
	logger   *zap.Logger

	status      StatusSource
	statusEvery time.Duration

	trigger chan struct{}
	wg      sync.WaitGroup
	cancel  context.CancelFunc

	mu       sync.Mutex
	passes   int
	failures int
	last     types.PassResult
}

// New creates a bot. An interval of zero disables the cadence; passes then
// only run on Trigger.
func New(engine Passer, reporter report.Reporter, interval time.Duration, logger *zap.Logger) *Bot {
	return &Bot{
		engine:   engine,
		reporter: reporter,
		interval: interval,
		logger:   logger.With(zap.String("component", "bot")),
		trigger:  make(chan struct{}, 1),
	}
}

// EnableStatusLog makes the bot log the counters of src every interval while
// it runs. It must be called before Start; a non-positive interval disables
// the log.
func (b *Bot) EnableStatusLog(src StatusSource, every time.Duration) {
	b.status = src
	b.statusEvery = every
}

// Start begins the scheduling loop and returns immediately. The first pass
// runs right away.
func (b *Bot) Start(ctx context.Context) error {
	b.logger.Info("Starting detection loop", zap.Duration("interval", b.interval))

	ctx, b.cancel = context.WithCancel(ctx)
	b.Trigger()

	b.wg.Add(1)
	go func() {
		defer b.wg.Done()
		b.loop(ctx)
	}()

	if b.status != nil && b.statusEvery > 0 {
		b.wg.Add(1)
		go func() {
			defer b.wg.Done()
			b.monitorStatus(ctx)
		}()
	}

	return nil
}

// Stop cancels the loop and waits for an in-flight pass to finish.
func (b *Bot) Stop() {
	b.logger.Info("Stopping detection loop...")
	if b.cancel != nil {
		b.cancel()
	}
	b.wg.Wait()
}

// Trigger requests a pass as soon as the current one, if any, completes.
// Requests made while one is already pending are coalesced.
func (b *Bot) Trigger() {
	select {
	case b.trigger <- struct{}{}:
	default:
	}
}

// Stats returns the number of completed and failed passes and the most
// recent completed result.
func (b *Bot) Stats() (passes, failures int, last types.PassResult) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.passes, b.failures, b.last
}

func (b *Bot) loop(ctx context.Context) {
	var tick <-chan time.Time
	if b.interval > 0 {
		ticker := time.NewTicker(b.interval)
		defer ticker.Stop()
		tick = ticker.C
	}

	for {
		select {
		case <-ctx.Done():
			return
		case <-tick:
		case <-b.trigger:
		}
		b.runPass(ctx)
	}
}

// monitorStatus periodically logs the detection counters
func (b *Bot) monitorStatus(ctx context.Context) {
	ticker := time.NewTicker(b.statusEvery)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s := b.status.Status()
			b.logger.Info("Detection status",
				zap.Float64("passes", s.Passes),
				zap.Float64("failures", s.Failures),
				zap.Float64("cycles_found", s.CyclesFound),
				zap.Float64("opportunities", s.Opportunities),
				zap.Float64("best_profit_pct", s.BestProfitPct),
				zap.Float64("snapshot_version", s.SnapshotVersion))
		}
	}
}

func (b *Bot) runPass(ctx context.Context) {
	result, err := b.engine.RunPass(ctx)
	if err != nil {
		if errors.Is(err, arbitrage.ErrPassAborted) && ctx.Err() != nil {
			return
		}
		b.mu.Lock()
		b.failures++
		b.mu.Unlock()
		b.logger.Error("Detection pass failed", zap.Error(err))
		return
	}

	b.mu.Lock()
	b.passes++
	b.last = result
	b.mu.Unlock()

	if b.reporter == nil {
		return
	}
	if err := b.reporter.Report(ctx, result); err != nil {
		b.logger.Warn("Failed to report pass",
			zap.String("pass_id", result.ID),
			zap.Error(err))
	}
}
