package report

import (
	"context"
	"errors"
	"fmt"
	"sync"

	lru "github.com/hashicorp/golang-lru"
	"github.com/michaelpento.lv/cyclearb/types"
	"github.com/michaelpento.lv/cyclearb/utils/metrics"
	"go.uber.org/zap"
)

// Reporter receives the result of every completed pass. The handoff is one
// way: reporters must not modify the result.
type Reporter interface {
	Name() string
	Report(ctx context.Context, result types.PassResult) error
}

// LogReporter writes each opportunity as a structured log entry.
type LogReporter struct {
	logger *zap.Logger
}

func NewLogReporter(logger *zap.Logger) *LogReporter {
	return &LogReporter{logger: logger}
}

func (r *LogReporter) Name() string { return "log" }

func (r *LogReporter) Report(ctx context.Context, result types.PassResult) error {
	for i, opp := range result.Opportunities {
		r.logger.Info("Arbitrage opportunity",
			zap.String("pass_id", result.ID),
			zap.Int("rank", i+1),
			zap.String("route", opp.Route()),
			zap.Strings("exchanges", opp.Exchanges),
			zap.Float64("profit", opp.Profit),
			zap.Float64("profit_pct", opp.ProfitPct),
			zap.Float64("profit_bps", opp.ProfitBps),
			zap.Float64("estimated_cost", opp.EstimatedCost))
	}
	return nil
}

// Fanout delivers every result to all reporters. A failing reporter does not
// stop delivery to the others.
type Fanout struct {
	reporters []Reporter
	logger    *zap.Logger
	metrics   *metrics.ReportMetrics
}

// NewFanout creates a fanout. m may be nil.
func NewFanout(logger *zap.Logger, m *metrics.ReportMetrics, reporters ...Reporter) *Fanout {
	return &Fanout{reporters: reporters, logger: logger, metrics: m}
}

func (f *Fanout) Name() string { return "fanout" }

func (f *Fanout) Report(ctx context.Context, result types.PassResult) error {
	var errs []error
	for _, r := range f.reporters {
		if err := r.Report(ctx, result); err != nil {
			f.logger.Error("Reporter failed",
				zap.String("reporter", r.Name()),
				zap.String("pass_id", result.ID),
				zap.Error(err))
			if f.metrics != nil {
				f.metrics.Errors.WithLabelValues(r.Name()).Inc()
			}
			errs = append(errs, fmt.Errorf("%s: %w", r.Name(), err))
			continue
		}
		if f.metrics != nil {
			f.metrics.Reported.WithLabelValues(r.Name()).Add(float64(len(result.Opportunities)))
		}
	}
	return errors.Join(errs...)
}

// Suppressor drops opportunities whose cycle was already reported recently so
// a persisting loop is reported once rather than on every pass. Recency is a
// fixed-size LRU window of cycle identities.
type Suppressor struct {
	next    Reporter
	seen    *lru.Cache
	metrics *metrics.ReportMetrics
	mu      sync.Mutex
}

// NewSuppressor wraps next. m may be nil.
func NewSuppressor(next Reporter, window int, m *metrics.ReportMetrics) (*Suppressor, error) {
	seen, err := lru.New(window)
	if err != nil {
		return nil, fmt.Errorf("failed to create suppression window: %w", err)
	}
	return &Suppressor{next: next, seen: seen, metrics: m}, nil
}

func (s *Suppressor) Name() string { return s.next.Name() }

// Report forwards result with recently seen opportunities removed. The
// original result is not modified.
func (s *Suppressor) Report(ctx context.Context, result types.PassResult) error {
	s.mu.Lock()
	fresh := make([]types.Opportunity, 0, len(result.Opportunities))
	for _, opp := range result.Opportunities {
		if s.seen.Contains(opp.Key) {
			s.seen.Get(opp.Key)
			continue
		}
		s.seen.Add(opp.Key, struct{}{})
		fresh = append(fresh, opp)
	}
	s.mu.Unlock()

	if n := len(result.Opportunities) - len(fresh); n > 0 && s.metrics != nil {
		s.metrics.Suppressed.Add(float64(n))
	}

	out := result
	out.Opportunities = fresh
	return s.next.Report(ctx, out)
}
