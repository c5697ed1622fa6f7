package arbitrage

import (
	"context"
	"errors"
	"fmt"
	"runtime"
	"time"

	"github.com/google/uuid"
	"github.com/michaelpento.lv/cyclearb/config"
	"github.com/michaelpento.lv/cyclearb/dex"
	"github.com/michaelpento.lv/cyclearb/gas"
	"github.com/michaelpento.lv/cyclearb/graph"
	"github.com/michaelpento.lv/cyclearb/simulator"
	"github.com/michaelpento.lv/cyclearb/types"
	"github.com/michaelpento.lv/cyclearb/utils/metrics"
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

var (
	// ErrPassAborted is returned when a pass is cancelled between searches.
	// No opportunities are returned for an aborted pass.
	ErrPassAborted = errors.New("detection pass aborted")
	// ErrRefreshFailed is returned when the rate source could not deliver a
	// complete quote set. The previous snapshot stays active.
	ErrRefreshFailed = errors.New("rate refresh failed")
)

// Engine orchestrates detection passes over a token graph fed by a rate
// source.
type Engine struct {
	cfg       *config.Config
	logger    *zap.Logger
	source    dex.RateSource
	graph     *graph.TokenGraph
	detector  *Detector
	simulator *simulator.Simulator
	ranker    *Ranker
	policy    graph.Policy
	tracer    Tracer
	metrics   *metrics.DetectionMetrics
	now       func() time.Time
	workers   int
}

type Option func(*Engine)

// WithTracer routes trace events to t instead of debug logging.
func WithTracer(t Tracer) Option {
	return func(e *Engine) { e.tracer = t }
}

// WithRegisterer registers the engine's metrics with reg.
func WithRegisterer(reg prometheus.Registerer) Option {
	return func(e *Engine) {
		e.metrics = metrics.NewDetectionMetrics(reg, e.cfg.Metrics.Namespace)
	}
}

// WithClock overrides the clock used for quote freshness and pass timing.
func WithClock(now func() time.Time) Option {
	return func(e *Engine) { e.now = now }
}

// NewEngine wires a detection engine from a validated configuration.
func NewEngine(cfg *config.Config, source dex.RateSource, logger *zap.Logger, opts ...Option) (*Engine, error) {
	if err := cfg.ValidateConfig(); err != nil {
		return nil, err
	}

	g, err := graph.New(cfg.Tokens)
	if err != nil {
		return nil, fmt.Errorf("failed to configure token graph: %w", err)
	}
	detector, err := NewDetector(DetectorConfigFrom(cfg))
	if err != nil {
		return nil, fmt.Errorf("failed to create detector: %w", err)
	}
	ranker, err := NewRanker(RankerConfigFrom(cfg))
	if err != nil {
		return nil, fmt.Errorf("failed to create ranker: %w", err)
	}
	estimator, err := gas.NewEstimator(cfg.Cost)
	if err != nil {
		return nil, fmt.Errorf("failed to create cost estimator: %w", err)
	}

	e := &Engine{
		cfg:       cfg,
		logger:    logger,
		source:    source,
		graph:     g,
		detector:  detector,
		simulator: simulator.NewSimulator(estimator),
		ranker:    ranker,
		now:       time.Now,
		workers:   cfg.Detection.Workers,
	}
	for _, opt := range opts {
		opt(e)
	}
	if e.tracer == nil {
		e.tracer = NewZapTracer(logger)
	}
	if e.metrics == nil {
		e.metrics = metrics.NewDetectionMetrics(prometheus.NewRegistry(), cfg.Metrics.Namespace)
	}
	if e.workers <= 0 {
		e.workers = runtime.GOMAXPROCS(0)
	}

	e.policy = graph.Policy{
		MinRate:      cfg.Rates.MinRate,
		MaxRate:      cfg.Rates.MaxRate,
		MaxQuoteAge:  cfg.Rates.MaxQuoteAge,
		DefaultFee:   cfg.Fees.Default,
		FeeOverrides: cfg.Fees.OverrideMap(),
		Now:          e.now,
	}

	return e, nil
}

// Metrics exposes the engine's detection metrics.
func (e *Engine) Metrics() *metrics.DetectionMetrics { return e.metrics }

// Graph exposes the engine's token graph.
func (e *Engine) Graph() *graph.TokenGraph { return e.graph }

// Refresh fetches a complete quote set from the source and installs it as the
// new snapshot. On error nothing is installed.
func (e *Engine) Refresh(ctx context.Context) (graph.ReplaceStats, error) {
	quotes, err := e.source.FetchQuotes(ctx)
	if err != nil {
		return graph.ReplaceStats{}, fmt.Errorf("%w: %s: %w", ErrRefreshFailed, e.source.Name(), err)
	}

	stats, err := e.graph.ReplaceEdges(quotes, e.policy)
	if err != nil {
		return graph.ReplaceStats{}, fmt.Errorf("%w: %w", ErrRefreshFailed, err)
	}

	snap := e.graph.Snapshot()
	for _, edge := range snap.Edges() {
		e.tracer.Trace(Event{
			Kind:     EventEdgeAdmitted,
			Pair:     types.PairKey{From: snap.Token(edge.From).ID, To: snap.Token(edge.To).ID},
			Exchange: edge.Exchange,
		})
	}
	for _, rej := range stats.Rejected {
		e.tracer.Trace(Event{
			Kind:     EventEdgeRejected,
			Pair:     rej.Pair,
			Exchange: rej.Quote.Exchange,
			Reason:   string(rej.Reason),
		})
		e.metrics.RejectedQuotes.WithLabelValues(string(rej.Reason)).Inc()
	}
	e.metrics.Edges.Set(float64(stats.Admitted))
	e.metrics.SnapshotVersion.Set(float64(stats.Version))

	e.logger.Debug("Snapshot replaced",
		zap.String("source", e.source.Name()),
		zap.Uint64("version", stats.Version),
		zap.Int("admitted", stats.Admitted),
		zap.Int("rejected", len(stats.Rejected)))

	return stats, nil
}

// Detect runs one pass over the current snapshot without refreshing it.
// Searching the same snapshot twice yields the same opportunities in the same
// order.
func (e *Engine) Detect(ctx context.Context) (types.PassResult, error) {
	started := e.now()
	passID := uuid.NewString()
	snap := e.graph.Snapshot()
	n := snap.Len()

	results := make([]SearchResult, n)
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(e.workers)
	for src := 0; src < n; src++ {
		if gctx.Err() != nil {
			break
		}
		src := src
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			t := time.Now()
			results[src] = e.detector.Search(snap, src)
			e.metrics.SearchDuration.Observe(time.Since(t).Seconds())
			return nil
		})
	}
	err := g.Wait()
	if err == nil {
		err = ctx.Err()
	}
	if err != nil {
		e.metrics.PassFailures.WithLabelValues("aborted").Inc()
		e.tracer.Trace(Event{Kind: EventPassAborted, PassID: passID, Reason: err.Error()})
		return types.PassResult{}, fmt.Errorf("%w: %w", ErrPassAborted, err)
	}

	stats := types.PassStats{Sources: n, Edges: snap.EdgeCount()}
	var candidates []types.Opportunity
	for _, res := range results {
		for _, d := range res.Discards {
			stats.CyclesDiscarded++
			e.discard(passID, snap, d.Path, d.Reason)
		}
		for _, cycle := range res.Cycles {
			stats.CyclesFound++
			e.metrics.CyclesFound.Inc()
			e.tracer.Trace(Event{Kind: EventCycleFound, PassID: passID, Path: cycle.IDs(snap)})

			opp, err := e.simulator.Evaluate(snap, cycle, e.cfg.Detection.Capital)
			if err != nil {
				stats.CyclesDiscarded++
				reason := types.DiscardBrokenChain
				if errors.Is(err, simulator.ErrStalePath) {
					reason = types.DiscardStalePath
				}
				e.discard(passID, snap, cycle, reason)
				continue
			}
			stats.Evaluated++
			candidates = append(candidates, opp)
		}
	}

	ranked, filtered := e.ranker.RankDetailed(candidates)
	stats.Filtered = len(filtered)
	for _, f := range filtered {
		e.metrics.Filtered.WithLabelValues(string(f.Reason)).Inc()
		e.tracer.Trace(Event{
			Kind:      EventOpportunityFiltered,
			PassID:    passID,
			Path:      f.Opportunity.Path,
			Reason:    string(f.Reason),
			ProfitPct: f.Opportunity.ProfitPct,
		})
	}
	for _, opp := range ranked {
		e.tracer.Trace(Event{
			Kind:      EventOpportunityAccepted,
			PassID:    passID,
			Path:      opp.Path,
			ProfitPct: opp.ProfitPct,
		})
	}

	result := types.PassResult{
		ID:              passID,
		SnapshotVersion: snap.Version,
		StartedAt:       started,
		Duration:        e.now().Sub(started),
		Opportunities:   ranked,
		Stats:           stats,
	}

	e.metrics.Passes.Inc()
	e.metrics.PassDuration.Observe(result.Duration.Seconds())
	e.metrics.Opportunities.Set(float64(len(ranked)))
	if len(ranked) > 0 {
		e.metrics.BestProfitPct.Set(ranked[0].ProfitPct)
	} else {
		e.metrics.BestProfitPct.Set(0)
	}
	e.tracer.Trace(Event{Kind: EventPassCompleted, PassID: passID})

	return result, nil
}

// RunPass refreshes the graph and then detects on the new snapshot. A refresh
// failure fails the pass; an empty market is an empty result, not an error.
func (e *Engine) RunPass(ctx context.Context) (types.PassResult, error) {
	if err := ctx.Err(); err != nil {
		return types.PassResult{}, fmt.Errorf("%w: %w", ErrPassAborted, err)
	}

	if _, err := e.Refresh(ctx); err != nil {
		e.metrics.PassFailures.WithLabelValues("refresh").Inc()
		return types.PassResult{}, err
	}

	result, err := e.Detect(ctx)
	if err != nil {
		return types.PassResult{}, err
	}

	fields := []zap.Field{
		zap.String("pass_id", result.ID),
		zap.Uint64("snapshot", result.SnapshotVersion),
		zap.Int("opportunities", len(result.Opportunities)),
		zap.Int("cycles", result.Stats.CyclesFound),
		zap.Duration("duration", result.Duration),
	}
	if !result.Empty() {
		fields = append(fields,
			zap.String("best", result.Opportunities[0].Route()),
			zap.Float64("best_profit_pct", result.Opportunities[0].ProfitPct))
	}
	e.logger.Info("Detection pass completed", fields...)

	return result, nil
}

func (e *Engine) discard(passID string, snap *graph.Snapshot, path []int, reason types.DiscardReason) {
	e.metrics.CyclesDiscarded.WithLabelValues(string(reason)).Inc()
	e.tracer.Trace(Event{
		Kind:   EventCycleDiscarded,
		PassID: passID,
		Path:   graph.Cycle(path).IDs(snap),
		Reason: string(reason),
	})
}
