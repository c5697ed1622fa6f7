package dex

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/michaelpento.lv/cyclearb/types"
	"github.com/michaelpento.lv/cyclearb/utils/metrics"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// FeeResolver decides the fee a quote is charged once it becomes an edge.
// graph.Policy is the resolver used in production.
type FeeResolver interface {
	FeeFor(pair types.PairKey, q types.Quote) float64
}

// quotedFee charges a quote its own fee and nothing when it carries none.
type quotedFee struct{}

func (quotedFee) FeeFor(_ types.PairKey, q types.Quote) float64 {
	if q.HasFee {
		return q.Fee
	}
	return 0
}

// MultiSource fans a refresh out to several sources and merges their quotes.
// When two sources quote the same ordered pair the one with the better rate
// after the fee the graph will charge wins; equal rates keep the earlier
// source.
type MultiSource struct {
	sources []RateSource
	fees    FeeResolver
	logger  *zap.Logger
	metrics *metrics.SourceMetrics
}

// NewMultiSource combines sources in priority order. m may be nil, and a nil
// fees charges every quote only its own fee.
func NewMultiSource(logger *zap.Logger, m *metrics.SourceMetrics, fees FeeResolver, sources ...RateSource) *MultiSource {
	if fees == nil {
		fees = quotedFee{}
	}
	return &MultiSource{
		sources: sources,
		fees:    fees,
		logger:  logger,
		metrics: m,
	}
}

func (s *MultiSource) Name() string {
	names := make([]string, len(s.sources))
	for i, src := range s.sources {
		names[i] = src.Name()
	}
	return strings.Join(names, "+")
}

// FetchQuotes queries all sources concurrently. If any source fails the
// whole fetch fails, so a partial market is never installed.
func (s *MultiSource) FetchQuotes(ctx context.Context) (types.QuoteSet, error) {
	sets := make([]types.QuoteSet, len(s.sources))

	g, gctx := errgroup.WithContext(ctx)
	for i, src := range s.sources {
		i, src := i, src
		g.Go(func() error {
			start := time.Now()
			quotes, err := src.FetchQuotes(gctx)
			s.observe(src.Name(), start, len(quotes), err)
			if err != nil {
				return fmt.Errorf("%s: %w", src.Name(), err)
			}
			sets[i] = quotes
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	merged := make(types.QuoteSet)
	for _, set := range sets {
		for pair, q := range set {
			if cur, ok := merged[pair]; ok && !(s.netRate(pair, q) > s.netRate(pair, cur)) {
				continue
			}
			merged[pair] = q
		}
	}
	return merged, nil
}

func (s *MultiSource) observe(name string, start time.Time, n int, err error) {
	if s.metrics != nil {
		s.metrics.Fetches.WithLabelValues(name).Inc()
		s.metrics.FetchLatency.WithLabelValues(name).Observe(time.Since(start).Seconds())
		if err != nil {
			s.metrics.FetchErrors.WithLabelValues(name).Inc()
		} else {
			s.metrics.QuotesFetched.WithLabelValues(name).Set(float64(n))
		}
	}
	if err != nil && s.logger != nil {
		s.logger.Warn("Quote fetch failed", zap.String("source", name), zap.Error(err))
	}
}

func (s *MultiSource) netRate(pair types.PairKey, q types.Quote) float64 {
	return q.EffectiveRate(s.fees.FeeFor(pair, q))
}
