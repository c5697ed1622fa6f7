package arbitrage

import (
	"testing"

	"github.com/michaelpento.lv/cyclearb/graph"
	"github.com/michaelpento.lv/cyclearb/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func opportunity(pct float64, path ...string) types.Opportunity {
	capital := 1000.0
	profit := capital * pct / 100
	return types.Opportunity{
		Path:          path,
		StartAmount:   capital,
		FinalAmount:   capital + profit,
		Profit:        profit,
		ProfitPct:     pct,
		EstimatedCost: float64(len(path) - 1),
		Key:           graph.PathKey(path),
	}
}

func defaultRanker(t *testing.T) *Ranker {
	r, err := NewRanker(RankerConfig{MinProfitPct: 0.001, MaxProfitPct: 50})
	require.NoError(t, err)
	return r
}

func TestNewRankerValidatesBand(t *testing.T) {
	_, err := NewRanker(RankerConfig{MinProfitPct: 5, MaxProfitPct: 1})
	assert.Error(t, err)
	_, err = NewRanker(RankerConfig{MinProfitPct: -1, MaxProfitPct: 1})
	assert.Error(t, err)
}

func TestRankSortOrder(t *testing.T) {
	r := defaultRanker(t)

	ranked := r.Rank([]types.Opportunity{
		opportunity(5, "A", "B", "C", "A"),
		opportunity(1, "A", "C", "D", "A"),
		opportunity(3, "B", "D", "E", "B"),
	})

	require.Len(t, ranked, 3)
	assert.Equal(t, 5.0, ranked[0].ProfitPct)
	assert.Equal(t, 3.0, ranked[1].ProfitPct)
	assert.Equal(t, 1.0, ranked[2].ProfitPct)
}

func TestRankTieBreaks(t *testing.T) {
	r := defaultRanker(t)

	long := opportunity(2, "A", "B", "C", "D", "A")
	short := opportunity(2, "A", "C", "E", "A")
	cheap := opportunity(2, "B", "D", "E", "B")
	cheap.EstimatedCost = 0.5

	ranked := r.Rank([]types.Opportunity{long, short, cheap})
	require.Len(t, ranked, 3)
	assert.Equal(t, cheap.Path, ranked[0].Path)
	assert.Equal(t, short.Path, ranked[1].Path)
	assert.Equal(t, long.Path, ranked[2].Path)
}

func TestRankAcceptanceBand(t *testing.T) {
	r := defaultRanker(t)

	noise := opportunity(0.0009, "A", "B", "C", "A")
	edge := opportunity(0.001, "A", "C", "D", "A")
	implausible := opportunity(120, "B", "C", "D", "B")
	loss := opportunity(-3, "C", "D", "E", "C")

	ranked, filtered := r.RankDetailed([]types.Opportunity{noise, edge, implausible, loss})
	require.Len(t, ranked, 1)
	assert.Equal(t, edge.Path, ranked[0].Path)

	reasons := map[string]types.FilterReason{}
	for _, f := range filtered {
		reasons[f.Opportunity.Path[0]+f.Opportunity.Path[1]] = f.Reason
	}
	assert.Equal(t, types.FilterBelowMinimum, reasons["AB"])
	assert.Equal(t, types.FilterAboveMaximum, reasons["BC"])
	assert.Equal(t, types.FilterBelowMinimum, reasons["CD"])
}

func TestRankDeduplicatesRotations(t *testing.T) {
	r := defaultRanker(t)

	first := opportunity(20, "A", "B", "C", "A")
	rotated := opportunity(20.0000001, "B", "C", "A", "B")
	reversed := opportunity(4, "A", "C", "B", "A")

	ranked, filtered := r.RankDetailed([]types.Opportunity{first, rotated, reversed})
	require.Len(t, ranked, 2)
	assert.Equal(t, first.Path, ranked[0].Path)
	assert.Equal(t, reversed.Path, ranked[1].Path)

	require.Len(t, filtered, 1)
	assert.Equal(t, types.FilterDuplicate, filtered[0].Reason)
	assert.Equal(t, rotated.Path, filtered[0].Opportunity.Path)
}

func TestRankComputesMissingKey(t *testing.T) {
	r := defaultRanker(t)

	a := opportunity(2, "A", "B", "C", "A")
	b := opportunity(2, "C", "A", "B", "C")
	a.Key, b.Key = 0, 0

	assert.Len(t, r.Rank([]types.Opportunity{a, b}), 1)
}

func TestRankEmpty(t *testing.T) {
	ranked := defaultRanker(t).Rank(nil)
	assert.NotNil(t, ranked)
	assert.Empty(t, ranked)
}
