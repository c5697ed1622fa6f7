package graph

import (
	"math"
	"sync"
	"testing"
	"time"

	"github.com/michaelpento.lv/cyclearb/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var testTokens = []types.Token{
	{ID: "A", Symbol: "AAA", Decimals: 18},
	{ID: "B", Symbol: "BBB", Decimals: 6},
	{ID: "C", Symbol: "CCC", Decimals: 8},
}

func pair(from, to string) types.PairKey {
	return types.PairKey{From: from, To: to}
}

func permissive() Policy {
	return Policy{MinRate: 1e-9, MaxRate: 1e9}
}

func TestNew(t *testing.T) {
	_, err := New(nil)
	assert.ErrorIs(t, err, ErrEmptyUniverse)

	_, err = New([]types.Token{{ID: "A"}, {ID: "A"}})
	assert.ErrorIs(t, err, ErrDuplicateToken)

	g, err := New(testTokens)
	require.NoError(t, err)

	snap := g.Snapshot()
	assert.Equal(t, 3, snap.Len())
	assert.Equal(t, 0, snap.EdgeCount())
	assert.Equal(t, uint64(0), snap.Version)

	idx, ok := snap.Index("C")
	assert.True(t, ok)
	assert.Equal(t, 2, idx)
}

func TestReplaceEdges(t *testing.T) {
	g, err := New(testTokens)
	require.NoError(t, err)

	stats, err := g.ReplaceEdges(types.QuoteSet{
		pair("A", "B"): {Rate: 2, Exchange: "uniswap"},
		pair("B", "C"): {Rate: 2, Exchange: "sushiswap"},
		pair("C", "A"): {Rate: 0.3, Exchange: "uniswap"},
	}, permissive())
	require.NoError(t, err)
	assert.Equal(t, uint64(1), stats.Version)
	assert.Equal(t, 3, stats.Admitted)
	assert.Empty(t, stats.Rejected)

	out, err := g.EdgesFrom("B")
	require.NoError(t, err)
	require.Len(t, out, 1)
	assert.Equal(t, 2, out[0].To)
	assert.Equal(t, "sushiswap", out[0].Exchange)
	assert.InDelta(t, -math.Log(2), out[0].Weight, 1e-15)

	_, err = g.EdgesFrom("Z")
	assert.ErrorIs(t, err, ErrUnknownToken)

	e, ok := g.Snapshot().Edge(2, 0)
	assert.True(t, ok)
	assert.Equal(t, 0.3, e.Rate)
	_, ok = g.Snapshot().Edge(0, 2)
	assert.False(t, ok)
}

func TestReplaceEdgesIsWholesale(t *testing.T) {
	g, err := New(testTokens)
	require.NoError(t, err)

	_, err = g.ReplaceEdges(types.QuoteSet{
		pair("A", "B"): {Rate: 2},
		pair("B", "C"): {Rate: 2},
	}, permissive())
	require.NoError(t, err)
	before := g.Snapshot()

	_, err = g.ReplaceEdges(types.QuoteSet{
		pair("C", "A"): {Rate: 0.3},
	}, permissive())
	require.NoError(t, err)
	after := g.Snapshot()

	// the old snapshot held by a reader is untouched
	assert.Equal(t, 2, before.EdgeCount())
	assert.Equal(t, 1, after.EdgeCount())
	assert.Empty(t, after.EdgesFrom(0))
	assert.Equal(t, before.Version+1, after.Version)
}

func TestReplaceEdgesKeepsPreviousOnInvalidPolicy(t *testing.T) {
	g, err := New(testTokens)
	require.NoError(t, err)

	_, err = g.ReplaceEdges(types.QuoteSet{pair("A", "B"): {Rate: 2}}, permissive())
	require.NoError(t, err)
	before := g.Snapshot()

	bad := permissive()
	bad.DefaultFee = 1.5
	_, err = g.ReplaceEdges(types.QuoteSet{pair("B", "C"): {Rate: 2}}, bad)
	assert.ErrorIs(t, err, ErrInvalidPolicy)
	assert.Same(t, before, g.Snapshot())
}

func TestAdmission(t *testing.T) {
	now := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	policy := Policy{
		MinRate:     1e-6,
		MaxRate:     1e6,
		MaxQuoteAge: time.Minute,
		DefaultFee:  0.003,
		Now:         func() time.Time { return now },
	}
	fresh := now.Add(-time.Second)

	tests := []struct {
		name   string
		pair   types.PairKey
		quote  types.Quote
		reason types.RejectReason
	}{
		{"unknown token", pair("A", "Z"), types.Quote{Rate: 1, Timestamp: fresh}, types.RejectUnknownToken},
		{"self loop", pair("A", "A"), types.Quote{Rate: 1, Timestamp: fresh}, types.RejectSelfLoop},
		{"zero rate", pair("A", "B"), types.Quote{Rate: 0, Timestamp: fresh}, types.RejectNonPositive},
		{"negative rate", pair("A", "B"), types.Quote{Rate: -1, Timestamp: fresh}, types.RejectNonPositive},
		{"nan rate", pair("A", "B"), types.Quote{Rate: math.NaN(), Timestamp: fresh}, types.RejectNonFinite},
		{"infinite rate", pair("A", "B"), types.Quote{Rate: math.Inf(1), Timestamp: fresh}, types.RejectNonFinite},
		{"full fee", pair("A", "B"), types.Quote{Rate: 1, Fee: 1, HasFee: true, Timestamp: fresh}, types.RejectInvalidFee},
		{"negative fee", pair("A", "B"), types.Quote{Rate: 1, Fee: -0.1, HasFee: true, Timestamp: fresh}, types.RejectInvalidFee},
		{"stale", pair("A", "B"), types.Quote{Rate: 1, Timestamp: now.Add(-2 * time.Minute)}, types.RejectStale},
		{"missing timestamp", pair("A", "B"), types.Quote{Rate: 1}, types.RejectStale},
		{"rate too large", pair("A", "B"), types.Quote{Rate: 1e7, Timestamp: fresh}, types.RejectOutOfRange},
		{"rate too small", pair("A", "B"), types.Quote{Rate: 1e-7, Timestamp: fresh}, types.RejectOutOfRange},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			g, err := New(testTokens)
			require.NoError(t, err)

			stats, err := g.ReplaceEdges(types.QuoteSet{tt.pair: tt.quote}, policy)
			require.NoError(t, err)
			assert.Equal(t, 0, stats.Admitted)
			require.Len(t, stats.Rejected, 1)
			assert.Equal(t, tt.reason, stats.Rejected[0].Reason)
			assert.Equal(t, 0, g.Snapshot().EdgeCount())
		})
	}
}

func TestFeeResolution(t *testing.T) {
	policy := Policy{
		DefaultFee:   0.003,
		FeeOverrides: map[types.PairKey]float64{pair("A", "B"): 0.01},
	}

	assert.Equal(t, 0.01, policy.FeeFor(pair("A", "B"), types.Quote{Fee: 0.05, HasFee: true}))
	assert.Equal(t, 0.05, policy.FeeFor(pair("B", "A"), types.Quote{Fee: 0.05, HasFee: true}))
	assert.Equal(t, 0.003, policy.FeeFor(pair("B", "A"), types.Quote{}))
	// an explicit zero fee is honoured
	assert.Equal(t, 0.0, policy.FeeFor(pair("B", "C"), types.Quote{HasFee: true}))

	g, err := New(testTokens)
	require.NoError(t, err)
	_, err = g.ReplaceEdges(types.QuoteSet{pair("A", "B"): {Rate: 2}}, policy)
	require.NoError(t, err)

	e, ok := g.Snapshot().Edge(0, 1)
	require.True(t, ok)
	assert.Equal(t, 0.01, e.Fee)
	assert.InDelta(t, 1.98, e.EffectiveRate(), 1e-12)
}

func TestConcurrentReadersSeeCompleteSnapshots(t *testing.T) {
	g, err := New(testTokens)
	require.NoError(t, err)

	full := types.QuoteSet{
		pair("A", "B"): {Rate: 2},
		pair("B", "C"): {Rate: 2},
		pair("C", "A"): {Rate: 0.3},
	}

	var wg sync.WaitGroup
	stop := make(chan struct{})
	for i := 0; i < 4; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for {
				select {
				case <-stop:
					return
				default:
				}
				snap := g.Snapshot()
				n := snap.EdgeCount()
				assert.True(t, n == 0 || n == 3, "torn snapshot with %d edges", n)
			}
		}()
	}

	for i := 0; i < 200; i++ {
		_, err := g.ReplaceEdges(full, permissive())
		require.NoError(t, err)
	}
	close(stop)
	wg.Wait()

	assert.Equal(t, uint64(200), g.Snapshot().Version)
}

func TestPathKey(t *testing.T) {
	abc := PathKey([]string{"A", "B", "C", "A"})
	assert.Equal(t, abc, PathKey([]string{"B", "C", "A", "B"}))
	assert.Equal(t, abc, PathKey([]string{"C", "A", "B", "C"}))
	assert.Equal(t, abc, PathKey([]string{"A", "B", "C"}))
	assert.NotEqual(t, abc, PathKey([]string{"A", "C", "B", "A"}))
	assert.Equal(t, uint64(0), PathKey(nil))
}

func TestCycle(t *testing.T) {
	assert.True(t, Cycle{0, 1, 2, 0}.Closed())
	assert.Equal(t, 3, Cycle{0, 1, 2, 0}.Hops())
	assert.False(t, Cycle{0, 1, 2}.Closed())
	assert.False(t, Cycle{0, 1, 1, 0}.Closed())
	assert.False(t, Cycle{0, 0}.Closed())
}
