package graph

import (
	"errors"
	"fmt"
	"math"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/michaelpento.lv/cyclearb/types"
	ratemath "github.com/michaelpento.lv/cyclearb/utils/math"
)

var (
	ErrEmptyUniverse  = errors.New("token universe is empty")
	ErrDuplicateToken = errors.New("duplicate token id")
	ErrUnknownToken   = errors.New("unknown token")
	ErrInvalidPolicy  = errors.New("invalid admission policy")
)

// Edge is an admitted directed quote between two tokens of the universe.
type Edge struct {
	From      int
	To        int
	Rate      float64
	Fee       float64
	Weight    float64
	Liquidity float64
	Timestamp time.Time
	Exchange  string
}

// EffectiveRate returns rate*(1-fee).
func (e Edge) EffectiveRate() float64 {
	return e.Rate * (1 - e.Fee)
}

// Snapshot is one complete, immutable edge set. Nothing in a published
// snapshot is modified afterwards; callers must treat returned slices as
// read-only.
type Snapshot struct {
	Version   uint64
	CreatedAt time.Time

	tokens []types.Token
	index  map[string]int
	edges  []Edge
	// out[i] is the sub-slice of edges leaving token i.
	out   [][]Edge
	pairs map[[2]int]int
}

// Len returns the number of tokens.
func (s *Snapshot) Len() int { return len(s.tokens) }

// EdgeCount returns the number of admitted edges.
func (s *Snapshot) EdgeCount() int { return len(s.edges) }

// Edges returns all edges ordered by source then destination index.
func (s *Snapshot) Edges() []Edge { return s.edges }

func (s *Snapshot) Token(i int) types.Token { return s.tokens[i] }

func (s *Snapshot) Tokens() []types.Token { return s.tokens }

// Index resolves a token identity to its position in the universe.
func (s *Snapshot) Index(id string) (int, bool) {
	i, ok := s.index[id]
	return i, ok
}

// EdgesFrom returns the outgoing edges of token i.
func (s *Snapshot) EdgesFrom(i int) []Edge {
	if i < 0 || i >= len(s.out) {
		return nil
	}
	return s.out[i]
}

// Edge looks up the edge for an ordered pair of token indices.
func (s *Snapshot) Edge(from, to int) (Edge, bool) {
	i, ok := s.pairs[[2]int{from, to}]
	if !ok {
		return Edge{}, false
	}
	return s.edges[i], true
}

// Policy decides which quotes are admitted into a snapshot and at what fee.
type Policy struct {
	MinRate      float64
	MaxRate      float64
	MaxQuoteAge  time.Duration
	DefaultFee   float64
	FeeOverrides map[types.PairKey]float64
	Now          func() time.Time
}

func (p Policy) Validate() error {
	if p.DefaultFee < 0 || p.DefaultFee >= 1 || math.IsNaN(p.DefaultFee) {
		return fmt.Errorf("%w: default fee %v outside [0,1)", ErrInvalidPolicy, p.DefaultFee)
	}
	if p.MinRate < 0 || (p.MaxRate > 0 && p.MaxRate <= p.MinRate) {
		return fmt.Errorf("%w: rate bounds [%v,%v]", ErrInvalidPolicy, p.MinRate, p.MaxRate)
	}
	if p.MaxQuoteAge < 0 {
		return fmt.Errorf("%w: negative quote age", ErrInvalidPolicy)
	}
	return nil
}

// FeeFor resolves the fee for a pair: per-pair override, then the quote's own
// fee, then the flat default.
func (p Policy) FeeFor(pair types.PairKey, q types.Quote) float64 {
	if fee, ok := p.FeeOverrides[pair]; ok {
		return fee
	}
	if q.HasFee {
		return q.Fee
	}
	return p.DefaultFee
}

func (p Policy) now() time.Time {
	if p.Now != nil {
		return p.Now()
	}
	return time.Now()
}

// Rejection records a quote that was refused admission.
type Rejection struct {
	Pair   types.PairKey
	Quote  types.Quote
	Reason types.RejectReason
}

// ReplaceStats summarizes one edge replacement.
type ReplaceStats struct {
	Version  uint64
	Admitted int
	Rejected []Rejection
}

// TokenGraph owns the fixed token universe and the current edge snapshot.
// Readers load the snapshot without locking; writers build a complete new
// snapshot and publish it with a single pointer swap.
type TokenGraph struct {
	tokens  []types.Token
	index   map[string]int
	current atomic.Pointer[Snapshot]
	mu      sync.Mutex
}

// New configures the token universe. The order of tokens is preserved and
// defines token indices.
func New(tokens []types.Token) (*TokenGraph, error) {
	if len(tokens) == 0 {
		return nil, ErrEmptyUniverse
	}
	g := &TokenGraph{
		tokens: make([]types.Token, len(tokens)),
		index:  make(map[string]int, len(tokens)),
	}
	copy(g.tokens, tokens)
	for i, t := range g.tokens {
		if _, dup := g.index[t.ID]; dup {
			return nil, fmt.Errorf("%w: %s", ErrDuplicateToken, t.ID)
		}
		g.index[t.ID] = i
	}

	g.current.Store(&Snapshot{
		tokens:    g.tokens,
		index:     g.index,
		out:       make([][]Edge, len(g.tokens)),
		pairs:     map[[2]int]int{},
		CreatedAt: time.Now(),
	})
	return g, nil
}

// Tokens returns the token universe in index order.
func (g *TokenGraph) Tokens() []types.Token { return g.tokens }

// Snapshot returns the currently published snapshot.
func (g *TokenGraph) Snapshot() *Snapshot { return g.current.Load() }

// EdgesFrom returns the outgoing edges of a token in the current snapshot.
func (g *TokenGraph) EdgesFrom(id string) ([]Edge, error) {
	i, ok := g.index[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownToken, id)
	}
	return g.Snapshot().EdgesFrom(i), nil
}

// ReplaceEdges builds a snapshot from quotes and publishes it. Quotes failing
// the policy are omitted and reported in the stats. If the policy itself is
// invalid nothing is published and the previous snapshot stays active.
func (g *TokenGraph) ReplaceEdges(quotes types.QuoteSet, policy Policy) (ReplaceStats, error) {
	if err := policy.Validate(); err != nil {
		return ReplaceStats{}, err
	}

	now := policy.now()
	edges := make([]Edge, 0, len(quotes))
	var rejected []Rejection

	for pair, q := range quotes {
		reason, ok := g.admit(pair, q, policy, now)
		if !ok {
			rejected = append(rejected, Rejection{Pair: pair, Quote: q, Reason: reason})
			continue
		}
		fee := policy.FeeFor(pair, q)
		edges = append(edges, Edge{
			From:      g.index[pair.From],
			To:        g.index[pair.To],
			Rate:      q.Rate,
			Fee:       fee,
			Weight:    ratemath.EdgeWeight(q.Rate, fee),
			Liquidity: q.Liquidity,
			Timestamp: q.Timestamp,
			Exchange:  q.Exchange,
		})
	}

	sort.Slice(edges, func(i, j int) bool {
		if edges[i].From != edges[j].From {
			return edges[i].From < edges[j].From
		}
		return edges[i].To < edges[j].To
	})
	sort.Slice(rejected, func(i, j int) bool {
		if rejected[i].Pair.From != rejected[j].Pair.From {
			return rejected[i].Pair.From < rejected[j].Pair.From
		}
		return rejected[i].Pair.To < rejected[j].Pair.To
	})

	snap := &Snapshot{
		tokens:    g.tokens,
		index:     g.index,
		edges:     edges,
		out:       make([][]Edge, len(g.tokens)),
		pairs:     make(map[[2]int]int, len(edges)),
		CreatedAt: now,
	}
	start := 0
	for i := range edges {
		snap.pairs[[2]int{edges[i].From, edges[i].To}] = i
		if i == len(edges)-1 || edges[i+1].From != edges[i].From {
			snap.out[edges[i].From] = edges[start : i+1 : i+1]
			start = i + 1
		}
	}

	g.mu.Lock()
	defer g.mu.Unlock()
	snap.Version = g.current.Load().Version + 1
	g.current.Store(snap)

	return ReplaceStats{Version: snap.Version, Admitted: len(edges), Rejected: rejected}, nil
}

func (g *TokenGraph) admit(pair types.PairKey, q types.Quote, policy Policy, now time.Time) (types.RejectReason, bool) {
	_, okFrom := g.index[pair.From]
	_, okTo := g.index[pair.To]
	if !okFrom || !okTo {
		return types.RejectUnknownToken, false
	}
	if pair.From == pair.To {
		return types.RejectSelfLoop, false
	}
	if math.IsNaN(q.Rate) || math.IsInf(q.Rate, 0) {
		return types.RejectNonFinite, false
	}
	if q.Rate <= 0 {
		return types.RejectNonPositive, false
	}

	fee := policy.FeeFor(pair, q)
	if math.IsNaN(fee) || fee < 0 || fee >= 1 {
		return types.RejectInvalidFee, false
	}
	if !ratemath.IsFinitePositive(q.EffectiveRate(fee)) {
		return types.RejectNonPositive, false
	}

	if policy.MaxQuoteAge > 0 && (q.Timestamp.IsZero() || now.Sub(q.Timestamp) > policy.MaxQuoteAge) {
		return types.RejectStale, false
	}
	if q.Rate < policy.MinRate || (policy.MaxRate > 0 && q.Rate > policy.MaxRate) {
		return types.RejectOutOfRange, false
	}
	return "", true
}
