package arbitrage

import (
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/michaelpento.lv/cyclearb/config"
	"github.com/michaelpento.lv/cyclearb/graph"
	"github.com/michaelpento.lv/cyclearb/types"
	ratemath "github.com/michaelpento.lv/cyclearb/utils/math"
)

// DetectorConfig parameterizes the cycle search.
type DetectorConfig struct {
	HopLimit       int
	MinCycleLength int
	MaxCycleLength int
	// Edges whose rate lies outside [MinRate, MaxRate] are skipped.
	MinRate float64
	MaxRate float64
	// Epsilon is the improvement a relaxation must exceed to count.
	Epsilon float64
	// ReconstructionCap bounds predecessor walks; 0 means token count + 1.
	ReconstructionCap int
	// EnumerationBudget bounds the edges expanded by the loop enumeration of
	// one search; 0 means DefaultEnumerationBudget.
	EnumerationBudget int
}

// DefaultEnumerationBudget is the per-search expansion bound used when none
// is configured.
const DefaultEnumerationBudget = 1 << 18

// DetectorConfigFrom extracts the detector settings from the engine config.
func DetectorConfigFrom(cfg *config.Config) DetectorConfig {
	return DetectorConfig{
		HopLimit:          cfg.Detection.HopLimit,
		MinCycleLength:    cfg.Detection.MinCycleLength,
		MaxCycleLength:    cfg.Detection.MaxCycleLength,
		MinRate:           cfg.Rates.MinRate,
		MaxRate:           cfg.Rates.MaxRate,
		Epsilon:           cfg.Detection.RelaxEpsilon,
		ReconstructionCap: cfg.Detection.ReconstructionCap,
		EnumerationBudget: cfg.Detection.EnumerationBudget,
	}
}

// Discard is a candidate cycle that was dropped during reconstruction.
type Discard struct {
	Vertex int
	Path   []int
	Reason types.DiscardReason
}

// SearchResult holds everything one single-source search produced.
type SearchResult struct {
	Source    int
	Rounds    int
	Converged bool
	// Cycles are closed walks rotated to start and end at Source.
	Cycles   []graph.Cycle
	Discards []Discard
}

// Detector finds negative-weight cycles through a source token with a
// hop-bounded Bellman-Ford relaxation. A Detector holds no mutable state and
// may be shared between goroutines.
type Detector struct {
	cfg DetectorConfig
}

// NewDetector creates a cycle detector
func NewDetector(cfg DetectorConfig) (*Detector, error) {
	if cfg.HopLimit <= 0 {
		return nil, fmt.Errorf("hop limit must be positive, got %d", cfg.HopLimit)
	}
	if cfg.MinCycleLength < 2 || cfg.MaxCycleLength < cfg.MinCycleLength {
		return nil, fmt.Errorf("invalid cycle length bounds [%d,%d]", cfg.MinCycleLength, cfg.MaxCycleLength)
	}
	if cfg.Epsilon < 0 || cfg.ReconstructionCap < 0 || cfg.EnumerationBudget < 0 {
		return nil, fmt.Errorf("epsilon, reconstruction cap and enumeration budget must not be negative")
	}
	return &Detector{cfg: cfg}, nil
}

// usable reports whether an edge may take part in relaxation.
func (d *Detector) usable(e graph.Edge) bool {
	if !ratemath.IsFinitePositive(e.EffectiveRate()) {
		return false
	}
	if e.Rate < d.cfg.MinRate || (d.cfg.MaxRate > 0 && e.Rate > d.cfg.MaxRate) {
		return false
	}
	return !math.IsNaN(e.Weight) && !math.IsInf(e.Weight, 0)
}

// Search runs the bounded relaxation from source and reconstructs every
// distinct negative cycle that passes through it. An empty snapshot yields an
// empty result.
//
// The predecessor graph holds one loop per vertex, so a strong loop (often a
// two-hop round trip) hides every other loop sharing its tokens. Whenever the
// relaxation has not converged, the simple loops through source are therefore
// also enumerated directly, up to min(HopLimit, MaxCycleLength) hops.
func (d *Detector) Search(snap *graph.Snapshot, source int) SearchResult {
	res := SearchResult{Source: source}
	n := snap.Len()
	if source < 0 || source >= n {
		return res
	}

	edges := make([]graph.Edge, 0, snap.EdgeCount())
	for _, e := range snap.Edges() {
		if d.usable(e) {
			edges = append(edges, e)
		}
	}
	if len(edges) == 0 {
		res.Converged = true
		return res
	}

	dist := make([]float64, n)
	pred := make([]int, n)
	for i := range dist {
		dist[i] = math.Inf(1)
		pred[i] = -1
	}
	dist[source] = 0

	for res.Rounds < d.cfg.HopLimit {
		res.Rounds++
		updated := false
		for _, e := range edges {
			if d.relaxable(dist, e) {
				dist[e.To] = dist[e.From] + e.Weight
				pred[e.To] = e.From
				updated = true
			}
		}
		if !updated {
			res.Converged = true
			return res
		}
	}

	limit := d.cfg.ReconstructionCap
	if limit == 0 {
		limit = n + 1
	}

	flagged := make(map[int]struct{})
	seen := make(map[string]struct{})
	for _, e := range edges {
		if !d.relaxable(dist, e) {
			continue
		}
		if _, done := flagged[e.To]; done {
			continue
		}
		flagged[e.To] = struct{}{}

		cycle, reason, ok := d.reconstruct(snap, pred, e.To, source, limit)
		if !ok {
			res.Discards = append(res.Discards, Discard{Vertex: e.To, Path: cycle, Reason: reason})
			continue
		}
		key := cycleKey(cycle)
		if _, dup := seen[key]; dup {
			continue
		}
		seen[key] = struct{}{}
		res.Cycles = append(res.Cycles, cycle)
	}

	for _, cycle := range d.enumerate(snap, source) {
		key := cycleKey(cycle)
		if _, dup := seen[key]; dup {
			continue
		}
		seen[key] = struct{}{}
		res.Cycles = append(res.Cycles, cycle)
	}

	return res
}

// enumerate walks simple paths from source depth first and returns every
// loop back to source with at least MinCycleLength hops whose weight is
// negative. Edges are expanded in snapshot order, so the result is
// deterministic. The walk stops once the enumeration budget is spent.
func (d *Detector) enumerate(snap *graph.Snapshot, source int) []graph.Cycle {
	maxHops := d.cfg.MaxCycleLength
	if d.cfg.HopLimit < maxHops {
		maxHops = d.cfg.HopLimit
	}
	if maxHops < d.cfg.MinCycleLength {
		return nil
	}
	budget := d.cfg.EnumerationBudget
	if budget == 0 {
		budget = DefaultEnumerationBudget
	}

	var cycles []graph.Cycle
	onPath := make([]bool, snap.Len())
	path := []int{source}
	onPath[source] = true

	var visit func(v int, weight float64)
	visit = func(v int, weight float64) {
		for _, e := range snap.EdgesFrom(v) {
			if budget <= 0 {
				return
			}
			budget--
			if !d.usable(e) {
				continue
			}
			w := weight + e.Weight
			if e.To == source {
				if len(path) >= d.cfg.MinCycleLength && w < -d.cfg.Epsilon {
					cycle := make(graph.Cycle, len(path)+1)
					copy(cycle, path)
					cycle[len(path)] = source
					cycles = append(cycles, cycle)
				}
				continue
			}
			if onPath[e.To] || len(path) >= maxHops {
				continue
			}
			onPath[e.To] = true
			path = append(path, e.To)
			visit(e.To, w)
			path = path[:len(path)-1]
			onPath[e.To] = false
		}
	}
	visit(source, 0)

	return cycles
}

func (d *Detector) relaxable(dist []float64, e graph.Edge) bool {
	if math.IsInf(dist[e.From], 1) {
		return false
	}
	return dist[e.From]+e.Weight < dist[e.To]-d.cfg.Epsilon
}

// reconstruct walks the predecessor chain backwards from v until a vertex
// repeats or limit steps were taken, then checks that the closed loop passes
// through source and is genuinely negative.
func (d *Detector) reconstruct(snap *graph.Snapshot, pred []int, v, source, limit int) (graph.Cycle, types.DiscardReason, bool) {
	pos := make(map[int]int)
	var walk []int
	cur := v
	for {
		if len(walk) >= limit {
			return walk, types.DiscardLengthCap, false
		}
		if cur < 0 {
			return walk, types.DiscardBrokenChain, false
		}
		if i, ok := pos[cur]; ok {
			walk = walk[i:]
			break
		}
		pos[cur] = len(walk)
		walk = append(walk, cur)
		cur = pred[cur]
	}

	// walk holds the loop in reverse edge order
	loop := make([]int, len(walk))
	for i, t := range walk {
		loop[len(walk)-1-i] = t
	}

	at := -1
	for i, t := range loop {
		if t == source {
			at = i
			break
		}
	}
	if at < 0 {
		return loop, types.DiscardMissingSource, false
	}

	cycle := make(graph.Cycle, 0, len(loop)+1)
	cycle = append(cycle, loop[at:]...)
	cycle = append(cycle, loop[:at]...)
	cycle = append(cycle, source)

	hops := cycle.Hops()
	if hops < d.cfg.MinCycleLength {
		return cycle, types.DiscardTooShort, false
	}
	if hops > d.cfg.MaxCycleLength {
		return cycle, types.DiscardTooLong, false
	}

	var weight float64
	for i := 0; i < hops; i++ {
		e, ok := snap.Edge(cycle[i], cycle[i+1])
		if !ok || !d.usable(e) {
			return cycle, types.DiscardBrokenChain, false
		}
		weight += e.Weight
	}
	if !(weight < -d.cfg.Epsilon) {
		return cycle, types.DiscardNotNegative, false
	}

	return cycle, "", true
}

func cycleKey(c graph.Cycle) string {
	var sb strings.Builder
	for i, t := range c {
		if i > 0 {
			sb.WriteByte(',')
		}
		sb.WriteString(strconv.Itoa(t))
	}
	return sb.String()
}
