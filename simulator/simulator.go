package simulator

import (
	"errors"
	"fmt"
	"math"

	"github.com/michaelpento.lv/cyclearb/gas"
	"github.com/michaelpento.lv/cyclearb/graph"
	"github.com/michaelpento.lv/cyclearb/types"
)

var (
	// ErrStalePath is returned when a hop of the cycle has no edge in the
	// snapshot being replayed against.
	ErrStalePath      = errors.New("stale path")
	ErrInvalidCycle   = errors.New("invalid cycle")
	ErrInvalidCapital = errors.New("capital must be a positive finite amount")
)

// Simulator replays cycles hop by hop to quantify them.
type Simulator struct {
	estimator *gas.Estimator
}

// NewSimulator creates a new cycle simulator
func NewSimulator(estimator *gas.Estimator) *Simulator {
	return &Simulator{
		estimator: estimator,
	}
}

// Evaluate replays cycle on snap starting with capital units of its first
// token. Profit and percentage are relative to capital only; trade size,
// slippage and partial fills are not modelled.
func (s *Simulator) Evaluate(snap *graph.Snapshot, cycle graph.Cycle, capital float64) (types.Opportunity, error) {
	if !(capital > 0) || math.IsInf(capital, 0) {
		return types.Opportunity{}, ErrInvalidCapital
	}
	if !cycle.Closed() {
		return types.Opportunity{}, fmt.Errorf("%w: %v", ErrInvalidCycle, []int(cycle))
	}

	hops := cycle.Hops()
	exchanges := make([]string, hops)
	amount := capital
	for i := 0; i < hops; i++ {
		e, ok := snap.Edge(cycle[i], cycle[i+1])
		if !ok {
			return types.Opportunity{}, fmt.Errorf("%w: no edge %s -> %s in snapshot %d",
				ErrStalePath, snap.Token(cycle[i]).ID, snap.Token(cycle[i+1]).ID, snap.Version)
		}
		amount *= e.EffectiveRate()
		exchanges[i] = e.Exchange
	}

	path := cycle.IDs(snap)
	symbols := make([]string, len(cycle))
	for i, t := range cycle {
		symbols[i] = snap.Token(t).String()
	}

	profit := amount - capital
	return types.Opportunity{
		Path:          path,
		Symbols:       symbols,
		Exchanges:     exchanges,
		StartAmount:   capital,
		FinalAmount:   amount,
		Profit:        profit,
		ProfitPct:     profit / capital * 100,
		ProfitBps:     profit * 10000 / capital,
		EstimatedCost: s.estimator.EstimateArbitrageCost(hops),
		Key:           graph.PathKey(path),
	}, nil
}
