package arbitrage

import (
	"fmt"
	"math"
	"sort"

	"github.com/michaelpento.lv/cyclearb/config"
	"github.com/michaelpento.lv/cyclearb/graph"
	"github.com/michaelpento.lv/cyclearb/types"
)

// RankerConfig is the acceptance band in percent.
type RankerConfig struct {
	MinProfitPct float64
	MaxProfitPct float64
}

func RankerConfigFrom(cfg *config.Config) RankerConfig {
	return RankerConfig{
		MinProfitPct: cfg.Acceptance.MinProfitPct,
		MaxProfitPct: cfg.Acceptance.MaxProfitPct,
	}
}

// Filtered is an opportunity the ranker dropped, with the reason.
type Filtered struct {
	Opportunity types.Opportunity
	Reason      types.FilterReason
}

// Ranker deduplicates, filters and orders opportunities.
type Ranker struct {
	cfg RankerConfig
}

func NewRanker(cfg RankerConfig) (*Ranker, error) {
	if cfg.MinProfitPct < 0 || !(cfg.MaxProfitPct > cfg.MinProfitPct) {
		return nil, fmt.Errorf("invalid acceptance band [%v%%,%v%%]", cfg.MinProfitPct, cfg.MaxProfitPct)
	}
	return &Ranker{cfg: cfg}, nil
}

// Rank returns the accepted opportunities, best first.
func (r *Ranker) Rank(opps []types.Opportunity) []types.Opportunity {
	ranked, _ := r.RankDetailed(opps)
	return ranked
}

// RankDetailed is Rank that also reports what was dropped and why. For
// opportunities sharing a path identity the first one in input order is kept.
// The result is ordered by percentage profit descending, then fewer hops,
// then lower estimated cost; remaining ties keep input order.
func (r *Ranker) RankDetailed(opps []types.Opportunity) ([]types.Opportunity, []Filtered) {
	ranked := make([]types.Opportunity, 0, len(opps))
	var filtered []Filtered

	seen := make(map[uint64]struct{}, len(opps))
	for _, opp := range opps {
		key := opp.Key
		if key == 0 {
			key = graph.PathKey(opp.Path)
		}
		if _, dup := seen[key]; dup {
			filtered = append(filtered, Filtered{Opportunity: opp, Reason: types.FilterDuplicate})
			continue
		}
		seen[key] = struct{}{}

		if reason, ok := r.accept(opp); !ok {
			filtered = append(filtered, Filtered{Opportunity: opp, Reason: reason})
			continue
		}
		ranked = append(ranked, opp)
	}

	sort.SliceStable(ranked, func(i, j int) bool {
		a, b := ranked[i], ranked[j]
		if a.ProfitPct != b.ProfitPct {
			return a.ProfitPct > b.ProfitPct
		}
		if a.Hops() != b.Hops() {
			return a.Hops() < b.Hops()
		}
		return a.EstimatedCost < b.EstimatedCost
	})

	return ranked, filtered
}

func (r *Ranker) accept(opp types.Opportunity) (types.FilterReason, bool) {
	pct := opp.ProfitPct
	if math.IsNaN(pct) || !(opp.Profit > 0) || pct < r.cfg.MinProfitPct {
		return types.FilterBelowMinimum, false
	}
	if pct > r.cfg.MaxProfitPct {
		return types.FilterAboveMaximum, false
	}
	return "", true
}
