package gas

import (
	"fmt"

	"github.com/michaelpento.lv/cyclearb/config"
)

// Estimator prices the fixed overhead of executing a cycle. The cost is
// expressed in units of the reference capital and grows linearly with the
// number of hops.
type Estimator struct {
	base   float64
	perHop float64
}

// NewEstimator creates a cost estimator from the cost section of the config.
func NewEstimator(cfg config.CostConfig) (*Estimator, error) {
	if cfg.Base < 0 || cfg.PerHop < 0 {
		return nil, fmt.Errorf("cost model must not be negative: base=%v per_hop=%v", cfg.Base, cfg.PerHop)
	}
	return &Estimator{
		base:   cfg.Base,
		perHop: cfg.PerHop,
	}, nil
}

// EstimateArbitrageCost estimates the overhead of a cycle with numHops swaps.
func (e *Estimator) EstimateArbitrageCost(numHops int) float64 {
	if numHops <= 0 {
		return e.base
	}
	return e.base + e.perHop*float64(numHops)
}
