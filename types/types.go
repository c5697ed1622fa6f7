package types

import (
	"fmt"
	"strings"
	"time"
)

// Token is an exchangeable asset in the graph. Tokens are fixed per
// engine configuration and never mutated after construction.
type Token struct {
	ID       string `yaml:"id" json:"id"`
	Symbol   string `yaml:"symbol" json:"symbol"`
	Decimals uint8  `yaml:"decimals" json:"decimals"`
}

func (t Token) String() string {
	if t.Symbol != "" {
		return t.Symbol
	}
	return t.ID
}

// PairKey identifies an ordered token pair.
type PairKey struct {
	From string
	To   string
}

func (k PairKey) String() string {
	return k.From + "->" + k.To
}

// Reverse returns the pair in the opposite direction.
func (k PairKey) Reverse() PairKey {
	return PairKey{From: k.To, To: k.From}
}

// Quote is one directed exchange quote: one unit of From buys Rate units of To
// before Fee is deducted.
type Quote struct {
	Rate float64
	// Fee is the fraction in [0,1) taken on traversal. It is only trusted when
	// HasFee is set, otherwise the configured fee policy decides.
	Fee       float64
	HasFee    bool
	Liquidity float64
	Timestamp time.Time
	Exchange  string
}

// EffectiveRate returns rate*(1-fee) for an explicit fee.
func (q Quote) EffectiveRate(fee float64) float64 {
	return q.Rate * (1 - fee)
}

// QuoteSet is the wholesale output of one RateSource refresh.
type QuoteSet map[PairKey]Quote

// Clone returns a shallow copy of the set.
func (s QuoteSet) Clone() QuoteSet {
	out := make(QuoteSet, len(s))
	for k, v := range s {
		out[k] = v
	}
	return out
}

// RejectReason explains why a quote did not enter the searchable edge set.
type RejectReason string

const (
	RejectUnknownToken RejectReason = "unknown_token"
	RejectSelfLoop     RejectReason = "self_loop"
	RejectNonPositive  RejectReason = "non_positive_rate"
	RejectNonFinite    RejectReason = "non_finite_rate"
	RejectInvalidFee   RejectReason = "invalid_fee"
	RejectStale        RejectReason = "stale_quote"
	RejectOutOfRange   RejectReason = "rate_out_of_range"
)

// DiscardReason explains why a reconstructed cycle was dropped.
type DiscardReason string

const (
	DiscardBrokenChain   DiscardReason = "broken_chain"
	DiscardLengthCap     DiscardReason = "length_cap"
	DiscardMissingSource DiscardReason = "missing_source"
	DiscardTooShort      DiscardReason = "too_short"
	DiscardTooLong       DiscardReason = "too_long"
	DiscardStalePath     DiscardReason = "stale_path"
	DiscardNotNegative   DiscardReason = "not_negative"
)

// FilterReason explains why an evaluated opportunity was not ranked.
type FilterReason string

const (
	FilterDuplicate    FilterReason = "duplicate"
	FilterBelowMinimum FilterReason = "below_min_profit"
	FilterAboveMaximum FilterReason = "above_max_profit"
)

// Opportunity is a quantified arbitrage loop. It is a value object: slices are
// owned by the opportunity and must not be modified by consumers.
type Opportunity struct {
	// Path holds token identities t0..tk,t0.
	Path []string `json:"path"`
	// Symbols mirrors Path with display symbols.
	Symbols []string `json:"symbols"`
	// Exchanges holds one identifier per hop.
	Exchanges []string `json:"exchanges"`

	StartAmount   float64 `json:"start_amount"`
	FinalAmount   float64 `json:"final_amount"`
	Profit        float64 `json:"profit"`
	ProfitPct     float64 `json:"profit_pct"`
	ProfitBps     float64 `json:"profit_bps"`
	EstimatedCost float64 `json:"estimated_cost"`

	// Key is the rotation-invariant identity of the cycle.
	Key uint64 `json:"key"`
}

// Hops returns the number of edges traversed.
func (o Opportunity) Hops() int {
	if len(o.Path) == 0 {
		return 0
	}
	return len(o.Path) - 1
}

// Route renders the symbol path, e.g. "WETH -> USDC -> DAI -> WETH".
func (o Opportunity) Route() string {
	if len(o.Symbols) > 0 {
		return strings.Join(o.Symbols, " -> ")
	}
	return strings.Join(o.Path, " -> ")
}

func (o Opportunity) String() string {
	return fmt.Sprintf("%s (%.4f%%, cost %.2f)", o.Route(), o.ProfitPct, o.EstimatedCost)
}

// PassStats counts what happened during one detection pass.
type PassStats struct {
	Sources         int `json:"sources"`
	Edges           int `json:"edges"`
	CyclesFound     int `json:"cycles_found"`
	CyclesDiscarded int `json:"cycles_discarded"`
	Evaluated       int `json:"evaluated"`
	Filtered        int `json:"filtered"`
}

// PassResult is the complete output of one detection pass. Opportunities is
// never nil for a completed pass, so an empty result is distinguishable from a
// pass that failed to run.
type PassResult struct {
	ID              string        `json:"id"`
	SnapshotVersion uint64        `json:"snapshot_version"`
	StartedAt       time.Time     `json:"started_at"`
	Duration        time.Duration `json:"duration"`
	Opportunities   []Opportunity `json:"opportunities"`
	Stats           PassStats     `json:"stats"`
}

// Empty reports whether the pass produced no opportunities.
func (r PassResult) Empty() bool {
	return len(r.Opportunities) == 0
}
