package dex

import (
	"context"
	"math/big"

	"github.com/michaelpento.lv/cyclearb/types"
)

// RateSource supplies a complete set of directed quotes per refresh. All I/O
// for a refresh happens inside FetchQuotes; the returned set is handed to the
// graph as already materialized data.
type RateSource interface {
	// Name identifies the source in logs and metrics
	Name() string

	// FetchQuotes returns the source's current quotes, or an error if a
	// complete set could not be obtained
	FetchQuotes(ctx context.Context) (types.QuoteSet, error)
}

// Reserves represents token pair reserves
type Reserves struct {
	Reserve0           *big.Int
	Reserve1           *big.Int
	BlockTimestampLast uint32
}
