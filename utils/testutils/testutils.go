package testutils

import (
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/michaelpento.lv/cyclearb/types"
	"github.com/redis/go-redis/v9"
)

// NewRedis starts an in-process Redis server and a client connected to it.
// Both are shut down when the test ends.
func NewRedis(t *testing.T) (*miniredis.Miniredis, *redis.Client) {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })
	return mr, rdb
}

// Tokens builds a universe whose symbols equal their identities.
func Tokens(ids ...string) []types.Token {
	out := make([]types.Token, len(ids))
	for i, id := range ids {
		out[i] = types.Token{ID: id, Symbol: id}
	}
	return out
}

// Quote is a quote with an explicit fee on the "test" exchange.
func Quote(rate, fee float64) types.Quote {
	return types.Quote{Rate: rate, Fee: fee, HasFee: true, Exchange: "test"}
}

// Triangle quotes A->B->C->A at 2, 2 and 0.3, which compounds to 1.2 before
// fees.
func Triangle(fee float64) types.QuoteSet {
	return types.QuoteSet{
		{From: "A", To: "B"}: Quote(2.0, fee),
		{From: "B", To: "C"}: Quote(2.0, fee),
		{From: "C", To: "A"}: Quote(0.3, fee),
	}
}
