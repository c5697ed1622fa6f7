package math

import (
	"math"
	"math/big"
)

// ToFloat converts a raw integer token amount into whole units.
func ToFloat(amount *big.Int, decimals uint8) float64 {
	if amount == nil {
		return 0
	}
	f := new(big.Float).SetInt(amount)
	if decimals > 0 {
		scale := new(big.Float).SetInt(new(big.Int).Exp(big.NewInt(10), big.NewInt(int64(decimals)), nil))
		f.Quo(f, scale)
	}
	out, _ := f.Float64()
	return out
}

// SpotRate returns how many whole units of the out token one whole unit of the
// in token buys at the pool's current reserves, ignoring fees and price
// impact. Empty reserves yield 0.
func SpotRate(reserveIn, reserveOut *big.Int, decimalsIn, decimalsOut uint8) float64 {
	if reserveIn == nil || reserveOut == nil || reserveIn.Sign() <= 0 || reserveOut.Sign() <= 0 {
		return 0
	}
	in := ToFloat(reserveIn, decimalsIn)
	out := ToFloat(reserveOut, decimalsOut)
	if in == 0 {
		return 0
	}
	return out / in
}

// EdgeWeight maps a rate and fee onto an additive weight so that a loop whose
// effective rates multiply to more than one has a negative total weight.
func EdgeWeight(rate, fee float64) float64 {
	return -math.Log(rate * (1 - fee))
}

// IsFinitePositive reports whether x is a usable positive number.
func IsFinitePositive(x float64) bool {
	return x > 0 && !math.IsInf(x, 0) && !math.IsNaN(x)
}
