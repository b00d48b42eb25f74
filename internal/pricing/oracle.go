// Package pricing derives spot prices and USD valuations for pool events.
package pricing

import (
	"math/big"

	"github.com/shopspring/decimal"

	"lpAnalytics/internal/amount"
)

// q192 is 2^192, the square of the Q64.96 scaling factor.
var q192 = new(big.Int).Lsh(big.NewInt(1), 192)

// SpotPrices converts a Q64.96 square-root price into price0 (token1 per
// token0) and price1 (token0 per token1), adjusted for token decimals.
// Both prices are zero when sqrtP is zero.
func SpotPrices(sqrtP *big.Int, dec0, dec1 uint8) (decimal.Decimal, decimal.Decimal) {
	if sqrtP == nil || sqrtP.Sign() <= 0 {
		return decimal.Zero, decimal.Zero
	}

	num := new(big.Int).Mul(sqrtP, sqrtP)
	num.Mul(num, pow10Int(dec0))
	den := new(big.Int).Mul(q192, pow10Int(dec1))

	numDec := decimal.NewFromBigInt(num, 0)
	denDec := decimal.NewFromBigInt(den, 0)

	price0 := amount.Quo(numDec, denDec)
	if price0.IsZero() {
		return decimal.Zero, decimal.Zero
	}
	return price0, amount.Quo(denDec, numDec)
}

func pow10Int(d uint8) *big.Int {
	return new(big.Int).Exp(big.NewInt(10), big.NewInt(int64(d)), nil)
}
