package aggregate

import (
	"math/big"

	"github.com/shopspring/decimal"

	"lpAnalytics/internal/amount"
	"lpAnalytics/internal/model"
	"lpAnalytics/internal/pricing"
)

// feeDenominator converts a fee tier in hundredths of a basis point to a rate.
var feeDenominator = decimal.NewFromInt(1_000_000)

// SwapInput is everything Compute needs for one swap. Balance0/Balance1 are
// the pool's raw token balances, nil when they could not be read.
type SwapInput struct {
	Pool     model.Pool
	Token0   model.Token
	Token1   model.Token
	Swap     model.SwapEvent
	Balance0 *big.Int
	Balance1 *big.Int
	Stables  *pricing.StableClassifier
}

// Compute derives the bucket updates for one swap: volumes, fees and USD
// values on the hour and day buckets, the TVL snapshot on both, and the
// price snapshot on the hour bucket.
func Compute(in SwapInput) *Accumulator {
	acc := NewAccumulator()
	ts := in.Swap.Timestamp
	hour := HourKey(in.Pool.ID, ts)
	day := DayKey(in.Pool.ID, ts)

	dec0, dec1 := in.Token0.Decimals, in.Token1.Decimals
	vol0 := amount.ScaleAbs(in.Swap.Amount0, dec0)
	vol1 := amount.ScaleAbs(in.Swap.Amount1, dec1)

	feeTier := in.Pool.FeeTier
	if in.Swap.Fee > 0 {
		feeTier = in.Swap.Fee
	}
	fee0, fee1 := SwapFees(in.Swap.Amount0, in.Swap.Amount1, feeTier, dec0, dec1)

	price0, price1 := pricing.SpotPrices(in.Swap.SqrtPriceX96, dec0, dec1)
	side := in.Stables.Side(in.Token0.Address, in.Token1.Address)
	volumeUSD := pricing.USDValue(side, vol0, vol1)
	feesUSD := pricing.USDValue(side, fee0, fee1)

	var tvl *decimal.Decimal
	if in.Balance0 != nil && in.Balance1 != nil {
		tvl = pricing.TVL(side,
			amount.Scale(in.Balance0, dec0),
			amount.Scale(in.Balance1, dec1),
			price0, price1)
	}

	for _, key := range []BucketKey{hour, day} {
		acc.ApplyVolume(key, vol0, vol1)
		acc.ApplyFees(key, fee0, fee1)
		acc.ApplyUSD(key, volumeUSD, feesUSD)
		if tvl != nil {
			acc.ApplyTvlSnapshot(key, *tvl)
		}
		acc.Touch(key, ts)
	}
	acc.ApplyPriceSnapshot(hour, in.Swap.SqrtPriceX96, price0, price1, in.Swap.Liquidity, ts)
	acc.ApplyPrice(day, price0, price1)

	return acc
}

// SwapFees charges feeTier on both legs of a swap: fee_i = |amount_i| * rate.
// Only the stable leg is priced later, and it stands in for the whole swap's
// fee revenue whichever way the swap ran.
func SwapFees(amount0, amount1 *big.Int, feeTier uint32, dec0, dec1 uint8) (decimal.Decimal, decimal.Decimal) {
	if feeTier == 0 {
		return decimal.Zero, decimal.Zero
	}
	rate := amount.Quo(decimal.NewFromInt(int64(feeTier)), feeDenominator)
	fee0 := amount.ScaleAbs(amount0, dec0).Mul(rate).Truncate(amount.Precision)
	fee1 := amount.ScaleAbs(amount1, dec1).Mul(rate).Truncate(amount.Precision)
	return fee0, fee1
}
