package aggregate

import (
	"math/big"
	"testing"

	"github.com/shopspring/decimal"

	"lpAnalytics/internal/model"
	"lpAnalytics/internal/pricing"
)

const (
	wethAddr = "0xc02aaa39b223fe8d0a0e5c4f27ead9083c756cc2"
	usdcAddr = "0xa0b86991c6218b36c1d19d4a2e9eb0ce3606eb48"
	usdtAddr = "0xdac17f958d2ee523a2206206994597c13d831ec7"
	poolAddr = "0x1111111111111111111111111111111111111111"
	dayStart = 1699920000 // 2023-11-14 00:00:00 UTC
)

var stables = pricing.NewStableClassifier([]string{usdcAddr, usdtAddr})

func mustInt(t *testing.T, s string) *big.Int {
	t.Helper()
	v, ok := new(big.Int).SetString(s, 10)
	if !ok {
		t.Fatalf("bad int %s", s)
	}
	return v
}

// sqrt(2500 * 10^6 / 10^18) * 2^96
func sqrtPrice2500(t *testing.T) *big.Int {
	v := new(big.Int).Lsh(big.NewInt(1), 96)
	v.Mul(v, big.NewInt(5))
	return v.Div(v, big.NewInt(100000))
}

func wethUsdcInput(t *testing.T, ts int64) SwapInput {
	return SwapInput{
		Pool: model.Pool{ID: poolAddr, ChainID: 1, Version: 3, Token0: wethAddr, Token1: usdcAddr, FeeTier: 3000},
		Token0: model.Token{ChainID: 1, Address: wethAddr, Decimals: 18},
		Token1: model.Token{ChainID: 1, Address: usdcAddr, Decimals: 6},
		Swap: model.SwapEvent{
			ID:           "1:0xtx:0",
			PoolID:       poolAddr,
			Amount0:      mustInt(t, "-1000000000000000000"),
			Amount1:      mustInt(t, "2500000000"),
			SqrtPriceX96: sqrtPrice2500(t),
			Liquidity:    mustInt(t, "1000000000000"),
			Timestamp:    ts,
		},
		Stables: stables,
	}
}

func approx(t *testing.T, name string, got *decimal.Decimal, want string, tol string) {
	t.Helper()
	if got == nil {
		t.Fatalf("%s is nil", name)
	}
	diff := got.Sub(decimal.RequireFromString(want)).Abs()
	if diff.GreaterThan(decimal.RequireFromString(tol)) {
		t.Fatalf("%s = %s, want %s", name, got, want)
	}
}

func TestComputeConcreteSwap(t *testing.T) {
	ts := int64(dayStart + 10*3600 + 5)
	in := wethUsdcInput(t, ts)
	in.Balance0 = mustInt(t, "10000000000000000000") // 10 WETH
	in.Balance1 = mustInt(t, "5000000000")           // 5000 USDC

	acc := Compute(in)
	hour, ok := acc.Bucket(HourKey(poolAddr, ts))
	if !ok {
		t.Fatalf("hour bucket missing")
	}
	day, ok := acc.Bucket(DayKey(poolAddr, ts))
	if !ok {
		t.Fatalf("day bucket missing")
	}

	for _, b := range []Bucket{hour, day} {
		if !b.Volume0.Equal(decimal.NewFromInt(1)) || !b.Volume1.Equal(decimal.NewFromInt(2500)) {
			t.Fatalf("volumes = %s / %s", b.Volume0, b.Volume1)
		}
		if b.SwapCount != 1 {
			t.Fatalf("swap count = %d", b.SwapCount)
		}
		// 0.3% of each leg
		if !b.Fees0.Equal(decimal.RequireFromString("0.003")) || !b.Fees1.Equal(decimal.RequireFromString("7.5")) {
			t.Fatalf("fees = %s / %s", b.Fees0, b.Fees1)
		}
		if b.VolumeUSD == nil || !b.VolumeUSD.Equal(decimal.NewFromInt(2500)) {
			t.Fatalf("volume usd = %v", b.VolumeUSD)
		}
		if b.FeesUSD == nil || !b.FeesUSD.Equal(decimal.RequireFromString("7.5")) {
			t.Fatalf("fees usd = %v", b.FeesUSD)
		}
		approx(t, "tvl", b.TVLUSD, "30000", "0.0001")
		approx(t, "price0", b.Price0, "2500", "0.000001")
		approx(t, "price1", b.Price1, "0.0004", "0.000000000001")
		if b.UpdatedAt != ts {
			t.Fatalf("updated at = %d", b.UpdatedAt)
		}
	}

	snap, ok := acc.Price(HourKey(poolAddr, ts))
	if !ok {
		t.Fatalf("hour price snapshot missing")
	}
	if snap.SqrtPriceX96.Cmp(sqrtPrice2500(t)) != 0 || snap.Liquidity.String() != "1000000000000" {
		t.Fatalf("snapshot = %+v", snap)
	}
	if _, ok := acc.Price(DayKey(poolAddr, ts)); ok {
		t.Fatalf("day bucket must not have a price snapshot")
	}
}

func TestComputeWithoutBalancesLeavesTVL(t *testing.T) {
	acc := Compute(wethUsdcInput(t, dayStart))
	for _, b := range acc.Buckets() {
		if b.TVLUSD != nil {
			t.Fatalf("tvl must be indeterminate without balances")
		}
		if b.VolumeUSD == nil {
			t.Fatalf("volume usd still determinate")
		}
	}
}

func TestComputeStableSideIndeterminate(t *testing.T) {
	// both sides stable
	in := wethUsdcInput(t, dayStart)
	in.Pool.Token0 = usdtAddr
	in.Token0 = model.Token{ChainID: 1, Address: usdtAddr, Decimals: 6}
	in.Balance0 = big.NewInt(1)
	in.Balance1 = big.NewInt(1)
	for _, b := range Compute(in).Buckets() {
		if b.VolumeUSD != nil || b.FeesUSD != nil || b.TVLUSD != nil {
			t.Fatalf("both stable must be indeterminate")
		}
		if b.SwapCount != 1 {
			t.Fatalf("volumes still applied")
		}
	}

	// neither side stable
	in = wethUsdcInput(t, dayStart)
	in.Stables = pricing.NewStableClassifier(nil)
	for _, b := range Compute(in).Buckets() {
		if b.VolumeUSD != nil || b.FeesUSD != nil {
			t.Fatalf("no stable must be indeterminate")
		}
	}
}

func TestComputeStableToken0(t *testing.T) {
	// USDC/WETH ordering: token0 stable, token0 paid in
	in := SwapInput{
		Pool:   model.Pool{ID: poolAddr, Token0: usdcAddr, Token1: wethAddr, FeeTier: 500},
		Token0: model.Token{Address: usdcAddr, Decimals: 6},
		Token1: model.Token{Address: wethAddr, Decimals: 18},
		Swap: model.SwapEvent{
			Amount0:      mustInt(t, "2000000000"),
			Amount1:      mustInt(t, "-800000000000000000"),
			SqrtPriceX96: new(big.Int).Lsh(big.NewInt(1), 96),
			Timestamp:    dayStart,
		},
		Stables: stables,
	}
	b, _ := Compute(in).Bucket(HourKey(poolAddr, dayStart))
	if !b.Fees0.Equal(decimal.NewFromInt(1)) || !b.Fees1.Equal(decimal.RequireFromString("0.0004")) {
		t.Fatalf("fees = %s / %s", b.Fees0, b.Fees1)
	}
	if b.FeesUSD == nil || !b.FeesUSD.Equal(decimal.NewFromInt(1)) {
		t.Fatalf("fees usd = %v", b.FeesUSD)
	}
	if b.VolumeUSD == nil || !b.VolumeUSD.Equal(decimal.NewFromInt(2000)) {
		t.Fatalf("volume usd = %v", b.VolumeUSD)
	}
}

func TestComputeFeesIgnoreDirection(t *testing.T) {
	// WETH paid in, USDC paid out: the stable leg still carries the fee
	in := wethUsdcInput(t, dayStart)
	in.Swap.Amount0 = mustInt(t, "1000000000000000000")
	in.Swap.Amount1 = mustInt(t, "-2500000000")
	b, ok := Compute(in).Bucket(DayKey(poolAddr, dayStart))
	if !ok {
		t.Fatalf("day bucket missing")
	}
	if !b.Fees0.Equal(decimal.RequireFromString("0.003")) || !b.Fees1.Equal(decimal.RequireFromString("7.5")) {
		t.Fatalf("fees = %s / %s", b.Fees0, b.Fees1)
	}
	if b.FeesUSD == nil || !b.FeesUSD.Equal(decimal.RequireFromString("7.5")) {
		t.Fatalf("fees usd = %v", b.FeesUSD)
	}
	if b.VolumeUSD == nil || !b.VolumeUSD.Equal(decimal.NewFromInt(2500)) {
		t.Fatalf("volume usd = %v", b.VolumeUSD)
	}

	forward, _ := Compute(wethUsdcInput(t, dayStart)).Bucket(DayKey(poolAddr, dayStart))
	if !forward.FeesUSD.Equal(*b.FeesUSD) {
		t.Fatalf("fees usd depends on direction: %s vs %s", forward.FeesUSD, b.FeesUSD)
	}
}

func TestComputeDynamicFee(t *testing.T) {
	in := wethUsdcInput(t, dayStart)
	in.Swap.Fee = 10000
	b, _ := Compute(in).Bucket(DayKey(poolAddr, dayStart))
	if !b.Fees1.Equal(decimal.NewFromInt(25)) {
		t.Fatalf("fee override = %s", b.Fees1)
	}
}

func TestComputeZeroPrice(t *testing.T) {
	in := wethUsdcInput(t, dayStart)
	in.Swap.SqrtPriceX96 = big.NewInt(0)
	b, _ := Compute(in).Bucket(HourKey(poolAddr, dayStart))
	if b.Price0 == nil || !b.Price0.IsZero() || !b.Price1.IsZero() {
		t.Fatalf("zero price = %v / %v", b.Price0, b.Price1)
	}
}

func TestSwapFees(t *testing.T) {
	fee0, fee1 := SwapFees(big.NewInt(1_000_000), big.NewInt(-5_000_000), 3000, 6, 6)
	if !fee0.Equal(decimal.RequireFromString("0.003")) || !fee1.Equal(decimal.RequireFromString("0.015")) {
		t.Fatalf("fees = %s / %s", fee0, fee1)
	}

	fee0, fee1 = SwapFees(big.NewInt(-1_000_000), big.NewInt(5_000_000), 3000, 6, 6)
	if !fee0.Equal(decimal.RequireFromString("0.003")) || !fee1.Equal(decimal.RequireFromString("0.015")) {
		t.Fatalf("reverse fees = %s / %s", fee0, fee1)
	}

	fee0, fee1 = SwapFees(nil, big.NewInt(1_000_000), 500, 6, 6)
	if !fee0.IsZero() || !fee1.Equal(decimal.RequireFromString("0.0005")) {
		t.Fatalf("nil leg = %s / %s", fee0, fee1)
	}

	fee0, fee1 = SwapFees(big.NewInt(-5), big.NewInt(100), 0, 0, 0)
	if !fee0.IsZero() || !fee1.IsZero() {
		t.Fatalf("zero tier charges nothing")
	}
}
