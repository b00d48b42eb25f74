package aggregate

import (
	"math/big"
	"testing"

	"github.com/shopspring/decimal"
)

func TestApplyVolumeCountsEverySwap(t *testing.T) {
	acc := NewAccumulator()
	a := HourKey("0xa", 1700000000)
	b := HourKey("0xb", 1700000000)
	c := DayKey("0xa", 1700000000)

	amounts := []string{"1.5", "0.25", "1000000", "0.000000000000000001", "3"}
	want := decimal.Zero
	for i, raw := range amounts {
		v := decimal.RequireFromString(raw)
		want = want.Add(v)
		// interleave with other buckets
		acc.ApplyVolume(b, decimal.NewFromInt(int64(i)), decimal.Zero)
		acc.ApplyVolume(a, v, v.Neg())
		acc.ApplyVolume(c, v, v)
	}

	for _, key := range []BucketKey{a, c} {
		got, ok := acc.Bucket(key)
		if !ok {
			t.Fatalf("bucket %v missing", key)
		}
		if got.SwapCount != uint64(len(amounts)) {
			t.Fatalf("swap count = %d", got.SwapCount)
		}
		if !got.Volume0.Equal(want) || !got.Volume1.Equal(want) {
			t.Fatalf("volume = %s/%s want %s", got.Volume0, got.Volume1, want)
		}
	}
	if acc.Len() != 3 {
		t.Fatalf("len = %d", acc.Len())
	}
	if buckets := acc.Buckets(); buckets[0].Key != b || buckets[1].Key != a {
		t.Fatalf("buckets not in first-touch order")
	}
}

func TestSnapshotsOverwrite(t *testing.T) {
	acc := NewAccumulator()
	hour := HourKey("0xa", 1700000000)
	day := DayKey("0xa", 1700000000)

	acc.ApplyTvlSnapshot(hour, decimal.NewFromInt(100))
	acc.ApplyTvlSnapshot(hour, decimal.NewFromInt(90))
	got, _ := acc.Bucket(hour)
	if got.TVLUSD == nil || !got.TVLUSD.Equal(decimal.NewFromInt(90)) {
		t.Fatalf("tvl = %v", got.TVLUSD)
	}
	if got.SwapCount != 0 || !got.Volume0.IsZero() {
		t.Fatalf("first touch must start from zero")
	}

	acc.ApplyPriceSnapshot(hour, big.NewInt(10), decimal.NewFromInt(4), decimal.RequireFromString("0.25"), big.NewInt(7), 1700000001)
	acc.ApplyPriceSnapshot(hour, big.NewInt(20), decimal.NewFromInt(16), decimal.RequireFromString("0.0625"), big.NewInt(8), 1700000002)
	acc.ApplyPriceSnapshot(day, big.NewInt(20), decimal.NewFromInt(16), decimal.RequireFromString("0.0625"), big.NewInt(8), 1700000002)

	snap, ok := acc.Price(hour)
	if !ok {
		t.Fatalf("price snapshot missing")
	}
	if snap.SqrtPriceX96.Int64() != 20 || !snap.Price0.Equal(decimal.NewFromInt(16)) || snap.Liquidity.Int64() != 8 || snap.UpdatedAt != 1700000002 {
		t.Fatalf("snapshot not overwritten: %+v", snap)
	}
	if _, ok := acc.Price(day); ok {
		t.Fatalf("day buckets carry no price snapshot")
	}
	if len(acc.Prices()) != 1 {
		t.Fatalf("prices = %d", len(acc.Prices()))
	}
	dayBucket, _ := acc.Bucket(day)
	if dayBucket.Price1 == nil || !dayBucket.Price1.Equal(decimal.RequireFromString("0.0625")) {
		t.Fatalf("day bucket price = %v", dayBucket.Price1)
	}
}

func TestApplyUSDIndeterminateLeavesField(t *testing.T) {
	acc := NewAccumulator()
	key := HourKey("0xa", 0)
	acc.ApplyUSD(key, nil, nil)
	got, _ := acc.Bucket(key)
	if got.VolumeUSD != nil || got.FeesUSD != nil {
		t.Fatalf("indeterminate values must not be written")
	}

	v := decimal.NewFromInt(2)
	acc.ApplyUSD(key, &v, nil)
	acc.ApplyUSD(key, &v, nil)
	got, _ = acc.Bucket(key)
	if got.VolumeUSD == nil || !got.VolumeUSD.Equal(decimal.NewFromInt(4)) || got.FeesUSD != nil {
		t.Fatalf("usd = %v / %v", got.VolumeUSD, got.FeesUSD)
	}
}

func TestAccumulatorMerge(t *testing.T) {
	key := HourKey("0xa", 0)
	total := NewAccumulator()
	for i := 0; i < 3; i++ {
		delta := NewAccumulator()
		delta.ApplyVolume(key, decimal.NewFromInt(1), decimal.NewFromInt(2))
		delta.ApplyPriceSnapshot(key, big.NewInt(int64(i)), decimal.NewFromInt(int64(i)), decimal.Zero, big.NewInt(1), int64(i))
		total.Merge(delta)
	}
	got, _ := total.Bucket(key)
	if got.SwapCount != 3 || !got.Volume1.Equal(decimal.NewFromInt(6)) {
		t.Fatalf("merged bucket: %+v", got)
	}
	snap, _ := total.Price(key)
	if snap.SqrtPriceX96.Int64() != 2 {
		t.Fatalf("last snapshot wins: %s", snap.SqrtPriceX96)
	}
	total.Merge(nil)
}
