package aggregate

import (
	"fmt"
	"math/big"

	"github.com/shopspring/decimal"
)

// Granularity is the width of a bucket.
type Granularity int

const (
	Hour Granularity = iota
	Day
)

// Width returns the bucket width in seconds.
func (g Granularity) Width() int64 {
	if g == Day {
		return 86400
	}
	return 3600
}

func (g Granularity) String() string {
	if g == Day {
		return "day"
	}
	return "hour"
}

// BucketKey addresses one bucket row. Index is floor(ts / width).
type BucketKey struct {
	PoolID      string
	Granularity Granularity
	Index       int64
}

// KeyFor computes the bucket containing ts.
func KeyFor(poolID string, g Granularity, ts int64) BucketKey {
	w := g.Width()
	idx := ts / w
	if ts%w != 0 && ts < 0 {
		idx--
	}
	return BucketKey{PoolID: poolID, Granularity: g, Index: idx}
}

func HourKey(poolID string, ts int64) BucketKey { return KeyFor(poolID, Hour, ts) }

func DayKey(poolID string, ts int64) BucketKey { return KeyFor(poolID, Day, ts) }

// Start returns the bucket start in unix seconds.
func (k BucketKey) Start() int64 {
	return k.Index * k.Granularity.Width()
}

// ID is the textual row id, "<pool>-<index>".
func (k BucketKey) ID() string {
	return fmt.Sprintf("%s-%d", k.PoolID, k.Index)
}

// Bucket is the aggregate for one pool and one time window. USD fields and
// prices are nil when no value has been determined.
type Bucket struct {
	Key       BucketKey
	Volume0   decimal.Decimal
	Volume1   decimal.Decimal
	Fees0     decimal.Decimal
	Fees1     decimal.Decimal
	SwapCount uint64
	VolumeUSD *decimal.Decimal
	FeesUSD   *decimal.Decimal
	TVLUSD    *decimal.Decimal
	Price0    *decimal.Decimal
	Price1    *decimal.Decimal
	UpdatedAt int64
}

// Merge folds delta into b: additive fields add, snapshot fields overwrite
// when delta carries a value, unset fields keep their previous value.
func (b *Bucket) Merge(delta Bucket) {
	b.Volume0 = b.Volume0.Add(delta.Volume0)
	b.Volume1 = b.Volume1.Add(delta.Volume1)
	b.Fees0 = b.Fees0.Add(delta.Fees0)
	b.Fees1 = b.Fees1.Add(delta.Fees1)
	b.SwapCount += delta.SwapCount
	b.VolumeUSD = addOptional(b.VolumeUSD, delta.VolumeUSD)
	b.FeesUSD = addOptional(b.FeesUSD, delta.FeesUSD)
	if delta.TVLUSD != nil {
		b.TVLUSD = cloneDecimal(delta.TVLUSD)
	}
	if delta.Price0 != nil {
		b.Price0 = cloneDecimal(delta.Price0)
	}
	if delta.Price1 != nil {
		b.Price1 = cloneDecimal(delta.Price1)
	}
	if delta.UpdatedAt > b.UpdatedAt {
		b.UpdatedAt = delta.UpdatedAt
	}
}

// PriceSnapshot is the last observed price in an hour bucket.
type PriceSnapshot struct {
	Key          BucketKey
	SqrtPriceX96 *big.Int
	Price0       decimal.Decimal
	Price1       decimal.Decimal
	Liquidity    *big.Int
	UpdatedAt    int64
}

func addOptional(base, delta *decimal.Decimal) *decimal.Decimal {
	if delta == nil {
		return base
	}
	if base == nil {
		return cloneDecimal(delta)
	}
	sum := base.Add(*delta)
	return &sum
}

func cloneDecimal(d *decimal.Decimal) *decimal.Decimal {
	if d == nil {
		return nil
	}
	out := *d
	return &out
}
