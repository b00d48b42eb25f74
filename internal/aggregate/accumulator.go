package aggregate

import (
	"math/big"

	"github.com/shopspring/decimal"
)

// Accumulator collects bucket updates. It does not deduplicate: every call
// is applied. A processor builds one Accumulator per event and the store
// merges it into persisted rows.
type Accumulator struct {
	buckets map[BucketKey]*Bucket
	prices  map[BucketKey]*PriceSnapshot
	order   []BucketKey
}

func NewAccumulator() *Accumulator {
	return &Accumulator{
		buckets: make(map[BucketKey]*Bucket),
		prices:  make(map[BucketKey]*PriceSnapshot),
	}
}

func (a *Accumulator) bucket(key BucketKey) *Bucket {
	b, ok := a.buckets[key]
	if !ok {
		b = &Bucket{Key: key}
		a.buckets[key] = b
		a.order = append(a.order, key)
	}
	return b
}

// ApplyVolume adds token volumes and counts one swap.
func (a *Accumulator) ApplyVolume(key BucketKey, amount0, amount1 decimal.Decimal) {
	b := a.bucket(key)
	b.Volume0 = b.Volume0.Add(amount0.Abs())
	b.Volume1 = b.Volume1.Add(amount1.Abs())
	b.SwapCount++
}

// ApplyFees adds token fee amounts.
func (a *Accumulator) ApplyFees(key BucketKey, fee0, fee1 decimal.Decimal) {
	b := a.bucket(key)
	b.Fees0 = b.Fees0.Add(fee0.Abs())
	b.Fees1 = b.Fees1.Add(fee1.Abs())
}

// ApplyUSD adds USD volume and fees. A nil value leaves the field as is.
func (a *Accumulator) ApplyUSD(key BucketKey, volumeUSD, feesUSD *decimal.Decimal) {
	b := a.bucket(key)
	b.VolumeUSD = addOptional(b.VolumeUSD, volumeUSD)
	b.FeesUSD = addOptional(b.FeesUSD, feesUSD)
}

// ApplyTvlSnapshot overwrites the bucket TVL.
func (a *Accumulator) ApplyTvlSnapshot(key BucketKey, tvlUSD decimal.Decimal) {
	b := a.bucket(key)
	b.TVLUSD = &tvlUSD
}

// ApplyPrice overwrites the bucket's last prices.
func (a *Accumulator) ApplyPrice(key BucketKey, price0, price1 decimal.Decimal) {
	b := a.bucket(key)
	b.Price0 = &price0
	b.Price1 = &price1
}

// ApplyPriceSnapshot overwrites the hour price record and the bucket's last
// prices. Day keys only update the bucket.
func (a *Accumulator) ApplyPriceSnapshot(key BucketKey, sqrtP *big.Int, price0, price1 decimal.Decimal, liquidity *big.Int, ts int64) {
	a.ApplyPrice(key, price0, price1)
	a.Touch(key, ts)
	if key.Granularity != Hour {
		return
	}
	a.prices[key] = &PriceSnapshot{
		Key:          key,
		SqrtPriceX96: copyInt(sqrtP),
		Price0:       price0,
		Price1:       price1,
		Liquidity:    copyInt(liquidity),
		UpdatedAt:    ts,
	}
}

// Touch records the latest event time seen by a bucket.
func (a *Accumulator) Touch(key BucketKey, ts int64) {
	b := a.bucket(key)
	if ts > b.UpdatedAt {
		b.UpdatedAt = ts
	}
}

// Bucket returns a copy of the bucket for key.
func (a *Accumulator) Bucket(key BucketKey) (Bucket, bool) {
	b, ok := a.buckets[key]
	if !ok {
		return Bucket{}, false
	}
	return *b, true
}

// Buckets returns copies in first-touch order.
func (a *Accumulator) Buckets() []Bucket {
	out := make([]Bucket, 0, len(a.order))
	for _, key := range a.order {
		out = append(out, *a.buckets[key])
	}
	return out
}

// Prices returns hour price snapshots in first-touch order.
func (a *Accumulator) Prices() []PriceSnapshot {
	out := make([]PriceSnapshot, 0, len(a.prices))
	for _, key := range a.order {
		if p, ok := a.prices[key]; ok {
			out = append(out, *p)
		}
	}
	return out
}

// Price returns the price snapshot for an hour key.
func (a *Accumulator) Price(key BucketKey) (PriceSnapshot, bool) {
	p, ok := a.prices[key]
	if !ok {
		return PriceSnapshot{}, false
	}
	return *p, true
}

// Len returns the number of buckets touched.
func (a *Accumulator) Len() int {
	return len(a.order)
}

// Merge folds other into a using Bucket.Merge.
func (a *Accumulator) Merge(other *Accumulator) {
	if other == nil {
		return
	}
	for _, key := range other.order {
		a.bucket(key).Merge(*other.buckets[key])
		if p, ok := other.prices[key]; ok {
			snapshot := *p
			a.prices[key] = &snapshot
		}
	}
}

func copyInt(v *big.Int) *big.Int {
	if v == nil {
		return nil
	}
	return new(big.Int).Set(v)
}
