// Package amount converts raw integer token amounts into decimal values.
package amount

import (
	"fmt"
	"math/big"

	"github.com/shopspring/decimal"
)

// Precision is the number of fractional digits kept by Quo. Every division in
// the aggregation path goes through Quo so bucket sums stay reproducible.
const Precision int32 = 30

// DefaultDecimals is used when a token does not report decimals.
const DefaultDecimals uint8 = 18

// Scale returns raw / 10^d. The result is exact.
func Scale(raw *big.Int, d uint8) decimal.Decimal {
	if raw == nil {
		return decimal.Zero
	}
	return decimal.NewFromBigInt(raw, -int32(d))
}

// ScaleAbs returns |raw| / 10^d.
func ScaleAbs(raw *big.Int, d uint8) decimal.Decimal {
	if raw == nil {
		return decimal.Zero
	}
	return decimal.NewFromBigInt(new(big.Int).Abs(raw), -int32(d))
}

// Quo divides a by b truncating toward zero at Precision digits.
// Division by zero yields zero.
func Quo(a, b decimal.Decimal) decimal.Decimal {
	if b.IsZero() {
		return decimal.Zero
	}
	q, _ := a.QuoRem(b, Precision)
	return q
}

// ParseRaw parses a base-10 signed integer amount.
func ParseRaw(value string) (*big.Int, error) {
	if value == "" {
		return big.NewInt(0), nil
	}
	out, ok := new(big.Int).SetString(value, 10)
	if !ok {
		return nil, fmt.Errorf("invalid integer: %s", value)
	}
	return out, nil
}
