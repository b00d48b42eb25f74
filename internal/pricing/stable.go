package pricing

import (
	"strings"

	"github.com/shopspring/decimal"

	"lpAnalytics/internal/amount"
)

// Side identifies which token of a pair is the USD reference.
type Side int

const (
	SideNone Side = iota
	SideToken0
	SideToken1
)

func (s Side) String() string {
	switch s {
	case SideToken0:
		return "token0"
	case SideToken1:
		return "token1"
	default:
		return "none"
	}
}

// StableClassifier reports whether a token is treated as worth 1 USD.
type StableClassifier struct {
	set map[string]struct{}
}

// NewStableClassifier builds a classifier from token addresses.
func NewStableClassifier(addresses []string) *StableClassifier {
	set := make(map[string]struct{}, len(addresses))
	for _, addr := range addresses {
		addr = strings.ToLower(strings.TrimSpace(addr))
		if addr == "" {
			continue
		}
		set[addr] = struct{}{}
	}
	return &StableClassifier{set: set}
}

// IsStable compares case-insensitively.
func (c *StableClassifier) IsStable(addr string) bool {
	if c == nil {
		return false
	}
	_, ok := c.set[strings.ToLower(strings.TrimSpace(addr))]
	return ok
}

// Side classifies a pair.
func (c *StableClassifier) Side(token0, token1 string) Side {
	return StableSide(c.IsStable(token0), c.IsStable(token1))
}

// StableSide returns the stable side when exactly one side is stable.
func StableSide(stable0, stable1 bool) Side {
	switch {
	case stable0 && !stable1:
		return SideToken0
	case stable1 && !stable0:
		return SideToken1
	default:
		return SideNone
	}
}

// USDValue returns the amount on the stable side, or nil when the pair has
// no single stable side. The other side is ignored, so fee revenue derived
// this way covers only swaps paying in the stable token.
func USDValue(side Side, v0, v1 decimal.Decimal) *decimal.Decimal {
	switch side {
	case SideToken0:
		return &v0
	case SideToken1:
		return &v1
	default:
		return nil
	}
}

// TVL values pool balances in the stable token. price0 is token1 per
// token0, price1 is token0 per token1.
func TVL(side Side, bal0, bal1, price0, price1 decimal.Decimal) *decimal.Decimal {
	var out decimal.Decimal
	switch side {
	case SideToken0:
		out = bal0.Add(bal1.Mul(price1))
	case SideToken1:
		out = bal1.Add(bal0.Mul(price0))
	default:
		return nil
	}
	out = out.Truncate(amount.Precision)
	return &out
}
