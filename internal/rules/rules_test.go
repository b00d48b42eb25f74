package rules

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	weth = "0xc02aaa39b223fe8d0a0e5c4f27ead9083c756cc2"
	usdc = "0xa0b86991c6218b36c1d19d4a2e9eb0ce3606eb48"
	usdt = "0xdac17f958d2ee523a2206206994597c13d831ec7"
	wbtc = "0x2260fac5e5542a773aa44fbcfedf7c193bc2c599"
)

const sample = `
"1":
  versions: [3, 4]
  rules:
    - name: eth-stables
      groupA: ["0xC02aaA39b223FE8D0A0e5C4F27eAD9083C756Cc2"]
      groupB:
        - "0xA0b86991c6218b36c1d19D4a2e9Eb0cE3606eB48"
        - "0xdAC17F958D2ee523a2206206994597C13D831ec7"
      fee_tiers: [500, 3000]
"8453":
  stables: ["0x833589fcd6edb6e08f4c7c32d4f71b54bda02913"]
`

func TestParseRules(t *testing.T) {
	set, err := Parse([]byte(sample))
	require.NoError(t, err)
	assert.Equal(t, []uint64{1, 8453}, set.ChainIDs())

	mainnet, ok := set.Chain(1)
	require.True(t, ok)
	assert.Len(t, mainnet.Stables, 3, "falls back to built-in stables")

	assert.True(t, mainnet.Allow(3, weth, usdc, 500))
	assert.True(t, mainnet.Allow(4, usdt, weth, 3000), "order of groups is irrelevant")
	assert.False(t, mainnet.Allow(3, weth, usdc, 10000), "fee tier filter")
	assert.False(t, mainnet.Allow(3, wbtc, usdc, 500), "pair not in groups")
	assert.False(t, mainnet.Allow(2, weth, usdc, 500), "version filter")

	base, ok := set.Chain(8453)
	require.True(t, ok)
	assert.Equal(t, []string{"0x833589fcd6edb6e08f4c7c32d4f71b54bda02913"}, base.Stables)
	assert.True(t, base.Allow(3, weth, wbtc, 100), "no rules accept any pair")

	_, ok = set.Chain(10)
	assert.False(t, ok)
}

func TestParseRejectsBadInput(t *testing.T) {
	_, err := Parse([]byte(`"abc": {}`))
	assert.Error(t, err)

	_, err = Parse([]byte(`"1": {stables: ["0x123"]}`))
	assert.Error(t, err)

	_, err = Parse([]byte(`"1": {rules: [{groupA: ["` + weth + `"]}]}`))
	assert.Error(t, err)

	_, err = Parse([]byte(`"1": {versions: [2]}`))
	assert.Error(t, err)
}

func TestTokenAllowList(t *testing.T) {
	set, err := Parse([]byte(`"1": {tokens: ["` + weth + `", "` + usdc + `"]}`))
	require.NoError(t, err)
	chain, _ := set.Chain(1)
	assert.True(t, chain.Allow(3, weth, usdc, 500))
	assert.False(t, chain.Allow(3, weth, wbtc, 500))
}

func TestLoadFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "rules.yaml")
	require.NoError(t, os.WriteFile(path, []byte(sample), 0o644))
	set, err := Load(path)
	require.NoError(t, err)
	assert.Len(t, set.ChainIDs(), 2)

	_, err = Load(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}

func TestDefault(t *testing.T) {
	set := Default(1)
	chain, ok := set.Chain(1)
	require.True(t, ok)
	assert.Len(t, chain.Stables, 3)
	assert.True(t, chain.Allow(4, weth, wbtc, 3000))
}
