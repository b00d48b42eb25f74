package model

// Protocol versions.
const (
	VersionV3 = 3
	VersionV4 = 4
)

// Pool is an indexed liquidity pool. ID is the lower-cased pool address for
// V3 and the lower-cased pool id for V4. Token order follows the protocol.
type Pool struct {
	ID           string `json:"id"`
	ChainID      uint64 `json:"chain_id"`
	Version      int    `json:"version"`
	Token0       string `json:"token0"`
	Token1       string `json:"token1"`
	FeeTier      uint32 `json:"fee_tier"`
	TickSpacing  int32  `json:"tick_spacing"`
	CreatedAt    int64  `json:"created_at"`
	CreatedBlock uint64 `json:"created_block"`
}

// Token is an ERC20 token (or the native currency in V4 pools).
type Token struct {
	ChainID   uint64 `json:"chain_id"`
	Address   string `json:"address"`
	Symbol    string `json:"symbol,omitempty"`
	Name      string `json:"name,omitempty"`
	Decimals  uint8  `json:"decimals"`
	CreatedAt int64  `json:"created_at"`
}

// TokenMeta captures metadata read from the token contract.
type TokenMeta struct {
	Address  string `json:"address"`
	Decimals uint8  `json:"decimals"`
	Symbol   string `json:"symbol"`
	Name     string `json:"name"`
}
