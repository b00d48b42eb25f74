package model

// Event names carried in TypedEvent.EventName.
const (
	EventPoolCreated = "PoolCreated"
	EventInitialize  = "Initialize"
	EventSwap        = "Swap"
)

// SwapEventData is the decoded swap payload. Amounts follow the V3 sign
// convention: positive values flow into the pool.
type SwapEventData struct {
	Sender       string `json:"sender"`
	Recipient    string `json:"recipient,omitempty"`
	Amount0      string `json:"amount0"`
	Amount1      string `json:"amount1"`
	SqrtPriceX96 string `json:"sqrt_price_x96"`
	Liquidity    string `json:"liquidity"`
	Tick         int32  `json:"tick"`
	Fee          uint32 `json:"fee,omitempty"`
}

// PoolCreatedData is the decoded V3 PoolCreated or V4 Initialize payload.
type PoolCreatedData struct {
	Pool         string `json:"pool"`
	Version      int    `json:"version"`
	Token0       string `json:"token0"`
	Token1       string `json:"token1"`
	Fee          uint32 `json:"fee"`
	TickSpacing  int32  `json:"tick_spacing"`
	Hooks        string `json:"hooks,omitempty"`
	SqrtPriceX96 string `json:"sqrt_price_x96,omitempty"`
}
