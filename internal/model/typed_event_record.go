package model

import (
	"encoding/json"
	"fmt"
	"math/big"
	"strings"

	"lpAnalytics/internal/amount"
)

// TypedEventRecord is the wire form of TypedEvent read back from feeds.
type TypedEventRecord struct {
	ChainID     uint64          `json:"chain_id"`
	BlockNumber uint64          `json:"block_number"`
	BlockHash   string          `json:"block_hash"`
	TxHash      string          `json:"tx_hash"`
	LogIndex    uint64          `json:"log_index"`
	Address     string          `json:"address"`
	PoolID      string          `json:"pool_id"`
	EventName   string          `json:"event_name"`
	Timestamp   uint64          `json:"timestamp"`
	Decoded     json.RawMessage `json:"decoded"`
	Raw         *RawLogRef      `json:"raw,omitempty"`
}

// EventID identifies a log as chain:tx:logIndex.
func EventID(chainID uint64, txHash string, logIndex uint64) string {
	return fmt.Sprintf("%d:%s:%d", chainID, strings.ToLower(txHash), logIndex)
}

// ID returns the record's event id.
func (r TypedEventRecord) ID() string {
	return EventID(r.ChainID, r.TxHash, r.LogIndex)
}

func (r TypedEventRecord) poolID() string {
	if r.PoolID != "" {
		return strings.ToLower(r.PoolID)
	}
	return strings.ToLower(r.Address)
}

// SwapEvent is a swap with parsed integer fields.
type SwapEvent struct {
	ID           string
	ChainID      uint64
	PoolID       string
	Amount0      *big.Int
	Amount1      *big.Int
	SqrtPriceX96 *big.Int
	Liquidity    *big.Int
	Fee          uint32
	Timestamp    int64
}

// PoolCreatedEvent announces a new pool.
type PoolCreatedEvent struct {
	ChainID     uint64
	PoolID      string
	Version     int
	Token0      string
	Token1      string
	FeeTier     uint32
	TickSpacing int32
	Timestamp   int64
	BlockNumber uint64
}

// SwapEvent parses a Swap record.
func (r TypedEventRecord) SwapEvent() (SwapEvent, error) {
	if r.EventName != EventSwap {
		return SwapEvent{}, fmt.Errorf("not a swap: %s", r.EventName)
	}
	var data SwapEventData
	if err := json.Unmarshal(r.Decoded, &data); err != nil {
		return SwapEvent{}, fmt.Errorf("decode swap: %w", err)
	}

	ev := SwapEvent{
		ID:        r.ID(),
		ChainID:   r.ChainID,
		PoolID:    r.poolID(),
		Fee:       data.Fee,
		Timestamp: int64(r.Timestamp),
	}
	var err error
	if ev.Amount0, err = amount.ParseRaw(data.Amount0); err != nil {
		return SwapEvent{}, fmt.Errorf("amount0: %w", err)
	}
	if ev.Amount1, err = amount.ParseRaw(data.Amount1); err != nil {
		return SwapEvent{}, fmt.Errorf("amount1: %w", err)
	}
	if ev.SqrtPriceX96, err = amount.ParseRaw(data.SqrtPriceX96); err != nil {
		return SwapEvent{}, fmt.Errorf("sqrt_price_x96: %w", err)
	}
	if ev.Liquidity, err = amount.ParseRaw(data.Liquidity); err != nil {
		return SwapEvent{}, fmt.Errorf("liquidity: %w", err)
	}
	if ev.SqrtPriceX96.Sign() < 0 || ev.Liquidity.Sign() < 0 {
		return SwapEvent{}, fmt.Errorf("negative sqrt price or liquidity")
	}
	return ev, nil
}

// PoolCreatedEvent parses a PoolCreated or Initialize record.
func (r TypedEventRecord) PoolCreatedEvent() (PoolCreatedEvent, error) {
	if r.EventName != EventPoolCreated && r.EventName != EventInitialize {
		return PoolCreatedEvent{}, fmt.Errorf("not a pool creation: %s", r.EventName)
	}
	var data PoolCreatedData
	if err := json.Unmarshal(r.Decoded, &data); err != nil {
		return PoolCreatedEvent{}, fmt.Errorf("decode pool created: %w", err)
	}

	poolID := strings.ToLower(data.Pool)
	if poolID == "" {
		poolID = r.poolID()
	}
	version := data.Version
	if version == 0 {
		version = VersionV3
		if r.EventName == EventInitialize {
			version = VersionV4
		}
	}
	if poolID == "" || data.Token0 == "" || data.Token1 == "" {
		return PoolCreatedEvent{}, fmt.Errorf("pool created record missing pool or tokens")
	}

	return PoolCreatedEvent{
		ChainID:     r.ChainID,
		PoolID:      poolID,
		Version:     version,
		Token0:      strings.ToLower(data.Token0),
		Token1:      strings.ToLower(data.Token1),
		FeeTier:     data.Fee,
		TickSpacing: data.TickSpacing,
		Timestamp:   int64(r.Timestamp),
		BlockNumber: r.BlockNumber,
	}, nil
}

