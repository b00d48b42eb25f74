package model

import (
	"encoding/json"
	"errors"
	"fmt"
)

// TypedEvent is a decoded pool event. PoolID is the lower-cased pool
// identifier the event belongs to; Decoded holds one of the *Data payloads.
type TypedEvent struct {
	ChainID     uint64      `json:"chain_id"`
	BlockNumber uint64      `json:"block_number"`
	BlockHash   string      `json:"block_hash"`
	TxHash      string      `json:"tx_hash"`
	LogIndex    uint64      `json:"log_index"`
	Address     string      `json:"address"`
	PoolID      string      `json:"pool_id"`
	EventName   string      `json:"event_name"`
	Timestamp   uint64      `json:"timestamp"`
	Decoded     interface{} `json:"decoded"`
	Raw         *RawLogRef  `json:"raw,omitempty"`
}

// RawLogRef points back at the undecoded log.
type RawLogRef struct {
	Topic0 string `json:"topic0"`
	Data   string `json:"data"`
}

// Record returns the wire form of the event, as feeds deliver it.
func (e *TypedEvent) Record() (TypedEventRecord, error) {
	if e == nil {
		return TypedEventRecord{}, errors.New("nil event")
	}
	decoded, err := json.Marshal(e.Decoded)
	if err != nil {
		return TypedEventRecord{}, fmt.Errorf("marshal %s payload: %w", e.EventName, err)
	}
	return TypedEventRecord{
		ChainID:     e.ChainID,
		BlockNumber: e.BlockNumber,
		BlockHash:   e.BlockHash,
		TxHash:      e.TxHash,
		LogIndex:    e.LogIndex,
		Address:     e.Address,
		PoolID:      e.PoolID,
		EventName:   e.EventName,
		Timestamp:   e.Timestamp,
		Decoded:     decoded,
		Raw:         e.Raw,
	}, nil
}
