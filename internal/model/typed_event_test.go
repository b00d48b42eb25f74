package model

import (
	"encoding/json"
	"testing"
)

func TestSwapEventFromRecord(t *testing.T) {
	payload := SwapEventData{
		Sender:       "0x1111111111111111111111111111111111111111",
		Amount0:      "-1000000000000000000",
		Amount1:      "2500000000",
		SqrtPriceX96: "3961408125713216879677197",
		Liquidity:    "5000000000000000000",
		Tick:         -197000,
	}
	decoded, err := json.Marshal(payload)
	if err != nil {
		t.Fatalf("marshal failed: %v", err)
	}

	var generic map[string]interface{}
	if err := json.Unmarshal(decoded, &generic); err != nil {
		t.Fatalf("unmarshal failed: %v", err)
	}
	if _, ok := generic["amount0"].(string); !ok {
		t.Fatalf("amount0 should be string")
	}
	if _, ok := generic["sqrt_price_x96"].(string); !ok {
		t.Fatalf("sqrt_price_x96 should be string")
	}

	rec := TypedEventRecord{
		ChainID:   1,
		TxHash:    "0xABC",
		LogIndex:  4,
		Address:   "0x88E6A0c2dDD26FEEb64F039a2c41296FcB3f5640",
		EventName: EventSwap,
		Timestamp: 1700000000,
		Decoded:   decoded,
	}
	ev, err := rec.SwapEvent()
	if err != nil {
		t.Fatalf("swap event: %v", err)
	}
	if ev.PoolID != "0x88e6a0c2ddd26feeb64f039a2c41296fcb3f5640" {
		t.Fatalf("pool id not lower-cased: %s", ev.PoolID)
	}
	if ev.ID != "1:0xabc:4" {
		t.Fatalf("id mismatch: %s", ev.ID)
	}
	if ev.Amount0.String() != "-1000000000000000000" || ev.Amount1.String() != "2500000000" {
		t.Fatalf("amounts mismatch: %s %s", ev.Amount0, ev.Amount1)
	}
	if ev.Timestamp != 1700000000 {
		t.Fatalf("timestamp mismatch: %d", ev.Timestamp)
	}

	rec.PoolID = "0xPOOLID"
	ev, err = rec.SwapEvent()
	if err != nil || ev.PoolID != "0xpoolid" {
		t.Fatalf("explicit pool id not used: %v %s", err, ev.PoolID)
	}
}

func TestSwapEventRejectsBadInput(t *testing.T) {
	rec := TypedEventRecord{EventName: EventSwap, Decoded: json.RawMessage(`{"amount0":"1.5"}`)}
	if _, err := rec.SwapEvent(); err == nil {
		t.Fatalf("expected error for non-integer amount")
	}

	rec.Decoded = json.RawMessage(`{"sqrt_price_x96":"-1"}`)
	if _, err := rec.SwapEvent(); err == nil {
		t.Fatalf("expected error for negative sqrt price")
	}

	rec.EventName = EventPoolCreated
	if _, err := rec.SwapEvent(); err == nil {
		t.Fatalf("expected error for wrong event name")
	}
}

func TestPoolCreatedEventFromRecord(t *testing.T) {
	rec := TypedEventRecord{
		ChainID:     1,
		BlockNumber: 12376729,
		Address:     "0x1F98431c8aD98523631AE4a59f267346ea31F984",
		EventName:   EventPoolCreated,
		Timestamp:   1620250931,
		Decoded: json.RawMessage(`{"pool":"0x88E6A0c2dDD26FEEb64F039a2c41296FcB3f5640",` +
			`"token0":"0xA0b86991c6218b36c1d19D4a2e9Eb0cE3606eB48",` +
			`"token1":"0xC02aaA39b223FE8D0A0e5C4F27eAD9083C756Cc2","fee":500,"tick_spacing":10}`),
	}
	ev, err := rec.PoolCreatedEvent()
	if err != nil {
		t.Fatalf("pool created: %v", err)
	}
	if ev.PoolID != "0x88e6a0c2ddd26feeb64f039a2c41296fcb3f5640" || ev.Version != VersionV3 {
		t.Fatalf("unexpected pool: %+v", ev)
	}
	if ev.Token0 != "0xa0b86991c6218b36c1d19d4a2e9eb0ce3606eb48" || ev.FeeTier != 500 || ev.TickSpacing != 10 {
		t.Fatalf("unexpected fields: %+v", ev)
	}

	rec.EventName = EventInitialize
	rec.PoolID = "0xabcdef"
	rec.Decoded = json.RawMessage(`{"token0":"0x0000000000000000000000000000000000000000","token1":"0xa0b86991c6218b36c1d19d4a2e9eb0ce3606eb48","fee":3000,"tick_spacing":60}`)
	ev, err = rec.PoolCreatedEvent()
	if err != nil {
		t.Fatalf("initialize: %v", err)
	}
	if ev.Version != VersionV4 || ev.PoolID != "0xabcdef" {
		t.Fatalf("unexpected v4 pool: %+v", ev)
	}

	rec.Decoded = json.RawMessage(`{"token0":""}`)
	if _, err := rec.PoolCreatedEvent(); err == nil {
		t.Fatalf("expected error for missing tokens")
	}
}

func TestTypedEventRecordRoundTrip(t *testing.T) {
	ev := &TypedEvent{
		ChainID:   1,
		TxHash:    "0xabc",
		LogIndex:  4,
		PoolID:    "0xpool",
		EventName: EventSwap,
		Timestamp: 1700000000,
		Decoded: SwapEventData{
			Amount0:      "100",
			Amount1:      "-250",
			SqrtPriceX96: "79228162514264337593543950336",
			Liquidity:    "10",
			Fee:          500,
		},
	}

	rec, err := ev.Record()
	if err != nil {
		t.Fatalf("record: %v", err)
	}
	swap, err := rec.SwapEvent()
	if err != nil {
		t.Fatalf("swap: %v", err)
	}
	if swap.PoolID != "0xpool" || swap.Amount1.String() != "-250" || swap.Fee != 500 {
		t.Fatalf("unexpected swap: %+v", swap)
	}

	var nilEvent *TypedEvent
	if _, err := nilEvent.Record(); err == nil {
		t.Fatalf("expected error for nil event")
	}
}
