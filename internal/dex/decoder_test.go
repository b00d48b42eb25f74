package dex

import (
	"errors"
	"math/big"
	"strings"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"

	"lpAnalytics/internal/model"
)

func TestV3DecoderSwap(t *testing.T) {
	poolABI, err := V3PoolABI()
	if err != nil {
		t.Fatalf("abi parse: %v", err)
	}
	decoder, err := NewV3Decoder(DecoderConfig{})
	if err != nil {
		t.Fatalf("decoder: %v", err)
	}

	pool := common.HexToAddress("0x1111111111111111111111111111111111111111")
	sender := common.HexToAddress("0x2222222222222222222222222222222222222222")
	recipient := common.HexToAddress("0x3333333333333333333333333333333333333333")

	data, err := poolABI.Events["Swap"].Inputs.NonIndexed().Pack(
		big.NewInt(-1000),
		big.NewInt(2000),
		big.NewInt(123456789),
		big.NewInt(987654321),
		big.NewInt(-15),
	)
	if err != nil {
		t.Fatalf("pack swap: %v", err)
	}

	rec := buildLogRecord(pool, poolABI.Events["Swap"].ID, data, []common.Hash{
		topicFromAddress(sender),
		topicFromAddress(recipient),
	})
	event, err := decoder.Decode(rec)
	if err != nil {
		t.Fatalf("decode swap: %v", err)
	}

	swap, ok := event.Decoded.(model.SwapEventData)
	if !ok {
		t.Fatalf("decoded type mismatch")
	}
	if swap.Amount0 != "-1000" || swap.Amount1 != "2000" {
		t.Fatalf("amounts mismatch: %+v", swap)
	}
	if swap.Tick != -15 {
		t.Fatalf("tick mismatch: %d", swap.Tick)
	}
	if swap.Sender != sender.Hex() || swap.Recipient != recipient.Hex() {
		t.Fatalf("address mismatch")
	}
	if event.PoolID != strings.ToLower(pool.Hex()) || event.EventName != model.EventSwap {
		t.Fatalf("event mismatch: %+v", event)
	}
}

func TestV3DecoderPoolCreated(t *testing.T) {
	factoryABI, err := V3FactoryABI()
	if err != nil {
		t.Fatalf("abi parse: %v", err)
	}
	decoder, err := NewV3Decoder(DecoderConfig{})
	if err != nil {
		t.Fatalf("decoder: %v", err)
	}

	factory := common.HexToAddress("0x1F98431c8aD98523631AE4a59f267346ea31F984")
	token0 := common.HexToAddress("0xA0b86991c6218b36c1d19D4a2e9Eb0cE3606eB48")
	token1 := common.HexToAddress("0xC02aaA39b223FE8D0A0e5C4F27eAD9083C756Cc2")
	pool := common.HexToAddress("0x88e6A0c2dDD26FEEb64F039a2c41296FcB3f5640")

	event := factoryABI.Events["PoolCreated"]
	data, err := event.Inputs.NonIndexed().Pack(big.NewInt(10), pool)
	if err != nil {
		t.Fatalf("pack: %v", err)
	}
	rec := buildLogRecord(factory, event.ID, data, []common.Hash{
		topicFromAddress(token0),
		topicFromAddress(token1),
		common.BigToHash(big.NewInt(500)),
	})

	typed, err := decoder.Decode(rec)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	created, ok := typed.Decoded.(model.PoolCreatedData)
	if !ok {
		t.Fatalf("decoded type mismatch")
	}
	if created.Pool != strings.ToLower(pool.Hex()) || typed.PoolID != created.Pool {
		t.Fatalf("pool mismatch: %+v", created)
	}
	if created.Token0 != strings.ToLower(token0.Hex()) || created.Token1 != strings.ToLower(token1.Hex()) {
		t.Fatalf("tokens mismatch: %+v", created)
	}
	if created.Fee != 500 || created.TickSpacing != 10 || created.Version != model.VersionV3 {
		t.Fatalf("params mismatch: %+v", created)
	}
}

func TestV4DecoderInitializeAndSwap(t *testing.T) {
	managerABI, err := V4PoolManagerABI()
	if err != nil {
		t.Fatalf("abi parse: %v", err)
	}
	decoder, err := NewV4Decoder(DecoderConfig{})
	if err != nil {
		t.Fatalf("decoder: %v", err)
	}

	manager := common.HexToAddress("0x000000000004444c5dc75cB358380D2e3dE08A90")
	poolID := common.HexToHash("0x21c67e77068de97969ba93d4aab21826d33ca12bb9f565d8496e8fda8a82ca27")
	usdc := common.HexToAddress("0xA0b86991c6218b36c1d19D4a2e9Eb0cE3606eB48")
	hooks := common.HexToAddress("0x0000000000000000000000000000000000000000")

	initEvent := managerABI.Events["Initialize"]
	initData, err := initEvent.Inputs.NonIndexed().Pack(
		big.NewInt(DynamicFeeFlag), big.NewInt(60), hooks, new(big.Int).Lsh(big.NewInt(1), 96), big.NewInt(0),
	)
	if err != nil {
		t.Fatalf("pack initialize: %v", err)
	}
	initRec := buildLogRecord(manager, initEvent.ID, initData, []common.Hash{
		poolID,
		topicFromAddress(common.Address{}),
		topicFromAddress(usdc),
	})
	typed, err := decoder.Decode(initRec)
	if err != nil {
		t.Fatalf("decode initialize: %v", err)
	}
	created := typed.Decoded.(model.PoolCreatedData)
	if created.Pool != strings.ToLower(poolID.Hex()) || created.Version != model.VersionV4 {
		t.Fatalf("pool mismatch: %+v", created)
	}
	if created.Fee != 0 {
		t.Fatalf("dynamic fee flag should clear the tier, got %d", created.Fee)
	}
	if created.Token0 != "0x0000000000000000000000000000000000000000" || created.TickSpacing != 60 {
		t.Fatalf("params mismatch: %+v", created)
	}

	swapEvent := managerABI.Events["Swap"]
	swapData, err := swapEvent.Inputs.NonIndexed().Pack(
		big.NewInt(-1000000000000000000), big.NewInt(2500000000), big.NewInt(123), big.NewInt(456), big.NewInt(-200), big.NewInt(3000),
	)
	if err != nil {
		t.Fatalf("pack swap: %v", err)
	}
	swapRec := buildLogRecord(manager, swapEvent.ID, swapData, []common.Hash{
		poolID,
		topicFromAddress(common.HexToAddress("0x66a9893cc07d91d95644aedd05d03f95e1dba8af")),
	})
	typed, err = decoder.Decode(swapRec)
	if err != nil {
		t.Fatalf("decode swap: %v", err)
	}
	swap := typed.Decoded.(model.SwapEventData)
	if swap.Amount0 != "1000000000000000000" || swap.Amount1 != "-2500000000" {
		t.Fatalf("amounts not flipped to pool side: %+v", swap)
	}
	if swap.Fee != 3000 || swap.Tick != -200 {
		t.Fatalf("swap params mismatch: %+v", swap)
	}
	if typed.PoolID != strings.ToLower(poolID.Hex()) {
		t.Fatalf("pool id mismatch: %s", typed.PoolID)
	}
}

func TestRegistryDispatch(t *testing.T) {
	v3, err := NewV3Decoder(DecoderConfig{})
	if err != nil {
		t.Fatalf("v3: %v", err)
	}
	v4, err := NewV4Decoder(DecoderConfig{})
	if err != nil {
		t.Fatalf("v4: %v", err)
	}
	reg := NewRegistry(v3, v4)

	if got := len(reg.Topics()); got != 4 {
		t.Fatalf("expected 4 topics, got %d", got)
	}

	managerABI, _ := V4PoolManagerABI()
	if !reg.CanDecode(managerABI.Events["Swap"].ID.Hex()) {
		t.Fatalf("v4 swap topic not recognized")
	}

	_, err = reg.Decode(model.LogRecord{Topics: []string{"0xdeadbeef"}})
	if !errors.Is(err, ErrUnsupported) {
		t.Fatalf("expected ErrUnsupported, got %v", err)
	}
}

func TestV3DecoderRejectsBadTopics(t *testing.T) {
	poolABI, _ := V3PoolABI()
	decoder, err := NewV3Decoder(DecoderConfig{})
	if err != nil {
		t.Fatalf("decoder: %v", err)
	}
	rec := buildLogRecord(common.HexToAddress("0x1111111111111111111111111111111111111111"), poolABI.Events["Swap"].ID, nil, nil)
	if _, err := decoder.Decode(rec); err == nil {
		t.Fatalf("expected topic count error")
	}
}

func TestDecoderTopicOverride(t *testing.T) {
	fork := "0x19b47279256b2a23a1665c810c8d55a1758940ee09377d4f8d26497a3577dc83"
	decoder, err := NewV3Decoder(DecoderConfig{Topic0Map: map[string]string{fork: "swap"}})
	if err != nil {
		t.Fatalf("decoder: %v", err)
	}
	if !decoder.CanDecode(strings.ToUpper(fork)) {
		t.Fatalf("override topic not registered")
	}
	if _, err := NewV3Decoder(DecoderConfig{Topic0Map: map[string]string{fork: "Mint"}}); err == nil {
		t.Fatalf("expected unsupported event name error")
	}
}

func buildLogRecord(addr common.Address, topic0 common.Hash, data []byte, indexed []common.Hash) model.LogRecord {
	topics := make([]string, 0, len(indexed)+1)
	topics = append(topics, topic0.Hex())
	for _, topic := range indexed {
		topics = append(topics, topic.Hex())
	}

	return model.LogRecord{
		ChainID:     1,
		BlockNumber: 12345,
		BlockHash:   "0xabc",
		TxHash:      "0xdef",
		LogIndex:    1,
		Address:     addr.Hex(),
		Topics:      topics,
		Data:        hexutil.Encode(data),
		Timestamp:   1700000000,
	}
}

func topicFromAddress(addr common.Address) common.Hash {
	return common.BytesToHash(addr.Bytes())
}
