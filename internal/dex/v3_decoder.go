package dex

import (
	"fmt"
	"strings"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"

	"lpAnalytics/internal/model"
)

// DecoderConfig configures decoder behavior.
type DecoderConfig struct {
	// Topic0Map maps extra topic0 values (forks with the same event layout)
	// to event names.
	Topic0Map map[string]string
}

// V3Decoder decodes factory PoolCreated and pool Swap logs of Uniswap V3
// style deployments.
type V3Decoder struct {
	factoryABI  abi.ABI
	poolABI     abi.ABI
	topicToName map[string]string
}

func NewV3Decoder(cfg DecoderConfig) (*V3Decoder, error) {
	factoryABI, err := V3FactoryABI()
	if err != nil {
		return nil, err
	}
	poolABI, err := V3PoolABI()
	if err != nil {
		return nil, err
	}
	events := map[string]abi.Event{
		model.EventPoolCreated: factoryABI.Events["PoolCreated"],
		model.EventSwap:        poolABI.Events["Swap"],
	}
	topicToName, err := topicMap(events, normalizeNames(cfg.Topic0Map))
	if err != nil {
		return nil, err
	}
	return &V3Decoder{factoryABI: factoryABI, poolABI: poolABI, topicToName: topicToName}, nil
}

func (d *V3Decoder) CanDecode(topic0 string) bool {
	if topic0 == "" {
		return false
	}
	_, ok := d.topicToName[strings.ToLower(topic0)]
	return ok
}

func (d *V3Decoder) Topics() []common.Hash {
	return topicHashes(d.topicToName)
}

// Decode converts a V3 LogRecord into a TypedEvent.
func (d *V3Decoder) Decode(log model.LogRecord) (*model.TypedEvent, error) {
	if len(log.Topics) == 0 {
		return nil, fmt.Errorf("missing topics")
	}
	name, ok := d.topicToName[strings.ToLower(log.Topics[0])]
	if !ok {
		return nil, fmt.Errorf("%w: topic0 %s", ErrUnsupported, log.Topics[0])
	}
	if !common.IsHexAddress(log.Address) {
		return nil, fmt.Errorf("invalid log address: %s", log.Address)
	}

	switch name {
	case model.EventPoolCreated:
		decoded, err := d.decodePoolCreated(log)
		if err != nil {
			return nil, err
		}
		return buildTypedEvent(log, name, decoded.Pool, decoded), nil
	case model.EventSwap:
		decoded, err := d.decodeSwap(log)
		if err != nil {
			return nil, err
		}
		return buildTypedEvent(log, name, log.Address, decoded), nil
	default:
		return nil, fmt.Errorf("unsupported event name: %s", name)
	}
}

func normalizeNames(m map[string]string) map[string]string {
	out := make(map[string]string, len(m))
	for topic, name := range m {
		switch strings.ToLower(strings.TrimSpace(name)) {
		case "swap":
			out[topic] = model.EventSwap
		case "poolcreated", "pool_created":
			out[topic] = model.EventPoolCreated
		default:
			out[topic] = name
		}
	}
	return out
}

func (d *V3Decoder) decodePoolCreated(log model.LogRecord) (model.PoolCreatedData, error) {
	event := d.factoryABI.Events["PoolCreated"]
	topics, err := parseIndexedTopics(event, log.Topics)
	if err != nil {
		return model.PoolCreatedData{}, err
	}
	indexed := make(map[string]interface{})
	if err := abi.ParseTopicsIntoMap(indexed, indexedArguments(event.Inputs), topics); err != nil {
		return model.PoolCreatedData{}, fmt.Errorf("parse topics: %w", err)
	}
	token0, err := asAddress(indexed["token0"])
	if err != nil {
		return model.PoolCreatedData{}, fmt.Errorf("token0: %w", err)
	}
	token1, err := asAddress(indexed["token1"])
	if err != nil {
		return model.PoolCreatedData{}, fmt.Errorf("token1: %w", err)
	}
	feeInt, err := asBigInt(indexed["fee"])
	if err != nil {
		return model.PoolCreatedData{}, fmt.Errorf("fee: %w", err)
	}
	fee, err := uint24FromBig(feeInt)
	if err != nil {
		return model.PoolCreatedData{}, err
	}

	values, err := unpackNonIndexed(event, log.Data, 2)
	if err != nil {
		return model.PoolCreatedData{}, err
	}
	spacingInt, err := asBigInt(values[0])
	if err != nil {
		return model.PoolCreatedData{}, err
	}
	spacing, err := int24FromBig(spacingInt)
	if err != nil {
		return model.PoolCreatedData{}, err
	}
	pool, err := asAddress(values[1])
	if err != nil {
		return model.PoolCreatedData{}, fmt.Errorf("pool: %w", err)
	}

	return model.PoolCreatedData{
		Pool:        strings.ToLower(pool.Hex()),
		Version:     model.VersionV3,
		Token0:      strings.ToLower(token0.Hex()),
		Token1:      strings.ToLower(token1.Hex()),
		Fee:         fee,
		TickSpacing: spacing,
	}, nil
}

func (d *V3Decoder) decodeSwap(log model.LogRecord) (model.SwapEventData, error) {
	event := d.poolABI.Events["Swap"]
	topics, err := parseIndexedTopics(event, log.Topics)
	if err != nil {
		return model.SwapEventData{}, err
	}
	var indexed struct {
		Sender    common.Address
		Recipient common.Address
	}
	if err := abi.ParseTopics(&indexed, indexedArguments(event.Inputs), topics); err != nil {
		return model.SwapEventData{}, fmt.Errorf("parse topics: %w", err)
	}

	values, err := unpackNonIndexed(event, log.Data, 5)
	if err != nil {
		return model.SwapEventData{}, err
	}
	ints, err := bigInts(values)
	if err != nil {
		return model.SwapEventData{}, err
	}
	tick, err := int24FromBig(ints[4])
	if err != nil {
		return model.SwapEventData{}, err
	}

	return model.SwapEventData{
		Sender:       indexed.Sender.Hex(),
		Recipient:    indexed.Recipient.Hex(),
		Amount0:      ints[0].String(),
		Amount1:      ints[1].String(),
		SqrtPriceX96: ints[2].String(),
		Liquidity:    ints[3].String(),
		Tick:         tick,
	}, nil
}
