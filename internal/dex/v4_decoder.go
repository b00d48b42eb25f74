package dex

import (
	"fmt"
	"strings"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"

	"lpAnalytics/internal/model"
)

// DynamicFeeFlag marks V4 pools whose LP fee is set per swap by hooks.
const DynamicFeeFlag = 0x800000

// V4Decoder decodes PoolManager Initialize and Swap logs. Pools are keyed by
// their 32-byte pool id rather than an address.
type V4Decoder struct {
	managerABI  abi.ABI
	topicToName map[string]string
}

func NewV4Decoder(cfg DecoderConfig) (*V4Decoder, error) {
	managerABI, err := V4PoolManagerABI()
	if err != nil {
		return nil, err
	}
	events := map[string]abi.Event{
		model.EventInitialize: managerABI.Events["Initialize"],
		model.EventSwap:       managerABI.Events["Swap"],
	}
	topicToName, err := topicMap(events, normalizeNames(cfg.Topic0Map))
	if err != nil {
		return nil, err
	}
	return &V4Decoder{managerABI: managerABI, topicToName: topicToName}, nil
}

func (d *V4Decoder) CanDecode(topic0 string) bool {
	if topic0 == "" {
		return false
	}
	_, ok := d.topicToName[strings.ToLower(topic0)]
	return ok
}

func (d *V4Decoder) Topics() []common.Hash {
	return topicHashes(d.topicToName)
}

func (d *V4Decoder) Decode(log model.LogRecord) (*model.TypedEvent, error) {
	if len(log.Topics) < 2 {
		return nil, fmt.Errorf("missing topics")
	}
	name, ok := d.topicToName[strings.ToLower(log.Topics[0])]
	if !ok {
		return nil, fmt.Errorf("%w: topic0 %s", ErrUnsupported, log.Topics[0])
	}

	switch name {
	case model.EventInitialize:
		decoded, err := d.decodeInitialize(log)
		if err != nil {
			return nil, err
		}
		return buildTypedEvent(log, name, decoded.Pool, decoded), nil
	case model.EventSwap:
		poolID, decoded, err := d.decodeSwap(log)
		if err != nil {
			return nil, err
		}
		return buildTypedEvent(log, name, poolID, decoded), nil
	default:
		return nil, fmt.Errorf("unsupported event name: %s", name)
	}
}

func (d *V4Decoder) indexed(event abi.Event, topics []string) (map[string]interface{}, error) {
	hashes, err := parseIndexedTopics(event, topics)
	if err != nil {
		return nil, err
	}
	out := make(map[string]interface{})
	if err := abi.ParseTopicsIntoMap(out, indexedArguments(event.Inputs), hashes); err != nil {
		return nil, fmt.Errorf("parse topics: %w", err)
	}
	return out, nil
}

func poolIDHex(v interface{}) (string, error) {
	id, ok := v.([32]byte)
	if !ok {
		return "", fmt.Errorf("unsupported pool id type %T", v)
	}
	return strings.ToLower(hexutil.Encode(id[:])), nil
}

func (d *V4Decoder) decodeInitialize(log model.LogRecord) (model.PoolCreatedData, error) {
	event := d.managerABI.Events["Initialize"]
	indexed, err := d.indexed(event, log.Topics)
	if err != nil {
		return model.PoolCreatedData{}, err
	}
	poolID, err := poolIDHex(indexed["id"])
	if err != nil {
		return model.PoolCreatedData{}, err
	}
	currency0, err := asAddress(indexed["currency0"])
	if err != nil {
		return model.PoolCreatedData{}, fmt.Errorf("currency0: %w", err)
	}
	currency1, err := asAddress(indexed["currency1"])
	if err != nil {
		return model.PoolCreatedData{}, fmt.Errorf("currency1: %w", err)
	}

	values, err := unpackNonIndexed(event, log.Data, 5)
	if err != nil {
		return model.PoolCreatedData{}, err
	}
	feeInt, err := asBigInt(values[0])
	if err != nil {
		return model.PoolCreatedData{}, err
	}
	fee, err := uint24FromBig(feeInt)
	if err != nil {
		return model.PoolCreatedData{}, err
	}
	if fee&DynamicFeeFlag != 0 {
		fee = 0
	}
	spacingInt, err := asBigInt(values[1])
	if err != nil {
		return model.PoolCreatedData{}, err
	}
	spacing, err := int24FromBig(spacingInt)
	if err != nil {
		return model.PoolCreatedData{}, err
	}
	hooks, err := asAddress(values[2])
	if err != nil {
		return model.PoolCreatedData{}, fmt.Errorf("hooks: %w", err)
	}
	sqrtPrice, err := asBigInt(values[3])
	if err != nil {
		return model.PoolCreatedData{}, err
	}

	return model.PoolCreatedData{
		Pool:         poolID,
		Version:      model.VersionV4,
		Token0:       strings.ToLower(currency0.Hex()),
		Token1:       strings.ToLower(currency1.Hex()),
		Fee:          fee,
		TickSpacing:  spacing,
		Hooks:        strings.ToLower(hooks.Hex()),
		SqrtPriceX96: sqrtPrice.String(),
	}, nil
}

// decodeSwap flips the amount signs: V4 reports deltas from the swapper's
// side, the rest of the pipeline uses the pool's side.
func (d *V4Decoder) decodeSwap(log model.LogRecord) (string, model.SwapEventData, error) {
	event := d.managerABI.Events["Swap"]
	indexed, err := d.indexed(event, log.Topics)
	if err != nil {
		return "", model.SwapEventData{}, err
	}
	poolID, err := poolIDHex(indexed["id"])
	if err != nil {
		return "", model.SwapEventData{}, err
	}
	sender, err := asAddress(indexed["sender"])
	if err != nil {
		return "", model.SwapEventData{}, fmt.Errorf("sender: %w", err)
	}

	values, err := unpackNonIndexed(event, log.Data, 6)
	if err != nil {
		return "", model.SwapEventData{}, err
	}
	ints, err := bigInts(values)
	if err != nil {
		return "", model.SwapEventData{}, err
	}
	tick, err := int24FromBig(ints[4])
	if err != nil {
		return "", model.SwapEventData{}, err
	}
	fee, err := uint24FromBig(ints[5])
	if err != nil {
		return "", model.SwapEventData{}, err
	}

	return poolID, model.SwapEventData{
		Sender:       sender.Hex(),
		Amount0:      ints[0].Neg(ints[0]).String(),
		Amount1:      ints[1].Neg(ints[1]).String(),
		SqrtPriceX96: ints[2].String(),
		Liquidity:    ints[3].String(),
		Tick:         tick,
		Fee:          fee,
	}, nil
}
