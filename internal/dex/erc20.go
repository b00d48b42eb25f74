package dex

import (
	"bytes"
	"context"
	"fmt"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"go.uber.org/zap"

	"lpAnalytics/internal/amount"
	"lpAnalytics/internal/model"
)

// ContractCaller performs eth_call. Satisfied by *chain.Client.
type ContractCaller interface {
	CallContract(ctx context.Context, msg ethereum.CallMsg, blockNumber *big.Int) ([]byte, error)
}

// ERC20Reader reads token metadata and balances over RPC.
type ERC20Reader struct {
	caller ContractCaller
	logger *zap.Logger
}

func NewERC20Reader(caller ContractCaller, logger *zap.Logger) *ERC20Reader {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ERC20Reader{caller: caller, logger: logger}
}

func (r *ERC20Reader) call(ctx context.Context, to common.Address, parsed abi.ABI, method string, args ...interface{}) ([]interface{}, error) {
	data, err := parsed.Pack(method, args...)
	if err != nil {
		return nil, fmt.Errorf("pack %s: %w", method, err)
	}
	resp, err := r.caller.CallContract(ctx, ethereum.CallMsg{To: &to, Data: data}, nil)
	if err != nil {
		return nil, fmt.Errorf("call %s: %w", method, err)
	}
	values, err := parsed.Unpack(method, resp)
	if err != nil {
		return nil, fmt.Errorf("unpack %s: %w", method, err)
	}
	if len(values) == 0 {
		return nil, fmt.Errorf("%s returned nothing", method)
	}
	return values, nil
}

// TokenMeta loads decimals, symbol and name. The zero address stands for the
// native currency in V4 pools and resolves to ETH with 18 decimals. Symbol
// and name are best effort; a failed decimals call is an error.
func (r *ERC20Reader) TokenMeta(ctx context.Context, token common.Address) (model.TokenMeta, error) {
	meta := model.TokenMeta{Address: strings.ToLower(token.Hex()), Decimals: amount.DefaultDecimals}
	if token == (common.Address{}) {
		meta.Symbol = "ETH"
		meta.Name = "Ether"
		return meta, nil
	}

	stringABI, bytes32ABI, err := erc20ABIs()
	if err != nil {
		return meta, fmt.Errorf("parse erc20 abi: %w", err)
	}

	values, err := r.call(ctx, token, stringABI, "decimals")
	if err != nil {
		return meta, err
	}
	decimals, err := asUint8(values[0])
	if err != nil {
		return meta, err
	}
	meta.Decimals = decimals

	meta.Symbol = r.text(ctx, token, stringABI, bytes32ABI, "symbol")
	meta.Name = r.text(ctx, token, stringABI, bytes32ABI, "name")
	return meta, nil
}

func (r *ERC20Reader) text(ctx context.Context, token common.Address, stringABI, bytes32ABI abi.ABI, method string) string {
	if values, err := r.call(ctx, token, stringABI, method); err == nil {
		if s, ok := values[0].(string); ok {
			return s
		}
	}
	values, err := r.call(ctx, token, bytes32ABI, method)
	if err != nil {
		r.logger.Debug("erc20 text call failed", zap.String("token", token.Hex()), zap.String("method", method), zap.Error(err))
		return ""
	}
	s, _ := bytes32ToString(values[0])
	return s
}

// BalanceOf returns owner's raw balance of token at the latest block.
func (r *ERC20Reader) BalanceOf(ctx context.Context, token, owner common.Address) (*big.Int, error) {
	stringABI, _, err := erc20ABIs()
	if err != nil {
		return nil, fmt.Errorf("parse erc20 abi: %w", err)
	}
	values, err := r.call(ctx, token, stringABI, "balanceOf", owner)
	if err != nil {
		return nil, err
	}
	return asBigInt(values[0])
}

func bytes32ToString(value interface{}) (string, bool) {
	switch v := value.(type) {
	case [32]byte:
		return string(bytes.TrimRight(v[:], "\x00")), true
	case []byte:
		return string(bytes.TrimRight(v, "\x00")), true
	default:
		return "", false
	}
}
