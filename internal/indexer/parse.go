package indexer

import (
	"fmt"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
)

// ParseAddresses converts hex addresses, dropping blanks and duplicates.
func ParseAddresses(inputs []string) ([]common.Address, error) {
	return parseUnique(inputs, func(input string) (common.Address, error) {
		if !common.IsHexAddress(input) {
			return common.Address{}, fmt.Errorf("invalid address: %s", input)
		}
		return common.HexToAddress(input), nil
	})
}

// ParseTopic0 converts 32-byte hex topics, dropping blanks and duplicates.
func ParseTopic0(inputs []string) ([]common.Hash, error) {
	return parseUnique(inputs, func(input string) (common.Hash, error) {
		data, err := hexutil.Decode(input)
		if err != nil || len(data) != common.HashLength {
			return common.Hash{}, fmt.Errorf("invalid topic0: %s", input)
		}
		return common.BytesToHash(data), nil
	})
}

func parseUnique[T comparable](inputs []string, parse func(string) (T, error)) ([]T, error) {
	seen := make(map[T]struct{}, len(inputs))
	out := make([]T, 0, len(inputs))
	for _, input := range inputs {
		input = strings.TrimSpace(input)
		if input == "" {
			continue
		}
		v, err := parse(input)
		if err != nil {
			return nil, err
		}
		if _, ok := seen[v]; ok {
			continue
		}
		seen[v] = struct{}{}
		out = append(out, v)
	}
	return out, nil
}
