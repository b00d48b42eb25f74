// Package rules loads the per-chain pool selection file: which chains are
// indexed, which tokens count as USD stables, and which token pairs and fee
// tiers are tracked.
package rules

import (
	"fmt"
	"os"
	"sort"
	"strconv"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"gopkg.in/yaml.v3"
)

// PairRule matches pools whose tokens fall one in GroupA and one in GroupB.
type PairRule struct {
	Name     string   `yaml:"name"`
	GroupA   []string `yaml:"groupA"`
	GroupB   []string `yaml:"groupB"`
	FeeTiers []uint32 `yaml:"fee_tiers"`
}

// Chain holds the rules for a single chain.
type Chain struct {
	ID       uint64     `yaml:"-"`
	Versions []int      `yaml:"versions"`
	Stables  []string   `yaml:"stables"`
	Tokens   []string   `yaml:"tokens"`
	Rules    []PairRule `yaml:"rules"`
}

// Set is the parsed rules file keyed by chain id.
type Set struct {
	chains map[uint64]Chain
}

var mainnetStables = []string{
	"0xa0b86991c6218b36c1d19d4a2e9eb0ce3606eb48", // USDC
	"0xdac17f958d2ee523a2206206994597c13d831ec7", // USDT
	"0x6b175474e89094c44da98b954eedeac495271d0f", // DAI
}

// DefaultStables returns the built-in stable list for a chain.
func DefaultStables(chainID uint64) []string {
	if chainID == 1 {
		return append([]string(nil), mainnetStables...)
	}
	return nil
}

// Default returns a set that tracks every pool on the given chain.
func Default(chainID uint64) *Set {
	return &Set{chains: map[uint64]Chain{
		chainID: {ID: chainID, Stables: DefaultStables(chainID)},
	}}
}

// Load reads and validates a rules file.
func Load(path string) (*Set, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read rules: %w", err)
	}
	return Parse(data)
}

// Parse validates rules from YAML bytes.
func Parse(data []byte) (*Set, error) {
	var raw map[string]Chain
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("parse rules: %w", err)
	}

	set := &Set{chains: make(map[uint64]Chain, len(raw))}
	for key, chain := range raw {
		id, err := strconv.ParseUint(strings.TrimSpace(key), 10, 64)
		if err != nil {
			return nil, fmt.Errorf("invalid chain id %q: %w", key, err)
		}
		chain.ID = id
		if chain.Stables, err = normalizeAddresses(chain.Stables); err != nil {
			return nil, fmt.Errorf("chain %d stables: %w", id, err)
		}
		if len(chain.Stables) == 0 {
			chain.Stables = DefaultStables(id)
		}
		if chain.Tokens, err = normalizeAddresses(chain.Tokens); err != nil {
			return nil, fmt.Errorf("chain %d tokens: %w", id, err)
		}
		for i, rule := range chain.Rules {
			if rule.GroupA, err = normalizeAddresses(rule.GroupA); err != nil {
				return nil, fmt.Errorf("chain %d rule %d groupA: %w", id, i, err)
			}
			if rule.GroupB, err = normalizeAddresses(rule.GroupB); err != nil {
				return nil, fmt.Errorf("chain %d rule %d groupB: %w", id, i, err)
			}
			if len(rule.GroupA) == 0 || len(rule.GroupB) == 0 {
				return nil, fmt.Errorf("chain %d rule %d: groupA and groupB are required", id, i)
			}
			chain.Rules[i] = rule
		}
		for _, v := range chain.Versions {
			if v != 3 && v != 4 {
				return nil, fmt.Errorf("chain %d: unsupported version %d", id, v)
			}
		}
		set.chains[id] = chain
	}
	return set, nil
}

// Chain returns the rules for a chain id.
func (s *Set) Chain(chainID uint64) (Chain, bool) {
	if s == nil {
		return Chain{}, false
	}
	chain, ok := s.chains[chainID]
	return chain, ok
}

// ChainIDs lists configured chains in ascending order.
func (s *Set) ChainIDs() []uint64 {
	if s == nil {
		return nil
	}
	out := make([]uint64, 0, len(s.chains))
	for id := range s.chains {
		out = append(out, id)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// Allow reports whether a pool should be tracked. A chain without pair rules
// accepts any pair that passes the version and token filters.
func (c Chain) Allow(version int, token0, token1 string, fee uint32) bool {
	if len(c.Versions) > 0 && !containsInt(c.Versions, version) {
		return false
	}
	t0 := strings.ToLower(token0)
	t1 := strings.ToLower(token1)
	if len(c.Tokens) > 0 && !(contains(c.Tokens, t0) && contains(c.Tokens, t1)) {
		return false
	}
	if len(c.Rules) == 0 {
		return true
	}
	for _, rule := range c.Rules {
		if rule.match(t0, t1, fee) {
			return true
		}
	}
	return false
}

func (r PairRule) match(t0, t1 string, fee uint32) bool {
	paired := (contains(r.GroupA, t0) && contains(r.GroupB, t1)) ||
		(contains(r.GroupB, t0) && contains(r.GroupA, t1))
	if !paired {
		return false
	}
	if len(r.FeeTiers) == 0 {
		return true
	}
	for _, tier := range r.FeeTiers {
		if tier == fee {
			return true
		}
	}
	return false
}

func normalizeAddresses(values []string) ([]string, error) {
	out := make([]string, 0, len(values))
	for _, v := range values {
		v = strings.TrimSpace(v)
		if v == "" {
			continue
		}
		if !common.IsHexAddress(v) {
			return nil, fmt.Errorf("invalid address: %s", v)
		}
		out = append(out, strings.ToLower(v))
	}
	return out, nil
}

func contains(values []string, target string) bool {
	for _, v := range values {
		if v == target {
			return true
		}
	}
	return false
}

func containsInt(values []int, target int) bool {
	for _, v := range values {
		if v == target {
			return true
		}
	}
	return false
}
