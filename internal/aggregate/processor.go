// Package aggregate turns pool events into hourly and daily bucket updates.
package aggregate

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"go.uber.org/zap"

	"lpAnalytics/internal/amount"
	"lpAnalytics/internal/dedupe"
	"lpAnalytics/internal/metrics"
	"lpAnalytics/internal/model"
	"lpAnalytics/internal/pricing"
	"lpAnalytics/internal/rules"
)

const defaultBalanceTimeout = 3 * time.Second

// ErrMalformed marks records that cannot be parsed. Feeds skip them.
var ErrMalformed = errors.New("malformed event")

// ErrNilStore is returned by NewProcessor without a store.
var ErrNilStore = errors.New("aggregate: store is nil")

// Store persists pools, tokens and bucket rows.
type Store interface {
	Pool(ctx context.Context, id string) (model.Pool, bool, error)
	Token(ctx context.Context, chainID uint64, address string) (model.Token, bool, error)
	// EnsureToken inserts the token unless it exists and returns the stored row.
	EnsureToken(ctx context.Context, token model.Token) (model.Token, error)
	// EnsurePool inserts the pool unless it exists and reports whether it was created.
	EnsurePool(ctx context.Context, pool model.Pool) (bool, error)
	// ApplyBuckets merges all rows of acc atomically.
	ApplyBuckets(ctx context.Context, acc *Accumulator) error
}

// BalanceReader returns the raw token balance held by owner.
type BalanceReader interface {
	BalanceOf(ctx context.Context, token, owner common.Address) (*big.Int, error)
}

// TokenResolver reads token metadata.
type TokenResolver interface {
	TokenMeta(ctx context.Context, token common.Address) (model.TokenMeta, error)
}

// Outcome describes what happened to an event.
type Outcome int

const (
	OutcomeApplied Outcome = iota
	OutcomeDuplicate
	OutcomeUnknownPool
	OutcomeUnknownToken
	OutcomeSkippedChain
	OutcomeFiltered
	OutcomeExists
	OutcomeIgnored
)

func (o Outcome) String() string {
	switch o {
	case OutcomeApplied:
		return "applied"
	case OutcomeDuplicate:
		return "duplicate"
	case OutcomeUnknownPool:
		return "unknown_pool"
	case OutcomeUnknownToken:
		return "unknown_token"
	case OutcomeSkippedChain:
		return "skipped_chain"
	case OutcomeFiltered:
		return "filtered"
	case OutcomeExists:
		return "exists"
	default:
		return "ignored"
	}
}

// Config controls the processor.
type Config struct {
	// Rules selects chains, stables and tracked pairs. Nil accepts everything
	// and values nothing in USD.
	Rules          *rules.Set
	BalanceTimeout time.Duration
	Deduper        dedupe.Deduper
	Metrics        *metrics.Metrics
}

// Processor applies pool events to the store.
type Processor struct {
	cfg      Config
	store    Store
	balances BalanceReader
	resolver TokenResolver
	logger   *zap.Logger
	cache    *entityCache
	stables  map[uint64]*pricing.StableClassifier
}

// NewProcessor builds a processor. balances and resolver may be nil: TVL is
// then never determined and new tokens get default metadata.
func NewProcessor(cfg Config, store Store, balances BalanceReader, resolver TokenResolver, logger *zap.Logger) (*Processor, error) {
	if store == nil {
		return nil, ErrNilStore
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.BalanceTimeout <= 0 {
		cfg.BalanceTimeout = defaultBalanceTimeout
	}
	if cfg.Deduper == nil {
		cfg.Deduper = dedupe.Nop{}
	}

	stables := make(map[uint64]*pricing.StableClassifier)
	for _, id := range cfg.Rules.ChainIDs() {
		chain, _ := cfg.Rules.Chain(id)
		stables[id] = pricing.NewStableClassifier(chain.Stables)
	}

	return &Processor{
		cfg:      cfg,
		store:    store,
		balances: balances,
		resolver: resolver,
		logger:   logger,
		cache:    newEntityCache(),
		stables:  stables,
	}, nil
}

// Handle dispatches a feed record. Only storage and dedupe failures are
// returned unwrapped; unparseable records wrap ErrMalformed.
func (p *Processor) Handle(ctx context.Context, rec model.TypedEventRecord) error {
	switch rec.EventName {
	case model.EventSwap:
		ev, err := rec.SwapEvent()
		if err != nil {
			p.cfg.Metrics.Event("swap", "malformed")
			return fmt.Errorf("%w: %s: %v", ErrMalformed, rec.ID(), err)
		}
		_, err = p.HandleSwap(ctx, ev)
		return err
	case model.EventPoolCreated, model.EventInitialize:
		ev, err := rec.PoolCreatedEvent()
		if err != nil {
			p.cfg.Metrics.Event("pool_created", "malformed")
			return fmt.Errorf("%w: %s: %v", ErrMalformed, rec.ID(), err)
		}
		_, err = p.HandlePoolCreated(ctx, ev)
		return err
	default:
		p.logger.Debug("ignore event", zap.String("event", rec.EventName), zap.String("id", rec.ID()))
		p.cfg.Metrics.Event(rec.EventName, OutcomeIgnored.String())
		return nil
	}
}

// HandleSwap applies one swap. Unknown pools and tokens are discarded
// without error; they are expected while pool creation is still in flight.
func (p *Processor) HandleSwap(ctx context.Context, ev model.SwapEvent) (Outcome, error) {
	outcome, err := p.handleSwap(ctx, ev)
	if err != nil {
		p.cfg.Metrics.Event("swap", "error")
		return outcome, err
	}
	p.cfg.Metrics.Event("swap", outcome.String())
	return outcome, nil
}

func (p *Processor) handleSwap(ctx context.Context, ev model.SwapEvent) (Outcome, error) {
	if !p.chainAllowed(ev.ChainID) {
		return OutcomeSkippedChain, nil
	}

	seen, err := p.cfg.Deduper.Seen(ctx, ev.ID)
	if err != nil {
		return OutcomeIgnored, fmt.Errorf("dedupe: %w", err)
	}
	if seen {
		p.logger.Debug("duplicate swap", zap.String("id", ev.ID))
		return OutcomeDuplicate, nil
	}
	applied := false
	defer func() {
		if !applied {
			p.release(ctx, ev.ID)
		}
	}()

	pool, ok, err := p.pool(ctx, ev.PoolID)
	if err != nil {
		return OutcomeIgnored, err
	}
	if !ok {
		p.logger.Debug("swap for unknown pool", zap.String("pool", ev.PoolID), zap.String("id", ev.ID))
		return OutcomeUnknownPool, nil
	}

	token0, ok0, err := p.token(ctx, pool.ChainID, pool.Token0)
	if err != nil {
		return OutcomeIgnored, err
	}
	token1, ok1, err := p.token(ctx, pool.ChainID, pool.Token1)
	if err != nil {
		return OutcomeIgnored, err
	}
	if !ok0 || !ok1 {
		p.logger.Debug("swap with unknown token", zap.String("pool", pool.ID), zap.String("id", ev.ID))
		return OutcomeUnknownToken, nil
	}

	bal0, bal1, err := p.fetchBalances(ctx, pool)
	if err != nil && !errors.Is(err, errBalanceUnsupported) {
		p.cfg.Metrics.BalanceFailed()
		p.logger.Debug("balance query failed", zap.String("pool", pool.ID), zap.Error(err))
	}

	acc := Compute(SwapInput{
		Pool:     pool,
		Token0:   token0,
		Token1:   token1,
		Swap:     ev,
		Balance0: bal0,
		Balance1: bal1,
		Stables:  p.stables[pool.ChainID],
	})

	start := time.Now()
	if err := p.store.ApplyBuckets(ctx, acc); err != nil {
		return OutcomeIgnored, fmt.Errorf("apply buckets %s: %w", ev.ID, err)
	}
	p.cfg.Metrics.ObserveApply(time.Since(start))
	p.cfg.Metrics.EventTime(ev.Timestamp)
	applied = true
	return OutcomeApplied, nil
}

// HandlePoolCreated registers the pool and its tokens. Re-delivery is a no-op.
func (p *Processor) HandlePoolCreated(ctx context.Context, ev model.PoolCreatedEvent) (Outcome, error) {
	outcome, err := p.handlePoolCreated(ctx, ev)
	if err != nil {
		p.cfg.Metrics.Event("pool_created", "error")
		return outcome, err
	}
	p.cfg.Metrics.Event("pool_created", outcome.String())
	return outcome, nil
}

func (p *Processor) handlePoolCreated(ctx context.Context, ev model.PoolCreatedEvent) (Outcome, error) {
	if !p.chainAllowed(ev.ChainID) {
		return OutcomeSkippedChain, nil
	}
	if chain, ok := p.cfg.Rules.Chain(ev.ChainID); ok && !chain.Allow(ev.Version, ev.Token0, ev.Token1, ev.FeeTier) {
		return OutcomeFiltered, nil
	}

	for _, addr := range []string{ev.Token0, ev.Token1} {
		if _, err := p.ensureToken(ctx, ev.ChainID, addr, ev.Timestamp); err != nil {
			return OutcomeIgnored, err
		}
	}

	pool := model.Pool{
		ID:           strings.ToLower(ev.PoolID),
		ChainID:      ev.ChainID,
		Version:      ev.Version,
		Token0:       strings.ToLower(ev.Token0),
		Token1:       strings.ToLower(ev.Token1),
		FeeTier:      ev.FeeTier,
		TickSpacing:  ev.TickSpacing,
		CreatedAt:    ev.Timestamp,
		CreatedBlock: ev.BlockNumber,
	}
	created, err := p.store.EnsurePool(ctx, pool)
	if err != nil {
		return OutcomeIgnored, fmt.Errorf("ensure pool %s: %w", pool.ID, err)
	}
	if !created {
		return OutcomeExists, nil
	}

	p.logger.Info("pool registered",
		zap.Uint64("chain_id", pool.ChainID),
		zap.String("pool", pool.ID),
		zap.Int("version", pool.Version),
		zap.String("token0", pool.Token0),
		zap.String("token1", pool.Token1),
		zap.Uint32("fee", pool.FeeTier),
	)
	return OutcomeApplied, nil
}

func (p *Processor) ensureToken(ctx context.Context, chainID uint64, addr string, ts int64) (model.Token, error) {
	addr = strings.ToLower(addr)
	if token, ok, err := p.token(ctx, chainID, addr); err != nil || ok {
		return token, err
	}

	token := model.Token{
		ChainID:   chainID,
		Address:   addr,
		Decimals:  amount.DefaultDecimals,
		CreatedAt: ts,
	}
	if p.resolver != nil && common.IsHexAddress(addr) {
		meta, err := p.resolver.TokenMeta(ctx, common.HexToAddress(addr))
		if err != nil {
			p.logger.Warn("token metadata unavailable, using defaults", zap.String("token", addr), zap.Error(err))
		} else {
			token.Decimals = meta.Decimals
			token.Symbol = meta.Symbol
			token.Name = meta.Name
		}
	}

	stored, err := p.store.EnsureToken(ctx, token)
	if err != nil {
		return model.Token{}, fmt.Errorf("ensure token %s: %w", addr, err)
	}
	p.cache.setToken(stored)
	return stored, nil
}

func (p *Processor) pool(ctx context.Context, id string) (model.Pool, bool, error) {
	id = strings.ToLower(id)
	if pool, ok := p.cache.pool(id); ok {
		return pool, true, nil
	}
	pool, ok, err := p.store.Pool(ctx, id)
	if err != nil {
		return model.Pool{}, false, fmt.Errorf("load pool %s: %w", id, err)
	}
	if ok {
		p.cache.setPool(pool)
	}
	return pool, ok, nil
}

func (p *Processor) token(ctx context.Context, chainID uint64, addr string) (model.Token, bool, error) {
	if token, ok := p.cache.token(chainID, addr); ok {
		return token, true, nil
	}
	token, ok, err := p.store.Token(ctx, chainID, strings.ToLower(addr))
	if err != nil {
		return model.Token{}, false, fmt.Errorf("load token %s: %w", addr, err)
	}
	if ok {
		p.cache.setToken(token)
	}
	return token, ok, nil
}

func (p *Processor) chainAllowed(chainID uint64) bool {
	if p.cfg.Rules == nil {
		return true
	}
	_, ok := p.cfg.Rules.Chain(chainID)
	return ok
}

func (p *Processor) release(ctx context.Context, id string) {
	if err := p.cfg.Deduper.Release(context.WithoutCancel(ctx), id); err != nil {
		p.logger.Warn("dedupe release failed", zap.String("id", id), zap.Error(err))
	}
}
