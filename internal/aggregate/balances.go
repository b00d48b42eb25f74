package aggregate

import (
	"context"
	"errors"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"golang.org/x/sync/errgroup"

	"lpAnalytics/internal/model"
)

var errBalanceUnsupported = errors.New("pool balances are not held by the pool contract")

// fetchBalances reads both token balances of a V3 pool in parallel, bounded
// by the configured timeout. V4 pools keep funds in the singleton manager so
// their per-pool balances are not observable this way.
func (p *Processor) fetchBalances(ctx context.Context, pool model.Pool) (*big.Int, *big.Int, error) {
	if p.balances == nil {
		return nil, nil, errors.New("no balance reader")
	}
	if pool.Version != model.VersionV3 || !common.IsHexAddress(pool.ID) {
		return nil, nil, errBalanceUnsupported
	}

	ctx, cancel := context.WithTimeout(ctx, p.cfg.BalanceTimeout)
	defer cancel()

	owner := common.HexToAddress(pool.ID)
	var bal0, bal1 *big.Int
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		b, err := p.balances.BalanceOf(gctx, common.HexToAddress(pool.Token0), owner)
		bal0 = b
		return err
	})
	g.Go(func() error {
		b, err := p.balances.BalanceOf(gctx, common.HexToAddress(pool.Token1), owner)
		bal1 = b
		return err
	})
	if err := g.Wait(); err != nil {
		return nil, nil, err
	}
	if bal0 == nil || bal1 == nil {
		return nil, nil, errors.New("empty balance")
	}
	return bal0, bal1, nil
}
