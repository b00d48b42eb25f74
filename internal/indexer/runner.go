// Package indexer scans chain logs in block ranges with retries and
// checkpoints.
package indexer

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"go.uber.org/zap"

	"lpAnalytics/internal/metrics"
	"lpAnalytics/internal/model"
)

const defaultPollInterval = 12 * time.Second

// ChainReader is the RPC surface the runner needs. Satisfied by *chain.Client.
type ChainReader interface {
	ChainID(ctx context.Context) (uint64, error)
	LatestBlockNumber(ctx context.Context) (uint64, error)
	BlockTimestamp(ctx context.Context, number uint64) (uint64, error)
	FilterLogs(ctx context.Context, fromBlock, toBlock uint64, addresses []common.Address, topic0 []common.Hash) ([]types.Log, error)
}

// RunConfig holds runtime settings for the runner.
type RunConfig struct {
	FromBlock    uint64
	ToBlock      uint64
	Addresses    []common.Address
	Topic0       []common.Hash
	BatchSize    uint64
	MaxRetries   int
	RetryBackoff time.Duration
	// Follow keeps polling for new blocks once the head is reached.
	Follow       bool
	PollInterval time.Duration
	// Confirmations keeps the scan this many blocks behind the head.
	Confirmations uint64
}

// BatchFunc receives the logs of one block range in chain order. The range
// is checkpointed only after it returns nil.
type BatchFunc func(ctx context.Context, r BlockRange, logs []model.LogRecord) error

// Runner streams logs from the chain into a BatchFunc.
type Runner struct {
	cfg        RunConfig
	chain      ChainReader
	checkpoint Checkpointer
	logger     *zap.Logger
	metrics    *metrics.Metrics
	retry      retryPolicy
}

// NewRunner builds a Runner. checkpoint may be nil.
func NewRunner(cfg RunConfig, chainReader ChainReader, checkpoint Checkpointer, logger *zap.Logger, m *metrics.Metrics) *Runner {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = defaultPollInterval
	}
	return &Runner{
		cfg:        cfg,
		chain:      chainReader,
		checkpoint: checkpoint,
		logger:     logger,
		metrics:    m,
		retry:      newRetryPolicy(cfg.MaxRetries, cfg.RetryBackoff, logger),
	}
}

// Run executes the scan loop until the target block is reached, or until ctx
// is cancelled when following the head.
func (r *Runner) Run(ctx context.Context, fn BatchFunc) error {
	if r.chain == nil {
		return fmt.Errorf("chain client is nil")
	}
	if fn == nil {
		return fmt.Errorf("batch func is nil")
	}
	if r.cfg.BatchSize == 0 {
		return fmt.Errorf("batch size must be greater than zero")
	}

	chainID, err := r.chain.ChainID(ctx)
	if err != nil {
		return fmt.Errorf("get chain id: %w", err)
	}

	from := r.cfg.FromBlock
	if r.checkpoint != nil {
		last, ok, err := r.checkpoint.Load(ctx)
		if err != nil {
			return err
		}
		if ok && last >= from {
			from = last + 1
			r.logger.Info("resume from checkpoint", zap.Uint64("last_processed", last), zap.Uint64("from", from))
		}
	}

	for {
		to, err := r.target(ctx)
		if err != nil {
			return err
		}
		if from <= to {
			next, err := r.scan(ctx, chainID, from, to, fn)
			if err != nil {
				return err
			}
			from = next
		} else if !r.cfg.Follow {
			r.logger.Info("nothing to sync", zap.Uint64("from", from), zap.Uint64("to", to))
		}

		if !r.cfg.Follow {
			return nil
		}
		timer := time.NewTimer(r.cfg.PollInterval)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}
	}
}

func (r *Runner) target(ctx context.Context) (uint64, error) {
	if r.cfg.ToBlock != 0 && !r.cfg.Follow {
		return r.cfg.ToBlock, nil
	}
	var latest uint64
	err := r.retry.do(ctx, "latest_block", func(ctx context.Context) error {
		var err error
		latest, err = r.chain.LatestBlockNumber(ctx)
		return err
	})
	if err != nil {
		return 0, fmt.Errorf("get latest block: %w", err)
	}
	if latest < r.cfg.Confirmations {
		return 0, nil
	}
	head := latest - r.cfg.Confirmations
	if r.cfg.ToBlock != 0 && r.cfg.ToBlock < head {
		return r.cfg.ToBlock, nil
	}
	return head, nil
}

// scan processes [from, to] and returns the next block to read.
func (r *Runner) scan(ctx context.Context, chainID, from, to uint64, fn BatchFunc) (uint64, error) {
	ranges, err := SplitRange(from, to, r.cfg.BatchSize)
	if err != nil {
		return from, err
	}

	for _, blockRange := range ranges {
		if err := ctx.Err(); err != nil {
			return from, err
		}

		r.logger.Debug("fetch logs", zap.Uint64("from", blockRange.From), zap.Uint64("to", blockRange.To))
		logs, err := r.filterLogsWithRetry(ctx, blockRange.From, blockRange.To)
		if err != nil {
			return from, fmt.Errorf("filter logs: %w", err)
		}

		records := make([]model.LogRecord, 0, len(logs))
		for _, log := range logs {
			if log.Removed {
				continue
			}
			ts, err := r.blockTimestampWithRetry(ctx, log.BlockNumber)
			if err != nil {
				return from, fmt.Errorf("block timestamp %d: %w", log.BlockNumber, err)
			}
			records = append(records, toLogRecord(chainID, log, ts))
		}

		if err := fn(ctx, blockRange, records); err != nil {
			return from, fmt.Errorf("process blocks %d-%d: %w", blockRange.From, blockRange.To, err)
		}

		if r.checkpoint != nil {
			if err := r.checkpoint.Save(ctx, blockRange.To); err != nil {
				if errors.Is(err, context.Canceled) {
					return from, err
				}
				return from, fmt.Errorf("save checkpoint: %w", err)
			}
		}
		r.metrics.Checkpoint(blockRange.To)
		from = blockRange.To + 1

		r.logger.Info("batch complete", zap.Int("logs", len(records)), zap.Uint64("blocks", blockRange.Blocks()), zap.Uint64("from", blockRange.From), zap.Uint64("to", blockRange.To))
	}
	return from, nil
}

func (r *Runner) filterLogsWithRetry(ctx context.Context, fromBlock, toBlock uint64) ([]types.Log, error) {
	var logs []types.Log
	err := r.retry.do(ctx, "filter_logs", func(ctx context.Context) error {
		var err error
		logs, err = r.chain.FilterLogs(ctx, fromBlock, toBlock, r.cfg.Addresses, r.cfg.Topic0)
		return err
	})
	return logs, err
}

func (r *Runner) blockTimestampWithRetry(ctx context.Context, blockNumber uint64) (uint64, error) {
	var ts uint64
	err := r.retry.do(ctx, "block_timestamp", func(ctx context.Context) error {
		var err error
		ts, err = r.chain.BlockTimestamp(ctx, blockNumber)
		return err
	})
	return ts, err
}
