package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"lpAnalytics/internal/chain"
	"lpAnalytics/internal/config"
	"lpAnalytics/internal/indexer"
	"lpAnalytics/internal/storage"
)

func newFetchCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "fetch",
		Short: "Fetch and decode pool logs into a replayable typed events JSONL",
		RunE:  runFetch,
	}

	cmd.Flags().String("out", "./data/typed_events.jsonl", "output typed events JSONL")
	cmd.Flags().String("logs-out", "", "optional raw logs JSONL")
	cmd.Flags().String("errors", "./data/decode_errors.jsonl", "decode errors JSONL")
	cmd.Flags().String("checkpoint", "./data/checkpoint.json", "checkpoint file path (empty disables)")
	addChainFlags(cmd)
	return cmd
}

func runFetch(cmd *cobra.Command, _ []string) error {
	cfgFile, _ := cmd.Flags().GetString("config")
	cfg, err := config.LoadFetch(cfgFile, cmd.Flags())
	if err != nil {
		return err
	}

	logger, err := newLogger(cfg.LogLevel)
	if err != nil {
		return err
	}
	defer logger.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	chainClient, err := chain.NewClient(ctx, cfg.Chain.RPCURL, cfg.Chain.RPS)
	if err != nil {
		return fmt.Errorf("connect rpc: %w", err)
	}
	defer chainClient.Close()

	var checkpoint indexer.Checkpointer
	if cfg.Chain.Checkpoint != "" {
		checkpoint = indexer.NewFileCheckpoint(cfg.Chain.Checkpoint)
	}

	sink := storage.NewJsonlStorage(cfg.LogsOut, cfg.Out, cfg.Errors)
	source, err := newChainSource(cfg.Chain, chainClient, checkpoint, sink, logger, nil)
	if err != nil {
		return err
	}

	logger.Info("fetch start",
		zap.String("out", cfg.Out),
		zap.String("errors", cfg.Errors),
		zap.String("checkpoint", cfg.Chain.Checkpoint),
	)
	return ignoreCanceled(source.Run(ctx, nil))
}
