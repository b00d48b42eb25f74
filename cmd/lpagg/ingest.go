package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/shopspring/decimal"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"lpAnalytics/internal/aggregate"
	"lpAnalytics/internal/chain"
	"lpAnalytics/internal/config"
	"lpAnalytics/internal/dedupe"
	"lpAnalytics/internal/dex"
	"lpAnalytics/internal/feed"
	"lpAnalytics/internal/indexer"
	"lpAnalytics/internal/metrics"
	"lpAnalytics/internal/rules"
	"lpAnalytics/internal/storage"
	"lpAnalytics/internal/storage/memory"
	"lpAnalytics/internal/storage/postgres"
)

func newIngestCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "ingest",
		Short: "Apply pool events from a feed to the hourly and daily buckets",
		RunE:  runIngest,
	}

	cmd.Flags().String("source", config.SourceJSONL, "event feed (jsonl, nats, chain)")
	cmd.Flags().String("in", "", "typed events JSONL for --source jsonl")
	cmd.Flags().String("nats-url", "", "NATS server URL for --source nats")
	cmd.Flags().String("nats-subject", "lpagg.events", "NATS subject carrying typed event records")
	cmd.Flags().String("nats-queue", "", "optional NATS queue group")
	cmd.Flags().String("checkpoint", "", "checkpoint file for --source chain (default: stored in Postgres)")
	cmd.Flags().String("rules", "", "pair rules YAML (default: track every pool of --chain-id)")
	cmd.Flags().Uint64("chain-id", 1, "chain id used without a rules file")
	cmd.Flags().Duration("balance-timeout", 3*time.Second, "timeout of the TVL balance query")
	cmd.Flags().String("redis-addr", "", "Redis address for event dedupe (default: in-memory)")
	cmd.Flags().String("redis-password", "", "Redis password")
	cmd.Flags().Int("redis-db", 0, "Redis database")
	cmd.Flags().Duration("dedupe-ttl", 24*time.Hour, "how long applied event ids are remembered")
	cmd.Flags().String("metrics-addr", "", "Prometheus listen address (e.g. :9102)")
	cmd.Flags().Bool("dry-run", false, "aggregate in memory and print daily buckets instead of writing Postgres")
	addPostgresFlags(cmd)
	addChainFlags(cmd)
	return cmd
}

func runIngest(cmd *cobra.Command, _ []string) error {
	cfgFile, _ := cmd.Flags().GetString("config")
	cfg, err := config.LoadIngest(cfgFile, cmd.Flags())
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

	m := metrics.New(prometheus.DefaultRegisterer)
	serveMetrics(ctx, cfg.MetricsAddr, logger)

	var (
		store    aggregate.Store
		pgStore  *postgres.Store
		memStore *memory.Store
	)
	if cfg.DryRun {
		memStore = memory.New()
		store = memStore
	} else {
		pgStore, err = postgres.NewStore(ctx, cfg.Postgres.DSN, pgOptions(cfg.Postgres))
		if err != nil {
			return fmt.Errorf("connect postgres: %w", err)
		}
		defer pgStore.Close()
		store = pgStore
	}

	ruleSet := rules.Default(cfg.ChainID)
	if cfg.RulesFile != "" {
		if ruleSet, err = rules.Load(cfg.RulesFile); err != nil {
			return err
		}
	}

	deduper, closeDeduper, err := newDeduper(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer closeDeduper()

	rpcURL := cfg.BalanceRPC
	if cfg.Source == config.SourceChain {
		rpcURL = cfg.Chain.RPCURL
	}
	var (
		chainClient *chain.Client
		balances    aggregate.BalanceReader
		resolver    aggregate.TokenResolver
	)
	if rpcURL != "" {
		chainClient, err = chain.NewClient(ctx, rpcURL, cfg.Chain.RPS)
		if err != nil {
			return fmt.Errorf("connect rpc: %w", err)
		}
		defer chainClient.Close()
		reader := dex.NewERC20Reader(chainClient, logger)
		balances, resolver = reader, reader
	} else {
		logger.Warn("no rpc configured: TVL stays empty and new tokens get default metadata")
	}

	processor, err := aggregate.NewProcessor(aggregate.Config{
		Rules:          ruleSet,
		BalanceTimeout: cfg.BalanceTimeout,
		Deduper:        deduper,
		Metrics:        m,
	}, store, balances, resolver, logger)
	if err != nil {
		return err
	}

	var source feed.Source
	switch cfg.Source {
	case config.SourceJSONL:
		source = feed.NewJSONLSource(cfg.Input, logger, m)
	case config.SourceNATS:
		natsSource, err := feed.NewNATSSource(feed.NATSConfig{
			URL:     cfg.NATS.URL,
			Subject: cfg.NATS.Subject,
			Queue:   cfg.NATS.Queue,
		}, logger, m)
		if err != nil {
			return err
		}
		defer natsSource.Close()
		source = natsSource
	case config.SourceChain:
		chainID, err := chainClient.ChainID(ctx)
		if err != nil {
			return fmt.Errorf("get chain id: %w", err)
		}
		var checkpoint indexer.Checkpointer
		switch {
		case cfg.Chain.Checkpoint != "":
			checkpoint = indexer.NewFileCheckpoint(cfg.Chain.Checkpoint)
		case pgStore != nil:
			checkpoint = indexer.NewStateCheckpoint(pgStore, fmt.Sprintf("ingest:%d", chainID))
		}
		source, err = newChainSource(cfg.Chain, chainClient, checkpoint, nil, logger, m)
		if err != nil {
			return err
		}
	}

	logger.Info("ingest start",
		zap.String("source", source.Name()),
		zap.String("pg_dsn", redactDSN(cfg.Postgres.DSN)),
		zap.Uint64s("chains", ruleSet.ChainIDs()),
		zap.Bool("redis_dedupe", cfg.RedisAddr != ""),
		zap.Bool("dry_run", cfg.DryRun),
	)

	if err := ignoreCanceled(source.Run(ctx, processor.Handle)); err != nil {
		return err
	}
	if memStore != nil {
		return printBuckets(cmd.OutOrStdout(), memStore.Buckets(aggregate.Day))
	}
	return nil
}

type bucketRow struct {
	PoolID    string           `json:"pool_id"`
	Date      string           `json:"date"`
	Volume0   decimal.Decimal  `json:"volume_token0"`
	Volume1   decimal.Decimal  `json:"volume_token1"`
	Fees0     decimal.Decimal  `json:"fees_token0"`
	Fees1     decimal.Decimal  `json:"fees_token1"`
	SwapCount uint64           `json:"swap_count"`
	VolumeUSD *decimal.Decimal `json:"volume_usd"`
	FeesUSD   *decimal.Decimal `json:"fees_usd"`
	TVLUSD    *decimal.Decimal `json:"tvl_usd"`
}

func printBuckets(w io.Writer, buckets []aggregate.Bucket) error {
	enc := json.NewEncoder(w)
	for _, b := range buckets {
		row := bucketRow{
			PoolID:    b.Key.PoolID,
			Date:      time.Unix(b.Key.Start(), 0).UTC().Format(time.DateOnly),
			Volume0:   b.Volume0,
			Volume1:   b.Volume1,
			Fees0:     b.Fees0,
			Fees1:     b.Fees1,
			SwapCount: b.SwapCount,
			VolumeUSD: b.VolumeUSD,
			FeesUSD:   b.FeesUSD,
			TVLUSD:    b.TVLUSD,
		}
		if err := enc.Encode(row); err != nil {
			return err
		}
	}
	return nil
}

func newDeduper(ctx context.Context, cfg config.IngestConfig, logger *zap.Logger) (dedupe.Deduper, func(), error) {
	if cfg.RedisAddr == "" {
		mem := dedupe.NewMemory(logger, cfg.DedupeTTL, time.Minute)
		return mem, mem.Close, nil
	}
	client, err := dedupe.Dial(ctx, cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB)
	if err != nil {
		return nil, nil, err
	}
	d, err := dedupe.NewRedis(client, cfg.DedupeTTL, "")
	if err != nil {
		client.Close()
		return nil, nil, err
	}
	return d, func() { _ = client.Close() }, nil
}

// newChainSource wires the V3 and V4 decoders to a block scanner.
func newChainSource(c config.Chain, client *chain.Client, checkpoint indexer.Checkpointer, sink storage.Sink, logger *zap.Logger, m *metrics.Metrics) (*feed.ChainSource, error) {
	decoderCfg := dex.DecoderConfig{Topic0Map: c.Topic0Map}
	v3, err := dex.NewV3Decoder(decoderCfg)
	if err != nil {
		return nil, err
	}
	v4, err := dex.NewV4Decoder(decoderCfg)
	if err != nil {
		return nil, err
	}
	registry := dex.NewRegistry(v3, v4)

	addresses, err := indexer.ParseAddresses(c.Addresses)
	if err != nil {
		return nil, err
	}
	topic0, err := indexer.ParseTopic0(c.Topic0)
	if err != nil {
		return nil, err
	}
	if len(topic0) == 0 {
		topic0 = registry.Topics()
	}

	runner := indexer.NewRunner(indexer.RunConfig{
		FromBlock:     c.FromBlock,
		ToBlock:       c.ToBlock,
		Addresses:     addresses,
		Topic0:        topic0,
		BatchSize:     c.BatchSize,
		MaxRetries:    c.MaxRetries,
		RetryBackoff:  c.RetryBackoff,
		Follow:        c.Follow,
		PollInterval:  c.PollInterval,
		Confirmations: c.Confirmations,
	}, client, checkpoint, logger, m)

	logger.Info("chain source",
		zap.Uint64("from", c.FromBlock),
		zap.Uint64("to", c.ToBlock),
		zap.Int("addresses", len(addresses)),
		zap.Int("topic0", len(topic0)),
		zap.Uint64("batch_size", c.BatchSize),
		zap.Bool("follow", c.Follow),
	)
	return feed.NewChainSource(runner, registry, sink, logger, m), nil
}

func pgOptions(pg config.Postgres) postgres.Options {
	return postgres.Options{
		MaxConns:        pg.MaxConns,
		MinConns:        pg.MinConns,
		MaxConnLifetime: pg.MaxConnLifetime,
	}
}
