package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"text/tabwriter"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"lpAnalytics/internal/aggregate"
	"lpAnalytics/internal/config"
	"lpAnalytics/internal/metrics"
	"lpAnalytics/internal/rules"
	"lpAnalytics/internal/storage/postgres"
	"lpAnalytics/internal/views"
)

func newMigrateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Apply database migrations",
		RunE:  runMigrate,
	}
	addPostgresFlags(cmd)
	return cmd
}

func runMigrate(cmd *cobra.Command, _ []string) error {
	cfgFile, _ := cmd.Flags().GetString("config")
	cfg, err := config.LoadMigrate(cfgFile, cmd.Flags())
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

	store, err := postgres.NewStore(ctx, cfg.Postgres.DSN, pgOptions(cfg.Postgres))
	if err != nil {
		return fmt.Errorf("connect postgres: %w", err)
	}
	defer store.Close()

	if err := store.Migrate(ctx); err != nil {
		return err
	}
	version, err := store.MigrationVersion(ctx)
	if err != nil {
		return err
	}
	logger.Info("migrations applied", zap.Int64("version", version))
	return nil
}

func newViewsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "views",
		Short: "Create the fee views over the bucket tables",
		RunE:  runViews,
	}
	cmd.Flags().Uint64("chain-id", 1, "chain whose pools the views cover")
	cmd.Flags().String("hour-table", "pool_hour_data", "hourly bucket table")
	cmd.Flags().String("day-table", "pool_day_data", "daily bucket table")
	cmd.Flags().String("pools-table", "pools", "pool table")
	cmd.Flags().String("rules", "", "pair rules YAML supplying the stable list")
	cmd.Flags().StringSlice("stable", nil, "extra stable token addresses")
	cmd.Flags().String("apr-windows", "7,30", "fee APR windows in days (comma-separated)")
	cmd.Flags().Bool("dry-run", false, "print the statements instead of executing them")
	addPostgresFlags(cmd)
	return cmd
}

func runViews(cmd *cobra.Command, _ []string) error {
	cfgFile, _ := cmd.Flags().GetString("config")
	cfg, err := config.LoadViews(cfgFile, cmd.Flags())
	if err != nil {
		return err
	}
	dryRun, _ := cmd.Flags().GetBool("dry-run")

	logger, err := newLogger(cfg.LogLevel)
	if err != nil {
		return err
	}
	defer logger.Sync()

	stables := rules.DefaultStables(cfg.ChainID)
	if cfg.RulesFile != "" {
		set, err := rules.Load(cfg.RulesFile)
		if err != nil {
			return err
		}
		chainRules, ok := set.Chain(cfg.ChainID)
		if !ok {
			return fmt.Errorf("rules file has no chain %d", cfg.ChainID)
		}
		stables = chainRules.Stables
	}
	stables = append(stables, cfg.Stables...)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	store, err := postgres.NewStore(ctx, cfg.Postgres.DSN, pgOptions(cfg.Postgres))
	if err != nil {
		return fmt.Errorf("connect postgres: %w", err)
	}
	defer store.Close()

	synth, err := views.NewSynthesizer(views.Config{
		ChainID:    cfg.ChainID,
		HourTable:  cfg.HourTable,
		DayTable:   cfg.DayTable,
		PoolsTable: cfg.PoolsTable,
		Stables:    stables,
		APRWindows: cfg.APRWindows,
	}, store, logger, metrics.New(prometheus.DefaultRegisterer))
	if err != nil {
		return err
	}

	if dryRun {
		stmts, err := synth.Plan(ctx)
		if err != nil {
			return err
		}
		for _, stmt := range stmts {
			fmt.Fprintf(cmd.OutOrStdout(), "%s;\n\n", strings.TrimSpace(stmt))
		}
		return nil
	}
	return synth.Sync(ctx)
}

func newTopCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "top",
		Short: "List pools by USD fees or USD volume",
		RunE:  runTop,
	}
	cmd.Flags().String("by", "fees", "ranking metric (fees, volume)")
	cmd.Flags().String("window", "day", "bucket width (day, hour)")
	cmd.Flags().Int("lookback", 7, "number of buckets to sum")
	cmd.Flags().Int("limit", 20, "number of pools")
	cmd.Flags().Int("version", 0, "protocol version filter (3, 4)")
	cmd.Flags().String("token", "", "only pools containing this token")
	cmd.Flags().Uint32("fee-min", 0, "minimum fee tier in pips")
	cmd.Flags().Uint32("fee-max", 0, "maximum fee tier in pips")
	cmd.Flags().String("at", "", "end of the lookback (unix seconds or RFC3339), default now")
	cmd.Flags().Bool("json", false, "print JSON")
	addPostgresFlags(cmd)
	return cmd
}

func runTop(cmd *cobra.Command, _ []string) error {
	cfgFile, _ := cmd.Flags().GetString("config")
	cfg, err := config.LoadTop(cfgFile, cmd.Flags())
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	store, err := postgres.NewStore(ctx, cfg.Postgres.DSN, pgOptions(cfg.Postgres))
	if err != nil {
		return fmt.Errorf("connect postgres: %w", err)
	}
	defer store.Close()

	window := aggregate.Day
	if cfg.Window == "hour" {
		window = aggregate.Hour
	}
	pools, err := store.TopPools(ctx, postgres.TopQuery{
		By:       postgres.TopMetric(cfg.By),
		Window:   window,
		Lookback: cfg.Lookback,
		Limit:    cfg.Limit,
		Version:  cfg.Version,
		Token:    cfg.Token,
		FeeMin:   cfg.FeeMin,
		FeeMax:   cfg.FeeMax,
		Now:      cfg.At,
	})
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	if cfg.JSON {
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		return enc.Encode(pools)
	}

	w := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	fmt.Fprintf(w, "POOL\tV\tFEE\tPAIR\t%s_USD\tBUCKETS\n", strings.ToUpper(cfg.By))
	for _, p := range pools {
		fmt.Fprintf(w, "%s\tv%d\t%d\t%s/%s\t%s\t%d\n", p.PoolID, p.Version, p.FeeTier, label(p.Symbol0, p.Token0), label(p.Symbol1, p.Token1), p.ValueUSD.StringFixed(2), p.Buckets)
	}
	return w.Flush()
}

func label(symbol, address string) string {
	if symbol != "" {
		return symbol
	}
	return address
}
