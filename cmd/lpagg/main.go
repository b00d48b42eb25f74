package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"lpAnalytics/internal/metrics"
)

func main() {
	root := &cobra.Command{
		Use:          "lpagg",
		Short:        "Uniswap V3/V4 pool fee and volume aggregator",
		SilenceUsage: true,
	}

	root.PersistentFlags().String("config", "", "config file path")
	root.PersistentFlags().String("log-level", "info", "log level (debug, info, warn, error)")

	root.AddCommand(newIngestCmd(), newFetchCmd(), newMigrateCmd(), newViewsCmd(), newTopCmd())

	if err := root.Execute(); err != nil {
		os.Exit(1)
	}
}

func addPostgresFlags(cmd *cobra.Command) {
	cmd.Flags().String("pg-dsn", "", "Postgres DSN")
	cmd.Flags().Int32("pg-max-conns", 10, "maximum pool connections")
	cmd.Flags().Int32("pg-min-conns", 1, "minimum pool connections")
	cmd.Flags().Duration("pg-conn-lifetime", time.Hour, "maximum connection lifetime")
}

func addChainFlags(cmd *cobra.Command) {
	cmd.Flags().String("rpc", "", "Ethereum RPC URL")
	cmd.Flags().Float64("rps", 10, "RPC requests per second (0 disables the limit)")
	cmd.Flags().Uint64("from", 0, "start block (inclusive)")
	cmd.Flags().Uint64("to", 0, "end block (inclusive), 0 means latest")
	cmd.Flags().StringSlice("address", nil, "contract addresses (comma-separated); empty matches any")
	cmd.Flags().StringSlice("topic0", nil, "topic0 filter (comma-separated); empty uses the decodable events")
	cmd.Flags().String("topic0-map", "", "extra topic0->event mappings (comma-separated key=value)")
	cmd.Flags().Uint64("batch-size", 2000, "blocks per batch")
	cmd.Flags().Int("max-retries", 5, "maximum retry attempts")
	cmd.Flags().Duration("retry-backoff", 500*time.Millisecond, "initial retry backoff")
	cmd.Flags().Bool("follow", false, "keep polling for new blocks")
	cmd.Flags().Duration("poll-interval", 12*time.Second, "head polling interval with --follow")
	cmd.Flags().Uint64("confirmations", 0, "blocks to stay behind the head")
}

func newLogger(level string) (*zap.Logger, error) {
	cfg := zap.NewProductionConfig()
	cfg.Level = zap.NewAtomicLevel()
	if err := cfg.Level.UnmarshalText([]byte(level)); err != nil {
		return nil, err
	}

	cfg.EncoderConfig.TimeKey = "ts"
	cfg.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder

	return cfg.Build()
}

// serveMetrics exposes the default registry until ctx is done. An empty
// addr disables it.
func serveMetrics(ctx context.Context, addr string, logger *zap.Logger) {
	if addr == "" {
		return
	}
	mux := http.NewServeMux()
	mux.Handle("/metrics", metrics.Handler())
	srv := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}

	go func() {
		logger.Info("metrics listening", zap.String("addr", addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("metrics server", zap.Error(err))
		}
	}()
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()
}

func redactDSN(dsn string) string {
	if dsn == "" {
		return dsn
	}
	return "***"
}

// ignoreCanceled turns a shutdown by signal into a clean exit.
func ignoreCanceled(err error) error {
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}
