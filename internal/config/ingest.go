package config

import (
	"fmt"
	"time"

	"github.com/spf13/pflag"
)

// Feed sources accepted by ingest.
const (
	SourceJSONL = "jsonl"
	SourceNATS  = "nats"
	SourceChain = "chain"
)

// IngestConfig holds settings for the ingest command.
type IngestConfig struct {
	Source   string
	Input    string
	NATS     NATS
	Chain    Chain
	Postgres Postgres
	// DryRun keeps buckets in memory and prints the daily rows at the end.
	DryRun bool

	// RulesFile is the pair rules YAML. Empty tracks every pool of ChainID.
	RulesFile string
	ChainID   uint64

	// BalanceRPC is used for balances and token metadata when the source is
	// not the chain. Empty disables TVL. Calls share Chain.RPS.
	BalanceRPC     string
	BalanceTimeout time.Duration

	RedisAddr     string
	RedisPassword string
	RedisDB       int
	DedupeTTL     time.Duration

	MetricsAddr string
	LogLevel    string
}

// NATS holds the subscription settings.
type NATS struct {
	URL     string
	Subject string
	Queue   string
}

// LoadIngest merges config file, environment variables, and flags into IngestConfig.
func LoadIngest(cfgFile string, flags *pflag.FlagSet) (IngestConfig, error) {
	v, err := newViper(cfgFile, flags, merge(postgresDefaults, chainDefaults, map[string]interface{}{
		"source":          SourceJSONL,
		"chain-id":        uint64(1),
		"nats-subject":    "lpagg.events",
		"balance-timeout": 3 * time.Second,
		"dedupe-ttl":      24 * time.Hour,
	}))
	if err != nil {
		return IngestConfig{}, err
	}

	cfg := IngestConfig{
		Source: v.GetString("source"),
		Input:  v.GetString("in"),
		NATS: NATS{
			URL:     v.GetString("nats-url"),
			Subject: v.GetString("nats-subject"),
			Queue:   v.GetString("nats-queue"),
		},
		RulesFile:      v.GetString("rules"),
		ChainID:        v.GetUint64("chain-id"),
		BalanceRPC:     v.GetString("rpc"),
		BalanceTimeout: v.GetDuration("balance-timeout"),
		RedisAddr:      v.GetString("redis-addr"),
		RedisPassword:  v.GetString("redis-password"),
		RedisDB:        v.GetInt("redis-db"),
		DedupeTTL:      v.GetDuration("dedupe-ttl"),
		MetricsAddr:    v.GetString("metrics-addr"),
		LogLevel:       v.GetString("log-level"),
		DryRun:         v.GetBool("dry-run"),
	}

	cfg.Chain.RPS = v.GetFloat64("rps")
	if !cfg.DryRun {
		if cfg.Postgres, err = loadPostgres(v); err != nil {
			return IngestConfig{}, err
		}
	}

	switch cfg.Source {
	case SourceJSONL:
		if cfg.Input == "" {
			return IngestConfig{}, fmt.Errorf("input path is required for source %s", cfg.Source)
		}
	case SourceNATS:
		if cfg.NATS.URL == "" || cfg.NATS.Subject == "" {
			return IngestConfig{}, fmt.Errorf("nats url and subject are required for source %s", cfg.Source)
		}
	case SourceChain:
		if cfg.Chain, err = loadChain(v); err != nil {
			return IngestConfig{}, err
		}
	default:
		return IngestConfig{}, fmt.Errorf("unknown source %q", cfg.Source)
	}
	return cfg, nil
}

// FetchConfig holds settings for the fetch command.
type FetchConfig struct {
	Chain   Chain
	Out     string
	LogsOut string
	Errors  string

	LogLevel string
}

// LoadFetch merges config file, environment variables, and flags into FetchConfig.
func LoadFetch(cfgFile string, flags *pflag.FlagSet) (FetchConfig, error) {
	v, err := newViper(cfgFile, flags, merge(chainDefaults, map[string]interface{}{
		"out":        "./data/typed_events.jsonl",
		"errors":     "./data/decode_errors.jsonl",
		"checkpoint": "./data/checkpoint.json",
	}))
	if err != nil {
		return FetchConfig{}, err
	}

	cfg := FetchConfig{
		Out:      v.GetString("out"),
		LogsOut:  v.GetString("logs-out"),
		Errors:   v.GetString("errors"),
		LogLevel: v.GetString("log-level"),
	}
	if cfg.Chain, err = loadChain(v); err != nil {
		return FetchConfig{}, err
	}
	if cfg.Out == "" {
		return FetchConfig{}, fmt.Errorf("output path is required")
	}
	return cfg, nil
}
