// Package config loads per-command settings from flags, LPAGG_* environment
// variables and an optional config file.
package config

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

const envPrefix = "LPAGG"

// Postgres holds connection settings shared by the store-backed commands.
type Postgres struct {
	DSN             string
	MaxConns        int32
	MinConns        int32
	MaxConnLifetime time.Duration
}

// Chain holds RPC and log scanning settings.
type Chain struct {
	RPCURL        string
	RPS           float64
	FromBlock     uint64
	ToBlock       uint64
	Addresses     []string
	Topic0        []string
	Topic0Map     map[string]string
	BatchSize     uint64
	MaxRetries    int
	RetryBackoff  time.Duration
	Follow        bool
	PollInterval  time.Duration
	Confirmations uint64
	// Checkpoint is a file path. Empty keeps the checkpoint in Postgres
	// when a store is available.
	Checkpoint string
}

func newViper(cfgFile string, flags *pflag.FlagSet, defaults map[string]interface{}) (*viper.Viper, error) {
	v := viper.New()
	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()

	v.SetDefault("log-level", "info")
	for key, value := range defaults {
		v.SetDefault(key, value)
	}

	if flags != nil {
		if err := v.BindPFlags(flags); err != nil {
			return nil, fmt.Errorf("bind flags: %w", err)
		}
	}

	if cfgFile != "" {
		v.SetConfigFile(cfgFile)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read config: %w", err)
		}
	} else {
		v.SetConfigName("config")
		v.AddConfigPath(".")
		if err := v.ReadInConfig(); err != nil {
			var notFound viper.ConfigFileNotFoundError
			if !errors.As(err, &notFound) {
				return nil, fmt.Errorf("read config: %w", err)
			}
		}
	}
	return v, nil
}

var postgresDefaults = map[string]interface{}{
	"pg-max-conns":     int32(10),
	"pg-min-conns":     int32(1),
	"pg-conn-lifetime": time.Hour,
}

func loadPostgres(v *viper.Viper) (Postgres, error) {
	pg := Postgres{
		DSN:             v.GetString("pg-dsn"),
		MaxConns:        v.GetInt32("pg-max-conns"),
		MinConns:        v.GetInt32("pg-min-conns"),
		MaxConnLifetime: v.GetDuration("pg-conn-lifetime"),
	}
	if pg.DSN == "" {
		return Postgres{}, errors.New("pg dsn is required")
	}
	if pg.MinConns > pg.MaxConns {
		return Postgres{}, fmt.Errorf("pg-min-conns %d exceeds pg-max-conns %d", pg.MinConns, pg.MaxConns)
	}
	return pg, nil
}

var chainDefaults = map[string]interface{}{
	"rps":           10.0,
	"batch-size":    uint64(2000),
	"max-retries":   5,
	"retry-backoff": 500 * time.Millisecond,
	"poll-interval": 12 * time.Second,
	"confirmations": uint64(0),
}

func loadChain(v *viper.Viper) (Chain, error) {
	c := Chain{
		RPCURL:        v.GetString("rpc"),
		RPS:           v.GetFloat64("rps"),
		FromBlock:     v.GetUint64("from"),
		ToBlock:       v.GetUint64("to"),
		Addresses:     getStringSlice(v, "address"),
		Topic0:        getStringSlice(v, "topic0"),
		Topic0Map:     getStringMap(v, "topic0-map"),
		BatchSize:     v.GetUint64("batch-size"),
		MaxRetries:    v.GetInt("max-retries"),
		RetryBackoff:  v.GetDuration("retry-backoff"),
		Follow:        v.GetBool("follow"),
		PollInterval:  v.GetDuration("poll-interval"),
		Confirmations: v.GetUint64("confirmations"),
		Checkpoint:    v.GetString("checkpoint"),
	}
	if c.RPCURL == "" {
		return Chain{}, errors.New("rpc url is required")
	}
	if c.BatchSize == 0 {
		return Chain{}, errors.New("batch-size must be greater than zero")
	}
	if c.ToBlock != 0 && c.ToBlock < c.FromBlock {
		return Chain{}, fmt.Errorf("to block %d is before from block %d", c.ToBlock, c.FromBlock)
	}
	return c, nil
}

// ParseTimestamp parses a timestamp value (unix seconds or RFC3339). Empty
// input yields the zero time.
func ParseTimestamp(input string) (time.Time, error) {
	input = strings.TrimSpace(input)
	if input == "" {
		return time.Time{}, nil
	}
	if isNumeric(input) {
		val, err := strconv.ParseInt(input, 10, 64)
		if err != nil {
			return time.Time{}, err
		}
		return time.Unix(val, 0).UTC(), nil
	}
	return time.Parse(time.RFC3339, input)
}

func isNumeric(input string) bool {
	for _, r := range input {
		if r < '0' || r > '9' {
			return false
		}
	}
	return input != ""
}

func getStringSlice(v *viper.Viper, key string) []string {
	if !v.IsSet(key) {
		return nil
	}

	val := v.Get(key)
	switch typed := val.(type) {
	case []string:
		return cleanStrings(typed)
	case string:
		return splitAndClean(typed)
	case []interface{}:
		items := make([]string, 0, len(typed))
		for _, item := range typed {
			items = append(items, fmt.Sprintf("%v", item))
		}
		return cleanStrings(items)
	default:
		return nil
	}
}

func getIntSlice(v *viper.Viper, key string) ([]int, error) {
	if ints, ok := v.Get(key).([]int); ok {
		return ints, nil
	}
	raw := getStringSlice(v, key)
	out := make([]int, 0, len(raw))
	for _, item := range raw {
		n, err := strconv.Atoi(strings.Trim(item, "[]"))
		if err != nil {
			return nil, fmt.Errorf("%s: %w", key, err)
		}
		out = append(out, n)
	}
	return out, nil
}

func getStringMap(v *viper.Viper, key string) map[string]string {
	if !v.IsSet(key) {
		return map[string]string{}
	}

	switch typed := v.Get(key).(type) {
	case map[string]string:
		return typed
	case map[string]interface{}:
		out := make(map[string]string, len(typed))
		for k, val := range typed {
			out[k] = fmt.Sprintf("%v", val)
		}
		return out
	case string:
		return parseStringMap(typed)
	case []string:
		return parseStringMap(strings.Join(typed, ","))
	default:
		return map[string]string{}
	}
}

func parseStringMap(input string) map[string]string {
	out := make(map[string]string)
	for _, pair := range strings.Split(input, ",") {
		key, value, ok := strings.Cut(pair, "=")
		if !ok {
			continue
		}
		key, value = strings.TrimSpace(key), strings.TrimSpace(value)
		if key == "" || value == "" {
			continue
		}
		out[key] = value
	}
	return out
}

func splitAndClean(input string) []string {
	if input == "" {
		return nil
	}
	return cleanStrings(strings.Split(input, ","))
}

func cleanStrings(items []string) []string {
	out := make([]string, 0, len(items))
	for _, item := range items {
		item = strings.TrimSpace(item)
		if item == "" {
			continue
		}
		out = append(out, item)
	}
	return out
}

func merge(maps ...map[string]interface{}) map[string]interface{} {
	out := make(map[string]interface{})
	for _, m := range maps {
		for k, v := range m {
			out[k] = v
		}
	}
	return out
}
