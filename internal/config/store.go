package config

import (
	"errors"
	"fmt"
	"time"

	"github.com/spf13/pflag"
)

// MigrateConfig holds settings for the migrate command.
type MigrateConfig struct {
	Postgres Postgres
	LogLevel string
}

// LoadMigrate merges config file, environment variables, and flags into MigrateConfig.
func LoadMigrate(cfgFile string, flags *pflag.FlagSet) (MigrateConfig, error) {
	v, err := newViper(cfgFile, flags, postgresDefaults)
	if err != nil {
		return MigrateConfig{}, err
	}
	pg, err := loadPostgres(v)
	if err != nil {
		return MigrateConfig{}, err
	}
	return MigrateConfig{Postgres: pg, LogLevel: v.GetString("log-level")}, nil
}

// ViewsConfig holds settings for the views command.
type ViewsConfig struct {
	Postgres   Postgres
	ChainID    uint64
	HourTable  string
	DayTable   string
	PoolsTable string
	// RulesFile supplies the stable list of ChainID. Stables adds to it.
	RulesFile  string
	Stables    []string
	APRWindows []int
	LogLevel   string
}

// LoadViews merges config file, environment variables, and flags into ViewsConfig.
func LoadViews(cfgFile string, flags *pflag.FlagSet) (ViewsConfig, error) {
	v, err := newViper(cfgFile, flags, merge(postgresDefaults, map[string]interface{}{
		"chain-id":    uint64(1),
		"hour-table":  "pool_hour_data",
		"day-table":   "pool_day_data",
		"pools-table": "pools",
		"apr-windows": "7,30",
	}))
	if err != nil {
		return ViewsConfig{}, err
	}

	cfg := ViewsConfig{
		ChainID:    v.GetUint64("chain-id"),
		HourTable:  v.GetString("hour-table"),
		DayTable:   v.GetString("day-table"),
		PoolsTable: v.GetString("pools-table"),
		RulesFile:  v.GetString("rules"),
		Stables:    getStringSlice(v, "stable"),
		LogLevel:   v.GetString("log-level"),
	}
	if cfg.APRWindows, err = getIntSlice(v, "apr-windows"); err != nil {
		return ViewsConfig{}, err
	}
	for _, days := range cfg.APRWindows {
		if days <= 0 {
			return ViewsConfig{}, fmt.Errorf("apr window must be positive, got %d", days)
		}
	}
	if cfg.Postgres, err = loadPostgres(v); err != nil {
		return ViewsConfig{}, err
	}
	return cfg, nil
}

// TopConfig holds settings for the top command.
type TopConfig struct {
	Postgres Postgres
	// By is the ranking metric: fees or volume.
	By       string
	Window   string
	Lookback int
	Limit    int
	Version  int
	Token    string
	FeeMin   uint32
	FeeMax   uint32
	// At anchors the lookback. Zero means now.
	At       time.Time
	JSON     bool
	LogLevel string
}

// LoadTop merges config file, environment variables, and flags into TopConfig.
func LoadTop(cfgFile string, flags *pflag.FlagSet) (TopConfig, error) {
	v, err := newViper(cfgFile, flags, merge(postgresDefaults, map[string]interface{}{
		"by":       "fees",
		"window":   "day",
		"lookback": 7,
		"limit":    20,
	}))
	if err != nil {
		return TopConfig{}, err
	}

	cfg := TopConfig{
		By:       v.GetString("by"),
		Window:   v.GetString("window"),
		Lookback: v.GetInt("lookback"),
		Limit:    v.GetInt("limit"),
		Version:  v.GetInt("version"),
		Token:    v.GetString("token"),
		FeeMin:   v.GetUint32("fee-min"),
		FeeMax:   v.GetUint32("fee-max"),
		JSON:     v.GetBool("json"),
		LogLevel: v.GetString("log-level"),
	}
	if cfg.By != "fees" && cfg.By != "volume" {
		return TopConfig{}, fmt.Errorf("by must be fees or volume, got %q", cfg.By)
	}
	if cfg.Window != "day" && cfg.Window != "hour" {
		return TopConfig{}, fmt.Errorf("window must be day or hour, got %q", cfg.Window)
	}
	if cfg.Lookback <= 0 || cfg.Limit <= 0 {
		return TopConfig{}, errors.New("lookback and limit must be positive")
	}
	if cfg.Version != 0 && cfg.Version != 3 && cfg.Version != 4 {
		return TopConfig{}, fmt.Errorf("version must be 3 or 4, got %d", cfg.Version)
	}
	if cfg.FeeMax != 0 && cfg.FeeMin > cfg.FeeMax {
		return TopConfig{}, fmt.Errorf("fee-min %d exceeds fee-max %d", cfg.FeeMin, cfg.FeeMax)
	}
	if cfg.At, err = ParseTimestamp(v.GetString("at")); err != nil {
		return TopConfig{}, fmt.Errorf("parse at: %w", err)
	}
	if cfg.Postgres, err = loadPostgres(v); err != nil {
		return TopConfig{}, err
	}
	return cfg, nil
}
