package views

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"lpAnalytics/internal/aggregate"
	"lpAnalytics/internal/metrics"
)

// Database is what the synthesizer needs from the store.
type Database interface {
	// Columns lists a table's columns in physical order. A missing table
	// yields no columns.
	Columns(ctx context.Context, table string) ([]Column, error)
	// ExecTx runs all statements in one transaction.
	ExecTx(ctx context.Context, stmts []string) error
}

// Config names the tables to read and the valuation inputs.
type Config struct {
	ChainID    uint64
	HourTable  string
	DayTable   string
	PoolsTable string
	Stables    []string
	// APRWindows lists trailing windows in days. Used only when the day
	// table carries a TVL column.
	APRWindows []int
}

type Synthesizer struct {
	cfg     Config
	db      Database
	logger  *zap.Logger
	metrics *metrics.Metrics
}

func NewSynthesizer(cfg Config, db Database, logger *zap.Logger, m *metrics.Metrics) (*Synthesizer, error) {
	if db == nil {
		return nil, errors.New("views: database is nil")
	}
	if cfg.HourTable == "" {
		cfg.HourTable = "pool_hour_data"
	}
	if cfg.DayTable == "" {
		cfg.DayTable = "pool_day_data"
	}
	if cfg.PoolsTable == "" {
		cfg.PoolsTable = "pools"
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Synthesizer{cfg: cfg, db: db, logger: logger, metrics: m}, nil
}

// Plan introspects both tables and renders every statement Sync would run.
// Nothing is executed. Both tables are always resolved; their
// *ResolutionErrors come back joined so one run names every missing role.
func (s *Synthesizer) Plan(ctx context.Context) ([]string, error) {
	target := Target{ChainID: s.cfg.ChainID, PoolsTable: s.cfg.PoolsTable, Stables: s.cfg.Stables}

	var (
		creates  []string
		unsolved []error
		dayTVL   bool
	)
	for _, tbl := range []struct {
		table string
		g     aggregate.Granularity
	}{
		{s.cfg.HourTable, aggregate.Hour},
		{s.cfg.DayTable, aggregate.Day},
	} {
		cols, err := s.db.Columns(ctx, tbl.table)
		if err != nil {
			return nil, fmt.Errorf("introspect %s: %w", tbl.table, err)
		}
		res, err := Resolve(tbl.table, tbl.g, cols)
		if err != nil {
			unsolved = append(unsolved, err)
			continue
		}
		sql, err := RenderFees(res, target)
		if err != nil {
			var resErr *ResolutionError
			if errors.As(err, &resErr) {
				unsolved = append(unsolved, err)
				continue
			}
			return nil, err
		}
		s.logger.Debug("resolved columns",
			zap.String("table", tbl.table),
			zap.String("fee0", res.Fee0.Name),
			zap.String("fee1", res.Fee1.Name),
			zap.String("time", res.Time.Name),
			zap.Bool("tvl", res.TVL != nil),
		)
		creates = append(creates, sql)
		if tbl.g == aggregate.Day && res.TVL != nil {
			dayTVL = true
		}
	}

	if len(unsolved) > 0 {
		return nil, errors.Join(unsolved...)
	}

	if dayTVL {
		sql, err := RenderLatestTVL()
		if err != nil {
			return nil, err
		}
		creates = append(creates, sql)
		for _, days := range s.cfg.APRWindows {
			sql, err := RenderFeeAPR(days)
			if err != nil {
				return nil, err
			}
			creates = append(creates, sql)
		}
	}

	// Dependent views go first; CASCADE clears APR windows dropped from config.
	stmts := []string{
		"DROP VIEW IF EXISTS " + quoteColumn(HourFeesView) + " CASCADE",
		"DROP VIEW IF EXISTS " + quoteColumn(DayFeesView) + " CASCADE",
	}
	return append(stmts, creates...), nil
}

// Sync (re)creates the views in one transaction. On a resolution failure no
// statement runs and existing views are left as they were.
func (s *Synthesizer) Sync(ctx context.Context) error {
	stmts, err := s.Plan(ctx)
	if err != nil {
		var resErr *ResolutionError
		if errors.As(err, &resErr) {
			s.metrics.ViewSync("unresolved")
		} else {
			s.metrics.ViewSync("error")
		}
		return err
	}
	if err := s.db.ExecTx(ctx, stmts); err != nil {
		s.metrics.ViewSync("error")
		return fmt.Errorf("create views: %w", err)
	}
	s.metrics.ViewSync("ok")
	s.logger.Info("views synced", zap.Uint64("chain_id", s.cfg.ChainID), zap.Int("statements", len(stmts)))
	return nil
}
