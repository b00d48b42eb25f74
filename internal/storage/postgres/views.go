package postgres

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/shopspring/decimal"

	"lpAnalytics/internal/aggregate"
	"lpAnalytics/internal/views"
)

// Columns lists a table's columns in physical order. table may be
// schema-qualified; otherwise the current schema is searched.
func (s *Store) Columns(ctx context.Context, table string) ([]views.Column, error) {
	schema, name := "", table
	if i := strings.IndexByte(table, '.'); i >= 0 {
		schema, name = table[:i], table[i+1:]
	}
	rows, err := s.pool.Query(ctx, `
		SELECT column_name, data_type, ordinal_position
		FROM information_schema.columns
		WHERE table_name = $1
		  AND table_schema = COALESCE(NULLIF($2, ''), current_schema())
		ORDER BY ordinal_position
	`, name, schema)
	if err != nil {
		return nil, err
	}
	return pgx.CollectRows(rows, func(row pgx.CollectableRow) (views.Column, error) {
		var c views.Column
		var ordinal int32
		if err := row.Scan(&c.Name, &c.DataType, &ordinal); err != nil {
			return views.Column{}, err
		}
		c.Ordinal = int(ordinal)
		return c, nil
	})
}

// ExecTx runs stmts in a single transaction.
func (s *Store) ExecTx(ctx context.Context, stmts []string) error {
	return pgx.BeginFunc(ctx, s.pool, func(tx pgx.Tx) error {
		for i, stmt := range stmts {
			if _, err := tx.Exec(ctx, stmt); err != nil {
				return fmt.Errorf("statement %d: %w", i, err)
			}
		}
		return nil
	})
}

// TopMetric selects what TopPools ranks by.
type TopMetric string

const (
	// TopByFees sums fees_usd from the synthesized fee views.
	TopByFees   TopMetric = "fees"
	// TopByVolume sums volume_usd from the bucket tables.
	TopByVolume TopMetric = "volume"
)

// TopQuery filters the ranking. The filters apply to both metrics.
type TopQuery struct {
	By       TopMetric
	Window   aggregate.Granularity
	Lookback int
	Limit    int
	Version  int
	Token    string
	FeeMin   uint32
	FeeMax   uint32
	Now      time.Time
}

// TopPool is one ranked pool. ValueUSD holds the summed metric.
type TopPool struct {
	PoolID   string
	ChainID  uint64
	Version  int
	FeeTier  uint32
	Token0   string
	Symbol0  string
	Token1   string
	Symbol1  string
	ValueUSD decimal.Decimal
	Buckets  int64
}

// topSource returns the relation, its start-time predicate over $1 and the
// summed column for a metric.
func topSource(by TopMetric, g aggregate.Granularity) (from, since, value string, err error) {
	switch by {
	case TopByFees, "":
		return pgx.Identifier{views.FeesView(g)}.Sanitize(), "f.bucket_ts >= to_timestamp($1::bigint)", "f.fees_usd", nil
	case TopByVolume:
		if g == aggregate.Hour {
			return "pool_hour_data", "f.hour_start_unix >= $1::bigint", "f.volume_usd", nil
		}
		return "pool_day_data", "f.date >= $1::bigint", "f.volume_usd", nil
	default:
		return "", "", "", fmt.Errorf("unknown top metric %q", by)
	}
}

// TopPools ranks pools by USD fees (from the synthesized fee views) or USD
// volume (from the bucket tables) over the last Lookback buckets. Buckets
// without a USD value are left out.
func (s *Store) TopPools(ctx context.Context, q TopQuery) ([]TopPool, error) {
	if q.Lookback <= 0 {
		q.Lookback = 30
	}
	if q.Limit <= 0 {
		q.Limit = 20
	}
	if q.Now.IsZero() {
		q.Now = time.Now()
	}
	from, sinceCond, value, err := topSource(q.By, q.Window)
	if err != nil {
		return nil, err
	}
	since := q.Now.Unix() - int64(q.Lookback)*q.Window.Width()

	query := fmt.Sprintf(`
		SELECT p.id, p.chain_id, p.version, p.fee_tier,
			p.token0, COALESCE(t0.symbol, ''), p.token1, COALESCE(t1.symbol, ''),
			sum(%[3]s)::text AS value_usd, count(*) AS buckets
		FROM %[1]s f
		JOIN pools p ON p.id = f.pool_id
		JOIN tokens t0 ON t0.chain_id = p.chain_id AND t0.address = p.token0
		JOIN tokens t1 ON t1.chain_id = p.chain_id AND t1.address = p.token1
		WHERE %[2]s
		  AND %[3]s IS NOT NULL
		  AND ($2 = 0 OR p.version = $2)
		  AND ($3 = '' OR p.token0 = $3 OR p.token1 = $3)
		  AND ($4 = 0 OR p.fee_tier >= $4)
		  AND ($5 = 0 OR p.fee_tier <= $5)
		GROUP BY p.id, p.chain_id, p.version, p.fee_tier, p.token0, t0.symbol, p.token1, t1.symbol
		ORDER BY sum(%[3]s) DESC
		LIMIT $6
	`, from, sinceCond, value)

	rows, err := s.pool.Query(ctx, query,
		since, int16(q.Version), strings.ToLower(q.Token), int32(q.FeeMin), int32(q.FeeMax), q.Limit)
	if err != nil {
		return nil, err
	}
	return pgx.CollectRows(rows, func(row pgx.CollectableRow) (TopPool, error) {
		var (
			tp      TopPool
			chainID int64
			version int16
			feeTier int32
			total   string
		)
		if err := row.Scan(&tp.PoolID, &chainID, &version, &feeTier,
			&tp.Token0, &tp.Symbol0, &tp.Token1, &tp.Symbol1, &total, &tp.Buckets); err != nil {
			return TopPool{}, err
		}
		d, err := decimal.NewFromString(total)
		if err != nil {
			return TopPool{}, fmt.Errorf("parse %s %q: %w", value, total, err)
		}
		tp.ChainID = uint64(chainID)
		tp.Version = int(version)
		tp.FeeTier = uint32(feeTier)
		tp.ValueUSD = d
		return tp, nil
	})
}
