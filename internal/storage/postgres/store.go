package postgres

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"lpAnalytics/internal/aggregate"
	"lpAnalytics/internal/model"
)

// Store provides Postgres persistence for pools, tokens and bucket rows.
type Store struct {
	pool *pgxpool.Pool
}

// Options tunes the connection pool. Zero values keep pgx defaults.
type Options struct {
	MaxConns        int32
	MinConns        int32
	MaxConnLifetime time.Duration
	MaxConnIdleTime time.Duration
}

func NewStore(ctx context.Context, dsn string, opts Options) (*Store, error) {
	if dsn == "" {
		return nil, fmt.Errorf("pg dsn is required")
	}
	cfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("parse pg dsn: %w", err)
	}
	if opts.MaxConns > 0 {
		cfg.MaxConns = opts.MaxConns
	}
	if opts.MinConns > 0 {
		cfg.MinConns = opts.MinConns
	}
	if opts.MaxConnLifetime > 0 {
		cfg.MaxConnLifetime = opts.MaxConnLifetime
	}
	if opts.MaxConnIdleTime > 0 {
		cfg.MaxConnIdleTime = opts.MaxConnIdleTime
	}

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("create pg pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping pg: %w", err)
	}
	return &Store{pool: pool}, nil
}

func (s *Store) Close() {
	if s.pool != nil {
		s.pool.Close()
	}
}

func (s *Store) Pool(ctx context.Context, id string) (model.Pool, bool, error) {
	var (
		p                     model.Pool
		chainID, createdBlock int64
		version               int16
		feeTier               int32
	)
	err := s.pool.QueryRow(ctx, `
		SELECT id, chain_id, version, token0, token1, fee_tier, tick_spacing, created_at_ts, created_block
		FROM pools WHERE id = $1
	`, strings.ToLower(id)).Scan(
		&p.ID, &chainID, &version, &p.Token0, &p.Token1, &feeTier, &p.TickSpacing, &p.CreatedAt, &createdBlock,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return model.Pool{}, false, nil
		}
		return model.Pool{}, false, err
	}
	p.ChainID = uint64(chainID)
	p.Version = int(version)
	p.FeeTier = uint32(feeTier)
	p.CreatedBlock = uint64(createdBlock)
	return p, true, nil
}

func (s *Store) Token(ctx context.Context, chainID uint64, address string) (model.Token, bool, error) {
	token, err := scanToken(s.pool.QueryRow(ctx, selectToken, int64(chainID), strings.ToLower(address)))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return model.Token{}, false, nil
		}
		return model.Token{}, false, err
	}
	return token, true, nil
}

const selectToken = `
	SELECT chain_id, address, COALESCE(symbol, ''), COALESCE(name, ''), decimals, created_at_ts
	FROM tokens WHERE chain_id = $1 AND address = $2
`

func scanToken(row pgx.Row) (model.Token, error) {
	var (
		t        model.Token
		chainID  int64
		decimals int16
	)
	if err := row.Scan(&chainID, &t.Address, &t.Symbol, &t.Name, &decimals, &t.CreatedAt); err != nil {
		return model.Token{}, err
	}
	t.ChainID = uint64(chainID)
	t.Decimals = uint8(decimals)
	return t, nil
}

// EnsureToken inserts the token unless it already exists and returns the
// stored row, so concurrent first sightings agree on one set of metadata.
func (s *Store) EnsureToken(ctx context.Context, token model.Token) (model.Token, error) {
	addr := strings.ToLower(token.Address)
	_, err := s.pool.Exec(ctx, `
		INSERT INTO tokens (chain_id, address, symbol, name, decimals, created_at_ts)
		VALUES ($1, $2, NULLIF($3, ''), NULLIF($4, ''), $5, $6)
		ON CONFLICT (chain_id, address) DO NOTHING
	`, int64(token.ChainID), addr, token.Symbol, token.Name, int16(token.Decimals), token.CreatedAt)
	if err != nil {
		return model.Token{}, fmt.Errorf("insert token: %w", err)
	}
	stored, err := scanToken(s.pool.QueryRow(ctx, selectToken, int64(token.ChainID), addr))
	if err != nil {
		return model.Token{}, fmt.Errorf("select token: %w", err)
	}
	return stored, nil
}

func (s *Store) EnsurePool(ctx context.Context, p model.Pool) (bool, error) {
	tag, err := s.pool.Exec(ctx, `
		INSERT INTO pools (id, chain_id, version, token0, token1, fee_tier, tick_spacing, created_at_ts, created_block)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		ON CONFLICT (id) DO NOTHING
	`,
		strings.ToLower(p.ID),
		int64(p.ChainID),
		int16(p.Version),
		strings.ToLower(p.Token0),
		strings.ToLower(p.Token1),
		int32(p.FeeTier),
		p.TickSpacing,
		p.CreatedAt,
		int64(p.CreatedBlock),
	)
	if err != nil {
		if isDuplicateKeyError(err) {
			return false, nil
		}
		return false, err
	}
	return tag.RowsAffected() == 1, nil
}

// Numeric parameters travel as text so no precision is lost on the way in.
const upsertHour = `
	INSERT INTO pool_hour_data AS t (
		pool_id, hour_index, hour_start_unix, volume_token0, volume_token1, fees_token0, fees_token1,
		swap_count, volume_usd, fees_usd, tvl_usd, price0, price1, updated_at
	) VALUES (
		$1, $2, $3, $4::text::numeric, $5::text::numeric, $6::text::numeric, $7::text::numeric,
		$8, $9::text::numeric, $10::text::numeric, $11::text::numeric, $12::text::numeric, $13::text::numeric, $14
	)
	ON CONFLICT (pool_id, hour_index) DO UPDATE SET` + mergeColumns

const upsertDay = `
	INSERT INTO pool_day_data AS t (
		pool_id, day_index, date, volume_token0, volume_token1, fees_token0, fees_token1,
		swap_count, volume_usd, fees_usd, tvl_usd, price0, price1, updated_at
	) VALUES (
		$1, $2, $3, $4::text::numeric, $5::text::numeric, $6::text::numeric, $7::text::numeric,
		$8, $9::text::numeric, $10::text::numeric, $11::text::numeric, $12::text::numeric, $13::text::numeric, $14
	)
	ON CONFLICT (pool_id, day_index) DO UPDATE SET` + mergeColumns

const mergeColumns = `
		volume_token0 = t.volume_token0 + EXCLUDED.volume_token0,
		volume_token1 = t.volume_token1 + EXCLUDED.volume_token1,
		fees_token0 = t.fees_token0 + EXCLUDED.fees_token0,
		fees_token1 = t.fees_token1 + EXCLUDED.fees_token1,
		swap_count = t.swap_count + EXCLUDED.swap_count,
		volume_usd = CASE WHEN EXCLUDED.volume_usd IS NULL THEN t.volume_usd
			ELSE COALESCE(t.volume_usd, 0) + EXCLUDED.volume_usd END,
		fees_usd = CASE WHEN EXCLUDED.fees_usd IS NULL THEN t.fees_usd
			ELSE COALESCE(t.fees_usd, 0) + EXCLUDED.fees_usd END,
		tvl_usd = COALESCE(EXCLUDED.tvl_usd, t.tvl_usd),
		price0 = COALESCE(EXCLUDED.price0, t.price0),
		price1 = COALESCE(EXCLUDED.price1, t.price1),
		updated_at = GREATEST(t.updated_at, EXCLUDED.updated_at)
`

const upsertPrice = `
	INSERT INTO pool_price_hour AS t (
		pool_id, hour_index, hour_start_unix, sqrt_price_x96, price0, price1, liquidity, updated_at
	) VALUES ($1, $2, $3, $4::text::numeric, $5::text::numeric, $6::text::numeric, $7::text::numeric, $8)
	ON CONFLICT (pool_id, hour_index) DO UPDATE SET
		sqrt_price_x96 = EXCLUDED.sqrt_price_x96,
		price0 = EXCLUDED.price0,
		price1 = EXCLUDED.price1,
		liquidity = EXCLUDED.liquidity,
		updated_at = EXCLUDED.updated_at
	WHERE t.updated_at <= EXCLUDED.updated_at
`

// ApplyBuckets merges every bucket and price snapshot of acc in one
// transaction. Each row is a single read-modify-write statement, so
// concurrent writers to the same bucket serialize on the row lock.
func (s *Store) ApplyBuckets(ctx context.Context, acc *aggregate.Accumulator) error {
	if acc == nil || acc.Len() == 0 {
		return nil
	}
	batch := &pgx.Batch{}
	for _, b := range acc.Buckets() {
		query := upsertHour
		if b.Key.Granularity == aggregate.Day {
			query = upsertDay
		}
		batch.Queue(query,
			b.Key.PoolID,
			b.Key.Index,
			b.Key.Start(),
			b.Volume0.String(),
			b.Volume1.String(),
			b.Fees0.String(),
			b.Fees1.String(),
			int64(b.SwapCount),
			optional(b.VolumeUSD),
			optional(b.FeesUSD),
			optional(b.TVLUSD),
			optional(b.Price0),
			optional(b.Price1),
			b.UpdatedAt,
		)
	}
	for _, p := range acc.Prices() {
		var liquidity *string
		if p.Liquidity != nil {
			v := p.Liquidity.String()
			liquidity = &v
		}
		batch.Queue(upsertPrice,
			p.Key.PoolID,
			p.Key.Index,
			p.Key.Start(),
			p.SqrtPriceX96.String(),
			p.Price0.String(),
			p.Price1.String(),
			liquidity,
			p.UpdatedAt,
		)
	}

	return pgx.BeginFunc(ctx, s.pool, func(tx pgx.Tx) error {
		br := tx.SendBatch(ctx, batch)
		for i := 0; i < batch.Len(); i++ {
			if _, err := br.Exec(); err != nil {
				br.Close()
				return fmt.Errorf("bucket upsert %d: %w", i, err)
			}
		}
		return br.Close()
	})
}

// Bucket reads one stored row back. Used by the top command and tests.
func (s *Store) Bucket(ctx context.Context, key aggregate.BucketKey) (aggregate.Bucket, bool, error) {
	query := `
		SELECT volume_token0::text, volume_token1::text, fees_token0::text, fees_token1::text, swap_count,
			volume_usd::text, fees_usd::text, tvl_usd::text, price0::text, price1::text, updated_at
		FROM pool_hour_data WHERE pool_id = $1 AND hour_index = $2`
	if key.Granularity == aggregate.Day {
		query = strings.NewReplacer("pool_hour_data", "pool_day_data", "hour_index", "day_index").Replace(query)
	}

	var (
		v0, v1, f0, f1               string
		swaps                        int64
		volUSD, feesUSD, tvl, p0, p1 *string
		b                            = aggregate.Bucket{Key: key}
	)
	err := s.pool.QueryRow(ctx, query, key.PoolID, key.Index).Scan(
		&v0, &v1, &f0, &f1, &swaps, &volUSD, &feesUSD, &tvl, &p0, &p1, &b.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return aggregate.Bucket{}, false, nil
		}
		return aggregate.Bucket{}, false, err
	}
	for _, f := range []struct {
		src string
		dst *decimal.Decimal
	}{{v0, &b.Volume0}, {v1, &b.Volume1}, {f0, &b.Fees0}, {f1, &b.Fees1}} {
		d, err := decimal.NewFromString(f.src)
		if err != nil {
			return aggregate.Bucket{}, false, fmt.Errorf("parse numeric %q: %w", f.src, err)
		}
		*f.dst = d
	}
	b.SwapCount = uint64(swaps)
	if b.VolumeUSD, err = parseOptional(volUSD); err != nil {
		return aggregate.Bucket{}, false, err
	}
	if b.FeesUSD, err = parseOptional(feesUSD); err != nil {
		return aggregate.Bucket{}, false, err
	}
	if b.TVLUSD, err = parseOptional(tvl); err != nil {
		return aggregate.Bucket{}, false, err
	}
	if b.Price0, err = parseOptional(p0); err != nil {
		return aggregate.Bucket{}, false, err
	}
	if b.Price1, err = parseOptional(p1); err != nil {
		return aggregate.Bucket{}, false, err
	}
	return b, true, nil
}

// LoadState returns the last processed position for a name.
func (s *Store) LoadState(ctx context.Context, name string) (uint64, bool, error) {
	if name == "" {
		return 0, false, fmt.Errorf("state name required")
	}
	var pos int64
	row := s.pool.QueryRow(ctx, `SELECT last_processed FROM indexer_state WHERE name=$1`, name)
	if err := row.Scan(&pos); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return 0, false, nil
		}
		return 0, false, err
	}
	return uint64(pos), true, nil
}

// SaveState upserts the last processed position for a name.
func (s *Store) SaveState(ctx context.Context, name string, pos uint64) error {
	if name == "" {
		return fmt.Errorf("state name required")
	}
	_, err := s.pool.Exec(ctx, `
		INSERT INTO indexer_state (name, last_processed, updated_at)
		VALUES ($1, $2, now())
		ON CONFLICT (name) DO UPDATE
		SET last_processed = EXCLUDED.last_processed, updated_at = now()
	`, name, int64(pos))
	return err
}

func optional(d *decimal.Decimal) *string {
	if d == nil {
		return nil
	}
	v := d.String()
	return &v
}

func parseOptional(s *string) (*decimal.Decimal, error) {
	if s == nil {
		return nil, nil
	}
	d, err := decimal.NewFromString(*s)
	if err != nil {
		return nil, fmt.Errorf("parse numeric %q: %w", *s, err)
	}
	return &d, nil
}

func isDuplicateKeyError(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505"
}
