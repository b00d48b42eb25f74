package views

import (
	"fmt"
	"regexp"
	"sort"
	"strconv"
	"strings"
	"text/template"

	"github.com/ethereum/go-ethereum/common"
	"github.com/jackc/pgx/v5"

	"lpAnalytics/internal/aggregate"
)

const (
	HourFeesView  = "v_pool_hour_fees_usd_partial"
	DayFeesView   = "v_pool_day_fees_usd_partial"
	LatestTVLView = "v_pool_latest_tvl"
)

// FeeAPRView names the APR view for a trailing window of days.
func FeeAPRView(days int) string {
	return "v_pool_fee_apr_" + strconv.Itoa(days) + "d"
}

// FeesView names the fee view for a granularity.
func FeesView(g aggregate.Granularity) string {
	if g == aggregate.Day {
		return DayFeesView
	}
	return HourFeesView
}

var identPattern = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)

// quoteTable validates a possibly schema-qualified table name and quotes it.
func quoteTable(name string) (string, error) {
	parts := strings.Split(name, ".")
	if len(parts) > 2 {
		return "", fmt.Errorf("invalid table name %q", name)
	}
	for _, p := range parts {
		if !identPattern.MatchString(p) {
			return "", fmt.Errorf("invalid table name %q", name)
		}
	}
	return pgx.Identifier(parts).Sanitize(), nil
}

func quoteColumn(name string) string {
	return pgx.Identifier{name}.Sanitize()
}

// stableArray renders a text[] literal of validated, lowercased addresses.
func stableArray(stables []string) (string, error) {
	seen := make(map[string]struct{}, len(stables))
	out := make([]string, 0, len(stables))
	for _, s := range stables {
		s = strings.ToLower(strings.TrimSpace(s))
		if !common.IsHexAddress(s) || !strings.HasPrefix(s, "0x") {
			return "", fmt.Errorf("invalid stable address %q", s)
		}
		if _, ok := seen[s]; ok {
			continue
		}
		seen[s] = struct{}{}
		out = append(out, "'"+s+"'")
	}
	sort.Strings(out)
	return "ARRAY[" + strings.Join(out, ", ") + "]::text[]", nil
}

var feesTmpl = template.Must(template.New("fees").Parse(`CREATE VIEW {{.View}} AS
SELECT
    b.{{.Pool}} AS pool_id,
    p.chain_id,
    {{.BucketTs}} AS bucket_ts,
    b.{{.Fee0}} AS fees_token0,
    b.{{.Fee1}} AS fees_token1,
    CASE
        WHEN lower(p.token0) = ANY({{.Stables}}) AND NOT (lower(p.token1) = ANY({{.Stables}})) THEN b.{{.Fee0}}
        WHEN lower(p.token1) = ANY({{.Stables}}) AND NOT (lower(p.token0) = ANY({{.Stables}})) THEN b.{{.Fee1}}
        ELSE NULL
    END AS fees_usd{{if .TVL}},
    b.{{.TVL}} AS tvl_usd{{end}}
FROM {{.Table}} b
JOIN {{.Pools}} p ON p.id = b.{{.Pool}}
WHERE p.chain_id = {{.ChainID}}`))

var latestTVLTmpl = template.Must(template.New("latest_tvl").Parse(`CREATE VIEW {{.View}} AS
SELECT DISTINCT ON (pool_id) pool_id, chain_id, bucket_ts, tvl_usd
FROM {{.Source}}
WHERE tvl_usd IS NOT NULL
ORDER BY pool_id, bucket_ts DESC`))

var aprTmpl = template.Must(template.New("apr").Parse(`CREATE VIEW {{.View}} AS
SELECT
    pool_id,
    chain_id,
    sum(fees_usd) AS fees_usd,
    avg(tvl_usd) AS avg_tvl_usd,
    CASE WHEN avg(tvl_usd) > 0 THEN sum(fees_usd) / avg(tvl_usd) * 365 / {{.Days}} ELSE NULL END AS fee_apr
FROM {{.Source}}
WHERE bucket_ts >= now() - interval '{{.Days}} days'
GROUP BY pool_id, chain_id`))

// Target describes where views read from.
type Target struct {
	ChainID    uint64
	PoolsTable string
	Stables    []string
}

// RenderFees renders the USD fee view for a resolved table.
func RenderFees(res Resolution, t Target) (string, error) {
	if res.Pool == nil {
		return "", &ResolutionError{Table: res.Table, Missing: []Role{RolePool}}
	}
	table, err := quoteTable(res.Table)
	if err != nil {
		return "", err
	}
	pools, err := quoteTable(t.PoolsTable)
	if err != nil {
		return "", err
	}
	stables, err := stableArray(t.Stables)
	if err != nil {
		return "", err
	}

	bucketTs := "b." + quoteColumn(res.Time.Name) + "::timestamptz"
	if res.Time.Integral() {
		bucketTs = "to_timestamp(b." + quoteColumn(res.Time.Name) + ")"
	}
	var tvl string
	if res.TVL != nil {
		tvl = quoteColumn(res.TVL.Name)
	}

	return execute(feesTmpl, struct {
		View, Table, Pools, Pool, Fee0, Fee1, TVL, BucketTs, Stables, ChainID string
	}{
		View:     quoteColumn(FeesView(res.Granularity)),
		Table:    table,
		Pools:    pools,
		Pool:     quoteColumn(res.Pool.Name),
		Fee0:     quoteColumn(res.Fee0.Name),
		Fee1:     quoteColumn(res.Fee1.Name),
		TVL:      tvl,
		BucketTs: bucketTs,
		Stables:  stables,
		ChainID:  strconv.FormatUint(t.ChainID, 10),
	})
}

// RenderLatestTVL renders the latest-TVL view over the day fee view.
func RenderLatestTVL() (string, error) {
	return execute(latestTVLTmpl, struct{ View, Source string }{
		View:   quoteColumn(LatestTVLView),
		Source: quoteColumn(DayFeesView),
	})
}

// RenderFeeAPR renders the trailing fee APR view for days.
func RenderFeeAPR(days int) (string, error) {
	if days <= 0 {
		return "", fmt.Errorf("apr window must be positive, got %d", days)
	}
	return execute(aprTmpl, struct {
		View, Source string
		Days         int
	}{
		View:   quoteColumn(FeeAPRView(days)),
		Source: quoteColumn(DayFeesView),
		Days:   days,
	})
}

func execute(t *template.Template, data any) (string, error) {
	var b strings.Builder
	if err := t.Execute(&b, data); err != nil {
		return "", fmt.Errorf("render %s: %w", t.Name(), err)
	}
	return b.String(), nil
}
