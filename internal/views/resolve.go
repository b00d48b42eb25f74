// Package views synthesizes USD fee views over whatever column names the
// aggregate tables happen to use.
package views

import (
	"fmt"
	"slices"
	"strings"

	"lpAnalytics/internal/aggregate"
)

// Role is a semantic column the views need.
type Role string

const (
	RoleFee0 Role = "fee0"
	RoleFee1 Role = "fee1"
	RoleTime Role = "time"
	RolePool Role = "pool"
	RoleTVL  Role = "tvl"
)

// Column is one physical column as reported by information_schema.
type Column struct {
	Name     string
	DataType string
	Ordinal  int
}

// Integral reports whether the column holds whole numbers, in which case a
// time column is read as unix seconds.
func (c Column) Integral() bool {
	switch strings.ToLower(c.DataType) {
	case "smallint", "integer", "bigint", "int2", "int4", "int8":
		return true
	}
	return false
}

type candidates struct {
	exact    []string
	prefixes []string
}

var feeCandidates = map[Role]candidates{
	RoleFee0: {
		exact: []string{"f0", "fee0", "fees0", "fee_token0", "fees_token0", "token0_fee", "token0_fees",
			"collected_fee0", "collected_fees0"},
		prefixes: []string{"fee0", "fees0", "fee_token0", "fees_token0", "token0_fee", "token0_fees"},
	},
	RoleFee1: {
		exact: []string{"f1", "fee1", "fees1", "fee_token1", "fees_token1", "token1_fee", "token1_fees",
			"collected_fee1", "collected_fees1"},
		prefixes: []string{"fee1", "fees1", "fee_token1", "fees_token1", "token1_fee", "token1_fees"},
	},
}

var timeCandidates = map[aggregate.Granularity]candidates{
	aggregate.Hour: {exact: []string{"hour_start_unix", "hour_start", "hour_ts", "ts", "timestamp", "ts_unix", "started_at"}},
	aggregate.Day:  {exact: []string{"date", "day", "day_start", "day_start_unix", "started_at"}},
}

var poolCandidates = candidates{exact: []string{"pool_id", "pool", "pool_address"}}

var tvlCandidates = candidates{exact: []string{"tvl_usd", "tvl", "total_value_locked_usd"}}

// Resolution maps roles to physical columns of one table.
type Resolution struct {
	Table       string
	Granularity aggregate.Granularity
	Fee0        Column
	Fee1        Column
	Time        Column
	// Pool and TVL are optional; nil when no candidate matched.
	Pool *Column
	TVL  *Column
}

// ResolutionError lists the required roles no column matched.
type ResolutionError struct {
	Table   string
	Missing []Role
}

func (e *ResolutionError) Error() string {
	names := make([]string, len(e.Missing))
	for i, r := range e.Missing {
		names[i] = string(r)
	}
	return fmt.Sprintf("table %s: no column for role(s) %s", e.Table, strings.Join(names, ", "))
}

// Resolve picks one column per role. Exact names beat prefix matches; within
// a tier the column with the lowest ordinal position wins.
func Resolve(table string, g aggregate.Granularity, cols []Column) (Resolution, error) {
	res := Resolution{Table: table, Granularity: g}
	var missing []Role

	required := []struct {
		role Role
		c    candidates
		dst  *Column
	}{
		{RoleFee0, feeCandidates[RoleFee0], &res.Fee0},
		{RoleFee1, feeCandidates[RoleFee1], &res.Fee1},
		{RoleTime, timeCandidates[g], &res.Time},
	}
	for _, r := range required {
		col, ok := pick(cols, r.c)
		if !ok {
			missing = append(missing, r.role)
			continue
		}
		*r.dst = col
	}
	if len(missing) > 0 {
		return Resolution{}, &ResolutionError{Table: table, Missing: missing}
	}

	if col, ok := pick(cols, poolCandidates); ok {
		res.Pool = &col
	}
	if col, ok := pick(cols, tvlCandidates); ok {
		res.TVL = &col
	}
	return res, nil
}

func pick(cols []Column, c candidates) (Column, bool) {
	if col, ok := lowest(cols, func(name string) bool { return slices.Contains(c.exact, name) }); ok {
		return col, true
	}
	return lowest(cols, func(name string) bool {
		for _, p := range c.prefixes {
			if strings.HasPrefix(name, p) {
				return true
			}
		}
		return false
	})
}

func lowest(cols []Column, match func(string) bool) (Column, bool) {
	var (
		best  Column
		found bool
	)
	for _, col := range cols {
		if !match(strings.ToLower(col.Name)) {
			continue
		}
		if !found || col.Ordinal < best.Ordinal {
			best = col
			found = true
		}
	}
	return best, found
}
