package feed_test

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"lpAnalytics/internal/aggregate"
	"lpAnalytics/internal/feed"
	"lpAnalytics/internal/metrics"
	"lpAnalytics/internal/model"
)

func swapLine(t *testing.T, logIndex uint64) string {
	t.Helper()
	rec := model.TypedEventRecord{
		ChainID:   1,
		TxHash:    "0xabc",
		LogIndex:  logIndex,
		Address:   "0x88e6a0c2ddd26feeb64f039a2c41296fcb3f5640",
		EventName: model.EventSwap,
		Timestamp: 1700000000,
		Decoded:   json.RawMessage(`{"amount0":"1","amount1":"-2","sqrt_price_x96":"1","liquidity":"1"}`),
	}
	b, err := json.Marshal(rec)
	require.NoError(t, err)
	return string(b)
}

func writeFile(t *testing.T, lines ...string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "events.jsonl")
	require.NoError(t, os.WriteFile(path, []byte(strings.Join(lines, "\n")+"\n"), 0o644))
	return path
}

func TestJSONLSourceReplaysInOrder(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := metrics.New(reg)
	path := writeFile(t, swapLine(t, 1), "", "{not json", swapLine(t, 2), swapLine(t, 3))

	var got []uint64
	src := feed.NewJSONLSource(path, nil, m)
	err := src.Run(context.Background(), func(_ context.Context, rec model.TypedEventRecord) error {
		got = append(got, rec.LogIndex)
		if rec.LogIndex == 2 {
			return fmt.Errorf("%w: bad amount", aggregate.ErrMalformed)
		}
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, []uint64{1, 2, 3}, got)
	assert.Equal(t, 2.0, testutil.ToFloat64(m.FeedErrors.WithLabelValues("jsonl")))
	assert.Equal(t, "jsonl", src.Name())
}

func TestJSONLSourceStopsOnHandlerError(t *testing.T) {
	path := writeFile(t, swapLine(t, 1), swapLine(t, 2))
	boom := errors.New("store down")

	calls := 0
	err := feed.NewJSONLSource(path, nil, nil).Run(context.Background(), func(context.Context, model.TypedEventRecord) error {
		calls++
		return boom
	})
	require.ErrorIs(t, err, boom)
	assert.Contains(t, err.Error(), "line 1")
	assert.Equal(t, 1, calls)
}

func TestJSONLSourceMissingFile(t *testing.T) {
	err := feed.NewJSONLSource(filepath.Join(t.TempDir(), "nope.jsonl"), nil, nil).
		Run(context.Background(), func(context.Context, model.TypedEventRecord) error { return nil })
	require.Error(t, err)
}

func TestJSONLSourceCancelled(t *testing.T) {
	path := writeFile(t, swapLine(t, 1))
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	err := feed.NewJSONLSource(path, nil, nil).Run(ctx, func(context.Context, model.TypedEventRecord) error { return nil })
	require.ErrorIs(t, err, context.Canceled)
}
