package dedupe

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestMemorySeenAndExpiry(t *testing.T) {
	ctx := context.Background()
	m := NewMemory(zap.NewNop(), time.Minute, 0)
	defer m.Close()

	now := time.Unix(1700000000, 0)
	m.now = func() time.Time { return now }

	seen, err := m.Seen(ctx, "1:0xabc:3")
	require.NoError(t, err)
	assert.False(t, seen)

	seen, _ = m.Seen(ctx, "1:0xabc:3")
	assert.True(t, seen)

	now = now.Add(2 * time.Minute)
	seen, _ = m.Seen(ctx, "1:0xabc:3")
	assert.False(t, seen, "expired ids are new again")
}

func TestMemoryReleaseAndSweep(t *testing.T) {
	ctx := context.Background()
	m := NewMemory(nil, time.Minute, 0)
	defer m.Close()

	now := time.Unix(1700000000, 0)
	m.now = func() time.Time { return now }

	_, _ = m.Seen(ctx, "a")
	_, _ = m.Seen(ctx, "b")
	require.NoError(t, m.Release(ctx, "a"))

	seen, _ := m.Seen(ctx, "a")
	assert.False(t, seen)

	now = now.Add(time.Hour)
	assert.Equal(t, 2, m.sweep())
	assert.Equal(t, 0, m.Len())
}

func TestRedisSeen(t *testing.T) {
	ctx := context.Background()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer client.Close()

	d, err := NewRedis(client, time.Hour, "test:")
	require.NoError(t, err)

	seen, err := d.Seen(ctx, "1:0xabc:3")
	require.NoError(t, err)
	assert.False(t, seen)
	assert.True(t, mr.Exists("test:1:0xabc:3"))

	seen, err = d.Seen(ctx, "1:0xabc:3")
	require.NoError(t, err)
	assert.True(t, seen)

	mr.FastForward(2 * time.Hour)
	seen, err = d.Seen(ctx, "1:0xabc:3")
	require.NoError(t, err)
	assert.False(t, seen)

	require.NoError(t, d.Release(ctx, "1:0xabc:3"))
	assert.False(t, mr.Exists("test:1:0xabc:3"))
}

func TestRedisDefaults(t *testing.T) {
	_, err := NewRedis(nil, time.Hour, "")
	assert.Error(t, err)

	mr := miniredis.RunT(t)
	client, err := Dial(context.Background(), mr.Addr(), "", 0)
	require.NoError(t, err)
	defer client.Close()

	d, err := NewRedis(client, time.Hour, "")
	require.NoError(t, err)
	assert.Equal(t, defaultPrefix, d.prefix)

	mr.SetError("boom")
	_, err = d.Seen(context.Background(), "x")
	assert.Error(t, err)
}

func TestNop(t *testing.T) {
	var d Deduper = Nop{}
	seen, err := d.Seen(context.Background(), "x")
	require.NoError(t, err)
	assert.False(t, seen)
}
