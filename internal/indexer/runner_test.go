package indexer

import (
	"context"
	"errors"
	"path/filepath"
	"reflect"
	"sync"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"

	"lpAnalytics/internal/model"
)

type fakeChain struct {
	mu        sync.Mutex
	latest    uint64
	logs      []types.Log
	failFirst int
	calls     []BlockRange
}

func (f *fakeChain) ChainID(context.Context) (uint64, error) { return 1, nil }

func (f *fakeChain) LatestBlockNumber(context.Context) (uint64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.latest, nil
}

func (f *fakeChain) BlockTimestamp(_ context.Context, n uint64) (uint64, error) {
	return 1700000000 + n*12, nil
}

func (f *fakeChain) FilterLogs(_ context.Context, from, to uint64, _ []common.Address, _ []common.Hash) ([]types.Log, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failFirst > 0 {
		f.failFirst--
		return nil, errors.New("rpc timeout")
	}
	f.calls = append(f.calls, BlockRange{From: from, To: to})
	var out []types.Log
	for _, l := range f.logs {
		if l.BlockNumber >= from && l.BlockNumber <= to {
			out = append(out, l)
		}
	}
	return out, nil
}

type memCheckpoint struct {
	last  uint64
	ok    bool
	saves []uint64
}

func (m *memCheckpoint) Load(context.Context) (uint64, bool, error) { return m.last, m.ok, nil }

func (m *memCheckpoint) Save(_ context.Context, n uint64) error {
	m.last, m.ok = n, true
	m.saves = append(m.saves, n)
	return nil
}

func testLogs() []types.Log {
	return []types.Log{
		{BlockNumber: 101, TxHash: common.HexToHash("0x01"), Index: 0, Topics: []common.Hash{common.HexToHash("0xaa")}},
		{BlockNumber: 103, TxHash: common.HexToHash("0x02"), Index: 4, Removed: true},
		{BlockNumber: 104, TxHash: common.HexToHash("0x03"), Index: 1, Data: []byte{0x01}},
	}
}

func TestRunnerBatchesAndCheckpoints(t *testing.T) {
	chain := &fakeChain{logs: testLogs(), failFirst: 1}
	cp := &memCheckpoint{}
	runner := NewRunner(RunConfig{FromBlock: 100, ToBlock: 105, BatchSize: 2, MaxRetries: 2, RetryBackoff: time.Millisecond}, chain, cp, nil, nil)

	var got []model.LogRecord
	err := runner.Run(context.Background(), func(_ context.Context, _ BlockRange, logs []model.LogRecord) error {
		got = append(got, logs...)
		return nil
	})
	if err != nil {
		t.Fatalf("run: %v", err)
	}

	if !reflect.DeepEqual(cp.saves, []uint64{101, 103, 105}) {
		t.Fatalf("checkpoints mismatch: %v", cp.saves)
	}
	if len(got) != 2 {
		t.Fatalf("expected 2 logs (removed skipped), got %d", len(got))
	}
	if got[0].Timestamp != 1700000000+101*12 || got[0].ChainID != 1 {
		t.Fatalf("record mismatch: %+v", got[0])
	}
	if got[1].Data != "0x01" || got[1].LogIndex != 1 {
		t.Fatalf("record mismatch: %+v", got[1])
	}
}

func TestRunnerResumesFromCheckpoint(t *testing.T) {
	chain := &fakeChain{logs: testLogs()}
	cp := &memCheckpoint{last: 103, ok: true}
	runner := NewRunner(RunConfig{FromBlock: 100, ToBlock: 105, BatchSize: 10}, chain, cp, nil, nil)

	if err := runner.Run(context.Background(), func(context.Context, BlockRange, []model.LogRecord) error { return nil }); err != nil {
		t.Fatalf("run: %v", err)
	}
	if !reflect.DeepEqual(chain.calls, []BlockRange{{From: 104, To: 105}}) {
		t.Fatalf("calls mismatch: %v", chain.calls)
	}
}

func TestRunnerBatchFailureKeepsCheckpoint(t *testing.T) {
	chain := &fakeChain{logs: testLogs()}
	cp := &memCheckpoint{}
	runner := NewRunner(RunConfig{FromBlock: 100, ToBlock: 105, BatchSize: 2}, chain, cp, nil, nil)

	boom := errors.New("store down")
	err := runner.Run(context.Background(), func(_ context.Context, r BlockRange, _ []model.LogRecord) error {
		if r.From == 102 {
			return boom
		}
		return nil
	})
	if !errors.Is(err, boom) {
		t.Fatalf("expected store error, got %v", err)
	}
	if !reflect.DeepEqual(cp.saves, []uint64{101}) {
		t.Fatalf("checkpoint advanced past failure: %v", cp.saves)
	}
}

func TestRunnerFollowUsesConfirmations(t *testing.T) {
	chain := &fakeChain{latest: 110, logs: testLogs()}
	cp := &memCheckpoint{}
	runner := NewRunner(RunConfig{
		FromBlock:     100,
		BatchSize:     100,
		Follow:        true,
		PollInterval:  time.Millisecond,
		Confirmations: 5,
	}, chain, cp, nil, nil)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	err := runner.Run(ctx, func(_ context.Context, r BlockRange, _ []model.LogRecord) error {
		if r.To == 105 {
			chain.mu.Lock()
			chain.latest = 112
			chain.mu.Unlock()
		}
		if r.To == 107 {
			cancel()
		}
		return nil
	})
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected cancellation, got %v", err)
	}
	if !reflect.DeepEqual(cp.saves, []uint64{105, 107}) {
		t.Fatalf("checkpoints mismatch: %v", cp.saves)
	}
}

func TestFileCheckpointRoundTrip(t *testing.T) {
	cp := NewFileCheckpoint(filepath.Join(t.TempDir(), "state", "checkpoint.json"))
	ctx := context.Background()

	if _, ok, err := cp.Load(ctx); err != nil || ok {
		t.Fatalf("expected empty checkpoint, got ok=%v err=%v", ok, err)
	}
	if err := cp.Save(ctx, 19000000); err != nil {
		t.Fatalf("save: %v", err)
	}
	last, ok, err := cp.Load(ctx)
	if err != nil || !ok || last != 19000000 {
		t.Fatalf("load mismatch: %d %v %v", last, ok, err)
	}
}

func TestRetryPolicy(t *testing.T) {
	policy := newRetryPolicy(2, time.Millisecond, nil)

	calls := 0
	err := policy.do(context.Background(), "test", func(context.Context) error {
		calls++
		return context.Canceled
	})
	if !errors.Is(err, context.Canceled) || calls != 1 {
		t.Fatalf("expected single attempt, got %d calls err=%v", calls, err)
	}

	calls = 0
	boom := errors.New("boom")
	err = policy.do(context.Background(), "test", func(context.Context) error {
		calls++
		return boom
	})
	if !errors.Is(err, boom) || calls != 3 {
		t.Fatalf("expected 3 attempts, got %d calls err=%v", calls, err)
	}

	calls = 0
	err = policy.do(context.Background(), "test", func(context.Context) error {
		calls++
		if calls < 2 {
			return boom
		}
		return nil
	})
	if err != nil || calls != 2 {
		t.Fatalf("expected success on second attempt, got %d calls err=%v", calls, err)
	}
}
