package dedupe

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"
)

// Memory is a single-process deduper with per-id expiry.
type Memory struct {
	logger *zap.Logger
	ttl    time.Duration
	now    func() time.Time

	mu      sync.Mutex
	items   map[string]int64
	stopCh  chan struct{}
	stopped bool
}

// NewMemory builds a deduper. janitorEvery = 0 disables background cleanup.
func NewMemory(logger *zap.Logger, ttl, janitorEvery time.Duration) *Memory {
	if logger == nil {
		logger = zap.NewNop()
	}
	m := &Memory{
		logger: logger,
		ttl:    ttl,
		now:    time.Now,
		items:  make(map[string]int64, 1024),
		stopCh: make(chan struct{}),
	}
	if janitorEvery > 0 {
		go m.janitor(janitorEvery)
	}
	return m
}

func (m *Memory) Seen(_ context.Context, id string) (bool, error) {
	now := m.now().UnixNano()

	m.mu.Lock()
	defer m.mu.Unlock()

	if exp, ok := m.items[id]; ok && exp > now {
		return true, nil
	}
	m.items[id] = now + m.ttl.Nanoseconds()
	return false, nil
}

func (m *Memory) Release(_ context.Context, id string) error {
	m.mu.Lock()
	delete(m.items, id)
	m.mu.Unlock()
	return nil
}

// Len returns the number of tracked ids, expired ones included.
func (m *Memory) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.items)
}

func (m *Memory) sweep() int {
	now := m.now().UnixNano()
	removed := 0
	m.mu.Lock()
	for id, exp := range m.items {
		if exp <= now {
			delete(m.items, id)
			removed++
		}
	}
	m.mu.Unlock()
	return removed
}

func (m *Memory) janitor(every time.Duration) {
	t := time.NewTicker(every)
	defer t.Stop()

	for {
		select {
		case <-m.stopCh:
			return
		case <-t.C:
			if n := m.sweep(); n > 0 {
				m.logger.Debug("dedupe sweep", zap.Int("removed", n))
			}
		}
	}
}

// Close stops the janitor.
func (m *Memory) Close() {
	m.mu.Lock()
	if !m.stopped {
		close(m.stopCh)
		m.stopped = true
	}
	m.mu.Unlock()
}
