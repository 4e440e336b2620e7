package gate

import (
	"context"
	"sync"
	"time"
)

// Memory is a process-local watermark for single-node deployments and tests.
type Memory struct {
	mu      sync.Mutex
	lastRun time.Time
}

// NewMemory creates a watermark that has never run.
func NewMemory() *Memory {
	return &Memory{}
}

func (m *Memory) TryAcquire(_ context.Context, now time.Time, interval time.Duration) (bool, time.Time, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.lastRun.IsZero() && now.Sub(m.lastRun) < interval {
		return false, m.lastRun, nil
	}
	previous := m.lastRun
	m.lastRun = now
	return true, previous, nil
}

func (m *Memory) Rollback(_ context.Context, previous time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.lastRun = previous
	return nil
}
