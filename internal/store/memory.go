package store

import (
	"context"
	"sync"
	"time"
)

// Memory keeps batches in process. Publishing is a slice swap under lock.
type Memory struct {
	mu      sync.RWMutex
	batches []*ResultBatch // newest first
	history int
	now     func() time.Time
}

var _ Store = (*Memory)(nil)

// NewMemory returns an in-process store retaining up to history batches.
func NewMemory(history int) *Memory {
	if history <= 0 {
		history = 1
	}
	return &Memory{history: history, now: time.Now}
}

func (m *Memory) PutBatch(ctx context.Context, b *ResultBatch) error {
	if err := validate(b); err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, existing := range m.batches {
		if existing.RunID == b.RunID {
			return nil
		}
	}
	next := make([]*ResultBatch, 0, len(m.batches)+1)
	next = append(next, b)
	next = append(next, m.batches...)
	if len(next) > m.history {
		next = next[:m.history]
	}
	m.batches = next
	return nil
}

func (m *Memory) GetLatestBatch(ctx context.Context, maxAge time.Duration) (*ResultBatch, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if len(m.batches) == 0 || !fresh(m.batches[0], maxAge, m.now()) {
		return nil, nil
	}
	return m.batches[0], nil
}

func (m *Memory) History(ctx context.Context, limit int) ([]Header, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := []Header{}
	for _, b := range m.batches {
		if limit > 0 && len(out) >= limit {
			break
		}
		out = append(out, b.Header())
	}
	return out, nil
}

func (m *Memory) Close() error { return nil }
