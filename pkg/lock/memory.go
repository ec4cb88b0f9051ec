package lock

import (
	"context"
	"sync"
	"time"
)

type lease struct {
	owner     string
	expiresAt time.Time
}

// MemoryLocker is a single-process Locker. Expired leases are treated as free.
type MemoryLocker struct {
	mu     sync.Mutex
	leases map[string]lease
	now    func() time.Time
}

// MemoryOption configures a MemoryLocker.
type MemoryOption func(*MemoryLocker)

// WithClock overrides the time source.
func WithClock(now func() time.Time) MemoryOption {
	return func(m *MemoryLocker) {
		m.now = now
	}
}

// NewMemoryLocker creates an empty in-memory lease store.
func NewMemoryLocker(opts ...MemoryOption) *MemoryLocker {
	m := &MemoryLocker{
		leases: make(map[string]lease),
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

func (m *MemoryLocker) TryLock(ctx context.Context, key, owner string, ttl time.Duration) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.now()
	if l, ok := m.leases[key]; ok && now.Before(l.expiresAt) && l.owner != owner {
		return false, nil
	}
	m.leases[key] = lease{owner: owner, expiresAt: now.Add(ttl)}
	return true, nil
}

func (m *MemoryLocker) Unlock(_ context.Context, key, owner string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if l, ok := m.leases[key]; ok && l.owner == owner {
		delete(m.leases, key)
	}
	return nil
}
