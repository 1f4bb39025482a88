package cache

import (
	"context"
	"sync"
	"time"
)

// pendingMarker is stored under a key while the first request holding it is
// still creating the sale.
const pendingMarker = "pending"

// SaleIdempotency remembers which sale an Idempotency-Key produced so a
// retried submission does not record the sale twice.
type SaleIdempotency interface {
	// Reserve claims key. When the key was already claimed it returns the
	// stored sale id, or "" while the first request is still in flight.
	Reserve(ctx context.Context, key string, ttl time.Duration) (saleID string, reserved bool, err error)
	Complete(ctx context.Context, key string, saleID string, ttl time.Duration) error
	Release(ctx context.Context, key string) error
}

type NoopSaleIdempotency struct{}

func (NoopSaleIdempotency) Reserve(_ context.Context, _ string, _ time.Duration) (string, bool, error) {
	return "", true, nil
}

func (NoopSaleIdempotency) Complete(_ context.Context, _ string, _ string, _ time.Duration) error {
	return nil
}

func (NoopSaleIdempotency) Release(_ context.Context, _ string) error {
	return nil
}

type memoryEntry struct {
	value     string
	expiresAt time.Time
}

// MemorySaleIdempotency is the single-process variant used when Redis is not
// configured.
type MemorySaleIdempotency struct {
	mu      sync.Mutex
	entries map[string]memoryEntry
	now     func() time.Time
}

func NewMemorySaleIdempotency() *MemorySaleIdempotency {
	return &MemorySaleIdempotency{
		entries: make(map[string]memoryEntry),
		now:     time.Now,
	}
}

func (m *MemorySaleIdempotency) Reserve(_ context.Context, key string, ttl time.Duration) (string, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.now()
	if entry, ok := m.entries[key]; ok && now.Before(entry.expiresAt) {
		if entry.value == pendingMarker {
			return "", false, nil
		}
		return entry.value, false, nil
	}
	m.entries[key] = memoryEntry{value: pendingMarker, expiresAt: now.Add(ttl)}
	return "", true, nil
}

func (m *MemorySaleIdempotency) Complete(_ context.Context, key string, saleID string, ttl time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.entries[key] = memoryEntry{value: saleID, expiresAt: m.now().Add(ttl)}
	return nil
}

func (m *MemorySaleIdempotency) Release(_ context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	delete(m.entries, key)
	return nil
}
