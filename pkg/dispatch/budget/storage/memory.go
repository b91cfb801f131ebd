package storage

import (
	"context"
	"sync"
	"time"
)

// MemoryBackend implements Backend using an in-memory map. This is the
// default backend; it is fast, needs no setup, and loses all state when
// the process exits.
type MemoryBackend struct {
	mu   sync.RWMutex
	rows map[memoryKey]*DayUsage
}

type memoryKey struct {
	tenant string
	day    string
}

// NewMemoryBackend creates an empty in-memory backend.
func NewMemoryBackend() *MemoryBackend {
	return &MemoryBackend{
		rows: make(map[memoryKey]*DayUsage),
	}
}

// Save stores a copy of the usage row.
func (m *MemoryBackend) Save(ctx context.Context, usage *DayUsage) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	m.rows[memoryKey{tenant: usage.Tenant, day: usage.Day}] = copyUsage(usage)
	return nil
}

// Load returns a copy of the usage row, or nil if absent.
func (m *MemoryBackend) Load(ctx context.Context, tenant, day string) (*DayUsage, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	m.mu.RLock()
	defer m.mu.RUnlock()

	row, ok := m.rows[memoryKey{tenant: tenant, day: day}]
	if !ok {
		return nil, nil
	}
	return copyUsage(row), nil
}

// Cleanup deletes rows last updated before the cutoff.
func (m *MemoryBackend) Cleanup(ctx context.Context, olderThan time.Time) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	deleted := 0
	for key, row := range m.rows {
		if row.LastUpdated.Before(olderThan) {
			delete(m.rows, key)
			deleted++
		}
	}
	return deleted, nil
}

// Close is a no-op for the memory backend.
func (m *MemoryBackend) Close() error {
	return nil
}

// copyUsage deep-copies a row so callers cannot alias internal state.
func copyUsage(u *DayUsage) *DayUsage {
	calls := make(map[string]int64, len(u.CallsPerTier))
	for tier, n := range u.CallsPerTier {
		calls[tier] = n
	}
	docs := make([]string, len(u.Documents))
	copy(docs, u.Documents)

	return &DayUsage{
		Tenant:        u.Tenant,
		Day:           u.Day,
		CommittedCost: u.CommittedCost,
		CallsPerTier:  calls,
		Documents:     docs,
		LastUpdated:   u.LastUpdated,
	}
}
