package storage

import (
	"context"
	"sync"

	"github.com/persona-compat/browserid-go/internal/model"
)

// memoryRetention bounds the in-memory log; older entries are discarded.
const memoryRetention = 10000

type memory struct {
	mu      sync.RWMutex
	entries []model.AuditEntry
}

// NewMemory returns a concurrency-safe in-memory implementation of
// AuditStore. Useful for tests, demos, or as a default ephemeral backend.
func NewMemory() AuditStore {
	return &memory{}
}

func (m *memory) Append(ctx context.Context, entry model.AuditEntry) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.entries = append(m.entries, entry)
	if len(m.entries) > memoryRetention {
		m.entries = m.entries[len(m.entries)-memoryRetention:]
	}
	return nil
}

func (m *memory) Recent(ctx context.Context, limit int) ([]model.AuditEntry, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if limit <= 0 || limit > len(m.entries) {
		limit = len(m.entries)
	}
	out := make([]model.AuditEntry, 0, limit)
	for i := len(m.entries) - 1; i >= 0 && len(out) < limit; i-- {
		out = append(out, m.entries[i])
	}
	return out, nil
}
