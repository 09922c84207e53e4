package audit

import (
	"sync"

	"github.com/rob634/rmhtitiler-sub001/internal/core"
)

var _ core.Auditor = (*InMemoryAuditor)(nil)

// InMemoryAuditor keeps recent events in memory. Useful for tests and
// short-lived dev runs; entries are capped so it cannot grow unbounded.
type InMemoryAuditor struct {
	mu      sync.Mutex
	max     int
	entries []core.AuditEntry
}

const defaultMemoryAuditCap = 1024

func NewInMemoryAuditor() *InMemoryAuditor {
	return &InMemoryAuditor{
		max:     defaultMemoryAuditCap,
		entries: make([]core.AuditEntry, 0),
	}
}

func (i *InMemoryAuditor) Log(entry core.AuditEntry) error {
	i.mu.Lock()
	defer i.mu.Unlock()

	i.entries = append(i.entries, entry)
	if len(i.entries) > i.max {
		i.entries = i.entries[len(i.entries)-i.max:]
	}
	return nil
}

func (i *InMemoryAuditor) GetRecent(limit int) ([]core.AuditEntry, error) {
	i.mu.Lock()
	defer i.mu.Unlock()

	if limit > len(i.entries) {
		limit = len(i.entries)
	}
	start := len(i.entries) - limit
	entries := make([]core.AuditEntry, limit)
	copy(entries, i.entries[start:])

	return entries, nil
}

func (i *InMemoryAuditor) Close() error {
	return nil
}
