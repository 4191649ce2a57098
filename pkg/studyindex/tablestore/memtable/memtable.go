package memtable

import (
	"context"
	"sort"
	"sync"
)

// Backend is an in-memory tablestore.Backend for tests and dry runs.
type Backend struct {
	mu     sync.RWMutex
	tables map[string]snapshot
	writes map[string]int
}

type snapshot struct {
	header  []string
	records [][]string
}

// New creates an empty backend.
func New() *Backend {
	return &Backend{
		tables: make(map[string]snapshot),
		writes: make(map[string]int),
	}
}

// Seed stores a table directly, as if it had been saved earlier.
func (b *Backend) Seed(name string, header []string, records [][]string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.tables[name] = snapshot{header: copyStrings(header), records: copyRecords(records)}
}

// Writes reports how many times a table was written.
func (b *Backend) Writes(name string) int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.writes[name]
}

func (b *Backend) ListTables(ctx context.Context) ([]string, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	out := make([]string, 0, len(b.tables))
	for name := range b.tables {
		out = append(out, name)
	}
	sort.Strings(out)
	return out, nil
}

func (b *Backend) ReadTable(ctx context.Context, name string) ([]string, [][]string, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	snap, ok := b.tables[name]
	if !ok {
		return nil, nil, nil
	}
	return copyStrings(snap.header), copyRecords(snap.records), nil
}

func (b *Backend) WriteTable(ctx context.Context, name string, header []string, records [][]string) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.tables[name] = snapshot{header: copyStrings(header), records: copyRecords(records)}
	b.writes[name]++
	return nil
}

func (b *Backend) DeleteTable(ctx context.Context, name string) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	delete(b.tables, name)
	return nil
}

func copyStrings(in []string) []string {
	if in == nil {
		return nil
	}
	out := make([]string, len(in))
	copy(out, in)
	return out
}

func copyRecords(in [][]string) [][]string {
	out := make([][]string, len(in))
	for i, rec := range in {
		out[i] = copyStrings(rec)
	}
	return out
}
