package store

import (
	"context"
	"slices"
	"sort"
	"sync"
	"time"
)

// Memory is a process-local Store for tests and single-instance runs.
type Memory struct {
	mu      sync.RWMutex
	records map[string]Record
}

// NewMemory creates an empty store.
func NewMemory() *Memory {
	return &Memory{records: make(map[string]Record)}
}

func (m *Memory) Get(_ context.Context, key string) (Record, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	rec, ok := m.records[key]
	if !ok {
		return Record{}, ErrNotFound
	}
	rec.Data = slices.Clone(rec.Data)
	return rec, nil
}

func (m *Memory) Create(_ context.Context, key string, data []byte) (Record, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.records[key]; ok {
		return Record{}, ErrExists
	}
	rec := Record{Key: key, Version: 1, Data: slices.Clone(data)}
	m.records[key] = rec
	return rec, nil
}

func (m *Memory) CompareAndSwap(_ context.Context, key string, version int64, data []byte) (Record, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	cur, ok := m.records[key]
	if !ok {
		return Record{}, ErrNotFound
	}
	if cur.Version != version {
		return Record{}, ErrConflict
	}
	rec := Record{Key: key, Version: version + 1, Data: slices.Clone(data)}
	m.records[key] = rec
	return rec, nil
}

// MemoryDeadlines is a process-local Deadlines index.
type MemoryDeadlines struct {
	mu sync.Mutex
	at map[string]time.Time
}

// NewMemoryDeadlines creates an empty index.
func NewMemoryDeadlines() *MemoryDeadlines {
	return &MemoryDeadlines{at: make(map[string]time.Time)}
}

func (d *MemoryDeadlines) Put(_ context.Context, gameID string, at time.Time) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.at[gameID] = at
	return nil
}

func (d *MemoryDeadlines) Remove(_ context.Context, gameID string) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	delete(d.at, gameID)
	return nil
}

func (d *MemoryDeadlines) Due(_ context.Context, now time.Time, limit int) ([]string, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	var ids []string
	for id, at := range d.at {
		if !at.After(now) {
			ids = append(ids, id)
		}
	}
	sort.Slice(ids, func(i, j int) bool {
		a, b := d.at[ids[i]], d.at[ids[j]]
		if a.Equal(b) {
			return ids[i] < ids[j]
		}
		return a.Before(b)
	})
	if limit > 0 && len(ids) > limit {
		ids = ids[:limit]
	}
	return ids, nil
}
