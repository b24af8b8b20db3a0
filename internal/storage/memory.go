package storage

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"llm-price-tracker/internal/changes"
	"llm-price-tracker/internal/pricing"
)

// MemoryStore keeps artefacts in process memory. Used for dry runs and tests.
type MemoryStore struct {
	mu         sync.RWMutex
	snapshots  map[DateKey]pricing.Schema
	changelogs map[string]changes.ChangeLog
	latest     *changes.ChangeLog
	current    *pricing.Schema
}

// NewMemoryStore constructs an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		snapshots:  make(map[DateKey]pricing.Schema),
		changelogs: make(map[string]changes.ChangeLog),
	}
}

// Close is a no-op.
func (m *MemoryStore) Close() {}

// PutSnapshot implements SnapshotStore.
func (m *MemoryStore) PutSnapshot(_ context.Context, key DateKey, schema pricing.Schema) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.snapshots[key]; ok {
		return fmt.Errorf("%w: %s", ErrSnapshotExists, key)
	}
	m.snapshots[key] = schema
	return nil
}

// GetSnapshot implements SnapshotStore.
func (m *MemoryStore) GetSnapshot(_ context.Context, key DateKey) (pricing.Schema, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	schema, ok := m.snapshots[key]
	if !ok {
		return pricing.Schema{}, fmt.Errorf("read snapshot %s: %w", key, ErrNotFound)
	}
	return schema, nil
}

// LatestSnapshotBefore implements SnapshotStore.
func (m *MemoryStore) LatestSnapshotBefore(ctx context.Context, before DateKey) (*pricing.Schema, DateKey, error) {
	keys, _ := m.ListSnapshotKeys(ctx)
	m.mu.RLock()
	defer m.mu.RUnlock()
	for i := len(keys) - 1; i >= 0; i-- {
		if keys[i] < before {
			schema := m.snapshots[keys[i]]
			return &schema, keys[i], nil
		}
	}
	return nil, "", nil
}

// ListSnapshotKeys implements SnapshotStore.
func (m *MemoryStore) ListSnapshotKeys(_ context.Context) ([]DateKey, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	keys := make([]DateKey, 0, len(m.snapshots))
	for k := range m.snapshots {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool { return keys[i] < keys[j] })
	return keys, nil
}

// PutChangelog implements ChangelogStore.
func (m *MemoryStore) PutChangelog(_ context.Context, log changes.ChangeLog) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.changelogs[log.Date]; ok {
		return fmt.Errorf("%w: %s", ErrChangelogExists, log.Date)
	}
	m.changelogs[log.Date] = log
	return nil
}

// GetChangelog implements ChangelogStore.
func (m *MemoryStore) GetChangelog(_ context.Context, date string) (changes.ChangeLog, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	log, ok := m.changelogs[date]
	if !ok {
		return changes.ChangeLog{}, fmt.Errorf("read changelog %s: %w", date, ErrNotFound)
	}
	return log, nil
}

// SetLatestChangelog implements ChangelogStore.
func (m *MemoryStore) SetLatestChangelog(_ context.Context, log changes.ChangeLog) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.latest = &log
	return nil
}

// LatestChangelog implements ChangelogStore.
func (m *MemoryStore) LatestChangelog(_ context.Context) (changes.ChangeLog, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.latest == nil {
		return changes.ChangeLog{}, fmt.Errorf("read latest changelog: %w", ErrNotFound)
	}
	return *m.latest, nil
}

// PutCurrent implements CurrentStore.
func (m *MemoryStore) PutCurrent(_ context.Context, schema pricing.Schema) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.current = &schema
	return nil
}

// Current implements CurrentStore.
func (m *MemoryStore) Current(_ context.Context) (pricing.Schema, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.current == nil {
		return pricing.Schema{}, fmt.Errorf("read current prices: %w", ErrNotFound)
	}
	return *m.current, nil
}

var _ Repository = (*MemoryStore)(nil)
