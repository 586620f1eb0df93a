package migrate

import (
	"context"
	"fmt"
	"io/fs"
	"sync"
)

// memoryStore is an in-memory Store keyed by path.
type memoryStore struct {
	mu       sync.Mutex
	stores   map[string]*Dataset
	writeErr error
	swapErr  error
	written  []string
}

func newMemoryStore() *memoryStore {
	return &memoryStore{stores: make(map[string]*Dataset)}
}

func (m *memoryStore) put(path string, ds *Dataset) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.stores[path] = ds.Clone()
}

func (m *memoryStore) get(path string) (*Dataset, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	ds, ok := m.stores[path]
	if !ok {
		return nil, false
	}
	return ds.Clone(), true
}

func (m *memoryStore) Version(_ context.Context, path string) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	ds, ok := m.stores[path]
	if !ok {
		return 0, fmt.Errorf("store %s: %w", path, fs.ErrNotExist)
	}
	return ds.Version, nil
}

func (m *memoryStore) Load(_ context.Context, path string) (*Dataset, error) {
	ds, ok := m.get(path)
	if !ok {
		return nil, fmt.Errorf("store %s: %w", path, fs.ErrNotExist)
	}
	return ds, nil
}

func (m *memoryStore) Write(_ context.Context, path string, ds *Dataset) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.stores[path]; ok {
		return fmt.Errorf("store %s: %w", path, fs.ErrExist)
	}
	m.written = append(m.written, path)
	if m.writeErr != nil {
		// Leave a partial store behind like a crashed writer would.
		m.stores[path] = NewDataset(ds.Version)
		return m.writeErr
	}
	m.stores[path] = ds.Clone()
	return nil
}

func (m *memoryStore) Replace(_ context.Context, tmp, path string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.swapErr != nil {
		return m.swapErr
	}
	ds, ok := m.stores[tmp]
	if !ok {
		return fmt.Errorf("store %s: %w", tmp, fs.ErrNotExist)
	}
	m.stores[path] = ds
	delete(m.stores, tmp)
	return nil
}

func (m *memoryStore) Remove(path string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.stores, path)
	return nil
}
