package storage

import (
	"context"
	"sync"
)

// MemoryPreferences implements an in-memory Preferences store.
type MemoryPreferences struct {
	sync.RWMutex
	namespaces map[string]map[string][]byte
}

// NewMemoryPreferences returns a new MemoryPreferences.
func NewMemoryPreferences() *MemoryPreferences {
	return &MemoryPreferences{
		namespaces: make(map[string]map[string][]byte),
	}
}

// Get returns the fields of the given namespace.
func (p *MemoryPreferences) Get(ctx context.Context, namespace string) (map[string][]byte, error) {
	p.RLock()
	defer p.RUnlock()

	return copyFields(p.namespaces[namespace]), nil
}

// Put replaces the namespace with the given fields.
func (p *MemoryPreferences) Put(ctx context.Context, namespace string, fields map[string][]byte) error {
	p.Lock()
	defer p.Unlock()

	p.namespaces[namespace] = copyFields(fields)
	preferencesOperationCounter("memory", "put").Inc()
	return nil
}

// Clear removes the given namespace.
func (p *MemoryPreferences) Clear(ctx context.Context, namespace string) error {
	p.Lock()
	defer p.Unlock()

	delete(p.namespaces, namespace)
	preferencesOperationCounter("memory", "clear").Inc()
	return nil
}
