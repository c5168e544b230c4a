package test

import (
	"context"
	"sync"
)

// Preferences is an in-memory preferences store with error injection.
type Preferences struct {
	sync.Mutex

	GetError   error
	PutError   error
	ClearError error
	PutCount   int

	namespaces map[string]map[string][]byte
}

// NewPreferences returns a new Preferences.
func NewPreferences() *Preferences {
	return &Preferences{
		namespaces: make(map[string]map[string][]byte),
	}
}

// Set sets the fields of the namespace without going through Put.
func (p *Preferences) Set(namespace string, fields map[string][]byte) {
	p.Lock()
	defer p.Unlock()
	p.namespaces[namespace] = copyBytesMap(fields)
}

// Fields returns the fields of the namespace, nil when absent.
func (p *Preferences) Fields(namespace string) map[string][]byte {
	p.Lock()
	defer p.Unlock()
	if f, ok := p.namespaces[namespace]; ok {
		return copyBytesMap(f)
	}
	return nil
}

// Get method.
func (p *Preferences) Get(ctx context.Context, namespace string) (map[string][]byte, error) {
	p.Lock()
	defer p.Unlock()
	if p.GetError != nil {
		return nil, p.GetError
	}
	return copyBytesMap(p.namespaces[namespace]), nil
}

// Put method.
func (p *Preferences) Put(ctx context.Context, namespace string, fields map[string][]byte) error {
	p.Lock()
	defer p.Unlock()
	p.PutCount++
	if p.PutError != nil {
		return p.PutError
	}
	p.namespaces[namespace] = copyBytesMap(fields)
	return nil
}

// Clear method.
func (p *Preferences) Clear(ctx context.Context, namespace string) error {
	p.Lock()
	defer p.Unlock()
	if p.ClearError != nil {
		return p.ClearError
	}
	delete(p.namespaces, namespace)
	return nil
}

func copyBytesMap(in map[string][]byte) map[string][]byte {
	out := make(map[string][]byte, len(in))
	for k, v := range in {
		b := make([]byte, len(v))
		copy(b, v)
		out[k] = b
	}
	return out
}
