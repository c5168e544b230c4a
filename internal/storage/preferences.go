package storage

import (
	"context"
)

// Preferences defines the interface of a namespaced key / value store. It
// keeps small records which must survive a restart of the node.
type Preferences interface {
	// Get returns all the fields of the given namespace. An absent namespace
	// returns an empty map.
	Get(ctx context.Context, namespace string) (map[string][]byte, error)

	// Put replaces the namespace with the given fields. Either all fields
	// are stored or none.
	Put(ctx context.Context, namespace string, fields map[string][]byte) error

	// Clear removes the namespace. Clearing an absent namespace is not an
	// error.
	Clear(ctx context.Context, namespace string) error
}

func copyFields(in map[string][]byte) map[string][]byte {
	out := make(map[string][]byte, len(in))
	for k, v := range in {
		b := make([]byte, len(v))
		copy(b, v)
		out[k] = b
	}
	return out
}
