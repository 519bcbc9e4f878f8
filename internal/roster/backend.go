// Package roster provides the persisted candidate roster for intervue.
package roster

import (
	"context"
	"sync"
)

// Backend is durable key/value storage for the serialized roster.
// Read returns (nil, nil) when the key is absent.
type Backend interface {
	Read(ctx context.Context, key string) ([]byte, error)
	Write(ctx context.Context, key string, payload []byte) error
	Delete(ctx context.Context, key string) error
}

// MemoryBackend keeps payloads in process memory. Used by tests and by the
// "memory" storage driver.
type MemoryBackend struct {
	data map[string][]byte
	mu   sync.RWMutex
}

// NewMemoryBackend creates an empty MemoryBackend.
func NewMemoryBackend() *MemoryBackend {
	return &MemoryBackend{data: make(map[string][]byte)}
}

func (m *MemoryBackend) Read(_ context.Context, key string) ([]byte, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	v, ok := m.data[key]
	if !ok {
		return nil, nil
	}
	return append([]byte(nil), v...), nil
}

func (m *MemoryBackend) Write(_ context.Context, key string, payload []byte) error {
	m.mu.Lock()
	m.data[key] = append([]byte(nil), payload...)
	m.mu.Unlock()
	return nil
}

func (m *MemoryBackend) Delete(_ context.Context, key string) error {
	m.mu.Lock()
	delete(m.data, key)
	m.mu.Unlock()
	return nil
}
