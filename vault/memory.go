package vault

import (
	"context"
	"strings"
	"sync"
)

const memoryScheme = "mem://"

// MemoryBackend keeps blobs in process memory. Used by tests and local runs.
type MemoryBackend struct {
	mu    sync.RWMutex
	blobs map[string][]byte
}

func NewMemoryBackend() *MemoryBackend {
	return &MemoryBackend{blobs: make(map[string][]byte)}
}

func (m *MemoryBackend) Put(_ context.Context, key string, blob []byte) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.blobs[key] = append([]byte(nil), blob...)
	return memoryScheme + key, nil
}

func (m *MemoryBackend) Get(_ context.Context, uri string) ([]byte, error) {
	key, ok := strings.CutPrefix(uri, memoryScheme)
	if !ok || key == "" {
		return nil, ErrInvalidURI
	}

	m.mu.RLock()
	defer m.mu.RUnlock()

	blob, ok := m.blobs[key]
	if !ok {
		return nil, ErrNotFound
	}
	return append([]byte(nil), blob...), nil
}
