package session

import (
	"context"
	"sync"
)

// MemoryBackend keeps the credential blob in process memory.
type MemoryBackend struct {
	mu   sync.Mutex
	blob []byte
}

// NewMemoryBackend returns an empty in-memory backend.
func NewMemoryBackend() *MemoryBackend {
	return &MemoryBackend{}
}

// Load returns a copy of the stored blob.
func (m *MemoryBackend) Load(context.Context) ([]byte, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.blob == nil {
		return nil, ErrNotFound
	}
	return append([]byte(nil), m.blob...), nil
}

// Save replaces the stored blob.
func (m *MemoryBackend) Save(_ context.Context, blob []byte) error {
	m.mu.Lock()
	m.blob = append([]byte(nil), blob...)
	m.mu.Unlock()
	return nil
}

// Delete drops the stored blob.
func (m *MemoryBackend) Delete(context.Context) error {
	m.mu.Lock()
	m.blob = nil
	m.mu.Unlock()
	return nil
}

// Unavailable is the backend for contexts without persistent storage.
// Reads are always absent and writes fail with [ErrStorageUnavailable].
type Unavailable struct{}

// Load implements [Backend].
func (Unavailable) Load(context.Context) ([]byte, error) { return nil, ErrNotFound }

// Save implements [Backend].
func (Unavailable) Save(context.Context, []byte) error { return ErrStorageUnavailable }

// Delete implements [Backend].
func (Unavailable) Delete(context.Context) error { return nil }
