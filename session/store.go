package session

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"
)

// ErrEmptyToken is returned by [Store.Set] when either token is empty.
var ErrEmptyToken = errors.New("empty token")

// ErrNotFound is returned by a [Backend] when nothing is stored.
var ErrNotFound = errors.New("credential not found")

// ErrStorageUnavailable is returned by writes against the [Unavailable] backend.
var ErrStorageUnavailable = errors.New("credential storage unavailable")

// ErrRedisUnavailable is returned when the redis backend cannot be reached.
var ErrRedisUnavailable = errors.New("redis unavailable")

// Backend stores one opaque credential blob.
//
// Save must replace the previous blob atomically. Load returns [ErrNotFound]
// when nothing is stored. Delete of a missing blob is not an error.
type Backend interface {
	Load(ctx context.Context) ([]byte, error)
	Save(ctx context.Context, blob []byte) error
	Delete(ctx context.Context) error
}

// Store persists the credential pair on a [Backend]. It is safe for
// concurrent use.
type Store struct {
	mu      sync.RWMutex
	backend Backend
	now     func() time.Time
}

// NewStore returns a store over backend. A nil backend behaves like
// [Unavailable].
func NewStore(backend Backend) *Store {
	if backend == nil {
		backend = Unavailable{}
	}
	return &Store{
		backend: backend,
		now:     time.Now,
	}
}

// Backend returns the underlying storage backend.
func (s *Store) Backend() Backend {
	return s.backend
}

// Get returns the stored pair, or false when nothing readable is stored.
// Storage failures and undecodable blobs are reported as absent.
func (s *Store) Get(ctx context.Context) (Credential, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	blob, err := s.backend.Load(ctx)
	if err != nil || len(blob) == 0 {
		return Credential{}, false
	}

	c, err := Decode(blob)
	if err != nil || c.AccessToken == "" || c.RefreshToken == "" {
		return Credential{}, false
	}
	return c, true
}

// AccessToken returns the stored access token, or "" when absent.
func (s *Store) AccessToken(ctx context.Context) string {
	c, ok := s.Get(ctx)
	if !ok {
		return ""
	}
	return c.AccessToken
}

// Set replaces the stored pair with access and refresh.
func (s *Store) Set(ctx context.Context, access, refresh string) error {
	if access == "" || refresh == "" {
		return ErrEmptyToken
	}

	blob, err := Encode(Credential{
		AccessToken:  access,
		RefreshToken: refresh,
		SavedAt:      s.now(),
	})
	if err != nil {
		return fmt.Errorf("encode credential: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.backend.Save(ctx, blob); err != nil {
		return fmt.Errorf("save credential: %w", err)
	}
	return nil
}

// Clear removes both tokens. Clearing an empty store succeeds.
func (s *Store) Clear(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.backend.Delete(ctx); err != nil && !errors.Is(err, ErrNotFound) && !errors.Is(err, ErrStorageUnavailable) {
		return fmt.Errorf("delete credential: %w", err)
	}
	return nil
}

func unixTime(sec int64) time.Time {
	return time.Unix(sec, 0)
}
