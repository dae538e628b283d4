// Package memory provides an in-process db.Store for single-instance runs
// where no Redis is configured. Entries are bounded by an LRU; TTLs are
// honored lazily on read.
package memory

import (
	"context"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/codeinspire/inspire/internal/db"
)

// Compile-time check: Store implements db.Store.
var _ db.Store = (*Store)(nil)

// DefaultSize is the default LRU capacity.
const DefaultSize = 4096

type item struct {
	value     []byte
	expiresAt time.Time // zero = no expiry
}

// Store implements db.Store on a hashicorp LRU cache.
type Store struct {
	cache *lru.Cache[string, item]
	now   func() time.Time
}

// NewStore creates an in-memory store with the given capacity
// (DefaultSize when size <= 0).
func NewStore(size int) (*Store, error) {
	if size <= 0 {
		size = DefaultSize
	}
	cache, err := lru.New[string, item](size)
	if err != nil {
		return nil, err
	}
	return &Store{cache: cache, now: time.Now}, nil
}

// Ping always succeeds for the in-memory store.
func (s *Store) Ping(_ context.Context) error { return nil }

// Close is a no-op.
func (s *Store) Close() {}

// WaitForReady returns immediately.
func (s *Store) WaitForReady(_ context.Context, _ time.Duration) error { return nil }

// Get retrieves a value by key, dropping expired entries.
func (s *Store) Get(_ context.Context, key string) ([]byte, error) {
	it, ok := s.cache.Get(key)
	if !ok {
		return nil, db.ErrKeyNotFound
	}
	if !it.expiresAt.IsZero() && s.now().After(it.expiresAt) {
		s.cache.Remove(key)
		return nil, db.ErrKeyNotFound
	}
	return it.value, nil
}

// Set stores a value without expiry.
func (s *Store) Set(_ context.Context, key string, value []byte) error {
	s.cache.Add(key, item{value: value})
	return nil
}

// SetWithTTL stores a value with an expiration.
func (s *Store) SetWithTTL(_ context.Context, key string, value []byte, ttl time.Duration) error {
	s.cache.Add(key, item{value: value, expiresAt: s.now().Add(ttl)})
	return nil
}
