// Package cache provides the in-process TTL store and read-through helper
// used by every content read.
package cache

import (
	"context"
	"sort"
	"strings"
	"time"

	gocache "github.com/patrickmn/go-cache"
)

// Observer receives read-through hit/miss notifications
type Observer interface {
	CacheHit()
	CacheMiss()
}

// Store maps string keys to values that expire after a per-entry TTL.
// It is safe for concurrent use.
type Store struct {
	items *gocache.Cache
	obs   Observer
}

type Option func(*Store)

// WithObserver reports read-through hits and misses to o
func WithObserver(o Observer) Option {
	return func(s *Store) { s.obs = o }
}

// NewStore creates an empty store. A positive sweepInterval starts a janitor
// that drops expired entries; zero leaves expired entries in place until
// they are overwritten or invalidated.
func NewStore(sweepInterval time.Duration, opts ...Option) *Store {
	s := &Store{items: gocache.New(gocache.NoExpiration, sweepInterval)}
	for _, o := range opts {
		o(s)
	}
	return s
}

// Get returns the stored value only if present and fresh
func (s *Store) Get(key string) (any, bool) {
	return s.items.Get(key)
}

// Set stores value under key, overwriting any existing entry. A non-positive
// ttl produces an entry that is already stale, so nothing is kept.
func (s *Store) Set(key string, value any, ttl time.Duration) {
	if ttl <= 0 {
		s.items.Delete(key)
		return
	}
	s.items.Set(key, value, ttl)
}

// Invalidate removes exactly one entry
func (s *Store) Invalidate(key string) {
	s.items.Delete(key)
}

// InvalidatePattern removes every entry whose key contains substr and
// returns how many were removed.
func (s *Store) InvalidatePattern(substr string) int {
	n := 0
	for key := range s.items.Items() {
		if strings.Contains(key, substr) {
			s.items.Delete(key)
			n++
		}
	}
	return n
}

// Keys lists the fresh keys in sorted order
func (s *Store) Keys() []string {
	items := s.items.Items()
	keys := make([]string, 0, len(items))
	for k := range items {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Len returns the number of entries, including expired ones not yet swept
func (s *Store) Len() int {
	return s.items.ItemCount()
}

// Flush removes everything
func (s *Store) Flush() {
	s.items.Flush()
}

// GetCached returns the fresh value cached under key, or calls producer,
// stores its result for ttl and returns it. Concurrent misses for the same
// key each call producer; failures are returned as-is and never cached.
func GetCached[T any](ctx context.Context, s *Store, key string, ttl time.Duration, producer func(context.Context) (T, error)) (T, error) {
	if v, ok := s.Get(key); ok {
		if typed, ok := v.(T); ok {
			if s.obs != nil {
				s.obs.CacheHit()
			}
			return typed, nil
		}
	}
	if s.obs != nil {
		s.obs.CacheMiss()
	}

	v, err := producer(ctx)
	if err != nil {
		var zero T
		return zero, err
	}
	s.Set(key, v, ttl)
	return v, nil
}
