// Package streams keeps one insight session per client stream in memory.
//
// A stream is identified by a client-chosen ID (one per editor surface). Requests
// on the same stream supersede each other; idle streams expire after a TTL.
package streams

import (
	"log/slog"
	"sync"
	"time"

	"github.com/patrickmn/go-cache"

	"langcard-insight/internal/usecase/insight"
)

// Registry maps stream IDs to sessions.
type Registry struct {
	cache   *cache.Cache
	factory func() *insight.Session
	mu      sync.Mutex
}

// NewRegistry creates a registry whose sessions expire after ttl of inactivity.
// factory builds the session for a new stream.
func NewRegistry(ttl time.Duration, factory func() *insight.Session) *Registry {
	c := cache.New(ttl, ttl/2)
	c.OnEvicted(func(id string, v interface{}) {
		// the session may still have a request in flight
		v.(*insight.Session).Cancel()
		slog.Debug("insight stream expired", slog.String("stream", id))
	})
	return &Registry{cache: c, factory: factory}
}

// Get returns the session for id, creating it on first use. Every call extends
// the stream's lifetime. An empty id gets a fresh session that is not stored, so
// unnamed requests never supersede each other.
func (r *Registry) Get(id string) *insight.Session {
	if id == "" {
		return r.factory()
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	var s *insight.Session
	if v, found := r.cache.Get(id); found {
		s = v.(*insight.Session)
	} else {
		s = r.factory()
	}
	r.cache.Set(id, s, cache.DefaultExpiration)
	return s
}

// Lookup returns the session for id without creating or touching it.
func (r *Registry) Lookup(id string) (*insight.Session, bool) {
	if id == "" {
		return nil, false
	}
	v, found := r.cache.Get(id)
	if !found {
		return nil, false
	}
	return v.(*insight.Session), true
}

// Delete cancels and forgets the stream. It reports whether the stream existed.
func (r *Registry) Delete(id string) bool {
	if id == "" {
		return false
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, found := r.cache.Get(id); !found {
		return false
	}
	r.cache.Delete(id)
	return true
}

// Len returns the number of live streams, including expired ones not yet purged.
func (r *Registry) Len() int {
	return r.cache.ItemCount()
}

// Close cancels every stream.
func (r *Registry) Close() {
	for id := range r.cache.Items() {
		r.cache.Delete(id)
	}
}
