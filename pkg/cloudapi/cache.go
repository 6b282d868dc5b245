package cloudapi

import (
	"sync"
	"time"

	"github.com/zerohop/go-whatsapp-campaign-gateway/pkg/env"
)

// SessionCache memoizes per-instance credentials so hot paths (media download,
// campaign sends) skip a store round-trip. Bounded; entries expire by TTL and
// must be explicitly invalidated on credential update.
type SessionCache struct {
	mu         sync.RWMutex
	entries    map[string]sessionEntry
	ttl        time.Duration
	maxEntries int
}

type sessionEntry struct {
	creds     Credentials
	expiresAt time.Time
}

func NewSessionCache() *SessionCache {
	ttlSeconds := env.GetEnvIntOrDefault("SESSION_CACHE_TTL_SECONDS", 300)
	if ttlSeconds < 0 {
		ttlSeconds = 0
	}
	maxEntries := env.GetEnvIntOrDefault("SESSION_CACHE_MAX_ENTRIES", 1000)
	if maxEntries <= 0 {
		maxEntries = 1000
	}
	return &SessionCache{
		entries:    make(map[string]sessionEntry),
		ttl:        time.Duration(ttlSeconds) * time.Second,
		maxEntries: maxEntries,
	}
}

func (s *SessionCache) Get(instanceID string) (Credentials, bool) {
	if s.ttl <= 0 {
		return Credentials{}, false
	}
	s.mu.RLock()
	entry, ok := s.entries[instanceID]
	s.mu.RUnlock()
	if !ok {
		return Credentials{}, false
	}
	if time.Now().After(entry.expiresAt) {
		s.mu.Lock()
		delete(s.entries, instanceID)
		s.mu.Unlock()
		return Credentials{}, false
	}
	return entry.creds, true
}

func (s *SessionCache) Put(instanceID string, creds Credentials) {
	if s.ttl <= 0 {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	if len(s.entries) >= s.maxEntries {
		// Evict expired entries first; if nothing expired, drop an arbitrary one.
		now := time.Now()
		evicted := false
		for id, entry := range s.entries {
			if now.After(entry.expiresAt) {
				delete(s.entries, id)
				evicted = true
			}
		}
		if !evicted {
			for id := range s.entries {
				delete(s.entries, id)
				break
			}
		}
	}

	s.entries[instanceID] = sessionEntry{
		creds:     creds,
		expiresAt: time.Now().Add(s.ttl),
	}
}

func (s *SessionCache) Invalidate(instanceID string) {
	s.mu.Lock()
	delete(s.entries, instanceID)
	s.mu.Unlock()
}
