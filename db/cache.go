package db

import (
	"context"
	"strings"
	"sync"
	"time"

	"studentparent-server-go/models"
)

// Cache stores serialized responses for a limited time.
type Cache interface {
	Get(ctx context.Context, key string) ([]byte, bool, error)
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
	DeletePrefix(ctx context.Context, prefix string) error
}

// SessionStore maps login tokens to sessions.
type SessionStore interface {
	SaveSession(ctx context.Context, token string, session models.Session, ttl time.Duration) error
	LoadSession(ctx context.Context, token string) (models.Session, bool, error)
	DeleteSession(ctx context.Context, token string) error
}

type memoryEntry struct {
	value   []byte
	expires time.Time
}

// MemoryCache is the in-process Cache used when Redis is not configured.
type MemoryCache struct {
	mu    sync.Mutex
	items map[string]memoryEntry
	now   func() time.Time
}

// NewMemoryCache returns an empty MemoryCache.
func NewMemoryCache() *MemoryCache {
	return &MemoryCache{items: make(map[string]memoryEntry), now: time.Now}
}

func (c *MemoryCache) Get(_ context.Context, key string) ([]byte, bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	e, ok := c.items[key]
	if !ok {
		return nil, false, nil
	}
	if !e.expires.IsZero() && !c.now().Before(e.expires) {
		delete(c.items, key)
		return nil, false, nil
	}
	return e.value, true, nil
}

func (c *MemoryCache) Set(_ context.Context, key string, value []byte, ttl time.Duration) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	e := memoryEntry{value: append([]byte(nil), value...)}
	if ttl > 0 {
		e.expires = c.now().Add(ttl)
	}
	c.items[key] = e
	return nil
}

func (c *MemoryCache) DeletePrefix(_ context.Context, prefix string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	for k := range c.items {
		if strings.HasPrefix(k, prefix) {
			delete(c.items, k)
		}
	}
	return nil
}

// MemorySessions is the in-process SessionStore used when Redis is not configured.
type MemorySessions struct {
	mu   sync.Mutex
	data map[string]sessionEntry
	now  func() time.Time
}

type sessionEntry struct {
	session models.Session
	expires time.Time
}

// NewMemorySessions returns an empty MemorySessions.
func NewMemorySessions() *MemorySessions {
	return &MemorySessions{data: make(map[string]sessionEntry), now: time.Now}
}

func (m *MemorySessions) SaveSession(_ context.Context, token string, session models.Session, ttl time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	e := sessionEntry{session: session}
	if ttl > 0 {
		e.expires = m.now().Add(ttl)
	}
	m.data[token] = e
	return nil
}

func (m *MemorySessions) LoadSession(_ context.Context, token string) (models.Session, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.data[token]
	if !ok {
		return models.Session{}, false, nil
	}
	if !e.expires.IsZero() && !m.now().Before(e.expires) {
		delete(m.data, token)
		return models.Session{}, false, nil
	}
	return e.session, true, nil
}

func (m *MemorySessions) DeleteSession(_ context.Context, token string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.data, token)
	return nil
}
