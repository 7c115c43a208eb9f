package session

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

// Fixed storage keys.  The token key is owned by Store; the theme keys are
// owned by the settings screen.
const (
	TokenKey      = "auth_token"
	ThemeModeKey  = "ems-theme-mode"
	ThemeColorKey = "ems-theme-color"
)

// Storage is the persisted client state of one browser session.  Get returns
// "" for a key that was never set.
type Storage interface {
	Get(ctx context.Context, key string) (string, error)
	Set(ctx context.Context, key, value string) error
	Delete(ctx context.Context, key string) error
}

// RedisStorage keeps a session's keys in Redis under
// <prefix>:<sessionID>:<key>.  Every write refreshes the TTL of the written
// key so idle sessions expire on their own.
type RedisStorage struct {
	rdb       redis.UniversalClient
	prefix    string
	sessionID string
	ttl       time.Duration
}

// NewRedisStorage scopes rdb to a single session.
func NewRedisStorage(rdb redis.UniversalClient, prefix, sessionID string, ttl time.Duration) *RedisStorage {
	return &RedisStorage{rdb: rdb, prefix: prefix, sessionID: sessionID, ttl: ttl}
}

func (s *RedisStorage) key(k string) string {
	return s.prefix + ":" + s.sessionID + ":" + k
}

func (s *RedisStorage) Get(ctx context.Context, key string) (string, error) {
	v, err := s.rdb.Get(ctx, s.key(key)).Result()
	if errors.Is(err, redis.Nil) {
		return "", nil
	}
	return v, err
}

func (s *RedisStorage) Set(ctx context.Context, key, value string) error {
	return s.rdb.Set(ctx, s.key(key), value, s.ttl).Err()
}

func (s *RedisStorage) Delete(ctx context.Context, key string) error {
	return s.rdb.Del(ctx, s.key(key)).Err()
}

// MemoryStorage is the fallback used when Redis is unreachable at startup,
// and the storage used by tests.
type MemoryStorage struct {
	mu   sync.Mutex
	vals map[string]string
}

func NewMemoryStorage() *MemoryStorage {
	return &MemoryStorage{vals: map[string]string{}}
}

func (s *MemoryStorage) Get(_ context.Context, key string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.vals[key], nil
}

func (s *MemoryStorage) Set(_ context.Context, key, value string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.vals[key] = value
	return nil
}

func (s *MemoryStorage) Delete(_ context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.vals, key)
	return nil
}

// Backend hands out the Storage of a session.
type Backend interface {
	Storage(sessionID string) Storage
}

// RedisBackend is a Backend on a shared Redis client.
type RedisBackend struct {
	RDB    redis.UniversalClient
	Prefix string
	TTL    time.Duration
}

func (b RedisBackend) Storage(sessionID string) Storage {
	return NewRedisStorage(b.RDB, b.Prefix, sessionID, b.TTL)
}

// MemoryBackend keeps one MemoryStorage per session in process memory.
// Sessions untouched for longer than TTL are swept on the next lookup.
type MemoryBackend struct {
	TTL time.Duration

	mu       sync.Mutex
	sessions map[string]*memoryEntry
	now      func() time.Time
}

type memoryEntry struct {
	storage  *MemoryStorage
	lastUsed time.Time
}

func NewMemoryBackend(ttl time.Duration) *MemoryBackend {
	return &MemoryBackend{TTL: ttl, sessions: map[string]*memoryEntry{}, now: time.Now}
}

func (b *MemoryBackend) Storage(sessionID string) Storage {
	b.mu.Lock()
	defer b.mu.Unlock()
	now := b.now()
	if b.TTL > 0 {
		for id, e := range b.sessions {
			if now.Sub(e.lastUsed) > b.TTL {
				delete(b.sessions, id)
			}
		}
	}
	e, ok := b.sessions[sessionID]
	if !ok {
		e = &memoryEntry{storage: NewMemoryStorage()}
		b.sessions[sessionID] = e
	}
	e.lastUsed = now
	return e.storage
}
