package redis

import (
	"context"
	"sync"
	"time"

	"orbita-service/internal/app"
	"orbita-service/internal/domain"
	"github.com/redis/go-redis/v9"
)

// SessionStore is a Redis-aware implementation of app.SessionRepository.
// Notes:
//   - It still keeps a local in-memory map of sessions to reuse the existing
//     in-process broadcast logic.
//   - Redis is used to mark session liveness (and could be extended to share
//     answer snapshots for cross-instance resume).
type SessionStore struct {
	client   *redis.Client
	ttl      time.Duration
	mu       sync.RWMutex
	sessions map[string]*app.Session
}

func NewSessionStore(client *redis.Client, ttl time.Duration) *SessionStore {
	return &SessionStore{
		client:   client,
		ttl:      ttl,
		sessions: make(map[string]*app.Session),
	}
}

func (s *SessionStore) GetOrCreate(key string, test domain.Test) *app.Session {
	s.mu.Lock()
	defer s.mu.Unlock()
	if session, ok := s.sessions[key]; ok {
		return session
	}
	session := app.NewSession(key, test)
	s.sessions[key] = session
	// best-effort liveness marker
	_ = s.client.Set(context.Background(), s.livenessKey(key), "1", s.ttl).Err()
	return session
}

func (s *SessionStore) Get(key string) (*app.Session, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	session, ok := s.sessions[key]
	return session, ok
}

func (s *SessionStore) Delete(key string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.sessions[key]; !ok {
		return
	}
	delete(s.sessions, key)
	_ = s.client.Del(context.Background(), s.livenessKey(key)).Err()
}

func (s *SessionStore) livenessKey(key string) string {
	return "orbita:session:" + key
}
