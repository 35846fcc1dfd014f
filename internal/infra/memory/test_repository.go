package memory

import (
	"context"
	"math/rand"
	"sync"
	"time"

	"orbita-service/internal/domain"
	"golang.org/x/sync/singleflight"
)

// TestLoader fetches questionnaire schemas from a backing store (e.g., Postgres).
type TestLoader interface {
	LoadTest(ctx context.Context, testID string) (domain.Test, error)
}

// TestRepository keeps a small read-mostly cache of the orientation catalog
// in front of a loader. The catalog changes rarely, so entries simply expire
// after a TTL; concurrent misses for the same test collapse into one load.
type TestRepository struct {
	loader TestLoader
	ttl    time.Duration
	clock  func() time.Time
	sf     singleflight.Group

	mu      sync.RWMutex
	tests   map[string]domain.Test
	expires map[string]time.Time
}

func NewTestRepository(loader TestLoader, ttl time.Duration) *TestRepository {
	return &TestRepository{
		loader:  loader,
		ttl:     ttl,
		clock:   time.Now,
		tests:   make(map[string]domain.Test),
		expires: make(map[string]time.Time),
	}
}

func (r *TestRepository) GetTest(ctx context.Context, testID string) (domain.Test, error) {
	if test, ok := r.fresh(testID); ok {
		return test, nil
	}

	result, err, _ := r.sf.Do(testID, func() (interface{}, error) {
		// Re-check under singleflight: another caller may have filled the entry.
		if test, ok := r.fresh(testID); ok {
			return test, nil
		}

		test, err := r.loader.LoadTest(ctx, testID)
		if err != nil {
			return domain.Test{}, err
		}

		r.mu.Lock()
		r.tests[testID] = test
		r.expires[testID] = r.clock().Add(ttlWithJitter(r.ttl))
		r.mu.Unlock()
		return test, nil
	})
	if err != nil {
		return domain.Test{}, err
	}
	return result.(domain.Test), nil
}

func (r *TestRepository) fresh(testID string) (domain.Test, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	expiry, ok := r.expires[testID]
	if !ok || !expiry.After(r.clock()) {
		return domain.Test{}, false
	}
	return r.tests[testID], true
}

// StaticTestLoader is a simple loader backed by an in-memory map (useful for tests/demos).
type StaticTestLoader struct {
	tests map[string]domain.Test
}

func NewStaticTestLoader(tests map[string]domain.Test) *StaticTestLoader {
	return &StaticTestLoader{tests: tests}
}

func (l *StaticTestLoader) LoadTest(_ context.Context, testID string) (domain.Test, error) {
	if test, ok := l.tests[testID]; ok {
		return test, nil
	}
	return domain.Test{}, domain.ErrTestNotFound
}

// ttlWithJitter spreads expirations by up to 10%. The global rand source is
// used because fills for different tests can run concurrently.
func ttlWithJitter(ttl time.Duration) time.Duration {
	if ttl <= 0 {
		return 0
	}
	jitterMax := int64(ttl) / 10
	return ttl + time.Duration(rand.Int63n(jitterMax+1))
}
