package redis

import (
	"context"
	"encoding/json"
	"math/rand"
	"time"

	"orbita-service/internal/domain"
	"github.com/redis/go-redis/v9"
	"golang.org/x/sync/singleflight"
)

// TestLoader fetches questionnaire schemas from a backing store (e.g., Postgres).
type TestLoader interface {
	LoadTest(ctx context.Context, testID string) (domain.Test, error)
}

// TestRepository caches schemas in Redis (JSON per test) and falls back to
// a loader on cache miss. Schemas are stored as: SET test:{testID}:schema {json}
type TestRepository struct {
	client *redis.Client
	loader TestLoader
	ttl    time.Duration
	sf     singleflight.Group
}

func NewTestRepository(client *redis.Client, loader TestLoader, ttl time.Duration) *TestRepository {
	return &TestRepository{
		client: client,
		loader: loader,
		ttl:    ttl,
	}
}

func (r *TestRepository) GetTest(ctx context.Context, testID string) (domain.Test, error) {
	key := r.schemaKey(testID)

	if test, ok := r.cached(ctx, key); ok {
		return test, nil
	}

	result, err, _ := r.sf.Do(testID, func() (interface{}, error) {
		// Re-check cache in case another goroutine filled it.
		if test, ok := r.cached(ctx, key); ok {
			return test, nil
		}

		test, err := r.loader.LoadTest(ctx, testID)
		if err != nil {
			return domain.Test{}, err
		}

		if data, err := json.Marshal(test); err == nil {
			_ = r.client.Set(ctx, key, data, r.ttlWithJitter()).Err()
		}
		return test, nil
	})
	if err != nil {
		return domain.Test{}, err
	}
	return result.(domain.Test), nil
}

func (r *TestRepository) cached(ctx context.Context, key string) (domain.Test, bool) {
	data, err := r.client.Get(ctx, key).Bytes()
	if err != nil {
		return domain.Test{}, false
	}
	var test domain.Test
	if err := json.Unmarshal(data, &test); err != nil {
		return domain.Test{}, false
	}
	return test, true
}

func (r *TestRepository) schemaKey(testID string) string {
	return "test:" + testID + ":schema"
}

// ttlWithJitter spreads expirations by up to 10%. The global rand source is
// used because fills for different tests can run concurrently.
func (r *TestRepository) ttlWithJitter() time.Duration {
	if r.ttl <= 0 {
		return 0
	}
	jitterMax := int64(r.ttl) / 10
	return r.ttl + time.Duration(rand.Int63n(jitterMax+1))
}
