package redis

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"sort"

	"orbita-service/internal/domain"
	"github.com/redis/go-redis/v9"
)

const (
	resultKeyPrefix = "test_"
	resultKeySuffix = "_results"
)

// ResultStore persists completed sessions in Redis, one JSON value per test
// under test_{testID}_results. Saving overwrites (last write wins). Stored
// values are untrusted: a corrupt entry is skipped and logged, never fatal,
// so one bad record cannot block access to the rest.
type ResultStore struct {
	client *redis.Client
}

func NewResultStore(client *redis.Client) *ResultStore {
	return &ResultStore{client: client}
}

func (s *ResultStore) Save(ctx context.Context, record domain.ResultRecord) error {
	data, err := json.Marshal(record)
	if err != nil {
		return fmt.Errorf("marshal result: %w", err)
	}
	if err := s.client.Set(ctx, resultKey(record.TestID), data, 0).Err(); err != nil {
		return fmt.Errorf("store result: %w", err)
	}
	return nil
}

func (s *ResultStore) Load(ctx context.Context, testID string) (domain.ResultRecord, bool, error) {
	data, err := s.client.Get(ctx, resultKey(testID)).Bytes()
	if err == redis.Nil {
		return domain.ResultRecord{}, false, nil
	}
	if err != nil {
		return domain.ResultRecord{}, false, fmt.Errorf("load result: %w", err)
	}

	var record domain.ResultRecord
	if err := json.Unmarshal(data, &record); err != nil {
		log.Printf("skipping corrupt result record %q: %v", resultKey(testID), err)
		return domain.ResultRecord{}, false, nil
	}
	return record, true, nil
}

func (s *ResultStore) ListAll(ctx context.Context) ([]domain.ResultRecord, error) {
	var records []domain.ResultRecord

	iter := s.client.Scan(ctx, 0, resultKeyPrefix+"*"+resultKeySuffix, 0).Iterator()
	for iter.Next(ctx) {
		key := iter.Val()
		data, err := s.client.Get(ctx, key).Bytes()
		if err == redis.Nil {
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("list results: %w", err)
		}

		var record domain.ResultRecord
		if err := json.Unmarshal(data, &record); err != nil {
			log.Printf("skipping corrupt result record %q: %v", key, err)
			continue
		}
		records = append(records, record)
	}
	if err := iter.Err(); err != nil {
		return nil, fmt.Errorf("scan results: %w", err)
	}

	sort.Slice(records, func(i, j int) bool {
		return records[i].CompletedAt.After(records[j].CompletedAt)
	})
	return records, nil
}

func resultKey(testID string) string {
	return resultKeyPrefix + testID + resultKeySuffix
}
