package memory

import (
	"context"
	"sort"
	"sync"

	"orbita-service/internal/domain"
)

// ResultStore is an in-memory implementation of app.ResultRepository.
// Records are keyed by test ID; saving twice for the same test overwrites
// (last write wins, matching the storage contract).
type ResultStore struct {
	mu      sync.RWMutex
	records map[string]domain.ResultRecord
}

func NewResultStore() *ResultStore {
	return &ResultStore{
		records: make(map[string]domain.ResultRecord),
	}
}

func (s *ResultStore) Save(_ context.Context, record domain.ResultRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.records[record.TestID] = record
	return nil
}

func (s *ResultStore) Load(_ context.Context, testID string) (domain.ResultRecord, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	record, ok := s.records[testID]
	return record, ok, nil
}

func (s *ResultStore) ListAll(_ context.Context) ([]domain.ResultRecord, error) {
	s.mu.RLock()
	records := make([]domain.ResultRecord, 0, len(s.records))
	for _, record := range s.records {
		records = append(records, record)
	}
	s.mu.RUnlock()

	sort.Slice(records, func(i, j int) bool {
		return records[i].CompletedAt.After(records[j].CompletedAt)
	})
	return records, nil
}
