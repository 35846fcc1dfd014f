package app

import (
	"context"
	"fmt"
	"time"

	"orbita-service/internal/domain"
)

// SessionRepository abstracts how questionnaire sessions are stored (in-memory, Redis, etc).
type SessionRepository interface {
	GetOrCreate(key string, test domain.Test) *Session
	Get(key string) (*Session, bool)
	Delete(key string)
}

// TestRepository loads questionnaire schemas (from cache/backing store).
type TestRepository interface {
	GetTest(ctx context.Context, testID string) (domain.Test, error)
}

// ResultRepository persists completed sessions. Load reports absence via
// the boolean, not an error; a corrupt stored value counts as absent.
type ResultRepository interface {
	Save(ctx context.Context, record domain.ResultRecord) error
	Load(ctx context.Context, testID string) (domain.ResultRecord, bool, error)
	ListAll(ctx context.Context) ([]domain.ResultRecord, error)
}

// OrientationService contains the questionnaire use cases: walking a user
// through a test, scoring at completion, and reading results back.
type OrientationService struct {
	sessions SessionRepository
	tests    TestRepository
	results  ResultRepository
	now      func() time.Time
}

func NewOrientationService(sessions SessionRepository, tests TestRepository, results ResultRepository) *OrientationService {
	return &OrientationService{sessions: sessions, tests: tests, results: results, now: time.Now}
}

// NewOrientationServiceWithClock is test-only for deterministic timestamps.
func NewOrientationServiceWithClock(sessions SessionRepository, tests TestRepository, results ResultRepository, now func() time.Time) *OrientationService {
	return &OrientationService{sessions: sessions, tests: tests, results: results, now: now}
}

func sessionKey(testID, userID string) string {
	return testID + "/" + userID
}

// Start loads the test schema and opens (or resumes) a session for the user.
func (s *OrientationService) Start(ctx context.Context, testID, userID string) (domain.Progress, error) {
	test, err := s.tests.GetTest(ctx, testID)
	if err != nil {
		return domain.Progress{}, err
	}
	if err := domain.ValidateTest(test); err != nil {
		return domain.Progress{}, err
	}

	session := s.sessions.GetOrCreate(sessionKey(testID, userID), test)
	return session.snapshot(), nil
}

// Select records the labeled option as the answer for the current question
// and advances. Answering the final question completes the session: results
// are computed and the record saved. If the save fails the answer is kept
// and the session stays in progress so the client can retry.
func (s *OrientationService) Select(ctx context.Context, testID, userID, label string) (domain.Progress, *domain.ResultRecord, error) {
	session, ok := s.sessions.Get(sessionKey(testID, userID))
	if !ok {
		return domain.Progress{}, nil, domain.ErrSessionNotFound
	}

	atEnd, err := session.selectOption(label)
	if err != nil {
		return session.snapshot(), nil, err
	}
	if !atEnd {
		return session.snapshot(), nil, nil
	}
	return s.finalize(ctx, session)
}

// Skip records a null answer and advances. Skipping the final question also
// completes the session; an all-skipped session scores 0 on every dimension.
func (s *OrientationService) Skip(ctx context.Context, testID, userID string) (domain.Progress, *domain.ResultRecord, error) {
	session, ok := s.sessions.Get(sessionKey(testID, userID))
	if !ok {
		return domain.Progress{}, nil, domain.ErrSessionNotFound
	}

	atEnd, err := session.skip()
	if err != nil {
		return session.snapshot(), nil, err
	}
	if !atEnd {
		return session.snapshot(), nil, nil
	}
	return s.finalize(ctx, session)
}

// Back moves to the previous question; a no-op at the first one.
func (s *OrientationService) Back(_ context.Context, testID, userID string) (domain.Progress, error) {
	session, ok := s.sessions.Get(sessionKey(testID, userID))
	if !ok {
		return domain.Progress{}, domain.ErrSessionNotFound
	}
	return session.back()
}

func (s *OrientationService) finalize(ctx context.Context, session *Session) (domain.Progress, *domain.ResultRecord, error) {
	test, answers := session.schemaAndAnswers()
	results, err := Score(test, answers)
	if err != nil {
		return session.snapshot(), nil, err
	}

	record := domain.ResultRecord{
		TestID:      test.Route,
		TestName:    test.Name,
		Answers:     answers,
		Results:     results,
		CompletedAt: s.now(),
	}
	if err := s.results.Save(ctx, record); err != nil {
		return session.snapshot(), nil, fmt.Errorf("save result: %w", err)
	}

	progress := session.markCompleted()
	return progress, &record, nil
}

// Subscribe returns a channel that receives progress updates for a session.
// The caller must invoke the returned cancel function to avoid leaks.
func (s *OrientationService) Subscribe(_ context.Context, testID, userID string) (<-chan domain.Progress, func(), error) {
	session, ok := s.sessions.Get(sessionKey(testID, userID))
	if !ok {
		return nil, nil, domain.ErrSessionNotFound
	}
	ch, cancel := session.subscribe()
	return ch, cancel, nil
}

// End discards the session without persisting anything (leaving early).
func (s *OrientationService) End(_ context.Context, testID, userID string) {
	s.sessions.Delete(sessionKey(testID, userID))
}

// Results loads the persisted record for a test, if any.
func (s *OrientationService) Results(ctx context.Context, testID string) (domain.ResultRecord, bool, error) {
	return s.results.Load(ctx, testID)
}

// History returns every persisted record, most recent first.
func (s *OrientationService) History(ctx context.Context) ([]domain.ResultRecord, error) {
	return s.results.ListAll(ctx)
}
