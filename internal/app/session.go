package app

import (
	"sync"
	"time"

	"orbita-service/internal/domain"
)

// Session is the in-memory state of one user walking through one test:
// the current question index plus one answer slot per question. The slot
// count never changes after creation.
type Session struct {
	key         string
	test        domain.Test
	now         func() time.Time
	mu          sync.RWMutex
	current     int
	answers     []domain.Answer
	completed   bool
	subscribers map[chan domain.Progress]struct{}
}

// NewSession is exported for infrastructure layers that need to seed sessions.
func NewSession(key string, test domain.Test) *Session {
	return NewSessionWithClock(key, test, time.Now)
}

// NewSessionWithClock allows deterministic timestamps in tests.
func NewSessionWithClock(key string, test domain.Test, now func() time.Time) *Session {
	return &Session{
		key:         key,
		test:        test,
		now:         now,
		answers:     make([]domain.Answer, len(test.Questions)),
		subscribers: make(map[chan domain.Progress]struct{}),
	}
}

// selectOption records the labeled option for the current question. It
// reports atEnd=true when the final question was just answered; completion
// itself is marked by the service once the result is safely persisted.
func (s *Session) selectOption(label string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.completed {
		return false, domain.ErrSessionCompleted
	}

	question := s.test.Questions[s.current]
	var selected *domain.Option
	for i := range question.Options {
		if question.Options[i].Label == label {
			selected = &question.Options[i]
			break
		}
	}
	if selected == nil {
		return false, domain.ErrInvalidSelection
	}

	s.answers[s.current] = selected
	if s.current < len(s.test.Questions)-1 {
		s.current++
		s.broadcastLocked()
		return false, nil
	}
	return true, nil
}

func (s *Session) skip() (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.completed {
		return false, domain.ErrSessionCompleted
	}

	s.answers[s.current] = nil
	if s.current < len(s.test.Questions)-1 {
		s.current++
		s.broadcastLocked()
		return false, nil
	}
	return true, nil
}

func (s *Session) back() (domain.Progress, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.completed {
		return s.snapshotLocked(), domain.ErrSessionCompleted
	}
	if s.current > 0 {
		s.current--
	}
	return s.broadcastLocked(), nil
}

func (s *Session) markCompleted() domain.Progress {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.completed = true
	return s.broadcastLocked()
}

func (s *Session) schemaAndAnswers() (domain.Test, []domain.Answer) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	answers := make([]domain.Answer, len(s.answers))
	copy(answers, s.answers)
	return s.test, answers
}

func (s *Session) snapshot() domain.Progress {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.snapshotLocked()
}

func (s *Session) subscribe() (<-chan domain.Progress, func()) {
	ch := make(chan domain.Progress, 8)

	s.mu.Lock()
	s.subscribers[ch] = struct{}{}
	initial := s.snapshotLocked()
	s.mu.Unlock()

	ch <- initial

	cancel := func() {
		s.mu.Lock()
		if _, ok := s.subscribers[ch]; ok {
			delete(s.subscribers, ch)
			close(ch)
		}
		s.mu.Unlock()
	}
	return ch, cancel
}

func (s *Session) broadcastLocked() domain.Progress {
	progress := s.snapshotLocked()
	for ch := range s.subscribers {
		select {
		case ch <- progress:
		default:
			// Drop the stale update so slow subscribers never block the session.
			select {
			case <-ch:
			default:
			}
			ch <- progress
		}
	}
	return progress
}

func (s *Session) snapshotLocked() domain.Progress {
	answered := 0
	for _, a := range s.answers {
		if a != nil {
			answered++
		}
	}

	progress := domain.Progress{
		TestID:    s.test.Route,
		Index:     s.current,
		Total:     len(s.test.Questions),
		Answered:  answered,
		Completed: s.completed,
		UpdatedAt: s.now(),
	}
	if !s.completed && s.current < len(s.test.Questions) {
		q := s.test.Questions[s.current]
		progress.Question = &q
	}
	return progress
}
