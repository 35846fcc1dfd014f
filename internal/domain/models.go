package domain

import (
	"encoding/json"
	"strconv"
	"time"
)

// Score is the numeric weight an option contributes to its question's
// dimension. Source catalogs are loose about the type: JSON numbers,
// numeric strings and null all appear in the wild. Anything unparseable
// decodes to 0.
type Score float64

func (s *Score) UnmarshalJSON(data []byte) error {
	var raw any
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	switch v := raw.(type) {
	case float64:
		*s = Score(v)
	case string:
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			*s = Score(f)
		} else {
			*s = 0
		}
	default:
		*s = 0
	}
	return nil
}

// Option is one selectable answer to a question.
type Option struct {
	Label string `json:"label"`
	Score Score  `json:"score,omitempty"`
}

// Question models one questionnaire item. Dimension is empty for
// questions that do not feed any dimension's score.
type Question struct {
	ID        int      `json:"id"`
	Text      string   `json:"text"`
	Dimension string   `json:"dimension,omitempty"`
	Options   []Option `json:"options"`
}

// Test is a full questionnaire schema. Tests without declared dimensions
// are "non-dimensional" and score to a fixed fallback mapping.
type Test struct {
	ID          int        `json:"id"`
	Name        string     `json:"name"`
	Description string     `json:"description,omitempty"`
	Route       string     `json:"route"`
	Dimensions  []string   `json:"dimensions,omitempty"`
	Questions   []Question `json:"questions"`
}

// Answer is one per-question slot: nil means the question was skipped.
type Answer = *Option

// ResultRecord is the persisted outcome of one completed session.
// Created once at completion and never mutated afterwards.
type ResultRecord struct {
	TestID      string         `json:"testId"`
	TestName    string         `json:"testName"`
	Answers     []Answer       `json:"answers"`
	Results     map[string]int `json:"results"`
	CompletedAt time.Time      `json:"completedAt"`
}

// Progress is the observable state of a session in flight.
type Progress struct {
	TestID    string    `json:"testId"`
	Index     int       `json:"index"`
	Total     int       `json:"total"`
	Answered  int       `json:"answered"`
	Completed bool      `json:"completed"`
	Question  *Question `json:"question,omitempty"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// ValidateTest checks the invariants the session and scorer rely on: at
// least one question, every question with at least one option, and for
// dimensional tests every question dimension appears in the declared list.
func ValidateTest(test Test) error {
	if len(test.Questions) == 0 {
		return ErrSchemaMismatch
	}
	for _, q := range test.Questions {
		if len(q.Options) == 0 {
			return ErrSchemaMismatch
		}
	}
	if len(test.Dimensions) == 0 {
		return nil
	}
	declared := make(map[string]struct{}, len(test.Dimensions))
	for _, d := range test.Dimensions {
		declared[d] = struct{}{}
	}
	for _, q := range test.Questions {
		if q.Dimension == "" {
			continue
		}
		if _, ok := declared[q.Dimension]; !ok {
			return ErrSchemaMismatch
		}
	}
	return nil
}
