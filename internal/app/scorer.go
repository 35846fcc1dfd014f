package app

import (
	"math"

	"orbita-service/internal/domain"
)

// fallbackResults is the fixed mapping returned for tests that declare no
// dimensions. The values are part of the product contract for legacy
// non-dimensional tests, not placeholders to be computed.
var fallbackResults = map[string]int{
	"habilidad1": 75,
	"habilidad2": 65,
	"habilidad3": 80,
	"habilidad4": 70,
}

// Score aggregates a finalized answer set into per-dimension percentages.
// It is a pure function: same schema and answers always yield the same map.
//
// Each dimension's denominator is the number of questions declaring it, so
// with the usual 0/1 option scores a fully max-answered dimension lands on
// exactly 100. Option scores above 1 can push a dimension past 100; the raw
// value is preserved rather than clamped.
func Score(test domain.Test, answers []domain.Answer) (map[string]int, error) {
	if len(answers) != len(test.Questions) {
		return nil, domain.ErrSchemaMismatch
	}

	if len(test.Dimensions) == 0 {
		results := make(map[string]int, len(fallbackResults))
		for k, v := range fallbackResults {
			results[k] = v
		}
		return results, nil
	}

	tally := make(map[string]float64, len(test.Dimensions))
	for _, d := range test.Dimensions {
		tally[d] = 0
	}

	for i, answer := range answers {
		if answer == nil {
			continue
		}
		dim := test.Questions[i].Dimension
		if dim == "" {
			continue
		}
		if _, ok := tally[dim]; !ok {
			return nil, domain.ErrSchemaMismatch
		}
		tally[dim] += float64(answer.Score)
	}

	questionCount := make(map[string]int, len(test.Dimensions))
	for _, q := range test.Questions {
		if q.Dimension != "" {
			questionCount[q.Dimension]++
		}
	}

	results := make(map[string]int, len(tally))
	for dim, sum := range tally {
		maxPossible := questionCount[dim]
		if maxPossible < 1 {
			maxPossible = 1
		}
		results[dim] = int(math.Round(sum / float64(maxPossible) * 100))
	}
	return results, nil
}
