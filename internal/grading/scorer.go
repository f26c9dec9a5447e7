package grading

import (
	"math"

	"github.com/google/uuid"

	"github.com/formforge/formforge-backend/internal/model"
)

// Summary is the aggregated outcome of one finalized attempt. Score is nil
// when the form has no weighted gradable questions: a survey has no score,
// not a zero score. Passed is nil unless both a score and a passing
// threshold exist.
type Summary struct {
	Score          *float64 `json:"score,omitempty"`
	Passed         *bool    `json:"passed,omitempty"`
	PointsEarned   int      `json:"points_earned"`
	PointsPossible int      `json:"points_possible"`
}

// Summarize aggregates per-question results into a total score. Only
// gradable questions with points > 0 contribute to the denominator: a
// weighted rating question, or a weighted short_text with no answer key,
// carries no score weight at all. A gradable question the respondent never
// answered simply contributes zero earned points. The score is a percentage
// rounded to two decimals.
//
// Summarize runs exactly once per session, at finalization. Scores are
// immutable afterward even if the question bank later changes.
func Summarize(questions []model.Question, results map[uuid.UUID]Result, passingScore *float64) Summary {
	var earned, possible int

	for i := range questions {
		q := &questions[i]
		if q.Points <= 0 || !Gradable(q) {
			continue
		}
		possible += q.Points
		if r, ok := results[q.ID]; ok {
			earned += r.PointsEarned
		}
	}

	summary := Summary{PointsEarned: earned, PointsPossible: possible}
	if possible == 0 {
		return summary
	}

	score := round2(100 * float64(earned) / float64(possible))
	summary.Score = &score

	if passingScore != nil {
		passed := score >= *passingScore
		summary.Passed = &passed
	}
	return summary
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}
