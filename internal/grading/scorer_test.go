package grading

import (
	"testing"

	"github.com/google/uuid"

	"github.com/formforge/formforge-backend/internal/model"
)

func floatPtr(v float64) *float64 { return &v }

func weighted(points int) model.Question {
	return model.Question{
		ID:     uuid.New(),
		Type:   model.QuestionTypeMultipleChoice,
		Points: points,
		Options: []model.Option{
			{ID: "right", Content: "Right", IsCorrect: true},
			{ID: "wrong", Content: "Wrong"},
		},
	}
}

func TestSummarize_FullAndZeroScore(t *testing.T) {
	q := weighted(10)
	questions := []model.Question{q}

	full := Summarize(questions, map[uuid.UUID]Result{q.ID: {IsCorrect: boolPtr(true), PointsEarned: 10}}, floatPtr(60))
	if full.Score == nil || *full.Score != 100 {
		t.Fatalf("expected score=100, got %v", full.Score)
	}
	if full.Passed == nil || !*full.Passed {
		t.Fatalf("expected passed=true, got %v", full.Passed)
	}

	zero := Summarize(questions, map[uuid.UUID]Result{q.ID: {IsCorrect: boolPtr(false)}}, floatPtr(60))
	if zero.Score == nil || *zero.Score != 0 {
		t.Fatalf("expected score=0, got %v", zero.Score)
	}
	if zero.Passed == nil || *zero.Passed {
		t.Fatalf("expected passed=false, got %v", zero.Passed)
	}
}

func TestSummarize_SurveyHasNilScore(t *testing.T) {
	questions := []model.Question{
		{ID: uuid.New(), Type: model.QuestionTypeRating, Points: 0},
		{ID: uuid.New(), Type: model.QuestionTypeShortText, Points: 0},
	}

	got := Summarize(questions, nil, floatPtr(60))
	if got.Score != nil {
		t.Fatalf("expected nil score for survey, got %v", *got.Score)
	}
	if got.Passed != nil {
		t.Fatalf("expected nil passed for survey, got %v", *got.Passed)
	}
}

func TestSummarize_ExcludedTypesCarryNoWeight(t *testing.T) {
	mc := weighted(10)
	rating := model.Question{ID: uuid.New(), Type: model.QuestionTypeRating, Points: 10}
	questions := []model.Question{mc, rating}
	results := map[uuid.UUID]Result{
		mc.ID: {IsCorrect: boolPtr(true), PointsEarned: 10},
	}

	got := Summarize(questions, results, floatPtr(60))
	if got.Score == nil || *got.Score != 100 {
		t.Fatalf("expected score=100 with the rating excluded, got %v", got.Score)
	}
	if got.PointsPossible != 10 {
		t.Fatalf("expected possible=10, got %d", got.PointsPossible)
	}
}

func TestSummarize_OnlyExcludedTypeWeightedHasNilScore(t *testing.T) {
	questions := []model.Question{
		{ID: uuid.New(), Type: model.QuestionTypeRating, Points: 10},
		{ID: uuid.New(), Type: model.QuestionTypeScale, Points: 5},
	}

	got := Summarize(questions, nil, floatPtr(60))
	if got.Score != nil {
		t.Fatalf("expected nil score when no gradable question carries weight, got %v", *got.Score)
	}
	if got.Passed != nil {
		t.Fatalf("expected nil passed, got %v", *got.Passed)
	}
}

func TestSummarize_KeylessWeightedCarriesNoWeight(t *testing.T) {
	mc := weighted(5)
	keyless := model.Question{ID: uuid.New(), Type: model.QuestionTypeShortText, Points: 5}
	questions := []model.Question{mc, keyless}
	results := map[uuid.UUID]Result{
		mc.ID: {IsCorrect: boolPtr(true), PointsEarned: 5},
	}

	got := Summarize(questions, results, floatPtr(60))
	if got.Score == nil || *got.Score != 100 {
		t.Fatalf("expected the keyless question out of the denominator, got %v", got.Score)
	}

	// A keyless question alone yields a survey, not a zero score.
	alone := Summarize([]model.Question{keyless}, nil, floatPtr(60))
	if alone.Score != nil {
		t.Fatalf("expected nil score, got %v", *alone.Score)
	}
}

func TestSummarize_RoundsToTwoDecimals(t *testing.T) {
	q1, q2, q3 := weighted(1), weighted(1), weighted(1)
	questions := []model.Question{q1, q2, q3}
	results := map[uuid.UUID]Result{
		q1.ID: {IsCorrect: boolPtr(true), PointsEarned: 1},
	}

	got := Summarize(questions, results, nil)
	if got.Score == nil || *got.Score != 33.33 {
		t.Fatalf("expected score=33.33, got %v", got.Score)
	}
	if got.Passed != nil {
		t.Fatalf("expected nil passed without threshold, got %v", *got.Passed)
	}
}

func TestSummarize_UnansweredWeightedCountsAgainst(t *testing.T) {
	q1, q2 := weighted(5), weighted(5)
	questions := []model.Question{q1, q2}
	results := map[uuid.UUID]Result{
		q1.ID: {IsCorrect: boolPtr(true), PointsEarned: 5},
	}

	got := Summarize(questions, results, floatPtr(60))
	if got.Score == nil || *got.Score != 50 {
		t.Fatalf("expected score=50, got %v", got.Score)
	}
	if got.Passed == nil || *got.Passed {
		t.Fatalf("expected passed=false, got %v", got.Passed)
	}
}

func TestSummarize_ScoreBounds(t *testing.T) {
	q := weighted(7)
	questions := []model.Question{q}

	cases := map[uuid.UUID]Result{
		q.ID: {IsCorrect: boolPtr(true), PointsEarned: 7},
	}

	got := Summarize(questions, cases, nil)
	if got.Score == nil || *got.Score < 0 || *got.Score > 100 {
		t.Fatalf("score out of bounds: %v", got.Score)
	}
	if got.PointsEarned != 7 || got.PointsPossible != 7 {
		t.Fatalf("unexpected totals: earned=%d possible=%d", got.PointsEarned, got.PointsPossible)
	}
}

func TestSummarize_PassingBoundaryIsInclusive(t *testing.T) {
	q1, q2 := weighted(3), weighted(2)
	questions := []model.Question{q1, q2}
	results := map[uuid.UUID]Result{
		q1.ID: {IsCorrect: boolPtr(true), PointsEarned: 3},
	}

	// 3/5 = exactly 60.
	got := Summarize(questions, results, floatPtr(60))
	if got.Passed == nil || !*got.Passed {
		t.Fatalf("expected passed=true at the boundary, got %v", got.Passed)
	}
}
