// Package grading contains the pure answer-evaluation and score-aggregation
// logic. Nothing in this package touches storage or the network; the session
// service feeds it question snapshots and raw answers and persists what it
// returns.
package grading

import (
	"encoding/json"
	"errors"
	"sort"
	"strings"

	"github.com/formforge/formforge-backend/internal/model"
)

// Result is the outcome of evaluating one answer. IsCorrect is nil when the
// question is not auto-gradable (no answer key, or a type that is never
// graded). PointsEarned is 0 or the question's full points; there is no
// partial credit.
type Result struct {
	IsCorrect    *bool `json:"is_correct,omitempty"`
	PointsEarned int   `json:"points_earned"`
}

var ungraded = Result{}

// ErrInvalidShape is returned by ValidateAnswer when the submitted answer
// does not match the shape required by the question's type.
var ErrInvalidShape = errors.New("answer shape does not match question type")

// Evaluate maps (question, submitted answer) to a Result. It never fails:
// a missing answer, a malformed answer, or an option id that no longer
// exists on the question all grade as incorrect, because a grading failure
// must never block submission.
func Evaluate(q *model.Question, answer json.RawMessage) Result {
	switch q.Type {
	case model.QuestionTypeShortText, model.QuestionTypeLongText:
		return evaluateText(q, answer)
	case model.QuestionTypeMultipleChoice, model.QuestionTypeDropdown:
		return evaluateSingleChoice(q, answer)
	case model.QuestionTypeCheckboxes:
		return evaluateCheckboxes(q, answer)
	case model.QuestionTypeRating, model.QuestionTypeScale,
		model.QuestionTypeDate, model.QuestionTypeTime,
		model.QuestionTypeFileUpload, model.QuestionTypeSection,
		model.QuestionTypeImage, model.QuestionTypeVideo,
		model.QuestionTypeMatrix:
		// Never auto-graded. Kept in responses for completeness but
		// excluded from score aggregation.
		return ungraded
	default:
		return ungraded
	}
}

// evaluateText grades short_text/long_text by trimmed, case-insensitive
// exact match against the configured answer key.
func evaluateText(q *model.Question, answer json.RawMessage) Result {
	if q.CorrectAnswer == nil || strings.TrimSpace(*q.CorrectAnswer) == "" {
		return ungraded
	}

	submitted, ok := parseString(answer)
	if !ok {
		return incorrect()
	}

	if strings.EqualFold(strings.TrimSpace(submitted), strings.TrimSpace(*q.CorrectAnswer)) {
		return correct(q.Points)
	}
	return incorrect()
}

// evaluateSingleChoice grades multiple_choice/dropdown all-or-nothing on a
// single option id. The answer key is correct_answer; if that is unset the
// single option flagged is_correct serves as fallback.
func evaluateSingleChoice(q *model.Question, answer json.RawMessage) Result {
	correctID := ""
	if q.CorrectAnswer != nil {
		correctID = strings.TrimSpace(*q.CorrectAnswer)
	}
	if correctID == "" {
		if ids := q.CorrectOptionIDs(); len(ids) == 1 {
			correctID = ids[0]
		}
	}
	if correctID == "" {
		return ungraded
	}

	submitted, ok := parseString(answer)
	if !ok {
		return incorrect()
	}
	submitted = strings.TrimSpace(submitted)

	// An option edited out mid-attempt grades as incorrect, never an error.
	if !q.HasOption(submitted) {
		return incorrect()
	}

	if submitted == correctID {
		return correct(q.Points)
	}
	return incorrect()
}

// evaluateCheckboxes grades all-or-nothing on exact set equality: full
// points iff the submitted set equals exactly the set of options flagged
// is_correct. Any omission or extra selection yields zero. Order and
// duplicates in the submission are irrelevant.
func evaluateCheckboxes(q *model.Question, answer json.RawMessage) Result {
	correctSet := normalizeSet(q.CorrectOptionIDs())
	if len(correctSet) == 0 {
		return ungraded
	}

	submitted, ok := parseStringSlice(answer)
	if !ok {
		return incorrect()
	}

	if equalSets(normalizeSet(submitted), correctSet) {
		return correct(q.Points)
	}
	return incorrect()
}

// Gradable reports whether a question can be auto-graded: its type must be
// one Evaluate grades and an answer key must be configured. Mirrors the
// ungraded branches of Evaluate, so a question is gradable iff Evaluate can
// return a non-nil correctness for it.
func Gradable(q *model.Question) bool {
	switch q.Type {
	case model.QuestionTypeShortText, model.QuestionTypeLongText:
		return q.CorrectAnswer != nil && strings.TrimSpace(*q.CorrectAnswer) != ""
	case model.QuestionTypeMultipleChoice, model.QuestionTypeDropdown:
		if q.CorrectAnswer != nil && strings.TrimSpace(*q.CorrectAnswer) != "" {
			return true
		}
		return len(q.CorrectOptionIDs()) == 1
	case model.QuestionTypeCheckboxes:
		return len(normalizeSet(q.CorrectOptionIDs())) > 0
	default:
		return false
	}
}

// ValidateAnswer checks that a raw answer has the shape required by the
// question's type. Shape errors are rejected at record time; evaluation
// itself stays failure-free.
func ValidateAnswer(q *model.Question, answer json.RawMessage) error {
	switch q.Type {
	case model.QuestionTypeShortText, model.QuestionTypeLongText,
		model.QuestionTypeMultipleChoice, model.QuestionTypeDropdown,
		model.QuestionTypeDate, model.QuestionTypeTime,
		model.QuestionTypeFileUpload:
		if _, ok := parseString(answer); !ok {
			return ErrInvalidShape
		}
	case model.QuestionTypeRating, model.QuestionTypeScale:
		var n float64
		if err := json.Unmarshal(answer, &n); err != nil {
			return ErrInvalidShape
		}
	case model.QuestionTypeCheckboxes:
		if _, ok := parseStringSlice(answer); !ok {
			return ErrInvalidShape
		}
	case model.QuestionTypeMatrix:
		var m map[string]json.RawMessage
		if err := json.Unmarshal(answer, &m); err != nil {
			return ErrInvalidShape
		}
	case model.QuestionTypeSection, model.QuestionTypeImage, model.QuestionTypeVideo:
		// Display-only types take no answer.
		return ErrInvalidShape
	default:
		return ErrInvalidShape
	}
	return nil
}

func correct(points int) Result {
	t := true
	if points < 0 {
		points = 0
	}
	return Result{IsCorrect: &t, PointsEarned: points}
}

func incorrect() Result {
	f := false
	return Result{IsCorrect: &f}
}

func parseString(raw []byte) (string, bool) {
	if len(raw) == 0 {
		return "", false
	}
	var s string
	if err := json.Unmarshal(raw, &s); err != nil {
		return "", false
	}
	return s, true
}

func parseStringSlice(raw []byte) ([]string, bool) {
	if len(raw) == 0 {
		return nil, false
	}
	var list []string
	if err := json.Unmarshal(raw, &list); err != nil {
		return nil, false
	}
	return list, true
}

// normalizeSet trims, dedupes, and sorts ids for set comparison.
func normalizeSet(in []string) []string {
	seen := make(map[string]struct{}, len(in))
	for _, v := range in {
		s := strings.TrimSpace(v)
		if s == "" {
			continue
		}
		seen[s] = struct{}{}
	}
	out := make([]string, 0, len(seen))
	for k := range seen {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

func equalSets(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}
