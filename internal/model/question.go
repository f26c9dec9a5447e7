package model

import (
	"github.com/google/uuid"
)

// QuestionType is the closed enumeration of supported question types.
type QuestionType string

const (
	QuestionTypeShortText      QuestionType = "short_text"
	QuestionTypeLongText       QuestionType = "long_text"
	QuestionTypeMultipleChoice QuestionType = "multiple_choice"
	QuestionTypeCheckboxes     QuestionType = "checkboxes"
	QuestionTypeDropdown       QuestionType = "dropdown"
	QuestionTypeRating         QuestionType = "rating"
	QuestionTypeScale          QuestionType = "scale"
	QuestionTypeDate           QuestionType = "date"
	QuestionTypeTime           QuestionType = "time"
	QuestionTypeFileUpload     QuestionType = "file_upload"
	QuestionTypeSection        QuestionType = "section"
	QuestionTypeImage          QuestionType = "image"
	QuestionTypeVideo          QuestionType = "video"
	QuestionTypeMatrix         QuestionType = "matrix"
)

// questionTypes is the validation set for incoming payloads.
var questionTypes = map[QuestionType]bool{
	QuestionTypeShortText:      true,
	QuestionTypeLongText:       true,
	QuestionTypeMultipleChoice: true,
	QuestionTypeCheckboxes:     true,
	QuestionTypeDropdown:       true,
	QuestionTypeRating:         true,
	QuestionTypeScale:          true,
	QuestionTypeDate:           true,
	QuestionTypeTime:           true,
	QuestionTypeFileUpload:     true,
	QuestionTypeSection:        true,
	QuestionTypeImage:          true,
	QuestionTypeVideo:          true,
	QuestionTypeMatrix:         true,
}

// Valid reports whether t is a known question type.
func (t QuestionType) Valid() bool {
	return questionTypes[t]
}

// HasOptions reports whether the type carries an option list.
func (t QuestionType) HasOptions() bool {
	switch t {
	case QuestionTypeMultipleChoice, QuestionTypeCheckboxes, QuestionTypeDropdown:
		return true
	}
	return false
}

// Option is one entry in a choice-bearing question's ordered option set.
type Option struct {
	ID        string `json:"id"`
	Content   string `json:"content"`
	IsCorrect bool   `json:"is_correct"`
}

// Question represents a single form question. CorrectAnswer is set only for
// single-answer-gradable types: an option id for multiple_choice/dropdown,
// a literal string for short_text/long_text.
type Question struct {
	ID            uuid.UUID    `json:"id"`
	FormID        uuid.UUID    `json:"form_id"`
	Title         string       `json:"title"`
	Type          QuestionType `json:"type"`
	Required      bool         `json:"required"`
	Points        int          `json:"points"`
	CorrectAnswer *string      `json:"correct_answer,omitempty"`
	Options       []Option     `json:"options,omitempty"`
	Position      int          `json:"position"`
}

// CorrectOptionIDs returns the ids of options flagged is_correct, in order.
func (q *Question) CorrectOptionIDs() []string {
	var ids []string
	for _, opt := range q.Options {
		if opt.IsCorrect {
			ids = append(ids, opt.ID)
		}
	}
	return ids
}

// HasOption reports whether the question still carries an option with the
// given id. Answers referencing removed options grade as incorrect.
func (q *Question) HasOption(id string) bool {
	for _, opt := range q.Options {
		if opt.ID == id {
			return true
		}
	}
	return false
}

// PublicQuestion is a question as exposed to respondents: correct answers
// and option correctness flags are stripped.
type PublicQuestion struct {
	ID       uuid.UUID      `json:"id"`
	Title    string         `json:"title"`
	Type     QuestionType   `json:"type"`
	Required bool           `json:"required"`
	Points   int            `json:"points"`
	Options  []PublicOption `json:"options,omitempty"`
	Position int            `json:"position"`
}

// PublicOption is an option without its is_correct flag.
type PublicOption struct {
	ID      string `json:"id"`
	Content string `json:"content"`
}

// QuestionInput is the payload for one question in a bulk replace.
type QuestionInput struct {
	Title         string   `json:"title" binding:"required,min=1,max=2000"`
	Type          string   `json:"type" binding:"required"`
	Required      bool     `json:"required"`
	Points        int      `json:"points" binding:"min=0"`
	CorrectAnswer *string  `json:"correct_answer" binding:"omitempty,max=2000"`
	Options       []Option `json:"options" binding:"omitempty,dive"`
}

// ReplaceQuestionsRequest is the payload for bulk replacing a form's questions.
type ReplaceQuestionsRequest struct {
	Questions []QuestionInput `json:"questions" binding:"dive"`
}
