package model

import (
	"time"

	"github.com/google/uuid"
)

// FormStatus enumerates the possible lifecycle states of a form.
type FormStatus string

const (
	FormStatusDraft  FormStatus = "draft"
	FormStatusOpen   FormStatus = "open"
	FormStatusClosed FormStatus = "closed"
)

// AntiCheatSettings configures which behavioral events the client should
// report. These flags gate client behavior only; the server accepts and
// counts any reported event regardless.
type AntiCheatSettings struct {
	MaxViolations      int  `json:"max_violations"`
	BlockCopyPaste     bool `json:"block_copy_paste"`
	DetectTabSwitch    bool `json:"detect_tab_switch"`
	FullscreenRequired bool `json:"fullscreen_required"`
}

// FormSettings is the exam configuration bundle stored as JSONB on the form.
type FormSettings struct {
	TimeLimitMinutes *int              `json:"time_limit_minutes,omitempty"`
	ShuffleOptions   bool              `json:"shuffle_options"`
	ShowScoreAfter   bool              `json:"show_score_after"`
	PassingScore     *float64          `json:"passing_score,omitempty"`
	AntiCheat        AntiCheatSettings `json:"anti_cheat"`
}

// Form represents a survey or timed exam built by a creator.
type Form struct {
	ID          uuid.UUID    `json:"id"`
	OwnerID     int          `json:"owner_id"`
	Title       string       `json:"title"`
	Description string       `json:"description,omitempty"`
	Status      FormStatus   `json:"status"`
	Settings    FormSettings `json:"settings"`
	CreatedAt   time.Time    `json:"created_at"`
	UpdatedAt   time.Time    `json:"updated_at"`
}

// FormSnapshot bundles a form with its questions as read at a single point
// in time. The session engine evaluates against the snapshot fetched at
// evaluation time and never writes back to it.
type FormSnapshot struct {
	Form      *Form
	Questions []Question
}

// QuestionByID returns the snapshot question with the given id, or nil.
func (s *FormSnapshot) QuestionByID(id uuid.UUID) *Question {
	for i := range s.Questions {
		if s.Questions[i].ID == id {
			return &s.Questions[i]
		}
	}
	return nil
}

// PublicFormSettings is the subset of settings a respondent is allowed to
// see. Passing score and score visibility stay server-side; the anti-cheat
// flags are needed by the client to know which events to report.
type PublicFormSettings struct {
	TimeLimitMinutes *int              `json:"time_limit_minutes,omitempty"`
	AntiCheat        AntiCheatSettings `json:"anti_cheat"`
}

// PublicForm is a form as exposed to respondents, with grading material
// stripped and options ordered per session.
type PublicForm struct {
	ID          uuid.UUID          `json:"id"`
	Title       string             `json:"title"`
	Description string             `json:"description,omitempty"`
	Settings    PublicFormSettings `json:"settings"`
	Questions   []PublicQuestion   `json:"questions"`
}

// CreateFormRequest is the payload for creating a new form.
type CreateFormRequest struct {
	Title       string        `json:"title" binding:"required,min=1,max=255"`
	Description string        `json:"description" binding:"omitempty,max=2000"`
	Settings    *FormSettings `json:"settings" binding:"omitempty"`
}

// UpdateFormRequest is the payload for updating a draft form.
type UpdateFormRequest struct {
	Title       string        `json:"title" binding:"omitempty,min=1,max=255"`
	Description *string       `json:"description" binding:"omitempty,max=2000"`
	Settings    *FormSettings `json:"settings" binding:"omitempty"`
}
