package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/formforge/formforge-backend/internal/model"
	"github.com/formforge/formforge-backend/internal/response"
	"github.com/formforge/formforge-backend/internal/service"
	"github.com/formforge/formforge-backend/internal/validator"
)

// RespondentHandler handles the public, unauthenticated respondent surface:
// starting attempts, autosaving answers, reporting violations, and
// submitting.
type RespondentHandler struct {
	sessionService *service.SessionService
	formService    *service.FormService
}

// NewRespondentHandler creates a new RespondentHandler.
func NewRespondentHandler(sessionService *service.SessionService, formService *service.FormService) *RespondentHandler {
	return &RespondentHandler{sessionService: sessionService, formService: formService}
}

// StartSession godoc
// POST /api/v1/forms/:form_id/sessions
// Starts an attempt and returns the session plus the respondent-facing form
// payload, with option order pinned for this session.
func (h *RespondentHandler) StartSession(c *gin.Context) {
	formID, ok := parseUUIDParam(c, "form_id")
	if !ok {
		return
	}

	var req model.StartSessionRequest
	if fields := validator.Bind(c, &req); fields != nil {
		response.FailWithFields(c, http.StatusBadRequest, response.ErrValidation, fields)
		return
	}

	session, err := h.sessionService.Start(c.Request.Context(), formID, &req)
	if err != nil {
		failFromErr(c, err)
		return
	}

	snapshot, err := h.formService.Snapshot(c.Request.Context(), formID)
	if err != nil {
		failFromErr(c, err)
		return
	}

	response.Success(c, http.StatusCreated, gin.H{
		"session": session,
		"form":    h.formService.PublicView(c.Request.Context(), snapshot, session.ID),
	})
}

// GetSessionForm godoc
// GET /api/v1/sessions/:session_id/form
// Re-fetches the form payload for an existing session, e.g. after a page
// reload. The pinned option order is reused.
func (h *RespondentHandler) GetSessionForm(c *gin.Context) {
	sessionID, ok := parseUUIDParam(c, "session_id")
	if !ok {
		return
	}

	state, err := h.sessionService.Poll(c.Request.Context(), sessionID)
	if err != nil {
		failFromErr(c, err)
		return
	}
	if state.Session.Status.Terminal() {
		response.Fail(c, http.StatusConflict, response.ErrSessionClosed)
		return
	}

	snapshot, err := h.formService.Snapshot(c.Request.Context(), state.Session.FormID)
	if err != nil {
		failFromErr(c, err)
		return
	}

	response.Success(c, http.StatusOK, gin.H{
		"form":              h.formService.PublicView(c.Request.Context(), snapshot, sessionID),
		"remaining_seconds": state.RemainingSeconds,
	})
}

// RecordAnswer godoc
// PUT /api/v1/sessions/:session_id/answers/:question_id
// Autosaves one answer. Last write wins; grading happens at finalization.
func (h *RespondentHandler) RecordAnswer(c *gin.Context) {
	sessionID, ok := parseUUIDParam(c, "session_id")
	if !ok {
		return
	}
	questionID, ok := parseUUIDParam(c, "question_id")
	if !ok {
		return
	}

	var req model.AnswerRequest
	if fields := validator.Bind(c, &req); fields != nil {
		response.FailWithFields(c, http.StatusBadRequest, response.ErrValidation, fields)
		return
	}

	resp, err := h.sessionService.RecordAnswer(c.Request.Context(), sessionID, questionID, req.Answer)
	if err != nil {
		failFromErr(c, err)
		return
	}

	response.Success(c, http.StatusOK, gin.H{
		"question_id": resp.QuestionID,
		"saved_at":    resp.UpdatedAt,
	})
}

// ReportViolation godoc
// POST /api/v1/sessions/:session_id/violations
// Records an anti-cheat event. When the form's threshold is reached the
// session is force-closed and the response says so.
func (h *RespondentHandler) ReportViolation(c *gin.Context) {
	sessionID, ok := parseUUIDParam(c, "session_id")
	if !ok {
		return
	}

	var req model.ReportViolationRequest
	if fields := validator.Bind(c, &req); fields != nil {
		response.FailWithFields(c, http.StatusBadRequest, response.ErrValidation, fields)
		return
	}

	result, err := h.sessionService.ReportViolation(c.Request.Context(), sessionID, req.EventType)
	if err != nil {
		failFromErr(c, err)
		return
	}

	response.Success(c, http.StatusOK, gin.H{
		"violations_count": result.ViolationsCount,
		"force_closed":     result.ForceClosed,
		"status":           result.Session.Status,
	})
}

// Submit godoc
// POST /api/v1/sessions/:session_id/submit
// Finalizes the attempt. Safe to retry: a duplicate submit returns the
// stored result.
func (h *RespondentHandler) Submit(c *gin.Context) {
	sessionID, ok := parseUUIDParam(c, "session_id")
	if !ok {
		return
	}

	result, err := h.sessionService.Submit(c.Request.Context(), sessionID)
	if err != nil {
		failFromErr(c, err)
		return
	}

	response.Success(c, http.StatusOK, gin.H{
		"session": respondentSessionView(result.Session, result.ShowScore),
	})
}

// Poll godoc
// GET /api/v1/sessions/:session_id
// Returns the session state and, for timed in_progress sessions, the
// seconds remaining. Realizes expiry lazily.
func (h *RespondentHandler) Poll(c *gin.Context) {
	sessionID, ok := parseUUIDParam(c, "session_id")
	if !ok {
		return
	}

	state, err := h.sessionService.Poll(c.Request.Context(), sessionID)
	if err != nil {
		failFromErr(c, err)
		return
	}

	body := gin.H{"session": respondentSessionView(state.Session, state.ShowScore)}
	if state.RemainingSeconds != nil {
		body["remaining_seconds"] = *state.RemainingSeconds
	}
	response.Success(c, http.StatusOK, body)
}

// respondentSessionView strips the score fields unless the form reveals
// them to respondents.
func respondentSessionView(s *model.FormSession, showScore bool) *model.FormSession {
	if showScore {
		return s
	}
	view := *s
	view.Score = nil
	view.Passed = nil
	return &view
}
