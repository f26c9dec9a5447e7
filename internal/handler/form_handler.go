package handler

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/formforge/formforge-backend/internal/middleware"
	"github.com/formforge/formforge-backend/internal/model"
	"github.com/formforge/formforge-backend/internal/repository"
	"github.com/formforge/formforge-backend/internal/response"
	"github.com/formforge/formforge-backend/internal/service"
	"github.com/formforge/formforge-backend/internal/validator"
)

// FormHandler handles the creator-facing form management endpoints.
type FormHandler struct {
	formService    *service.FormService
	sessionService *service.SessionService
	sessionRepo    *repository.FormSessionRepository
	violationRepo  *repository.ViolationRepository
}

// NewFormHandler creates a new FormHandler.
func NewFormHandler(
	formService *service.FormService,
	sessionService *service.SessionService,
	sessionRepo *repository.FormSessionRepository,
	violationRepo *repository.ViolationRepository,
) *FormHandler {
	return &FormHandler{
		formService:    formService,
		sessionService: sessionService,
		sessionRepo:    sessionRepo,
		violationRepo:  violationRepo,
	}
}

// Create godoc
// POST /api/v1/admin/forms
func (h *FormHandler) Create(c *gin.Context) {
	claims := middleware.GetClaims(c)

	var req model.CreateFormRequest
	if fields := validator.Bind(c, &req); fields != nil {
		response.FailWithFields(c, http.StatusBadRequest, response.ErrValidation, fields)
		return
	}

	form, err := h.formService.Create(c.Request.Context(), claims.UserID, &req)
	if err != nil {
		failFromErr(c, err)
		return
	}
	response.Success(c, http.StatusCreated, gin.H{"form": form})
}

// List godoc
// GET /api/v1/admin/forms?page=1&per_page=10
func (h *FormHandler) List(c *gin.Context) {
	claims := middleware.GetClaims(c)
	page, _ := strconv.Atoi(c.DefaultQuery("page", "1"))
	perPage, _ := strconv.Atoi(c.DefaultQuery("per_page", "10"))

	forms, pagination, err := h.formService.List(c.Request.Context(), claims.UserID, page, perPage)
	if err != nil {
		failFromErr(c, err)
		return
	}
	response.SuccessWithPagination(c, http.StatusOK, gin.H{"forms": forms}, pagination)
}

// Get godoc
// GET /api/v1/admin/forms/:form_id
// Returns the form with its full question set, answer keys included.
func (h *FormHandler) Get(c *gin.Context) {
	claims := middleware.GetClaims(c)
	formID, ok := parseUUIDParam(c, "form_id")
	if !ok {
		return
	}

	form, err := h.formService.GetOwned(c.Request.Context(), formID, claims.UserID)
	if err != nil {
		failFromErr(c, err)
		return
	}

	snapshot, err := h.formService.Snapshot(c.Request.Context(), formID)
	if err != nil {
		failFromErr(c, err)
		return
	}

	response.Success(c, http.StatusOK, gin.H{
		"form":      form,
		"questions": snapshot.Questions,
	})
}

// Update godoc
// PUT /api/v1/admin/forms/:form_id
func (h *FormHandler) Update(c *gin.Context) {
	claims := middleware.GetClaims(c)
	formID, ok := parseUUIDParam(c, "form_id")
	if !ok {
		return
	}

	var req model.UpdateFormRequest
	if fields := validator.Bind(c, &req); fields != nil {
		response.FailWithFields(c, http.StatusBadRequest, response.ErrValidation, fields)
		return
	}

	form, err := h.formService.Update(c.Request.Context(), formID, claims.UserID, &req)
	if err != nil {
		failFromErr(c, err)
		return
	}
	response.Success(c, http.StatusOK, gin.H{"form": form})
}

// Delete godoc
// DELETE /api/v1/admin/forms/:form_id
func (h *FormHandler) Delete(c *gin.Context) {
	claims := middleware.GetClaims(c)
	formID, ok := parseUUIDParam(c, "form_id")
	if !ok {
		return
	}

	if err := h.formService.Delete(c.Request.Context(), formID, claims.UserID); err != nil {
		failFromErr(c, err)
		return
	}
	response.Success(c, http.StatusOK, gin.H{})
}

// Publish godoc
// POST /api/v1/admin/forms/:form_id/publish
func (h *FormHandler) Publish(c *gin.Context) {
	claims := middleware.GetClaims(c)
	formID, ok := parseUUIDParam(c, "form_id")
	if !ok {
		return
	}

	form, err := h.formService.Publish(c.Request.Context(), formID, claims.UserID)
	if err != nil {
		failFromErr(c, err)
		return
	}
	response.Success(c, http.StatusOK, gin.H{"form": form})
}

// Close godoc
// POST /api/v1/admin/forms/:form_id/close
func (h *FormHandler) Close(c *gin.Context) {
	claims := middleware.GetClaims(c)
	formID, ok := parseUUIDParam(c, "form_id")
	if !ok {
		return
	}

	form, err := h.formService.Close(c.Request.Context(), formID, claims.UserID)
	if err != nil {
		failFromErr(c, err)
		return
	}
	response.Success(c, http.StatusOK, gin.H{"form": form})
}

// ReplaceQuestions godoc
// PUT /api/v1/admin/forms/:form_id/questions
// Replaces the form's question set wholesale.
func (h *FormHandler) ReplaceQuestions(c *gin.Context) {
	claims := middleware.GetClaims(c)
	formID, ok := parseUUIDParam(c, "form_id")
	if !ok {
		return
	}

	var req model.ReplaceQuestionsRequest
	if fields := validator.Bind(c, &req); fields != nil {
		response.FailWithFields(c, http.StatusBadRequest, response.ErrValidation, fields)
		return
	}

	questions, err := h.formService.ReplaceQuestions(c.Request.Context(), formID, claims.UserID, &req)
	if err != nil {
		failFromErr(c, err)
		return
	}
	response.Success(c, http.StatusOK, gin.H{"questions": questions})
}

// ListSessions godoc
// GET /api/v1/admin/forms/:form_id/sessions?page=1&per_page=20
// Lists a form's sessions for the results dashboard.
func (h *FormHandler) ListSessions(c *gin.Context) {
	claims := middleware.GetClaims(c)
	formID, ok := parseUUIDParam(c, "form_id")
	if !ok {
		return
	}

	if _, err := h.formService.GetOwned(c.Request.Context(), formID, claims.UserID); err != nil {
		failFromErr(c, err)
		return
	}

	page, _ := strconv.Atoi(c.DefaultQuery("page", "1"))
	perPage, _ := strconv.Atoi(c.DefaultQuery("per_page", "20"))
	if page < 1 {
		page = 1
	}
	if perPage < 1 {
		perPage = 20
	}
	if perPage > 100 {
		perPage = 100
	}

	sessions, total, err := h.sessionRepo.ListByFormPaginated(c.Request.Context(), formID, perPage, (page-1)*perPage)
	if err != nil {
		failFromErr(c, err)
		return
	}
	if sessions == nil {
		sessions = []model.FormSession{}
	}

	response.SuccessWithPagination(c, http.StatusOK, gin.H{"sessions": sessions}, &response.Pagination{
		Page:       page,
		PerPage:    perPage,
		TotalItems: total,
		TotalPages: (total + perPage - 1) / perPage,
	})
}

// GetSessionDetail godoc
// GET /api/v1/admin/forms/:form_id/sessions/:session_id
// Returns one session with its graded responses and violation log.
func (h *FormHandler) GetSessionDetail(c *gin.Context) {
	claims := middleware.GetClaims(c)
	formID, ok := parseUUIDParam(c, "form_id")
	if !ok {
		return
	}
	sessionID, ok := parseUUIDParam(c, "session_id")
	if !ok {
		return
	}

	if _, err := h.formService.GetOwned(c.Request.Context(), formID, claims.UserID); err != nil {
		failFromErr(c, err)
		return
	}

	session, responses, err := h.sessionService.Results(c.Request.Context(), sessionID)
	if err != nil {
		failFromErr(c, err)
		return
	}
	if session.FormID != formID {
		response.Fail(c, http.StatusNotFound, response.ErrNotFound)
		return
	}

	violations, err := h.violationRepo.ListBySession(c.Request.Context(), sessionID)
	if err != nil {
		failFromErr(c, err)
		return
	}
	if responses == nil {
		responses = []model.Response{}
	}
	if violations == nil {
		violations = []model.Violation{}
	}

	response.Success(c, http.StatusOK, gin.H{
		"session":    session,
		"responses":  responses,
		"violations": violations,
	})
}

// parseUUIDParam parses a UUID route param, failing the request on error.
func parseUUIDParam(c *gin.Context, name string) (uuid.UUID, bool) {
	id, err := uuid.Parse(c.Param(name))
	if err != nil {
		response.Fail(c, http.StatusBadRequest, response.ErrInvalidID)
		return uuid.Nil, false
	}
	return id, true
}
