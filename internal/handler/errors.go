package handler

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/formforge/formforge-backend/internal/grading"
	"github.com/formforge/formforge-backend/internal/response"
	"github.com/formforge/formforge-backend/internal/service"
)

// failFromErr maps service errors onto the response envelope. Anything
// unmapped is an internal error and must not leak details to the client.
func failFromErr(c *gin.Context, err error) {
	switch {
	case errors.Is(err, service.ErrNotFound):
		response.Fail(c, http.StatusNotFound, response.ErrNotFound)
	case errors.Is(err, service.ErrSessionClosed):
		response.Fail(c, http.StatusConflict, response.ErrSessionClosed)
	case errors.Is(err, service.ErrSessionActive):
		response.Fail(c, http.StatusConflict, response.ErrConflict)
	case errors.Is(err, service.ErrFormNotAcceptingResponses):
		response.Fail(c, http.StatusConflict, response.ErrFormNotAccepting)
	case errors.Is(err, service.ErrFormNotDraft):
		response.Fail(c, http.StatusConflict, response.ErrFormNotDraft)
	case errors.Is(err, service.ErrNoQuestions):
		response.Fail(c, http.StatusConflict, response.ErrNoQuestions)
	case errors.Is(err, service.ErrNotFormOwner):
		response.Fail(c, http.StatusForbidden, response.ErrNotFormOwner)
	case errors.Is(err, service.ErrInvalidQuestion):
		response.Fail(c, http.StatusUnprocessableEntity, response.ErrValidation)
	case errors.Is(err, grading.ErrInvalidShape):
		response.Fail(c, http.StatusUnprocessableEntity, response.ErrInvalidAnswer)
	case errors.Is(err, service.ErrPersistenceTransient):
		response.Fail(c, http.StatusServiceUnavailable, response.ErrStorageUnstable)
	case errors.Is(err, service.ErrInvalidCredentials):
		response.Fail(c, http.StatusUnauthorized, response.ErrInvalidCredentials)
	default:
		response.Fail(c, http.StatusInternalServerError, response.ErrInternal)
	}
}
