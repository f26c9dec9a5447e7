package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/formforge/formforge-backend/internal/middleware"
	"github.com/formforge/formforge-backend/internal/model"
	"github.com/formforge/formforge-backend/internal/repository"
	"github.com/formforge/formforge-backend/internal/response"
	"github.com/formforge/formforge-backend/internal/service"
	"github.com/formforge/formforge-backend/internal/validator"
)

// AuthHandler handles creator authentication endpoints.
type AuthHandler struct {
	authService *service.AuthService
	userRepo    *repository.UserRepository
}

// NewAuthHandler creates a new AuthHandler.
func NewAuthHandler(authService *service.AuthService, userRepo *repository.UserRepository) *AuthHandler {
	return &AuthHandler{authService: authService, userRepo: userRepo}
}

// Login godoc
// POST /api/v1/auth/login
// Authenticates a creator and returns a JWT.
func (h *AuthHandler) Login(c *gin.Context) {
	var req model.LoginRequest
	if fields := validator.Bind(c, &req); fields != nil {
		response.FailWithFields(c, http.StatusBadRequest, response.ErrValidation, fields)
		return
	}

	user, token, err := h.authService.Login(c.Request.Context(), req.Email, req.Password)
	if err != nil {
		failFromErr(c, err)
		return
	}

	response.Success(c, http.StatusOK, gin.H{
		"token": token,
		"user": gin.H{
			"id":    user.ID,
			"email": user.Email,
			"name":  user.Name,
		},
	})
}

// Me godoc
// GET /api/v1/auth/me
// Returns the profile of the currently authenticated creator.
func (h *AuthHandler) Me(c *gin.Context) {
	claims := middleware.GetClaims(c)
	if claims == nil {
		response.Fail(c, http.StatusUnauthorized, response.ErrTokenRequired)
		return
	}

	user, err := h.userRepo.GetByID(c.Request.Context(), claims.UserID)
	if err != nil {
		response.Fail(c, http.StatusNotFound, response.ErrNotFound)
		return
	}

	response.Success(c, http.StatusOK, gin.H{
		"user": gin.H{
			"id":    user.ID,
			"email": user.Email,
			"name":  user.Name,
		},
	})
}
