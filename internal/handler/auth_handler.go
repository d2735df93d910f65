package handler

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/omr-grade-api/internal/models"
	appErrors "github.com/noah-isme/omr-grade-api/pkg/errors"
	"github.com/noah-isme/omr-grade-api/pkg/response"
)

type authService interface {
	Login(ctx context.Context, req models.LoginRequest) (*models.LoginResponse, error)
}

// AuthHandler exposes the login endpoint.
type AuthHandler struct {
	auth authService
}

// NewAuthHandler creates an auth handler.
func NewAuthHandler(auth authService) *AuthHandler {
	return &AuthHandler{auth: auth}
}

// Login godoc
// @Summary      Operator login
// @Description  Validates credentials and returns a bearer token.
// @Tags         auth
// @Accept       json
// @Produce      json
// @Param        payload  body      models.LoginRequest  true  "Credentials"
// @Success      200      {object}  response.Envelope{data=models.LoginResponse}
// @Failure      401      {object}  response.Envelope
// @Router       /auth/login [post]
func (h *AuthHandler) Login(c *gin.Context) {
	var req models.LoginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid login payload"))
		return
	}

	result, err := h.auth.Login(c.Request.Context(), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, result, nil)
}
