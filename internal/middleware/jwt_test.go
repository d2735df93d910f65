package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/omr-grade-api/internal/models"
	appErrors "github.com/noah-isme/omr-grade-api/pkg/errors"
)

type validatorStub struct {
	claims *models.JWTClaims
	err    error
}

func (v *validatorStub) ValidateToken(token string) (*models.JWTClaims, error) {
	return v.claims, v.err
}

func performRequest(handler gin.HandlerFunc, header string, pre func(c *gin.Context)) *httptest.ResponseRecorder {
	gin.SetMode(gin.TestMode)
	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	req, _ := http.NewRequest(http.MethodGet, "/protected", nil)
	if header != "" {
		req.Header.Set("Authorization", header)
	}
	c.Request = req
	if pre != nil {
		pre(c)
	}
	handler(c)
	if !c.IsAborted() {
		c.Status(http.StatusOK)
	}
	return w
}

func TestJWTAuthMissingHeader(t *testing.T) {
	w := performRequest(JWTAuth(&validatorStub{}), "", nil)
	require.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestJWTAuthBadScheme(t *testing.T) {
	w := performRequest(JWTAuth(&validatorStub{}), "Basic abc", nil)
	require.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestJWTAuthInvalidToken(t *testing.T) {
	w := performRequest(JWTAuth(&validatorStub{err: appErrors.ErrUnauthorized}), "Bearer bad", nil)
	require.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestJWTAuthSetsClaims(t *testing.T) {
	gin.SetMode(gin.TestMode)
	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	req, _ := http.NewRequest(http.MethodGet, "/protected", nil)
	req.Header.Set("Authorization", "Bearer good")
	c.Request = req

	claims := &models.JWTClaims{UserID: "user-1", Role: models.RoleChecker}
	JWTAuth(&validatorStub{claims: claims})(c)

	require.False(t, c.IsAborted())
	assert.Equal(t, claims, CurrentUser(c))
}

func TestRequireRoles(t *testing.T) {
	checker := &models.JWTClaims{UserID: "user-1", Role: models.RoleChecker}
	admin := &models.JWTClaims{UserID: "user-2", Role: models.RoleAdmin}

	setClaims := func(claims *models.JWTClaims) func(c *gin.Context) {
		return func(c *gin.Context) { c.Set(ContextUserKey, claims) }
	}

	w := performRequest(RequireRoles(models.RoleAdmin), "", setClaims(checker))
	assert.Equal(t, http.StatusForbidden, w.Code)

	w = performRequest(RequireRoles(models.RoleAdmin), "", setClaims(admin))
	assert.Equal(t, http.StatusOK, w.Code)

	w = performRequest(RequireRoles(models.RoleAdmin), "", nil)
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}
