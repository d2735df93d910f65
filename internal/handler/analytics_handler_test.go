package handler

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/omr-grade-api/internal/models"
	appErrors "github.com/noah-isme/omr-grade-api/pkg/errors"
	"github.com/noah-isme/omr-grade-api/pkg/response"
)

type analyticsServiceMock struct {
	resp   *models.ExamAnalytics
	cached bool
	err    error
}

func (m *analyticsServiceMock) ExamAnalytics(ctx context.Context, examID string) (*models.ExamAnalytics, bool, error) {
	return m.resp, m.cached, m.err
}

func TestAnalyticsHandlerExamAnalytics(t *testing.T) {
	gin.SetMode(gin.TestMode)
	mockSvc := &analyticsServiceMock{
		resp:   &models.ExamAnalytics{ExamID: "exam-1", KR20: 0.75, Respondents: 4},
		cached: true,
	}
	handler := NewAnalyticsHandler(mockSvc)

	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	req, _ := http.NewRequest(http.MethodGet, "/analysis/exams/exam-1", nil)
	c.Request = req
	c.Params = gin.Params{{Key: "id", Value: "exam-1"}}

	handler.ExamAnalytics(c)
	require.Equal(t, http.StatusOK, w.Code)

	var envelope response.Envelope
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &envelope))
	assert.Equal(t, true, envelope.Meta["cached"])
}

func TestAnalyticsHandlerUnknownExam(t *testing.T) {
	gin.SetMode(gin.TestMode)
	handler := NewAnalyticsHandler(&analyticsServiceMock{err: appErrors.Clone(appErrors.ErrNotFound, "exam not found")})

	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	req, _ := http.NewRequest(http.MethodGet, "/analysis/exams/ghost", nil)
	c.Request = req
	c.Params = gin.Params{{Key: "id", Value: "ghost"}}

	handler.ExamAnalytics(c)
	require.Equal(t, http.StatusNotFound, w.Code)
}
