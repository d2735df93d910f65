package handler

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/omr-grade-api/internal/models"
	"github.com/noah-isme/omr-grade-api/pkg/response"
)

type analyticsOperations interface {
	ExamAnalytics(ctx context.Context, examID string) (*models.ExamAnalytics, bool, error)
}

// AnalyticsHandler exposes the exam analytics endpoint.
type AnalyticsHandler struct {
	analytics analyticsOperations
}

// NewAnalyticsHandler creates an analytics handler.
func NewAnalyticsHandler(analytics analyticsOperations) *AnalyticsHandler {
	return &AnalyticsHandler{analytics: analytics}
}

// ExamAnalytics godoc
// @Summary      Exam analytics
// @Description  KR-20 reliability, averages and per-item difficulty, discrimination and point-biserial.
// @Tags         analytics
// @Produce      json
// @Param        id   path      string  true  "Exam ID"
// @Success      200  {object}  response.Envelope{data=models.ExamAnalytics}
// @Failure      404  {object}  response.Envelope
// @Security     BearerAuth
// @Router       /analysis/exams/{id} [get]
func (h *AnalyticsHandler) ExamAnalytics(c *gin.Context) {
	analytics, cached, err := h.analytics.ExamAnalytics(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, analytics, nil, map[string]interface{}{"cached": cached})
}
