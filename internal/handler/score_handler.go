package handler

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/omr-grade-api/internal/models"
	"github.com/noah-isme/omr-grade-api/internal/service"
	appErrors "github.com/noah-isme/omr-grade-api/pkg/errors"
	"github.com/noah-isme/omr-grade-api/pkg/response"
)

type scoringOperations interface {
	ListRows(ctx context.Context, examID string) ([]models.ScoreRow, error)
	Recompute(ctx context.Context, examID string) (int, error)
	BulkUpsert(ctx context.Context, req service.BulkScoreRequest) (int, []string, error)
}

type exportOperations interface {
	ExportScores(ctx context.Context, examID, format string) (*service.ExportFile, error)
}

// ScoreHandler exposes score listings, exports and re-grading.
type ScoreHandler struct {
	scoring scoringOperations
	exports exportOperations
}

// NewScoreHandler creates a score handler.
func NewScoreHandler(scoring scoringOperations, exports exportOperations) *ScoreHandler {
	return &ScoreHandler{scoring: scoring, exports: exports}
}

// ListByExam godoc
// @Summary      List exam scores
// @Description  Per-student results joined with roster data, ordered by student number.
// @Tags         scores
// @Produce      json
// @Param        id   path      string  true  "Exam ID"
// @Success      200  {object}  response.Envelope{data=[]models.ScoreRow}
// @Failure      404  {object}  response.Envelope
// @Security     BearerAuth
// @Router       /exams/{id}/scores [get]
func (h *ScoreHandler) ListByExam(c *gin.Context) {
	rows, err := h.scoring.ListRows(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, rows, nil)
}

// Export godoc
// @Summary      Export exam scores
// @Description  Downloads the score listing as CSV or PDF.
// @Tags         scores
// @Produce      octet-stream
// @Param        id      path   string  true   "Exam ID"
// @Param        format  query  string  false  "csv or pdf"  default(csv)
// @Success      200  {file}  file
// @Failure      400  {object}  response.Envelope
// @Security     BearerAuth
// @Router       /exams/{id}/export [get]
func (h *ScoreHandler) Export(c *gin.Context) {
	format := c.DefaultQuery("format", service.ExportFormatCSV)

	file, err := h.exports.ExportScores(c.Request.Context(), c.Param("id"), format)
	if err != nil {
		response.Error(c, err)
		return
	}

	c.Header("Content-Disposition", `attachment; filename="`+file.Filename+`"`)
	c.Data(http.StatusOK, file.ContentType, file.Data)
}

// Recompute godoc
// @Summary      Re-grade an exam
// @Description  Replays every stored score against the current answer keys.
// @Tags         scores
// @Produce      json
// @Param        id   path      string  true  "Exam ID"
// @Success      200  {object}  response.Envelope
// @Failure      404  {object}  response.Envelope
// @Security     BearerAuth
// @Router       /exams/{id}/recompute [post]
func (h *ScoreHandler) Recompute(c *gin.Context) {
	recomputed, err := h.scoring.Recompute(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, gin.H{"recomputed": recomputed}, nil)
}

// BulkUpsert godoc
// @Summary      Import scores in bulk
// @Description  Grades raw answer vectors directly, bypassing the scan pipeline.
// @Tags         scores
// @Accept       json
// @Produce      json
// @Param        payload  body      service.BulkScoreRequest  true  "Answer vectors"
// @Success      200      {object}  response.Envelope
// @Failure      400      {object}  response.Envelope
// @Security     BearerAuth
// @Router       /scores/bulk [post]
func (h *ScoreHandler) BulkUpsert(c *gin.Context) {
	var req service.BulkScoreRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid bulk payload"))
		return
	}

	processed, skipped, err := h.scoring.BulkUpsert(c.Request.Context(), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, gin.H{"processed": processed, "skipped": skipped}, nil)
}
