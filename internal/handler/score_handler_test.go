package handler

import (
	"bytes"
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/omr-grade-api/internal/models"
	"github.com/noah-isme/omr-grade-api/internal/service"
	appErrors "github.com/noah-isme/omr-grade-api/pkg/errors"
)

type scoringServiceMock struct {
	rows          []models.ScoreRow
	rowsErr       error
	recomputed    int
	recomputeErr  error
	bulkProcessed int
	bulkSkipped   []string
	bulkErr       error
	lastBulk      service.BulkScoreRequest
}

func (m *scoringServiceMock) ListRows(ctx context.Context, examID string) ([]models.ScoreRow, error) {
	return m.rows, m.rowsErr
}

func (m *scoringServiceMock) Recompute(ctx context.Context, examID string) (int, error) {
	return m.recomputed, m.recomputeErr
}

func (m *scoringServiceMock) BulkUpsert(ctx context.Context, req service.BulkScoreRequest) (int, []string, error) {
	m.lastBulk = req
	return m.bulkProcessed, m.bulkSkipped, m.bulkErr
}

type exportServiceMock struct {
	file *service.ExportFile
	err  error
}

func (m *exportServiceMock) ExportScores(ctx context.Context, examID, format string) (*service.ExportFile, error) {
	return m.file, m.err
}

func TestScoreHandlerListByExam(t *testing.T) {
	gin.SetMode(gin.TestMode)
	mockSvc := &scoringServiceMock{rows: []models.ScoreRow{{StudentNumber: "1001", RawScore: 3}}}
	handler := NewScoreHandler(mockSvc, &exportServiceMock{})

	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	req, _ := http.NewRequest(http.MethodGet, "/exams/exam-1/scores", nil)
	c.Request = req
	c.Params = gin.Params{{Key: "id", Value: "exam-1"}}

	handler.ListByExam(c)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "1001")
}

func TestScoreHandlerExport(t *testing.T) {
	gin.SetMode(gin.TestMode)
	mockExport := &exportServiceMock{file: &service.ExportFile{
		Filename:    "exam-exam-1-scores.csv",
		ContentType: "text/csv",
		Data:        []byte("student_number,full_name\n"),
	}}
	handler := NewScoreHandler(&scoringServiceMock{}, mockExport)

	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	req, _ := http.NewRequest(http.MethodGet, "/exams/exam-1/export?format=csv", nil)
	c.Request = req
	c.Params = gin.Params{{Key: "id", Value: "exam-1"}}

	handler.Export(c)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Header().Get("Content-Disposition"), "exam-exam-1-scores.csv")
	assert.Contains(t, w.Header().Get("Content-Type"), "text/csv")
}

func TestScoreHandlerExportBadFormat(t *testing.T) {
	gin.SetMode(gin.TestMode)
	mockExport := &exportServiceMock{err: appErrors.Clone(appErrors.ErrValidation, "format must be csv or pdf")}
	handler := NewScoreHandler(&scoringServiceMock{}, mockExport)

	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	req, _ := http.NewRequest(http.MethodGet, "/exams/exam-1/export?format=xlsx", nil)
	c.Request = req
	c.Params = gin.Params{{Key: "id", Value: "exam-1"}}

	handler.Export(c)
	require.Equal(t, http.StatusBadRequest, w.Code)
}

func TestScoreHandlerRecompute(t *testing.T) {
	gin.SetMode(gin.TestMode)
	handler := NewScoreHandler(&scoringServiceMock{recomputed: 12}, &exportServiceMock{})

	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	req, _ := http.NewRequest(http.MethodPost, "/exams/exam-1/recompute", nil)
	c.Request = req
	c.Params = gin.Params{{Key: "id", Value: "exam-1"}}

	handler.Recompute(c)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"recomputed":12`)
}

func TestScoreHandlerBulkUpsert(t *testing.T) {
	gin.SetMode(gin.TestMode)
	mockSvc := &scoringServiceMock{bulkProcessed: 2, bulkSkipped: []string{"student ghost not found"}}
	handler := NewScoreHandler(mockSvc, &exportServiceMock{})

	payload := `{"exam_id":"exam-1","entries":[{"student_id":"stu-1","set_code":"A","answers":["A","B"]}]}`
	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	req, _ := http.NewRequest(http.MethodPost, "/scores/bulk", bytes.NewBufferString(payload))
	req.Header.Set("Content-Type", "application/json")
	c.Request = req

	handler.BulkUpsert(c)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "exam-1", mockSvc.lastBulk.ExamID)
	assert.Contains(t, w.Body.String(), `"processed":2`)
}

func TestScoreHandlerBulkUpsertInvalidBody(t *testing.T) {
	gin.SetMode(gin.TestMode)
	handler := NewScoreHandler(&scoringServiceMock{}, &exportServiceMock{})

	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	req, _ := http.NewRequest(http.MethodPost, "/scores/bulk", bytes.NewBufferString(`{"exam_id":`))
	req.Header.Set("Content-Type", "application/json")
	c.Request = req

	handler.BulkUpsert(c)
	require.Equal(t, http.StatusBadRequest, w.Code)
}
