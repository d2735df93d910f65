package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"os"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/omr-grade-api/internal/models"
	"github.com/noah-isme/omr-grade-api/internal/service"
	appErrors "github.com/noah-isme/omr-grade-api/pkg/errors"
	"github.com/noah-isme/omr-grade-api/pkg/response"
)

type scanServiceMock struct {
	uploadResp  *models.Scan
	uploadErr   error
	listResp    []models.Scan
	getResp     *models.Scan
	getErr      error
	reviewResp  *models.Scan
	reviewErr   error
	overlayResp []byte
	overlayErr  error

	lastUpload service.UploadScanRequest
	lastFilter models.ScanFilter
	lastReview service.ReviewScanRequest
}

func (m *scanServiceMock) Upload(ctx context.Context, req service.UploadScanRequest) (*models.Scan, error) {
	m.lastUpload = req
	return m.uploadResp, m.uploadErr
}

func (m *scanServiceMock) List(ctx context.Context, filter models.ScanFilter) ([]models.Scan, error) {
	m.lastFilter = filter
	return m.listResp, nil
}

func (m *scanServiceMock) Get(ctx context.Context, id string) (*models.Scan, error) {
	return m.getResp, m.getErr
}

func (m *scanServiceMock) Review(ctx context.Context, scanID string, req service.ReviewScanRequest) (*models.Scan, error) {
	m.lastReview = req
	return m.reviewResp, m.reviewErr
}

func (m *scanServiceMock) OverlayPNG(ctx context.Context, scanID string) ([]byte, error) {
	return m.overlayResp, m.overlayErr
}

func (m *scanServiceMock) ImageToken(ctx context.Context, scanID string) (string, time.Time, error) {
	return "signed-token", time.Now().Add(time.Minute), nil
}

func (m *scanServiceMock) ResolveImage(token string) (*os.File, error) {
	return nil, appErrors.ErrForbidden
}

func multipartBody(t *testing.T, examID string) (*bytes.Buffer, string) {
	t.Helper()
	body := &bytes.Buffer{}
	writer := multipart.NewWriter(body)
	require.NoError(t, writer.WriteField("exam_id", examID))
	part, err := writer.CreateFormFile("file", "sheet.png")
	require.NoError(t, err)
	_, err = part.Write([]byte("fake image"))
	require.NoError(t, err)
	require.NoError(t, writer.Close())
	return body, writer.FormDataContentType()
}

func TestScanHandlerCreate(t *testing.T) {
	gin.SetMode(gin.TestMode)
	mockSvc := &scanServiceMock{uploadResp: &models.Scan{ID: "scan-1", Status: models.ScanStatusPending}}
	handler := NewScanHandler(mockSvc)

	body, contentType := multipartBody(t, "exam-1")
	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	req, _ := http.NewRequest(http.MethodPost, "/scans", body)
	req.Header.Set("Content-Type", contentType)
	c.Request = req

	handler.Create(c)
	require.Equal(t, http.StatusAccepted, w.Code)
	assert.Equal(t, "exam-1", mockSvc.lastUpload.ExamID)
	assert.Equal(t, "sheet.png", mockSvc.lastUpload.Filename)
}

func TestScanHandlerCreateMissingFile(t *testing.T) {
	gin.SetMode(gin.TestMode)
	handler := NewScanHandler(&scanServiceMock{})

	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	req, _ := http.NewRequest(http.MethodPost, "/scans", bytes.NewBufferString("exam_id=exam-1"))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	c.Request = req

	handler.Create(c)
	require.Equal(t, http.StatusBadRequest, w.Code)
}

func TestScanHandlerListParsesFilter(t *testing.T) {
	gin.SetMode(gin.TestMode)
	mockSvc := &scanServiceMock{listResp: []models.Scan{{ID: "scan-1"}}}
	handler := NewScanHandler(mockSvc)

	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	req, _ := http.NewRequest(http.MethodGet, "/scans?exam=exam-1&status=needs_review&exclude_scored=true", nil)
	c.Request = req

	handler.List(c)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "exam-1", mockSvc.lastFilter.ExamID)
	assert.Equal(t, models.ScanStatusNeedsReview, mockSvc.lastFilter.Status)
	assert.True(t, mockSvc.lastFilter.ExcludeScored)
}

func TestScanHandlerGetIncludesImageToken(t *testing.T) {
	gin.SetMode(gin.TestMode)
	mockSvc := &scanServiceMock{getResp: &models.Scan{ID: "scan-1", Status: models.ScanStatusReady}}
	handler := NewScanHandler(mockSvc)

	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	req, _ := http.NewRequest(http.MethodGet, "/scans/scan-1", nil)
	c.Request = req
	c.Params = gin.Params{{Key: "id", Value: "scan-1"}}

	handler.Get(c)
	require.Equal(t, http.StatusOK, w.Code)

	var envelope response.Envelope
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &envelope))
	assert.Equal(t, "signed-token", envelope.Meta["image_token"])
}

func TestScanHandlerGetNotFound(t *testing.T) {
	gin.SetMode(gin.TestMode)
	mockSvc := &scanServiceMock{getErr: appErrors.Clone(appErrors.ErrNotFound, "scan not found")}
	handler := NewScanHandler(mockSvc)

	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	req, _ := http.NewRequest(http.MethodGet, "/scans/ghost", nil)
	c.Request = req
	c.Params = gin.Params{{Key: "id", Value: "ghost"}}

	handler.Get(c)
	require.Equal(t, http.StatusNotFound, w.Code)
}

func TestScanHandlerReview(t *testing.T) {
	gin.SetMode(gin.TestMode)
	mockSvc := &scanServiceMock{reviewResp: &models.Scan{ID: "scan-1", Status: models.ScanStatusScored}}
	handler := NewScanHandler(mockSvc)

	payload := `{"student_id":"stu-1","set_code":"A","answers":["A","B","C"],"revision":2}`
	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	req, _ := http.NewRequest(http.MethodPost, "/scans/scan-1/review", bytes.NewBufferString(payload))
	req.Header.Set("Content-Type", "application/json")
	c.Request = req
	c.Params = gin.Params{{Key: "id", Value: "scan-1"}}

	handler.Review(c)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "stu-1", mockSvc.lastReview.StudentID)
	assert.Equal(t, 2, mockSvc.lastReview.Revision)
}

func TestScanHandlerReviewConflict(t *testing.T) {
	gin.SetMode(gin.TestMode)
	mockSvc := &scanServiceMock{reviewErr: appErrors.ErrScanFinalized}
	handler := NewScanHandler(mockSvc)

	payload := `{"student_id":"stu-1","set_code":"A","answers":["A"],"revision":1}`
	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	req, _ := http.NewRequest(http.MethodPost, "/scans/scan-1/review", bytes.NewBufferString(payload))
	req.Header.Set("Content-Type", "application/json")
	c.Request = req
	c.Params = gin.Params{{Key: "id", Value: "scan-1"}}

	handler.Review(c)
	require.Equal(t, http.StatusConflict, w.Code)
}

func TestScanHandlerOverlay(t *testing.T) {
	gin.SetMode(gin.TestMode)
	mockSvc := &scanServiceMock{overlayResp: []byte("png-bytes")}
	handler := NewScanHandler(mockSvc)

	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	req, _ := http.NewRequest(http.MethodGet, "/scans/scan-1/overlay", nil)
	c.Request = req
	c.Params = gin.Params{{Key: "id", Value: "scan-1"}}

	handler.Overlay(c)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "image/png", w.Header().Get("Content-Type"))
	assert.Equal(t, "png-bytes", w.Body.String())
}
