package handler

import (
	"context"
	"net/http"
	"os"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/omr-grade-api/internal/models"
	"github.com/noah-isme/omr-grade-api/internal/service"
	appErrors "github.com/noah-isme/omr-grade-api/pkg/errors"
	"github.com/noah-isme/omr-grade-api/pkg/response"
)

type scanOperations interface {
	Upload(ctx context.Context, req service.UploadScanRequest) (*models.Scan, error)
	List(ctx context.Context, filter models.ScanFilter) ([]models.Scan, error)
	Get(ctx context.Context, id string) (*models.Scan, error)
	Review(ctx context.Context, scanID string, req service.ReviewScanRequest) (*models.Scan, error)
	OverlayPNG(ctx context.Context, scanID string) ([]byte, error)
	ImageToken(ctx context.Context, scanID string) (string, time.Time, error)
	ResolveImage(token string) (*os.File, error)
}

// ScanHandler exposes the scan ingestion and review endpoints.
type ScanHandler struct {
	scans scanOperations
}

// NewScanHandler creates a scan handler.
func NewScanHandler(scans scanOperations) *ScanHandler {
	return &ScanHandler{scans: scans}
}

// Create godoc
// @Summary      Upload a scanned answer sheet
// @Description  Stores the image, creates a pending scan and queues extraction.
// @Tags         scans
// @Accept       multipart/form-data
// @Produce      json
// @Param        exam_id  formData  string  true  "Exam ID"
// @Param        file     formData  file    true  "Sheet image"
// @Success      202      {object}  response.Envelope{data=models.Scan}
// @Failure      400      {object}  response.Envelope
// @Security     BearerAuth
// @Router       /scans [post]
func (h *ScanHandler) Create(c *gin.Context) {
	examID := c.PostForm("exam_id")
	fileHeader, err := c.FormFile("file")
	if err != nil {
		response.Error(c, appErrors.Clone(appErrors.ErrValidation, "file is required"))
		return
	}

	file, err := fileHeader.Open()
	if err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "cannot read upload"))
		return
	}
	defer file.Close() //nolint:errcheck

	scan, err := h.scans.Upload(c.Request.Context(), service.UploadScanRequest{
		ExamID:      examID,
		Filename:    fileHeader.Filename,
		ContentType: fileHeader.Header.Get("Content-Type"),
		Size:        fileHeader.Size,
		Reader:      file,
	})
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Accepted(c, scan)
}

// List godoc
// @Summary      List scans
// @Description  Filters by exam and status; exclude_scored=true serves the review queue.
// @Tags         scans
// @Produce      json
// @Param        exam            query     string  false  "Exam ID"
// @Param        status          query     string  false  "Scan status"
// @Param        exclude_scored  query     bool    false  "Exclude scored scans"
// @Success      200             {object}  response.Envelope{data=[]models.Scan}
// @Security     BearerAuth
// @Router       /scans [get]
func (h *ScanHandler) List(c *gin.Context) {
	filter := models.ScanFilter{
		ExamID:        c.Query("exam"),
		Status:        models.ScanStatus(c.Query("status")),
		ExcludeScored: c.Query("exclude_scored") == "true",
	}

	scans, err := h.scans.List(c.Request.Context(), filter)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, scans, nil)
}

// Get godoc
// @Summary      Get one scan
// @Tags         scans
// @Produce      json
// @Param        id   path      string  true  "Scan ID"
// @Success      200  {object}  response.Envelope{data=models.Scan}
// @Failure      404  {object}  response.Envelope
// @Security     BearerAuth
// @Router       /scans/{id} [get]
func (h *ScanHandler) Get(c *gin.Context) {
	scan, err := h.scans.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}

	meta := map[string]interface{}{}
	if token, expiresAt, err := h.scans.ImageToken(c.Request.Context(), scan.ID); err == nil {
		meta["image_token"] = token
		meta["image_token_expires_at"] = expiresAt
	}
	response.JSON(c, http.StatusOK, scan, nil, meta)
}

// Review godoc
// @Summary      Correct a scan
// @Description  Applies a human correction; a valid correction scores the scan immediately.
// @Tags         scans
// @Accept       json
// @Produce      json
// @Param        id       path      string                     true  "Scan ID"
// @Param        payload  body      service.ReviewScanRequest  true  "Correction"
// @Success      200      {object}  response.Envelope{data=models.Scan}
// @Failure      409      {object}  response.Envelope
// @Failure      422      {object}  response.Envelope
// @Security     BearerAuth
// @Router       /scans/{id}/review [post]
func (h *ScanHandler) Review(c *gin.Context) {
	var req service.ReviewScanRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid correction payload"))
		return
	}

	scan, err := h.scans.Review(c.Request.Context(), c.Param("id"), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, scan, nil)
}

// Overlay godoc
// @Summary      Render the marks overlay
// @Description  Returns the stored image with recorded marks drawn on top.
// @Tags         scans
// @Produce      png
// @Param        id   path  string  true  "Scan ID"
// @Success      200  {file}  file
// @Failure      404  {object}  response.Envelope
// @Security     BearerAuth
// @Router       /scans/{id}/overlay [get]
func (h *ScanHandler) Overlay(c *gin.Context) {
	data, err := h.scans.OverlayPNG(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	c.Data(http.StatusOK, "image/png", data)
}

// Image godoc
// @Summary      Download a scan image
// @Description  Serves the original image for a valid signed token.
// @Tags         scans
// @Produce      png
// @Param        token  query  string  true  "Signed download token"
// @Success      200    {file}  file
// @Failure      403    {object}  response.Envelope
// @Router       /scans/image [get]
func (h *ScanHandler) Image(c *gin.Context) {
	token := c.Query("token")
	if token == "" {
		response.Error(c, appErrors.Clone(appErrors.ErrValidation, "token is required"))
		return
	}

	file, err := h.scans.ResolveImage(token)
	if err != nil {
		response.Error(c, err)
		return
	}
	defer file.Close() //nolint:errcheck

	info, err := file.Stat()
	if err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "stat scan image"))
		return
	}
	c.Header("Cache-Control", "no-store")
	http.ServeContent(c.Writer, c.Request, info.Name(), info.ModTime(), file)
}
