package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/noah-isme/omr-grade-api/internal/models"
	"github.com/noah-isme/omr-grade-api/internal/omr"
	"github.com/noah-isme/omr-grade-api/internal/repository"
	"github.com/noah-isme/omr-grade-api/pkg/config"
	appErrors "github.com/noah-isme/omr-grade-api/pkg/errors"
	"github.com/noah-isme/omr-grade-api/pkg/jobs"
)

// JobTypeExtractScan identifies the background extraction task.
const JobTypeExtractScan = "scan.extract"

type scanStore interface {
	Create(ctx context.Context, scan *models.Scan) error
	FindByID(ctx context.Context, id string) (*models.Scan, error)
	List(ctx context.Context, filter models.ScanFilter) ([]models.Scan, error)
	Update(ctx context.Context, scan *models.Scan) error
}

type rosterReader interface {
	FindExam(ctx context.Context, id string) (*models.Exam, error)
	FindExamSet(ctx context.Context, examID, setCode string) (*models.ExamSet, error)
	FindStudentByNumber(ctx context.Context, batchID, studentNumber string) (*models.Student, error)
	FindStudentByID(ctx context.Context, id string) (*models.Student, error)
}

type imageStore interface {
	SaveStream(filename string, r io.Reader) (string, error)
	Open(filename string) (*os.File, error)
	Path(filename string) string
}

type scanScorer interface {
	ScoreScan(ctx context.Context, scan *models.Scan) (*models.Score, error)
}

type jobEnqueuer interface {
	Enqueue(job jobs.Job) error
}

type urlSigner interface {
	Generate(scanID, relPath string) (string, time.Time, error)
	Parse(token string) (scanID, relPath string, expiresAt time.Time, err error)
}

// ScanService runs the ingestion pipeline: upload, background extraction,
// routing and human correction.
type ScanService struct {
	scans     scanStore
	lookups   rosterReader
	extractor omr.Extractor
	store     imageStore
	signer    urlSigner
	queue     jobEnqueuer
	scorer    scanScorer
	metrics   *MetricsService
	validate  *validator.Validate
	cfg       *config.Config
	logger    *zap.Logger
}

// NewScanService creates a scan service. The queue is attached later via
// AttachQueue because the queue handler is this service's own method.
func NewScanService(
	scans scanStore,
	lookups rosterReader,
	extractor omr.Extractor,
	store imageStore,
	signer urlSigner,
	scorer scanScorer,
	metrics *MetricsService,
	cfg *config.Config,
	logger *zap.Logger,
) *ScanService {
	return &ScanService{
		scans:     scans,
		lookups:   lookups,
		extractor: extractor,
		store:     store,
		signer:    signer,
		scorer:    scorer,
		metrics:   metrics,
		validate:  validator.New(),
		cfg:       cfg,
		logger:    logger,
	}
}

// AttachQueue wires the extraction queue once it has been constructed with
// HandleExtractionJob as its handler.
func (s *ScanService) AttachQueue(queue jobEnqueuer) {
	s.queue = queue
}

// UploadScanRequest carries one multipart sheet upload.
type UploadScanRequest struct {
	ExamID      string
	Filename    string
	ContentType string
	Size        int64
	Reader      io.Reader
}

// Upload stores the image, creates the pending scan record and queues
// extraction.
func (s *ScanService) Upload(ctx context.Context, req UploadScanRequest) (*models.Scan, error) {
	if req.ExamID == "" {
		return nil, appErrors.Clone(appErrors.ErrValidation, "exam_id is required")
	}
	if req.Size > s.cfg.Scans.MaxFileSizeBytes {
		return nil, appErrors.Clone(appErrors.ErrValidation,
			fmt.Sprintf("file exceeds the %d byte limit", s.cfg.Scans.MaxFileSizeBytes))
	}
	if !s.mimeAllowed(req.ContentType) {
		return nil, appErrors.Clone(appErrors.ErrValidation,
			fmt.Sprintf("content type %q is not an accepted scan format", req.ContentType))
	}
	if _, err := s.lookups.FindExam(ctx, req.ExamID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "exam not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "load exam")
	}

	ext := strings.ToLower(filepath.Ext(req.Filename))
	if ext == "" {
		ext = ".png"
	}
	scanID := uuid.NewString()
	relPath := filepath.Join(req.ExamID, scanID+ext)
	if _, err := s.store.SaveStream(relPath, req.Reader); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "store scan image")
	}

	scan := &models.Scan{
		ID:        scanID,
		ExamID:    req.ExamID,
		ImagePath: relPath,
		Answers:   models.StringList{},
		Status:    models.ScanStatusPending,
		Issues:    models.StringList{},
	}
	if err := s.scans.Create(ctx, scan); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "create scan record")
	}

	if err := s.queue.Enqueue(jobs.Job{ID: scan.ID, Type: JobTypeExtractScan, Payload: scan.ID}); err != nil {
		// The record stays pending; a recovery sweep or re-upload picks it up.
		s.logger.Error("failed to enqueue extraction", zap.String("scan_id", scan.ID), zap.Error(err))
	}

	s.logger.Info("scan uploaded",
		zap.String("scan_id", scan.ID),
		zap.String("exam_id", scan.ExamID),
		zap.Int64("bytes", req.Size))
	return scan, nil
}

// List returns scans matching the filter.
func (s *ScanService) List(ctx context.Context, filter models.ScanFilter) ([]models.Scan, error) {
	scans, err := s.scans.List(ctx, filter)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "list scans")
	}
	return scans, nil
}

// Get returns one scan.
func (s *ScanService) Get(ctx context.Context, id string) (*models.Scan, error) {
	scan, err := s.scans.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "scan not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "load scan")
	}
	return scan, nil
}

// HandleExtractionJob is the queue handler: it extracts marks from the
// stored image, routes the scan and triggers scoring for clean scans. The
// handler only acts on pending scans, so redelivery is harmless.
func (s *ScanService) HandleExtractionJob(ctx context.Context, job jobs.Job) error {
	scanID, ok := job.Payload.(string)
	if !ok {
		return jobs.Terminal(fmt.Errorf("extraction job %s has payload %T, want string", job.ID, job.Payload))
	}

	scan, err := s.scans.FindByID(ctx, scanID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return jobs.Terminal(fmt.Errorf("scan %s vanished before extraction", scanID))
		}
		return fmt.Errorf("load scan %s: %w", scanID, err)
	}
	if scan.Status != models.ScanStatusPending {
		return nil
	}

	exam, err := s.lookups.FindExam(ctx, scan.ExamID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return jobs.Terminal(fmt.Errorf("exam %s vanished before extraction", scan.ExamID))
		}
		return fmt.Errorf("load exam %s: %w", scan.ExamID, err)
	}

	start := time.Now()
	result, err := s.extractor.Extract(ctx, s.store.Path(scan.ImagePath), exam.NumItems)
	if err != nil {
		if errors.Is(err, omr.ErrUnreadable) {
			s.metrics.ObserveExtraction("rejected", time.Since(start))
			return s.rejectScan(ctx, scan, err)
		}
		s.metrics.ObserveExtraction("error", time.Since(start))
		return fmt.Errorf("extract scan %s: %w", scan.ID, err)
	}

	studentResolved := false
	var studentID *string
	if result.StudentNumber != "" {
		student, err := s.lookups.FindStudentByNumber(ctx, exam.BatchID, result.StudentNumber)
		switch {
		case err == nil:
			studentResolved = true
			studentID = &student.ID
		case errors.Is(err, sql.ErrNoRows):
			// extracted number matches nobody in the batch
		default:
			return fmt.Errorf("resolve student %q: %w", result.StudentNumber, err)
		}
	}

	setResolved := false
	if result.SetCode != "" {
		_, err := s.lookups.FindExamSet(ctx, exam.ID, result.SetCode)
		switch {
		case err == nil:
			setResolved = true
		case errors.Is(err, sql.ErrNoRows):
		default:
			return fmt.Errorf("resolve set %q: %w", result.SetCode, err)
		}
	}

	scan.ExtractedStudentNumber = result.StudentNumber
	scan.ExtractedSetCode = result.SetCode
	scan.Answers = result.Answers
	scan.Confidence = result.Confidence
	scan.StudentID = studentID
	scan.Issues = EvaluateIssues(ReviewInput{
		Confidence:      result.Confidence,
		BlankFraction:   scan.BlankFraction(),
		StudentResolved: studentResolved,
		SetResolved:     setResolved,
	}, s.cfg.OMR)
	scan.Status = RouteStatus(scan.Issues)

	if err := s.scans.Update(ctx, scan); err != nil {
		if errors.Is(err, repository.ErrRevisionConflict) {
			// Someone corrected the scan mid-extraction; their data wins.
			s.logger.Warn("extraction lost revision race", zap.String("scan_id", scan.ID))
			return nil
		}
		return fmt.Errorf("persist extraction for scan %s: %w", scan.ID, err)
	}
	s.metrics.ObserveExtraction(string(scan.Status), time.Since(start))
	s.metrics.IncScanRouted(string(scan.Status))
	s.logger.Info("scan extracted",
		zap.String("scan_id", scan.ID),
		zap.String("status", string(scan.Status)),
		zap.Float64("confidence", scan.Confidence),
		zap.Strings("issues", scan.Issues))

	if scan.Status == models.ScanStatusReady {
		if _, err := s.scorer.ScoreScan(ctx, scan); err != nil {
			// The scan stays ready; scoring can be replayed via recompute
			// or another correction round.
			s.logger.Error("scoring after extraction failed", zap.String("scan_id", scan.ID), zap.Error(err))
		}
	}
	return nil
}

func (s *ScanService) rejectScan(ctx context.Context, scan *models.Scan, cause error) error {
	scan.Status = models.ScanStatusRejected
	scan.Issues = models.StringList{models.IssueUnreadableImage}
	scan.Confidence = 0
	if err := s.scans.Update(ctx, scan); err != nil {
		return fmt.Errorf("reject scan %s: %w", scan.ID, err)
	}
	s.metrics.IncScanRouted(string(models.ScanStatusRejected))
	s.logger.Warn("scan rejected", zap.String("scan_id", scan.ID), zap.Error(cause))
	return nil
}

// ReviewScanRequest is a human correction of a scan's extraction.
type ReviewScanRequest struct {
	StudentID string            `json:"student_id" validate:"required"`
	SetCode   string            `json:"set_code" validate:"required"`
	Answers   models.StringList `json:"answers" validate:"required"`
	// Revision is the revision the reviewer saw; a stale value rejects the
	// correction rather than overwriting a concurrent change.
	Revision int `json:"revision" validate:"required,min=1"`
}

// Review applies a correction. The submitted identity and answers are
// validated against the roster and answer-key sets, then replace the
// extracted values with full confidence. A valid correction always lands
// the scan in ready and immediately scores it.
func (s *ScanService) Review(ctx context.Context, scanID string, req ReviewScanRequest) (*models.Scan, error) {
	if err := s.validate.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, err.Error())
	}

	scan, err := s.Get(ctx, scanID)
	if err != nil {
		return nil, err
	}
	if scan.Status == models.ScanStatusScored || scan.Status == models.ScanStatusRejected {
		return nil, appErrors.Clone(appErrors.ErrScanFinalized,
			fmt.Sprintf("scan %s is %s and no longer accepts corrections", scan.ID, scan.Status))
	}
	if req.Revision != scan.Revision {
		return nil, appErrors.Clone(appErrors.ErrConflict,
			fmt.Sprintf("scan changed since revision %d, reload and retry", req.Revision))
	}

	exam, err := s.lookups.FindExam(ctx, scan.ExamID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "load exam")
	}

	student, err := s.lookups.FindStudentByID(ctx, req.StudentID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrValidation, "student not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "load student")
	}
	if student.BatchID != exam.BatchID {
		return nil, appErrors.Clone(appErrors.ErrValidation, "student does not belong to the exam's batch")
	}

	set, err := s.lookups.FindExamSet(ctx, exam.ID, strings.ToUpper(req.SetCode))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrValidation,
				fmt.Sprintf("set %q is not defined for this exam", req.SetCode))
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "load answer key")
	}

	answers, err := normalizeAnswers(req.Answers, exam.NumItems)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, err.Error())
	}

	scan.StudentID = &student.ID
	scan.ExtractedStudentNumber = student.StudentNumber
	scan.ExtractedSetCode = set.SetCode
	scan.Answers = answers
	scan.Confidence = 1.0
	scan.Issues = EvaluateIssues(ReviewInput{
		StudentResolved: true,
		SetResolved:     true,
		HumanVerified:   true,
	}, s.cfg.OMR)
	scan.Status = RouteStatus(scan.Issues)

	if err := s.scans.Update(ctx, scan); err != nil {
		if errors.Is(err, repository.ErrRevisionConflict) {
			return nil, appErrors.Clone(appErrors.ErrConflict, "scan changed concurrently, reload and retry")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "persist correction")
	}
	s.logger.Info("scan corrected",
		zap.String("scan_id", scan.ID),
		zap.String("student_id", student.ID),
		zap.String("set_code", set.SetCode))

	if scan.Status == models.ScanStatusReady {
		if _, err := s.scorer.ScoreScan(ctx, scan); err != nil {
			return nil, err
		}
	}
	return scan, nil
}

// OverlayPNG renders the stored image with the recorded marks drawn on top.
func (s *ScanService) OverlayPNG(ctx context.Context, scanID string) ([]byte, error) {
	scan, err := s.Get(ctx, scanID)
	if err != nil {
		return nil, err
	}
	data, err := omr.BuildOverlay(s.store.Path(scan.ImagePath), scan.Answers)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrUnreadableImage.Code, appErrors.ErrUnreadableImage.Status, "render overlay")
	}
	return data, nil
}

// ImageToken issues a time-limited download token for the scan's image.
func (s *ScanService) ImageToken(ctx context.Context, scanID string) (string, time.Time, error) {
	scan, err := s.Get(ctx, scanID)
	if err != nil {
		return "", time.Time{}, err
	}
	token, expiresAt, err := s.signer.Generate(scan.ID, scan.ImagePath)
	if err != nil {
		return "", time.Time{}, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "sign image url")
	}
	return token, expiresAt, nil
}

// ResolveImage validates a download token and opens the referenced image.
func (s *ScanService) ResolveImage(token string) (*os.File, error) {
	_, relPath, _, err := s.signer.Parse(token)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrForbidden.Code, appErrors.ErrForbidden.Status, "invalid or expired token")
	}
	file, err := s.store.Open(relPath)
	if err != nil {
		return nil, appErrors.Clone(appErrors.ErrNotFound, "scan image not found")
	}
	return file, nil
}

func (s *ScanService) mimeAllowed(contentType string) bool {
	if len(s.cfg.Scans.AllowedMIMEs) == 0 {
		return true
	}
	for _, allowed := range s.cfg.Scans.AllowedMIMEs {
		if strings.EqualFold(strings.TrimSpace(contentType), allowed) {
			return true
		}
	}
	return false
}

// normalizeAnswers upper-cases the corrected marks and checks each is blank
// or a single letter, with exactly one mark per item.
func normalizeAnswers(answers models.StringList, numItems int) (models.StringList, error) {
	if len(answers) != numItems {
		return nil, fmt.Errorf("expected %d answers, got %d", numItems, len(answers))
	}
	normalized := make(models.StringList, numItems)
	for i, raw := range answers {
		a := strings.ToUpper(strings.TrimSpace(raw))
		if a != models.BlankAnswer && (len(a) != 1 || a[0] < 'A' || a[0] > 'Z') {
			return nil, fmt.Errorf("answer %d must be blank or a single letter A-Z", i+1)
		}
		normalized[i] = a
	}
	return normalized, nil
}

var (
	_ scanStore    = (*repository.ScanRepository)(nil)
	_ rosterReader = (*repository.LookupRepository)(nil)
)
