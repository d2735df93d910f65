package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"math"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/noah-isme/omr-grade-api/internal/models"
	"github.com/noah-isme/omr-grade-api/internal/repository"
	appErrors "github.com/noah-isme/omr-grade-api/pkg/errors"
)

type scoreStore interface {
	Upsert(ctx context.Context, score *models.Score) error
	ListByExam(ctx context.Context, examID string) ([]models.Score, error)
	RowsByExam(ctx context.Context, examID string) ([]models.ScoreRow, error)
}

type scanFinalizer interface {
	Update(ctx context.Context, scan *models.Scan) error
}

type referenceReader interface {
	FindExam(ctx context.Context, id string) (*models.Exam, error)
	FindExamSet(ctx context.Context, examID, setCode string) (*models.ExamSet, error)
	FindStudentByID(ctx context.Context, id string) (*models.Student, error)
}

type examCacheInvalidator interface {
	InvalidateExam(ctx context.Context, examID string)
}

// ScoringService grades resolved scans against answer keys and maintains
// the one-score-per-(exam, student) table.
type ScoringService struct {
	scores   scoreStore
	scans    scanFinalizer
	lookups  referenceReader
	cache    examCacheInvalidator
	metrics  *MetricsService
	validate *validator.Validate
	logger   *zap.Logger
}

// NewScoringService creates a scoring service.
func NewScoringService(
	scores scoreStore,
	scans scanFinalizer,
	lookups referenceReader,
	cache examCacheInvalidator,
	metrics *MetricsService,
	logger *zap.Logger,
) *ScoringService {
	return &ScoringService{
		scores:   scores,
		scans:    scans,
		lookups:  lookups,
		cache:    cache,
		metrics:  metrics,
		validate: validator.New(),
		logger:   logger,
	}
}

// ScoreScan grades a ready scan, upserts the resulting Score and advances
// the scan to scored. Grading is deterministic, so re-scoring identical
// answers produces an identical Score.
func (s *ScoringService) ScoreScan(ctx context.Context, scan *models.Scan) (*models.Score, error) {
	if scan.Status != models.ScanStatusReady {
		return nil, appErrors.Clone(appErrors.ErrScanNotReady,
			fmt.Sprintf("scan %s is %s, only ready scans can be scored", scan.ID, scan.Status))
	}
	if scan.StudentID == nil || *scan.StudentID == "" {
		return nil, appErrors.Clone(appErrors.ErrScanNotReady,
			fmt.Sprintf("scan %s has no resolved student", scan.ID))
	}

	set, err := s.lookups.FindExamSet(ctx, scan.ExamID, scan.ExtractedSetCode)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrScanNotReady,
				fmt.Sprintf("set %q is not defined for exam %s", scan.ExtractedSetCode, scan.ExamID))
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "resolve answer key")
	}

	raw, percent, breakdown := gradeAnswers(scan.Answers, set.AnswerKey)
	score := &models.Score{
		ExamID:       scan.ExamID,
		StudentID:    *scan.StudentID,
		SetCode:      set.SetCode,
		RawScore:     raw,
		Percent:      percent,
		Breakdown:    breakdown,
		SourceScanID: &scan.ID,
	}
	if err := s.scores.Upsert(ctx, score); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "persist score")
	}
	s.metrics.IncScoreWritten()

	scan.Status = models.ScanStatusScored
	if err := s.scans.Update(ctx, scan); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "finalize scan")
	}

	s.cache.InvalidateExam(ctx, scan.ExamID)
	s.logger.Info("scan scored",
		zap.String("scan_id", scan.ID),
		zap.String("exam_id", scan.ExamID),
		zap.String("student_id", score.StudentID),
		zap.Int("raw_score", raw))

	return score, nil
}

// ListRows returns the per-student listing of an exam.
func (s *ScoringService) ListRows(ctx context.Context, examID string) ([]models.ScoreRow, error) {
	if _, err := s.lookups.FindExam(ctx, examID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "exam not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "load exam")
	}
	rows, err := s.scores.RowsByExam(ctx, examID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "list scores")
	}
	return rows, nil
}

// Recompute re-grades every stored score of an exam against the current
// answer keys. Answers are replayed from the breakdowns, so an updated key
// changes correctness without touching the scans.
func (s *ScoringService) Recompute(ctx context.Context, examID string) (int, error) {
	if _, err := s.lookups.FindExam(ctx, examID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return 0, appErrors.Clone(appErrors.ErrNotFound, "exam not found")
		}
		return 0, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "load exam")
	}

	scores, err := s.scores.ListByExam(ctx, examID)
	if err != nil {
		return 0, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "list scores")
	}

	recomputed := 0
	for i := range scores {
		score := &scores[i]
		set, err := s.lookups.FindExamSet(ctx, examID, score.SetCode)
		if err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				s.logger.Warn("skipping score with unknown set",
					zap.String("exam_id", examID), zap.String("set_code", score.SetCode))
				continue
			}
			return recomputed, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "resolve answer key")
		}

		answers := make(models.StringList, 0, len(score.Breakdown))
		for _, item := range score.Breakdown {
			answers = append(answers, item.Answer)
		}
		raw, percent, breakdown := gradeAnswers(answers, set.AnswerKey)
		score.RawScore = raw
		score.Percent = percent
		score.Breakdown = breakdown
		if err := s.scores.Upsert(ctx, score); err != nil {
			return recomputed, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "persist score")
		}
		s.metrics.IncScoreWritten()
		recomputed++
	}

	if recomputed > 0 {
		s.cache.InvalidateExam(ctx, examID)
	}
	s.logger.Info("exam recomputed", zap.String("exam_id", examID), zap.Int("scores", recomputed))
	return recomputed, nil
}

// BulkScoreEntry is one student's answer vector in a bulk import.
type BulkScoreEntry struct {
	StudentID string            `json:"student_id" validate:"required"`
	SetCode   string            `json:"set_code" validate:"required"`
	Answers   models.StringList `json:"answers" validate:"required"`
}

// BulkScoreRequest grades answer vectors directly, bypassing the scan
// pipeline, for sheets captured by other means.
type BulkScoreRequest struct {
	ExamID  string           `json:"exam_id" validate:"required"`
	Entries []BulkScoreEntry `json:"entries" validate:"required,min=1,dive"`
}

// BulkUpsert grades and persists every entry. Entries that fail to resolve
// are reported back, not fatal to the rest.
func (s *ScoringService) BulkUpsert(ctx context.Context, req BulkScoreRequest) (int, []string, error) {
	if err := s.validate.Struct(req); err != nil {
		return 0, nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, err.Error())
	}
	if _, err := s.lookups.FindExam(ctx, req.ExamID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return 0, nil, appErrors.Clone(appErrors.ErrNotFound, "exam not found")
		}
		return 0, nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "load exam")
	}

	processed := 0
	var skipped []string
	for _, entry := range req.Entries {
		if _, err := s.lookups.FindStudentByID(ctx, entry.StudentID); err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				skipped = append(skipped, fmt.Sprintf("student %s not found", entry.StudentID))
				continue
			}
			return processed, skipped, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "load student")
		}
		set, err := s.lookups.FindExamSet(ctx, req.ExamID, entry.SetCode)
		if err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				skipped = append(skipped, fmt.Sprintf("set %q not found for student %s", entry.SetCode, entry.StudentID))
				continue
			}
			return processed, skipped, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "resolve answer key")
		}

		raw, percent, breakdown := gradeAnswers(entry.Answers, set.AnswerKey)
		score := &models.Score{
			ExamID:    req.ExamID,
			StudentID: entry.StudentID,
			SetCode:   set.SetCode,
			RawScore:  raw,
			Percent:   percent,
			Breakdown: breakdown,
		}
		if err := s.scores.Upsert(ctx, score); err != nil {
			return processed, skipped, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "persist score")
		}
		s.metrics.IncScoreWritten()
		processed++
	}

	if processed > 0 {
		s.cache.InvalidateExam(ctx, req.ExamID)
	}
	s.logger.Info("bulk scores imported",
		zap.String("exam_id", req.ExamID), zap.Int("processed", processed), zap.Int("skipped", len(skipped)))
	return processed, skipped, nil
}

// gradeAnswers compares an answer vector against the key. The key defines
// the item count; missing answers count as blank, and a blank never
// matches the key.
func gradeAnswers(answers models.StringList, key models.StringList) (int, float64, models.Breakdown) {
	raw := 0
	breakdown := make(models.Breakdown, 0, len(key))
	for i, expected := range key {
		given := models.BlankAnswer
		if i < len(answers) {
			given = answers[i]
		}
		correct := given != models.BlankAnswer && given == expected
		if correct {
			raw++
		}
		breakdown = append(breakdown, models.BreakdownItem{
			Item:    i + 1,
			Answer:  given,
			Key:     expected,
			Correct: correct,
		})
	}
	percent := 0.0
	if len(key) > 0 {
		percent = round2(float64(raw) / float64(len(key)) * 100)
	}
	return raw, percent, breakdown
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}

var (
	_ scoreStore      = (*repository.ScoreRepository)(nil)
	_ referenceReader = (*repository.LookupRepository)(nil)
)
