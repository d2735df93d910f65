package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/noah-isme/omr-grade-api/internal/models"
)

// ScoreRepository handles persisted exam results.
type ScoreRepository struct {
	db *sqlx.DB
}

// NewScoreRepository creates a new score repository.
func NewScoreRepository(db *sqlx.DB) *ScoreRepository {
	return &ScoreRepository{db: db}
}

// Upsert writes the score for (exam, student). The processed_seq drawn from
// the database sequence makes re-scores last-writer-wins deterministically:
// an older in-flight write can never clobber a newer one, and the unique
// constraint keeps the pair to a single row.
func (r *ScoreRepository) Upsert(ctx context.Context, score *models.Score) error {
	if score.ID == "" {
		score.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	score.CreatedAt = now
	score.UpdatedAt = now
	const query = `INSERT INTO scores (id, exam_id, student_id, set_code, raw_score, percent, breakdown, source_scan_id, processed_seq, created_at, updated_at)
        VALUES ($1, $2, $3, $4, $5, $6, $7, $8, nextval('score_processed_seq'), $9, $10)
        ON CONFLICT (exam_id, student_id) DO UPDATE
        SET set_code = EXCLUDED.set_code,
            raw_score = EXCLUDED.raw_score,
            percent = EXCLUDED.percent,
            breakdown = EXCLUDED.breakdown,
            source_scan_id = EXCLUDED.source_scan_id,
            processed_seq = EXCLUDED.processed_seq,
            updated_at = EXCLUDED.updated_at
        WHERE scores.processed_seq < EXCLUDED.processed_seq
        RETURNING id, processed_seq, created_at`
	row := r.db.QueryRowxContext(ctx, query,
		score.ID, score.ExamID, score.StudentID, score.SetCode, score.RawScore,
		score.Percent, score.Breakdown, score.SourceScanID, score.CreatedAt, score.UpdatedAt)
	if err := row.Scan(&score.ID, &score.ProcessedSeq, &score.CreatedAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			// A concurrent newer write already landed; ours is stale.
			return nil
		}
		return fmt.Errorf("upsert score: %w", err)
	}
	return nil
}

// FindByExamAndStudent returns the single score for the pair.
func (r *ScoreRepository) FindByExamAndStudent(ctx context.Context, examID, studentID string) (*models.Score, error) {
	const query = `SELECT id, exam_id, student_id, set_code, raw_score, percent, breakdown, source_scan_id, processed_seq, created_at, updated_at
        FROM scores WHERE exam_id = $1 AND student_id = $2`
	var score models.Score
	if err := r.db.GetContext(ctx, &score, query, examID, studentID); err != nil {
		return nil, err
	}
	return &score, nil
}

// ListByExam returns all scores of an exam including breakdowns.
func (r *ScoreRepository) ListByExam(ctx context.Context, examID string) ([]models.Score, error) {
	const query = `SELECT id, exam_id, student_id, set_code, raw_score, percent, breakdown, source_scan_id, processed_seq, created_at, updated_at
        FROM scores WHERE exam_id = $1 ORDER BY updated_at DESC`
	var scores []models.Score
	if err := r.db.SelectContext(ctx, &scores, query, examID); err != nil {
		return nil, fmt.Errorf("list scores: %w", err)
	}
	return scores, nil
}

// RowsByExam returns the per-student listing joined with roster data, in the
// column order the exports use.
func (r *ScoreRepository) RowsByExam(ctx context.Context, examID string) ([]models.ScoreRow, error) {
	const query = `SELECT sc.student_id, st.student_number, st.full_name, sc.set_code, sc.raw_score, sc.percent
        FROM scores sc
        JOIN students st ON st.id = sc.student_id
        WHERE sc.exam_id = $1
        ORDER BY st.student_number ASC`
	var rows []models.ScoreRow
	if err := r.db.SelectContext(ctx, &rows, query, examID); err != nil {
		return nil, fmt.Errorf("list score rows: %w", err)
	}
	return rows, nil
}
