package repository

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/jmoiron/sqlx"

	"github.com/noah-isme/omr-grade-api/internal/models"
)

// AnalyticsRepository reads the score data the analytics engine aggregates.
type AnalyticsRepository struct {
	db *sqlx.DB
}

// NewAnalyticsRepository creates a new analytics repository.
func NewAnalyticsRepository(db *sqlx.DB) *AnalyticsRepository {
	return &AnalyticsRepository{db: db}
}

// ScoreSnapshot reads all scores of an exam inside a repeatable-read
// transaction so concurrent scoring can never surface a half-written row
// into the aggregate.
func (r *AnalyticsRepository) ScoreSnapshot(ctx context.Context, examID string) ([]models.Score, error) {
	tx, err := r.db.BeginTxx(ctx, &sql.TxOptions{Isolation: sql.LevelRepeatableRead, ReadOnly: true})
	if err != nil {
		return nil, fmt.Errorf("begin snapshot: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	const query = `SELECT id, exam_id, student_id, set_code, raw_score, percent, breakdown, source_scan_id, processed_seq, created_at, updated_at
        FROM scores WHERE exam_id = $1 ORDER BY student_id ASC`
	var scores []models.Score
	if err := tx.SelectContext(ctx, &scores, query, examID); err != nil {
		return nil, fmt.Errorf("snapshot scores: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit snapshot: %w", err)
	}
	return scores, nil
}
