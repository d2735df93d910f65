package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/noah-isme/omr-grade-api/internal/models"
)

// ErrRevisionConflict signals a lost optimistic-lock race on a scan update.
// Concurrent corrections to the same scan serialize through this check.
var ErrRevisionConflict = errors.New("scan revision conflict")

// ScanRepository handles scan persistence.
type ScanRepository struct {
	db *sqlx.DB
}

// NewScanRepository creates a new scan repository.
func NewScanRepository(db *sqlx.DB) *ScanRepository {
	return &ScanRepository{db: db}
}

const scanColumns = `id, exam_id, student_id, image_path, extracted_student_number, extracted_set_code,
        answers, confidence, status, issues, revision, created_at, updated_at`

// Create inserts a freshly uploaded scan in its initial state.
func (r *ScanRepository) Create(ctx context.Context, scan *models.Scan) error {
	if scan.ID == "" {
		scan.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	scan.CreatedAt = now
	scan.UpdatedAt = now
	scan.Revision = 1
	if scan.Status == "" {
		scan.Status = models.ScanStatusPending
	}
	const query = `INSERT INTO scans (id, exam_id, student_id, image_path, extracted_student_number, extracted_set_code,
                answers, confidence, status, issues, revision, created_at, updated_at)
        VALUES (:id, :exam_id, :student_id, :image_path, :extracted_student_number, :extracted_set_code,
                :answers, :confidence, :status, :issues, :revision, :created_at, :updated_at)`
	if _, err := r.db.NamedExecContext(ctx, query, scan); err != nil {
		return fmt.Errorf("insert scan: %w", err)
	}
	return nil
}

// FindByID returns one scan.
func (r *ScanRepository) FindByID(ctx context.Context, id string) (*models.Scan, error) {
	query := fmt.Sprintf("SELECT %s FROM scans WHERE id = $1", scanColumns)
	var scan models.Scan
	if err := r.db.GetContext(ctx, &scan, query, id); err != nil {
		return nil, err
	}
	return &scan, nil
}

// List returns scans matching the filter, newest first.
func (r *ScanRepository) List(ctx context.Context, filter models.ScanFilter) ([]models.Scan, error) {
	query := fmt.Sprintf("SELECT %s FROM scans WHERE 1=1", scanColumns)
	var args []interface{}
	if filter.ExamID != "" {
		query += fmt.Sprintf(" AND exam_id = $%d", len(args)+1)
		args = append(args, filter.ExamID)
	}
	if filter.Status != "" {
		query += fmt.Sprintf(" AND status = $%d", len(args)+1)
		args = append(args, filter.Status)
	}
	if filter.ExcludeScored {
		query += fmt.Sprintf(" AND status <> $%d", len(args)+1)
		args = append(args, models.ScanStatusScored)
	}
	query += " ORDER BY created_at DESC"
	var scans []models.Scan
	if err := r.db.SelectContext(ctx, &scans, query, args...); err != nil {
		return nil, fmt.Errorf("list scans: %w", err)
	}
	return scans, nil
}

// Update persists mutated scan fields guarded by the revision counter.
// The revision on the passed scan must be the one previously read; on
// success it is bumped to the stored value.
func (r *ScanRepository) Update(ctx context.Context, scan *models.Scan) error {
	scan.UpdatedAt = time.Now().UTC()
	const query = `UPDATE scans
        SET student_id = :student_id,
            extracted_student_number = :extracted_student_number,
            extracted_set_code = :extracted_set_code,
            answers = :answers,
            confidence = :confidence,
            status = :status,
            issues = :issues,
            revision = revision + 1,
            updated_at = :updated_at
        WHERE id = :id AND revision = :revision`
	res, err := r.db.NamedExecContext(ctx, query, scan)
	if err != nil {
		return fmt.Errorf("update scan: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("update scan result: %w", err)
	}
	if affected == 0 {
		return ErrRevisionConflict
	}
	scan.Revision++
	return nil
}
