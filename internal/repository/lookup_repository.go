package repository

import (
	"context"

	"github.com/jmoiron/sqlx"

	"github.com/noah-isme/omr-grade-api/internal/models"
)

// LookupRepository reads the reference data owned by the external CRUD
// store: batches, students, exams, answer-key sets and operator accounts.
// The pipeline never writes through it.
type LookupRepository struct {
	db *sqlx.DB
}

// NewLookupRepository creates a new lookup repository.
func NewLookupRepository(db *sqlx.DB) *LookupRepository {
	return &LookupRepository{db: db}
}

// FindExam returns one exam.
func (r *LookupRepository) FindExam(ctx context.Context, id string) (*models.Exam, error) {
	const query = `SELECT id, batch_id, title, num_items, created_at FROM exams WHERE id = $1`
	var exam models.Exam
	if err := r.db.GetContext(ctx, &exam, query, id); err != nil {
		return nil, err
	}
	return &exam, nil
}

// FindExamSet resolves a set code for an exam.
func (r *LookupRepository) FindExamSet(ctx context.Context, examID, setCode string) (*models.ExamSet, error) {
	const query = `SELECT id, exam_id, set_code, answer_key FROM exam_sets WHERE exam_id = $1 AND set_code = $2`
	var set models.ExamSet
	if err := r.db.GetContext(ctx, &set, query, examID, setCode); err != nil {
		return nil, err
	}
	return &set, nil
}

// FindStudentByNumber resolves an extracted student number within a batch.
func (r *LookupRepository) FindStudentByNumber(ctx context.Context, batchID, studentNumber string) (*models.Student, error) {
	const query = `SELECT id, batch_id, student_number, full_name, created_at
        FROM students WHERE batch_id = $1 AND student_number = $2`
	var student models.Student
	if err := r.db.GetContext(ctx, &student, query, batchID, studentNumber); err != nil {
		return nil, err
	}
	return &student, nil
}

// FindStudentByID returns one student.
func (r *LookupRepository) FindStudentByID(ctx context.Context, id string) (*models.Student, error) {
	const query = `SELECT id, batch_id, student_number, full_name, created_at FROM students WHERE id = $1`
	var student models.Student
	if err := r.db.GetContext(ctx, &student, query, id); err != nil {
		return nil, err
	}
	return &student, nil
}

// FindUserByEmail returns an operator account for login validation.
func (r *LookupRepository) FindUserByEmail(ctx context.Context, email string) (*models.User, error) {
	const query = `SELECT id, email, password_hash, full_name, role, active, created_at FROM users WHERE email = $1`
	var user models.User
	if err := r.db.GetContext(ctx, &user, query, email); err != nil {
		return nil, err
	}
	return &user, nil
}
