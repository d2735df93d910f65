package models

import "time"

// Batch groups students sitting the same exam cycle. Owned by the external
// CRUD store; the pipeline only reads it.
type Batch struct {
	ID        string    `db:"id" json:"id"`
	Code      string    `db:"code" json:"code"`
	Name      string    `db:"name" json:"name"`
	CreatedAt time.Time `db:"created_at" json:"created_at"`
}

// Student is a read-only roster entry keyed by (batch, student_number).
type Student struct {
	ID            string    `db:"id" json:"id"`
	BatchID       string    `db:"batch_id" json:"batch_id"`
	StudentNumber string    `db:"student_number" json:"student_number"`
	FullName      string    `db:"full_name" json:"full_name"`
	CreatedAt     time.Time `db:"created_at" json:"created_at"`
}

// Exam describes one multiple-choice exam sat by a batch.
type Exam struct {
	ID        string    `db:"id" json:"id"`
	BatchID   string    `db:"batch_id" json:"batch_id"`
	Title     string    `db:"title" json:"title"`
	NumItems  int       `db:"num_items" json:"num_items"`
	CreatedAt time.Time `db:"created_at" json:"created_at"`
}

// ExamSet is one sheet variant of an exam with its own answer key.
// Exactly one set exists per (exam, set_code).
type ExamSet struct {
	ID        string     `db:"id" json:"id"`
	ExamID    string     `db:"exam_id" json:"exam_id"`
	SetCode   string     `db:"set_code" json:"set_code"`
	AnswerKey StringList `db:"answer_key" json:"answer_key"`
}
