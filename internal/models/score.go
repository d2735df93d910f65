package models

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"time"
)

// BreakdownItem records how one answer compared against the key.
type BreakdownItem struct {
	Item    int    `json:"item"`
	Answer  string `json:"answer"`
	Key     string `json:"key"`
	Correct bool   `json:"correct"`
}

// Breakdown is the JSONB-persisted per-item grading detail of a Score.
// It feeds the analytics item matrix and the recompute operation.
type Breakdown []BreakdownItem

// Value marshals the breakdown for persistence.
func (b Breakdown) Value() (driver.Value, error) {
	if b == nil {
		b = Breakdown{}
	}
	data, err := json.Marshal(b)
	if err != nil {
		return nil, fmt.Errorf("marshal breakdown: %w", err)
	}
	return data, nil
}

// Scan unmarshals a JSON payload into the breakdown.
func (b *Breakdown) Scan(value interface{}) error {
	if value == nil {
		*b = Breakdown{}
		return nil
	}
	var data []byte
	switch v := value.(type) {
	case []byte:
		data = v
	case string:
		data = []byte(v)
	default:
		return fmt.Errorf("unsupported type %T for Breakdown", value)
	}
	if len(data) == 0 {
		*b = Breakdown{}
		return nil
	}
	return json.Unmarshal(data, b)
}

// Score is the graded result of one student on one exam. At most one Score
// exists per (exam, student); re-scoring replaces it, guarded by
// ProcessedSeq so the later-processed scan wins under concurrency.
type Score struct {
	ID           string    `db:"id" json:"id"`
	ExamID       string    `db:"exam_id" json:"exam_id"`
	StudentID    string    `db:"student_id" json:"student_id"`
	SetCode      string    `db:"set_code" json:"set_code"`
	RawScore     int       `db:"raw_score" json:"raw_score"`
	Percent      float64   `db:"percent" json:"percent"`
	Breakdown    Breakdown `db:"breakdown" json:"breakdown"`
	SourceScanID *string   `db:"source_scan_id" json:"source_scan_id,omitempty"`
	ProcessedSeq int64     `db:"processed_seq" json:"-"`
	CreatedAt    time.Time `db:"created_at" json:"created_at"`
	UpdatedAt    time.Time `db:"updated_at" json:"updated_at"`
}

// ScoreRow joins a Score with roster data for listings and exports.
type ScoreRow struct {
	StudentID     string  `db:"student_id" json:"student_id"`
	StudentNumber string  `db:"student_number" json:"student_number"`
	FullName      string  `db:"full_name" json:"full_name"`
	SetCode       string  `db:"set_code" json:"set_code"`
	RawScore      int     `db:"raw_score" json:"raw_score"`
	Percent       float64 `db:"percent" json:"percent"`
}
