package models

import "time"

// ScanStatus captures the lifecycle of an uploaded sheet.
type ScanStatus string

const (
	// ScanStatusPending means the sheet is stored but not yet extracted.
	ScanStatusPending ScanStatus = "pending"
	// ScanStatusNeedsReview means extraction finished with issues and a
	// human correction is required before scoring.
	ScanStatusNeedsReview ScanStatus = "needs_review"
	// ScanStatusReady means the scan resolved cleanly and can be scored.
	ScanStatusReady ScanStatus = "ready"
	// ScanStatusScored means a Score has been produced from this scan.
	ScanStatusScored ScanStatus = "scored"
	// ScanStatusRejected is terminal: the image could not be decoded.
	ScanStatusRejected ScanStatus = "rejected"
)

// Issue codes attached to a scan by the review router.
const (
	IssueLowConfidence   = "low-confidence"
	IssueStudentNotFound = "student-not-found"
	IssueSetUnresolved   = "set-unresolved"
	IssueBlankAnswers    = "blank-answers"
	IssueUnreadableImage = "unreadable-image"
)

// BlankAnswer marks a bubble the extractor could not read unambiguously.
// A blank never matches the answer key.
const BlankAnswer = ""

// Scan is one uploaded answer sheet. Scans are never deleted; superseded
// extraction data is overwritten by corrections but the record remains as
// the audit trail.
type Scan struct {
	ID                     string     `db:"id" json:"id"`
	ExamID                 string     `db:"exam_id" json:"exam_id"`
	StudentID              *string    `db:"student_id" json:"student_id,omitempty"`
	ImagePath              string     `db:"image_path" json:"image_path"`
	ExtractedStudentNumber string     `db:"extracted_student_number" json:"extracted_student_number"`
	ExtractedSetCode       string     `db:"extracted_set_code" json:"extracted_set_code"`
	Answers                StringList `db:"answers" json:"answers"`
	Confidence             float64    `db:"confidence" json:"confidence"`
	Status                 ScanStatus `db:"status" json:"status"`
	Issues                 StringList `db:"issues" json:"issues"`
	// Revision increases on every mutation; collaborators poll it to
	// detect changes and corrections use it as an optimistic lock.
	Revision  int       `db:"revision" json:"revision"`
	CreatedAt time.Time `db:"created_at" json:"created_at"`
	UpdatedAt time.Time `db:"updated_at" json:"updated_at"`
}

// BlankFraction returns the share of blank or ambiguous marks.
func (s *Scan) BlankFraction() float64 {
	if len(s.Answers) == 0 {
		return 1.0
	}
	blanks := 0
	for _, a := range s.Answers {
		if a == BlankAnswer {
			blanks++
		}
	}
	return float64(blanks) / float64(len(s.Answers))
}

// ScanFilter scopes scan listings. ExcludeScored serves the review queue,
// which is every scan that has not reached a Score yet.
type ScanFilter struct {
	ExamID        string
	Status        ScanStatus
	ExcludeScored bool
}
