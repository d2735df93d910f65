// Package omr wraps the mark-recognition routine behind a pluggable
// interface so scoring, review and analytics stay independent of the
// recognition technique.
package omr

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/disintegration/imaging"

	"github.com/noah-isme/omr-grade-api/internal/models"
)

// ErrUnreadable signals that the image payload cannot be decoded at all.
// This is terminal for the scan: it is rejected, not queued for review.
var ErrUnreadable = errors.New("unreadable scan image")

// Result is the candidate extraction for one sheet. Confidence is a single
// scalar in [0,1]; the pipeline treats it as opaque but monotonic.
type Result struct {
	StudentNumber string
	SetCode       string
	Answers       models.StringList
	Confidence    float64
}

// Extractor turns a stored sheet image into a candidate answer vector.
type Extractor interface {
	Extract(ctx context.Context, imagePath string, numItems int) (*Result, error)
}

const (
	confidenceClean    = 0.9
	confidenceDegraded = 0.5
)

// SidecarExtractor reads marks from a JSON sidecar next to the image and
// identity hints from the filename. It stands in for a full bubble-detection
// routine while exercising the same contract, and is also what tests plug in
// fixtures through.
type SidecarExtractor struct{}

// NewSidecarExtractor constructs the extractor.
func NewSidecarExtractor() *SidecarExtractor {
	return &SidecarExtractor{}
}

// Extract decodes the image, loads sidecar answers and filename hints and
// derives a confidence from how complete the extraction came out.
func (e *SidecarExtractor) Extract(ctx context.Context, imagePath string, numItems int) (*Result, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if _, err := os.Stat(imagePath); err != nil {
		return nil, fmt.Errorf("%w: %s", ErrUnreadable, imagePath)
	}

	img, err := imaging.Open(imagePath)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnreadable, err)
	}
	// Pre-processing stage of the recognition routine. The grayscale
	// threshold output is where a real detector would sample bubbles.
	_ = imaging.Blur(imaging.Grayscale(img), 1.5)

	answers, err := loadSidecarAnswers(imagePath, numItems)
	if err != nil {
		return nil, err
	}
	student, setCode := inferFromFilename(imagePath)

	confidence := confidenceClean
	if student == "" || setCode == "" || allBlank(answers) {
		confidence = confidenceDegraded
	}

	return &Result{
		StudentNumber: student,
		SetCode:       setCode,
		Answers:       answers,
		Confidence:    confidence,
	}, nil
}

func loadSidecarAnswers(imagePath string, numItems int) (models.StringList, error) {
	sidecar := strings.TrimSuffix(imagePath, filepath.Ext(imagePath)) + ".json"
	data, err := os.ReadFile(sidecar)
	if err != nil {
		if os.IsNotExist(err) {
			return blankAnswers(numItems), nil
		}
		return nil, fmt.Errorf("read sidecar %s: %w", sidecar, err)
	}

	var payload struct {
		Answers []string `json:"answers"`
	}
	if err := json.Unmarshal(data, &payload); err != nil {
		return nil, fmt.Errorf("parse sidecar %s: %w", sidecar, err)
	}
	if payload.Answers == nil {
		return blankAnswers(numItems), nil
	}

	answers := make(models.StringList, numItems)
	for i := 0; i < numItems; i++ {
		if i < len(payload.Answers) {
			answers[i] = strings.ToUpper(strings.TrimSpace(payload.Answers[i]))
		}
	}
	return answers, nil
}

// inferFromFilename parses "student-<number>__set-<code>" hints out of the
// file stem.
func inferFromFilename(imagePath string) (student, setCode string) {
	stem := strings.TrimSuffix(filepath.Base(imagePath), filepath.Ext(imagePath))
	for _, part := range strings.Split(stem, "__") {
		if rest, ok := strings.CutPrefix(part, "student-"); ok {
			student = rest
		}
		if rest, ok := strings.CutPrefix(part, "set-"); ok {
			setCode = strings.ToUpper(rest)
		}
	}
	return student, setCode
}

func blankAnswers(numItems int) models.StringList {
	return make(models.StringList, numItems)
}

func allBlank(answers models.StringList) bool {
	for _, a := range answers {
		if a != models.BlankAnswer {
			return false
		}
	}
	return true
}
