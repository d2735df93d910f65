package service

import (
	"github.com/noah-isme/omr-grade-api/internal/models"
	"github.com/noah-isme/omr-grade-api/pkg/config"
)

// ReviewInput carries the extracted fields the routing rule inspects.
// Evaluation is pure: the same input and configuration always produce the
// same issue set, so re-running the rule is idempotent.
type ReviewInput struct {
	Confidence      float64
	BlankFraction   float64
	StudentResolved bool
	SetResolved     bool
	// HumanVerified drops the confidence-derived checks: a correction is
	// ground truth, so only structural resolution still matters.
	HumanVerified bool
}

// EvaluateIssues computes the issue set for a scan after extraction or
// correction.
func EvaluateIssues(in ReviewInput, cfg config.OMRConfig) models.StringList {
	issues := models.StringList{}
	if !in.HumanVerified {
		if in.Confidence < cfg.ConfidenceThreshold {
			issues = append(issues, models.IssueLowConfidence)
		}
		if in.BlankFraction > cfg.BlankAnswerRatio {
			issues = append(issues, models.IssueBlankAnswers)
		}
	}
	if !in.StudentResolved {
		issues = append(issues, models.IssueStudentNotFound)
	}
	if !in.SetResolved {
		issues = append(issues, models.IssueSetUnresolved)
	}
	return issues
}

// RouteStatus maps an issue set onto the scan lifecycle: clean scans
// advance to scoring, everything else waits for a human.
func RouteStatus(issues models.StringList) models.ScanStatus {
	if len(issues) == 0 {
		return models.ScanStatusReady
	}
	return models.ScanStatusNeedsReview
}
