package service

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/noah-isme/omr-grade-api/internal/models"
	"github.com/noah-isme/omr-grade-api/pkg/config"
)

func routerConfig() config.OMRConfig {
	return config.OMRConfig{ConfidenceThreshold: 0.85, BlankAnswerRatio: 0.0}
}

func TestEvaluateIssues(t *testing.T) {
	cases := []struct {
		name   string
		input  ReviewInput
		issues []string
	}{
		{
			name:   "clean scan has no issues",
			input:  ReviewInput{Confidence: 0.9, BlankFraction: 0, StudentResolved: true, SetResolved: true},
			issues: []string{},
		},
		{
			name:   "low confidence",
			input:  ReviewInput{Confidence: 0.5, BlankFraction: 0, StudentResolved: true, SetResolved: true},
			issues: []string{models.IssueLowConfidence},
		},
		{
			name:   "confidence exactly at threshold passes",
			input:  ReviewInput{Confidence: 0.85, BlankFraction: 0, StudentResolved: true, SetResolved: true},
			issues: []string{},
		},
		{
			name:   "blanks above the ratio",
			input:  ReviewInput{Confidence: 0.9, BlankFraction: 0.1, StudentResolved: true, SetResolved: true},
			issues: []string{models.IssueBlankAnswers},
		},
		{
			name:   "unresolved identity and set",
			input:  ReviewInput{Confidence: 0.9, BlankFraction: 0, StudentResolved: false, SetResolved: false},
			issues: []string{models.IssueStudentNotFound, models.IssueSetUnresolved},
		},
		{
			name: "everything wrong at once",
			input: ReviewInput{
				Confidence: 0.3, BlankFraction: 1, StudentResolved: false, SetResolved: false,
			},
			issues: []string{
				models.IssueLowConfidence, models.IssueBlankAnswers,
				models.IssueStudentNotFound, models.IssueSetUnresolved,
			},
		},
		{
			name: "human verification drops confidence checks",
			input: ReviewInput{
				Confidence: 0, BlankFraction: 1, StudentResolved: true, SetResolved: true,
				HumanVerified: true,
			},
			issues: []string{},
		},
		{
			name: "human verification keeps structural issues",
			input: ReviewInput{
				Confidence: 0, BlankFraction: 1, StudentResolved: false, SetResolved: true,
				HumanVerified: true,
			},
			issues: []string{models.IssueStudentNotFound},
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got := EvaluateIssues(tc.input, routerConfig())
			assert.Equal(t, models.StringList(tc.issues), got)
		})
	}
}

func TestEvaluateIssuesIsDeterministic(t *testing.T) {
	input := ReviewInput{Confidence: 0.4, BlankFraction: 0.2, StudentResolved: false, SetResolved: true}
	first := EvaluateIssues(input, routerConfig())
	second := EvaluateIssues(input, routerConfig())
	assert.Equal(t, first, second)
}

func TestRouteStatus(t *testing.T) {
	assert.Equal(t, models.ScanStatusReady, RouteStatus(models.StringList{}))
	assert.Equal(t, models.ScanStatusNeedsReview, RouteStatus(models.StringList{models.IssueLowConfidence}))
}
