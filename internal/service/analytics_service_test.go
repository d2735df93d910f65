package service

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/noah-isme/omr-grade-api/internal/models"
	"github.com/noah-isme/omr-grade-api/internal/repository"
	"github.com/noah-isme/omr-grade-api/pkg/config"
)

type mockSnapshotter struct {
	scores []models.Score
}

func (m *mockSnapshotter) ScoreSnapshot(ctx context.Context, examID string) ([]models.Score, error) {
	return m.scores, nil
}

func breakdownFor(correct []bool) models.Breakdown {
	bd := make(models.Breakdown, len(correct))
	for i, c := range correct {
		answer := "X"
		if c {
			answer = "A"
		}
		bd[i] = models.BreakdownItem{Item: i + 1, Answer: answer, Key: "A", Correct: c}
	}
	return bd
}

func scoreFor(studentID string, correct []bool, percent float64) models.Score {
	raw := 0
	for _, c := range correct {
		if c {
			raw++
		}
	}
	return models.Score{
		ExamID:    "exam-1",
		StudentID: studentID,
		SetCode:   "A",
		RawScore:  raw,
		Percent:   percent,
		Breakdown: breakdownFor(correct),
	}
}

func newAnalyticsFixture(scores []models.Score, cfg config.AnalyticsConfig) *AnalyticsService {
	lookups := &mockReferenceReader{
		exams: map[string]models.Exam{
			"exam-1": {ID: "exam-1", BatchID: "batch-1", Title: "Midterm", NumItems: 3},
		},
	}
	metrics := NewMetricsService()
	// nil Redis client: every lookup misses and writes are no-ops
	cache := NewCacheService(repository.NewCacheRepository(nil, zap.NewNop()), metrics, zap.NewNop())
	return NewAnalyticsService(&mockSnapshotter{scores: scores}, lookups, cache, cfg, zap.NewNop())
}

func TestExamAnalyticsKnownDataset(t *testing.T) {
	// four students, three items, a clean difficulty gradient
	scores := []models.Score{
		scoreFor("s1", []bool{true, true, true}, 100),
		scoreFor("s2", []bool{true, true, false}, 66.67),
		scoreFor("s3", []bool{true, false, false}, 33.33),
		scoreFor("s4", []bool{false, false, false}, 0),
	}
	svc := newAnalyticsFixture(scores, config.AnalyticsConfig{GroupFraction: 0.5, MinGroupSize: 2})

	analytics, cached, err := svc.ExamAnalytics(context.Background(), "exam-1")
	require.NoError(t, err)
	assert.False(t, cached)

	assert.Equal(t, "exam-1", analytics.ExamID)
	assert.Equal(t, 4, analytics.Respondents)
	assert.Equal(t, 1.5, analytics.AverageScore)
	assert.Equal(t, 50.0, analytics.AveragePercent)

	require.Len(t, analytics.ItemStats, 3)
	assert.Equal(t, 0.75, analytics.ItemStats[0].Difficulty)
	assert.Equal(t, 0.5, analytics.ItemStats[1].Difficulty)
	assert.Equal(t, 0.25, analytics.ItemStats[2].Difficulty)

	// top half {s1,s2}, bottom half {s3,s4}
	assert.Equal(t, 0.5, analytics.ItemStats[0].DiscriminationIndex)
	assert.Equal(t, 1.0, analytics.ItemStats[1].DiscriminationIndex)
	assert.Equal(t, 0.5, analytics.ItemStats[2].DiscriminationIndex)

	// sd = sqrt(1.25); item 2: (2.5-0.5)/sd * sqrt(0.25)
	assert.InDelta(t, 0.8944, analytics.ItemStats[1].PointBiserial, 0.0001)
	assert.InDelta(t, 0.7746, analytics.ItemStats[0].PointBiserial, 0.0001)

	// KR-20 = (3/2) * (1 - 0.625/1.25)
	assert.Equal(t, 0.75, analytics.KR20)
}

func TestExamAnalyticsZeroVariance(t *testing.T) {
	scores := []models.Score{
		scoreFor("s1", []bool{true, false, true}, 66.67),
		scoreFor("s2", []bool{true, false, true}, 66.67),
		scoreFor("s3", []bool{true, false, true}, 66.67),
	}
	svc := newAnalyticsFixture(scores, config.AnalyticsConfig{GroupFraction: 0.27, MinGroupSize: 2})

	analytics, _, err := svc.ExamAnalytics(context.Background(), "exam-1")
	require.NoError(t, err)

	assert.Equal(t, 0.0, analytics.KR20, "zero score variance reports 0, not a placeholder")
	for _, stat := range analytics.ItemStats {
		assert.Equal(t, 0.0, stat.PointBiserial)
	}
	// uniform correctness: difficulty still reported
	assert.Equal(t, 1.0, analytics.ItemStats[0].Difficulty)
	assert.Equal(t, 0.0, analytics.ItemStats[1].Difficulty)
}

func TestExamAnalyticsSmallCohortSkipsDiscrimination(t *testing.T) {
	scores := []models.Score{
		scoreFor("s1", []bool{true, true, false}, 66.67),
		scoreFor("s2", []bool{true, false, false}, 33.33),
	}
	// floor(2 * 0.27) = 0 -> clamped to 1 -> below MinGroupSize
	svc := newAnalyticsFixture(scores, config.AnalyticsConfig{GroupFraction: 0.27, MinGroupSize: 2})

	analytics, _, err := svc.ExamAnalytics(context.Background(), "exam-1")
	require.NoError(t, err)
	for _, stat := range analytics.ItemStats {
		assert.Equal(t, 0.0, stat.DiscriminationIndex)
	}
}

func TestExamAnalyticsNoRespondents(t *testing.T) {
	svc := newAnalyticsFixture(nil, config.AnalyticsConfig{GroupFraction: 0.27, MinGroupSize: 2})

	analytics, cached, err := svc.ExamAnalytics(context.Background(), "exam-1")
	require.NoError(t, err)
	assert.False(t, cached)
	assert.Equal(t, 0, analytics.Respondents)
	assert.Equal(t, 0.0, analytics.KR20)
	assert.Empty(t, analytics.ItemStats)
}

func TestExamAnalyticsUnknownExam(t *testing.T) {
	svc := newAnalyticsFixture(nil, config.AnalyticsConfig{})

	_, _, err := svc.ExamAnalytics(context.Background(), "missing")
	require.Error(t, err)
}

func TestPopulationVariance(t *testing.T) {
	assert.Equal(t, 0.0, populationVariance(nil))
	assert.Equal(t, 0.0, populationVariance([]int{5, 5, 5}))
	assert.Equal(t, 1.25, populationVariance([]int{3, 2, 1, 0}))
}

func TestKR20Guards(t *testing.T) {
	assert.Equal(t, 0.0, kr20(1, 0.2, 2.0), "single item is undefined")
	assert.Equal(t, 0.0, kr20(10, 0.2, 0), "zero variance is undefined")
}
