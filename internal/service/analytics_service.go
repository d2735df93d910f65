package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"math"
	"sort"

	"go.uber.org/zap"

	"github.com/noah-isme/omr-grade-api/internal/models"
	"github.com/noah-isme/omr-grade-api/internal/repository"
	"github.com/noah-isme/omr-grade-api/pkg/config"
	appErrors "github.com/noah-isme/omr-grade-api/pkg/errors"
)

type scoreSnapshotter interface {
	ScoreSnapshot(ctx context.Context, examID string) ([]models.Score, error)
}

// AnalyticsService aggregates item statistics and test reliability from
// the scores of one exam.
type AnalyticsService struct {
	repo    scoreSnapshotter
	lookups referenceReader
	cache   *CacheService
	cfg     config.AnalyticsConfig
	logger  *zap.Logger
}

// NewAnalyticsService creates an analytics service.
func NewAnalyticsService(
	repo scoreSnapshotter,
	lookups referenceReader,
	cache *CacheService,
	cfg config.AnalyticsConfig,
	logger *zap.Logger,
) *AnalyticsService {
	return &AnalyticsService{repo: repo, lookups: lookups, cache: cache, cfg: cfg, logger: logger}
}

// ExamAnalytics returns the aggregate for an exam, serving from cache when
// a fresh copy exists. The bool reports whether the cache answered.
func (s *AnalyticsService) ExamAnalytics(ctx context.Context, examID string) (*models.ExamAnalytics, bool, error) {
	if _, err := s.lookups.FindExam(ctx, examID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, false, appErrors.Clone(appErrors.ErrNotFound, "exam not found")
		}
		return nil, false, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "load exam")
	}

	key := fmt.Sprintf("analytics:exam:%s", examID)
	var cached models.ExamAnalytics
	if s.cache.Get(ctx, key, &cached) {
		return &cached, true, nil
	}

	scores, err := s.repo.ScoreSnapshot(ctx, examID)
	if err != nil {
		return nil, false, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "read score snapshot")
	}

	analytics := s.compute(examID, scores)
	s.cache.Set(ctx, key, analytics, s.cfg.CacheTTL)
	s.logger.Info("analytics computed",
		zap.String("exam_id", examID),
		zap.Int("respondents", analytics.Respondents),
		zap.Float64("kr20", analytics.KR20))
	return analytics, false, nil
}

// compute derives the full aggregate from the score snapshot. Statistics
// that are undefined for the data report 0 rather than a placeholder.
func (s *AnalyticsService) compute(examID string, scores []models.Score) *models.ExamAnalytics {
	analytics := &models.ExamAnalytics{
		ExamID:      examID,
		Respondents: len(scores),
		ItemStats:   []models.ItemStat{},
	}
	if len(scores) == 0 {
		return analytics
	}

	numItems := 0
	for _, sc := range scores {
		if len(sc.Breakdown) > numItems {
			numItems = len(sc.Breakdown)
		}
	}

	// correctness matrix: matrix[student][item]
	matrix := make([][]bool, len(scores))
	totals := make([]int, len(scores))
	sumRaw, sumPercent := 0.0, 0.0
	for i, sc := range scores {
		row := make([]bool, numItems)
		for _, item := range sc.Breakdown {
			if item.Item >= 1 && item.Item <= numItems {
				row[item.Item-1] = item.Correct
			}
		}
		matrix[i] = row
		totals[i] = sc.RawScore
		sumRaw += float64(sc.RawScore)
		sumPercent += sc.Percent
	}

	n := float64(len(scores))
	analytics.AverageScore = round2(sumRaw / n)
	analytics.AveragePercent = round2(sumPercent / n)

	variance := populationVariance(totals)
	sd := math.Sqrt(variance)

	topIdx, bottomIdx := s.discriminationGroups(totals)

	sumPQ := 0.0
	for item := 0; item < numItems; item++ {
		correct := 0
		for _, row := range matrix {
			if row[item] {
				correct++
			}
		}
		p := float64(correct) / n
		q := 1 - p
		sumPQ += p * q

		stat := models.ItemStat{
			Item:                item + 1,
			Difficulty:          round4(p),
			DiscriminationIndex: round4(discriminationIndex(matrix, topIdx, bottomIdx, item)),
			PointBiserial:       round4(pointBiserial(matrix, totals, item, p, sd)),
		}
		analytics.ItemStats = append(analytics.ItemStats, stat)
	}

	analytics.KR20 = round4(kr20(numItems, sumPQ, variance))
	return analytics
}

// discriminationGroups returns the indices of the upper and lower slice of
// students ranked by total score. Both slices are nil when the cohort is
// too small for the index to mean anything.
func (s *AnalyticsService) discriminationGroups(totals []int) (top, bottom []int) {
	n := len(totals)
	size := int(math.Floor(float64(n) * s.cfg.GroupFraction))
	if size < 1 {
		size = 1
	}
	if size < s.cfg.MinGroupSize {
		return nil, nil
	}

	order := make([]int, n)
	for i := range order {
		order[i] = i
	}
	sort.SliceStable(order, func(a, b int) bool { return totals[order[a]] < totals[order[b]] })

	bottom = order[:size]
	top = order[n-size:]
	return top, bottom
}

func discriminationIndex(matrix [][]bool, topIdx, bottomIdx []int, item int) float64 {
	if len(topIdx) == 0 || len(bottomIdx) == 0 {
		return 0
	}
	topCorrect, bottomCorrect := 0, 0
	for _, i := range topIdx {
		if matrix[i][item] {
			topCorrect++
		}
	}
	for _, i := range bottomIdx {
		if matrix[i][item] {
			bottomCorrect++
		}
	}
	return float64(topCorrect)/float64(len(topIdx)) - float64(bottomCorrect)/float64(len(bottomIdx))
}

// pointBiserial correlates item correctness with the total score. It is 0
// when every student answered the same way or the totals do not vary.
func pointBiserial(matrix [][]bool, totals []int, item int, p, sd float64) float64 {
	if p == 0 || p == 1 || sd == 0 {
		return 0
	}
	sumCorrect, nCorrect := 0.0, 0
	sumIncorrect, nIncorrect := 0.0, 0
	for i, row := range matrix {
		if row[item] {
			sumCorrect += float64(totals[i])
			nCorrect++
		} else {
			sumIncorrect += float64(totals[i])
			nIncorrect++
		}
	}
	meanCorrect := sumCorrect / float64(nCorrect)
	meanIncorrect := sumIncorrect / float64(nIncorrect)
	return (meanCorrect - meanIncorrect) / sd * math.Sqrt(p*(1-p))
}

// kr20 is the Kuder-Richardson formula 20 reliability. It is undefined for
// fewer than two items or zero score variance, and reports 0 then.
func kr20(numItems int, sumPQ, variance float64) float64 {
	if numItems < 2 || variance == 0 {
		return 0
	}
	k := float64(numItems)
	return (k / (k - 1)) * (1 - sumPQ/variance)
}

func populationVariance(totals []int) float64 {
	n := float64(len(totals))
	if n == 0 {
		return 0
	}
	mean := 0.0
	for _, t := range totals {
		mean += float64(t)
	}
	mean /= n
	variance := 0.0
	for _, t := range totals {
		d := float64(t) - mean
		variance += d * d
	}
	return variance / n
}

func round4(v float64) float64 {
	return math.Round(v*10000) / 10000
}

var _ scoreSnapshotter = (*repository.AnalyticsRepository)(nil)
