package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/noah-isme/omr-grade-api/internal/repository"
	appErrors "github.com/noah-isme/omr-grade-api/pkg/errors"
)

// CacheService fronts Redis for analytics payloads. Cache failures are
// logged and swallowed: the pipeline must keep working against the
// database alone.
type CacheService struct {
	repo    *repository.CacheRepository
	metrics *MetricsService
	logger  *zap.Logger
}

// NewCacheService creates a cache service.
func NewCacheService(repo *repository.CacheRepository, metrics *MetricsService, logger *zap.Logger) *CacheService {
	return &CacheService{repo: repo, metrics: metrics, logger: logger}
}

// Get loads a cached value into dest. It returns true on a hit.
func (s *CacheService) Get(ctx context.Context, key string, dest interface{}) bool {
	err := s.repo.Get(ctx, key, dest)
	if err == nil {
		s.metrics.RecordCacheOperation(true)
		return true
	}
	s.metrics.RecordCacheOperation(false)
	if !errors.Is(err, appErrors.ErrCacheMiss) {
		s.logger.Warn("cache get failed", zap.String("key", key), zap.Error(err))
	}
	return false
}

// Set stores a value with the given TTL.
func (s *CacheService) Set(ctx context.Context, key string, value interface{}, ttl time.Duration) {
	if err := s.repo.Set(ctx, key, value, ttl); err != nil {
		s.logger.Warn("cache set failed", zap.String("key", key), zap.Error(err))
	}
}

// InvalidateExam drops every cached aggregate derived from the exam's
// scores. Called after any score write.
func (s *CacheService) InvalidateExam(ctx context.Context, examID string) {
	pattern := fmt.Sprintf("analytics:exam:%s*", examID)
	if err := s.repo.DeleteByPattern(ctx, pattern); err != nil {
		s.logger.Warn("cache invalidation failed", zap.String("pattern", pattern), zap.Error(err))
	}
}
