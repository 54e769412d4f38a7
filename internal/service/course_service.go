package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/campusware/sis-api/internal/models"
	appErrors "github.com/campusware/sis-api/pkg/errors"
)

type courseStore interface {
	FindByID(ctx context.Context, id string) (*models.Course, error)
	List(ctx context.Context, filter models.CourseFilter) ([]models.Course, int, error)
}

type catalogCache interface {
	Get(ctx context.Context, key string, dest interface{}) error
	Set(ctx context.Context, key string, value interface{}, ttl time.Duration) error
}

type cachedCatalogPage struct {
	Courses    []models.Course   `json:"courses"`
	Pagination models.Pagination `json:"pagination"`
}

// CourseService serves the course catalog with optional read-through
// caching. The catalog changes rarely relative to how often it is browsed,
// so a short TTL is enough; registration reads go to the database directly.
type CourseService struct {
	repo     courseStore
	cache    catalogCache
	cacheTTL time.Duration
	logger   *zap.Logger
}

// NewCourseService constructs the service. A nil cache disables caching.
func NewCourseService(repo courseStore, cache catalogCache, cacheTTL time.Duration, logger *zap.Logger) *CourseService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cacheTTL <= 0 {
		cacheTTL = 5 * time.Minute
	}
	return &CourseService{repo: repo, cache: cache, cacheTTL: cacheTTL, logger: logger}
}

// List returns a page of the catalog.
func (s *CourseService) List(ctx context.Context, filter models.CourseFilter) ([]models.Course, *models.Pagination, error) {
	if filter.Page <= 0 {
		filter.Page = 1
	}
	if filter.PageSize <= 0 || filter.PageSize > 100 {
		filter.PageSize = 20
	}

	key := s.listCacheKey(filter)
	if s.cache != nil {
		var page cachedCatalogPage
		if err := s.cache.Get(ctx, key, &page); err == nil {
			return page.Courses, &page.Pagination, nil
		} else if !errors.Is(err, appErrors.ErrCacheMiss) {
			s.logger.Warn("catalog cache read failed", zap.Error(err))
		}
	}

	courses, total, err := s.repo.List(ctx, filter)
	if err != nil {
		return nil, nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list courses")
	}
	pagination := models.Pagination{Page: filter.Page, PageSize: filter.PageSize, TotalCount: total}

	if s.cache != nil {
		if err := s.cache.Set(ctx, key, cachedCatalogPage{Courses: courses, Pagination: pagination}, s.cacheTTL); err != nil {
			s.logger.Warn("catalog cache write failed", zap.Error(err))
		}
	}
	return courses, &pagination, nil
}

// Get returns one course with its prerequisites.
func (s *CourseService) Get(ctx context.Context, id string) (*models.Course, error) {
	course, err := s.repo.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "course not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load course")
	}
	return course, nil
}

func (s *CourseService) listCacheKey(filter models.CourseFilter) string {
	active := "any"
	if filter.Active != nil {
		active = fmt.Sprintf("%t", *filter.Active)
	}
	return fmt.Sprintf("catalog:list:%s:%s:%s:%d:%d", filter.Semester, active, filter.Search, filter.Page, filter.PageSize)
}
