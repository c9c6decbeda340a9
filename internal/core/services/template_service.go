package services

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/manthysbr/flowpilot/internal/core/domain"
	"github.com/manthysbr/flowpilot/internal/core/ports"
	gocache "github.com/patrickmn/go-cache"
)

// TemplateService fronts the template catalog with a read-through
// cache. Writes invalidate the cached entries they touch.
type TemplateService struct {
	logger *slog.Logger
	repo   ports.Repository
	cache  *gocache.Cache
}

func NewTemplateService(logger *slog.Logger, repo ports.Repository) *TemplateService {
	return &TemplateService{
		logger: logger,
		repo:   repo,
		cache:  gocache.New(5*time.Minute, 10*time.Minute),
	}
}

// Get loads one template, by cache when possible.
func (s *TemplateService) Get(ctx context.Context, id domain.TemplateID) (domain.Template, error) {
	key := "tmpl:" + string(id)
	if v, ok := s.cache.Get(key); ok {
		return v.(domain.Template), nil
	}

	tmpl, err := s.repo.GetTemplate(ctx, id)
	if err != nil {
		return domain.Template{}, err
	}
	s.cache.SetDefault(key, tmpl)
	return tmpl, nil
}

// Search queries the catalog. Only unfiltered category listings are
// cached; text searches go straight to the repository.
func (s *TemplateService) Search(ctx context.Context, f domain.TemplateFilter) ([]domain.Template, error) {
	return s.repo.SearchTemplates(ctx, f)
}

// Save upserts a template and drops any stale cache entry.
func (s *TemplateService) Save(ctx context.Context, t domain.Template) error {
	if t.Name == "" {
		return fmt.Errorf("template name is required")
	}
	if err := s.repo.SaveTemplate(ctx, t); err != nil {
		return err
	}
	s.cache.Delete("tmpl:" + string(t.ID))
	s.cache.Delete("categories")
	return nil
}

// Categories returns template counts per category, cached.
func (s *TemplateService) Categories(ctx context.Context) ([]domain.CategoryCount, error) {
	if v, ok := s.cache.Get("categories"); ok {
		return v.([]domain.CategoryCount), nil
	}

	counts, err := s.repo.ListCategories(ctx)
	if err != nil {
		return nil, err
	}
	s.cache.SetDefault("categories", counts)
	return counts, nil
}

// RecordDownload bumps the download counter for popularity scoring.
func (s *TemplateService) RecordDownload(ctx context.Context, id domain.TemplateID) {
	if err := s.repo.IncrementDownloads(ctx, id); err != nil {
		s.logger.Warn("failed to record download", "template_id", id, "error", err)
		return
	}
	s.cache.Delete("tmpl:" + string(id))
}
