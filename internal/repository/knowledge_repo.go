package repository

import (
	"context"
	"fmt"

	"github.com/kitade/kita-jobs/internal/domain"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// KnowledgeRepository handles knowledge article data operations.
type KnowledgeRepository struct {
	db *gorm.DB
}

// NewKnowledgeRepository creates a new KnowledgeRepository.
func NewKnowledgeRepository(db *gorm.DB) *KnowledgeRepository {
	return &KnowledgeRepository{db: db}
}

// UpsertPost creates or updates an article keyed by its WordPress id.
func (r *KnowledgeRepository) UpsertPost(ctx context.Context, post *domain.KnowledgePost) error {
	if err := post.Validate(); err != nil {
		return err
	}
	return r.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "wp_id"}},
		DoUpdates: clause.AssignmentColumns([]string{
			"slug", "title", "excerpt", "content", "category", "link", "published_at", "updated_at",
		}),
	}).Create(post).Error
}

// GetBySlug retrieves an article by slug.
func (r *KnowledgeRepository) GetBySlug(ctx context.Context, slug string) (*domain.KnowledgePost, error) {
	var post domain.KnowledgePost
	if err := r.db.WithContext(ctx).First(&post, "slug = ?", slug).Error; err != nil {
		return nil, notFound(err)
	}
	return &post, nil
}

// ListPaginated returns one page of articles, newest first, optionally by category.
func (r *KnowledgeRepository) ListPaginated(ctx context.Context, category string, limit, offset int) ([]domain.KnowledgePost, int64, error) {
	query := r.db.WithContext(ctx).Model(&domain.KnowledgePost{})
	if category != "" {
		query = query.Where("category = ?", category)
	}

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, fmt.Errorf("failed to count knowledge posts: %w", err)
	}

	var posts []domain.KnowledgePost
	if err := query.
		Order("published_at DESC").
		Limit(limit).
		Offset(offset).
		Find(&posts).Error; err != nil {
		return nil, 0, fmt.Errorf("failed to list knowledge posts: %w", err)
	}
	return posts, total, nil
}
