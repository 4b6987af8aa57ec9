package repository

import (
	"context"

	"github.com/kitade/kita-jobs/internal/domain"
	"gorm.io/gorm"
)

// ImportRunRepository keeps summaries of finished import jobs.
type ImportRunRepository struct {
	db *gorm.DB
}

// NewImportRunRepository creates a new ImportRunRepository.
func NewImportRunRepository(db *gorm.DB) *ImportRunRepository {
	return &ImportRunRepository{db: db}
}

// RecordRun stores the summary of a finished job.
func (r *ImportRunRepository) RecordRun(ctx context.Context, run *domain.ImportRun) error {
	return r.db.WithContext(ctx).Save(run).Error
}

// ListRecent returns the most recently finished runs.
func (r *ImportRunRepository) ListRecent(ctx context.Context, limit int) ([]domain.ImportRun, error) {
	var runs []domain.ImportRun
	if err := r.db.WithContext(ctx).
		Order("finished_at DESC").
		Limit(limit).
		Find(&runs).Error; err != nil {
		return nil, err
	}
	return runs, nil
}
