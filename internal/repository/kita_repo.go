package repository

import (
	"context"
	"fmt"
	"strings"

	"github.com/kitade/kita-jobs/internal/domain"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// KitaRepository handles facility data operations.
type KitaRepository struct {
	db *gorm.DB
}

// NewKitaRepository creates a new KitaRepository.
func NewKitaRepository(db *gorm.DB) *KitaRepository {
	return &KitaRepository{db: db}
}

// kitaUpdateColumns are overwritten when a facility is scraped again.
var kitaUpdateColumns = []string{
	"name", "street", "postal_code", "city", "bezirk", "bundesland",
	"phone", "email", "website", "operator", "type", "capacity",
	"age_range", "opening_hours", "extra", "scraped_at", "updated_at",
}

// UpsertKita creates or updates a facility keyed by its source URL.
// Parameters:
//   - ctx: context for cancellation and deadlines.
//   - kita: record to create or update; ID is filled in on insert.
// Returns:
//   - error: non-nil if validation or the upsert fails.
func (r *KitaRepository) UpsertKita(ctx context.Context, kita *domain.Kita) error {
	if err := kita.Validate(); err != nil {
		return err
	}
	return r.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "source_url"}},
		DoUpdates: clause.AssignmentColumns(kitaUpdateColumns),
	}).Create(kita).Error
}

// GetByID retrieves a facility by its ID.
func (r *KitaRepository) GetByID(ctx context.Context, id uint) (*domain.Kita, error) {
	var kita domain.Kita
	if err := r.db.WithContext(ctx).First(&kita, "id = ?", id).Error; err != nil {
		return nil, notFound(err)
	}
	return &kita, nil
}

// KitaFilter narrows List results. Empty fields are ignored.
type KitaFilter struct {
	Keyword string
	City    string
	Bezirk  string
	Limit   int
	Offset  int
}

// List returns one page of facilities and the total number of matches.
// Parameters:
//   - ctx: context for cancellation and deadlines.
//   - f: filter and pagination.
// Returns:
//   - []domain.Kita: matching facilities ordered by name.
//   - int64: total matches ignoring pagination.
//   - error: non-nil if the query fails.
func (r *KitaRepository) List(ctx context.Context, f KitaFilter) ([]domain.Kita, int64, error) {
	query := r.db.WithContext(ctx).Model(&domain.Kita{})
	if kw := strings.TrimSpace(f.Keyword); kw != "" {
		like := "%" + strings.ToLower(kw) + "%"
		query = query.Where("LOWER(name) LIKE ? OR LOWER(operator) LIKE ?", like, like)
	}
	if f.City != "" {
		query = query.Where("LOWER(city) = ?", strings.ToLower(f.City))
	}
	if f.Bezirk != "" {
		query = query.Where("bezirk = ?", f.Bezirk)
	}

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, fmt.Errorf("failed to count kitas: %w", err)
	}

	var kitas []domain.Kita
	if err := query.
		Order("name ASC").
		Limit(f.Limit).
		Offset(f.Offset).
		Find(&kitas).Error; err != nil {
		return nil, 0, fmt.Errorf("failed to list kitas: %w", err)
	}
	return kitas, total, nil
}
