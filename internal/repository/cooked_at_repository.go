package repository

import (
	"context"

	"gorm.io/gorm"

	"recipebook/internal/model"
)

// CookedAtRepository defines cooked-event persistence operations.
type CookedAtRepository interface {
	Create(ctx context.Context, cooked *model.CookedAt) error
	ListByRecipe(ctx context.Context, recipeID uint) ([]model.CookedAt, error)
	Count(ctx context.Context) (int64, error)
}

type cookedAtRepository struct {
	db *gorm.DB
}

// NewCookedAtRepository creates a new cooked-event repository.
func NewCookedAtRepository(db *gorm.DB) CookedAtRepository {
	return &cookedAtRepository{db: db}
}

// Create inserts a cooked event. The store rejects unknown recipe IDs.
func (r *cookedAtRepository) Create(ctx context.Context, cooked *model.CookedAt) error {
	return r.db.WithContext(ctx).Omit("Recipe").Create(cooked).Error
}

// ListByRecipe returns the events of one recipe, newest first.
func (r *cookedAtRepository) ListByRecipe(ctx context.Context, recipeID uint) ([]model.CookedAt, error) {
	var events []model.CookedAt
	if err := orderCookedNewestFirst(r.db.WithContext(ctx)).
		Where("recipe_id = ?", recipeID).
		Find(&events).Error; err != nil {
		return nil, err
	}
	return events, nil
}

// Count returns the number of stored cooked events.
func (r *cookedAtRepository) Count(ctx context.Context) (int64, error) {
	var n int64
	err := r.db.WithContext(ctx).Model(&model.CookedAt{}).Count(&n).Error
	return n, err
}
