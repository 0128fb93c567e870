package repository

import (
	"context"

	"gorm.io/gorm"

	"recipebook/internal/model"
)

// RecipeRepository defines recipe persistence operations.
type RecipeRepository interface {
	Create(ctx context.Context, recipe *model.Recipe) error
	FindByID(ctx context.Context, id uint) (*model.Recipe, error)
	List(ctx context.Context) ([]model.Recipe, error)
	Count(ctx context.Context) (int64, error)
}

type recipeRepository struct {
	db *gorm.DB
}

// NewRecipeRepository creates a new recipe repository.
func NewRecipeRepository(db *gorm.DB) RecipeRepository {
	return &recipeRepository{db: db}
}

// Create inserts a new recipe.
func (r *recipeRepository) Create(ctx context.Context, recipe *model.Recipe) error {
	return r.db.WithContext(ctx).Create(recipe).Error
}

// FindByID loads a recipe with its cooked history, newest first.
func (r *recipeRepository) FindByID(ctx context.Context, id uint) (*model.Recipe, error) {
	var recipe model.Recipe
	if err := r.db.WithContext(ctx).
		Preload("CookedAt", orderCookedNewestFirst).
		First(&recipe, id).Error; err != nil {
		return nil, err
	}
	return &recipe, nil
}

// List returns every recipe, newest first.
func (r *recipeRepository) List(ctx context.Context) ([]model.Recipe, error) {
	var recipes []model.Recipe
	if err := r.db.WithContext(ctx).
		Preload("CookedAt", orderCookedNewestFirst).
		Order("id DESC").
		Find(&recipes).Error; err != nil {
		return nil, err
	}
	return recipes, nil
}

// Count returns the number of stored recipes.
func (r *recipeRepository) Count(ctx context.Context) (int64, error) {
	var n int64
	err := r.db.WithContext(ctx).Model(&model.Recipe{}).Count(&n).Error
	return n, err
}

func orderCookedNewestFirst(db *gorm.DB) *gorm.DB {
	return db.Order("date DESC, id DESC")
}
