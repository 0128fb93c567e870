package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/gabriel-vasile/mimetype"
	"github.com/go-playground/validator/v10"
	"gorm.io/gorm"

	"recipebook/internal/cache"
	apperrors "recipebook/internal/errors"
	"recipebook/internal/model"
	"recipebook/internal/repository"
	"recipebook/internal/storage"
)

const (
	recipeCacheTTL = 5 * time.Minute
	// MaxImageSize caps uploaded recipe images.
	MaxImageSize = 10 << 20
	uploadDir    = "recipes"
)

var allowedImageTypes = []string{"image/png", "image/jpeg", "image/gif", "image/webp"}

// RecipeInput carries the user-editable fields of a recipe.
type RecipeInput struct {
	Name    string `json:"name" form:"name" validate:"required,max=100"`
	Cuisine string `json:"cuisine" form:"cuisine" validate:"required,cuisine"`
	Meal    string `json:"meal" form:"meal" validate:"required,meal"`
}

// CookedInput carries one cooked event. An empty Date means today.
type CookedInput struct {
	Date   string `json:"date" form:"date"`
	Rating int    `json:"rating" form:"rating"`
}

// Upload is an uploaded file as received from a multipart form.
type Upload struct {
	Filename string
	Size     int64
	File     io.ReadSeeker
}

// RecipeService handles recipe and cooked-event operations.
type RecipeService interface {
	CreateRecipe(ctx context.Context, input RecipeInput, image *Upload) (*model.Recipe, error)
	GetRecipe(ctx context.Context, id uint) (*model.Recipe, error)
	ListRecipes(ctx context.Context) ([]model.Recipe, error)
	LogCooked(ctx context.Context, recipeID uint, input CookedInput) (*model.CookedAt, error)
	ListCooked(ctx context.Context, recipeID uint) ([]model.CookedAt, error)
	ImageURL(recipe *model.Recipe) string
}

type recipeService struct {
	recipeRepo repository.RecipeRepository
	cookedRepo repository.CookedAtRepository
	storage    storage.Storage
	cache      *cache.Client
	validate   *validator.Validate
	now        func() time.Time
}

// NewRecipeService creates a new recipe service.
func NewRecipeService(
	recipeRepo repository.RecipeRepository,
	cookedRepo repository.CookedAtRepository,
	store storage.Storage,
	cache *cache.Client,
) RecipeService {
	return &recipeService{
		recipeRepo: recipeRepo,
		cookedRepo: cookedRepo,
		storage:    store,
		cache:      cache,
		validate:   NewValidator(),
		now:        time.Now,
	}
}

// NewValidator returns a validator that also knows the cuisine and meal
// choice tags.
func NewValidator() *validator.Validate {
	v := validator.New()
	_ = v.RegisterValidation("cuisine", func(fl validator.FieldLevel) bool {
		return model.Cuisine(fl.Field().String()).Valid()
	})
	_ = v.RegisterValidation("meal", func(fl validator.FieldLevel) bool {
		return model.Meal(fl.Field().String()).Valid()
	})
	return v
}

func (s *recipeService) cacheKey(id uint) string {
	return fmt.Sprintf("recipe:%d", id)
}

// CreateRecipe validates the form, stores the image and inserts the recipe.
// Field problems are reported together as apperrors.ValidationErrors.
func (s *recipeService) CreateRecipe(ctx context.Context, input RecipeInput, image *Upload) (*model.Recipe, error) {
	input.Name = strings.TrimSpace(input.Name)

	verrs := apperrors.ValidationErrors{}
	s.collectFieldErrors(input, verrs)

	var contentType string
	if image == nil || image.File == nil {
		verrs.Add("image", "This field is required.")
	} else {
		ct, err := s.checkImage(image)
		if err != nil {
			verrs.Add("image", err.Error())
		}
		contentType = ct
	}
	if err := verrs.OrNil(); err != nil {
		return nil, err
	}

	ref, err := s.storage.Save(ctx, storage.UploadName(uploadDir, image.Filename), contentType, image.File)
	if err != nil {
		return nil, fmt.Errorf("store image: %w", err)
	}

	recipe := &model.Recipe{
		Name:    input.Name,
		Image:   ref,
		Cuisine: model.Cuisine(input.Cuisine),
		Meal:    model.Meal(input.Meal),
	}
	if err := s.recipeRepo.Create(ctx, recipe); err != nil {
		// the row was never written, so the image has no owner
		if derr := s.storage.Delete(context.WithoutCancel(ctx), ref); derr != nil {
			err = errors.Join(err, derr)
		}
		return nil, fmt.Errorf("create recipe: %w", err)
	}
	return recipe, nil
}

func (s *recipeService) collectFieldErrors(input RecipeInput, verrs apperrors.ValidationErrors) {
	err := s.validate.Struct(input)
	var fieldErrs validator.ValidationErrors
	if !errors.As(err, &fieldErrs) {
		return
	}
	for _, fe := range fieldErrs {
		field := strings.ToLower(fe.Field())
		switch fe.Tag() {
		case "required":
			verrs.Add(field, "This field is required.")
		case "max":
			verrs.Add(field, fmt.Sprintf("Ensure this value has at most %s characters.", fe.Param()))
		default:
			verrs.Add(field, "Select a valid choice.")
		}
	}
}

// checkImage sniffs the upload and rewinds it for storage.
func (s *recipeService) checkImage(image *Upload) (string, error) {
	if image.Size > MaxImageSize {
		return "", fmt.Errorf("%w: file is larger than %d MB", apperrors.ErrInvalidImage, MaxImageSize>>20)
	}
	mtype, err := mimetype.DetectReader(image.File)
	if err != nil {
		return "", apperrors.ErrInvalidImage
	}
	if _, err := image.File.Seek(0, io.SeekStart); err != nil {
		return "", fmt.Errorf("rewind upload: %w", err)
	}
	if !mimetype.EqualsAny(mtype.String(), allowedImageTypes...) {
		return "", apperrors.ErrInvalidImage
	}
	return mtype.String(), nil
}

// GetRecipe retrieves a recipe with its cooked history, using the cache.
func (s *recipeService) GetRecipe(ctx context.Context, id uint) (*model.Recipe, error) {
	if data, _ := s.cache.Get(ctx, s.cacheKey(id)); data != nil {
		var cached model.Recipe
		if err := json.Unmarshal(data, &cached); err == nil {
			return &cached, nil
		}
	}

	recipe, err := s.recipeRepo.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperrors.ErrRecipeNotFound
		}
		return nil, fmt.Errorf("find recipe: %w", err)
	}

	if payload, err := json.Marshal(recipe); err == nil {
		_ = s.cache.Set(ctx, s.cacheKey(id), payload, recipeCacheTTL)
	}
	return recipe, nil
}

// ListRecipes returns all recipes, newest first.
func (s *recipeService) ListRecipes(ctx context.Context) ([]model.Recipe, error) {
	recipes, err := s.recipeRepo.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("list recipes: %w", err)
	}
	return recipes, nil
}

// LogCooked records that a recipe was cooked on a date with a rating.
func (s *recipeService) LogCooked(ctx context.Context, recipeID uint, input CookedInput) (*model.CookedAt, error) {
	if input.Rating < model.MinRating || input.Rating > model.MaxRating {
		return nil, apperrors.ErrInvalidRating
	}

	day := s.now().UTC().Truncate(24 * time.Hour)
	if d := strings.TrimSpace(input.Date); d != "" {
		parsed, err := time.Parse(model.DateLayout, d)
		if err != nil {
			return nil, apperrors.ErrInvalidDate
		}
		day = parsed
	}

	if _, err := s.recipeRepo.FindByID(ctx, recipeID); err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperrors.ErrRecipeNotFound
		}
		return nil, fmt.Errorf("find recipe: %w", err)
	}

	cooked := &model.CookedAt{
		Date:     day,
		Rating:   input.Rating,
		RecipeID: recipeID,
	}
	if err := s.cookedRepo.Create(ctx, cooked); err != nil {
		return nil, fmt.Errorf("create cooked event: %w", err)
	}

	_ = s.cache.Delete(ctx, s.cacheKey(recipeID))
	return cooked, nil
}

// ListCooked returns the cooked history of a recipe, newest first.
func (s *recipeService) ListCooked(ctx context.Context, recipeID uint) ([]model.CookedAt, error) {
	if _, err := s.recipeRepo.FindByID(ctx, recipeID); err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperrors.ErrRecipeNotFound
		}
		return nil, fmt.Errorf("find recipe: %w", err)
	}
	events, err := s.cookedRepo.ListByRecipe(ctx, recipeID)
	if err != nil {
		return nil, fmt.Errorf("list cooked events: %w", err)
	}
	return events, nil
}

// ImageURL resolves the stored image reference of a recipe.
func (s *recipeService) ImageURL(recipe *model.Recipe) string {
	if recipe == nil || recipe.Image == "" {
		return ""
	}
	return s.storage.URL(recipe.Image)
}
