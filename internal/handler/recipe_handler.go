package handler

import (
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/labstack/echo/v4"

	"recipebook/internal/auth"
	apperrors "recipebook/internal/errors"
	"recipebook/internal/model"
	"recipebook/internal/service"
)

// RecipeHandler serves the HTML recipe pages.
type RecipeHandler struct {
	recipeService service.RecipeService
	cookies       *Cookies
}

// NewRecipeHandler creates a new recipe handler.
func NewRecipeHandler(recipeService service.RecipeService, cookies *Cookies) *RecipeHandler {
	return &RecipeHandler{recipeService: recipeService, cookies: cookies}
}

// ListPage is the data rendered by list.html.
type ListPage struct {
	Page
	Recipes []RecipeView
}

// AddPage is the data rendered by add.html.
type AddPage struct {
	Page
	Form           service.RecipeInput
	Errors         apperrors.ValidationErrors
	CuisineChoices []model.Choice
	MealChoices    []model.Choice
}

// DetailPage is the data rendered by detail.html.
type DetailPage struct {
	Page
	Recipe    RecipeView
	Today     string
	MinRating int
	MaxRating int
}

// List renders every recipe.
func (h *RecipeHandler) List(c echo.Context) error {
	recipes, err := h.recipeService.ListRecipes(c.Request().Context())
	if err != nil {
		return err
	}

	views := make([]RecipeView, 0, len(recipes))
	for _, r := range recipes {
		views = append(views, newRecipeView(h.recipeService, r))
	}
	return c.Render(http.StatusOK, "list.html", ListPage{
		Page:    newPage(c, h.cookies, "Recipes"),
		Recipes: views,
	})
}

// Create renders the new-recipe form on GET and stores a recipe on POST.
// A stored recipe redirects back to an empty form; an invalid one
// re-renders the form with its errors.
func (h *RecipeHandler) Create(c echo.Context) error {
	if c.Request().Method != http.MethodPost {
		return h.renderAdd(c, http.StatusOK, service.RecipeInput{}, nil)
	}

	var input service.RecipeInput
	if err := c.Bind(&input); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid form")
	}

	upload, closeUpload, err := formUpload(c, "image")
	if err != nil {
		return err
	}
	defer closeUpload()

	recipe, err := h.recipeService.CreateRecipe(c.Request().Context(), input, upload)
	if err != nil {
		var verrs apperrors.ValidationErrors
		if errors.As(err, &verrs) {
			return h.renderAdd(c, http.StatusOK, input, verrs)
		}
		return err
	}

	h.cookies.AddFlash(c, auth.LevelSuccess, fmt.Sprintf("Recipe %q was added.", recipe.Name))
	return c.Redirect(http.StatusFound, c.Echo().Reverse("create"))
}

func (h *RecipeHandler) renderAdd(c echo.Context, status int, form service.RecipeInput, verrs apperrors.ValidationErrors) error {
	return c.Render(status, "add.html", AddPage{
		Page:           newPage(c, h.cookies, "Add recipe"),
		Form:           form,
		Errors:         verrs,
		CuisineChoices: model.CuisineChoices,
		MealChoices:    model.MealChoices,
	})
}

// Detail renders one recipe with its cooked history.
func (h *RecipeHandler) Detail(c echo.Context) error {
	id, err := recipeID(c)
	if err != nil {
		return err
	}

	recipe, err := h.recipeService.GetRecipe(c.Request().Context(), id)
	if err != nil {
		if errors.Is(err, apperrors.ErrRecipeNotFound) {
			return echo.NewHTTPError(http.StatusNotFound, "recipe not found")
		}
		return err
	}

	return c.Render(http.StatusOK, "detail.html", DetailPage{
		Page:      newPage(c, h.cookies, recipe.Name),
		Recipe:    newRecipeView(h.recipeService, *recipe),
		Today:     time.Now().Format(model.DateLayout),
		MinRating: model.MinRating,
		MaxRating: model.MaxRating,
	})
}

// LogCooked records a cooked event from the detail page form.
func (h *RecipeHandler) LogCooked(c echo.Context) error {
	id, err := recipeID(c)
	if err != nil {
		return err
	}
	back := c.Echo().Reverse("recipe", id)

	var input service.CookedInput
	if err := c.Bind(&input); err != nil {
		h.cookies.AddFlash(c, auth.LevelError, apperrors.ErrInvalidRating.Error())
		return c.Redirect(http.StatusFound, back)
	}

	if _, err := h.recipeService.LogCooked(c.Request().Context(), id, input); err != nil {
		switch {
		case errors.Is(err, apperrors.ErrRecipeNotFound):
			return echo.NewHTTPError(http.StatusNotFound, "recipe not found")
		case errors.Is(err, apperrors.ErrInvalidRating), errors.Is(err, apperrors.ErrInvalidDate):
			h.cookies.AddFlash(c, auth.LevelError, err.Error())
			return c.Redirect(http.StatusFound, back)
		default:
			return err
		}
	}

	h.cookies.AddFlash(c, auth.LevelSuccess, "Cooking logged.")
	return c.Redirect(http.StatusFound, back)
}

func recipeID(c echo.Context) (uint, error) {
	id, err := strconv.ParseUint(c.Param("id"), 10, 64)
	if err != nil || id == 0 {
		return 0, echo.NewHTTPError(http.StatusNotFound, "recipe not found")
	}
	return uint(id), nil
}

// formUpload opens an optional file field. The returned func closes it.
func formUpload(c echo.Context, field string) (*service.Upload, func(), error) {
	fh, err := c.FormFile(field)
	if err != nil {
		if errors.Is(err, http.ErrMissingFile) || errors.Is(err, http.ErrNotMultipart) {
			return nil, func() {}, nil
		}
		return nil, func() {}, echo.NewHTTPError(http.StatusBadRequest, "invalid upload")
	}
	f, err := fh.Open()
	if err != nil {
		return nil, func() {}, fmt.Errorf("open upload: %w", err)
	}
	return &service.Upload{Filename: fh.Filename, Size: fh.Size, File: f}, func() { f.Close() }, nil
}
