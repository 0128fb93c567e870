package handler

import (
	stderrors "errors"
	"net/http"

	"github.com/labstack/echo/v4"

	"recipebook/internal/errors"
	"recipebook/internal/model"
	"recipebook/internal/service"
)

// RecipeAPIHandler serves the JSON recipe endpoints.
type RecipeAPIHandler struct {
	recipeService service.RecipeService
	authService   service.AuthService
}

// NewRecipeAPIHandler creates a new recipe API handler.
func NewRecipeAPIHandler(recipeService service.RecipeService, authService service.AuthService) *RecipeAPIHandler {
	return &RecipeAPIHandler{recipeService: recipeService, authService: authService}
}

// RecipeResponse represents a recipe in API responses.
type RecipeResponse struct {
	ID            uint             `json:"id"`
	Name          string           `json:"name"`
	ImageURL      string           `json:"image_url"`
	Cuisine       model.Cuisine    `json:"cuisine"`
	Meal          model.Meal       `json:"meal"`
	AverageRating float64          `json:"average_rating"`
	CookedAt      []CookedResponse `json:"cooked_at"`
}

// CookedResponse represents a cooked event in API responses.
type CookedResponse struct {
	ID     uint   `json:"id"`
	Date   string `json:"date"`
	Rating int    `json:"rating"`
}

// SessionResponse describes the authenticated caller.
type SessionResponse struct {
	UserID   uint   `json:"user_id"`
	Username string `json:"username"`
	Email    string `json:"email"`
}

func (h *RecipeAPIHandler) toResponse(r *model.Recipe) RecipeResponse {
	resp := RecipeResponse{
		ID:            r.ID,
		Name:          r.Name,
		ImageURL:      h.recipeService.ImageURL(r),
		Cuisine:       r.Cuisine,
		Meal:          r.Meal,
		AverageRating: r.AverageRating(),
		CookedAt:      make([]CookedResponse, 0, len(r.CookedAt)),
	}
	for _, c := range r.CookedAt {
		resp.CookedAt = append(resp.CookedAt, toCookedResponse(&c))
	}
	return resp
}

func toCookedResponse(c *model.CookedAt) CookedResponse {
	return CookedResponse{ID: c.ID, Date: c.Date.Format(model.DateLayout), Rating: c.Rating}
}

func apiError(err error) error {
	httpErr := errors.MapErrorToHTTP(err)
	return echo.NewHTTPError(httpErr.StatusCode, httpErr.ToErrorResponse())
}

// ListRecipes godoc
// @Summary List recipes
// @Tags recipes
// @Produce json
// @Security BearerAuth
// @Success 200 {array} RecipeResponse
// @Failure 401 {object} errors.ErrorResponse
// @Router /recipes [get]
func (h *RecipeAPIHandler) ListRecipes(c echo.Context) error {
	recipes, err := h.recipeService.ListRecipes(c.Request().Context())
	if err != nil {
		return apiError(err)
	}
	resp := make([]RecipeResponse, 0, len(recipes))
	for i := range recipes {
		resp = append(resp, h.toResponse(&recipes[i]))
	}
	return c.JSON(http.StatusOK, resp)
}

// GetRecipe godoc
// @Summary Get recipe by id
// @Tags recipes
// @Produce json
// @Security BearerAuth
// @Param id path int true "Recipe ID"
// @Success 200 {object} RecipeResponse
// @Failure 401 {object} errors.ErrorResponse
// @Failure 404 {object} errors.ErrorResponse
// @Router /recipes/{id} [get]
func (h *RecipeAPIHandler) GetRecipe(c echo.Context) error {
	id, err := recipeID(c)
	if err != nil {
		return apiError(errors.ErrRecipeNotFound)
	}
	recipe, err := h.recipeService.GetRecipe(c.Request().Context(), id)
	if err != nil {
		return apiError(err)
	}
	return c.JSON(http.StatusOK, h.toResponse(recipe))
}

// ListCooked godoc
// @Summary List the cooked history of a recipe
// @Tags recipes
// @Produce json
// @Security BearerAuth
// @Param id path int true "Recipe ID"
// @Success 200 {array} CookedResponse
// @Failure 401 {object} errors.ErrorResponse
// @Failure 404 {object} errors.ErrorResponse
// @Router /recipes/{id}/cooked [get]
func (h *RecipeAPIHandler) ListCooked(c echo.Context) error {
	id, err := recipeID(c)
	if err != nil {
		return apiError(errors.ErrRecipeNotFound)
	}
	events, err := h.recipeService.ListCooked(c.Request().Context(), id)
	if err != nil {
		return apiError(err)
	}
	resp := make([]CookedResponse, 0, len(events))
	for i := range events {
		resp = append(resp, toCookedResponse(&events[i]))
	}
	return c.JSON(http.StatusOK, resp)
}

// LogCooked godoc
// @Summary Log that a recipe was cooked
// @Tags recipes
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param id path int true "Recipe ID"
// @Param request body service.CookedInput true "Cooked event; empty date means today"
// @Success 201 {object} CookedResponse
// @Failure 400 {object} errors.ErrorResponse
// @Failure 401 {object} errors.ErrorResponse
// @Failure 404 {object} errors.ErrorResponse
// @Router /recipes/{id}/cooked [post]
func (h *RecipeAPIHandler) LogCooked(c echo.Context) error {
	id, err := recipeID(c)
	if err != nil {
		return apiError(errors.ErrRecipeNotFound)
	}

	var req service.CookedInput
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, errors.ErrorResponse{
			Error: "invalid request body",
			Code:  "INVALID_REQUEST",
		})
	}

	cooked, err := h.recipeService.LogCooked(c.Request().Context(), id, req)
	if err != nil {
		return apiError(err)
	}
	return c.JSON(http.StatusCreated, toCookedResponse(cooked))
}

// Me godoc
// @Summary Describe the current session
// @Tags auth
// @Produce json
// @Security BearerAuth
// @Success 200 {object} SessionResponse
// @Failure 401 {object} errors.ErrorResponse
// @Router /me [get]
func (h *RecipeAPIHandler) Me(c echo.Context) error {
	user, err := h.authService.CurrentUser(c.Request().Context(), currentSession(c))
	if err != nil {
		if stderrors.Is(err, service.ErrInvalidSession) {
			return echo.NewHTTPError(http.StatusUnauthorized, errors.ErrorResponse{
				Error: "authentication required",
				Code:  "UNAUTHORIZED",
			})
		}
		return apiError(err)
	}
	return c.JSON(http.StatusOK, SessionResponse{UserID: user.ID, Username: user.Username, Email: user.Email})
}
