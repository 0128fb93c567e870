package handler

import (
	"github.com/labstack/echo/v4"

	"recipebook/internal/auth"
	"recipebook/internal/model"
	"recipebook/internal/service"
)

// Page is the data every HTML template receives.
type Page struct {
	Title    string
	User     *auth.Claims
	Messages []auth.Message
	CSRF     string
}

func newPage(c echo.Context, cookies *Cookies, title string) Page {
	return Page{
		Title:    title,
		User:     currentSession(c),
		Messages: cookies.PopFlash(c),
		CSRF:     csrfToken(c),
	}
}

// RecipeView is a recipe prepared for display.
type RecipeView struct {
	model.Recipe
	ImageURL      string
	AverageRating float64
	TimesCooked   int
	LastCooked    string
}

func newRecipeView(svc service.RecipeService, r model.Recipe) RecipeView {
	v := RecipeView{
		Recipe:        r,
		ImageURL:      svc.ImageURL(&r),
		AverageRating: r.AverageRating(),
		TimesCooked:   len(r.CookedAt),
	}
	if last, ok := r.LastCooked(); ok {
		v.LastCooked = last.Format(model.DateLayout)
	}
	return v
}
