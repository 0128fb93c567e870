package handler

import (
	"errors"
	"net/http"

	"github.com/labstack/echo/v4"

	"recipebook/internal/auth"
	"recipebook/internal/service"
)

// InvalidLoginMessage is flashed after a failed login attempt.
const InvalidLoginMessage = "Username/Password is not valid!"

// AuthHandler serves the login page and logout.
type AuthHandler struct {
	authService service.AuthService
	cookies     *Cookies
}

// NewAuthHandler creates a new auth handler.
func NewAuthHandler(authService service.AuthService, cookies *Cookies) *AuthHandler {
	return &AuthHandler{authService: authService, cookies: cookies}
}

// LoginForm is the posted login form.
type LoginForm struct {
	Username string `form:"username" validate:"required"`
	Password string `form:"password" validate:"required"`
	Next     string `form:"next"`
}

// LoginPage is the data rendered by login.html.
type LoginPage struct {
	Page
	Next string
}

// Login renders the login form on GET and checks credentials on POST.
// Users that already hold a valid session are sent to the recipe list.
func (h *AuthHandler) Login(c echo.Context) error {
	if c.Request().Method == http.MethodPost {
		return h.login(c)
	}

	if cookie, err := c.Cookie(SessionCookieName); err == nil {
		if _, err := h.authService.Authenticate(c.Request().Context(), cookie.Value); err == nil {
			return c.Redirect(http.StatusFound, HomePath)
		}
	}

	return c.Render(http.StatusOK, "login.html", LoginPage{
		Page: newPage(c, h.cookies, "Login"),
		Next: c.QueryParam("next"),
	})
}

func (h *AuthHandler) login(c echo.Context) error {
	var form LoginForm
	if err := c.Bind(&form); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid form")
	}

	if err := c.Validate(&form); err != nil {
		return h.rejectLogin(c, form.Next)
	}

	token, _, err := h.authService.Login(c.Request().Context(), form.Username, form.Password)
	if err != nil {
		if !errors.Is(err, service.ErrInvalidCredentials) {
			c.Logger().Errorf("login %q: %v", form.Username, err)
		}
		return h.rejectLogin(c, form.Next)
	}

	h.cookies.SetSession(c, token)
	return c.Redirect(http.StatusFound, safeNext(form.Next))
}

func (h *AuthHandler) rejectLogin(c echo.Context, next string) error {
	h.cookies.AddFlash(c, auth.LevelError, InvalidLoginMessage)
	return c.Redirect(http.StatusFound, LoginURL(next))
}

// Logout revokes the current session and returns to the login page.
func (h *AuthHandler) Logout(c echo.Context) error {
	if cookie, err := c.Cookie(SessionCookieName); err == nil && cookie.Value != "" {
		if err := h.authService.Logout(c.Request().Context(), cookie.Value); err != nil && !errors.Is(err, service.ErrInvalidSession) {
			return err
		}
		h.cookies.AddFlash(c, auth.LevelInfo, "You have been logged out.")
	}
	h.cookies.ClearSession(c)
	return c.Redirect(http.StatusFound, LoginPath)
}
