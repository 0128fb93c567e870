package router

import (
	"net/http"
	"strings"

	"github.com/go-playground/validator/v10"
	echojwt "github.com/labstack/echo-jwt/v4"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	echoSwagger "github.com/swaggo/echo-swagger"
	"go.uber.org/zap"

	"recipebook/internal/config"
	"recipebook/internal/errors"
	"recipebook/internal/handler"
	"recipebook/internal/service"
	"recipebook/internal/web"
)

// Options toggles behaviour that differs between production and tests.
type Options struct {
	// CSRF guards every unsafe HTML form request outside /api.
	CSRF bool
}

// Register wires routes and middleware.
func Register(
	e *echo.Echo,
	cfg *config.Config,
	opts Options,
	logger *zap.Logger,
	authService service.AuthService,
	authHandler *handler.AuthHandler,
	recipeHandler *handler.RecipeHandler,
	apiHandler *handler.RecipeAPIHandler,
) error {
	renderer, err := web.NewRenderer()
	if err != nil {
		return err
	}
	e.Renderer = renderer
	e.Validator = &CustomValidator{validator: service.NewValidator()}

	e.Use(middleware.RequestID())
	e.Use(requestLogger(logger))
	e.Use(middleware.Recover())
	if opts.CSRF {
		e.Use(middleware.CSRFWithConfig(middleware.CSRFConfig{
			Skipper:        func(c echo.Context) bool { return strings.HasPrefix(c.Path(), "/api/") },
			TokenLookup:    "form:csrfmiddlewaretoken",
			CookieName:     "csrftoken",
			CookiePath:     "/",
			CookieHTTPOnly: true,
			CookieSecure:   cfg.SecureCookies,
			CookieSameSite: http.SameSiteLaxMode,
		}))
	}

	e.GET("/healthz", func(c echo.Context) error {
		return c.String(http.StatusOK, "ok")
	})
	e.GET("/swagger/*", echoSwagger.WrapHandler)
	e.StaticFS("/static", web.StaticFS())
	if cfg.StorageBackend == "local" || cfg.StorageBackend == "" {
		e.Static(strings.TrimSuffix(cfg.MediaURL, "/"), cfg.MediaRoot)
	}

	// HTML views
	loginRequired := requireLogin(authService)
	name(e.Match([]string{http.MethodGet, http.MethodPost}, "/", authHandler.Login), "login")
	e.GET("/logout/", authHandler.Logout).Name = "logout"
	e.GET("/recipes/", recipeHandler.List, loginRequired).Name = "recipes"
	name(e.Match([]string{http.MethodGet, http.MethodPost}, "/create/", recipeHandler.Create, loginRequired), "create")
	e.GET("/recipes/:id/", recipeHandler.Detail, loginRequired).Name = "recipe"
	e.POST("/recipes/:id/cooked/", recipeHandler.LogCooked, loginRequired).Name = "cooked"

	// JSON API, authenticated by bearer token or session cookie
	api := e.Group("/api", requireToken(authService))
	api.GET("/me", apiHandler.Me)
	api.GET("/recipes", apiHandler.ListRecipes)
	api.GET("/recipes/:id", apiHandler.GetRecipe)
	api.GET("/recipes/:id/cooked", apiHandler.ListCooked)
	api.POST("/recipes/:id/cooked", apiHandler.LogCooked)

	return nil
}

func name(routes []*echo.Route, n string) {
	for _, r := range routes {
		r.Name = n
	}
}

func parseSession(authService service.AuthService) func(c echo.Context, token string) (interface{}, error) {
	return func(c echo.Context, token string) (interface{}, error) {
		return authService.Authenticate(c.Request().Context(), token)
	}
}

// requireLogin sends anonymous requests to the login page, remembering
// where they were going.
func requireLogin(authService service.AuthService) echo.MiddlewareFunc {
	return echojwt.WithConfig(echojwt.Config{
		ContextKey:     handler.SessionContextKey,
		TokenLookup:    "cookie:" + handler.SessionCookieName,
		ParseTokenFunc: parseSession(authService),
		ErrorHandler: func(c echo.Context, err error) error {
			return c.Redirect(http.StatusFound, handler.LoginURL(c.Request().URL.RequestURI()))
		},
	})
}

// requireToken rejects anonymous API requests with 401.
func requireToken(authService service.AuthService) echo.MiddlewareFunc {
	return echojwt.WithConfig(echojwt.Config{
		ContextKey:     handler.SessionContextKey,
		TokenLookup:    "header:" + echo.HeaderAuthorization + ":Bearer ,cookie:" + handler.SessionCookieName,
		ParseTokenFunc: parseSession(authService),
		ErrorHandler: func(c echo.Context, err error) error {
			return echo.NewHTTPError(http.StatusUnauthorized, errors.ErrorResponse{
				Error: "authentication required",
				Code:  "UNAUTHORIZED",
			})
		},
	})
}

func requestLogger(logger *zap.Logger) echo.MiddlewareFunc {
	return middleware.RequestLoggerWithConfig(middleware.RequestLoggerConfig{
		LogMethod:    true,
		LogURI:       true,
		LogStatus:    true,
		LogLatency:   true,
		LogRequestID: true,
		LogError:     true,
		HandleError:  true,
		LogValuesFunc: func(c echo.Context, v middleware.RequestLoggerValues) error {
			fields := []zap.Field{
				zap.String("method", v.Method),
				zap.String("uri", v.URI),
				zap.Int("status", v.Status),
				zap.Duration("latency", v.Latency),
				zap.String("request_id", v.RequestID),
			}
			if v.Error != nil {
				logger.Error("request", append(fields, zap.Error(v.Error))...)
				return nil
			}
			logger.Info("request", fields...)
			return nil
		},
	})
}

// CustomValidator wraps validator for Echo.
type CustomValidator struct {
	validator *validator.Validate
}

// Validate implements echo.Validator interface.
func (cv *CustomValidator) Validate(i interface{}) error {
	return cv.validator.Struct(i)
}
