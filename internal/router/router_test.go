package router

import (
	"bytes"
	"context"
	"encoding/json"
	"image"
	"image/color"
	"image/png"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/cookiejar"
	"net/http/httptest"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"recipebook/internal/auth"
	"recipebook/internal/cache"
	"recipebook/internal/config"
	"recipebook/internal/db/dbtest"
	apperrors "recipebook/internal/errors"
	"recipebook/internal/handler"
	"recipebook/internal/model"
	"recipebook/internal/repository"
	"recipebook/internal/service"
	"recipebook/internal/storage"
)

// recordingRenderer remembers which templates were rendered and with what.
type recordingRenderer struct {
	next echo.Renderer

	mu        sync.Mutex
	templates []string
	data      []interface{}
}

func (r *recordingRenderer) Render(w io.Writer, name string, data interface{}, c echo.Context) error {
	r.mu.Lock()
	r.templates = append(r.templates, name)
	r.data = append(r.data, data)
	r.mu.Unlock()
	return r.next.Render(w, name, data, c)
}

func (r *recordingRenderer) reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.templates, r.data = nil, nil
}

func (r *recordingRenderer) last(t *testing.T) (string, interface{}) {
	t.Helper()
	r.mu.Lock()
	defer r.mu.Unlock()
	require.NotEmpty(t, r.templates, "no template rendered")
	return r.templates[len(r.templates)-1], r.data[len(r.data)-1]
}

type testApp struct {
	e        *echo.Echo
	server   *httptest.Server
	db       *gorm.DB
	renderer *recordingRenderer
	auth     service.AuthService
	recipes  service.RecipeService
	media    string
}

func newTestApp(t *testing.T, opts Options) *testApp {
	t.Helper()

	gormDB := dbtest.New(t)
	mr := miniredis.RunT(t)
	cacheClient := cache.New(mr.Addr(), "", 0)
	t.Cleanup(func() { _ = cacheClient.Close() })

	cfg := &config.Config{StorageBackend: "local", MediaRoot: t.TempDir(), MediaURL: "/media/"}
	store, err := storage.NewLocalStorage(cfg.MediaRoot, cfg.MediaURL)
	require.NoError(t, err)

	jwtService := auth.NewJWTService("test-secret")
	authService := service.NewAuthService(repository.NewUserRepository(gormDB), jwtService, auth.NewTokenStore(cacheClient))
	recipeService := service.NewRecipeService(
		repository.NewRecipeRepository(gormDB),
		repository.NewCookedAtRepository(gormDB),
		store,
		cacheClient,
	)
	cookies := handler.NewCookies(auth.NewFlashCodec(jwtService), false)

	e := echo.New()
	require.NoError(t, Register(e, cfg, opts, zap.NewNop(), authService,
		handler.NewAuthHandler(authService, cookies),
		handler.NewRecipeHandler(recipeService, cookies),
		handler.NewRecipeAPIHandler(recipeService, authService),
	))
	rec := &recordingRenderer{next: e.Renderer}
	e.Renderer = rec

	_, err = authService.Register(context.Background(), "hiren", "a@b.com", "bunny")
	require.NoError(t, err)

	server := httptest.NewServer(e)
	t.Cleanup(server.Close)

	return &testApp{e: e, server: server, db: gormDB, renderer: rec, auth: authService, recipes: recipeService, media: cfg.MediaRoot}
}

type client struct {
	app  *testApp
	http *http.Client
	jar  *cookiejar.Jar
}

// client returns a browser-like client. follow controls redirect handling.
func (a *testApp) client(t *testing.T, follow bool) *client {
	jar, err := cookiejar.New(nil)
	require.NoError(t, err)
	hc := &http.Client{Jar: jar}
	if !follow {
		hc.CheckRedirect = func(*http.Request, []*http.Request) error { return http.ErrUseLastResponse }
	}
	return &client{app: a, http: hc, jar: jar}
}

func (c *client) url(path string) string {
	return c.app.server.URL + path
}

func (c *client) login(t *testing.T, username, password string) string {
	token, _, err := c.app.auth.Login(context.Background(), username, password)
	require.NoError(t, err)
	u, _ := url.Parse(c.app.server.URL)
	c.jar.SetCookies(u, []*http.Cookie{{Name: handler.SessionCookieName, Value: token, Path: "/"}})
	return token
}

func (c *client) get(t *testing.T, path string) *http.Response {
	resp, err := c.http.Get(c.url(path))
	require.NoError(t, err)
	t.Cleanup(func() { resp.Body.Close() })
	return resp
}

func (c *client) postForm(t *testing.T, path string, form url.Values) *http.Response {
	resp, err := c.http.PostForm(c.url(path), form)
	require.NoError(t, err)
	t.Cleanup(func() { resp.Body.Close() })
	return resp
}

func (c *client) postMultipart(t *testing.T, path string, fields map[string]string, fileField, filename string, file []byte) *http.Response {
	var body bytes.Buffer
	w := multipart.NewWriter(&body)
	for k, v := range fields {
		require.NoError(t, w.WriteField(k, v))
	}
	if file != nil {
		fw, err := w.CreateFormFile(fileField, filename)
		require.NoError(t, err)
		_, err = fw.Write(file)
		require.NoError(t, err)
	}
	require.NoError(t, w.Close())

	resp, err := c.http.Post(c.url(path), w.FormDataContentType(), &body)
	require.NoError(t, err)
	t.Cleanup(func() { resp.Body.Close() })
	return resp
}

func testPNG(t *testing.T) []byte {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, 50, 50))
	for x := 0; x < 50; x++ {
		for y := 0; y < 50; y++ {
			img.Set(x, y, color.RGBA{R: 155, A: 255})
		}
	}
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, img))
	return buf.Bytes()
}

func resolve(e *echo.Echo, method, path string) string {
	c := e.NewContext(httptest.NewRequest(method, path, nil), httptest.NewRecorder())
	e.Router().Find(method, path, c)
	for _, r := range e.Routes() {
		if r.Method == method && r.Path == c.Path() {
			return r.Name
		}
	}
	return ""
}

func countRecipes(t *testing.T, db *gorm.DB) int64 {
	var n int64
	require.NoError(t, db.Model(&model.Recipe{}).Count(&n).Error)
	return n
}

func TestLoginView_ReturnsLoginTemplate(t *testing.T) {
	app := newTestApp(t, Options{})
	c := app.client(t, true)

	resp := c.get(t, "/")
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	name, _ := app.renderer.last(t)
	assert.Equal(t, "login.html", name)
}

func TestLoginView_AuthenticatedUserRedirectsToApp(t *testing.T) {
	app := newTestApp(t, Options{})
	c := app.client(t, true)
	c.login(t, "hiren", "bunny")

	resp := c.get(t, "/")
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "/recipes/", resp.Request.URL.Path)
	name, _ := app.renderer.last(t)
	assert.Equal(t, "list.html", name)
}

func TestLoginRequired_RedirectsUnauthenticatedUser(t *testing.T) {
	app := newTestApp(t, Options{})

	resp := app.client(t, false).get(t, "/recipes/")
	assert.Equal(t, http.StatusFound, resp.StatusCode)
	assert.Equal(t, "/?next=/recipes/", resp.Header.Get(echo.HeaderLocation))

	resp = app.client(t, false).get(t, "/create/")
	assert.Equal(t, "/?next=/create/", resp.Header.Get(echo.HeaderLocation))

	resp = app.client(t, true).get(t, "/recipes/")
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "/", resp.Request.URL.Path)
	assert.Equal(t, "next=/recipes/", resp.Request.URL.RawQuery)
	name, data := app.renderer.last(t)
	assert.Equal(t, "login.html", name)
	assert.Equal(t, "/recipes/", data.(handler.LoginPage).Next)
}

func TestLoginView_BadAuthRedirectsWithMessage(t *testing.T) {
	app := newTestApp(t, Options{})
	c := app.client(t, true)

	resp := c.postForm(t, "/", url.Values{"username": {"hiren"}, "password": {"bad pass"}})
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "/", resp.Request.URL.Path)
	assert.Empty(t, resp.Request.URL.RawQuery)

	name, data := app.renderer.last(t)
	assert.Equal(t, "login.html", name)
	page := data.(handler.LoginPage)
	require.Len(t, page.Messages, 1)
	assert.Equal(t, "Username/Password is not valid!", page.Messages[0].Text)
	assert.Equal(t, "error", page.Messages[0].Tags)

	// the message is shown once
	app.renderer.reset()
	c.get(t, "/")
	_, data = app.renderer.last(t)
	assert.Empty(t, data.(handler.LoginPage).Messages)
}

func TestLoginView_EmptyFormIsRejectedLikeBadAuth(t *testing.T) {
	app := newTestApp(t, Options{})

	resp := app.client(t, false).postForm(t, "/", url.Values{"username": {"hiren"}})
	assert.Equal(t, http.StatusFound, resp.StatusCode)
	assert.Equal(t, "/", resp.Header.Get(echo.HeaderLocation))
}

func TestLoginView_GoodAuthSetsSessionAndHonoursNext(t *testing.T) {
	app := newTestApp(t, Options{})

	tests := []struct {
		name     string
		next     string
		location string
	}{
		{"default", "", "/recipes/"},
		{"local next", "/create/", "/create/"},
		{"external next", "https://evil.example/", "/recipes/"},
		{"scheme-relative next", "//evil.example/", "/recipes/"},
		{"tab after slash", "/\t/evil.example/", "/recipes/"},
		{"newline after slash", "/\n/evil.example/", "/recipes/"},
		{"encoded tab", "/%09/evil.example/", "/recipes/"},
		{"backslash", "/\\evil.example/", "/recipes/"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := app.client(t, false)
			resp := c.postForm(t, "/", url.Values{"username": {"hiren"}, "password": {"bunny"}, "next": {tt.next}})
			assert.Equal(t, http.StatusFound, resp.StatusCode)
			assert.Equal(t, tt.location, resp.Header.Get(echo.HeaderLocation))

			var session *http.Cookie
			for _, ck := range resp.Cookies() {
				if ck.Name == handler.SessionCookieName {
					session = ck
				}
			}
			require.NotNil(t, session)
			assert.True(t, session.HttpOnly)
			_, err := app.auth.Authenticate(context.Background(), session.Value)
			assert.NoError(t, err)
		})
	}
}

func TestRoutes_Resolve(t *testing.T) {
	app := newTestApp(t, Options{})

	assert.Equal(t, "login", resolve(app.e, http.MethodGet, "/"))
	assert.Equal(t, "login", resolve(app.e, http.MethodPost, "/"))
	assert.Equal(t, "create", resolve(app.e, http.MethodGet, "/create/"))
	assert.Equal(t, "create", resolve(app.e, http.MethodPost, "/create/"))
	assert.Equal(t, "recipes", resolve(app.e, http.MethodGet, "/recipes/"))
	assert.Equal(t, "recipe", resolve(app.e, http.MethodGet, "/recipes/7/"))
	assert.Equal(t, "/create/", app.e.Reverse("create"))
	assert.Equal(t, "/recipes/7/", app.e.Reverse("recipe", 7))
}

func TestCreateView_ReturnsAddTemplate(t *testing.T) {
	app := newTestApp(t, Options{})
	c := app.client(t, true)
	c.login(t, "hiren", "bunny")

	resp := c.get(t, "/create/")
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	name, data := app.renderer.last(t)
	assert.Equal(t, "add.html", name)
	page := data.(handler.AddPage)
	assert.Empty(t, page.Form.Name)
	assert.Empty(t, page.Errors)
	assert.Equal(t, model.CuisineChoices, page.CuisineChoices)
	assert.Equal(t, "hiren", page.User.Username)
}

func TestCreateView_StoresRecipe(t *testing.T) {
	app := newTestApp(t, Options{})
	c := app.client(t, false)
	c.login(t, "hiren", "bunny")

	resp := c.postMultipart(t, "/create/",
		map[string]string{"name": "test", "cuisine": "Oth", "meal": "Oth"},
		"image", "test.png", testPNG(t))
	assert.Equal(t, http.StatusFound, resp.StatusCode)
	assert.Equal(t, "/create/", resp.Header.Get(echo.HeaderLocation))

	assert.Equal(t, int64(1), countRecipes(t, app.db))
	var recipe model.Recipe
	require.NoError(t, app.db.First(&recipe).Error)
	assert.Equal(t, "test", recipe.Name)
	assert.True(t, strings.HasPrefix(recipe.Image, "recipes/"))
	assert.True(t, strings.HasSuffix(recipe.Image, ".png"))

	stored, err := os.ReadFile(filepath.Join(app.media, filepath.FromSlash(recipe.Image)))
	require.NoError(t, err)
	assert.Equal(t, testPNG(t), stored)

	img := c.get(t, "/media/"+recipe.Image)
	assert.Equal(t, http.StatusOK, img.StatusCode)

	// following the redirect shows the confirmation once
	app.renderer.reset()
	c.get(t, "/create/")
	_, data := app.renderer.last(t)
	page := data.(handler.AddPage)
	require.Len(t, page.Messages, 1)
	assert.Equal(t, "success", page.Messages[0].Tags)
}

func TestCreateView_InvalidFormReRenders(t *testing.T) {
	app := newTestApp(t, Options{})
	c := app.client(t, false)
	c.login(t, "hiren", "bunny")

	resp := c.postMultipart(t, "/create/",
		map[string]string{"name": "test", "cuisine": "Zzz", "meal": "Oth"},
		"image", "image.jpg", []byte("xyz"))
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	name, data := app.renderer.last(t)
	assert.Equal(t, "add.html", name)
	page := data.(handler.AddPage)
	assert.Equal(t, "test", page.Form.Name)
	assert.Contains(t, page.Errors, "cuisine")
	assert.Contains(t, page.Errors, "image")
	assert.Zero(t, countRecipes(t, app.db))

	resp = c.postForm(t, "/create/", url.Values{"name": {"test"}, "cuisine": {"Oth"}, "meal": {"Oth"}})
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	_, data = app.renderer.last(t)
	assert.Equal(t, "This field is required.", data.(handler.AddPage).Errors["image"])
}

func TestDetailView_LogCooked(t *testing.T) {
	app := newTestApp(t, Options{})
	c := app.client(t, true)
	c.login(t, "hiren", "bunny")

	recipe := &model.Recipe{Name: "test", Cuisine: model.CuisineItalian, Meal: model.MealDinner}
	require.NoError(t, app.db.Create(recipe).Error)

	resp := c.postForm(t, "/recipes/1/cooked/", url.Values{"date": {"2016-12-17"}, "rating": {"5"}})
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "/recipes/1/", resp.Request.URL.Path)

	name, data := app.renderer.last(t)
	assert.Equal(t, "detail.html", name)
	page := data.(handler.DetailPage)
	require.Len(t, page.Recipe.CookedAt, 1)
	assert.Equal(t, 5, page.Recipe.CookedAt[0].Rating)
	assert.Equal(t, 5.0, page.Recipe.AverageRating)
	require.Len(t, page.Messages, 1)
	assert.Equal(t, "success", page.Messages[0].Tags)

	c.postForm(t, "/recipes/1/cooked/", url.Values{"date": {"2016-12-18"}, "rating": {"9"}})
	_, data = app.renderer.last(t)
	page = data.(handler.DetailPage)
	require.Len(t, page.Messages, 1)
	assert.Equal(t, "error", page.Messages[0].Tags)
	assert.Len(t, page.Recipe.CookedAt, 1)

	var n int64
	require.NoError(t, app.db.Model(&model.CookedAt{}).Count(&n).Error)
	assert.Equal(t, int64(1), n)

	resp = c.get(t, "/recipes/99/")
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	resp = c.postForm(t, "/recipes/99/cooked/", url.Values{"rating": {"3"}})
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestListView_ShowsRecipes(t *testing.T) {
	app := newTestApp(t, Options{})
	c := app.client(t, true)
	c.login(t, "hiren", "bunny")

	for _, n := range []string{"first", "second"} {
		require.NoError(t, app.db.Create(&model.Recipe{Name: n, Image: "recipes/" + n + ".png", Cuisine: model.CuisineOther, Meal: model.MealOther}).Error)
	}

	c.get(t, "/recipes/")
	name, data := app.renderer.last(t)
	assert.Equal(t, "list.html", name)
	page := data.(handler.ListPage)
	require.Len(t, page.Recipes, 2)
	assert.Equal(t, "second", page.Recipes[0].Name)
	assert.Equal(t, "/media/recipes/second.png", page.Recipes[0].ImageURL)
}

func TestLogout_RevokesSession(t *testing.T) {
	app := newTestApp(t, Options{})
	c := app.client(t, false)
	token := c.login(t, "hiren", "bunny")

	resp := c.get(t, "/logout/")
	assert.Equal(t, http.StatusFound, resp.StatusCode)
	assert.Equal(t, "/", resp.Header.Get(echo.HeaderLocation))

	_, err := app.auth.Authenticate(context.Background(), token)
	assert.ErrorIs(t, err, service.ErrInvalidSession)

	// a stolen copy of the cookie no longer works either
	other := app.client(t, false)
	u, _ := url.Parse(app.server.URL)
	other.jar.SetCookies(u, []*http.Cookie{{Name: handler.SessionCookieName, Value: token, Path: "/"}})
	resp = other.get(t, "/recipes/")
	assert.Equal(t, http.StatusFound, resp.StatusCode)
	assert.Equal(t, "/?next=/recipes/", resp.Header.Get(echo.HeaderLocation))
}

func TestAPI(t *testing.T) {
	app := newTestApp(t, Options{})
	token, _, err := app.auth.Login(context.Background(), "hiren", "bunny")
	require.NoError(t, err)
	require.NoError(t, app.db.Create(&model.Recipe{Name: "test", Cuisine: model.CuisineOther, Meal: model.MealOther}).Error)

	do := func(method, path, body string, authed bool) *http.Response {
		req, err := http.NewRequest(method, app.server.URL+path, strings.NewReader(body))
		require.NoError(t, err)
		if body != "" {
			req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
		}
		if authed {
			req.Header.Set(echo.HeaderAuthorization, "Bearer "+token)
		}
		resp, err := http.DefaultClient.Do(req)
		require.NoError(t, err)
		t.Cleanup(func() { resp.Body.Close() })
		return resp
	}

	resp := do(http.MethodGet, "/api/recipes", "", false)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	resp = do(http.MethodGet, "/api/me", "", true)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var me handler.SessionResponse
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&me))
	assert.Equal(t, "hiren", me.Username)
	assert.Equal(t, "a@b.com", me.Email)

	resp = do(http.MethodPost, "/api/recipes/1/cooked", `{"date":"2016-12-17","rating":5}`, true)
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	var cooked handler.CookedResponse
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&cooked))
	assert.Equal(t, "2016-12-17", cooked.Date)

	resp = do(http.MethodPost, "/api/recipes/1/cooked", `{"rating":0}`, true)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	resp = do(http.MethodGet, "/api/recipes/1/cooked", "", true)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var history []handler.CookedResponse
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&history))
	require.Len(t, history, 1)
	assert.Equal(t, cooked.ID, history[0].ID)
	assert.Equal(t, 5, history[0].Rating)

	resp = do(http.MethodGet, "/api/recipes/42/cooked", "", true)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)

	resp = do(http.MethodGet, "/api/recipes", "", true)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var list []handler.RecipeResponse
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&list))
	require.Len(t, list, 1)
	assert.Equal(t, "test", list[0].Name)
	assert.Len(t, list[0].CookedAt, 1)

	resp = do(http.MethodGet, "/api/recipes/42", "", true)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	var apiErr apperrors.ErrorResponse
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&apiErr))
	assert.Equal(t, "RECIPE_NOT_FOUND", apiErr.Code)
}

func TestCSRF_ProtectsForms(t *testing.T) {
	app := newTestApp(t, Options{CSRF: true})
	c := app.client(t, false)

	resp := c.postForm(t, "/", url.Values{"username": {"hiren"}, "password": {"bunny"}})
	assert.Contains(t, []int{http.StatusBadRequest, http.StatusForbidden}, resp.StatusCode)

	c.get(t, "/")
	_, data := app.renderer.last(t)
	token := data.(handler.LoginPage).CSRF
	require.NotEmpty(t, token)

	resp = c.postForm(t, "/", url.Values{"username": {"hiren"}, "password": {"bunny"}, "csrfmiddlewaretoken": {token}})
	assert.Equal(t, http.StatusFound, resp.StatusCode)
	assert.Equal(t, "/recipes/", resp.Header.Get(echo.HeaderLocation))
}

func TestHealthz(t *testing.T) {
	app := newTestApp(t, Options{})
	resp := app.client(t, false).get(t, "/healthz")
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}
