package handler

import (
	"net/http"
	"net/url"
	"strings"
	"time"
	"unicode"

	"github.com/labstack/echo/v4"

	"recipebook/internal/auth"
)

const (
	// SessionCookieName holds the signed session token.
	SessionCookieName = "sessionid"
	// SessionContextKey is where the auth middleware stores *auth.Claims.
	SessionContextKey = "session"
	// LoginPath is where anonymous users are sent.
	LoginPath = "/"
	// HomePath is where users land after logging in.
	HomePath = "/recipes/"

	flashCookieName = "messages"
	flashPendingKey = "flash.pending"
	csrfContextKey  = "csrf"
)

// Cookies writes the session and flash cookies.
type Cookies struct {
	flash  *auth.FlashCodec
	secure bool
}

// NewCookies creates the cookie helper. secure marks cookies HTTPS-only.
func NewCookies(flash *auth.FlashCodec, secure bool) *Cookies {
	return &Cookies{flash: flash, secure: secure}
}

func (k *Cookies) cookie(name, value string, maxAge time.Duration) *http.Cookie {
	c := &http.Cookie{
		Name:     name,
		Value:    value,
		Path:     "/",
		HttpOnly: true,
		Secure:   k.secure,
		SameSite: http.SameSiteLaxMode,
	}
	if maxAge < 0 {
		c.MaxAge = -1
		c.Expires = time.Unix(0, 0)
	} else {
		c.MaxAge = int(maxAge.Seconds())
	}
	return c
}

// SetSession stores a session token on the response.
func (k *Cookies) SetSession(c echo.Context, token string) {
	c.SetCookie(k.cookie(SessionCookieName, token, auth.SessionExpiry))
}

// ClearSession removes the session cookie.
func (k *Cookies) ClearSession(c echo.Context) {
	c.SetCookie(k.cookie(SessionCookieName, "", -1))
}

// AddFlash queues a message for the next rendered page, keeping any
// messages already queued.
func (k *Cookies) AddFlash(c echo.Context, tags, text string) {
	messages, ok := c.Get(flashPendingKey).([]auth.Message)
	if !ok {
		messages = k.peekFlash(c)
	}
	messages = append(messages, auth.Message{Tags: tags, Text: text})
	c.Set(flashPendingKey, messages)

	value, err := k.flash.Encode(messages)
	if err != nil {
		c.Logger().Errorf("encode flash: %v", err)
		return
	}
	c.SetCookie(k.cookie(flashCookieName, value, 5*time.Minute))
}

// PopFlash returns queued messages and clears them.
func (k *Cookies) PopFlash(c echo.Context) []auth.Message {
	messages := k.peekFlash(c)
	if _, err := c.Cookie(flashCookieName); err == nil {
		c.SetCookie(k.cookie(flashCookieName, "", -1))
	}
	return messages
}

func (k *Cookies) peekFlash(c echo.Context) []auth.Message {
	cookie, err := c.Cookie(flashCookieName)
	if err != nil {
		return nil
	}
	return k.flash.Decode(cookie.Value)
}

// LoginURL builds the login redirect for an anonymous request to next.
// Slashes stay readable: /?next=/recipes/.
func LoginURL(next string) string {
	if next == "" || next == LoginPath {
		return LoginPath
	}
	return LoginPath + "?next=" + strings.ReplaceAll(url.QueryEscape(next), "%2F", "/")
}

// safeNext accepts only local absolute paths as redirect targets. Browsers
// drop tabs and newlines from URLs, so any control character or backslash,
// raw or percent-encoded, rejects the value.
func safeNext(next string) string {
	if next == "" || !strings.HasPrefix(next, "/") || strings.HasPrefix(next, "//") || hasUnsafeRune(next) {
		return HomePath
	}
	u, err := url.Parse(next)
	if err != nil || u.Scheme != "" || u.Host != "" || u.User != nil || strings.HasPrefix(u.Path, "//") || hasUnsafeRune(u.Path) {
		return HomePath
	}
	return next
}

func hasUnsafeRune(s string) bool {
	return strings.ContainsRune(s, '\\') || strings.IndexFunc(s, unicode.IsControl) >= 0
}

// currentSession returns the claims set by the auth middleware, if any.
func currentSession(c echo.Context) *auth.Claims {
	claims, _ := c.Get(SessionContextKey).(*auth.Claims)
	return claims
}

func csrfToken(c echo.Context) string {
	token, _ := c.Get(csrfContextKey).(string)
	return token
}
