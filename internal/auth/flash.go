package auth

import (
	"time"

	"github.com/golang-jwt/jwt/v4"
)

// Message levels, rendered as CSS classes by the templates.
const (
	LevelSuccess = "success"
	LevelInfo    = "info"
	LevelError   = "error"
)

// flashExpiry bounds how long an unread message survives.
const flashExpiry = 5 * time.Minute

// Message is a one-shot notice shown on the next rendered page.
type Message struct {
	Tags string `json:"tags"`
	Text string `json:"message"`
}

type flashClaims struct {
	Messages []Message `json:"messages"`
	jwt.RegisteredClaims
}

// FlashCodec signs flash messages so they can ride in a cookie without a
// server-side session.
type FlashCodec struct {
	jwt *JWTService
}

// NewFlashCodec creates a codec sharing the session signing key.
func NewFlashCodec(jwtService *JWTService) *FlashCodec {
	return &FlashCodec{jwt: jwtService}
}

// Encode serialises messages into a signed cookie value.
func (f *FlashCodec) Encode(messages []Message) (string, error) {
	now := f.jwt.now()
	claims := &flashClaims{
		Messages: messages,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   "flash",
			ExpiresAt: jwt.NewNumericDate(now.Add(flashExpiry)),
			IssuedAt:  jwt.NewNumericDate(now),
		},
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(f.jwt.secret)
}

// Decode verifies a cookie value. Tampered or stale values yield no messages.
func (f *FlashCodec) Decode(value string) []Message {
	if value == "" {
		return nil
	}
	claims := &flashClaims{}
	if err := f.jwt.parse(value, claims); err != nil || claims.Subject != "flash" {
		return nil
	}
	return claims.Messages
}
