// Package auth проверяет bearer-токены провайдера идентичности (HS256)
// и кладёт личность вызывающего в контекст запроса.
package auth

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
	log "github.com/sirupsen/logrus"

	"cofish.app/core/internal/common"
)

// Identity вызывающий пользователь.
type Identity struct {
	UserID      string `json:"userId"`
	Email       string `json:"email"`
	DisplayName string `json:"displayName,omitempty"`
}

// Claims JWT провайдера: sub = userId.
type Claims struct {
	Email string `json:"email,omitempty"`
	Name  string `json:"name,omitempty"`
	jwt.RegisteredClaims
}

// Verifier проверяет и (для dev/тестов) выпускает токены.
type Verifier struct {
	secret []byte
	issuer string
}

// NewVerifier создаёт проверку токенов с общим секретом.
func NewVerifier(secret, issuer string) *Verifier {
	return &Verifier{secret: []byte(secret), issuer: issuer}
}

// Verify разбирает токен и возвращает личность.
// Любая ошибка сводится к common.ErrNotAuthenticated.
func (v *Verifier) Verify(tokenString string) (Identity, error) {
	opts := []jwt.ParserOption{jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()})}
	if v.issuer != "" {
		opts = append(opts, jwt.WithIssuer(v.issuer))
	}
	claims := &Claims{}
	token, err := jwt.ParseWithClaims(tokenString, claims, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, errors.New("invalid signing method")
		}
		return v.secret, nil
	}, opts...)
	if err != nil {
		return Identity{}, fmt.Errorf("token: %v: %w", err, common.ErrNotAuthenticated)
	}
	if !token.Valid || claims.Subject == "" {
		return Identity{}, fmt.Errorf("token without subject: %w", common.ErrNotAuthenticated)
	}
	return Identity{UserID: claims.Subject, Email: claims.Email, DisplayName: claims.Name}, nil
}

// Issue выпускает токен для личности (dev-режим, тесты).
func (v *Verifier) Issue(id Identity, ttl time.Duration) (string, error) {
	now := time.Now()
	claims := Claims{
		Email: id.Email,
		Name:  id.DisplayName,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   id.UserID,
			Issuer:    v.issuer,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(v.secret)
}

type ctxKey struct{}

const ginIdentityKey = "identity"

// WithIdentity кладёт личность в контекст.
func WithIdentity(ctx context.Context, id Identity) context.Context {
	return context.WithValue(ctx, ctxKey{}, id)
}

// FromContext достаёт личность из контекста.
func FromContext(ctx context.Context) (Identity, bool) {
	id, ok := ctx.Value(ctxKey{}).(Identity)
	return id, ok && id.UserID != ""
}

// CurrentUserID возвращает ID вызывающего или ErrNotAuthenticated.
func CurrentUserID(ctx context.Context) (string, error) {
	id, ok := FromContext(ctx)
	if !ok {
		return "", common.ErrNotAuthenticated
	}
	return id.UserID, nil
}

// FromGin достаёт личность, положенную Middleware.
func FromGin(c *gin.Context) (Identity, error) {
	if v, ok := c.Get(ginIdentityKey); ok {
		if id, ok := v.(Identity); ok && id.UserID != "" {
			return id, nil
		}
	}
	return Identity{}, common.ErrNotAuthenticated
}

// Middleware проверяет заголовок Authorization: Bearer <token>.
func Middleware(v *Verifier) gin.HandlerFunc {
	return func(c *gin.Context) {
		tokenString := extractToken(c.GetHeader("Authorization"))
		if tokenString == "" {
			log.Debugf("Нет bearer-токена от %s", c.ClientIP())
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "missing or malformed authorization header", "kind": "not_authenticated"})
			return
		}
		id, err := v.Verify(tokenString)
		if err != nil {
			log.WithError(err).Warnf("Недействительный токен от %s", c.ClientIP())
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "invalid or expired token", "kind": "not_authenticated"})
			return
		}
		c.Set(ginIdentityKey, id)
		c.Set("user_id", id.UserID)
		c.Request = c.Request.WithContext(WithIdentity(c.Request.Context(), id))
		c.Next()
	}
}

func extractToken(authHeader string) string {
	parts := strings.SplitN(authHeader, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
		return ""
	}
	return strings.TrimSpace(parts[1])
}
