package service

import (
	"errors"
	"fmt"
	"time"

	"github.com/Freeeeeet/pbl_scheduler/internal/clock"
	"github.com/Freeeeeet/pbl_scheduler/internal/model"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

// Claims - содержимое токена доступа
type Claims struct {
	Email string     `json:"email"`
	Role  model.Role `json:"role"`
	Name  string     `json:"name"`
	jwt.RegisteredClaims
}

// UserID возвращает идентификатор пользователя из subject
func (c *Claims) UserID() (uuid.UUID, error) {
	return uuid.Parse(c.Subject)
}

// TokenIssuer выдаёт и проверяет HS256 токены
type TokenIssuer struct {
	secret []byte
	ttl    time.Duration
	clock  clock.Clock
}

func NewTokenIssuer(secret string, ttl time.Duration, clk clock.Clock) *TokenIssuer {
	return &TokenIssuer{secret: []byte(secret), ttl: ttl, clock: clk}
}

// Issue подписывает токен для пользователя
func (t *TokenIssuer) Issue(user *model.User) (string, time.Time, error) {
	now := t.clock.Now()
	expiresAt := now.Add(t.ttl)

	claims := &Claims{
		Email: user.Email,
		Role:  user.Role,
		Name:  user.Name,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   user.ID.String(),
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(expiresAt),
		},
	}

	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(t.secret)
	if err != nil {
		return "", time.Time{}, fmt.Errorf("sign token: %w", err)
	}
	return signed, expiresAt, nil
}

// Parse проверяет подпись и срок действия токена
func (t *TokenIssuer) Parse(token string) (*Claims, error) {
	claims := &Claims{}
	parsed, err := jwt.ParseWithClaims(token, claims, func(*jwt.Token) (any, error) {
		return t.secret, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithTimeFunc(t.clock.Now),
	)
	if err != nil {
		return nil, fmt.Errorf("parse token: %w", err)
	}
	if !parsed.Valid {
		return nil, errors.New("parse token: invalid token")
	}
	return claims, nil
}
