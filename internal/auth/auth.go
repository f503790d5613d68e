package auth

import (
	"context"
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v4"
)

// Ошибки аутентификации
var (
	ErrUnauthenticated = errors.New("unauthenticated")
	ErrInvalidToken    = errors.New("invalid session token")
)

// SessionCookie - имя cookie с сессионным JWT
const SessionCookie = "session"

type contextKey int

const userIDKey contextKey = iota

// WithUserID кладёт id аутентифицированного пользователя в контекст
func WithUserID(ctx context.Context, userID int64) context.Context {
	return context.WithValue(ctx, userIDKey, userID)
}

// UserIDFromContext достаёт id пользователя из контекста.
// Без пользователя возвращает ErrUnauthenticated.
func UserIDFromContext(ctx context.Context) (int64, error) {
	userID, ok := ctx.Value(userIDKey).(int64)
	if !ok || userID <= 0 {
		return 0, ErrUnauthenticated
	}
	return userID, nil
}

// TokenManager подписывает и проверяет сессионные JWT (HS256).
//
// Выдача сессий (логин/регистрация) живёт вне этого сервиса, здесь только
// проверка токена и выпуск служебных токенов для CLI.
type TokenManager struct {
	secret []byte
	ttl    time.Duration
	now    func() time.Time
}

// NewTokenManager создаёт TokenManager
func NewTokenManager(secret string, ttl time.Duration) *TokenManager {
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	return &TokenManager{secret: []byte(secret), ttl: ttl, now: time.Now}
}

// Issue выпускает access токен для пользователя
func (m *TokenManager) Issue(userID int64) (string, time.Time, error) {
	now := m.now()
	expiresAt := now.Add(m.ttl)

	claims := jwt.MapClaims{
		"sub":  userID,
		"exp":  expiresAt.Unix(),
		"iat":  now.Unix(),
		"type": "access",
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(m.secret)
	if err != nil {
		return "", time.Time{}, err
	}
	return signed, expiresAt, nil
}

// Parse проверяет токен и возвращает id пользователя
func (m *TokenManager) Parse(tokenString string) (int64, error) {
	if tokenString == "" {
		return 0, ErrUnauthenticated
	}

	token, err := jwt.Parse(tokenString, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, errors.New("unexpected signing method")
		}
		return m.secret, nil
	})
	if err != nil || !token.Valid {
		return 0, ErrInvalidToken
	}

	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok {
		return 0, ErrInvalidToken
	}

	if tokenType, _ := claims["type"].(string); tokenType != "access" {
		return 0, ErrInvalidToken
	}

	sub, ok := claims["sub"].(float64)
	if !ok || sub <= 0 {
		return 0, ErrInvalidToken
	}

	return int64(sub), nil
}
